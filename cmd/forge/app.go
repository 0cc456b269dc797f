package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/assets"
	"github.com/Faultbox/assetforge/internal/config"
	"github.com/Faultbox/assetforge/internal/logger"
	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/pipeline"
	"github.com/Faultbox/assetforge/pkg/scenefile"
)

// errUsage reports bad arguments after the usage line has been printed.
var errUsage = errors.New("invalid usage")

// newFlagSet creates a subcommand flag set carrying the common flags.
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *config.Flags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := &config.Flags{}
	flags.Register(fs)
	return fs, flags
}

// parseArgs parses flags placed before, between or after positional
// arguments and returns the positionals.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func usage(stderr io.Writer, line string) error {
	fmt.Fprintln(stderr, "Usage: "+line)
	return errUsage
}

// app holds what every subcommand sets up from config.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	manager *assets.Manager
}

// setup loads config, initializes logging and builds the asset manager.
// Archives have the lowest priority, then search paths, then the directory
// of input.
func setup(flags *config.Flags, input string, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}

	var fileCfg logger.FileConfig
	if cfg.Logging.LogFile != "" {
		fileCfg = logger.DefaultFileConfig(cfg.Logging.LogFile)
		fileCfg.JSON = cfg.Logging.JSON
	}
	if err := logger.InitWithFileConfig(cfg.Logging.Level, fileCfg, stderr); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	a := &app{cfg: cfg, log: logger.Log, manager: assets.NewManager(logger.Named("assets"))}
	for _, path := range cfg.Data.Archives {
		if err := a.manager.AddArchive(path); err != nil {
			a.close()
			return nil, err
		}
	}
	dirs := append([]string{}, cfg.Data.SearchPaths...)
	if input != "" {
		dirs = append(dirs, filepath.Dir(input))
	}
	for _, dir := range dirs {
		if err := a.manager.AddDir(dir); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) importer(opts ...pipeline.Option) (*pipeline.Importer, error) {
	opts = append([]pipeline.Option{
		pipeline.WithOptions(a.cfg.Import),
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithResolver(a.manager),
	}, opts...)
	return pipeline.New(opts...)
}

func (a *app) close() {
	a.manager.Close()
	logger.Sync()
}

// outputPath returns out, or input with its extension replaced by .fscene.
func outputPath(input, out string) string {
	if out != "" {
		return out
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".fscene"
}

func writeScene(path string, sc *asset.Scene) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := scenefile.Write(f, sc); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func readScene(path string) (*asset.Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sc, err := scenefile.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return sc, nil
}

func printSummary(w io.Writer, sc *asset.Scene) {
	st := sc.Stats()
	fmt.Fprintf(w, "Scene:      %s\n", sc.Name)
	fmt.Fprintf(w, "Meshes:     %d (%d primitives, %d triangles, %d LODs)\n", st.Meshes, st.Primitives, st.Triangles, st.LODs)
	fmt.Fprintf(w, "Textures:   %d (%.2f MB)\n", st.Textures, float64(st.TextureBytes)/(1024*1024))
	fmt.Fprintf(w, "Shaders:    %d\n", st.Shaders)
	fmt.Fprintf(w, "Materials:  %d\n", st.Materials)
	fmt.Fprintf(w, "Nodes:      %d (%d roots)\n", st.Nodes, len(sc.Roots))
	fmt.Fprintf(w, "Lights:     %d\n", st.Lights)
	fmt.Fprintf(w, "Animations: %d\n", st.Animations)
}
