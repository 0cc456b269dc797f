package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/logger"
	"github.com/Faultbox/assetforge/internal/trace"
	"github.com/Faultbox/assetforge/internal/watch"
	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/pipeline"
	"github.com/Faultbox/assetforge/pkg/shader"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cmdImport(args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("import", stderr)
	out := fs.String("o", "", "Output scene file (default: input with .fscene extension)")
	tracePath := fs.String("trace", "", "Write a Chrome trace of the import to this file")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return usage(stderr, "forge import <file> [-o out.fscene] [-trace trace.json]")
	}
	input := args[0]

	a, err := setup(flags, input, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	var rec *trace.Recorder
	if *tracePath != "" {
		rec = trace.NewRecorder(logger.Named("trace"))
	}
	im, err := a.importer(pipeline.WithTracer(rec))
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	sc, importErr := im.ImportFile(ctx, input)

	// The trace is written for failed imports too.
	if rec != nil {
		if err := writeTrace(*tracePath, rec); err != nil {
			return err
		}
	}
	if importErr != nil {
		return importErr
	}

	path := outputPath(input, *out)
	if err := writeScene(path, sc); err != nil {
		return err
	}

	printSummary(stdout, sc)
	fmt.Fprintf(stdout, "Took:       %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(stdout, "Wrote:      %s\n", path)
	return nil
}

func writeTrace(path string, rec *trace.Recorder) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rec.WriteChrome(f); err != nil {
		f.Close()
		return fmt.Errorf("writing trace %s: %w", path, err)
	}
	return f.Close()
}

func cmdInfo(args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("info", stderr)
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return usage(stderr, "forge info <file.fscene>")
	}

	a, err := setup(flags, "", stderr)
	if err != nil {
		return err
	}
	defer a.close()

	sc, err := readScene(args[0])
	if err != nil {
		return err
	}

	printSummary(stdout, sc)

	if len(sc.Meshes) > 0 {
		fmt.Fprintln(stdout, "\nMeshes:")
		for i := range sc.Meshes {
			m := &sc.Meshes[i]
			fmt.Fprintf(stdout, "  [%d] %-24s %d primitives, %d triangles\n", i, m.Name, len(m.Primitives), m.TriangleCount())
		}
	}
	if len(sc.Textures) > 0 {
		fmt.Fprintln(stdout, "\nTextures:")
		for i := range sc.Textures {
			t := &sc.Textures[i]
			fmt.Fprintf(stdout, "  [%d] %-24s %dx%d %s %s, %d mips\n", i, t.Name, t.Width, t.Height, t.Format, t.Role, len(t.Mips))
		}
	}
	if len(sc.Shaders) > 0 {
		fmt.Fprintln(stdout, "\nShaders:")
		for i := range sc.Shaders {
			s := &sc.Shaders[i]
			fmt.Fprintf(stdout, "  [%d] %-24s %s %s [%s]\n", i, s.Name, s.Profile, s.Reflection.Stages(), strings.Join(s.Defines, " "))
		}
	}
	return nil
}

func cmdWatch(args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("watch", stderr)
	out := fs.String("o", "", "Output scene file (default: input with .fscene extension)")
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return usage(stderr, "forge watch <file> [-o out.fscene]")
	}
	input := args[0]
	path := outputPath(input, *out)

	a, err := setup(flags, input, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	im, err := a.importer()
	if err != nil {
		return err
	}

	w := watch.New(input, im, func(sc *asset.Scene, err error) {
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return
		}
		if err := writeScene(path, sc); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return
		}
		printSummary(stdout, sc)
		fmt.Fprintf(stdout, "Wrote:      %s\n\n", path)
	},
		watch.WithSources(a.manager),
		watch.WithDebounce(time.Duration(a.cfg.Watch.Debounce)),
		watch.WithLogger(logger.Named("watch")))

	ctx, stop := signalContext()
	defer stop()

	a.log.Info("Watching", zap.String("path", input), zap.String("output", path))
	return w.Run(ctx)
}

func cmdShader(args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("shader", stderr)
	profile := fs.String("profile", "", "Target profile: "+strings.Join(shader.Profiles(), ", ")+" (default from config)")
	defines := make(map[string]string)
	fs.Func("D", "Preprocessor define NAME or NAME=VALUE (repeatable)", func(s string) error {
		name, value, _ := strings.Cut(s, "=")
		if name == "" {
			return fmt.Errorf("empty define name in %q", s)
		}
		defines[name] = value
		return nil
	})
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return usage(stderr, "forge shader <file.wgsl> [-profile p] [-D K=V ...]")
	}

	a, err := setup(flags, "", stderr)
	if err != nil {
		return err
	}
	defer a.close()

	if *profile == "" {
		*profile = a.cfg.Import.ShaderTargetProfile
	}

	code, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	compiler := shader.NewCompiler(nil, logger.Named("shader"))
	src := asset.ShaderSource{Name: args[0], Code: string(code)}
	s, err := compiler.Compile(context.Background(), src, *profile, defines)
	if err != nil {
		return err
	}

	printShader(stdout, s)
	return nil
}

func printShader(w io.Writer, s *asset.Shader) {
	r := &s.Reflection
	fmt.Fprintf(w, "Shader:   %s\n", s.Name)
	fmt.Fprintf(w, "Profile:  %s\n", s.Profile)
	if len(s.Defines) > 0 {
		fmt.Fprintf(w, "Defines:  %s\n", strings.Join(s.Defines, " "))
	}
	fmt.Fprintf(w, "Stages:   %s\n", r.Stages())
	fmt.Fprintf(w, "IR:       %d bytes (%s)\n", len(s.Bytecode), s.ContentHash)

	fmt.Fprintln(w, "\nEntry points:")
	for _, ep := range r.EntryPoints {
		fmt.Fprintf(w, "  %-9s %s", ep.Stage, ep.Name)
		if ep.Stage == asset.StageCompute {
			fmt.Fprintf(w, " workgroup %dx%dx%d", ep.WorkgroupSize[0], ep.WorkgroupSize[1], ep.WorkgroupSize[2])
		}
		fmt.Fprintln(w)
	}

	if len(r.Bindings) > 0 {
		fmt.Fprintln(w, "\nBindings:")
		for _, b := range r.Bindings {
			fmt.Fprintf(w, "  @group(%d) @binding(%d) %-15s %s: %s", b.Group, b.Binding, b.Kind, b.Name, b.Type)
			if b.Access != "" {
				fmt.Fprintf(w, " (%s)", b.Access)
			}
			fmt.Fprintln(w)
		}
	}

	if len(r.VertexInputs) > 0 {
		fmt.Fprintln(w, "\nVertex inputs:")
		for _, in := range r.VertexInputs {
			fmt.Fprintf(w, "  @location(%d) %s: %s\n", in.Location, in.Name, in.Type)
		}
	}
}
