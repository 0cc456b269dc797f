package config

import (
	"flag"

	"github.com/Faultbox/assetforge/pkg/pipeline"
)

// Flags are the options every forge subcommand accepts.
type Flags struct {
	Config   string
	Debug    bool
	Workers  *pipeline.WorkerCount
	Archives []string
}

// Register adds the common flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.Config, "config", "", "Path to config file (.yaml or .toml)")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.Func("workers", "Worker count: a positive number or \"auto\"", func(s string) error {
		w, err := pipeline.ParseWorkerCount(s)
		if err != nil {
			return err
		}
		f.Workers = &w
		return nil
	})
	fs.Func("archive", "GRF archive to resolve assets from (repeatable)", func(s string) error {
		f.Archives = append(f.Archives, s)
		return nil
	})
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Workers != nil {
		cfg.Import.WorkerCount = *f.Workers
	}
	if len(f.Archives) > 0 {
		cfg.Data.Archives = append(cfg.Data.Archives, f.Archives...)
	}
}
