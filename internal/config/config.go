// Package config handles forge configuration loading and management.
package config

import (
	"fmt"
	"time"

	"github.com/Faultbox/assetforge/pkg/pipeline"
)

// Config holds all forge settings.
type Config struct {
	Import  pipeline.Options `yaml:"import" toml:"import"`
	Data    DataConfig       `yaml:"data" toml:"data"`
	Watch   WatchConfig      `yaml:"watch" toml:"watch"`
	Logging LoggingConfig    `yaml:"logging" toml:"logging"`
}

// DataConfig holds the asset sources external URIs resolve against.
type DataConfig struct {
	SearchPaths []string `yaml:"search_paths" toml:"search_paths"` // Directories, lowest priority first
	Archives    []string `yaml:"archives" toml:"archives"`         // GRF archives, searched after directories
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce" toml:"debounce"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
	JSON    bool   `yaml:"json" toml:"json"`
}

// Duration is a time.Duration written as "200ms" in config files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Import: pipeline.DefaultOptions(),
		Data: DataConfig{
			SearchPaths: []string{},
			Archives:    []string{},
		},
		Watch: WatchConfig{
			Debounce: Duration(200 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks the import options and watch settings.
func (c *Config) Validate() error {
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch: negative debounce %s", time.Duration(c.Watch.Debounce))
	}
	return nil
}
