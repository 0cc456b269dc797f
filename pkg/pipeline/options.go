package pipeline

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/mesh"
	"github.com/Faultbox/assetforge/pkg/meshopt"
	"github.com/Faultbox/assetforge/pkg/shader"
)

// WorkerCount is a positive number of pool workers, or AutoWorkers for one
// per CPU. It reads "auto" or an integer from YAML, TOML and flags.
type WorkerCount int

// AutoWorkers sizes the pool to runtime.NumCPU().
const AutoWorkers WorkerCount = 0

// ParseWorkerCount parses "auto" or a positive integer.
func ParseWorkerCount(s string) (WorkerCount, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "auto") || s == "" {
		return AutoWorkers, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid worker count %q: want \"auto\" or a positive integer", s)
	}
	return WorkerCount(n), nil
}

// Resolve returns the number of workers to start.
func (w WorkerCount) Resolve() int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return int(w)
}

func (w WorkerCount) String() string {
	if w == AutoWorkers {
		return "auto"
	}
	return strconv.Itoa(int(w))
}

// Set implements flag.Value.
func (w *WorkerCount) Set(s string) error {
	v, err := ParseWorkerCount(s)
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *WorkerCount) UnmarshalText(text []byte) error {
	return w.Set(string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (w WorkerCount) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (w *WorkerCount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: worker_count must be a scalar", value.Line)
	}
	return w.Set(value.Value)
}

// MarshalYAML implements yaml.Marshaler, writing numbers unquoted.
func (w WorkerCount) MarshalYAML() (any, error) {
	if w == AutoWorkers {
		return "auto", nil
	}
	return int(w), nil
}

// Options configures an import.
type Options struct {
	// TargetTextureFormats are the GPU formats textures may be stored in.
	TargetTextureFormats []asset.TextureFormat `yaml:"target_texture_formats" toml:"target_texture_formats"`
	// SimplificationTargets are triangle budgets for LOD levels.
	SimplificationTargets []int `yaml:"simplification_targets" toml:"simplification_targets"`
	// ShaderTargetProfile selects the shader profile.
	ShaderTargetProfile string      `yaml:"shader_target_profile" toml:"shader_target_profile"`
	WorkerCount         WorkerCount `yaml:"worker_count" toml:"worker_count"`

	CacheSize         int     `yaml:"cache_size" toml:"cache_size"`
	OverdrawThreshold float32 `yaml:"overdraw_threshold" toml:"overdraw_threshold"`
	AutoLOD           bool    `yaml:"auto_lod" toml:"auto_lod"`
	Meshlets          bool    `yaml:"meshlets" toml:"meshlets"`
}

// DefaultOptions returns uncompressed texture formats, no LODs, the webgpu
// profile and one worker per CPU.
func DefaultOptions() Options {
	return Options{
		TargetTextureFormats: []asset.TextureFormat{
			asset.FormatRGBA8Unorm,
			asset.FormatRGBA8UnormSRGB,
			asset.FormatRG8Unorm,
			asset.FormatR8Unorm,
		},
		SimplificationTargets: []int{},
		ShaderTargetProfile:   shader.ProfileWebGPU,
		WorkerCount:           AutoWorkers,
		CacheSize:             meshopt.DefaultCacheSize,
		OverdrawThreshold:     meshopt.DefaultOverdrawThreshold,
	}
}

// Validate checks every option.
func (o *Options) Validate() error {
	if len(o.TargetTextureFormats) == 0 {
		return fmt.Errorf("%w: no target texture formats", asset.ErrUnsupportedFormat)
	}
	for _, f := range o.TargetTextureFormats {
		if _, err := asset.ParseTextureFormat(string(f)); err != nil {
			return err
		}
	}
	for _, t := range o.SimplificationTargets {
		if t <= 0 {
			return fmt.Errorf("simplification target %d must be positive", t)
		}
	}
	if _, err := shader.LookupProfile(o.ShaderTargetProfile); err != nil {
		return err
	}
	if o.WorkerCount < 0 {
		return fmt.Errorf("worker count %d must be positive or auto", int(o.WorkerCount))
	}
	if o.CacheSize < 0 {
		return fmt.Errorf("cache size %d must not be negative", o.CacheSize)
	}
	if o.OverdrawThreshold != 0 && o.OverdrawThreshold < 1 {
		return fmt.Errorf("overdraw threshold %g must be 0 or at least 1", o.OverdrawThreshold)
	}
	return nil
}

func (o *Options) meshOptions() mesh.Options {
	return mesh.Options{
		CacheSize:             o.CacheSize,
		OverdrawThreshold:     o.OverdrawThreshold,
		SimplificationTargets: o.SimplificationTargets,
		AutoLOD:               o.AutoLOD,
		Meshlets:              o.Meshlets,
	}
}
