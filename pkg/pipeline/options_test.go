package pipeline

import (
	"runtime"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/assetforge/pkg/asset"
)

func TestParseWorkerCount(t *testing.T) {
	tests := []struct {
		in      string
		want    WorkerCount
		wantErr bool
	}{
		{"auto", AutoWorkers, false},
		{"AUTO", AutoWorkers, false},
		{"", AutoWorkers, false},
		{"4", 4, false},
		{" 2 ", 2, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"many", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWorkerCount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWorkerCount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseWorkerCount(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWorkerCountResolve(t *testing.T) {
	if got := AutoWorkers.Resolve(); got != runtime.NumCPU() {
		t.Errorf("auto resolves to %d, want %d", got, runtime.NumCPU())
	}
	if got := WorkerCount(3).Resolve(); got != 3 {
		t.Errorf("3 resolves to %d", got)
	}
	if s := AutoWorkers.String(); s != "auto" {
		t.Errorf("String() = %q", s)
	}
}

func TestOptionsYAML(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    WorkerCount
		wantErr bool
	}{
		{"auto", "worker_count: auto\n", AutoWorkers, false},
		{"number", "worker_count: 6\n", 6, false},
		{"quoted", "worker_count: \"2\"\n", 2, false},
		{"invalid", "worker_count: lots\n", 0, true},
		{"sequence", "worker_count: [1]\n", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o Options
			err := yaml.Unmarshal([]byte(tt.doc), &o)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && o.WorkerCount != tt.want {
				t.Errorf("WorkerCount = %v, want %v", o.WorkerCount, tt.want)
			}
		})
	}
}

func TestOptionsYAMLRoundTrip(t *testing.T) {
	o := DefaultOptions()
	o.WorkerCount = 3
	o.SimplificationTargets = []int{500, 100}
	data, err := yaml.Marshal(&o)
	if err != nil {
		t.Fatal(err)
	}
	var got Options
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.WorkerCount != 3 || len(got.SimplificationTargets) != 2 || got.ShaderTargetProfile != "webgpu" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestOptionsTOML(t *testing.T) {
	doc := `target_texture_formats = ["rgba8-unorm", "bc1-rgba-unorm-srgb"]
simplification_targets = [1000, 250]
shader_target_profile = "webgpu-compat"
worker_count = "auto"
meshlets = true
`
	var o Options
	if err := toml.Unmarshal([]byte(doc), &o); err != nil {
		t.Fatal(err)
	}
	if o.WorkerCount != AutoWorkers {
		t.Errorf("WorkerCount = %v", o.WorkerCount)
	}
	if len(o.TargetTextureFormats) != 2 || o.TargetTextureFormats[1] != asset.FormatBC1RGBAUnormSRGB {
		t.Errorf("TargetTextureFormats = %v", o.TargetTextureFormats)
	}
	if o.ShaderTargetProfile != "webgpu-compat" || !o.Meshlets {
		t.Errorf("options = %+v", o)
	}

	var n Options
	if err := toml.Unmarshal([]byte("worker_count = 8\n"), &n); err != nil {
		t.Fatal(err)
	}
	if n.WorkerCount != 8 {
		t.Errorf("WorkerCount = %v, want 8", n.WorkerCount)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"defaults", func(*Options) {}, false},
		{"no formats", func(o *Options) { o.TargetTextureFormats = nil }, true},
		{"unknown format", func(o *Options) { o.TargetTextureFormats = []asset.TextureFormat{"astc"} }, true},
		{"zero target", func(o *Options) { o.SimplificationTargets = []int{100, 0} }, true},
		{"unknown profile", func(o *Options) { o.ShaderTargetProfile = "gles2" }, true},
		{"negative workers", func(o *Options) { o.WorkerCount = -1 }, true},
		{"negative cache", func(o *Options) { o.CacheSize = -1 }, true},
		{"overdraw off", func(o *Options) { o.OverdrawThreshold = 0 }, false},
		{"overdraw below one", func(o *Options) { o.OverdrawThreshold = 0.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			if err := o.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
