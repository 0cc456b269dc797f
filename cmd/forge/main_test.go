package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/assetforge/pkg/gltf/gltftest"
)

const scaleWGSL = `@group(0) @binding(0) var<storage, read_write> data: array<f32>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
#ifdef SCALE
    data[id.x] = data[id.x] * SCALE;
#endif
}
`

// isolate runs the test in an empty directory with no user config.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func runForge(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunDispatch(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no command", nil, 1},
		{"help", []string{"help"}, 0},
		{"unknown", []string{"explode"}, 1},
		{"import without file", []string{"import"}, 2},
		{"info with two files", []string{"info", "a", "b"}, 2},
		{"flag help", []string{"import", "-h"}, 0},
		{"bad flag", []string{"import", "-workers", "none", "x.gltf"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, stderr := runForge(tt.args...); code != tt.want {
				t.Errorf("run(%q) = %d, want %d\nstderr: %s", tt.args, code, tt.want, stderr)
			}
		})
	}
}

func TestImportAndInfo(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile("quad.glb", gltftest.TexturedQuad(4, 4).GLB(), 0o644); err != nil {
		t.Fatal(err)
	}

	// Flags may follow the input file
	code, stdout, stderr := runForge("import", "quad.glb", "-o", "out.fscene", "-trace", "trace.json", "-workers", "2")
	if code != 0 {
		t.Fatalf("import exited %d\nstderr: %s", code, stderr)
	}
	for _, want := range []string{"Meshes:     1 (1 primitives, 2 triangles", "Textures:   1", "Wrote:      out.fscene"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("import output missing %q:\n%s", want, stdout)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "trace.json"))
	if err != nil {
		t.Fatalf("trace not written: %v", err)
	}
	if !json.Valid(data) {
		t.Errorf("trace is not valid JSON: %s", data)
	}

	code, stdout, stderr = runForge("info", "out.fscene")
	if code != 0 {
		t.Fatalf("info exited %d\nstderr: %s", code, stderr)
	}
	for _, want := range []string{"Scene:      quad", "rgba8-unorm-srgb", "3 mips"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("info output missing %q:\n%s", want, stdout)
		}
	}
}

func TestImportDefaultOutput(t *testing.T) {
	isolate(t)
	if err := os.WriteFile("quad.gltf", gltftest.TexturedQuad(2, 2).JSON(), 0o644); err != nil {
		t.Fatal(err)
	}
	if code, _, stderr := runForge("import", "quad.gltf"); code != 0 {
		t.Fatalf("import exited %d\nstderr: %s", code, stderr)
	}
	if _, err := os.Stat("quad.fscene"); err != nil {
		t.Errorf("default output missing: %v", err)
	}
}

func TestImportFailure(t *testing.T) {
	isolate(t)
	if err := os.WriteFile("broken.gltf", []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, stderr := runForge("import", "broken.gltf")
	if code != 1 {
		t.Errorf("import exited %d, want 1", code)
	}
	if !strings.Contains(stderr, "Error:") {
		t.Errorf("stderr missing error:\n%s", stderr)
	}
	if _, err := os.Stat("broken.fscene"); err == nil {
		t.Error("failed import wrote a scene file")
	}
}

func TestInfoRejectsOtherFiles(t *testing.T) {
	isolate(t)
	if err := os.WriteFile("quad.gltf", gltftest.TexturedQuad(2, 2).JSON(), 0o644); err != nil {
		t.Fatal(err)
	}
	if code, _, _ := runForge("info", "quad.gltf"); code != 1 {
		t.Errorf("info on a glTF file exited %d, want 1", code)
	}
}

func TestShader(t *testing.T) {
	isolate(t)
	if err := os.WriteFile("scale.wgsl", []byte(scaleWGSL), 0o644); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := runForge("shader", "-D", "SCALE=2.0", "scale.wgsl", "-profile", "webgpu-compat")
	if code != 0 {
		t.Fatalf("shader exited %d\nstderr: %s", code, stderr)
	}
	for _, want := range []string{
		"Profile:  webgpu-compat",
		"Defines:  SCALE=2.0",
		"compute   main workgroup 8x8x1",
		"@group(0) @binding(0) storage",
		"(read_write)",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("shader output missing %q:\n%s", want, stdout)
		}
	}

	if code, _, _ := runForge("shader", "-profile", "gles2", "scale.wgsl"); code != 1 {
		t.Errorf("unknown profile exited %d, want 1", code)
	}
	if code, _, _ := runForge("shader", "-D", "=1", "scale.wgsl"); code != 1 {
		t.Errorf("empty define exited %d, want 1", code)
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args []string
		out  string
		pos  []string
	}{
		{[]string{"a.gltf"}, "", []string{"a.gltf"}},
		{[]string{"-o", "x", "a.gltf"}, "x", []string{"a.gltf"}},
		{[]string{"a.gltf", "-o", "x"}, "x", []string{"a.gltf"}},
		{[]string{"a.gltf", "-o", "x", "b.gltf"}, "x", []string{"a.gltf", "b.gltf"}},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			out := fs.String("o", "", "")
			pos, err := parseArgs(fs, tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if *out != tt.out || strings.Join(pos, ",") != strings.Join(tt.pos, ",") {
				t.Errorf("parseArgs(%q) = %q, -o %q; want %q, -o %q", tt.args, pos, *out, tt.pos, tt.out)
			}
		})
	}
}

func TestOutputPath(t *testing.T) {
	if got := outputPath("models/house.rsm", ""); got != "models/house.fscene" {
		t.Errorf("outputPath = %q", got)
	}
	if got := outputPath("house.rsm", "out.bin"); got != "out.bin" {
		t.Errorf("outputPath = %q", got)
	}
}
