package pipeline

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/trace"
	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/codec"
	"github.com/Faultbox/assetforge/pkg/gltf/gltftest"
	"github.com/Faultbox/assetforge/pkg/shader"
	"github.com/Faultbox/assetforge/pkg/source"
)

const tintWGSL = `@group(0) @binding(0) var<uniform> tint: vec4f;

@fragment
fn fs_main() -> @location(0) vec4f {
#ifdef BOOST
    return tint * 2.0;
#else
    return tint;
#endif
}
`

func newImporter(t *testing.T, opts ...Option) *Importer {
	t.Helper()
	im, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return im
}

func mustImport(t *testing.T, im *Importer, data []byte, name string) *asset.Scene {
	t.Helper()
	sc, err := im.Import(context.Background(), data, name)
	if err != nil {
		t.Fatalf("Import(%s) error = %v", name, err)
	}
	return sc
}

// resourceError asserts that err wraps kind and is tagged with resource.
func resourceError(t *testing.T, err error, kind error, resource asset.ResourceKind) *asset.ResourceError {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want %v", err, kind)
	}
	var re *asset.ResourceError
	if !errors.As(err, &re) {
		t.Fatalf("error %v is not tagged with a resource", err)
	}
	if re.Resource != resource {
		t.Errorf("Resource = %s, want %s", re.Resource, resource)
	}
	return re
}

func TestImportEmpty(t *testing.T) {
	sc := mustImport(t, newImporter(t), gltftest.New("empty").JSON(), "empty")

	if sc.Name != "empty" {
		t.Errorf("Name = %q, want %q", sc.Name, "empty")
	}
	if sc.Meshes == nil || sc.Textures == nil || sc.Shaders == nil {
		t.Error("empty import has nil arrays")
	}
	if n := len(sc.Meshes) + len(sc.Textures) + len(sc.Shaders) + len(sc.Nodes) + len(sc.Roots); n != 0 {
		t.Errorf("empty import has %d entries", n)
	}
}

func TestImportTexturedQuad(t *testing.T) {
	b := gltftest.TexturedQuad(4, 4)
	tests := []struct {
		name string
		data []byte
	}{
		{"gltf", b.JSON()},
		{"glb", b.GLB()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := mustImport(t, newImporter(t), tt.data, "quad")

			if len(sc.Meshes) != 1 || len(sc.Meshes[0].Primitives) != 1 {
				t.Fatalf("got %d meshes, want 1 with 1 primitive", len(sc.Meshes))
			}
			if got := sc.Meshes[0].TriangleCount(); got != 2 {
				t.Errorf("TriangleCount() = %d, want 2", got)
			}
			if len(sc.Textures) != 1 {
				t.Fatalf("got %d textures, want 1", len(sc.Textures))
			}
			if got := len(sc.Textures[0].Mips); got != 3 {
				t.Errorf("got %d mips, want 3", got)
			}
			if sc.Textures[0].Format != asset.FormatRGBA8UnormSRGB {
				t.Errorf("Format = %s, want %s", sc.Textures[0].Format, asset.FormatRGBA8UnormSRGB)
			}
			if len(sc.Shaders) != 0 {
				t.Errorf("got %d shaders, want 0", len(sc.Shaders))
			}

			if len(sc.Materials) != 1 {
				t.Fatalf("got %d materials, want 1", len(sc.Materials))
			}
			if got := sc.Materials[0].Texture(asset.RoleBaseColor); got != 0 {
				t.Errorf("base color texture = %d, want 0", got)
			}
			if got := sc.Meshes[0].Primitives[0].Material; got != 0 {
				t.Errorf("primitive material = %d, want 0", got)
			}
			if !slices.Equal(sc.Roots, []int{0}) {
				t.Errorf("Roots = %v, want [0]", sc.Roots)
			}
		})
	}
}

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quad.glb")
	if err := os.WriteFile(path, gltftest.TexturedQuad(8, 2).GLB(), 0o644); err != nil {
		t.Fatal(err)
	}

	sc, err := newImporter(t).ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}
	if sc.Name != "quad" {
		t.Errorf("Name = %q, want %q", sc.Name, "quad")
	}
	if len(sc.Textures) != 1 || len(sc.Textures[0].Mips) != 4 {
		t.Errorf("textures = %d, want 1 with 4 mips", len(sc.Textures))
	}
}

func TestImportErrors(t *testing.T) {
	cyclic := gltftest.New("cycle")
	a := cyclic.Node("a", -1)
	bn := cyclic.Node("b", -1, a)
	cyclic.Document().Nodes[a].Children = []int{bn}
	cyclic.Scene(a)

	outOfRange := gltftest.New("range")
	outOfRange.Scene(outOfRange.Node("n", outOfRange.Mesh("tri",
		outOfRange.Primitive(gltftest.QuadPositions, []uint16{0, 1, 5}, -1))))

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"cycle", cyclic.JSON(), asset.ErrMalformedDocument},
		{"index out of range", outOfRange.JSON(), asset.ErrOutOfRangeReference},
		{"garbage", []byte("not a model"), asset.ErrMalformedDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := newImporter(t).Import(context.Background(), tt.data, tt.name)
			if sc != nil {
				t.Error("Import() returned a scene with an error")
			}
			resourceError(t, err, tt.want, asset.ResourceDocument)
		})
	}
}

func TestImportTextureWithoutSource(t *testing.T) {
	sourceless := func() *gltftest.Builder {
		b := gltftest.TexturedQuad(2, 2)
		b.Document().Textures[0].Source = -1
		return b
	}

	t.Run("document", func(t *testing.T) {
		sc, err := newImporter(t).ImportDocument(context.Background(), sourceless().Document())
		if sc != nil {
			t.Error("ImportDocument() returned a scene with an error")
		}
		re := resourceError(t, err, asset.ErrUnsupportedFormat, asset.ResourceTexture)
		if re.Index != 0 {
			t.Errorf("Index = %d, want 0", re.Index)
		}
	})

	t.Run("json", func(t *testing.T) {
		data := sourceless().JSON()
		if strings.Contains(string(data), `"source"`) {
			t.Fatalf("encoded texture still has a source: %s", data)
		}
		_, err := newImporter(t).Import(context.Background(), data, "quad")
		resourceError(t, err, asset.ErrUnsupportedFormat, asset.ResourceTexture)
	})

	t.Run("misspelled key", func(t *testing.T) {
		data := strings.Replace(string(gltftest.TexturedQuad(2, 2).JSON()), `"source":0`, `"sou9ce":0`, 1)
		_, err := newImporter(t).Import(context.Background(), []byte(data), "quad")
		resourceError(t, err, asset.ErrUnsupportedFormat, asset.ResourceTexture)
	})
}

func TestImportSharedTextureBytes(t *testing.T) {
	b := gltftest.New("shared")
	png := gltftest.PNG(4, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	m0 := b.Material("a", b.Texture(b.Image("a", "image/png", png)))
	m1 := b.Material("b", b.Texture(b.Image("b", "image/png", png)))
	mesh := b.Mesh("pair",
		b.Primitive(gltftest.QuadPositions, gltftest.QuadIndices, m0),
		b.Primitive(gltftest.QuadPositions, gltftest.QuadIndices, m1))
	b.Scene(b.Node("pair", mesh))

	sc := mustImport(t, newImporter(t), b.JSON(), "shared")
	if len(sc.Textures) != 1 {
		t.Fatalf("got %d textures, want 1", len(sc.Textures))
	}
	for _, m := range []int{m0, m1} {
		if got := sc.Materials[m].Texture(asset.RoleBaseColor); got != 0 {
			t.Errorf("material %d base color = %d, want 0", m, got)
		}
	}
	if got := sc.Meshes[0].TriangleCount(); got != 4 {
		t.Errorf("TriangleCount() = %d, want 4", got)
	}
}

func TestImportShaderPermutations(t *testing.T) {
	b := gltftest.New("shaded")
	sh := b.Shader("tint", tintWGSL)
	plain1 := b.Material("plain1", -1)
	plain2 := b.Material("plain2", -1)
	boosted := b.Material("boosted", -1)
	b.UseShader(plain1, sh, nil)
	b.UseShader(plain2, sh, map[string]string{})
	b.UseShader(boosted, sh, map[string]string{"BOOST": "1"})
	data := b.JSON()

	im := newImporter(t)
	sc := mustImport(t, im, data, "shaded")
	if len(sc.Shaders) != 2 {
		t.Fatalf("got %d shaders, want 2", len(sc.Shaders))
	}
	if sc.Materials[plain1].Shader != sc.Materials[plain2].Shader {
		t.Error("empty and nil defines compiled separately")
	}
	if sc.Materials[plain1].Shader == sc.Materials[boosted].Shader {
		t.Error("BOOST permutation shares the plain shader")
	}
	if got := im.Compiler().Stats().Misses; got != 2 {
		t.Errorf("Misses = %d, want 2", got)
	}

	mustImport(t, im, data, "shaded")
	if got, want := im.Compiler().Stats(), (shader.Stats{Hits: 2, Misses: 2, Entries: 2}); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestImportShaderLookalikeDefines(t *testing.T) {
	b := gltftest.New("lookalike")
	sh := b.Shader("tint", tintWGSL)
	joined := b.Material("joined", -1)
	split := b.Material("split", -1)
	b.UseShader(joined, sh, map[string]string{"A": "1.0,B=2.0"})
	b.UseShader(split, sh, map[string]string{"A": "1.0", "B": "2.0"})

	sc := mustImport(t, newImporter(t), b.JSON(), "lookalike")
	if len(sc.Shaders) != 2 {
		t.Fatalf("got %d shaders, want 2", len(sc.Shaders))
	}
	if sc.Materials[joined].Shader == sc.Materials[split].Shader {
		t.Error("distinct define sets share one shader")
	}
}

func TestImportShaderProfile(t *testing.T) {
	b := gltftest.New("compat")
	b.UseShader(b.Material("m", -1), b.Shader("tint", tintWGSL), nil)

	opts := DefaultOptions()
	opts.ShaderTargetProfile = shader.ProfileWebGPUCompat
	im := newImporter(t, WithOptions(opts))
	sc := mustImport(t, im, b.JSON(), "compat")
	if len(sc.Shaders) != 1 || sc.Shaders[0].Profile != shader.ProfileWebGPUCompat {
		t.Fatalf("shaders = %+v, want one %s shader", sc.Shaders, shader.ProfileWebGPUCompat)
	}

	// The planned key is the key the compiler cached under
	p, err := shader.LookupProfile(shader.ProfileWebGPUCompat)
	if err != nil {
		t.Fatal(err)
	}
	_, hit, err := im.Compiler().Cache().Get(shader.Key(tintWGSL, p, nil), func() (*asset.Shader, error) {
		return nil, errors.New("not cached")
	})
	if err != nil || !hit {
		t.Errorf("Cache().Get() hit = %v, error = %v", hit, err)
	}
}

func TestImportShaderSyntaxError(t *testing.T) {
	b := gltftest.New("broken")
	mat := b.Material("m", -1)
	b.UseShader(mat, b.Shader("broken", "@fragment fn main( -> vec4f {}"), nil)

	_, err := newImporter(t).Import(context.Background(), b.JSON(), "broken")
	re := resourceError(t, err, asset.ErrSyntaxError, asset.ResourceShader)
	if re.Name != "broken" {
		t.Errorf("Name = %q, want %q", re.Name, "broken")
	}
	if asset.CategoryOf(err) != asset.CategoryCompile {
		t.Errorf("CategoryOf() = %v, want compile", asset.CategoryOf(err))
	}
}

type failingDecoder struct {
	calls atomic.Int32
}

func (d *failingDecoder) Decode(ctx context.Context, img source.Image, data []byte, req codec.TextureRequest) (*asset.Texture, error) {
	d.calls.Add(1)
	return nil, errors.Join(asset.ErrCodecFailure, errors.New("corrupt "+img.Name))
}

func TestFirstFailureWins(t *testing.T) {
	b := gltftest.New("many")
	png := gltftest.PNG(2, 2, color.NRGBA{A: 255})
	const n = 10
	for i := range n {
		b.Material("m", b.Texture(b.Image(string(rune('a'+i)), "image/png", png)))
	}
	dec := &failingDecoder{}
	opts := DefaultOptions()
	opts.WorkerCount = 1
	im := newImporter(t, WithOptions(opts), WithTextureDecoder(dec))

	sc, err := im.Import(context.Background(), b.JSON(), "many")
	if sc != nil {
		t.Error("Import() returned a scene with an error")
	}
	resourceError(t, err, asset.ErrCodecFailure, asset.ResourceTexture)
	if got := int(dec.calls.Load()); got >= n {
		t.Errorf("decoder ran %d times, submission continued after the first failure", got)
	}
}

func TestStateTransitions(t *testing.T) {
	type step struct{ from, to State }
	record := func() (*[]step, StateHook) {
		var mu sync.Mutex
		var steps []step
		var id uuid.UUID
		return &steps, func(rid uuid.UUID, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			if id == uuid.Nil {
				id = rid
			}
			if rid == id {
				steps = append(steps, step{from, to})
			}
		}
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		data    []byte
		wantErr error
		want    []step
	}{
		{"done", context.Background(), gltftest.TexturedQuad(2, 2).JSON(), nil, []step{
			{Queued, Parsing},
			{Parsing, FannedOut},
			{FannedOut, Joining},
			{Joining, Assembling},
			{Assembling, Done},
		}},
		{"parse failure", context.Background(), []byte("{"), asset.ErrMalformedDocument, []step{{Queued, Parsing}, {Parsing, Failed}}},
		{"cancelled", cancelled, gltftest.TexturedQuad(2, 2).JSON(), context.Canceled, []step{{Queued, Failed}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, hook := record()
			_, err := newImporter(t, WithStateHook(hook)).Import(tt.ctx, tt.data, "quad")
			if tt.wantErr == nil && err != nil || tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Import() error = %v, want %v", err, tt.wantErr)
			}
			if !slices.Equal(*steps, tt.want) {
				t.Errorf("transitions = %v, want %v", *steps, tt.want)
			}
		})
	}
}

func TestIllegalTransitionPanics(t *testing.T) {
	mustPanic := func(name string, f func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s did not panic", name)
			}
		}()
		f()
	}

	im := newImporter(t)
	r := im.newRequest("x")
	r.to(Parsing)
	mustPanic("Parsing -> Assembling", func() { r.to(Assembling) })

	done := &request{state: Done, im: im, log: zap.NewNop()}
	mustPanic("Done -> Failed", func() { done.to(Failed) })
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Queued, Parsing, true},
		{Queued, FannedOut, false},
		{Parsing, FannedOut, true},
		{FannedOut, Joining, true},
		{Joining, Assembling, true},
		{Assembling, Done, true},
		{Assembling, Failed, true},
		{Joining, Failed, true},
		{Done, Failed, false},
		{Failed, Parsing, false},
		{Parsing, Parsing, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTraceSpans(t *testing.T) {
	rec := trace.NewRecorder(nil)
	mustImport(t, newImporter(t, WithTracer(rec)), gltftest.TexturedQuad(4, 4).JSON(), "quad")

	byCategory := map[string][]string{}
	for _, s := range rec.Spans() {
		byCategory[s.Category] = append(byCategory[s.Category], s.Name)
		if !strings.Contains(s.Resource, "request ") {
			t.Errorf("span %s resource = %q", s.Name, s.Resource)
		}
		if s.Err != "" {
			t.Errorf("span %s failed: %s", s.Name, s.Err)
		}
	}
	if want := []string{"Queued", "Parsing", "FannedOut", "Joining", "Assembling"}; !slices.Equal(byCategory["state"], want) {
		t.Errorf("state spans = %v, want %v", byCategory["state"], want)
	}
	tasks := slices.Sorted(slices.Values(byCategory["task"]))
	if want := []string{"mesh 0.0", "texture 0 BaseColor"}; !slices.Equal(tasks, want) {
		t.Errorf("task spans = %v, want %v", tasks, want)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.ShaderTargetProfile = "dx9"
	if _, err := New(WithOptions(opts)); !errors.Is(err, asset.ErrUnsupportedProfile) {
		t.Errorf("New() error = %v, want %v", err, asset.ErrUnsupportedProfile)
	}
}
