// Package pipeline drives an import: it parses a source container, fans the
// per-resource work (geometry, textures, shader permutations) out to a
// bounded worker pool, joins the results and assembles the scene.
//
// An import either returns a complete scene or the first failure, tagged
// with the resource that caused it.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/trace"
	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/codec"
	"github.com/Faultbox/assetforge/pkg/frontend"
	"github.com/Faultbox/assetforge/pkg/scene"
	"github.com/Faultbox/assetforge/pkg/shader"
	"github.com/Faultbox/assetforge/pkg/source"
)

// StateHook observes every state transition of an import request.
type StateHook func(id uuid.UUID, from, to State)

// Importer runs imports. One Importer may serve concurrent imports; shader
// permutations are shared through its compiler's cache.
type Importer struct {
	opts       Options
	logger     *zap.Logger
	tracer     *trace.Recorder
	resolver   source.Resolver
	codecs     *codec.Registry
	textures   codec.TextureDecoder
	compiler   *shader.Compiler
	profile    shader.Profile
	hook       StateHook
	extensions []string
}

// Option configures an Importer.
type Option func(*Importer)

// WithOptions replaces the default Options.
func WithOptions(o Options) Option {
	return func(im *Importer) { im.opts = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// WithTracer records state and task spans.
func WithTracer(r *trace.Recorder) Option {
	return func(im *Importer) { im.tracer = r }
}

// WithResolver sets the resolver for external URIs. ImportFile falls back to
// the file's directory when none is set.
func WithResolver(r source.Resolver) Option {
	return func(im *Importer) { im.resolver = r }
}

// WithCodecs replaces the geometry codec registry.
func WithCodecs(r *codec.Registry) Option {
	return func(im *Importer) { im.codecs = r }
}

// WithTextureDecoder replaces the texture decoder.
func WithTextureDecoder(d codec.TextureDecoder) Option {
	return func(im *Importer) { im.textures = d }
}

// WithShaderCompiler shares a compiler, and with it a permutation cache.
func WithShaderCompiler(c *shader.Compiler) Option {
	return func(im *Importer) { im.compiler = c }
}

// WithStateHook observes state transitions.
func WithStateHook(h StateHook) Option {
	return func(im *Importer) { im.hook = h }
}

// New creates an importer and validates its options.
func New(opts ...Option) (*Importer, error) {
	im := &Importer{opts: DefaultOptions()}
	for _, o := range opts {
		o(im)
	}
	if err := im.opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid import options: %w", err)
	}
	p, err := shader.LookupProfile(im.opts.ShaderTargetProfile)
	if err != nil {
		return nil, fmt.Errorf("invalid import options: %w", err)
	}
	im.profile = p
	if im.logger == nil {
		im.logger = zap.NewNop()
	}
	if im.codecs == nil {
		im.codecs = codec.NewRegistry()
	}
	if im.textures == nil {
		im.textures = codec.ImageDecoder{}
	}
	if im.compiler == nil {
		im.compiler = shader.NewCompiler(nil, im.logger)
	}
	im.extensions = slices.Clone(frontend.DefaultExtensions)
	for _, ext := range im.codecs.Extensions() {
		if !slices.Contains(im.extensions, ext) {
			im.extensions = append(im.extensions, ext)
		}
	}
	return im, nil
}

// Options returns the importer's options.
func (im *Importer) Options() Options { return im.opts }

// Compiler returns the shader compiler.
func (im *Importer) Compiler() *shader.Compiler { return im.compiler }

// Import parses data and imports it. name tags errors and names the scene.
func (im *Importer) Import(ctx context.Context, data []byte, name string) (*asset.Scene, error) {
	req := im.newRequest(name)
	if err := ctx.Err(); err != nil {
		return nil, req.fail(err)
	}
	req.to(Parsing)
	doc, err := frontend.Parse(data, im.frontendOptions(name))
	if err != nil {
		return nil, req.fail(err)
	}
	return im.run(ctx, req, doc)
}

// ImportFile reads and imports a file.
func (im *Importer) ImportFile(ctx context.Context, path string) (*asset.Scene, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	req := im.newRequest(name)
	if err := ctx.Err(); err != nil {
		return nil, req.fail(err)
	}
	req.to(Parsing)
	doc, err := frontend.ParseFile(path, im.frontendOptions(name))
	if err != nil {
		return nil, req.fail(err)
	}
	return im.run(ctx, req, doc)
}

// ImportDocument imports an already parsed and validated document.
func (im *Importer) ImportDocument(ctx context.Context, doc *source.Document) (*asset.Scene, error) {
	req := im.newRequest(doc.Name)
	if err := ctx.Err(); err != nil {
		return nil, req.fail(err)
	}
	req.to(Parsing)
	if err := source.Validate(doc, im.extensions); err != nil {
		return nil, req.fail(&asset.ResourceError{Resource: asset.ResourceDocument, Name: doc.Name, Err: err})
	}
	return im.run(ctx, req, doc)
}

func (im *Importer) frontendOptions(name string) frontend.Options {
	return frontend.Options{
		Name:       name,
		Resolver:   im.resolver,
		Extensions: im.extensions,
		Logger:     im.logger,
	}
}

func (im *Importer) run(ctx context.Context, req *request, doc *source.Document) (*asset.Scene, error) {
	req.to(FannedOut)
	in := scene.Inputs{
		Meshes:          make(map[scene.PrimitiveKey]*asset.Primitive),
		Textures:        make(map[scene.TextureKey]*asset.Texture),
		Shaders:         make(map[string]*asset.Shader),
		MaterialShaders: make(map[int]string),
	}
	tasks, err := im.plan(doc, &in)
	if err != nil {
		return nil, req.fail(err)
	}
	if err := im.execute(ctx, req, tasks); err != nil {
		return nil, req.fail(err)
	}

	req.to(Assembling)
	sc, err := scene.Assemble(doc, in)
	if err != nil {
		return nil, req.fail(&asset.ResourceError{Resource: asset.ResourceScene, Name: doc.Name, Err: err})
	}
	req.to(Done)

	st := sc.Stats()
	req.log.Info("Imported scene",
		zap.Int("meshes", st.Meshes),
		zap.Int("triangles", st.Triangles),
		zap.Int("lods", st.LODs),
		zap.Int("textures", st.Textures),
		zap.Int("shaders", st.Shaders),
		zap.Int("nodes", st.Nodes),
		zap.Int("tasks", len(tasks)))
	return sc, nil
}

// request tracks the state of one import.
type request struct {
	id    uuid.UUID
	state State
	span  *trace.Active
	im    *Importer
	log   *zap.Logger
}

func (im *Importer) newRequest(name string) *request {
	id := uuid.New()
	r := &request{
		id:    id,
		state: Queued,
		im:    im,
		log:   im.logger.With(zap.String("request", id.String()), zap.String("name", name)),
	}
	r.span = im.tracer.Start(Queued.String(), "state", r.resource(), 0)
	return r
}

// resource labels the request's spans.
func (r *request) resource() string {
	return "request " + r.id.String()
}

// to moves the request to s. Illegal transitions are programming errors.
func (r *request) to(s State) {
	r.transition(s, nil)
}

// fail moves the request to Failed and returns err.
func (r *request) fail(err error) error {
	r.transition(Failed, err)
	r.log.Warn("Import failed", zap.Error(err))
	return err
}

func (r *request) transition(s State, err error) {
	if !CanTransition(r.state, s) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", r.state, s))
	}
	r.span.End(err)
	from := r.state
	r.state = s
	r.span = nil
	if !s.Terminal() {
		r.span = r.im.tracer.Start(s.String(), "state", r.resource(), 0)
	}
	r.log.Debug("State", zap.Stringer("from", from), zap.Stringer("to", s))
	if r.im.hook != nil {
		r.im.hook(r.id, from, s)
	}
}
