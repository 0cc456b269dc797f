// Package frontend turns a source container (.gltf, .glb or .rsm) into a
// validated source document.
package frontend

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/formats"
	"github.com/Faultbox/assetforge/pkg/gltf"
	"github.com/Faultbox/assetforge/pkg/source"
)

// glTF extensions implemented by the importer itself. Geometry compression
// extensions are added by the codec registry.
const (
	ExtLightsPunctual   = "KHR_lights_punctual"
	ExtEmissiveStrength = "KHR_materials_emissive_strength"
)

// DefaultExtensions is the supported-extension set used when Options leaves
// Extensions nil.
var DefaultExtensions = []string{
	ExtLightsPunctual,
	ExtEmissiveStrength,
	gltf.ExtShaders,
	gltf.ExtGeometryDeflate,
}

// Kind is the detected container type.
type Kind int

// Container kinds.
const (
	KindUnknown Kind = iota
	KindGLTF
	KindGLB
	KindRSM
)

func (k Kind) String() string {
	switch k {
	case KindGLTF:
		return "gltf"
	case KindGLB:
		return "glb"
	case KindRSM:
		return "rsm"
	default:
		return "unknown"
	}
}

// Detect sniffs the container type from the leading bytes.
func Detect(data []byte) Kind {
	switch {
	case gltf.IsGLB(data):
		return KindGLB
	case formats.IsRSM(data):
		return KindRSM
	}
	if trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf"); len(trimmed) > 0 && trimmed[0] == '{' {
		return KindGLTF
	}
	return KindUnknown
}

// Options controls parsing.
type Options struct {
	// Name tags errors and becomes the document name.
	Name string
	// Resolver loads external URIs. Nil refuses them.
	Resolver source.Resolver
	// Extensions is the supported-extension set.
	Extensions []string
	Logger     *zap.Logger
}

func (o *Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Parse decodes data, resolves external URIs and validates the result.
func Parse(data []byte, opts Options) (*source.Document, error) {
	log := opts.logger()
	kind := Detect(data)

	var doc *source.Document
	var err error
	switch kind {
	case KindGLTF, KindGLB:
		doc, err = gltf.Decode(data)
	case KindRSM:
		var rsm *formats.RSM
		rsm, err = formats.ParseRSM(data)
		if err != nil {
			err = fmt.Errorf("%w: %w", asset.ErrMalformedDocument, err)
			break
		}
		doc, err = formats.ConvertRSM(rsm, opts.Name)
	default:
		err = fmt.Errorf("%w: unrecognized container", asset.ErrMalformedDocument)
	}
	if err != nil {
		return nil, tag(opts.Name, err)
	}
	if doc.Name == "" {
		doc.Name = opts.Name
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = source.NoResolver
	}
	if err := resolve(doc, resolver, log); err != nil {
		return nil, tag(opts.Name, err)
	}

	supported := opts.Extensions
	if supported == nil {
		supported = DefaultExtensions
	}
	if err := source.Validate(doc, supported); err != nil {
		return nil, tag(opts.Name, err)
	}

	log.Debug("Parsed document",
		zap.String("name", opts.Name),
		zap.Stringer("kind", kind),
		zap.Int("meshes", len(doc.Meshes)),
		zap.Int("primitives", doc.PrimitiveCount()),
		zap.Int("materials", len(doc.Materials)),
		zap.Int("nodes", len(doc.Nodes)))
	return doc, nil
}

// ParseFile reads and parses a file. Without a resolver, external URIs are
// resolved relative to the file's directory.
func ParseFile(path string, opts Options) (*source.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if opts.Resolver == nil {
		opts.Resolver = source.DirResolver(filepath.Dir(path))
	}
	return Parse(data, opts)
}

func tag(name string, err error) error {
	return &asset.ResourceError{Resource: asset.ResourceDocument, Index: 0, Name: name, Err: err}
}

// resolve loads every external buffer, image and shader.
func resolve(doc *source.Document, r source.Resolver, log *zap.Logger) error {
	for i := range doc.Buffers {
		b := &doc.Buffers[i]
		if b.Data != nil || b.URI == "" {
			continue
		}
		data, err := r.Resolve(b.URI)
		if err != nil {
			return fmt.Errorf("buffer %d: %w", i, err)
		}
		if len(data) < b.ByteLength {
			return fmt.Errorf("%w: buffer %d (%s) holds %d bytes, declared %d",
				asset.ErrOutOfRangeReference, i, b.URI, len(data), b.ByteLength)
		}
		b.Data = data
		log.Debug("Resolved buffer", zap.String("uri", b.URI), zap.Int("bytes", len(data)))
	}
	for i := range doc.Images {
		img := &doc.Images[i]
		if img.Data != nil || img.BufferView >= 0 || img.URI == "" {
			continue
		}
		data, err := r.Resolve(img.URI)
		if err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
		img.Data = data
		log.Debug("Resolved image", zap.String("uri", img.URI), zap.Int("bytes", len(data)))
	}
	for i := range doc.Shaders {
		s := &doc.Shaders[i]
		if s.Code != "" || s.BufferView >= 0 || s.URI == "" {
			continue
		}
		data, err := r.Resolve(s.URI)
		if err != nil {
			return fmt.Errorf("shader %d: %w", i, err)
		}
		s.Code = string(data)
		log.Debug("Resolved shader", zap.String("uri", s.URI), zap.Int("bytes", len(data)))
	}
	return nil
}
