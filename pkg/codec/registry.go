package codec

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/gltf"
	"github.com/Faultbox/assetforge/pkg/source"
)

// Registry maps geometry compression extensions to their decoders.
// Uncompressed primitives use the plain decoder.
type Registry struct {
	mu    sync.RWMutex
	plain GeometryDecoder
	byExt map[string]GeometryDecoder
}

// NewRegistry returns a registry with the plain and deflate backends.
func NewRegistry() *Registry {
	r := &Registry{plain: PlainGeometry{}, byExt: make(map[string]GeometryDecoder)}
	r.Register(gltf.ExtGeometryDeflate, DeflateGeometry{})
	return r
}

// Register binds a decoder to a primitive extension, replacing any previous one.
func (r *Registry) Register(ext string, d GeometryDecoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byExt[ext] = d
}

// Extensions returns the registered extension names, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the decoder for prim.
func (r *Registry) Lookup(prim source.Primitive) (GeometryDecoder, error) {
	if prim.Compression == nil {
		return r.plain, nil
	}
	r.mu.RLock()
	d, ok := r.byExt[prim.Compression.Extension]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", asset.ErrUnsupportedExtension, prim.Compression.Extension)
	}
	return d, nil
}

// Decode looks up the decoder for prim and runs it.
func (r *Registry) Decode(ctx context.Context, doc *source.Document, prim source.Primitive) (*asset.Geometry, error) {
	d, err := r.Lookup(prim)
	if err != nil {
		return nil, err
	}
	return d.Decode(ctx, doc, prim)
}
