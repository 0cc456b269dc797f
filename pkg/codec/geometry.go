// Package codec adapts geometry and texture decoders to a uniform decode
// contract. Every adapter is stateless; per-call decoder state is released
// before Decode returns.
package codec

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/source"
)

// Declared is the layout an encoded geometry blob declares up front.
// Attributes maps each semantic to its position in the blob.
type Declared struct {
	VertexCount int
	IndexCount  int
	ByteLength  int
	Attributes  map[asset.Semantic]int
}

// GeometryDecoder decodes one primitive into tightly packed streams.
type GeometryDecoder interface {
	Decode(ctx context.Context, doc *source.Document, prim source.Primitive) (*asset.Geometry, error)
	Encode(g *asset.Geometry) ([]byte, Declared, error)
}

// PlainGeometry reads uncompressed accessors.
type PlainGeometry struct{}

var _ GeometryDecoder = PlainGeometry{}

// Decode reads every attribute accessor and the index accessor. Strips and
// fans are converted to triangle lists; a primitive without indices gets
// sequential ones.
func (PlainGeometry) Decode(ctx context.Context, doc *source.Document, prim source.Primitive) (*asset.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pos, ok := prim.Attributes[asset.SemanticPosition]
	if !ok {
		return nil, fmt.Errorf("%w: primitive has no POSITION attribute", asset.ErrMalformedDocument)
	}
	g := &asset.Geometry{VertexCount: doc.Accessors[pos].Count}

	for _, sem := range prim.Semantics() {
		idx := prim.Attributes[sem]
		data, err := source.ReadAccessor(doc, idx)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", sem, err)
		}
		acc := &doc.Accessors[idx]
		format := acc.Format()
		if want := acc.Count * format.Size(); len(data) != want {
			return nil, fmt.Errorf("%w: attribute %s decoded %d bytes, declared %d",
				asset.ErrSizeMismatch, sem, len(data), want)
		}
		g.Streams = append(g.Streams, asset.Stream{Semantic: sem, Format: format, Data: data})
	}

	var indices []uint32
	if prim.Indices >= 0 {
		var err error
		if indices, err = source.ReadIndices(doc, prim.Indices); err != nil {
			return nil, fmt.Errorf("indices: %w", err)
		}
	}
	return finish(g, indices, prim.Mode)
}

// Encode packs g into the shared blob layout without compression.
func (PlainGeometry) Encode(g *asset.Geometry) ([]byte, Declared, error) {
	return pack(g)
}

// finish applies the primitive mode and validates the result.
func finish(g *asset.Geometry, indices []uint32, mode source.PrimitiveMode) (*asset.Geometry, error) {
	if indices == nil {
		indices = sequential(g.VertexCount)
	}
	tris, err := triangulate(indices, mode)
	if err != nil {
		return nil, err
	}
	g.Indices = tris
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func sequential(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}

// triangulate converts strip and fan index orders into a triangle list.
func triangulate(indices []uint32, mode source.PrimitiveMode) ([]uint32, error) {
	switch mode {
	case source.ModeTriangles:
		if len(indices)%3 != 0 {
			return nil, fmt.Errorf("%w: %d triangle list indices", asset.ErrMalformedDocument, len(indices))
		}
		return indices, nil
	case source.ModeTriangleStrip:
		if len(indices) < 3 {
			return nil, nil
		}
		out := make([]uint32, 0, (len(indices)-2)*3)
		for i := 0; i+2 < len(indices); i++ {
			if i%2 == 0 {
				out = append(out, indices[i], indices[i+1], indices[i+2])
			} else {
				out = append(out, indices[i+1], indices[i], indices[i+2])
			}
		}
		return out, nil
	case source.ModeTriangleFan:
		if len(indices) < 3 {
			return nil, nil
		}
		out := make([]uint32, 0, (len(indices)-2)*3)
		for i := 1; i+1 < len(indices); i++ {
			out = append(out, indices[i], indices[i+1], indices[0])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: primitive mode %d has no triangles", asset.ErrUnsupportedFormat, mode)
	}
}

// pack lays out streams in order followed by little-endian uint32 indices.
func pack(g *asset.Geometry) ([]byte, Declared, error) {
	if err := g.Validate(); err != nil {
		return nil, Declared{}, err
	}
	decl := Declared{
		VertexCount: g.VertexCount,
		IndexCount:  len(g.Indices),
		ByteLength:  g.ByteSize(),
		Attributes:  make(map[asset.Semantic]int, len(g.Streams)),
	}
	out := make([]byte, 0, decl.ByteLength)
	for i := range g.Streams {
		decl.Attributes[g.Streams[i].Semantic] = i
		out = append(out, g.Streams[i].Data...)
	}
	for _, idx := range g.Indices {
		out = binary.LittleEndian.AppendUint32(out, idx)
	}
	return out, decl, nil
}

// unpack splits a blob produced by pack. formats gives the element format of
// each semantic.
func unpack(blob []byte, decl Declared, formats map[asset.Semantic]asset.Format) (*asset.Geometry, []uint32, error) {
	order := make([]asset.Semantic, len(decl.Attributes))
	for sem, pos := range decl.Attributes {
		if pos < 0 || pos >= len(order) || order[pos] != "" {
			return nil, nil, fmt.Errorf("%w: attribute %s has blob position %d", asset.ErrMalformedDocument, sem, pos)
		}
		order[pos] = sem
	}

	want := decl.IndexCount * 4
	for _, sem := range order {
		f, ok := formats[sem]
		if !ok {
			return nil, nil, fmt.Errorf("%w: blob attribute %s has no accessor", asset.ErrMalformedDocument, sem)
		}
		want += decl.VertexCount * f.Size()
	}
	if len(blob) != want {
		return nil, nil, fmt.Errorf("%w: blob holds %d bytes, layout needs %d", asset.ErrSizeMismatch, len(blob), want)
	}

	g := &asset.Geometry{VertexCount: decl.VertexCount}
	off := 0
	for _, sem := range order {
		n := decl.VertexCount * formats[sem].Size()
		g.Streams = append(g.Streams, asset.Stream{Semantic: sem, Format: formats[sem], Data: blob[off : off+n]})
		off += n
	}
	var indices []uint32
	if decl.IndexCount > 0 {
		indices = make([]uint32, decl.IndexCount)
		for i := range indices {
			indices[i] = binary.LittleEndian.Uint32(blob[off+i*4:])
		}
	}
	return g, indices, nil
}
