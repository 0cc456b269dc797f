package codec

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/gltf"
	"github.com/Faultbox/assetforge/pkg/source"
)

// DeflateGeometry decodes primitives carrying the FORGE_geometry_deflate
// extension: a zlib blob of packed streams followed by uint32 indices.
type DeflateGeometry struct {
	// Level is the zlib compression level used by Encode.
	Level int
}

var _ GeometryDecoder = DeflateGeometry{}

// Decode inflates the primitive's blob and splits it into streams. The
// inflated length must equal the declared byte length.
func (DeflateGeometry) Decode(ctx context.Context, doc *source.Document, prim source.Primitive) (*asset.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	comp := prim.Compression
	if comp == nil || comp.Extension != gltf.ExtGeometryDeflate {
		return nil, fmt.Errorf("%w: primitive is not %s compressed", asset.ErrMalformedDocument, gltf.ExtGeometryDeflate)
	}
	compressed, err := doc.ViewBytes(comp.BufferView)
	if err != nil {
		return nil, err
	}

	blob, err := inflate(compressed, comp.ByteLength)
	if err != nil {
		return nil, err
	}

	formats := make(map[asset.Semantic]asset.Format, len(prim.Attributes))
	for sem, idx := range prim.Attributes {
		formats[sem] = doc.Accessors[idx].Format()
	}
	decl := Declared{
		VertexCount: comp.VertexCount,
		IndexCount:  comp.IndexCount,
		ByteLength:  comp.ByteLength,
		Attributes:  comp.Attributes,
	}
	g, indices, err := unpack(blob, decl, formats)
	if err != nil {
		return nil, err
	}
	return finish(g, indices, prim.Mode)
}

// inflate decompresses data and checks the result against the declared size.
func inflate(data []byte, declared int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %w", asset.ErrCodecFailure, err)
	}
	defer zr.Close()

	// Read one byte past the declared size to detect oversized payloads.
	out, err := io.ReadAll(io.LimitReader(zr, int64(declared)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %w", asset.ErrCodecFailure, err)
	}
	if len(out) != declared {
		return nil, fmt.Errorf("%w: inflated %d bytes, declared %d", asset.ErrSizeMismatch, len(out), declared)
	}
	return out, nil
}

// Encode packs g and compresses the blob. Declared.ByteLength is the
// uncompressed size.
func (d DeflateGeometry) Encode(g *asset.Geometry) ([]byte, Declared, error) {
	blob, decl, err := pack(g)
	if err != nil {
		return nil, Declared{}, err
	}
	level := d.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, Declared{}, fmt.Errorf("%w: zlib: %w", asset.ErrCodecFailure, err)
	}
	if _, err := zw.Write(blob); err != nil {
		zw.Close()
		return nil, Declared{}, fmt.Errorf("%w: zlib: %w", asset.ErrCodecFailure, err)
	}
	if err := zw.Close(); err != nil {
		return nil, Declared{}, fmt.Errorf("%w: zlib: %w", asset.ErrCodecFailure, err)
	}
	return buf.Bytes(), decl, nil
}
