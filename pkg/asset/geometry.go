// Package asset defines the data produced by the import pipeline: decoded
// geometry, optimized meshes, textures, compiled shaders and the assembled scene.
package asset

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Semantic names the meaning of a vertex attribute stream.
type Semantic string

// Standard vertex semantics. Indexed sets use TEXCOORD_n, COLOR_n, JOINTS_n and WEIGHTS_n.
const (
	SemanticPosition  Semantic = "POSITION"
	SemanticNormal    Semantic = "NORMAL"
	SemanticTangent   Semantic = "TANGENT"
	SemanticTexCoord0 Semantic = "TEXCOORD_0"
	SemanticColor0    Semantic = "COLOR_0"
	SemanticJoints0   Semantic = "JOINTS_0"
	SemanticWeights0  Semantic = "WEIGHTS_0"
)

// Known reports whether s is a standard semantic or an application-specific one (leading underscore).
func (s Semantic) Known() bool {
	switch s {
	case SemanticPosition, SemanticNormal, SemanticTangent:
		return true
	}
	if strings.HasPrefix(string(s), "_") {
		return len(s) > 1
	}
	for _, prefix := range []string{"TEXCOORD_", "COLOR_", "JOINTS_", "WEIGHTS_"} {
		if rest, ok := strings.CutPrefix(string(s), prefix); ok && rest != "" {
			for _, r := range rest {
				if r < '0' || r > '9' {
					return false
				}
			}
			return true
		}
	}
	return false
}

// ComponentType is the scalar type of one attribute component, using glTF enum values.
type ComponentType uint16

// Component types.
const (
	ComponentByte          ComponentType = 5120
	ComponentUnsignedByte  ComponentType = 5121
	ComponentShort         ComponentType = 5122
	ComponentUnsignedShort ComponentType = 5123
	ComponentUnsignedInt   ComponentType = 5125
	ComponentFloat         ComponentType = 5126
)

// Size returns the byte size of one component, or 0 for unknown types.
func (c ComponentType) Size() int {
	switch c {
	case ComponentByte, ComponentUnsignedByte:
		return 1
	case ComponentShort, ComponentUnsignedShort:
		return 2
	case ComponentUnsignedInt, ComponentFloat:
		return 4
	default:
		return 0
	}
}

// String returns a short type name.
func (c ComponentType) String() string {
	switch c {
	case ComponentByte:
		return "int8"
	case ComponentUnsignedByte:
		return "uint8"
	case ComponentShort:
		return "int16"
	case ComponentUnsignedShort:
		return "uint16"
	case ComponentUnsignedInt:
		return "uint32"
	case ComponentFloat:
		return "float32"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(c))
	}
}

// Format describes the element layout of a tightly packed stream.
type Format struct {
	Component  ComponentType
	Components int
	Normalized bool
}

// Size returns the byte size of one element.
func (f Format) Size() int {
	return f.Component.Size() * f.Components
}

func (f Format) String() string {
	s := fmt.Sprintf("%sx%d", f.Component, f.Components)
	if f.Normalized {
		s += "n"
	}
	return s
}

// Stream is one tightly packed vertex attribute buffer.
type Stream struct {
	Semantic Semantic
	Format   Format
	Data     []byte
}

// Len returns the number of elements in the stream.
func (s *Stream) Len() int {
	size := s.Format.Size()
	if size == 0 {
		return 0
	}
	return len(s.Data) / size
}

// Geometry is the decoded, uncompressed vertex and index data of one primitive.
type Geometry struct {
	VertexCount int
	Streams     []Stream
	Indices     []uint32
}

// Stream returns the stream with the given semantic, or nil.
func (g *Geometry) Stream(sem Semantic) *Stream {
	for i := range g.Streams {
		if g.Streams[i].Semantic == sem {
			return &g.Streams[i]
		}
	}
	return nil
}

// TriangleCount returns the number of triangles in the index stream.
func (g *Geometry) TriangleCount() int {
	return len(g.Indices) / 3
}

// ByteSize returns the total size of all streams plus the index buffer.
func (g *Geometry) ByteSize() int {
	n := len(g.Indices) * 4
	for i := range g.Streams {
		n += len(g.Streams[i].Data)
	}
	return n
}

// Positions decodes the POSITION stream.
func (g *Geometry) Positions() ([][3]float32, error) {
	return DecodePositions(g.Stream(SemanticPosition), g.VertexCount)
}

// Validate checks that every stream matches the vertex count, the index list
// forms whole triangles and every index is in range.
func (g *Geometry) Validate() error {
	pos := g.Stream(SemanticPosition)
	if pos == nil {
		return fmt.Errorf("%w: primitive has no POSITION stream", ErrMalformedDocument)
	}
	if pos.Format.Component != ComponentFloat || pos.Format.Components != 3 {
		return fmt.Errorf("%w: POSITION must be float32x3, got %s", ErrUnsupportedFormat, pos.Format)
	}
	for i := range g.Streams {
		s := &g.Streams[i]
		if s.Format.Size() == 0 {
			return fmt.Errorf("%w: stream %s has invalid format %s", ErrUnsupportedFormat, s.Semantic, s.Format)
		}
		if want := g.VertexCount * s.Format.Size(); len(s.Data) != want {
			return fmt.Errorf("%w: stream %s holds %d bytes, want %d", ErrSizeMismatch, s.Semantic, len(s.Data), want)
		}
	}
	if len(g.Indices)%3 != 0 {
		return fmt.Errorf("%w: index count %d is not a multiple of 3", ErrMalformedDocument, len(g.Indices))
	}
	for i, idx := range g.Indices {
		if int(idx) >= g.VertexCount {
			return fmt.Errorf("%w: index %d at position %d exceeds vertex count %d",
				ErrOutOfRangeReference, idx, i, g.VertexCount)
		}
	}
	return nil
}

// DecodePositions reads count float32x3 values from a POSITION stream.
func DecodePositions(s *Stream, count int) ([][3]float32, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: missing POSITION stream", ErrMalformedDocument)
	}
	if s.Format.Component != ComponentFloat || s.Format.Components != 3 {
		return nil, fmt.Errorf("%w: POSITION must be float32x3, got %s", ErrUnsupportedFormat, s.Format)
	}
	if len(s.Data) < count*12 {
		return nil, fmt.Errorf("%w: POSITION holds %d bytes, want %d", ErrSizeMismatch, len(s.Data), count*12)
	}
	out := make([][3]float32, count)
	for i := range out {
		o := i * 12
		out[i] = [3]float32{
			math.Float32frombits(binary.LittleEndian.Uint32(s.Data[o:])),
			math.Float32frombits(binary.LittleEndian.Uint32(s.Data[o+4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(s.Data[o+8:])),
		}
	}
	return out, nil
}

// EncodeFloats packs float32 values little-endian.
func EncodeFloats(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// DecodeFloats unpacks little-endian float32 values.
func DecodeFloats(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
