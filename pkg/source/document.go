// Package source holds the parsed, format-neutral input graph of an import.
//
// A Document is built by a front-end (glTF or RSM), checked once by Validate
// and then shared read-only by every pipeline task. All cross-references are
// integer indices; -1 marks an unset optional reference.
package source

import (
	"fmt"
	"slices"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/math"
)

// Asset is document metadata.
type Asset struct {
	Version   string
	Generator string
}

// Buffer is a block of binary data.
type Buffer struct {
	Name       string
	URI        string
	ByteLength int
	Data       []byte
}

// BufferView is a byte range of a buffer.
type BufferView struct {
	Buffer     int
	ByteOffset int
	ByteLength int
	ByteStride int
}

// AccessorType is the element shape of an accessor.
type AccessorType string

// Accessor element types.
const (
	TypeScalar AccessorType = "SCALAR"
	TypeVec2   AccessorType = "VEC2"
	TypeVec3   AccessorType = "VEC3"
	TypeVec4   AccessorType = "VEC4"
	TypeMat2   AccessorType = "MAT2"
	TypeMat3   AccessorType = "MAT3"
	TypeMat4   AccessorType = "MAT4"
)

// Components returns the number of components per element, or 0 if unknown.
func (t AccessorType) Components() int {
	switch t {
	case TypeScalar:
		return 1
	case TypeVec2:
		return 2
	case TypeVec3:
		return 3
	case TypeVec4, TypeMat2:
		return 4
	case TypeMat3:
		return 9
	case TypeMat4:
		return 16
	default:
		return 0
	}
}

// Sparse substitutes Count elements of an accessor.
type Sparse struct {
	Count             int
	IndicesView       int
	IndicesByteOffset int
	IndicesComponent  asset.ComponentType
	ValuesView        int
	ValuesByteOffset  int
}

// Accessor is a typed view over buffer data. BufferView is -1 for accessors
// that are all zeros, sparse-only, or backed by a compressed primitive.
type Accessor struct {
	Name          string
	BufferView    int
	ByteOffset    int
	ComponentType asset.ComponentType
	Normalized    bool
	Count         int
	Type          AccessorType
	Sparse        *Sparse
	Min           []float32
	Max           []float32
}

// Format returns the stream format of one element.
func (a *Accessor) Format() asset.Format {
	return asset.Format{Component: a.ComponentType, Components: a.Type.Components(), Normalized: a.Normalized}
}

// ElementSize returns the byte size of one element.
func (a *Accessor) ElementSize() int {
	return a.Format().Size()
}

// PrimitiveMode is the topology of a primitive.
type PrimitiveMode int

// Primitive topologies.
const (
	ModePoints PrimitiveMode = iota
	ModeLines
	ModeLineLoop
	ModeLineStrip
	ModeTriangles
	ModeTriangleStrip
	ModeTriangleFan
)

// Valid reports whether m is a known topology.
func (m PrimitiveMode) Valid() bool {
	return m >= ModePoints && m <= ModeTriangleFan
}

// Triangles reports whether m produces triangles.
func (m PrimitiveMode) Triangles() bool {
	return m == ModeTriangles || m == ModeTriangleStrip || m == ModeTriangleFan
}

// Compression describes a primitive whose geometry lives in a codec blob.
// Attributes maps each semantic to its position inside the blob.
type Compression struct {
	Extension   string
	BufferView  int
	Attributes  map[asset.Semantic]int
	VertexCount int
	IndexCount  int
	ByteLength  int
}

// Primitive is one drawable part of a mesh.
type Primitive struct {
	Attributes  map[asset.Semantic]int
	Indices     int
	Material    int
	Mode        PrimitiveMode
	Compression *Compression
}

// Semantics returns the attribute semantics in sorted order.
func (p *Primitive) Semantics() []asset.Semantic {
	out := make([]asset.Semantic, 0, len(p.Attributes))
	for s := range p.Attributes {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Mesh is a named list of primitives.
type Mesh struct {
	Name       string
	Primitives []Primitive
}

// TextureRef binds a texture to a material slot.
type TextureRef struct {
	Texture  int
	TexCoord int
}

// ShaderRef selects a shader source and the defines of one permutation.
type ShaderRef struct {
	Shader  int
	Defines map[string]string
}

// Material is a PBR metallic-roughness material.
type Material struct {
	Name              string
	BaseColorFactor   [4]float32
	MetallicFactor    float32
	RoughnessFactor   float32
	EmissiveFactor    [3]float32
	EmissiveStrength  float32
	NormalScale       float32
	OcclusionStrength float32
	AlphaMode         asset.AlphaMode
	AlphaCutoff       float32
	DoubleSided       bool
	Textures          [asset.RoleCount]TextureRef
	Shader            *ShaderRef
}

// DefaultMaterial returns a material with glTF default factors and no textures.
func DefaultMaterial() Material {
	m := Material{
		BaseColorFactor:   [4]float32{1, 1, 1, 1},
		MetallicFactor:    1,
		RoughnessFactor:   1,
		EmissiveStrength:  1,
		NormalScale:       1,
		OcclusionStrength: 1,
		AlphaMode:         asset.AlphaOpaque,
		AlphaCutoff:       0.5,
	}
	for i := range m.Textures {
		m.Textures[i].Texture = -1
	}
	return m
}

// Texture pairs an image with a sampler.
type Texture struct {
	Name    string
	Source  int
	Sampler int
}

// Image is encoded image data, either inline in Data or in a buffer view.
// ColorKey marks images whose pure magenta pixels are transparent.
type Image struct {
	Name       string
	URI        string
	MimeType   string
	BufferView int
	Data       []byte
	ColorKey   bool
}

// Sampler holds texture filtering and wrapping modes using glTF enum values.
type Sampler struct {
	MagFilter int
	MinFilter int
	WrapS     int
	WrapT     int
}

// ShaderSource is WGSL source text, inline in Code or in a buffer view.
type ShaderSource struct {
	Name       string
	URI        string
	BufferView int
	Code       string
}

// Node is a transform in the hierarchy. Matrix, when set, overrides TRS.
type Node struct {
	Name        string
	Children    []int
	Mesh        int
	Light       int
	Matrix      *math.Mat4
	Translation [3]float32
	Rotation    math.Quat
	Scale       [3]float32
}

// NewNode returns a node with identity transform and no references.
func NewNode(name string) Node {
	return Node{
		Name:     name,
		Mesh:     -1,
		Light:    -1,
		Rotation: math.QuatIdentity(),
		Scale:    [3]float32{1, 1, 1},
	}
}

// LocalMatrix returns the node's local transform.
func (n *Node) LocalMatrix() math.Mat4 {
	if n.Matrix != nil {
		return *n.Matrix
	}
	return math.FromTRS(n.Translation, n.Rotation, n.Scale)
}

// Scene lists the root nodes of one scene.
type Scene struct {
	Name  string
	Nodes []int
}

// Light is a KHR_lights_punctual light.
type Light struct {
	Name           string
	Type           asset.LightType
	Color          [3]float32
	Intensity      float32
	Range          float32
	InnerConeAngle float32
	OuterConeAngle float32
}

// AnimationChannel targets one node property.
type AnimationChannel struct {
	Node    int
	Path    string
	Sampler int
}

// AnimationSampler pairs key times with values.
type AnimationSampler struct {
	Input         int
	Output        int
	Interpolation string
}

// Animation is a named set of channels.
type Animation struct {
	Name     string
	Channels []AnimationChannel
	Samplers []AnimationSampler
}

// Document is the parsed input graph.
type Document struct {
	Name        string
	Asset       Asset
	Buffers     []Buffer
	BufferViews []BufferView
	Accessors   []Accessor
	Meshes      []Mesh
	Materials   []Material
	Textures    []Texture
	Images      []Image
	Samplers    []Sampler
	Shaders     []ShaderSource
	Nodes       []Node
	Scenes      []Scene
	Scene       int
	Lights      []Light
	Animations  []Animation

	ExtensionsUsed     []string
	ExtensionsRequired []string
}

// New returns an empty document with no default scene.
func New(name string) *Document {
	return &Document{Name: name, Scene: -1}
}

// PrimitiveCount returns the total number of primitives over all meshes.
func (d *Document) PrimitiveCount() int {
	n := 0
	for i := range d.Meshes {
		n += len(d.Meshes[i].Primitives)
	}
	return n
}

// ViewBytes returns the bytes covered by a buffer view.
func (d *Document) ViewBytes(view int) ([]byte, error) {
	if view < 0 || view >= len(d.BufferViews) {
		return nil, outOfRange("bufferView", view, len(d.BufferViews))
	}
	bv := &d.BufferViews[view]
	if bv.Buffer < 0 || bv.Buffer >= len(d.Buffers) {
		return nil, outOfRange("buffer", bv.Buffer, len(d.Buffers))
	}
	data := d.Buffers[bv.Buffer].Data
	if bv.ByteOffset < 0 || bv.ByteLength < 0 || bv.ByteOffset+bv.ByteLength > len(data) {
		return nil, rangeError("bufferView %d [%d:+%d] exceeds buffer %d of %d bytes",
			view, bv.ByteOffset, bv.ByteLength, bv.Buffer, len(data))
	}
	return data[bv.ByteOffset : bv.ByteOffset+bv.ByteLength], nil
}

// ImageData returns the encoded bytes of an image.
func (d *Document) ImageData(image int) ([]byte, error) {
	if image < 0 || image >= len(d.Images) {
		return nil, outOfRange("image", image, len(d.Images))
	}
	img := &d.Images[image]
	if img.BufferView >= 0 {
		return d.ViewBytes(img.BufferView)
	}
	if img.Data == nil {
		return nil, fmt.Errorf("%w: image %d (%q) has no data", asset.ErrUnresolvedReference, image, img.URI)
	}
	return img.Data, nil
}

// ShaderCode returns the source text of a shader.
func (d *Document) ShaderCode(shader int) (string, error) {
	if shader < 0 || shader >= len(d.Shaders) {
		return "", outOfRange("shader", shader, len(d.Shaders))
	}
	s := &d.Shaders[shader]
	if s.BufferView >= 0 {
		b, err := d.ViewBytes(s.BufferView)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return s.Code, nil
}
