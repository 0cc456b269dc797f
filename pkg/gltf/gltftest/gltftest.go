// Package gltftest builds small glTF documents for tests.
package gltftest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"slices"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/gltf"
	"github.com/Faultbox/assetforge/pkg/source"
)

// Builder appends resources to a document backed by a single buffer.
type Builder struct {
	doc  *source.Document
	data []byte
}

// New returns a builder for an empty glTF 2.0 document.
func New(name string) *Builder {
	d := source.New(name)
	d.Asset = source.Asset{Version: "2.0", Generator: "gltftest"}
	return &Builder{doc: d}
}

// View appends b as a 4-byte aligned buffer view and returns its index.
func (b *Builder) View(data []byte) int {
	for len(b.data)%4 != 0 {
		b.data = append(b.data, 0)
	}
	b.doc.BufferViews = append(b.doc.BufferViews, source.BufferView{
		ByteOffset: len(b.data),
		ByteLength: len(data),
	})
	b.data = append(b.data, data...)
	return len(b.doc.BufferViews) - 1
}

// Accessor appends a tightly packed accessor over a new view.
func (b *Builder) Accessor(data []byte, ct asset.ComponentType, typ source.AccessorType, count int) int {
	b.doc.Accessors = append(b.doc.Accessors, source.Accessor{
		BufferView:    b.View(data),
		ComponentType: ct,
		Count:         count,
		Type:          typ,
	})
	return len(b.doc.Accessors) - 1
}

// Floats appends a float accessor of the given element type.
func (b *Builder) Floats(typ source.AccessorType, values []float32) int {
	return b.Accessor(asset.EncodeFloats(values), asset.ComponentFloat, typ, len(values)/typ.Components())
}

// Indices appends a uint16 index accessor.
func (b *Builder) Indices(indices []uint16) int {
	raw := make([]byte, len(indices)*2)
	for i, v := range indices {
		binary.LittleEndian.PutUint16(raw[i*2:], v)
	}
	return b.Accessor(raw, asset.ComponentUnsignedShort, source.TypeScalar, len(indices))
}

// Image appends an image stored in a buffer view.
func (b *Builder) Image(name, mimeType string, data []byte) int {
	b.doc.Images = append(b.doc.Images, source.Image{
		Name:       name,
		MimeType:   mimeType,
		BufferView: b.View(data),
	})
	return len(b.doc.Images) - 1
}

// Texture appends a texture sampling image with the default sampler.
func (b *Builder) Texture(img int) int {
	b.doc.Textures = append(b.doc.Textures, source.Texture{Source: img, Sampler: -1})
	return len(b.doc.Textures) - 1
}

// Material appends a default material using texture as base color, or no
// texture when texture is -1.
func (b *Builder) Material(name string, texture int) int {
	m := source.DefaultMaterial()
	m.Name = name
	m.Textures[asset.RoleBaseColor].Texture = texture
	b.doc.Materials = append(b.doc.Materials, m)
	return len(b.doc.Materials) - 1
}

// Shader appends an inline WGSL source and binds it to material with defines.
func (b *Builder) Shader(name, code string) int {
	b.doc.Shaders = append(b.doc.Shaders, source.ShaderSource{Name: name, Code: code, BufferView: -1})
	if !slices.Contains(b.doc.ExtensionsUsed, gltf.ExtShaders) {
		b.doc.ExtensionsUsed = append(b.doc.ExtensionsUsed, gltf.ExtShaders)
	}
	return len(b.doc.Shaders) - 1
}

// UseShader binds a shader permutation to a material.
func (b *Builder) UseShader(material, shader int, defines map[string]string) {
	b.doc.Materials[material].Shader = &source.ShaderRef{Shader: shader, Defines: defines}
}

// Primitive returns a triangle list primitive over positions and indices.
// indices may be nil for a non-indexed primitive.
func (b *Builder) Primitive(positions []float32, indices []uint16, material int) source.Primitive {
	p := source.Primitive{
		Attributes: map[asset.Semantic]int{asset.SemanticPosition: b.Floats(source.TypeVec3, positions)},
		Indices:    -1,
		Material:   material,
		Mode:       source.ModeTriangles,
	}
	if indices != nil {
		p.Indices = b.Indices(indices)
	}
	return p
}

// Mesh appends a mesh.
func (b *Builder) Mesh(name string, prims ...source.Primitive) int {
	b.doc.Meshes = append(b.doc.Meshes, source.Mesh{Name: name, Primitives: prims})
	return len(b.doc.Meshes) - 1
}

// Node appends a node with an optional mesh (-1 for none) and children.
func (b *Builder) Node(name string, mesh int, children ...int) int {
	n := source.NewNode(name)
	n.Mesh = mesh
	n.Children = children
	b.doc.Nodes = append(b.doc.Nodes, n)
	return len(b.doc.Nodes) - 1
}

// Scene appends a scene and makes it the default.
func (b *Builder) Scene(roots ...int) {
	b.doc.Scenes = append(b.doc.Scenes, source.Scene{Nodes: roots})
	b.doc.Scene = len(b.doc.Scenes) - 1
}

// Document returns the built document with its buffer attached.
func (b *Builder) Document() *source.Document {
	if len(b.data) > 0 {
		b.doc.Buffers = []source.Buffer{{ByteLength: len(b.data), Data: b.data}}
		for i := range b.doc.BufferViews {
			b.doc.BufferViews[i].Buffer = 0
		}
	}
	return b.doc
}

// JSON encodes the document as .gltf with embedded data URIs.
func (b *Builder) JSON() []byte {
	data, err := gltf.Encode(b.Document())
	if err != nil {
		panic(err)
	}
	return data
}

// GLB encodes the document as .glb.
func (b *Builder) GLB() []byte {
	data, err := gltf.EncodeGLB(b.Document())
	if err != nil {
		panic(err)
	}
	return data
}

// QuadPositions are the corners of the unit square in the XY plane.
var QuadPositions = []float32{
	0, 0, 0,
	1, 0, 0,
	1, 1, 0,
	0, 1, 0,
}

// QuadIndices split QuadPositions into two counter-clockwise triangles.
var QuadIndices = []uint16{0, 1, 2, 0, 2, 3}

// PNG encodes a w×h image of one color.
func PNG(w, h int, c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// TexturedQuad builds one node with a quad mesh whose material samples a
// w×h PNG.
func TexturedQuad(w, h int) *Builder {
	b := New("quad")
	img := b.Image("checker", "image/png", PNG(w, h, color.NRGBA{R: 200, G: 100, B: 50, A: 255}))
	mat := b.Material("quad", b.Texture(img))
	mesh := b.Mesh("quad", b.Primitive(QuadPositions, QuadIndices, mat))
	b.Scene(b.Node("quad", mesh))
	return b
}
