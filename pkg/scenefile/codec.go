package scenefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Faultbox/assetforge/pkg/asset"
)

// writer writes little-endian values and keeps the first error.
type writer struct {
	w   io.Writer
	err error
}

func (bw *writer) write(v any) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *writer) count(n int) { bw.write(uint32(n)) }

func (bw *writer) index(i int) { bw.write(int32(i)) }

func (bw *writer) bool(b bool) {
	var v uint8
	if b {
		v = 1
	}
	bw.write(v)
}

func (bw *writer) str(s string) {
	bw.count(len(s))
	bw.write([]byte(s))
}

func (bw *writer) bytes(b []byte) {
	bw.count(len(b))
	bw.write(b)
}

func (bw *writer) uints(v []uint32) {
	bw.count(len(v))
	bw.write(v)
}

func (bw *writer) floats(v []float32) {
	bw.count(len(v))
	bw.write(v)
}

func (bw *writer) indices(v []int) {
	bw.count(len(v))
	for _, i := range v {
		bw.index(i)
	}
}

func (bw *writer) strs(v []string) {
	bw.count(len(v))
	for _, s := range v {
		bw.str(s)
	}
}

func (bw *writer) scene(s *asset.Scene) {
	bw.str(s.Name)

	bw.count(len(s.Meshes))
	for i := range s.Meshes {
		bw.mesh(&s.Meshes[i])
	}
	bw.count(len(s.Textures))
	for i := range s.Textures {
		bw.texture(&s.Textures[i])
	}
	bw.count(len(s.Shaders))
	for i := range s.Shaders {
		bw.shader(&s.Shaders[i])
	}
	bw.count(len(s.Materials))
	for i := range s.Materials {
		bw.material(&s.Materials[i])
	}
	bw.count(len(s.Nodes))
	for i := range s.Nodes {
		n := &s.Nodes[i]
		bw.str(n.Name)
		bw.index(n.Parent)
		bw.indices(n.Children)
		bw.index(n.Mesh)
		bw.index(n.Light)
		bw.write(n.Local)
		bw.write(n.World)
	}
	bw.indices(s.Roots)
	bw.count(len(s.Lights))
	for i := range s.Lights {
		l := &s.Lights[i]
		bw.str(l.Name)
		bw.str(string(l.Type))
		bw.write(l.Color)
		bw.write([4]float32{l.Intensity, l.Range, l.InnerConeAngle, l.OuterConeAngle})
	}
	bw.count(len(s.Animations))
	for i := range s.Animations {
		a := &s.Animations[i]
		bw.str(a.Name)
		bw.count(len(a.Channels))
		for j := range a.Channels {
			c := &a.Channels[j]
			bw.index(c.Node)
			bw.str(c.Path)
			bw.str(c.Interpolation)
			bw.count(c.Components)
			bw.floats(c.Times)
			bw.floats(c.Values)
		}
	}
}

func (bw *writer) mesh(m *asset.Mesh) {
	bw.str(m.Name)
	bw.count(len(m.Primitives))
	for i := range m.Primitives {
		p := &m.Primitives[i]
		bw.index(p.Material)
		bw.count(p.VertexCount)
		bw.count(len(p.Streams))
		for j := range p.Streams {
			st := &p.Streams[j]
			bw.str(string(st.Semantic))
			bw.write(uint16(st.Format.Component))
			bw.write(uint8(st.Format.Components))
			bw.bool(st.Format.Normalized)
			bw.bytes(st.Data)
		}
		bw.uints(p.Indices)
		bw.count(len(p.LODs))
		for j := range p.LODs {
			bw.uints(p.LODs[j].Indices)
			bw.write(p.LODs[j].Error)
		}
		bw.uints(p.ShadowIndices)
		bw.count(len(p.Meshlets))
		bw.write(p.Meshlets)
		bw.uints(p.MeshletVertices)
		bw.bytes(p.MeshletTriangles)
		bw.write(p.Bounds)
	}
}

func (bw *writer) texture(t *asset.Texture) {
	bw.str(t.Name)
	bw.count(t.Width)
	bw.count(t.Height)
	bw.str(string(t.Format))
	bw.write(uint8(t.Role))
	bw.count(len(t.Mips))
	for i := range t.Mips {
		m := &t.Mips[i]
		bw.count(m.Width)
		bw.count(m.Height)
		bw.bytes(m.Data)
	}
	bw.str(t.ContentHash)
}

func (bw *writer) shader(s *asset.Shader) {
	bw.str(s.Name)
	bw.str(s.Profile)
	bw.strs(s.Defines)
	bw.bytes(s.Bytecode)

	r := &s.Reflection
	bw.count(len(r.EntryPoints))
	for _, ep := range r.EntryPoints {
		bw.write(uint8(ep.Stage))
		bw.str(ep.Name)
		bw.write(ep.WorkgroupSize)
	}
	bw.count(len(r.Bindings))
	for _, b := range r.Bindings {
		bw.count(b.Group)
		bw.count(b.Binding)
		bw.str(b.Name)
		bw.str(string(b.Kind))
		bw.str(b.Type)
		bw.str(b.Access)
	}
	bw.count(len(r.VertexInputs))
	for _, in := range r.VertexInputs {
		bw.count(in.Location)
		bw.str(in.Name)
		bw.str(in.Type)
	}
	bw.str(s.ContentHash)
}

func (bw *writer) material(m *asset.Material) {
	bw.str(m.Name)
	bw.write(m.BaseColorFactor)
	bw.write([2]float32{m.MetallicFactor, m.RoughnessFactor})
	bw.write(m.EmissiveFactor)
	bw.write([4]float32{m.EmissiveStrength, m.NormalScale, m.OcclusionStrength, m.AlphaCutoff})
	bw.str(string(m.AlphaMode))
	bw.bool(m.DoubleSided)
	for _, t := range m.Textures {
		bw.index(t)
	}
	bw.index(m.Shader)
}

// reader reads little-endian values and keeps the first error. Element
// counts are checked against the remaining input before allocating.
type reader struct {
	r   *bytes.Reader
	err error
}

func (br *reader) read(v any) {
	if br.err != nil {
		return
	}
	if err := binary.Read(br.r, binary.LittleEndian, v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrTruncated
		}
		br.err = err
	}
}

// count reads an element count; each element takes at least size bytes.
func (br *reader) count(what string, size int) int {
	var n uint32
	br.read(&n)
	if br.err != nil {
		return 0
	}
	if int64(n)*int64(max(size, 1)) > int64(br.r.Len()) {
		br.err = fmt.Errorf("%w: %d %s exceed %d remaining bytes", ErrTruncated, n, what, br.r.Len())
		return 0
	}
	return int(n)
}

func (br *reader) u32() int {
	var v uint32
	br.read(&v)
	return int(v)
}

func (br *reader) index() int {
	var v int32
	br.read(&v)
	return int(v)
}

func (br *reader) u8() uint8 {
	var v uint8
	br.read(&v)
	return v
}

func (br *reader) f32() float32 {
	var v float32
	br.read(&v)
	return v
}

func (br *reader) bytes(what string) []byte {
	out := make([]byte, br.count(what, 1))
	br.read(out)
	return out
}

func (br *reader) str() string {
	return string(br.bytes("string bytes"))
}

func (br *reader) uints(what string) []uint32 {
	out := make([]uint32, br.count(what, 4))
	br.read(out)
	return out
}

func (br *reader) floats(what string) []float32 {
	out := make([]float32, br.count(what, 4))
	br.read(out)
	return out
}

func (br *reader) indices(what string) []int {
	out := make([]int, br.count(what, 4))
	for i := range out {
		out[i] = br.index()
	}
	return out
}

func (br *reader) strs(what string) []string {
	out := make([]string, br.count(what, 4))
	for i := range out {
		out[i] = br.str()
	}
	return out
}

func (br *reader) scene() *asset.Scene {
	s := &asset.Scene{Name: br.str()}

	s.Meshes = make([]asset.Mesh, br.count("meshes", 8))
	for i := range s.Meshes {
		s.Meshes[i] = br.mesh()
	}
	s.Textures = make([]asset.Texture, br.count("textures", 17))
	for i := range s.Textures {
		s.Textures[i] = br.texture()
	}
	s.Shaders = make([]asset.Shader, br.count("shaders", 28))
	for i := range s.Shaders {
		s.Shaders[i] = br.shader()
	}
	s.Materials = make([]asset.Material, br.count("materials", 62))
	for i := range s.Materials {
		s.Materials[i] = br.material()
	}
	s.Nodes = make([]asset.Node, br.count("nodes", 144))
	for i := range s.Nodes {
		n := &s.Nodes[i]
		n.Name = br.str()
		n.Parent = br.index()
		n.Children = br.indices("children")
		n.Mesh = br.index()
		n.Light = br.index()
		br.read(&n.Local)
		br.read(&n.World)
	}
	s.Roots = br.indices("roots")
	s.Lights = make([]asset.Light, br.count("lights", 36))
	for i := range s.Lights {
		l := &s.Lights[i]
		l.Name = br.str()
		l.Type = asset.LightType(br.str())
		br.read(&l.Color)
		var params [4]float32
		br.read(&params)
		l.Intensity, l.Range, l.InnerConeAngle, l.OuterConeAngle = params[0], params[1], params[2], params[3]
	}
	s.Animations = make([]asset.Animation, br.count("animations", 8))
	for i := range s.Animations {
		a := &s.Animations[i]
		a.Name = br.str()
		a.Channels = make([]asset.Channel, br.count("channels", 24))
		for j := range a.Channels {
			c := &a.Channels[j]
			c.Node = br.index()
			c.Path = br.str()
			c.Interpolation = br.str()
			c.Components = br.u32()
			c.Times = br.floats("key times")
			c.Values = br.floats("key values")
		}
	}
	return s
}

func (br *reader) mesh() asset.Mesh {
	m := asset.Mesh{Name: br.str()}
	m.Primitives = make([]asset.Primitive, br.count("primitives", 60))
	for i := range m.Primitives {
		p := &m.Primitives[i]
		p.Material = br.index()
		p.VertexCount = br.u32()
		p.Streams = make([]asset.Stream, br.count("streams", 12))
		for j := range p.Streams {
			st := &p.Streams[j]
			st.Semantic = asset.Semantic(br.str())
			var component uint16
			br.read(&component)
			st.Format = asset.Format{
				Component:  asset.ComponentType(component),
				Components: int(br.u8()),
				Normalized: br.u8() != 0,
			}
			st.Data = br.bytes("stream bytes")
		}
		p.Indices = br.uints("indices")
		p.LODs = make([]asset.LOD, br.count("lods", 8))
		for j := range p.LODs {
			p.LODs[j].Indices = br.uints("lod indices")
			p.LODs[j].Error = br.f32()
		}
		p.ShadowIndices = br.uints("shadow indices")
		p.Meshlets = make([]asset.Meshlet, br.count("meshlets", 32))
		br.read(p.Meshlets)
		p.MeshletVertices = br.uints("meshlet vertices")
		p.MeshletTriangles = br.bytes("meshlet triangles")
		br.read(&p.Bounds)
	}
	return m
}

func (br *reader) texture() asset.Texture {
	t := asset.Texture{
		Name:   br.str(),
		Width:  br.u32(),
		Height: br.u32(),
		Format: asset.TextureFormat(br.str()),
		Role:   asset.TextureRole(br.u8()),
	}
	t.Mips = make([]asset.MipLevel, br.count("mips", 12))
	for i := range t.Mips {
		t.Mips[i] = asset.MipLevel{Width: br.u32(), Height: br.u32(), Data: br.bytes("mip bytes")}
	}
	t.ContentHash = br.str()
	return t
}

func (br *reader) shader() asset.Shader {
	s := asset.Shader{
		Name:     br.str(),
		Profile:  br.str(),
		Defines:  br.strs("defines"),
		Bytecode: br.bytes("bytecode"),
	}
	r := &s.Reflection
	r.EntryPoints = make([]asset.EntryPoint, br.count("entry points", 17))
	for i := range r.EntryPoints {
		ep := &r.EntryPoints[i]
		ep.Stage = asset.ShaderStage(br.u8())
		ep.Name = br.str()
		br.read(&ep.WorkgroupSize)
	}
	r.Bindings = make([]asset.Binding, br.count("bindings", 24))
	for i := range r.Bindings {
		b := &r.Bindings[i]
		b.Group = br.u32()
		b.Binding = br.u32()
		b.Name = br.str()
		b.Kind = asset.BindingKind(br.str())
		b.Type = br.str()
		b.Access = br.str()
	}
	r.VertexInputs = make([]asset.VertexInput, br.count("vertex inputs", 12))
	for i := range r.VertexInputs {
		in := &r.VertexInputs[i]
		in.Location = br.u32()
		in.Name = br.str()
		in.Type = br.str()
	}
	s.ContentHash = br.str()
	return s
}

func (br *reader) material() asset.Material {
	m := asset.Material{Name: br.str()}
	br.read(&m.BaseColorFactor)
	var mr [2]float32
	br.read(&mr)
	m.MetallicFactor, m.RoughnessFactor = mr[0], mr[1]
	br.read(&m.EmissiveFactor)
	var params [4]float32
	br.read(&params)
	m.EmissiveStrength, m.NormalScale, m.OcclusionStrength, m.AlphaCutoff = params[0], params[1], params[2], params[3]
	m.AlphaMode = asset.AlphaMode(br.str())
	m.DoubleSided = br.u8() != 0
	for i := range m.Textures {
		m.Textures[i] = br.index()
	}
	m.Shader = br.index()
	return m
}
