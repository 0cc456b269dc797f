package formats

import (
	"encoding/binary"
	"fmt"
	gomath "math"
	"path"
	"slices"
	"strings"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/source"
)

// TextureDir is the archive directory RSM texture names are relative to.
const TextureDir = "data/texture"

// TextureURI returns the resolver URI of an RSM texture name.
func TextureURI(name string) string {
	return path.Join(TextureDir, strings.ReplaceAll(name, "\\", "/"))
}

// ConvertRSM translates a parsed RSM model into a source document.
//
// Each RSM node becomes a document node. Offset and the 3x3 matrix only affect
// the node's own vertices, so they are baked into the positions; position,
// axis-angle rotation and scale become the node's local TRS. Faces are
// unwelded per (vertex, texcoord) pair and grouped into one primitive per
// texture. Parent links are resolved by name and kept even when they form a
// cycle, so that validation can reject the document.
func ConvertRSM(rsm *RSM, name string) (*source.Document, error) {
	c := &rsmConverter{
		rsm:  rsm,
		doc:  source.New(name),
		mats: make(map[int]int),
	}
	c.doc.Asset = source.Asset{Version: "2.0", Generator: "assetforge rsm " + rsm.Version.String()}
	c.doc.Buffers = []source.Buffer{{Name: name}}
	c.textures()

	for i := range rsm.Nodes {
		n, err := c.node(i)
		if err != nil {
			return nil, fmt.Errorf("node %d (%q): %w", i, rsm.Nodes[i].Name, err)
		}
		c.doc.Nodes = append(c.doc.Nodes, n)
	}
	roots := c.link()
	c.doc.Scenes = []source.Scene{{Name: name, Nodes: roots}}
	c.doc.Scene = 0
	c.animation()

	buf := &c.doc.Buffers[0]
	buf.Data = c.data
	buf.ByteLength = len(c.data)
	return c.doc, nil
}

type rsmConverter struct {
	rsm  *RSM
	doc  *source.Document
	data []byte
	mats map[int]int // RSM texture index -> material index
}

func (c *rsmConverter) textures() {
	c.doc.Samplers = []source.Sampler{{MagFilter: 9729, MinFilter: 9987, WrapS: 10497, WrapT: 10497}}
	for i, name := range c.rsm.Textures {
		c.doc.Images = append(c.doc.Images, source.Image{
			Name:       name,
			URI:        TextureURI(name),
			BufferView: -1,
			ColorKey:   true,
		})
		c.doc.Textures = append(c.doc.Textures, source.Texture{Name: name, Source: i, Sampler: 0})
	}
}

func (c *rsmConverter) material(texture int, twoSided bool) int {
	if idx, ok := c.mats[texture]; ok {
		if twoSided {
			c.doc.Materials[idx].DoubleSided = true
		}
		return idx
	}
	m := source.DefaultMaterial()
	m.Name = c.rsm.Textures[texture]
	m.MetallicFactor = 0
	m.Textures[asset.RoleBaseColor] = source.TextureRef{Texture: texture}
	m.AlphaMode = asset.AlphaMask
	if c.rsm.Alpha < 1 {
		m.AlphaMode = asset.AlphaBlend
		m.BaseColorFactor[3] = c.rsm.Alpha
	}
	m.DoubleSided = twoSided
	c.doc.Materials = append(c.doc.Materials, m)
	c.mats[texture] = len(c.doc.Materials) - 1
	return len(c.doc.Materials) - 1
}

// view appends b to the buffer as a new 4-byte aligned buffer view.
func (c *rsmConverter) view(b []byte) int {
	for len(c.data)%4 != 0 {
		c.data = append(c.data, 0)
	}
	c.doc.BufferViews = append(c.doc.BufferViews, source.BufferView{
		Buffer:     0,
		ByteOffset: len(c.data),
		ByteLength: len(b),
	})
	c.data = append(c.data, b...)
	return len(c.doc.BufferViews) - 1
}

func (c *rsmConverter) accessor(b []byte, ct asset.ComponentType, typ source.AccessorType, normalized bool, count int) int {
	c.doc.Accessors = append(c.doc.Accessors, source.Accessor{
		BufferView:    c.view(b),
		ComponentType: ct,
		Normalized:    normalized,
		Count:         count,
		Type:          typ,
	})
	return len(c.doc.Accessors) - 1
}

type corner struct {
	vertex, texcoord uint16
}

type rsmPrimitive struct {
	texture  int
	twoSided bool
	corners  map[corner]uint32
	order    []corner
	normals  [][3]float32
	indices  []uint32
}

func (c *rsmConverter) node(i int) (source.Node, error) {
	rn := &c.rsm.Nodes[i]
	n := source.NewNode(rn.Name)
	n.Translation = rn.Position
	n.Scale = rn.Scale
	n.Rotation = nodeRotation(rn)

	if len(rn.Faces) == 0 {
		return n, nil
	}

	bake := math.Translate(rn.Offset[0], rn.Offset[1], rn.Offset[2]).Mul(math.FromMat3x3(rn.Matrix))
	positions := make([][3]float32, len(rn.Vertices))
	for v, p := range rn.Vertices {
		positions[v] = bake.TransformPoint(p)
	}

	prims := map[int]*rsmPrimitive{}
	var textures []int
	for fi := range rn.Faces {
		f := &rn.Faces[fi]
		if int(f.TextureID) >= len(rn.TextureIDs) {
			return n, fmt.Errorf("%w: face %d texture %d (node has %d)",
				asset.ErrOutOfRangeReference, fi, f.TextureID, len(rn.TextureIDs))
		}
		tex := int(rn.TextureIDs[f.TextureID])
		if tex < 0 || tex >= len(c.rsm.Textures) {
			return n, fmt.Errorf("%w: face %d model texture %d (have %d)",
				asset.ErrOutOfRangeReference, fi, tex, len(c.rsm.Textures))
		}
		for k := 0; k < 3; k++ {
			if int(f.VertexIDs[k]) >= len(rn.Vertices) {
				return n, fmt.Errorf("%w: face %d vertex %d (have %d)",
					asset.ErrOutOfRangeReference, fi, f.VertexIDs[k], len(rn.Vertices))
			}
			if int(f.TexCoordIDs[k]) >= len(rn.TexCoords) {
				return n, fmt.Errorf("%w: face %d texcoord %d (have %d)",
					asset.ErrOutOfRangeReference, fi, f.TexCoordIDs[k], len(rn.TexCoords))
			}
		}

		p := prims[tex]
		if p == nil {
			p = &rsmPrimitive{texture: tex, corners: map[corner]uint32{}}
			prims[tex] = p
			textures = append(textures, tex)
		}
		p.twoSided = p.twoSided || f.TwoSide != 0

		a := math.V3(positions[f.VertexIDs[0]])
		b := math.V3(positions[f.VertexIDs[1]])
		e := math.V3(positions[f.VertexIDs[2]])
		normal := b.Sub(a).Cross(e.Sub(a))

		for k := 0; k < 3; k++ {
			key := corner{f.VertexIDs[k], f.TexCoordIDs[k]}
			idx, ok := p.corners[key]
			if !ok {
				idx = uint32(len(p.order))
				p.corners[key] = idx
				p.order = append(p.order, key)
				p.normals = append(p.normals, [3]float32{})
			}
			// Area-weighted accumulation; normalized after all faces are seen.
			p.normals[idx] = math.V3(p.normals[idx]).Add(normal).Array()
			p.indices = append(p.indices, idx)
		}
	}

	mesh := source.Mesh{Name: rn.Name}
	for _, tex := range textures {
		mesh.Primitives = append(mesh.Primitives, c.primitive(rn, positions, prims[tex]))
	}
	c.doc.Meshes = append(c.doc.Meshes, mesh)
	n.Mesh = len(c.doc.Meshes) - 1
	return n, nil
}

func (c *rsmConverter) primitive(rn *RSMNode, positions [][3]float32, p *rsmPrimitive) source.Primitive {
	count := len(p.order)
	pos := make([]float32, 0, count*3)
	nrm := make([]float32, 0, count*3)
	uv := make([]float32, 0, count*2)
	col := make([]byte, 0, count*4)
	minP := [3]float32{gomath.MaxFloat32, gomath.MaxFloat32, gomath.MaxFloat32}
	maxP := [3]float32{-gomath.MaxFloat32, -gomath.MaxFloat32, -gomath.MaxFloat32}

	for i, k := range p.order {
		v := positions[k.vertex]
		pos = append(pos, v[0], v[1], v[2])
		for j := 0; j < 3; j++ {
			minP[j] = min(minP[j], v[j])
			maxP[j] = max(maxP[j], v[j])
		}
		n := math.V3(p.normals[i]).Normalize()
		nrm = append(nrm, n.X, n.Y, n.Z)
		tc := rn.TexCoords[k.texcoord]
		uv = append(uv, tc.U, tc.V)
		// Stored as BGRA.
		col = append(col, tc.Color[2], tc.Color[1], tc.Color[0], tc.Color[3])
	}

	idx := make([]byte, len(p.indices)*4)
	for i, v := range p.indices {
		binary.LittleEndian.PutUint32(idx[i*4:], v)
	}

	posAcc := c.accessor(asset.EncodeFloats(pos), asset.ComponentFloat, source.TypeVec3, false, count)
	c.doc.Accessors[posAcc].Min = minP[:]
	c.doc.Accessors[posAcc].Max = maxP[:]

	return source.Primitive{
		Attributes: map[asset.Semantic]int{
			asset.SemanticPosition:  posAcc,
			asset.SemanticNormal:    c.accessor(asset.EncodeFloats(nrm), asset.ComponentFloat, source.TypeVec3, false, count),
			asset.SemanticTexCoord0: c.accessor(asset.EncodeFloats(uv), asset.ComponentFloat, source.TypeVec2, false, count),
			asset.SemanticColor0:    c.accessor(col, asset.ComponentUnsignedByte, source.TypeVec4, true, count),
		},
		Indices:  c.accessor(idx, asset.ComponentUnsignedInt, source.TypeScalar, false, len(p.indices)),
		Material: c.material(p.texture, p.twoSided),
		Mode:     source.ModeTriangles,
	}
}

// nodeRotation returns the rest rotation: the first rotation key when the
// node is animated, otherwise its axis-angle rotation.
func nodeRotation(rn *RSMNode) math.Quat {
	if len(rn.RotKeys) > 0 {
		q := rn.RotKeys[0].Quaternion
		return math.Quat{X: q[0], Y: q[1], Z: q[2], W: q[3]}.Normalize()
	}
	axis := math.V3(rn.RotAxis)
	if rn.RotAngle == 0 || axis.Length() < 1e-6 {
		return math.QuatIdentity()
	}
	return math.QuatFromAxisAngle(axis.Normalize(), rn.RotAngle)
}

// link resolves parent names into child lists and returns the parentless nodes.
func (c *rsmConverter) link() []int {
	var roots []int
	for i := range c.rsm.Nodes {
		rn := &c.rsm.Nodes[i]
		parent := -1
		if rn.Parent != "" && rn.Parent != rn.Name {
			parent = c.rsm.NodeIndex(rn.Parent)
		}
		if parent < 0 {
			roots = append(roots, i)
			continue
		}
		c.doc.Nodes[parent].Children = append(c.doc.Nodes[parent].Children, i)
	}
	// The declared root node goes first.
	if r := c.rsm.NodeIndex(c.rsm.RootNode); r >= 0 {
		if at := slices.Index(roots, r); at > 0 {
			roots = append([]int{r}, slices.Delete(roots, at, at+1)...)
		}
	}
	return roots
}

// animation converts keyframes into one animation with a channel per node
// and property. Frame numbers are milliseconds.
func (c *rsmConverter) animation() {
	anim := source.Animation{Name: "default"}
	add := func(node int, path string, times []float32, values []float32, typ source.AccessorType) {
		in := c.accessor(asset.EncodeFloats(times), asset.ComponentFloat, source.TypeScalar, false, len(times))
		out := c.accessor(asset.EncodeFloats(values), asset.ComponentFloat, typ, false, len(times))
		c.doc.Accessors[in].Min = []float32{times[0]}
		c.doc.Accessors[in].Max = []float32{times[len(times)-1]}
		anim.Samplers = append(anim.Samplers, source.AnimationSampler{Input: in, Output: out, Interpolation: "LINEAR"})
		anim.Channels = append(anim.Channels, source.AnimationChannel{Node: node, Path: path, Sampler: len(anim.Samplers) - 1})
	}

	for i := range c.rsm.Nodes {
		rn := &c.rsm.Nodes[i]
		if len(rn.PosKeys) > 0 {
			var times, values []float32
			for _, k := range rn.PosKeys {
				times = append(times, float32(k.Frame)/1000)
				values = append(values, k.Position[:]...)
			}
			add(i, "translation", times, values, source.TypeVec3)
		}
		if len(rn.RotKeys) > 0 {
			var times, values []float32
			for _, k := range rn.RotKeys {
				times = append(times, float32(k.Frame)/1000)
				q := math.Quat{X: k.Quaternion[0], Y: k.Quaternion[1], Z: k.Quaternion[2], W: k.Quaternion[3]}.Normalize()
				values = append(values, q.X, q.Y, q.Z, q.W)
			}
			add(i, "rotation", times, values, source.TypeVec4)
		}
		if len(rn.ScaleKeys) > 0 {
			var times, values []float32
			for _, k := range rn.ScaleKeys {
				times = append(times, float32(k.Frame)/1000)
				values = append(values, k.Scale[:]...)
			}
			add(i, "scale", times, values, source.TypeVec3)
		}
	}
	if len(anim.Channels) > 0 {
		c.doc.Animations = append(c.doc.Animations, anim)
	}
}
