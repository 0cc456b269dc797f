// Package scene assembles processed meshes, textures and shaders with the
// source document's materials, hierarchy and animations into an immutable
// asset.Scene.
package scene

import (
	"fmt"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/source"
)

// PrimitiveKey names one primitive of one source mesh.
type PrimitiveKey struct {
	Mesh      int
	Primitive int
}

// TextureKey names one source texture decoded for one material role.
type TextureKey struct {
	Texture int
	Role    asset.TextureRole
}

// Inputs are the results of the pipeline tasks.
type Inputs struct {
	Meshes   map[PrimitiveKey]*asset.Primitive
	Textures map[TextureKey]*asset.Texture
	// Shaders holds compiled permutations by cache key.
	Shaders map[string]*asset.Shader
	// MaterialShaders maps a material index to its permutation key.
	MaterialShaders map[int]string
}

// Assemble builds the scene. Textures and shaders with equal content hashes
// share one entry, in first-reference order. Primitives with a non-triangle
// topology are not part of the scene.
func Assemble(doc *source.Document, in Inputs) (*asset.Scene, error) {
	a := &assembler{
		doc: doc,
		in:  in,
		scene: &asset.Scene{
			Name:     doc.Name,
			Textures: []asset.Texture{},
			Shaders:  []asset.Shader{},
		},
		textures: make(map[string]int),
		shaders:  make(map[string]int),
	}
	steps := []func() error{
		a.materials,
		a.meshes,
		a.lights,
		a.nodes,
		a.roots,
		a.animations,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return a.scene, nil
}

type assembler struct {
	doc   *source.Document
	in    Inputs
	scene *asset.Scene

	textures map[string]int // content hash -> scene index
	shaders  map[string]int
}

func unresolved(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{asset.ErrUnresolvedReference}, args...)...)
}

func (a *assembler) materials() error {
	a.scene.Materials = make([]asset.Material, len(a.doc.Materials))
	for i := range a.doc.Materials {
		src := &a.doc.Materials[i]
		m := asset.Material{
			Name:              src.Name,
			BaseColorFactor:   src.BaseColorFactor,
			MetallicFactor:    src.MetallicFactor,
			RoughnessFactor:   src.RoughnessFactor,
			EmissiveFactor:    src.EmissiveFactor,
			EmissiveStrength:  src.EmissiveStrength,
			NormalScale:       src.NormalScale,
			OcclusionStrength: src.OcclusionStrength,
			AlphaMode:         src.AlphaMode,
			AlphaCutoff:       src.AlphaCutoff,
			DoubleSided:       src.DoubleSided,
			Shader:            -1,
		}
		for role := range asset.RoleCount {
			m.Textures[role] = -1
			t := src.Textures[role].Texture
			if t < 0 {
				continue
			}
			idx, err := a.texture(TextureKey{Texture: t, Role: role})
			if err != nil {
				return fmt.Errorf("material %d (%q) %s: %w", i, src.Name, role, err)
			}
			m.Textures[role] = idx
		}
		if src.Shader != nil {
			idx, err := a.shader(i)
			if err != nil {
				return fmt.Errorf("material %d (%q): %w", i, src.Name, err)
			}
			m.Shader = idx
		}
		a.scene.Materials[i] = m
	}
	return nil
}

func (a *assembler) texture(key TextureKey) (int, error) {
	tex := a.in.Textures[key]
	if tex == nil {
		return -1, unresolved("texture %d has no decoded %s image", key.Texture, key.Role)
	}
	if idx, ok := a.textures[tex.ContentHash]; ok {
		return idx, nil
	}
	idx := len(a.scene.Textures)
	a.scene.Textures = append(a.scene.Textures, *tex)
	a.textures[tex.ContentHash] = idx
	return idx, nil
}

func (a *assembler) shader(material int) (int, error) {
	key, ok := a.in.MaterialShaders[material]
	if !ok {
		return -1, unresolved("no shader permutation")
	}
	s := a.in.Shaders[key]
	if s == nil {
		return -1, unresolved("shader permutation %q was not compiled", key)
	}
	if idx, ok := a.shaders[s.ContentHash]; ok {
		return idx, nil
	}
	idx := len(a.scene.Shaders)
	a.scene.Shaders = append(a.scene.Shaders, *s)
	a.shaders[s.ContentHash] = idx
	return idx, nil
}

func (a *assembler) meshes() error {
	a.scene.Meshes = make([]asset.Mesh, len(a.doc.Meshes))
	for mi := range a.doc.Meshes {
		src := &a.doc.Meshes[mi]
		mesh := asset.Mesh{Name: src.Name}
		for pi := range src.Primitives {
			sp := &src.Primitives[pi]
			if !sp.Mode.Triangles() {
				continue
			}
			prim := a.in.Meshes[PrimitiveKey{mi, pi}]
			if prim == nil {
				return unresolved("mesh %d (%q) primitive %d was not processed", mi, src.Name, pi)
			}
			if sp.Material >= len(a.scene.Materials) {
				return unresolved("mesh %d primitive %d material %d", mi, pi, sp.Material)
			}
			p := *prim
			p.Material = sp.Material
			mesh.Primitives = append(mesh.Primitives, p)
		}
		a.scene.Meshes[mi] = mesh
	}
	return nil
}

func (a *assembler) lights() error {
	a.scene.Lights = make([]asset.Light, len(a.doc.Lights))
	for i, l := range a.doc.Lights {
		a.scene.Lights[i] = asset.Light(l)
	}
	return nil
}

func (a *assembler) nodes() error {
	n := len(a.doc.Nodes)
	nodes := make([]asset.Node, n)
	for i := range a.doc.Nodes {
		src := &a.doc.Nodes[i]
		if src.Mesh >= len(a.scene.Meshes) {
			return unresolved("node %d (%q) mesh %d", i, src.Name, src.Mesh)
		}
		if src.Light >= len(a.scene.Lights) {
			return unresolved("node %d (%q) light %d", i, src.Name, src.Light)
		}
		nodes[i] = asset.Node{
			Name:     src.Name,
			Parent:   -1,
			Children: append([]int(nil), src.Children...),
			Mesh:     src.Mesh,
			Light:    src.Light,
			Local:    src.LocalMatrix(),
		}
	}
	for i := range nodes {
		for _, c := range nodes[i].Children {
			if c < 0 || c >= n {
				return unresolved("node %d child %d", i, c)
			}
			nodes[c].Parent = i
		}
	}

	done := make([]bool, n)
	var world func(i, depth int) (math.Mat4, error)
	world = func(i, depth int) (math.Mat4, error) {
		if done[i] {
			return nodes[i].World, nil
		}
		if depth > n {
			return math.Mat4{}, fmt.Errorf("%w: node %d is part of a cycle", asset.ErrMalformedDocument, i)
		}
		w := nodes[i].Local
		if p := nodes[i].Parent; p >= 0 {
			pw, err := world(p, depth+1)
			if err != nil {
				return w, err
			}
			w = pw.Mul(w)
		}
		nodes[i].World = w
		done[i] = true
		return w, nil
	}
	for i := range nodes {
		if _, err := world(i, 0); err != nil {
			return err
		}
	}
	a.scene.Nodes = nodes
	return nil
}

func (a *assembler) roots() error {
	if s := a.doc.Scene; s >= 0 {
		if s >= len(a.doc.Scenes) {
			return unresolved("default scene %d", s)
		}
		a.scene.Roots = append([]int{}, a.doc.Scenes[s].Nodes...)
		return nil
	}
	a.scene.Roots = []int{}
	for i := range a.scene.Nodes {
		if a.scene.Nodes[i].Parent < 0 {
			a.scene.Roots = append(a.scene.Roots, i)
		}
	}
	return nil
}

func (a *assembler) animations() error {
	a.scene.Animations = make([]asset.Animation, len(a.doc.Animations))
	for i := range a.doc.Animations {
		src := &a.doc.Animations[i]
		anim := asset.Animation{Name: src.Name, Channels: make([]asset.Channel, 0, len(src.Channels))}
		for ci, ch := range src.Channels {
			if ch.Sampler < 0 || ch.Sampler >= len(src.Samplers) {
				return unresolved("animation %d channel %d sampler %d", i, ci, ch.Sampler)
			}
			if ch.Node < 0 || ch.Node >= len(a.scene.Nodes) {
				return unresolved("animation %d channel %d node %d", i, ci, ch.Node)
			}
			smp := src.Samplers[ch.Sampler]
			times, err := source.ReadFloats(a.doc, smp.Input)
			if err != nil {
				return fmt.Errorf("animation %d channel %d input: %w", i, ci, err)
			}
			values, err := source.ReadFloats(a.doc, smp.Output)
			if err != nil {
				return fmt.Errorf("animation %d channel %d output: %w", i, ci, err)
			}
			interp := smp.Interpolation
			if interp == "" {
				interp = "LINEAR"
			}
			anim.Channels = append(anim.Channels, asset.Channel{
				Node:          ch.Node,
				Path:          ch.Path,
				Interpolation: interp,
				Times:         times,
				Values:        values,
				Components:    a.doc.Accessors[smp.Output].Type.Components(),
			})
		}
		a.scene.Animations[i] = anim
	}
	return nil
}
