package source

import (
	"fmt"
	"slices"

	"github.com/Faultbox/assetforge/pkg/asset"
)

// Validate checks every cross-reference, byte range and the node hierarchy of
// d. Required extensions must appear in supported.
func Validate(d *Document, supported []string) error {
	v := validator{doc: d}
	checks := []func() error{
		func() error { return v.extensions(supported) },
		v.buffers,
		v.bufferViews,
		v.accessors,
		v.images,
		v.textures,
		v.shaders,
		v.materials,
		func() error { return v.meshes(supported) },
		v.nodes,
		v.scenes,
		v.animations,
		v.hierarchy,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type validator struct {
	doc *Document
}

func (v *validator) ref(what string, index, n int, optional bool) error {
	if optional && index == -1 {
		return nil
	}
	if index < 0 || index >= n {
		return outOfRange(what, index, n)
	}
	return nil
}

func (v *validator) extensions(supported []string) error {
	for _, ext := range v.doc.ExtensionsRequired {
		if !slices.Contains(supported, ext) {
			return fmt.Errorf("%w: %s", asset.ErrUnsupportedExtension, ext)
		}
	}
	return nil
}

func (v *validator) buffers() error {
	for i := range v.doc.Buffers {
		b := &v.doc.Buffers[i]
		if b.ByteLength < 0 || len(b.Data) < b.ByteLength {
			return rangeError("buffer %d holds %d bytes, declares %d", i, len(b.Data), b.ByteLength)
		}
	}
	return nil
}

func (v *validator) bufferViews() error {
	for i := range v.doc.BufferViews {
		if _, err := v.doc.ViewBytes(i); err != nil {
			return err
		}
		if s := v.doc.BufferViews[i].ByteStride; s != 0 && (s < 4 || s > 252) {
			return fmt.Errorf("%w: bufferView %d has stride %d", asset.ErrMalformedDocument, i, s)
		}
	}
	return nil
}

func (v *validator) accessors() error {
	for i := range v.doc.Accessors {
		acc := &v.doc.Accessors[i]
		if acc.ElementSize() == 0 {
			return fmt.Errorf("%w: accessor %d has invalid format %s/%s",
				asset.ErrMalformedDocument, i, acc.ComponentType, acc.Type)
		}
		if acc.Count < 0 {
			return fmt.Errorf("%w: accessor %d has negative count", asset.ErrMalformedDocument, i)
		}
		if err := v.ref("bufferView", acc.BufferView, len(v.doc.BufferViews), true); err != nil {
			return fmt.Errorf("accessor %d: %w", i, err)
		}
		if acc.BufferView >= 0 {
			if _, _, err := accessorSpan(v.doc, acc); err != nil {
				return fmt.Errorf("accessor %d: %w", i, err)
			}
		}
		if sp := acc.Sparse; sp != nil {
			if sp.Count > acc.Count {
				return fmt.Errorf("%w: accessor %d has %d sparse values for %d elements",
					asset.ErrMalformedDocument, i, sp.Count, acc.Count)
			}
			if err := applySparse(v.doc, acc, make([]byte, acc.Count*acc.ElementSize())); err != nil {
				return fmt.Errorf("accessor %d: %w", i, err)
			}
		}
	}
	return nil
}

func (v *validator) images() error {
	for i := range v.doc.Images {
		if err := v.ref("bufferView", v.doc.Images[i].BufferView, len(v.doc.BufferViews), true); err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
	}
	return nil
}

func (v *validator) textures() error {
	for i := range v.doc.Textures {
		t := &v.doc.Textures[i]
		if err := v.ref("image", t.Source, len(v.doc.Images), true); err != nil {
			return fmt.Errorf("texture %d: %w", i, err)
		}
		if err := v.ref("sampler", t.Sampler, len(v.doc.Samplers), true); err != nil {
			return fmt.Errorf("texture %d: %w", i, err)
		}
	}
	return nil
}

func (v *validator) shaders() error {
	for i := range v.doc.Shaders {
		if err := v.ref("bufferView", v.doc.Shaders[i].BufferView, len(v.doc.BufferViews), true); err != nil {
			return fmt.Errorf("shader %d: %w", i, err)
		}
	}
	return nil
}

func (v *validator) materials() error {
	for i := range v.doc.Materials {
		m := &v.doc.Materials[i]
		for role, tr := range m.Textures {
			if err := v.ref("texture", tr.Texture, len(v.doc.Textures), true); err != nil {
				return fmt.Errorf("material %d %s: %w", i, asset.TextureRole(role), err)
			}
		}
		if m.Shader != nil {
			if err := v.ref("shader", m.Shader.Shader, len(v.doc.Shaders), false); err != nil {
				return fmt.Errorf("material %d: %w", i, err)
			}
		}
	}
	return nil
}

func (v *validator) meshes(supported []string) error {
	for mi := range v.doc.Meshes {
		for pi := range v.doc.Meshes[mi].Primitives {
			if err := v.primitive(&v.doc.Meshes[mi].Primitives[pi], supported); err != nil {
				return fmt.Errorf("mesh %d primitive %d: %w", mi, pi, err)
			}
		}
	}
	return nil
}

func (v *validator) primitive(p *Primitive, supported []string) error {
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: primitive mode %d", asset.ErrMalformedDocument, p.Mode)
	}
	if err := v.ref("material", p.Material, len(v.doc.Materials), true); err != nil {
		return err
	}
	if err := v.ref("accessor", p.Indices, len(v.doc.Accessors), true); err != nil {
		return err
	}

	count := -1
	for _, sem := range p.Semantics() {
		idx := p.Attributes[sem]
		if !sem.Known() {
			return fmt.Errorf("%w: attribute %q", asset.ErrMalformedDocument, sem)
		}
		if err := v.ref("accessor", idx, len(v.doc.Accessors), false); err != nil {
			return fmt.Errorf("attribute %s: %w", sem, err)
		}
		n := v.doc.Accessors[idx].Count
		if count >= 0 && n != count {
			return fmt.Errorf("%w: attribute %s has %d elements, others have %d",
				asset.ErrMalformedDocument, sem, n, count)
		}
		count = n
	}

	if c := p.Compression; c != nil {
		if !slices.Contains(supported, c.Extension) {
			return fmt.Errorf("%w: %s", asset.ErrUnsupportedExtension, c.Extension)
		}
		return v.ref("bufferView", c.BufferView, len(v.doc.BufferViews), false)
	}

	if p.Indices >= 0 && count >= 0 {
		indices, err := ReadIndices(v.doc, p.Indices)
		if err != nil {
			return err
		}
		for i, idx := range indices {
			if int(idx) >= count {
				return rangeError("index %d at position %d exceeds vertex count %d", idx, i, count)
			}
		}
	}
	return nil
}

func (v *validator) nodes() error {
	for i := range v.doc.Nodes {
		n := &v.doc.Nodes[i]
		if err := v.ref("mesh", n.Mesh, len(v.doc.Meshes), true); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if err := v.ref("light", n.Light, len(v.doc.Lights), true); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		for _, c := range n.Children {
			if err := v.ref("node", c, len(v.doc.Nodes), false); err != nil {
				return fmt.Errorf("node %d child: %w", i, err)
			}
		}
	}
	return nil
}

func (v *validator) scenes() error {
	if err := v.ref("scene", v.doc.Scene, len(v.doc.Scenes), true); err != nil {
		return err
	}
	for i := range v.doc.Scenes {
		for _, n := range v.doc.Scenes[i].Nodes {
			if err := v.ref("node", n, len(v.doc.Nodes), false); err != nil {
				return fmt.Errorf("scene %d: %w", i, err)
			}
		}
	}
	return nil
}

func (v *validator) animations() error {
	for i := range v.doc.Animations {
		a := &v.doc.Animations[i]
		for si, s := range a.Samplers {
			if err := v.ref("accessor", s.Input, len(v.doc.Accessors), false); err != nil {
				return fmt.Errorf("animation %d sampler %d input: %w", i, si, err)
			}
			if err := v.ref("accessor", s.Output, len(v.doc.Accessors), false); err != nil {
				return fmt.Errorf("animation %d sampler %d output: %w", i, si, err)
			}
		}
		for ci, c := range a.Channels {
			if err := v.ref("node", c.Node, len(v.doc.Nodes), false); err != nil {
				return fmt.Errorf("animation %d channel %d: %w", i, ci, err)
			}
			if err := v.ref("sampler", c.Sampler, len(a.Samplers), false); err != nil {
				return fmt.Errorf("animation %d channel %d: %w", i, ci, err)
			}
			switch c.Path {
			case "translation", "rotation", "scale", "weights":
			default:
				return fmt.Errorf("%w: animation %d channel %d path %q", asset.ErrMalformedDocument, i, ci, c.Path)
			}
		}
	}
	return nil
}

// hierarchy rejects nodes with more than one parent and any cycle, including
// cycles unreachable from a root.
func (v *validator) hierarchy() error {
	parent := make([]int, len(v.doc.Nodes))
	for i := range parent {
		parent[i] = -1
	}
	for i := range v.doc.Nodes {
		for _, c := range v.doc.Nodes[i].Children {
			if c == i {
				return fmt.Errorf("%w: node %d is its own child (cycle)", asset.ErrMalformedDocument, i)
			}
			if parent[c] >= 0 {
				if parent[c] == i {
					return fmt.Errorf("%w: node %d lists child %d twice", asset.ErrMalformedDocument, i, c)
				}
				return fmt.Errorf("%w: node %d has parents %d and %d", asset.ErrMalformedDocument, c, parent[c], i)
			}
			parent[c] = i
		}
	}

	done := make([]bool, len(v.doc.Nodes))
	walk := func(start int) error {
		visited := map[int]bool{}
		stack := []int{start}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[n] {
				return fmt.Errorf("%w: node hierarchy has a cycle through node %d", asset.ErrMalformedDocument, n)
			}
			visited[n] = true
			done[n] = true
			stack = append(stack, v.doc.Nodes[n].Children...)
		}
		return nil
	}

	for i := range v.doc.Nodes {
		if parent[i] == -1 {
			if err := walk(i); err != nil {
				return err
			}
		}
	}
	for i := range v.doc.Nodes {
		if !done[i] {
			if err := walk(i); err != nil {
				return err
			}
		}
	}
	return nil
}
