package gltf

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/source"
)

// Encode writes d as a .gltf JSON document. Loaded buffers, images and
// shaders are embedded as base64 data URIs; unloaded ones keep their URI.
func Encode(d *source.Document) ([]byte, error) {
	doc, err := fromSource(d, false)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// EncodeGLB writes d as a .glb container. Buffer 0 becomes the BIN chunk.
func EncodeGLB(d *source.Document) ([]byte, error) {
	doc, err := fromSource(d, true)
	if err != nil {
		return nil, err
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	jsonData = pad(jsonData, ' ')

	var bin []byte
	if len(d.Buffers) > 0 && d.Buffers[0].Data != nil {
		bin = pad(d.Buffers[0].Data, 0)
	}

	total := glbHeaderLen + 8 + len(jsonData)
	if bin != nil {
		total += 8 + len(bin)
	}
	var buf bytes.Buffer
	buf.Grow(total)
	write := func(v uint32) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	write(glbMagic)
	write(glbVersion)
	write(uint32(total))
	write(uint32(len(jsonData)))
	write(glbChunkJSON)
	buf.Write(jsonData)
	if bin != nil {
		write(uint32(len(bin)))
		write(glbChunkBIN)
		buf.Write(bin)
	}
	return buf.Bytes(), nil
}

func pad(b []byte, fill byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, fill)
	}
	return b
}

func dataURI(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func optIndex(i int) *int {
	if i < 0 {
		return nil
	}
	return &i
}

func optTexture(r source.TextureRef) *textureInfo {
	if r.Texture < 0 {
		return nil
	}
	return &textureInfo{Index: r.Texture, TexCoord: r.TexCoord}
}

func ptr[T any](v T) *T { return &v }

func fromSource(d *source.Document, glb bool) (*document, error) {
	out := &document{
		Asset:              docAsset{Version: d.Asset.Version, Generator: d.Asset.Generator},
		Scene:              optIndex(d.Scene),
		ExtensionsRequired: d.ExtensionsRequired,
		Extensions:         extensionMap{},
	}
	if out.Asset.Version == "" {
		out.Asset.Version = "2.0"
	}
	used := slices.Clone(d.ExtensionsUsed)
	addExt := func(doc extensionMap, name string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		doc[name] = raw
		if !slices.Contains(used, name) {
			used = append(used, name)
		}
		return nil
	}

	for i, b := range d.Buffers {
		ob := buffer{Name: b.Name, URI: b.URI, ByteLength: b.ByteLength}
		switch {
		case b.Data != nil && glb && i == 0:
			ob.URI = ""
		case b.Data != nil:
			ob.URI = dataURI("", b.Data)
		}
		out.Buffers = append(out.Buffers, ob)
	}
	for _, v := range d.BufferViews {
		bv := bufferView{Buffer: v.Buffer, ByteOffset: v.ByteOffset, ByteLength: v.ByteLength}
		if v.ByteStride > 0 {
			bv.ByteStride = ptr(v.ByteStride)
		}
		out.BufferViews = append(out.BufferViews, bv)
	}
	for _, a := range d.Accessors {
		oa := accessor{
			Name:          a.Name,
			BufferView:    optIndex(a.BufferView),
			ByteOffset:    a.ByteOffset,
			ComponentType: int(a.ComponentType),
			Normalized:    a.Normalized,
			Count:         ptr(a.Count),
			Type:          string(a.Type),
			Min:           a.Min,
			Max:           a.Max,
		}
		if sp := a.Sparse; sp != nil {
			oa.Sparse = &accessorSparse{
				Count: sp.Count,
				Indices: sparseIndices{
					BufferView:    sp.IndicesView,
					ByteOffset:    sp.IndicesByteOffset,
					ComponentType: int(sp.IndicesComponent),
				},
				Values: sparseValues{BufferView: sp.ValuesView, ByteOffset: sp.ValuesByteOffset},
			}
		}
		out.Accessors = append(out.Accessors, oa)
	}

	for _, m := range d.Meshes {
		om := mesh{Name: m.Name}
		for _, p := range m.Primitives {
			op := primitive{
				Attributes: make(map[string]int, len(p.Attributes)),
				Indices:    optIndex(p.Indices),
				Material:   optIndex(p.Material),
			}
			if p.Mode != source.ModeTriangles {
				op.Mode = ptr(int(p.Mode))
			}
			for sem, acc := range p.Attributes {
				op.Attributes[string(sem)] = acc
			}
			if c := p.Compression; c != nil {
				ext := compressionExt{BufferView: c.BufferView, ByteLength: c.ByteLength, Attributes: map[string]int{}}
				for sem, id := range c.Attributes {
					ext.Attributes[string(sem)] = id
				}
				op.Extensions = extensionMap{}
				if err := addExt(op.Extensions, c.Extension, ext); err != nil {
					return nil, err
				}
			}
			om.Primitives = append(om.Primitives, op)
		}
		out.Meshes = append(out.Meshes, om)
	}

	for _, m := range d.Materials {
		om := material{
			Name: m.Name,
			PbrMetallicRoughness: &pbrMetallicRoughness{
				BaseColorFactor:          ptr(m.BaseColorFactor),
				BaseColorTexture:         optTexture(m.Textures[asset.RoleBaseColor]),
				MetallicFactor:           ptr(m.MetallicFactor),
				RoughnessFactor:          ptr(m.RoughnessFactor),
				MetallicRoughnessTexture: optTexture(m.Textures[asset.RoleMetallicRoughness]),
			},
			EmissiveTexture: optTexture(m.Textures[asset.RoleEmissive]),
			EmissiveFactor:  ptr(m.EmissiveFactor),
			AlphaMode:       string(m.AlphaMode),
			AlphaCutoff:     ptr(m.AlphaCutoff),
			DoubleSided:     m.DoubleSided,
		}
		if t := optTexture(m.Textures[asset.RoleNormal]); t != nil {
			om.NormalTexture = &normalTextureInfo{textureInfo: *t, Scale: ptr(m.NormalScale)}
		}
		if t := optTexture(m.Textures[asset.RoleOcclusion]); t != nil {
			om.OcclusionTexture = &occlusionTextureInfo{textureInfo: *t, Strength: ptr(m.OcclusionStrength)}
		}
		ext := extensionMap{}
		if m.EmissiveStrength != 1 {
			if err := addExt(ext, extEmissiveStrength, emissiveStrengthExt{EmissiveStrength: m.EmissiveStrength}); err != nil {
				return nil, err
			}
		}
		if m.Shader != nil {
			if err := addExt(ext, ExtShaders, materialShaderExt{Shader: m.Shader.Shader, Defines: m.Shader.Defines}); err != nil {
				return nil, err
			}
		}
		if len(ext) > 0 {
			om.Extensions = ext
		}
		out.Materials = append(out.Materials, om)
	}

	for _, t := range d.Textures {
		out.Textures = append(out.Textures, texture{Name: t.Name, Source: optIndex(t.Source), Sampler: optIndex(t.Sampler)})
	}
	for _, img := range d.Images {
		oi := image{Name: img.Name, URI: img.URI, MimeType: img.MimeType, BufferView: optIndex(img.BufferView)}
		if img.BufferView < 0 && img.Data != nil {
			oi.URI = dataURI(img.MimeType, img.Data)
			oi.MimeType = ""
		}
		out.Images = append(out.Images, oi)
	}
	for _, s := range d.Samplers {
		out.Samplers = append(out.Samplers, sampler{
			MagFilter: optIndex(nonZero(s.MagFilter)),
			MinFilter: optIndex(nonZero(s.MinFilter)),
			WrapS:     ptr(s.WrapS),
			WrapT:     ptr(s.WrapT),
		})
	}

	if len(d.Shaders) > 0 {
		var ext shadersExt
		for _, s := range d.Shaders {
			src := shaderSource{Name: s.Name, URI: s.URI, BufferView: optIndex(s.BufferView)}
			if s.BufferView < 0 && s.Code != "" {
				src.URI = dataURI("text/wgsl", []byte(s.Code))
			}
			ext.Shaders = append(ext.Shaders, src)
		}
		if err := addExt(out.Extensions, ExtShaders, ext); err != nil {
			return nil, err
		}
	}
	if len(d.Lights) > 0 {
		var ext lightsExt
		for _, l := range d.Lights {
			ol := light{Name: l.Name, Type: string(l.Type), Color: ptr(l.Color), Intensity: ptr(l.Intensity)}
			if l.Range > 0 {
				ol.Range = ptr(l.Range)
			}
			if l.Type == asset.LightSpot {
				ol.Spot = &spot{InnerConeAngle: ptr(l.InnerConeAngle), OuterConeAngle: ptr(l.OuterConeAngle)}
			}
			ext.Lights = append(ext.Lights, ol)
		}
		if err := addExt(out.Extensions, extLights, ext); err != nil {
			return nil, err
		}
	}

	for _, n := range d.Nodes {
		on := node{Name: n.Name, Children: n.Children, Mesh: optIndex(n.Mesh)}
		if n.Matrix != nil {
			on.Matrix = ptr([16]float32(*n.Matrix))
		} else {
			on.Translation = ptr(n.Translation)
			on.Rotation = ptr(n.Rotation.Array())
			on.Scale = ptr(n.Scale)
		}
		if n.Light >= 0 {
			on.Extensions = extensionMap{}
			if err := addExt(on.Extensions, extLights, nodeLightExt{Light: n.Light}); err != nil {
				return nil, err
			}
		}
		out.Nodes = append(out.Nodes, on)
	}
	for _, s := range d.Scenes {
		out.Scenes = append(out.Scenes, scene{Name: s.Name, Nodes: s.Nodes})
	}
	for _, a := range d.Animations {
		oa := animation{Name: a.Name}
		for _, s := range a.Samplers {
			oa.Samplers = append(oa.Samplers, animSampler{Input: s.Input, Output: s.Output, Interpolation: s.Interpolation})
		}
		for _, ch := range a.Channels {
			oa.Channels = append(oa.Channels, animChannel{Sampler: ch.Sampler, Target: animTarget{Node: ptr(ch.Node), Path: ch.Path}})
		}
		out.Animations = append(out.Animations, oa)
	}

	if len(out.Extensions) == 0 {
		out.Extensions = nil
	}
	slices.Sort(used)
	out.ExtensionsUsed = used
	return out, nil
}

func nonZero(v int) int {
	if v == 0 {
		return -1
	}
	return v
}
