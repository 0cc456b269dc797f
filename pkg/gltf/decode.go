// Package gltf reads and writes glTF 2.0 documents (.gltf JSON and .glb
// binary) and translates them to and from source.Document.
package gltf

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/source"
)

var (
	errInvalidVersion    = errors.New("invalid glTF version: must be 2.x")
	errInvalidGLBMagic   = errors.New("invalid GLB magic number")
	errInvalidGLBVersion = errors.New("invalid GLB version: must be 2")
	errMissingJSONChunk  = errors.New("GLB file missing JSON chunk")
	errInvalidDataURI    = errors.New("invalid data URI")
)

func malformed(err error) error {
	return fmt.Errorf("%w: %w", asset.ErrMalformedDocument, err)
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{asset.ErrMalformedDocument}, args...)...)
}

// IsGLB reports whether data starts with the GLB magic.
func IsGLB(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) == glbMagic
}

// Decode parses a .gltf or .glb document. Buffers, images and shaders with
// external URIs are left unloaded; their URI is kept for the caller to resolve.
func Decode(data []byte) (*source.Document, error) {
	jsonData := data
	var bin []byte
	if IsGLB(data) {
		var err error
		jsonData, bin, err = splitGLB(data)
		if err != nil {
			return nil, malformed(err)
		}
	}

	var doc document
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, malformed(fmt.Errorf("parse glTF JSON: %w", err))
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, malformed(errInvalidVersion)
	}

	c := converter{in: &doc, bin: bin, out: source.New("")}
	if err := c.convert(); err != nil {
		return nil, err
	}
	return c.out, nil
}

// splitGLB returns the JSON and optional BIN chunk of a GLB container.
func splitGLB(data []byte) (jsonChunk, binChunk []byte, err error) {
	if len(data) < glbHeaderLen {
		return nil, nil, errors.New("GLB file too small")
	}
	if binary.LittleEndian.Uint32(data[0:]) != glbMagic {
		return nil, nil, errInvalidGLBMagic
	}
	if binary.LittleEndian.Uint32(data[4:]) != glbVersion {
		return nil, nil, errInvalidGLBVersion
	}
	total := int(binary.LittleEndian.Uint32(data[8:]))
	if total > len(data) {
		return nil, nil, fmt.Errorf("GLB header declares %d bytes, file has %d", total, len(data))
	}

	r := bytes.NewReader(data[glbHeaderLen:total])
	for {
		var hdr struct {
			Length uint32
			Type   uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, fmt.Errorf("read chunk header: %w", err)
		}
		if int64(hdr.Length) > int64(r.Len()) {
			return nil, nil, fmt.Errorf("chunk of %d bytes exceeds remaining %d", hdr.Length, r.Len())
		}
		chunk := make([]byte, hdr.Length)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, nil, fmt.Errorf("read chunk data: %w", err)
		}
		switch hdr.Type {
		case glbChunkJSON:
			if jsonChunk == nil {
				jsonChunk = chunk
			}
		case glbChunkBIN:
			if binChunk == nil {
				binChunk = chunk
			}
		}
	}
	if jsonChunk == nil {
		return nil, nil, errMissingJSONChunk
	}
	return jsonChunk, binChunk, nil
}

// DecodeDataURI decodes a base64 data URI: data:[<mediatype>];base64,<data>.
// It returns the media type and payload.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errInvalidDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errInvalidDataURI
	}
	mediaType, enc, _ := strings.Cut(header, ";")
	if enc != "base64" {
		return "", nil, fmt.Errorf("%w: unsupported encoding %q", errInvalidDataURI, header)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errInvalidDataURI, err)
	}
	return mediaType, data, nil
}

// IsDataURI reports whether uri embeds its payload.
func IsDataURI(uri string) bool {
	return strings.HasPrefix(uri, "data:")
}

type converter struct {
	in  *document
	bin []byte
	out *source.Document
}

func (c *converter) convert() error {
	d := c.out
	d.Asset = source.Asset{Version: c.in.Asset.Version, Generator: c.in.Asset.Generator}
	d.ExtensionsUsed = c.in.ExtensionsUsed
	d.ExtensionsRequired = c.in.ExtensionsRequired

	steps := []func() error{
		c.buffers,
		c.bufferViews,
		c.accessors,
		c.meshes,
		c.materials,
		c.textures,
		c.images,
		c.samplers,
		c.shaders,
		c.lights,
		c.nodes,
		c.scenes,
		c.animations,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func indexOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float32, def float32) float32 {
	if p == nil {
		return def
	}
	return *p
}

func (c *converter) buffers() error {
	for i, b := range c.in.Buffers {
		out := source.Buffer{Name: b.Name, URI: b.URI, ByteLength: b.ByteLength}
		switch {
		case IsDataURI(b.URI):
			_, data, err := DecodeDataURI(b.URI)
			if err != nil {
				return malformed(fmt.Errorf("buffer %d: %w", i, err))
			}
			out.Data = data
			out.URI = ""
		case b.URI == "":
			if i != 0 || c.bin == nil {
				return malformedf("buffer %d has no URI and no GLB binary chunk", i)
			}
			out.Data = c.bin
		}
		c.out.Buffers = append(c.out.Buffers, out)
	}
	return nil
}

func (c *converter) bufferViews() error {
	for _, v := range c.in.BufferViews {
		c.out.BufferViews = append(c.out.BufferViews, source.BufferView{
			Buffer:     v.Buffer,
			ByteOffset: v.ByteOffset,
			ByteLength: v.ByteLength,
			ByteStride: indexOr(v.ByteStride, 0),
		})
	}
	return nil
}

func componentType(v int) (asset.ComponentType, bool) {
	ct := asset.ComponentType(v)
	return ct, ct.Size() != 0
}

func (c *converter) accessors() error {
	for i, a := range c.in.Accessors {
		ct, ok := componentType(a.ComponentType)
		if !ok {
			return malformedf("accessor %d: unknown componentType %d", i, a.ComponentType)
		}
		typ := source.AccessorType(a.Type)
		if typ.Components() == 0 {
			return malformedf("accessor %d: unknown type %q", i, a.Type)
		}
		if a.Count == nil {
			return malformedf("accessor %d: missing count", i)
		}
		out := source.Accessor{
			Name:          a.Name,
			BufferView:    indexOr(a.BufferView, -1),
			ByteOffset:    a.ByteOffset,
			ComponentType: ct,
			Normalized:    a.Normalized,
			Count:         *a.Count,
			Type:          typ,
			Min:           a.Min,
			Max:           a.Max,
		}
		if sp := a.Sparse; sp != nil {
			ict, ok := componentType(sp.Indices.ComponentType)
			if !ok {
				return malformedf("accessor %d: unknown sparse componentType %d", i, sp.Indices.ComponentType)
			}
			out.Sparse = &source.Sparse{
				Count:             sp.Count,
				IndicesView:       sp.Indices.BufferView,
				IndicesByteOffset: sp.Indices.ByteOffset,
				IndicesComponent:  ict,
				ValuesView:        sp.Values.BufferView,
				ValuesByteOffset:  sp.Values.ByteOffset,
			}
		}
		c.out.Accessors = append(c.out.Accessors, out)
	}
	return nil
}

func (c *converter) accessorCount(index int) int {
	if index < 0 || index >= len(c.out.Accessors) {
		return 0
	}
	return c.out.Accessors[index].Count
}

func (c *converter) meshes() error {
	for mi, m := range c.in.Meshes {
		if len(m.Primitives) == 0 {
			return malformedf("mesh %d has no primitives", mi)
		}
		out := source.Mesh{Name: m.Name}
		for pi, p := range m.Primitives {
			prim := source.Primitive{
				Attributes: make(map[asset.Semantic]int, len(p.Attributes)),
				Indices:    indexOr(p.Indices, -1),
				Material:   indexOr(p.Material, -1),
				Mode:       source.PrimitiveMode(indexOr(p.Mode, int(source.ModeTriangles))),
			}
			for sem, acc := range p.Attributes {
				prim.Attributes[asset.Semantic(sem)] = acc
			}
			for _, name := range []string{ExtGeometryDeflate, extDraco} {
				raw, ok := p.Extensions[name]
				if !ok {
					continue
				}
				var ext compressionExt
				if err := json.Unmarshal(raw, &ext); err != nil {
					return malformed(fmt.Errorf("mesh %d primitive %d %s: %w", mi, pi, name, err))
				}
				comp := &source.Compression{
					Extension:  name,
					BufferView: ext.BufferView,
					Attributes: make(map[asset.Semantic]int, len(ext.Attributes)),
					ByteLength: ext.ByteLength,
				}
				if pos, ok := prim.Attributes[asset.SemanticPosition]; ok {
					comp.VertexCount = c.accessorCount(pos)
				}
				if prim.Indices >= 0 {
					comp.IndexCount = c.accessorCount(prim.Indices)
				}
				for sem, id := range ext.Attributes {
					comp.Attributes[asset.Semantic(sem)] = id
				}
				prim.Compression = comp
				break
			}
			out.Primitives = append(out.Primitives, prim)
		}
		c.out.Meshes = append(c.out.Meshes, out)
	}
	return nil
}

func textureRef(t *textureInfo) source.TextureRef {
	if t == nil {
		return source.TextureRef{Texture: -1}
	}
	return source.TextureRef{Texture: t.Index, TexCoord: t.TexCoord}
}

func (c *converter) materials() error {
	for i, m := range c.in.Materials {
		out := source.DefaultMaterial()
		out.Name = m.Name
		if pbr := m.PbrMetallicRoughness; pbr != nil {
			if pbr.BaseColorFactor != nil {
				out.BaseColorFactor = *pbr.BaseColorFactor
			}
			out.MetallicFactor = floatOr(pbr.MetallicFactor, 1)
			out.RoughnessFactor = floatOr(pbr.RoughnessFactor, 1)
			out.Textures[asset.RoleBaseColor] = textureRef(pbr.BaseColorTexture)
			out.Textures[asset.RoleMetallicRoughness] = textureRef(pbr.MetallicRoughnessTexture)
		}
		if n := m.NormalTexture; n != nil {
			out.Textures[asset.RoleNormal] = textureRef(&n.textureInfo)
			out.NormalScale = floatOr(n.Scale, 1)
		}
		if o := m.OcclusionTexture; o != nil {
			out.Textures[asset.RoleOcclusion] = textureRef(&o.textureInfo)
			out.OcclusionStrength = floatOr(o.Strength, 1)
		}
		out.Textures[asset.RoleEmissive] = textureRef(m.EmissiveTexture)
		if m.EmissiveFactor != nil {
			out.EmissiveFactor = *m.EmissiveFactor
		}
		switch asset.AlphaMode(m.AlphaMode) {
		case "":
		case asset.AlphaOpaque, asset.AlphaMask, asset.AlphaBlend:
			out.AlphaMode = asset.AlphaMode(m.AlphaMode)
		default:
			return malformedf("material %d: alphaMode %q", i, m.AlphaMode)
		}
		out.AlphaCutoff = floatOr(m.AlphaCutoff, 0.5)
		out.DoubleSided = m.DoubleSided

		if raw, ok := m.Extensions[extEmissiveStrength]; ok {
			var ext emissiveStrengthExt
			if err := json.Unmarshal(raw, &ext); err != nil {
				return malformed(fmt.Errorf("material %d %s: %w", i, extEmissiveStrength, err))
			}
			out.EmissiveStrength = ext.EmissiveStrength
		}
		if raw, ok := m.Extensions[ExtShaders]; ok {
			var ext materialShaderExt
			if err := json.Unmarshal(raw, &ext); err != nil {
				return malformed(fmt.Errorf("material %d %s: %w", i, ExtShaders, err))
			}
			out.Shader = &source.ShaderRef{Shader: ext.Shader, Defines: ext.Defines}
		}
		c.out.Materials = append(c.out.Materials, out)
	}
	return nil
}

func (c *converter) textures() error {
	for _, t := range c.in.Textures {
		c.out.Textures = append(c.out.Textures, source.Texture{
			Name:    t.Name,
			Source:  indexOr(t.Source, -1),
			Sampler: indexOr(t.Sampler, -1),
		})
	}
	return nil
}

func (c *converter) images() error {
	for i, img := range c.in.Images {
		out := source.Image{
			Name:       img.Name,
			URI:        img.URI,
			MimeType:   img.MimeType,
			BufferView: indexOr(img.BufferView, -1),
		}
		if out.BufferView < 0 && img.URI == "" {
			return malformedf("image %d has neither uri nor bufferView", i)
		}
		if IsDataURI(img.URI) {
			mt, data, err := DecodeDataURI(img.URI)
			if err != nil {
				return malformed(fmt.Errorf("image %d: %w", i, err))
			}
			out.Data = data
			out.URI = ""
			if out.MimeType == "" {
				out.MimeType = mt
			}
		}
		c.out.Images = append(c.out.Images, out)
	}
	return nil
}

func (c *converter) samplers() error {
	for _, s := range c.in.Samplers {
		c.out.Samplers = append(c.out.Samplers, source.Sampler{
			MagFilter: indexOr(s.MagFilter, 0),
			MinFilter: indexOr(s.MinFilter, 0),
			WrapS:     indexOr(s.WrapS, wrapRepeat),
			WrapT:     indexOr(s.WrapT, wrapRepeat),
		})
	}
	return nil
}

const wrapRepeat = 10497

func (c *converter) shaders() error {
	raw, ok := c.in.Extensions[ExtShaders]
	if !ok {
		return nil
	}
	var ext shadersExt
	if err := json.Unmarshal(raw, &ext); err != nil {
		return malformed(fmt.Errorf("%s: %w", ExtShaders, err))
	}
	for i, s := range ext.Shaders {
		out := source.ShaderSource{Name: s.Name, URI: s.URI, BufferView: indexOr(s.BufferView, -1)}
		if out.BufferView < 0 && s.URI == "" {
			return malformedf("shader %d has neither uri nor bufferView", i)
		}
		if IsDataURI(s.URI) {
			_, data, err := DecodeDataURI(s.URI)
			if err != nil {
				return malformed(fmt.Errorf("shader %d: %w", i, err))
			}
			out.Code = string(data)
			out.URI = ""
		}
		c.out.Shaders = append(c.out.Shaders, out)
	}
	return nil
}

func (c *converter) lights() error {
	raw, ok := c.in.Extensions[extLights]
	if !ok {
		return nil
	}
	var ext lightsExt
	if err := json.Unmarshal(raw, &ext); err != nil {
		return malformed(fmt.Errorf("%s: %w", extLights, err))
	}
	for i, l := range ext.Lights {
		out := source.Light{
			Name:      l.Name,
			Type:      asset.LightType(l.Type),
			Color:     [3]float32{1, 1, 1},
			Intensity: floatOr(l.Intensity, 1),
			Range:     floatOr(l.Range, 0),
		}
		switch out.Type {
		case asset.LightDirectional, asset.LightPoint, asset.LightSpot:
		default:
			return malformedf("light %d: type %q", i, l.Type)
		}
		if l.Color != nil {
			out.Color = *l.Color
		}
		if out.Type == asset.LightSpot {
			var sp spot
			if l.Spot != nil {
				sp = *l.Spot
			}
			out.InnerConeAngle = floatOr(sp.InnerConeAngle, 0)
			out.OuterConeAngle = floatOr(sp.OuterConeAngle, 0.7853982)
		}
		c.out.Lights = append(c.out.Lights, out)
	}
	return nil
}

func (c *converter) nodes() error {
	for i, n := range c.in.Nodes {
		out := source.NewNode(n.Name)
		out.Children = n.Children
		out.Mesh = indexOr(n.Mesh, -1)
		if n.Matrix != nil {
			m := math.Mat4(*n.Matrix)
			out.Matrix = &m
		}
		if n.Translation != nil {
			out.Translation = *n.Translation
		}
		if n.Rotation != nil {
			r := *n.Rotation
			out.Rotation = math.Quat{X: r[0], Y: r[1], Z: r[2], W: r[3]}
		}
		if n.Scale != nil {
			out.Scale = *n.Scale
		}
		if raw, ok := n.Extensions[extLights]; ok {
			var ext nodeLightExt
			if err := json.Unmarshal(raw, &ext); err != nil {
				return malformed(fmt.Errorf("node %d %s: %w", i, extLights, err))
			}
			out.Light = ext.Light
		}
		c.out.Nodes = append(c.out.Nodes, out)
	}
	return nil
}

func (c *converter) scenes() error {
	for _, s := range c.in.Scenes {
		c.out.Scenes = append(c.out.Scenes, source.Scene{Name: s.Name, Nodes: s.Nodes})
	}
	c.out.Scene = indexOr(c.in.Scene, -1)
	return nil
}

func (c *converter) animations() error {
	for i, a := range c.in.Animations {
		out := source.Animation{Name: a.Name}
		for _, s := range a.Samplers {
			interp := s.Interpolation
			if interp == "" {
				interp = "LINEAR"
			}
			out.Samplers = append(out.Samplers, source.AnimationSampler{
				Input:         s.Input,
				Output:        s.Output,
				Interpolation: interp,
			})
		}
		for ci, ch := range a.Channels {
			if ch.Target.Node == nil {
				return malformedf("animation %d channel %d has no target node", i, ci)
			}
			out.Channels = append(out.Channels, source.AnimationChannel{
				Node:    *ch.Target.Node,
				Path:    ch.Target.Path,
				Sampler: ch.Sampler,
			})
		}
		c.out.Animations = append(c.out.Animations, out)
	}
	return nil
}
