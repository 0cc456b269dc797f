package asset

import "github.com/Faultbox/assetforge/pkg/math"

// AlphaMode is the alpha rendering mode of a material.
type AlphaMode string

// Alpha modes.
const (
	AlphaOpaque AlphaMode = "OPAQUE"
	AlphaMask   AlphaMode = "MASK"
	AlphaBlend  AlphaMode = "BLEND"
)

// Material references textures and a shader by scene index; -1 means unset.
type Material struct {
	Name              string
	BaseColorFactor   [4]float32
	MetallicFactor    float32
	RoughnessFactor   float32
	EmissiveFactor    [3]float32
	EmissiveStrength  float32
	NormalScale       float32
	OcclusionStrength float32
	AlphaMode         AlphaMode
	AlphaCutoff       float32
	DoubleSided       bool
	Textures          [RoleCount]int
	Shader            int
}

// Texture returns the scene texture index bound to role, or -1.
func (m *Material) Texture(role TextureRole) int {
	if role < 0 || role >= RoleCount {
		return -1
	}
	return m.Textures[role]
}

// Node is a transform in the scene hierarchy.
type Node struct {
	Name     string
	Parent   int
	Children []int
	Mesh     int
	Light    int
	Local    math.Mat4
	World    math.Mat4
}

// LightType is the kind of a punctual light.
type LightType string

// Light types.
const (
	LightDirectional LightType = "directional"
	LightPoint       LightType = "point"
	LightSpot        LightType = "spot"
)

// Light is a punctual light source.
type Light struct {
	Name           string
	Type           LightType
	Color          [3]float32
	Intensity      float32
	Range          float32
	InnerConeAngle float32
	OuterConeAngle float32
}

// Channel animates one property of one node. Values holds Components floats per key.
type Channel struct {
	Node          int
	Path          string
	Interpolation string
	Times         []float32
	Values        []float32
	Components    int
}

// Animation is a named set of channels.
type Animation struct {
	Name     string
	Channels []Channel
}

// Duration returns the largest key time across all channels.
func (a *Animation) Duration() float32 {
	var d float32
	for i := range a.Channels {
		if n := len(a.Channels[i].Times); n > 0 && a.Channels[i].Times[n-1] > d {
			d = a.Channels[i].Times[n-1]
		}
	}
	return d
}

// Scene is the immutable result of an import. All references are indices into
// the scene's own slices.
type Scene struct {
	Name       string
	Meshes     []Mesh
	Textures   []Texture
	Shaders    []Shader
	Materials  []Material
	Nodes      []Node
	Roots      []int
	Lights     []Light
	Animations []Animation
}

// Stats summarizes a scene for logging and the CLI.
type Stats struct {
	Meshes       int
	Primitives   int
	Triangles    int
	LODs         int
	Textures     int
	TextureBytes int
	Shaders      int
	Materials    int
	Nodes        int
	Lights       int
	Animations   int
}

// Stats counts the scene's resources.
func (s *Scene) Stats() Stats {
	st := Stats{
		Meshes:     len(s.Meshes),
		Textures:   len(s.Textures),
		Shaders:    len(s.Shaders),
		Materials:  len(s.Materials),
		Nodes:      len(s.Nodes),
		Lights:     len(s.Lights),
		Animations: len(s.Animations),
	}
	for i := range s.Meshes {
		m := &s.Meshes[i]
		st.Primitives += len(m.Primitives)
		st.Triangles += m.TriangleCount()
		for j := range m.Primitives {
			st.LODs += len(m.Primitives[j].LODs)
		}
	}
	for i := range s.Textures {
		st.TextureBytes += s.Textures[i].ByteSize()
	}
	return st
}
