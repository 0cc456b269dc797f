package asset

import "strings"

// ShaderStage is a bit set of pipeline stages.
type ShaderStage uint8

// Shader stages.
const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute
)

// String returns a "+"-joined list of stage names.
func (s ShaderStage) String() string {
	var parts []string
	if s&StageVertex != 0 {
		parts = append(parts, "vertex")
	}
	if s&StageFragment != 0 {
		parts = append(parts, "fragment")
	}
	if s&StageCompute != 0 {
		parts = append(parts, "compute")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// BindingKind classifies a bound shader resource.
type BindingKind string

// Binding kinds.
const (
	BindingUniform        BindingKind = "uniform"
	BindingStorage        BindingKind = "storage"
	BindingTexture        BindingKind = "texture"
	BindingStorageTexture BindingKind = "storage-texture"
	BindingSampler        BindingKind = "sampler"
)

// Binding is one @group/@binding resource declaration.
type Binding struct {
	Group   int
	Binding int
	Name    string
	Kind    BindingKind
	Type    string
	Access  string
}

// EntryPoint is one shader entry function.
type EntryPoint struct {
	Stage         ShaderStage
	Name          string
	WorkgroupSize [3]uint32
}

// VertexInput is one @location input of a vertex entry point.
type VertexInput struct {
	Location int
	Name     string
	Type     string
}

// Reflection describes the interface of a compiled shader.
type Reflection struct {
	EntryPoints  []EntryPoint
	Bindings     []Binding
	VertexInputs []VertexInput
}

// Stages returns the union of all entry point stages.
func (r *Reflection) Stages() ShaderStage {
	var s ShaderStage
	for _, ep := range r.EntryPoints {
		s |= ep.Stage
	}
	return s
}

// Shader is one compiled shader permutation.
type Shader struct {
	Name        string
	Profile     string
	Defines     []string
	Bytecode    []byte
	Reflection  Reflection
	ContentHash string
}

// ShaderSource is WGSL source text awaiting compilation.
type ShaderSource struct {
	Name string
	Code string
}
