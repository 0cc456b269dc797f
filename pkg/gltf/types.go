package gltf

import "encoding/json"

// These types mirror the glTF 2.0 JSON schema. Optional indices are pointers
// so that absent fields can be told apart from index 0.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html

type extensionMap map[string]json.RawMessage

type document struct {
	Asset              docAsset     `json:"asset"`
	Scene              *int         `json:"scene,omitempty"`
	Scenes             []scene      `json:"scenes,omitempty"`
	Nodes              []node       `json:"nodes,omitempty"`
	Meshes             []mesh       `json:"meshes,omitempty"`
	Accessors          []accessor   `json:"accessors,omitempty"`
	BufferViews        []bufferView `json:"bufferViews,omitempty"`
	Buffers            []buffer     `json:"buffers,omitempty"`
	Materials          []material   `json:"materials,omitempty"`
	Textures           []texture    `json:"textures,omitempty"`
	Images             []image      `json:"images,omitempty"`
	Samplers           []sampler    `json:"samplers,omitempty"`
	Animations         []animation  `json:"animations,omitempty"`
	ExtensionsUsed     []string     `json:"extensionsUsed,omitempty"`
	ExtensionsRequired []string     `json:"extensionsRequired,omitempty"`
	Extensions         extensionMap `json:"extensions,omitempty"`
}

type docAsset struct {
	Version    string `json:"version"`
	MinVersion string `json:"minVersion,omitempty"`
	Generator  string `json:"generator,omitempty"`
}

type scene struct {
	Name  string `json:"name,omitempty"`
	Nodes []int  `json:"nodes,omitempty"`
}

type node struct {
	Name        string       `json:"name,omitempty"`
	Children    []int        `json:"children,omitempty"`
	Mesh        *int         `json:"mesh,omitempty"`
	Matrix      *[16]float32 `json:"matrix,omitempty"`
	Translation *[3]float32  `json:"translation,omitempty"`
	Rotation    *[4]float32  `json:"rotation,omitempty"`
	Scale       *[3]float32  `json:"scale,omitempty"`
	Extensions  extensionMap `json:"extensions,omitempty"`
}

type mesh struct {
	Name       string      `json:"name,omitempty"`
	Primitives []primitive `json:"primitives"`
}

type primitive struct {
	Attributes map[string]int `json:"attributes"`
	Indices    *int           `json:"indices,omitempty"`
	Material   *int           `json:"material,omitempty"`
	Mode       *int           `json:"mode,omitempty"`
	Extensions extensionMap   `json:"extensions,omitempty"`
}

type accessor struct {
	Name          string          `json:"name,omitempty"`
	BufferView    *int            `json:"bufferView,omitempty"`
	ByteOffset    int             `json:"byteOffset,omitempty"`
	ComponentType int             `json:"componentType"`
	Normalized    bool            `json:"normalized,omitempty"`
	Count         *int            `json:"count"`
	Type          string          `json:"type"`
	Max           []float32       `json:"max,omitempty"`
	Min           []float32       `json:"min,omitempty"`
	Sparse        *accessorSparse `json:"sparse,omitempty"`
}

type accessorSparse struct {
	Count   int           `json:"count"`
	Indices sparseIndices `json:"indices"`
	Values  sparseValues  `json:"values"`
}

type sparseIndices struct {
	BufferView    int `json:"bufferView"`
	ByteOffset    int `json:"byteOffset,omitempty"`
	ComponentType int `json:"componentType"`
}

type sparseValues struct {
	BufferView int `json:"bufferView"`
	ByteOffset int `json:"byteOffset,omitempty"`
}

type bufferView struct {
	Name       string `json:"name,omitempty"`
	Buffer     int    `json:"buffer"`
	ByteOffset int    `json:"byteOffset,omitempty"`
	ByteLength int    `json:"byteLength"`
	ByteStride *int   `json:"byteStride,omitempty"`
	Target     *int   `json:"target,omitempty"`
}

type buffer struct {
	Name       string `json:"name,omitempty"`
	URI        string `json:"uri,omitempty"`
	ByteLength int    `json:"byteLength"`
}

type material struct {
	Name                 string                `json:"name,omitempty"`
	PbrMetallicRoughness *pbrMetallicRoughness `json:"pbrMetallicRoughness,omitempty"`
	NormalTexture        *normalTextureInfo    `json:"normalTexture,omitempty"`
	OcclusionTexture     *occlusionTextureInfo `json:"occlusionTexture,omitempty"`
	EmissiveTexture      *textureInfo          `json:"emissiveTexture,omitempty"`
	EmissiveFactor       *[3]float32           `json:"emissiveFactor,omitempty"`
	AlphaMode            string                `json:"alphaMode,omitempty"`
	AlphaCutoff          *float32              `json:"alphaCutoff,omitempty"`
	DoubleSided          bool                  `json:"doubleSided,omitempty"`
	Extensions           extensionMap          `json:"extensions,omitempty"`
}

type pbrMetallicRoughness struct {
	BaseColorFactor          *[4]float32  `json:"baseColorFactor,omitempty"`
	BaseColorTexture         *textureInfo `json:"baseColorTexture,omitempty"`
	MetallicFactor           *float32     `json:"metallicFactor,omitempty"`
	RoughnessFactor          *float32     `json:"roughnessFactor,omitempty"`
	MetallicRoughnessTexture *textureInfo `json:"metallicRoughnessTexture,omitempty"`
}

type textureInfo struct {
	Index    int `json:"index"`
	TexCoord int `json:"texCoord,omitempty"`
}

type normalTextureInfo struct {
	textureInfo
	Scale *float32 `json:"scale,omitempty"`
}

type occlusionTextureInfo struct {
	textureInfo
	Strength *float32 `json:"strength,omitempty"`
}

type texture struct {
	Name    string `json:"name,omitempty"`
	Sampler *int   `json:"sampler,omitempty"`
	Source  *int   `json:"source,omitempty"`
}

type image struct {
	Name       string `json:"name,omitempty"`
	URI        string `json:"uri,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
	BufferView *int   `json:"bufferView,omitempty"`
}

type sampler struct {
	Name      string `json:"name,omitempty"`
	MagFilter *int   `json:"magFilter,omitempty"`
	MinFilter *int   `json:"minFilter,omitempty"`
	WrapS     *int   `json:"wrapS,omitempty"`
	WrapT     *int   `json:"wrapT,omitempty"`
}

type animation struct {
	Name     string        `json:"name,omitempty"`
	Channels []animChannel `json:"channels"`
	Samplers []animSampler `json:"samplers"`
}

type animChannel struct {
	Sampler int        `json:"sampler"`
	Target  animTarget `json:"target"`
}

type animTarget struct {
	Node *int   `json:"node,omitempty"`
	Path string `json:"path"`
}

type animSampler struct {
	Input         int    `json:"input"`
	Output        int    `json:"output"`
	Interpolation string `json:"interpolation,omitempty"`
}

// Extensions understood beyond the core schema.
const (
	// ExtGeometryDeflate marks primitives stored as a zlib blob.
	ExtGeometryDeflate = "FORGE_geometry_deflate"

	// ExtShaders attaches WGSL shader sources to materials.
	ExtShaders = "FORGE_shaders"
)

const (
	extLights           = "KHR_lights_punctual"
	extEmissiveStrength = "KHR_materials_emissive_strength"
	extDraco            = "KHR_draco_mesh_compression"
)

type lightsExt struct {
	Lights []light `json:"lights"`
}

type light struct {
	Name      string      `json:"name,omitempty"`
	Type      string      `json:"type"`
	Color     *[3]float32 `json:"color,omitempty"`
	Intensity *float32    `json:"intensity,omitempty"`
	Range     *float32    `json:"range,omitempty"`
	Spot      *spot       `json:"spot,omitempty"`
}

type spot struct {
	InnerConeAngle *float32 `json:"innerConeAngle,omitempty"`
	OuterConeAngle *float32 `json:"outerConeAngle,omitempty"`
}

type nodeLightExt struct {
	Light int `json:"light"`
}

type emissiveStrengthExt struct {
	EmissiveStrength float32 `json:"emissiveStrength"`
}

type compressionExt struct {
	BufferView int            `json:"bufferView"`
	ByteLength int            `json:"byteLength,omitempty"`
	Attributes map[string]int `json:"attributes"`
}

type shadersExt struct {
	Shaders []shaderSource `json:"shaders"`
}

type shaderSource struct {
	Name       string `json:"name,omitempty"`
	URI        string `json:"uri,omitempty"`
	BufferView *int   `json:"bufferView,omitempty"`
}

type materialShaderExt struct {
	Shader  int               `json:"shader"`
	Defines map[string]string `json:"defines,omitempty"`
}

// GLB container layout.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#glb-file-format-specification
const (
	glbMagic     = 0x46546C67 // "glTF"
	glbVersion   = 2
	glbChunkJSON = 0x4E4F534A // "JSON"
	glbChunkBIN  = 0x004E4942 // "BIN\0"
	glbHeaderLen = 12
)
