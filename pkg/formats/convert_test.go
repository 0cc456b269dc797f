package formats

import (
	"errors"
	"testing"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/source"
)

func TestConvertRSMQuad(t *testing.T) {
	doc, err := ConvertRSM(quadRSM(RSMVersion{1, 5}), "quad")
	if err != nil {
		t.Fatalf("ConvertRSM() error = %v", err)
	}
	if err := source.Validate(doc, nil); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if len(doc.Meshes) != 1 || len(doc.Meshes[0].Primitives) != 1 {
		t.Fatalf("got %d meshes, want 1 with 1 primitive", len(doc.Meshes))
	}
	prim := doc.Meshes[0].Primitives[0]
	for _, sem := range []asset.Semantic{asset.SemanticPosition, asset.SemanticNormal, asset.SemanticTexCoord0, asset.SemanticColor0} {
		if _, ok := prim.Attributes[sem]; !ok {
			t.Errorf("missing attribute %s", sem)
		}
	}
	if n := doc.Accessors[prim.Attributes[asset.SemanticPosition]].Count; n != 4 {
		t.Errorf("vertex count = %d, want 4 (corners sharing vertex and texcoord are welded)", n)
	}
	indices, err := source.ReadIndices(doc, prim.Indices)
	if err != nil {
		t.Fatalf("ReadIndices() error = %v", err)
	}
	if len(indices) != 6 {
		t.Errorf("got %d indices, want 6", len(indices))
	}

	normals, err := source.ReadFloats(doc, prim.Attributes[asset.SemanticNormal])
	if err != nil {
		t.Fatalf("ReadFloats() error = %v", err)
	}
	for i := 0; i < len(normals); i += 3 {
		if normals[i+2] < 0.999 {
			t.Errorf("normal %d = %v, want +Z", i/3, normals[i:i+3])
		}
	}

	if len(doc.Images) != 1 || doc.Images[0].URI != "data/texture/wall.bmp" || !doc.Images[0].ColorKey {
		t.Errorf("images = %+v", doc.Images)
	}
	mat := doc.Materials[prim.Material]
	if mat.Textures[asset.RoleBaseColor].Texture != 0 {
		t.Errorf("base color texture = %d, want 0", mat.Textures[asset.RoleBaseColor].Texture)
	}
	if mat.AlphaMode != asset.AlphaMask || mat.DoubleSided {
		t.Errorf("material = %+v", mat)
	}
	if doc.Scene != 0 || len(doc.Scenes[0].Nodes) != 1 {
		t.Errorf("scene roots = %v", doc.Scenes)
	}
	if len(doc.Animations) != 0 {
		t.Errorf("got %d animations for a static model", len(doc.Animations))
	}
}

func TestConvertRSMTexturesAndBlend(t *testing.T) {
	m := quadRSM(RSMVersion{1, 5})
	m.Alpha = 0.5
	m.Textures = append(m.Textures, "roof.bmp")
	m.Nodes[0].TextureIDs = []int32{0, 1}
	m.Nodes[0].Faces[1].TextureID = 1
	m.Nodes[0].Faces[1].TwoSide = 1

	doc, err := ConvertRSM(m, "split")
	if err != nil {
		t.Fatalf("ConvertRSM() error = %v", err)
	}
	prims := doc.Meshes[0].Primitives
	if len(prims) != 2 {
		t.Fatalf("got %d primitives, want one per texture", len(prims))
	}
	for _, p := range prims {
		if n := doc.Accessors[p.Attributes[asset.SemanticPosition]].Count; n != 3 {
			t.Errorf("primitive vertex count = %d, want 3", n)
		}
	}
	if len(doc.Materials) != 2 {
		t.Fatalf("got %d materials, want 2", len(doc.Materials))
	}
	if !doc.Materials[prims[1].Material].DoubleSided {
		t.Error("two-sided face did not mark its material double sided")
	}
	for _, mat := range doc.Materials {
		if mat.AlphaMode != asset.AlphaBlend || mat.BaseColorFactor[3] != 0.5 {
			t.Errorf("material %q alpha = %s %v", mat.Name, mat.AlphaMode, mat.BaseColorFactor[3])
		}
	}
}

func TestConvertRSMBakesOffset(t *testing.T) {
	m := quadRSM(RSMVersion{1, 5})
	m.Nodes[0].Offset = [3]float32{10, 0, 0}
	m.Nodes[0].Matrix = [9]float32{2, 0, 0, 0, 2, 0, 0, 0, 2}
	m.Nodes[0].Position = [3]float32{0, 5, 0}

	doc, err := ConvertRSM(m, "offset")
	if err != nil {
		t.Fatalf("ConvertRSM() error = %v", err)
	}
	acc := doc.Accessors[doc.Meshes[0].Primitives[0].Attributes[asset.SemanticPosition]]
	if acc.Min[0] != 10 || acc.Max[0] != 12 || acc.Max[1] != 2 {
		t.Errorf("bounds = %v..%v, want x in [10,12] and y max 2", acc.Min, acc.Max)
	}
	if got := doc.Nodes[0].Translation; got != [3]float32{0, 5, 0} {
		t.Errorf("Translation = %v, want position kept on the node", got)
	}
}

func TestConvertRSMHierarchy(t *testing.T) {
	m := quadRSM(RSMVersion{1, 5})
	m.Nodes = append(m.Nodes,
		RSMNode{Name: "arm", Parent: "root", Matrix: identity3, Scale: [3]float32{1, 1, 1}},
		RSMNode{Name: "hand", Parent: "arm", Matrix: identity3, Scale: [3]float32{1, 1, 1}},
		RSMNode{Name: "self", Parent: "self", Matrix: identity3, Scale: [3]float32{1, 1, 1}},
	)
	doc, err := ConvertRSM(m, "tree")
	if err != nil {
		t.Fatalf("ConvertRSM() error = %v", err)
	}
	if err := source.Validate(doc, nil); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := doc.Scenes[0].Nodes; len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Errorf("roots = %v, want [0 3]", got)
	}
	if got := doc.Nodes[1].Children; len(got) != 1 || got[0] != 2 {
		t.Errorf("arm children = %v, want [2]", got)
	}
}

func TestConvertRSMCycleFailsValidation(t *testing.T) {
	m := quadRSM(RSMVersion{1, 5})
	m.Nodes = append(m.Nodes,
		RSMNode{Name: "a", Parent: "b", Matrix: identity3},
		RSMNode{Name: "b", Parent: "a", Matrix: identity3},
	)
	doc, err := ConvertRSM(m, "cycle")
	if err != nil {
		t.Fatalf("ConvertRSM() error = %v", err)
	}
	if err := source.Validate(doc, nil); !errors.Is(err, asset.ErrMalformedDocument) {
		t.Errorf("Validate() error = %v, want ErrMalformedDocument", err)
	}
}

func TestConvertRSMOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(n *RSMNode)
	}{
		{"vertex", func(n *RSMNode) { n.Faces[0].VertexIDs[2] = 9 }},
		{"texcoord", func(n *RSMNode) { n.Faces[0].TexCoordIDs[0] = 4 }},
		{"node texture", func(n *RSMNode) { n.Faces[1].TextureID = 3 }},
		{"model texture", func(n *RSMNode) { n.TextureIDs[0] = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := quadRSM(RSMVersion{1, 5})
			tt.mutate(&m.Nodes[0])
			_, err := ConvertRSM(m, "bad")
			if !errors.Is(err, asset.ErrOutOfRangeReference) {
				t.Errorf("ConvertRSM() error = %v, want ErrOutOfRangeReference", err)
			}
		})
	}
}

func TestConvertRSMAnimation(t *testing.T) {
	m := quadRSM(RSMVersion{1, 4})
	m.Nodes[0].PosKeys = []RSMPosKeyframe{{Frame: 0}, {Frame: 500, Position: [3]float32{0, 1, 0}}}
	m.Nodes[0].RotKeys = []RSMRotKeyframe{{Frame: 0, Quaternion: [4]float32{0, 0, 0, 2}}, {Frame: 1000, Quaternion: [4]float32{0, 1, 0, 0}}}

	doc, err := ConvertRSM(m, "anim")
	if err != nil {
		t.Fatalf("ConvertRSM() error = %v", err)
	}
	if err := source.Validate(doc, nil); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(doc.Animations) != 1 || len(doc.Animations[0].Channels) != 2 {
		t.Fatalf("animations = %+v", doc.Animations)
	}
	if w := doc.Nodes[0].Rotation.W; w != 1 {
		t.Errorf("rest rotation W = %v, want first key normalized", w)
	}

	anim := doc.Animations[0]
	times, err := source.ReadFloats(doc, anim.Samplers[1].Input)
	if err != nil {
		t.Fatalf("ReadFloats() error = %v", err)
	}
	if len(times) != 2 || times[1] != 1 {
		t.Errorf("rotation times = %v, want [0 1]", times)
	}
	if anim.Channels[0].Path != "translation" || anim.Channels[1].Path != "rotation" {
		t.Errorf("channel paths = %s, %s", anim.Channels[0].Path, anim.Channels[1].Path)
	}
}

func TestTextureURI(t *testing.T) {
	if got := TextureURI(`props\lamp.bmp`); got != "data/texture/props/lamp.bmp" {
		t.Errorf("TextureURI() = %q", got)
	}
}
