package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// encodeRSM serializes m in the on-disk layout for its version.
func encodeRSM(t *testing.T, m *RSM) []byte {
	t.Helper()
	var b bytes.Buffer
	w := func(v any) {
		if err := binary.Write(&b, binary.LittleEndian, v); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	name := func(s string) {
		buf := make([]byte, rsmNameLen)
		copy(buf, s)
		b.Write(buf)
	}

	b.WriteString(RSMMagic)
	b.WriteByte(m.Version.Major)
	b.WriteByte(m.Version.Minor)
	w(m.AnimLength)
	w(m.Shading)
	if m.Version.AtLeast(1, 4) {
		w(uint8(m.Alpha * 255))
	}
	b.Write(make([]byte, 16))

	w(int32(len(m.Textures)))
	for _, tex := range m.Textures {
		name(tex)
	}
	name(m.RootNode)

	w(int32(len(m.Nodes)))
	for i := range m.Nodes {
		n := &m.Nodes[i]
		name(n.Name)
		name(n.Parent)
		w(int32(len(n.TextureIDs)))
		w(n.TextureIDs)
		w(n.Matrix)
		w(n.Offset)
		w(n.Position)
		w(n.RotAngle)
		w(n.RotAxis)
		w(n.Scale)
		w(int32(len(n.Vertices)))
		w(n.Vertices)
		w(int32(len(n.TexCoords)))
		for _, tc := range n.TexCoords {
			if m.Version.AtLeast(1, 2) {
				w(tc.Color)
			}
			w(tc.U)
			w(tc.V)
		}
		w(int32(len(n.Faces)))
		for _, f := range n.Faces {
			w(f.VertexIDs)
			w(f.TexCoordIDs)
			w(f.TextureID)
			w(f.Padding)
			w(f.TwoSide)
			if m.Version.AtLeast(1, 2) {
				w(f.SmoothGroup)
			}
		}
		if !m.Version.AtLeast(1, 5) {
			w(int32(len(n.PosKeys)))
			w(n.PosKeys)
		}
		w(int32(len(n.RotKeys)))
		w(n.RotKeys)
		if m.Version.AtLeast(1, 5) {
			w(int32(len(n.ScaleKeys)))
			w(n.ScaleKeys)
		}
	}

	w(int32(len(m.VolumeBoxes)))
	for _, box := range m.VolumeBoxes {
		w(box.Size)
		w(box.Position)
		w(box.Rotation)
		if m.Version.AtLeast(1, 3) {
			w(box.Flag)
		}
	}
	return b.Bytes()
}

var identity3 = [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}

// quadRSM returns a one-node model with a textured unit quad.
func quadRSM(version RSMVersion) *RSM {
	return &RSM{
		Version:  version,
		Shading:  RSMShadingSmooth,
		Alpha:    1,
		Textures: []string{"wall.bmp"},
		RootNode: "root",
		Nodes: []RSMNode{{
			Name:       "root",
			TextureIDs: []int32{0},
			Matrix:     identity3,
			Scale:      [3]float32{1, 1, 1},
			Vertices:   [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
			TexCoords: []RSMTexCoord{
				{Color: [4]uint8{255, 255, 255, 255}, U: 0, V: 0},
				{Color: [4]uint8{255, 255, 255, 255}, U: 1, V: 0},
				{Color: [4]uint8{255, 255, 255, 255}, U: 1, V: 1},
				{Color: [4]uint8{255, 255, 255, 255}, U: 0, V: 1},
			},
			Faces: []RSMFace{
				{VertexIDs: [3]uint16{0, 1, 2}, TexCoordIDs: [3]uint16{0, 1, 2}},
				{VertexIDs: [3]uint16{0, 2, 3}, TexCoordIDs: [3]uint16{0, 2, 3}},
			},
		}},
	}
}

func TestParseRSMMagic(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrTruncatedRSMData},
		{"short", []byte("GRS"), ErrTruncatedRSMData},
		{"bad magic", []byte("XXXX\x01\x05"), ErrInvalidRSMMagic},
		{"header only", []byte("GRSM\x01\x05"), ErrTruncatedRSMData},
		{"version 0", []byte("GRSM\x00\x01"), ErrUnsupportedRSMVersion},
		{"version 3", []byte("GRSM\x03\x00"), ErrUnsupportedRSMVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRSM(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseRSM() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRSMVersions(t *testing.T) {
	for _, v := range []RSMVersion{{1, 1}, {1, 2}, {1, 3}, {1, 4}, {1, 5}, {2, 2}} {
		t.Run(v.String(), func(t *testing.T) {
			in := quadRSM(v)
			in.Nodes[0].RotKeys = []RSMRotKeyframe{{Frame: 0, Quaternion: [4]float32{0, 0, 0, 1}}}
			if v.AtLeast(1, 5) {
				in.Nodes[0].ScaleKeys = []RSMScaleKeyframe{{Frame: 100, Scale: [3]float32{2, 2, 2}}}
			} else {
				in.Nodes[0].PosKeys = []RSMPosKeyframe{{Frame: 100, Position: [3]float32{0, 1, 0}}}
			}
			in.VolumeBoxes = []RSMVolumeBox{{Size: [3]float32{1, 2, 3}}}

			got, err := ParseRSM(encodeRSM(t, in))
			if err != nil {
				t.Fatalf("ParseRSM() error = %v", err)
			}
			if got.Version != v {
				t.Errorf("Version = %s, want %s", got.Version, v)
			}
			if got.RootNode != "root" || len(got.Textures) != 1 || got.Textures[0] != "wall.bmp" {
				t.Errorf("header = %q %v", got.RootNode, got.Textures)
			}
			if len(got.Nodes) != 1 {
				t.Fatalf("got %d nodes, want 1", len(got.Nodes))
			}
			n := got.Nodes[0]
			if len(n.Vertices) != 4 || len(n.TexCoords) != 4 || len(n.Faces) != 2 {
				t.Errorf("node counts = %d/%d/%d, want 4/4/2", len(n.Vertices), len(n.TexCoords), len(n.Faces))
			}
			if n.Matrix != identity3 {
				t.Errorf("Matrix = %v", n.Matrix)
			}
			if !v.AtLeast(1, 2) && n.TexCoords[0].Color != [4]uint8{255, 255, 255, 255} {
				t.Errorf("pre-1.2 color = %v, want white", n.TexCoords[0].Color)
			}
			if !got.HasAnimation() {
				t.Error("HasAnimation() = false")
			}
			if len(got.VolumeBoxes) != 1 || got.VolumeBoxes[0].Size != [3]float32{1, 2, 3} {
				t.Errorf("VolumeBoxes = %+v", got.VolumeBoxes)
			}
		})
	}
}

func TestParseRSMAlpha(t *testing.T) {
	in := quadRSM(RSMVersion{1, 4})
	in.Alpha = 128.0 / 255
	got, err := ParseRSM(encodeRSM(t, in))
	if err != nil {
		t.Fatalf("ParseRSM() error = %v", err)
	}
	if got.Alpha < 0.49 || got.Alpha > 0.51 {
		t.Errorf("Alpha = %v, want ~0.5", got.Alpha)
	}

	old, err := ParseRSM(encodeRSM(t, quadRSM(RSMVersion{1, 3})))
	if err != nil {
		t.Fatalf("ParseRSM() error = %v", err)
	}
	if old.Alpha != 1 {
		t.Errorf("pre-1.4 Alpha = %v, want 1", old.Alpha)
	}
}

func TestParseRSMTruncated(t *testing.T) {
	data := encodeRSM(t, quadRSM(RSMVersion{1, 5}))
	// Drop the trailing volume box count and part of the last node.
	_, err := ParseRSM(data[:len(data)-12])
	if !errors.Is(err, ErrTruncatedRSMData) {
		t.Errorf("ParseRSM() error = %v, want ErrTruncatedRSMData", err)
	}
}

func TestParseRSMBadCounts(t *testing.T) {
	in := quadRSM(RSMVersion{1, 5})
	data := encodeRSM(t, in)

	// Texture count sits after magic, version, anim length, shading, reserved.
	off := 4 + 2 + 4 + 4 + 1 + 16
	bad := bytes.Clone(data)
	binary.LittleEndian.PutUint32(bad[off:], uint32(maxRSMTextures+1))
	if _, err := ParseRSM(bad); !errors.Is(err, ErrInvalidElementCount) {
		t.Errorf("texture count: error = %v, want ErrInvalidElementCount", err)
	}

	// Node count follows the texture names and the root name.
	off += 4 + rsmNameLen*2
	bad = bytes.Clone(data)
	neg := int32(-1)
	binary.LittleEndian.PutUint32(bad[off:], uint32(neg))
	if _, err := ParseRSM(bad); !errors.Is(err, ErrInvalidNodeCount) {
		t.Errorf("node count: error = %v, want ErrInvalidNodeCount", err)
	}
}

func TestRSMVersionAtLeast(t *testing.T) {
	tests := []struct {
		v            RSMVersion
		major, minor uint8
		want         bool
	}{
		{RSMVersion{1, 5}, 1, 4, true},
		{RSMVersion{1, 4}, 1, 4, true},
		{RSMVersion{1, 3}, 1, 4, false},
		{RSMVersion{2, 0}, 1, 5, true},
		{RSMVersion{1, 5}, 2, 0, false},
	}
	for _, tt := range tests {
		if got := tt.v.AtLeast(tt.major, tt.minor); got != tt.want {
			t.Errorf("%s.AtLeast(%d, %d) = %v, want %v", tt.v, tt.major, tt.minor, got, tt.want)
		}
	}
}

func TestRSMShadingTypeString(t *testing.T) {
	tests := []struct {
		s    RSMShadingType
		want string
	}{
		{RSMShadingNone, "None"},
		{RSMShadingFlat, "Flat"},
		{RSMShadingSmooth, "Smooth"},
		{RSMShadingType(7), "Unknown(7)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestRSMCounts(t *testing.T) {
	m := quadRSM(RSMVersion{1, 5})
	m.Nodes = append(m.Nodes, RSMNode{Name: "child", Parent: "root", Vertices: make([][3]float32, 3), Faces: make([]RSMFace, 1)})

	if got := m.GetTotalVertexCount(); got != 7 {
		t.Errorf("GetTotalVertexCount() = %d, want 7", got)
	}
	if got := m.GetTotalFaceCount(); got != 3 {
		t.Errorf("GetTotalFaceCount() = %d, want 3", got)
	}
	if got := m.NodeIndex("child"); got != 1 {
		t.Errorf("NodeIndex(child) = %d, want 1", got)
	}
	if got := m.NodeIndex("missing"); got != -1 {
		t.Errorf("NodeIndex(missing) = %d, want -1", got)
	}
	if m.HasAnimation() {
		t.Error("HasAnimation() = true for a static model")
	}
}

func TestIsRSM(t *testing.T) {
	if !IsRSM([]byte("GRSM\x01\x05")) {
		t.Error("IsRSM(GRSM) = false")
	}
	if IsRSM([]byte("glTF")) || IsRSM(nil) {
		t.Error("IsRSM accepted non-RSM data")
	}
}
