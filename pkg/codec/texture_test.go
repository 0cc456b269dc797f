package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/gltf/gltftest"
	"github.com/Faultbox/assetforge/pkg/source"
)

var defaultFormats = []asset.TextureFormat{
	asset.FormatRGBA8Unorm, asset.FormatRGBA8UnormSRGB, asset.FormatRG8Unorm, asset.FormatR8Unorm,
}

func TestSelectFormat(t *testing.T) {
	tests := []struct {
		role     asset.TextureRole
		accepted []asset.TextureFormat
		want     asset.TextureFormat
		wantErr  bool
	}{
		{asset.RoleBaseColor, defaultFormats, asset.FormatRGBA8UnormSRGB, false},
		{asset.RoleNormal, defaultFormats, asset.FormatRGBA8Unorm, false},
		{asset.RoleOcclusion, defaultFormats, asset.FormatR8Unorm, false},
		{asset.RoleBaseColor, []asset.TextureFormat{asset.FormatBC1RGBAUnormSRGB, asset.FormatRGBA8UnormSRGB}, asset.FormatBC1RGBAUnormSRGB, false},
		{asset.RoleNormal, []asset.TextureFormat{asset.FormatR8Unorm}, "", true},
	}
	for _, tt := range tests {
		got, err := SelectFormat(tt.role, tt.accepted)
		if (err != nil) != tt.wantErr {
			t.Errorf("SelectFormat(%s) error = %v", tt.role, err)
			continue
		}
		if tt.wantErr && !errors.Is(err, asset.ErrUnsupportedFormat) {
			t.Errorf("SelectFormat(%s) error = %v, want ErrUnsupportedFormat", tt.role, err)
		}
		if got != tt.want {
			t.Errorf("SelectFormat(%s) = %s, want %s", tt.role, got, tt.want)
		}
	}
}

func TestDecodePNGMipChain(t *testing.T) {
	data := gltftest.PNG(4, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	tex, err := ImageDecoder{}.Decode(context.Background(),
		source.Image{Name: "albedo", MimeType: MimePNG},
		data,
		TextureRequest{Role: asset.RoleBaseColor, Formats: defaultFormats})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if tex.Format != asset.FormatRGBA8UnormSRGB || len(tex.Mips) != 3 {
		t.Fatalf("texture = %s with %d mips, want srgb with 3", tex.Format, len(tex.Mips))
	}
	wantSizes := [][2]int{{4, 4}, {2, 2}, {1, 1}}
	for i, m := range tex.Mips {
		if m.Width != wantSizes[i][0] || m.Height != wantSizes[i][1] {
			t.Errorf("mip %d is %dx%d", i, m.Width, m.Height)
		}
	}
	want := []byte{10, 20, 30, 255}
	for i, v := range tex.Mips[2].Data {
		if d := int(v) - int(want[i]); d < -1 || d > 1 {
			t.Errorf("1x1 mip = %v, want about %v", tex.Mips[2].Data, want)
			break
		}
	}
	if tex.ContentHash == "" {
		t.Error("ContentHash is empty")
	}
}

func TestDecodeSameBytesSameHash(t *testing.T) {
	data := gltftest.PNG(8, 2, color.NRGBA{R: 255, A: 255})
	req := TextureRequest{Role: asset.RoleBaseColor, Formats: defaultFormats}
	a, err := ImageDecoder{}.Decode(context.Background(), source.Image{Name: "a"}, data, req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ImageDecoder{}.Decode(context.Background(), source.Image{Name: "b"}, data, req)
	if err != nil {
		t.Fatal(err)
	}
	if a.ContentHash != b.ContentHash {
		t.Error("identical bytes hashed differently")
	}
	if len(a.Mips) != 4 || a.Mips[3].Width != 1 || a.Mips[3].Height != 1 {
		t.Errorf("8x2 chain = %d mips", len(a.Mips))
	}
}

func TestDecodeFormats(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = byte(i * 10)
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		format asset.TextureFormat
		role   asset.TextureRole
		size   int
	}{
		{asset.FormatRGBA8Unorm, asset.RoleNormal, 16},
		{asset.FormatBGRA8Unorm, asset.RoleNormal, 16},
		{asset.FormatRG8Unorm, asset.RoleNormal, 8},
		{asset.FormatR8Unorm, asset.RoleOcclusion, 4},
		{asset.FormatBC1RGBAUnorm, asset.RoleOcclusion, 8},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			tex, err := ImageDecoder{}.Decode(context.Background(), source.Image{}, buf.Bytes(),
				TextureRequest{Role: tt.role, Formats: []asset.TextureFormat{tt.format}})
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if tex.Format != tt.format || len(tex.Mips[0].Data) != tt.size {
				t.Errorf("got %s with %d bytes, want %s with %d", tex.Format, len(tex.Mips[0].Data), tt.format, tt.size)
			}
		})
	}
}

func TestDecodeColorKey(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	tex, err := ImageDecoder{}.Decode(context.Background(),
		source.Image{URI: "data/texture/wall.bmp", ColorKey: true},
		buf.Bytes(),
		TextureRequest{Role: asset.RoleBaseColor, Formats: []asset.TextureFormat{asset.FormatRGBA8UnormSRGB}})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	px := tex.Mips[0].Data
	if !bytes.Equal(px[:4], []byte{0, 0, 0, 0}) || !bytes.Equal(px[4:], []byte{1, 2, 3, 255}) {
		t.Errorf("pixels = %v", px)
	}
}

func TestDecodeErrors(t *testing.T) {
	req := TextureRequest{Role: asset.RoleBaseColor, Formats: defaultFormats}
	ktx2 := append(append([]byte{}, ktx2Magic...), make([]byte, 64)...)
	tests := []struct {
		name string
		img  source.Image
		data []byte
		req  TextureRequest
		want error
	}{
		{"ktx2", source.Image{}, ktx2, req, asset.ErrUnsupportedFormat},
		{"unknown mime", source.Image{MimeType: "image/x-exr"}, []byte{1}, req, asset.ErrUnsupportedFormat},
		{"corrupt png", source.Image{MimeType: MimePNG}, []byte("\x89PNG\r\n\x1a\nbroken"), req, asset.ErrCodecFailure},
		{"garbage", source.Image{}, []byte("????"), req, asset.ErrCodecFailure},
		{"no format", source.Image{MimeType: MimePNG}, gltftest.PNG(1, 1, color.NRGBA{}),
			TextureRequest{Role: asset.RoleNormal, Formats: []asset.TextureFormat{asset.FormatR8Unorm}}, asset.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImageDecoder{}.Decode(context.Background(), tt.img, tt.data, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		file string
		want string
	}{
		{"png", gltftest.PNG(1, 1, color.NRGBA{}), "", MimePNG},
		{"bmp", []byte("BM\x00\x00\x00\x00\x00\x00\x00\x00\x36\x00\x00\x00"), "", MimeBMP},
		{"ktx2", ktx2Magic, "", MimeKTX2},
		{"tga by name", make([]byte, 20), "wall.TGA", MimeTGA},
		{"unknown", []byte{1, 2, 3}, "x.bin", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.data, tt.file); got != tt.want {
				t.Errorf("Sniff() = %q, want %q", got, tt.want)
			}
		})
	}
}

// tgaImage builds a 2x2 TGA of the given type. Pixels are BGRA.
func tgaImage(imageType byte, topToBottom bool, body []byte) []byte {
	h := make([]byte, tgaHeaderLen)
	h[2] = imageType
	binary.LittleEndian.PutUint16(h[12:], 2)
	binary.LittleEndian.PutUint16(h[14:], 2)
	h[16] = 32
	if topToBottom {
		h[17] = 0x20
	}
	return append(h, body...)
}

func TestDecodeTGA(t *testing.T) {
	red := []byte{0, 0, 255, 255}
	blue := []byte{255, 0, 0, 128}
	raw := bytes.Join([][]byte{red, red, blue, blue}, nil)

	tests := []struct {
		name    string
		data    []byte
		topRow  color.NRGBA
		wantErr bool
	}{
		{"raw bottom-up", tgaImage(tgaTypeTrueColor, false, raw), color.NRGBA{B: 255, A: 128}, false},
		{"raw top-down", tgaImage(tgaTypeTrueColor, true, raw), color.NRGBA{R: 255, A: 255}, false},
		{"rle", tgaImage(tgaTypeRLE, true, append(append([]byte{0x81}, red...), append([]byte{0x81}, blue...)...)), color.NRGBA{R: 255, A: 255}, false},
		{"truncated raw", tgaImage(tgaTypeTrueColor, true, raw[:10]), color.NRGBA{}, true},
		{"truncated rle", tgaImage(tgaTypeRLE, true, []byte{0x83}), color.NRGBA{}, true},
		{"colormapped", append([]byte{0, 1}, make([]byte, 16)...), color.NRGBA{}, true},
		{"short", []byte{0, 0, 2}, color.NRGBA{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := DecodeTGA(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeTGA() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := img.(*image.NRGBA).NRGBAAt(0, 0); got != tt.topRow {
				t.Errorf("pixel (0,0) = %v, want %v", got, tt.topRow)
			}
		})
	}
}

// decodeBC1Block expands one block to RGBA for verification.
func decodeBC1Block(b []byte) [16]color.NRGBA {
	c0 := binary.LittleEndian.Uint16(b)
	c1 := binary.LittleEndian.Uint16(b[2:])
	idx := binary.LittleEndian.Uint32(b[4:])
	p0, p1 := unpack565(c0), unpack565(c1)
	var pal [4]color.NRGBA
	mk := func(c [3]int) color.NRGBA { return color.NRGBA{uint8(c[0]), uint8(c[1]), uint8(c[2]), 255} }
	pal[0], pal[1] = mk(p0), mk(p1)
	if c0 > c1 {
		pal[2] = mk([3]int{(2*p0[0] + p1[0]) / 3, (2*p0[1] + p1[1]) / 3, (2*p0[2] + p1[2]) / 3})
		pal[3] = mk([3]int{(p0[0] + 2*p1[0]) / 3, (p0[1] + 2*p1[1]) / 3, (p0[2] + 2*p1[2]) / 3})
	} else {
		pal[2] = mk([3]int{(p0[0] + p1[0]) / 2, (p0[1] + p1[1]) / 2, (p0[2] + p1[2]) / 2})
	}
	var out [16]color.NRGBA
	for i := range out {
		out[i] = pal[(idx>>(2*i))&3]
	}
	return out
}

func TestEncodeBC1(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			c := color.NRGBA{R: 255, A: 255}
			if x >= 2 {
				c = color.NRGBA{B: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	data := EncodeBC1(img)
	if len(data) != 8 {
		t.Fatalf("encoded %d bytes, want 8", len(data))
	}
	px := decodeBC1Block(data)
	if px[0] != (color.NRGBA{R: 255, A: 255}) || px[3] != (color.NRGBA{B: 255, A: 255}) {
		t.Errorf("decoded corners = %v, %v", px[0], px[3])
	}

	img.SetNRGBA(1, 1, color.NRGBA{})
	data = EncodeBC1(img)
	if c0, c1 := binary.LittleEndian.Uint16(data), binary.LittleEndian.Uint16(data[2:]); c0 > c1 {
		t.Errorf("transparent block uses four-color mode (c0=%#x c1=%#x)", c0, c1)
	}
	if idx := binary.LittleEndian.Uint32(data[4:]); (idx>>(2*5))&3 != 3 {
		t.Errorf("transparent pixel index = %d, want 3", (idx>>(2*5))&3)
	}

	if got := len(EncodeBC1(image.NewNRGBA(image.Rect(0, 0, 5, 3)))); got != 16 {
		t.Errorf("5x3 encoded %d bytes, want 16", got)
	}
}
