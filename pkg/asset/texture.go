package asset

import (
	"fmt"
	"math/bits"
)

// TextureFormat identifies a GPU texture format.
type TextureFormat string

// Supported GPU texture formats.
const (
	FormatRGBA8Unorm       TextureFormat = "rgba8-unorm"
	FormatRGBA8UnormSRGB   TextureFormat = "rgba8-unorm-srgb"
	FormatBGRA8Unorm       TextureFormat = "bgra8-unorm"
	FormatBGRA8UnormSRGB   TextureFormat = "bgra8-unorm-srgb"
	FormatRG8Unorm         TextureFormat = "rg8-unorm"
	FormatR8Unorm          TextureFormat = "r8-unorm"
	FormatBC1RGBAUnorm     TextureFormat = "bc1-rgba-unorm"
	FormatBC1RGBAUnormSRGB TextureFormat = "bc1-rgba-unorm-srgb"
)

var textureFormats = map[TextureFormat]struct {
	bytesPerPixel int
	channels      int
	srgb          bool
	block         bool
}{
	FormatRGBA8Unorm:       {4, 4, false, false},
	FormatRGBA8UnormSRGB:   {4, 4, true, false},
	FormatBGRA8Unorm:       {4, 4, false, false},
	FormatBGRA8UnormSRGB:   {4, 4, true, false},
	FormatRG8Unorm:         {2, 2, false, false},
	FormatR8Unorm:          {1, 1, false, false},
	FormatBC1RGBAUnorm:     {0, 4, false, true},
	FormatBC1RGBAUnormSRGB: {0, 4, true, true},
}

// ParseTextureFormat validates a format name.
func ParseTextureFormat(s string) (TextureFormat, error) {
	f := TextureFormat(s)
	if !f.Valid() {
		return "", fmt.Errorf("%w: unknown texture format %q", ErrUnsupportedFormat, s)
	}
	return f, nil
}

// Valid reports whether f is a known format.
func (f TextureFormat) Valid() bool {
	_, ok := textureFormats[f]
	return ok
}

// SRGB reports whether the format stores sRGB-encoded color.
func (f TextureFormat) SRGB() bool { return textureFormats[f].srgb }

// BlockCompressed reports whether the format stores 4x4 compressed blocks.
func (f TextureFormat) BlockCompressed() bool { return textureFormats[f].block }

// Channels returns the number of color channels the format stores.
func (f TextureFormat) Channels() int { return textureFormats[f].channels }

// LevelSize returns the byte size of one mip level of the given dimensions.
func (f TextureFormat) LevelSize(w, h int) int {
	info, ok := textureFormats[f]
	if !ok {
		return 0
	}
	if info.block {
		bw := max(1, (w+3)/4)
		bh := max(1, (h+3)/4)
		return bw * bh * 8
	}
	return w * h * info.bytesPerPixel
}

// TextureRole is the material slot a texture is sampled in.
type TextureRole int

// Material texture roles.
const (
	RoleBaseColor TextureRole = iota
	RoleMetallicRoughness
	RoleNormal
	RoleOcclusion
	RoleEmissive

	RoleCount
)

// String returns the role name.
func (r TextureRole) String() string {
	switch r {
	case RoleBaseColor:
		return "BaseColor"
	case RoleMetallicRoughness:
		return "MetallicRoughness"
	case RoleNormal:
		return "Normal"
	case RoleOcclusion:
		return "Occlusion"
	case RoleEmissive:
		return "Emissive"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// Color reports whether the role holds color data, which is stored as sRGB.
func (r TextureRole) Color() bool {
	return r == RoleBaseColor || r == RoleEmissive
}

// MipLevel is one level of a mip chain.
type MipLevel struct {
	Width  int
	Height int
	Data   []byte
}

// Texture is a decoded, GPU-ready texture with a full mip chain.
type Texture struct {
	Name        string
	Width       int
	Height      int
	Format      TextureFormat
	Role        TextureRole
	Mips        []MipLevel
	ContentHash string
}

// MipCount returns floor(log2(max(w, h))) + 1.
func MipCount(w, h int) int {
	m := max(w, h)
	if m <= 0 {
		return 0
	}
	return bits.Len(uint(m))
}

// MipSize returns the dimensions of the given level: halved with floor, minimum 1.
func MipSize(w, h, level int) (int, int) {
	return max(1, w>>level), max(1, h>>level)
}

// ByteSize returns the size of all mip levels.
func (t *Texture) ByteSize() int {
	n := 0
	for i := range t.Mips {
		n += len(t.Mips[i].Data)
	}
	return n
}

// Validate checks the mip chain against the texture dimensions and format.
func (t *Texture) Validate() error {
	if !t.Format.Valid() {
		return fmt.Errorf("%w: texture format %q", ErrUnsupportedFormat, t.Format)
	}
	if want := MipCount(t.Width, t.Height); len(t.Mips) != want {
		return fmt.Errorf("%w: %d mip levels for %dx%d, want %d", ErrSizeMismatch, len(t.Mips), t.Width, t.Height, want)
	}
	for i := range t.Mips {
		w, h := MipSize(t.Width, t.Height, i)
		m := &t.Mips[i]
		if m.Width != w || m.Height != h {
			return fmt.Errorf("%w: mip %d is %dx%d, want %dx%d", ErrSizeMismatch, i, m.Width, m.Height, w, h)
		}
		if want := t.Format.LevelSize(w, h); len(m.Data) != want {
			return fmt.Errorf("%w: mip %d holds %d bytes, want %d", ErrSizeMismatch, i, len(m.Data), want)
		}
	}
	return nil
}
