package codec

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/anthonynsimon/bild/transform"
	"github.com/h2non/filetype"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/source"
)

// Image MIME types recognized by the texture decoder.
const (
	MimePNG   = "image/png"
	MimeJPEG  = "image/jpeg"
	MimeGIF   = "image/gif"
	MimeBMP   = "image/bmp"
	MimeTIFF  = "image/tiff"
	MimeWebP  = "image/webp"
	MimeTGA   = "image/x-tga"
	MimeKTX2  = "image/ktx2"
	MimeBasis = "image/basis"
)

var ktx2Magic = []byte{0xAB, 'K', 'T', 'X', ' ', '2', '0', 0xBB, '\r', '\n', 0x1A, '\n'}

// TextureRequest selects the role a texture is sampled in and the GPU formats
// the caller accepts.
type TextureRequest struct {
	Role    asset.TextureRole
	Formats []asset.TextureFormat
}

// TextureDecoder decodes an encoded image into a GPU-ready texture with a
// full mip chain.
type TextureDecoder interface {
	Decode(ctx context.Context, img source.Image, data []byte, req TextureRequest) (*asset.Texture, error)
}

// rolePreferences lists target formats per role, best first.
var rolePreferences = map[asset.TextureRole][]asset.TextureFormat{
	asset.RoleBaseColor: {
		asset.FormatBC1RGBAUnormSRGB, asset.FormatRGBA8UnormSRGB, asset.FormatBGRA8UnormSRGB,
		asset.FormatRGBA8Unorm, asset.FormatBGRA8Unorm,
	},
	asset.RoleEmissive: {
		asset.FormatBC1RGBAUnormSRGB, asset.FormatRGBA8UnormSRGB, asset.FormatBGRA8UnormSRGB,
		asset.FormatRGBA8Unorm, asset.FormatBGRA8Unorm,
	},
	asset.RoleNormal: {
		asset.FormatRGBA8Unorm, asset.FormatBGRA8Unorm, asset.FormatRG8Unorm,
	},
	asset.RoleMetallicRoughness: {
		asset.FormatBC1RGBAUnorm, asset.FormatRGBA8Unorm, asset.FormatBGRA8Unorm,
	},
	asset.RoleOcclusion: {
		asset.FormatR8Unorm, asset.FormatBC1RGBAUnorm, asset.FormatRGBA8Unorm, asset.FormatBGRA8Unorm,
	},
}

// SelectFormat returns the first format in the role's preference list that
// the request also accepts.
func SelectFormat(role asset.TextureRole, accepted []asset.TextureFormat) (asset.TextureFormat, error) {
	for _, f := range rolePreferences[role] {
		if slices.Contains(accepted, f) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: no accepted format for %s texture (accepted %v)", asset.ErrUnsupportedFormat, role, accepted)
}

// ImageDecoder decodes PNG, JPEG, GIF, BMP, TIFF, WebP and TGA images and
// builds the mip chain with a linear filter.
type ImageDecoder struct{}

var _ TextureDecoder = ImageDecoder{}

// Decode implements TextureDecoder.
func (ImageDecoder) Decode(ctx context.Context, img source.Image, data []byte, req TextureRequest) (*asset.Texture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	format, err := SelectFormat(req.Role, req.Formats)
	if err != nil {
		return nil, err
	}

	mime := img.MimeType
	if mime == "" {
		mime = Sniff(data, img.URI)
	}
	base, err := decodeImage(mime, data)
	if err != nil {
		return nil, err
	}

	rgba := toNRGBA(base)
	if img.ColorKey {
		ApplyColorKey(rgba)
	}

	w, h := rgba.Bounds().Dx(), rgba.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: image is %dx%d", asset.ErrCodecFailure, w, h)
	}
	tex := &asset.Texture{
		Name:   img.Name,
		Width:  w,
		Height: h,
		Format: format,
		Role:   req.Role,
		Mips:   make([]asset.MipLevel, asset.MipCount(w, h)),
	}

	level := rgba
	for i := range tex.Mips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mw, mh := asset.MipSize(w, h, i)
		if i > 0 {
			level = toNRGBA(transform.Resize(level, mw, mh, transform.Linear))
		}
		pix := encodeLevel(level, format)
		if want := format.LevelSize(mw, mh); len(pix) != want {
			return nil, fmt.Errorf("%w: mip %d encoded %d bytes, want %d", asset.ErrSizeMismatch, i, len(pix), want)
		}
		tex.Mips[i] = asset.MipLevel{Width: mw, Height: mh, Data: pix}
	}
	if err := tex.Validate(); err != nil {
		return nil, err
	}
	tex.ContentHash = TextureHash(tex)
	return tex, nil
}

// Sniff guesses the MIME type of encoded image data. name is consulted for
// formats without a signature.
func Sniff(data []byte, name string) string {
	if bytes.HasPrefix(data, ktx2Magic) {
		return MimeKTX2
	}
	if bytes.HasPrefix(data, []byte("sB")) && strings.EqualFold(path.Ext(name), ".basis") {
		return MimeBasis
	}
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if strings.EqualFold(path.Ext(name), ".tga") {
		return MimeTGA
	}
	return ""
}

var imageDecoders = map[string]func(io.Reader) (image.Image, error){
	MimePNG:          png.Decode,
	MimeJPEG:         jpeg.Decode,
	"image/jpg":      jpeg.Decode,
	MimeGIF:          gif.Decode,
	MimeBMP:          bmp.Decode,
	"image/x-ms-bmp": bmp.Decode,
	MimeTIFF:         tiff.Decode,
	MimeWebP:         webp.Decode,
}

func decodeImage(mime string, data []byte) (image.Image, error) {
	var img image.Image
	var err error
	switch mime {
	case MimeKTX2, MimeBasis:
		return nil, fmt.Errorf("%w: %s textures need a transcoder", asset.ErrUnsupportedFormat, mime)
	case MimeTGA, "image/tga", "":
		// TGA has no signature, so unidentified data is tried as TGA.
		img, err = DecodeTGA(data)
	default:
		decode, ok := imageDecoders[mime]
		if !ok {
			return nil, fmt.Errorf("%w: image type %q", asset.ErrUnsupportedFormat, mime)
		}
		img, err = decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", asset.ErrCodecFailure, mime, err)
	}
	return img, nil
}

// toNRGBA converts img to non-premultiplied RGBA with a zero origin.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

func encodeLevel(img *image.NRGBA, f asset.TextureFormat) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	switch f {
	case asset.FormatBC1RGBAUnorm, asset.FormatBC1RGBAUnormSRGB:
		return EncodeBC1(img)
	}
	channels := f.Channels()
	out := make([]byte, 0, w*h*channels)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4]
			switch f {
			case asset.FormatBGRA8Unorm, asset.FormatBGRA8UnormSRGB:
				out = append(out, p[2], p[1], p[0], p[3])
			default:
				out = append(out, p[:channels]...)
			}
		}
	}
	return out
}

// TextureHash returns a hex blake2b-256 digest over the format, dimensions
// and every mip level.
func TextureHash(t *asset.Texture) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(t.Format))
	h.Write([]byte(strconv.Itoa(t.Width) + "x" + strconv.Itoa(t.Height)))
	for i := range t.Mips {
		h.Write(t.Mips[i].Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
