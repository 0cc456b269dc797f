package codec

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// TGA image types.
const (
	tgaTypeTrueColor = 2
	tgaTypeRLE       = 10
	tgaHeaderLen     = 18
)

var errTGATruncated = errors.New("tga: truncated data")

// DecodeTGA decodes an uncompressed (type 2) or RLE (type 10) true-color TGA
// with 24 or 32 bits per pixel.
func DecodeTGA(data []byte) (image.Image, error) {
	if len(data) < tgaHeaderLen {
		return nil, errTGATruncated
	}
	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, errors.New("tga: color-mapped images are not supported")
	}
	if imageType != tgaTypeTrueColor && imageType != tgaTypeRLE {
		return nil, fmt.Errorf("tga: unsupported image type %d", imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("tga: unsupported bit depth %d", bpp)
	}
	if width == 0 || height == 0 {
		return nil, errors.New("tga: zero-sized image")
	}

	offset := tgaHeaderLen + idLength
	if offset > len(data) {
		return nil, errTGATruncated
	}
	t := tgaDecoder{
		img:         image.NewNRGBA(image.Rect(0, 0, width, height)),
		src:         data[offset:],
		width:       width,
		height:      height,
		bpp:         bpp / 8,
		topToBottom: descriptor&0x20 != 0,
	}
	var err error
	if imageType == tgaTypeTrueColor {
		err = t.raw()
	} else {
		err = t.rle()
	}
	if err != nil {
		return nil, err
	}
	return t.img, nil
}

type tgaDecoder struct {
	img         *image.NRGBA
	src         []byte
	pos         int
	width       int
	height      int
	bpp         int
	topToBottom bool
}

func (t *tgaDecoder) pixel() (color.NRGBA, error) {
	if t.pos+t.bpp > len(t.src) {
		return color.NRGBA{}, errTGATruncated
	}
	p := t.src[t.pos:]
	c := color.NRGBA{R: p[2], G: p[1], B: p[0], A: 255}
	if t.bpp == 4 {
		c.A = p[3]
	}
	t.pos += t.bpp
	return c, nil
}

func (t *tgaDecoder) set(i int, c color.NRGBA) {
	x, y := i%t.width, i/t.width
	if !t.topToBottom {
		y = t.height - 1 - y
	}
	t.img.SetNRGBA(x, y, c)
}

func (t *tgaDecoder) raw() error {
	for i := 0; i < t.width*t.height; i++ {
		c, err := t.pixel()
		if err != nil {
			return err
		}
		t.set(i, c)
	}
	return nil
}

func (t *tgaDecoder) rle() error {
	total := t.width * t.height
	for i := 0; i < total; {
		if t.pos >= len(t.src) {
			return errTGATruncated
		}
		packet := t.src[t.pos]
		t.pos++
		count := int(packet&0x7F) + 1

		if packet&0x80 != 0 {
			c, err := t.pixel()
			if err != nil {
				return err
			}
			for ; count > 0 && i < total; count-- {
				t.set(i, c)
				i++
			}
			continue
		}
		for ; count > 0 && i < total; count-- {
			c, err := t.pixel()
			if err != nil {
				return err
			}
			t.set(i, c)
			i++
		}
	}
	return nil
}
