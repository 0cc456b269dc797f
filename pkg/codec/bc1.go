package codec

import (
	"encoding/binary"
	"image"
	"image/color"
)

// EncodeBC1 compresses img into 8-byte BC1 blocks in row-major block order.
// Edge blocks repeat the last row and column. A block containing a pixel
// with alpha below 128 uses the three-color mode with a transparent entry.
func EncodeBC1(img *image.NRGBA) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	bw, bh := max(1, (w+3)/4), max(1, (h+3)/4)
	out := make([]byte, 0, bw*bh*8)

	var block [16]color.NRGBA
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			for i := range block {
				x := min(bx*4+i%4, w-1)
				y := min(by*4+i/4, h-1)
				block[i] = img.NRGBAAt(b.Min.X+x, b.Min.Y+y)
			}
			out = appendBC1Block(out, &block)
		}
	}
	return out
}

func appendBC1Block(out []byte, block *[16]color.NRGBA) []byte {
	var opaque [][3]int
	transparent := false
	for _, p := range block {
		if p.A < 128 {
			transparent = true
			continue
		}
		opaque = append(opaque, [3]int{int(p.R), int(p.G), int(p.B)})
	}

	// Endpoints are the two most distant opaque colors.
	var a, b [3]int
	best := -1
	for i := range opaque {
		for j := i; j < len(opaque); j++ {
			if d := dist(opaque[i], opaque[j]); d > best {
				a, b, best = opaque[i], opaque[j], d
			}
		}
	}
	c0, c1 := pack565(a), pack565(b)

	var palette [4][3]int
	entries := 4
	if transparent {
		// Three-color mode is selected by c0 <= c1.
		if c0 > c1 {
			c0, c1 = c1, c0
		}
		p0, p1 := unpack565(c0), unpack565(c1)
		palette[0], palette[1] = p0, p1
		for c := 0; c < 3; c++ {
			palette[2][c] = (p0[c] + p1[c]) / 2
		}
		entries = 3
	} else {
		if c0 < c1 {
			c0, c1 = c1, c0
		}
		p0, p1 := unpack565(c0), unpack565(c1)
		palette[0], palette[1] = p0, p1
		for c := 0; c < 3; c++ {
			palette[2][c] = (2*p0[c] + p1[c]) / 3
			palette[3][c] = (p0[c] + 2*p1[c]) / 3
		}
		if c0 == c1 {
			// Equal endpoints decode as three-color mode; index 0 is still exact.
			entries = 1
		}
	}

	var indices uint32
	for i, p := range block {
		sel := 3
		if p.A >= 128 || !transparent {
			sel = nearest(palette[:entries], [3]int{int(p.R), int(p.G), int(p.B)})
		}
		indices |= uint32(sel) << (2 * i)
	}

	out = binary.LittleEndian.AppendUint16(out, c0)
	out = binary.LittleEndian.AppendUint16(out, c1)
	return binary.LittleEndian.AppendUint32(out, indices)
}

func dist(a, b [3]int) int {
	d := 0
	for k := 0; k < 3; k++ {
		diff := a[k] - b[k]
		d += diff * diff
	}
	return d
}

func nearest(palette [][3]int, c [3]int) int {
	best, bestDist := 0, -1
	for i, p := range palette {
		if d := dist(p, c); bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func pack565(c [3]int) uint16 {
	return uint16(c[0]>>3)<<11 | uint16(c[1]>>2)<<5 | uint16(c[2]>>3)
}

func unpack565(v uint16) [3]int {
	r := int(v>>11) & 31
	g := int(v>>5) & 63
	b := int(v) & 31
	return [3]int{r<<3 | r>>2, g<<2 | g>>4, b<<3 | b>>2}
}
