// Package scenefile stores an imported scene in a compact binary file
// (.fscene) so tools can inspect it without re-running the import.
//
// A file starts with the magic "FRGS" and a little-endian uint16 version,
// followed by a zlib stream holding the little-endian body.
package scenefile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Faultbox/assetforge/pkg/asset"
)

// Magic starts every scene file.
const Magic = "FRGS"

// Version is the body layout written by Write.
const Version uint16 = 1

// Scene file errors.
var (
	ErrInvalidMagic       = errors.New("invalid scene file magic")
	ErrUnsupportedVersion = errors.New("unsupported scene file version")
	ErrTruncated          = errors.New("truncated scene file")
)

// Write encodes s to w.
func Write(w io.Writer, s *asset.Scene) error {
	var hdr [6]byte
	copy(hdr[:], Magic)
	binary.LittleEndian.PutUint16(hdr[4:], Version)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	zw := zlib.NewWriter(w)
	bw := &writer{w: zw}
	bw.scene(s)
	if bw.err != nil {
		zw.Close()
		return bw.err
	}
	return zw.Close()
}

// Read decodes a scene written by Write.
func Read(r io.Reader) (*asset.Scene, error) {
	var hdr [6]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	if string(hdr[:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	defer zr.Close()
	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	br := &reader{r: bytes.NewReader(body)}
	s := br.scene()
	if br.err != nil {
		return nil, br.err
	}
	return s, nil
}
