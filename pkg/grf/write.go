package grf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/Faultbox/assetforge/pkg/encoding"
)

// File is one member written by Write.
type File struct {
	Name string
	Data []byte
}

// Write writes files as an unencrypted GRF 0x200 archive with
// zlib-compressed entries. Names are stored in EUC-KR.
func Write(w io.Writer, files []File) error {
	var body, table bytes.Buffer
	for _, f := range files {
		payload, err := deflate(f.Data)
		if err != nil {
			return err
		}
		offset := uint32(body.Len())
		body.Write(payload)

		table.Write(encoding.UTF8ToEUCKR(f.Name))
		table.WriteByte(0)
		binary.Write(&table, binary.LittleEndian, uint32(len(payload)))
		binary.Write(&table, binary.LittleEndian, uint32(len(payload)))
		binary.Write(&table, binary.LittleEndian, uint32(len(f.Data)))
		table.WriteByte(flagFile)
		binary.Write(&table, binary.LittleEndian, offset)
	}

	h := Header{
		TableOffset: uint32(body.Len()),
		// The stored count is biased by seed + 7.
		FileCount: uint32(len(files)) + 7,
		Version:   version200,
	}
	copy(h.Magic[:], grfMagic)

	ztable, err := deflate(table.Bytes())
	if err != nil {
		return err
	}
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, h)
	out.Write(body.Bytes())
	binary.Write(&out, binary.LittleEndian, uint32(len(ztable)))
	binary.Write(&out, binary.LittleEndian, uint32(table.Len()))
	out.Write(ztable)
	_, err = w.Write(out.Bytes())
	return err
}

func deflate(b []byte) ([]byte, error) {
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
