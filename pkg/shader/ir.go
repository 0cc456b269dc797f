package shader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/Faultbox/assetforge/pkg/asset"
)

// IR container layout, little-endian:
//
//	magic "FSIR" | version u16 | profile len u8 | profile | stages u8 | text len u32 | text
const (
	irMagic   = "FSIR"
	irVersion = 1
)

// ErrInvalidIR is returned by DecodeIR for bytes that are not an IR container.
var ErrInvalidIR = errors.New("invalid shader IR")

// IR is a decoded shader container.
type IR struct {
	Version uint16
	Profile string
	Stages  asset.ShaderStage
	Text    string
}

// normalize trims trailing whitespace and drops blank lines from
// comment-free source.
func normalize(source string) string {
	var sb strings.Builder
	for line := range strings.SplitSeq(source, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func encodeIR(profile string, stages asset.ShaderStage, text string) []byte {
	var buf bytes.Buffer
	buf.WriteString(irMagic)
	binary.Write(&buf, binary.LittleEndian, uint16(irVersion))
	buf.WriteByte(byte(len(profile)))
	buf.WriteString(profile)
	buf.WriteByte(byte(stages))
	binary.Write(&buf, binary.LittleEndian, uint32(len(text)))
	buf.WriteString(text)
	return buf.Bytes()
}

// DecodeIR parses a container produced by Compile.
func DecodeIR(data []byte) (*IR, error) {
	if len(data) < 7 || string(data[:4]) != irMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidIR)
	}
	ir := &IR{Version: binary.LittleEndian.Uint16(data[4:])}
	if ir.Version != irVersion {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidIR, ir.Version)
	}
	off := 6
	n := int(data[off])
	off++
	if len(data) < off+n+5 {
		return nil, fmt.Errorf("%w: truncated header", ErrInvalidIR)
	}
	ir.Profile = string(data[off : off+n])
	off += n
	ir.Stages = asset.ShaderStage(data[off])
	off++
	size := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if len(data)-off != size {
		return nil, fmt.Errorf("%w: text holds %d bytes, header says %d", ErrInvalidIR, len(data)-off, size)
	}
	ir.Text = string(data[off:])
	return ir, nil
}
