package source

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Faultbox/assetforge/pkg/asset"
)

func outOfRange(what string, index, n int) error {
	return fmt.Errorf("%w: %s %d (have %d)", asset.ErrOutOfRangeReference, what, index, n)
}

func rangeError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{asset.ErrOutOfRangeReference}, args...)...)
}

// accessorSpan returns the byte window an accessor reads from its buffer view
// together with the effective stride.
func accessorSpan(d *Document, acc *Accessor) (data []byte, stride int, err error) {
	view, err := d.ViewBytes(acc.BufferView)
	if err != nil {
		return nil, 0, err
	}
	elem := acc.ElementSize()
	stride = elem
	if s := d.BufferViews[acc.BufferView].ByteStride; s > 0 {
		stride = s
	}
	if acc.Count == 0 {
		return nil, stride, nil
	}
	end := acc.ByteOffset + stride*(acc.Count-1) + elem
	if acc.ByteOffset < 0 || end > len(view) {
		return nil, 0, rangeError("accessor needs %d bytes of bufferView %d, which holds %d",
			end, acc.BufferView, len(view))
	}
	return view[acc.ByteOffset:end], stride, nil
}

// ReadAccessor returns the accessor's elements tightly packed, with stride
// removed and sparse substitution applied.
func ReadAccessor(d *Document, index int) ([]byte, error) {
	if index < 0 || index >= len(d.Accessors) {
		return nil, outOfRange("accessor", index, len(d.Accessors))
	}
	acc := &d.Accessors[index]
	elem := acc.ElementSize()
	if elem == 0 {
		return nil, fmt.Errorf("%w: accessor %d has invalid format %s/%s",
			asset.ErrMalformedDocument, index, acc.ComponentType, acc.Type)
	}

	out := make([]byte, acc.Count*elem)
	if acc.BufferView >= 0 {
		src, stride, err := accessorSpan(d, acc)
		if err != nil {
			return nil, fmt.Errorf("accessor %d: %w", index, err)
		}
		if stride == elem {
			copy(out, src)
		} else {
			for i := 0; i < acc.Count; i++ {
				copy(out[i*elem:(i+1)*elem], src[i*stride:])
			}
		}
	}

	if acc.Sparse != nil {
		if err := applySparse(d, acc, out); err != nil {
			return nil, fmt.Errorf("accessor %d: %w", index, err)
		}
	}
	return out, nil
}

func applySparse(d *Document, acc *Accessor, out []byte) error {
	sp := acc.Sparse
	elem := acc.ElementSize()

	idxView, err := d.ViewBytes(sp.IndicesView)
	if err != nil {
		return err
	}
	isize := sp.IndicesComponent.Size()
	if isize == 0 || sp.IndicesComponent == asset.ComponentByte || sp.IndicesComponent == asset.ComponentShort {
		return fmt.Errorf("%w: sparse indices component %s", asset.ErrMalformedDocument, sp.IndicesComponent)
	}
	if sp.IndicesByteOffset < 0 || sp.IndicesByteOffset+sp.Count*isize > len(idxView) {
		return rangeError("sparse indices exceed bufferView %d", sp.IndicesView)
	}
	valView, err := d.ViewBytes(sp.ValuesView)
	if err != nil {
		return err
	}
	if sp.ValuesByteOffset < 0 || sp.ValuesByteOffset+sp.Count*elem > len(valView) {
		return rangeError("sparse values exceed bufferView %d", sp.ValuesView)
	}

	indices := decodeUints(idxView[sp.IndicesByteOffset:], sp.IndicesComponent, sp.Count)
	values := valView[sp.ValuesByteOffset:]
	for i, target := range indices {
		if int(target) >= acc.Count {
			return rangeError("sparse index %d exceeds count %d", target, acc.Count)
		}
		copy(out[int(target)*elem:(int(target)+1)*elem], values[i*elem:(i+1)*elem])
	}
	return nil
}

func decodeUints(b []byte, c asset.ComponentType, n int) []uint32 {
	out := make([]uint32, n)
	switch c {
	case asset.ComponentUnsignedByte:
		for i := range out {
			out[i] = uint32(b[i])
		}
	case asset.ComponentUnsignedShort:
		for i := range out {
			out[i] = uint32(binary.LittleEndian.Uint16(b[i*2:]))
		}
	case asset.ComponentUnsignedInt:
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(b[i*4:])
		}
	}
	return out
}

// ReadIndices reads a SCALAR unsigned-integer accessor as uint32 values.
func ReadIndices(d *Document, index int) ([]uint32, error) {
	if index < 0 || index >= len(d.Accessors) {
		return nil, outOfRange("accessor", index, len(d.Accessors))
	}
	acc := &d.Accessors[index]
	switch acc.ComponentType {
	case asset.ComponentUnsignedByte, asset.ComponentUnsignedShort, asset.ComponentUnsignedInt:
	default:
		return nil, fmt.Errorf("%w: index accessor %d has component type %s",
			asset.ErrMalformedDocument, index, acc.ComponentType)
	}
	if acc.Type != TypeScalar {
		return nil, fmt.Errorf("%w: index accessor %d has type %s", asset.ErrMalformedDocument, index, acc.Type)
	}
	data, err := ReadAccessor(d, index)
	if err != nil {
		return nil, err
	}
	return decodeUints(data, acc.ComponentType, acc.Count), nil
}

// ReadFloats reads any accessor as float32 components. Normalized integer
// components are mapped to [0,1] or [-1,1].
func ReadFloats(d *Document, index int) ([]float32, error) {
	data, err := ReadAccessor(d, index)
	if err != nil {
		return nil, err
	}
	acc := &d.Accessors[index]
	n := acc.Count * acc.Type.Components()
	out := make([]float32, n)
	for i := range out {
		out[i] = readComponent(data, acc.ComponentType, acc.Normalized, i)
	}
	return out, nil
}

func readComponent(b []byte, c asset.ComponentType, normalized bool, i int) float32 {
	switch c {
	case asset.ComponentFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	case asset.ComponentByte:
		v := float32(int8(b[i]))
		if normalized {
			return max(v/127, -1)
		}
		return v
	case asset.ComponentUnsignedByte:
		v := float32(b[i])
		if normalized {
			return v / 255
		}
		return v
	case asset.ComponentShort:
		v := float32(int16(binary.LittleEndian.Uint16(b[i*2:])))
		if normalized {
			return max(v/32767, -1)
		}
		return v
	case asset.ComponentUnsignedShort:
		v := float32(binary.LittleEndian.Uint16(b[i*2:]))
		if normalized {
			return v / 65535
		}
		return v
	case asset.ComponentUnsignedInt:
		return float32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return 0
}
