package meshopt

// Unused marks a vertex no index refers to in a remap table.
const Unused = ^uint32(0)

// Stream is one vertex attribute buffer with a fixed element stride.
type Stream struct {
	Data   []byte
	Stride int
}

// GenerateVertexRemap builds a table that renumbers vertices in the order
// they are first referenced by indices. Vertices whose bytes are identical
// in every stream share one new index. Unreferenced vertices map to Unused.
// It returns the table and the number of vertices that remain.
func GenerateVertexRemap(indices []uint32, vertexCount int, streams []Stream) ([]uint32, int) {
	remap := make([]uint32, vertexCount)
	for i := range remap {
		remap[i] = Unused
	}

	keySize := 0
	for _, s := range streams {
		keySize += s.Stride
	}
	seen := make(map[string]uint32, vertexCount)
	key := make([]byte, 0, keySize)
	next := uint32(0)
	for _, v := range indices {
		if remap[v] != Unused {
			continue
		}
		key = key[:0]
		for _, s := range streams {
			key = append(key, s.Data[int(v)*s.Stride:int(v+1)*s.Stride]...)
		}
		if dst, ok := seen[string(key)]; ok {
			remap[v] = dst
			continue
		}
		seen[string(key)] = next
		remap[v] = next
		next++
	}
	return remap, int(next)
}

// RemapIndices applies a remap table to an index list.
func RemapIndices(indices, remap []uint32) []uint32 {
	out := make([]uint32, len(indices))
	for i, v := range indices {
		out[i] = remap[v]
	}
	return out
}

// RemapStream reorders one stream's elements through a remap table into a
// buffer of newCount elements.
func RemapStream(data []byte, stride int, remap []uint32, newCount int) []byte {
	out := make([]byte, newCount*stride)
	for v, dst := range remap {
		if dst == Unused {
			continue
		}
		copy(out[int(dst)*stride:int(dst+1)*stride], data[v*stride:(v+1)*stride])
	}
	return out
}

// GenerateShadowIndices returns an index list over the same vertex buffer in
// which vertices that share a position are collapsed to the first one. Depth
// only passes can then skip attribute seams.
func GenerateShadowIndices(indices []uint32, position Stream) []uint32 {
	first := make(map[string]uint32)
	out := make([]uint32, len(indices))
	for i, v := range indices {
		key := string(position.Data[int(v)*position.Stride : int(v+1)*position.Stride])
		dst, ok := first[key]
		if !ok {
			dst = v
			first[key] = v
		}
		out[i] = dst
	}
	return out
}
