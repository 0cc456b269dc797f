package meshopt

import "github.com/chewxy/math32"

// DegenerateEpsilon is the relative area below which a triangle is
// considered collapsed: |e1 x e2| <= eps * |e1| * |e2|.
const DegenerateEpsilon = 1e-7

// RemoveDegenerates drops triangles with a repeated index or a near-zero
// area.
func RemoveDegenerates(indices []uint32, positions [][3]float32) []uint32 {
	out := make([]uint32, 0, len(indices))
	for t := 0; t+2 < len(indices); t += 3 {
		a, b, c := indices[t], indices[t+1], indices[t+2]
		if a == b || b == c || a == c {
			continue
		}
		e1 := sub(positions[b], positions[a])
		e2 := sub(positions[c], positions[a])
		if length(cross(e1, e2)) <= DegenerateEpsilon*length(e1)*length(e2) {
			continue
		}
		out = append(out, a, b, c)
	}
	return out
}

const maxGridResolution = 1024

// Simplify reduces indices to at most targetTriangles triangles by vertex
// clustering. Vertices are snapped to a uniform grid and each cell is
// represented by its existing vertex closest to the cell mean, so the result
// indexes the same vertex buffer. The grid coarsens by a factor of 3/4 until
// the budget is met. The returned error is the cell size relative to the
// bounding box extent.
func Simplify(indices []uint32, positions [][3]float32, targetTriangles int) ([]uint32, float32) {
	triCount := len(indices) / 3
	if triCount <= targetTriangles {
		out := make([]uint32, len(indices))
		copy(out, indices)
		return out, 0
	}

	used := usedVertices(indices, len(positions))
	lo, hi := ComputeBounds(positions, used)
	extent := max(hi[0]-lo[0], hi[1]-lo[1], hi[2]-lo[2])
	if extent <= 0 || targetTriangles <= 0 {
		return []uint32{}, 1
	}

	res := min(maxGridResolution, int(math32.Ceil(math32.Sqrt(float32(triCount))))+1)
	for {
		out := clusterIndices(indices, positions, used, lo, extent, res)
		if len(out)/3 <= targetTriangles || res == 1 {
			return out, 1 / float32(res)
		}
		res = max(1, res*3/4)
	}
}

func usedVertices(indices []uint32, vertexCount int) []bool {
	used := make([]bool, vertexCount)
	for _, v := range indices {
		used[v] = true
	}
	return used
}

func clusterIndices(indices []uint32, positions [][3]float32, used []bool, lo [3]float32, extent float32, res int) []uint32 {
	cellSize := extent / float32(res)
	cellOf := func(p [3]float32) int {
		var c [3]int
		for k := range c {
			c[k] = min(res-1, max(0, int(math32.Floor((p[k]-lo[k])/cellSize))))
		}
		return (c[2]*res+c[1])*res + c[0]
	}

	type accum struct {
		sum   [3]float32
		count int
		rep   uint32
		dist  float32
	}
	cells := make(map[int]*accum)
	vertexCell := make([]int, len(positions))
	for v, p := range positions {
		if !used[v] {
			continue
		}
		id := cellOf(p)
		vertexCell[v] = id
		a := cells[id]
		if a == nil {
			a = &accum{dist: math32.Inf(1)}
			cells[id] = a
		}
		for k := range a.sum {
			a.sum[k] += p[k]
		}
		a.count++
	}
	for v, p := range positions {
		if !used[v] {
			continue
		}
		a := cells[vertexCell[v]]
		n := float32(a.count)
		mean := [3]float32{a.sum[0] / n, a.sum[1] / n, a.sum[2] / n}
		d := sub(p, mean)
		if dist := d[0]*d[0] + d[1]*d[1] + d[2]*d[2]; dist < a.dist {
			a.dist = dist
			a.rep = uint32(v)
		}
	}

	seen := make(map[[3]uint32]struct{})
	out := make([]uint32, 0, len(indices))
	for t := 0; t+2 < len(indices); t += 3 {
		a := cells[vertexCell[indices[t]]].rep
		b := cells[vertexCell[indices[t+1]]].rep
		c := cells[vertexCell[indices[t+2]]].rep
		if a == b || b == c || a == c {
			continue
		}
		// Rotate so the smallest index leads; winding is kept.
		for a > b || a > c {
			a, b, c = b, c, a
		}
		key := [3]uint32{a, b, c}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a, b, c)
	}
	return out
}

// ComputeBounds returns the axis-aligned box of the positions selected by
// used, or of all positions when used is nil.
func ComputeBounds(positions [][3]float32, used []bool) (lo, hi [3]float32) {
	first := true
	for v, p := range positions {
		if used != nil && !used[v] {
			continue
		}
		if first {
			lo, hi = p, p
			first = false
			continue
		}
		for k := 0; k < 3; k++ {
			lo[k] = math32.Min(lo[k], p[k])
			hi[k] = math32.Max(hi[k], p[k])
		}
	}
	return lo, hi
}
