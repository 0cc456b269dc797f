// Package meshopt implements the index and vertex buffer optimizations the
// mesh stage runs: vertex cache ordering, overdraw reduction, vertex fetch
// remapping, simplification, shadow indices and meshlet building.
//
// Every function takes triangle-list indices and returns new slices; inputs
// are never modified.
package meshopt

import "github.com/chewxy/math32"

// DefaultCacheSize is the simulated post-transform cache size.
const DefaultCacheSize = 16

// Forsyth scoring constants.
const (
	cacheDecayPower   = 1.5
	lastTriScore      = 0.75
	valenceBoostScale = 2.0
	valenceBoostPower = 0.5
)

func vertexScore(cachePos, cacheSize, valence int) float32 {
	if valence == 0 {
		return -1
	}
	var score float32
	if cachePos >= 0 {
		if cachePos < 3 {
			score = lastTriScore
		} else {
			scale := 1 / float32(cacheSize-3)
			score = math32.Pow(1-float32(cachePos-3)*scale, cacheDecayPower)
		}
	}
	return score + valenceBoostScale*math32.Pow(float32(valence), -valenceBoostPower)
}

// adjacency lists the triangles using each vertex.
type adjacency struct {
	offsets []int
	tris    []int
}

func buildAdjacency(indices []uint32, vertexCount int) adjacency {
	counts := make([]int, vertexCount+1)
	for _, v := range indices {
		counts[v+1]++
	}
	for i := 1; i < len(counts); i++ {
		counts[i] += counts[i-1]
	}
	adj := adjacency{offsets: counts, tris: make([]int, len(indices))}
	fill := make([]int, vertexCount)
	copy(fill, counts[:vertexCount])
	for i, v := range indices {
		adj.tris[fill[v]] = i / 3
		fill[v]++
	}
	return adj
}

func (a adjacency) of(v uint32) []int {
	return a.tris[a.offsets[v]:a.offsets[v+1]]
}

// OptimizeVertexCache reorders triangles to improve post-transform cache
// hits using Tom Forsyth's linear-speed algorithm. The result is a
// permutation of the input triangles with winding preserved.
func OptimizeVertexCache(indices []uint32, vertexCount, cacheSize int) []uint32 {
	if cacheSize < 4 {
		cacheSize = DefaultCacheSize
	}
	triCount := len(indices) / 3
	out := make([]uint32, 0, triCount*3)
	if triCount == 0 {
		return out
	}

	adj := buildAdjacency(indices, vertexCount)
	valence := make([]int, vertexCount)
	cachePos := make([]int, vertexCount)
	vscore := make([]float32, vertexCount)
	for v := range valence {
		valence[v] = adj.offsets[v+1] - adj.offsets[v]
		cachePos[v] = -1
		vscore[v] = vertexScore(-1, cacheSize, valence[v])
	}

	emitted := make([]bool, triCount)
	tscore := make([]float32, triCount)
	for t := range tscore {
		tscore[t] = vscore[indices[t*3]] + vscore[indices[t*3+1]] + vscore[indices[t*3+2]]
	}

	cache := make([]uint32, 0, cacheSize+3)
	next := make([]uint32, 0, cacheSize+3)
	cursor := 0
	best := -1

	for len(out) < triCount*3 {
		if best < 0 {
			// Nothing in the cache scores; resume at the next unemitted triangle.
			for emitted[cursor] {
				cursor++
			}
			best = cursor
		}

		tri := indices[best*3 : best*3+3]
		out = append(out, tri...)
		emitted[best] = true
		for _, v := range tri {
			valence[v]--
		}

		// Move the triangle's vertices to the front of the cache.
		next = append(next[:0], tri...)
		for _, v := range cache {
			if v != tri[0] && v != tri[1] && v != tri[2] {
				next = append(next, v)
			}
		}
		for i, v := range next {
			if i < cacheSize {
				cachePos[v] = i
			} else {
				cachePos[v] = -1
			}
		}
		touched := next
		if len(next) > cacheSize {
			next = next[:cacheSize]
		}
		cache, next = append(cache[:0], next...), next[:0]

		for _, v := range touched {
			vscore[v] = vertexScore(cachePos[v], cacheSize, valence[v])
		}
		best = -1
		var bestScore float32 = -1
		for _, v := range cache {
			for _, t := range adj.of(v) {
				if emitted[t] {
					continue
				}
				s := vscore[indices[t*3]] + vscore[indices[t*3+1]] + vscore[indices[t*3+2]]
				tscore[t] = s
				if s > bestScore {
					best, bestScore = t, s
				}
			}
		}
	}
	return out
}

// ACMR returns the average number of simulated FIFO cache misses per
// triangle.
func ACMR(indices []uint32, vertexCount, cacheSize int) float32 {
	triCount := len(indices) / 3
	if triCount == 0 {
		return 0
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	stamps := make([]int, vertexCount)
	timestamp := cacheSize + 1
	misses := 0
	for _, v := range indices {
		if timestamp-stamps[v] > cacheSize {
			stamps[v] = timestamp
			timestamp++
			misses++
		}
	}
	return float32(misses) / float32(triCount)
}
