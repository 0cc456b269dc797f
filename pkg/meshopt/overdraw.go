package meshopt

import (
	"sort"

	"github.com/chewxy/math32"
)

// DefaultOverdrawThreshold allows the overdraw pass to cost up to 5% ACMR.
const DefaultOverdrawThreshold = 1.05

type cluster struct {
	start, end int
	sort       float32
}

// OptimizeOverdraw reorders clusters of triangles so that outward-facing
// clusters draw first. indices should already be cache-optimized; clusters
// are split wherever a triangle misses the cache on all three vertices.
// The reordered list is returned only when its ACMR stays within threshold
// times the input's ACMR, otherwise a copy of the input is returned.
func OptimizeOverdraw(indices []uint32, positions [][3]float32, cacheSize int, threshold float32) []uint32 {
	out := make([]uint32, len(indices))
	copy(out, indices)
	triCount := len(indices) / 3
	if triCount < 2 || threshold <= 0 {
		return out
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	clusters := splitClusters(indices, len(positions), cacheSize)
	if len(clusters) < 2 {
		return out
	}

	var meshCentroid [3]float32
	var meshArea float32
	for t := 0; t < triCount; t++ {
		c, n := triangle(positions, indices[t*3:t*3+3])
		area := length(n)
		for k := range meshCentroid {
			meshCentroid[k] += c[k] * area
		}
		meshArea += area
	}
	if meshArea > 0 {
		for k := range meshCentroid {
			meshCentroid[k] /= meshArea
		}
	}

	for i := range clusters {
		cl := &clusters[i]
		var centroid, normal [3]float32
		var area float32
		for t := cl.start; t < cl.end; t++ {
			c, n := triangle(positions, indices[t*3:t*3+3])
			a := length(n)
			for k := 0; k < 3; k++ {
				centroid[k] += c[k] * a
				normal[k] += n[k]
			}
			area += a
		}
		if area > 0 {
			for k := range centroid {
				centroid[k] /= area
			}
		}
		nl := length(normal)
		if nl == 0 {
			continue
		}
		for k := 0; k < 3; k++ {
			cl.sort += (centroid[k] - meshCentroid[k]) * normal[k] / nl
		}
	}

	sort.SliceStable(clusters, func(a, b int) bool {
		return clusters[a].sort > clusters[b].sort
	})

	reordered := make([]uint32, 0, len(indices))
	for _, cl := range clusters {
		reordered = append(reordered, indices[cl.start*3:cl.end*3]...)
	}

	before := ACMR(indices, len(positions), cacheSize)
	after := ACMR(reordered, len(positions), cacheSize)
	if after > before*threshold {
		return out
	}
	return reordered
}

func splitClusters(indices []uint32, vertexCount, cacheSize int) []cluster {
	stamps := make([]int, vertexCount)
	timestamp := cacheSize + 1
	var clusters []cluster
	start := 0
	for t := 0; t < len(indices)/3; t++ {
		misses := 0
		for _, v := range indices[t*3 : t*3+3] {
			if timestamp-stamps[v] > cacheSize {
				stamps[v] = timestamp
				timestamp++
				misses++
			}
		}
		if misses == 3 && t > start {
			clusters = append(clusters, cluster{start: start, end: t})
			start = t
		}
	}
	return append(clusters, cluster{start: start, end: len(indices) / 3})
}

// triangle returns the centroid and the unnormalized face normal, whose
// length is twice the triangle area.
func triangle(positions [][3]float32, tri []uint32) ([3]float32, [3]float32) {
	a, b, c := positions[tri[0]], positions[tri[1]], positions[tri[2]]
	var centroid [3]float32
	for k := range centroid {
		centroid[k] = (a[k] + b[k] + c[k]) / 3
	}
	return centroid, cross(sub(b, a), sub(c, a))
}

func sub(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func length(v [3]float32) float32 {
	return math32.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
