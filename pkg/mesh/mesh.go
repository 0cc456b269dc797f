// Package mesh turns decoded geometry into GPU-ready primitives: degenerate
// triangles are removed, triangles and vertices are reordered for the
// post-transform and fetch caches, and simplified levels, shadow indices and
// meshlets are derived.
package mesh

import (
	"fmt"
	"slices"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/meshopt"
)

// LOD heuristic used when AutoLOD is set.
const (
	AutoLODScale        = 0.1
	AutoLODMaxLevels    = 3
	AutoLODMinTriangles = 47
)

// Options controls Process.
type Options struct {
	// CacheSize is the simulated post-transform cache size.
	CacheSize int
	// OverdrawThreshold is the ACMR budget of the overdraw pass relative to
	// the cache-optimized order. Zero disables the pass.
	OverdrawThreshold float32
	// SimplificationTargets are triangle budgets for LOD levels.
	SimplificationTargets []int
	// AutoLOD derives budgets when SimplificationTargets is empty.
	AutoLOD bool
	// Meshlets enables meshlet building.
	Meshlets bool
}

// DefaultOptions returns the options used by the importer.
func DefaultOptions() Options {
	return Options{
		CacheSize:         meshopt.DefaultCacheSize,
		OverdrawThreshold: meshopt.DefaultOverdrawThreshold,
	}
}

// Process optimizes one primitive. The steps run in a fixed order:
// degenerate removal, vertex cache ordering, overdraw reduction, vertex
// fetch remapping and simplification. g is not modified.
func Process(g *asset.Geometry, opts Options) (*asset.Primitive, error) {
	if g.VertexCount == 0 || g.TriangleCount() == 0 {
		return nil, fmt.Errorf("%w: %d vertices, %d triangles", asset.ErrEmptyPrimitive, g.VertexCount, g.TriangleCount())
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = meshopt.DefaultCacheSize
	}

	positions, err := g.Positions()
	if err != nil {
		return nil, err
	}

	indices := meshopt.RemoveDegenerates(g.Indices, positions)
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: all %d triangles are degenerate", asset.ErrDegenerateMesh, g.TriangleCount())
	}

	indices = meshopt.OptimizeVertexCache(indices, g.VertexCount, opts.CacheSize)
	if opts.OverdrawThreshold > 0 {
		indices = meshopt.OptimizeOverdraw(indices, positions, opts.CacheSize, opts.OverdrawThreshold)
	}

	prim, err := remap(g, indices)
	if err != nil {
		return nil, err
	}
	if positions, err = asset.DecodePositions(prim.Stream(asset.SemanticPosition), prim.VertexCount); err != nil {
		return nil, err
	}

	lo, hi := meshopt.ComputeBounds(positions, nil)
	prim.Bounds = asset.Bounds{Min: lo, Max: hi}

	targets := lodTargets(prim.TriangleCount(), opts)
	prim.LODs = buildLODs(prim.Indices, positions, targets, opts.CacheSize)

	pos := prim.Stream(asset.SemanticPosition)
	prim.ShadowIndices = meshopt.GenerateShadowIndices(prim.Indices, meshopt.Stream{Data: pos.Data, Stride: pos.Format.Size()})

	if opts.Meshlets {
		meshlets, verts, tris := meshopt.BuildMeshlets(prim.Indices, positions, 0, 0)
		prim.Meshlets = make([]asset.Meshlet, len(meshlets))
		for i, m := range meshlets {
			prim.Meshlets[i] = asset.Meshlet(m)
		}
		prim.MeshletVertices = verts
		prim.MeshletTriangles = tris
	}
	return prim, nil
}

// remap renumbers vertices in first-use order, merges exact duplicates and
// applies the one table to every stream.
func remap(g *asset.Geometry, indices []uint32) (*asset.Primitive, error) {
	streams := make([]meshopt.Stream, len(g.Streams))
	for i := range g.Streams {
		streams[i] = meshopt.Stream{Data: g.Streams[i].Data, Stride: g.Streams[i].Format.Size()}
	}
	table, count := meshopt.GenerateVertexRemap(indices, g.VertexCount, streams)

	prim := &asset.Primitive{
		Material:    -1,
		VertexCount: count,
		Streams:     make([]asset.Stream, len(g.Streams)),
		Indices:     meshopt.RemapIndices(indices, table),
	}
	for i, s := range g.Streams {
		prim.Streams[i] = asset.Stream{
			Semantic: s.Semantic,
			Format:   s.Format,
			Data:     meshopt.RemapStream(s.Data, streams[i].Stride, table, count),
		}
	}
	if err := checkConsistency(prim, len(indices)); err != nil {
		return nil, err
	}
	return prim, nil
}

func checkConsistency(p *asset.Primitive, indexCount int) error {
	for i := range p.Streams {
		s := &p.Streams[i]
		if s.Len() != p.VertexCount || len(s.Data) != p.VertexCount*s.Format.Size() {
			return fmt.Errorf("%w: stream %s holds %d elements after remap, want %d",
				asset.ErrSizeMismatch, s.Semantic, s.Len(), p.VertexCount)
		}
	}
	if len(p.Indices) != indexCount {
		return fmt.Errorf("%w: remap changed index count %d to %d", asset.ErrSizeMismatch, indexCount, len(p.Indices))
	}
	for i, v := range p.Indices {
		if int(v) >= p.VertexCount {
			return fmt.Errorf("%w: index %d at position %d exceeds remapped vertex count %d",
				asset.ErrOutOfRangeReference, v, i, p.VertexCount)
		}
	}
	return nil
}

// lodTargets returns descending triangle budgets below triCount.
func lodTargets(triCount int, opts Options) []int {
	var targets []int
	switch {
	case len(opts.SimplificationTargets) > 0:
		for _, t := range opts.SimplificationTargets {
			if t < triCount && t > 0 {
				targets = append(targets, t)
			}
		}
	case opts.AutoLOD:
		budget := triCount
		for len(targets) < AutoLODMaxLevels {
			budget = int(float32(budget) * AutoLODScale)
			if budget < AutoLODMinTriangles {
				break
			}
			targets = append(targets, budget)
		}
	}
	slices.Sort(targets)
	slices.Reverse(targets)
	return slices.Compact(targets)
}

func buildLODs(indices []uint32, positions [][3]float32, targets []int, cacheSize int) []asset.LOD {
	if len(targets) == 0 {
		return nil
	}
	lods := make([]asset.LOD, 0, len(targets))
	var prevErr float32
	for _, target := range targets {
		simplified, lodErr := meshopt.Simplify(indices, positions, target)
		lodErr = max(lodErr, prevErr)
		prevErr = lodErr
		lods = append(lods, asset.LOD{
			Indices: meshopt.OptimizeVertexCache(simplified, len(positions), cacheSize),
			Error:   lodErr,
		})
	}
	return lods
}
