package asset

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Extent returns the length of the box diagonal's largest axis.
func (b Bounds) Extent() float32 {
	e := b.Max[0] - b.Min[0]
	if d := b.Max[1] - b.Min[1]; d > e {
		e = d
	}
	if d := b.Max[2] - b.Min[2]; d > e {
		e = d
	}
	return e
}

// LOD is a simplified index stream over the owning primitive's vertex buffer.
// Error is relative to the primitive's extent and never decreases from one
// level to the next.
type LOD struct {
	Indices []uint32
	Error   float32
}

// Meshlet is a small cluster of triangles addressed through the primitive's
// MeshletVertices and MeshletTriangles tables.
type Meshlet struct {
	VertexOffset   uint32
	VertexCount    uint32
	TriangleOffset uint32
	TriangleCount  uint32
	Center         [3]float32
	Radius         float32
}

// Primitive is an optimized mesh primitive. Indices, LODs and ShadowIndices all
// address the same vertex streams.
type Primitive struct {
	Material    int
	VertexCount int
	Streams     []Stream
	Indices     []uint32
	LODs        []LOD

	ShadowIndices    []uint32
	Meshlets         []Meshlet
	MeshletVertices  []uint32
	MeshletTriangles []uint8

	Bounds Bounds
}

// Stream returns the stream with the given semantic, or nil.
func (p *Primitive) Stream(sem Semantic) *Stream {
	for i := range p.Streams {
		if p.Streams[i].Semantic == sem {
			return &p.Streams[i]
		}
	}
	return nil
}

// TriangleCount returns the number of triangles at full detail.
func (p *Primitive) TriangleCount() int {
	return len(p.Indices) / 3
}

// Mesh groups the primitives of one source mesh.
type Mesh struct {
	Name       string
	Primitives []Primitive
}

// TriangleCount sums the full-detail triangles of all primitives.
func (m *Mesh) TriangleCount() int {
	n := 0
	for i := range m.Primitives {
		n += m.Primitives[i].TriangleCount()
	}
	return n
}
