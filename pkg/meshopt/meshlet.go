package meshopt

import "github.com/chewxy/math32"

// Meshlet limits.
const (
	MaxMeshletVertices  = 64
	MaxMeshletTriangles = 124
)

// Meshlet is a cluster of triangles. VertexOffset indexes the vertex table;
// TriangleOffset indexes the byte table, three local indices per triangle.
type Meshlet struct {
	VertexOffset   uint32
	VertexCount    uint32
	TriangleOffset uint32
	TriangleCount  uint32
	Center         [3]float32
	Radius         float32
}

// BuildMeshlets splits indices into meshlets in submission order. Each
// meshlet references at most maxVertices vertices and maxTriangles
// triangles; zero limits use the defaults.
func BuildMeshlets(indices []uint32, positions [][3]float32, maxVertices, maxTriangles int) ([]Meshlet, []uint32, []uint8) {
	if maxVertices <= 0 || maxVertices > 256 {
		maxVertices = MaxMeshletVertices
	}
	if maxTriangles <= 0 {
		maxTriangles = MaxMeshletTriangles
	}

	var (
		meshlets  []Meshlet
		vertices  []uint32
		triangles []uint8
	)
	local := make([]int, len(positions))
	for i := range local {
		local[i] = -1
	}
	cur := Meshlet{}

	flush := func() {
		if cur.TriangleCount == 0 {
			return
		}
		verts := vertices[cur.VertexOffset:]
		cur.Center, cur.Radius = boundingSphere(positions, verts)
		for _, v := range verts {
			local[v] = -1
		}
		meshlets = append(meshlets, cur)
		cur = Meshlet{
			VertexOffset:   uint32(len(vertices)),
			TriangleOffset: uint32(len(triangles)),
		}
	}

	for t := 0; t+2 < len(indices); t += 3 {
		tri := indices[t : t+3]
		fresh := 0
		for i, v := range tri {
			if local[v] < 0 && (i == 0 || v != tri[0]) && (i < 2 || v != tri[1]) {
				fresh++
			}
		}
		if int(cur.VertexCount)+fresh > maxVertices || int(cur.TriangleCount) >= maxTriangles {
			flush()
		}
		for _, v := range tri {
			if local[v] < 0 {
				local[v] = int(cur.VertexCount)
				vertices = append(vertices, v)
				cur.VertexCount++
			}
			triangles = append(triangles, uint8(local[v]))
		}
		cur.TriangleCount++
	}
	flush()
	return meshlets, vertices, triangles
}

func boundingSphere(positions [][3]float32, verts []uint32) ([3]float32, float32) {
	lo, hi := positions[verts[0]], positions[verts[0]]
	for _, v := range verts[1:] {
		p := positions[v]
		for k := 0; k < 3; k++ {
			lo[k] = math32.Min(lo[k], p[k])
			hi[k] = math32.Max(hi[k], p[k])
		}
	}
	center := [3]float32{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2, (lo[2] + hi[2]) / 2}
	var radius float32
	for _, v := range verts {
		radius = math32.Max(radius, length(sub(positions[v], center)))
	}
	return center, radius
}
