package model

// Mesh is an indexed triangle mesh handed to the Store. Indices are mesh-relative vertex indices.
type Mesh struct {
	// Name is the mesh identifier.
	Name string

	// Positions are the object-space vertex positions. Required.
	Positions [][3]float32

	// Normals are optional; when present there must be one per position.
	Normals [][3]float32

	// TexCoords are optional; when present there must be one per position.
	TexCoords [][2]float32

	// Indices lists three vertex indices per triangle.
	Indices []uint32
}

// MeshRange locates a mesh inside the shared store. Offsets are in bytes into the vertex data,
// FirstIndex and IndexCount are in elements of the shared index buffer.
type MeshRange struct {
	// FirstIndex is the position of the mesh's first index in the shared index buffer.
	FirstIndex uint32

	// IndexCount is the number of indices (three per triangle).
	IndexCount uint32

	// VertexCount is the number of vertices the mesh contributed.
	VertexCount uint32

	// PositionOffset, NormalOffset and TexCoordOffset are byte offsets of the mesh's attribute
	// streams. NormalOffset and TexCoordOffset equal NoAttribute when the stream is absent.
	PositionOffset uint32
	NormalOffset   uint32
	TexCoordOffset uint32

	// BoundsCenter and BoundsRadius describe the object-space bounding sphere.
	BoundsCenter [3]float32
	BoundsRadius float32
}

// TriangleCount returns IndexCount / 3.
func (r MeshRange) TriangleCount() uint32 {
	return r.IndexCount / 3
}
