package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

// NoAttribute marks an attribute stream that a mesh does not provide.
const NoAttribute = ^uint32(0)

// MaxVerticesPerMesh is the largest vertex count a mesh may have: packed draw indices keep the
// vertex index in their low 24 bits and 0xFFFFFF is reserved for the invalid vertex.
const MaxVerticesPerMesh = 1<<24 - 1

const (
	positionStride = 12
	normalStride   = 12
	texCoordStride = 8
)

var (
	// ErrEmptyMesh is returned when a mesh has no positions or no indices.
	ErrEmptyMesh = errors.New("model: mesh has no geometry")
	// ErrInvalidMesh is returned when a mesh's attributes or indices are inconsistent.
	ErrInvalidMesh = errors.New("model: invalid mesh")
)

// store is the implementation of the Store interface.
type store struct {
	mu *sync.Mutex

	vertices []byte
	indices  []uint32
	meshes   []MeshRange
}

// Store is the shared vertex and index storage every object draws from.
// Attribute streams are stored non-interleaved per mesh so an object addresses each attribute by
// its own byte offset. Meshes are append-only; a View taken with Snapshot stays valid while more
// meshes are added.
type Store interface {
	// AddMesh appends a mesh's attribute streams and indices.
	//
	// Parameters:
	//   - mesh: the mesh to append
	//
	// Returns:
	//   - MeshRange: where the mesh landed in the shared buffers
	//   - error: ErrEmptyMesh or ErrInvalidMesh when the mesh cannot be stored
	AddMesh(mesh Mesh) (MeshRange, error)

	// Meshes returns the ranges of every mesh added so far, in insertion order.
	//
	// Returns:
	//   - []MeshRange: a copy of the mesh ranges
	Meshes() []MeshRange

	// Snapshot returns a read-only view of the current contents, safe to share between goroutines.
	//
	// Returns:
	//   - View: the current vertex and index data
	Snapshot() View
}

var _ Store = &store{}

// NewStore creates an empty Store with the specified options applied.
//
// Parameters:
//   - options: a variadic list of StoreBuilderOption functions to configure the Store
//
// Returns:
//   - Store: a new, empty Store
func NewStore(options ...StoreBuilderOption) Store {
	s := &store{mu: &sync.Mutex{}}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *store) AddMesh(mesh Mesh) (MeshRange, error) {
	if len(mesh.Positions) == 0 || len(mesh.Indices) == 0 {
		return MeshRange{}, fmt.Errorf("%w: %q", ErrEmptyMesh, mesh.Name)
	}
	if err := validateMesh(mesh); err != nil {
		return MeshRange{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := MeshRange{
		FirstIndex:     uint32(len(s.indices)),
		IndexCount:     uint32(len(mesh.Indices)),
		VertexCount:    uint32(len(mesh.Positions)),
		NormalOffset:   NoAttribute,
		TexCoordOffset: NoAttribute,
	}
	r.BoundsCenter, r.BoundsRadius = ComputeBoundingSphere(mesh.Positions)

	r.PositionOffset = uint32(len(s.vertices))
	for _, p := range mesh.Positions {
		s.vertices = appendFloats(s.vertices, p[:]...)
	}
	if len(mesh.Normals) > 0 {
		r.NormalOffset = uint32(len(s.vertices))
		for _, n := range mesh.Normals {
			s.vertices = appendFloats(s.vertices, n[:]...)
		}
	}
	if len(mesh.TexCoords) > 0 {
		r.TexCoordOffset = uint32(len(s.vertices))
		for _, uv := range mesh.TexCoords {
			s.vertices = appendFloats(s.vertices, uv[:]...)
		}
	}
	s.indices = append(s.indices, mesh.Indices...)
	s.meshes = append(s.meshes, r)

	return r, nil
}

func (s *store) Meshes() []MeshRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MeshRange, len(s.meshes))
	copy(out, s.meshes)
	return out
}

func (s *store) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Vertices: s.vertices[:len(s.vertices):len(s.vertices)],
		Indices:  s.indices[:len(s.indices):len(s.indices)],
	}
}

func validateMesh(mesh Mesh) error {
	n := len(mesh.Positions)
	switch {
	case n > MaxVerticesPerMesh:
		return fmt.Errorf("%w: %q has %d vertices, limit is %d", ErrInvalidMesh, mesh.Name, n, MaxVerticesPerMesh)
	case len(mesh.Indices)%3 != 0:
		return fmt.Errorf("%w: %q index count %d is not a multiple of 3", ErrInvalidMesh, mesh.Name, len(mesh.Indices))
	case len(mesh.Normals) != 0 && len(mesh.Normals) != n:
		return fmt.Errorf("%w: %q has %d normals for %d positions", ErrInvalidMesh, mesh.Name, len(mesh.Normals), n)
	case len(mesh.TexCoords) != 0 && len(mesh.TexCoords) != n:
		return fmt.Errorf("%w: %q has %d texcoords for %d positions", ErrInvalidMesh, mesh.Name, len(mesh.TexCoords), n)
	}
	for i, idx := range mesh.Indices {
		if int(idx) >= n {
			return fmt.Errorf("%w: %q index %d references vertex %d of %d", ErrInvalidMesh, mesh.Name, i, idx, n)
		}
	}
	return nil
}

func appendFloats(buf []byte, values ...float32) []byte {
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

// ComputeBoundingSphere returns a bounding sphere for the positions: the center of their
// axis-aligned box and the largest distance from that center.
//
// Parameters:
//   - positions: the vertex positions
//
// Returns:
//   - [3]float32: the sphere center
//   - float32: the sphere radius (0 for no positions)
func ComputeBoundingSphere(positions [][3]float32) ([3]float32, float32) {
	if len(positions) == 0 {
		return [3]float32{}, 0
	}
	lo, hi := positions[0], positions[0]
	for _, p := range positions[1:] {
		for a := 0; a < 3; a++ {
			lo[a] = min(lo[a], p[a])
			hi[a] = max(hi[a], p[a])
		}
	}
	center := [3]float32{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2, (lo[2] + hi[2]) / 2}

	var maxDistSq float32
	for _, p := range positions {
		dx, dy, dz := p[0]-center[0], p[1]-center[1], p[2]-center[2]
		maxDistSq = max(maxDistSq, dx*dx+dy*dy+dz*dz)
	}
	return center, float32(math.Sqrt(float64(maxDistSq)))
}
