package model

import (
	"encoding/binary"
	"math"
)

// View is an immutable snapshot of a Store. The visibility kernels read from it without locking.
type View struct {
	// Vertices holds every mesh's attribute streams, little-endian float32.
	Vertices []byte
	// Indices is the shared index buffer, mesh-relative vertex indices.
	Indices []uint32
}

// Position reads the position of a vertex from the stream starting at positionOffset.
// Out-of-range reads return the origin.
func (v View) Position(positionOffset, vertex uint32) [3]float32 {
	off := uint64(positionOffset) + uint64(vertex)*positionStride
	if off+positionStride > uint64(len(v.Vertices)) {
		return [3]float32{}
	}
	b := v.Vertices[off : off+positionStride]
	return [3]float32{
		math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
	}
}

// Triangle returns the three mesh-relative vertex indices of triangle t of a mesh whose indices
// start at firstIndex. ok is false when the triangle lies outside the index buffer.
func (v View) Triangle(firstIndex, t uint32) (i0, i1, i2 uint32, ok bool) {
	base := uint64(firstIndex) + uint64(t)*3
	if base+3 > uint64(len(v.Indices)) {
		return 0, 0, 0, false
	}
	return v.Indices[base], v.Indices[base+1], v.Indices[base+2], true
}
