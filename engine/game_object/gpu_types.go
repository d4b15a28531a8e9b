package game_object

import (
	_ "embed"
	"encoding/binary"
	"math"
)

// GPUObjectSource is the WGSL definition of the ObjectRecord struct written by Marshal.
//
//go:embed assets/object_record.wgsl
var GPUObjectSource string

// Object is one entry of the object table. The cull kernels only read it.
type Object struct {
	World [16]float32 // model-to-world, column-major

	BoundsCenter [3]float32 // object-space bounding sphere center
	BoundsRadius float32    // object-space bounding sphere radius

	FirstIndex    uint32 // first element in the shared index buffer
	IndexCount    uint32 // three per triangle
	MaterialIndex uint32

	PositionOffset uint32 // byte offsets into the shared vertex store
	NormalOffset   uint32
	TexCoordOffset uint32

	Enabled bool
}

// TriangleCount returns IndexCount / 3.
func (o *Object) TriangleCount() uint32 {
	return o.IndexCount / 3
}

// GPUObjectSize is the byte size of a marshalled Object (std430, 16-byte aligned).
const GPUObjectSize = 112

// Size returns the size of the marshalled Object in bytes.
//
// Returns:
//   - int: the size of the GPU record in bytes.
func (o *Object) Size() int {
	return GPUObjectSize
}

// Marshal serializes the Object into the layout of the WGSL ObjectRecord struct.
//
//	offset   0: world        mat4x4<f32>
//	offset  64: bounds       vec4<f32> (center xyz, radius w)
//	offset  80: first_index, index_count, material_index, position_offset
//	offset  96: normal_offset, texcoord_offset, enabled, pad
//
// Returns:
//   - []byte: 112-byte buffer ready for GPU upload.
func (o *Object) Marshal() []byte {
	buf := make([]byte, GPUObjectSize)
	for i, v := range o.World {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[64:], math.Float32bits(o.BoundsCenter[0]))
	binary.LittleEndian.PutUint32(buf[68:], math.Float32bits(o.BoundsCenter[1]))
	binary.LittleEndian.PutUint32(buf[72:], math.Float32bits(o.BoundsCenter[2]))
	binary.LittleEndian.PutUint32(buf[76:], math.Float32bits(o.BoundsRadius))
	binary.LittleEndian.PutUint32(buf[80:], o.FirstIndex)
	binary.LittleEndian.PutUint32(buf[84:], o.IndexCount)
	binary.LittleEndian.PutUint32(buf[88:], o.MaterialIndex)
	binary.LittleEndian.PutUint32(buf[92:], o.PositionOffset)
	binary.LittleEndian.PutUint32(buf[96:], o.NormalOffset)
	binary.LittleEndian.PutUint32(buf[100:], o.TexCoordOffset)
	if o.Enabled {
		binary.LittleEndian.PutUint32(buf[104:], 1)
	}
	return buf
}

// MarshalTable serializes a whole object table back to back.
func MarshalTable(objects []Object) []byte {
	buf := make([]byte, 0, len(objects)*GPUObjectSize)
	for i := range objects {
		buf = append(buf, objects[i].Marshal()...)
	}
	return buf
}
