package batch

import (
	_ "embed"
	"encoding/binary"
)

// GPUBatchSource is the canonical WGSL definition of the ObjectCullingInformation and BatchData
// structs. Matches the layouts written by Marshal exactly.
//
//go:embed assets/batch_data.wgsl
var GPUBatchSource string

const (
	// MaxObjectsPerBatch bounds the object ranges of one batch.
	MaxObjectsPerBatch = 256
	// NoPreviousInvocation marks an object without usable temporal data.
	NoPreviousInvocation uint32 = 0xFFFFFFFF

	// GPUObjectCullingInformationSize is the byte size of one marshalled range.
	GPUObjectCullingInformationSize = 32
	// GPUBatchDataSize is the byte size of one marshalled batch: a 16-byte header followed by
	// MaxObjectsPerBatch ranges.
	GPUBatchDataSize = 16 + MaxObjectsPerBatch*GPUObjectCullingInformationSize
)

const flagAtomicCapable uint32 = 1

// ObjectCullingInformation maps a contiguous range of invocations to one object.
type ObjectCullingInformation struct {
	InvocationStart uint32 // first global invocation of the object
	InvocationEnd   uint32 // one past the last; End-Start is the invocation count

	ObjectID             uint32 // index in the object table
	RegionID             uint32 // draw slot shared with the region's other objects
	RegionBaseInvocation uint32 // global invocation where the region starts
	LocalRegionID        uint32 // object index inside the region, the packed index high byte

	// PreviousGlobalInvocation is where this object's range started last frame, or
	// NoPreviousInvocation.
	PreviousGlobalInvocation uint32

	// AtomicCapable is false when the region is too large for atomic slot allocation.
	AtomicCapable bool
}

// Count returns InvocationEnd - InvocationStart.
func (o *ObjectCullingInformation) Count() uint32 {
	return o.InvocationEnd - o.InvocationStart
}

// Marshal serializes the range into the WGSL ObjectCullingInformation layout (32 bytes).
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (o *ObjectCullingInformation) Marshal() []byte {
	buf := make([]byte, GPUObjectCullingInformationSize)
	o.put(buf)
	return buf
}

func (o *ObjectCullingInformation) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], o.InvocationStart)
	binary.LittleEndian.PutUint32(buf[4:], o.InvocationEnd)
	binary.LittleEndian.PutUint32(buf[8:], o.ObjectID)
	binary.LittleEndian.PutUint32(buf[12:], o.RegionID)
	binary.LittleEndian.PutUint32(buf[16:], o.RegionBaseInvocation)
	binary.LittleEndian.PutUint32(buf[20:], o.LocalRegionID)
	binary.LittleEndian.PutUint32(buf[24:], o.PreviousGlobalInvocation)
	var flags uint32
	if o.AtomicCapable {
		flags |= flagAtomicCapable
	}
	binary.LittleEndian.PutUint32(buf[28:], flags)
}

// Size returns the size of the marshalled batch in bytes.
func (b *BatchData) Size() int {
	return GPUBatchDataSize
}

// Marshal serializes the batch into the WGSL BatchData layout. Unused range slots are zero.
//
//	offset  0: total_objects, total_invocations, batch_base_invocation, pad
//	offset 16: ranges array<ObjectCullingInformation, 256>
//
// Returns:
//   - []byte: GPUBatchDataSize bytes ready for GPU upload.
func (b *BatchData) Marshal() []byte {
	buf := make([]byte, GPUBatchDataSize)
	binary.LittleEndian.PutUint32(buf[0:], b.TotalObjects())
	binary.LittleEndian.PutUint32(buf[4:], b.TotalInvocations)
	binary.LittleEndian.PutUint32(buf[8:], b.BatchBaseInvocation)
	for i := range b.Objects {
		b.Objects[i].put(buf[16+i*GPUObjectCullingInformationSize:])
	}
	return buf
}
