package compaction

import (
	_ "embed"
	"encoding/binary"
)

// GPUIndirectCallSource is the WGSL definition of IndirectCall and the packed index helpers.
//
//go:embed assets/indirect_call.wgsl
var GPUIndirectCallSource string

// GPUIndirectCallSize is the byte size of one marshalled IndirectCall.
const GPUIndirectCallSize = 20

const (
	// InvalidVertex is the packed index of a vertex that must not be drawn. A triangle made of
	// three of them is degenerate.
	InvalidVertex uint32 = 0x00FFFFFF

	localShift = 24
)

// IndirectCall is one indexed indirect draw: the exact argument layout the graphics API reads.
type IndirectCall struct {
	VertexCount   uint32 // indices to draw, 3 per emitted triangle
	InstanceCount uint32
	BaseIndex     uint32 // first element in the packed index buffer
	VertexOffset  int32
	BaseInstance  uint32 // region (triangle path) or object (object path) id
}

// Size returns the size of the marshalled IndirectCall in bytes.
//
// Returns:
//   - int: the size of the GPU record in bytes.
func (c *IndirectCall) Size() int {
	return GPUIndirectCallSize
}

// Marshal serializes the IndirectCall (20 bytes, little endian, field order as declared).
//
// Returns:
//   - []byte: 20-byte buffer ready for GPU upload.
func (c *IndirectCall) Marshal() []byte {
	buf := make([]byte, GPUIndirectCallSize)
	c.put(buf)
	return buf
}

func (c *IndirectCall) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], c.VertexCount)
	binary.LittleEndian.PutUint32(buf[4:], c.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:], c.BaseIndex)
	binary.LittleEndian.PutUint32(buf[12:], uint32(c.VertexOffset))
	binary.LittleEndian.PutUint32(buf[16:], c.BaseInstance)
}

// MarshalCalls serializes a contiguous array of IndirectCall.
//
// Parameters:
//   - calls: the calls to serialize
//
// Returns:
//   - []byte: len(calls)*20 bytes
func MarshalCalls(calls []IndirectCall) []byte {
	buf := make([]byte, len(calls)*GPUIndirectCallSize)
	for i := range calls {
		calls[i].put(buf[i*GPUIndirectCallSize:])
	}
	return buf
}

// PackIndex packs an object's index inside its region and a vertex index into one draw index.
func PackIndex(local, vertex uint32) uint32 {
	return local<<localShift | vertex&InvalidVertex
}

// UnpackIndex reverses PackIndex.
func UnpackIndex(packed uint32) (local, vertex uint32) {
	return packed >> localShift, packed & InvalidVertex
}

// UnmarshalCalls parses a contiguous array of IndirectCall, e.g. read back from the device.
// Trailing bytes that do not form a whole call are ignored.
//
// Parameters:
//   - buf: little-endian calls, 20 bytes each
//
// Returns:
//   - []IndirectCall: the calls
func UnmarshalCalls(buf []byte) []IndirectCall {
	calls := make([]IndirectCall, len(buf)/GPUIndirectCallSize)
	for i := range calls {
		b := buf[i*GPUIndirectCallSize:]
		calls[i] = IndirectCall{
			VertexCount:   binary.LittleEndian.Uint32(b[0:]),
			InstanceCount: binary.LittleEndian.Uint32(b[4:]),
			BaseIndex:     binary.LittleEndian.Uint32(b[8:]),
			VertexOffset:  int32(binary.LittleEndian.Uint32(b[12:])),
			BaseInstance:  binary.LittleEndian.Uint32(b[16:]),
		}
	}
	return calls
}
