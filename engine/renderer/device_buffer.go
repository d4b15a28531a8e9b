package renderer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
)

// minDeviceBufferSize covers the stride of every runtime array the kernels bind, so empty tables
// still produce valid bindings.
const minDeviceBufferSize = 256

const (
	storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	uniformUsage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
)

// deviceBuffer is a device buffer that is reallocated when a frame needs more room. Reallocation
// drops the contents.
type deviceBuffer struct {
	label string
	usage wgpu.BufferUsage
	buf   *wgpu.Buffer
	size  uint64
}

func newDeviceBuffer(label string, usage wgpu.BufferUsage) *deviceBuffer {
	return &deviceBuffer{label: label, usage: usage}
}

// ensure grows the buffer to at least size bytes.
//
// Returns:
//   - bool: true when the buffer was (re)allocated
//   - error: a device error
func (b *deviceBuffer) ensure(r Renderer, size uint64) (bool, error) {
	size = alignBufferSize(max(size, minDeviceBufferSize))
	if b.buf != nil && b.size >= size {
		return false, nil
	}
	buf, err := r.CreateBuffer(b.label, size, b.usage)
	if err != nil {
		return false, fmt.Errorf("%s: %w", b.label, err)
	}
	b.release()
	b.buf, b.size = buf, size
	return true, nil
}

func (b *deviceBuffer) release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
	b.size = 0
}

func marshalUint32s(values ...uint32) []byte {
	buf := make([]byte, 0, len(values)*4)
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}
	return buf
}

func unmarshalUint32s(buf []byte) []uint32 {
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func marshalFloat32s(values []float32) []byte {
	buf := make([]byte, 0, len(values)*4)
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func unmarshalFloat32s(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
