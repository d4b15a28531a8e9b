package camera

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-cull/common"
)

// GPUPerCameraUniformSource is the canonical WGSL definition of the PerCameraUniform struct.
// Matches GPUPerCameraUniform layout exactly (224 bytes).
//
//go:embed assets/per_camera_uniform.wgsl
var GPUPerCameraUniformSource string

// Flag bits of GPUPerCameraUniform.Flags.
const (
	FlagWindingMask  uint32 = 0x3
	FlagMultisample  uint32 = 1 << 2
	FlagShadowCaster uint32 = 1 << 3
)

// GPUPerCameraUniformSize is the byte size of the marshalled uniform.
const GPUPerCameraUniformSize = 224

// GPUPerCameraUniform is the GPU-aligned representation of the per-camera constants.
// Matches the WGSL PerCameraUniform struct layout exactly (see GPUPerCameraUniformSource).
type GPUPerCameraUniform struct {
	View       [16]float32                          // offset   0: world-to-view (mat4x4<f32>)
	ViewProj   [16]float32                          // offset  64: view-projection (mat4x4<f32>)
	Planes     [common.FrustumPlaneCount][4]float32 // offset 128: left, right, bottom, top, near (normal xyz, distance w)
	Resolution [2]float32                           // offset 208: render target size in pixels
	Flags      uint32                               // offset 216: winding (bits 0-1), multisample, shadow caster
	_pad       uint32                               // offset 220
}

// Winding extracts the winding mode from Flags.
func (g *GPUPerCameraUniform) Winding() WindingMode {
	return WindingMode(g.Flags & FlagWindingMask)
}

// Size returns the size of the marshalled uniform in bytes.
//
// Returns:
//   - int: the struct size in bytes (224)
func (g *GPUPerCameraUniform) Size() int {
	return GPUPerCameraUniformSize
}

// Marshal serializes the uniform into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUPerCameraUniform) Marshal() []byte {
	buf := make([]byte, g.Size())
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.View[i]))
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(g.ViewProj[i]))
	}
	for p := range g.Planes {
		for i := range 4 {
			binary.LittleEndian.PutUint32(buf[128+p*16+i*4:], math.Float32bits(g.Planes[p][i]))
		}
	}
	binary.LittleEndian.PutUint32(buf[208:], math.Float32bits(g.Resolution[0]))
	binary.LittleEndian.PutUint32(buf[212:], math.Float32bits(g.Resolution[1]))
	binary.LittleEndian.PutUint32(buf[216:], g.Flags)
	return buf
}
