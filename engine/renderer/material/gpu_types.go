package material

import (
	_ "embed"
	"encoding/binary"
	"math"
)

// GPUMaterialParamsSource is the canonical WGSL definition of the MaterialParams struct.
// Matches GPUMaterialParams layout exactly (32 bytes, std430 aligned).
//
//go:embed assets/material_params.wgsl
var GPUMaterialParamsSource string

// GPUMaterialParamsSize is the byte size of a marshalled GPUMaterialParams.
const GPUMaterialParamsSize = 32

// FlagTextured is set in GPUMaterialParams.Flags when the material's profile holds a texture at
// its slot.
const FlagTextured uint32 = 1

// GPUMaterialParams is the per-material record the shading stage reads.
type GPUMaterialParams struct {
	BaseColor   [4]float32 // offset 0
	Metallic    float32    // offset 16
	Roughness   float32    // offset 20
	TextureSlot uint32     // offset 24
	Flags       uint32     // offset 28
}

// Size returns the size of the GPUMaterialParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUMaterialParams) Size() int {
	return GPUMaterialParamsSize
}

// Marshal serializes the GPUMaterialParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUMaterialParams) Marshal() []byte {
	buf := make([]byte, GPUMaterialParamsSize)
	for i, c := range g.BaseColor {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(c))
	}
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Metallic))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.Roughness))
	binary.LittleEndian.PutUint32(buf[24:28], g.TextureSlot)
	binary.LittleEndian.PutUint32(buf[28:32], g.Flags)
	return buf
}
