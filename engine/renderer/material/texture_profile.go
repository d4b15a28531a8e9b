package material

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Carmen-Shannon/oxy-cull/common"
)

// ErrNoTexture is returned when a profile is built from a nil texture.
var ErrNoTexture = errors.New("material: no texture")

// TextureProfile is the texture access a shading path compiles against. Materials are
// parameterized by their profile, so the choice is made when the material type is instantiated
// rather than per draw.
type TextureProfile interface {
	// HasTexture reports whether a texture is bound at slot.
	//
	// Parameters:
	//   - slot: the texture slot
	//
	// Returns:
	//   - bool: true when SampleTexture reads real texels at slot
	HasTexture(slot uint32) bool

	// SampleTexture returns the nearest texel at (u, v) in [0, 1], wrapping outside. A slot without
	// a texture samples opaque white.
	//
	// Parameters:
	//   - slot: the texture slot
	//   - u, v: texture coordinates, v down
	//
	// Returns:
	//   - [4]float32: RGBA in [0, 1]
	SampleTexture(slot uint32, u, v float32) [4]float32

	// ShaderSource returns the WGSL bindings and the has_texture / sample_texture functions of
	// this profile.
	//
	// Parameters:
	//   - group: the bind group the texture bindings live in
	//
	// Returns:
	//   - string: WGSL source
	ShaderSource(group int) string
}

var (
	_ TextureProfile = BindlessProfile{}
	_ TextureProfile = BoundTextureProfile{}
)

// BindlessProfile exposes every texture as one array indexed by slot.
type BindlessProfile struct {
	Textures []common.TextureStagingData
}

// NewBindlessProfile decodes the given textures into consecutive slots. A nil entry leaves its
// slot empty.
//
// Parameters:
//   - textures: encoded textures, slot i at index i
//
// Returns:
//   - BindlessProfile: the profile
//   - error: the first decode error
func NewBindlessProfile(textures ...*common.ImportedTexture) (BindlessProfile, error) {
	p := BindlessProfile{Textures: make([]common.TextureStagingData, len(textures))}
	for i, tex := range textures {
		if tex == nil {
			continue
		}
		data, err := tex.Decode()
		if err != nil {
			return BindlessProfile{}, fmt.Errorf("slot %d: %w", i, err)
		}
		p.Textures[i] = data
	}
	return p, nil
}

func (p BindlessProfile) HasTexture(slot uint32) bool {
	return int(slot) < len(p.Textures) && len(p.Textures[slot].Pixels) > 0
}

func (p BindlessProfile) SampleTexture(slot uint32, u, v float32) [4]float32 {
	if !p.HasTexture(slot) {
		return [4]float32{1, 1, 1, 1}
	}
	return sampleNearest(&p.Textures[slot], u, v)
}

func (p BindlessProfile) ShaderSource(group int) string {
	n := max(len(p.Textures), 1)
	var b strings.Builder
	fmt.Fprintf(&b, "@group(%d) @binding(0) var material_sampler: sampler;\n", group)
	fmt.Fprintf(&b, "@group(%d) @binding(1) var material_textures: binding_array<texture_2d<f32>, %d>;\n", group, n)
	fmt.Fprintf(&b, "@group(%d) @binding(2) var<storage, read> material_present: array<u32>;\n\n", group)
	fmt.Fprintf(&b, "fn has_texture(slot: u32) -> bool {\n")
	fmt.Fprintf(&b, "    return slot < %du && material_present[slot] != 0u;\n}\n\n", n)
	fmt.Fprintf(&b, "fn sample_texture(slot: u32, uv: vec2<f32>) -> vec4<f32> {\n")
	fmt.Fprintf(&b, "    if (!has_texture(slot)) {\n        return vec4<f32>(1.0);\n    }\n")
	fmt.Fprintf(&b, "    return textureSample(material_textures[slot], material_sampler, uv);\n}\n")
	return b.String()
}

// BoundTextureProfile binds a single texture at one slot, for devices without texture arrays.
type BoundTextureProfile struct {
	Slot    uint32
	Texture common.TextureStagingData
}

// NewBoundTextureProfile decodes one texture and binds it at slot.
//
// Parameters:
//   - slot: the only slot that has a texture
//   - tex: the encoded texture
//
// Returns:
//   - BoundTextureProfile: the profile
//   - error: ErrNoTexture or a decode error
func NewBoundTextureProfile(slot uint32, tex *common.ImportedTexture) (BoundTextureProfile, error) {
	if tex == nil {
		return BoundTextureProfile{}, ErrNoTexture
	}
	data, err := tex.Decode()
	if err != nil {
		return BoundTextureProfile{}, err
	}
	return BoundTextureProfile{Slot: slot, Texture: data}, nil
}

func (p BoundTextureProfile) HasTexture(slot uint32) bool {
	return slot == p.Slot && len(p.Texture.Pixels) > 0
}

func (p BoundTextureProfile) SampleTexture(slot uint32, u, v float32) [4]float32 {
	if !p.HasTexture(slot) {
		return [4]float32{1, 1, 1, 1}
	}
	return sampleNearest(&p.Texture, u, v)
}

func (p BoundTextureProfile) ShaderSource(group int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@group(%d) @binding(0) var material_sampler: sampler;\n", group)
	fmt.Fprintf(&b, "@group(%d) @binding(1) var material_texture: texture_2d<f32>;\n\n", group)
	fmt.Fprintf(&b, "const MATERIAL_BOUND_SLOT: u32 = %du;\n\n", p.Slot)
	fmt.Fprintf(&b, "fn has_texture(slot: u32) -> bool {\n")
	fmt.Fprintf(&b, "    return slot == MATERIAL_BOUND_SLOT;\n}\n\n")
	fmt.Fprintf(&b, "fn sample_texture(slot: u32, uv: vec2<f32>) -> vec4<f32> {\n")
	fmt.Fprintf(&b, "    if (!has_texture(slot)) {\n        return vec4<f32>(1.0);\n    }\n")
	fmt.Fprintf(&b, "    return textureSample(material_texture, material_sampler, uv);\n}\n")
	return b.String()
}

// sampleNearest reads the texel under (u, v) with repeat wrapping.
func sampleNearest(t *common.TextureStagingData, u, v float32) [4]float32 {
	if t.Width == 0 || t.Height == 0 {
		return [4]float32{1, 1, 1, 1}
	}
	wrap := func(c float32, size uint32) uint32 {
		f := c - float32(math.Floor(float64(c)))
		i := uint32(f * float32(size))
		return min(i, size-1)
	}
	x, y := wrap(u, t.Width), wrap(v, t.Height)
	i := (y*t.Width + x) * 4
	return [4]float32{
		float32(t.Pixels[i]) / 255,
		float32(t.Pixels[i+1]) / 255,
		float32(t.Pixels[i+2]) / 255,
		float32(t.Pixels[i+3]) / 255,
	}
}
