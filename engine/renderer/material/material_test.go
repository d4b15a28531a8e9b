package material

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/common"
)

// checker returns a PNG-encoded 2x2 texture: red, green on top, blue, white below.
func checker(t *testing.T) *common.ImportedTexture {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{0, 255, 0, 255})
	img.Set(0, 1, color.RGBA{0, 0, 255, 255})
	img.Set(1, 1, color.RGBA{255, 255, 255, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return &common.ImportedTexture{Name: "checker", Data: buf.Bytes()}
}

func TestBindlessProfileSlots(t *testing.T) {
	p, err := NewBindlessProfile(nil, checker(t))
	if err != nil {
		t.Fatalf("NewBindlessProfile: %v", err)
	}
	if p.HasTexture(0) || !p.HasTexture(1) || p.HasTexture(2) {
		t.Errorf("HasTexture = %v %v %v, want false true false", p.HasTexture(0), p.HasTexture(1), p.HasTexture(2))
	}
	if got := p.SampleTexture(0, 0.1, 0.1); got != [4]float32{1, 1, 1, 1} {
		t.Errorf("empty slot sample = %v, want white", got)
	}

	tests := []struct {
		u, v float32
		want [4]float32
	}{
		{0.25, 0.25, [4]float32{1, 0, 0, 1}},
		{0.75, 0.25, [4]float32{0, 1, 0, 1}},
		{0.25, 0.75, [4]float32{0, 0, 1, 1}},
		{1.25, 0.25, [4]float32{1, 0, 0, 1}},  // wraps
		{-0.25, 0.25, [4]float32{0, 1, 0, 1}}, // wraps from below
		{1.0, 1.0, [4]float32{1, 0, 0, 1}},
	}
	for _, tt := range tests {
		if got := p.SampleTexture(1, tt.u, tt.v); got != tt.want {
			t.Errorf("SampleTexture(1, %v, %v) = %v, want %v", tt.u, tt.v, got, tt.want)
		}
	}
}

func TestBindlessProfileDecodeError(t *testing.T) {
	_, err := NewBindlessProfile(&common.ImportedTexture{Data: []byte("not an image")})
	if err == nil {
		t.Fatal("garbage texture decoded")
	}
}

func TestBoundTextureProfile(t *testing.T) {
	if _, err := NewBoundTextureProfile(0, nil); !errors.Is(err, ErrNoTexture) {
		t.Errorf("nil texture: err = %v, want ErrNoTexture", err)
	}
	p, err := NewBoundTextureProfile(3, checker(t))
	if err != nil {
		t.Fatalf("NewBoundTextureProfile: %v", err)
	}
	if !p.HasTexture(3) || p.HasTexture(0) {
		t.Error("bound profile must only answer for its slot")
	}
	if got := p.SampleTexture(3, 0.75, 0.75); got != [4]float32{1, 1, 1, 1} {
		t.Errorf("sample = %v, want white texel", got)
	}
}

func TestShaderSourceDeclaresContract(t *testing.T) {
	bindless, _ := NewBindlessProfile(nil, nil)
	bound := BoundTextureProfile{Slot: 2}
	for name, src := range map[string]string{
		"bindless": bindless.ShaderSource(2),
		"bound":    bound.ShaderSource(2),
	} {
		for _, want := range []string{"fn has_texture(slot: u32) -> bool", "fn sample_texture(slot: u32, uv: vec2<f32>) -> vec4<f32>", "@group(2)"} {
			if !strings.Contains(src, want) {
				t.Errorf("%s source lacks %q", name, want)
			}
		}
	}
	if !strings.Contains(bindless.ShaderSource(0), "binding_array<texture_2d<f32>, 2>") {
		t.Error("bindless source does not size the array by slot count")
	}
	if !strings.Contains(bound.ShaderSource(0), "MATERIAL_BOUND_SLOT: u32 = 2u") {
		t.Error("bound source does not pin its slot")
	}
}

func TestMaterialColorAt(t *testing.T) {
	p, err := NewBoundTextureProfile(1, checker(t))
	if err != nil {
		t.Fatalf("NewBoundTextureProfile: %v", err)
	}
	m := NewMaterial(p, WithName("tinted"), WithBaseColor([4]float32{0.5, 0.5, 0.5, 1}), WithTextureSlot(1))
	if m.Name() != "tinted" || !m.Textured() {
		t.Fatalf("material %q textured=%v", m.Name(), m.Textured())
	}
	if got := m.ColorAt(0.25, 0.25); got != [4]float32{0.5, 0, 0, 1} {
		t.Errorf("ColorAt = %v, want tinted red", got)
	}

	plain := NewMaterial(p, WithBaseColor([4]float32{0.2, 0.3, 0.4, 1}))
	if plain.Textured() || plain.ColorAt(0.25, 0.25) != plain.BaseColor() {
		t.Error("material off the bound slot must use its base color")
	}
	if plain.Roughness() != 1 || plain.Metallic() != 0 {
		t.Errorf("defaults roughness=%v metallic=%v", plain.Roughness(), plain.Metallic())
	}
}

func TestLibraryAndParams(t *testing.T) {
	bindless, err := NewBindlessProfile(checker(t))
	if err != nil {
		t.Fatalf("NewBindlessProfile: %v", err)
	}
	lib := NewLibrary([4]float32{1, 0, 1, 1},
		NewMaterial(bindless, WithMetallic(0.75), WithRoughness(0.25)),
		NewMaterial(bindless, WithTextureSlot(5), WithBaseColor([4]float32{0, 0, 1, 1})),
	)
	if lib.Len() != 2 || lib.At(2) != nil {
		t.Fatalf("library Len=%d", lib.Len())
	}
	if got := lib.Color(9); got != [4]float32{1, 0, 1, 1} {
		t.Errorf("missing index color = %v, want fallback", got)
	}
	if got := lib.Color(1); got != [4]float32{0, 0, 1, 1} {
		t.Errorf("untextured color = %v", got)
	}

	buf := lib.MarshalParams()
	if len(buf) != 2*GPUMaterialParamsSize {
		t.Fatalf("params = %d bytes", len(buf))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[16:])); got != 0.75 {
		t.Errorf("metallic = %v, want 0.75", got)
	}
	if flags := binary.LittleEndian.Uint32(buf[28:]); flags != FlagTextured {
		t.Errorf("material 0 flags = %d, want textured", flags)
	}
	if slot := binary.LittleEndian.Uint32(buf[GPUMaterialParamsSize+24:]); slot != 5 {
		t.Errorf("material 1 slot = %d, want 5", slot)
	}
	if flags := binary.LittleEndian.Uint32(buf[GPUMaterialParamsSize+28:]); flags != 0 {
		t.Errorf("material 1 flags = %d, want 0", flags)
	}
}
