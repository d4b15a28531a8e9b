package debugview

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/temporal"
)

func TestDepthRampEnds(t *testing.T) {
	far, near := DepthRamp(0), DepthRamp(1)
	if far.R >= near.R || far.G >= near.G {
		t.Errorf("far %v is not darker than near %v", far, near)
	}
	if DepthRamp(-3) != far || DepthRamp(7) != near {
		t.Error("ramp does not clamp")
	}
}

func TestDepthLevel(t *testing.T) {
	if _, err := DepthLevel(nil, 0); !errors.Is(err, ErrEmpty) {
		t.Errorf("nil pyramid: err = %v, want ErrEmpty", err)
	}
	p, err := hiz.NewPyramid([]hiz.Level{
		{Width: 2, Height: 1, Texels: []float32{0, 1}},
		{Width: 1, Height: 1, Texels: []float32{0}},
	})
	if err != nil {
		t.Fatalf("NewPyramid: %v", err)
	}
	img, err := DepthLevel(p, 0)
	if err != nil {
		t.Fatalf("DepthLevel: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 1 {
		t.Fatalf("bounds = %v", b)
	}
	if img.RGBAAt(0, 0) != DepthRamp(0) || img.RGBAAt(1, 0) != DepthRamp(1) {
		t.Error("texels not mapped through the ramp")
	}
	top, err := DepthLevel(p, 99)
	if err != nil || top.Bounds().Dx() != 1 {
		t.Errorf("level clamp: bounds %v err %v", top.Bounds(), err)
	}
}

func TestVisibilityStrip(t *testing.T) {
	plan := &batch.Plan{
		TotalInvocations: 5,
		Batches: []batch.BatchData{{Objects: []batch.ObjectCullingInformation{
			{InvocationStart: 0, InvocationEnd: 3, ObjectID: 1},
			{InvocationStart: 3, InvocationEnd: 5, ObjectID: 2},
		}}},
	}
	visible := temporal.NewBitmask(5)
	visible.Set(0)
	visible.Set(4)

	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	img, err := VisibilityStrip(plan, visible, 2, func(id uint32) color.Color {
		if id == 1 {
			return red
		}
		return blue
	})
	if err != nil {
		t.Fatalf("VisibilityStrip: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 3 {
		t.Fatalf("bounds = %v, want 2x3", b)
	}
	tests := []struct {
		x, y int
		want color.RGBA
	}{
		{0, 0, red},
		{1, 0, culledRGB},
		{0, 1, culledRGB},
		{1, 1, culledRGB},
		{0, 2, blue},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}

	if _, err := VisibilityStrip(plan, visible, 0, nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("zero width: err = %v, want ErrEmpty", err)
	}
}

func TestHueColorSpreads(t *testing.T) {
	if HueColor(0) == HueColor(1) {
		t.Error("neighbouring ids share a color")
	}
}

func TestWritePNG(t *testing.T) {
	p, err := hiz.NewPyramid([]hiz.Level{{Width: 1, Height: 1, Texels: []float32{0.5}}})
	if err != nil {
		t.Fatalf("NewPyramid: %v", err)
	}
	img, err := DepthLevel(p, 0)
	if err != nil {
		t.Fatalf("DepthLevel: %v", err)
	}
	path := filepath.Join(t.TempDir(), "level.png")
	if err := WritePNG(path, img); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("decoded bounds = %v", decoded.Bounds())
	}
	if err := WritePNG(filepath.Join(t.TempDir(), "missing", "x.png"), img); err == nil {
		t.Error("write into a missing directory succeeded")
	}
}
