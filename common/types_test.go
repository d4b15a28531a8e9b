package common

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 7, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestImportedTextureDecodeData(t *testing.T) {
	tex := &ImportedTexture{Name: "albedo", Data: encodePNG(t, 3, 2)}
	got, err := tex.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Width != 3 || got.Height != 2 {
		t.Errorf("size = %dx%d, want 3x2", got.Width, got.Height)
	}
	if len(got.Pixels) != 3*2*4 {
		t.Fatalf("len(Pixels) = %d, want %d", len(got.Pixels), 3*2*4)
	}
	// Pixel (2,1): R=20 G=10 B=7.
	off := (1*3 + 2) * 4
	if got.Pixels[off] != 20 || got.Pixels[off+1] != 10 || got.Pixels[off+2] != 7 {
		t.Errorf("pixel (2,1) = %v, want [20 10 7 255]", got.Pixels[off:off+4])
	}
	if tex.Width != 3 || tex.Height != 2 {
		t.Errorf("texture dims not recorded: %dx%d", tex.Width, tex.Height)
	}
}

func TestImportedTextureDecodePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tex.png")
	if err := os.WriteFile(path, encodePNG(t, 4, 4), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := (&ImportedTexture{Path: path}).Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Width != 4 || got.Height != 4 {
		t.Errorf("size = %dx%d, want 4x4", got.Width, got.Height)
	}
}

func TestImportedTextureDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		tex  *ImportedTexture
	}{
		{"nil", nil},
		{"empty", &ImportedTexture{}},
		{"garbage", &ImportedTexture{Data: []byte("not an image")}},
		{"missing file", &ImportedTexture{Path: "/nonexistent/tex.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.tex.Decode(); err == nil {
				t.Error("Decode() error = nil, want error")
			}
		})
	}
}
