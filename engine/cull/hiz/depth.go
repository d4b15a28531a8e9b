package hiz

import (
	"math"
)

// DepthBuffer is a reversed-Z depth target, cleared to 0 (infinitely far). It stands in for the
// rasterised depth of the previous frame when no GPU is present.
type DepthBuffer struct {
	Width, Height uint32
	Texels        []float32
}

// NewDepthBuffer allocates a cleared depth buffer.
func NewDepthBuffer(width, height uint32) *DepthBuffer {
	return &DepthBuffer{Width: width, Height: height, Texels: make([]float32, width*height)}
}

// Clear resets every texel to 0.
func (d *DepthBuffer) Clear() {
	clear(d.Texels)
}

// RasterizeDepth draws the depth of one clip-space triangle with a greater-or-equal depth test.
// Coverage is sampled at pixel centers, both windings are drawn, and triangles with a vertex at or
// behind the eye plane are skipped.
//
// Parameters:
//   - clip: the triangle's vertices in clip space (x, y, z, w)
func (d *DepthBuffer) RasterizeDepth(clip [3][4]float32) {
	var sx, sy, sz [3]float32
	for k, v := range clip {
		if v[3] <= 0 {
			return
		}
		inv := 1 / v[3]
		sx[k] = (v[0]*inv*0.5 + 0.5) * float32(d.Width)
		sy[k] = (0.5 - v[1]*inv*0.5) * float32(d.Height)
		sz[k] = v[2] * inv
	}

	area := edge(sx[0], sy[0], sx[1], sy[1], sx[2], sy[2])
	if area == 0 {
		return
	}

	x0 := clampPixel(min(sx[0], sx[1], sx[2]), d.Width)
	x1 := clampPixel(max(sx[0], sx[1], sx[2]), d.Width)
	y0 := clampPixel(min(sy[0], sy[1], sy[2]), d.Height)
	y1 := clampPixel(max(sy[0], sy[1], sy[2]), d.Height)

	for y := y0; y <= y1; y++ {
		py := float32(y) + 0.5
		for x := x0; x <= x1; x++ {
			px := float32(x) + 0.5
			w0 := edge(sx[1], sy[1], sx[2], sy[2], px, py) / area
			w1 := edge(sx[2], sy[2], sx[0], sy[0], px, py) / area
			w2 := edge(sx[0], sy[0], sx[1], sy[1], px, py) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := min(w0*sz[0]+w1*sz[1]+w2*sz[2], 1)
			if i := y*d.Width + x; z > d.Texels[i] {
				d.Texels[i] = z
			}
		}
	}
}

func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func clampPixel(v float32, size uint32) uint32 {
	f := math.Floor(float64(v))
	switch {
	case f < 0:
		return 0
	case f > float64(size-1):
		return size - 1
	}
	return uint32(f)
}
