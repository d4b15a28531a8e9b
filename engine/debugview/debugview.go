// Package debugview renders culling state into images: Hi-Z pyramid levels as a depth ramp and
// per-invocation visibility as a strip of object-colored pixels.
package debugview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/temporal"
	"github.com/lucasb-eyer/go-colorful"
)

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = errors.New("debugview: nothing to draw")

var (
	farColor  = colorful.Color{R: 0.04, G: 0.06, B: 0.15}
	nearColor = colorful.Color{R: 1.0, G: 0.83, B: 0.43}
	culledRGB = color.RGBA{R: 24, G: 24, B: 24, A: 255}
)

// ObjectColor picks the color of a visible object, e.g. from a material library.
type ObjectColor func(objectID uint32) color.Color

// DepthRamp maps a reversed-Z depth to a color: 0 (far) is dark blue, 1 (near) is warm yellow.
// The blend runs in HCL so equal depth steps look equally far apart.
func DepthRamp(depth float32) color.RGBA {
	t := math.Max(0, math.Min(1, float64(depth)))
	r, g, b := farColor.BlendHcl(nearColor, t).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// HueColor spreads object ids around the hue circle by the golden angle.
func HueColor(objectID uint32) color.Color {
	h := math.Mod(float64(objectID)*137.508, 360)
	r, g, b := colorful.Hsv(h, 0.65, 0.95).RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// DepthLevel draws one pyramid level, one pixel per texel.
//
// Parameters:
//   - p: the pyramid
//   - level: the level index, clamped to the top of the pyramid
//
// Returns:
//   - *image.RGBA: the level image, y down
//   - error: ErrEmpty for a nil pyramid
func DepthLevel(p *hiz.Pyramid, level int) (*image.RGBA, error) {
	if p == nil || len(p.Levels()) == 0 {
		return nil, ErrEmpty
	}
	level = max(0, min(level, len(p.Levels())-1))
	l := &p.Levels()[level]
	img := image.NewRGBA(image.Rect(0, 0, int(l.Width), int(l.Height)))
	for y := uint32(0); y < l.Height; y++ {
		for x := uint32(0); x < l.Width; x++ {
			img.SetRGBA(int(x), int(y), DepthRamp(l.At(x, y)))
		}
	}
	return img, nil
}

// VisibilityStrip draws one pixel per invocation of a plan, row-major, width pixels per row.
// Visible invocations take their object's color and culled ones are dark grey.
//
// Parameters:
//   - plan: the plan the bitmask was written against
//   - visible: the pass bitmask of one camera
//   - width: pixels per row
//   - colors: the object palette; nil uses HueColor
//
// Returns:
//   - *image.RGBA: the strip
//   - error: ErrEmpty for an empty plan, a nil bitmask or a bad width
func VisibilityStrip(plan *batch.Plan, visible *temporal.Bitmask, width int, colors ObjectColor) (*image.RGBA, error) {
	if plan == nil || visible == nil || plan.TotalInvocations == 0 || width <= 0 {
		return nil, ErrEmpty
	}
	if colors == nil {
		colors = HueColor
	}
	n := int(plan.TotalInvocations)
	height := (n + width - 1) / width
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for i := range plan.Batches {
		for _, r := range plan.Batches[i].Objects {
			c := colors(r.ObjectID)
			for inv := r.InvocationStart; inv < r.InvocationEnd; inv++ {
				x, y := int(inv)%width, int(inv)/width
				if visible.Test(inv) {
					img.Set(x, y, c)
				} else {
					img.SetRGBA(x, y, culledRGB)
				}
			}
		}
	}
	return img, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// WritePNG writes img to path as PNG, replacing the file.
//
// Parameters:
//   - path: the destination file
//   - img: the image
//
// Returns:
//   - error: a file or encode error
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("debugview: %w", err)
	}
	if err := EncodePNG(f, img); err != nil {
		f.Close()
		return fmt.Errorf("debugview: encode %s: %w", path, err)
	}
	return f.Close()
}
