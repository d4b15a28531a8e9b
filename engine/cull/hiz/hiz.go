// Package hiz builds and samples the hierarchical depth pyramid used for occlusion culling.
//
// Depth is reversed-Z: 1 is the near plane and 0 is infinitely far. Every pyramid texel holds the
// minimum, i.e. the farthest, depth of the pixels it covers, so a triangle whose nearest depth is
// below the sampled value is behind everything drawn there.
package hiz

import (
	"context"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
)

// GPUReduceSource is the WGSL kernel that builds one pyramid level from the level below.
//
//go:embed assets/hiz_reduce.wgsl
var GPUReduceSource string

// GPUSampleSource declares HiZInfo and the hiz_sample function the culling kernels include.
//
//go:embed assets/hiz_sample.wgsl
var GPUSampleSource string

// MaxLevels bounds the pyramid depth the GPU kernels accept, enough for 32768 pixels.
const MaxLevels = 16

// WorkgroupSize is the workgroup size of the reduction kernel.
const WorkgroupSize = 256

// ErrDepthSize is returned when the depth buffer does not match the given resolution.
var ErrDepthSize = errors.New("hiz: depth buffer size mismatch")

// Level is one mip of the pyramid, row-major, y down.
type Level struct {
	Width, Height uint32
	Texels        []float32
}

// At returns the texel at (x, y).
func (l *Level) At(x, y uint32) float32 {
	return l.Texels[y*l.Width+x]
}

// Rect is a screen-space box in pixels of level 0, y down.
type Rect struct {
	MinX, MinY, MaxX, MaxY float32
}

// Pyramid is the full mip chain, level 0 being the depth buffer itself.
type Pyramid struct {
	levels []Level
}

// Levels returns the mip chain.
func (p *Pyramid) Levels() []Level {
	return p.levels
}

// Width returns the width of level 0.
func (p *Pyramid) Width() uint32 {
	return p.levels[0].Width
}

// Height returns the height of level 0.
func (p *Pyramid) Height() uint32 {
	return p.levels[0].Height
}

// LevelDims returns the dimensions of every level for a width x height depth buffer: each level
// is ceil(w/2) x ceil(h/2) of the one below, down to 1x1.
func LevelDims(width, height uint32) [][2]uint32 {
	dims := [][2]uint32{{width, height}}
	for width > 1 || height > 1 {
		width, height = common.DivCeil(width, 2), common.DivCeil(height, 2)
		dims = append(dims, [2]uint32{width, height})
	}
	return dims
}

// Build reduces a depth buffer into a pyramid, one dispatch per level.
//
// Parameters:
//   - ctx: cancels the dispatches
//   - dev: the compute device
//   - depth: row-major reversed-Z depth, width*height texels; copied into level 0
//   - width, height: the depth buffer resolution
//
// Returns:
//   - *Pyramid: the mip chain
//   - error: ErrDepthSize or a wrapped compute error
func Build(ctx context.Context, dev compute.Device, depth []float32, width, height uint32) (*Pyramid, error) {
	if width == 0 || height == 0 || uint64(len(depth)) != uint64(width)*uint64(height) {
		return nil, fmt.Errorf("%w: %d texels for %dx%d", ErrDepthSize, len(depth), width, height)
	}

	dims := LevelDims(width, height)
	p := &Pyramid{levels: make([]Level, len(dims))}
	p.levels[0] = Level{Width: width, Height: height, Texels: append([]float32(nil), depth...)}

	for i := 1; i < len(dims); i++ {
		src := &p.levels[i-1]
		dst := &p.levels[i]
		dst.Width, dst.Height = dims[i][0], dims[i][1]
		dst.Texels = make([]float32, dst.Width*dst.Height)

		n := dst.Width * dst.Height
		err := dev.Dispatch(ctx, compute.DispatchDesc{
			Label:     fmt.Sprintf("hiz.reduce[%d]", i),
			Groups:    common.DivCeil(n, WorkgroupSize),
			GroupSize: WorkgroupSize,
		}, func(inv *compute.Invocation) {
			if inv.GlobalID >= n {
				return
			}
			dst.Texels[inv.GlobalID] = reduce(src, inv.GlobalID%dst.Width, inv.GlobalID/dst.Width)
		})
		if err != nil {
			return nil, fmt.Errorf("build level %d: %w", i, err)
		}
	}

	common.Logger().Debug("hiz pyramid built", "width", width, "height", height, "levels", len(dims))
	return p, nil
}

// NewPyramid wraps an already reduced mip chain, e.g. one built on the device. Every level must
// have the dimensions LevelDims gives for level 0.
//
// Parameters:
//   - levels: the mip chain, level 0 first
//
// Returns:
//   - *Pyramid: the pyramid
//   - error: ErrDepthSize when a level has the wrong size
func NewPyramid(levels []Level) (*Pyramid, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrDepthSize)
	}
	dims := LevelDims(levels[0].Width, levels[0].Height)
	if levels[0].Width == 0 || levels[0].Height == 0 || len(levels) != len(dims) {
		return nil, fmt.Errorf("%w: %d levels for %dx%d", ErrDepthSize, len(levels), levels[0].Width, levels[0].Height)
	}
	for i := range levels {
		l := &levels[i]
		if l.Width != dims[i][0] || l.Height != dims[i][1] || uint64(len(l.Texels)) != uint64(l.Width)*uint64(l.Height) {
			return nil, fmt.Errorf("%w: level %d is %dx%d with %d texels", ErrDepthSize, i, l.Width, l.Height, len(l.Texels))
		}
	}
	return &Pyramid{levels: levels}, nil
}

func reduce(src *Level, dx, dy uint32) float32 {
	x0, y0 := dx*2, dy*2
	x1, y1 := min(x0+1, src.Width-1), min(y0+1, src.Height-1)
	return min(src.At(x0, y0), src.At(x1, y0), src.At(x0, y1), src.At(x1, y1))
}

// SelectLevel returns the level whose texel size, 2^level pixels, covers the longest edge of the
// rect, clamped to the top of the pyramid.
func (p *Pyramid) SelectLevel(r Rect) int {
	extent := max(r.MaxX-r.MinX, r.MaxY-r.MinY, 1)
	level := bits.Len32(uint32(math.Ceil(float64(extent))) - 1)
	return min(level, len(p.levels)-1)
}

// Sample returns the farthest depth recorded under the rect: the minimum of the at most 2x2
// texels covering it at the selected level. Parts of the rect outside the screen are clamped.
//
// Parameters:
//   - r: the screen-space box in level 0 pixels
//
// Returns:
//   - float32: the conservative occluder depth
func (p *Pyramid) Sample(r Rect) float32 {
	level := p.SelectLevel(r)
	l := &p.levels[level]
	scale := float32(uint32(1) << level)

	x0, x1 := texelRange(r.MinX, r.MaxX, scale, l.Width)
	y0, y1 := texelRange(r.MinY, r.MaxY, scale, l.Height)

	d := float32(math.Inf(1))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			d = min(d, l.At(x, y))
		}
	}
	return d
}

// Occluded reports whether something nearer than nearestDepth covers the whole rect.
//
// Parameters:
//   - r: the screen-space box of the tested primitive
//   - nearestDepth: the primitive's largest reversed-Z depth
//
// Returns:
//   - bool: true when the primitive is hidden
func (p *Pyramid) Occluded(r Rect, nearestDepth float32) bool {
	return nearestDepth < p.Sample(r)
}

func texelRange(lo, hi, scale float32, size uint32) (uint32, uint32) {
	clamp := func(v float32) uint32 {
		t := float32(math.Floor(float64(v / scale)))
		switch {
		case t < 0:
			return 0
		case t > float32(size-1):
			return size - 1
		}
		return uint32(t)
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return clamp(lo), clamp(hi)
}

// NDCRect converts an NDC bounding box (x right, y up, both in [-1, 1]) into level 0 pixels.
//
// Parameters:
//   - minX, minY, maxX, maxY: the NDC box
//   - width, height: the screen resolution
//
// Returns:
//   - Rect: the pixel box, y down
func NDCRect(minX, minY, maxX, maxY float32, width, height uint32) Rect {
	w, h := float32(width), float32(height)
	return Rect{
		MinX: (minX*0.5 + 0.5) * w,
		MaxX: (maxX*0.5 + 0.5) * w,
		MinY: (0.5 - maxY*0.5) * h,
		MaxY: (0.5 - minY*0.5) * h,
	}
}

// GPUInfoSize is the byte size of the marshalled HiZInfo uniform.
const GPUInfoSize = 16 + MaxLevels*16

// MarshalInfo serializes the level table into the WGSL HiZInfo layout. Levels past MaxLevels are
// dropped; the sampler then clamps to the last one it knows.
//
// Returns:
//   - []byte: GPUInfoSize bytes
func (p *Pyramid) MarshalInfo() []byte {
	buf := make([]byte, GPUInfoSize)
	levels := min(len(p.levels), MaxLevels)
	binary.LittleEndian.PutUint32(buf[0:], uint32(levels))
	var first uint32
	for i := 0; i < levels; i++ {
		l := &p.levels[i]
		binary.LittleEndian.PutUint32(buf[16+i*16:], l.Width)
		binary.LittleEndian.PutUint32(buf[20+i*16:], l.Height)
		binary.LittleEndian.PutUint32(buf[24+i*16:], first)
		first += l.Width * l.Height
	}
	return buf
}

// MarshalTexels serializes every level back to back, level 0 first.
//
// Returns:
//   - []byte: the texels as little-endian float32
func (p *Pyramid) MarshalTexels() []byte {
	var n int
	for i := range p.levels {
		n += len(p.levels[i].Texels)
	}
	buf := make([]byte, 0, n*4)
	for i := range p.levels {
		for _, v := range p.levels[i].Texels {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return buf
}
