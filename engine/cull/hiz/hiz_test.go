package hiz

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
)

func newTestDevice(t *testing.T) compute.Device {
	t.Helper()
	d := compute.NewDevice(compute.WithWorkers(4), compute.WithQueueSize(16))
	t.Cleanup(d.Close)
	return d
}

func randomDepth(r *rand.Rand, w, h uint32) []float32 {
	depth := make([]float32, w*h)
	for i := range depth {
		depth[i] = r.Float32()
	}
	return depth
}

// bruteMin is the minimum over level 0 pixels x in [x0, x1], y in [y0, y1], clamped to the image.
func bruteMin(depth []float32, w, h uint32, x0, y0, x1, y1 int) float32 {
	d := float32(math.Inf(1))
	for y := max(y0, 0); y <= min(y1, int(h)-1); y++ {
		for x := max(x0, 0); x <= min(x1, int(w)-1); x++ {
			d = min(d, depth[y*int(w)+x])
		}
	}
	return d
}

func TestLevelDims(t *testing.T) {
	got := LevelDims(5, 3)
	want := [][2]uint32{{5, 3}, {3, 2}, {2, 1}, {1, 1}}
	if len(got) != len(want) {
		t.Fatalf("LevelDims(5, 3) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("level %d = %v, want %v", i, got[i], want[i])
		}
	}
	if n := len(LevelDims(1, 1)); n != 1 {
		t.Errorf("LevelDims(1, 1) has %d levels, want 1", n)
	}
}

func TestBuildEveryTexelIsMinOfFootprint(t *testing.T) {
	dev := newTestDevice(t)
	r := rand.New(rand.NewPCG(1, 2))
	for _, size := range [][2]uint32{{1, 1}, {2, 2}, {7, 5}, {64, 36}, {33, 1}} {
		w, h := size[0], size[1]
		depth := randomDepth(r, w, h)
		p, err := Build(context.Background(), dev, depth, w, h)
		if err != nil {
			t.Fatalf("%dx%d: %v", w, h, err)
		}
		top := p.Levels()[len(p.Levels())-1]
		if top.Width != 1 || top.Height != 1 {
			t.Errorf("%dx%d: top level is %dx%d", w, h, top.Width, top.Height)
		}
		for k, l := range p.Levels() {
			s := 1 << k
			for y := uint32(0); y < l.Height; y++ {
				for x := uint32(0); x < l.Width; x++ {
					want := bruteMin(depth, w, h, int(x)*s, int(y)*s, (int(x)+1)*s-1, (int(y)+1)*s-1)
					if got := l.At(x, y); got != want {
						t.Fatalf("%dx%d level %d texel (%d,%d) = %v, want %v", w, h, k, x, y, got, want)
					}
				}
			}
		}
	}
}

func TestSampleIsConservative(t *testing.T) {
	dev := newTestDevice(t)
	r := rand.New(rand.NewPCG(3, 4))
	const w, h = 97, 61
	depth := randomDepth(r, w, h)
	p, err := Build(context.Background(), dev, depth, w, h)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2000; i++ {
		x0 := r.Float32()*(w+20) - 10
		y0 := r.Float32()*(h+20) - 10
		rect := Rect{MinX: x0, MinY: y0, MaxX: x0 + r.Float32()*40, MaxY: y0 + r.Float32()*40}
		exact := bruteMin(depth, w, h,
			int(math.Floor(float64(rect.MinX))), int(math.Floor(float64(rect.MinY))),
			int(math.Floor(float64(rect.MaxX))), int(math.Floor(float64(rect.MaxY))))
		if math.IsInf(float64(exact), 1) {
			continue
		}
		if got := p.Sample(rect); got > exact {
			t.Fatalf("Sample(%+v) = %v exceeds the exact minimum %v", rect, got, exact)
		}
	}
}

func TestSelectLevel(t *testing.T) {
	p := &Pyramid{levels: make([]Level, 6)}
	cases := []struct {
		extent float32
		want   int
	}{
		{0.25, 0}, {1, 0}, {1.5, 1}, {2, 1}, {3, 2}, {16, 4}, {17, 5}, {1000, 5},
	}
	for _, c := range cases {
		if got := p.SelectLevel(Rect{MaxX: c.extent, MaxY: 0.5}); got != c.want {
			t.Errorf("SelectLevel(extent %v) = %d, want %d", c.extent, got, c.want)
		}
	}
}

func TestOccludedBehindOccluder(t *testing.T) {
	dev := newTestDevice(t)
	const w, h = 64, 64
	depth := make([]float32, w*h)
	for y := 16; y < 48; y++ {
		for x := 16; x < 48; x++ {
			depth[y*w+x] = 0.5
		}
	}
	p, err := Build(context.Background(), dev, depth, w, h)
	if err != nil {
		t.Fatal(err)
	}

	inside := Rect{MinX: 20, MinY: 20, MaxX: 28, MaxY: 28}
	if !p.Occluded(inside, 0.3) {
		t.Error("box behind the occluder was not occluded")
	}
	if p.Occluded(inside, 0.7) {
		t.Error("box in front of the occluder was occluded")
	}
	straddle := Rect{MinX: 8, MinY: 20, MaxX: 24, MaxY: 28}
	if p.Occluded(straddle, 0.3) {
		t.Error("box reaching past the occluder edge was occluded")
	}
}

func TestBuildRejectsSizeMismatch(t *testing.T) {
	dev := newTestDevice(t)
	if _, err := Build(context.Background(), dev, make([]float32, 10), 4, 4); !errors.Is(err, ErrDepthSize) {
		t.Errorf("err = %v, want ErrDepthSize", err)
	}
}

func TestNDCRect(t *testing.T) {
	r := NDCRect(-1, -1, 0, 1, 100, 50)
	if r.MinX != 0 || r.MaxX != 50 || r.MinY != 0 || r.MaxY != 50 {
		t.Errorf("NDCRect = %+v", r)
	}
}

func TestRasterizeDepthCoversAndTests(t *testing.T) {
	d := NewDepthBuffer(8, 8)
	quad := func(z float32) {
		a := [4]float32{-1, -1, z, 1}
		b := [4]float32{1, -1, z, 1}
		c := [4]float32{1, 1, z, 1}
		e := [4]float32{-1, 1, z, 1}
		d.RasterizeDepth([3][4]float32{a, b, c})
		d.RasterizeDepth([3][4]float32{a, c, e})
	}
	near := func(v, want float32) bool { return math.Abs(float64(v-want)) < 1e-6 }
	quad(0.25)
	for i, v := range d.Texels {
		if !near(v, 0.25) {
			t.Fatalf("texel %d = %v after full-screen quad, want 0.25", i, v)
		}
	}
	quad(0.125)
	if !near(d.Texels[0], 0.25) {
		t.Errorf("farther quad overwrote depth: %v", d.Texels[0])
	}

	d.RasterizeDepth([3][4]float32{{-1, -1, 0.9, -1}, {1, -1, 0.9, 1}, {1, 1, 0.9, 1}})
	if !near(d.Texels[0], 0.25) {
		t.Error("triangle behind the eye was rasterised")
	}

	d.Clear()
	for _, v := range d.Texels {
		if v != 0 {
			t.Fatal("Clear left depth behind")
		}
	}
}

func TestNewPyramidValidatesChain(t *testing.T) {
	dev := newTestDevice(t)
	depth := randomDepth(rand.New(rand.NewPCG(3, 4)), 5, 3)
	built, err := Build(context.Background(), dev, depth, 5, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	p, err := NewPyramid(built.Levels())
	if err != nil {
		t.Fatalf("NewPyramid: %v", err)
	}
	if p.Width() != 5 || p.Height() != 3 || len(p.Levels()) != 4 {
		t.Errorf("pyramid %dx%d with %d levels", p.Width(), p.Height(), len(p.Levels()))
	}

	if _, err := NewPyramid(built.Levels()[:2]); !errors.Is(err, ErrDepthSize) {
		t.Errorf("truncated chain: err = %v, want ErrDepthSize", err)
	}
	bad := append([]Level(nil), built.Levels()...)
	bad[1].Texels = bad[1].Texels[:1]
	if _, err := NewPyramid(bad); !errors.Is(err, ErrDepthSize) {
		t.Errorf("short level: err = %v, want ErrDepthSize", err)
	}
	if _, err := NewPyramid(nil); !errors.Is(err, ErrDepthSize) {
		t.Errorf("empty chain: err = %v, want ErrDepthSize", err)
	}
}
