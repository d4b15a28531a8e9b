package camera

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/common"
)

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-3
}

func TestNewCameraDefaults(t *testing.T) {
	c := NewCamera()
	w, h := c.Resolution()
	if w != 1280 || h != 720 {
		t.Errorf("Resolution = %dx%d, want 1280x720", w, h)
	}
	if c.WindingMode() != WindingCounterClockwise || c.Multisample() || c.ShadowCaster() {
		t.Errorf("unexpected flags: winding %v multisample %v shadow %v", c.WindingMode(), c.Multisample(), c.ShadowCaster())
	}
	if c.Name() == "" {
		t.Error("default camera has no name")
	}
}

func TestCameraNamesAreUnique(t *testing.T) {
	a, b := NewCamera(), NewCamera()
	if a.Name() == b.Name() {
		t.Errorf("two default cameras share name %q", a.Name())
	}
}

func TestCameraViewFollowsController(t *testing.T) {
	ctrl := NewOrbitController(WithRadius(10), WithElevation(0), WithAzimuth(0))
	c := NewCamera(WithController(ctrl), WithResolution(100, 100))

	x, y, z := c.Position()
	if !approx(x, 0) || !approx(y, 0) || !approx(z, 10) {
		t.Fatalf("eye = (%f,%f,%f), want (0,0,10)", x, y, z)
	}

	vp := c.ViewProjectionMatrix()
	p := common.TransformPoint(vp[:], 0, 0, 0)
	if !approx(p[0]/p[3], 0) || !approx(p[1]/p[3], 0) {
		t.Errorf("target projects to (%f,%f), want screen center", p[0]/p[3], p[1]/p[3])
	}

	ctrl.Orbit(math.Pi/2, 0)
	c.Update()
	x, _, z = c.Position()
	if !approx(x, 10) || !approx(z, 0) {
		t.Errorf("after orbit eye = (%f,_,%f), want (10,_,0)", x, z)
	}
	f := c.Frustum()
	if d := f.Planes[common.FrustumNear].SignedDistance(0, 0, 0); d <= 0 {
		t.Errorf("target behind near plane after orbit: %f", d)
	}
}

func TestOrthographicShadowCamera(t *testing.T) {
	ctrl := NewOrbitController(WithRadius(50), WithElevation(1.2))
	c := NewCamera(
		WithController(ctrl),
		WithOrthographic(20, 1, 100),
		WithShadowCaster(true),
		WithResolution(1024, 1024),
	)
	vp := c.ViewProjectionMatrix()
	p := common.TransformPoint(vp[:], 0, 0, 0)
	if !approx(p[3], 1) {
		t.Errorf("orthographic w = %f, want 1", p[3])
	}
	if p[2] <= 0 || p[2] >= 1 {
		t.Errorf("target depth = %f, want inside (0,1)", p[2])
	}
	if c.Uniform().Flags&FlagShadowCaster == 0 {
		t.Error("shadow flag missing from uniform")
	}
}

func TestUniformFlagsAndPlanes(t *testing.T) {
	c := NewCamera(
		WithController(NewOrbitController(WithRadius(5))),
		WithWindingMode(WindingBoth),
		WithMultisample(true),
		WithResolution(640, 480),
	)
	u := c.Uniform()
	if u.Winding() != WindingBoth {
		t.Errorf("Winding() = %v, want both", u.Winding())
	}
	if u.Flags&FlagMultisample == 0 || u.Flags&FlagShadowCaster != 0 {
		t.Errorf("Flags = %b", u.Flags)
	}
	if u.Resolution != [2]float32{640, 480} {
		t.Errorf("Resolution = %v", u.Resolution)
	}
	f := c.Frustum()
	for i, p := range f.Planes {
		want := [4]float32{p.Normal[0], p.Normal[1], p.Normal[2], p.Distance}
		if u.Planes[i] != want {
			t.Errorf("plane %d = %v, want %v", i, u.Planes[i], want)
		}
	}

	buf := u.Marshal()
	if len(buf) != GPUPerCameraUniformSize {
		t.Fatalf("len(Marshal()) = %d, want %d", len(buf), GPUPerCameraUniformSize)
	}
	if got := binary.LittleEndian.Uint32(buf[216:]); got != u.Flags {
		t.Errorf("flags at 216 = %d, want %d", got, u.Flags)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[212:])); got != 480 {
		t.Errorf("height at 212 = %f, want 480", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[128+4*16+12:])); got != u.Planes[4][3] {
		t.Errorf("near distance at 204 = %f, want %f", got, u.Planes[4][3])
	}
}

func TestWindingModeString(t *testing.T) {
	for mode, want := range map[WindingMode]string{
		WindingCounterClockwise: "ccw", WindingClockwise: "cw", WindingBoth: "both", 7: "winding(7)",
	} {
		if got := mode.String(); got != want {
			t.Errorf("WindingMode(%d).String() = %q, want %q", mode, got, want)
		}
	}
}

func TestOrbitControllerLimits(t *testing.T) {
	cc := NewOrbitController(WithRadius(10), WithRadiusLimits(5, 20), WithZoomSpeed(1))
	cc.Zoom(100)
	if r := cc.Radius(); r != 5 {
		t.Errorf("radius after zoom in = %f, want 5", r)
	}
	cc.Zoom(-100)
	if r := cc.Radius(); r != 20 {
		t.Errorf("radius after zoom out = %f, want 20", r)
	}
	cc.Orbit(0, 10)
	if e := cc.Elevation(); e >= math.Pi/2 {
		t.Errorf("elevation = %f, want clamped below pi/2", e)
	}
}

func TestOrbitControllerPanMovesTargetAndEye(t *testing.T) {
	cc := NewOrbitController(WithRadius(10), WithElevation(0))
	cc.Pan(2, 0, 0)
	tx, ty, tz := cc.Target()
	if !approx(tx, 2) || !approx(ty, 0) || !approx(tz, 0) {
		t.Errorf("target after pan right = (%f,%f,%f), want (2,0,0)", tx, ty, tz)
	}
	px, _, pz := cc.Position()
	if !approx(px, 2) || !approx(pz, 10) {
		t.Errorf("eye after pan right = (%f,_,%f), want (2,_,10)", px, pz)
	}
	cc.Pan(0, 0, 3)
	_, _, tz = cc.Target()
	if !approx(tz, -3) {
		t.Errorf("target z after pan forward = %f, want -3", tz)
	}
}
