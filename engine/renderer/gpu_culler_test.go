package renderer

import (
	"context"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
)

func newTestGPUCuller(t *testing.T, options ...GPUCullerBuilderOption) GPUCuller {
	t.Helper()
	c, err := NewGPUCuller(options...)
	if err != nil {
		t.Skipf("no WebGPU device: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func testCamera(name string) camera.Camera {
	return camera.NewCamera(
		camera.WithName(name),
		camera.WithResolution(64, 64),
		camera.WithController(camera.NewOrbitController(camera.WithRadius(10), camera.WithElevation(0))),
	)
}

func quad(half float32) model.Mesh {
	return model.Mesh{
		Name:      "quad",
		Positions: [][3]float32{{-half, -half, 0}, {half, -half, 0}, {half, half, 0}, {-half, half, 0}},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	}
}

// testScene places a quad in view, one behind the camera and one far to the side.
func testScene(t *testing.T) ([]game_object.Object, model.View) {
	t.Helper()
	store := model.NewStore()
	var objects []game_object.Object
	for _, pos := range [][3]float32{{0, 0, 0}, {0, 0, 30}, {40, 0, 0}, {1, 1, -1}} {
		r, err := store.AddMesh(quad(1))
		if err != nil {
			t.Fatalf("AddMesh: %v", err)
		}
		objects = append(objects, game_object.NewGameObject(
			game_object.WithMesh(r), game_object.WithPosition(pos[0], pos[1], pos[2])).Record())
	}
	return objects, store.Snapshot()
}

func cpuResult(t *testing.T, g batch.Granularity, objects []game_object.Object, view model.View, cam camera.Camera) cull.Result {
	t.Helper()
	dev := compute.NewDevice(compute.WithWorkers(2))
	t.Cleanup(dev.Close)
	c := cull.NewCuller(cull.WithDevice(dev), cull.WithGranularity(g))
	t.Cleanup(c.Close)
	if _, err := c.BeginFrame(objects, view); err != nil {
		t.Fatalf("cpu BeginFrame: %v", err)
	}
	res, err := c.Cull(context.Background(), cam)
	if err != nil {
		t.Fatalf("cpu Cull: %v", err)
	}
	c.EndFrame()
	return res
}

func TestObjectIDsFollowPlan(t *testing.T) {
	plan := &batch.Plan{
		TotalInvocations: 3,
		Batches: []batch.BatchData{{Objects: []batch.ObjectCullingInformation{
			{InvocationStart: 0, InvocationEnd: 1, ObjectID: 4},
			{InvocationStart: 1, InvocationEnd: 2, ObjectID: 2},
		}}, {Objects: []batch.ObjectCullingInformation{
			{InvocationStart: 2, InvocationEnd: 3, ObjectID: 9},
		}}},
	}
	got := objectIDs(plan)
	want := []uint32{4, 2, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("objectIDs[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWordHelpers(t *testing.T) {
	in := []uint32{0, 1, 0xFFFFFFFF, 0x00FFFFFF}
	got := unmarshalUint32s(marshalUint32s(in...))
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("word %d = %#x, want %#x", i, got[i], in[i])
		}
	}
	f := unmarshalFloat32s(marshalFloat32s([]float32{0.25, -1}))
	if f[0] != 0.25 || f[1] != -1 {
		t.Errorf("floats = %v", f)
	}
	if boolWord(true) != 1 || boolWord(false) != 0 {
		t.Error("boolWord")
	}
	if alignBufferSize(0) != 4 || alignBufferSize(5) != 8 || alignBufferSize(8) != 8 {
		t.Error("alignBufferSize")
	}
}

func TestGPUCullerRequiresFrameAndCamera(t *testing.T) {
	c := newTestGPUCuller(t)
	if _, err := c.Cull(context.Background(), nil); !errors.Is(err, cull.ErrNoCamera) {
		t.Errorf("nil camera: err = %v, want ErrNoCamera", err)
	}
	if _, err := c.Cull(context.Background(), testCamera("main")); !errors.Is(err, cull.ErrNoFrame) {
		t.Errorf("no frame: err = %v, want ErrNoFrame", err)
	}
	if err := c.SubmitDepth(context.Background(), testCamera("main"), make([]float32, 3), 2, 2); !errors.Is(err, hiz.ErrDepthSize) {
		t.Errorf("short depth: err = %v, want ErrDepthSize", err)
	}
}

func TestGPUCullerTrianglesMatchHost(t *testing.T) {
	objects, view := testScene(t)
	cam := testCamera("main")
	want := cpuResult(t, batch.GranularityTriangle, objects, view, cam)

	c := newTestGPUCuller(t)
	if _, err := c.BeginFrame(objects, view); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	got, err := c.Cull(context.Background(), cam)
	if err != nil {
		t.Fatalf("Cull: %v", err)
	}
	c.EndFrame()

	if g, w := got.Draws.EmittedTriangles(), want.Draws.EmittedTriangles(); g != w {
		t.Errorf("emitted triangles = %d, want %d", g, w)
	}
	if g, w := got.Visible.Count(), want.Visible.Count(); g != w {
		t.Errorf("visible invocations = %d, want %d", g, w)
	}
	if got.Transforms.Len() != len(objects) {
		t.Errorf("transforms = %d, want %d", got.Transforms.Len(), len(objects))
	}
	if s := c.Stats(); len(s) != 1 || s[0].Camera != "main" || s[0].Tested != uint64(got.Plan.TotalInvocations) {
		t.Errorf("stats = %+v", s)
	}

	// Second frame: everything visible last frame is predicted.
	if _, err := c.BeginFrame(objects, view); err != nil {
		t.Fatalf("BeginFrame 2: %v", err)
	}
	again, err := c.Cull(context.Background(), cam)
	if err != nil {
		t.Fatalf("Cull 2: %v", err)
	}
	c.EndFrame()
	if again.Stats.Predicted == 0 || again.Stats.Residual != 0 {
		t.Errorf("frame 2 predicted %d residual %d, want all predicted", again.Stats.Predicted, again.Stats.Residual)
	}
}

func TestGPUCullerObjectsMatchHost(t *testing.T) {
	objects, view := testScene(t)
	cam := testCamera("main")
	want := cpuResult(t, batch.GranularityObject, objects, view, cam)

	c := newTestGPUCuller(t, WithCullGranularity(batch.GranularityObject))
	if _, err := c.BeginFrame(objects, view); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	got, err := c.Cull(context.Background(), cam)
	if err != nil {
		t.Fatalf("Cull: %v", err)
	}
	c.EndFrame()

	if got.Objects.Count != want.Objects.Count {
		t.Fatalf("draws = %d, want %d", got.Objects.Count, want.Objects.Count)
	}
	g, w := got.Objects.VisibleObjects(), want.Objects.VisibleObjects()
	for i := range w {
		if g[i] != w[i] {
			t.Errorf("draw %d object = %d, want %d", i, g[i], w[i])
		}
	}
}

func TestGPUSubmitDepthMatchesHostPyramid(t *testing.T) {
	c := newTestGPUCuller(t)
	const w, h = 7, 5
	depth := make([]float32, w*h)
	for i := range depth {
		depth[i] = float32((i*37)%11) / 11
	}
	dev := compute.NewDevice(compute.WithWorkers(2))
	t.Cleanup(dev.Close)
	host, err := hiz.Build(context.Background(), dev, depth, w, h)
	if err != nil {
		t.Fatalf("hiz.Build: %v", err)
	}

	gpu, err := c.(*gpuCullerImpl).reducePyramid(depth, w, h)
	if err != nil {
		t.Fatalf("reducePyramid: %v", err)
	}
	for l, level := range host.Levels() {
		got := gpu.Levels()[l]
		for i := range level.Texels {
			if got.Texels[i] != level.Texels[i] {
				t.Fatalf("level %d texel %d = %v, want %v", l, i, got.Texels[i], level.Texels[i])
			}
		}
	}
	if err := c.SubmitDepth(context.Background(), testCamera("main"), depth, w, h); err != nil {
		t.Errorf("SubmitDepth: %v", err)
	}
}

func TestShaderValidationOption(t *testing.T) {
	c := &gpuCullerImpl{}
	WithCullShaderValidation(true)(c)
	if !c.validate {
		t.Fatal("WithCullShaderValidation(true) left validation off")
	}
	WithCullShaderValidation(false)(c)
	if c.validate {
		t.Error("WithCullShaderValidation(false) left validation on")
	}
}
