package engine

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/visibility"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-cull/engine/light"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
	"github.com/Carmen-Shannon/oxy-cull/engine/profiler"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
)

func newTestEngine(t *testing.T, options ...EngineBuilderOption) Engine {
	t.Helper()
	dev := compute.NewDevice(compute.WithWorkers(4), compute.WithQueueSize(64))
	t.Cleanup(dev.Close)
	e := NewEngine(append([]EngineBuilderOption{WithDevice(dev)}, options...)...)
	t.Cleanup(e.Close)
	return e
}

func newTestScene(t *testing.T, name string, options ...scene.SceneBuilderOption) scene.Scene {
	t.Helper()
	cam := camera.NewCamera(
		camera.WithName(name+"-main"),
		camera.WithResolution(64, 64),
		camera.WithController(camera.NewOrbitController(camera.WithRadius(10), camera.WithElevation(0))),
	)
	s := scene.NewScene(name, cam, append([]scene.SceneBuilderOption{scene.WithActive(true), scene.WithComputeWorkers(2)}, options...)...)
	t.Cleanup(s.Close)
	return s
}

func addMesh(t *testing.T, s scene.Scene, mesh model.Mesh, z float32) {
	t.Helper()
	r, err := s.Store().AddMesh(mesh)
	if err != nil {
		t.Fatalf("AddMesh: %v", err)
	}
	s.Add(game_object.NewGameObject(game_object.WithMesh(r), game_object.WithPosition(0, 0, z)))
}

// fan returns n copies of one CCW triangle facing +Z.
func fan(n int, half float32) model.Mesh {
	m := model.Mesh{Name: "fan"}
	for i := 0; i < n; i++ {
		base := uint32(len(m.Positions))
		m.Positions = append(m.Positions, [3]float32{-half, -half, 0}, [3]float32{half, -half, 0}, [3]float32{0, half, 0})
		m.Indices = append(m.Indices, base, base+1, base+2)
	}
	return m
}

func quad(half float32) model.Mesh {
	return model.Mesh{
		Name:      "quad",
		Positions: [][3]float32{{-half, -half, 0}, {half, -half, 0}, {half, half, 0}, {-half, half, 0}},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	}
}

func frame(t *testing.T, e Engine) FrameOutput {
	t.Helper()
	out, err := e.Frame(context.Background(), 1.0/60)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	return out
}

func TestFrameFeedsDepthToNextFrame(t *testing.T) {
	e := newTestEngine(t)
	s := newTestScene(t, "occluders")
	addMesh(t, s, quad(3), 2)
	addMesh(t, s, fan(5, 0.5), -2)
	e.AddScene(0, s)

	first := frame(t, e)
	if len(first.Scenes) != 1 {
		t.Fatalf("frame 1 ran %d scenes, want 1", len(first.Scenes))
	}
	sf := first.Scenes[0]
	if got := sf.Main.Stats.Count(visibility.Visible); got != 7 {
		t.Fatalf("frame 1 visible = %d, want 7", got)
	}
	if sf.DepthTriangles != 7 {
		t.Errorf("frame 1 drew %d depth triangles, want 7", sf.DepthTriangles)
	}

	second := frame(t, e).Scenes[0]
	if !second.Main.Stats.Occlusion {
		t.Fatal("frame 2 ran without the fed back pyramid")
	}
	if got := second.Main.Stats.Count(visibility.Occluded); got != 5 {
		t.Errorf("frame 2 occluded = %d, want 5", got)
	}
	if got := second.Main.Stats.Predicted; got != 2 {
		t.Errorf("frame 2 predicted = %d, want 2", got)
	}
	if second.Plan == nil || second.Main.Plan != second.Plan {
		t.Error("main result does not share the frame's plan")
	}
}

func TestFrameWithoutDepthFeedback(t *testing.T) {
	e := newTestEngine(t, WithDepthFeedback(false))
	s := newTestScene(t, "nofeedback")
	addMesh(t, s, quad(3), 2)
	addMesh(t, s, fan(5, 0.5), -2)
	e.AddScene(0, s)

	frame(t, e)
	sf := frame(t, e).Scenes[0]
	if sf.Main.Stats.Occlusion || sf.DepthTriangles != 0 {
		t.Errorf("occlusion %v with %d depth triangles, want none", sf.Main.Stats.Occlusion, sf.DepthTriangles)
	}
	if got := sf.Main.Stats.Count(visibility.Visible); got != 7 {
		t.Errorf("visible = %d, want 7", got)
	}
}

func TestFrameCullsShadowCameras(t *testing.T) {
	e := newTestEngine(t)
	sun := light.NewLight(light.LightTypeDirectional,
		light.WithName("sun"),
		light.WithDirection(0, -1, -1),
		light.WithCastsShadows(true))
	lamp := light.NewLight(light.LightTypePoint, light.WithCastsShadows(true))
	s := newTestScene(t, "lit", scene.WithLights(sun, lamp))
	addMesh(t, s, fan(4, 1), 0)
	e.AddScene(0, s)

	frame(t, e)
	sf := frame(t, e).Scenes[0]
	if len(sf.Shadows) != 1 {
		t.Fatalf("%d shadow results, want 1 (point lights cast none)", len(sf.Shadows))
	}
	sh := sf.Shadows[0]
	if sh.Camera != "sun_shadow" {
		t.Errorf("shadow camera = %q, want sun_shadow", sh.Camera)
	}
	if sh.Stats.Predicted != 0 || sh.Stats.Occlusion {
		t.Errorf("shadow camera used history or depth: %s", sh.Stats)
	}
	if sf.Main.Stats.Predicted != 4 {
		t.Errorf("main predicted = %d, want 4", sf.Main.Stats.Predicted)
	}
}

func TestFrameOrdersScenesAndSkipsInactive(t *testing.T) {
	e := newTestEngine(t)
	for _, tc := range []struct {
		key    int
		name   string
		active bool
	}{
		{5, "top", true},
		{-1, "bottom", true},
		{2, "hidden", false},
	} {
		s := newTestScene(t, tc.name, scene.WithActive(tc.active))
		addMesh(t, s, fan(1, 1), 0)
		e.AddScene(tc.key, s)
	}

	out := frame(t, e)
	if len(out.Scenes) != 2 {
		t.Fatalf("ran %d scenes, want 2", len(out.Scenes))
	}
	if out.Scenes[0].Scene != "bottom" || out.Scenes[1].Scene != "top" {
		t.Errorf("scene order = %s, %s", out.Scenes[0].Scene, out.Scenes[1].Scene)
	}
	if out.Frame != 1 {
		t.Errorf("Frame = %d, want 1", out.Frame)
	}

	e.RemoveScene(-1)
	if e.Scene(-1) != nil || e.Culler(-1) != nil {
		t.Error("removed scene still registered")
	}
	if got := len(frame(t, e).Scenes); got != 1 {
		t.Errorf("after RemoveScene ran %d scenes, want 1", got)
	}
}

func TestSetGranularityAppliesToScenes(t *testing.T) {
	e := newTestEngine(t)
	s := newTestScene(t, "objects")
	addMesh(t, s, model.Cube(0.5), 0)
	addMesh(t, s, model.Cube(0.5), 20)
	e.AddScene(0, s)

	frame(t, e)
	e.SetGranularity(batch.GranularityObject)
	sf := frame(t, e).Scenes[0]
	if sf.Plan.Granularity != batch.GranularityObject {
		t.Fatalf("plan granularity = %s, want object", sf.Plan.Granularity)
	}
	if sf.Main.Objects.Count != 1 {
		t.Errorf("visible objects = %d, want 1", sf.Main.Objects.Count)
	}
}

func TestFrameRecordsProfilerStats(t *testing.T) {
	var buf bytes.Buffer
	p := profiler.NewProfiler(profiler.WithInterval(time.Nanosecond), profiler.WithLogger(log.New(&buf, "", 0)))
	e := newTestEngine(t, WithProfiler(p), WithProfiling(true))
	s := newTestScene(t, "profiled")
	addMesh(t, s, fan(3, 1), 0)
	e.AddScene(0, s)

	frame(t, e)
	sums := e.Profiler().Summaries()
	if len(sums) != 1 || sums[0].Camera != "profiled-main" || sums[0].Tested != 3 {
		t.Fatalf("Summaries() = %+v", sums)
	}
	if !bytes.Contains(buf.Bytes(), []byte("[Profiler] profiled-main:")) {
		t.Errorf("profiler output missing camera line:\n%s", buf.String())
	}
}

func TestRunStopsOnQuitAndContext(t *testing.T) {
	e := newTestEngine(t, WithTickRate(500))
	s := newTestScene(t, "loop")
	addMesh(t, s, fan(1, 1), 0)
	e.AddScene(0, s)

	frames := make(chan uint64, 16)
	e.SetTickCallback(func(out FrameOutput) {
		select {
		case frames <- out.Frame:
		default:
		}
		if out.Frame == 3 {
			e.Quit()
		}
	})
	if err := e.Run(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("Run after Quit = %v, want ErrStopped", err)
	}
	if len(frames) < 3 {
		t.Errorf("ran %d frames before Quit, want 3", len(frames))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	e2 := newTestEngine(t, WithTickRate(500))
	if err := e2.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run with expired context = %v, want DeadlineExceeded", err)
	}
}
