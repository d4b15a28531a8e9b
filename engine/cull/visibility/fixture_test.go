package visibility

import (
	"context"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/compaction"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/temporal"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/transform"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
)

// scene is a tiny world seen by a camera on +Z looking at the origin from distance 10.
type scene struct {
	t       testing.TB
	dev     compute.Device
	store   model.Store
	objects []game_object.Object
	cam     camera.Camera
	builder batch.Builder
	results temporal.Store
	cache   *transform.Cache
	pyramid *hiz.Pyramid
}

func newScene(t testing.TB, options ...batch.BuilderOption) *scene {
	t.Helper()
	dev := compute.NewDevice(compute.WithWorkers(4), compute.WithQueueSize(64))
	t.Cleanup(dev.Close)
	return &scene{
		t:     t,
		dev:   dev,
		store: model.NewStore(),
		cam: camera.NewCamera(
			camera.WithResolution(64, 64),
			camera.WithController(camera.NewOrbitController(camera.WithRadius(10), camera.WithElevation(0))),
		),
		builder: batch.NewBuilder(options...),
		results: temporal.NewStore(),
		cache:   transform.NewCache(),
	}
}

// fan returns a mesh of n copies of one CCW triangle facing +Z, each with its own vertices.
func fan(n int, half float32) model.Mesh {
	m := model.Mesh{Name: "fan"}
	for i := 0; i < n; i++ {
		base := uint32(len(m.Positions))
		m.Positions = append(m.Positions, [3]float32{-half, -half, 0}, [3]float32{half, -half, 0}, [3]float32{0, half, 0})
		m.Indices = append(m.Indices, base, base+1, base+2)
	}
	return m
}

// quad returns a square of two CCW triangles facing +Z.
func quad(half float32) model.Mesh {
	return model.Mesh{
		Name:      "quad",
		Positions: [][3]float32{{-half, -half, 0}, {half, -half, 0}, {half, half, 0}, {-half, half, 0}},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	}
}

func (s *scene) add(mesh model.Mesh, x, y, z float32) uint32 {
	s.t.Helper()
	r, err := s.store.AddMesh(mesh)
	if err != nil {
		s.t.Fatalf("AddMesh: %v", err)
	}
	obj := game_object.NewGameObject(game_object.WithMesh(r), game_object.WithPosition(x, y, z)).Record()
	s.objects = append(s.objects, obj)
	return uint32(len(s.objects) - 1)
}

// frame culls every batch of a triangle plan for the camera and swaps the temporal buffers.
func (s *scene) frame(cam camera.Camera) (*batch.Plan, compaction.DrawCallBuffer, Totals) {
	s.t.Helper()
	ctx := context.Background()
	u := cam.Uniform()
	plan := s.builder.Build(s.objects, batch.GranularityTriangle)
	if err := s.cache.Update(ctx, s.dev, &u, s.objects); err != nil {
		s.t.Fatal(err)
	}
	s.results.Begin(plan.TotalInvocations)
	draws := compaction.NewDrawCallBuffer()
	draws.Reset(&plan)

	counters := &Counters{}
	in := &TriangleInput{
		Camera:     &u,
		Objects:    s.objects,
		Transforms: s.cache,
		Vertices:   s.store.Snapshot(),
		Pyramid:    s.pyramid,
		Previous:   s.results.Previous(),
		Current:    s.results.Current(),
		Draws:      draws,
		Counters:   counters,
	}
	for i := range plan.Batches {
		if err := CullTriangles(ctx, s.dev, in, &plan.Batches[i]); err != nil {
			s.t.Fatalf("CullTriangles batch %d: %v", i, err)
		}
	}
	return &plan, draws, counters.Totals()
}

// rasterize draws the given objects into a depth buffer and builds the pyramid used next frame.
func (s *scene) rasterize(ids ...uint32) {
	s.t.Helper()
	w, h := s.cam.Resolution()
	depth := hiz.NewDepthBuffer(w, h)
	u := s.cam.Uniform()
	view := s.store.Snapshot()
	for _, id := range ids {
		obj := &s.objects[id]
		var mvp [16]float32
		common.Mul4(mvp[:], u.ViewProj[:], obj.World[:])
		for tri := uint32(0); tri < obj.TriangleCount(); tri++ {
			i0, i1, i2, _ := view.Triangle(obj.FirstIndex, tri)
			var clip [3][4]float32
			for k, v := range [3]uint32{i0, i1, i2} {
				p := view.Position(obj.PositionOffset, v)
				clip[k] = common.TransformPoint(mvp[:], p[0], p[1], p[2])
			}
			depth.RasterizeDepth(clip)
		}
	}
	p, err := hiz.Build(context.Background(), s.dev, depth.Texels, w, h)
	if err != nil {
		s.t.Fatal(err)
	}
	s.pyramid = p
}

// objectOf maps a drawn triangle back to its object id.
func objectOf(plan *batch.Plan, tri compaction.Triangle) uint32 {
	return plan.Regions[tri.Region].ObjectIDs[tri.Local]
}

type triKey struct {
	object   uint32
	vertices [3]uint32
}

func keys(plan *batch.Plan, tris []compaction.Triangle) map[triKey]int {
	out := map[triKey]int{}
	for _, tri := range tris {
		out[triKey{objectOf(plan, tri), tri.Vertices}]++
	}
	return out
}
