package visibility

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/compaction"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/temporal"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
)

func TestEndToEndTwoFiveOne(t *testing.T) {
	s := newScene(t)
	s.add(fan(2, 0.5), -2, 0, 0)
	hidden := s.add(fan(5, 0.5), 0, 0, 50) // behind the camera
	s.add(fan(1, 0.5), 2, 0, 0)

	plan, draws, totals := s.frame(s.cam)
	if len(plan.Batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(plan.Batches))
	}
	wantRanges := [][2]uint32{{0, 2}, {2, 7}, {7, 8}}
	for i, r := range plan.Batches[0].Objects {
		if r.InvocationStart != wantRanges[i][0] || r.InvocationEnd != wantRanges[i][1] {
			t.Errorf("range %d = [%d,%d), want %v", i, r.InvocationStart, r.InvocationEnd, wantRanges[i])
		}
	}

	total := draws.VertexCount(compaction.Predicted) + draws.VertexCount(compaction.Residual)
	if total != 9 {
		t.Errorf("vertex_count total = %d, want 9", total)
	}
	if got := draws.VertexCount(compaction.Predicted); got != 0 {
		t.Errorf("first frame predicted = %d, want 0", got)
	}
	for _, tri := range draws.Triangles(compaction.Residual) {
		if objectOf(plan, tri) == hidden {
			t.Errorf("triangle of the hidden object was emitted: %+v", tri)
		}
	}
	if totals.Count(Visible) != 3 || totals.Count(FrustumCulled) != 5 || totals.Tested != 8 {
		t.Errorf("totals = %+v", totals)
	}

	s.results.Swap()
	_, draws, _ = s.frame(s.cam)
	if p, r := draws.VertexCount(compaction.Predicted), draws.VertexCount(compaction.Residual); p != 9 || r != 0 {
		t.Errorf("second frame predicted=%d residual=%d, want 9 and 0", p, r)
	}
}

func randomScene(t testing.TB, r *rand.Rand, options ...batch.BuilderOption) *scene {
	t.Helper()
	s := newScene(t, options...)
	for i := 0; i < 120; i++ {
		x := r.Float32()*16 - 8
		y := r.Float32()*16 - 8
		z := r.Float32()*30 - 20
		if i%4 == 0 {
			s.add(quad(0.3+r.Float32()), x, y, z)
		} else {
			s.add(fan(1+r.IntN(90), 0.2+r.Float32()*0.5), x, y, z)
		}
		if i%9 == 0 {
			s.objects[len(s.objects)-1].Enabled = false
		}
	}
	return s
}

func TestCompactionMatchesReference(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	s := randomScene(t, r, batch.WithCapacity(700), batch.WithAtomicCeiling(60))
	s.cam.SetWindingMode(camera.WindingBoth)

	plan, draws, totals := s.frame(s.cam)
	if len(plan.Batches) < 2 {
		t.Fatalf("scene produced %d batches, want several", len(plan.Batches))
	}
	u := s.cam.Uniform()
	ref := ReferenceTriangles(&u, s.objects, s.store.Snapshot(), nil, plan)

	want := map[triKey]int{}
	view := s.store.Snapshot()
	visible := 0
	for bi := range plan.Batches {
		for _, rg := range plan.Batches[bi].Objects {
			obj := &s.objects[rg.ObjectID]
			for g := rg.InvocationStart; g < rg.InvocationEnd; g++ {
				if ref[g] != Visible {
					continue
				}
				visible++
				i0, i1, i2, _ := view.Triangle(obj.FirstIndex, g-rg.InvocationStart)
				want[triKey{rg.ObjectID, [3]uint32{i0, i1, i2}}]++
			}
		}
	}
	if visible == 0 || visible == int(plan.TotalInvocations) {
		t.Fatalf("degenerate scene: %d of %d visible", visible, plan.TotalInvocations)
	}

	if got := draws.EmittedTriangles(); got != visible {
		t.Errorf("emitted %d triangles, reference has %d", got, visible)
	}
	got := keys(plan, append(draws.Triangles(compaction.Predicted), draws.Triangles(compaction.Residual)...))
	for k, n := range want {
		if got[k] != n {
			t.Errorf("triangle %+v emitted %d times, want %d", k, got[k], n)
		}
	}

	// Atomic regions count only what they emit, non-atomic ones cover their whole span.
	calls := draws.Calls(compaction.Residual)
	for _, rg := range plan.Regions {
		if rg.AtomicCapable {
			continue
		}
		if calls[rg.ID].VertexCount != rg.InvocationCount*3 {
			t.Errorf("non-atomic region %d vertex_count = %d, want %d", rg.ID, calls[rg.ID].VertexCount, rg.InvocationCount*3)
		}
	}

	current := s.results.Current()
	for g, o := range ref {
		if current.Test(uint32(g)) != (o == Visible) {
			t.Fatalf("bit %d = %v, reference outcome %v", g, current.Test(uint32(g)), o)
		}
	}
	if totals.Count(Visible) != uint64(visible) || totals.Tested != uint64(plan.TotalInvocations) {
		t.Errorf("totals = %+v, want %d visible of %d", totals, visible, plan.TotalInvocations)
	}
}

func TestFrustumSoundness(t *testing.T) {
	s := newScene(t)
	outside := map[uint32]bool{}
	for _, p := range [][3]float32{{-1000, 0, 0}, {1000, 0, 0}, {0, 1000, 0}, {0, -1000, 0}, {0, 0, 40}} {
		outside[s.add(fan(40, 1), p[0], p[1], p[2])] = true
	}
	s.add(quad(1), 0, 0, 0)

	for _, mode := range []camera.WindingMode{camera.WindingCounterClockwise, camera.WindingClockwise, camera.WindingBoth} {
		s.cam.SetWindingMode(mode)
		s.results = temporal.NewStore()
		plan, draws, _ := s.frame(s.cam)
		for _, sec := range []compaction.Section{compaction.Predicted, compaction.Residual} {
			for _, tri := range draws.Triangles(sec) {
				if outside[objectOf(plan, tri)] {
					t.Fatalf("%v: triangle of outside object %d emitted", mode, objectOf(plan, tri))
				}
			}
		}
	}
}

func TestOcclusionSkippedForShadowCamera(t *testing.T) {
	s := newScene(t)
	occluder := s.add(quad(4), 0, 0, 0)
	occludee := s.add(quad(1), 0, 0, -5)
	s.rasterize(occluder)

	plan, draws, totals := s.frame(s.cam)
	for _, tri := range draws.Triangles(compaction.Residual) {
		if objectOf(plan, tri) == occludee {
			t.Fatal("occludee emitted for the main camera")
		}
	}
	if totals.Count(Occluded) != 2 || totals.Count(Visible) != 2 {
		t.Errorf("main camera totals = %+v, want 2 occluded and 2 visible", totals)
	}

	shadow := camera.NewCamera(
		camera.WithResolution(64, 64),
		camera.WithShadowCaster(true),
		camera.WithController(s.cam.Controller()),
	)
	s.results = temporal.NewStore()
	plan, draws, _ = s.frame(shadow)
	seen := 0
	for _, tri := range draws.Triangles(compaction.Residual) {
		if objectOf(plan, tri) == occludee {
			seen++
		}
	}
	if seen != 2 {
		t.Errorf("shadow camera emitted %d occludee triangles, want 2", seen)
	}
	if draws.VertexCount(compaction.Predicted) != 0 {
		t.Error("shadow camera used the predicted section")
	}
}

func TestTemporalIdempotence(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 9))
	s := randomScene(t, r)

	plan1, draws1, _ := s.frame(s.cam)
	first := keys(plan1, draws1.Triangles(compaction.Residual))
	s.results.Swap()

	plan2, draws2, _ := s.frame(s.cam)
	if n := draws2.VertexCount(compaction.Residual); n != 0 {
		t.Errorf("static second frame residual vertex_count = %d, want 0", n)
	}
	second := keys(plan2, draws2.Triangles(compaction.Predicted))
	if len(first) != len(second) {
		t.Fatalf("predicted set has %d triangles, first frame passed %d", len(second), len(first))
	}
	for k, n := range first {
		if second[k] != n {
			t.Errorf("triangle %+v predicted %d times, want %d", k, second[k], n)
		}
	}
}

func TestNewlyVisibleObjectGoesResidual(t *testing.T) {
	s := newScene(t)
	s.add(quad(1), -2, 0, 0)
	late := s.add(quad(1), 2, 0, 0)
	s.objects[late].Enabled = false

	s.frame(s.cam)
	s.results.Swap()
	s.objects[late].Enabled = true
	plan, draws, _ := s.frame(s.cam)

	for _, tri := range draws.Triangles(compaction.Predicted) {
		if objectOf(plan, tri) == late {
			t.Error("object without history was predicted")
		}
	}
	if p, r := draws.VertexCount(compaction.Predicted), draws.VertexCount(compaction.Residual); p != 6 || r != 6 {
		t.Errorf("predicted=%d residual=%d, want 6 and 6", p, r)
	}
}

func TestObjectPathMatchesReference(t *testing.T) {
	r := rand.New(rand.NewPCG(2, 3))
	s := randomScene(t, r)
	for _, p := range [][3]float32{{-500, 0, 0}, {0, 0, 60}} {
		s.add(quad(1), p[0], p[1], p[2])
	}

	u := s.cam.Uniform()
	plan := s.builder.Build(s.objects, batch.GranularityObject)
	current := temporal.NewBitmask(plan.TotalInvocations)
	counters := &Counters{}
	list, err := CullObjects(context.Background(), s.dev, &ObjectInput{
		Camera:   &u,
		Objects:  s.objects,
		Current:  current,
		Counters: counters,
	}, &plan)
	if err != nil {
		t.Fatal(err)
	}

	want := ReferenceObjects(&u, s.objects, nil)
	got := list.VisibleObjects()
	if len(got) != len(want) || int(list.Count) != len(want) {
		t.Fatalf("visible objects = %d (count %d), want %d", len(got), list.Count, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("draw %d is object %d, want %d", i, got[i], want[i])
		}
		obj := &s.objects[want[i]]
		if c := list.Calls[i]; c.VertexCount != obj.IndexCount || c.BaseIndex != obj.FirstIndex || c.InstanceCount != 1 {
			t.Errorf("draw %d = %+v", i, c)
		}
	}
	if current.Count() != len(want) {
		t.Errorf("%d pass bits set, want %d", current.Count(), len(want))
	}
	if tot := counters.Totals(); tot.Tested != uint64(plan.TotalInvocations) {
		t.Errorf("tested %d objects, want %d", tot.Tested, plan.TotalInvocations)
	}
}

func TestObjectOcclusion(t *testing.T) {
	s := newScene(t)
	occluder := s.add(quad(4), 0, 0, 0)
	occludee := s.add(model.Cube(0.5), 0, 0, -6)
	s.rasterize(occluder)

	u := s.cam.Uniform()
	if got := ObjectPasses(&u, &s.objects[occludee], s.pyramid); got != Occluded {
		t.Errorf("object behind the occluder = %v, want occluded", got)
	}
	if got := ObjectPasses(&u, &s.objects[occluder], s.pyramid); got != Visible {
		t.Errorf("occluder = %v, want visible", got)
	}
	u.Flags |= camera.FlagShadowCaster
	if got := ObjectPasses(&u, &s.objects[occludee], s.pyramid); got != Visible {
		t.Errorf("shadow camera = %v, want visible", got)
	}
}

func BenchmarkCullTriangles(b *testing.B) {
	r := rand.New(rand.NewPCG(1, 1))
	s := randomScene(b, r)
	for b.Loop() {
		s.frame(s.cam)
		s.results.Swap()
	}
}
