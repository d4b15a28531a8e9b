package visibility

import (
	"context"
	_ "embed"

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

// GPUTriangleCullSource is the WGSL triangle culling kernel.
//
//go:embed assets/triangle_cull.wgsl
var GPUTriangleCullSource string

// TriangleWorkgroupSize is the workgroup size of the triangle kernel; a workgroup covers 64
// consecutive invocations of one batch.
const TriangleWorkgroupSize = 64

// Workgroup-shared word layout of the triangle kernel.
const (
	sharedRange    = 0 // range index found by the leader
	sharedBits     = 1 // three bitmask words: 64 bits starting anywhere span at most three
	sharedOutcomes = sharedBits + 3
	sharedEmitted  = sharedOutcomes + int(outcomeCount)

	triangleSharedWords = sharedEmitted + 2
)

// TriangleInput is everything the triangle kernel reads and writes for one camera.
type TriangleInput struct {
	Camera     *camera.GPUPerCameraUniform
	Objects    []game_object.Object
	Transforms *transform.Cache
	Vertices   model.View

	// Pyramid is last frame's Hi-Z pyramid; nil skips occlusion.
	Pyramid *hiz.Pyramid
	// Previous is last frame's result; nil sends every passing triangle to the residual section.
	Previous *temporal.Bitmask
	// Current receives this frame's pass bits.
	Current *temporal.Bitmask

	Draws    compaction.DrawCallBuffer
	Counters *Counters
}

// fetch reads triangle t of an object and transforms it with the cached model-view-projection.
func (in *TriangleInput) fetch(id, t uint32) (vertices [3]uint32, clip [3][4]float32, ok bool) {
	obj := &in.Objects[id]
	i0, i1, i2, ok := in.Vertices.Triangle(obj.FirstIndex, t)
	if !ok {
		return vertices, clip, false
	}
	vertices = [3]uint32{i0, i1, i2}
	mvp := in.Transforms.At(id)
	for k, v := range vertices {
		p := in.Vertices.Position(obj.PositionOffset, v)
		clip[k] = common.TransformPoint(mvp.ModelViewProjection[:], p[0], p[1], p[2])
	}
	return vertices, clip, true
}

// CullTriangles runs the triangle kernel over one batch.
//
// Per invocation: the leader binary-searches the range table and broadcasts the result through
// shared memory, the triangle is fetched, transformed and tested, passing triangles of atomic
// regions claim a slot in the predicted or residual call of their region, and non-atomic regions
// write every triangle at its own position, degenerate when it failed. Pass bits are gathered in
// shared words and flushed by the leader after a second barrier.
//
// Parameters:
//   - ctx: cancels the dispatch
//   - dev: the compute device
//   - in: the camera's inputs and outputs
//   - b: the batch to cull
//
// Returns:
//   - error: a wrapped compute error
func CullTriangles(ctx context.Context, dev compute.Device, in *TriangleInput, b *batch.BatchData) error {
	n := b.TotalInvocations
	shadow := in.Camera.Flags&camera.FlagShadowCaster != 0

	return dev.Dispatch(ctx, compute.DispatchDesc{
		Label:       "visibility.triangles",
		Groups:      common.DivCeil(n, TriangleWorkgroupSize),
		GroupSize:   TriangleWorkgroupSize,
		SharedWords: triangleSharedWords,
		Cooperative: true,
	}, func(inv *compute.Invocation) {
		global := b.BatchBaseInvocation + inv.GlobalID
		groupFirst := b.BatchBaseInvocation + inv.GroupID*TriangleWorkgroupSize

		if inv.Leader() {
			inv.Shared(sharedRange).Store(uint32(int32(b.Find(global))))
		}
		inv.Barrier()

		inRange := inv.GlobalID < n
		idx := int(int32(inv.Shared(sharedRange).Load()))
		if inRange && (idx < 0 || global >= b.Objects[idx].InvocationEnd || global < b.Objects[idx].InvocationStart) {
			idx = b.Find(global)
		}

		if inRange && idx >= 0 {
			r := &b.Objects[idx]
			outcome, section, emitted := in.cullOne(r, global, shadow)
			if outcome == Visible {
				word := (global >> 5) - (groupFirst >> 5)
				inv.Shared(sharedBits + int(word)).Or(1 << (global & 31))
			}
			inv.Shared(sharedOutcomes + int(outcome)).Add(1)
			if emitted {
				inv.Shared(sharedEmitted + int(section)).Add(1)
			}
		}
		inv.Barrier()

		if !inv.Leader() {
			return
		}
		for w := range 3 {
			if bits := inv.Shared(sharedBits + w).Load(); bits != 0 {
				in.Current.OrWord(groupFirst>>5+uint32(w), bits)
			}
		}
		if in.Counters != nil {
			for o := Outcome(0); o < outcomeCount; o++ {
				in.Counters.AddOutcome(o, uint64(inv.Shared(sharedOutcomes+int(o)).Load()))
			}
			in.Counters.AddEmitted(compaction.Predicted, uint64(inv.Shared(sharedEmitted).Load()))
			in.Counters.AddEmitted(compaction.Residual, uint64(inv.Shared(sharedEmitted+1).Load()))
		}
	})
}

// cullOne tests the triangle of one invocation and writes it to the draw buffer.
func (in *TriangleInput) cullOne(r *batch.ObjectCullingInformation, global uint32, shadow bool) (Outcome, compaction.Section, bool) {
	t := global - r.InvocationStart
	vertices, clip, ok := in.fetch(r.ObjectID, t)
	outcome := Invalid
	if ok {
		outcome = TrianglePasses(in.Camera, clip, in.Pyramid)
	}

	if !r.AtomicCapable {
		pos := in.Draws.Place(global)
		if outcome == Visible {
			in.Draws.Write(pos, r.LocalRegionID, vertices)
		} else {
			in.Draws.WriteInvalid(pos)
		}
		in.Draws.AddVertices(r.RegionID, compaction.Residual, 3)
		return outcome, compaction.Residual, outcome == Visible
	}

	if outcome != Visible {
		return outcome, compaction.Residual, false
	}
	section := compaction.Residual
	if !shadow && r.PreviousGlobalInvocation != batch.NoPreviousInvocation &&
		in.Previous.Test(r.PreviousGlobalInvocation+t) {
		section = compaction.Predicted
	}
	pos := in.Draws.Claim(r.RegionID, section)
	in.Draws.Write(pos, r.LocalRegionID, vertices)
	return outcome, section, true
}
