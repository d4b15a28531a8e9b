package visibility

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/compaction"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/temporal"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
)

// GPUObjectCullSource is the WGSL object culling kernel, the flag pass of the prefix-sum path.
//
//go:embed assets/object_cull.wgsl
var GPUObjectCullSource string

// ObjectWorkgroupSize is the workgroup size of the object kernel.
const ObjectWorkgroupSize = 256

// ObjectInput is everything the object kernel reads and writes for one camera.
type ObjectInput struct {
	Camera  *camera.GPUPerCameraUniform
	Objects []game_object.Object

	// Pyramid is last frame's Hi-Z pyramid; nil skips occlusion.
	Pyramid *hiz.Pyramid
	// Current receives this frame's pass bits, one per object invocation.
	Current *temporal.Bitmask

	Counters *Counters
}

// CullObjects tests every object of an object-granularity plan, then compacts the survivors into
// one draw per visible object with the prefix-sum passes.
//
// Parameters:
//   - ctx: cancels the dispatches
//   - dev: the compute device
//   - in: the camera's inputs and outputs
//   - plan: a plan built with batch.GranularityObject
//
// Returns:
//   - compaction.ObjectDrawList: draws in plan order, Count set by the last invocation
//   - error: a wrapped compute error
func CullObjects(ctx context.Context, dev compute.Device, in *ObjectInput, plan *batch.Plan) (compaction.ObjectDrawList, error) {
	n := plan.TotalInvocations
	ids := make([]uint32, n)
	for i := range plan.Batches {
		for _, r := range plan.Batches[i].Objects {
			ids[r.InvocationStart] = r.ObjectID
		}
	}

	flags := make([]uint32, n)
	err := dev.Dispatch(ctx, compute.DispatchDesc{
		Label:     "visibility.objects",
		Groups:    common.DivCeil(n, ObjectWorkgroupSize),
		GroupSize: ObjectWorkgroupSize,
	}, func(inv *compute.Invocation) {
		i := inv.GlobalID
		if i >= n {
			return
		}
		outcome := ObjectPasses(in.Camera, &in.Objects[ids[i]], in.Pyramid)
		in.Counters.AddOutcome(outcome, 1)
		flags[i] = compaction.PackFlag(outcome == Visible)
		if outcome == Visible {
			in.Current.Set(i)
		}
	})
	if err != nil {
		return compaction.ObjectDrawList{}, fmt.Errorf("object flags: %w", err)
	}

	list := compaction.ObjectDrawList{Calls: make([]compaction.IndirectCall, n)}
	list.Count, err = compaction.PrefixCompact(ctx, dev, flags, func(i, index uint32) {
		obj := &in.Objects[ids[i]]
		list.Calls[index] = compaction.IndirectCall{
			VertexCount:   obj.IndexCount,
			InstanceCount: 1,
			BaseIndex:     obj.FirstIndex,
			BaseInstance:  ids[i],
		}
	})
	if err != nil {
		return compaction.ObjectDrawList{}, err
	}
	list.Calls = list.Calls[:list.Count]
	return list, nil
}
