package visibility

import (
	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
)

// ReferenceTriangles evaluates TrianglePasses serially for every invocation of a triangle plan.
// The model-view-projection is computed per object here instead of read from the transform cache.
//
// Parameters:
//   - cam: the camera constants
//   - objects: the object table the plan was built from
//   - vertices: the vertex store
//   - pyramid: last frame's Hi-Z pyramid, or nil
//   - plan: a plan built with batch.GranularityTriangle
//
// Returns:
//   - []Outcome: one outcome per global invocation
func ReferenceTriangles(cam *camera.GPUPerCameraUniform, objects []game_object.Object, vertices model.View, pyramid *hiz.Pyramid, plan *batch.Plan) []Outcome {
	out := make([]Outcome, plan.TotalInvocations)
	for bi := range plan.Batches {
		for _, r := range plan.Batches[bi].Objects {
			obj := &objects[r.ObjectID]
			var mvp [16]float32
			common.Mul4(mvp[:], cam.ViewProj[:], obj.World[:])
			for g := r.InvocationStart; g < r.InvocationEnd; g++ {
				i0, i1, i2, ok := vertices.Triangle(obj.FirstIndex, g-r.InvocationStart)
				if !ok {
					out[g] = Invalid
					continue
				}
				var clip [3][4]float32
				for k, v := range [3]uint32{i0, i1, i2} {
					p := vertices.Position(obj.PositionOffset, v)
					clip[k] = common.TransformPoint(mvp[:], p[0], p[1], p[2])
				}
				out[g] = TrianglePasses(cam, clip, pyramid)
			}
		}
	}
	return out
}

// ReferenceObjects evaluates ObjectPasses serially for every enabled object.
//
// Parameters:
//   - cam: the camera constants
//   - objects: the object table
//   - pyramid: last frame's Hi-Z pyramid, or nil
//
// Returns:
//   - []uint32: the ids of the visible objects in table order
func ReferenceObjects(cam *camera.GPUPerCameraUniform, objects []game_object.Object, pyramid *hiz.Pyramid) []uint32 {
	var ids []uint32
	for i := range objects {
		if objects[i].Enabled && ObjectPasses(cam, &objects[i], pyramid) == Visible {
			ids = append(ids, uint32(i))
		}
	}
	return ids
}
