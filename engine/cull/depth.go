package cull

import (
	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/compaction"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
)

// RasterizeVisible draws the depth of everything a Result emitted into depth, standing in for the
// depth pre-pass that feeds the next frame's pyramid.
//
// Parameters:
//   - res: the camera's result for this frame
//   - objects: the object table the result was culled from
//   - vertices: the shared vertex storage
//   - depth: the buffer to draw into; it is not cleared
//
// Returns:
//   - int: the number of triangles drawn
func RasterizeVisible(res *Result, objects []game_object.Object, vertices model.View, depth *hiz.DepthBuffer) int {
	if res == nil || res.Plan == nil || res.Transforms == nil {
		return 0
	}
	drawn := 0
	draw := func(id uint32, corners [3]uint32) {
		obj := &objects[id]
		mvp := &res.Transforms.At(id).ModelViewProjection
		var clip [3][4]float32
		for k, v := range corners {
			p := vertices.Position(obj.PositionOffset, v)
			clip[k] = common.TransformPoint(mvp[:], p[0], p[1], p[2])
		}
		depth.RasterizeDepth(clip)
		drawn++
	}

	if res.Draws != nil {
		for _, section := range []compaction.Section{compaction.Predicted, compaction.Residual} {
			for _, tri := range res.Draws.Triangles(section) {
				if tri.Vertices[0] == compaction.InvalidVertex {
					continue
				}
				draw(res.Plan.Regions[tri.Region].ObjectIDs[tri.Local], tri.Vertices)
			}
		}
		return drawn
	}

	for _, id := range res.Objects.VisibleObjects() {
		obj := &objects[id]
		for t := uint32(0); t < obj.TriangleCount(); t++ {
			i0, i1, i2, ok := vertices.Triangle(obj.FirstIndex, t)
			if ok {
				draw(id, [3]uint32{i0, i1, i2})
			}
		}
	}
	return drawn
}
