// Package visibility holds the culling kernels: one invocation per triangle with workgroup 64, or
// one invocation per object with workgroup 256.
package visibility

import (
	"math"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
)

// Outcome is the result of testing one primitive.
type Outcome uint8

const (
	// Visible primitives are drawn.
	Visible Outcome = iota
	// FrustumCulled primitives lie entirely outside one of the five planes.
	FrustumCulled
	// BackfaceCulled triangles face away under the camera's winding mode or have zero area.
	BackfaceCulled
	// PixelCulled triangles cover no pixel center.
	PixelCulled
	// Occluded primitives are behind the depth recorded in the Hi-Z pyramid.
	Occluded
	// Invalid invocations reference geometry outside the vertex store.
	Invalid

	outcomeCount
)

var outcomeNames = [outcomeCount]string{"visible", "frustum", "backface", "pixel", "occluded", "invalid"}

// String returns the outcome name.
func (o Outcome) String() string {
	if o < outcomeCount {
		return outcomeNames[o]
	}
	return "unknown"
}

// outsideClipPlane reports whether all three vertices are outside one of left, right, bottom, top
// or near. Reversed-Z puts the near plane at z == w.
func outsideClipPlane(clip *[3][4]float32) bool {
	var outside [common.FrustumPlaneCount]int
	for _, v := range clip {
		x, y, z, w := v[0], v[1], v[2], v[3]
		if x+w < 0 {
			outside[common.FrustumLeft]++
		}
		if w-x < 0 {
			outside[common.FrustumRight]++
		}
		if y+w < 0 {
			outside[common.FrustumBottom]++
		}
		if w-y < 0 {
			outside[common.FrustumTop]++
		}
		if w-z < 0 {
			outside[common.FrustumNear]++
		}
	}
	for _, n := range outside {
		if n == 3 {
			return true
		}
	}
	return false
}

func windingVisible(mode camera.WindingMode, area float32) bool {
	switch mode {
	case camera.WindingClockwise:
		return area < 0
	case camera.WindingBoth:
		return area != 0
	default:
		return area > 0
	}
}

// coversPixelCenter reports whether a pixel-space box contains at least one pixel center
// (x+0.5, y+0.5). A box edge lying exactly on a center covers it.
func coversPixelCenter(minX, minY, maxX, maxY float32) bool {
	return math.Ceil(float64(minX)-0.5) <= math.Floor(float64(maxX)-0.5) &&
		math.Ceil(float64(minY)-0.5) <= math.Floor(float64(maxY)-0.5)
}

// TrianglePasses classifies one clip-space triangle for a camera. Triangles with a vertex at or
// behind the eye plane that are not rejected by the frustum planes are kept without further tests.
//
// Parameters:
//   - cam: the camera constants
//   - clip: the vertices after the model-view-projection transform
//   - pyramid: last frame's Hi-Z pyramid, or nil to skip occlusion
//
// Returns:
//   - Outcome: Visible or the first test that rejected the triangle
func TrianglePasses(cam *camera.GPUPerCameraUniform, clip [3][4]float32, pyramid *hiz.Pyramid) Outcome {
	if outsideClipPlane(&clip) {
		return FrustumCulled
	}
	var x, y, z [3]float32
	for k, v := range clip {
		if v[3] <= 0 {
			return Visible
		}
		inv := 1 / v[3]
		x[k], y[k], z[k] = v[0]*inv, v[1]*inv, v[2]*inv
	}

	area := (x[1]-x[0])*(y[2]-y[0]) - (x[2]-x[0])*(y[1]-y[0])
	if !windingVisible(cam.Winding(), area) {
		return BackfaceCulled
	}

	minX, maxX := min(x[0], x[1], x[2]), max(x[0], x[1], x[2])
	minY, maxY := min(y[0], y[1], y[2]), max(y[0], y[1], y[2])

	width, height := cam.Resolution[0], cam.Resolution[1]
	if cam.Flags&camera.FlagMultisample == 0 && width > 0 && height > 0 {
		r := hiz.NDCRect(minX, minY, maxX, maxY, uint32(width), uint32(height))
		if !coversPixelCenter(r.MinX, r.MinY, r.MaxX, r.MaxY) {
			return PixelCulled
		}
	}

	if cam.Flags&camera.FlagShadowCaster == 0 && pyramid != nil {
		r := hiz.NDCRect(minX, minY, maxX, maxY, pyramid.Width(), pyramid.Height())
		if pyramid.Occluded(r, max(z[0], z[1], z[2])) {
			return Occluded
		}
	}
	return Visible
}

// WorldSphere returns an object's bounding sphere in world space.
func WorldSphere(obj *game_object.Object) (center [3]float32, radius float32) {
	c := common.TransformPoint(obj.World[:], obj.BoundsCenter[0], obj.BoundsCenter[1], obj.BoundsCenter[2])
	return [3]float32{c[0], c[1], c[2]}, obj.BoundsRadius * common.MaxAxisScale(obj.World[:])
}

// ObjectPasses classifies one object by its world-space bounding sphere: the five planes first,
// then, for non-shadow cameras with a pyramid, the projected bounds of the sphere's enclosing cube.
//
// Parameters:
//   - cam: the camera constants
//   - obj: the object
//   - pyramid: last frame's Hi-Z pyramid, or nil to skip occlusion
//
// Returns:
//   - Outcome: Visible, FrustumCulled or Occluded
func ObjectPasses(cam *camera.GPUPerCameraUniform, obj *game_object.Object, pyramid *hiz.Pyramid) Outcome {
	c, r := WorldSphere(obj)
	for _, p := range cam.Planes {
		if p[0]*c[0]+p[1]*c[1]+p[2]*c[2]+p[3] < -r {
			return FrustumCulled
		}
	}
	if cam.Flags&camera.FlagShadowCaster != 0 || pyramid == nil {
		return Visible
	}

	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY, nearest := float32(math.Inf(-1)), float32(math.Inf(-1)), float32(math.Inf(-1))
	for corner := 0; corner < 8; corner++ {
		px, py, pz := c[0]-r, c[1]-r, c[2]-r
		if corner&1 != 0 {
			px = c[0] + r
		}
		if corner&2 != 0 {
			py = c[1] + r
		}
		if corner&4 != 0 {
			pz = c[2] + r
		}
		v := common.TransformPoint(cam.ViewProj[:], px, py, pz)
		if v[3] <= 0 {
			return Visible
		}
		inv := 1 / v[3]
		minX, maxX = min(minX, v[0]*inv), max(maxX, v[0]*inv)
		minY, maxY = min(minY, v[1]*inv), max(maxY, v[1]*inv)
		nearest = max(nearest, v[2]*inv)
	}
	rect := hiz.NDCRect(minX, minY, maxX, maxY, pyramid.Width(), pyramid.Height())
	if pyramid.Occluded(rect, nearest) {
		return Occluded
	}
	return Visible
}
