package common

import (
	"math"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   [3]float32
	Distance float32
}

// SignedDistance returns the signed distance from the point to the plane. Positive is inside.
func (p Plane) SignedDistance(x, y, z float32) float32 {
	return p.Normal[0]*x + p.Normal[1]*y + p.Normal[2]*z + p.Distance
}

// Frustum holds the culling planes of a camera. There is no far plane: the projection is
// reversed-Z with the far plane at infinity (or, for orthographic shadow cameras, at a
// distance chosen to enclose every caster).
// Planes are oriented so that the positive half-space is inside the frustum.
type Frustum struct {
	Planes [FrustumPlaneCount]Plane // Left, Right, Bottom, Top, Near
}

// FrustumPlane indices.
const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumPlaneCount
)

// frustumRows lists, per plane, which clip-space row is combined with row 3 and with which sign.
// Reversed-Z puts the near plane at z == w, so near is row3 - row2.
var frustumRows = [FrustumPlaneCount]struct {
	row  int
	sign float32
}{
	FrustumLeft:   {0, 1},
	FrustumRight:  {0, -1},
	FrustumBottom: {1, 1},
	FrustumTop:    {1, -1},
	FrustumNear:   {2, -1},
}

// ExtractFrustumFromMatrix extracts the culling planes from a reversed-Z view-projection matrix
// using the Gribb/Hartmann method.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: 16 float32 values representing the view-projection matrix (column-major)
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustumFromMatrix(viewProj []float32) Frustum {
	var f Frustum

	// Column-major: element (row r, column c) lives at c*4 + r.
	for i, sel := range frustumRows {
		p := &f.Planes[i]
		for c := 0; c < 3; c++ {
			p.Normal[c] = viewProj[c*4+3] + sel.sign*viewProj[c*4+sel.row]
		}
		p.Distance = viewProj[15] + sel.sign*viewProj[12+sel.row]
		p.normalize()
	}

	return f
}

// ContainsSphere reports whether a world-space sphere is at least partially on the inside of
// every plane. Spheres touching a plane count as inside.
//
// Parameters:
//   - cx, cy, cz: sphere center in world space
//   - radius: sphere radius in world units
//
// Returns:
//   - bool: false only when the sphere lies entirely outside at least one plane
func (f Frustum) ContainsSphere(cx, cy, cz, radius float32) bool {
	for _, p := range f.Planes {
		if p.SignedDistance(cx, cy, cz) < -radius {
			return false
		}
	}
	return true
}

func (p *Plane) normalize() {
	length := float32(math.Sqrt(float64(
		p.Normal[0]*p.Normal[0] +
			p.Normal[1]*p.Normal[1] +
			p.Normal[2]*p.Normal[2],
	)))
	if length == 0 {
		return
	}
	inv := 1 / length
	p.Normal[0] *= inv
	p.Normal[1] *= inv
	p.Normal[2] *= inv
	p.Distance *= inv
}
