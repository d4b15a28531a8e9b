package common

import (
	"math"
)

// Mat4 is a 4x4 matrix in column-major order (WebGPU convention).
type Mat4 = [16]float32

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// Mul4 multiplies two 4x4 matrices and stores the result in out.
// All matrices are stored in column-major order.
// Result: out = a * b
//
// Parameters:
//   - out: destination slice (must be at least 16 elements, may alias a or b)
//   - a: left-hand matrix (16 elements)
//   - b: right-hand matrix (16 elements)
func Mul4(out, a, b []float32) {
	var buf [16]float32
	for col := 0; col < 4; col++ {
		b0, b1, b2, b3 := b[col*4], b[col*4+1], b[col*4+2], b[col*4+3]
		for row := 0; row < 4; row++ {
			buf[col*4+row] = a[row]*b0 + a[4+row]*b1 + a[8+row]*b2 + a[12+row]*b3
		}
	}
	copy(out, buf[:])
}

// TransformPoint multiplies the column-major matrix m by the point (x, y, z, 1).
//
// Returns:
//   - [4]float32: the homogeneous result (clip space when m is a model-view-projection)
func TransformPoint(m []float32, x, y, z float32) [4]float32 {
	return [4]float32{
		m[0]*x + m[4]*y + m[8]*z + m[12],
		m[1]*x + m[5]*y + m[9]*z + m[13],
		m[2]*x + m[6]*y + m[10]*z + m[14],
		m[3]*x + m[7]*y + m[11]*z + m[15],
	}
}

// MaxAxisScale returns the length of the longest basis column of the upper 3x3 of m.
// Multiplying an object-space radius by it bounds the radius in world space.
func MaxAxisScale(m []float32) float32 {
	var best float32
	for col := 0; col < 3; col++ {
		x, y, z := m[col*4], m[col*4+1], m[col*4+2]
		if l := x*x + y*y + z*z; l > best {
			best = l
		}
	}
	return float32(math.Sqrt(float64(best)))
}

// PerspectiveReversedZ creates a right-handed perspective projection with reversed depth and an
// infinite far plane: the near plane maps to depth 1 and infinity maps to depth 0.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
func PerspectiveReversedZ(out []float32, fovY, aspect, near float32) {
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))
	Identity(out)

	out[0] = f / aspect
	out[5] = f
	out[10] = 0
	out[11] = -1
	out[14] = near
	out[15] = 0
}

// OrthographicReversedZ creates a right-handed orthographic projection with reversed depth:
// view-space -near maps to depth 1 and -far maps to depth 0.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - left, right, bottom, top: view volume extents
//   - near, far: clip distances along the view direction (far > near)
func OrthographicReversedZ(out []float32, left, right, bottom, top, near, far float32) {
	Identity(out)

	out[0] = 2 / (right - left)
	out[5] = 2 / (top - bottom)
	out[10] = 1 / (far - near)
	out[12] = -(right + left) / (right - left)
	out[13] = -(top + bottom) / (top - bottom)
	out[14] = far / (far - near)
}

// BuildModelMatrix constructs a 4x4 model matrix from position, Euler rotation, and scale.
// The rotation order is Y * X * Z (yaw-pitch-roll). All matrices are column-major.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - pos: translation in world space
//   - rot: rotation angles in radians around each axis
//   - scale: scale factors along each axis
func BuildModelMatrix(out []float32, pos, rot, scale [3]float32) {
	cx, sx := sincos(rot[0])
	cy, sy := sincos(rot[1])
	cz, sz := sincos(rot[2])

	out[0] = (cy*cz + sy*sx*sz) * scale[0]
	out[1] = (cx * sz) * scale[0]
	out[2] = (-sy*cz + cy*sx*sz) * scale[0]
	out[3] = 0

	out[4] = (cy*-sz + sy*sx*cz) * scale[1]
	out[5] = (cx * cz) * scale[1]
	out[6] = (sy*sz + cy*sx*cz) * scale[1]
	out[7] = 0

	out[8] = (sy * cx) * scale[2]
	out[9] = (-sx) * scale[2]
	out[10] = (cy * cx) * scale[2]
	out[11] = 0

	out[12] = pos[0]
	out[13] = pos[1]
	out[14] = pos[2]
	out[15] = 1
}

func sincos(a float32) (float32, float32) {
	s, c := math.Sincos(float64(a))
	return float32(c), float32(s)
}

// LookAt creates a view matrix that positions and orients the camera.
// The resulting matrix transforms world coordinates to view space (camera looks down -Z).
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - eye: camera position in world space
//   - center: target point the camera looks at
//   - up: up vector defining camera orientation (typically 0,1,0)
func LookAt(out []float32, eye, center, up [3]float32) {
	z := normalize3(eye[0]-center[0], eye[1]-center[1], eye[2]-center[2])
	x := normalize3(
		up[1]*z[2]-up[2]*z[1],
		up[2]*z[0]-up[0]*z[2],
		up[0]*z[1]-up[1]*z[0],
	)
	y := [3]float32{
		z[1]*x[2] - z[2]*x[1],
		z[2]*x[0] - z[0]*x[2],
		z[0]*x[1] - z[1]*x[0],
	}

	out[0], out[4], out[8], out[12] = x[0], x[1], x[2], -dot3(x, eye)
	out[1], out[5], out[9], out[13] = y[0], y[1], y[2], -dot3(y, eye)
	out[2], out[6], out[10], out[14] = z[0], z[1], z[2], -dot3(z, eye)
	out[3], out[7], out[11], out[15] = 0, 0, 0, 1
}

func dot3(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// normalize3 returns the unit vector of (x, y, z); a zero vector is returned unchanged.
func normalize3(x, y, z float32) [3]float32 {
	l := x*x + y*y + z*z
	if l == 0 {
		return [3]float32{x, y, z}
	}
	inv := 1 / float32(math.Sqrt(float64(l)))
	return [3]float32{x * inv, y * inv, z * inv}
}
