package camera

// CameraController supplies the eye position and target a Camera looks at.
// The orbit controller keeps the eye on a sphere around the target; panning moves both.
type CameraController interface {
	// Position returns the eye position in world space.
	//
	// Returns:
	//   - x, y, z: eye position components
	Position() (x, y, z float32)

	// Target returns the point the camera looks at.
	//
	// Returns:
	//   - x, y, z: target components
	Target() (x, y, z float32)

	// SetTarget moves the orbit pivot, keeping radius and angles.
	//
	// Parameters:
	//   - x, y, z: new target components
	SetTarget(x, y, z float32)

	// Orbit rotates the eye around the target. Elevation is clamped to the configured limits.
	//
	// Parameters:
	//   - dAzimuth: change of the horizontal angle in radians
	//   - dElevation: change of the vertical angle in radians
	Orbit(dAzimuth, dElevation float32)

	// Zoom moves the eye toward (positive) or away from (negative) the target.
	//
	// Parameters:
	//   - delta: zoom steps, scaled by the zoom speed
	Zoom(delta float32)

	// Pan translates eye and target along the camera's right, up and forward axes.
	//
	// Parameters:
	//   - right, up, forward: distances along each local axis
	Pan(right, up, forward float32)

	// Radius returns the eye distance from the target.
	Radius() float32

	// Azimuth returns the horizontal orbit angle in radians.
	Azimuth() float32

	// Elevation returns the vertical orbit angle in radians.
	Elevation() float32
}
