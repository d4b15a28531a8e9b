package camera

// CameraBuilderOption is a functional option for configuring a Camera via NewCamera.
type CameraBuilderOption func(*cameraImpl)

// WithName sets the camera's identifier.
//
// Parameters:
//   - name: the camera name
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's name
func WithName(name string) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.name = name
	}
}

// WithUp sets the camera's up vector.
//
// Parameters:
//   - x, y, z: up vector components
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's up vector
func WithUp(x, y, z float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = [3]float32{x, y, z}
	}
}

// WithFov sets the camera's vertical field of view in radians.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's field of view
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fov
	}
}

// WithNear sets the near plane distance.
//
// Parameters:
//   - near: the near plane distance (must be > 0)
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's near plane
func WithNear(near float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
	}
}

// WithOrthographic switches the camera to a square orthographic projection, as used by
// directional shadow casters.
//
// Parameters:
//   - halfExtent: half the width and height of the view volume
//   - near, far: clip distances along the view direction
//
// Returns:
//   - CameraBuilderOption: a function that sets an orthographic projection
func WithOrthographic(halfExtent, near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.projection = projectionOrthographic
		c.orthoHalf = halfExtent
		c.near = near
		c.orthoFar = far
	}
}

// WithResolution sets the render target size in pixels.
//
// Parameters:
//   - width, height: render target dimensions
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's resolution
func WithResolution(width, height uint32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.resolution = [2]uint32{width, height}
	}
}

// WithWindingMode sets the back-face rule.
//
// Parameters:
//   - mode: which orientation counts as front-facing
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's winding mode
func WithWindingMode(mode WindingMode) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.winding = mode
	}
}

// WithMultisample marks the render target as multisampled.
//
// Parameters:
//   - enabled: true if the target is multisampled
//
// Returns:
//   - CameraBuilderOption: a function that sets the multisample flag
func WithMultisample(enabled bool) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.multisample = enabled
	}
}

// WithShadowCaster marks the camera as a shadow-map camera.
//
// Parameters:
//   - enabled: true for shadow cameras
//
// Returns:
//   - CameraBuilderOption: a function that sets the shadow caster flag
func WithShadowCaster(enabled bool) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.shadowCaster = enabled
	}
}

// WithController sets the controller that positions the camera.
//
// Parameters:
//   - ctrl: the camera controller
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's controller
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}
