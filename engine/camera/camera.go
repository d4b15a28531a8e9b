package camera

import (
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-cull/common"
)

var cameraCount atomic.Uint64

// WindingMode selects which triangle orientation survives the back-face test.
type WindingMode uint32

const (
	// WindingCounterClockwise keeps triangles with positive signed screen area.
	WindingCounterClockwise WindingMode = iota
	// WindingClockwise keeps triangles with negative signed screen area.
	WindingClockwise
	// WindingBoth keeps every non-degenerate triangle.
	WindingBoth
)

// String returns the winding mode name.
func (w WindingMode) String() string {
	switch w {
	case WindingCounterClockwise:
		return "ccw"
	case WindingClockwise:
		return "cw"
	case WindingBoth:
		return "both"
	}
	return "winding(" + strconv.FormatUint(uint64(w), 10) + ")"
}

type projectionKind uint8

const (
	projectionPerspective projectionKind = iota
	projectionOrthographic
)

type cameraImpl struct {
	mu *sync.Mutex

	name string
	up   [3]float32

	projection projectionKind
	fov        float32
	near       float32
	orthoHalf  float32
	orthoFar   float32

	resolution   [2]uint32
	winding      WindingMode
	multisample  bool
	shadowCaster bool

	viewMatrix           [16]float32
	projectionMatrix     [16]float32
	viewProjectionMatrix [16]float32
	frustum              common.Frustum

	controller CameraController
}

// Camera describes one view the culling subsystem runs for: the main view or a shadow caster.
// Matrices use reversed-Z depth (near plane at 1) so the depth pyramid's minimum is the farthest
// occluder.
type Camera interface {
	// Name returns the camera's identifier. Per-camera cull state is keyed by it.
	//
	// Returns:
	//   - string: the camera name
	Name() string

	// Resolution returns the render target size in pixels.
	//
	// Returns:
	//   - width, height: render target dimensions
	Resolution() (width, height uint32)

	// WindingMode returns which triangle orientation is treated as front-facing.
	//
	// Returns:
	//   - WindingMode: the back-face rule
	WindingMode() WindingMode

	// Multisample reports whether the target is multisampled. Small-primitive rejection is
	// skipped when it is.
	//
	// Returns:
	//   - bool: true if multisampled
	Multisample() bool

	// ShadowCaster reports whether this camera renders a shadow map. Shadow cameras skip the
	// occlusion test and the temporal split.
	//
	// Returns:
	//   - bool: true for shadow cameras
	ShadowCaster() bool

	// Position returns the eye position in world space.
	//
	// Returns:
	//   - x, y, z: eye position components
	Position() (x, y, z float32)

	// ViewMatrix retrieves the world-to-view matrix.
	//
	// Returns:
	//   - [16]float32: the view matrix (column-major)
	ViewMatrix() [16]float32

	// ProjectionMatrix retrieves the reversed-Z projection matrix.
	//
	// Returns:
	//   - [16]float32: the projection matrix (column-major)
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix retrieves Projection * View.
	//
	// Returns:
	//   - [16]float32: the view-projection matrix (column-major)
	ViewProjectionMatrix() [16]float32

	// Frustum returns the five culling planes extracted from the view-projection matrix.
	//
	// Returns:
	//   - common.Frustum: left, right, bottom, top and near planes
	Frustum() common.Frustum

	// Controller retrieves the controller that positions the camera.
	//
	// Returns:
	//   - CameraController: the controller, or nil
	Controller() CameraController

	// Uniform packs the per-camera constants the cull kernels read.
	//
	// Returns:
	//   - GPUPerCameraUniform: view, view-projection, planes, resolution and flags
	Uniform() GPUPerCameraUniform

	// Update recomputes the matrices from the controller's current position and target.
	Update()

	// SetController replaces the controller and recomputes the matrices.
	//
	// Parameters:
	//   - ctrl: the new controller
	SetController(ctrl CameraController)

	// SetResolution changes the render target size; the aspect ratio follows it.
	//
	// Parameters:
	//   - width, height: render target dimensions in pixels
	SetResolution(width, height uint32)

	// SetWindingMode changes the back-face rule.
	//
	// Parameters:
	//   - mode: the new winding mode
	SetWindingMode(mode WindingMode)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a perspective camera (45 degree fov, 1280x720) with the options applied.
//
// Parameters:
//   - options: a variadic list of CameraBuilderOption functions
//
// Returns:
//   - Camera: the configured camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:         &sync.Mutex{},
		name:       "camera_" + strconv.FormatUint(cameraCount.Add(1)-1, 10),
		up:         [3]float32{0, 1, 0},
		fov:        45.0 * (math.Pi / 180.0),
		near:       0.1,
		resolution: [2]uint32{1280, 720},
	}
	common.Identity(c.viewMatrix[:])
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *cameraImpl) Resolution() (width, height uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolution[0], c.resolution[1]
}

func (c *cameraImpl) WindingMode() WindingMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.winding
}

func (c *cameraImpl) Multisample() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multisample
}

func (c *cameraImpl) ShadowCaster() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shadowCaster
}

func (c *cameraImpl) Position() (x, y, z float32) {
	c.mu.Lock()
	ctrl := c.controller
	c.mu.Unlock()
	if ctrl == nil {
		return 0, 0, 0
	}
	return ctrl.Position()
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frustum
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Uniform() GPUPerCameraUniform {
	c.mu.Lock()
	defer c.mu.Unlock()

	u := GPUPerCameraUniform{
		View:       c.viewMatrix,
		ViewProj:   c.viewProjectionMatrix,
		Resolution: [2]float32{float32(c.resolution[0]), float32(c.resolution[1])},
		Flags:      uint32(c.winding) & FlagWindingMask,
	}
	for i, p := range c.frustum.Planes {
		u.Planes[i] = [4]float32{p.Normal[0], p.Normal[1], p.Normal[2], p.Distance}
	}
	if c.multisample {
		u.Flags |= FlagMultisample
	}
	if c.shadowCaster {
		u.Flags |= FlagShadowCaster
	}
	return u
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateMatrices()
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	c.updateMatrices()
}

func (c *cameraImpl) SetResolution(width, height uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolution = [2]uint32{width, height}
	c.updateMatrices()
}

func (c *cameraImpl) SetWindingMode(mode WindingMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.winding = mode
}

// updateMatrices recomputes view, projection, view-projection and the frustum. Caller holds the mutex.
func (c *cameraImpl) updateMatrices() {
	if c.controller != nil {
		px, py, pz := c.controller.Position()
		tx, ty, tz := c.controller.Target()
		common.LookAt(c.viewMatrix[:], [3]float32{px, py, pz}, [3]float32{tx, ty, tz}, c.up)
	}

	switch c.projection {
	case projectionOrthographic:
		h := c.orthoHalf
		common.OrthographicReversedZ(c.projectionMatrix[:], -h, h, -h, h, c.near, c.orthoFar)
	default:
		aspect := float32(1)
		if c.resolution[1] > 0 {
			aspect = float32(c.resolution[0]) / float32(c.resolution[1])
		}
		common.PerspectiveReversedZ(c.projectionMatrix[:], c.fov, aspect, c.near)
	}

	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
	c.frustum = common.ExtractFrustumFromMatrix(c.viewProjectionMatrix[:])
}
