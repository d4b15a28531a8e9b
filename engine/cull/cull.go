// Package cull runs the visibility pipeline for every camera of a frame: transform update,
// triangle or object visibility, and compaction into indirect draws. It owns the state that lives
// across frames per camera, namely the temporal result buffers and the Hi-Z pyramid.
package cull

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/compaction"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/temporal"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/transform"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/visibility"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
)

var (
	// ErrNoCamera is returned when Cull or SubmitDepth is called without a camera.
	ErrNoCamera = errors.New("cull: no camera")
	// ErrVertexStore is returned when triangle culling is requested but the vertex store holds no
	// geometry for the enabled objects.
	ErrVertexStore = errors.New("cull: vertex store does not cover the object table")
	// ErrNoFrame is returned when Cull is called before BeginFrame.
	ErrNoFrame = errors.New("cull: no frame in progress")
)

// Result is one camera's output for the current frame. Draws and Visible are owned by the culler
// and stay valid until the next Cull of the same camera.
type Result struct {
	Camera string
	Plan   *batch.Plan

	// Draws holds the region draw calls and packed indices of a triangle-granularity frame.
	Draws compaction.DrawCallBuffer
	// Objects holds one draw per visible object of an object-granularity frame.
	Objects compaction.ObjectDrawList
	// Transforms holds the camera's model-view and model-view-projection matrices.
	Transforms *transform.Cache
	// Visible is this frame's pass bitmask, one bit per invocation of Plan.
	Visible *temporal.Bitmask

	Stats Stats
}

type cameraState struct {
	results    temporal.Store
	draws      compaction.DrawCallBuffer
	transforms *transform.Cache
	counters   visibility.Counters
	pyramid    *hiz.Pyramid

	lastFrame uint64
	stats     Stats
}

type cullerImpl struct {
	mu *sync.Mutex

	device    compute.Device
	ownDevice bool
	builder   batch.Builder

	granularity batch.Granularity
	occlusion   bool
	temporal    bool

	frame    uint64
	plan     *batch.Plan
	objects  []game_object.Object
	vertices model.View

	cameras map[string]*cameraState
}

// Culler is the per-frame entry point of the visibility subsystem.
//
// A frame is BeginFrame, then Cull once per camera (in any order, possibly concurrently), then
// SubmitDepth for the cameras that rendered depth, then EndFrame. Every camera of a frame shares
// the same batch plan.
type Culler interface {
	// BeginFrame builds the frame's batch plan from the object table.
	//
	// Parameters:
	//   - objects: the object table; an object's ID is its index
	//   - vertices: the shared vertex and index storage the objects draw from
	//
	// Returns:
	//   - *batch.Plan: the plan every camera of this frame is culled against
	//   - error: ErrVertexStore when triangle culling has no geometry to read
	BeginFrame(objects []game_object.Object, vertices model.View) (*batch.Plan, error)

	// Cull runs the visibility pipeline for one camera.
	//
	// Parameters:
	//   - ctx: cancels the dispatches
	//   - cam: the camera; its per-camera state is keyed by its name
	//
	// Returns:
	//   - Result: the camera's draws and statistics
	//   - error: ErrNoCamera, ErrNoFrame or a wrapped compute error
	Cull(ctx context.Context, cam camera.Camera) (Result, error)

	// SubmitDepth builds the camera's Hi-Z pyramid from a depth buffer. The pyramid is used for
	// occlusion from the next Cull of that camera on.
	//
	// Parameters:
	//   - ctx: cancels the reduction dispatches
	//   - cam: the camera the depth was rendered for
	//   - depth: reversed-Z depth, row-major, width*height texels
	//   - width, height: depth buffer size
	//
	// Returns:
	//   - error: ErrNoCamera, hiz.ErrDepthSize or a wrapped compute error
	SubmitDepth(ctx context.Context, cam camera.Camera, depth []float32, width, height uint32) error

	// SetPyramid installs an already built pyramid for a camera, or clears it with nil.
	//
	// Parameters:
	//   - cam: the camera
	//   - pyramid: the pyramid, or nil to disable occlusion for this camera
	SetPyramid(cam camera.Camera, pyramid *hiz.Pyramid)

	// EndFrame swaps the temporal buffers of every camera culled this frame.
	EndFrame()

	// Forget drops all state kept for a camera.
	//
	// Parameters:
	//   - cam: the camera to forget
	Forget(cam camera.Camera)

	// Granularity returns the granularity of the next frame.
	//
	// Returns:
	//   - batch.Granularity: triangle or object
	Granularity() batch.Granularity

	// SetGranularity switches between triangle and object culling from the next BeginFrame on.
	// Switching invalidates the temporal history of every camera.
	//
	// Parameters:
	//   - g: the new granularity
	SetGranularity(g batch.Granularity)

	// Stats returns the statistics of every camera culled in the current or last frame.
	//
	// Returns:
	//   - []Stats: one entry per camera, ordered by camera name
	Stats() []Stats

	// Device returns the compute device the kernels are dispatched on.
	//
	// Returns:
	//   - compute.Device: the device
	Device() compute.Device

	// Close releases the device if the culler created it.
	Close()
}

var _ Culler = &cullerImpl{}

// NewCuller creates a Culler with the specified options applied. Without WithDevice it creates
// and owns a compute device; without WithBatchBuilder it uses batch.NewBuilder defaults.
//
// Parameters:
//   - options: a variadic list of CullerBuilderOption functions
//
// Returns:
//   - Culler: the configured culler
func NewCuller(options ...CullerBuilderOption) Culler {
	c := &cullerImpl{
		mu:        &sync.Mutex{},
		occlusion: true,
		temporal:  true,
		cameras:   make(map[string]*cameraState),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.device == nil {
		c.device = compute.NewDevice()
		c.ownDevice = true
	}
	if c.builder == nil {
		c.builder = batch.NewBuilder()
	}
	return c
}

func (c *cullerImpl) BeginFrame(objects []game_object.Object, vertices model.View) (*batch.Plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.granularity == batch.GranularityTriangle {
		if err := CheckVertices(objects, vertices); err != nil {
			return nil, err
		}
	}

	plan := c.builder.Build(objects, c.granularity)
	c.frame++
	c.plan = &plan
	c.objects = objects
	c.vertices = vertices

	common.Logger().Debug("cull frame begun",
		"frame", c.frame,
		"granularity", plan.Granularity.String(),
		"batches", len(plan.Batches),
		"regions", len(plan.Regions),
		"invocations", plan.TotalInvocations)
	return c.plan, nil
}

// CheckVertices rejects a table whose enabled objects index past the shared index buffer.
//
// Parameters:
//   - objects: the object table
//   - vertices: the shared geometry
//
// Returns:
//   - error: ErrVertexStore naming the first offending object
func CheckVertices(objects []game_object.Object, vertices model.View) error {
	indexCount := uint32(len(vertices.Indices))
	for id := range objects {
		obj := &objects[id]
		if !obj.Enabled || obj.IndexCount == 0 {
			continue
		}
		if obj.FirstIndex+obj.IndexCount > indexCount {
			return fmt.Errorf("%w: object %d uses indices [%d, %d) of %d",
				ErrVertexStore, id, obj.FirstIndex, obj.FirstIndex+obj.IndexCount, indexCount)
		}
	}
	return nil
}

// state returns the camera's state, creating it on first use. Caller holds the mutex.
func (c *cullerImpl) state(name string) *cameraState {
	st, ok := c.cameras[name]
	if !ok {
		st = &cameraState{
			results:    temporal.NewStore(),
			draws:      compaction.NewDrawCallBuffer(),
			transforms: transform.NewCache(),
		}
		c.cameras[name] = st
	}
	return st
}

func (c *cullerImpl) Cull(ctx context.Context, cam camera.Camera) (Result, error) {
	if cam == nil {
		return Result{}, ErrNoCamera
	}
	name := cam.Name()

	c.mu.Lock()
	if c.plan == nil {
		c.mu.Unlock()
		return Result{}, ErrNoFrame
	}
	plan, objects, vertices, frame := c.plan, c.objects, c.vertices, c.frame
	st := c.state(name)
	if st.lastFrame+1 != frame || !c.temporal {
		// Skipped frames leave last frame's bits keyed to an older plan.
		st.results.Invalidate()
	}
	st.lastFrame = frame
	pyramid := st.pyramid
	if !c.occlusion || cam.ShadowCaster() {
		pyramid = nil
	}
	c.mu.Unlock()

	if pyramid != nil {
		if w, h := cam.Resolution(); pyramid.Width() != w || pyramid.Height() != h {
			common.Logger().Warn("dropping stale depth pyramid",
				"camera", name,
				"pyramid", [2]uint32{pyramid.Width(), pyramid.Height()},
				"resolution", [2]uint32{w, h})
			pyramid = nil
		}
	}

	start := time.Now()
	u := cam.Uniform()
	if err := st.transforms.Update(ctx, c.device, &u, objects); err != nil {
		return Result{}, fmt.Errorf("cull camera %q: %w", name, err)
	}

	st.counters.Reset()
	st.results.Begin(plan.TotalInvocations)
	res := Result{
		Camera:     name,
		Plan:       plan,
		Transforms: st.transforms,
		Visible:    st.results.Current(),
	}

	switch plan.Granularity {
	case batch.GranularityObject:
		draws, err := visibility.CullObjects(ctx, c.device, &visibility.ObjectInput{
			Camera:   &u,
			Objects:  objects,
			Pyramid:  pyramid,
			Current:  res.Visible,
			Counters: &st.counters,
		}, plan)
		if err != nil {
			return Result{}, fmt.Errorf("cull camera %q: %w", name, err)
		}
		res.Objects = draws
	default:
		st.draws.Reset(plan)
		in := &visibility.TriangleInput{
			Camera:     &u,
			Objects:    objects,
			Transforms: st.transforms,
			Vertices:   vertices,
			Pyramid:    pyramid,
			Previous:   st.results.Previous(),
			Current:    res.Visible,
			Draws:      st.draws,
			Counters:   &st.counters,
		}
		for i := range plan.Batches {
			if err := visibility.CullTriangles(ctx, c.device, in, &plan.Batches[i]); err != nil {
				return Result{}, fmt.Errorf("cull camera %q batch %d: %w", name, i, err)
			}
		}
		res.Draws = st.draws
	}

	res.Stats = Stats{
		Camera:      name,
		Frame:       frame,
		Granularity: plan.Granularity,
		Batches:     len(plan.Batches),
		Regions:     len(plan.Regions),
		Invocations: plan.TotalInvocations,
		Occlusion:   pyramid != nil,
		Totals:      st.counters.Totals(),
		Duration:    time.Since(start),
	}
	if plan.Granularity == batch.GranularityObject {
		res.Stats.VisibleObjects = int(res.Objects.Count)
	}

	c.mu.Lock()
	st.stats = res.Stats
	c.mu.Unlock()

	common.Logger().Debug("camera culled",
		"camera", name,
		"tested", res.Stats.Tested,
		"visible", res.Stats.Count(visibility.Visible),
		"predicted", res.Stats.Predicted,
		"residual", res.Stats.Residual,
		"duration", res.Stats.Duration)
	return res, nil
}

func (c *cullerImpl) SubmitDepth(ctx context.Context, cam camera.Camera, depth []float32, width, height uint32) error {
	if cam == nil {
		return ErrNoCamera
	}
	pyramid, err := hiz.Build(ctx, c.device, depth, width, height)
	if err != nil {
		return fmt.Errorf("depth pyramid for camera %q: %w", cam.Name(), err)
	}
	c.SetPyramid(cam, pyramid)
	return nil
}

func (c *cullerImpl) SetPyramid(cam camera.Camera, pyramid *hiz.Pyramid) {
	if cam == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state(cam.Name()).pyramid = pyramid
}

func (c *cullerImpl) EndFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range c.cameras {
		if st.lastFrame == c.frame {
			st.results.Swap()
		}
	}
	c.plan = nil
	c.objects = nil
	c.vertices = model.View{}
}

func (c *cullerImpl) Forget(cam camera.Camera) {
	if cam == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cameras, cam.Name())
}

func (c *cullerImpl) Granularity() batch.Granularity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granularity
}

func (c *cullerImpl) SetGranularity(g batch.Granularity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g == c.granularity {
		return
	}
	c.granularity = g
	c.builder.Reset()
	for _, st := range c.cameras {
		st.results.Invalidate()
	}
}

func (c *cullerImpl) Stats() []Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Stats, 0, len(c.cameras))
	for _, st := range c.cameras {
		if st.lastFrame != 0 && st.lastFrame+1 >= c.frame {
			out = append(out, st.stats)
		}
	}
	sortStats(out)
	return out
}

func (c *cullerImpl) Device() compute.Device {
	return c.device
}

func (c *cullerImpl) Close() {
	if c.ownDevice {
		c.device.Close()
	}
}
