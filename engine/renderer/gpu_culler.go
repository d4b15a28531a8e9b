package renderer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/compaction"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/temporal"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/transform"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/visibility"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/shader"
)

// gpuCameraState is the device memory one camera keeps across frames.
type gpuCameraState struct {
	camera      *deviceBuffer
	transforms  *deviceBuffer
	hizInfo     *deviceBuffer
	hizTexels   *deviceBuffer
	bits        *deviceBuffer
	calls       *deviceBuffer
	drawIndices *deviceBuffer
	batchData   *deviceBuffer
	triParams   *deviceBuffer

	objParams     *deviceBuffer
	flags         *deviceBuffer
	scan          [2]*deviceBuffer
	scanParams    []*deviceBuffer
	compactParams *deviceBuffer
	drawCount     *deviceBuffer
	draws         *deviceBuffer

	// host lays out the initial calls and indices of the triangle path.
	host      compaction.DrawCallBuffer
	cache     *transform.Cache
	halfWords uint32 // words per half of bits
	current   uint32 // the half written this frame
	history   bool   // the other half holds last frame's bits

	pyramid  *hiz.Pyramid
	uploaded *hiz.Pyramid

	lastFrame uint64
	stats     cull.Stats
}

func newGPUCameraState(name string) *gpuCameraState {
	label := func(s string) string { return name + " " + s }
	return &gpuCameraState{
		camera:        newDeviceBuffer(label("camera"), uniformUsage),
		transforms:    newDeviceBuffer(label("transforms"), storageUsage),
		hizInfo:       newDeviceBuffer(label("hiz info"), uniformUsage),
		hizTexels:     newDeviceBuffer(label("hiz texels"), storageUsage),
		bits:          newDeviceBuffer(label("visibility bits"), storageUsage),
		calls:         newDeviceBuffer(label("indirect calls"), storageUsage),
		drawIndices:   newDeviceBuffer(label("draw indices"), storageUsage),
		batchData:     newDeviceBuffer(label("batch data"), uniformUsage),
		triParams:     newDeviceBuffer(label("triangle params"), storageUsage),
		objParams:     newDeviceBuffer(label("object params"), uniformUsage),
		flags:         newDeviceBuffer(label("object flags"), storageUsage),
		scan:          [2]*deviceBuffer{newDeviceBuffer(label("scan a"), storageUsage), newDeviceBuffer(label("scan b"), storageUsage)},
		compactParams: newDeviceBuffer(label("compact params"), uniformUsage),
		drawCount:     newDeviceBuffer(label("draw count"), storageUsage),
		draws:         newDeviceBuffer(label("object draws"), storageUsage),
		host:          compaction.NewDrawCallBuffer(),
		cache:         transform.NewCache(),
	}
}

func (st *gpuCameraState) buffers() []*deviceBuffer {
	out := []*deviceBuffer{
		st.camera, st.transforms, st.hizInfo, st.hizTexels, st.bits, st.calls, st.drawIndices,
		st.batchData, st.triParams, st.objParams, st.flags, st.scan[0], st.scan[1],
		st.compactParams, st.drawCount, st.draws,
	}
	return append(out, st.scanParams...)
}

func (st *gpuCameraState) release() {
	for _, b := range st.buffers() {
		b.release()
	}
}

type gpuCullerImpl struct {
	mu    *sync.Mutex
	gpuMu *sync.Mutex

	renderer        Renderer
	ownRenderer     bool
	rendererOptions []RendererBuilderOption
	builder         batch.Builder
	pipelines       map[shader.KernelKey]pipeline.Pipeline

	granularity batch.Granularity
	occlusion   bool
	temporal    bool
	validate    bool

	frame   uint64
	plan    *batch.Plan
	objects []game_object.Object

	sceneObjects   *deviceBuffer
	sceneVertices  *deviceBuffer
	sceneIndices   *deviceBuffer
	sceneObjectIDs *deviceBuffer
	lastVertices   *byte
	lastVertexLen  int
	lastIndices    *uint32
	lastIndexLen   int

	cameras map[string]*gpuCameraState
}

// GPUCuller runs the visibility kernels on a WebGPU device. It follows the frame protocol of
// cull.Culler and returns the same results, read back from the device after every camera.
//
// Calls that touch the device are serialized; cameras of one frame are culled one after another.
type GPUCuller interface {
	// BeginFrame builds the frame's batch plan and uploads the object table and geometry.
	//
	// Parameters:
	//   - objects: the object table; an object's ID is its index
	//   - vertices: the shared vertex and index storage
	//
	// Returns:
	//   - *batch.Plan: the plan every camera of this frame is culled against
	//   - error: cull.ErrVertexStore or a device error
	BeginFrame(objects []game_object.Object, vertices model.View) (*batch.Plan, error)

	// Cull dispatches the visibility pipeline for one camera and reads the draws back.
	//
	// Parameters:
	//   - ctx: checked between submissions
	//   - cam: the camera; device state is keyed by its name
	//
	// Returns:
	//   - cull.Result: the camera's draws and statistics
	//   - error: cull.ErrNoCamera, cull.ErrNoFrame or a wrapped device error
	Cull(ctx context.Context, cam camera.Camera) (cull.Result, error)

	// SubmitDepth reduces a depth buffer into a Hi-Z pyramid on the device and keeps it for the
	// camera's next Cull.
	//
	// Parameters:
	//   - ctx: checked before the reduction
	//   - cam: the camera the depth was rendered for
	//   - depth: reversed-Z depth, row-major, width*height texels
	//   - width, height: depth buffer size
	//
	// Returns:
	//   - error: cull.ErrNoCamera, hiz.ErrDepthSize or a wrapped device error
	SubmitDepth(ctx context.Context, cam camera.Camera, depth []float32, width, height uint32) error

	// SetPyramid installs an already built pyramid for a camera, or clears it with nil.
	//
	// Parameters:
	//   - cam: the camera
	//   - pyramid: the pyramid, or nil
	SetPyramid(cam camera.Camera, pyramid *hiz.Pyramid)

	// EndFrame flips the visibility halves of every camera culled this frame.
	EndFrame()

	// Forget releases the device memory kept for a camera.
	//
	// Parameters:
	//   - cam: the camera to forget
	Forget(cam camera.Camera)

	// Granularity returns the granularity of the next frame.
	//
	// Returns:
	//   - batch.Granularity: triangle or object
	Granularity() batch.Granularity

	// SetGranularity switches granularity from the next BeginFrame on and drops every camera's
	// history.
	//
	// Parameters:
	//   - g: the new granularity
	SetGranularity(g batch.Granularity)

	// Stats returns the statistics of every camera culled in the current or last frame.
	//
	// Returns:
	//   - []cull.Stats: ordered by camera name
	Stats() []cull.Stats

	// Renderer returns the renderer the kernels run on.
	//
	// Returns:
	//   - Renderer: the renderer
	Renderer() Renderer

	// Close releases every device buffer, and the renderer when the culler created it.
	Close()
}

var _ GPUCuller = &gpuCullerImpl{}

// NewGPUCuller creates a GPUCuller and registers every culling kernel. Without WithCullRenderer it
// creates and owns a renderer.
//
// Parameters:
//   - options: a variadic list of GPUCullerBuilderOption functions
//
// Returns:
//   - GPUCuller: the culler
//   - error: shader.ErrValidation when validation is on and naga rejects a kernel, ErrNoAdapter
//     when no device is available, or a pipeline registration error
func NewGPUCuller(options ...GPUCullerBuilderOption) (GPUCuller, error) {
	c := &gpuCullerImpl{
		mu:             &sync.Mutex{},
		gpuMu:          &sync.Mutex{},
		pipelines:      make(map[shader.KernelKey]pipeline.Pipeline),
		occlusion:      true,
		temporal:       true,
		sceneObjects:   newDeviceBuffer("scene objects", storageUsage),
		sceneVertices:  newDeviceBuffer("scene vertices", storageUsage),
		sceneIndices:   newDeviceBuffer("scene indices", storageUsage),
		sceneObjectIDs: newDeviceBuffer("scene object ids", storageUsage),
		cameras:        make(map[string]*gpuCameraState),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.validate {
		if err := shader.ValidateKernels(); err != nil {
			return nil, err
		}
	}
	if c.renderer == nil {
		r, err := NewRenderer(c.rendererOptions...)
		if err != nil {
			return nil, err
		}
		c.renderer = r
		c.ownRenderer = true
	}
	if c.builder == nil {
		c.builder = batch.NewBuilder()
	}

	for _, key := range shader.KernelKeys() {
		p := c.renderer.Pipeline(string(key))
		if p == nil {
			p = pipeline.NewPipeline(string(key), pipeline.WithKernel(key))
			if err := c.renderer.RegisterPipelines(p); err != nil {
				c.Close()
				return nil, err
			}
		}
		c.pipelines[key] = p
	}

	common.Logger().Info("gpu culler ready", "adapter", c.renderer.AdapterName(), "granularity", c.granularity.String())
	return c, nil
}

func (c *gpuCullerImpl) BeginFrame(objects []game_object.Object, vertices model.View) (*batch.Plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.granularity == batch.GranularityTriangle {
		if err := cull.CheckVertices(objects, vertices); err != nil {
			return nil, err
		}
	}

	plan := c.builder.Build(objects, c.granularity)
	c.gpuMu.Lock()
	err := c.uploadScene(objects, vertices, &plan)
	c.gpuMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("upload scene: %w", err)
	}

	c.frame++
	c.plan = &plan
	c.objects = objects

	common.Logger().Debug("gpu cull frame begun",
		"frame", c.frame,
		"granularity", plan.Granularity.String(),
		"batches", len(plan.Batches),
		"regions", len(plan.Regions),
		"invocations", plan.TotalInvocations)
	return c.plan, nil
}

// uploadScene writes the object table every frame and the geometry only when the view changed.
// Caller holds gpuMu.
func (c *gpuCullerImpl) uploadScene(objects []game_object.Object, vertices model.View, plan *batch.Plan) error {
	r := c.renderer
	if _, err := c.sceneObjects.ensure(r, uint64(len(objects))*game_object.GPUObjectSize); err != nil {
		return err
	}
	r.WriteBuffer(c.sceneObjects.buf, 0, game_object.MarshalTable(objects))

	var vPtr *byte
	if len(vertices.Vertices) > 0 {
		vPtr = &vertices.Vertices[0]
	}
	var iPtr *uint32
	if len(vertices.Indices) > 0 {
		iPtr = &vertices.Indices[0]
	}
	vGrown, err := c.sceneVertices.ensure(r, uint64(len(vertices.Vertices)))
	if err != nil {
		return err
	}
	if vGrown || vPtr != c.lastVertices || len(vertices.Vertices) != c.lastVertexLen {
		r.WriteBuffer(c.sceneVertices.buf, 0, vertices.Vertices)
		c.lastVertices, c.lastVertexLen = vPtr, len(vertices.Vertices)
	}
	iGrown, err := c.sceneIndices.ensure(r, uint64(len(vertices.Indices))*4)
	if err != nil {
		return err
	}
	if iGrown || iPtr != c.lastIndices || len(vertices.Indices) != c.lastIndexLen {
		r.WriteBuffer(c.sceneIndices.buf, 0, marshalUint32s(vertices.Indices...))
		c.lastIndices, c.lastIndexLen = iPtr, len(vertices.Indices)
	}

	if plan.Granularity == batch.GranularityObject {
		ids := objectIDs(plan)
		if _, err := c.sceneObjectIDs.ensure(r, uint64(len(ids))*4); err != nil {
			return err
		}
		r.WriteBuffer(c.sceneObjectIDs.buf, 0, marshalUint32s(ids...))
	}
	return nil
}

// objectIDs lists the object tested by each invocation of an object-granularity plan.
func objectIDs(plan *batch.Plan) []uint32 {
	ids := make([]uint32, plan.TotalInvocations)
	for i := range plan.Batches {
		for _, r := range plan.Batches[i].Objects {
			ids[r.InvocationStart] = r.ObjectID
		}
	}
	return ids
}

// state returns the camera's state, creating it on first use. Caller holds the mutex.
func (c *gpuCullerImpl) state(name string) *gpuCameraState {
	st, ok := c.cameras[name]
	if !ok {
		st = newGPUCameraState(name)
		c.cameras[name] = st
	}
	return st
}

func (c *gpuCullerImpl) Cull(ctx context.Context, cam camera.Camera) (cull.Result, error) {
	if cam == nil {
		return cull.Result{}, cull.ErrNoCamera
	}
	name := cam.Name()

	c.mu.Lock()
	if c.plan == nil {
		c.mu.Unlock()
		return cull.Result{}, cull.ErrNoFrame
	}
	plan, objects, frame := c.plan, c.objects, c.frame
	st := c.state(name)
	if st.lastFrame+1 != frame || !c.temporal {
		st.history = false
	}
	st.lastFrame = frame
	history := st.history
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

	c.gpuMu.Lock()
	res, grown, err := c.run(ctx, cam, st, plan, len(objects), history, pyramid)
	c.gpuMu.Unlock()
	if err != nil {
		return cull.Result{}, fmt.Errorf("gpu cull camera %q: %w", name, err)
	}
	res.Stats.Frame = frame

	c.mu.Lock()
	st.stats = res.Stats
	if grown {
		st.history = false
	}
	c.mu.Unlock()

	common.Logger().Debug("camera culled on device",
		"camera", name,
		"tested", res.Stats.Tested,
		"visible", res.Stats.Count(visibility.Visible),
		"predicted", res.Stats.Predicted,
		"residual", res.Stats.Residual,
		"duration", res.Stats.Duration)
	return res, nil
}

// run dispatches one camera and reads its results back. grown reports that the visibility bits
// were reallocated. Caller holds gpuMu.
func (c *gpuCullerImpl) run(ctx context.Context, cam camera.Camera, st *gpuCameraState, plan *batch.Plan, objectCount int, history bool, pyramid *hiz.Pyramid) (cull.Result, bool, error) {
	start := time.Now()
	u := cam.Uniform()
	grown, err := c.prepare(st, plan, &u, pyramid)
	if err != nil {
		return cull.Result{}, false, err
	}
	history = history && !grown

	res := cull.Result{Camera: cam.Name(), Plan: plan, Transforms: st.cache}
	switch plan.Granularity {
	case batch.GranularityObject:
		err = c.cullObjects(ctx, st, plan, pyramid != nil, &res)
	default:
		err = c.cullTriangles(ctx, st, plan, history, pyramid != nil, &res)
	}
	if err != nil {
		return cull.Result{}, false, err
	}

	mv, err := c.read(st.transforms, 0, uint64(objectCount)*transform.GPUObjectTransformSize)
	if err != nil {
		return cull.Result{}, false, fmt.Errorf("read transforms: %w", err)
	}
	st.cache.Load(mv)

	totals := visibility.Totals{Tested: uint64(plan.TotalInvocations)}
	totals.Outcomes[visibility.Visible] = uint64(res.Visible.Count())
	if res.Draws != nil {
		totals.Predicted = uint64(len(res.Draws.Triangles(compaction.Predicted)))
		totals.Residual = uint64(len(res.Draws.Triangles(compaction.Residual)))
	}
	res.Stats = cull.Stats{
		Camera:         cam.Name(),
		Granularity:    plan.Granularity,
		Batches:        len(plan.Batches),
		Regions:        len(plan.Regions),
		Invocations:    plan.TotalInvocations,
		Occlusion:      pyramid != nil,
		Totals:         totals,
		VisibleObjects: int(res.Objects.Count),
		Duration:       time.Since(start),
	}
	return res, grown, nil
}

// prepare sizes the camera's buffers for the plan and uploads the camera and pyramid. It reports
// whether the visibility bits were reallocated, which loses last frame's half. Caller holds gpuMu.
func (c *gpuCullerImpl) prepare(st *gpuCameraState, plan *batch.Plan, u *camera.GPUPerCameraUniform, pyramid *hiz.Pyramid) (bool, error) {
	r := c.renderer
	n := uint64(plan.TotalInvocations)
	words := temporal.WordCount(plan.TotalInvocations)

	sizes := []struct {
		buf  *deviceBuffer
		size uint64
	}{
		{st.camera, camera.GPUPerCameraUniformSize},
		// transform_update writes one entry per object record the scene buffer holds.
		{st.transforms, c.sceneObjects.size / game_object.GPUObjectSize * transform.GPUObjectTransformSize},
		{st.hizInfo, hiz.GPUInfoSize},
		{st.hizTexels, 4},
	}
	if plan.Granularity == batch.GranularityObject {
		sizes = append(sizes, []struct {
			buf  *deviceBuffer
			size uint64
		}{
			{st.objParams, 16},
			{st.flags, n * 4},
			{st.scan[0], n * 4},
			{st.scan[1], n * 4},
			{st.compactParams, 16},
			{st.drawCount, 4},
			{st.draws, n * compaction.GPUIndirectCallSize},
		}...)
	} else {
		sizes = append(sizes, []struct {
			buf  *deviceBuffer
			size uint64
		}{
			{st.calls, uint64(2*len(plan.Regions)) * compaction.GPUIndirectCallSize},
			{st.drawIndices, 6 * n * 4},
			{st.batchData, batch.GPUBatchDataSize},
			{st.triParams, 32},
		}...)
	}
	for _, s := range sizes {
		if _, err := s.buf.ensure(r, s.size); err != nil {
			return false, err
		}
	}
	grown := false
	if words > st.halfWords || st.bits.buf == nil {
		st.halfWords = max(words, 1)
		if _, err := st.bits.ensure(r, uint64(st.halfWords)*2*4); err != nil {
			return false, err
		}
		r.WriteBuffer(st.bits.buf, 0, make([]byte, st.halfWords*2*4))
		grown = true
	}

	r.WriteBuffer(st.camera.buf, 0, u.Marshal())
	if pyramid != nil && pyramid != st.uploaded {
		texels := pyramid.MarshalTexels()
		if _, err := st.hizTexels.ensure(r, uint64(len(texels))); err != nil {
			return false, err
		}
		r.WriteBuffer(st.hizInfo.buf, 0, pyramid.MarshalInfo())
		r.WriteBuffer(st.hizTexels.buf, 0, texels)
		st.uploaded = pyramid
	}
	return grown, nil
}

// bind builds a provider whose bindings are the given buffers in order.
func (c *gpuCullerImpl) bind(key shader.KernelKey, label string, group int, bufs ...*deviceBuffer) (bind_group_provider.BindGroupProvider, error) {
	opts := make([]bind_group_provider.BindGroupProviderOption, len(bufs))
	for i, b := range bufs {
		opts[i] = bind_group_provider.WithSharedBuffer(i, b.buf)
	}
	provider := bind_group_provider.NewBindGroupProvider(label, group, opts...)
	if err := c.renderer.InitBindGroup(c.pipelines[key], provider, nil); err != nil {
		provider.Release()
		return nil, err
	}
	return provider, nil
}

// submit records one compute frame and submits it, closing the frame on error.
func (c *gpuCullerImpl) submit(record func() error) error {
	if err := c.renderer.BeginComputeFrame(); err != nil {
		return err
	}
	if err := record(); err != nil {
		_ = c.renderer.EndComputeFrame()
		return err
	}
	return c.renderer.EndComputeFrame()
}

func (c *gpuCullerImpl) dispatch(key shader.KernelKey, invocations uint32, providers ...bind_group_provider.BindGroupProvider) error {
	p := c.pipelines[key]
	groups, err := p.WorkgroupCount(int(invocations))
	if err != nil {
		return err
	}
	return c.renderer.Dispatch(p, providers, groups)
}

func (c *gpuCullerImpl) read(b *deviceBuffer, offset, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	return c.renderer.ReadBuffer(b.buf, offset, size)
}

func (c *gpuCullerImpl) transformProvider(st *gpuCameraState) (bind_group_provider.BindGroupProvider, error) {
	return c.bind(shader.KernelTransformUpdate, "transform_update", 0, st.camera, c.sceneObjects, st.transforms)
}

func releaseProviders(providers []bind_group_provider.BindGroupProvider) {
	for _, p := range providers {
		if p != nil {
			p.Release()
		}
	}
}

// cullTriangles runs transform_update and one triangle_cull submission per batch. Each batch is a
// separate submission because the batch table is a single uniform.
func (c *gpuCullerImpl) cullTriangles(ctx context.Context, st *gpuCameraState, plan *batch.Plan, history, hasPyramid bool, res *cull.Result) error {
	r := c.renderer
	n := plan.TotalInvocations
	regions := uint32(len(plan.Regions))
	words := temporal.WordCount(n)
	curOff := st.current * st.halfWords
	prevOff := (1 - st.current) * st.halfWords

	st.host.Reset(plan)
	r.WriteBuffer(st.calls.buf, 0, append(st.host.Marshal(compaction.Predicted), st.host.Marshal(compaction.Residual)...))
	r.WriteBuffer(st.drawIndices.buf, 0, marshalUint32s(st.host.Indices()...))
	r.WriteBuffer(st.bits.buf, uint64(curOff)*4, make([]byte, words*4))
	r.WriteBuffer(st.triParams.buf, 0, marshalUint32s(regions, n, prevOff, curOff, boolWord(history), boolWord(hasPyramid), 0, 0))

	tp, err := c.transformProvider(st)
	if err != nil {
		return err
	}
	inputs, err := c.bind(shader.KernelTriangleCull, "triangle_cull inputs", 0,
		st.camera, st.batchData, st.hizInfo, st.triParams, c.sceneObjects, st.transforms,
		c.sceneVertices, c.sceneIndices, st.hizTexels)
	if err != nil {
		releaseProviders([]bind_group_provider.BindGroupProvider{tp})
		return err
	}
	outputs, err := c.bind(shader.KernelTriangleCull, "triangle_cull outputs", 1, st.bits, st.calls, st.drawIndices)
	providers := []bind_group_provider.BindGroupProvider{tp, inputs, outputs}
	defer releaseProviders(providers)
	if err != nil {
		return err
	}

	objectCount := uint32(c.sceneObjects.size / game_object.GPUObjectSize)
	if len(plan.Batches) == 0 {
		if err := c.submit(func() error { return c.dispatch(shader.KernelTransformUpdate, objectCount, tp) }); err != nil {
			return fmt.Errorf("transform update: %w", err)
		}
	}
	for i := range plan.Batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := &plan.Batches[i]
		r.WriteBuffers([]bind_group_provider.BufferWrite{{Provider: inputs, Binding: 1, Data: b.Marshal()}})
		err := c.submit(func() error {
			if i == 0 {
				if err := c.dispatch(shader.KernelTransformUpdate, objectCount, tp); err != nil {
					return fmt.Errorf("transform update: %w", err)
				}
			}
			return c.dispatch(shader.KernelTriangleCull, b.TotalInvocations, inputs, outputs)
		})
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
	}

	calls, err := c.read(st.calls, 0, uint64(regions)*2*compaction.GPUIndirectCallSize)
	if err != nil {
		return fmt.Errorf("read calls: %w", err)
	}
	indices, err := c.read(st.drawIndices, 0, uint64(n)*6*4)
	if err != nil {
		return fmt.Errorf("read draw indices: %w", err)
	}
	res.Draws, err = compaction.LoadDrawCallBuffer(plan, calls, unmarshalUint32s(indices))
	if err != nil {
		return err
	}
	return c.readVisible(st, n, res)
}

// cullObjects runs transform_update, object_cull, the prefix scan passes and object_compact in one
// submission. Every scan pass has its own parameter buffer.
func (c *gpuCullerImpl) cullObjects(ctx context.Context, st *gpuCameraState, plan *batch.Plan, hasPyramid bool, res *cull.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := c.renderer
	n := plan.TotalInvocations
	curOff := st.current * st.halfWords
	r.WriteBuffer(st.bits.buf, uint64(curOff)*4, make([]byte, temporal.WordCount(n)*4))

	var providers []bind_group_provider.BindGroupProvider
	defer func() { releaseProviders(providers) }()

	tp, err := c.transformProvider(st)
	if err != nil {
		return err
	}
	providers = append(providers, tp)
	objectCount := uint32(c.sceneObjects.size / game_object.GPUObjectSize)
	if n == 0 {
		if err := c.submit(func() error { return c.dispatch(shader.KernelTransformUpdate, objectCount, tp) }); err != nil {
			return fmt.Errorf("transform update: %w", err)
		}
		res.Visible = temporal.NewBitmask(0)
		return nil
	}

	op, err := c.bind(shader.KernelObjectCull, "object_cull", 0,
		st.camera, st.objParams, st.hizInfo, c.sceneObjects, c.sceneObjectIDs, st.hizTexels, st.bits, st.flags)
	if err != nil {
		return err
	}
	providers = append(providers, op)
	writes := []bind_group_provider.BufferWrite{{Provider: op, Binding: 1, Data: marshalUint32s(n, curOff, boolWord(hasPyramid), 0)}}

	var passes []bind_group_provider.BindGroupProvider
	in := st.flags
	for stride, k := uint32(1), 0; stride < n; stride, k = stride<<1, k+1 {
		if k == len(st.scanParams) {
			st.scanParams = append(st.scanParams, newDeviceBuffer(fmt.Sprintf("scan params %d", k), uniformUsage))
		}
		if _, err := st.scanParams[k].ensure(r, 16); err != nil {
			return err
		}
		out := st.scan[k%2]
		sp, err := c.bind(shader.KernelPrefixScan, fmt.Sprintf("prefix_scan stride %d", stride), 0, st.scanParams[k], in, out)
		if err != nil {
			return err
		}
		providers = append(providers, sp)
		passes = append(passes, sp)
		writes = append(writes, bind_group_provider.BufferWrite{Provider: sp, Binding: 0, Data: marshalUint32s(n, stride, 0, 0)})
		in = out
	}

	cp, err := c.bind(shader.KernelObjectCompact, "object_compact", 0,
		st.compactParams, in, c.sceneObjectIDs, c.sceneObjects, st.drawCount, st.draws)
	if err != nil {
		return err
	}
	providers = append(providers, cp)
	writes = append(writes, bind_group_provider.BufferWrite{Provider: cp, Binding: 0, Data: marshalUint32s(n, 0, 0, 0)})
	r.WriteBuffers(writes)

	err = c.submit(func() error {
		if err := c.dispatch(shader.KernelTransformUpdate, objectCount, tp); err != nil {
			return fmt.Errorf("transform update: %w", err)
		}
		if err := c.dispatch(shader.KernelObjectCull, n, op); err != nil {
			return fmt.Errorf("object flags: %w", err)
		}
		for k, sp := range passes {
			if err := c.dispatch(shader.KernelPrefixScan, n, sp); err != nil {
				return fmt.Errorf("scan pass %d: %w", k, err)
			}
		}
		return c.dispatch(shader.KernelObjectCompact, n, cp)
	})
	if err != nil {
		return err
	}

	countBytes, err := c.read(st.drawCount, 0, 4)
	if err != nil {
		return fmt.Errorf("read draw count: %w", err)
	}
	count := min(unmarshalUint32s(countBytes)[0], n)
	draws, err := c.read(st.draws, 0, uint64(count)*compaction.GPUIndirectCallSize)
	if err != nil {
		return fmt.Errorf("read draws: %w", err)
	}
	res.Objects = compaction.ObjectDrawList{Calls: compaction.UnmarshalCalls(draws), Count: count}
	return c.readVisible(st, n, res)
}

func (c *gpuCullerImpl) readVisible(st *gpuCameraState, n uint32, res *cull.Result) error {
	words, err := c.read(st.bits, uint64(st.current*st.halfWords)*4, uint64(temporal.WordCount(n))*4)
	if err != nil {
		return fmt.Errorf("read visibility bits: %w", err)
	}
	res.Visible = temporal.BitmaskFromWords(n, unmarshalUint32s(words))
	return nil
}

func (c *gpuCullerImpl) SubmitDepth(ctx context.Context, cam camera.Camera, depth []float32, width, height uint32) error {
	if cam == nil {
		return cull.ErrNoCamera
	}
	if width == 0 || height == 0 || uint64(len(depth)) != uint64(width)*uint64(height) {
		return fmt.Errorf("depth pyramid for camera %q: %w: %d texels for %dx%d", cam.Name(), hiz.ErrDepthSize, len(depth), width, height)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.gpuMu.Lock()
	pyramid, err := c.reducePyramid(depth, width, height)
	c.gpuMu.Unlock()
	if err != nil {
		return fmt.Errorf("depth pyramid for camera %q: %w", cam.Name(), err)
	}
	c.SetPyramid(cam, pyramid)
	return nil
}

// reducePyramid builds every level with one hiz_reduce dispatch per level in a single submission,
// then reads the chain back. Caller holds gpuMu.
func (c *gpuCullerImpl) reducePyramid(depth []float32, width, height uint32) (*hiz.Pyramid, error) {
	r := c.renderer
	dims := hiz.LevelDims(width, height)
	levels := make([]*deviceBuffer, len(dims))
	params := make([]*deviceBuffer, len(dims))
	var providers []bind_group_provider.BindGroupProvider
	defer func() {
		releaseProviders(providers)
		for i := range levels {
			if levels[i] != nil {
				levels[i].release()
			}
			if params[i] != nil {
				params[i].release()
			}
		}
	}()

	var writes []bind_group_provider.BufferWrite
	for i, d := range dims {
		levels[i] = newDeviceBuffer(fmt.Sprintf("hiz level %d", i), storageUsage)
		if _, err := levels[i].ensure(r, uint64(d[0])*uint64(d[1])*4); err != nil {
			return nil, err
		}
		if i == 0 {
			continue
		}
		params[i] = newDeviceBuffer(fmt.Sprintf("hiz reduce params %d", i), uniformUsage)
		if _, err := params[i].ensure(r, 16); err != nil {
			return nil, err
		}
		p, err := c.bind(shader.KernelHiZReduce, fmt.Sprintf("hiz_reduce level %d", i), 0, params[i], levels[i-1], levels[i])
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
		writes = append(writes, bind_group_provider.BufferWrite{
			Provider: p,
			Binding:  0,
			Data:     marshalUint32s(dims[i-1][0], dims[i-1][1], d[0], d[1]),
		})
	}
	r.WriteBuffer(levels[0].buf, 0, marshalFloat32s(depth))
	r.WriteBuffers(writes)

	err := c.submit(func() error {
		for i, p := range providers {
			d := dims[i+1]
			if err := c.dispatch(shader.KernelHiZReduce, d[0]*d[1], p); err != nil {
				return fmt.Errorf("reduce level %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]hiz.Level, len(dims))
	out[0] = hiz.Level{Width: width, Height: height, Texels: append([]float32(nil), depth...)}
	for i := 1; i < len(dims); i++ {
		buf, err := c.read(levels[i], 0, uint64(dims[i][0])*uint64(dims[i][1])*4)
		if err != nil {
			return nil, fmt.Errorf("read level %d: %w", i, err)
		}
		out[i] = hiz.Level{Width: dims[i][0], Height: dims[i][1], Texels: unmarshalFloat32s(buf)}
	}
	common.Logger().Debug("hiz pyramid reduced on device", "width", width, "height", height, "levels", len(dims))
	return hiz.NewPyramid(out)
}

func (c *gpuCullerImpl) SetPyramid(cam camera.Camera, pyramid *hiz.Pyramid) {
	if cam == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state(cam.Name()).pyramid = pyramid
}

func (c *gpuCullerImpl) EndFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range c.cameras {
		if st.lastFrame == c.frame {
			st.current = 1 - st.current
			st.history = c.temporal
		}
	}
	c.plan = nil
	c.objects = nil
}

func (c *gpuCullerImpl) Forget(cam camera.Camera) {
	if cam == nil {
		return
	}
	c.mu.Lock()
	st, ok := c.cameras[cam.Name()]
	delete(c.cameras, cam.Name())
	c.mu.Unlock()
	if ok {
		c.gpuMu.Lock()
		st.release()
		c.gpuMu.Unlock()
	}
}

func (c *gpuCullerImpl) Granularity() batch.Granularity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granularity
}

func (c *gpuCullerImpl) SetGranularity(g batch.Granularity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g == c.granularity {
		return
	}
	c.granularity = g
	c.builder.Reset()
	for _, st := range c.cameras {
		st.history = false
	}
}

func (c *gpuCullerImpl) Stats() []cull.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]cull.Stats, 0, len(c.cameras))
	for _, st := range c.cameras {
		if st.lastFrame != 0 && st.lastFrame+1 >= c.frame {
			out = append(out, st.stats)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Camera < out[j].Camera })
	return out
}

func (c *gpuCullerImpl) Renderer() Renderer {
	return c.renderer
}

func (c *gpuCullerImpl) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gpuMu.Lock()
	defer c.gpuMu.Unlock()

	for name, st := range c.cameras {
		st.release()
		delete(c.cameras, name)
	}
	for _, b := range []*deviceBuffer{c.sceneObjects, c.sceneVertices, c.sceneIndices, c.sceneObjectIDs} {
		b.release()
	}
	if c.ownRenderer && c.renderer != nil {
		c.renderer.Close()
		c.renderer = nil
	}
}
