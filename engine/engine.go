package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/profiler"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
)

// ErrStopped is returned by Run when Quit stopped the loop.
var ErrStopped = errors.New("engine: stopped")

// SceneFrame is the output of one scene for one frame.
type SceneFrame struct {
	Key   int
	Scene string
	Plan  *batch.Plan

	// Main is the result of the scene's main camera.
	Main cull.Result
	// Shadows holds one result per shadow-casting light, in light order.
	Shadows []cull.Result

	// DepthTriangles is the number of triangles drawn into the main camera's depth buffer for
	// the next frame's pyramid; 0 when depth feedback is off.
	DepthTriangles int
}

// FrameOutput is everything one call to Frame produced.
type FrameOutput struct {
	Frame     uint64
	DeltaTime float32
	Scenes    []SceneFrame
	Duration  time.Duration
}

// engine implements the Engine interface.
// Drives the per-frame culling pipeline of every active scene on a shared compute device.
type engine struct {
	mu *sync.Mutex

	tickRateChannel chan time.Duration

	running     bool
	quitChannel chan struct{}
	quitOnce    sync.Once

	device    compute.Device
	ownDevice bool
	workers   int

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(out FrameOutput)

	granularity   batch.Granularity
	occlusion     bool
	temporal      bool
	depthFeedback bool

	scenes  map[int]scene.Scene
	cullers map[int]cull.Culler
	depth   map[int]*hiz.DepthBuffer

	frame uint64
}

// Engine is the main entry point for the engine.
// It owns the compute device, one culler per registered scene and the frame loop.
type Engine interface {
	// Device returns the compute device shared by every scene's culler.
	//
	// Returns:
	//   - compute.Device: the device
	Device() compute.Device

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// Profiler returns the engine's profiler.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler
	Profiler() *profiler.Profiler

	// SetTickRate sets the frame rate of Run in frames per second.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called after every frame of Run.
	//
	// Parameters:
	//   - callback: receives the frame's output
	SetTickCallback(callback func(out FrameOutput))

	// SetGranularity switches every scene between triangle and object culling from the next frame.
	//
	// Parameters:
	//   - g: the new granularity
	SetGranularity(g batch.Granularity)

	// AddScene registers a scene at the given z-index key.
	// Scenes are culled in ascending key order.
	//
	// Parameters:
	//   - key: the z-index determining frame order (lower runs first)
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene at the given z-index key and drops its cull state.
	//
	// Parameters:
	//   - key: the z-index of the scene to remove
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given z-index key.
	// Returns nil if no scene exists at that key.
	//
	// Parameters:
	//   - key: the z-index of the scene to retrieve
	//
	// Returns:
	//   - scene.Scene: the scene at the key, or nil if not found
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by z-index.
	//
	// Returns:
	//   - map[int]scene.Scene: a copy of the scenes map
	Scenes() map[int]scene.Scene

	// Culler returns the culler of the scene at the given key, creating it if the scene has not run
	// a frame yet. Returns nil if no scene exists at that key.
	//
	// Parameters:
	//   - key: the z-index of the scene
	//
	// Returns:
	//   - cull.Culler: the scene's culler
	Culler(key int) cull.Culler

	// Frame runs one frame for every active scene: advance objects, build the batch plan, cull the
	// main camera and every shadow camera, feed the main camera's visible depth back as the next
	// frame's pyramid, then swap the temporal buffers.
	//
	// Parameters:
	//   - ctx: cancels the dispatches
	//   - dt: seconds since the previous frame
	//
	// Returns:
	//   - FrameOutput: the results of every active scene
	//   - error: the first scene error, wrapped with the scene key
	Frame(ctx context.Context, dt float32) (FrameOutput, error)

	// Run calls Frame at the tick rate until ctx is done, Quit is called or a frame fails.
	//
	// Parameters:
	//   - ctx: stops the loop when done
	//
	// Returns:
	//   - error: ctx.Err(), ErrStopped, or the failing frame's error
	Run(ctx context.Context) error

	// Quit stops Run. Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Close releases every culler and, when the engine created it, the compute device.
	Close()
}

// NewEngine creates a new Engine instance with the provided options.
// Without WithDevice the engine creates and owns a compute device.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:               &sync.Mutex{},
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		scenes:           make(map[int]scene.Scene),
		cullers:          make(map[int]cull.Culler),
		depth:            make(map[int]*hiz.DepthBuffer),
		profiler:         profiler.NewProfiler(),
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
		occlusion:        true,
		temporal:         true,
		depthFeedback:    true,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.device == nil {
		var devOpts []compute.DeviceBuilderOption
		if e.workers > 0 {
			devOpts = append(devOpts, compute.WithWorkers(e.workers))
		}
		e.device = compute.NewDevice(devOpts...)
		e.ownDevice = true
	}
	common.Logger().Info("engine created", "workers", e.device.Workers(), "scenes", len(e.scenes))

	return e
}

func (e *engine) Device() compute.Device {
	return e.device
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

// SetTickRate sets the frame rate of Run.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.Lock()
	running := e.running
	if !running {
		e.engineTickRate = newRate
	}
	e.mu.Unlock()
	if !running {
		return
	}

	// Non-blocking send - if channel is full, replace the pending value
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(out FrameOutput)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetGranularity(g batch.Granularity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.granularity = g
	for _, c := range e.cullers {
		c.SetGranularity(g)
	}
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.cullers[key]; ok && e.scenes[key] != s {
		old.Close()
		delete(e.cullers, key)
		delete(e.depth, key)
	}
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.cullers[key]; ok {
		c.Close()
	}
	delete(e.scenes, key)
	delete(e.cullers, key)
	delete(e.depth, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}

func (e *engine) Culler(key int) cull.Culler {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.scenes[key]; !ok {
		return nil
	}
	return e.culler(key)
}

// culler returns the culler of a scene key, creating it on first use. Callers hold e.mu.
func (e *engine) culler(key int) cull.Culler {
	if c, ok := e.cullers[key]; ok {
		return c
	}
	c := cull.NewCuller(
		cull.WithDevice(e.device),
		cull.WithGranularity(e.granularity),
		cull.WithOcclusion(e.occlusion),
		cull.WithTemporal(e.temporal),
	)
	e.cullers[key] = c
	return c
}

func (e *engine) Frame(ctx context.Context, dt float32) (FrameOutput, error) {
	start := time.Now()

	// Snapshot the active scenes in ascending z-index order.
	e.mu.Lock()
	e.frame++
	out := FrameOutput{Frame: e.frame, DeltaTime: dt}
	keys := make([]int, 0, len(e.scenes))
	for k, s := range e.scenes {
		if s.Active() {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)
	type work struct {
		key    int
		scene  scene.Scene
		culler cull.Culler
	}
	jobs := make([]work, len(keys))
	for i, k := range keys {
		jobs[i] = work{key: k, scene: e.scenes[k], culler: e.culler(k)}
	}
	profiling := e.profilingEnabled
	feedback := e.depthFeedback && e.occlusion
	e.mu.Unlock()

	for _, j := range jobs {
		sf, err := e.frameScene(ctx, j.key, j.scene, j.culler, dt, feedback)
		if err != nil {
			return out, fmt.Errorf("scene %d (%s): %w", j.key, j.scene.Name(), err)
		}
		out.Scenes = append(out.Scenes, sf)
		if profiling {
			e.profiler.Record(j.culler.Stats()...)
		}
	}

	if profiling {
		e.profiler.Tick()
	}
	out.Duration = time.Since(start)
	return out, nil
}

// frameScene runs the cull pipeline of one scene. The culler's frame is always closed, even when a
// camera fails, so the next frame starts clean.
func (e *engine) frameScene(ctx context.Context, key int, s scene.Scene, c cull.Culler, dt float32, feedback bool) (SceneFrame, error) {
	sf := SceneFrame{Key: key, Scene: s.Name()}

	objects := s.Prepare(dt)
	vertices := s.Store().Snapshot()
	plan, err := c.BeginFrame(objects, vertices)
	if err != nil {
		return sf, err
	}
	defer c.EndFrame()
	sf.Plan = plan

	cam := s.Camera()
	cam.Update()
	sf.Main, err = c.Cull(ctx, cam)
	if err != nil {
		return sf, err
	}

	for _, sc := range s.ShadowCameras() {
		res, err := c.Cull(ctx, sc)
		if err != nil {
			return sf, err
		}
		sf.Shadows = append(sf.Shadows, res)
	}

	if !feedback || cam.ShadowCaster() {
		return sf, nil
	}
	w, h := cam.Resolution()
	e.mu.Lock()
	depth := e.depth[key]
	if depth == nil || depth.Width != w || depth.Height != h {
		depth = hiz.NewDepthBuffer(w, h)
		e.depth[key] = depth
	}
	e.mu.Unlock()

	depth.Clear()
	sf.DepthTriangles = cull.RasterizeVisible(&sf.Main, objects, vertices, depth)
	if err := c.SubmitDepth(ctx, cam, depth.Texels, w, h); err != nil {
		return sf, err
	}
	return sf, nil
}

func (e *engine) Run(ctx context.Context) (err error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine: already running")
	}
	e.running = true
	rate := e.engineTickRate
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	// Recover from panics inside a frame to report them instead of crashing the process.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("frame loop recovered from panic: %v", r)
			err = fmt.Errorf("engine: frame panicked: %v", r)
		}
	}()

	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	lastTick := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.quitChannel:
			return ErrStopped
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.mu.Lock()
			e.engineTickRate = newRate
			e.mu.Unlock()
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			out, err := e.Frame(ctx, dt)
			if err != nil {
				return err
			}
			e.mu.Lock()
			cb := e.tickCallback
			e.mu.Unlock()
			if cb != nil {
				cb(out)
			}
		}
	}
}

// Quit signals Run to return.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) Close() {
	e.Quit()
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, c := range e.cullers {
		c.Close()
		delete(e.cullers, k)
	}
	if e.ownDevice {
		e.device.Close()
	}
}
