package renderer

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	readbackTimeout      time.Duration
	pending              []pipeline.Pipeline
}

// Renderer is the headless compute front of the GPU backend. It caches compute pipelines by key,
// creates the buffers and bind groups of each kernel group from the kernel's reflected layout, and
// records dispatches into one command buffer per compute frame.
type Renderer interface {
	// Pipeline retrieves the registered Pipeline for key, nil if none.
	//
	// Parameters:
	//   - key: the pipeline key
	//
	// Returns:
	//   - pipeline.Pipeline: the pipeline or nil
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves a copy of the pipeline cache.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: registered pipelines keyed by Key()
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines creates the GPU pipeline and bind group layouts of each pipeline and
	// caches it by key. Keys already registered are skipped.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: the first creation error
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// CreateBuffer creates a buffer outside any provider, e.g. one shared by several kernels.
	//
	// Parameters:
	//   - label: debug label
	//   - size: size in bytes, rounded up to a multiple of 4
	//   - usage: buffer usage flags
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer
	//   - error: a device error
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error)

	// InitBindGroup creates the provider's missing buffers for its group of p and builds the
	// bind group. Call again after replacing a buffer.
	//
	// Parameters:
	//   - p: a registered pipeline
	//   - provider: the provider of one group of p
	//   - sizes: buffer sizes in bytes keyed by binding; unset bindings use the reflected size (nil safe)
	//
	// Returns:
	//   - error: ErrNotRegistered or a device error
	InitBindGroup(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, sizes map[int]uint64) error

	// WriteBuffers queues buffer writes. Writes land before the next submitted compute frame.
	//
	// Parameters:
	//   - writes: the staged writes
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// WriteBuffer queues a write into a buffer no provider owns.
	//
	// Parameters:
	//   - buf: the destination, created with CopyDst usage
	//   - offset: byte offset, a multiple of 4
	//   - data: the bytes; the length is padded to a multiple of 4
	WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte)

	// BeginComputeFrame starts recording dispatches.
	//
	// Returns:
	//   - error: ErrFrameOpen if a frame is already recording
	BeginComputeFrame() error

	// Dispatch records one compute pass of p with the given providers bound at their groups.
	//
	// Parameters:
	//   - p: a registered pipeline
	//   - providers: one initialized provider per group the kernel declares
	//   - workGroupCount: the dispatch size; a zero dimension records nothing
	//
	// Returns:
	//   - error: ErrNoFrame, ErrNotRegistered, or an uninitialized bind group
	Dispatch(p pipeline.Pipeline, providers []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// EndComputeFrame submits the recorded dispatches.
	//
	// Returns:
	//   - error: an encoder error
	EndComputeFrame() error

	// ReadBuffer blocks until the submitted work finishes and returns a copy of a buffer range.
	//
	// Parameters:
	//   - buf: a buffer created with CopySrc usage
	//   - offset: byte offset, a multiple of 4
	//   - size: number of bytes to read
	//
	// Returns:
	//   - []byte: the data
	//   - error: ErrFrameOpen, ErrReadbackTimeout, or a map error
	ReadBuffer(buf *wgpu.Buffer, offset, size uint64) ([]byte, error)

	// AdapterName returns the name the adapter reports.
	//
	// Returns:
	//   - string: the adapter name
	AdapterName() string

	// Limits returns the limits the device was created with.
	//
	// Returns:
	//   - wgpu.Limits: the device limits
	Limits() wgpu.Limits

	// Close releases every cached pipeline and the device.
	Close()
}

var _ Renderer = &renderer{}

// NewRenderer creates a headless WebGPU renderer.
//
// Parameters:
//   - options: builder options
//
// Returns:
//   - Renderer: the renderer
//   - error: ErrNoAdapter when the machine has no usable WebGPU adapter, or a registration error
func NewRenderer(options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:              &sync.Mutex{},
		pipelineCache:   make(map[string]pipeline.Pipeline),
		backendType:     BackendTypeWGPU,
		readbackTimeout: 2 * time.Second,
	}
	for _, opt := range options {
		opt(r)
	}

	switch r.backendType {
	case BackendTypeWGPU:
		b, err := newWGPURendererBackend(r.forceFallbackAdapter, r.readbackTimeout)
		if err != nil {
			return nil, err
		}
		r.backend = b
	default:
		return nil, fmt.Errorf("renderer: unknown backend type %d", r.backendType)
	}

	if err := r.RegisterPipelines(r.pending...); err != nil {
		r.Close()
		return nil, err
	}
	r.pending = nil
	return r, nil
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]pipeline.Pipeline, len(r.pipelineCache))
	for k, v := range r.pipelineCache {
		out[k] = v
	}
	return out
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range pipelines {
		if _, exists := r.pipelineCache[p.Key()]; exists {
			continue
		}
		if err := r.backend.RegisterComputePipeline(p); err != nil {
			return err
		}
		r.pipelineCache[p.Key()] = p
	}
	return nil
}

func (r *renderer) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	return r.backend.CreateBuffer(label, size, usage)
}

func (r *renderer) InitBindGroup(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, sizes map[int]uint64) error {
	return r.backend.InitBindGroup(p, provider, sizes)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	r.backend.WriteBuffers(writes)
}

func (r *renderer) WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) {
	r.backend.WriteBuffer(buf, offset, data)
}

func (r *renderer) BeginComputeFrame() error {
	return r.backend.BeginComputeFrame()
}

func (r *renderer) Dispatch(p pipeline.Pipeline, providers []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	return r.backend.DispatchCompute(p, providers, workGroupCount)
}

func (r *renderer) EndComputeFrame() error {
	return r.backend.EndComputeFrame()
}

func (r *renderer) ReadBuffer(buf *wgpu.Buffer, offset, size uint64) ([]byte, error) {
	return r.backend.ReadBuffer(buf, offset, size)
}

func (r *renderer) AdapterName() string {
	return r.backend.AdapterName()
}

func (r *renderer) Limits() wgpu.Limits {
	return r.backend.Limits()
}

func (r *renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, p := range r.pipelineCache {
		p.Release()
		delete(r.pipelineCache, k)
	}
	if r.backend != nil {
		r.backend.Release()
		r.backend = nil
	}
}
