package renderer

import (
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU backend.
	BackendTypeWGPU RendererBackendType = iota
)

// RendererBackend is the top-level backend interface for the Renderer.
// It embeds the concrete backend interface for the selected GPU API.
type RendererBackend interface {
	wgpuRendererBackend
}

// wgpuRendererBackend is the headless WebGPU compute backend.
type wgpuRendererBackend interface {
	AdapterName() string
	Limits() wgpu.Limits

	RegisterComputePipeline(p pipeline.Pipeline) error
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error)
	InitBindGroup(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, sizes map[int]uint64) error
	WriteBuffers(writes []bind_group_provider.BufferWrite)
	WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte)

	BeginComputeFrame() error
	DispatchCompute(p pipeline.Pipeline, providers []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error
	EndComputeFrame() error
	ReadBuffer(buf *wgpu.Buffer, offset, size uint64) ([]byte, error)

	Release()
}
