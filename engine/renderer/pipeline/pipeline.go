package pipeline

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	mu *sync.Mutex

	key           string
	computeShader shader.Shader

	// maxWorkgroups caps a single dispatch dimension, the device limit once registered.
	maxWorkgroups uint32

	// GPU objects, populated by the renderer on registration.
	computePipeline *wgpu.ComputePipeline
	layouts         map[int]*wgpu.BindGroupLayout
}

// Pipeline is a compute pipeline for one kernel. It is created unregistered; the renderer
// builds the GPU pipeline and one bind group layout per declared group from the kernel's
// reflected bindings.
type Pipeline interface {
	// Key returns the unique key of the pipeline.
	//
	// Returns:
	//   - string: the pipeline key
	Key() string

	// Shader returns the kernel the pipeline runs.
	//
	// Returns:
	//   - shader.Shader: the compute shader
	Shader() shader.Shader

	// ComputePipeline returns the GPU pipeline, nil until registered.
	//
	// Returns:
	//   - *wgpu.ComputePipeline: the pipeline or nil
	ComputePipeline() *wgpu.ComputePipeline

	// BindGroupLayout returns the layout created for a group, nil until registered.
	//
	// Parameters:
	//   - group: the group index
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the layout or nil
	BindGroupLayout(group int) *wgpu.BindGroupLayout

	// SetComputePipeline stores the GPU objects created on registration, releasing any
	// previous ones.
	//
	// Parameters:
	//   - cp: the created pipeline
	//   - layouts: the created bind group layouts keyed by group
	SetComputePipeline(cp *wgpu.ComputePipeline, layouts map[int]*wgpu.BindGroupLayout)

	// Registered reports whether the GPU pipeline exists.
	//
	// Returns:
	//   - bool: true once SetComputePipeline has been called
	Registered() bool

	// SetMaxWorkgroups sets the per-dimension dispatch limit.
	//
	// Parameters:
	//   - n: the limit, typically the device's maxComputeWorkgroupsPerDimension
	SetMaxWorkgroups(n uint32)

	// WorkgroupCount returns the dispatch size covering n invocations along x.
	//
	// Parameters:
	//   - n: the number of invocations
	//
	// Returns:
	//   - [3]uint32: the workgroup counts
	//   - error: if n needs more workgroups than the limit allows
	WorkgroupCount(n int) ([3]uint32, error)

	// Release releases the GPU pipeline and its layouts.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline creates an unregistered compute pipeline.
// Panics if no shader was supplied through WithComputeShader or WithKernel.
//
// Parameters:
//   - key: the unique pipeline key
//   - options: builder options
//
// Returns:
//   - Pipeline: the new pipeline
func NewPipeline(key string, options ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		mu:            &sync.Mutex{},
		key:           key,
		maxWorkgroups: 65535,
		layouts:       make(map[int]*wgpu.BindGroupLayout),
	}
	for _, opt := range options {
		opt(p)
	}
	if p.computeShader == nil {
		panic(fmt.Sprintf("pipeline: %s requires a compute shader", key))
	}
	return p
}

func (p *pipeline) Key() string {
	return p.key
}

func (p *pipeline) Shader() shader.Shader {
	return p.computeShader
}

func (p *pipeline) ComputePipeline() *wgpu.ComputePipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.computePipeline
}

func (p *pipeline) BindGroupLayout(group int) *wgpu.BindGroupLayout {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.layouts[group]
}

func (p *pipeline) SetComputePipeline(cp *wgpu.ComputePipeline, layouts map[int]*wgpu.BindGroupLayout) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release()
	p.computePipeline = cp
	p.layouts = layouts
}

func (p *pipeline) Registered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.computePipeline != nil
}

func (p *pipeline) SetMaxWorkgroups(n uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > 0 {
		p.maxWorkgroups = n
	}
}

func (p *pipeline) WorkgroupCount(n int) ([3]uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 {
		return [3]uint32{0, 1, 1}, nil
	}
	groups := common.DivCeil(uint32(n), p.computeShader.WorkgroupSize()[0])
	if groups > p.maxWorkgroups {
		return [3]uint32{}, fmt.Errorf("pipeline %s: %d workgroups exceed the limit of %d", p.key, groups, p.maxWorkgroups)
	}
	return [3]uint32{groups, 1, 1}, nil
}

func (p *pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release()
}

func (p *pipeline) release() {
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
	for g, l := range p.layouts {
		if l != nil {
			l.Release()
		}
		delete(p.layouts, g)
	}
}
