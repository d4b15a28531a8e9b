package pipeline

import (
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/shader"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithComputeShader sets the kernel of the pipeline.
//
// Parameters:
//   - s: the compute shader
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute shader
func WithComputeShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeShader = s
	}
}

// WithKernel sets one of the built-in cull kernels. Panics if the kernel fails to parse.
//
// Parameters:
//   - key: the kernel key
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute shader
func WithKernel(key shader.KernelKey) PipelineBuilderOption {
	return func(p *pipeline) {
		s, err := shader.Kernel(key)
		if err != nil {
			panic(err)
		}
		p.computeShader = s
	}
}

// WithMaxWorkgroups sets the per-dimension dispatch limit before registration.
//
// Parameters:
//   - n: the limit (default 65535)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the limit
func WithMaxWorkgroups(n uint32) PipelineBuilderOption {
	return func(p *pipeline) {
		if n > 0 {
			p.maxWorkgroups = n
		}
	}
}
