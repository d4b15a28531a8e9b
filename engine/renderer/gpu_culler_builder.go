package renderer

import "github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"

// GPUCullerBuilderOption is a functional option for configuring a GPUCuller via NewGPUCuller.
type GPUCullerBuilderOption func(*gpuCullerImpl)

// WithCullRenderer dispatches on an existing renderer. The culler does not close it.
//
// Parameters:
//   - r: the renderer
//
// Returns:
//   - GPUCullerBuilderOption: option function to apply
func WithCullRenderer(r Renderer) GPUCullerBuilderOption {
	return func(c *gpuCullerImpl) {
		c.renderer = r
	}
}

// WithCullRendererOptions configures the renderer the culler creates when none is given.
//
// Parameters:
//   - options: renderer builder options
//
// Returns:
//   - GPUCullerBuilderOption: option function to apply
func WithCullRendererOptions(options ...RendererBuilderOption) GPUCullerBuilderOption {
	return func(c *gpuCullerImpl) {
		c.rendererOptions = append(c.rendererOptions, options...)
	}
}

// WithCullBatchBuilder replaces the default batch builder.
//
// Parameters:
//   - builder: the batch builder
//
// Returns:
//   - GPUCullerBuilderOption: option function to apply
func WithCullBatchBuilder(builder batch.Builder) GPUCullerBuilderOption {
	return func(c *gpuCullerImpl) {
		c.builder = builder
	}
}

// WithCullGranularity sets the initial granularity. Defaults to batch.GranularityTriangle.
func WithCullGranularity(g batch.Granularity) GPUCullerBuilderOption {
	return func(c *gpuCullerImpl) {
		c.granularity = g
	}
}

// WithCullOcclusion enables or disables Hi-Z occlusion. Enabled by default.
func WithCullOcclusion(enabled bool) GPUCullerBuilderOption {
	return func(c *gpuCullerImpl) {
		c.occlusion = enabled
	}
}

// WithCullTemporal enables or disables last-frame prediction. Enabled by default.
func WithCullTemporal(enabled bool) GPUCullerBuilderOption {
	return func(c *gpuCullerImpl) {
		c.temporal = enabled
	}
}

// WithCullShaderValidation checks every kernel with naga before the device is touched. Off by
// default: naga does not cover all of WGSL yet, and the device compiles the WGSL itself.
//
// Parameters:
//   - enabled: true to validate
//
// Returns:
//   - GPUCullerBuilderOption: option function to apply
func WithCullShaderValidation(enabled bool) GPUCullerBuilderOption {
	return func(c *gpuCullerImpl) {
		c.validate = enabled
	}
}
