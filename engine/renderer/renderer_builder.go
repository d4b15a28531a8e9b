package renderer

import (
	"time"

	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/pipeline"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPipeline registers a pipeline as soon as the device exists.
//
// Parameters:
//   - p: the Pipeline to register
//
// Returns:
//   - RendererBuilderOption: a function that applies the pipeline option to a renderer
func WithPipeline(p pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		r.pending = append(r.pending, p)
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithReadbackTimeout bounds how long ReadBuffer waits for the device. Defaults to 2s.
//
// Parameters:
//   - d: the timeout; values <= 0 keep the default
//
// Returns:
//   - RendererBuilderOption: a function that sets the timeout
func WithReadbackTimeout(d time.Duration) RendererBuilderOption {
	return func(r *renderer) {
		if d > 0 {
			r.readbackTimeout = d
		}
	}
}
