package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/profiler"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the default profiler, e.g. one logging to a custom logger.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		if p != nil {
			e.profiler = p
		}
	}
}

// WithTickRate sets the frame rate of Run in frames per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target frames per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithDevice shares an existing compute device. The engine does not close it.
//
// Parameters:
//   - device: the compute device
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDevice(device compute.Device) EngineBuilderOption {
	return func(e *engine) {
		e.device = device
	}
}

// WithWorkers sets the worker count of the compute device the engine creates.
// Ignored when WithDevice is used.
//
// Parameters:
//   - n: number of pool workers
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWorkers(n int) EngineBuilderOption {
	return func(e *engine) {
		e.workers = n
	}
}

// WithGranularity sets the culling granularity of every scene. Defaults to triangle.
//
// Parameters:
//   - g: triangle or object
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithGranularity(g batch.Granularity) EngineBuilderOption {
	return func(e *engine) {
		e.granularity = g
	}
}

// WithOcclusion enables or disables Hi-Z occlusion. Enabled by default.
//
// Parameters:
//   - enabled: false skips depth feedback and the occlusion test
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithOcclusion(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.occlusion = enabled
	}
}

// WithTemporal enables or disables the predicted/residual split. Enabled by default.
//
// Parameters:
//   - enabled: false sends every visible triangle to the residual section
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTemporal(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.temporal = enabled
	}
}

// WithDepthFeedback enables or disables rasterizing the main camera's visible triangles into the
// next frame's depth pyramid. Enabled by default; callers with their own depth pass turn it off
// and submit depth through the scene's culler.
//
// Parameters:
//   - enabled: if true, the engine builds the pyramid itself
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDepthFeedback(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.depthFeedback = enabled
	}
}

// WithScene registers a scene at the given z-index key during engine construction.
// Scenes are culled in ascending key order.
//
// Parameters:
//   - key: the z-index determining frame order (lower runs first)
//   - s: the Scene to register
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(key int, s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scenes[key] = s
	}
}
