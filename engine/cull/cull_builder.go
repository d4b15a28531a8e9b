package cull

import (
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
)

// CullerBuilderOption is a functional option for configuring a Culler via NewCuller.
type CullerBuilderOption func(*cullerImpl)

// WithDevice dispatches the kernels on an existing device. The culler does not close it.
//
// Parameters:
//   - device: the compute device
//
// Returns:
//   - CullerBuilderOption: option function to apply
func WithDevice(device compute.Device) CullerBuilderOption {
	return func(c *cullerImpl) {
		c.device = device
	}
}

// WithBatchBuilder replaces the default batch builder, e.g. one with a smaller capacity.
//
// Parameters:
//   - builder: the batch builder
//
// Returns:
//   - CullerBuilderOption: option function to apply
func WithBatchBuilder(builder batch.Builder) CullerBuilderOption {
	return func(c *cullerImpl) {
		c.builder = builder
	}
}

// WithGranularity sets the initial granularity. Defaults to batch.GranularityTriangle.
//
// Parameters:
//   - g: triangle or object
//
// Returns:
//   - CullerBuilderOption: option function to apply
func WithGranularity(g batch.Granularity) CullerBuilderOption {
	return func(c *cullerImpl) {
		c.granularity = g
	}
}

// WithOcclusion enables or disables the Hi-Z test. Enabled by default.
//
// Parameters:
//   - enabled: false ignores every submitted pyramid
//
// Returns:
//   - CullerBuilderOption: option function to apply
func WithOcclusion(enabled bool) CullerBuilderOption {
	return func(c *cullerImpl) {
		c.occlusion = enabled
	}
}

// WithTemporal enables or disables the predicted/residual split. Enabled by default; when
// disabled every visible triangle goes to the residual section.
//
// Parameters:
//   - enabled: false discards last frame's results
//
// Returns:
//   - CullerBuilderOption: option function to apply
func WithTemporal(enabled bool) CullerBuilderOption {
	return func(c *cullerImpl) {
		c.temporal = enabled
	}
}
