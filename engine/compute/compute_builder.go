package compute

// DeviceBuilderOption is a functional option for configuring a Device via NewDevice.
type DeviceBuilderOption func(*device)

// WithWorkers sets the number of pool workers, i.e. how many workgroups run at once.
//
// Parameters:
//   - n: worker count (values below 1 are raised to 1)
//
// Returns:
//   - DeviceBuilderOption: a function that applies the worker count to a device
func WithWorkers(n int) DeviceBuilderOption {
	return func(d *device) {
		d.workers = max(n, 1)
	}
}

// WithQueueSize sets how many workgroups may wait in the pool queue before Dispatch blocks.
//
// Parameters:
//   - n: queue capacity
//
// Returns:
//   - DeviceBuilderOption: a function that applies the queue size to a device
func WithQueueSize(n int) DeviceBuilderOption {
	return func(d *device) {
		d.queueSize = max(n, 1)
	}
}
