package batch

// BuilderOption is a functional option for configuring a Builder via NewBuilder.
type BuilderOption func(*builderImpl)

// WithCapacity sets the per-batch invocation capacity. A single object larger than the capacity
// still forms its own batch.
//
// Parameters:
//   - invocations: the target invocation count per batch
//
// Returns:
//   - BuilderOption: a function that applies the capacity to a builder
func WithCapacity(invocations uint32) BuilderOption {
	return func(b *builderImpl) {
		b.capacity = max(invocations, 1)
	}
}

// WithAtomicCeiling sets the largest region, in invocations, whose draw slot may be filled with
// atomic counters. Objects above it get a region of their own that is written positionally.
//
// Parameters:
//   - invocations: the ceiling
//
// Returns:
//   - BuilderOption: a function that applies the ceiling to a builder
func WithAtomicCeiling(invocations uint32) BuilderOption {
	return func(b *builderImpl) {
		b.atomicCeiling = max(invocations, 1)
	}
}
