package model

// StoreBuilderOption is a functional option for configuring a Store via NewStore.
type StoreBuilderOption func(*store)

// WithVertexCapacity is an option builder that preallocates room for the given number of bytes of
// vertex attribute data.
//
// Parameters:
//   - bytes: the expected size of all attribute streams
//
// Returns:
//   - StoreBuilderOption: a function that applies the capacity option to a store
func WithVertexCapacity(bytes int) StoreBuilderOption {
	return func(s *store) {
		s.vertices = make([]byte, 0, bytes)
	}
}

// WithIndexCapacity is an option builder that preallocates room for the given number of indices.
//
// Parameters:
//   - indices: the expected size of the shared index buffer
//
// Returns:
//   - StoreBuilderOption: a function that applies the capacity option to a store
func WithIndexCapacity(indices int) StoreBuilderOption {
	return func(s *store) {
		s.indices = make([]uint32, 0, indices)
	}
}
