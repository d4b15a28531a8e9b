package bind_group_provider

// BufferWrite describes one queue write into the buffer at Binding of Provider, starting at
// byte Offset. Offset and len(Data) must be multiples of 4.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}
