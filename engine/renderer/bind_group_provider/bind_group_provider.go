package bind_group_provider

import (
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	mu *sync.Mutex

	label string
	group int

	// bindGroup is rebuilt by the renderer whenever a buffer is replaced.
	bindGroup *wgpu.BindGroup

	// buffers are keyed by binding index. Buffers in shared belong to another provider and are
	// not released here.
	buffers map[int]*wgpu.Buffer
	shared  map[int]bool
}

// BindGroupProvider holds the buffers and bind group of one @group of a compute kernel.
//
// Usage pattern:
//  1. Create a provider for the group, injecting buffers owned elsewhere with WithSharedBuffer
//  2. Renderer.InitBindGroup creates the missing buffers from the kernel's reflected sizes
//  3. Renderer.WriteBuffers uploads data, Renderer.Dispatch binds BindGroup()
//  4. Release frees the bind group and the owned buffers
type BindGroupProvider interface {
	// Label returns the debug label of the provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Group returns the @group index the provider binds to.
	//
	// Returns:
	//   - int: the group index
	Group() int

	// BindGroup returns the bind group, nil until initialized or after a buffer was replaced.
	//
	// Returns:
	//   - *wgpu.BindGroup: the bind group or nil
	BindGroup() *wgpu.BindGroup

	// SetBindGroup stores a new bind group, releasing the previous one.
	//
	// Parameters:
	//   - bg: the created bind group
	SetBindGroup(bg *wgpu.BindGroup)

	// Buffer returns the buffer at a binding, nil if not created.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer or nil
	Buffer(binding int) *wgpu.Buffer

	// Buffers returns a copy of the binding to buffer map.
	//
	// Returns:
	//   - map[int]*wgpu.Buffer: buffers keyed by binding index
	Buffers() map[int]*wgpu.Buffer

	// SetBuffer stores an owned buffer, releasing a previously owned one at that binding.
	// The bind group is dropped so the renderer rebuilds it.
	//
	// Parameters:
	//   - binding: the binding index
	//   - buf: the buffer
	SetBuffer(binding int, buf *wgpu.Buffer)

	// Shared reports whether the buffer at a binding belongs to another provider.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - bool: true for injected buffers
	Shared(binding int) bool

	// Release releases the bind group and every owned buffer.
	Release()
}

var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates an empty provider for one group.
//
// Parameters:
//   - label: debug label used for the GPU objects
//   - group: the @group index
//   - options: builder options
//
// Returns:
//   - BindGroupProvider: the provider
func NewBindGroupProvider(label string, group int, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		mu:      &sync.Mutex{},
		label:   label,
		group:   group,
		buffers: make(map[int]*wgpu.Buffer),
		shared:  make(map[int]bool),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) Group() int {
	return p.group
}

func (p *bindGroupProvider) BindGroup() *wgpu.BindGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bindGroup
}

func (p *bindGroupProvider) SetBindGroup(bg *wgpu.BindGroup) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bindGroup != nil && p.bindGroup != bg {
		p.bindGroup.Release()
	}
	p.bindGroup = bg
}

func (p *bindGroupProvider) Buffer(binding int) *wgpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers[binding]
}

func (p *bindGroupProvider) Buffers() map[int]*wgpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]*wgpu.Buffer, len(p.buffers))
	for k, v := range p.buffers {
		out[k] = v
	}
	return out
}

func (p *bindGroupProvider) SetBuffer(binding int, buf *wgpu.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old := p.buffers[binding]; old != nil && old != buf && !p.shared[binding] {
		old.Release()
	}
	p.buffers[binding] = buf
	delete(p.shared, binding)
	p.dropBindGroup()
}

func (p *bindGroupProvider) Shared(binding int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shared[binding]
}

func (p *bindGroupProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropBindGroup()
	for binding, buf := range p.buffers {
		if buf != nil && !p.shared[binding] {
			buf.Release()
		}
		delete(p.buffers, binding)
	}
}

func (p *bindGroupProvider) dropBindGroup() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
}
