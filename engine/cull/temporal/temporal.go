// Package temporal keeps last frame's per-invocation visibility so the visibility kernel can tell
// predicted triangles from newly visible ones.
package temporal

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

// Bitmask is one visibility buffer: one bit per global invocation, 32 invocations per word.
type Bitmask struct {
	words []atomic.Uint32
	bits  uint32
}

// NewBitmask allocates a cleared bitmask for n invocations.
func NewBitmask(n uint32) *Bitmask {
	return &Bitmask{words: make([]atomic.Uint32, WordCount(n)), bits: n}
}

// WordCount returns the number of 32-bit words needed for n bits.
func WordCount(n uint32) uint32 {
	return (n + 31) / 32
}

// Len returns the number of invocations the bitmask covers.
func (b *Bitmask) Len() uint32 {
	if b == nil {
		return 0
	}
	return b.bits
}

// Test reports whether bit i is set. Bits outside the mask read as unset.
func (b *Bitmask) Test(i uint32) bool {
	if b == nil || i >= b.bits {
		return false
	}
	return b.words[i/32].Load()&(1<<(i%32)) != 0
}

// OrWord atomically ORs mask into word w. Words outside the mask are ignored.
func (b *Bitmask) OrWord(w uint32, mask uint32) {
	if b == nil || int(w) >= len(b.words) || mask == 0 {
		return
	}
	b.words[w].Or(mask)
}

// Set atomically sets bit i.
func (b *Bitmask) Set(i uint32) {
	if i >= b.Len() {
		return
	}
	b.OrWord(i/32, 1<<(i%32))
}

// Count returns the number of set bits.
func (b *Bitmask) Count() int {
	if b == nil {
		return 0
	}
	n := 0
	for i := range b.words {
		n += bits.OnesCount32(b.words[i].Load())
	}
	return n
}

// Words returns a copy of the raw words, e.g. for upload or debug views.
func (b *Bitmask) Words() []uint32 {
	if b == nil {
		return nil
	}
	out := make([]uint32, len(b.words))
	for i := range b.words {
		out[i] = b.words[i].Load()
	}
	return out
}

// BitmaskFromWords builds a bitmask for n invocations from raw words, e.g. read back from the
// device. Missing words read as zero and bits past n are cleared.
func BitmaskFromWords(n uint32, words []uint32) *Bitmask {
	b := NewBitmask(n)
	for i := range b.words {
		if i >= len(words) {
			break
		}
		w := words[i]
		if last := uint32(i+1) * 32; last > n {
			w &= 1<<(32-(last-n)) - 1
		}
		b.words[i].Store(w)
	}
	return b
}

func (b *Bitmask) reset(n uint32) *Bitmask {
	need := WordCount(n)
	if b == nil || uint32(cap(b.words)) < need {
		return NewBitmask(n)
	}
	b.words = b.words[:need]
	for i := range b.words {
		b.words[i].Store(0)
	}
	b.bits = n
	return b
}

type storeImpl struct {
	mu       *sync.Mutex
	previous *Bitmask
	current  *Bitmask
	frames   uint64
}

// Store is the double-buffered culling result for one camera. During a frame the visibility kernel
// reads Previous and ORs into Current; Swap at end of frame makes Current the next Previous.
type Store interface {
	// Begin clears the current buffer and sizes it for this frame's invocation count.
	//
	// Parameters:
	//   - invocations: the plan's total invocation count
	Begin(invocations uint32)

	// Previous returns last frame's buffer, or nil before the first Swap.
	//
	// Returns:
	//   - *Bitmask: read-only during the frame
	Previous() *Bitmask

	// Current returns the buffer being written this frame.
	//
	// Returns:
	//   - *Bitmask: written with atomic ORs
	Current() *Bitmask

	// Swap exchanges the buffers. Call once per frame after all dispatches finished.
	Swap()

	// Invalidate drops the previous buffer so the next frame treats everything as new.
	Invalidate()

	// Frames returns how many times Swap was called.
	//
	// Returns:
	//   - uint64: swap count
	Frames() uint64
}

var _ Store = &storeImpl{}

// NewStore creates an empty Store.
//
// Returns:
//   - Store: a store with no previous data
func NewStore() Store {
	return &storeImpl{mu: &sync.Mutex{}}
}

func (s *storeImpl) Begin(invocations uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.current.reset(invocations)
}

func (s *storeImpl) Previous() *Bitmask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previous
}

func (s *storeImpl) Current() *Bitmask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		s.current = NewBitmask(0)
	}
	return s.current
}

func (s *storeImpl) Swap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previous, s.current = s.current, s.previous
	s.frames++
}

func (s *storeImpl) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previous = nil
}

func (s *storeImpl) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}
