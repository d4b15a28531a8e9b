package compute

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Invocation is the view one kernel invocation has of the dispatch.
type Invocation struct {
	// GlobalID is GroupID*GroupSize + LocalID.
	GlobalID uint32
	// LocalID is the invocation's index inside its workgroup.
	LocalID uint32
	// GroupID is the workgroup index.
	GroupID uint32
	// GroupSize is the number of invocations per workgroup.
	GroupSize uint32

	group *workgroup
}

// Leader reports whether this is the first invocation of its workgroup.
func (inv *Invocation) Leader() bool {
	return inv.LocalID == 0
}

// Shared returns workgroup-shared word i. Every access must go through the atomic methods.
func (inv *Invocation) Shared(i int) *atomic.Uint32 {
	return &inv.group.shared[i]
}

// Barrier blocks until every still-running invocation of the workgroup reached it. Writes made
// before the barrier are visible to every invocation after it.
func (inv *Invocation) Barrier() {
	if inv.group.barrier == nil {
		panic("compute: Barrier called in a non-cooperative dispatch")
	}
	inv.group.barrier.wait()
}

type workgroup struct {
	shared  []atomic.Uint32
	barrier *barrier
}

func runWorkgroup(desc DispatchDesc, group uint32, kernel Kernel) (err error) {
	wg := &workgroup{shared: make([]atomic.Uint32, desc.SharedWords)}
	base := group * desc.GroupSize

	if !desc.Cooperative {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: workgroup %d: %v", ErrKernelPanic, group, r)
			}
		}()
		inv := Invocation{GroupID: group, GroupSize: desc.GroupSize, group: wg}
		for local := uint32(0); local < desc.GroupSize; local++ {
			inv.LocalID = local
			inv.GlobalID = base + local
			kernel(&inv)
		}
		return nil
	}

	wg.barrier = newBarrier(int(desc.GroupSize))
	var (
		done     sync.WaitGroup
		errOnce  sync.Once
		panicErr error
	)
	done.Add(int(desc.GroupSize))
	for local := uint32(0); local < desc.GroupSize; local++ {
		go func(local uint32) {
			defer done.Done()
			defer wg.barrier.leave()
			defer func() {
				if r := recover(); r != nil {
					errOnce.Do(func() {
						panicErr = fmt.Errorf("%w: workgroup %d invocation %d: %v", ErrKernelPanic, group, local, r)
					})
				}
			}()
			kernel(&Invocation{
				GlobalID:  base + local,
				LocalID:   local,
				GroupID:   group,
				GroupSize: desc.GroupSize,
				group:     wg,
			})
		}(local)
	}
	done.Wait()
	return panicErr
}

// barrier is a reusable rendezvous for the invocations of one workgroup. An invocation that
// returns leaves the barrier so the remaining ones are not held forever.
type barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	arrived    int
	generation uint64
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.generation
	b.arrived++
	if b.arrived >= b.parties {
		b.release()
		return
	}
	for gen == b.generation {
		b.cond.Wait()
	}
}

func (b *barrier) leave() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parties--
	if b.arrived > 0 && b.arrived >= b.parties {
		b.release()
	}
}

func (b *barrier) release() {
	b.arrived = 0
	b.generation++
	b.cond.Broadcast()
}
