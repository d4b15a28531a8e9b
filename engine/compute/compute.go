// Package compute runs compute kernels on the CPU with GPU dispatch semantics: a dispatch is a
// grid of workgroups, each workgroup has workgroup-shared memory and a barrier, and there is no
// synchronisation between workgroups of the same dispatch.
package compute

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-cull/common"
)

var (
	// ErrDispatchAbandoned is returned when the context is cancelled while a dispatch runs.
	// The outputs of an abandoned dispatch are undefined.
	ErrDispatchAbandoned = errors.New("compute: dispatch abandoned")
	// ErrKernelPanic is returned when a kernel invocation panics.
	ErrKernelPanic = errors.New("compute: kernel panicked")
	// ErrDeviceClosed is returned by Dispatch after Close.
	ErrDeviceClosed = errors.New("compute: device closed")
)

// Kernel is the body of one invocation.
type Kernel func(inv *Invocation)

// DispatchDesc describes one dispatch.
type DispatchDesc struct {
	// Label names the dispatch in logs and errors.
	Label string
	// Groups is the number of workgroups.
	Groups uint32
	// GroupSize is the number of invocations per workgroup.
	GroupSize uint32
	// SharedWords is the number of workgroup-shared 32-bit words, zeroed per workgroup.
	SharedWords int
	// Cooperative runs each invocation on its own goroutine so Barrier can be used. Without it
	// the invocations of a workgroup run one after another and Barrier panics.
	Cooperative bool
}

// Stats counts work done by a Device since it was created.
type Stats struct {
	Dispatches  uint64
	Workgroups  uint64
	Invocations uint64
}

type device struct {
	mu     *sync.Mutex
	pool   worker.DynamicWorkerPool
	closed bool

	workers   int
	queueSize int

	dispatches  atomic.Uint64
	workgroups  atomic.Uint64
	invocations atomic.Uint64
	nextTaskID  atomic.Int64
}

// Device executes dispatches on a pool of worker goroutines. Each workgroup is one pool task.
type Device interface {
	// Dispatch runs every workgroup of the dispatch and returns when all of them finished.
	//
	// Parameters:
	//   - ctx: cancelling it abandons the dispatch; workgroups not yet started are skipped
	//   - desc: grid shape, shared memory size and execution mode
	//   - kernel: the invocation body
	//
	// Returns:
	//   - error: ErrDispatchAbandoned, ErrKernelPanic or ErrDeviceClosed, wrapped with the label
	Dispatch(ctx context.Context, desc DispatchDesc, kernel Kernel) error

	// Workers returns the number of pool workers.
	//
	// Returns:
	//   - int: the worker count
	Workers() int

	// Stats returns cumulative counters.
	//
	// Returns:
	//   - Stats: dispatch, workgroup and invocation counts
	Stats() Stats

	// Close stops the worker pool. Further dispatches fail with ErrDeviceClosed.
	Close()
}

var _ Device = &device{}

// NewDevice creates a Device with one worker per spare CPU unless configured otherwise.
//
// Parameters:
//   - options: a variadic list of DeviceBuilderOption functions
//
// Returns:
//   - Device: the running device
func NewDevice(options ...DeviceBuilderOption) Device {
	d := &device{
		mu:        &sync.Mutex{},
		workers:   max(runtime.NumCPU()-1, 1),
		queueSize: 256,
	}
	for _, opt := range options {
		opt(d)
	}
	d.pool = worker.NewDynamicWorkerPool(d.workers, d.queueSize, time.Second)
	common.Logger().Info("compute device started", "workers", d.workers, "queue", d.queueSize)
	return d
}

func (d *device) Dispatch(ctx context.Context, desc DispatchDesc, kernel Kernel) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return fmt.Errorf("%s: %w", desc.Label, ErrDeviceClosed)
	}
	if desc.Groups == 0 || desc.GroupSize == 0 {
		return nil
	}

	d.dispatches.Add(1)
	common.Logger().Debug("dispatch",
		"label", desc.Label,
		"groups", desc.Groups,
		"groupSize", desc.GroupSize,
		"cooperative", desc.Cooperative,
	)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		panicErr error
	)
	for g := uint32(0); g < desc.Groups; g++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		group := g
		d.pool.SubmitTask(worker.Task{
			ID: int(d.nextTaskID.Add(1)),
			Do: func() (any, error) {
				defer wg.Done()
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if err := runWorkgroup(desc, group, kernel); err != nil {
					errOnce.Do(func() { panicErr = err })
					return nil, err
				}
				d.workgroups.Add(1)
				d.invocations.Add(uint64(desc.GroupSize))
				return nil, nil
			},
		})
	}
	wg.Wait()

	if panicErr != nil {
		return fmt.Errorf("%s: %w", desc.Label, panicErr)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", desc.Label, ErrDispatchAbandoned, err)
	}
	return nil
}

func (d *device) Workers() int {
	return d.workers
}

func (d *device) Stats() Stats {
	return Stats{
		Dispatches:  d.dispatches.Load(),
		Workgroups:  d.workgroups.Load(),
		Invocations: d.invocations.Load(),
	}
}

func (d *device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.pool.Stop()
	common.Logger().Info("compute device stopped", "dispatches", d.dispatches.Load())
}
