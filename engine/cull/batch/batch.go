// Package batch partitions the enabled objects of the object table into batches of invocation
// ranges and groups them into draw regions.
package batch

import (
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
)

// Granularity selects what one invocation tests.
type Granularity uint8

const (
	// GranularityTriangle runs one invocation per triangle.
	GranularityTriangle Granularity = iota
	// GranularityObject runs one invocation per object.
	GranularityObject
)

// String returns the granularity name.
func (g Granularity) String() string {
	if g == GranularityObject {
		return "object"
	}
	return "triangle"
}

// BatchData is one unit of dispatch: up to MaxObjectsPerBatch ranges covering
// [BatchBaseInvocation, BatchBaseInvocation+TotalInvocations).
type BatchData struct {
	BatchBaseInvocation uint32
	TotalInvocations    uint32
	Objects             []ObjectCullingInformation
}

// TotalObjects returns the number of ranges in the batch.
func (b *BatchData) TotalObjects() uint32 {
	return uint32(len(b.Objects))
}

// Find returns the index of the range containing the global invocation, or -1.
func (b *BatchData) Find(global uint32) int {
	i := sort.Search(len(b.Objects), func(i int) bool {
		return b.Objects[i].InvocationEnd > global
	})
	if i < len(b.Objects) && b.Objects[i].InvocationStart <= global {
		return i
	}
	return -1
}

// Region is a run of consecutive objects of one batch that share a draw slot. Its invocations are
// contiguous, starting at BaseInvocation.
type Region struct {
	ID              uint32
	BaseInvocation  uint32
	InvocationCount uint32
	ObjectIDs       []uint32
	AtomicCapable   bool
}

// Plan is the result of one Build.
type Plan struct {
	Granularity      Granularity
	Batches          []BatchData
	Regions          []Region
	TotalInvocations uint32
}

// ObjectCount returns the number of ranges across all batches.
func (p *Plan) ObjectCount() int {
	n := 0
	for i := range p.Batches {
		n += len(p.Batches[i].Objects)
	}
	return n
}

type history struct {
	start []uint32
	count []uint32
}

type builderImpl struct {
	mu *sync.Mutex

	capacity      uint32
	atomicCeiling uint32

	previous [2]history // indexed by Granularity
}

// Builder produces the per-frame Plan. It remembers where every object's range started in the
// previous Build of the same granularity so the visibility kernel can find last frame's result.
type Builder interface {
	// Build partitions the enabled objects of the table, in table order.
	//
	// Parameters:
	//   - objects: the object table; an object's ID is its index
	//   - granularity: triangle or object invocations
	//
	// Returns:
	//   - Plan: batches, regions and total invocation count
	Build(objects []game_object.Object, granularity Granularity) Plan

	// Reset forgets the previous frame so every object reports NoPreviousInvocation next Build.
	Reset()

	// Capacity returns the per-batch invocation capacity.
	Capacity() uint32

	// AtomicCeiling returns the largest region, in invocations, that may use atomic slots.
	AtomicCeiling() uint32
}

var _ Builder = &builderImpl{}

// NewBuilder creates a Builder with a 65536 invocation batch capacity and a 1<<20 invocation
// atomic ceiling unless configured otherwise.
//
// Parameters:
//   - options: a variadic list of BuilderOption functions
//
// Returns:
//   - Builder: the configured builder
func NewBuilder(options ...BuilderOption) Builder {
	b := &builderImpl{
		mu:            &sync.Mutex{},
		capacity:      1 << 16,
		atomicCeiling: 1 << 20,
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

func (b *builderImpl) Capacity() uint32 {
	return b.capacity
}

func (b *builderImpl) AtomicCeiling() uint32 {
	return b.atomicCeiling
}

func (b *builderImpl) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.previous = [2]history{}
}

func (b *builderImpl) Build(objects []game_object.Object, granularity Granularity) Plan {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := &b.previous[granularity]
	next := history{
		start: make([]uint32, len(objects)),
		count: make([]uint32, len(objects)),
	}

	plan := Plan{Granularity: granularity}
	var (
		cur    *BatchData
		region *Region
		total  uint32
	)

	for id := range objects {
		obj := &objects[id]
		if !obj.Enabled {
			continue
		}
		n := uint32(1)
		if granularity == GranularityTriangle {
			n = obj.TriangleCount()
		}
		if n == 0 {
			continue
		}

		if cur != nil && (len(cur.Objects) == MaxObjectsPerBatch || cur.TotalInvocations+n > b.capacity) {
			cur, region = nil, nil
		}
		if cur == nil {
			plan.Batches = append(plan.Batches, BatchData{BatchBaseInvocation: total})
			cur = &plan.Batches[len(plan.Batches)-1]
		}

		atomicCapable := n <= b.atomicCeiling
		if region != nil && (len(region.ObjectIDs) == MaxObjectsPerBatch ||
			!region.AtomicCapable || !atomicCapable ||
			region.InvocationCount+n > b.atomicCeiling) {
			region = nil
		}
		if region == nil {
			plan.Regions = append(plan.Regions, Region{
				ID:             uint32(len(plan.Regions)),
				BaseInvocation: total,
				AtomicCapable:  atomicCapable,
			})
			region = &plan.Regions[len(plan.Regions)-1]
		}

		info := ObjectCullingInformation{
			InvocationStart:          total,
			InvocationEnd:            total + n,
			ObjectID:                 uint32(id),
			RegionID:                 region.ID,
			RegionBaseInvocation:     region.BaseInvocation,
			LocalRegionID:            uint32(len(region.ObjectIDs)),
			PreviousGlobalInvocation: NoPreviousInvocation,
			AtomicCapable:            region.AtomicCapable,
		}
		if id < len(prev.count) && prev.count[id] == n {
			info.PreviousGlobalInvocation = prev.start[id]
		}

		cur.Objects = append(cur.Objects, info)
		cur.TotalInvocations += n
		region.ObjectIDs = append(region.ObjectIDs, uint32(id))
		region.InvocationCount += n
		next.start[id] = total
		next.count[id] = n
		total += n
	}

	plan.TotalInvocations = total
	b.previous[granularity] = next
	return plan
}
