// Package compaction turns per-invocation pass/fail results into dense indirect draw arguments,
// either by atomic slot claims (triangle path) or by a parallel prefix sum (object path).
package compaction

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
)

// Section selects one of the two halves of a DrawCallBuffer.
type Section uint8

const (
	// Predicted holds triangles that were visible last frame and passed again.
	Predicted Section = iota
	// Residual holds triangles that became visible this frame, and every triangle of a region
	// that cannot use atomic slots.
	Residual
	sectionCount
)

// String returns the section name.
func (s Section) String() string {
	if s == Residual {
		return "residual"
	}
	return "predicted"
}

// Triangle is one decoded triangle of the packed index buffer.
type Triangle struct {
	Section  Section
	Region   uint32
	Local    uint32 // object index inside the region
	Vertices [3]uint32
}

type drawCallBuffer struct {
	mu *sync.Mutex

	invocations uint32
	regions     []batch.Region
	counts      [sectionCount][]atomic.Uint32
	indices     []uint32
}

// DrawCallBuffer holds one IndirectCall per region in each section and the packed index buffer
// the calls draw from. The predicted section of the index buffer is [0, 3N) and the residual
// section is [3N, 6N) for N invocations; a region owns 3*InvocationCount indices in each section
// starting at 3*BaseInvocation, so no two calls ever overlap.
//
// Claim, Place, AddVertices and Write are safe to call from many invocations at once as long as
// every index position is written by one invocation only. Reset and the read methods must not run
// concurrently with a dispatch.
type DrawCallBuffer interface {
	// Reset sizes the buffer for a plan and zeroes every vertex count. Index positions are reset
	// to InvalidVertex.
	//
	// Parameters:
	//   - plan: the batch plan of this frame
	Reset(plan *batch.Plan)

	// Invocations returns N, the invocation count of the current plan.
	//
	// Returns:
	//   - uint32: the invocation count
	Invocations() uint32

	// RegionCount returns the number of draw slots per section.
	//
	// Returns:
	//   - int: the region count
	RegionCount() int

	// Claim reserves the next free triangle of a region by atomically adding 3 to the call's
	// vertex count.
	//
	// Parameters:
	//   - region: the region id
	//   - section: the section to emit into
	//
	// Returns:
	//   - uint32: the absolute index buffer position of the claimed triangle
	Claim(region uint32, section Section) uint32

	// Place returns the residual index position owned by a global invocation. Regions that cannot
	// use atomic slots write there and account with AddVertices.
	//
	// Parameters:
	//   - global: the global invocation index
	//
	// Returns:
	//   - uint32: the absolute index buffer position
	Place(global uint32) uint32

	// AddVertices atomically adds n to a call's vertex count.
	//
	// Parameters:
	//   - region: the region id
	//   - section: the section of the call
	//   - n: vertices to add
	AddVertices(region uint32, section Section, n uint32)

	// Write stores a packed triangle at an index position returned by Claim or Place.
	//
	// Parameters:
	//   - pos: the absolute index buffer position
	//   - local: the object's index inside its region
	//   - vertices: the triangle's vertex indices
	Write(pos uint32, local uint32, vertices [3]uint32)

	// WriteInvalid stores a degenerate triangle (InvalidVertex x3) at pos.
	//
	// Parameters:
	//   - pos: the absolute index buffer position
	WriteInvalid(pos uint32)

	// Calls returns a snapshot of one section's calls, one per region.
	//
	// Parameters:
	//   - section: the section to read
	//
	// Returns:
	//   - []IndirectCall: calls ordered by region id
	Calls(section Section) []IndirectCall

	// VertexCount returns the sum of one section's vertex counts.
	//
	// Parameters:
	//   - section: the section to read
	//
	// Returns:
	//   - uint32: the total
	VertexCount(section Section) uint32

	// Indices returns a copy of the packed index buffer (6N entries).
	//
	// Returns:
	//   - []uint32: the index buffer
	Indices() []uint32

	// Triangles decodes the triangles one section draws, skipping degenerate ones.
	//
	// Parameters:
	//   - section: the section to read
	//
	// Returns:
	//   - []Triangle: drawn triangles in index buffer order
	Triangles(section Section) []Triangle

	// EmittedTriangles counts the non-degenerate triangles drawn by both sections.
	//
	// Returns:
	//   - int: the count
	EmittedTriangles() int

	// Marshal serializes one section's calls for upload.
	//
	// Parameters:
	//   - section: the section to serialize
	//
	// Returns:
	//   - []byte: RegionCount()*20 bytes
	Marshal(section Section) []byte
}

var _ DrawCallBuffer = &drawCallBuffer{}

// NewDrawCallBuffer creates an empty DrawCallBuffer. Call Reset before the first dispatch.
//
// Returns:
//   - DrawCallBuffer: the buffer
func NewDrawCallBuffer() DrawCallBuffer {
	return &drawCallBuffer{mu: &sync.Mutex{}}
}

func (d *drawCallBuffer) Reset(plan *batch.Plan) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.invocations = plan.TotalInvocations
	d.regions = plan.Regions
	for s := range d.counts {
		if cap(d.counts[s]) < len(plan.Regions) {
			d.counts[s] = make([]atomic.Uint32, len(plan.Regions))
		}
		d.counts[s] = d.counts[s][:len(plan.Regions)]
		for i := range d.counts[s] {
			d.counts[s][i].Store(0)
		}
	}

	n := int(plan.TotalInvocations) * 6
	if cap(d.indices) < n {
		d.indices = make([]uint32, n)
	}
	d.indices = d.indices[:n]
	for i := range d.indices {
		d.indices[i] = InvalidVertex
	}
}

func (d *drawCallBuffer) Invocations() uint32 {
	return d.invocations
}

func (d *drawCallBuffer) RegionCount() int {
	return len(d.regions)
}

func (d *drawCallBuffer) sectionBase(section Section) uint32 {
	return uint32(section) * d.invocations * 3
}

func (d *drawCallBuffer) baseIndex(region uint32, section Section) uint32 {
	return d.sectionBase(section) + d.regions[region].BaseInvocation*3
}

func (d *drawCallBuffer) Claim(region uint32, section Section) uint32 {
	prev := d.counts[section][region].Add(3) - 3
	return d.baseIndex(region, section) + prev
}

func (d *drawCallBuffer) Place(global uint32) uint32 {
	return d.sectionBase(Residual) + global*3
}

func (d *drawCallBuffer) AddVertices(region uint32, section Section, n uint32) {
	d.counts[section][region].Add(n)
}

func (d *drawCallBuffer) Write(pos uint32, local uint32, vertices [3]uint32) {
	d.indices[pos] = PackIndex(local, vertices[0])
	d.indices[pos+1] = PackIndex(local, vertices[1])
	d.indices[pos+2] = PackIndex(local, vertices[2])
}

func (d *drawCallBuffer) WriteInvalid(pos uint32) {
	d.indices[pos] = InvalidVertex
	d.indices[pos+1] = InvalidVertex
	d.indices[pos+2] = InvalidVertex
}

func (d *drawCallBuffer) Calls(section Section) []IndirectCall {
	calls := make([]IndirectCall, len(d.regions))
	for i := range d.regions {
		calls[i] = IndirectCall{
			VertexCount:   d.counts[section][i].Load(),
			InstanceCount: 1,
			BaseIndex:     d.baseIndex(uint32(i), section),
			BaseInstance:  d.regions[i].ID,
		}
	}
	return calls
}

func (d *drawCallBuffer) VertexCount(section Section) uint32 {
	var total uint32
	for i := range d.counts[section] {
		total += d.counts[section][i].Load()
	}
	return total
}

func (d *drawCallBuffer) Indices() []uint32 {
	out := make([]uint32, len(d.indices))
	copy(out, d.indices)
	return out
}

func (d *drawCallBuffer) Triangles(section Section) []Triangle {
	var out []Triangle
	for _, call := range d.Calls(section) {
		for t := uint32(0); t < call.VertexCount/3; t++ {
			pos := call.BaseIndex + t*3
			tri := Triangle{Section: section, Region: call.BaseInstance}
			degenerate := true
			for k := uint32(0); k < 3; k++ {
				local, vertex := UnpackIndex(d.indices[pos+k])
				tri.Local, tri.Vertices[k] = local, vertex
				if vertex != InvalidVertex {
					degenerate = false
				}
			}
			if !degenerate {
				out = append(out, tri)
			}
		}
	}
	return out
}

func (d *drawCallBuffer) EmittedTriangles() int {
	return len(d.Triangles(Predicted)) + len(d.Triangles(Residual))
}

func (d *drawCallBuffer) Marshal(section Section) []byte {
	return MarshalCalls(d.Calls(section))
}

// LoadDrawCallBuffer rebuilds a DrawCallBuffer from device results: the 2R calls of a plan, the
// predicted section first, and its 6N packed indices.
//
// Parameters:
//   - plan: the plan the device culled against
//   - calls: the marshalled calls, at least 2*len(plan.Regions)*20 bytes
//   - indices: the packed index buffer, at least 6*plan.TotalInvocations entries
//
// Returns:
//   - DrawCallBuffer: the buffer
//   - error: when either input is too short
func LoadDrawCallBuffer(plan *batch.Plan, calls []byte, indices []uint32) (DrawCallBuffer, error) {
	regions := len(plan.Regions)
	if len(calls) < 2*regions*GPUIndirectCallSize {
		return nil, fmt.Errorf("compaction: %d call bytes for %d regions", len(calls), regions)
	}
	if uint64(len(indices)) < 6*uint64(plan.TotalInvocations) {
		return nil, fmt.Errorf("compaction: %d indices for %d invocations", len(indices), plan.TotalInvocations)
	}

	d := &drawCallBuffer{mu: &sync.Mutex{}}
	d.Reset(plan)
	decoded := UnmarshalCalls(calls[:2*regions*GPUIndirectCallSize])
	for s := range d.counts {
		for i := range d.counts[s] {
			d.counts[s][i].Store(decoded[s*regions+i].VertexCount)
		}
	}
	copy(d.indices, indices)
	return d, nil
}
