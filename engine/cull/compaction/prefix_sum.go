package compaction

import (
	"context"
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
)

// GPUPrefixScanSource is the WGSL kernel of one Hillis-Steele step.
//
//go:embed assets/prefix_scan.wgsl
var GPUPrefixScanSource string

// GPUObjectCompactSource is the WGSL compact pass of the object path.
//
//go:embed assets/object_compact.wgsl
var GPUObjectCompactSource string

const (
	// PassFlag is the high bit of a scan word: set when the object passed culling. The scan
	// never changes it.
	PassFlag uint32 = 0x80000000
	// CountMask selects the 31-bit running count of a scan word.
	CountMask uint32 = 0x7FFFFFFF

	// ScanWorkgroupSize is the workgroup size of every prefix-sum pass.
	ScanWorkgroupSize = 256
)

// PackFlag returns the initial scan word of one object: the pass flag in the high bit and a count
// of 1 or 0 in the low bits.
func PackFlag(passed bool) uint32 {
	if passed {
		return PassFlag | 1
	}
	return 0
}

// FlagPass writes the initial scan word of every object.
//
// Parameters:
//   - ctx: cancels the dispatch
//   - dev: the compute device
//   - flags: output, one word per object
//   - passed: the culling predicate for object i
//
// Returns:
//   - error: a wrapped compute error
func FlagPass(ctx context.Context, dev compute.Device, flags []uint32, passed func(i uint32) bool) error {
	n := uint32(len(flags))
	return dev.Dispatch(ctx, compute.DispatchDesc{
		Label:     "compaction.flag",
		Groups:    common.DivCeil(n, ScanWorkgroupSize),
		GroupSize: ScanWorkgroupSize,
	}, func(inv *compute.Invocation) {
		if inv.GlobalID >= n {
			return
		}
		flags[inv.GlobalID] = PackFlag(passed(inv.GlobalID))
	})
}

// ScanPass runs one Hillis-Steele step: out[i] = in[i] + in[i-stride] on the count bits, with the
// pass flag of in[i] carried over unchanged.
//
// Parameters:
//   - ctx: cancels the dispatch
//   - dev: the compute device
//   - in: the words of the previous step
//   - out: the words of this step (same length, must not alias in)
//   - stride: the step distance, a power of two
//
// Returns:
//   - error: a wrapped compute error
func ScanPass(ctx context.Context, dev compute.Device, in, out []uint32, stride uint32) error {
	n := uint32(len(in))
	return dev.Dispatch(ctx, compute.DispatchDesc{
		Label:     fmt.Sprintf("compaction.scan[%d]", stride),
		Groups:    common.DivCeil(n, ScanWorkgroupSize),
		GroupSize: ScanWorkgroupSize,
	}, func(inv *compute.Invocation) {
		i := inv.GlobalID
		if i >= n {
			return
		}
		v := in[i]
		if i >= stride {
			count := (v&CountMask + in[i-stride]&CountMask) & CountMask
			v = v&PassFlag | count
		}
		out[i] = v
	})
}

// InclusiveScan runs ScanPass with doubling strides until every word holds the number of passing
// objects at or before it. The buffers are used ping-pong.
//
// Parameters:
//   - ctx: cancels the dispatches
//   - dev: the compute device
//   - flags: the output of FlagPass
//   - scratch: a second buffer of the same length
//
// Returns:
//   - []uint32: whichever of flags or scratch holds the result
//   - error: a wrapped compute error
func InclusiveScan(ctx context.Context, dev compute.Device, flags, scratch []uint32) ([]uint32, error) {
	in, out := flags, scratch
	for stride := uint32(1); stride < uint32(len(flags)); stride <<= 1 {
		if err := ScanPass(ctx, dev, in, out, stride); err != nil {
			return nil, err
		}
		in, out = out, in
	}
	return in, nil
}

// CompactPass gives every passing object its output index, count-1, and has the last object write
// the total.
//
// Parameters:
//   - ctx: cancels the dispatch
//   - dev: the compute device
//   - scanned: the result of InclusiveScan
//   - emit: called once per passing object with its index i and compacted index
//
// Returns:
//   - uint32: the number of passing objects
//   - error: a wrapped compute error
func CompactPass(ctx context.Context, dev compute.Device, scanned []uint32, emit func(i, index uint32)) (uint32, error) {
	n := uint32(len(scanned))
	var total uint32
	err := dev.Dispatch(ctx, compute.DispatchDesc{
		Label:     "compaction.compact",
		Groups:    common.DivCeil(n, ScanWorkgroupSize),
		GroupSize: ScanWorkgroupSize,
	}, func(inv *compute.Invocation) {
		i := inv.GlobalID
		if i >= n {
			return
		}
		v := scanned[i]
		if v&PassFlag != 0 {
			emit(i, v&CountMask-1)
		}
		if i == n-1 {
			total = v & CountMask
		}
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// PrefixCompact runs the scan and compact passes over flags already written by FlagPass or by a
// culling kernel.
//
// Parameters:
//   - ctx: cancels the dispatches
//   - dev: the compute device
//   - flags: one scan word per object; overwritten
//   - emit: called once per passing object with its index i and compacted index
//
// Returns:
//   - uint32: the number of passing objects
//   - error: a wrapped compute error
func PrefixCompact(ctx context.Context, dev compute.Device, flags []uint32, emit func(i, index uint32)) (uint32, error) {
	scanned, err := InclusiveScan(ctx, dev, flags, make([]uint32, len(flags)))
	if err != nil {
		return 0, fmt.Errorf("prefix scan: %w", err)
	}
	total, err := CompactPass(ctx, dev, scanned, emit)
	if err != nil {
		return 0, fmt.Errorf("prefix compact: %w", err)
	}
	return total, nil
}

// ObjectDrawList is the output of the object path: one draw per visible object, densely packed,
// and the draw count written by the last invocation of the compact pass.
type ObjectDrawList struct {
	Calls []IndirectCall
	Count uint32
}

// VisibleObjects returns the object ids of the first Count calls.
func (l *ObjectDrawList) VisibleObjects() []uint32 {
	ids := make([]uint32, l.Count)
	for i := range ids {
		ids[i] = l.Calls[i].BaseInstance
	}
	return ids
}

// Marshal serializes the draw count followed by the calls, the layout a count-driven multi draw
// reads.
//
// Returns:
//   - []byte: 4 + Count*20 bytes
func (l *ObjectDrawList) Marshal() []byte {
	calls := MarshalCalls(l.Calls[:l.Count])
	buf := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+len(calls)), l.Count)
	return append(buf, calls...)
}
