package compaction

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
)

func newTestDevice(t *testing.T) compute.Device {
	t.Helper()
	d := compute.NewDevice(compute.WithWorkers(4), compute.WithQueueSize(16))
	t.Cleanup(d.Close)
	return d
}

func passPattern(i uint32) bool {
	return (i*7919)%3 != 0
}

func TestPrefixCompactMatchesSerialCount(t *testing.T) {
	dev := newTestDevice(t)
	for _, n := range []int{0, 1, 2, 64, 256, 257, 1000, 1024} {
		flags := make([]uint32, n)
		if err := FlagPass(context.Background(), dev, flags, passPattern); err != nil {
			t.Fatalf("n=%d: FlagPass: %v", n, err)
		}

		got := make([]int64, n)
		for i := range got {
			got[i] = -1
		}
		total, err := PrefixCompact(context.Background(), dev, flags, func(i, index uint32) {
			got[i] = int64(index)
		})
		if err != nil {
			t.Fatalf("n=%d: PrefixCompact: %v", n, err)
		}

		var before int64
		for i := 0; i < n; i++ {
			if passPattern(uint32(i)) {
				if got[i] != before {
					t.Errorf("n=%d: object %d index = %d, want %d", n, i, got[i], before)
				}
				before++
			} else if got[i] != -1 {
				t.Errorf("n=%d: failing object %d was emitted at %d", n, i, got[i])
			}
		}
		if int64(total) != before {
			t.Errorf("n=%d: total = %d, want %d", n, total, before)
		}
	}
}

func TestInclusiveScanKeepsPassFlag(t *testing.T) {
	dev := newTestDevice(t)
	const n = 300
	flags := make([]uint32, n)
	scratch := make([]uint32, n)
	for i := range flags {
		flags[i] = PackFlag(i%2 == 0)
	}
	out, err := InclusiveScan(context.Background(), dev, flags, scratch)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out {
		if wantFlag := i%2 == 0; (v&PassFlag != 0) != wantFlag {
			t.Fatalf("word %d flag = %v, want %v", i, v&PassFlag != 0, wantFlag)
		}
		if want := uint32(i/2 + 1); v&CountMask != want {
			t.Fatalf("word %d count = %d, want %d", i, v&CountMask, want)
		}
	}
}

func TestScanPassCountNeverCarriesIntoFlag(t *testing.T) {
	dev := newTestDevice(t)
	in := []uint32{PassFlag | CountMask, 1, CountMask}
	out := make([]uint32, len(in))
	if err := ScanPass(context.Background(), dev, in, out, 1); err != nil {
		t.Fatal(err)
	}
	want := []uint32{PassFlag | CountMask, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %#x, want %#x", i, out[i], want[i])
		}
	}
}

func TestCompactPassEmptyAndSingle(t *testing.T) {
	dev := newTestDevice(t)
	total, err := CompactPass(context.Background(), dev, nil, func(i, index uint32) {
		t.Errorf("emit called for empty input")
	})
	if err != nil || total != 0 {
		t.Errorf("empty: total=%d err=%v", total, err)
	}

	var emitted []uint32
	total, err = CompactPass(context.Background(), dev, []uint32{PackFlag(true)}, func(i, index uint32) {
		emitted = append(emitted, i, index)
	})
	if err != nil || total != 1 || len(emitted) != 2 || emitted[0] != 0 || emitted[1] != 0 {
		t.Errorf("single: total=%d emitted=%v err=%v", total, emitted, err)
	}
}

func testPlan() *batch.Plan {
	return &batch.Plan{
		TotalInvocations: 8,
		Regions: []batch.Region{
			{ID: 0, BaseInvocation: 0, InvocationCount: 7, ObjectIDs: []uint32{0, 1}, AtomicCapable: true},
			{ID: 1, BaseInvocation: 7, InvocationCount: 1, ObjectIDs: []uint32{2}, AtomicCapable: false},
		},
	}
}

func TestDrawCallBufferClaimIsUnique(t *testing.T) {
	d := NewDrawCallBuffer()
	d.Reset(testPlan())
	if d.Invocations() != 8 || d.RegionCount() != 2 || len(d.Indices()) != 48 {
		t.Fatalf("reset: invocations=%d regions=%d indices=%d", d.Invocations(), d.RegionCount(), len(d.Indices()))
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		pos = map[uint32]bool{}
	)
	for i := 0; i < 7; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			section := Predicted
			if i%2 == 1 {
				section = Residual
			}
			p := d.Claim(0, section)
			d.Write(p, uint32(i%2), [3]uint32{uint32(i), uint32(i) + 1, uint32(i) + 2})
			mu.Lock()
			pos[p] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(pos) != 7 {
		t.Fatalf("claims returned %d distinct positions, want 7", len(pos))
	}
	for p := range pos {
		predicted := p < 24
		if p%3 != 0 || (predicted && p >= 21) || (!predicted && (p < 24 || p >= 45)) {
			t.Errorf("claimed position %d outside region 0", p)
		}
	}
	if got := d.VertexCount(Predicted); got != 12 {
		t.Errorf("predicted vertex count = %d, want 12", got)
	}
	if got := d.VertexCount(Residual); got != 9 {
		t.Errorf("residual vertex count = %d, want 9", got)
	}
	if got := d.EmittedTriangles(); got != 7 {
		t.Errorf("EmittedTriangles = %d, want 7", got)
	}
}

func TestDrawCallBufferCallsLayout(t *testing.T) {
	d := NewDrawCallBuffer()
	d.Reset(testPlan())

	calls := d.Calls(Residual)
	want := []IndirectCall{
		{InstanceCount: 1, BaseIndex: 24, BaseInstance: 0},
		{InstanceCount: 1, BaseIndex: 24 + 21, BaseInstance: 1},
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("residual call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
	if got := d.Calls(Predicted)[1].BaseIndex; got != 21 {
		t.Errorf("predicted region 1 BaseIndex = %d, want 21", got)
	}
	if got := d.Place(7); got != calls[1].BaseIndex {
		t.Errorf("Place(7) = %d, want the region's residual base %d", got, calls[1].BaseIndex)
	}
}

func TestDrawCallBufferPositionalWritesSkipDegenerate(t *testing.T) {
	d := NewDrawCallBuffer()
	d.Reset(&batch.Plan{
		TotalInvocations: 4,
		Regions:          []batch.Region{{ID: 0, BaseInvocation: 0, InvocationCount: 4}},
	})
	for g := uint32(0); g < 4; g++ {
		pos := d.Place(g)
		if g == 1 {
			d.WriteInvalid(pos)
		} else {
			d.Write(pos, 0, [3]uint32{g * 3, g*3 + 1, g*3 + 2})
		}
		d.AddVertices(0, Residual, 3)
	}

	if got := d.Calls(Residual)[0].VertexCount; got != 12 {
		t.Errorf("vertex count = %d, want 12", got)
	}
	tris := d.Triangles(Residual)
	if len(tris) != 3 {
		t.Fatalf("decoded %d triangles, want 3", len(tris))
	}
	if tris[1].Vertices != [3]uint32{6, 7, 8} {
		t.Errorf("second drawn triangle = %v, want [6 7 8]", tris[1].Vertices)
	}

	d.Reset(&batch.Plan{TotalInvocations: 4, Regions: []batch.Region{{ID: 0, InvocationCount: 4}}})
	if d.VertexCount(Residual) != 0 || d.EmittedTriangles() != 0 {
		t.Error("Reset kept results of the previous frame")
	}
}

func TestPackIndex(t *testing.T) {
	p := PackIndex(3, 0x123456)
	if p != 0x03123456 {
		t.Errorf("PackIndex = %#x, want 0x03123456", p)
	}
	local, vertex := UnpackIndex(p)
	if local != 3 || vertex != 0x123456 {
		t.Errorf("UnpackIndex = %d, %#x", local, vertex)
	}
	if PackIndex(0, 0xFFFFFFFF) != InvalidVertex {
		t.Error("vertex index not masked to 24 bits")
	}
}

func TestIndirectCallMarshal(t *testing.T) {
	c := IndirectCall{VertexCount: 9, InstanceCount: 1, BaseIndex: 42, VertexOffset: -1, BaseInstance: 7}
	buf := c.Marshal()
	if len(buf) != c.Size() {
		t.Fatalf("len = %d, want %d", len(buf), c.Size())
	}
	want := []uint32{9, 1, 42, 0xFFFFFFFF, 7}
	for i, w := range want {
		if got := binary.LittleEndian.Uint32(buf[i*4:]); got != w {
			t.Errorf("field %d = %#x, want %#x", i, got, w)
		}
	}
}

func TestObjectDrawListMarshal(t *testing.T) {
	l := ObjectDrawList{
		Calls: []IndirectCall{{VertexCount: 36, InstanceCount: 1, BaseInstance: 4}, {}, {}},
		Count: 1,
	}
	buf := l.Marshal()
	if len(buf) != 4+GPUIndirectCallSize {
		t.Fatalf("len = %d, want %d", len(buf), 4+GPUIndirectCallSize)
	}
	if binary.LittleEndian.Uint32(buf) != 1 || binary.LittleEndian.Uint32(buf[4:]) != 36 {
		t.Errorf("unexpected header %v", buf[:8])
	}
	if ids := l.VisibleObjects(); len(ids) != 1 || ids[0] != 4 {
		t.Errorf("VisibleObjects = %v, want [4]", ids)
	}
}

func BenchmarkPrefixCompact(b *testing.B) {
	dev := compute.NewDevice()
	defer dev.Close()
	flags := make([]uint32, 1<<16)
	for b.Loop() {
		for i := range flags {
			flags[i] = PackFlag(passPattern(uint32(i)))
		}
		if _, err := PrefixCompact(context.Background(), dev, flags, func(i, index uint32) {}); err != nil {
			b.Fatal(err)
		}
	}
}

func TestLoadDrawCallBufferRoundTrip(t *testing.T) {
	plan := testPlan()
	d := NewDrawCallBuffer()
	d.Reset(plan)
	d.Write(d.Claim(1, Predicted), 2, [3]uint32{4, 5, 6})
	d.Write(d.Claim(0, Residual), 0, [3]uint32{1, 2, 3})

	calls := append(d.Marshal(Predicted), d.Marshal(Residual)...)
	loaded, err := LoadDrawCallBuffer(plan, calls, d.Indices())
	if err != nil {
		t.Fatalf("LoadDrawCallBuffer: %v", err)
	}
	for _, s := range []Section{Predicted, Residual} {
		got, want := loaded.Calls(s), d.Calls(s)
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%v call %d = %+v, want %+v", s, i, got[i], want[i])
			}
		}
	}
	if got := loaded.EmittedTriangles(); got != 2 {
		t.Errorf("EmittedTriangles = %d, want 2", got)
	}

	if _, err := LoadDrawCallBuffer(plan, calls[:GPUIndirectCallSize], d.Indices()); err == nil {
		t.Error("short call buffer accepted")
	}
	if _, err := LoadDrawCallBuffer(plan, calls, nil); err == nil {
		t.Error("short index buffer accepted")
	}
}

func TestUnmarshalCallsReversesMarshal(t *testing.T) {
	in := []IndirectCall{{VertexCount: 9, InstanceCount: 1, BaseIndex: 30, VertexOffset: -4, BaseInstance: 7}}
	got := UnmarshalCalls(append(MarshalCalls(in), 0xFF))
	if len(got) != 1 || got[0] != in[0] {
		t.Errorf("UnmarshalCalls = %+v, want %+v", got, in)
	}
}
