package temporal

import (
	"sync"
	"testing"
)

func TestBitmaskSetTestCount(t *testing.T) {
	b := NewBitmask(70)
	if got := len(b.Words()); got != 3 {
		t.Fatalf("words = %d, want 3", got)
	}
	for _, i := range []uint32{0, 31, 32, 69} {
		b.Set(i)
	}
	b.Set(70) // out of range, ignored
	for i := uint32(0); i < 72; i++ {
		want := i == 0 || i == 31 || i == 32 || i == 69
		if got := b.Test(i); got != want {
			t.Errorf("Test(%d) = %v, want %v", i, got, want)
		}
	}
	if got := b.Count(); got != 4 {
		t.Errorf("Count = %d, want 4", got)
	}
}

func TestBitmaskConcurrentOr(t *testing.T) {
	b := NewBitmask(64 * 32)
	var wg sync.WaitGroup
	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for w := uint32(0); w < 64; w++ {
				b.OrWord(w, 1<<g)
			}
		}(g)
	}
	wg.Wait()
	for w, v := range b.Words() {
		if v != 0xFFFFFFFF {
			t.Fatalf("word %d = %#x, want all bits", w, v)
		}
	}
}

func TestNilBitmaskReadsEmpty(t *testing.T) {
	var b *Bitmask
	if b.Test(3) || b.Len() != 0 || b.Count() != 0 || b.Words() != nil {
		t.Error("nil bitmask should behave as empty")
	}
	b.OrWord(0, 1)
}

func TestStorePingPong(t *testing.T) {
	s := NewStore()
	if s.Previous() != nil {
		t.Fatal("fresh store has previous data")
	}

	s.Begin(40)
	s.Current().Set(5)
	s.Current().Set(39)
	s.Swap()

	if !s.Previous().Test(5) || !s.Previous().Test(39) || s.Previous().Test(6) {
		t.Errorf("previous after swap = %v", s.Previous().Words())
	}

	s.Begin(100)
	if s.Current().Count() != 0 || s.Current().Len() != 100 {
		t.Errorf("current after Begin = %d bits over %d", s.Current().Count(), s.Current().Len())
	}
	s.Current().Set(99)
	if s.Previous().Test(99) {
		t.Error("writing current leaked into previous")
	}
	s.Swap()
	if !s.Previous().Test(99) || s.Previous().Test(5) {
		t.Error("second swap did not expose the second frame's bits")
	}
	if s.Frames() != 2 {
		t.Errorf("Frames = %d, want 2", s.Frames())
	}

	s.Invalidate()
	if s.Previous() != nil {
		t.Error("Invalidate kept previous data")
	}
}

func TestStoreBeginReusesAndClears(t *testing.T) {
	s := NewStore()
	s.Begin(64)
	s.Current().Set(1)
	s.Swap()
	s.Begin(64)
	s.Current().Set(2)
	s.Swap()
	// The first frame's buffer is current again and must come back cleared.
	s.Begin(32)
	if s.Current().Count() != 0 {
		t.Errorf("reused buffer has %d stale bits", s.Current().Count())
	}
	if s.Current().Test(1) {
		t.Error("stale bit 1 survived Begin")
	}
}

func TestBitmaskFromWordsMasksTail(t *testing.T) {
	b := BitmaskFromWords(40, []uint32{0x80000001, 0xFFFFFFFF, 0xFFFFFFFF})
	if got := len(b.Words()); got != 2 {
		t.Fatalf("words = %d, want 2", got)
	}
	if got := b.Count(); got != 2+8 {
		t.Errorf("Count = %d, want 10", got)
	}
	if !b.Test(31) || !b.Test(39) || b.Test(40) {
		t.Error("tail bits not masked to the invocation count")
	}
	if got := BitmaskFromWords(64, nil).Count(); got != 0 {
		t.Errorf("missing words read as %d set bits", got)
	}
}

func TestCountFullWords(t *testing.T) {
	tests := []struct {
		words []uint32
		want  int
	}{
		{[]uint32{0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF}, 96},
		{[]uint32{0xAAAAAAAA, 0x00000000, 0x80000000}, 17},
		{[]uint32{0, 0, 0}, 0},
	}
	for _, tt := range tests {
		if got := BitmaskFromWords(96, tt.words).Count(); got != tt.want {
			t.Errorf("Count(%#x) = %d, want %d", tt.words, got, tt.want)
		}
	}
}
