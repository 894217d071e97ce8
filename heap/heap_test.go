package heap

import (
	"errors"
	"math/rand"
	"testing"
)

const testBase = 16

// newTestHeap initializes a heap over a fresh region of n bytes with the
// first chunk at testBase.
func newTestHeap(t *testing.T, n int) *Heap {
	t.Helper()
	return New(make([]byte, n), testBase)
}

// tryAlloc converts the out-of-memory panic into a flag so soak tests can
// keep going when the arena fills up.
func tryAlloc(h *Heap, size uint32) (ptr uint32, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if err, isErr := r.(error); isErr && errors.Is(err, ErrOutOfMemory) {
				ok = false
				return
			}
			panic(r)
		}
	}()
	return h.Alloc(size), true
}

func checkIntegrity(t *testing.T, h *Heap) {
	t.Helper()
	if err := h.CheckIntegrity(); err != nil {
		t.Fatalf("integrity check failed: %v", err)
	}
}

func TestNew_SingleFreeChunk(t *testing.T) {
	h := newTestHeap(t, 4096)

	s := h.Stats()
	if s.Chunks != 1 || s.FreeChunks != 1 || s.AllocatedChunks != 0 {
		t.Fatalf("expected one free chunk, got %+v", s)
	}
	want := uint32(4096 - testBase - HeaderSize)
	if s.FreeBytes != want {
		t.Errorf("FreeBytes = %d, want %d", s.FreeBytes, want)
	}
	if s.ArenaSize != want+HeaderSize {
		t.Errorf("ArenaSize = %d, want %d", s.ArenaSize, want+HeaderSize)
	}
	checkIntegrity(t, h)
}

func TestNew_TrimsArenaEnd(t *testing.T) {
	// 4100 bytes leaves 4 ragged bytes past the last full 8-byte slot.
	h := New(make([]byte, 4100), testBase)

	s := h.Stats()
	if s.FreeBytes != 4096-testBase-HeaderSize {
		t.Errorf("FreeBytes = %d, want %d", s.FreeBytes, 4096-testBase-HeaderSize)
	}
	checkIntegrity(t, h)
}

func TestNew_Panics(t *testing.T) {
	tests := []struct {
		name string
		mem  []byte
		base uint32
	}{
		{"zero base", make([]byte, 4096), 0},
		{"misaligned base", make([]byte, 4096), 12},
		{"region too small", make([]byte, 30), 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			New(tt.mem, tt.base)
		})
	}
}

func TestAlloc_Basics(t *testing.T) {
	h := newTestHeap(t, 4096)

	a := h.Alloc(24)
	if a != testBase+HeaderSize {
		t.Errorf("first payload at %#x, want %#x", a, testBase+HeaderSize)
	}

	b := h.Alloc(1)
	if b%8 != 0 {
		t.Errorf("payload %#x not 8-byte aligned", b)
	}
	if b != a+24+HeaderSize {
		t.Errorf("second payload at %#x, want %#x", b, a+24+HeaderSize)
	}

	chunks := h.Chunks()
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].Length != 8 {
		t.Errorf("1-byte request got chunk length %d, want 8", chunks[1].Length)
	}
	if !chunks[0].Allocated || !chunks[1].Allocated || chunks[2].Allocated {
		t.Errorf("unexpected allocation flags: %+v", chunks)
	}
	checkIntegrity(t, h)
}

func TestAlloc_ZeroSize(t *testing.T) {
	h := newTestHeap(t, 4096)

	ptr := h.Alloc(0)
	if ptr == 0 {
		t.Fatal("zero-size alloc returned null")
	}
	chunks := h.Chunks()
	if chunks[0].Length != 0 || !chunks[0].Allocated {
		t.Errorf("zero-size chunk = %+v", chunks[0])
	}
	h.Free(ptr)
	checkIntegrity(t, h)
}

func TestAlloc_SplitThreshold(t *testing.T) {
	tests := []struct {
		name       string
		request    func(free uint32) uint32
		wantChunks int
	}{
		// Remainder of exactly 8+HeaderSize splits off a minimal free chunk.
		{"minimal tail", func(free uint32) uint32 { return free - 8 - HeaderSize }, 2},
		// One slot less leaves a remainder too small to split.
		{"tail too small", func(free uint32) uint32 { return free - HeaderSize }, 1},
		{"exact fit", func(free uint32) uint32 { return free }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHeap(t, 4096)
			free := h.Stats().LargestFree

			h.Alloc(tt.request(free))

			chunks := h.Chunks()
			if len(chunks) != tt.wantChunks {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.wantChunks)
			}
			if !chunks[0].Allocated {
				t.Error("first chunk should be allocated")
			}
			if tt.wantChunks == 1 && chunks[0].Length != free {
				// the whole chunk is granted, over-request included
				t.Errorf("chunk length %d, want %d", chunks[0].Length, free)
			}
			checkIntegrity(t, h)
		})
	}
}

func TestAlloc_FirstFit(t *testing.T) {
	h := newTestHeap(t, 4096)

	a := h.Alloc(64)
	b := h.Alloc(64)
	c := h.Alloc(64)
	_ = a

	h.Free(b)

	// The hole left by b comes first in address order.
	d := h.Alloc(32)
	if d != b {
		t.Errorf("alloc after free returned %#x, want reused %#x", d, b)
	}

	// Too big for what remains of the hole, lands past c.
	e := h.Alloc(64)
	if e <= c {
		t.Errorf("alloc of %#x should land past %#x", e, c)
	}
	checkIntegrity(t, h)
}

func TestAlloc_OutOfMemory(t *testing.T) {
	h := newTestHeap(t, 256)

	if _, ok := tryAlloc(h, 1<<20); ok {
		t.Fatal("oversized alloc should panic")
	}

	// Exhaust, then even the smallest request must fail.
	free := h.Stats().LargestFree
	if _, ok := tryAlloc(h, free); !ok {
		t.Fatal("exact-fit alloc should succeed")
	}
	if _, ok := tryAlloc(h, 8); ok {
		t.Fatal("alloc on a full arena should panic")
	}
	checkIntegrity(t, h)
}

func TestAlloc_PanicValue(t *testing.T) {
	h := newTestHeap(t, 256)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrOutOfMemory) {
			t.Fatalf("panic value = %v, want ErrOutOfMemory", r)
		}
	}()
	h.Alloc(1 << 30)
}

func TestFree_NullIsNoop(t *testing.T) {
	h := newTestHeap(t, 4096)
	before := h.Stats()

	h.Free(0)

	if after := h.Stats(); after != before {
		t.Errorf("Free(0) changed stats: %+v -> %+v", before, after)
	}
}

func TestFree_MergesNeighbours(t *testing.T) {
	tests := []struct {
		name string
		free []int // indices into the allocation order
	}{
		{"next then prev stay merged", []int{1, 0}},
		{"prev then next stay merged", []int{0, 1}},
		{"middle joins both sides", []int{0, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHeap(t, 4096)
			ptrs := []uint32{h.Alloc(64), h.Alloc(64), h.Alloc(64)}
			_ = h.Alloc(64) // barrier so the tail free chunk stays out of the merge

			for _, i := range tt.free {
				h.Free(ptrs[i])
				checkIntegrity(t, h)
			}

			chunks := h.Chunks()
			want := uint32(len(tt.free))*64 + uint32(len(tt.free)-1)*HeaderSize
			if chunks[0].Allocated || chunks[0].Length != want {
				t.Errorf("front chunk = %+v, want free length %d", chunks[0], want)
			}
		})
	}
}

func TestFree_LastChunkThenPredecessor(t *testing.T) {
	h := newTestHeap(t, 1024)

	a := h.Alloc(64)
	rest := h.Stats().LargestFree
	b := h.Alloc(rest) // consumes the arena tail, b is the last chunk

	if s := h.Stats(); s.FreeChunks != 0 {
		t.Fatalf("arena should be full, got %+v", s)
	}

	h.Free(b)
	checkIntegrity(t, h)
	h.Free(a) // absorbs b, which has no successor
	checkIntegrity(t, h)

	s := h.Stats()
	if s.Chunks != 1 || s.FreeBytes != s.ArenaSize-HeaderSize {
		t.Errorf("expected a single free chunk spanning the arena, got %+v", s)
	}
}

func TestFree_ThenAllocReturnsSameAddress(t *testing.T) {
	h := newTestHeap(t, 4096)

	// With no intervening allocations, first-fit lands back on the
	// chunk the free just merged.
	a := h.Alloc(48)
	h.Free(a)
	if b := h.Alloc(48); b != a {
		t.Errorf("Alloc after Free returned %#x, want %#x", b, a)
	}

	// Same with an allocated neighbour pinning the chunk in place.
	c := h.Alloc(32)
	h.Free(c)
	if d := h.Alloc(32); d != c {
		t.Errorf("Alloc after Free returned %#x, want %#x", d, c)
	}
	checkIntegrity(t, h)
}

func TestRealloc_GrowsInPlace(t *testing.T) {
	h := newTestHeap(t, 4096)

	a := h.Alloc(32)
	data := h.Bytes(a, 32)
	for i := range data {
		data[i] = byte(i + 1)
	}

	b := h.Realloc(a, 128)
	if b != a {
		t.Fatalf("grow into free tail moved the block: %#x -> %#x", a, b)
	}
	for i, v := range h.Bytes(b, 32) {
		if v != byte(i+1) {
			t.Fatalf("byte %d = %#x after grow, want %#x", i, v, byte(i+1))
		}
	}

	chunks := h.Chunks()
	if chunks[0].Length != 128 {
		t.Errorf("chunk length %d, want 128", chunks[0].Length)
	}
	checkIntegrity(t, h)
}

func TestRealloc_ShrinksInPlaceWhenNextFree(t *testing.T) {
	h := newTestHeap(t, 4096)

	a := h.Alloc(128)

	b := h.Realloc(a, 32)
	if b != a {
		t.Fatalf("shrink next to a free chunk moved the block: %#x -> %#x", a, b)
	}
	if got := h.Chunks()[0].Length; got != 32 {
		t.Errorf("chunk length %d, want 32", got)
	}
	checkIntegrity(t, h)
}

func TestRealloc_MovesWhenBlocked(t *testing.T) {
	h := newTestHeap(t, 4096)

	a := h.Alloc(32)
	barrier := h.Alloc(32)

	data := h.Bytes(a, 32)
	for i := range data {
		data[i] = byte(0xA0 + i)
	}

	b := h.Realloc(a, 64)
	if b == a {
		t.Fatal("realloc with an allocated successor must move")
	}
	if b <= barrier {
		t.Errorf("moved block at %#x should land past the barrier %#x", b, barrier)
	}
	for i, v := range h.Bytes(b, 32) {
		if v != byte(0xA0+i) {
			t.Fatalf("byte %d = %#x after move, want %#x", i, v, byte(0xA0+i))
		}
	}

	// The old block is free again and sits before the barrier.
	chunks := h.Chunks()
	if chunks[0].Allocated || chunks[0].Payload != a {
		t.Errorf("old block not freed: %+v", chunks[0])
	}
	checkIntegrity(t, h)
}

func TestRealloc_ShrinkWithAllocatedNextMoves(t *testing.T) {
	h := newTestHeap(t, 4096)

	a := h.Alloc(64)
	h.Alloc(32) // pins a's successor

	// Shrinking cannot split in place when the successor is allocated; the
	// block relocates to the first fitting hole, which is past the tail.
	b := h.Realloc(a, 32)
	if b == a {
		t.Fatal("shrink with an allocated successor should move")
	}
	checkIntegrity(t, h)
}

func TestStats_SumInvariant(t *testing.T) {
	h := newTestHeap(t, 8192)

	ptrs := []uint32{h.Alloc(40), h.Alloc(8), h.Alloc(512), h.Alloc(24)}
	h.Free(ptrs[1])
	ptrs[2] = h.Realloc(ptrs[2], 600)

	s := h.Stats()
	total := s.AllocatedBytes + s.FreeBytes + uint32(s.Chunks)*HeaderSize
	if total != s.ArenaSize {
		t.Errorf("payloads+headers = %d, want arena size %d", total, s.ArenaSize)
	}
}

func TestAttach_SharesState(t *testing.T) {
	mem := make([]byte, 4096)
	h1 := New(mem, testBase)
	a := h1.Alloc(64)

	h2 := Attach(mem, testBase)
	if got, want := h2.Stats(), h1.Stats(); got != want {
		t.Fatalf("attached heap sees %+v, want %+v", got, want)
	}

	h2.Free(a)
	if s := h1.Stats(); s.AllocatedChunks != 0 {
		t.Errorf("free through attached heap not visible: %+v", s)
	}
	checkIntegrity(t, h1)
}

func TestBytes_AliasesArena(t *testing.T) {
	mem := make([]byte, 4096)
	h := New(mem, testBase)

	ptr := h.Alloc(16)
	view := h.Bytes(ptr, 16)
	view[0] = 0xEE

	if mem[ptr] != 0xEE {
		t.Errorf("write through view not visible at mem[%#x]", ptr)
	}
	if len(view) != 16 || cap(view) != 16 {
		t.Errorf("view len=%d cap=%d, want 16/16", len(view), cap(view))
	}
}

// TestHeap_RandomizedSoak drives the allocator against a shadow model and
// re-verifies the structural invariants after every operation.
func TestHeap_RandomizedSoak(t *testing.T) {
	h := newTestHeap(t, 64*1024)
	rng := rand.New(rand.NewSource(1))

	type block struct {
		ptr  uint32
		size uint32
	}
	var live []block

	fill := func(b block) {
		data := h.Bytes(b.ptr, b.size)
		for i := range data {
			data[i] = byte(b.ptr + uint32(i))
		}
	}
	verify := func(b block) {
		data := h.Bytes(b.ptr, b.size)
		for i := range data {
			if data[i] != byte(b.ptr+uint32(i)) {
				t.Fatalf("block %#x byte %d = %#x, want %#x", b.ptr, i, data[i], byte(b.ptr+uint32(i)))
			}
		}
	}

	for i := 0; i < 2000; i++ {
		switch op := rng.Intn(10); {
		case op < 5: // alloc
			size := uint32(rng.Intn(32)+1) * 8
			if ptr, ok := tryAlloc(h, size); ok {
				b := block{ptr, size}
				fill(b)
				live = append(live, b)
			} else if len(live) > 0 {
				j := rng.Intn(len(live))
				h.Free(live[j].ptr)
				live = append(live[:j], live[j+1:]...)
			}
		case op < 7 && len(live) > 0: // free
			j := rng.Intn(len(live))
			verify(live[j])
			h.Free(live[j].ptr)
			live = append(live[:j], live[j+1:]...)
		case op < 9 && len(live) > 0: // realloc
			j := rng.Intn(len(live))
			b := live[j]
			verify(b)
			newSize := uint32(rng.Intn(48)+1) * 8
			ptr, ok := func() (p uint32, ok bool) {
				defer func() {
					if r := recover(); r != nil {
						if err, isErr := r.(error); isErr && errors.Is(err, ErrOutOfMemory) {
							return
						}
						panic(r)
					}
				}()
				return h.Realloc(b.ptr, newSize), true
			}()
			if ok {
				nb := block{ptr, newSize}
				keep := b.size
				if newSize < keep {
					keep = newSize
				}
				data := h.Bytes(ptr, keep)
				for k := range data {
					if data[k] != byte(b.ptr+uint32(k)) {
						t.Fatalf("realloc lost byte %d of block %#x", k, b.ptr)
					}
				}
				fill(nb)
				live[j] = nb
			}
		default:
			if len(live) > 0 {
				verify(live[rng.Intn(len(live))])
			}
		}

		if err := h.CheckIntegrity(); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		s := h.Stats()
		if s.AllocatedChunks != countAllocated(h) {
			t.Fatalf("iteration %d: stats disagree with walk", i)
		}
	}

	for _, b := range live {
		verify(b)
		h.Free(b.ptr)
	}
	s := h.Stats()
	if s.Chunks != 1 || s.FreeBytes != s.ArenaSize-HeaderSize {
		t.Errorf("arena did not return to a single free chunk: %+v", s)
	}
}

func countAllocated(h *Heap) int {
	n := 0
	for _, c := range h.Chunks() {
		if c.Allocated {
			n++
		}
	}
	return n
}
