package heap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Chunk header layout. Offsets are relative to the chunk's header offset;
// the payload begins HeaderSize bytes after it.
const (
	offNext      = 0  // offset of the next chunk's header, 0 = none
	offPrev      = 4  // offset of the previous chunk's header, 0 = none
	offLength    = 8  // payload length in bytes, header excluded
	offAllocated = 12 // 0 = free, 1 = allocated

	// HeaderSize is the size of a chunk header in bytes.
	HeaderSize = 16
)

// ErrOutOfMemory is the value Alloc panics with when no free chunk can
// satisfy a request. The arena never grows, so exhaustion is fatal to the
// executing call.
var ErrOutOfMemory = errors.New("heap: out of memory")

// Heap is a first-fit allocator over one contiguous arena. The zero value
// is not usable; construct with New or Attach.
type Heap struct {
	mem  []byte
	base uint32
}

// New lays a single free chunk over mem starting at base and returns a
// heap attached to it. The region end is trimmed down so the initial
// payload is a multiple of 8 bytes. New must run exactly once per region,
// before any allocation; re-running it abandons every live block.
//
// base must be nonzero and 8-byte aligned, and the region must hold at
// least one minimal chunk past it. Violations panic: they are embedder
// bugs, not runtime conditions.
func New(mem []byte, base uint32) *Heap {
	h := Attach(mem, base)
	h.setNext(base, 0)
	h.setPrev(base, 0)
	h.setLength(base, h.end()-base-HeaderSize)
	h.setAllocated(base, false)
	return h
}

// Attach adopts a region whose chunk list was already initialized by New,
// without touching its contents. Attaching to an uninitialized region
// yields a heap that behaves as exhausted.
func Attach(mem []byte, base uint32) *Heap {
	if base == 0 || base%8 != 0 {
		panic(fmt.Sprintf("heap: base %#x must be nonzero and 8-byte aligned", base))
	}
	if uint64(len(mem)) >= 1<<32 {
		panic("heap: region exceeds the 32-bit address space")
	}
	if uint64(base)+HeaderSize+8 > uint64(len(mem)) {
		panic(fmt.Sprintf("heap: region of %d bytes too small for base %#x", len(mem), base))
	}
	return &Heap{mem: mem, base: base}
}

// Base returns the offset of the first chunk header.
func (h *Heap) Base() uint32 {
	return h.base
}

// end returns the first offset past the arena, trimmed so payloads stay
// 8-byte aligned.
func (h *Heap) end() uint32 {
	usable := (uint32(len(h.mem)) - h.base - HeaderSize) &^ 7
	return h.base + HeaderSize + usable
}

// Alloc returns the offset of a payload holding at least size bytes,
// rounded up to a multiple of 8. The scan is first-fit in address order.
// It panics with ErrOutOfMemory when no free chunk is large enough.
func (h *Heap) Alloc(size uint32) uint32 {
	cur := h.base
	for cur != 0 && (h.allocated(cur) || size > h.length(cur)) {
		cur = h.next(cur)
	}
	if cur == 0 {
		panic(ErrOutOfMemory)
	}
	h.shrinkChunk(cur, size)
	h.setAllocated(cur, true)
	return cur + HeaderSize
}

// Free returns the block at ptr to the free list and absorbs free
// neighbours, so no two adjacent chunks are ever simultaneously free.
// Freeing the null offset is a no-op. Freeing an offset twice, or one
// that Alloc never returned, corrupts the chunk list.
func (h *Heap) Free(ptr uint32) {
	if ptr == 0 {
		return
	}
	cur := ptr - HeaderSize
	h.setAllocated(cur, false)

	next := h.next(cur)
	if next != 0 && !h.allocated(next) {
		// merge with next
		nn := h.next(next)
		h.setNext(cur, nn)
		if nn != 0 {
			h.setPrev(nn, cur)
		}
		h.setLength(cur, h.length(cur)+h.length(next)+HeaderSize)
		next = nn
	}

	prev := h.prev(cur)
	if prev != 0 && !h.allocated(prev) {
		// merge with previous
		h.setNext(prev, next)
		if next != 0 {
			h.setPrev(next, prev)
		}
		h.setLength(prev, h.length(prev)+h.length(cur)+HeaderSize)
	}
}

// Realloc resizes the block at ptr to size bytes. When the following
// chunk is free and the combined extent suffices, the block grows in
// place and keeps its offset; otherwise the contents move to a fresh
// allocation and the old block is freed. Moves copy at 8-byte
// granularity, so callers that may hit the move path keep sizes in
// multiples of 8. ptr must be a live allocation.
//
// Like Alloc, Realloc panics with ErrOutOfMemory when a move is needed
// and no chunk can hold the new size, even when shrinking.
func (h *Heap) Realloc(ptr, size uint32) uint32 {
	cur := ptr - HeaderSize
	next := h.next(cur)

	if next != 0 && !h.allocated(next) && size <= h.length(cur)+h.length(next)+HeaderSize {
		// merge with next, then split the surplus back off
		nn := h.next(next)
		h.setNext(cur, nn)
		if nn != 0 {
			h.setPrev(nn, cur)
		}
		h.setLength(cur, h.length(cur)+h.length(next)+HeaderSize)
		h.shrinkChunk(cur, size)
		return ptr
	}

	oldLen := h.length(cur)
	dst := h.Alloc(size)
	n := (size + 7) &^ 7
	if oldLen < n {
		n = oldLen
	}
	copy(h.mem[dst:dst+n], h.mem[ptr:ptr+n])
	h.Free(ptr)
	return dst
}

// Bytes returns the n-byte view starting at payload offset ptr. The view
// aliases the arena and stays valid as long as the backing region does.
func (h *Heap) Bytes(ptr, n uint32) []byte {
	return h.mem[ptr : ptr+n : ptr+n]
}

// shrinkChunk trims cur's payload to size bytes (rounded up to 8) by
// splitting a free chunk off the tail. A remainder too small to carry a
// header plus a minimal payload is left in place, bounding internal
// fragmentation at HeaderSize+7 bytes per block.
func (h *Heap) shrinkChunk(cur, size uint32) {
	size = (size + 7) &^ 7
	if h.length(cur)-size >= 8+HeaderSize {
		split := cur + HeaderSize + size
		next := h.next(cur)
		h.setNext(split, next)
		if next != 0 {
			h.setPrev(next, split)
		}
		h.setNext(cur, split)
		h.setPrev(split, cur)
		h.setAllocated(split, false)
		h.setLength(split, h.length(cur)-size-HeaderSize)
		h.setLength(cur, size)
	}
}

func (h *Heap) next(c uint32) uint32 {
	return binary.LittleEndian.Uint32(h.mem[c+offNext:])
}

func (h *Heap) setNext(c, v uint32) {
	binary.LittleEndian.PutUint32(h.mem[c+offNext:], v)
}

func (h *Heap) prev(c uint32) uint32 {
	return binary.LittleEndian.Uint32(h.mem[c+offPrev:])
}

func (h *Heap) setPrev(c, v uint32) {
	binary.LittleEndian.PutUint32(h.mem[c+offPrev:], v)
}

func (h *Heap) length(c uint32) uint32 {
	return binary.LittleEndian.Uint32(h.mem[c+offLength:])
}

func (h *Heap) setLength(c, v uint32) {
	binary.LittleEndian.PutUint32(h.mem[c+offLength:], v)
}

func (h *Heap) allocated(c uint32) bool {
	return binary.LittleEndian.Uint32(h.mem[c+offAllocated:]) != 0
}

func (h *Heap) setAllocated(c uint32, v bool) {
	var u uint32
	if v {
		u = 1
	}
	binary.LittleEndian.PutUint32(h.mem[c+offAllocated:], u)
}
