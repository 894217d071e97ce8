package heap

import "fmt"

// Stats is a point-in-time summary of arena occupancy. All byte counts
// refer to payloads; headers are accounted separately through Chunks.
type Stats struct {
	ArenaSize       uint32 // bytes governed by the allocator, headers included
	Chunks          int
	AllocatedChunks int
	FreeChunks      int
	AllocatedBytes  uint32
	FreeBytes       uint32
	LargestFree     uint32
}

// Stats walks the chunk list and returns a snapshot of arena occupancy.
func (h *Heap) Stats() Stats {
	s := Stats{ArenaSize: h.end() - h.base}
	for cur := h.base; cur != 0; cur = h.next(cur) {
		s.Chunks++
		length := h.length(cur)
		if h.allocated(cur) {
			s.AllocatedChunks++
			s.AllocatedBytes += length
		} else {
			s.FreeChunks++
			s.FreeBytes += length
			if length > s.LargestFree {
				s.LargestFree = length
			}
		}
	}
	return s
}

// ChunkInfo describes one chunk for inspection tooling.
type ChunkInfo struct {
	Offset    uint32 // header offset
	Payload   uint32 // payload offset
	Length    uint32 // payload length in bytes
	Allocated bool
}

// Chunks returns the chunk list in address order.
func (h *Heap) Chunks() []ChunkInfo {
	var out []ChunkInfo
	for cur := h.base; cur != 0; cur = h.next(cur) {
		out = append(out, ChunkInfo{
			Offset:    cur,
			Payload:   cur + HeaderSize,
			Length:    h.length(cur),
			Allocated: h.allocated(cur),
		})
	}
	return out
}

// CheckIntegrity verifies the structural invariants of the chunk list:
// chunks cover the arena exactly with no gaps or overlaps, prev links
// mirror next links, payload lengths are multiples of 8, and no two
// adjacent chunks are both free. The allocator never calls this on its
// own; it exists for tests and inspection tooling.
func (h *Heap) CheckIntegrity() error {
	end := h.end()
	pos := h.base
	var prev uint32
	prevFree := false

	for cur := h.base; cur != 0; cur = h.next(cur) {
		if cur != pos {
			return fmt.Errorf("heap: chunk header at %#x, expected %#x", cur, pos)
		}
		if h.prev(cur) != prev {
			return fmt.Errorf("heap: chunk %#x has prev %#x, expected %#x", cur, h.prev(cur), prev)
		}
		length := h.length(cur)
		if length%8 != 0 {
			return fmt.Errorf("heap: chunk %#x length %d is not a multiple of 8", cur, length)
		}
		if uint64(cur)+HeaderSize+uint64(length) > uint64(end) {
			return fmt.Errorf("heap: chunk %#x overruns arena end %#x", cur, end)
		}
		free := !h.allocated(cur)
		if free && prevFree {
			return fmt.Errorf("heap: adjacent free chunks at %#x and %#x", prev, cur)
		}
		prevFree = free
		prev = cur
		pos = cur + HeaderSize + length
	}

	if pos != end {
		return fmt.Errorf("heap: chunk list ends at %#x, expected %#x", pos, end)
	}
	return nil
}
