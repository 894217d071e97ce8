package heap

import (
	"encoding/binary"
	"fmt"
)

// Vectors are the length-prefixed buffers contract code uses for strings
// and dynamic byte arrays: an 8-byte header of two little-endian uint32
// fields (len, then size) followed by the element data. vector_new sets
// both fields to the element count; concat sets both to the byte total.
const (
	vecOffLen  = 0
	vecOffSize = 4

	// VectorHeaderSize is the size of a vector header in bytes.
	VectorHeaderSize = 8
)

// NewVector allocates a vector of members elements of elemSize bytes each
// and returns its offset. A nil initial zero-fills the data; otherwise
// initial must hold exactly members*elemSize bytes to copy in, since a
// guest null pointer is a valid data address and cannot mark "no data".
func (h *Heap) NewVector(members, elemSize uint32, initial []byte) uint32 {
	n := members * elemSize
	if initial != nil && uint32(len(initial)) != n {
		panic(fmt.Sprintf("heap: vector initial data is %d bytes, need %d", len(initial), n))
	}
	ptr := h.Alloc(VectorHeaderSize + n)
	binary.LittleEndian.PutUint32(h.mem[ptr+vecOffLen:], members)
	binary.LittleEndian.PutUint32(h.mem[ptr+vecOffSize:], members)
	data := h.mem[ptr+VectorHeaderSize : ptr+VectorHeaderSize+n]
	if initial == nil {
		clear(data) // reused chunks hold stale bytes
	} else {
		copy(data, initial)
	}
	return ptr
}

// Concat allocates a byte vector holding left followed by right.
func (h *Heap) Concat(left, right []byte) uint32 {
	n := uint32(len(left) + len(right))
	ptr := h.Alloc(VectorHeaderSize + n)
	binary.LittleEndian.PutUint32(h.mem[ptr+vecOffLen:], n)
	binary.LittleEndian.PutUint32(h.mem[ptr+vecOffSize:], n)
	data := h.mem[ptr+VectorHeaderSize : ptr+VectorHeaderSize+n]
	copy(data, left)
	copy(data[len(left):], right)
	return ptr
}

// VectorLen returns the len field of the vector at ptr.
func (h *Heap) VectorLen(ptr uint32) uint32 {
	return binary.LittleEndian.Uint32(h.mem[ptr+vecOffLen:])
}

// VectorSize returns the size field of the vector at ptr.
func (h *Heap) VectorSize(ptr uint32) uint32 {
	return binary.LittleEndian.Uint32(h.mem[ptr+vecOffSize:])
}

// VectorBytes returns the data view of the byte vector at ptr. The view
// aliases the arena. For vectors of wider elements the byte extent is
// caller knowledge; use Bytes directly.
func (h *Heap) VectorBytes(ptr uint32) []byte {
	n := h.VectorLen(ptr)
	return h.Bytes(ptr+VectorHeaderSize, n)
}
