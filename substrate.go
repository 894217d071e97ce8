package wasmsubstrate

// Memory represents WASM linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of WASM linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator manages blocks inside a fixed arena of WASM linear memory.
// Offsets are guest addresses; 0 is the null pointer. Alloc panics when
// the arena is exhausted since the substrate has no recoverable
// out-of-memory path.
type Allocator interface {
	Alloc(size uint32) uint32
	Free(ptr uint32)
	Realloc(ptr uint32, size uint32) uint32
}
