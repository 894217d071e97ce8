// Package heap implements the contract heap: a first-fit allocator over a
// fixed arena inside WASM linear memory.
//
// There are many tradeoffs in heaps. Contract code wants small code size,
// few live objects, and little memory, so fragmentation is avoided by
// merging free neighbours; the costly operation is walking the chunk list
// looking for free space.
//
// The arena is a doubly linked list of chunks laid end to end. Each chunk
// is a 16-byte header followed by its payload, and every header field is a
// little-endian uint32 stored in the arena itself. Nothing about a heap
// lives outside its memory region: a Heap value is only a window (region,
// base offset) onto state the bytes already hold, so any number of Heap
// values may be attached to the same region across host calls as long as
// only one is used at a time.
//
// Chunk references are offsets into the region's 32-bit address space.
// Offset 0 is the null pointer, which is why the heap base is never 0.
// Payload sizes are rounded up to 8 bytes and payloads stay 8-byte
// aligned throughout.
//
// Allocation failure is not an error value: the arena is fixed, nothing
// can be freed by the allocator itself, so Alloc panics with
// ErrOutOfMemory. Inside a host function the panic becomes a trap that
// aborts the guest call.
package heap
