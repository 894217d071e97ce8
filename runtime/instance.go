package runtime

import (
	"context"
	"encoding/binary"

	"github.com/holiman/uint256"

	wasmsubstrate "github.com/nebulark/wasm-substrate"
	"github.com/nebulark/wasm-substrate/engine"
	"github.com/nebulark/wasm-substrate/errors"
	"github.com/nebulark/wasm-substrate/heap"
)

// Instance is one running guest with its own linear memory and arena.
// It is NOT safe for concurrent use; each goroutine needs its own
// Instance, or access must be synchronized externally.
type Instance struct {
	module         *Module
	wazeroInstance *engine.WazeroInstance
}

// Call invokes an exported function with raw wasm arguments. Guest
// traps, including arena exhaustion raised by __malloc, come back as
// trap errors wrapping the engine's cause.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if i.wazeroInstance.GetExportedFunction(name) == nil {
		return nil, errors.NotFound(errors.PhaseRun, "function", name)
	}
	results, err := i.wazeroInstance.Call(ctx, name, args...)
	if err != nil {
		return nil, errors.Trap(name, err)
	}
	return results, nil
}

// Memory returns the guest linear memory, or nil when the module
// declares none.
func (i *Instance) Memory() wasmsubstrate.Memory {
	mem := i.wazeroInstance.Memory()
	if mem == nil {
		return nil
	}
	return mem
}

// MemorySize returns the current guest memory size in bytes.
func (i *Instance) MemorySize() uint32 {
	return i.wazeroInstance.MemorySize()
}

// HeapBase returns the arena start offset in guest memory.
func (i *Instance) HeapBase() uint32 {
	return i.wazeroInstance.HeapBase()
}

// InitHeap lays the allocator arena over the instance memory. Guests
// that run __init_heap from their start section do not need it.
func (i *Instance) InitHeap() error {
	if err := i.wazeroInstance.InitHeap(); err != nil {
		return errors.Wrap(errors.PhaseMemory, errors.KindInvalidInput, err, "init heap")
	}
	return nil
}

// Heap returns a host-side allocator handle over the guest arena. The
// handle aliases current memory and is invalidated when the guest
// grows it; take a fresh handle after any call that may grow memory.
func (i *Instance) Heap() (*heap.Heap, error) {
	h, err := i.wazeroInstance.Heap()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMemory, errors.KindInvalidInput, err, "attach heap")
	}
	return h, nil
}

// Alloc carves size bytes out of the guest arena from the host side,
// for staging call arguments. Exhaustion returns an error rather than
// panicking.
func (i *Instance) Alloc(size uint32) (ptr uint32, err error) {
	h, err := i.Heap()
	if err != nil {
		return 0, err
	}
	defer exhaustionToError(&err, size)
	return h.Alloc(size), nil
}

// Free returns a host- or guest-allocated block to the arena.
func (i *Instance) Free(ptr uint32) error {
	h, err := i.Heap()
	if err != nil {
		return err
	}
	h.Free(ptr)
	return nil
}

// Realloc resizes a live allocation, moving it when it cannot grow in
// place.
func (i *Instance) Realloc(ptr, size uint32) (moved uint32, err error) {
	h, err := i.Heap()
	if err != nil {
		return 0, err
	}
	defer exhaustionToError(&err, size)
	return h.Realloc(ptr, size), nil
}

// NewByteVector allocates a guest byte vector holding data and returns
// its offset, for staging string and bytes arguments.
func (i *Instance) NewByteVector(data []byte) (ptr uint32, err error) {
	h, err := i.Heap()
	if err != nil {
		return 0, err
	}
	defer exhaustionToError(&err, uint32(len(data))+heap.VectorHeaderSize)
	return h.NewVector(uint32(len(data)), 1, data), nil
}

// VectorBytes copies out the contents of the byte vector at ptr.
func (i *Instance) VectorBytes(ptr uint32) ([]byte, error) {
	size := i.wazeroInstance.MemorySize()
	if uint64(ptr)+heap.VectorHeaderSize > uint64(size) {
		return nil, errors.OutOfBounds(errors.PhaseMemory, []string{"vector"}, ptr, size)
	}
	h, err := i.Heap()
	if err != nil {
		return nil, err
	}
	n := h.VectorLen(ptr)
	if uint64(ptr)+heap.VectorHeaderSize+uint64(n) > uint64(size) {
		return nil, errors.OutOfBounds(errors.PhaseMemory, []string{"vector", "data"}, ptr, size)
	}
	data := h.Bytes(ptr+heap.VectorHeaderSize, n)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ReadBytes copies n bytes of guest memory starting at ptr.
func (i *Instance) ReadBytes(ptr, n uint32) ([]byte, error) {
	mem := i.wazeroInstance.Memory()
	if mem == nil {
		return nil, errors.NotInitialized(errors.PhaseMemory, "memory")
	}
	data, err := mem.Read(ptr, n)
	if err != nil {
		return nil, errors.OutOfBounds(errors.PhaseMemory, nil, ptr, mem.Size())
	}
	out := make([]byte, n)
	copy(out, data)
	return out, nil
}

// WriteBytes copies data into guest memory at ptr.
func (i *Instance) WriteBytes(ptr uint32, data []byte) error {
	mem := i.wazeroInstance.Memory()
	if mem == nil {
		return errors.NotInitialized(errors.PhaseMemory, "memory")
	}
	if err := mem.Write(ptr, data); err != nil {
		return errors.OutOfBounds(errors.PhaseMemory, nil, ptr, mem.Size())
	}
	return nil
}

// ReadWord reads the 32-byte little-endian value at ptr as a uint256,
// the in-memory representation contract code uses for wide integers.
func (i *Instance) ReadWord(ptr uint32) (*uint256.Int, error) {
	raw, err := i.ReadBytes(ptr, 32)
	if err != nil {
		return nil, err
	}
	var v uint256.Int
	for limb := 0; limb < 4; limb++ {
		v[limb] = binary.LittleEndian.Uint64(raw[8*limb:])
	}
	return &v, nil
}

// WriteWord stores v at ptr as 32 little-endian bytes.
func (i *Instance) WriteWord(ptr uint32, v *uint256.Int) error {
	var buf [32]byte
	for limb := 0; limb < 4; limb++ {
		binary.LittleEndian.PutUint64(buf[8*limb:], v[limb])
	}
	return i.WriteBytes(ptr, buf[:])
}

// HeapStats snapshots arena occupancy.
func (i *Instance) HeapStats() (heap.Stats, error) {
	h, err := i.Heap()
	if err != nil {
		return heap.Stats{}, err
	}
	return h.Stats(), nil
}

// CheckHeap verifies the arena's structural invariants. Useful after a
// sequence of guest calls when debugging memory corruption.
func (i *Instance) CheckHeap() error {
	h, err := i.Heap()
	if err != nil {
		return err
	}
	if err := h.CheckIntegrity(); err != nil {
		return errors.Wrap(errors.PhaseMemory, errors.KindInvalidData, err, "heap integrity")
	}
	return nil
}

func (i *Instance) Close(ctx context.Context) error {
	return i.wazeroInstance.Close(ctx)
}

// exhaustionToError converts the allocator's out-of-memory panic into
// a structured error; any other panic keeps propagating.
func exhaustionToError(errp *error, size uint32) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok && e == heap.ErrOutOfMemory {
			*errp = errors.Exhausted(errors.PhaseMemory, size)
			return
		}
		panic(r)
	}
}
