package runtime

import (
	"bytes"
	"context"
	"testing"

	"github.com/holiman/uint256"

	"github.com/nebulark/wasm-substrate/errors"
	"github.com/nebulark/wasm-substrate/heap"
)

func TestCall(t *testing.T) {
	inst := newTestInstance(t, buildContractModule())
	ctx := context.Background()

	t.Run("no args", func(t *testing.T) {
		res, err := inst.Call(ctx, "answer")
		if err != nil {
			t.Fatalf("answer: %v", err)
		}
		if len(res) != 1 || res[0] != 42 {
			t.Errorf("answer = %v, want [42]", res)
		}
	})

	t.Run("with args", func(t *testing.T) {
		res, err := inst.Call(ctx, "add", 40, 2)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if res[0] != 42 {
			t.Errorf("add(40, 2) = %d, want 42", res[0])
		}
	})

	t.Run("unknown function", func(t *testing.T) {
		_, err := inst.Call(ctx, "no_such_function")
		if err == nil {
			t.Fatal("expected error calling unknown function, got nil")
		}
		if !errorMatches(err, errors.PhaseRun, errors.KindNotFound) {
			t.Errorf("error = %v, want run/not_found", err)
		}
	})

	t.Run("guest trap", func(t *testing.T) {
		_, err := inst.Call(ctx, "boom")
		if err == nil {
			t.Fatal("expected trap, got nil")
		}
		if !errorMatches(err, errors.PhaseRun, errors.KindTrap) {
			t.Errorf("error = %v, want run/trap", err)
		}
	})

	t.Run("argument count mismatch", func(t *testing.T) {
		if _, err := inst.Call(ctx, "add", 1); err == nil {
			t.Fatal("expected error for wrong argument count, got nil")
		}
	})
}

func TestHostHeapLifecycle(t *testing.T) {
	inst := newTestInstance(t, buildArenaModule())

	if err := inst.InitHeap(); err != nil {
		t.Fatalf("InitHeap: %v", err)
	}

	// The first allocation sits right behind the base chunk header.
	ptr, err := inst.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if want := inst.HeapBase() + heap.HeaderSize; ptr != want {
		t.Errorf("first Alloc = %#x, want %#x", ptr, want)
	}

	data := []byte("the quick brown fox")
	if err := inst.WriteBytes(ptr, data); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	got, err := inst.ReadBytes(ptr, uint32(len(data)))
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadBytes = %q, want %q", got, data)
	}

	// Growing the only allocation extends into the trailing free chunk
	// without moving.
	moved, err := inst.Realloc(ptr, 128)
	if err != nil {
		t.Fatalf("Realloc: %v", err)
	}
	if moved != ptr {
		t.Errorf("Realloc moved %#x to %#x, want in place", ptr, moved)
	}

	if err := inst.Free(ptr); err != nil {
		t.Fatalf("Free: %v", err)
	}

	// With the arena whole again, first-fit hands back the same offset.
	again, err := inst.Alloc(32)
	if err != nil {
		t.Fatalf("Alloc after Free: %v", err)
	}
	if again != ptr {
		t.Errorf("Alloc after Free = %#x, want %#x", again, ptr)
	}

	if err := inst.CheckHeap(); err != nil {
		t.Errorf("CheckHeap: %v", err)
	}
}

func TestAllocExhausted(t *testing.T) {
	inst := newTestInstance(t, buildArenaModule())

	if err := inst.InitHeap(); err != nil {
		t.Fatalf("InitHeap: %v", err)
	}

	// Two pages minus the heap base cannot hold ten megabytes.
	_, err := inst.Alloc(10 << 20)
	if err == nil {
		t.Fatal("expected exhaustion error, got nil")
	}
	if !errorMatches(err, errors.PhaseMemory, errors.KindExhausted) {
		t.Errorf("error = %v, want memory/exhausted", err)
	}

	// The failed request leaves the arena intact.
	if err := inst.CheckHeap(); err != nil {
		t.Errorf("CheckHeap after failed Alloc: %v", err)
	}
}

func TestByteVector(t *testing.T) {
	inst := newTestInstance(t, buildArenaModule())

	if err := inst.InitHeap(); err != nil {
		t.Fatalf("InitHeap: %v", err)
	}

	data := []byte("hello, substrate")
	ptr, err := inst.NewByteVector(data)
	if err != nil {
		t.Fatalf("NewByteVector: %v", err)
	}

	got, err := inst.VectorBytes(ptr)
	if err != nil {
		t.Fatalf("VectorBytes: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("VectorBytes = %q, want %q", got, data)
	}

	t.Run("empty", func(t *testing.T) {
		ptr, err := inst.NewByteVector(nil)
		if err != nil {
			t.Fatalf("NewByteVector(nil): %v", err)
		}
		got, err := inst.VectorBytes(ptr)
		if err != nil {
			t.Fatalf("VectorBytes: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("VectorBytes = %q, want empty", got)
		}
	})

	t.Run("out of bounds", func(t *testing.T) {
		_, err := inst.VectorBytes(inst.MemorySize())
		if err == nil {
			t.Fatal("expected error for vector past memory end, got nil")
		}
		if !errorMatches(err, errors.PhaseMemory, errors.KindOutOfBounds) {
			t.Errorf("error = %v, want memory/out_of_bounds", err)
		}
	})
}

func TestWords(t *testing.T) {
	inst := newTestInstance(t, buildArenaModule())

	if err := inst.InitHeap(); err != nil {
		t.Fatalf("InitHeap: %v", err)
	}

	ptr, err := inst.Alloc(32)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	v := uint256.MustFromHex("0x0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")
	if err := inst.WriteWord(ptr, v); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}

	got, err := inst.ReadWord(ptr)
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if !got.Eq(v) {
		t.Errorf("ReadWord = %s, want %s", got.Hex(), v.Hex())
	}

	// Contract memory is little-endian: the least significant byte is
	// stored first.
	raw, err := inst.ReadBytes(ptr, 32)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if raw[0] != 0x20 || raw[31] != 0x01 {
		t.Errorf("word bytes = [%#02x ... %#02x], want [0x20 ... 0x01]", raw[0], raw[31])
	}
}

func TestMemoryBounds(t *testing.T) {
	inst := newTestInstance(t, buildArenaModule())
	size := inst.MemorySize()

	if size != 2*65536 {
		t.Fatalf("MemorySize = %d, want %d", size, 2*65536)
	}

	if _, err := inst.ReadBytes(size-4, 8); err == nil {
		t.Error("expected error reading past memory end, got nil")
	} else if !errorMatches(err, errors.PhaseMemory, errors.KindOutOfBounds) {
		t.Errorf("read error = %v, want memory/out_of_bounds", err)
	}

	if err := inst.WriteBytes(size-4, make([]byte, 8)); err == nil {
		t.Error("expected error writing past memory end, got nil")
	} else if !errorMatches(err, errors.PhaseMemory, errors.KindOutOfBounds) {
		t.Errorf("write error = %v, want memory/out_of_bounds", err)
	}
}

func TestNoMemoryModule(t *testing.T) {
	inst := newTestInstance(t, buildNoMemoryModule())
	ctx := context.Background()

	if inst.Memory() != nil {
		t.Error("Memory() should be nil for a module without memory")
	}
	if size := inst.MemorySize(); size != 0 {
		t.Errorf("MemorySize = %d, want 0", size)
	}

	if _, err := inst.Call(ctx, "nop"); err != nil {
		t.Errorf("nop: %v", err)
	}

	if err := inst.InitHeap(); err == nil {
		t.Error("expected InitHeap to fail without memory, got nil")
	}
	if _, err := inst.ReadBytes(0, 1); err == nil {
		t.Error("expected ReadBytes to fail without memory, got nil")
	} else if !errorMatches(err, errors.PhaseMemory, errors.KindNotInitialized) {
		t.Errorf("error = %v, want memory/not_initialized", err)
	}
	if err := inst.WriteBytes(0, []byte{1}); err == nil {
		t.Error("expected WriteBytes to fail without memory, got nil")
	}
}

// TestSharedArena verifies the host and the guest carve from the same
// arena: the guest's start section lays it out, the guest's __malloc
// and the host's Alloc see each other's chunks.
func TestSharedArena(t *testing.T) {
	inst := newTestInstance(t, buildContractModule())
	ctx := context.Background()

	res, err := inst.Call(ctx, "malloc", 100)
	if err != nil {
		t.Fatalf("guest malloc: %v", err)
	}
	guestPtr := uint32(res[0])
	if want := inst.HeapBase() + heap.HeaderSize; guestPtr != want {
		t.Errorf("guest malloc = %#x, want %#x", guestPtr, want)
	}

	hostPtr, err := inst.Alloc(50)
	if err != nil {
		t.Fatalf("host Alloc: %v", err)
	}
	if hostPtr <= guestPtr {
		t.Errorf("host Alloc = %#x, want offset above guest block %#x", hostPtr, guestPtr)
	}

	stats, err := inst.HeapStats()
	if err != nil {
		t.Fatalf("HeapStats: %v", err)
	}
	if stats.AllocatedChunks != 2 {
		t.Errorf("AllocatedChunks = %d, want 2", stats.AllocatedChunks)
	}

	// The host can free a guest allocation.
	if err := inst.Free(guestPtr); err != nil {
		t.Fatalf("Free guest block: %v", err)
	}
	stats, err = inst.HeapStats()
	if err != nil {
		t.Fatalf("HeapStats: %v", err)
	}
	if stats.AllocatedChunks != 1 {
		t.Errorf("AllocatedChunks after Free = %d, want 1", stats.AllocatedChunks)
	}

	if err := inst.CheckHeap(); err != nil {
		t.Errorf("CheckHeap: %v", err)
	}
}

func TestHeapStatsFreshArena(t *testing.T) {
	inst := newTestInstance(t, buildArenaModule())

	if err := inst.InitHeap(); err != nil {
		t.Fatalf("InitHeap: %v", err)
	}

	stats, err := inst.HeapStats()
	if err != nil {
		t.Fatalf("HeapStats: %v", err)
	}
	if stats.Chunks != 1 || stats.FreeChunks != 1 || stats.AllocatedChunks != 0 {
		t.Errorf("fresh arena stats = %+v, want one free chunk", stats)
	}
	if stats.AllocatedBytes != 0 {
		t.Errorf("AllocatedBytes = %d, want 0", stats.AllocatedBytes)
	}
	if stats.LargestFree != stats.FreeBytes {
		t.Errorf("LargestFree = %d, want %d (single chunk)", stats.LargestFree, stats.FreeBytes)
	}
}
