// Package wasmsubstrate provides the runtime substrate beneath compilers
// that emit 32-bit WebAssembly contract code.
//
// Freestanding contract modules have no OS and no libc. Everything they
// need at runtime beyond raw arithmetic lives here: a manual heap over a
// fixed region of linear memory, fixed-width big-integer primitives, and
// conversion between the big-endian ABI encoding and the little-endian
// form WASM works with. Generated code reaches these either through the
// env host module served by the engine, or in-process when embedders
// stage ABI data around guest calls.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmsubstrate/       Root package with core Memory and Allocator interfaces
//	├── runtime/         High-level API for loading and running contract modules
//	├── engine/          Low-level wazero integration and the env host module
//	├── heap/            Chunk allocator over a fixed arena in linear memory
//	├── wideint/         Truncating limb multiply and 128-bit shifts
//	├── abi/             Big-endian ABI words, hex formatting, uint256 bridge
//	├── wasm/            Core WASM binary building primitives
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Load a contract module and stage a call:
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.LoadModule(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	if err := inst.InitHeap(); err != nil {
//	    log.Fatal(err)
//	}
//	ptr, _ := inst.Alloc(32)
//	_ = inst.WriteWord(ptr, uint256.NewInt(42))
//	_, err = inst.Call(ctx, "transfer", uint64(ptr))
//
// # Execution Model
//
// The substrate assumes one logical thread of execution, matching the
// WASM contract environments it targets. Heap state lives entirely in the
// guest's linear memory, so host and guest can interleave allocations
// between calls, but never concurrently. Engine and Module are safe for
// concurrent use; Instance is NOT thread-safe and belongs to a single
// goroutine.
//
// # Memory Model
//
// The heap governs a fixed arena starting at the heap base (0x10000 by
// default, the second 64KiB page). The arena never grows: when no free
// chunk can satisfy an allocation the allocator panics, which surfaces as
// a trap that aborts the guest call. There is no garbage collection and
// no recoverable out-of-memory path.
package wasmsubstrate
