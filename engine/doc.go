// Package engine provides the low-level WebAssembly execution layer for
// contract modules.
//
// This package wraps wazero to run freestanding 32-bit contract code
// against the "env" host module: the allocator, wide-integer arithmetic,
// endian conversion, and byte helpers that compiled contracts import
// instead of carrying a libc.
//
// # Architecture
//
// The engine package provides three main types:
//
//	WazeroEngine   - Owns the wazero runtime and the env host module
//	WazeroModule   - A compiled contract module, can create instances
//	WazeroInstance - A running instance with exports and a heap
//
// # Instantiation Flow
//
//  1. WazeroEngine.LoadModule() compiles the module binary
//  2. WazeroModule.Instantiate() resolves env imports and runs the
//     module's start function, if it declares one
//  3. WazeroInstance provides Call for invoking exports and InitHeap
//     for laying out the allocator arena
//
// # The env Host Module
//
// Guest imports resolve against a single env instance per engine. Every
// host function operates on the calling module's memory, so one env
// module serves any number of concurrently instantiated guests:
//
//	__init_heap, __malloc, __free, __realloc   heap management
//	__memset8, __memset, __memcpy8, __memcpy   byte fills and copies
//	__bzero8, __bset8                          word-granular clear/set
//	__be32toleN, __beNtoleN                    ABI word decoding
//	__leNtobe32, __leNtobeN                    ABI word encoding
//	__mul32, __ashlti3, __lshrti3              wide arithmetic
//	__u256ptohex                               storage key formatting
//	vector_new, memcmp, concat                 vector runtime
//
// # Memory Model
//
// The heap arena starts at a fixed offset (DefaultHeapBase, 64 KiB) and
// runs to the end of linear memory. Allocation failure is not an error
// value: the allocator traps the calling guest, matching the abort
// semantics compiled contracts expect.
//
// # Thread Safety
//
// WazeroEngine and WazeroModule are safe for concurrent use.
// WazeroInstance is NOT thread-safe and should be used by a single
// goroutine.
//
// Most users should use the runtime package for a simpler API.
// This package is for advanced use cases requiring direct control.
package engine
