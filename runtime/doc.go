// Package runtime provides the high-level API for running contract
// modules against the substrate.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Load a contract module
//	mod, err := rt.LoadModule(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create an instance; the module's start section typically runs
//	// __init_heap, otherwise call inst.InitHeap() yourself
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	// Call exported functions with raw wasm arguments
//	results, err := inst.Call(ctx, "balance_of", uint64(ptr))
//
// # Staging Data
//
// Contract calls pass offsets into guest memory. The instance exposes
// the guest arena for host-side staging:
//
//	ptr, err := inst.Alloc(32)              // carve a block
//	err = inst.WriteWord(ptr, amount)       // store a uint256
//	vec, err := inst.NewByteVector(payload) // build a byte vector
//	data, err := inst.VectorBytes(resultPtr)
//
// All staging helpers return structured errors instead of panicking;
// arena exhaustion surfaces as an exhausted error in the memory phase.
//
// # Errors
//
// Every failure is an *errors.Error carrying a phase (load, run,
// memory) and a kind. Guest traps, including out-of-memory aborts
// raised by __malloc, come back from Call as trap errors wrapping the
// engine's cause.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instance is NOT
// thread-safe: each goroutine should have its own Instance, or access
// must be synchronized externally.
//
// # Resource Management
//
// Always close instances when done, and the runtime last. Linear
// memory can only grow, never shrink; pool and recycle instances in
// long-running services.
package runtime
