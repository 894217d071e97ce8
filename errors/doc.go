// Package errors provides structured error types for the wasm-substrate library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category), with an optional field path and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
//		Path("heap", "chunk").
//		Detail("chunk header at %#x overruns arena", off).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseRun, "function", "mul256")
//	err := errors.Exhausted(errors.PhaseMemory, size)
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind, so sentinels can be expressed as zero-detail
// errors:
//
//	errors.Is(err, &errors.Error{Phase: errors.PhaseMemory, Kind: errors.KindExhausted})
package errors
