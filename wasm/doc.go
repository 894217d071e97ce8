// Package wasm emits WebAssembly binary modules.
//
// The builder covers the small structural subset contract modules need:
// function imports from the host, defined functions with flat bodies,
// one linear memory, exports, an optional start function, and active
// data segments. Sections come out in the order the binary format
// requires, and function signatures are interned so identical ones
// share a type entry.
//
// A module that imports from the host and exposes one wrapper:
//
//	b := wasm.NewModuleBuilder()
//	malloc := b.ImportFunc("env", "__malloc",
//	    []wasm.ValType{wasm.I32}, []wasm.ValType{wasm.I32})
//	b.Memory(2, 0).ExportMemory("memory")
//	b.Func("alloc", []wasm.ValType{wasm.I32}, []wasm.ValType{wasm.I32},
//	    wasm.NewBody().LocalGet(0).Call(malloc).End())
//	bin := b.Build()
//
// This is an encoder only. Nothing here parses or validates modules;
// the produced bytes go straight to the engine's compiler, which
// rejects malformed input.
package wasm
