package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/nebulark/wasm-substrate/abi"
	"github.com/nebulark/wasm-substrate/heap"
	"github.com/nebulark/wasm-substrate/wideint"
)

// nullInitial is the vector_new sentinel requesting zero-fill. A null
// pointer is a valid address in wasm memory, so the compiler passes -1
// to mean "no initializer" instead.
const nullInitial = 0xFFFFFFFF

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// envFunc describes one host function of the env module.
type envFunc struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
	fn      api.GoModuleFunc
}

// instantiateEnv builds and instantiates the env host module. Every
// function operates on the calling module's memory, so a single env
// instance serves all guests of the runtime. Host panics, including
// allocator exhaustion and out-of-range accesses, surface as traps in
// the calling guest.
func instantiateEnv(ctx context.Context, r wazero.Runtime, heapBase uint32) (api.Module, error) {
	builder := r.NewHostModuleBuilder("env")
	for _, f := range envFuncs(heapBase) {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			Export(f.name)
	}
	return builder.Instantiate(ctx)
}

func envFuncs(heapBase uint32) []envFunc {
	return []envFunc{
		{
			// __memset8(dest, val, length) fills length 8-byte words.
			name:   "__memset8",
			params: []api.ValueType{i32, i64, i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				dst := span(guestMem(mod), uint32(stack[0]), uint32(stack[2])*8)
				for o := 0; o < len(dst); o += 8 {
					binary.LittleEndian.PutUint64(dst[o:], stack[1])
				}
			},
		},
		{
			// __memset(dest, val, length) fills length bytes.
			name:   "__memset",
			params: []api.ValueType{i32, i32, i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				dst := span(guestMem(mod), uint32(stack[0]), uint32(stack[2]))
				val := byte(stack[1])
				for o := range dst {
					dst[o] = val
				}
			},
		},
		{
			// __memcpy8(dest, src, length) copies length 8-byte words.
			name:   "__memcpy8",
			params: []api.ValueType{i32, i32, i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				view := guestMem(mod)
				n := uint32(stack[2]) * 8
				copy(span(view, uint32(stack[0]), n), span(view, uint32(stack[1]), n))
			},
		},
		{
			// __memcpy(dest, src, length) copies length bytes.
			name:   "__memcpy",
			params: []api.ValueType{i32, i32, i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				view := guestMem(mod)
				n := uint32(stack[2])
				copy(span(view, uint32(stack[0]), n), span(view, uint32(stack[1]), n))
			},
		},
		{
			// __bzero8(dest, length) clears length 8-byte words.
			name:   "__bzero8",
			params: []api.ValueType{i32, i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				dst := span(guestMem(mod), uint32(stack[0]), uint32(stack[1])*8)
				clear(dst)
			},
		},
		{
			// __bset8(dest, length) sets length 8-byte words to all ones.
			name:   "__bset8",
			params: []api.ValueType{i32, i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				dst := span(guestMem(mod), uint32(stack[0]), uint32(stack[1])*8)
				for o := range dst {
					dst[o] = 0xFF
				}
			},
		},
		{
			// __init_heap() lays the arena over current memory.
			name: "__init_heap",
			fn: func(_ context.Context, mod api.Module, _ []uint64) {
				view := guestMem(mod)
				heap.New(view, heapBase)
				debugf("env: heap initialized, base=%#x arena=%d bytes", heapBase, uint32(len(view))-heapBase)
			},
		},
		{
			// __free(ptr) releases an allocation; free of null is a no-op.
			name:   "__free",
			params: []api.ValueType{i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				guestHeap(mod, heapBase).Free(uint32(stack[0]))
				debugf("env: free(%#x)", uint32(stack[0]))
			},
		},
		{
			// __malloc(size) returns a payload offset or traps when the
			// arena is exhausted.
			name:    "__malloc",
			params:  []api.ValueType{i32},
			results: []api.ValueType{i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				size := uint32(stack[0])
				ptr := guestHeap(mod, heapBase).Alloc(size)
				debugf("env: malloc(%d) = %#x", size, ptr)
				stack[0] = uint64(ptr)
			},
		},
		{
			// __realloc(ptr, size) resizes an allocation.
			name:    "__realloc",
			params:  []api.ValueType{i32, i32},
			results: []api.ValueType{i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				ptr, size := uint32(stack[0]), uint32(stack[1])
				moved := guestHeap(mod, heapBase).Realloc(ptr, size)
				debugf("env: realloc(%#x, %d) = %#x", ptr, size, moved)
				stack[0] = uint64(moved)
			},
		},
		{
			// __be32toleN(from, to, length) extracts the low length bytes
			// of a 32-byte big-endian word, little-endian.
			name:   "__be32toleN",
			params: []api.ValueType{i32, i32, i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				view := guestMem(mod)
				abi.DecodeWord(
					span(view, uint32(stack[1]), uint32(stack[2])),
					span(view, uint32(stack[0]), abi.WordLen),
				)
			},
		},
		{
			// __beNtoleN(from, to, length) reverses length bytes.
			name:   "__beNtoleN",
			params: []api.ValueType{i32, i32, i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				view := guestMem(mod)
				n := uint32(stack[2])
				abi.DecodeBytes(span(view, uint32(stack[1]), n), span(view, uint32(stack[0]), n))
			},
		},
		{
			// __leNtobe32(from, to, length) writes length little-endian
			// bytes into the tail of a 32-byte big-endian word.
			name:   "__leNtobe32",
			params: []api.ValueType{i32, i32, i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				view := guestMem(mod)
				abi.EncodeWord(
					span(view, uint32(stack[1]), abi.WordLen),
					span(view, uint32(stack[0]), uint32(stack[2])),
				)
			},
		},
		{
			// __leNtobeN(from, to, length) reverses length bytes.
			name:   "__leNtobeN",
			params: []api.ValueType{i32, i32, i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				view := guestMem(mod)
				n := uint32(stack[2])
				abi.EncodeBytes(span(view, uint32(stack[1]), n), span(view, uint32(stack[0]), n))
			},
		},
		{
			// __mul32(left, right, out, len) multiplies little-endian
			// 32-bit limb arrays, truncating to len limbs.
			name:   "__mul32",
			params: []api.ValueType{i32, i32, i32, i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				view := guestMem(mod)
				n := uint32(stack[3])
				left := readLimbs(view, uint32(stack[0]), n)
				right := readLimbs(view, uint32(stack[1]), n)
				out := make([]uint32, n)
				wideint.Mul(out, left, right)
				writeLimbs(view, uint32(stack[2]), out)
			},
		},
		{
			// __ashlti3(lo, hi, shift) shifts a 128-bit value left.
			name:    "__ashlti3",
			params:  []api.ValueType{i64, i64, i32},
			results: []api.ValueType{i64, i64},
			fn: func(_ context.Context, _ api.Module, stack []uint64) {
				v := wideint.Uint128{Lo: stack[0], Hi: stack[1]}.Lsh(uint(uint32(stack[2])))
				stack[0], stack[1] = v.Lo, v.Hi
			},
		},
		{
			// __lshrti3(lo, hi, shift) shifts a 128-bit value right,
			// filling with zeros.
			name:    "__lshrti3",
			params:  []api.ValueType{i64, i64, i32},
			results: []api.ValueType{i64, i64},
			fn: func(_ context.Context, _ api.Module, stack []uint64) {
				v := wideint.Uint128{Lo: stack[0], Hi: stack[1]}.Rsh(uint(uint32(stack[2])))
				stack[0], stack[1] = v.Lo, v.Hi
			},
		},
		{
			// __u256ptohex(v, str) renders a little-endian uint256 as 64
			// hex characters and returns the buffer.
			name:    "__u256ptohex",
			params:  []api.ValueType{i32, i32},
			results: []api.ValueType{i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				view := guestMem(mod)
				v, str := uint32(stack[0]), uint32(stack[1])
				abi.PutLEHex(span(view, str, 2*abi.WordLen), span(view, v, abi.WordLen))
				stack[0] = uint64(str)
			},
		},
		{
			// vector_new(members, size, initial) allocates a vector,
			// copying the initializer or zero-filling on the sentinel.
			name:    "vector_new",
			params:  []api.ValueType{i32, i32, i32},
			results: []api.ValueType{i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				view := guestMem(mod)
				h := heap.Attach(view, heapBase)
				members, size := uint32(stack[0]), uint32(stack[1])
				var initial []byte
				if ptr := uint32(stack[2]); ptr != nullInitial {
					initial = span(view, ptr, members*size)
				}
				stack[0] = uint64(h.NewVector(members, size, initial))
			},
		},
		{
			// memcmp(left, left_len, right, right_len) returns 1 when the
			// ranges hold equal bytes, 0 otherwise.
			name:    "memcmp",
			params:  []api.ValueType{i32, i32, i32, i32},
			results: []api.ValueType{i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				view := guestMem(mod)
				left := span(view, uint32(stack[0]), uint32(stack[1]))
				right := span(view, uint32(stack[2]), uint32(stack[3]))
				stack[0] = 0
				if bytes.Equal(left, right) {
					stack[0] = 1
				}
			},
		},
		{
			// concat(left, left_len, right, right_len) allocates a vector
			// holding the two byte ranges back to back.
			name:    "concat",
			params:  []api.ValueType{i32, i32, i32, i32},
			results: []api.ValueType{i32},
			fn: func(_ context.Context, mod api.Module, stack []uint64) {
				view := guestMem(mod)
				h := heap.Attach(view, heapBase)
				left := span(view, uint32(stack[0]), uint32(stack[1]))
				right := span(view, uint32(stack[2]), uint32(stack[3]))
				stack[0] = uint64(h.Concat(left, right))
			},
		},
	}
}

// guestMem returns the full linear memory of the calling module.
func guestMem(mod api.Module) []byte {
	mem := mod.Memory()
	if mem == nil {
		panic(fmt.Errorf("env: calling module has no memory"))
	}
	view, ok := mem.Read(0, mem.Size())
	if !ok {
		panic(fmt.Errorf("env: memory not readable"))
	}
	return view
}

// guestHeap attaches to the calling module's arena.
func guestHeap(mod api.Module, base uint32) *heap.Heap {
	return heap.Attach(guestMem(mod), base)
}

// span slices n bytes of guest memory at ptr, trapping when the range
// falls outside memory.
func span(view []byte, ptr, n uint32) []byte {
	end := uint64(ptr) + uint64(n)
	if end > uint64(len(view)) {
		panic(fmt.Errorf("env: access out of bounds: ptr=%#x length=%d", ptr, n))
	}
	return view[ptr:end:end]
}

func readLimbs(view []byte, ptr, n uint32) []uint32 {
	raw := span(view, ptr, n*4)
	limbs := make([]uint32, n)
	for i := range limbs {
		limbs[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return limbs
}

func writeLimbs(view []byte, ptr uint32, limbs []uint32) {
	raw := span(view, ptr, uint32(len(limbs))*4)
	for i, limb := range limbs {
		binary.LittleEndian.PutUint32(raw[4*i:], limb)
	}
}
