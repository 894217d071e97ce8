package wasm

// Body emits the instruction sequence of one function. Methods append
// in call order and return the receiver for chaining; every body must
// finish with End.
type Body struct {
	locals []localDecl
	code   writer
}

type localDecl struct {
	count uint32
	typ   ValType
}

// NewBody returns an empty function body.
func NewBody() *Body {
	return &Body{}
}

// Locals declares count extra locals of type t, indexed after the
// function parameters.
func (b *Body) Locals(count uint32, t ValType) *Body {
	b.locals = append(b.locals, localDecl{count: count, typ: t})
	return b
}

// I32Const pushes a 32-bit integer constant.
func (b *Body) I32Const(v int32) *Body {
	b.code.WriteByte(OpI32Const)
	b.code.s32(v)
	return b
}

// I64Const pushes a 64-bit integer constant.
func (b *Body) I64Const(v int64) *Body {
	b.code.WriteByte(OpI64Const)
	b.code.s64(v)
	return b
}

// LocalGet pushes local i.
func (b *Body) LocalGet(i uint32) *Body {
	b.code.WriteByte(OpLocalGet)
	b.code.u32(i)
	return b
}

// LocalSet pops into local i.
func (b *Body) LocalSet(i uint32) *Body {
	b.code.WriteByte(OpLocalSet)
	b.code.u32(i)
	return b
}

// LocalTee stores the top of stack into local i without popping it.
func (b *Body) LocalTee(i uint32) *Body {
	b.code.WriteByte(OpLocalTee)
	b.code.u32(i)
	return b
}

// Call invokes the function at idx in the function index space.
func (b *Body) Call(idx uint32) *Body {
	b.code.WriteByte(OpCall)
	b.code.u32(idx)
	return b
}

// I32Load loads an i32 with the given alignment exponent and offset.
func (b *Body) I32Load(align, offset uint32) *Body {
	return b.mem(OpI32Load, align, offset)
}

// I64Load loads an i64.
func (b *Body) I64Load(align, offset uint32) *Body {
	return b.mem(OpI64Load, align, offset)
}

// I32Store stores an i32.
func (b *Body) I32Store(align, offset uint32) *Body {
	return b.mem(OpI32Store, align, offset)
}

// I64Store stores an i64.
func (b *Body) I64Store(align, offset uint32) *Body {
	return b.mem(OpI64Store, align, offset)
}

func (b *Body) mem(op byte, align, offset uint32) *Body {
	b.code.WriteByte(op)
	b.code.u32(align)
	b.code.u32(offset)
	return b
}

// Op appends a bare opcode with no immediates.
func (b *Body) Op(op byte) *Body {
	b.code.WriteByte(op)
	return b
}

// End terminates the body.
func (b *Body) End() *Body {
	b.code.WriteByte(OpEnd)
	return b
}

// encode renders the local declarations followed by the code.
func (b *Body) encode() []byte {
	var w writer
	w.u32(uint32(len(b.locals)))
	for _, l := range b.locals {
		w.u32(l.count)
		w.WriteByte(byte(l.typ))
	}
	w.Write(b.code.Bytes())
	return w.Bytes()
}
