package wasm

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

type funcImport struct {
	module  string
	name    string
	typeIdx uint32
}

type funcDef struct {
	typeIdx uint32
	export  string
	body    *Body
}

type dataSegment struct {
	offset uint32
	init   []byte
}

// ModuleBuilder assembles a wasm module. Declare imports first, then
// memory, functions, and data, and finish with Build. The zero value is
// not usable; start from NewModuleBuilder.
type ModuleBuilder struct {
	types   []FuncType
	imports []funcImport
	funcs   []funcDef

	hasMemory bool
	memMin    uint32
	memMax    uint32
	memExport string

	start *uint32
	data  []dataSegment
}

// NewModuleBuilder returns an empty builder.
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{}
}

// typeIndex interns a signature in the type section.
func (b *ModuleBuilder) typeIndex(ft FuncType) uint32 {
	for i, t := range b.types {
		if sameSignature(t, ft) {
			return uint32(i)
		}
	}
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

func sameSignature(a, b FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

// ImportFunc declares a function import and returns its index in the
// function index space. Imports occupy the low end of that space, so
// they must all be declared before the first defined function.
func (b *ModuleBuilder) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(b.funcs) > 0 {
		panic("wasm: imports must be declared before defined functions")
	}
	b.imports = append(b.imports, funcImport{
		module:  module,
		name:    name,
		typeIdx: b.typeIndex(FuncType{Params: params, Results: results}),
	})
	return uint32(len(b.imports) - 1)
}

// Memory declares the module memory in 64 KiB pages. maxPages 0 leaves
// the memory unbounded.
func (b *ModuleBuilder) Memory(minPages, maxPages uint32) *ModuleBuilder {
	b.hasMemory = true
	b.memMin = minPages
	b.memMax = maxPages
	return b
}

// ExportMemory exports the module memory under name.
func (b *ModuleBuilder) ExportMemory(name string) *ModuleBuilder {
	b.memExport = name
	return b
}

// Func defines a function and returns its index in the function index
// space. An empty export name keeps the function internal. The body
// must end with End.
func (b *ModuleBuilder) Func(export string, params, results []ValType, body *Body) uint32 {
	if body == nil {
		panic("wasm: function body required")
	}
	b.funcs = append(b.funcs, funcDef{
		typeIdx: b.typeIndex(FuncType{Params: params, Results: results}),
		export:  export,
		body:    body,
	})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// Start marks the function at idx as the start function, run once
// during instantiation.
func (b *ModuleBuilder) Start(idx uint32) *ModuleBuilder {
	b.start = &idx
	return b
}

// Data adds an active data segment copied into memory 0 at offset
// during instantiation.
func (b *ModuleBuilder) Data(offset uint32, init []byte) *ModuleBuilder {
	b.data = append(b.data, dataSegment{offset: offset, init: init})
	return b
}

// Build encodes the module to binary.
func (b *ModuleBuilder) Build() []byte {
	var w writer
	w.u32le(Magic)
	w.u32le(Version)

	if len(b.types) > 0 {
		var sec writer
		sec.u32(uint32(len(b.types)))
		for _, ft := range b.types {
			sec.WriteByte(FuncTypeByte)
			sec.u32(uint32(len(ft.Params)))
			for _, p := range ft.Params {
				sec.WriteByte(byte(p))
			}
			sec.u32(uint32(len(ft.Results)))
			for _, r := range ft.Results {
				sec.WriteByte(byte(r))
			}
		}
		w.section(SectionType, &sec)
	}

	if len(b.imports) > 0 {
		var sec writer
		sec.u32(uint32(len(b.imports)))
		for _, imp := range b.imports {
			sec.name(imp.module)
			sec.name(imp.name)
			sec.WriteByte(KindFunc)
			sec.u32(imp.typeIdx)
		}
		w.section(SectionImport, &sec)
	}

	if len(b.funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(b.funcs)))
		for _, fn := range b.funcs {
			sec.u32(fn.typeIdx)
		}
		w.section(SectionFunction, &sec)
	}

	if b.hasMemory {
		var sec writer
		sec.u32(1)
		if b.memMax > 0 {
			sec.WriteByte(LimitsHasMax)
			sec.u32(b.memMin)
			sec.u32(b.memMax)
		} else {
			sec.WriteByte(0)
			sec.u32(b.memMin)
		}
		w.section(SectionMemory, &sec)
	}

	exports := 0
	for _, fn := range b.funcs {
		if fn.export != "" {
			exports++
		}
	}
	if b.memExport != "" {
		exports++
	}
	if exports > 0 {
		var sec writer
		sec.u32(uint32(exports))
		for i, fn := range b.funcs {
			if fn.export == "" {
				continue
			}
			sec.name(fn.export)
			sec.WriteByte(KindFunc)
			sec.u32(uint32(len(b.imports) + i))
		}
		if b.memExport != "" {
			sec.name(b.memExport)
			sec.WriteByte(KindMemory)
			sec.u32(0)
		}
		w.section(SectionExport, &sec)
	}

	if b.start != nil {
		var sec writer
		sec.u32(*b.start)
		w.section(SectionStart, &sec)
	}

	if len(b.funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(b.funcs)))
		for _, fn := range b.funcs {
			code := fn.body.encode()
			sec.u32(uint32(len(code)))
			sec.Write(code)
		}
		w.section(SectionCode, &sec)
	}

	if len(b.data) > 0 {
		var sec writer
		sec.u32(uint32(len(b.data)))
		for _, d := range b.data {
			sec.u32(0) // active segment in memory 0
			sec.WriteByte(OpI32Const)
			sec.s32(int32(d.offset))
			sec.WriteByte(OpEnd)
			sec.u32(uint32(len(d.init)))
			sec.Write(d.init)
		}
		w.section(SectionData, &sec)
	}

	return w.Bytes()
}
