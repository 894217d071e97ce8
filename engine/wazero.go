package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmsubstrate "github.com/nebulark/wasm-substrate"
	"github.com/nebulark/wasm-substrate/heap"
)

// DefaultHeapBase is the linear memory offset where the allocator arena
// starts. Contract code, globals, and the shadow stack live below it;
// everything from the base to the end of memory belongs to the heap.
const DefaultHeapBase uint32 = 0x10000

// WazeroEngine implements the substrate on top of the wazero runtime.
type WazeroEngine struct {
	runtime     wazero.Runtime
	heapBase    uint32
	envInitMu   sync.Mutex
	envInitDone atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// HeapBase overrides where the allocator arena starts in guest
	// memory. 0 means DefaultHeapBase. Must be 8-byte aligned and
	// nonzero, since offset 0 is the allocator's null.
	HeapBase uint32
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	heapBase := DefaultHeapBase

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.HeapBase > 0 {
			if cfg.HeapBase%8 != 0 {
				return nil, fmt.Errorf("heap base %#x not 8-byte aligned", cfg.HeapBase)
			}
			heapBase = cfg.HeapBase
		}
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &WazeroEngine{runtime: runtime, heapBase: heapBase}, nil
}

// HeapBase returns the arena start offset instances of this engine use.
func (e *WazeroEngine) HeapBase() uint32 {
	return e.heapBase
}

// LoadModule compiles a contract module binary.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}

	return &WazeroModule{
		engine:   e,
		runtime:  e.runtime,
		compiled: compiled,
	}, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// InitEnv instantiates the env host module singleton for this engine's
// runtime. Safe for concurrent calls from multiple modules sharing the
// same engine.
func (e *WazeroEngine) InitEnv(ctx context.Context) error {
	if e.envInitDone.Load() {
		return nil
	}

	e.envInitMu.Lock()
	defer e.envInitMu.Unlock()

	if e.envInitDone.Load() {
		return nil
	}

	if e.runtime.Module("env") != nil {
		e.envInitDone.Store(true)
		return nil
	}

	_, err := instantiateEnv(ctx, e.runtime, e.heapBase)
	if err != nil {
		// If another path initialized env concurrently in the same
		// runtime, treat it as success and mark done.
		if e.runtime.Module("env") == nil {
			return fmt.Errorf("instantiate env: %w", err)
		}
	}

	e.envInitDone.Store(true)
	return nil
}

// WazeroModule is a compiled contract module
type WazeroModule struct {
	engine   *WazeroEngine
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	Name string
}

func (m *WazeroModule) Instantiate(ctx context.Context) (*WazeroInstance, error) {
	return m.InstantiateWithConfig(ctx, nil)
}

// InstantiateWithConfig creates an instance with custom configuration.
// The env host module is initialized on first use, and the module's
// start function, if any, runs before this returns.
func (m *WazeroModule) InstantiateWithConfig(ctx context.Context, cfg *InstanceConfig) (*WazeroInstance, error) {
	if err := m.engine.InitEnv(ctx); err != nil {
		return nil, err
	}

	modConfig := wazero.NewModuleConfig()
	if cfg != nil && cfg.Name != "" {
		modConfig = modConfig.WithName(cfg.Name)
	} else {
		modConfig = modConfig.WithName("") // anonymous for parallel instantiation
	}

	instance, err := m.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}

	wazInst := &WazeroInstance{
		module:    m,
		instance:  instance,
		heapBase:  m.engine.heapBase,
		funcCache: make(map[string]api.Function),
		stackBuf:  make([]uint64, 16), // pre-allocate stack buffer
	}

	// Cache memory
	if mem := instance.Memory(); mem != nil {
		wazInst.memory = &WazeroMemory{mem: mem}
	}

	debugf("instantiated module %q", instance.Name())
	return wazInst, nil
}

func (m *WazeroModule) Close(ctx context.Context) error {
	if m.compiled == nil {
		return nil
	}
	return m.compiled.Close(ctx)
}

// ExportNames returns the names of all exported functions, sorted.
func (m *WazeroModule) ExportNames() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExportedFunctionSignatures returns a human-readable signature for each
// exported function, keyed by export name.
func (m *WazeroModule) ExportedFunctionSignatures() map[string]string {
	defs := m.compiled.ExportedFunctions()
	sigs := make(map[string]string, len(defs))
	for name, def := range defs {
		sigs[name] = formatSignature(name, def.ParamTypes(), def.ResultTypes())
	}
	return sigs
}

func formatSignature(name string, params, results []api.ValueType) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(api.ValueTypeName(p))
	}
	sb.WriteByte(')')
	if len(results) > 0 {
		sb.WriteString(" -> (")
		for i, r := range results {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(api.ValueTypeName(r))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// WazeroInstance is a running contract instance.
// It is NOT safe for concurrent use from multiple goroutines.
// Each goroutine should have its own Instance, or access must be synchronized externally.
type WazeroInstance struct {
	module    *WazeroModule
	instance  api.Module
	memory    *WazeroMemory
	heapBase  uint32
	funcCache map[string]api.Function
	stackBuf  []uint64
	cacheMu   sync.RWMutex
}

// getExportedFunction returns an exported function, caching lookups.
func (i *WazeroInstance) getExportedFunction(name string) api.Function {
	i.cacheMu.RLock()
	fn, ok := i.funcCache[name]
	i.cacheMu.RUnlock()
	if ok {
		return fn
	}

	fn = i.instance.ExportedFunction(name)
	if fn != nil {
		i.cacheMu.Lock()
		i.funcCache[name] = fn
		i.cacheMu.Unlock()
	}
	return fn
}

// GetExportedFunction returns an exported function by name (public wrapper).
func (i *WazeroInstance) GetExportedFunction(name string) api.Function {
	return i.getExportedFunction(name)
}

// Call invokes an exported function with raw wasm arguments. A trap in
// the guest, including heap exhaustion, comes back as an error.
func (i *WazeroInstance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := i.getExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("function %q not found", name)
	}

	def := fn.Definition()
	nParams := len(def.ParamTypes())
	nResults := len(def.ResultTypes())
	if len(args) != nParams {
		return nil, fmt.Errorf("function %q takes %d arguments, got %d", name, nParams, len(args))
	}

	n := nParams
	if nResults > n {
		n = nResults
	}
	stack := i.stackBuf
	if n > len(stack) {
		stack = make([]uint64, n)
	}
	copy(stack, args)

	if err := fn.CallWithStack(ctx, stack[:n]); err != nil {
		return nil, err
	}

	results := make([]uint64, nResults)
	copy(results, stack)
	return results, nil
}

// MemorySize returns the current linear memory size in bytes, or 0 if no memory.
func (i *WazeroInstance) MemorySize() uint32 {
	if i.memory == nil {
		return 0
	}
	return i.memory.Size()
}

// Memory returns the instance memory, or nil if the module declares none.
func (i *WazeroInstance) Memory() *WazeroMemory {
	return i.memory
}

// HeapBase returns the arena start offset for this instance.
func (i *WazeroInstance) HeapBase() uint32 {
	return i.heapBase
}

// InitHeap lays out the allocator arena over the instance memory,
// from the heap base to the current end of memory. Modules that call
// __init_heap from their start function do not need this.
func (i *WazeroInstance) InitHeap() error {
	view, err := i.memView()
	if err != nil {
		return err
	}
	if uint64(len(view)) < uint64(i.heapBase)+heap.HeaderSize+8 {
		return fmt.Errorf("memory too small for arena: %d bytes, base %#x", len(view), i.heapBase)
	}
	heap.New(view, i.heapBase)
	debugf("heap initialized: base=%#x arena=%d bytes", i.heapBase, uint32(len(view))-i.heapBase)
	return nil
}

// Heap returns an allocator handle over the instance memory. The handle
// aliases the current memory and is invalidated when the guest grows it;
// take a fresh handle after any call that may grow memory.
func (i *WazeroInstance) Heap() (*heap.Heap, error) {
	view, err := i.memView()
	if err != nil {
		return nil, err
	}
	if uint64(len(view)) < uint64(i.heapBase)+heap.HeaderSize+8 {
		return nil, fmt.Errorf("memory too small for arena: %d bytes, base %#x", len(view), i.heapBase)
	}
	return heap.Attach(view, i.heapBase), nil
}

func (i *WazeroInstance) memView() ([]byte, error) {
	if i.memory == nil {
		return nil, fmt.Errorf("module has no memory")
	}
	view, ok := i.memory.mem.Read(0, i.memory.mem.Size())
	if !ok {
		return nil, fmt.Errorf("memory not readable")
	}
	return view, nil
}

func (i *WazeroInstance) Close(ctx context.Context) error {
	var firstErr error
	if i.instance != nil {
		if err := i.instance.Close(ctx); err != nil {
			firstErr = err
		}
		i.instance = nil
	}
	// Clear references to help GC
	i.funcCache = nil
	i.memory = nil
	i.stackBuf = nil
	if firstErr != nil {
		Logger().Warn("instance close failed", zap.Error(firstErr))
	}
	return firstErr
}

// WazeroMemory wraps wazero memory to implement wasmsubstrate.Memory
type WazeroMemory struct {
	mem api.Memory
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	ok := m.mem.Write(offset, data)
	if !ok {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *WazeroMemory) ReadU8(offset uint32) (uint8, error) {
	data, err := m.Read(offset, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (m *WazeroMemory) ReadU16(offset uint32) (uint16, error) {
	data, err := m.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return uint16(data[0]) | uint16(data[1])<<8, nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds")
	}
	return val, nil
}

func (m *WazeroMemory) ReadU64(offset uint32) (uint64, error) {
	val, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds")
	}
	return val, nil
}

func (m *WazeroMemory) WriteU8(offset uint32, value uint8) error {
	return m.Write(offset, []byte{value})
}

func (m *WazeroMemory) WriteU16(offset uint32, value uint16) error {
	return m.Write(offset, []byte{byte(value), byte(value >> 8)})
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	ok := m.mem.WriteUint32Le(offset, value)
	if !ok {
		return fmt.Errorf("write out of bounds")
	}
	return nil
}

func (m *WazeroMemory) WriteU64(offset uint32, value uint64) error {
	ok := m.mem.WriteUint64Le(offset, value)
	if !ok {
		return fmt.Errorf("write out of bounds")
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// Compile-time check that WazeroMemory implements wasmsubstrate.Memory and
// MemorySizer, and that the heap satisfies the root Allocator seam.
var _ wasmsubstrate.Memory = (*WazeroMemory)(nil)
var _ wasmsubstrate.MemorySizer = (*WazeroMemory)(nil)
var _ wasmsubstrate.Allocator = (*heap.Heap)(nil)
