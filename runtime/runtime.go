package runtime

import (
	"context"

	"github.com/nebulark/wasm-substrate/engine"
	"github.com/nebulark/wasm-substrate/errors"
)

type Runtime struct {
	engine *engine.WazeroEngine
}

// Config holds runtime creation options.
type Config struct {
	// MemoryLimitPages caps guest memory in 64 KiB pages. 0 means the
	// engine default.
	MemoryLimitPages uint32

	// HeapBase overrides where the allocator arena starts in guest
	// memory. 0 means the engine default of 0x10000. Must be nonzero
	// and 8-byte aligned when set.
	HeapBase uint32
}

func New(ctx context.Context) (*Runtime, error) {
	return NewWithConfig(ctx, nil)
}

func NewWithConfig(ctx context.Context, cfg *Config) (*Runtime, error) {
	var engCfg *engine.Config
	if cfg != nil {
		engCfg = &engine.Config{
			MemoryLimitPages: cfg.MemoryLimitPages,
			HeapBase:         cfg.HeapBase,
		}
	}

	eng, err := engine.NewWazeroEngineWithConfig(ctx, engCfg)
	if err != nil {
		return nil, errors.Load("create engine", err)
	}

	return &Runtime{engine: eng}, nil
}

// HeapBase returns the guest heap base offset all modules of this
// runtime use.
func (r *Runtime) HeapBase() uint32 {
	return r.engine.HeapBase()
}

// Close releases all runtime resources.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// LoadModule compiles a contract module binary. The module may import
// any of the substrate symbols from the env namespace.
func (r *Runtime) LoadModule(ctx context.Context, wasm []byte) (*Module, error) {
	wazeroModule, err := r.engine.LoadModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("load module", err)
	}

	return &Module{
		runtime:      r,
		wazeroModule: wazeroModule,
	}, nil
}
