package runtime

import (
	"context"

	"github.com/nebulark/wasm-substrate/engine"
	"github.com/nebulark/wasm-substrate/errors"
)

type Module struct {
	runtime      *Runtime
	wazeroModule *engine.WazeroModule
}

func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	return m.InstantiateNamed(ctx, "")
}

// InstantiateNamed creates a named instance. Names must be unique per
// runtime; the empty name instantiates anonymously, which is the right
// choice for parallel instantiation of one module.
func (m *Module) InstantiateNamed(ctx context.Context, name string) (*Instance, error) {
	wazeroInstance, err := m.wazeroModule.InstantiateWithConfig(ctx, &engine.InstanceConfig{Name: name})
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	return &Instance{
		module:         m,
		wazeroInstance: wazeroInstance,
	}, nil
}

type Export struct {
	Name      string
	Signature string
}

// Exports lists the exported functions with human-readable signatures,
// sorted by name.
func (m *Module) Exports() []Export {
	names := m.wazeroModule.ExportNames()
	if names == nil {
		return nil
	}
	sigs := m.wazeroModule.ExportedFunctionSignatures()
	exports := make([]Export, len(names))
	for i, name := range names {
		exports[i] = Export{Name: name, Signature: sigs[name]}
	}
	return exports
}

func (m *Module) Close(ctx context.Context) error {
	return m.wazeroModule.Close(ctx)
}
