package wasm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
)

// Guest allocator exports every image must provide.
const (
	AllocExport   = "alloc"
	DeallocExport = "dealloc"
)

var allocatorSignatures = map[string]boundary.Signature{
	AllocExport:   {Params: []boundary.ValueType{boundary.I32}, Results: []boundary.ValueType{boundary.I32}},
	DeallocExport: {Params: []boundary.ValueType{boundary.I32, boundary.I32}},
}

// CheckAllocator verifies that sigs carries alloc(i32) -> i32 and
// dealloc(i32, i32).
func CheckAllocator(module string, sigs map[string]boundary.Signature) error {
	for _, name := range []string{AllocExport, DeallocExport} {
		got, ok := sigs[name]
		if !ok {
			return &boundary.ExportNotFoundError{Module: module, Name: name}
		}
		if want := allocatorSignatures[name]; !got.Equal(want) {
			return &boundary.ValidationError{
				Module: module,
				Err:    fmt.Errorf("export %s has signature %s, want %s", name, got, want),
			}
		}
	}
	return nil
}

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime   *Runtime
	loader    *ModuleLoader
	logger    *zap.Logger
	hostFuncs *HostFunctions
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, loader *ModuleLoader, hostFuncs *HostFunctions, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		loader:    loader,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate (must already be compiled and cached).
	ModuleName string

	// Instance ID (if empty, generates UUID).
	InstanceID string
}

// Instance is an instantiated Wasm module. It implements boundary.Module;
// its linear memory is exposed as a memory.Region that is rebound after
// every guest call.
type Instance struct {
	manager *InstanceManager
	source  ModuleSource
	logger  *zap.Logger

	// wazero module instance.
	module api.Module
	mem    *linearMemory

	// Instance metadata.
	ID        string
	Image     string
	CreatedAt int64

	// Exported functions (cached for performance).
	exports    map[string]api.Function
	signatures map[string]boundary.Signature

	ready bool
}

var _ boundary.Module = (*Instance)(nil)

// NewInstance returns an uninitialized instance of source. Init compiles
// (or reuses the cached compilation), links and instantiates it.
func (m *InstanceManager) NewInstance(source ModuleSource) *Instance {
	id := uuid.NewString()
	return &Instance{
		manager: m,
		source:  source,
		ID:      id,
		Image:   source.Name(),
		logger:  m.logger.With(zap.String("instance_id", id), zap.String("module", source.Name())),
	}
}

// Factory yields a boundary.Factory producing independent instances of source.
func (m *InstanceManager) Factory(source ModuleSource) boundary.Factory {
	return func(ctx context.Context) (boundary.Module, error) {
		return m.NewInstance(source), nil
	}
}

// Instantiate creates a ready instance from a compiled module in cache.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	inst := &Instance{
		manager: m,
		ID:      instanceID,
		Image:   config.ModuleName,
		logger:  m.logger.With(zap.String("instance_id", instanceID), zap.String("module", config.ModuleName)),
	}
	if err := m.instantiate(ctx, compiled, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Link checks every function import of compiled against what this manager
// provides, without instantiating anything.
func (m *InstanceManager) Link(compiled *CompiledModule) error {
	hostSigs := m.hostFuncs.Signatures()

	for _, def := range compiled.Module.ImportedFunctions() {
		moduleName, name, _ := def.Import()
		qualified := moduleName + "." + name
		got := signatureOf(def)

		switch moduleName {
		case HostModuleName:
			want, ok := hostSigs[name]
			if !ok {
				return &boundary.LinkError{Module: compiled.Name, Import: qualified, Reason: "is not provided by the host"}
			}
			if !want.Equal(got) {
				return &boundary.LinkError{
					Module: compiled.Name,
					Import: qualified,
					Reason: fmt.Sprintf("has signature %s, host provides %s", got, want),
				}
			}
		case wasi_snapshot_preview1.ModuleName:
			if !m.runtime.config.WASI {
				return &boundary.LinkError{Module: compiled.Name, Import: qualified, Reason: "requires WASI, which is disabled"}
			}
		default:
			return &boundary.LinkError{Module: compiled.Name, Import: qualified, Reason: "comes from an unknown module"}
		}
	}
	return nil
}

// instantiate links and instantiates compiled into inst.
func (m *InstanceManager) instantiate(ctx context.Context, compiled *CompiledModule, inst *Instance) error {
	if limit := m.runtime.config.MaxInstances; limit > 0 && m.runtime.InstanceCount() >= limit {
		return &InstanceLimitError{Limit: limit}
	}

	if err := m.Link(compiled); err != nil {
		return err
	}
	if err := m.runtime.ensureHost(ctx, m.hostFuncs); err != nil {
		return err
	}

	m.logger.Info("Instantiating Wasm module",
		zap.String("module", compiled.Name),
		zap.String("instance_id", inst.ID),
	)

	moduleConfig := wazero.NewModuleConfig().
		WithName(inst.ID).
		WithStartFunctions("_initialize") // reactor-style guests; skipped when absent

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return &InstantiationError{
			ModuleName: compiled.Name,
			InstanceID: inst.ID,
			Err:        err,
		}
	}

	mem := module.Memory()
	if mem == nil {
		_ = module.Close(ctx)
		return &boundary.ValidationError{Module: compiled.Name, Err: errors.New("module exports no memory")}
	}

	exports := m.cacheExportedFunctions(module, compiled)
	signatures := compiled.Exports()
	if err := CheckAllocator(compiled.Name, signatures); err != nil {
		_ = module.Close(ctx)
		return err
	}

	inst.module = module
	inst.mem = newLinearMemory(mem, m.runtime.config.MemoryPages)
	inst.exports = exports
	inst.signatures = signatures
	inst.CreatedAt = time.Now().Unix()
	inst.ready = true

	m.runtime.StoreInstance(inst.ID, inst)

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", inst.ID),
		zap.Int("exported_functions", len(exports)),
		zap.Uint32("memory_bytes", inst.mem.region.Capacity()),
	)

	return nil
}

// cacheExportedFunctions caches references to exported functions.
func (m *InstanceManager) cacheExportedFunctions(module api.Module, compiled *CompiledModule) map[string]api.Function {
	exports := make(map[string]api.Function)
	for name := range compiled.Module.ExportedFunctions() {
		if fn := module.ExportedFunction(name); fn != nil {
			exports[name] = fn
		}
	}
	return exports
}

func signatureOf(def api.FunctionDefinition) boundary.Signature {
	return boundary.Signature{
		Params:  valueTypes(def.ParamTypes()),
		Results: valueTypes(def.ResultTypes()),
	}
}

func valueTypes(ts []api.ValueType) []boundary.ValueType {
	out := make([]boundary.ValueType, len(ts))
	for i, t := range ts {
		switch t {
		case api.ValueTypeI32:
			out[i] = boundary.I32
		case api.ValueTypeI64:
			out[i] = boundary.I64
		case api.ValueTypeF32:
			out[i] = boundary.F32
		case api.ValueTypeF64:
			out[i] = boundary.F64
		}
	}
	return out
}

// Exports returns the raw signature of every exported function.
func (c *CompiledModule) Exports() map[string]boundary.Signature {
	defs := c.Module.ExportedFunctions()
	out := make(map[string]boundary.Signature, len(defs))
	for name, def := range defs {
		out[name] = signatureOf(def)
	}
	return out
}

// Imports returns the raw signature of every imported function, keyed
// "module.name".
func (c *CompiledModule) Imports() map[string]boundary.Signature {
	defs := c.Module.ImportedFunctions()
	out := make(map[string]boundary.Signature, len(defs))
	for _, def := range defs {
		moduleName, name, _ := def.Import()
		out[moduleName+"."+name] = signatureOf(def)
	}
	return out
}
