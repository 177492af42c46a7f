//go:build wasmer

// Package wasmer hosts module images on the wasmer engine. It is an
// alternative to the wazero-backed internal/wasm and implements the same
// boundary.Module contract, including the host log import and region
// rebinding after guest growth. Build with -tags wasmer.
package wasmer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/wasmerio/wasmer-go/wasmer"
	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/memory"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/wasm"
)

const wasiModuleName = "wasi_snapshot_preview1"

// Config describes one image to run.
type Config struct {
	Name     string
	Image    []byte
	MaxPages uint32 // 0 keeps the limit declared by the image
	WASI     bool
}

// Module is one wasmer instance of an image.
type Module struct {
	config    Config
	hostFuncs *wasm.HostFunctions
	logger    *zap.Logger

	store    *wasmer.Store
	instance *wasmer.Instance
	mem      *wasmer.Memory
	region   *memory.Region

	exports    map[string]*wasmer.Function
	signatures map[string]boundary.Signature

	ready  bool
	closed bool
}

var _ boundary.Module = (*Module)(nil)

// New returns an uninitialized module.
func New(config Config, hostFuncs *wasm.HostFunctions, logger *zap.Logger) *Module {
	return &Module{
		config:    config,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasmer"), zap.String("module", config.Name)),
	}
}

// Factory yields independent instances of one image.
func Factory(config Config, hostFuncs *wasm.HostFunctions, logger *zap.Logger) boundary.Factory {
	return func(ctx context.Context) (boundary.Module, error) {
		return New(config, hostFuncs, logger.With(zap.String("instance_id", uuid.NewString()))), nil
	}
}

// Name returns the image name.
func (m *Module) Name() string {
	return m.config.Name
}

// Init validates, links and instantiates the image.
func (m *Module) Init(ctx context.Context) error {
	if m.ready {
		return nil
	}
	if m.closed {
		return &boundary.NotReadyError{Module: m.config.Name, State: "closed"}
	}

	store := wasmer.NewStore(wasmer.NewEngine())
	if err := wasmer.ValidateModule(store, m.config.Image); err != nil {
		return &boundary.ValidationError{Module: m.config.Name, Err: err}
	}
	compiled, err := wasmer.NewModule(store, m.config.Image)
	if err != nil {
		return &boundary.ValidationError{Module: m.config.Name, Err: err}
	}
	if err := m.link(compiled); err != nil {
		return err
	}

	imports, err := m.imports(store, compiled)
	if err != nil {
		return err
	}
	instance, err := wasmer.NewInstance(compiled, imports)
	if err != nil {
		return &wasm.InstantiationError{ModuleName: m.config.Name, InstanceID: "wasmer", Err: err}
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		instance.Close()
		return &boundary.ValidationError{Module: m.config.Name, Err: errors.New("module exports no memory")}
	}
	m.mem = mem

	// Reactor-style guests run their initializer once; absent otherwise.
	if start, err := instance.Exports.GetRawFunction("_initialize"); err == nil {
		if _, err := start.Call(); err != nil {
			instance.Close()
			return &wasm.InstantiationError{ModuleName: m.config.Name, InstanceID: "wasmer", Err: err}
		}
	}

	m.exports = make(map[string]*wasmer.Function)
	m.signatures = make(map[string]boundary.Signature)
	for _, exp := range compiled.Exports() {
		if exp.Type().Kind() != wasmer.FUNCTION {
			continue
		}
		fn, err := instance.Exports.GetRawFunction(exp.Name())
		if err != nil {
			continue
		}
		m.exports[exp.Name()] = fn
		m.signatures[exp.Name()] = signatureOf(exp.Type().IntoFunctionType())
	}
	if err := wasm.CheckAllocator(m.config.Name, m.signatures); err != nil {
		instance.Close()
		return err
	}

	m.store = store
	m.instance = instance
	m.region = memory.Wrap(mem.Data(), memory.WithMaxCapacity(m.maxBytes()), memory.WithGrower(m))
	m.ready = true

	m.logger.Info("Module instantiated successfully",
		zap.Int("exported_functions", len(m.exports)),
		zap.Uint32("memory_bytes", m.region.Capacity()),
	)
	return nil
}

// link checks every function import against what the host provides.
func (m *Module) link(compiled *wasmer.Module) error {
	hostSigs := m.hostFuncs.Signatures()
	for _, imp := range compiled.Imports() {
		qualified := imp.Module() + "." + imp.Name()
		if imp.Type().Kind() != wasmer.FUNCTION {
			if imp.Module() == wasiModuleName && m.config.WASI {
				continue
			}
			return &boundary.LinkError{Module: m.config.Name, Import: qualified, Reason: "is not a function import"}
		}
		got := signatureOf(imp.Type().IntoFunctionType())

		switch imp.Module() {
		case wasm.HostModuleName:
			want, ok := hostSigs[imp.Name()]
			if !ok {
				return &boundary.LinkError{Module: m.config.Name, Import: qualified, Reason: "is not provided by the host"}
			}
			if !want.Equal(got) {
				return &boundary.LinkError{
					Module: m.config.Name,
					Import: qualified,
					Reason: fmt.Sprintf("has signature %s, host provides %s", got, want),
				}
			}
		case wasiModuleName:
			if !m.config.WASI {
				return &boundary.LinkError{Module: m.config.Name, Import: qualified, Reason: "requires WASI, which is disabled"}
			}
		default:
			return &boundary.LinkError{Module: m.config.Name, Import: qualified, Reason: "comes from an unknown module"}
		}
	}
	return nil
}

func (m *Module) imports(store *wasmer.Store, compiled *wasmer.Module) (*wasmer.ImportObject, error) {
	imports := wasmer.NewImportObject()
	if m.config.WASI {
		env, err := wasmer.NewWasiStateBuilder(m.config.Name).Finalize()
		if err != nil {
			return nil, fmt.Errorf("failed to build WASI environment: %w", err)
		}
		if imports, err = env.GenerateImportObject(store, compiled); err != nil {
			return nil, fmt.Errorf("failed to generate WASI imports: %w", err)
		}
	}

	logType := wasmer.NewFunctionType(
		wasmer.NewValueTypes(wasmer.I32, wasmer.I32, wasmer.I32),
		wasmer.NewValueTypes(),
	)
	logFn := wasmer.NewFunction(store, logType, func(args []wasmer.Value) ([]wasmer.Value, error) {
		m.logMessage(uint32(args[0].I32()), uint32(args[1].I32()), uint32(args[2].I32()))
		return []wasmer.Value{}, nil
	})
	imports.Register(wasm.HostModuleName, map[string]wasmer.IntoExtern{
		"log_message": logFn,
	})
	return imports, nil
}

func (m *Module) logMessage(level, ptr, length uint32) {
	if m.mem == nil {
		return
	}
	data := m.mem.Data()
	if uint64(ptr)+uint64(length) > uint64(len(data)) {
		m.logger.Error("Failed to read log message from Wasm memory",
			zap.Error(&wasm.HostFunctionError{
				FunctionName: "log_message",
				Err:          fmt.Errorf("message [%d, +%d) is outside guest memory", ptr, length),
			}),
		)
		return
	}
	m.hostFuncs.Log(m.config.Name, level, append([]byte(nil), data[ptr:ptr+length]...))
}

func (m *Module) maxBytes() uint32 {
	if m.config.MaxPages == 0 {
		return memory.MaxCapacity
	}
	if max := uint64(m.config.MaxPages) * memory.PageSize; max < memory.MaxCapacity {
		return uint32(max)
	}
	return memory.MaxCapacity
}

// Grow implements memory.Grower using memory.grow.
func (m *Module) Grow(current []byte, newCapacity uint32) ([]byte, error) {
	need := uint64(newCapacity) - uint64(len(current))
	delta := (need + memory.PageSize - 1) / memory.PageSize
	if delta > math.MaxUint32 {
		return nil, fmt.Errorf("grow by %d pages exceeds address space", delta)
	}
	if !m.mem.Grow(wasmer.Pages(delta)) {
		return nil, fmt.Errorf("memory.grow(%d) refused", delta)
	}
	return m.mem.Data(), nil
}

// Ready reports whether the instance can serve calls.
func (m *Module) Ready() bool {
	return m.ready
}

// Region returns the instance's linear memory.
func (m *Module) Region() *memory.Region {
	return m.region
}

// Signature returns the shape of an exported function.
func (m *Module) Signature(name string) (boundary.Signature, bool) {
	sig, ok := m.signatures[name]
	return sig, ok
}

// Allocate calls the guest allocator.
func (m *Module) Allocate(ctx context.Context, size uint32) (boundary.Pointer, error) {
	results, err := m.Call(ctx, wasm.AllocExport, uint64(size))
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, &boundary.ValidationError{Module: m.config.Name, Err: fmt.Errorf("alloc returned %d results", len(results))}
	}
	ptr := boundary.Pointer(uint32(results[0]))
	if ptr == 0 {
		return 0, &boundary.OutOfMemoryError{Module: m.config.Name, Requested: size}
	}
	return ptr, nil
}

// Free calls the guest deallocator.
func (m *Module) Free(ctx context.Context, ptr boundary.Pointer, size uint32) error {
	_, err := m.Call(ctx, wasm.DeallocExport, uint64(ptr), uint64(size))
	return err
}

// Call invokes an export and rebinds the region afterwards.
func (m *Module) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if !m.ready {
		state := "uninitialized"
		if m.closed {
			state = "closed"
		}
		return nil, &boundary.NotReadyError{Module: m.config.Name, State: state}
	}
	fn, ok := m.exports[name]
	if !ok {
		return nil, &boundary.ExportNotFoundError{Module: m.config.Name, Name: name}
	}
	sig := m.signatures[name]
	if len(params) != len(sig.Params) {
		return nil, m.trap(name, fmt.Errorf("called with %d params, export takes %d", len(params), len(sig.Params)))
	}

	args := make([]interface{}, len(params))
	for i, p := range params {
		switch sig.Params[i] {
		case boundary.I64:
			args[i] = int64(p)
		case boundary.F32:
			args[i] = math.Float32frombits(uint32(p))
		case boundary.F64:
			args[i] = math.Float64frombits(p)
		default:
			args[i] = int32(uint32(p))
		}
	}

	out, err := fn.Call(args...)
	m.region.Rebind(m.mem.Data())
	if err != nil {
		return nil, m.trap(name, err)
	}
	return rawResults(out), nil
}

func rawResults(out interface{}) []uint64 {
	var values []interface{}
	switch v := out.(type) {
	case nil:
		return nil
	case []interface{}:
		values = v
	default:
		values = []interface{}{v}
	}

	results := make([]uint64, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case int32:
			results[i] = uint64(uint32(x))
		case int64:
			results[i] = uint64(x)
		case float32:
			results[i] = uint64(math.Float32bits(x))
		case float64:
			results[i] = math.Float64bits(x)
		}
	}
	return results
}

// trap reports a failed call. Wasmer instances stay usable after a trap.
func (m *Module) trap(name string, err error) error {
	m.logger.Warn("Guest call trapped", zap.String("export", name), zap.Error(err))
	return &boundary.ModuleTrapError{Module: m.config.Name, Op: name, Err: err}
}

// Close releases the instance and its store.
func (m *Module) Close(ctx context.Context) error {
	m.ready = false
	m.closed = true
	if m.instance != nil {
		m.instance.Close()
		m.instance = nil
	}
	if m.store != nil {
		m.store.Close()
		m.store = nil
	}
	return nil
}

func signatureOf(ft *wasmer.FunctionType) boundary.Signature {
	return boundary.Signature{
		Params:  valueTypes(ft.Params()),
		Results: valueTypes(ft.Results()),
	}
}

func valueTypes(ts []*wasmer.ValueType) []boundary.ValueType {
	out := make([]boundary.ValueType, len(ts))
	for i, t := range ts {
		switch t.Kind() {
		case wasmer.I32:
			out[i] = boundary.I32
		case wasmer.I64:
			out[i] = boundary.I64
		case wasmer.F32:
			out[i] = boundary.F32
		case wasmer.F64:
			out[i] = boundary.F64
		}
	}
	return out
}
