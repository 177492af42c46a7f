// Package cryptomod is a host-native implementation of the crypto module.
// It behaves like a loaded image: a private linear memory, an allocator
// exported as alloc/dealloc, and pointer-shaped operations that read their
// inputs from and write their outputs to that memory. It also offers the
// direct-byte shape, skipping linear memory entirely.
package cryptomod

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/cryptoabi"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/memory"
)

// Name identifies the native module in errors and logs.
const Name = "cryptomod"

// Config sizes the module's linear memory in 64KiB pages.
type Config struct {
	InitialPages uint32
	MaxPages     uint32
}

// DefaultConfig returns one initial page growing up to 64MiB.
func DefaultConfig() Config {
	return Config{InitialPages: 1, MaxPages: 1024}
}

// Module is one native crypto module instance. It is not safe for
// concurrent use; a worker owns it exclusively.
type Module struct {
	config Config
	logger *zap.Logger

	region *memory.Region
	heap   *heap
	ready  bool
	closed bool
}

var (
	_ boundary.Module     = (*Module)(nil)
	_ boundary.ByteCaller = (*Module)(nil)
)

// New returns an uninitialized module.
func New(config Config, logger *zap.Logger) *Module {
	return &Module{
		config: config,
		logger: logger.With(zap.String("component", "cryptomod")),
	}
}

// Factory yields independent native modules.
func Factory(config Config, logger *zap.Logger) boundary.Factory {
	return func(ctx context.Context) (boundary.Module, error) {
		return New(config, logger.With(zap.String("instance_id", uuid.NewString()))), nil
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return Name
}

// Init allocates the module's region.
func (m *Module) Init(ctx context.Context) error {
	if m.ready {
		return nil
	}
	if m.closed {
		return &boundary.NotReadyError{Module: Name, State: "closed"}
	}
	if m.config.InitialPages == 0 || m.config.MaxPages < m.config.InitialPages {
		return &boundary.ValidationError{
			Module: Name,
			Err:    fmt.Errorf("invalid page limits %d..%d", m.config.InitialPages, m.config.MaxPages),
		}
	}
	maxBytes := uint64(m.config.MaxPages) * memory.PageSize
	if maxBytes > memory.MaxCapacity {
		maxBytes = memory.MaxCapacity
	}

	initial := uint64(m.config.InitialPages) * memory.PageSize
	if initial > maxBytes {
		initial = maxBytes
	}

	region, err := memory.NewRegion(uint32(initial), memory.WithMaxCapacity(uint32(maxBytes)))
	if err != nil {
		return &boundary.ValidationError{Module: Name, Err: err}
	}
	m.region = region
	m.heap = newHeap(region)
	m.ready = true

	m.logger.Debug("Native module initialized",
		zap.Uint32("initial_pages", m.config.InitialPages),
		zap.Uint32("max_pages", m.config.MaxPages),
	)
	return nil
}

// Ready reports whether Init succeeded and the module is open.
func (m *Module) Ready() bool {
	return m.ready
}

// Region returns the module's linear memory.
func (m *Module) Region() *memory.Region {
	return m.region
}

// Allocations returns the number of live heap allocations.
func (m *Module) Allocations() int {
	if m.heap == nil {
		return 0
	}
	return m.heap.inUse()
}

// Signature looks up an export's raw shape.
func (m *Module) Signature(name string) (boundary.Signature, bool) {
	sig, ok := cryptoabi.Signatures()[name]
	return sig, ok
}

// Allocate reserves size bytes on the module heap.
func (m *Module) Allocate(ctx context.Context, size uint32) (boundary.Pointer, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	ptr, err := m.heap.alloc(size)
	if err != nil {
		return 0, &boundary.OutOfMemoryError{Module: Name, Requested: size, Err: err}
	}
	return boundary.Pointer(ptr), nil
}

// Free returns an allocation to the heap.
func (m *Module) Free(ctx context.Context, ptr boundary.Pointer, size uint32) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.heap.release(uint32(ptr), size)
}

// Call runs an export with raw parameters, the way an engine would.
func (m *Module) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	sig, ok := m.Signature(name)
	if !ok {
		return nil, &boundary.ExportNotFoundError{Module: Name, Name: name}
	}
	if len(params) != len(sig.Params) {
		return nil, m.trap(name, fmt.Errorf("called with %d params, export takes %d", len(params), len(sig.Params)))
	}
	for i, p := range params {
		if p > math.MaxUint32 {
			return nil, m.trap(name, fmt.Errorf("param %d (%d) is outside the i32 domain", i, p))
		}
	}

	m.logger.Debug("Calling export", zap.String("export", name), zap.Uint64s("params", params))

	switch name {
	case cryptoabi.ExportAlloc:
		ptr, err := m.heap.alloc(uint32(params[0]))
		if err != nil {
			return []uint64{0}, nil
		}
		return []uint64{uint64(ptr)}, nil
	case cryptoabi.ExportDealloc:
		if err := m.heap.release(uint32(params[0]), uint32(params[1])); err != nil {
			return nil, m.trap(name, err)
		}
		return nil, nil
	case cryptoabi.ExportDescribe:
		return m.describe()
	}

	op, _ := cryptoabi.Lookup(name)
	return m.run(op, params)
}

// run reads an operation's inputs out of the region, executes it and writes
// its single output at the caller-supplied pointer.
func (m *Module) run(op boundary.Op, params []uint64) ([]uint64, error) {
	inputs := make([][]byte, op.Inputs)
	for i := range inputs {
		b, err := m.region.Read(uint32(params[2*i]), uint32(params[2*i+1]))
		if err != nil {
			return nil, m.trap(op.Name, err)
		}
		inputs[i] = b
	}
	scalars := params[2*op.Inputs : 2*op.Inputs+op.Scalars]
	outPtr := uint32(params[2*op.Inputs+op.Scalars])

	if err := m.budget(op.Name, scalars); err != nil {
		return nil, err
	}
	out, err := cryptoabi.Run(op.Name, inputs, scalars)
	if err != nil {
		var status cryptoabi.Status
		if errors.As(err, &status) {
			return []uint64{uint64(uint32(status))}, nil
		}
		return nil, m.trap(op.Name, err)
	}
	if err := m.region.Write(outPtr, out); err != nil {
		return nil, m.trap(op.Name, err)
	}
	return []uint64{uint64(cryptoabi.OK)}, nil
}

// describe places the module description on its own heap and returns the
// packed (ptr, len) pair. The caller frees it with dealloc.
func (m *Module) describe() ([]uint64, error) {
	text := []byte(cryptoabi.Description)
	ptr, err := m.heap.alloc(uint32(len(text)))
	if err != nil {
		return nil, m.trap(cryptoabi.ExportDescribe, err)
	}
	if err := m.region.Write(ptr, text); err != nil {
		return nil, m.trap(cryptoabi.ExportDescribe, err)
	}
	return []uint64{boundary.Pack(boundary.Pointer(ptr), uint32(len(text)))}, nil
}

// CallBytes runs an operation on host-owned bytes without touching the
// region.
func (m *Module) CallBytes(ctx context.Context, name string, inputs [][]byte, scalars []uint64) ([]byte, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	if _, ok := cryptoabi.Lookup(name); !ok {
		return nil, &boundary.ExportNotFoundError{Module: Name, Name: name}
	}
	if err := m.budget(name, scalars); err != nil {
		return nil, err
	}

	out, err := cryptoabi.Run(name, inputs, scalars)
	if err != nil {
		var status cryptoabi.Status
		if errors.As(err, &status) {
			return nil, &boundary.OperationError{Op: name, Code: int32(status), Message: status.Error()}
		}
		return nil, err
	}
	return out, nil
}

// budget rejects a key derivation whose Argon2 memory cost exceeds the
// module's memory ceiling. A loaded image hits the same ceiling when its
// linear memory refuses to grow.
func (m *Module) budget(name string, scalars []uint64) error {
	if name != cryptoabi.ExportDeriveKey || len(scalars) < 2 {
		return nil
	}
	need := scalars[1] * 1024
	if limit := uint64(m.region.MaxCapacity()); need > limit {
		return &boundary.OutOfMemoryError{
			Module:    Name,
			Requested: uint32(min(need, math.MaxUint32)),
			Err:       fmt.Errorf("argon2 memory cost of %d KiB exceeds the %d byte limit", scalars[1], limit),
		}
	}
	return nil
}

// Close marks the module closed. Its region is dropped.
func (m *Module) Close(ctx context.Context) error {
	m.ready = false
	m.closed = true
	m.region = nil
	m.heap = nil
	return nil
}

func (m *Module) check() error {
	if m.ready {
		return nil
	}
	state := "uninitialized"
	if m.closed {
		state = "closed"
	}
	return &boundary.NotReadyError{Module: Name, State: state}
}

func (m *Module) trap(name string, err error) error {
	m.logger.Warn("Native call trapped", zap.String("export", name), zap.Error(err))
	return &boundary.ModuleTrapError{Module: Name, Op: name, Err: err}
}
