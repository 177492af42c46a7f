package wasm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/memory"
)

// Name returns the module image name.
func (i *Instance) Name() string {
	return i.Image
}

// Init compiles the image (or reuses the cached compilation), links its
// imports and instantiates it. Malformed bytes yield ValidationError and
// unsatisfied imports LinkError.
func (i *Instance) Init(ctx context.Context) error {
	if i.ready {
		return nil
	}
	if i.source == nil {
		return &ModuleNotFoundError{ModuleName: i.Image}
	}
	compiled, err := i.manager.loader.LoadModule(ctx, i.source)
	if err != nil {
		return err
	}
	return i.manager.instantiate(ctx, compiled, i)
}

// Ready reports whether the instance can serve calls.
func (i *Instance) Ready() bool {
	return i.ready && i.module != nil && !i.module.IsClosed()
}

// Region returns the instance's linear memory.
func (i *Instance) Region() *memory.Region {
	if i.mem == nil {
		return nil
	}
	return i.mem.region
}

// Signature returns the shape of an exported function.
func (i *Instance) Signature(name string) (boundary.Signature, bool) {
	sig, ok := i.signatures[name]
	return sig, ok
}

// Allocate calls the guest allocator. A null pointer means the guest could
// not grow its memory.
func (i *Instance) Allocate(ctx context.Context, size uint32) (boundary.Pointer, error) {
	results, err := i.Call(ctx, AllocExport, uint64(size))
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, &boundary.ValidationError{Module: i.Image, Err: fmt.Errorf("alloc returned %d results", len(results))}
	}
	ptr := boundary.Pointer(uint32(results[0]))
	if ptr == 0 {
		return 0, &boundary.OutOfMemoryError{Module: i.Image, Requested: size}
	}
	return ptr, nil
}

// Free calls the guest deallocator.
func (i *Instance) Free(ctx context.Context, ptr boundary.Pointer, size uint32) error {
	_, err := i.Call(ctx, DeallocExport, uint64(ptr), uint64(size))
	return err
}

// Call invokes an exported function and rebinds the region afterwards.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if !i.Ready() {
		return nil, &boundary.NotReadyError{Module: i.Image, State: i.state()}
	}
	fn, ok := i.exports[name]
	if !ok {
		return nil, &boundary.ExportNotFoundError{Module: i.Image, Name: name}
	}

	if i.manager.runtime.config.DebugEnabled {
		i.logger.Debug("Calling export", zap.String("export", name), zap.Uint64s("params", params))
	}

	results, err := fn.Call(ctx, params...)
	if i.module.IsClosed() {
		i.ready = false
	} else {
		i.mem.sync()
	}
	if err != nil {
		return nil, i.trap(name, err)
	}
	return results, nil
}

// trap converts an engine failure into a ModuleTrapError. A trap that closed
// the instance (exit, context cancellation) is fatal.
func (i *Instance) trap(name string, err error) error {
	var exitErr *sys.ExitError
	fatal := !i.ready || errors.As(err, &exitErr)
	if fatal {
		i.ready = false
	}
	i.logger.Warn("Guest call trapped",
		zap.String("export", name),
		zap.Bool("fatal", fatal),
		zap.Error(err),
	)
	return &boundary.ModuleTrapError{Module: i.Image, Op: name, Fatal: fatal, Err: err}
}

func (i *Instance) state() string {
	switch {
	case i.module == nil:
		return "uninitialized"
	case i.module.IsClosed():
		return "closed"
	}
	return "failed"
}

// Close closes the instance and releases resources.
func (i *Instance) Close(ctx context.Context) error {
	i.ready = false
	if i.module == nil {
		return nil
	}
	i.manager.runtime.DeleteInstance(i.ID)
	return i.module.Close(ctx)
}
