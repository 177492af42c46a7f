// Package boundary defines the contract between the host and an isolated
// compute module that owns a private linear memory, and the marshalling
// protocol used to move bytes across it.
package boundary

import (
	"context"
	"fmt"
	"strings"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/memory"
)

// Pointer is an address inside one module's private region. Pointers from
// different modules are never comparable.
type Pointer uint32

// ValueType is the type of a parameter or result of an exported operation.
type ValueType byte

const (
	I32 ValueType = iota + 1
	I64
	F32
	F64
)

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return fmt.Sprintf("ValueType(%d)", byte(t))
}

// Signature is the fixed shape of an exported operation.
type Signature struct {
	Params  []ValueType
	Results []ValueType
}

// Equal reports whether two signatures have identical params and results.
func (s Signature) Equal(o Signature) bool {
	if len(s.Params) != len(o.Params) || len(s.Results) != len(o.Results) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range s.Results {
		if s.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

func (s Signature) String() string {
	join := func(ts []ValueType) string {
		parts := make([]string, len(ts))
		for i, t := range ts {
			parts[i] = t.String()
		}
		return strings.Join(parts, ",")
	}
	return "(" + join(s.Params) + ") -> (" + join(s.Results) + ")"
}

// Module is one instance of an isolated compute module.
//
// Init must complete successfully before Allocate, Free or Call; until then
// those return NotReadyError. A Module is used by a single goroutine at a
// time.
type Module interface {
	// Name identifies the module image.
	Name() string

	// Init loads and validates the module image.
	Init(ctx context.Context) error

	// Ready reports whether Init succeeded and the module is not closed.
	Ready() bool

	// Region returns the module's linear memory. The region may be rebound
	// after any Call; derive views afresh after each call.
	Region() *memory.Region

	// Allocate reserves size bytes and returns their address, or
	// OutOfMemoryError when the region cannot grow to satisfy it.
	Allocate(ctx context.Context, size uint32) (Pointer, error)

	// Free releases an allocation. Skipping Free leaks; freeing twice is
	// undefined.
	Free(ctx context.Context, ptr Pointer, size uint32) error

	// Call invokes an exported operation with raw parameters.
	Call(ctx context.Context, name string, params ...uint64) ([]uint64, error)

	// Signature looks up an export's shape.
	Signature(name string) (Signature, bool)

	// Close releases the instance.
	Close(ctx context.Context) error
}

// Factory creates an uninitialized module. Each call returns an independent
// instance with its own region.
type Factory func(ctx context.Context) (Module, error)
