package boundary

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// OutputSize describes how large an output buffer must be.
type OutputSize struct {
	fixed  uint32
	derive func(inputs [][]byte) uint32
}

// Fixed sizes an output at n bytes.
func Fixed(n uint32) OutputSize {
	return OutputSize{fixed: n}
}

// Derived sizes an output from the call's inputs, for example plaintext
// length plus a tag.
func Derived(f func(inputs [][]byte) uint32) OutputSize {
	return OutputSize{derive: f}
}

func (o OutputSize) size(inputs [][]byte) uint32 {
	if o.derive != nil {
		return o.derive(inputs)
	}
	return o.fixed
}

// Op declares the calling convention of one exported operation.
//
// Parameters are passed as (ptr, len) for each input, then the scalars,
// then one ptr per output. The single i32 result is a status where zero
// means success. When Placed is set the operation instead returns a
// (ptr, len) pair describing bytes it allocated itself, either as two
// results or packed into one i64 (ptr in the high half).
type Op struct {
	Name    string
	Inputs  int
	Scalars int
	Outputs []OutputSize
	Placed  bool

	// StatusText optionally describes non-zero status codes.
	StatusText func(code int32) string
}

// Params returns the number of raw parameters the operation takes.
func (op Op) Params() int {
	return 2*op.Inputs + op.Scalars + len(op.Outputs)
}

// Args holds the host-owned input bytes and scalar parameters of one call.
type Args struct {
	Inputs  [][]byte
	Scalars []uint64
}

// Result holds host-owned copies of every output buffer.
type Result struct {
	Outputs [][]byte
}

// Invoke runs one marshalled call: allocate and fill each input, allocate
// each output, call the operation, check its status, copy the outputs back,
// and release every allocation on every path.
func Invoke(ctx context.Context, mod Module, op Op, args Args) (res *Result, err error) {
	if !mod.Ready() {
		return nil, &NotReadyError{Module: mod.Name(), State: "uninitialized"}
	}
	if len(args.Inputs) != op.Inputs {
		return nil, fmt.Errorf("operation '%s' takes %d inputs, got %d", op.Name, op.Inputs, len(args.Inputs))
	}
	if len(args.Scalars) != op.Scalars {
		return nil, fmt.Errorf("operation '%s' takes %d scalars, got %d", op.Name, op.Scalars, len(args.Scalars))
	}
	if sig, ok := mod.Signature(op.Name); ok && len(sig.Params) != op.Params() {
		return nil, fmt.Errorf("export '%s' takes %d params, call supplies %d", op.Name, len(sig.Params), op.Params())
	}

	scope := NewScope(ctx, mod)
	defer func() {
		if releaseErr := scope.Release(); releaseErr != nil {
			res = nil
			err = multierr.Append(err, fmt.Errorf("release '%s' allocations: %w", op.Name, releaseErr))
		}
	}()

	params := make([]uint64, 0, op.Params())
	for _, in := range args.Inputs {
		a, err := scope.Input(in)
		if err != nil {
			return nil, err
		}
		params = append(params, uint64(a.Ptr()), uint64(a.Len()))
	}
	params = append(params, args.Scalars...)

	outputs := make([]*Allocation, 0, len(op.Outputs))
	for _, o := range op.Outputs {
		a, err := scope.Output(o.size(args.Inputs))
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, a)
		params = append(params, uint64(a.Ptr()))
	}

	results, err := mod.Call(ctx, op.Name, params...)
	if err != nil {
		return nil, err
	}

	if op.Placed {
		ptr, size, err := placedPair(op.Name, results)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, scope.Adopt(ptr, size))
	} else if err := checkStatus(op, results); err != nil {
		return nil, err
	}

	res = &Result{Outputs: make([][]byte, 0, len(outputs))}
	for _, a := range outputs {
		b, err := a.Read()
		if err != nil {
			return nil, err
		}
		res.Outputs = append(res.Outputs, b)
	}
	return res, nil
}

func checkStatus(op Op, results []uint64) error {
	if len(results) != 1 {
		return fmt.Errorf("operation '%s' returned %d results, want a status", op.Name, len(results))
	}
	code := int32(uint32(results[0]))
	if code == 0 {
		return nil
	}
	opErr := &OperationError{Op: op.Name, Code: code}
	if op.StatusText != nil {
		opErr.Message = op.StatusText(code)
	}
	return opErr
}

func placedPair(name string, results []uint64) (Pointer, uint32, error) {
	switch len(results) {
	case 2:
		return Pointer(uint32(results[0])), uint32(results[1]), nil
	case 1:
		return Pointer(uint32(results[0] >> 32)), uint32(results[0]), nil
	}
	return 0, 0, fmt.Errorf("operation '%s' returned %d results, want a (ptr, len) pair", name, len(results))
}

// Pack combines a pointer and length into the single-i64 pair encoding.
func Pack(ptr Pointer, size uint32) uint64 {
	return uint64(ptr)<<32 | uint64(size)
}
