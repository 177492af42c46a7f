package boundary

import (
	"context"
	"fmt"
)

// ByteCaller is the direct-byte shape of a module: operations accept and
// return host-owned byte slices and no pointer is visible to the caller.
type ByteCaller interface {
	CallBytes(ctx context.Context, name string, inputs [][]byte, scalars []uint64) ([]byte, error)
}

// Direct returns the direct-byte shape of mod for the given operations.
// Modules that implement ByteCaller natively are returned as is; any other
// module is wrapped so each call runs as a marshalled call, which keeps the
// same release-exactly-once guarantee.
func Direct(mod Module, ops ...Op) ByteCaller {
	if bc, ok := mod.(ByteCaller); ok {
		return bc
	}
	table := make(map[string]Op, len(ops))
	for _, op := range ops {
		table[op.Name] = op
	}
	return &directCaller{mod: mod, ops: table}
}

type directCaller struct {
	mod Module
	ops map[string]Op
}

func (d *directCaller) CallBytes(ctx context.Context, name string, inputs [][]byte, scalars []uint64) ([]byte, error) {
	op, ok := d.ops[name]
	if !ok {
		return nil, &ExportNotFoundError{Module: d.mod.Name(), Name: name}
	}
	res, err := Invoke(ctx, d.mod, op, Args{Inputs: inputs, Scalars: scalars})
	if err != nil {
		return nil, err
	}
	if len(res.Outputs) != 1 {
		return nil, fmt.Errorf("operation '%s' produced %d outputs, direct calls need exactly one", name, len(res.Outputs))
	}
	return res.Outputs[0], nil
}
