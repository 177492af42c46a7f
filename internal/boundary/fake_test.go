package boundary

import (
	"context"
	"errors"
	"fmt"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/memory"
)

// fakeModule is a minimal in-process module with a bump allocator, used to
// exercise the marshalling protocol without an engine.
type fakeModule struct {
	region *memory.Region
	next   uint32
	ready  bool

	// allocLimit fails the n-th allocation with OutOfMemoryError when > 0.
	allocLimit int
	allocCount int
}

func newFakeModule() *fakeModule {
	return &fakeModule{next: 8}
}

func (f *fakeModule) Name() string { return "fake" }

func (f *fakeModule) Init(context.Context) error {
	r, err := memory.NewRegion(memory.PageSize, memory.WithMaxCapacity(memory.PageSize))
	if err != nil {
		return err
	}
	f.region = r
	f.ready = true
	return nil
}

func (f *fakeModule) Ready() bool { return f.ready }

func (f *fakeModule) Region() *memory.Region { return f.region }

func (f *fakeModule) Allocate(_ context.Context, size uint32) (Pointer, error) {
	f.allocCount++
	if f.allocLimit > 0 && f.allocCount >= f.allocLimit {
		return 0, &OutOfMemoryError{Module: f.Name(), Requested: size}
	}
	if uint64(f.next)+uint64(size) > uint64(f.region.Capacity()) {
		return 0, &OutOfMemoryError{Module: f.Name(), Requested: size}
	}
	ptr := f.next
	f.next += (size + 7) &^ 7
	return Pointer(ptr), nil
}

func (f *fakeModule) Free(context.Context, Pointer, uint32) error { return nil }

func (f *fakeModule) Signature(name string) (Signature, bool) {
	switch name {
	case "xor":
		return Signature{Params: []ValueType{I32, I32, I32, I32, I32}, Results: []ValueType{I32}}, true
	}
	return Signature{}, false
}

func (f *fakeModule) Close(context.Context) error {
	f.ready = false
	return nil
}

func (f *fakeModule) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	switch name {
	case "xor":
		keyPtr, keyLen := uint32(params[0]), uint32(params[1])
		msgPtr, msgLen := uint32(params[2]), uint32(params[3])
		outPtr := uint32(params[4])
		if keyLen == 0 {
			return []uint64{2}, nil
		}
		key, err := f.region.Read(keyPtr, keyLen)
		if err != nil {
			return nil, &ModuleTrapError{Module: f.Name(), Op: name, Err: err}
		}
		msg, err := f.region.Read(msgPtr, msgLen)
		if err != nil {
			return nil, &ModuleTrapError{Module: f.Name(), Op: name, Err: err}
		}
		for i := range msg {
			msg[i] ^= key[i%len(key)]
		}
		if err := f.region.Write(outPtr, msg); err != nil {
			return nil, &ModuleTrapError{Module: f.Name(), Op: name, Err: err}
		}
		return []uint64{0}, nil

	case "trap":
		return nil, &ModuleTrapError{Module: f.Name(), Op: name, Err: errors.New("unreachable")}

	case "describe", "describe_packed":
		text := []byte("fake module v1")
		ptr, err := f.Allocate(ctx, uint32(len(text)))
		if err != nil {
			return nil, err
		}
		if err := f.region.Write(uint32(ptr), text); err != nil {
			return nil, err
		}
		if name == "describe_packed" {
			return []uint64{Pack(ptr, uint32(len(text)))}, nil
		}
		return []uint64{uint64(ptr), uint64(len(text))}, nil
	}
	return nil, &ExportNotFoundError{Module: f.Name(), Name: name}
}

// nativeCaller is a module that also implements the direct shape.
type nativeCaller struct {
	*fakeModule
}

func (n nativeCaller) CallBytes(_ context.Context, name string, inputs [][]byte, _ []uint64) ([]byte, error) {
	return nil, fmt.Errorf("native %s with %d inputs", name, len(inputs))
}

func xorOp() Op {
	return Op{
		Name:   "xor",
		Inputs: 2,
		Outputs: []OutputSize{Derived(func(inputs [][]byte) uint32 {
			return uint32(len(inputs[1]))
		})},
		StatusText: func(code int32) string {
			if code == 2 {
				return "empty key"
			}
			return ""
		},
	}
}
