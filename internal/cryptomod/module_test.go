package cryptomod

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/cryptoabi"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/memory"
)

var (
	demoKey   = bytes.Repeat([]byte{0x42}, cryptoabi.KeySize)
	demoNonce = bytes.Repeat([]byte{0x33}, cryptoabi.NonceSize)
)

func newReadyModule(t *testing.T, config Config) *Module {
	t.Helper()
	m := New(config, zaptest.NewLogger(t))
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return m
}

func TestModuleLifecycle(t *testing.T) {
	ctx := context.Background()
	m := New(DefaultConfig(), zaptest.NewLogger(t))

	var notReady *boundary.NotReadyError
	if _, err := m.Allocate(ctx, 8); !errors.As(err, &notReady) {
		t.Errorf("Allocate before Init: got %v", err)
	}
	if _, err := m.CallBytes(ctx, cryptoabi.ExportHMAC, [][]byte{{1}, {2}}, nil); !errors.As(err, &notReady) {
		t.Errorf("CallBytes before Init: got %v", err)
	}

	if err := m.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if !m.Ready() || m.Region().Capacity() != memory.PageSize {
		t.Fatalf("after Init: ready = %v, capacity = %d", m.Ready(), m.Region().Capacity())
	}

	if err := m.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Call(ctx, cryptoabi.ExportAlloc, 8); !errors.As(err, &notReady) || notReady.State != "closed" {
		t.Errorf("Call after Close: got %v", err)
	}
	if err := m.Init(ctx); !errors.As(err, &notReady) {
		t.Errorf("Init after Close: got %v", err)
	}
}

func TestModuleInvalidConfig(t *testing.T) {
	m := New(Config{InitialPages: 4, MaxPages: 2}, zaptest.NewLogger(t))

	var validationErr *boundary.ValidationError
	if err := m.Init(context.Background()); !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if m.Ready() {
		t.Error("module should not be ready")
	}
}

func TestMarshalledOperations(t *testing.T) {
	ctx := context.Background()
	m := newReadyModule(t, DefaultConfig())
	tracked := boundary.NewTracker(m)

	plaintext := []byte("Olá, WebAssembly!")

	sealed, err := boundary.Invoke(ctx, tracked, cryptoabi.Encrypt, boundary.Args{
		Inputs: [][]byte{demoKey, demoNonce, plaintext, nil},
	})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	want, _ := cryptoabi.Seal(demoKey, demoNonce, plaintext, nil)
	if !bytes.Equal(sealed.Outputs[0], want) {
		t.Errorf("ciphertext = %x, want %x", sealed.Outputs[0], want)
	}

	opened, err := boundary.Invoke(ctx, tracked, cryptoabi.Decrypt, boundary.Args{
		Inputs: [][]byte{demoKey, demoNonce, sealed.Outputs[0], nil},
	})
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened.Outputs[0], plaintext) {
		t.Errorf("decrypted = %q, want %q", opened.Outputs[0], plaintext)
	}

	digest, err := boundary.Invoke(ctx, tracked, cryptoabi.HMAC, boundary.Args{
		Inputs: [][]byte{[]byte("testkey"), []byte("message0")},
	})
	if err != nil {
		t.Fatalf("hmac: %v", err)
	}
	wantDigest, _ := cryptoabi.Sum([]byte("testkey"), []byte("message0"))
	if !bytes.Equal(digest.Outputs[0], wantDigest) {
		t.Errorf("digest = %x, want %x", digest.Outputs[0], wantDigest)
	}

	if tracked.Outstanding() != 0 || tracked.Allocs() != tracked.Frees() {
		t.Errorf("allocs = %d, frees = %d, outstanding = %d", tracked.Allocs(), tracked.Frees(), tracked.Outstanding())
	}
	if m.Allocations() != 0 {
		t.Errorf("heap still holds %d allocations", m.Allocations())
	}
}

func TestDeriveKeyScenario(t *testing.T) {
	ctx := context.Background()
	m := newReadyModule(t, Config{InitialPages: 1, MaxPages: 16})

	args := boundary.Args{
		Inputs:  [][]byte{[]byte("secret"), []byte("saltsalt")},
		Scalars: []uint64{1, 64, 1},
	}
	first, err := boundary.Invoke(ctx, m, cryptoabi.DeriveKey, args)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, err := boundary.Invoke(ctx, m, cryptoabi.DeriveKey, args)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(first.Outputs[0]) != cryptoabi.KeySize || !bytes.Equal(first.Outputs[0], second.Outputs[0]) {
		t.Errorf("keys %x and %x should be equal and %d bytes", first.Outputs[0], second.Outputs[0], cryptoabi.KeySize)
	}

	key := first.Outputs[0]
	sealed, err := boundary.Invoke(ctx, m, cryptoabi.Encrypt, boundary.Args{Inputs: [][]byte{key, demoNonce, []byte("plaintext"), nil}})
	if err != nil {
		t.Fatal(err)
	}
	opened, err := boundary.Invoke(ctx, m, cryptoabi.Decrypt, boundary.Args{Inputs: [][]byte{key, demoNonce, sealed.Outputs[0], nil}})
	if err != nil {
		t.Fatal(err)
	}
	if string(opened.Outputs[0]) != "plaintext" {
		t.Errorf("round trip = %q", opened.Outputs[0])
	}
}

func TestOperationStatusReleasesAll(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		op   boundary.Op
		args boundary.Args
		want cryptoabi.Status
	}{
		{"empty password", cryptoabi.DeriveKey, boundary.Args{Inputs: [][]byte{nil, []byte("saltsalt")}, Scalars: []uint64{1, 64, 1}}, cryptoabi.StatusEmptyPassword},
		{"short salt", cryptoabi.DeriveKey, boundary.Args{Inputs: [][]byte{[]byte("pw"), []byte("salt")}, Scalars: []uint64{1, 64, 1}}, cryptoabi.StatusShortSalt},
		{"bad key", cryptoabi.Encrypt, boundary.Args{Inputs: [][]byte{demoKey[:5], demoNonce, []byte("x"), nil}}, cryptoabi.StatusBadKey},
		{"bad nonce", cryptoabi.Encrypt, boundary.Args{Inputs: [][]byte{demoKey, demoNonce[:4], []byte("x"), nil}}, cryptoabi.StatusBadNonce},
		{"forged", cryptoabi.Decrypt, boundary.Args{Inputs: [][]byte{demoKey, demoNonce, make([]byte, 40), nil}}, cryptoabi.StatusAuthFailed},
		{"short ciphertext", cryptoabi.Decrypt, boundary.Args{Inputs: [][]byte{demoKey, demoNonce, []byte("short"), nil}}, cryptoabi.StatusShortCiphertext},
		{"empty hmac key", cryptoabi.HMAC, boundary.Args{Inputs: [][]byte{nil, []byte("m")}}, cryptoabi.StatusEmptyKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newReadyModule(t, DefaultConfig())
			tracked := boundary.NewTracker(m)

			_, err := boundary.Invoke(ctx, tracked, tt.op, tt.args)

			var opErr *boundary.OperationError
			if !errors.As(err, &opErr) {
				t.Fatalf("expected OperationError, got %v", err)
			}
			if opErr.Code != int32(tt.want) {
				t.Errorf("Code = %d, want %d", opErr.Code, tt.want)
			}
			if opErr.Message != tt.want.Error() {
				t.Errorf("Message = %q", opErr.Message)
			}
			if tracked.Outstanding() != 0 || m.Allocations() != 0 {
				t.Errorf("leaked: tracker %d, heap %d", tracked.Outstanding(), m.Allocations())
			}
		})
	}
}

func TestDirectShapeMatchesPointerShape(t *testing.T) {
	ctx := context.Background()
	m := newReadyModule(t, DefaultConfig())

	direct := boundary.Direct(m, cryptoabi.Ops...)
	if direct != boundary.ByteCaller(m) {
		t.Fatal("native module should serve direct calls itself")
	}

	inputs := [][]byte{demoKey, demoNonce, []byte("same bytes"), []byte("aad")}
	viaBytes, err := direct.CallBytes(ctx, cryptoabi.ExportEncrypt, inputs, nil)
	if err != nil {
		t.Fatal(err)
	}
	viaPointers, err := boundary.Invoke(ctx, m, cryptoabi.Encrypt, boundary.Args{Inputs: inputs})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(viaBytes, viaPointers.Outputs[0]) {
		t.Errorf("direct %x != marshalled %x", viaBytes, viaPointers.Outputs[0])
	}

	_, err = direct.CallBytes(ctx, cryptoabi.ExportHMAC, [][]byte{nil, []byte("m")}, nil)
	var opErr *boundary.OperationError
	if !errors.As(err, &opErr) || opErr.Code != int32(cryptoabi.StatusEmptyKey) {
		t.Errorf("direct status: got %v", err)
	}

	var notFound *boundary.ExportNotFoundError
	if _, err := direct.CallBytes(ctx, "nope", nil, nil); !errors.As(err, &notFound) {
		t.Errorf("unknown op: got %v", err)
	}
}

func TestDescribePlacedOutput(t *testing.T) {
	ctx := context.Background()
	m := newReadyModule(t, DefaultConfig())
	tracked := boundary.NewTracker(m)

	res, err := boundary.Invoke(ctx, tracked, cryptoabi.Describe, boundary.Args{})
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Outputs[0]) != cryptoabi.Description {
		t.Errorf("describe = %q", res.Outputs[0])
	}
	if m.Allocations() != 0 {
		t.Errorf("placed output was not freed: %d live", m.Allocations())
	}
}

func TestOutOfDomainScalarTraps(t *testing.T) {
	ctx := context.Background()
	m := newReadyModule(t, DefaultConfig())
	tracked := boundary.NewTracker(m)

	_, err := boundary.Invoke(ctx, tracked, cryptoabi.DeriveKey, boundary.Args{
		Inputs:  [][]byte{[]byte("secret"), []byte("saltsalt")},
		Scalars: []uint64{1, 1 << 40, 1},
	})

	var trapErr *boundary.ModuleTrapError
	if !errors.As(err, &trapErr) {
		t.Fatalf("expected ModuleTrapError, got %v", err)
	}
	if trapErr.Fatal || !m.Ready() {
		t.Error("a domain trap must leave the module usable")
	}
	if tracked.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d after trap", tracked.Outstanding())
	}
}

func TestOutOfMemory(t *testing.T) {
	ctx := context.Background()
	m := newReadyModule(t, Config{InitialPages: 1, MaxPages: 2})
	tracked := boundary.NewTracker(m)

	big := make([]byte, memory.PageSize)
	_, err := boundary.Invoke(ctx, tracked, cryptoabi.Encrypt, boundary.Args{
		Inputs: [][]byte{demoKey, demoNonce, big, nil},
	})

	var oom *boundary.OutOfMemoryError
	if !errors.As(err, &oom) {
		t.Fatalf("expected OutOfMemoryError, got %v", err)
	}
	if oom.Requested != memory.PageSize+cryptoabi.TagSize {
		t.Errorf("Requested = %d", oom.Requested)
	}
	if tracked.Outstanding() != 0 || m.Allocations() != 0 {
		t.Errorf("leaked: tracker %d, heap %d", tracked.Outstanding(), m.Allocations())
	}

	// The guest-facing allocator reports exhaustion as a null pointer.
	results, err := m.Call(ctx, cryptoabi.ExportAlloc, 4*memory.PageSize)
	if err != nil || results[0] != 0 {
		t.Errorf("alloc export = %v, %v; want null pointer", results, err)
	}
}

func TestDeriveKeyMemoryCeiling(t *testing.T) {
	ctx := context.Background()
	m := newReadyModule(t, Config{InitialPages: 1, MaxPages: 2})
	tracked := boundary.NewTracker(m)
	args := boundary.Args{
		Inputs:  [][]byte{[]byte("secret"), []byte("saltsalt")},
		Scalars: []uint64{1, 256 * 1024, 1},
	}

	var oom *boundary.OutOfMemoryError
	if _, err := boundary.Invoke(ctx, tracked, cryptoabi.DeriveKey, args); !errors.As(err, &oom) {
		t.Fatalf("pointer shape: expected OutOfMemoryError, got %v", err)
	}
	if tracked.Outstanding() != 0 || m.Allocations() != 0 {
		t.Errorf("leaked: tracker %d, heap %d", tracked.Outstanding(), m.Allocations())
	}
	if boundary.KindOf(oom) != boundary.KindOutOfMemory {
		t.Errorf("KindOf = %s", boundary.KindOf(oom))
	}

	if _, err := m.CallBytes(ctx, cryptoabi.ExportDeriveKey, args.Inputs, args.Scalars); !errors.As(err, &oom) {
		t.Fatalf("direct shape: expected OutOfMemoryError, got %v", err)
	}

	// A cost within the ceiling still derives.
	args.Scalars = []uint64{1, 64, 1}
	if _, err := m.CallBytes(ctx, cryptoabi.ExportDeriveKey, args.Inputs, args.Scalars); err != nil {
		t.Errorf("64 KiB derive: %v", err)
	}
}

func TestFactoryIndependentRegions(t *testing.T) {
	ctx := context.Background()
	factory := Factory(DefaultConfig(), zaptest.NewLogger(t))

	a, _ := factory(ctx)
	b, _ := factory(ctx)
	for _, mod := range []boundary.Module{a, b} {
		if err := mod.Init(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if a.Region() == b.Region() {
		t.Fatal("modules share a region")
	}
	if err := a.Region().Write(64, []byte{1}); err != nil {
		t.Fatal(err)
	}
	if got, _ := b.Region().Read(64, 1); got[0] != 0 {
		t.Error("write through one module is visible in another")
	}
}
