package binding

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/cryptoabi"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/cryptomod"
)

var (
	demoKey   = bytes.Repeat([]byte{0x42}, cryptoabi.KeySize)
	demoNonce = bytes.Repeat([]byte{0x33}, cryptoabi.NonceSize)
	cheap     = cryptoabi.Argon2Params{Time: 1, Memory: 64, Parallelism: 1}
)

func newModule(t *testing.T) *cryptomod.Module {
	t.Helper()
	m := cryptomod.New(cryptomod.Config{InitialPages: 1, MaxPages: 16}, zaptest.NewLogger(t))
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return m
}

// bindings returns one binding per shape. The direct binding over a tracker
// exercises the marshalled fallback, since Tracker does not expose CallBytes.
func bindings(t *testing.T) map[string]*Crypto {
	logger := zaptest.NewLogger(t)
	return map[string]*Crypto{
		"pointer":          NewCrypto(boundary.NewTracker(newModule(t)), logger, WithArgon2(cheap)),
		"direct-native":    NewCrypto(newModule(t), logger, WithShape(DirectShape), WithArgon2(cheap)),
		"direct-marshaled": NewCrypto(boundary.NewTracker(newModule(t)), logger, WithShape(DirectShape), WithArgon2(cheap)),
	}
}

func TestCryptoScenario(t *testing.T) {
	ctx := context.Background()
	want, err := cryptoabi.DeriveKeyBytes([]byte("secret"), []byte("saltsalt"), cheap)
	if err != nil {
		t.Fatal(err)
	}

	for name, c := range bindings(t) {
		t.Run(name, func(t *testing.T) {
			key, err := c.DeriveKey(ctx, []byte("secret"), []byte("saltsalt"))
			if err != nil {
				t.Fatalf("DeriveKey: %v", err)
			}
			if !bytes.Equal(key, want) {
				t.Errorf("key = %x, want %x", key, want)
			}

			plaintext := []byte("Olá, WebAssembly!")
			sealed, err := c.Encrypt(ctx, demoKey, demoNonce, plaintext, nil)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if len(sealed) != len(plaintext)+cryptoabi.TagSize {
				t.Errorf("ciphertext length = %d", len(sealed))
			}
			opened, err := c.Decrypt(ctx, demoKey, demoNonce, sealed, nil)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if !bytes.Equal(opened, plaintext) {
				t.Errorf("decrypted = %q, want %q", opened, plaintext)
			}

			digest, err := c.HMAC(ctx, []byte("testkey"), []byte("message0"))
			if err != nil {
				t.Fatalf("HMAC: %v", err)
			}
			if len(digest) != cryptoabi.DigestSize {
				t.Errorf("digest length = %d", len(digest))
			}

			text, err := c.Describe(ctx)
			if err != nil {
				t.Fatalf("Describe: %v", err)
			}
			if text != cryptoabi.Description {
				t.Errorf("Describe() = %q", text)
			}

			if tr, ok := c.Module().(*boundary.Tracker); ok {
				if tr.Outstanding() != 0 || tr.Allocs() != tr.Frees() {
					t.Errorf("allocs = %d, frees = %d, outstanding = %d", tr.Allocs(), tr.Frees(), tr.Outstanding())
				}
			}
		})
	}
}

func TestCryptoOperationErrors(t *testing.T) {
	ctx := context.Background()

	for name, c := range bindings(t) {
		t.Run(name, func(t *testing.T) {
			sealed, err := c.Encrypt(ctx, demoKey, demoNonce, []byte("payload"), []byte("aad"))
			if err != nil {
				t.Fatal(err)
			}
			sealed[0] ^= 0xff

			var opErr *boundary.OperationError
			_, err = c.Decrypt(ctx, demoKey, demoNonce, sealed, []byte("aad"))
			if !errors.As(err, &opErr) || opErr.Code != int32(cryptoabi.StatusAuthFailed) {
				t.Errorf("tampered decrypt: got %v", err)
			}

			if _, err := c.HMAC(ctx, nil, []byte("m")); !errors.As(err, &opErr) || opErr.Code != int32(cryptoabi.StatusEmptyKey) {
				t.Errorf("empty hmac key: got %v", err)
			}
			_, err = c.DeriveKey(ctx, []byte("pw"), []byte("short"))
			if !errors.As(err, &opErr) || opErr.Code != int32(cryptoabi.StatusShortSalt) {
				t.Errorf("short salt: got %v", err)
			}
			if boundary.KindOf(err) != boundary.KindOperation {
				t.Errorf("KindOf = %s", boundary.KindOf(err))
			}

			if tr, ok := c.Module().(*boundary.Tracker); ok && tr.Outstanding() != 0 {
				t.Errorf("%d allocations leaked on failure", tr.Outstanding())
			}
		})
	}
}

func TestCryptoNotReady(t *testing.T) {
	m := cryptomod.New(cryptomod.DefaultConfig(), zaptest.NewLogger(t))
	c := NewCrypto(m, zaptest.NewLogger(t))

	var notReady *boundary.NotReadyError
	if _, err := c.HMAC(context.Background(), []byte("k"), []byte("m")); !errors.As(err, &notReady) {
		t.Errorf("expected NotReadyError, got %v", err)
	}
}

func TestParseShape(t *testing.T) {
	tests := []struct {
		in      string
		want    Shape
		wantErr bool
	}{
		{"", PointerShape, false},
		{"pointer", PointerShape, false},
		{"direct", DirectShape, false},
		{"bytes", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseShape(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseShape(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseShape(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
