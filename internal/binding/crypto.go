// Package binding exposes the crypto module's operations as typed Go
// methods. Each method runs either as a marshalled call through the
// module's linear memory or as a direct call on host-owned bytes.
package binding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/cryptoabi"
)

// Shape selects how a binding crosses the module boundary.
type Shape int

const (
	// PointerShape allocates inputs and outputs inside the module, passes
	// pointers and frees everything before returning.
	PointerShape Shape = iota

	// DirectShape hands byte slices to the module and gets a slice back.
	DirectShape
)

func (s Shape) String() string {
	switch s {
	case PointerShape:
		return "pointer"
	case DirectShape:
		return "direct"
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

// ParseShape maps "pointer" or "direct" to a Shape.
func ParseShape(s string) (Shape, error) {
	switch s {
	case "", "pointer":
		return PointerShape, nil
	case "direct":
		return DirectShape, nil
	}
	return 0, fmt.Errorf("unknown call shape '%s'", s)
}

// Crypto binds one ready module instance.
type Crypto struct {
	mod    boundary.Module
	direct boundary.ByteCaller
	shape  Shape
	params cryptoabi.Argon2Params
	logger *zap.Logger
}

// Option configures a Crypto binding.
type Option func(*Crypto)

// WithShape sets the call shape. The default is PointerShape.
func WithShape(shape Shape) Option {
	return func(c *Crypto) {
		c.shape = shape
	}
}

// WithArgon2 sets the key derivation cost used by DeriveKey.
func WithArgon2(p cryptoabi.Argon2Params) Option {
	return func(c *Crypto) {
		c.params = p
	}
}

// NewCrypto binds mod. The module must already be initialized.
func NewCrypto(mod boundary.Module, logger *zap.Logger, opts ...Option) *Crypto {
	c := &Crypto{
		mod:    mod,
		params: cryptoabi.DefaultArgon2(),
		logger: logger.With(zap.String("component", "binding"), zap.String("module", mod.Name())),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.direct = boundary.Direct(mod, cryptoabi.Ops...)
	return c
}

// Module returns the bound module.
func (c *Crypto) Module() boundary.Module {
	return c.mod
}

// Shape returns the binding's call shape.
func (c *Crypto) Shape() Shape {
	return c.shape
}

// DeriveKey derives a 32-byte key with the binding's Argon2id cost.
func (c *Crypto) DeriveKey(ctx context.Context, password, salt []byte) ([]byte, error) {
	return c.DeriveKeyWith(ctx, password, salt, c.params)
}

// DeriveKeyWith derives a 32-byte key with an explicit Argon2id cost.
func (c *Crypto) DeriveKeyWith(ctx context.Context, password, salt []byte, p cryptoabi.Argon2Params) ([]byte, error) {
	return c.call(ctx, cryptoabi.DeriveKey, [][]byte{password, salt},
		uint64(p.Time), uint64(p.Memory), uint64(p.Parallelism))
}

// Encrypt seals plaintext with AES-256-GCM. aad may be nil.
func (c *Crypto) Encrypt(ctx context.Context, key, nonce, plaintext, aad []byte) ([]byte, error) {
	return c.call(ctx, cryptoabi.Encrypt, [][]byte{key, nonce, plaintext, aad})
}

// Decrypt opens ciphertext sealed by Encrypt. A forged or corrupted
// ciphertext fails with an OperationError.
func (c *Crypto) Decrypt(ctx context.Context, key, nonce, ciphertext, aad []byte) ([]byte, error) {
	return c.call(ctx, cryptoabi.Decrypt, [][]byte{key, nonce, ciphertext, aad})
}

// HMAC returns the HMAC-SHA256 of message under key.
func (c *Crypto) HMAC(ctx context.Context, key, message []byte) ([]byte, error) {
	return c.call(ctx, cryptoabi.HMAC, [][]byte{key, message})
}

// Describe returns the text the module places in its own memory.
func (c *Crypto) Describe(ctx context.Context) (string, error) {
	out, err := c.call(ctx, cryptoabi.Describe, nil)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c *Crypto) call(ctx context.Context, op boundary.Op, inputs [][]byte, scalars ...uint64) ([]byte, error) {
	c.logger.Debug("Calling operation",
		zap.String("op", op.Name),
		zap.Stringer("shape", c.shape),
	)

	if c.shape == DirectShape {
		return c.direct.CallBytes(ctx, op.Name, inputs, scalars)
	}

	res, err := boundary.Invoke(ctx, c.mod, op, boundary.Args{Inputs: inputs, Scalars: scalars})
	if err != nil {
		return nil, err
	}
	if len(res.Outputs) != 1 {
		return nil, fmt.Errorf("operation '%s' produced %d outputs, want 1", op.Name, len(res.Outputs))
	}
	return res.Outputs[0], nil
}
