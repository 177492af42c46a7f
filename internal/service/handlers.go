package service

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/cryptoabi"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/worker"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/pkg/protocol"
)

// Demo material used when an ENCRYPTION request brings no key or nonce.
var (
	DemoKey   = bytes.Repeat([]byte{0x42}, cryptoabi.KeySize)
	DemoNonce = bytes.Repeat([]byte{0x33}, cryptoabi.NonceSize)
)

// Probe inputs for PERFORMANCE.
const (
	probeKey     = "testkey"
	probeMessage = "message%d"
)

func (s *Service) register() {
	s.router.Handle(protocol.TagKeyDerivation, s.deriveKey)
	s.router.Handle(protocol.TagEncryption, s.encrypt)
	s.router.Handle(protocol.TagDecryption, s.decrypt)
	s.router.Handle(protocol.TagHMAC, s.hmac)
	s.router.Handle(protocol.TagPerformance, s.probe)
}

// argon2For returns the configured costs with any nonzero request cost
// taking precedence.
func (s *Service) argon2For(req *protocol.Request) cryptoabi.Argon2Params {
	p := s.kdf()
	if req.TimeCost != 0 {
		p.Time = req.TimeCost
	}
	if req.MemoryCost != 0 {
		p.Memory = req.MemoryCost
	}
	if req.Parallelism != 0 {
		p.Parallelism = req.Parallelism
	}
	return p
}

func (s *Service) deriveKey(ctx context.Context, env *worker.Env, req *protocol.Request) (*protocol.Response, error) {
	key, err := env.Crypto.DeriveKeyWith(ctx, req.Password, req.Salt, s.argon2For(req))
	if err != nil {
		return nil, err
	}
	return &protocol.Response{Key: key}, nil
}

// encrypt seals the plaintext and opens it again, so one response shows
// both directions of the round trip.
func (s *Service) encrypt(ctx context.Context, env *worker.Env, req *protocol.Request) (*protocol.Response, error) {
	key, nonce := req.Key, req.Nonce
	if len(key) == 0 {
		key = DemoKey
	}
	if len(nonce) == 0 {
		nonce = DemoNonce
	}

	ciphertext, err := env.Crypto.Encrypt(ctx, key, nonce, req.Plaintext, req.AAD)
	if err != nil {
		return nil, err
	}
	plaintext, err := env.Crypto.Decrypt(ctx, key, nonce, ciphertext, req.AAD)
	if err != nil {
		return nil, err
	}

	return &protocol.Response{
		OriginalText:  req.Plaintext,
		Ciphertext:    ciphertext,
		DecryptedText: plaintext,
	}, nil
}

func (s *Service) decrypt(ctx context.Context, env *worker.Env, req *protocol.Request) (*protocol.Response, error) {
	plaintext, err := env.Crypto.Decrypt(ctx, req.Key, req.Nonce, req.Ciphertext, req.AAD)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{Plaintext: plaintext}, nil
}

func (s *Service) hmac(ctx context.Context, env *worker.Env, req *protocol.Request) (*protocol.Response, error) {
	mac, err := env.Crypto.HMAC(ctx, req.Key, req.Message)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{HMAC: mac}, nil
}

// probe times a run of HMACs inside the worker.
func (s *Service) probe(ctx context.Context, env *worker.Env, req *protocol.Request) (*protocol.Response, error) {
	ops := req.Operations
	if ops <= 0 {
		ops = s.cfg.Probe.Operations
	}

	key := []byte(probeKey)
	start := time.Now()
	for i := 0; i < ops; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := env.Crypto.HMAC(ctx, key, fmt.Appendf(nil, probeMessage, i)); err != nil {
			return nil, err
		}
	}
	elapsed := time.Since(start)

	return &protocol.Response{
		Operations:   ops,
		TotalTime:    elapsed.Round(time.Millisecond).Milliseconds(),
		OpsPerSecond: opsPerSecond(ops, elapsed),
	}, nil
}

func opsPerSecond(ops int, elapsed time.Duration) int64 {
	if elapsed <= 0 {
		return 0
	}
	return int64(math.Round(float64(ops) / elapsed.Seconds()))
}
