package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/config"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/service"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/pkg/protocol"
)

// execute starts a service, runs req on it and prints the rendered response.
func execute(ctx context.Context, cfg *config.Config, logger *zap.Logger, req *protocol.Request) error {
	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Service close failed", zap.Error(err))
		}
	}()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	resp, err := svc.Do(ctx, req)
	if err != nil {
		return err
	}

	fmt.Print(service.Render(resp))
	if !resp.Success {
		return fmt.Errorf("%s failed: %s", resp.Tag, resp.Error)
	}
	return nil
}

// decodeHex accepts an empty string as "not provided".
func decodeHex(field, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("-%s: %w", field, err)
	}
	return b, nil
}

// readPassword prompts on the terminal without echo.
func readPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("no -password given and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return pw, nil
}

func runDerive(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	password := fs.String("password", "", "password (prompted when empty)")
	salt := fs.String("salt", "", "salt, at least 8 bytes")
	timeCost := fs.Uint("time", 0, "Argon2id time cost (0 uses kdf.time_cost)")
	memoryCost := fs.Uint("memory", 0, "Argon2id memory cost in KiB (0 uses kdf.memory_cost)")
	parallelism := fs.Uint("parallelism", 0, "Argon2id parallelism (0 uses kdf.parallelism)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw := []byte(*password)
	if len(pw) == 0 {
		var err error
		if pw, err = readPassword(); err != nil {
			return err
		}
	}

	return execute(ctx, cfg, logger, &protocol.Request{
		Tag:         protocol.TagKeyDerivation,
		Password:    pw,
		Salt:        []byte(*salt),
		TimeCost:    uint32(*timeCost),
		MemoryCost:  uint32(*memoryCost),
		Parallelism: uint32(*parallelism),
	})
}

func runEncrypt(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	keyHex := fs.String("key", "", "hex AES-256 key (demo key when empty)")
	nonceHex := fs.String("nonce", "", "hex 12-byte nonce (demo nonce when empty)")
	aad := fs.String("aad", "", "additional authenticated data")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wasmcrypt encrypt [flags] <plaintext>")
	}

	key, err := decodeHex("key", *keyHex)
	if err != nil {
		return err
	}
	nonce, err := decodeHex("nonce", *nonceHex)
	if err != nil {
		return err
	}

	return execute(ctx, cfg, logger, &protocol.Request{
		Tag:       protocol.TagEncryption,
		Key:       key,
		Nonce:     nonce,
		Plaintext: []byte(fs.Arg(0)),
		AAD:       []byte(*aad),
	})
}

func runHMAC(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("hmac", flag.ContinueOnError)
	key := fs.String("key", "", "HMAC key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wasmcrypt hmac -key <key> <message>")
	}

	return execute(ctx, cfg, logger, &protocol.Request{
		Tag:     protocol.TagHMAC,
		Key:     []byte(*key),
		Message: []byte(fs.Arg(0)),
	})
}

func runProbe(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	ops := fs.Int("n", 0, "operation count (0 uses probe.operations)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return execute(ctx, cfg, logger, &protocol.Request{
		Tag:        protocol.TagPerformance,
		Operations: *ops,
	})
}
