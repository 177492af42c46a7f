package config

import (
	"errors"
	"os"
	"runtime"
	"testing"
)

func writeConfig(t *testing.T, pattern, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Default log level mismatch: got %s, want info", cfg.LogLevel)
	}

	if cfg.Engine != EngineNative {
		t.Errorf("Default engine mismatch: got %s, want native", cfg.Engine)
	}

	if len(cfg.ImagePaths) != 1 || cfg.ImagePaths[0] != "./images" {
		t.Errorf("Default image paths mismatch: got %v, want [./images]", cfg.ImagePaths)
	}

	if cfg.Pool.Workers != runtime.NumCPU() {
		t.Errorf("Default workers mismatch: got %d, want %d", cfg.Pool.Workers, runtime.NumCPU())
	}

	if cfg.Wasm.MemoryPages != 2048 {
		t.Errorf("Default memory pages mismatch: got %d, want 2048", cfg.Wasm.MemoryPages)
	}

	if cfg.KDF.TimeCost != 3 || cfg.KDF.MemoryCost != 65536 || cfg.KDF.Parallelism != 4 {
		t.Errorf("Default kdf costs mismatch: got %+v", cfg.KDF)
	}

	if cfg.CallShape != "pointer" || !cfg.Wasm.WASI {
		t.Errorf("Default call shape / wasi mismatch: got %s / %v", cfg.CallShape, cfg.Wasm.WASI)
	}

	if cfg.Probe.Operations != 100 {
		t.Errorf("Default probe operations mismatch: got %d, want 100", cfg.Probe.Operations)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, "config*.yaml", `
log_level: debug
engine: wazero
image: crypto
pool:
  workers: 2
  seed: 7
kdf:
  memory_cost: 1024
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Log level mismatch: got %s, want debug", cfg.LogLevel)
	}

	if cfg.Engine != EngineWazero || cfg.Image != "crypto" {
		t.Errorf("Engine mismatch: got %s/%s", cfg.Engine, cfg.Image)
	}

	if cfg.Pool.Workers != 2 || cfg.Pool.Seed != 7 || cfg.Pool.Mailbox != 16 {
		t.Errorf("Pool mismatch: got %+v", cfg.Pool)
	}

	if cfg.KDF.MemoryCost != 1024 || cfg.KDF.TimeCost != 3 {
		t.Errorf("KDF mismatch: got %+v", cfg.KDF)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "config*.toml", "engine = \"native\"\n[probe]\noperations = 5\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Probe.Operations != 5 {
		t.Errorf("Probe operations mismatch: got %d, want 5", cfg.Probe.Operations)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("WASMCRYPT_POOL_WORKERS", "3")
	t.Setenv("WASMCRYPT_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Pool.Workers != 3 {
		t.Errorf("Workers mismatch: got %d, want 3", cfg.Pool.Workers)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Log level mismatch: got %s, want warn", cfg.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		config string
		field  string
	}{
		{"unknown engine", "engine: v8\n", "engine"},
		{"wasm without image", "engine: wasmer\n", "image"},
		{"unknown call shape", "call_shape: bytes\n", "call_shape"},
		{"no workers", "pool:\n  workers: 0\n", "pool.workers"},
		{"inverted pages", "native:\n  initial_pages: 4\n  max_pages: 2\n", "native.max_pages"},
		{"too many lanes", "kdf:\n  parallelism: 300\n", "kdf"},
		{"no probe ops", "probe:\n  operations: 0\n", "probe.operations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config*.yaml", tt.config))

			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("Expected FieldError, got %v", err)
			}
			if fieldErr.Field != tt.field {
				t.Errorf("Field = %s, want %s", fieldErr.Field, tt.field)
			}
		})
	}
}
