package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Engines that can host the crypto module.
const (
	EngineNative = "native"
	EngineWazero = "wazero"
	EngineWasmer = "wasmer"
)

// EnvPrefix prefixes environment overrides, e.g. WASMCRYPT_POOL_WORKERS.
const EnvPrefix = "WASMCRYPT"

type Config struct {
	LogLevel   string       `mapstructure:"log_level"`
	Engine     string       `mapstructure:"engine"`
	ImagePaths []string     `mapstructure:"image_paths"`
	Image      string       `mapstructure:"image"`
	CallShape  string       `mapstructure:"call_shape"`
	Pool       PoolConfig   `mapstructure:"pool"`
	Wasm       WasmConfig   `mapstructure:"wasm"`
	Native     NativeConfig `mapstructure:"native"`
	KDF        KDFConfig    `mapstructure:"kdf"`
	Probe      ProbeConfig  `mapstructure:"probe"`
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	// Number of workers, each owning one module instance.
	Workers int `mapstructure:"workers"`
	// Per-worker inbox capacity.
	Mailbox int `mapstructure:"mailbox"`
	// Non-zero seeds the random worker selector.
	Seed int64 `mapstructure:"seed"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug logging.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Provide WASI imports to guests that declare them.
	WASI bool `mapstructure:"wasi"`
}

// NativeConfig sizes the host-native module's region.
type NativeConfig struct {
	InitialPages uint32 `mapstructure:"initial_pages"`
	MaxPages     uint32 `mapstructure:"max_pages"`
}

// KDFConfig holds the Argon2id costs used for key derivation requests.
type KDFConfig struct {
	TimeCost    uint32 `mapstructure:"time_cost"`
	MemoryCost  uint32 `mapstructure:"memory_cost"` // KiB
	Parallelism uint32 `mapstructure:"parallelism"`
}

// ProbeConfig controls the performance probe.
type ProbeConfig struct {
	Operations int `mapstructure:"operations"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("engine", EngineNative)
	v.SetDefault("image_paths", []string{"./images"})
	v.SetDefault("image", "")
	v.SetDefault("call_shape", "pointer")

	v.SetDefault("pool.workers", runtime.NumCPU())
	v.SetDefault("pool.mailbox", 16)
	v.SetDefault("pool.seed", 0)

	// Wasm defaults. Argon2id at the default cost needs 64MiB of guest
	// memory on top of the Go runtime's own heap.
	v.SetDefault("wasm.memory_pages", 2048) // 128MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.wasi", true)

	v.SetDefault("native.initial_pages", 1)
	v.SetDefault("native.max_pages", 1024)

	v.SetDefault("kdf.time_cost", 3)
	v.SetDefault("kdf.memory_cost", 65536)
	v.SetDefault("kdf.parallelism", 4)

	v.SetDefault("probe.operations", 100)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// FieldError reports an invalid configuration value.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid configuration '%s': %s", e.Field, e.Message)
}

// Validate checks values viper cannot type-check on its own.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineNative:
	case EngineWazero, EngineWasmer:
		if c.Image == "" {
			return &FieldError{Field: "image", Message: fmt.Sprintf("required when engine is %s", c.Engine)}
		}
	default:
		return &FieldError{
			Field:   "engine",
			Message: fmt.Sprintf("unsupported engine: %s (must be one of: native, wazero, wasmer)", c.Engine),
		}
	}

	switch c.CallShape {
	case "pointer", "direct":
	default:
		return &FieldError{Field: "call_shape", Message: fmt.Sprintf("unsupported call shape: %s (must be pointer or direct)", c.CallShape)}
	}

	if c.Pool.Workers < 1 {
		return &FieldError{Field: "pool.workers", Message: "at least one worker is required"}
	}
	if c.Pool.Mailbox < 1 {
		return &FieldError{Field: "pool.mailbox", Message: "must be positive"}
	}
	if c.Native.InitialPages == 0 || c.Native.MaxPages < c.Native.InitialPages {
		return &FieldError{Field: "native.max_pages", Message: "must be at least native.initial_pages, which must be positive"}
	}
	if c.KDF.TimeCost == 0 || c.KDF.Parallelism == 0 || c.KDF.Parallelism > 255 {
		return &FieldError{Field: "kdf", Message: "time_cost must be positive and parallelism within 1..255"}
	}
	if c.Probe.Operations < 1 {
		return &FieldError{Field: "probe.operations", Message: "must be positive"}
	}
	return nil
}
