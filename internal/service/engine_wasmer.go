//go:build wasmer

package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/config"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/image"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/wasm"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/wasmer"
)

func init() {
	optionalEngines[config.EngineWasmer] = wasmerEngine
}

// wasmerEngine reads the image straight from its manifest directory; the
// wazero compilation cache plays no part.
func wasmerEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (boundary.Factory, error) {
	manifest, err := image.FindManifest(cfg.ImagePaths, cfg.Image)
	if err != nil {
		return nil, err
	}
	if manifest.ABI != image.ABICrypto {
		return nil, &ImageABIError{Image: manifest.Name, ABI: manifest.ABI}
	}

	data, err := (&wasm.FileModuleSource{Path: manifest.WasmPath()}).Bytes()
	if err != nil {
		return nil, &image.ImageLoadError{ImageName: manifest.Name, Err: err}
	}

	return wasmer.Factory(wasmer.Config{
		Name:     manifest.Name,
		Image:    data,
		MaxPages: cfg.Wasm.MemoryPages,
		WASI:     manifest.WASI && cfg.Wasm.WASI,
	}, wasm.NewHostFunctions(logger), logger), nil
}
