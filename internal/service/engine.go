package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/config"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/cryptomod"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/image"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/wasm"
)

// EngineFunc builds a module factory for an engine compiled in behind a
// build tag.
type EngineFunc func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (boundary.Factory, error)

var optionalEngines = map[string]EngineFunc{}

// ImageABIError reports a configured image that does not implement the
// crypto calling convention.
type ImageABIError struct {
	Image string
	ABI   string
}

func (e *ImageABIError) Error() string {
	return fmt.Sprintf("image '%s' implements abi '%s', not '%s'", e.Image, e.ABI, image.ABICrypto)
}

func (s *Service) engine(ctx context.Context, logger *zap.Logger) (boundary.Factory, error) {
	switch s.cfg.Engine {
	case config.EngineNative:
		return cryptomod.Factory(cryptomod.Config{
			InitialPages: s.cfg.Native.InitialPages,
			MaxPages:     s.cfg.Native.MaxPages,
		}, logger), nil

	case config.EngineWazero:
		return s.wazeroEngine(ctx, logger)
	}

	if build, ok := optionalEngines[s.cfg.Engine]; ok {
		return build(ctx, s.cfg, logger)
	}
	return nil, fmt.Errorf("engine '%s' is not compiled in (build with -tags %s)", s.cfg.Engine, s.cfg.Engine)
}

func (s *Service) wazeroEngine(ctx context.Context, logger *zap.Logger) (boundary.Factory, error) {
	runtime, err := wasm.NewRuntime(ctx, logger, &wasm.RuntimeConfig{
		MemoryPages:  s.cfg.Wasm.MemoryPages,
		DebugEnabled: s.cfg.Wasm.Debug,
		CacheDir:     s.cfg.Wasm.CacheDir,
		MaxInstances: s.cfg.Wasm.MaxInstances,
		WASI:         s.cfg.Wasm.WASI,
	})
	if err != nil {
		return nil, err
	}

	s.images = image.NewManager(s.cfg, runtime, wasm.NewHostFunctions(logger), logger)
	factory, err := s.cryptoFactory(ctx)
	if err != nil {
		_ = s.images.Shutdown(ctx)
		s.images = nil
		return nil, err
	}
	return factory, nil
}

func (s *Service) cryptoFactory(ctx context.Context) (boundary.Factory, error) {
	if err := s.images.LoadAll(ctx); err != nil {
		return nil, err
	}
	img, err := s.images.GetImage(s.cfg.Image)
	if err != nil {
		return nil, err
	}
	if img.ABI() != image.ABICrypto {
		return nil, &ImageABIError{Image: img.Name(), ABI: img.ABI()}
	}

	s.logger.Info("Using module image",
		zap.String("image", img.Name()),
		zap.String("version", img.Version()),
		zap.Strings("exports", img.Exports()),
	)
	return s.images.Factory(img.Name())
}
