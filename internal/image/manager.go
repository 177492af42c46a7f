package image

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/config"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/wasm"
)

// Manager manages the image catalog and hands out module factories.
type Manager struct {
	cfg         *config.Config
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	logger      *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a new image manager.
func NewManager(
	cfg *config.Config,
	runtime *wasm.Runtime,
	hostFuncs *wasm.HostFunctions,
	logger *zap.Logger,
) *Manager {
	moduleLoader := wasm.NewModuleLoader(runtime, logger)
	return &Manager{
		cfg:         cfg,
		runtime:     runtime,
		loader:      NewLoader(moduleLoader, logger),
		registry:    NewRegistry(logger),
		instanceMgr: wasm.NewInstanceManager(runtime, moduleLoader, hostFuncs, logger),
		logger:      logger.With(zap.String("component", "image-manager")),
	}
}

// LoadAll discovers and loads all images from configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("images already loaded")
	}

	m.logger.Info("Loading images",
		zap.Strings("paths", m.cfg.ImagePaths),
	)

	// Discover images
	images, err := m.loader.DiscoverImages(ctx, m.cfg.ImagePaths)
	if err != nil {
		// No images is not fatal: the native engine needs none
		var none *NoImagesFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No images found in configured paths",
				zap.Strings("paths", m.cfg.ImagePaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	// Register all images
	for _, img := range images {
		if err := m.registry.Register(img); err != nil {
			m.logger.Error("Failed to register image",
				zap.String("name", img.Manifest.Name),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Images loaded successfully",
		zap.Int("count", len(images)),
	)

	return nil
}

// GetImage retrieves an image by name.
func (m *Manager) GetImage(name string) (*Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	img, ok := m.registry.Get(name)
	if !ok {
		return nil, &ImageNotFoundError{ImageName: name}
	}

	return img, nil
}

// FindImageForABI finds an image implementing a calling convention.
func (m *Manager) FindImageForABI(abi string) (*Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	images := m.registry.LookupByABI(abi)
	if len(images) == 0 {
		return nil, fmt.Errorf("no image found for abi '%s'", abi)
	}

	// Return first match
	return images[0], nil
}

// Factory returns a factory producing fresh, uninitialized instances of the
// named image. Each instance compiles from the shared cache and owns its
// own linear memory.
func (m *Manager) Factory(name string) (boundary.Factory, error) {
	img, err := m.GetImage(name)
	if err != nil {
		return nil, err
	}
	return m.instanceMgr.Factory(img.Source()), nil
}

// Instantiate creates a ready instance of an image.
func (m *Manager) Instantiate(ctx context.Context, name string) (*wasm.Instance, error) {
	img, err := m.GetImage(name)
	if err != nil {
		return nil, err
	}

	instance := m.instanceMgr.NewInstance(img.Source())
	if err := instance.Init(ctx); err != nil {
		return nil, err
	}

	return instance, nil
}

// Shutdown gracefully shuts down all images.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down image manager")

	// Runtime close handles instance cleanup
	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}

	m.logger.Info("Image manager shutdown complete")
	return nil
}

// Registry returns the image registry (for testing/inspection).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether images have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
