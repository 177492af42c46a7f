package image

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/wasm"
)

// Loader handles loading images from disk.
type Loader struct {
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a new image loader.
func NewLoader(moduleLoader *wasm.ModuleLoader, logger *zap.Logger) *Loader {
	return &Loader{
		moduleLoader: moduleLoader,
		logger:       logger.With(zap.String("component", "image-loader")),
	}
}

// LoadImage loads a single image from a directory.
func (l *Loader) LoadImage(ctx context.Context, dir string) (*Image, error) {
	l.logger.Debug("Loading image", zap.String("dir", dir))

	// Parse manifest
	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loading image",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.String("abi", manifest.ABI),
	)

	// Compile module (uses internal caching)
	compiled, err := l.moduleLoader.LoadModuleFromFile(ctx, manifest.WasmPath())
	if err != nil {
		return nil, &ImageLoadError{
			ImageName: manifest.Name,
			Err:       err,
		}
	}

	if err := checkCompiled(manifest, compiled); err != nil {
		return nil, &ImageLoadError{
			ImageName: manifest.Name,
			Err:       err,
		}
	}

	img := &Image{
		Manifest: manifest,
		Compiled: compiled,
		LoadedAt: time.Now(),
	}

	l.logger.Info("Image loaded successfully",
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", compiled.SizeBytes),
	)

	return img, nil
}

// checkCompiled verifies the compiled module carries every declared export
// with the declared shape and imports nothing the manifest does not declare.
// "wasi: true" declares the whole WASI module at once.
func checkCompiled(manifest *Manifest, compiled *wasm.CompiledModule) error {
	declared, err := manifest.ExportTable()
	if err != nil {
		return err
	}
	actual := compiled.Exports()
	for _, name := range sortedKeys(declared) {
		got, ok := actual[name]
		if !ok {
			return &boundary.ValidationError{
				Module: manifest.Name,
				Err:    fmt.Errorf("declared export '%s' is missing", name),
			}
		}
		if want := declared[name]; !got.Equal(want) {
			return &boundary.ValidationError{
				Module: manifest.Name,
				Err:    fmt.Errorf("export '%s' has signature %s, manifest declares %s", name, got, want),
			}
		}
	}

	imports, err := manifest.ImportTable()
	if err != nil {
		return err
	}
	for qualified, got := range compiled.Imports() {
		if manifest.WASI && strings.HasPrefix(qualified, wasiPrefix) {
			continue
		}
		want, ok := imports[qualified]
		if !ok {
			return &boundary.ValidationError{
				Module: manifest.Name,
				Err:    fmt.Errorf("import '%s' is not declared in the manifest", qualified),
			}
		}
		if !got.Equal(want) {
			return &boundary.ValidationError{
				Module: manifest.Name,
				Err:    fmt.Errorf("import '%s' has signature %s, manifest declares %s", qualified, got, want),
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]boundary.Signature) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DiscoverImages scans directories for images.
func (l *Loader) DiscoverImages(ctx context.Context, paths []string) ([]*Image, error) {
	var images []*Image
	var errs []error

	for _, basePath := range paths {
		l.logger.Debug("Scanning image directory", zap.String("path", basePath))

		// Read subdirectories
		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Image path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		// Try to load each subdirectory as an image
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			imageDir := filepath.Join(basePath, entry.Name())

			img, err := l.LoadImage(ctx, imageDir)
			if err != nil {
				l.logger.Error("Failed to load image",
					zap.String("dir", imageDir),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}

			images = append(images, img)
		}
	}

	// If we found some images but had errors, log warning but continue
	if len(images) > 0 && len(errs) > 0 {
		l.logger.Warn("Some images failed to load",
			zap.Int("loaded", len(images)),
			zap.Int("failed", len(errs)),
		)
	}

	// If no images loaded, return error
	if len(images) == 0 {
		return nil, &NoImagesFoundError{Paths: paths}
	}

	return images, nil
}
