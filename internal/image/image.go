// Package image catalogs module images on disk. Each image lives in its own
// directory with a manifest.yaml declaring the export table it provides and
// the imports it needs; the catalog checks both against the compiled module
// and hands out factories for fresh instances.
package image

import (
	"time"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/wasm"
)

// Image represents a loaded module image with its manifest and compiled module.
type Image struct {
	// Manifest is the parsed image metadata
	Manifest *Manifest

	// Compiled is the compiled Wasm module
	Compiled *wasm.CompiledModule

	// LoadedAt is the timestamp when the image was loaded
	LoadedAt time.Time
}

// Name returns the image name.
func (i *Image) Name() string {
	return i.Manifest.Name
}

// ABI returns the calling convention the image implements.
func (i *Image) ABI() string {
	return i.Manifest.ABI
}

// Version returns the image version.
func (i *Image) Version() string {
	return i.Manifest.Version
}

// Source returns the module source for instantiating the image.
func (i *Image) Source() wasm.ModuleSource {
	return &wasm.FileModuleSource{Path: i.Manifest.WasmPath()}
}

// Exports returns the names of the declared exports.
func (i *Image) Exports() []string {
	names := make([]string, len(i.Manifest.Exports))
	for n, e := range i.Manifest.Exports {
		names[n] = e.Name
	}
	return names
}
