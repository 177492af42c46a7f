package image

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/wasm/wasmtest"
)

// rawManifest declares the exports wasmtest.Build produces.
const rawManifest = `
name: %s
version: 1.0.0
abi: raw
wasm:
  file: module.wasm
exports:
  - name: alloc
    params: [i32]
    results: [i32]
  - name: dealloc
    params: [i32, i32]
  - name: xor_key
    params: [i32, i32, i32, i32, i32]
    results: [i32]
  - name: describe
    results: [i64]
`

// writeImage lays out dir/name/{manifest.yaml,module.wasm}.
func writeImage(t *testing.T, dir, name, manifest string, module []byte) string {
	t.Helper()
	imageDir := filepath.Join(dir, name)
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(imageDir, "manifest.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if module != nil {
		if err := os.WriteFile(filepath.Join(imageDir, "module.wasm"), module, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return imageDir
}

func writeRawImage(t *testing.T, dir, name string) string {
	t.Helper()
	return writeImage(t, dir, name, fmt.Sprintf(rawManifest, name), wasmtest.Build())
}
