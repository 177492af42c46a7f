package image

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/cryptoabi"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/wasm/wasmtest"
)

func TestParseManifest_Valid(t *testing.T) {
	dir := writeRawImage(t, t.TempDir(), "bump")

	manifest, err := ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if manifest.Name != "bump" {
		t.Errorf("expected Name 'bump', got '%s'", manifest.Name)
	}

	if manifest.ABI != ABIRaw {
		t.Errorf("expected ABI 'raw', got '%s'", manifest.ABI)
	}

	if manifest.WasmPath() != filepath.Join(dir, "module.wasm") {
		t.Errorf("unexpected WasmPath '%s'", manifest.WasmPath())
	}

	exports, err := manifest.ExportTable()
	if err != nil {
		t.Fatal(err)
	}
	want := boundary.Signature{
		Params:  []boundary.ValueType{boundary.I32, boundary.I32, boundary.I32, boundary.I32, boundary.I32},
		Results: []boundary.ValueType{boundary.I32},
	}
	if !exports["xor_key"].Equal(want) {
		t.Errorf("xor_key = %s, want %s", exports["xor_key"], want)
	}
}

func TestParseManifest_NotFound(t *testing.T) {
	_, err := ParseManifest(filepath.Join(t.TempDir(), "nonexistent"))

	var notFound *ManifestNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected ManifestNotFoundError, got %T", err)
	}
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	dir := writeImage(t, t.TempDir(), "broken", "name: [unterminated\n", nil)

	_, err := ParseManifest(dir)

	var parseErr *ManifestParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected ManifestParseError, got %T", err)
	}
}

func TestParseManifest_MissingModuleFile(t *testing.T) {
	dir := writeImage(t, t.TempDir(), "nofile", fmt.Sprintf(rawManifest, "nofile"), nil)

	_, err := ParseManifest(dir)

	var fileErr *ImageFileNotFoundError
	if !errors.As(err, &fileErr) {
		t.Fatalf("expected ImageFileNotFoundError, got %v", err)
	}
	if fileErr.File != "module.wasm" {
		t.Errorf("File = %s", fileErr.File)
	}
}

func TestParseManifest_Validation(t *testing.T) {
	valid := fmt.Sprintf(rawManifest, "v")

	tests := []struct {
		name     string
		manifest string
		field    string
	}{
		{"missing name", strings.Replace(valid, "name: v\n", "", 1), "name"},
		{"missing version", strings.Replace(valid, "version: 1.0.0\n", "", 1), "version"},
		{"unknown abi", strings.Replace(valid, "abi: raw", "abi: sql", 1), "abi"},
		{"missing file", strings.Replace(valid, "file: module.wasm", "file: \"\"", 1), "wasm.file"},
		{"bad value type", strings.Replace(valid, "results: [i64]", "results: [u64]", 1), "exports"},
		{"missing dealloc", strings.Replace(valid, "name: dealloc", "name: release", 1), "exports"},
		{"crypto abi lacks ops", strings.Replace(valid, "abi: raw", "abi: crypto", 1), "exports"},
		{"unknown import module", valid + "imports:\n  - module: os\n    name: exit\n", "imports"},
		{"wasi without flag", valid + "imports:\n  - module: wasi_snapshot_preview1\n    name: fd_write\n    params: [i32, i32, i32, i32]\n    results: [i32]\n", "imports"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeImage(t, t.TempDir(), "v", tt.manifest, wasmtest.Build())

			_, err := ParseManifest(dir)

			var validationErr *ManifestValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ManifestValidationError, got %v", err)
			}
			if validationErr.Field != tt.field {
				t.Errorf("Field = %s, want %s (%s)", validationErr.Field, tt.field, validationErr.Message)
			}
		})
	}
}

func TestCryptoManifest(t *testing.T) {
	var b strings.Builder
	b.WriteString("name: crypto\nversion: 1.0.0\nabi: crypto\nwasi: true\nwasm:\n  file: module.wasm\nexports:\n")
	for name, sig := range cryptoabi.Signatures() {
		fmt.Fprintf(&b, "  - name: %s\n    params: [%s]\n    results: [%s]\n", name, typeList(sig.Params), typeList(sig.Results))
	}

	dir := writeImage(t, t.TempDir(), "crypto", b.String(), wasmtest.Build())
	manifest, err := ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}
	if len(manifest.Exports) != len(cryptoabi.Signatures()) {
		t.Errorf("got %d exports", len(manifest.Exports))
	}
}

func typeList(ts []boundary.ValueType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func TestFindManifest(t *testing.T) {
	dir := t.TempDir()
	writeRawImage(t, dir, "first")
	writeRawImage(t, dir, "second")
	writeImage(t, dir, "broken", "name: [", nil)

	manifest, err := FindManifest([]string{filepath.Join(dir, "missing"), dir}, "second")
	if err != nil {
		t.Fatalf("FindManifest() failed: %v", err)
	}
	if manifest.Name != "second" || manifest.Dir() != filepath.Join(dir, "second") {
		t.Errorf("found %s in %s", manifest.Name, manifest.Dir())
	}

	var notFound *ImageNotFoundError
	if _, err := FindManifest([]string{dir}, "third"); !errors.As(err, &notFound) {
		t.Errorf("expected ImageNotFoundError, got %v", err)
	}
}
