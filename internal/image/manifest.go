package image

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/cryptoabi"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/wasm"
)

// Calling conventions an image may declare.
const (
	// ABICrypto images carry every export of the crypto module.
	ABICrypto = "crypto"
	// ABIRaw images only need the allocator pair.
	ABIRaw = "raw"
)

// wasiPrefix qualifies every WASI preview1 import.
const wasiPrefix = "wasi_snapshot_preview1."

// Manifest represents the image manifest.yaml structure.
type Manifest struct {
	Name    string       `yaml:"name"`
	Version string       `yaml:"version"`
	ABI     string       `yaml:"abi"`
	Wasm    WasmConfig   `yaml:"wasm"`
	WASI    bool         `yaml:"wasi"`
	Exports []FuncDecl   `yaml:"exports"`
	Imports []ImportDecl `yaml:"imports"`
	Author  string       `yaml:"author"`
	License string       `yaml:"license"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file"` // .wasm, or .wasm.br for brotli-compressed images
	Size int    `yaml:"size"` // KB
}

// FuncDecl declares the raw shape of one exported function.
type FuncDecl struct {
	Name    string   `yaml:"name"`
	Params  []string `yaml:"params"`
	Results []string `yaml:"results"`
}

// ImportDecl declares one host function the image imports.
type ImportDecl struct {
	Module  string   `yaml:"module"`
	Name    string   `yaml:"name"`
	Params  []string `yaml:"params"`
	Results []string `yaml:"results"`
}

// Qualified returns "module.name".
func (d ImportDecl) Qualified() string {
	return d.Module + "." + d.Name
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, "manifest.yaml")

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	// Validate manifest
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	// Check required fields
	if m.Name == "" {
		return m.invalid("name", "name is required")
	}

	if m.Version == "" {
		return m.invalid("version", "version is required")
	}

	if m.ABI != ABICrypto && m.ABI != ABIRaw {
		return m.invalid("abi", fmt.Sprintf("unsupported abi: %q (must be one of: crypto, raw)", m.ABI))
	}

	if m.Wasm.File == "" {
		return m.invalid("wasm.file", "wasm.file is required")
	}

	if len(m.Exports) == 0 {
		return m.invalid("exports", "at least one export is required")
	}

	exports, err := m.ExportTable()
	if err != nil {
		return err
	}

	required := map[string]boundary.Signature{
		wasm.AllocExport:   cryptoabi.Signatures()[cryptoabi.ExportAlloc],
		wasm.DeallocExport: cryptoabi.Signatures()[cryptoabi.ExportDealloc],
	}
	if m.ABI == ABICrypto {
		required = cryptoabi.Signatures()
	}
	for name, want := range required {
		got, ok := exports[name]
		if !ok {
			return m.invalid("exports", fmt.Sprintf("missing required export: %s", name))
		}
		if !got.Equal(want) {
			return m.invalid("exports", fmt.Sprintf("export %s declared as %s, abi %s requires %s", name, got, m.ABI, want))
		}
	}

	imports, err := m.ImportTable()
	if err != nil {
		return err
	}
	for qualified := range imports {
		switch {
		case strings.HasPrefix(qualified, wasm.HostModuleName+"."):
		case strings.HasPrefix(qualified, wasiPrefix):
			if !m.WASI {
				return m.invalid("imports", fmt.Sprintf("import %s requires wasi: true", qualified))
			}
		default:
			return m.invalid("imports", fmt.Sprintf("unknown import module: %s", qualified))
		}
	}

	// Validate module file exists
	if _, err := os.Stat(m.WasmPath()); os.IsNotExist(err) {
		return &ImageFileNotFoundError{
			ManifestPath: m.Path(),
			File:         m.Wasm.File,
		}
	}

	return nil
}

func (m *Manifest) invalid(field, message string) error {
	return &ManifestValidationError{Path: m.Path(), Field: field, Message: message}
}

// ExportTable returns the declared exports keyed by name.
func (m *Manifest) ExportTable() (map[string]boundary.Signature, error) {
	table := make(map[string]boundary.Signature, len(m.Exports))
	for _, e := range m.Exports {
		if e.Name == "" {
			return nil, m.invalid("exports", "export name is required")
		}
		if _, dup := table[e.Name]; dup {
			return nil, m.invalid("exports", fmt.Sprintf("duplicate export: %s", e.Name))
		}
		sig, err := m.signature("exports", e.Params, e.Results)
		if err != nil {
			return nil, err
		}
		table[e.Name] = sig
	}
	return table, nil
}

// ImportTable returns the declared imports keyed "module.name".
func (m *Manifest) ImportTable() (map[string]boundary.Signature, error) {
	table := make(map[string]boundary.Signature, len(m.Imports))
	for _, imp := range m.Imports {
		if imp.Module == "" || imp.Name == "" {
			return nil, m.invalid("imports", "import module and name are required")
		}
		sig, err := m.signature("imports", imp.Params, imp.Results)
		if err != nil {
			return nil, err
		}
		table[imp.Qualified()] = sig
	}
	return table, nil
}

func (m *Manifest) signature(field string, params, results []string) (boundary.Signature, error) {
	p, err := parseValueTypes(params)
	if err != nil {
		return boundary.Signature{}, m.invalid(field, err.Error())
	}
	r, err := parseValueTypes(results)
	if err != nil {
		return boundary.Signature{}, m.invalid(field, err.Error())
	}
	return boundary.Signature{Params: p, Results: r}, nil
}

func parseValueTypes(names []string) ([]boundary.ValueType, error) {
	out := make([]boundary.ValueType, len(names))
	for i, n := range names {
		switch n {
		case "i32":
			out[i] = boundary.I32
		case "i64":
			out[i] = boundary.I64
		case "f32":
			out[i] = boundary.F32
		case "f64":
			out[i] = boundary.F64
		default:
			return nil, fmt.Errorf("unknown value type: %s (must be one of: i32, i64, f32, f64)", n)
		}
	}
	return out, nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, "manifest.yaml")
}

// WasmPath returns the path to the module file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}

// FindManifest scans paths for the image directory whose manifest is named
// name, without compiling anything. Directories with broken manifests are
// skipped.
func FindManifest(paths []string, name string) (*Manifest, error) {
	for _, basePath := range paths {
		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			m, err := ParseManifest(filepath.Join(basePath, entry.Name()))
			if err != nil {
				continue
			}
			if m.Name == name {
				return m, nil
			}
		}
	}
	return nil, &ImageNotFoundError{ImageName: name}
}
