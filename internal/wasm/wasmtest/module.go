// Package wasmtest assembles small, valid module images for engine tests.
//
// The generated module exports a linear memory, a bump allocator, an
// xor-with-key operation that follows the status-returning calling
// convention, an operation that places its own output and returns a packed
// (ptr, len) pair, and an operation that traps.
package wasmtest

import (
	"bytes"
)

// Export names of the generated module.
const (
	ExportMemory   = "memory"
	ExportAlloc    = "alloc"
	ExportDealloc  = "dealloc"
	ExportXorKey   = "xor_key"
	ExportDescribe = "describe"
	ExportTrap     = "trap"
	ExportSay      = "say"
)

// DescribeText is what the describe export places in memory.
const DescribeText = "wasmtest bump module"

// SayText is the message the say export logs through env.log_message.
const SayText = "hello from guest"

// HeapBase is the first address the bump allocator hands out.
const HeapBase = 1024

// StatusEmptyKey is returned by xor_key when the key is empty.
const StatusEmptyKey = 2

const (
	describeOffset = 16
	sayOffset      = 64
)

type config struct {
	minPages      uint32
	maxPages      uint32
	logImport     bool
	missingImport bool
	badLogImport  bool
	badAlloc      bool
}

// Option configures Build.
type Option func(*config)

// WithPages sets the initial and maximum memory size in 64KiB pages.
// A zero max leaves the memory unbounded.
func WithPages(min, max uint32) Option {
	return func(c *config) {
		c.minPages = min
		c.maxPages = max
	}
}

// WithLogImport imports env.log_message and exports say, which calls it.
func WithLogImport() Option {
	return func(c *config) {
		c.logImport = true
	}
}

// WithMissingImport imports env.missing_fn, which no host provides.
func WithMissingImport() Option {
	return func(c *config) {
		c.missingImport = true
	}
}

// WithBadLogImport imports env.log_message with the wrong arity.
func WithBadLogImport() Option {
	return func(c *config) {
		c.badLogImport = true
	}
}

// WithBadAllocSignature exports an alloc that takes a size and returns
// nothing.
func WithBadAllocSignature() Option {
	return func(c *config) {
		c.badAlloc = true
	}
}

// Malformed returns bytes with a valid magic but an unsupported version.
func Malformed() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00, 0x01}
}

type importDef struct {
	module, name string
	typ          funcType
}

type exportDef struct {
	name string
	kind byte
	idx  uint32
}

// Build assembles the module image.
func Build(opts ...Option) []byte {
	cfg := config{minPages: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	i32 := []byte{valI32}

	var imports []importDef
	logIdx := uint32(0)
	if cfg.logImport {
		logIdx = uint32(len(imports))
		imports = append(imports, importDef{"env", "log_message", funcType{params: []byte{valI32, valI32, valI32}}})
	}
	if cfg.badLogImport {
		imports = append(imports, importDef{"env", "log_message", funcType{params: i32}})
	}
	if cfg.missingImport {
		imports = append(imports, importDef{"env", "missing_fn", funcType{}})
	}

	base := uint32(len(imports))
	allocIdx := base

	type fn struct {
		export string
		typ    funcType
		body   []byte
	}

	allocBody := code(nil).
		idx(opGlobalGet, 0).idx(opLocalSet, 1).
		idx(opLocalGet, 1).idx(opLocalGet, 0).i32(7).op(opI32Add).i32(-8).op(opI32And).op(opI32Add).idx(opLocalSet, 2).
		op(opBlock, blockEmpty).
		idx(opLocalGet, 2).op(opMemorySize, 0x00).i32(16).op(opI32Shl).op(opI32LeU).idx(opBrIf, 0).
		idx(opLocalGet, 2).op(opMemorySize, 0x00).i32(16).op(opI32Shl).op(opI32Sub).
		i32(65535).op(opI32Add).i32(16).op(opI32ShrU).
		op(opMemoryGrow, 0x00).i32(-1).op(opI32Eq).
		op(opIf, blockEmpty).i32(0).op(opReturn).op(opEnd).
		op(opEnd).
		idx(opLocalGet, 2).idx(opGlobalSet, 0).
		idx(opLocalGet, 1)

	xorBody := code(nil).
		idx(opLocalGet, 1).op(opI32Eqz).op(opIf, blockEmpty).i32(StatusEmptyKey).op(opReturn).op(opEnd).
		i32(0).idx(opLocalSet, 5).
		op(opBlock, blockEmpty).op(opLoop, blockEmpty).
		idx(opLocalGet, 5).idx(opLocalGet, 3).op(opI32GeU).idx(opBrIf, 1).
		idx(opLocalGet, 4).idx(opLocalGet, 5).op(opI32Add).
		idx(opLocalGet, 2).idx(opLocalGet, 5).op(opI32Add).mem(opI32Load8U).
		idx(opLocalGet, 0).idx(opLocalGet, 5).idx(opLocalGet, 1).op(opI32RemU).op(opI32Add).mem(opI32Load8U).
		op(opI32Xor).
		mem(opI32Store8).
		idx(opLocalGet, 5).i32(1).op(opI32Add).idx(opLocalSet, 5).
		idx(opBr, 0).
		op(opEnd).op(opEnd).
		i32(0)

	n := int32(len(DescribeText))
	describeBody := code(nil).i32(n).idx(opCall, allocIdx)
	if cfg.badAlloc {
		describeBody = code(nil).i32(HeapBase)
	}
	describeBody = describeBody.idx(opLocalTee, 0).
		i32(describeOffset).i32(n).op(opPrefixFC, opMemoryCopy, 0x00, 0x00).
		idx(opLocalGet, 0).op(opI64ExtendU).i64(32).op(opI64Shl).i64(int64(n)).op(opI64Or)

	alloc := fn{ExportAlloc, funcType{params: i32, results: i32}, body(2, allocBody)}
	if cfg.badAlloc {
		alloc = fn{ExportAlloc, funcType{params: i32}, body(0, nil)}
	}

	funcs := []fn{
		alloc,
		{ExportDealloc, funcType{params: []byte{valI32, valI32}}, body(0, nil)},
		{ExportXorKey, funcType{params: []byte{valI32, valI32, valI32, valI32, valI32}, results: i32}, body(1, xorBody)},
		{ExportDescribe, funcType{results: []byte{valI64}}, body(1, describeBody)},
		{ExportTrap, funcType{}, body(0, code(nil).op(opUnreachable))},
	}
	if cfg.logImport {
		sayBody := code(nil).i32(1).i32(sayOffset).i32(int32(len(SayText))).idx(opCall, logIdx)
		funcs = append(funcs, fn{ExportSay, funcType{}, body(0, sayBody)})
	}

	// Types: one per import, then one per defined function.
	var types [][]byte
	var importEntries [][]byte
	for i, imp := range imports {
		types = append(types, imp.typ.encode())
		e := appendName(nil, imp.module)
		e = appendName(e, imp.name)
		e = append(e, kindFunc)
		e = appendULEB128(e, uint64(i))
		importEntries = append(importEntries, e)
	}

	var funcEntries, codeEntries [][]byte
	exports := []exportDef{{ExportMemory, kindMemory, 0}}
	for i, f := range funcs {
		typeIdx := uint32(len(types))
		types = append(types, f.typ.encode())
		funcEntries = append(funcEntries, appendULEB128(nil, uint64(typeIdx)))
		codeEntries = append(codeEntries, f.body)
		exports = append(exports, exportDef{f.export, kindFunc, base + uint32(i)})
	}

	var exportEntries [][]byte
	for _, e := range exports {
		b := appendName(nil, e.name)
		b = append(b, e.kind)
		b = appendULEB128(b, uint64(e.idx))
		exportEntries = append(exportEntries, b)
	}

	var limits []byte
	if cfg.maxPages > 0 {
		limits = appendULEB128([]byte{0x01}, uint64(cfg.minPages))
		limits = appendULEB128(limits, uint64(cfg.maxPages))
	} else {
		limits = appendULEB128([]byte{0x00}, uint64(cfg.minPages))
	}

	heapGlobal := append([]byte{valI32, 0x01}, code(nil).i32(HeapBase).op(opEnd)...)

	dataEntries := [][]byte{
		dataSegment(describeOffset, DescribeText),
		dataSegment(sayOffset, SayText),
	}

	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})
	writeSection(&buf, sectionType, appendVec(nil, types))
	if len(importEntries) > 0 {
		writeSection(&buf, sectionImport, appendVec(nil, importEntries))
	}
	writeSection(&buf, sectionFunction, appendVec(nil, funcEntries))
	writeSection(&buf, sectionMemory, appendVec(nil, [][]byte{limits}))
	writeSection(&buf, sectionGlobal, appendVec(nil, [][]byte{heapGlobal}))
	writeSection(&buf, sectionExport, appendVec(nil, exportEntries))
	writeSection(&buf, sectionCode, appendVec(nil, codeEntries))
	writeSection(&buf, sectionData, appendVec(nil, dataEntries))
	return buf.Bytes()
}

func dataSegment(offset int32, text string) []byte {
	b := []byte{0x00}
	b = append(b, code(nil).i32(offset).op(opEnd)...)
	return appendName(b, text)
}
