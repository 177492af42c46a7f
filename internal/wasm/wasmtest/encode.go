package wasmtest

import (
	"bytes"
)

// Binary format constants used by the builder.
const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	valI32 = 0x7F
	valI64 = 0x7E

	kindFunc   = 0x00
	kindMemory = 0x02
)

// Opcodes.
const (
	opUnreachable = 0x00
	opBlock       = 0x02
	opLoop        = 0x03
	opIf          = 0x04
	opEnd         = 0x0B
	opBr          = 0x0C
	opBrIf        = 0x0D
	opReturn      = 0x0F
	opCall        = 0x10
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opLocalTee    = 0x22
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load8U   = 0x2D
	opI32Store8   = 0x3A
	opMemorySize  = 0x3F
	opMemoryGrow  = 0x40
	opI32Const    = 0x41
	opI64Const    = 0x42
	opI32Eqz      = 0x45
	opI32Eq       = 0x46
	opI32LeU      = 0x4D
	opI32GeU      = 0x4F
	opI32Add      = 0x6A
	opI32Sub      = 0x6B
	opI32RemU     = 0x70
	opI32And      = 0x71
	opI32Xor      = 0x73
	opI32Shl      = 0x74
	opI32ShrU     = 0x76
	opI64Or       = 0x84
	opI64Shl      = 0x86
	opI64ExtendU  = 0xAD
	opPrefixFC    = 0xFC
	opMemoryCopy  = 0x0A

	blockEmpty = 0x40
)

// appendULEB128 appends v as unsigned LEB128.
func appendULEB128(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			dst = append(dst, b|0x80)
			continue
		}
		return append(dst, b)
	}
}

// appendSLEB128 appends v as signed LEB128.
func appendSLEB128(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if done {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

func appendName(dst []byte, s string) []byte {
	dst = appendULEB128(dst, uint64(len(s)))
	return append(dst, s...)
}

func appendVec(dst []byte, items [][]byte) []byte {
	dst = appendULEB128(dst, uint64(len(items)))
	for _, item := range items {
		dst = append(dst, item...)
	}
	return dst
}

func writeSection(buf *bytes.Buffer, id byte, payload []byte) {
	buf.WriteByte(id)
	buf.Write(appendULEB128(nil, uint64(len(payload))))
	buf.Write(payload)
}

// code is a small instruction emitter.
type code []byte

func (c code) op(ops ...byte) code { return append(c, ops...) }

func (c code) i32(v int32) code { return appendSLEB128(append(c, opI32Const), int64(v)) }

func (c code) i64(v int64) code { return appendSLEB128(append(c, opI64Const), v) }

func (c code) idx(op byte, i uint32) code { return appendULEB128(append(c, op), uint64(i)) }

// mem emits a memory instruction with a zero alignment hint and offset.
func (c code) mem(op byte) code { return append(c, op, 0x00, 0x00) }

type funcType struct {
	params  []byte
	results []byte
}

func (f funcType) encode() []byte {
	b := []byte{0x60}
	b = appendULEB128(b, uint64(len(f.params)))
	b = append(b, f.params...)
	b = appendULEB128(b, uint64(len(f.results)))
	return append(b, f.results...)
}

// body encodes a function body with i32 locals.
func body(i32Locals uint32, instrs code) []byte {
	var b []byte
	if i32Locals == 0 {
		b = appendULEB128(b, 0)
	} else {
		b = appendULEB128(b, 1)
		b = appendULEB128(b, uint64(i32Locals))
		b = append(b, valI32)
	}
	b = append(b, instrs...)
	b = append(b, opEnd)
	return append(appendULEB128(nil, uint64(len(b))), b...)
}
