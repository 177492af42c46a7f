package memory

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ElementType is the numeric interpretation of a view element.
type ElementType uint8

const (
	Uint8 ElementType = iota
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float32
	Float64
)

// Width returns the element size in bytes.
func (t ElementType) Width() uint32 {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	}
	return 0
}

// Signed reports whether the element is a two's-complement signed integer.
func (t ElementType) Signed() bool {
	return t == Int8 || t == Int16 || t == Int32 || t == Int64
}

// Float reports whether the element is an IEEE-754 value.
func (t ElementType) Float() bool {
	return t == Float32 || t == Float64
}

func (t ElementType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Uint64:
		return "uint64"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("element(%d)", uint8(t))
}

// Overflow selects how integer views store out-of-range values.
type Overflow uint8

const (
	// Wrapping truncates to the element width (two's complement).
	Wrapping Overflow = iota
	// Saturate clamps to the element's representable minimum or maximum.
	Saturate
)

// String returns "wrapping" or "saturate".
func (o Overflow) String() string {
	if o == Saturate {
		return "saturate"
	}
	return "wrapping"
}

// intRange returns the representable bounds of an integer element type.
func intRange(t ElementType) (min int64, max uint64) {
	bits := t.Width() * 8
	if t.Signed() {
		return -1 << (bits - 1), 1<<(bits-1) - 1
	}
	if bits == 64 {
		return 0, math.MaxUint64
	}
	return 0, 1<<bits - 1
}

// bitsFromInt converts a host integer to the element's bit pattern.
func bitsFromInt(t ElementType, o Overflow, v int64) uint64 {
	if t.Float() {
		return bitsFromFloat(t, o, float64(v))
	}
	if o == Saturate {
		min, max := intRange(t)
		switch {
		case v < min:
			v = min
		case v > 0 && uint64(v) > max:
			return max
		}
	}
	return uint64(v)
}

// bitsFromUint converts a host unsigned integer to the element's bit pattern.
func bitsFromUint(t ElementType, o Overflow, v uint64) uint64 {
	if t.Float() {
		return bitsFromFloat(t, o, float64(v))
	}
	if o == Saturate {
		if _, max := intRange(t); v > max {
			return max
		}
	}
	return v
}

// bitsFromFloat converts a host float. Wrapping integer views truncate
// toward zero then reduce modulo 2^width; NaN and infinities store zero.
// Saturating views round half to even and clamp; NaN stores zero.
func bitsFromFloat(t ElementType, o Overflow, v float64) uint64 {
	switch t {
	case Float32:
		return uint64(math.Float32bits(float32(v)))
	case Float64:
		return math.Float64bits(v)
	}

	if math.IsNaN(v) {
		return 0
	}

	if o == Saturate {
		min, max := intRange(t)
		r := math.RoundToEven(v)
		if r <= float64(min) {
			return uint64(min)
		}
		if r >= float64(max) {
			return max
		}
		if r < 0 {
			return uint64(int64(r))
		}
		return uint64(r)
	}

	if math.IsInf(v, 0) {
		return 0
	}
	modulus := math.Ldexp(1, int(t.Width()*8))
	m := math.Mod(math.Trunc(v), modulus)
	if m < 0 {
		m += modulus
	}
	if m >= modulus {
		return 0
	}
	return uint64(m)
}

// putBits stores the low width bytes of bits into dst using order.
func putBits(t ElementType, order binary.ByteOrder, dst []byte, bits uint64) {
	switch t.Width() {
	case 1:
		dst[0] = byte(bits)
	case 2:
		order.PutUint16(dst, uint16(bits))
	case 4:
		order.PutUint32(dst, uint32(bits))
	case 8:
		order.PutUint64(dst, bits)
	}
}

// loadBits reads the element's raw bit pattern from src.
func loadBits(t ElementType, order binary.ByteOrder, src []byte) uint64 {
	switch t.Width() {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(order.Uint16(src))
	case 4:
		return uint64(order.Uint32(src))
	case 8:
		return order.Uint64(src)
	}
	return 0
}

// signExtend interprets the low width bytes of bits as a signed integer.
func signExtend(t ElementType, bits uint64) int64 {
	shift := 64 - t.Width()*8
	return int64(bits<<shift) >> shift
}

func floatFromBits(t ElementType, bits uint64) float64 {
	switch t {
	case Float32:
		return float64(math.Float32frombits(uint32(bits)))
	case Float64:
		return math.Float64frombits(bits)
	}
	if t.Signed() {
		return float64(signExtend(t, bits))
	}
	return float64(bits)
}
