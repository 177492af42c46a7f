package memory

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DataView decodes and encodes fixed-width scalars at explicit byte offsets
// relative to its own start. Multi-byte accessors are big-endian unless a
// byte order is passed for that call.
//
// DataView is independent of View: both may cover the same bytes.
type DataView struct {
	region *Region
	offset uint32
	length uint32
	gen    uint64
}

// NewDataView creates a data view over r. WithOffset and WithCount (in
// bytes) bound it; other view options are ignored.
func NewDataView(r *Region, opts ...ViewOption) (*DataView, error) {
	cfg := viewConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	capacity := uint64(r.Capacity())
	offset := uint64(cfg.offset)
	if offset > capacity {
		return nil, &BoundsError{Op: "dataview", Offset: offset, Capacity: capacity}
	}
	length := capacity - offset
	if cfg.hasCount {
		if cfg.count < 0 || uint64(cfg.count) > length {
			return nil, &BoundsError{Op: "dataview", Offset: offset, Length: uint64(int64(cfg.count)), Capacity: capacity}
		}
		length = uint64(cfg.count)
	}

	return &DataView{
		region: r,
		offset: cfg.offset,
		length: uint32(length),
		gen:    r.Generation(),
	}, nil
}

// ByteOffset returns the data view's start within the region.
func (d *DataView) ByteOffset() uint32 {
	return d.offset
}

// ByteLength returns the number of addressable bytes.
func (d *DataView) ByteLength() uint32 {
	return d.length
}

// Valid reports whether the region has not been resized since the data view
// was derived.
func (d *DataView) Valid() bool {
	return d.gen == d.region.Generation()
}

func (d *DataView) span(op string, off uint32, n uint32) ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%s at %d: %w", op, off, ErrStaleView)
	}
	if uint64(off)+uint64(n) > uint64(d.length) {
		return nil, &BoundsError{Op: op, Offset: uint64(off), Length: uint64(n), Capacity: uint64(d.length)}
	}
	return d.region.span(op, uint64(d.offset)+uint64(off), uint64(n))
}

func orderOf(order []binary.ByteOrder) binary.ByteOrder {
	if len(order) > 0 && order[0] != nil {
		return order[0]
	}
	return binary.BigEndian
}

// Uint8 reads an unsigned byte at off.
func (d *DataView) Uint8(off uint32) (uint8, error) {
	b, err := d.span("getUint8", off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Int8 reads a signed byte at off.
func (d *DataView) Int8(off uint32) (int8, error) {
	v, err := d.Uint8(off)
	return int8(v), err
}

// SetUint8 writes an unsigned byte at off.
func (d *DataView) SetUint8(off uint32, v uint8) error {
	b, err := d.span("setUint8", off, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// SetInt8 writes a signed byte at off.
func (d *DataView) SetInt8(off uint32, v int8) error {
	return d.SetUint8(off, uint8(v))
}

// Uint16 reads a 16-bit unsigned integer at off.
func (d *DataView) Uint16(off uint32, order ...binary.ByteOrder) (uint16, error) {
	b, err := d.span("getUint16", off, 2)
	if err != nil {
		return 0, err
	}
	return orderOf(order).Uint16(b), nil
}

// Int16 reads a 16-bit signed integer at off.
func (d *DataView) Int16(off uint32, order ...binary.ByteOrder) (int16, error) {
	v, err := d.Uint16(off, order...)
	return int16(v), err
}

// SetUint16 writes a 16-bit unsigned integer at off.
func (d *DataView) SetUint16(off uint32, v uint16, order ...binary.ByteOrder) error {
	b, err := d.span("setUint16", off, 2)
	if err != nil {
		return err
	}
	orderOf(order).PutUint16(b, v)
	return nil
}

// SetInt16 writes a 16-bit signed integer at off.
func (d *DataView) SetInt16(off uint32, v int16, order ...binary.ByteOrder) error {
	return d.SetUint16(off, uint16(v), order...)
}

// Uint32 reads a 32-bit unsigned integer at off.
func (d *DataView) Uint32(off uint32, order ...binary.ByteOrder) (uint32, error) {
	b, err := d.span("getUint32", off, 4)
	if err != nil {
		return 0, err
	}
	return orderOf(order).Uint32(b), nil
}

// Int32 reads a 32-bit signed integer at off.
func (d *DataView) Int32(off uint32, order ...binary.ByteOrder) (int32, error) {
	v, err := d.Uint32(off, order...)
	return int32(v), err
}

// SetUint32 writes a 32-bit unsigned integer at off.
func (d *DataView) SetUint32(off uint32, v uint32, order ...binary.ByteOrder) error {
	b, err := d.span("setUint32", off, 4)
	if err != nil {
		return err
	}
	orderOf(order).PutUint32(b, v)
	return nil
}

// SetInt32 writes a 32-bit signed integer at off.
func (d *DataView) SetInt32(off uint32, v int32, order ...binary.ByteOrder) error {
	return d.SetUint32(off, uint32(v), order...)
}

// Uint64 reads a 64-bit unsigned integer at off.
func (d *DataView) Uint64(off uint32, order ...binary.ByteOrder) (uint64, error) {
	b, err := d.span("getUint64", off, 8)
	if err != nil {
		return 0, err
	}
	return orderOf(order).Uint64(b), nil
}

// Int64 reads a 64-bit signed integer at off.
func (d *DataView) Int64(off uint32, order ...binary.ByteOrder) (int64, error) {
	v, err := d.Uint64(off, order...)
	return int64(v), err
}

// SetUint64 writes a 64-bit unsigned integer at off.
func (d *DataView) SetUint64(off uint32, v uint64, order ...binary.ByteOrder) error {
	b, err := d.span("setUint64", off, 8)
	if err != nil {
		return err
	}
	orderOf(order).PutUint64(b, v)
	return nil
}

// SetInt64 writes a 64-bit signed integer at off.
func (d *DataView) SetInt64(off uint32, v int64, order ...binary.ByteOrder) error {
	return d.SetUint64(off, uint64(v), order...)
}

// Float32 reads an IEEE-754 single at off.
func (d *DataView) Float32(off uint32, order ...binary.ByteOrder) (float32, error) {
	v, err := d.Uint32(off, order...)
	return math.Float32frombits(v), err
}

// SetFloat32 writes an IEEE-754 single at off.
func (d *DataView) SetFloat32(off uint32, v float32, order ...binary.ByteOrder) error {
	return d.SetUint32(off, math.Float32bits(v), order...)
}

// Float64 reads an IEEE-754 double at off.
func (d *DataView) Float64(off uint32, order ...binary.ByteOrder) (float64, error) {
	v, err := d.Uint64(off, order...)
	return math.Float64frombits(v), err
}

// SetFloat64 writes an IEEE-754 double at off.
func (d *DataView) SetFloat64(off uint32, v float64, order ...binary.ByteOrder) error {
	return d.SetUint64(off, math.Float64bits(v), order...)
}

// Float32s reads n consecutive singles starting at off with a 4-byte stride.
// The whole run is bounds-checked before anything is decoded.
func (d *DataView) Float32s(off uint32, n int, order ...binary.ByteOrder) ([]float32, error) {
	if n < 0 || uint64(n)*4 > uint64(d.length) {
		return nil, &BoundsError{Op: "getFloat32s", Offset: uint64(off), Length: uint64(max(n, 0)) * 4, Capacity: uint64(d.length)}
	}
	b, err := d.span("getFloat32s", off, uint32(n)*4)
	if err != nil {
		return nil, err
	}
	bo := orderOf(order)
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(bo.Uint32(b[i*4:]))
	}
	return out, nil
}
