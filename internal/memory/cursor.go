package memory

import (
	"encoding/binary"
)

// Cursor is a sequential reader/writer over a DataView. Each successful
// call advances the position by the width it consumed; failed calls leave
// the position unchanged.
type Cursor struct {
	dv  *DataView
	pos uint32
}

// NewCursor starts a cursor at the beginning of dv.
func NewCursor(dv *DataView) *Cursor {
	return &Cursor{dv: dv}
}

// Pos returns the current byte position.
func (c *Cursor) Pos() uint32 {
	return c.pos
}

// Remaining returns the bytes left before the end of the data view.
func (c *Cursor) Remaining() uint32 {
	return c.dv.ByteLength() - c.pos
}

// Seek moves to an absolute position.
func (c *Cursor) Seek(pos uint32) error {
	if pos > c.dv.ByteLength() {
		return &BoundsError{Op: "seek", Offset: uint64(pos), Capacity: uint64(c.dv.ByteLength())}
	}
	c.pos = pos
	return nil
}

// Skip advances by n bytes.
func (c *Cursor) Skip(n uint32) error {
	end := uint64(c.pos) + uint64(n)
	if end > uint64(c.dv.ByteLength()) {
		return &BoundsError{Op: "skip", Offset: uint64(c.pos), Length: uint64(n), Capacity: uint64(c.dv.ByteLength())}
	}
	c.pos = uint32(end)
	return nil
}

// ReadUint8 reads one byte.
func (c *Cursor) ReadUint8() (uint8, error) {
	v, err := c.dv.Uint8(c.pos)
	if err == nil {
		c.pos++
	}
	return v, err
}

// ReadUint16 reads a 2-byte unsigned integer, big-endian unless order says otherwise.
func (c *Cursor) ReadUint16(order ...binary.ByteOrder) (uint16, error) {
	v, err := c.dv.Uint16(c.pos, order...)
	if err == nil {
		c.pos += 2
	}
	return v, err
}

// ReadUint32 reads a 4-byte unsigned integer.
func (c *Cursor) ReadUint32(order ...binary.ByteOrder) (uint32, error) {
	v, err := c.dv.Uint32(c.pos, order...)
	if err == nil {
		c.pos += 4
	}
	return v, err
}

// ReadFloat32 reads an IEEE 754 single.
func (c *Cursor) ReadFloat32(order ...binary.ByteOrder) (float32, error) {
	v, err := c.dv.Float32(c.pos, order...)
	if err == nil {
		c.pos += 4
	}
	return v, err
}

// ReadFloat64 reads an IEEE 754 double.
func (c *Cursor) ReadFloat64(order ...binary.ByteOrder) (float64, error) {
	v, err := c.dv.Float64(c.pos, order...)
	if err == nil {
		c.pos += 8
	}
	return v, err
}

// ReadFloat32s reads n singles with a 4-byte stride.
func (c *Cursor) ReadFloat32s(n int, order ...binary.ByteOrder) ([]float32, error) {
	v, err := c.dv.Float32s(c.pos, n, order...)
	if err == nil {
		c.pos += uint32(n) * 4
	}
	return v, err
}

// WriteUint8 writes one byte.
func (c *Cursor) WriteUint8(v uint8) error {
	if err := c.dv.SetUint8(c.pos, v); err != nil {
		return err
	}
	c.pos++
	return nil
}

// WriteUint16 writes a 2-byte unsigned integer.
func (c *Cursor) WriteUint16(v uint16, order ...binary.ByteOrder) error {
	if err := c.dv.SetUint16(c.pos, v, order...); err != nil {
		return err
	}
	c.pos += 2
	return nil
}

// WriteUint32 writes a 4-byte unsigned integer.
func (c *Cursor) WriteUint32(v uint32, order ...binary.ByteOrder) error {
	if err := c.dv.SetUint32(c.pos, v, order...); err != nil {
		return err
	}
	c.pos += 4
	return nil
}

// WriteFloat32 writes an IEEE 754 single.
func (c *Cursor) WriteFloat32(v float32, order ...binary.ByteOrder) error {
	if err := c.dv.SetFloat32(c.pos, v, order...); err != nil {
		return err
	}
	c.pos += 4
	return nil
}

// WriteFloat64 writes an IEEE 754 double.
func (c *Cursor) WriteFloat64(v float64, order ...binary.ByteOrder) error {
	if err := c.dv.SetFloat64(c.pos, v, order...); err != nil {
		return err
	}
	c.pos += 8
	return nil
}
