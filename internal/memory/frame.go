package memory

import (
	"fmt"
)

// Frame is a header-then-body record: a 1-byte row count at offset 0, a
// big-endian 2-byte row length at offset 1, then Rows*Cols big-endian
// float32 values starting at offset 3.
type Frame struct {
	Rows   uint8
	Cols   uint16
	Values []float32
}

// FrameHeaderSize is the number of bytes before the float body.
const FrameHeaderSize = 3

// EncodedSize returns the number of bytes f occupies.
func (f Frame) EncodedSize() uint32 {
	return FrameHeaderSize + uint32(f.Rows)*uint32(f.Cols)*4
}

// DecodeFrame parses a frame whose body length is derived from its header.
func DecodeFrame(dv *DataView) (Frame, error) {
	c := NewCursor(dv)

	rows, err := c.ReadUint8()
	if err != nil {
		return Frame{}, fmt.Errorf("frame row count: %w", err)
	}
	cols, err := c.ReadUint16()
	if err != nil {
		return Frame{}, fmt.Errorf("frame row length: %w", err)
	}
	values, err := c.ReadFloat32s(int(rows) * int(cols))
	if err != nil {
		return Frame{}, fmt.Errorf("frame body (%dx%d): %w", rows, cols, err)
	}

	return Frame{Rows: rows, Cols: cols, Values: values}, nil
}

// EncodeFrame writes f at the start of dv.
func EncodeFrame(dv *DataView, f Frame) error {
	if len(f.Values) != int(f.Rows)*int(f.Cols) {
		return fmt.Errorf("frame has %d values, header declares %dx%d", len(f.Values), f.Rows, f.Cols)
	}
	if f.EncodedSize() > dv.ByteLength() {
		return &BoundsError{Op: "encodeFrame", Length: uint64(f.EncodedSize()), Capacity: uint64(dv.ByteLength())}
	}

	c := NewCursor(dv)
	if err := c.WriteUint8(f.Rows); err != nil {
		return err
	}
	if err := c.WriteUint16(f.Cols); err != nil {
		return err
	}
	for _, v := range f.Values {
		if err := c.WriteFloat32(v); err != nil {
			return err
		}
	}
	return nil
}
