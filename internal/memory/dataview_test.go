package memory

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestDataViewDefaultsToBigEndian(t *testing.T) {
	r, _ := NewRegion(8)
	dv, _ := NewDataView(r)

	_ = dv.SetUint16(0, 0x0102)
	raw := r.Bytes()
	if raw[0] != 0x01 || raw[1] != 0x02 {
		t.Errorf("default order layout = %v, want big-endian", raw[:2])
	}

	_ = dv.SetUint16(2, 0x0102, binary.LittleEndian)
	raw = r.Bytes()
	if raw[2] != 0x02 || raw[3] != 0x01 {
		t.Errorf("little-endian layout = %v", raw[2:4])
	}
}

func TestDataViewDisjointFields(t *testing.T) {
	r, _ := NewRegion(8)
	dv, _ := NewDataView(r)

	if err := dv.SetUint32(0, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	got, err := dv.Uint32(4)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("uint32 at 4 = %#x, want 0 (bytes 0..3 and 4..7 must not alias)", got)
	}

	_ = dv.SetUint32(4, 1, binary.LittleEndian)
	if first, _ := dv.Uint32(0); first != 0xDEADBEEF {
		t.Errorf("uint32 at 0 changed to %#x", first)
	}
}

func TestDataViewScalars(t *testing.T) {
	r, _ := NewRegion(32)
	dv, _ := NewDataView(r, WithOffset(4))

	if dv.ByteLength() != 28 {
		t.Fatalf("ByteLength() = %d, want 28", dv.ByteLength())
	}

	_ = dv.SetInt8(0, -5)
	_ = dv.SetInt16(1, -300, binary.LittleEndian)
	_ = dv.SetInt32(3, -70000)
	_ = dv.SetInt64(7, -1<<40, binary.LittleEndian)
	_ = dv.SetFloat64(15, 2.25)
	_ = dv.SetFloat32(23, -0.5, binary.LittleEndian)

	if v, _ := dv.Int8(0); v != -5 {
		t.Errorf("Int8 = %d", v)
	}
	if v, _ := dv.Int16(1, binary.LittleEndian); v != -300 {
		t.Errorf("Int16 = %d", v)
	}
	if v, _ := dv.Int32(3); v != -70000 {
		t.Errorf("Int32 = %d", v)
	}
	if v, _ := dv.Int64(7, binary.LittleEndian); v != -1<<40 {
		t.Errorf("Int64 = %d", v)
	}
	if v, _ := dv.Float64(15); v != 2.25 {
		t.Errorf("Float64 = %v", v)
	}
	if v, _ := dv.Float32(23, binary.LittleEndian); v != -0.5 {
		t.Errorf("Float32 = %v", v)
	}

	// Offsets are relative to the data view, not the region.
	if b, _ := r.Read(4, 1); b[0] != 0xFB {
		t.Errorf("region byte 4 = %#x, want 0xfb", b[0])
	}

	var be *BoundsError
	if _, err := dv.Uint32(25); !errors.As(err, &be) {
		t.Errorf("expected BoundsError, got %v", err)
	}
}

func TestNewDataViewBounds(t *testing.T) {
	r, _ := NewRegion(16)
	var be *BoundsError
	if _, err := NewDataView(r, WithOffset(17)); !errors.As(err, &be) {
		t.Errorf("offset past end: expected BoundsError, got %v", err)
	}
	if _, err := NewDataView(r, WithOffset(8), WithCount(9)); !errors.As(err, &be) {
		t.Errorf("length past end: expected BoundsError, got %v", err)
	}
	if _, err := NewDataView(r, WithOffset(8), WithCount(8)); err != nil {
		t.Errorf("exact fit failed: %v", err)
	}
}

func TestDynamicLengthBody(t *testing.T) {
	values := []float32{1.1, 2.2, 3.3, 4.4, 5.5, 6.6}

	r, _ := NewRegion(27)
	dv, _ := NewDataView(r)
	_ = dv.SetUint8(0, 2)
	_ = dv.SetUint16(1, 3)
	for i, v := range values {
		if err := dv.SetFloat32(3+uint32(i)*4, v); err != nil {
			t.Fatal(err)
		}
	}

	header, _ := dv.Uint8(0)
	length, _ := dv.Uint16(1)
	n := int(header) * int(length)
	if n != 6 {
		t.Fatalf("derived count = %d, want 6", n)
	}

	got := make([]float32, 0, n)
	for i, addr := 0, uint32(3); i < n; i, addr = i+1, addr+4 {
		v, err := dv.Float32(addr)
		if err != nil {
			t.Fatalf("Float32(%d) failed: %v", addr, err)
		}
		got = append(got, v)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], values[i])
		}
	}

	frame, err := DecodeFrame(dv)
	if err != nil {
		t.Fatalf("DecodeFrame() failed: %v", err)
	}
	if frame.Rows != 2 || frame.Cols != 3 || len(frame.Values) != 6 {
		t.Errorf("frame = %+v", frame)
	}
}

func TestDecodeFrameTruncatedBody(t *testing.T) {
	r, _ := NewRegion(10)
	dv, _ := NewDataView(r)
	_ = dv.SetUint8(0, 2)
	_ = dv.SetUint16(1, 3)

	_, err := DecodeFrame(dv)
	var be *BoundsError
	if !errors.As(err, &be) {
		t.Fatalf("expected BoundsError, got %v", err)
	}
}

func TestEncodeFrame(t *testing.T) {
	f := Frame{Rows: 1, Cols: 2, Values: []float32{0.25, -8}}
	r, _ := NewRegion(f.EncodedSize())
	dv, _ := NewDataView(r)

	if err := EncodeFrame(dv, f); err != nil {
		t.Fatalf("EncodeFrame() failed: %v", err)
	}
	back, err := DecodeFrame(dv)
	if err != nil {
		t.Fatal(err)
	}
	if back.Values[0] != 0.25 || back.Values[1] != -8 {
		t.Errorf("decoded values = %v", back.Values)
	}

	if err := EncodeFrame(dv, Frame{Rows: 1, Cols: 3, Values: []float32{1}}); err == nil {
		t.Error("mismatched value count should fail")
	}
}

func TestCursor(t *testing.T) {
	r, _ := NewRegion(8)
	dv, _ := NewDataView(r)
	c := NewCursor(dv)

	_ = c.WriteUint8(7)
	_ = c.WriteUint16(0x1234, binary.LittleEndian)
	_ = c.WriteUint32(42)
	if c.Pos() != 7 {
		t.Fatalf("Pos() = %d, want 7", c.Pos())
	}

	if err := c.WriteUint16(1); err == nil {
		t.Fatal("write past end should fail")
	}
	if c.Pos() != 7 {
		t.Errorf("failed write moved cursor to %d", c.Pos())
	}

	_ = c.Seek(0)
	a, _ := c.ReadUint8()
	b, _ := c.ReadUint16(binary.LittleEndian)
	d, _ := c.ReadUint32()
	if a != 7 || b != 0x1234 || d != 42 {
		t.Errorf("read back %d %#x %d", a, b, d)
	}
	if c.Remaining() != 1 {
		t.Errorf("Remaining() = %d, want 1", c.Remaining())
	}
}

func TestCursorSkipBounds(t *testing.T) {
	r, _ := NewRegion(8)
	dv, _ := NewDataView(r)
	c := NewCursor(dv)

	if err := c.Skip(3); err != nil || c.Pos() != 3 {
		t.Fatalf("Skip(3) = %v, Pos() = %d", err, c.Pos())
	}

	var boundsErr *BoundsError
	if err := c.Skip(math.MaxUint32); !errors.As(err, &boundsErr) {
		t.Fatalf("Skip(MaxUint32) error = %v, want BoundsError", err)
	}
	if c.Pos() != 3 {
		t.Errorf("failed Skip moved cursor to %d", c.Pos())
	}

	if err := c.Skip(5); err != nil || c.Remaining() != 0 {
		t.Errorf("Skip to end = %v, Remaining() = %d", err, c.Remaining())
	}
}
