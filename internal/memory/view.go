package memory

import (
	"encoding/binary"
	"fmt"
)

// View is a typed, bounded window onto a Region.
//
// A View owns no storage. Several views may alias the same bytes, including
// overlapping ranges with different element widths, and writes through one
// are immediately visible through the others.
type View struct {
	region   *Region
	elem     ElementType
	overflow Overflow
	order    binary.ByteOrder
	offset   uint32
	count    int
	gen      uint64
}

type viewConfig struct {
	elem     ElementType
	overflow Overflow
	order    binary.ByteOrder
	offset   uint32
	count    int
	hasCount bool
}

// ViewOption configures NewView and NewDataView.
type ViewOption func(*viewConfig)

// WithElement sets the element type. The default is Uint8.
func WithElement(t ElementType) ViewOption {
	return func(c *viewConfig) {
		c.elem = t
	}
}

// WithOffset sets the starting byte offset. The default is 0.
func WithOffset(offset uint32) ViewOption {
	return func(c *viewConfig) {
		c.offset = offset
	}
}

// WithCount sets the number of elements. The default is every whole
// element that fits between the offset and the end of the region.
func WithCount(n int) ViewOption {
	return func(c *viewConfig) {
		c.count = n
		c.hasCount = true
	}
}

// WithByteOrder sets the element byte order. Views default to the host's
// native order; data views default to big-endian per call.
func WithByteOrder(order binary.ByteOrder) ViewOption {
	return func(c *viewConfig) {
		c.order = order
	}
}

// WithOverflow selects wrapping or saturating stores for integer elements.
func WithOverflow(o Overflow) ViewOption {
	return func(c *viewConfig) {
		c.overflow = o
	}
}

// Clamped is shorthand for a saturating view.
func Clamped() ViewOption {
	return WithOverflow(Saturate)
}

// NewView creates a view over r. With no options it covers the whole region
// as unsigned bytes. Construction succeeds iff offset+count*width fits
// within the region's current capacity.
func NewView(r *Region, opts ...ViewOption) (*View, error) {
	cfg := viewConfig{elem: Uint8, order: binary.NativeEndian}
	for _, opt := range opts {
		opt(&cfg)
	}

	width := cfg.elem.Width()
	if width == 0 {
		return nil, fmt.Errorf("unknown element type %s", cfg.elem)
	}

	capacity := uint64(r.Capacity())
	offset := uint64(cfg.offset)
	if offset > capacity {
		return nil, &BoundsError{Op: "view", Offset: offset, Capacity: capacity}
	}

	count := int((capacity - offset) / uint64(width))
	if cfg.hasCount {
		if cfg.count < 0 {
			return nil, &BoundsError{Op: "view", Offset: offset, Capacity: capacity}
		}
		length := uint64(cfg.count) * uint64(width)
		if length > capacity-offset {
			return nil, &BoundsError{Op: "view", Offset: offset, Length: length, Capacity: capacity}
		}
		count = cfg.count
	}

	return &View{
		region:   r,
		elem:     cfg.elem,
		overflow: cfg.overflow,
		order:    cfg.order,
		offset:   cfg.offset,
		count:    count,
		gen:      r.Generation(),
	}, nil
}

// Len returns the element count.
func (v *View) Len() int {
	return v.count
}

// ByteOffset returns the view's starting offset within the region.
func (v *View) ByteOffset() uint32 {
	return v.offset
}

// ByteLength returns count*width.
func (v *View) ByteLength() uint32 {
	return uint32(v.count) * v.elem.Width()
}

// ElementType returns the element interpretation.
func (v *View) ElementType() ElementType {
	return v.elem
}

// Overflow returns the store policy.
func (v *View) Overflow() Overflow {
	return v.overflow
}

// Order returns the byte order.
func (v *View) Order() binary.ByteOrder {
	return v.order
}

// Region returns the backing region.
func (v *View) Region() *Region {
	return v.region
}

// Valid reports whether the region has not been resized since the view
// was derived.
func (v *View) Valid() bool {
	return v.gen == v.region.Generation()
}

// element returns the live bytes of element i.
func (v *View) element(op string, i int) ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%s element %d: %w", op, i, ErrStaleView)
	}
	if i < 0 || i >= v.count {
		return nil, &BoundsError{Op: op, Offset: uint64(int64(i)), Length: 1, Capacity: uint64(v.count)}
	}
	width := v.elem.Width()
	return v.region.span(op, uint64(v.offset)+uint64(i)*uint64(width), uint64(width))
}

// Int returns element i as a signed integer. Unsigned 64-bit elements above
// math.MaxInt64 wrap; use Uint for those. Float elements truncate.
func (v *View) Int(i int) (int64, error) {
	b, err := v.element("get", i)
	if err != nil {
		return 0, err
	}
	bits := loadBits(v.elem, v.order, b)
	switch {
	case v.elem.Float():
		return int64(floatFromBits(v.elem, bits)), nil
	case v.elem.Signed():
		return signExtend(v.elem, bits), nil
	}
	return int64(bits), nil
}

// Uint returns element i as its unsigned bit pattern (signed elements are
// sign-extended first, float elements truncate).
func (v *View) Uint(i int) (uint64, error) {
	b, err := v.element("get", i)
	if err != nil {
		return 0, err
	}
	bits := loadBits(v.elem, v.order, b)
	switch {
	case v.elem.Float():
		return uint64(floatFromBits(v.elem, bits)), nil
	case v.elem.Signed():
		return uint64(signExtend(v.elem, bits)), nil
	}
	return bits, nil
}

// Float returns element i converted to float64.
func (v *View) Float(i int) (float64, error) {
	b, err := v.element("get", i)
	if err != nil {
		return 0, err
	}
	return floatFromBits(v.elem, loadBits(v.elem, v.order, b)), nil
}

// SetInt stores x at element i, wrapping or saturating per the view.
func (v *View) SetInt(i int, x int64) error {
	b, err := v.element("set", i)
	if err != nil {
		return err
	}
	putBits(v.elem, v.order, b, bitsFromInt(v.elem, v.overflow, x))
	return nil
}

// SetUint stores x at element i, wrapping or saturating per the view.
func (v *View) SetUint(i int, x uint64) error {
	b, err := v.element("set", i)
	if err != nil {
		return err
	}
	putBits(v.elem, v.order, b, bitsFromUint(v.elem, v.overflow, x))
	return nil
}

// SetFloat stores x at element i, converting per the view's element type.
func (v *View) SetFloat(i int, x float64) error {
	b, err := v.element("set", i)
	if err != nil {
		return err
	}
	putBits(v.elem, v.order, b, bitsFromFloat(v.elem, v.overflow, x))
	return nil
}

// Subview returns a view over elements [begin, end) sharing the same region,
// element type, order and overflow policy.
func (v *View) Subview(begin, end int) (*View, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("subview: %w", ErrStaleView)
	}
	if begin < 0 || end < begin || end > v.count {
		return nil, &BoundsError{
			Op:       "subview",
			Offset:   uint64(int64(begin)),
			Length:   uint64(int64(end - begin)),
			Capacity: uint64(v.count),
		}
	}
	sub := *v
	sub.offset = v.offset + uint32(begin)*v.elem.Width()
	sub.count = end - begin
	return &sub, nil
}

// Bytes returns a copy of the bytes covered by the view.
func (v *View) Bytes() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("bytes: %w", ErrStaleView)
	}
	return v.region.Read(v.offset, v.ByteLength())
}

// Fill stores x into every element of the view, honouring its overflow
// policy.
func (v *View) Fill(x int64) error {
	for i := 0; i < v.count; i++ {
		if err := v.SetInt(i, x); err != nil {
			return err
		}
	}
	return nil
}
