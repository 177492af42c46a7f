package memory

import (
	"math"
)

// PageSize is the WebAssembly linear memory page size (64KiB).
const PageSize = 65536

// MaxCapacity is the largest capacity addressable with 32-bit pointers.
const MaxCapacity = math.MaxUint32

// Grower supplies larger backing storage when a region is resized.
// Implementations may refuse by returning an error; the region then
// reports a CapacityError and keeps its current storage.
type Grower interface {
	// Grow returns storage of at least newCapacity bytes whose prefix holds
	// the contents of current. Engines growing in whole pages may round up.
	Grow(current []byte, newCapacity uint32) ([]byte, error)
}

// GrowerFunc adapts a function to the Grower interface.
type GrowerFunc func(current []byte, newCapacity uint32) ([]byte, error)

// Grow calls f.
func (f GrowerFunc) Grow(current []byte, newCapacity uint32) ([]byte, error) {
	return f(current, newCapacity)
}

// Region is a fixed-capacity contiguous byte buffer addressed from zero.
//
// A Region is the single owner of its storage. Views and data views hold a
// back-reference plus offset/length metadata and are invalidated whenever
// the region is resized or rebound; every access re-checks both.
//
// A Region is not safe for concurrent use. Each region belongs to exactly
// one module boundary and is only touched from that boundary's worker.
type Region struct {
	buf    []byte
	gen    uint64
	max    uint32
	grower Grower
}

// Option configures a Region.
type Option func(*Region)

// WithMaxCapacity caps how far the region may be resized.
func WithMaxCapacity(max uint32) Option {
	return func(r *Region) {
		r.max = max
	}
}

// WithGrower delegates resize storage to g (for example an engine's
// memory.grow). Without a grower the region reallocates on the Go heap.
func WithGrower(g Grower) Option {
	return func(r *Region) {
		r.grower = g
	}
}

// NewRegion allocates a zeroed region of the given capacity.
func NewRegion(capacity uint32, opts ...Option) (*Region, error) {
	r := &Region{max: MaxCapacity}
	for _, opt := range opts {
		opt(r)
	}
	if capacity > r.max {
		return nil, &CapacityError{Requested: uint64(capacity), Max: uint64(r.max)}
	}
	r.buf = make([]byte, capacity)
	return r, nil
}

// Wrap adopts externally owned storage, such as an engine's linear memory.
// The caller must not keep writing through buf once it has been rebound.
func Wrap(buf []byte, opts ...Option) *Region {
	r := &Region{buf: buf, max: MaxCapacity}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capacity returns the region size in bytes.
func (r *Region) Capacity() uint32 {
	return uint32(len(r.buf))
}

// MaxCapacity returns the resize ceiling.
func (r *Region) MaxCapacity() uint32 {
	return r.max
}

// Generation increments every time the backing storage changes.
// Views compare it against the generation they were derived at.
func (r *Region) Generation() uint64 {
	return r.gen
}

// Resize grows the region to newCapacity bytes. Shrinking is refused,
// as is growing past the configured maximum or a refusal by the grower.
// On success every outstanding view becomes stale.
func (r *Region) Resize(newCapacity uint32) error {
	current := uint32(len(r.buf))
	if newCapacity == current {
		return nil
	}
	if newCapacity < current || newCapacity > r.max {
		return &CapacityError{
			Current:   uint64(current),
			Requested: uint64(newCapacity),
			Max:       uint64(r.max),
		}
	}

	var next []byte
	if r.grower != nil {
		grown, err := r.grower.Grow(r.buf, newCapacity)
		if err != nil {
			return &CapacityError{
				Current:   uint64(current),
				Requested: uint64(newCapacity),
				Max:       uint64(r.max),
				Err:       err,
			}
		}
		next = grown
	} else {
		next = make([]byte, newCapacity)
		copy(next, r.buf)
	}

	r.buf = next
	r.gen++
	return nil
}

// GrowPages grows the region by delta 64KiB pages and returns the previous
// size in pages, mirroring memory.grow.
func (r *Region) GrowPages(delta uint32) (uint32, error) {
	previous := uint32(len(r.buf) / PageSize)
	if delta == 0 {
		return previous, nil
	}
	target := uint64(len(r.buf)) + uint64(delta)*PageSize
	if target > uint64(r.max) {
		return previous, &CapacityError{
			Current:   uint64(len(r.buf)),
			Requested: target,
			Max:       uint64(r.max),
		}
	}
	if err := r.Resize(uint32(target)); err != nil {
		return previous, err
	}
	return previous, nil
}

// Rebind replaces the backing storage after the owner grew it externally
// (for example a guest executing memory.grow). The generation only moves
// when the storage actually changed.
func (r *Region) Rebind(buf []byte) {
	if sameStorage(r.buf, buf) {
		return
	}
	r.buf = buf
	r.gen++
}

// Read copies length bytes starting at offset into host-owned memory.
func (r *Region) Read(offset, length uint32) ([]byte, error) {
	b, err := r.span("read", uint64(offset), uint64(length))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Write copies data into the region at offset. The region never grows
// implicitly; writes past capacity fail without modifying anything.
func (r *Region) Write(offset uint32, data []byte) error {
	b, err := r.span("write", uint64(offset), uint64(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

// Fill sets length bytes at offset to v.
func (r *Region) Fill(offset, length uint32, v byte) error {
	b, err := r.span("fill", uint64(offset), uint64(length))
	if err != nil {
		return err
	}
	for i := range b {
		b[i] = v
	}
	return nil
}

// Bytes returns a copy of the whole region.
func (r *Region) Bytes() []byte {
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out
}

// span returns the live slice for [offset, offset+length).
func (r *Region) span(op string, offset, length uint64) ([]byte, error) {
	capacity := uint64(len(r.buf))
	if offset > capacity || length > capacity-offset {
		return nil, &BoundsError{Op: op, Offset: offset, Length: length, Capacity: capacity}
	}
	return r.buf[offset : offset+length : offset+length], nil
}

func sameStorage(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}
