package memory

import (
	"errors"
	"fmt"
)

// ErrStaleView is returned when a view is used after its region was resized.
// Views must be re-derived from the region after any resize.
var ErrStaleView = errors.New("view invalidated by region resize")

// BoundsError occurs when an offset, length or element index falls outside
// the addressable range. It is always reported before any byte is touched.
type BoundsError struct {
	Op       string
	Offset   uint64
	Length   uint64
	Capacity uint64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("out of bounds (op=%s, offset=%d, len=%d, capacity=%d)",
		e.Op, e.Offset, e.Length, e.Capacity)
}

// CapacityError occurs when a region cannot grow to the requested capacity.
type CapacityError struct {
	Current   uint64
	Requested uint64
	Max       uint64
	Err       error
}

func (e *CapacityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot resize region from %d to %d bytes (max %d): %v",
			e.Current, e.Requested, e.Max, e.Err)
	}
	return fmt.Sprintf("cannot resize region from %d to %d bytes (max %d)",
		e.Current, e.Requested, e.Max)
}

func (e *CapacityError) Unwrap() error {
	return e.Err
}
