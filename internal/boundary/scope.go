package boundary

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// Allocation is a handle to bytes reserved inside a module's region. It can
// only be read or written until its scope is released.
type Allocation struct {
	scope *Scope
	ptr   Pointer
	size  uint32
	owned bool
	freed bool
}

// Ptr returns the allocation's address, or 0 for an empty allocation.
func (a *Allocation) Ptr() Pointer {
	return a.ptr
}

// Len returns the allocation size.
func (a *Allocation) Len() uint32 {
	return a.size
}

// Read copies the allocation's bytes into host-owned memory.
func (a *Allocation) Read() ([]byte, error) {
	if a.freed {
		return nil, fmt.Errorf("read %d bytes at %d: %w", a.size, a.ptr, ErrFreed)
	}
	if a.size == 0 {
		return []byte{}, nil
	}
	return a.scope.mod.Region().Read(uint32(a.ptr), a.size)
}

// Write copies data into the allocation. data must fit.
func (a *Allocation) Write(data []byte) error {
	if a.freed {
		return fmt.Errorf("write %d bytes at %d: %w", len(data), a.ptr, ErrFreed)
	}
	if uint64(len(data)) > uint64(a.size) {
		return fmt.Errorf("write of %d bytes exceeds allocation of %d", len(data), a.size)
	}
	if len(data) == 0 {
		return nil
	}
	return a.scope.mod.Region().Write(uint32(a.ptr), data)
}

// Scope collects the allocations made for one call and releases every one
// of them exactly once.
type Scope struct {
	ctx         context.Context
	mod         Module
	allocations []*Allocation
	released    bool
}

// NewScope starts an allocation scope against mod. Callers must defer
// Release immediately.
func NewScope(ctx context.Context, mod Module) *Scope {
	return &Scope{ctx: ctx, mod: mod}
}

// Alloc reserves size bytes. A zero size yields an empty allocation at
// address 0 without touching the module allocator.
func (s *Scope) Alloc(size uint32) (*Allocation, error) {
	if s.released {
		return nil, fmt.Errorf("alloc %d bytes: %w", size, ErrFreed)
	}
	if size == 0 {
		a := &Allocation{scope: s}
		s.allocations = append(s.allocations, a)
		return a, nil
	}

	ptr, err := s.mod.Allocate(s.ctx, size)
	if err != nil {
		return nil, err
	}
	a := &Allocation{scope: s, ptr: ptr, size: size, owned: true}
	s.allocations = append(s.allocations, a)
	return a, nil
}

// Input allocates len(data) bytes and writes data into them.
func (s *Scope) Input(data []byte) (*Allocation, error) {
	a, err := s.Alloc(uint32(len(data)))
	if err != nil {
		return nil, err
	}
	if err := a.Write(data); err != nil {
		return nil, err
	}
	return a, nil
}

// Output allocates an uninitialized buffer of size bytes.
func (s *Scope) Output(size uint32) (*Allocation, error) {
	return s.Alloc(size)
}

// Adopt takes ownership of bytes the module allocated itself, so they are
// released with the rest of the scope.
func (s *Scope) Adopt(ptr Pointer, size uint32) *Allocation {
	a := &Allocation{scope: s, ptr: ptr, size: size, owned: ptr != 0 && size != 0}
	if ad, ok := s.mod.(Adopter); ok && a.owned {
		ad.Adopt(ptr, size)
	}
	s.allocations = append(s.allocations, a)
	return a
}

// Adopter is implemented by modules that want to hear about allocations the
// module made on its own and handed to the host to free.
type Adopter interface {
	Adopt(ptr Pointer, size uint32)
}

// Count returns the number of allocations that will be freed on Release.
func (s *Scope) Count() int {
	n := 0
	for _, a := range s.allocations {
		if a.owned && !a.freed {
			n++
		}
	}
	return n
}

// Release frees every allocation in reverse order. It keeps going after a
// failed free and returns all failures combined. Calling it again is a no-op.
func (s *Scope) Release() error {
	if s.released {
		return nil
	}
	s.released = true

	var err error
	for i := len(s.allocations) - 1; i >= 0; i-- {
		a := s.allocations[i]
		if a.freed {
			continue
		}
		a.freed = true
		if !a.owned {
			continue
		}
		err = multierr.Append(err, s.mod.Free(s.ctx, a.ptr, a.size))
	}
	s.allocations = nil
	return err
}
