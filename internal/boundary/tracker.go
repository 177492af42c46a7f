package boundary

import (
	"context"
	"fmt"
	"sync"
)

// Tracker wraps a Module and keeps a ledger of live allocations. Freeing a
// pointer that is not live is reported as ErrDoubleFree and not forwarded.
type Tracker struct {
	Module

	mu     sync.Mutex
	live   map[Pointer]uint32
	allocs int
	frees  int
}

// NewTracker wraps mod.
func NewTracker(mod Module) *Tracker {
	return &Tracker{Module: mod, live: make(map[Pointer]uint32)}
}

func (t *Tracker) Allocate(ctx context.Context, size uint32) (Pointer, error) {
	ptr, err := t.Module.Allocate(ctx, size)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	t.live[ptr] = size
	t.allocs++
	t.mu.Unlock()
	return ptr, nil
}

func (t *Tracker) Free(ctx context.Context, ptr Pointer, size uint32) error {
	t.mu.Lock()
	got, ok := t.live[ptr]
	if ok && got == size {
		delete(t.live, ptr)
		t.frees++
	}
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("free %d: %w", ptr, ErrDoubleFree)
	}
	// A mismatched free is rejected and the allocation stays outstanding.
	if got != size {
		return fmt.Errorf("free %d: size %d does not match allocation of %d", ptr, size, got)
	}
	return t.Module.Free(ctx, ptr, size)
}

// Adopt records an allocation the module placed itself.
func (t *Tracker) Adopt(ptr Pointer, size uint32) {
	t.mu.Lock()
	t.live[ptr] = size
	t.allocs++
	t.mu.Unlock()
}

// Outstanding returns the number of live allocations.
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Allocs returns the total number of successful allocations.
func (t *Tracker) Allocs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocs
}

// Frees returns the total number of accepted frees.
func (t *Tracker) Frees() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frees
}
