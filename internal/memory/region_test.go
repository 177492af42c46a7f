package memory

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewRegion(t *testing.T) {
	r, err := NewRegion(256)
	if err != nil {
		t.Fatalf("NewRegion() failed: %v", err)
	}
	if r.Capacity() != 256 {
		t.Errorf("Capacity() = %d, want 256", r.Capacity())
	}
	if r.Generation() != 0 {
		t.Errorf("Generation() = %d, want 0", r.Generation())
	}
}

func TestNewRegionAboveMax(t *testing.T) {
	_, err := NewRegion(128, WithMaxCapacity(64))
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %T (%v)", err, err)
	}
}

func TestRegionReadWrite(t *testing.T) {
	r, _ := NewRegion(16)

	if err := r.Write(4, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	got, err := r.Read(3, 5)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if want := []byte{0, 1, 2, 3, 0}; !bytes.Equal(got, want) {
		t.Errorf("Read() = %v, want %v", got, want)
	}

	// Read returns host-owned bytes.
	got[1] = 99
	again, _ := r.Read(4, 1)
	if again[0] != 1 {
		t.Error("mutating Read() result changed the region")
	}
}

func TestRegionBounds(t *testing.T) {
	r, _ := NewRegion(16)

	tests := []struct {
		name   string
		offset uint32
		length uint32
		ok     bool
	}{
		{"empty at end", 16, 0, true},
		{"exact fit", 0, 16, true},
		{"tail", 15, 1, true},
		{"one past", 15, 2, false},
		{"offset past", 17, 0, false},
		{"overflowing length", 8, 0xFFFFFFFF, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Read(tt.offset, tt.length)
			if tt.ok && err != nil {
				t.Fatalf("Read(%d, %d) failed: %v", tt.offset, tt.length, err)
			}
			if !tt.ok {
				var be *BoundsError
				if !errors.As(err, &be) {
					t.Fatalf("Read(%d, %d): expected BoundsError, got %v", tt.offset, tt.length, err)
				}
			}
		})
	}
}

func TestRegionWriteNoImplicitGrowth(t *testing.T) {
	r, _ := NewRegion(4)

	err := r.Write(2, []byte{1, 2, 3})
	var be *BoundsError
	if !errors.As(err, &be) {
		t.Fatalf("expected BoundsError, got %v", err)
	}
	if r.Capacity() != 4 {
		t.Errorf("capacity changed to %d", r.Capacity())
	}
	if !bytes.Equal(r.Bytes(), []byte{0, 0, 0, 0}) {
		t.Errorf("failed write modified region: %v", r.Bytes())
	}
}

func TestRegionResize(t *testing.T) {
	r, _ := NewRegion(4, WithMaxCapacity(32))
	_ = r.Write(0, []byte{9, 8, 7, 6})

	if err := r.Resize(16); err != nil {
		t.Fatalf("Resize() failed: %v", err)
	}
	if r.Capacity() != 16 {
		t.Errorf("Capacity() = %d, want 16", r.Capacity())
	}
	if r.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", r.Generation())
	}
	head, _ := r.Read(0, 4)
	if !bytes.Equal(head, []byte{9, 8, 7, 6}) {
		t.Errorf("contents not preserved: %v", head)
	}

	var capErr *CapacityError
	if err := r.Resize(64); !errors.As(err, &capErr) {
		t.Errorf("Resize past max: expected CapacityError, got %v", err)
	}
	if err := r.Resize(8); !errors.As(err, &capErr) {
		t.Errorf("shrinking: expected CapacityError, got %v", err)
	}
	if r.Generation() != 1 {
		t.Errorf("failed resize moved generation to %d", r.Generation())
	}
}

func TestRegionResizeRefusedByGrower(t *testing.T) {
	refusal := errors.New("engine refused")
	r, _ := NewRegion(8, WithGrower(GrowerFunc(func([]byte, uint32) ([]byte, error) {
		return nil, refusal
	})))

	err := r.Resize(16)
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if !errors.Is(err, refusal) {
		t.Errorf("CapacityError should wrap grower error")
	}
	if r.Capacity() != 8 {
		t.Errorf("capacity changed to %d", r.Capacity())
	}
}

func TestRegionGrowPages(t *testing.T) {
	r, _ := NewRegion(PageSize, WithMaxCapacity(3*PageSize))

	prev, err := r.GrowPages(2)
	if err != nil {
		t.Fatalf("GrowPages() failed: %v", err)
	}
	if prev != 1 {
		t.Errorf("previous pages = %d, want 1", prev)
	}
	if r.Capacity() != 3*PageSize {
		t.Errorf("Capacity() = %d, want %d", r.Capacity(), 3*PageSize)
	}
	if _, err := r.GrowPages(1); err == nil {
		t.Error("GrowPages past max should fail")
	}
}

func TestRegionRebind(t *testing.T) {
	backing := make([]byte, 8)
	r := Wrap(backing)

	r.Rebind(backing)
	if r.Generation() != 0 {
		t.Errorf("rebinding identical storage moved generation to %d", r.Generation())
	}

	r.Rebind(make([]byte, 16))
	if r.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", r.Generation())
	}
	if r.Capacity() != 16 {
		t.Errorf("Capacity() = %d, want 16", r.Capacity())
	}
}
