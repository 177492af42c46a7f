package cryptomod

import (
	"errors"
	"testing"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/memory"
)

func newTestHeap(t *testing.T, maxPages uint32) *heap {
	t.Helper()
	r, err := memory.NewRegion(memory.PageSize, memory.WithMaxCapacity(maxPages*memory.PageSize))
	if err != nil {
		t.Fatal(err)
	}
	return newHeap(r)
}

func mustAlloc(t *testing.T, h *heap, size uint32) uint32 {
	t.Helper()
	ptr, err := h.alloc(size)
	if err != nil {
		t.Fatalf("alloc(%d) failed: %v", size, err)
	}
	return ptr
}

func TestHeapFirstFitAndCoalesce(t *testing.T) {
	h := newTestHeap(t, 2)

	a := mustAlloc(t, h, 10)
	b := mustAlloc(t, h, 8)
	c := mustAlloc(t, h, 100)
	if a != heapBase || b != 24 || c != 32 {
		t.Fatalf("pointers = %d, %d, %d, want 8, 24, 32", a, b, c)
	}

	if err := h.release(b, 8); err != nil {
		t.Fatal(err)
	}
	if reused := mustAlloc(t, h, 5); reused != b {
		t.Errorf("first fit returned %d, want the freed block at %d", reused, b)
	}

	for _, f := range []struct{ ptr, size uint32 }{{a, 10}, {b, 5}, {c, 100}} {
		if err := h.release(f.ptr, f.size); err != nil {
			t.Fatalf("release(%d): %v", f.ptr, err)
		}
	}

	if h.brk != heapBase || len(h.free) != 0 {
		t.Errorf("after freeing everything: brk = %d, free = %v", h.brk, h.free)
	}
	if h.inUse() != 0 {
		t.Errorf("inUse() = %d", h.inUse())
	}
}

func TestHeapSplitsLargerBlocks(t *testing.T) {
	h := newTestHeap(t, 1)

	a := mustAlloc(t, h, 64)
	guard := mustAlloc(t, h, 8)
	if err := h.release(a, 64); err != nil {
		t.Fatal(err)
	}

	first := mustAlloc(t, h, 16)
	second := mustAlloc(t, h, 16)
	if first != a || second != a+16 {
		t.Errorf("split blocks at %d, %d, want %d, %d", first, second, a, a+16)
	}
	if guard <= second {
		t.Errorf("guard %d overlaps split block %d", guard, second)
	}
}

func TestHeapGrowsRegion(t *testing.T) {
	h := newTestHeap(t, 2)
	gen := h.region.Generation()

	mustAlloc(t, h, memory.PageSize)
	if h.region.Capacity() != 2*memory.PageSize {
		t.Errorf("Capacity() = %d, want two pages", h.region.Capacity())
	}
	if h.region.Generation() == gen {
		t.Error("growth should invalidate views")
	}

	_, err := h.alloc(memory.PageSize)
	var capErr *memory.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
}

func TestHeapRejectsBadFrees(t *testing.T) {
	h := newTestHeap(t, 1)
	p := mustAlloc(t, h, 32)

	if err := h.release(p, 64); err == nil {
		t.Error("size mismatch should fail")
	}
	if err := h.release(p, 32); err != nil {
		t.Fatal(err)
	}
	if err := h.release(p, 32); err == nil {
		t.Error("double free should fail")
	}
	if err := h.release(4096, 8); err == nil {
		t.Error("free of unallocated pointer should fail")
	}
}
