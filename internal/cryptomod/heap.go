package cryptomod

import (
	"fmt"
	"sort"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/memory"
)

const (
	heapAlign = 8
	// heapBase keeps address 0 free so a null pointer never names an
	// allocation.
	heapBase = 8
)

type block struct {
	off, size uint32
}

// heap is a first-fit allocator over a region. Freed blocks are kept sorted
// by offset and coalesced with their neighbours; when nothing fits the break
// moves up and the region grows a page at a time.
type heap struct {
	region *memory.Region
	free   []block
	live   map[uint32]uint32
	brk    uint32
}

func newHeap(region *memory.Region) *heap {
	return &heap{region: region, live: make(map[uint32]uint32), brk: heapBase}
}

func align(n uint32) uint64 {
	if n == 0 {
		n = 1
	}
	return (uint64(n) + heapAlign - 1) &^ (heapAlign - 1)
}

// alloc reserves size bytes. It returns 0 and the growth failure when the
// region cannot be extended far enough.
func (h *heap) alloc(size uint32) (uint32, error) {
	n := align(size)

	for i, b := range h.free {
		if uint64(b.size) < n {
			continue
		}
		ptr := b.off
		if rest := uint64(b.size) - n; rest > 0 {
			h.free[i] = block{off: b.off + uint32(n), size: uint32(rest)}
		} else {
			h.free = append(h.free[:i], h.free[i+1:]...)
		}
		h.live[ptr] = uint32(n)
		return ptr, nil
	}

	end := uint64(h.brk) + n
	if end > uint64(h.region.MaxCapacity()) {
		return 0, &memory.CapacityError{
			Current:   uint64(h.region.Capacity()),
			Requested: end,
			Max:       uint64(h.region.MaxCapacity()),
		}
	}
	if capacity := uint64(h.region.Capacity()); end > capacity {
		pages := (end - capacity + memory.PageSize - 1) / memory.PageSize
		if _, err := h.region.GrowPages(uint32(pages)); err != nil {
			return 0, err
		}
	}

	ptr := h.brk
	h.brk = uint32(end)
	h.live[ptr] = uint32(n)
	return ptr, nil
}

// release returns an allocation to the free list.
func (h *heap) release(ptr, size uint32) error {
	n, ok := h.live[ptr]
	if !ok {
		return fmt.Errorf("free of unallocated pointer %#x", ptr)
	}
	if uint64(n) != align(size) {
		return fmt.Errorf("free of %#x with size %d, allocated %d", ptr, size, n)
	}
	delete(h.live, ptr)

	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].off > ptr })
	h.free = append(h.free, block{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = block{off: ptr, size: n}

	// Merge with the following block, then with the preceding one.
	if i+1 < len(h.free) && h.free[i].off+h.free[i].size == h.free[i+1].off {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].off+h.free[i-1].size == h.free[i].off {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
		i--
	}

	// A free block touching the break is returned to it.
	if last := h.free[len(h.free)-1]; last.off+last.size == h.brk {
		h.brk = last.off
		h.free = h.free[:len(h.free)-1]
	}
	return nil
}

// inUse returns the number of live allocations.
func (h *heap) inUse() int {
	return len(h.live)
}
