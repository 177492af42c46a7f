package wasm

import (
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/memory"
)

// linearMemory binds an instance's engine memory to a memory.Region.
//
// wazero hands out views that are invalidated when the memory grows, either
// through the region's Resize or through a guest executing memory.grow.
// sync re-reads the view after every guest call so outstanding typed views
// of the old storage go stale instead of aliasing freed bytes.
type linearMemory struct {
	mem    api.Memory
	region *memory.Region
}

func newLinearMemory(mem api.Memory, limitPages uint32) *linearMemory {
	l := &linearMemory{mem: mem}

	maxPages := uint64(limitPages)
	if declared, ok := mem.Definition().Max(); ok && (maxPages == 0 || uint64(declared) < maxPages) {
		maxPages = uint64(declared)
	}
	maxBytes := uint64(memory.MaxCapacity)
	if maxPages > 0 && maxPages*memory.PageSize < maxBytes {
		maxBytes = maxPages * memory.PageSize
	}

	l.region = memory.Wrap(l.view(), memory.WithMaxCapacity(uint32(maxBytes)), memory.WithGrower(l))
	return l
}

func (l *linearMemory) view() []byte {
	buf, ok := l.mem.Read(0, l.mem.Size())
	if !ok {
		return nil
	}
	return buf
}

// Grow implements memory.Grower using memory.grow.
func (l *linearMemory) Grow(current []byte, newCapacity uint32) ([]byte, error) {
	need := uint64(newCapacity) - uint64(len(current))
	delta := (need + memory.PageSize - 1) / memory.PageSize
	if delta > math.MaxUint32 {
		return nil, fmt.Errorf("grow by %d pages exceeds address space", delta)
	}
	if _, ok := l.mem.Grow(uint32(delta)); !ok {
		return nil, fmt.Errorf("memory.grow(%d) refused", delta)
	}
	return l.view(), nil
}

// sync rebinds the region after the guest may have grown its memory.
func (l *linearMemory) sync() {
	l.region.Rebind(l.view())
}
