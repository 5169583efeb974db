package heap

import "unsafe"

// UsableSize reports the actual payload size of the block at p: always
// >= the size originally requested and a multiple of 16. p must be a
// pointer currently allocated by this heap; nil reports 0.
func UsableSize(p unsafe.Pointer) int {
	return defaultHeap().UsableSize(p)
}

func (h *Heap) UsableSize(p unsafe.Pointer) int {
	if p == nil {
		return 0
	}
	addr := uintptr(p)
	blk, _, ok := h.resolveLivePointer(addr)
	if !ok {
		return 0
	}
	// addr may be offset from blk.payload() by AllocateAligned's
	// rounding; report what's usable from addr onward, not the whole
	// block.
	offset := addr - blk.payload()
	return int(blk.size) - int(offset)
}
