package heap

import "unsafe"

// Reallocate resizes the allocation at p to size bytes: nil ->
// Allocate; size==0 -> Deallocate; shrink-in-place when the existing
// block already fits; otherwise an optional in-place expansion into a
// free physical neighbor, falling back to allocate-copy-free. The
// returned pointer may or may not equal p; on failure p remains valid.
func Reallocate(p unsafe.Pointer, size int) (unsafe.Pointer, error) {
	return defaultHeap().Reallocate(p, size)
}

func (h *Heap) Reallocate(p unsafe.Pointer, size int) (unsafe.Pointer, error) {
	if p == nil {
		return h.Allocate(size)
	}
	if size == 0 {
		h.Deallocate(p)
		return nil, nil
	}
	if size < 0 {
		panic("heap: invalid reallocate size")
	}
	if size > maxRequestSize {
		return nil, recordRecoverable(InvalidSize, uintptr(p), "reallocate: size overflows when rounded to the allocator's alignment")
	}

	addr := uintptr(p)
	blk, reg, ok := h.resolveLivePointer(addr)
	if !ok {
		return nil, nil // fatalFault reported the fault to the installed handler
	}

	offset := int64(addr - blk.payload())
	e := int64(effectiveSize(size))

	if e <= blk.size-offset {
		if reg.origin != originPageMap {
			h.shrinkInPlace(blk, int(e+offset))
		}
		traceOp("reallocate", size, addr, nil)
		return p, nil
	}

	if reg.origin != originPageMap {
		if grown := h.growInPlace(blk, reg, e+offset); grown {
			traceOp("reallocate", size, addr, nil)
			return p, nil
		}
	}

	newPtr, err := h.Allocate(size)
	if err != nil {
		return nil, err
	}

	oldUsable := h.UsableSize(p)
	n := oldUsable
	if size < n {
		n = size
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
	dst := unsafe.Slice((*byte)(newPtr), n)
	copy(dst, src)

	h.Deallocate(p)
	traceOp("reallocate", size, uintptr(newPtr), nil)
	return newPtr, nil
}

// shrinkInPlace optionally splits off the remainder of blk when a
// reallocate to a smaller size leaves enough excess to host a new free
// block, returning the same pointer either way.
func (h *Heap) shrinkInPlace(blk *blockHeader, newSize int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rem := carve(blk, newSize); rem != nil {
		h.stats.onFreeDelta(rem.size)
		h.free.insert(rem)
		h.stats.totalAllocated.Add(-(int64(rem.size) + int64(headerSize)))
	}
}

// growInPlace attempts a permitted-not-required in-place expansion: if
// the physically next block is free and, combined with blk, reaches at
// least needed bytes, consume it (optionally splitting the remainder)
// and extend blk in place. Caller must not be holding h.mu.
func (h *Heap) growInPlace(blk *blockHeader, reg region, needed int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.freeNeighborAfter(blk, reg)
	if next == nil {
		return false
	}
	combined := blk.size + int64(headerSize) + next.size
	if combined < needed {
		return false
	}

	originalSize := blk.size
	h.free.remove(next)
	h.stats.onFreeDelta(-next.size)
	blk.size = combined

	if rem := carve(blk, int(needed)); rem != nil {
		h.stats.onFreeDelta(rem.size)
		h.free.insert(rem)
	}
	blk.isFree = 0
	blk.magic = blockMagic
	h.stats.totalAllocated.Add(blk.size - originalSize)
	return true
}
