package heap

import "unsafe"

// splittable reports whether a candidate free block of size cap is
// large enough to be cut into {allocated: e, free-remainder} rather
// than handed out whole.
func splittable(cap, e int) bool {
	return int64(cap) >= int64(e)+int64(headerSize)+16
}

// carve shrinks a free block h to the requested effective size e and
// returns a free remainder block when there is enough room to split, or
// nil otherwise. h is returned unmodified in size when no split occurs.
// carve does not touch the free list; callers splice the remainder in
// themselves since the call sites differ (existing free-list member vs
// freshly-acquired OS memory).
func carve(h *blockHeader, e int) (remainder *blockHeader) {
	if !splittable(int(h.size), e) {
		return nil
	}
	total := h.size
	h.size = int64(e)
	remAddr := h.end()
	rem := blockAt(remAddr)
	rem.magic = blockMagic
	rem.size = total - int64(e) - int64(headerSize)
	rem.isFree = 1
	return rem
}

// Allocate requests size bytes. size == 0 returns nil with no error
// and no side effect (a silent success, not InvalidSize). Negative
// sizes are a programming error and panic.
func Allocate(size int) (unsafe.Pointer, error) {
	return defaultHeap().Allocate(size)
}

func (h *Heap) Allocate(size int) (unsafe.Pointer, error) {
	if size < 0 {
		panic("heap: invalid allocate size")
	}
	if size == 0 {
		return nil, nil
	}
	if size > maxRequestSize {
		err := recordRecoverable(InvalidSize, 0, "allocate: size overflows when rounded to the allocator's alignment")
		h.stats.onOOM()
		traceOp("allocate", size, 0, err)
		return nil, err
	}

	e := effectiveSize(size)
	total := footprint(e)

	var blk *blockHeader
	var err error
	if total >= h.pageMapThreshold {
		blk, err = h.allocatePageMap(total)
	} else {
		blk, err = h.allocateHeapExtension(e, total)
	}
	if err != nil {
		recordRecoverable(OutOfMemory, 0, err.Error())
		h.stats.onOOM()
		traceOp("allocate", size, 0, err)
		return nil, err
	}

	p := unsafe.Pointer(blk.payload())
	h.stats.onAllocate(blk.size)
	traceOp("allocate", size, blk.addr(), nil)
	return p, nil
}

// allocatePageMap services the large-allocation path: a single block
// filling the entire mapped region, never split, never placed on the
// free list.
func (h *Heap) allocatePageMap(total int) (*blockHeader, error) {
	base, length, err := h.source.acquirePageMap(total)
	if err != nil {
		return nil, err
	}
	blk := blockAt(base)
	blk.magic = blockMagic
	blk.size = int64(length - headerSize)
	blk.isFree = 0
	return blk, nil
}

// allocateHeapExtension services the free-list-backed allocation path:
// first-fit reuse, falling back to acquiring fresh memory from the OS.
func (h *Heap) allocateHeapExtension(e, total int) (*blockHeader, error) {
	h.mu.Lock()
	if blk := h.free.firstFit(e); blk != nil {
		h.free.remove(blk)
		h.stats.onFreeDelta(-blk.size)
		if rem := carve(blk, e); rem != nil {
			h.stats.onFreeDelta(rem.size)
			h.free.insert(rem)
		}
		blk.isFree = 0
		h.mu.Unlock()
		return blk, nil
	}
	h.mu.Unlock()

	// Miss: the free list cannot satisfy this request in place. Under
	// heavy fragmentation, route it through the page-map path instead of
	// growing the heap-extension arena further.
	if shouldDegrade(h.stats.totalAllocated.Load(), h.stats.totalFree.Load(), h.degradedRatio) {
		return h.allocatePageMap(total)
	}

	// Ask the OS source. The heap's mutex is dropped across the
	// syscall to avoid priority inversion.
	base, length, err := h.source.acquireHeapExtension(total)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	fresh := blockAt(base)
	fresh.magic = blockMagic
	fresh.size = int64(length - headerSize)
	fresh.isFree = 1

	if rem := carve(fresh, e); rem != nil {
		h.stats.onFreeDelta(rem.size)
		h.free.insert(rem)
	}
	fresh.isFree = 0
	return fresh, nil
}
