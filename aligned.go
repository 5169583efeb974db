package heap

import "unsafe"

// isPowerOfTwo reports whether n is a power of two (n > 0).
func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// AllocateAligned requests size bytes aligned to align. align must be
// a power of two and size must be a multiple of align, otherwise the
// call fails with InvalidSize and returns nil.
func AllocateAligned(align, size int) (unsafe.Pointer, error) {
	return defaultHeap().AllocateAligned(align, size)
}

func (h *Heap) AllocateAligned(align, size int) (unsafe.Pointer, error) {
	if !isPowerOfTwo(align) || size <= 0 || size%align != 0 {
		err := recordRecoverable(InvalidSize, 0, "allocate_aligned: alignment must be a power of two and size a multiple of it")
		return nil, err
	}

	if align <= osPageSize {
		return h.allocateAlignedSmall(align, size)
	}
	return h.allocateAlignedLarge(align, size)
}

// allocateAlignedSmall over-allocates from the normal free-list/
// heap-extension path by up to align-1 extra bytes, then records the
// chosen address in h.aligned so the real block can be recovered later
// at deallocate.
func (h *Heap) allocateAlignedSmall(align, size int) (unsafe.Pointer, error) {
	inner, err := h.Allocate(size + align - 1)
	if err != nil {
		return nil, err
	}
	base := uintptr(inner)
	alignedAddr := roundupPtr(base, uintptr(align))

	h.aligned.Store(alignedAddr, payloadToHeader(base).addr())
	return unsafe.Pointer(alignedAddr), nil
}

// allocateAlignedLarge handles align > page size directly through the
// page-map path: mmap enough room to guarantee an aligned sub-address
// exists within it, never touching the free list.
func (h *Heap) allocateAlignedLarge(align, size int) (unsafe.Pointer, error) {
	total := headerSize + size + align - 1
	base, length, err := h.source.acquirePageMap(total)
	if err != nil {
		recordRecoverable(OutOfMemory, 0, err.Error())
		h.stats.onOOM()
		return nil, err
	}
	blk := blockAt(base)
	blk.magic = blockMagic
	blk.size = int64(length - headerSize)
	blk.isFree = 0

	payloadAddr := blk.payload()
	alignedAddr := roundupPtr(payloadAddr, uintptr(align))
	h.aligned.Store(alignedAddr, base)
	h.stats.onAllocate(blk.size)
	return unsafe.Pointer(alignedAddr), nil
}

// roundupPtr rounds addr up to the next multiple of align (align a
// power of two).
func roundupPtr(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}
