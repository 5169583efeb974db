package heap

import "unsafe"

// Deallocate releases a pointer previously returned by Allocate,
// AllocateZeroed, AllocateAligned, or Reallocate. A nil pointer is a
// silent no-op. Any other value must have been returned by one of
// those functions; violating that contract is a programming error and
// is fatal.
func Deallocate(p unsafe.Pointer) {
	defaultHeap().Deallocate(p)
}

// resolveLivePointer validates that addr is a pointer previously
// returned by this heap and currently allocated, reporting the matching
// fatal Kind via fatalFault on any violation; if fatalFault returns
// (a corruption handler is installed), ok is false.
// It is shared by Deallocate, Reallocate, and UsableSize so every
// operation that accepts a user pointer applies identical scrutiny.
func (h *Heap) resolveLivePointer(addr uintptr) (*blockHeader, region, bool) {
	headerAddr := addr - uintptr(headerSize)
	if real, ok := h.aligned.Load(addr); ok {
		headerAddr = real.(uintptr)
	}

	reg, ok := h.regions.find(headerAddr)
	if !ok {
		fatalFault(InvalidPointer, addr, "pointer does not belong to any region registered by this heap")
		return nil, region{}, false
	}

	blk := blockAt(headerAddr)
	switch validate(blk, reg.lo(), reg.hi()) {
	case blockMisaligned:
		fatalFault(InvalidPointer, addr, "header address is not 16-byte aligned")
		return nil, region{}, false
	case blockOutOfBounds:
		fatalFault(InvalidPointer, addr, "block extends past its region's bounds")
		return nil, region{}, false
	case blockCorruptMagic:
		fatalFault(Corruption, addr, "header magic does not match 0xDEADBEEF")
		return nil, region{}, false
	case blockInvalidSize:
		fatalFault(Corruption, addr, "block size is not a positive multiple of 16")
		return nil, region{}, false
	case blockInvalidFreeState:
		fatalFault(Corruption, addr, "is_free flag holds a value other than 0 or 1")
		return nil, region{}, false
	}

	if blk.isFree == 1 {
		fatalFault(DoubleFree, addr, "block is already on the free list")
		return nil, region{}, false
	}
	return blk, reg, true
}

func (h *Heap) Deallocate(p unsafe.Pointer) {
	if p == nil {
		return
	}
	addr := uintptr(p)

	blk, reg, ok := h.resolveLivePointer(addr)
	if !ok {
		return
	}
	h.aligned.Delete(addr)

	size := blk.size
	traceOp("deallocate", int(size), addr, nil)

	if reg.origin == originPageMap {
		h.stats.onDeallocate(size)
		if err := h.source.releasePageMap(reg.base, reg.length); err != nil {
			fatalFault(InvalidPointer, addr, err.Error())
		}
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.onDeallocate(size)
	merged := h.coalesce(blk, reg)
	h.stats.onFreeDelta(merged.size)
	h.free.insert(merged)
}

// coalesce merges blk with its physically next and then physically
// previous block if each is free and within the same region,
// transitively (at most three blocks merged in one call, since the
// result of merging next can itself then be merged with prev). Caller
// holds h.mu.
func (h *Heap) coalesce(blk *blockHeader, reg region) *blockHeader {
	if next := h.freeNeighborAfter(blk, reg); next != nil {
		h.free.remove(next)
		h.stats.onFreeDelta(-next.size)
		blk.size += int64(headerSize) + next.size
	}
	if prev := h.freeNeighborBefore(blk, reg); prev != nil {
		h.free.remove(prev)
		h.stats.onFreeDelta(-prev.size)
		prev.size += int64(headerSize) + blk.size
		blk = prev
	}
	blk.isFree = 1
	blk.magic = blockMagic
	return blk
}

// freeNeighborAfter returns the physically next block if it lies
// wholly within reg and is currently free.
func (h *Heap) freeNeighborAfter(blk *blockHeader, reg region) *blockHeader {
	nextAddr := blk.end()
	if nextAddr >= reg.hi() {
		return nil
	}
	next := blockAt(nextAddr)
	if validate(next, reg.lo(), reg.hi()) != blockValid {
		return nil
	}
	if next.isFree != 1 {
		return nil
	}
	return next
}

// freeNeighborBefore locates the physically previous block via the
// boundary-tag (footer) mechanism: the 8 bytes immediately preceding
// blk's header are read as a candidate previous block's size, and the
// candidate is accepted only if it independently validates (alignment,
// magic, size, bounds) AND its own computed end() lands exactly at
// blk's address AND it is marked free. That last triple check is what
// makes trusting an unprotected footer safe here: there is no separate
// prev-allocated bit, so an allocated neighbor's trailing payload bytes
// could coincidentally look like a footer, but they cannot also pass
// full header validation at the address those bytes imply *and* have
// that header's end() equal blk's address — both would have to be
// satisfied by chance.
func (h *Heap) freeNeighborBefore(blk *blockHeader, reg region) *blockHeader {
	footerAddr := blk.addr() - 8
	if footerAddr < reg.lo()+uintptr(headerSize) {
		return nil // blk is the first block in its region
	}
	candidateSize := (*footer)(unsafe.Pointer(footerAddr)).size
	if candidateSize < 16 || candidateSize%16 != 0 {
		return nil
	}
	prevAddr := blk.addr() - uintptr(headerSize) - uintptr(candidateSize)
	if prevAddr < reg.lo() {
		return nil
	}
	prev := blockAt(prevAddr)
	if validate(prev, reg.lo(), reg.hi()) != blockValid {
		return nil
	}
	if prev.isFree != 1 {
		return nil
	}
	if prev.end() != blk.addr() {
		return nil
	}
	return prev
}
