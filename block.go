package heap

import "unsafe"

// blockMagic is the sentinel written into every live block's header.
const blockMagic uint32 = 0xDEADBEEF

// headerSize is the fixed, 16-byte-aligned size of a blockHeader,
// computed from the struct layout below rather than hardcoded so it
// stays correct if the fields ever change.
var headerSize = roundup(int(unsafe.Sizeof(blockHeader{})), mallocAlign)

// blockHeader sits at the start of every block, allocated or free. The
// prevFree/nextFree fields are part of the header, before the payload;
// while the block is allocated they are simply unused.
//
// A trailing 8-byte footer (the size, duplicated) lives at
// header+headerSize+size-8 whenever the block is free, used for
// backward physical navigation during coalescing (see DESIGN.md). It is
// not part of this struct because its address depends on size and is
// only meaningful while the block is free.
type blockHeader struct {
	size     int64        // payload bytes, excluding header, multiple of 16
	magic    uint32       // blockMagic while part of the heap
	isFree   uint32       // 0 allocated, 1 free
	prevFree *blockHeader // free list only
	nextFree *blockHeader // free list only
}

// footer mirrors size at the tail of a free block for O(1) backward
// coalescing (see DESIGN.md).
type footer struct {
	size int64
}

func blockAt(addr uintptr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(addr))
}

func (h *blockHeader) addr() uintptr { return uintptr(unsafe.Pointer(h)) }

// payload returns the address of the first payload byte, headerSize
// bytes past the header.
func (h *blockHeader) payload() uintptr { return h.addr() + uintptr(headerSize) }

func payloadToHeader(p uintptr) *blockHeader {
	return blockAt(p - uintptr(headerSize))
}

// end returns the address one past the last byte owned by this block
// (header + payload, excluding any neighbor).
func (h *blockHeader) end() uintptr {
	return h.addr() + uintptr(headerSize) + uintptr(h.size)
}

// footerAddr returns where this block's boundary tag lives. Only valid
// while the block is free (or about to become free) and size >= 16 so
// the 8-byte footer never overlaps the header.
func (h *blockHeader) footerAddr() uintptr {
	return h.end() - 8
}

func (h *blockHeader) footer() *footer {
	return (*footer)(unsafe.Pointer(h.footerAddr()))
}

// writeFooter stamps the boundary tag. Called whenever a block becomes
// free (split remainder, coalesced result, or a freshly-deallocated
// block with no free neighbor to merge into).
func (h *blockHeader) writeFooter() {
	h.footer().size = h.size
}

// blockState is the outcome of validate().
type blockState int

const (
	blockValid blockState = iota
	blockCorruptMagic
	blockInvalidSize
	blockMisaligned
	blockInvalidFreeState
	blockOutOfBounds
)

func (s blockState) String() string {
	switch s {
	case blockValid:
		return "VALID"
	case blockCorruptMagic:
		return "CORRUPT_MAGIC"
	case blockInvalidSize:
		return "INVALID_SIZE"
	case blockMisaligned:
		return "MISALIGNED"
	case blockInvalidFreeState:
		return "INVALID_FREE_STATE"
	case blockOutOfBounds:
		return "OUT_OF_BOUNDS"
	default:
		return "UNKNOWN"
	}
}

// validate checks a candidate header for structural soundness.
// regionLo/regionHi bound the region the block is claimed to live in;
// pass 0,0 to skip the bounds check (used when the caller has already
// resolved the owning region by other means).
func validate(h *blockHeader, regionLo, regionHi uintptr) blockState {
	addr := h.addr()
	if addr%mallocAlign != 0 {
		return blockMisaligned
	}
	if regionHi != 0 && (addr < regionLo || addr >= regionHi) {
		return blockOutOfBounds
	}
	if h.magic != blockMagic {
		return blockCorruptMagic
	}
	if h.size < mallocAlign || h.size%mallocAlign != 0 {
		return blockInvalidSize
	}
	if regionHi != 0 && h.end() > regionHi {
		return blockOutOfBounds
	}
	if h.isFree != 0 && h.isFree != 1 {
		return blockInvalidFreeState
	}
	return blockValid
}
