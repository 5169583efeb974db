package heap

import (
	"math"
	"unsafe"
)

// AllocateZeroed computes n*size with an overflow check before
// allocating, then zero-fills the payload: it zeroes after allocating
// rather than relying on zero-filled OS pages, since a heap-extension
// or recycled free-list block may carry stale bytes from a prior
// allocation.
func AllocateZeroed(n, size int) (unsafe.Pointer, error) {
	return defaultHeap().AllocateZeroed(n, size)
}

func (h *Heap) AllocateZeroed(n, size int) (unsafe.Pointer, error) {
	if n < 0 || size < 0 {
		panic("heap: invalid allocate_zeroed arguments")
	}
	if n != 0 && size > math.MaxInt/n {
		err := recordRecoverable(InvalidSize, 0, "allocate_zeroed: n*size overflows")
		return nil, err
	}

	total := n * size
	p, err := h.Allocate(total)
	if err != nil || p == nil {
		return p, err
	}

	b := unsafe.Slice((*byte)(p), h.UsableSize(p))
	for i := range b {
		b[i] = 0
	}
	return p, nil
}
