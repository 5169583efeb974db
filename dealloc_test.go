package heap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// withCapturedExit substitutes exitFunc with one that panics instead of
// terminating the test binary, letting fatal-path tests assert on the
// resulting Fault without killing the process.
func withCapturedExit(t *testing.T) *int {
	t.Helper()
	code := new(int)
	prevExit := exitFunc
	prevHandler := corruptionHandler.Load()
	exitFunc = func(c int) { *code = c; panic("heap: simulated exit") }
	t.Cleanup(func() {
		exitFunc = prevExit
		corruptionHandler.Store(prevHandler)
	})
	return code
}

func TestDeallocateNilIsNoop(t *testing.T) {
	h := newHeap()
	require.NotPanics(t, func() { h.Deallocate(nil) })
}

// Freeing two adjacent live blocks must merge them into one free block
// spanning both, not leave two separate free-list entries.
func TestDeallocateCoalescesAdjacentNeighbors(t *testing.T) {
	h := newHeap()

	a, err := h.Allocate(64)
	require.NoError(t, err)
	b, err := h.Allocate(64)
	require.NoError(t, err)
	c, err := h.Allocate(64)
	require.NoError(t, err)

	// Consume whatever remainder the initial chunk carve left trailing
	// after c, so c's only free neighbor once freed is b, not the rest
	// of the arena.
	require.Equal(t, 1, h.free.len)
	filler, err := h.Allocate(int(h.free.head.size))
	require.NoError(t, err)
	require.NotNil(t, filler)
	require.Equal(t, 0, h.free.len)

	blkA := payloadToHeader(uintptr(a))
	blkB := payloadToHeader(uintptr(b))
	blkC := payloadToHeader(uintptr(c))
	// Read the sizes before freeing: coalescing rewrites the size fields
	// of the headers it absorbs.
	wantSize := blkA.size + int64(headerSize) + blkB.size + int64(headerSize) + blkC.size

	h.Deallocate(a)
	h.Deallocate(c)
	require.Equal(t, 2, h.free.len, "a and c are not adjacent to each other; both stand alone")

	h.Deallocate(b)
	require.Equal(t, 1, h.free.len, "freeing b must coalesce a, b, and c into a single run")

	merged := h.free.head
	require.Equal(t, blkA.addr(), merged.addr())
	require.Equal(t, wantSize, merged.size)
}

func TestDeallocateDoubleFreeIsFatal(t *testing.T) {
	h := newHeap()
	var handled Fault
	InstallCorruptionHandler(func(kind Kind, addr uintptr, msg string) {
		handled = Fault{Kind: kind, Address: addr, Message: msg}
	})
	defer InstallCorruptionHandler(nil)

	p, err := h.Allocate(32)
	require.NoError(t, err)

	h.Deallocate(p)
	h.Deallocate(p)

	require.Equal(t, DoubleFree, handled.Kind)
}

func TestDeallocateCorruptHeaderIsFatal(t *testing.T) {
	h := newHeap()
	var handled Fault
	InstallCorruptionHandler(func(kind Kind, addr uintptr, msg string) {
		handled = Fault{Kind: kind, Address: addr, Message: msg}
	})
	defer InstallCorruptionHandler(nil)

	p, err := h.Allocate(32)
	require.NoError(t, err)

	blk := payloadToHeader(uintptr(p))
	blk.magic = 0xBAADF00D

	h.Deallocate(p)
	require.Equal(t, Corruption, handled.Kind)
}

func TestDeallocateInvalidPointerIsFatal(t *testing.T) {
	h := newHeap()
	var handled Fault
	InstallCorruptionHandler(func(kind Kind, addr uintptr, msg string) {
		handled = Fault{Kind: kind, Address: addr, Message: msg}
	})
	defer InstallCorruptionHandler(nil)

	stray := make([]byte, 64)
	h.Deallocate(unsafe.Pointer(&stray[0]))
	require.Equal(t, InvalidPointer, handled.Kind)
}

func TestDeallocateDefaultHandlerAbortsProcess(t *testing.T) {
	h := newHeap()
	code := withCapturedExit(t)

	p, err := h.Allocate(16)
	require.NoError(t, err)
	h.Deallocate(p)

	require.PanicsWithValue(t, "heap: simulated exit", func() { h.Deallocate(p) })
	require.Equal(t, 2, *code)
}
