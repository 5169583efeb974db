package heap

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestAllocateZeroedZerosPayload(t *testing.T) {
	h := newHeap()

	// Dirty a block, free it, then reallocate the same memory through
	// AllocateZeroed to confirm stale bytes get scrubbed.
	p, err := h.Allocate(64)
	require.NoError(t, err)
	dirty := unsafe.Slice((*byte)(p), 64)
	for i := range dirty {
		dirty[i] = 0xFF
	}
	h.Deallocate(p)

	z, err := h.AllocateZeroed(8, 8)
	require.NoError(t, err)
	require.NotNil(t, z)

	b := unsafe.Slice((*byte)(z), h.UsableSize(z))
	for _, v := range b {
		require.Zero(t, v)
	}
}

func TestAllocateZeroedOverflowIsRecoverable(t *testing.T) {
	h := newHeap()
	p, err := h.AllocateZeroed(2, math.MaxInt)
	require.Error(t, err)
	require.Nil(t, p)

	var fault *Fault
	require.ErrorAs(t, err, &fault)
	require.Equal(t, InvalidSize, fault.Kind)
}

func TestAllocateZeroedNegativeArgsPanic(t *testing.T) {
	h := newHeap()
	require.Panics(t, func() { h.AllocateZeroed(-1, 4) })
}

func TestAllocateZeroedZeroCountIsNoop(t *testing.T) {
	h := newHeap()
	p, err := h.AllocateZeroed(0, 16)
	require.NoError(t, err)
	require.Nil(t, p)
}
