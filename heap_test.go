package heap

import (
	"bytes"
	"math"
	"sync"
	"testing"

	"github.com/cznic/mathutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	require.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestTeardownRejectsLiveAllocations(t *testing.T) {
	code := withCapturedExit(t)
	var handled *Fault
	InstallCorruptionHandler(func(kind Kind, addr uintptr, message string) {
		handled = &Fault{Kind: kind, Address: addr, Message: message}
	})
	defer InstallCorruptionHandler(nil)

	Init()
	p, err := Allocate(32)
	require.NoError(t, err)

	require.NoError(t, Teardown())
	require.Equal(t, Corruption, handled.Kind)
	require.Zero(t, *code, "a corruption handler is installed, so the default exit path must not run")

	// The installed handler aborted the teardown before it reset the
	// singleton, so p is still live on the original heap.
	Deallocate(p)
}

const stressQuota = 4 << 20 // 4 MiB per stress test, scaled down from production-sized runs

func stressMax(h *Heap) int { return 2 * h.pageMapThreshold / 8 }

// Allocate every block up front, verify its content against the seeded
// stream it was filled from, then shuffle and free everything.
func TestStressAllocateVerifyThenFreeShuffled(t *testing.T) {
	h := newHeap()
	max := stressMax(h)
	rem := stressQuota

	var blocks []struct {
		ptr  []byte
		size int
	}

	rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
	require.NoError(t, err)
	rng.Seed(42)
	pos := rng.Pos()

	for rem > 0 {
		size := rng.Next()%max + 1
		rem -= size
		p, err := h.Allocate(size)
		require.NoError(t, err)

		b := asBytes(p, size)
		for i := range b {
			b[i] = byte(rng.Next())
		}
		blocks = append(blocks, struct {
			ptr  []byte
			size int
		}{b, size})
	}

	rng.Seek(pos)
	for _, blk := range blocks {
		wantSize := rng.Next()%max + 1
		require.Equal(t, wantSize, blk.size)
		for _, got := range blk.ptr {
			require.Equal(t, byte(rng.Next()), got)
		}
	}

	shuf, err := mathutil.NewFC32(0, math.MaxInt32, true)
	require.NoError(t, err)
	shuf.Seed(7)
	for i := range blocks {
		j := shuf.Next() % len(blocks)
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}

	for _, blk := range blocks {
		h.Deallocate(asPointer(blk.ptr))
	}

	s := h.Stats()
	require.Zero(t, s.AllocationCount)
	require.Zero(t, s.TotalAllocated)
	require.Equal(t, h.free.totalFree(), s.TotalFree)
}

// Verify-then-free in original allocation order, exercising backward
// coalescing: each freed block's previous neighbor is already free while
// its next neighbor is still live.
func TestStressVerifyThenFreeInOrder(t *testing.T) {
	h := newHeap()
	max := stressMax(h)
	rem := stressQuota

	var blocks [][]byte
	rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
	require.NoError(t, err)
	rng.Seed(42)
	pos := rng.Pos()

	for rem > 0 {
		size := rng.Next()%max + 1
		rem -= size
		p, err := h.Allocate(size)
		require.NoError(t, err)
		b := asBytes(p, size)
		for i := range b {
			b[i] = byte(rng.Next())
		}
		blocks = append(blocks, b)
	}

	rng.Seek(pos)
	for _, b := range blocks {
		size := rng.Next()%max + 1
		require.Equal(t, size, len(b))
		for _, got := range b {
			require.Equal(t, byte(rng.Next()), got)
		}
		h.Deallocate(asPointer(b))
	}

	s := h.Stats()
	require.Zero(t, s.AllocationCount)
	require.Zero(t, s.TotalAllocated)
}

// A random mix of allocate and free, keeping a shadow copy of every
// live block's contents to catch any heap corruption across splits and
// coalescing.
func TestStressRandomAllocateFreeMix(t *testing.T) {
	h := newHeap()
	max := stressMax(h)
	rem := stressQuota

	type entry struct {
		ptr    []byte
		shadow []byte
	}
	live := map[int]entry{}
	nextID := 0

	rng, err := mathutil.NewFC32(1, max, true)
	require.NoError(t, err)

	for rem > 0 {
		switch rng.Next() % 3 {
		case 0, 1:
			size := rng.Next()
			rem -= size
			p, err := h.Allocate(size)
			require.NoError(t, err)
			b := asBytes(p, size)
			for i := range b {
				b[i] = byte(rng.Next())
			}
			shadow := append([]byte(nil), b...)
			live[nextID] = entry{ptr: b, shadow: shadow}
			nextID++
		default:
			for id, e := range live {
				require.True(t, bytes.Equal(e.ptr, e.shadow), "live block corrupted before its own free")
				rem += len(e.ptr)
				h.Deallocate(asPointer(e.ptr))
				delete(live, id)
				break
			}
		}
	}

	for id, e := range live {
		require.True(t, bytes.Equal(e.ptr, e.shadow), "live block corrupted at drain")
		h.Deallocate(asPointer(e.ptr))
		delete(live, id)
	}

	s := h.Stats()
	require.Zero(t, s.AllocationCount)
	require.Zero(t, s.TotalAllocated)
}

// Eight goroutines hammering one shared Heap must never corrupt its
// invariants: every allocation's bytes must survive untouched by any
// other goroutine's traffic.
func TestConcurrentAllocateDeallocate(t *testing.T) {
	h := newHeap()
	const goroutines = 8
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(seed int) {
			defer wg.Done()
			rng, err := mathutil.NewFC32(1, 2048, true)
			if err != nil {
				t.Error(err)
				return
			}
			rng.Seed(seed)

			var live [][]byte
			for i := 0; i < iterations; i++ {
				size := rng.Next()
				p, err := h.Allocate(size)
				if err != nil {
					t.Error(err)
					return
				}
				b := asBytes(p, size)
				marker := byte(seed)
				for j := range b {
					b[j] = marker
				}
				live = append(live, b)

				if len(live) > 32 {
					victim := rng.Next() % len(live)
					for _, c := range live[victim] {
						if c != marker {
							t.Errorf("goroutine %d: cross-goroutine corruption detected", seed)
							return
						}
					}
					h.Deallocate(asPointer(live[victim]))
					live[victim] = live[len(live)-1]
					live = live[:len(live)-1]
				}
			}
			for _, b := range live {
				h.Deallocate(asPointer(b))
			}
		}(g + 1)
	}
	wg.Wait()

	s := h.Stats()
	require.Zero(t, s.AllocationCount)
	require.Zero(t, s.TotalAllocated)
}
