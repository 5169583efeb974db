package heap

import (
	"sync"
	"sync/atomic"
)

// Heap is the process-wide allocator state singleton. Its zero value
// is not ready for use directly — construct one with newHeap() — but
// the package-level Allocate/Deallocate/... functions lazily initialize
// and reuse a single process-wide instance: a caller never has to call
// Init() before Allocate().
//
// Lock order, enforced everywhere in this package: mu (heap_mutex) ->
// source.mu (pool_mutex) -> regions.mu (region_mutex). No method
// acquires these out of order, and no callback (corruption handler,
// logging) is invoked while holding any of them.
type Heap struct {
	mu      sync.Mutex
	free    freeList
	regions regionRegistry
	source  *osSource
	stats   statCounters

	// aligned maps a pointer returned by AllocateAligned (which need not
	// equal its owning block's payload address) back to that block's
	// header address, so Deallocate/Reallocate/UsableSize can recover
	// the real block without guessing from pointer arithmetic alone.
	aligned sync.Map // map[uintptr]uintptr

	pageMapThreshold int
	degradedRatio    float64
}

func newHeap() *Heap {
	return newHeapWithConfig(DefaultConfig())
}

// newHeapWithConfig builds an isolated Heap governed by cfg, bypassing
// the process-wide singleton. Tests use this to exercise the page-map
// cutover and degraded-mode routing at thresholds far below the
// production 128 KiB default, without needing 128 KiB-sized buffers.
func newHeapWithConfig(cfg Config) *Heap {
	h := &Heap{
		pageMapThreshold: cfg.PageMapThreshold,
		degradedRatio:    cfg.DegradedFragmentationRatio,
	}
	h.source = newOSSource(&h.regions)
	h.source.setChunkSize(cfg.ChunkSize)
	return h
}

var (
	singleton     atomic.Pointer[Heap]
	singletonOnce sync.Once
)

// defaultHeap returns the lazily-initialized process-wide Heap. It is
// lazily initialized on first allocation and never torn down during
// normal program lifetime.
func defaultHeap() *Heap {
	if h := singleton.Load(); h != nil {
		return h
	}
	singletonOnce.Do(func() {
		singleton.Store(newHeap())
	})
	return singleton.Load()
}

// Init lazily initializes the process-wide heap. It is idempotent and
// never required before any other operation: calling it is purely an
// optimization to pay initialization cost at a predictable time.
func Init() { defaultHeap() }

// Teardown releases every region held by the process-wide heap and
// resets it to an uninitialized state. It is for test harnesses only
// and requires that no live allocations remain; calling it with live
// allocations is a programming error reported as a fatal Corruption
// fault, since the caller is about to invalidate pointers that are
// still considered live.
func Teardown() error {
	h := defaultHeap()
	h.mu.Lock()
	live := h.stats.allocationCount.Load()
	h.mu.Unlock()
	if live != 0 {
		fatalFault(Corruption, 0, "heap: Teardown called with live allocations outstanding")
		return nil
	}

	h.mu.Lock()
	regs := h.regions.all()
	h.mu.Unlock()

	for _, r := range regs {
		if r.origin == originPageMap {
			if err := h.source.releasePageMap(r.base, r.length); err != nil {
				return err
			}
			continue
		}
		// Heap-extension regions are never returned to the OS during
		// normal operation; Teardown is the sole exception and unmaps
		// every region unconditionally.
		if err := osPageUnmap(r.base, r.length); err != nil {
			return err
		}
		h.regions.remove(r.base)
	}

	singleton.Store(newHeap())
	return nil
}
