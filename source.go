package heap

import (
	"sync"

	"github.com/pkg/errors"
)

// pageMapThreshold is the sourcing switch threshold: total block
// footprint (header + effective payload) at or above this value bypasses
// the free list entirely and goes straight to the page-map primitive.
const pageMapThreshold = 128 << 10 // 131072 bytes

// defaultChunkSize is the minimum amount the heap-extension path asks
// the OS for per call, amortizing syscall cost.
const defaultChunkSize = 64 << 10

// degradedFragmentationRatio is the optional rule: once
// total_free/(total_allocated+total_free) exceeds this ratio, small
// requests may be routed through the page-map path instead of growing
// the heap-extension arena further.
const degradedFragmentationRatio = 0.30

// emergencyFailureThreshold is the failure counter threshold after
// which the source flags "emergency" state, used only for logging.
const emergencyFailureThreshold = 10

// osSource brokers all OS memory acquisition. It holds its own lock,
// separate from the heap's free-list lock; callers always drop the
// heap lock before calling into here so an OS syscall is never made
// while holding the free-list lock.
type osSource struct {
	mu         sync.Mutex
	chunkSize  int
	failures   int
	emergency  bool
	registry   *regionRegistry
}

func newOSSource(reg *regionRegistry) *osSource {
	return &osSource{chunkSize: defaultChunkSize, registry: reg}
}

func (s *osSource) recordFailure() {
	s.mu.Lock()
	s.failures++
	becameEmergency := !s.emergency && s.failures >= emergencyFailureThreshold
	if becameEmergency {
		s.emergency = true
	}
	s.mu.Unlock()
	if becameEmergency {
		logger.WithField("failures", s.failures).Warn("heap: entering emergency mode after repeated OS source failures")
	}
}

func (s *osSource) setChunkSize(n int) {
	s.mu.Lock()
	if n >= defaultChunkSize {
		s.chunkSize = n
	}
	s.mu.Unlock()
}

// acquireHeapExtension implements the heap-extension path: ask
// the OS for at least `need` bytes, rounded up to the configured chunk
// size, register the whole chunk as one region, and hand the entire
// chunk back as (base, length) for the allocation engine to treat as a
// single fresh free block.
func (s *osSource) acquireHeapExtension(need int) (uintptr, int, error) {
	s.mu.Lock()
	chunk := s.chunkSize
	s.mu.Unlock()
	if need > chunk {
		chunk = need
	}
	chunk = roundup(chunk, mallocAlign)

	base, err := osExtend(chunk)
	if err != nil {
		s.recordFailure()
		return 0, 0, errors.Wrap(err, "heap: os heap-extension failed")
	}

	s.registry.add(region{base: base, length: chunk, origin: originHeapExtend})
	return base, chunk, nil
}

// acquirePageMap implements the large-allocation path: round up to page
// size, map, and register with origin page-map.
func (s *osSource) acquirePageMap(need int) (uintptr, int, error) {
	size := roundup(need, osPageSize)
	base, err := osPageMap(size)
	if err != nil {
		s.recordFailure()
		return 0, 0, errors.Wrap(err, "heap: os page-map failed")
	}
	s.registry.add(region{base: base, length: size, origin: originPageMap})
	return base, size, nil
}

// releasePageMap unmaps and unregisters a page-map-origin region.
func (s *osSource) releasePageMap(base uintptr, length int) error {
	if err := osPageUnmap(base, length); err != nil {
		return errors.Wrap(err, "heap: os page-unmap failed")
	}
	s.registry.remove(base)
	return nil
}

// shouldDegrade implements the optional rule: when fragmentation
// exceeds ratio, a small request may be routed through the page-map
// path instead of extending the heap-extension arena. It is an
// optimization; returning false always remains correct.
func shouldDegrade(totalAllocated, totalFree int64, ratio float64) bool {
	denom := totalAllocated + totalFree
	if denom == 0 {
		return false
	}
	return float64(totalFree)/float64(denom) > ratio
}
