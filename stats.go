package heap

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// statCounters backs the heap's exposed statistics using atomics so
// readers (Stats()) never need the heap's mutex to load them. The
// total-free updates that accompany a free-list mutation are made under
// that mutex; allocation counts, failure counters and page-map
// deallocations are updated outside it.
type statCounters struct {
	totalAllocated  atomic.Int64
	totalFree       atomic.Int64
	allocationCount atomic.Int64
	peakAllocated   atomic.Int64
	oomFailures     atomic.Int64
	osSourceFailure atomic.Int64
}

func (s *statCounters) onAllocate(n int64) {
	total := s.totalAllocated.Add(n)
	s.allocationCount.Add(1)
	for {
		peak := s.peakAllocated.Load()
		if total <= peak || s.peakAllocated.CompareAndSwap(peak, total) {
			break
		}
	}
}

func (s *statCounters) onDeallocate(n int64) {
	s.totalAllocated.Add(-n)
	s.allocationCount.Add(-1)
}

func (s *statCounters) onFreeDelta(n int64) { s.totalFree.Add(n) }

func (s *statCounters) onOOM() { s.oomFailures.Add(1) }

// Stats is a point-in-time snapshot of the heap's counters.
type Stats struct {
	TotalAllocated   int64
	TotalFree        int64
	AllocationCount  int64
	PeakAllocated    int64
	OOMFailures      int64
	OSSourceFailures int64
	RegionCount      int
	FragmentationPct float64
}

// StatsSnapshot returns a snapshot of the process-wide heap's counters.
func StatsSnapshot() Stats { return defaultHeap().Stats() }

// Stats returns a snapshot of h's counters.
func (h *Heap) Stats() Stats {
	ta := h.stats.totalAllocated.Load()
	tf := h.stats.totalFree.Load()
	var frag float64
	if ta+tf > 0 {
		frag = float64(tf) / float64(ta+tf)
	}
	h.mu.Lock()
	src := h.source
	h.mu.Unlock()
	src.mu.Lock()
	osFail := int64(src.failures)
	src.mu.Unlock()

	return Stats{
		TotalAllocated:   ta,
		TotalFree:        tf,
		AllocationCount:  h.stats.allocationCount.Load(),
		PeakAllocated:    h.stats.peakAllocated.Load(),
		OOMFailures:      h.stats.oomFailures.Load(),
		OSSourceFailures: osFail,
		RegionCount:      h.regions.count(),
		FragmentationPct: frag * 100,
	}
}

// --- Prometheus export ---

var (
	metricsOnce  sync.Once
	metricsReg   *prometheus.Registry
	gaugeAlloc   prometheus.GaugeFunc
	gaugeFree    prometheus.GaugeFunc
	gaugeCount   prometheus.GaugeFunc
	gaugeFrag    prometheus.GaugeFunc
	counterFails prometheus.CounterFunc
)

func initMetrics() {
	metricsReg = prometheus.NewRegistry()

	gaugeAlloc = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "heap_total_allocated_bytes",
		Help: "Bytes currently handed out to live allocations.",
	}, func() float64 { return float64(StatsSnapshot().TotalAllocated) })

	gaugeFree = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "heap_total_free_bytes",
		Help: "Bytes currently sitting on the free list.",
	}, func() float64 { return float64(StatsSnapshot().TotalFree) })

	gaugeCount = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "heap_allocation_count",
		Help: "Number of currently-live allocations.",
	}, func() float64 { return float64(StatsSnapshot().AllocationCount) })

	gaugeFrag = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "heap_fragmentation_ratio",
		Help: "total_free / (total_allocated + total_free).",
	}, func() float64 { return StatsSnapshot().FragmentationPct / 100 })

	counterFails = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "heap_os_source_failures_total",
		Help: "Count of failed OS heap-extension/page-map calls.",
	}, func() float64 { return float64(StatsSnapshot().OSSourceFailures) })

	metricsReg.MustRegister(gaugeAlloc, gaugeFree, gaugeCount, gaugeFrag, counterFails)
}

// Registry returns the package-level Prometheus registry exposing the
// process-wide heap's statistics. Embedding processes (e.g. heapctl's
// `serve` subcommand) can mount it behind an HTTP handler without this
// package depending on net/http.
func Registry() *prometheus.Registry {
	metricsOnce.Do(initMetrics)
	return metricsReg
}
