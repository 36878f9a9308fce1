// Package metrics instruments the buffer pool manager and disk scheduler
// with Prometheus counters and histograms. A nil *Collector is a valid,
// inert no-op so callers that do not care about metrics never have to
// nil-check before calling into the storage engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds the metrics registered for one buffer pool instance.
type Collector struct {
	PageHits       prometheus.Counter
	PageMisses     prometheus.Counter
	Evictions      prometheus.Counter
	WarmCacheHits  prometheus.Counter
	SchedulerWait  prometheus.Histogram
}

// New registers a fresh set of collectors against reg and returns them.
// Pass prometheus.NewRegistry() in tests to avoid colliding with the
// global default registry.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		PageHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bpm_page_hits_total",
			Help: "Number of FetchPage calls served from the resident page table.",
		}),
		PageMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bpm_page_misses_total",
			Help: "Number of FetchPage calls for a page not resident in the frame pool.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bpm_evictions_total",
			Help: "Number of frames reclaimed from an evictable victim.",
		}),
		WarmCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bpm_warm_cache_hits_total",
			Help: "Number of misses short-circuited by the warm page cache.",
		}),
		SchedulerWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "disk_scheduler_request_duration_seconds",
			Help:    "Time the disk scheduler's worker spends performing one disk request.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(c.PageHits, c.PageMisses, c.Evictions, c.WarmCacheHits, c.SchedulerWait)
	}
	return c
}

func (c *Collector) hit()       { if c != nil { c.PageHits.Inc() } }
func (c *Collector) miss()      { if c != nil { c.PageMisses.Inc() } }
func (c *Collector) evict()     { if c != nil { c.Evictions.Inc() } }
func (c *Collector) warmHit()   { if c != nil { c.WarmCacheHits.Inc() } }

// Hit records a buffer pool hit. Safe to call on a nil *Collector.
func (c *Collector) Hit() { c.hit() }

// Miss records a buffer pool miss. Safe to call on a nil *Collector.
func (c *Collector) Miss() { c.miss() }

// Evict records a frame eviction. Safe to call on a nil *Collector.
func (c *Collector) Evict() { c.evict() }

// WarmHit records a warm-cache short-circuit. Safe to call on a nil *Collector.
func (c *Collector) WarmHit() { c.warmHit() }

// ObserveSchedulerWait records disk-round-trip latency in seconds.
// Safe to call on a nil *Collector.
func (c *Collector) ObserveSchedulerWait(seconds float64) {
	if c != nil {
		c.SchedulerWait.Observe(seconds)
	}
}
