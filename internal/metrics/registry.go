package metrics

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Counter names used across the pipeline.
const (
	DeliveredTotal  = "delivered_total"
	FailedTotal     = "failed_total"
	RecordsIngested = "records_ingested_total"
	RecordsDeduped  = "records_deduped_total"
	RecordsEnriched = "records_enriched_total"
	MatchesRun      = "matchmaking_runs_total"
	JobsFailed      = "jobs_failed_total"
)

// latencyBuckets are upper bounds in milliseconds; the last bucket is
// unbounded.
var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Registry holds the pipeline's counters and the delivery latency
// histogram. It is constructed once at bootstrap and injected into every
// worker; increments are atomic so workers never contend on a business
// lock.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64

	latencyCounts []atomic.Int64 // len(latencyBuckets)+1, last is overflow
	latencyTotal  atomic.Int64
	latencySumMs  atomic.Int64
}

// NewRegistry creates a new Registry instance
func NewRegistry() *Registry {
	return &Registry{
		counters:      make(map[string]*atomic.Int64),
		latencyCounts: make([]atomic.Int64, len(latencyBuckets)+1),
	}
}

// Inc increments the named counter by one.
func (r *Registry) Inc(name string) {
	r.Add(name, 1)
}

// Add increments the named counter by n.
func (r *Registry) Add(name string, n int64) {
	r.counter(name).Add(n)
}

// Get returns the current value of the named counter.
func (r *Registry) Get(name string) int64 {
	return r.counter(name).Load()
}

func (r *Registry) counter(name string) *atomic.Int64 {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[name]; ok {
		return c
	}
	c = &atomic.Int64{}
	r.counters[name] = c
	return c
}

// ObserveDeliveryLatency records one delivery duration in the histogram.
func (r *Registry) ObserveDeliveryLatency(d time.Duration) {
	ms := float64(d.Milliseconds())
	idx := len(latencyBuckets)
	for i, upper := range latencyBuckets {
		if ms <= upper {
			idx = i
			break
		}
	}
	r.latencyCounts[idx].Add(1)
	r.latencyTotal.Add(1)
	r.latencySumMs.Add(d.Milliseconds())
}

// LatencyQuantile estimates the q-th latency quantile in milliseconds
// from the histogram buckets. Returns 0 when nothing was observed.
func (r *Registry) LatencyQuantile(q float64) float64 {
	total := r.latencyTotal.Load()
	if total == 0 {
		return 0
	}

	rank := q * float64(total)
	var seen float64
	for i := range r.latencyCounts {
		seen += float64(r.latencyCounts[i].Load())
		if seen >= rank {
			if i < len(latencyBuckets) {
				return latencyBuckets[i]
			}
			// Overflow bucket: report the mean as the best estimate.
			return float64(r.latencySumMs.Load()) / float64(total)
		}
	}
	return latencyBuckets[len(latencyBuckets)-1]
}

// Snapshot is a point-in-time copy of the registry for logging and the
// worker metrics endpoint.
type Snapshot struct {
	Counters       map[string]int64   `json:"counters"`
	LatencyBuckets map[string]int64   `json:"latency_buckets_ms"`
	LatencyCount   int64              `json:"latency_count"`
	LatencyMeanMs  float64            `json:"latency_mean_ms"`
	Quantiles      map[string]float64 `json:"latency_quantiles_ms"`
}

// Snapshot returns a copy of all counters and histogram state.
func (r *Registry) Snapshot() Snapshot {
	snap := Snapshot{
		Counters:       make(map[string]int64),
		LatencyBuckets: make(map[string]int64),
		Quantiles:      make(map[string]float64),
	}

	r.mu.RLock()
	for name, c := range r.counters {
		snap.Counters[name] = c.Load()
	}
	r.mu.RUnlock()

	for i, upper := range latencyBuckets {
		snap.LatencyBuckets[formatBucket(upper)] = r.latencyCounts[i].Load()
	}
	snap.LatencyBuckets["+Inf"] = r.latencyCounts[len(latencyBuckets)].Load()

	snap.LatencyCount = r.latencyTotal.Load()
	if snap.LatencyCount > 0 {
		snap.LatencyMeanMs = float64(r.latencySumMs.Load()) / float64(snap.LatencyCount)
	}
	snap.Quantiles["p50"] = r.LatencyQuantile(0.5)
	snap.Quantiles["p90"] = r.LatencyQuantile(0.9)
	snap.Quantiles["p99"] = r.LatencyQuantile(0.99)

	return snap
}

func formatBucket(upper float64) string {
	return strconv.FormatInt(int64(upper), 10) + "ms"
}
