// Package prom exports cache metrics to Prometheus.
package prom

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/objcache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	writes    prometheus.Counter
	evicts    *prometheus.CounterVec
	entries   *prometheus.GaugeVec
	bytes     *prometheus.GaugeVec
	scavenges *prometheus.HistogramVec
	skipped   *prometheus.CounterVec
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
//
// Per-partition series carry a "partition" label.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "writes_total",
			Help:        "Cache upserts",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "entries",
				Help:        "Number of resident entries per partition",
				ConstLabels: constLabels,
			},
			[]string{"partition"},
		),
		bytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "size_bytes",
				Help:        "Approximate resident size per partition",
				ConstLabels: constLabels,
			},
			[]string{"partition"},
		),
		scavenges: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "scavenge_duration_seconds",
				Help:        "Duration of completed scavenge cycles",
				ConstLabels: constLabels,
				Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"partition"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "scavenge_skipped_total",
				Help:        "Scavenge cycles skipped (busy partition or cycle overlap)",
				ConstLabels: constLabels,
			},
			[]string{"partition"},
		),
	}
	reg.MustRegister(a.hits, a.misses, a.writes, a.evicts, a.entries, a.bytes, a.scavenges, a.skipped)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Write increments the upsert counter.
func (a *Adapter) Write() { a.writes.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates the partition's entry and byte gauges.
func (a *Adapter) Size(partition int, entries int, bytes uint64) {
	p := strconv.Itoa(partition)
	a.entries.WithLabelValues(p).Set(float64(entries))
	a.bytes.WithLabelValues(p).Set(float64(bytes))
}

// Scavenge observes a cycle duration, or counts a skipped cycle.
func (a *Adapter) Scavenge(partition int, took time.Duration, skipped bool) {
	p := strconv.Itoa(partition)
	if skipped {
		a.skipped.WithLabelValues(p).Inc()
		return
	}
	a.scavenges.WithLabelValues(p).Observe(took.Seconds())
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
