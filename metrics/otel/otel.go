// Package otel exports cache metrics through an OpenTelemetry Meter.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/IvanBrykalov/objcache/cache"
)

// Adapter implements cache.Metrics on top of OpenTelemetry instruments.
type Adapter struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	writes    metric.Int64Counter
	evicts    metric.Int64Counter
	entries   metric.Int64Gauge
	bytes     metric.Int64Gauge
	scavenges metric.Float64Histogram
	skipped   metric.Int64Counter

	// Hooks carry no context; recordings use this one.
	ctx   context.Context
	attrs []attribute.KeyValue
}

// New creates the instruments on meter. prefix is prepended to every
// instrument name ("objcache" if empty); attrs are added to every recording.
func New(meter metric.Meter, prefix string, attrs ...attribute.KeyValue) (*Adapter, error) {
	if prefix == "" {
		prefix = "objcache"
	}
	a := &Adapter{ctx: context.Background(), attrs: attrs}
	name := func(s string) string { return prefix + "." + s }

	var err error
	if a.hits, err = meter.Int64Counter(name("hits"), metric.WithDescription("Cache hits")); err != nil {
		return nil, fmt.Errorf("otel: hits: %w", err)
	}
	if a.misses, err = meter.Int64Counter(name("misses"), metric.WithDescription("Cache misses")); err != nil {
		return nil, fmt.Errorf("otel: misses: %w", err)
	}
	if a.writes, err = meter.Int64Counter(name("writes"), metric.WithDescription("Cache upserts")); err != nil {
		return nil, fmt.Errorf("otel: writes: %w", err)
	}
	if a.evicts, err = meter.Int64Counter(name("evictions"), metric.WithDescription("Cache evictions by reason")); err != nil {
		return nil, fmt.Errorf("otel: evictions: %w", err)
	}
	if a.entries, err = meter.Int64Gauge(name("entries"), metric.WithDescription("Resident entries per partition")); err != nil {
		return nil, fmt.Errorf("otel: entries: %w", err)
	}
	if a.bytes, err = meter.Int64Gauge(name("size"), metric.WithDescription("Approximate resident size per partition"), metric.WithUnit("By")); err != nil {
		return nil, fmt.Errorf("otel: size: %w", err)
	}
	if a.scavenges, err = meter.Float64Histogram(name("scavenge.duration"), metric.WithDescription("Duration of completed scavenge cycles"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("otel: scavenge.duration: %w", err)
	}
	if a.skipped, err = meter.Int64Counter(name("scavenge.skipped"), metric.WithDescription("Skipped scavenge cycles")); err != nil {
		return nil, fmt.Errorf("otel: scavenge.skipped: %w", err)
	}
	return a, nil
}

func (a *Adapter) with(kv ...attribute.KeyValue) metric.MeasurementOption {
	all := make([]attribute.KeyValue, 0, len(a.attrs)+len(kv))
	all = append(all, a.attrs...)
	all = append(all, kv...)
	return metric.WithAttributes(all...)
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Add(a.ctx, 1, a.with()) }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Add(a.ctx, 1, a.with()) }

// Write increments the upsert counter.
func (a *Adapter) Write() { a.writes.Add(a.ctx, 1, a.with()) }

// Evict increments the eviction counter with a reason attribute.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.Add(a.ctx, 1, a.with(attribute.String("reason", r.String())))
}

// Size records the partition's entry and byte gauges.
func (a *Adapter) Size(partition int, entries int, bytes uint64) {
	opt := a.with(attribute.Int("partition", partition))
	a.entries.Record(a.ctx, int64(entries), opt)
	a.bytes.Record(a.ctx, int64(bytes), opt)
}

// Scavenge records a cycle duration, or counts a skipped cycle.
func (a *Adapter) Scavenge(partition int, took time.Duration, skipped bool) {
	opt := a.with(attribute.Int("partition", partition))
	if skipped {
		a.skipped.Add(a.ctx, 1, opt)
		return
	}
	a.scavenges.Record(a.ctx, took.Seconds(), opt)
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
