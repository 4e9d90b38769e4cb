package cache

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/objcache/internal/util"
	"github.com/IvanBrykalov/objcache/policy"
	"github.com/IvanBrykalov/objcache/sizer"
)

// partition is an independent slice of the key space with its own guard,
// map and scavenge cycle. Keys reaching a partition are already canonical.
type partition[V any] struct {
	cfg PartitionConfig

	// ---- guarded by g ----
	g      guard
	m      map[string]*entry[V]
	closed bool

	// Shared, read-only collaborators.
	pol     policy.Policy
	metrics Metrics
	clock   Clock
	onEvict func(string, V, EvictReason)
	log     *slog.Logger

	// Set while a scavenge cycle runs; overlapping cycles are skipped.
	scavenging atomic.Bool

	// ---- counters: written under g, read lock-free ----
	_      util.CacheLinePad
	count  util.PaddedAtomicInt64
	bytes  util.PaddedAtomicUint64
	reads  util.PaddedAtomicUint64
	misses util.PaddedAtomicUint64
	writes util.PaddedAtomicUint64
	evicts util.PaddedAtomicUint64
}

func newPartition[V any](cfg PartitionConfig, opt *Options[V]) *partition[V] {
	return &partition[V]{
		cfg:     cfg,
		g:       newGuard(),
		m:       make(map[string]*entry[V]),
		pol:     opt.Policy,
		metrics: opt.Metrics,
		clock:   opt.Clock,
		onEvict: opt.OnEvict,
		log:     opt.Logger.With(slog.Int("partition", cfg.Index)),
	}
}

func (p *partition[V]) now() int64 {
	if p.clock != nil {
		return p.clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// contains reports presence without touching read statistics.
func (p *partition[V]) contains(key string) bool {
	p.g.lock()
	defer p.g.unlock()
	_, ok := p.m[key]
	return ok
}

// get returns the value and records a read on hit.
// Expired-but-unswept entries are still returned; expiry is the
// scavenger's job.
func (p *partition[V]) get(key string) (V, bool) {
	p.g.lock()
	e, ok := p.m[key]
	if !ok {
		p.g.unlock()
		p.misses.Add(1)
		p.metrics.Miss()
		var zero V
		return zero, false
	}
	e.touch(p.now())
	v := e.val
	p.g.unlock()

	p.reads.Add(1)
	p.metrics.Hit()
	return v, true
}

// inspect returns entry metadata without recording a read.
func (p *partition[V]) inspect(key string) (EntryInfo, bool) {
	p.g.lock()
	defer p.g.unlock()
	e, ok := p.m[key]
	if !ok {
		return EntryInfo{}, false
	}
	return e.info(key), true
}

// upsert inserts or replaces key. size is final (already estimated);
// ttl replaces the entry TTL. It fails with ErrClosed once the partition
// is closed.
func (p *partition[V]) upsert(key string, v V, size uint64, ttl time.Duration) error {
	p.g.lock()
	if p.closed {
		p.g.unlock()
		return ErrClosed
	}
	now := p.now()
	if e, ok := p.m[key]; ok {
		old := e.size
		e.update(v, size, ttl, now)
		p.bytes.Add(size - old) // wraps correctly when size < old
	} else {
		p.m[key] = newEntry(v, size, ttl, now)
		p.count.Add(1)
		p.bytes.Add(size)
	}
	p.writes.Add(1)
	p.reportSizeLocked()
	p.g.unlock()

	p.metrics.Write()
	return nil
}

// remove deletes key and reports whether it was present.
func (p *partition[V]) remove(key string) bool {
	p.g.lock()
	defer p.g.unlock()
	e, ok := p.m[key]
	if !ok {
		return false
	}
	p.deleteLocked(key, e)
	p.reportSizeLocked()
	return true
}

// removePrefix deletes every key starting with prefix (both canonical).
func (p *partition[V]) removePrefix(prefix string) int {
	p.g.lock()
	defer p.g.unlock()
	n := 0
	for k, e := range p.m {
		if strings.HasPrefix(k, prefix) {
			p.deleteLocked(k, e)
			n++
		}
	}
	if n > 0 {
		p.reportSizeLocked()
	}
	return n
}

// clear drops every entry. Lifetime read/write counters are kept.
func (p *partition[V]) clear() {
	p.g.lock()
	defer p.g.unlock()
	clear(p.m)
	p.count.Store(0)
	p.bytes.Store(0)
	p.reportSizeLocked()
}

// close clears the partition and rejects every later upsert.
func (p *partition[V]) close() {
	p.g.lock()
	defer p.g.unlock()
	p.closed = true
	clear(p.m)
	p.count.Store(0)
	p.bytes.Store(0)
	p.reportSizeLocked()
}

func (p *partition[V]) Len() int            { return int(p.count.Load()) }
func (p *partition[V]) sizeBytes() uint64   { return p.bytes.Load() }
func (p *partition[V]) totalReads() uint64  { return p.reads.Load() }
func (p *partition[V]) totalMisses() uint64 { return p.misses.Load() }
func (p *partition[V]) totalWrites() uint64 { return p.writes.Load() }

func (p *partition[V]) stats() PartitionStats {
	return PartitionStats{
		Index:     p.cfg.Index,
		Count:     p.Len(),
		SizeBytes: p.sizeBytes(),
		Hits:      p.totalReads(),
		Misses:    p.totalMisses(),
		Writes:    p.totalWrites(),
		Evictions: p.evicts.Load(),
		Config:    p.cfg,
	}
}

// -------------------- internals (guard held) --------------------

func (p *partition[V]) deleteLocked(key string, e *entry[V]) {
	delete(p.m, key)
	p.count.Add(-1)
	p.bytes.Add(-e.size)
}

func (p *partition[V]) reportSizeLocked() {
	p.metrics.Size(p.cfg.Index, len(p.m), p.bytes.Load())
}

// estimate sizes v with f, falling back to 0 when it cannot (error or panic).
// Called outside the guard.
func estimate(f sizer.Func, v any, log *slog.Logger) (n uint64) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("size estimator panicked", slog.String("type", typeName(v)), slog.Any("recovered", r))
			n = 0
		}
	}()
	n, err := f(v)
	if err != nil {
		log.Debug("size estimation failed", slog.String("type", typeName(v)), slog.Any("error", err))
		return 0
	}
	return n
}
