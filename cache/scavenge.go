package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/objcache/policy"
)

// ScavengeResult describes one scavenge cycle of one partition.
type ScavengeResult struct {
	Partition int
	// Skipped is set when the cycle did not run: another cycle was in
	// progress, or the guard could not be taken within the lock timeout.
	Skipped bool
	Expired int
	Evicted int
	// FreedBytes counts the size pass only; expired entries are not
	// counted twice.
	FreedBytes uint64
	Took       time.Duration
}

// ScavengeReport aggregates one Scavenge call across all partitions.
type ScavengeReport struct {
	Partitions []ScavengeResult
	Expired    int
	Evicted    int
	Skipped    int
}

type eviction[V any] struct {
	key    string
	val    V
	reason EvictReason
}

// run drives the partition's scavenger until ctx is done.
func (p *partition[V]) run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.scavenge()
		}
	}
}

// scavenge runs one cycle: expire idle entries, then evict in policy order
// until the partition fits its byte budget. It never blocks longer than the
// lock timeout waiting for foreground operations.
func (p *partition[V]) scavenge() ScavengeResult {
	res := ScavengeResult{Partition: p.cfg.Index}

	if !p.scavenging.CompareAndSwap(false, true) {
		res.Skipped = true
		p.log.Debug("scavenge skipped: previous cycle still running")
		p.metrics.Scavenge(p.cfg.Index, 0, true)
		return res
	}
	defer p.scavenging.Store(false)

	start := time.Now()
	if err := p.g.lockWithin(p.cfg.LockTimeout); err != nil {
		// ErrUnavailable: retried on the next tick, never surfaced.
		res.Skipped = true
		p.log.Debug("scavenge skipped", slog.Duration("timeout", p.cfg.LockTimeout), slog.Any("error", err))
		p.metrics.Scavenge(p.cfg.Index, time.Since(start), true)
		return res
	}

	now := p.now()
	var evicted []eviction[V]

	// Expire pass.
	for k, e := range p.m {
		if e.expired(now) {
			evicted = append(evicted, eviction[V]{key: k, val: e.val, reason: EvictTTL})
			p.deleteLocked(k, e)
			res.Expired++
		}
	}

	// Size pass.
	limit := p.cfg.SizeLimitBytes
	if p.cfg.TrackSize && limit > 0 {
		if size := p.bytes.Load(); size > limit {
			toFree := size - limit + uint64(p.cfg.CompactionFraction*float64(limit))
			cs := make([]policy.Candidate, 0, len(p.m))
			for k, e := range p.m {
				cs = append(cs, e.candidate(k))
			}
			policy.Order(p.pol, cs)
			for i := range cs {
				if res.FreedBytes >= toFree {
					break
				}
				k := cs[i].Key
				e := p.m[k]
				evicted = append(evicted, eviction[V]{key: k, val: e.val, reason: EvictCapacity})
				p.deleteLocked(k, e)
				res.FreedBytes += e.size
				res.Evicted++
			}
		}
	}

	if len(evicted) > 0 {
		p.evicts.Add(uint64(len(evicted)))
		p.reportSizeLocked()
	}
	p.g.unlock()

	res.Took = time.Since(start)
	for _, ev := range evicted {
		p.metrics.Evict(ev.reason)
		if p.onEvict != nil {
			p.onEvict(ev.key, ev.val, ev.reason)
		}
	}
	p.metrics.Scavenge(p.cfg.Index, res.Took, false)
	if len(evicted) > 0 {
		p.log.Debug("scavenged",
			slog.Int("expired", res.Expired),
			slog.Int("evicted", res.Evicted),
			slog.Uint64("freed_bytes", res.FreedBytes),
			slog.Duration("took", res.Took),
		)
	}
	return res
}
