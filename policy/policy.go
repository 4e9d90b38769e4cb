// Package policy defines how the scavenger picks victims when a partition is
// over its byte budget.
//
// Unlike a live LRU list, the order is recomputed on every scavenge from a
// snapshot of per-entry metadata. This keeps the Get/Upsert path O(1) with no
// list maintenance and moves the O(n log n) cost to the periodic pass.
package policy

import "slices"

// Candidate is a read-only snapshot of one resident entry.
// Timestamps are UnixNano values from the cache clock.
type Candidate struct {
	Key         string
	Size        uint64
	Created     int64
	LastWritten int64
	LastRead    int64
	Reads       uint64
	Writes      uint64
}

// Policy orders eviction candidates. Less reports whether a should be
// evicted before b. Implementations must define a strict weak ordering and
// should fall back to the key so that the order is total and deterministic.
//
// Concurrency: Less is called by the scavenger while it holds the partition
// guard; it must not call back into the cache.
type Policy interface {
	Name() string
	Less(a, b *Candidate) bool
}

// Order sorts cs in eviction order (first element is evicted first).
func Order(p Policy, cs []Candidate) {
	slices.SortFunc(cs, func(a, b Candidate) int {
		switch {
		case p.Less(&a, &b):
			return -1
		case p.Less(&b, &a):
			return 1
		default:
			return 0
		}
	})
}

// ByRecency is the least-recently-read ordering shared by policies that
// need a recency tiebreak: oldest LastRead first, then oldest LastWritten,
// then key.
func ByRecency(a, b *Candidate) bool {
	if a.LastRead != b.LastRead {
		return a.LastRead < b.LastRead
	}
	if a.LastWritten != b.LastWritten {
		return a.LastWritten < b.LastWritten
	}
	return a.Key < b.Key
}
