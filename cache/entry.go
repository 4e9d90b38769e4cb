package cache

import (
	"time"

	"github.com/IvanBrykalov/objcache/policy"
)

// entry is the stored unit of a partition. All fields are guarded by the
// owning partition's guard; an entry is never shared between partitions.
type entry[V any] struct {
	val V

	// Approximate footprint in bytes (caller supplied or estimated).
	size uint64

	// Sliding TTL in nanoseconds. Zero means "never expires".
	ttl int64

	// UnixNano timestamps. written and read start at created, so neither is
	// ever earlier than created.
	created int64
	written int64
	read    int64

	reads  uint64
	writes uint64
}

func newEntry[V any](v V, size uint64, ttl time.Duration, now int64) *entry[V] {
	return &entry[V]{
		val:     v,
		size:    size,
		ttl:     int64(ttl),
		created: now,
		written: now,
		read:    now,
		writes:  1,
	}
}

// update replaces the value, size and TTL in place, keeping created.
func (e *entry[V]) update(v V, size uint64, ttl time.Duration, now int64) {
	e.val = v
	e.size = size
	e.ttl = int64(ttl)
	e.writes++
	if now > e.written {
		e.written = now
	}
}

// touch records a read.
func (e *entry[V]) touch(now int64) {
	e.reads++
	if now > e.read {
		e.read = now
	}
}

// expired reports whether the entry has been idle longer than its TTL.
func (e *entry[V]) expired(now int64) bool {
	if e.ttl <= 0 {
		return false
	}
	return now-max(e.written, e.read) > e.ttl
}

func (e *entry[V]) candidate(key string) policy.Candidate {
	return policy.Candidate{
		Key:         key,
		Size:        e.size,
		Created:     e.created,
		LastWritten: e.written,
		LastRead:    e.read,
		Reads:       e.reads,
		Writes:      e.writes,
	}
}

// EntryInfo is a point-in-time copy of an entry's metadata.
type EntryInfo struct {
	Key           string
	SizeBytes     uint64
	TTL           time.Duration
	CreatedAt     time.Time
	LastWrittenAt time.Time
	LastReadAt    time.Time
	Reads         uint64
	Writes        uint64
}

func (e *entry[V]) info(key string) EntryInfo {
	return EntryInfo{
		Key:           key,
		SizeBytes:     e.size,
		TTL:           time.Duration(e.ttl),
		CreatedAt:     time.Unix(0, e.created),
		LastWrittenAt: time.Unix(0, e.written),
		LastReadAt:    time.Unix(0, e.read),
		Reads:         e.reads,
		Writes:        e.writes,
	}
}
