package cache

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/objcache/policy"
	"github.com/IvanBrykalov/objcache/sizer"
)

// Defaults used by DefaultOptions and by New for unset fields.
const (
	DefaultScavengeInterval    = time.Minute
	DefaultCompactionFraction  = 0.1
	DefaultScavengeLockTimeout = 100 * time.Millisecond

	// MinPartitionBytes is the smallest partition budget the automatic
	// partition count aims for: with Partitions unset and a small
	// SizeLimitBytes, New uses fewer partitions. Partition budgets always
	// add up to SizeLimitBytes.
	MinPartitionBytes = 64 << 10
)

// EvictReason explains why the scavenger removed an entry.
type EvictReason int

const (
	// EvictTTL: the entry was idle longer than its TTL.
	EvictTTL EvictReason = iota
	// EvictCapacity: removed to bring the partition under its byte budget.
	EvictCapacity
)

func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// Hooks may be called concurrently from many goroutines, and Evict/Size may be
// called while a partition guard is held; keep them cheap.
type Metrics interface {
	Hit()
	Miss()
	Write()
	Evict(reason EvictReason)
	Size(partition int, entries int, bytes uint64)
	Scavenge(partition int, took time.Duration, skipped bool)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// HashFunc hashes a canonical key for partition routing.
type HashFunc func(key string) uint64

// Options configures the cache. Zero values are safe; New applies:
//   - Partitions <= 0      => auto (≈ 2*GOMAXPROCS, power of two, ≤ 256,
//     fewer when SizeLimitBytes leaves partitions below MinPartitionBytes)
//   - nil SizeOf           => sizer.Default
//   - nil Policy           => LRU
//   - nil HashFunc         => xxHash64
//   - nil Metrics          => NoopMetrics
//   - nil Logger           => slog.Default()
//   - ScavengeLockTimeout 0 => DefaultScavengeLockTimeout
//
// Note that the zero value disables size tracking and background scavenging;
// use DefaultOptions for a cache that bounds itself.
type Options[V any] struct {
	// Partitions is the number of independent partitions, fixed for the
	// lifetime of the cache.
	Partitions int

	// SizeLimitBytes is the approximate byte budget for the whole cache
	// (0 = unbounded). It is split exactly across partitions, see
	// MinPartitionBytes.
	SizeLimitBytes uint64

	// CaseSensitive controls key canonicalization. When false, keys are
	// lower-cased once before routing and storage.
	CaseSensitive bool

	// TrackSize enables size estimation and size-based eviction.
	TrackSize bool

	// CompactionFraction is the extra share of a partition budget freed by a
	// size pass beyond the strict minimum, in [0, 1).
	CompactionFraction float64

	// ScavengeInterval is the period of each partition's scavenger.
	// Zero disables background scavenging (Scavenge can still be called).
	ScavengeInterval time.Duration

	// ScavengeLockTimeout bounds how long a scavenge cycle waits for its
	// partition; on timeout the cycle is skipped and retried next tick.
	ScavengeLockTimeout time.Duration

	// DefaultTTL applies to writes without WithTTL (0 = never expires).
	DefaultTTL time.Duration

	// SizeOf estimates value sizes when no WithSize is given.
	SizeOf sizer.Func

	// Policy orders size-pass victims.
	Policy policy.Policy

	// HashFunc routes canonical keys to partitions.
	HashFunc HashFunc

	// OnEvict is called for every scavenger eviction after the partition
	// guard is released. Explicit Remove/Clear do not trigger it.
	OnEvict func(key string, v V, reason EvictReason)

	Metrics Metrics
	Logger  *slog.Logger

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}

// DefaultOptions returns options for a self-bounding cache: size tracking on,
// background scavenging every DefaultScavengeInterval and
// DefaultCompactionFraction extra compaction. Set SizeLimitBytes to bound it.
func DefaultOptions[V any]() Options[V] {
	return Options[V]{
		TrackSize:           true,
		CompactionFraction:  DefaultCompactionFraction,
		ScavengeInterval:    DefaultScavengeInterval,
		ScavengeLockTimeout: DefaultScavengeLockTimeout,
	}
}

// Validate reports option values New cannot work with.
func (o Options[V]) Validate() error {
	switch {
	case o.Partitions < 0:
		return fmt.Errorf("%w: Partitions must be >= 0, got %d", ErrInvalidOptions, o.Partitions)
	case o.CompactionFraction < 0 || o.CompactionFraction >= 1:
		return fmt.Errorf("%w: CompactionFraction must be in [0,1), got %v", ErrInvalidOptions, o.CompactionFraction)
	case o.ScavengeInterval < 0:
		return fmt.Errorf("%w: ScavengeInterval must be >= 0, got %v", ErrInvalidOptions, o.ScavengeInterval)
	case o.ScavengeLockTimeout < 0:
		return fmt.Errorf("%w: ScavengeLockTimeout must be >= 0, got %v", ErrInvalidOptions, o.ScavengeLockTimeout)
	case o.DefaultTTL < 0:
		return fmt.Errorf("%w: DefaultTTL must be >= 0, got %v", ErrInvalidOptions, o.DefaultTTL)
	}
	return nil
}

// PartitionConfig is the immutable per-partition view of Options.
// Stats returns copies; mutating one has no effect on the cache.
type PartitionConfig struct {
	Index              int
	SizeLimitBytes     uint64
	CaseSensitive      bool
	TrackSize          bool
	CompactionFraction float64
	ScavengeInterval   time.Duration
	LockTimeout        time.Duration
}

// UpsertOption customizes a single Upsert call.
type UpsertOption func(*upsertOptions)

type upsertOptions struct {
	size    uint64
	hasSize bool
	ttl     time.Duration
	hasTTL  bool
}

// WithSize supplies the approximate size in bytes, skipping estimation.
func WithSize(bytes uint64) UpsertOption {
	return func(o *upsertOptions) {
		o.size, o.hasSize = bytes, true
	}
}

// WithTTL sets a sliding TTL for the entry, replacing any previous TTL.
// A non-positive ttl means the entry never expires.
func WithTTL(ttl time.Duration) UpsertOption {
	return func(o *upsertOptions) {
		if ttl < 0 {
			ttl = 0
		}
		o.ttl, o.hasTTL = ttl, true
	}
}
