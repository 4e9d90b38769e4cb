package cache

// Cache is a partitioned, size-bounded, in-memory object cache keyed by
// strings. All methods are safe for concurrent use by multiple goroutines.
//
// Single-key operations lock exactly one partition; there is no global lock.
// Bulk operations and metric getters visit partitions one by one, so their
// results are point-in-time approximations under concurrent mutation.
type Cache[V any] interface {
	// Contains reports whether key is resident. It does not count as a read.
	Contains(key string) bool

	// Get returns the value for key and a presence flag. A hit records a
	// read, which also restarts the entry's sliding TTL.
	Get(key string) (V, bool)

	// TryGet is a synonym of Get.
	TryGet(key string) (V, bool)

	// Fetch is Get for callers that prefer errors: a miss returns ErrNotFound.
	Fetch(key string) (V, error)

	// Upsert inserts or replaces key. Without WithSize the size is estimated
	// (when size tracking is on); without WithTTL, DefaultTTL applies.
	// A nil value fails with ErrInvalidArgument and leaves any previous
	// entry untouched.
	Upsert(key string, v V, opts ...UpsertOption) error

	// Remove deletes key and returns true if it was present.
	Remove(key string) bool

	// RemovePrefix deletes every key starting with prefix and returns how
	// many were removed. Each partition is processed independently.
	RemovePrefix(prefix string) int

	// Clear removes all entries.
	Clear()

	// Len returns the number of resident entries.
	Len() int

	// SizeBytes returns the total approximate size of resident entries.
	SizeBytes() uint64

	// TotalReads returns the number of hits since construction.
	TotalReads() uint64

	// TotalMisses returns the number of misses since construction.
	TotalMisses() uint64

	// TotalWrites returns the number of upserts since construction.
	TotalWrites() uint64

	// Stats returns one snapshot per partition, in index order.
	Stats() []PartitionStats

	// PartitionOf returns the partition index key routes to.
	PartitionOf(key string) int

	// Inspect returns the metadata of key without recording a read.
	Inspect(key string) (EntryInfo, bool)

	// Scavenge runs one scavenge cycle on every partition now.
	Scavenge() ScavengeReport

	// Close stops the scavengers and clears every partition.
	// Further writes fail with ErrClosed; reads miss.
	Close() error
}

// PartitionStats is a point-in-time snapshot of one partition.
type PartitionStats struct {
	Index     int
	Count     int
	SizeBytes uint64
	Hits      uint64
	Misses    uint64
	Writes    uint64
	Evictions uint64
	Config    PartitionConfig
}
