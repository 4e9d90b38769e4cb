// Package cache provides a partitioned, thread-safe, in-process object cache
// that bounds its approximate memory footprint and reports usage metrics.
//
// Design
//
//   - Partitions: keys are canonicalized (lower-cased unless CaseSensitive),
//     hashed (xxHash64 by default) and routed to one of a fixed number of
//     partitions. Each partition owns its map and its own guard; there is no
//     global lock, so operations on different partitions run in parallel.
//
//   - Entries: every entry carries an approximate size, an optional sliding
//     TTL, created/last-written/last-read timestamps and read/write counters.
//
//   - Size: when TrackSize is on, the size of a value is taken from WithSize
//     or estimated by Options.SizeOf (sizer.Default by default). Estimates
//     are approximate and used only for eviction.
//
//   - Scavenging: each partition runs a periodic scavenger
//     (ScavengeInterval). A cycle is skipped if the previous one is still
//     running or if the partition guard cannot be taken within
//     ScavengeLockTimeout. A cycle first removes expired entries, then, if the
//     partition is still above its byte budget, evicts entries in policy
//     order (least recently read first by default) until it fits, freeing an
//     extra CompactionFraction of the budget.
//
//   - Expiry is eventual: Get on an expired entry that has not been swept yet
//     still returns it. The delay is bounded by ScavengeInterval.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Write/Evict/Size/Scavenge
//     signals (NoopMetrics by default). Adapters live in metrics/prom and
//     metrics/otel. Stats returns per-partition snapshots.
//
// Basic usage
//
//	opt := cache.DefaultOptions[[]byte]()
//	opt.SizeLimitBytes = 64 << 20
//	c, err := cache.New(opt)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	_ = c.Upsert("user:42", payload, cache.WithTTL(5*time.Minute))
//	if v, ok := c.Get("user:42"); ok {
//	    _ = v
//	}
//	c.RemovePrefix("user:")
//
// Errors
//
// Upsert rejects nil values with ErrInvalidArgument and fails with ErrClosed
// after Close. Fetch returns ErrNotFound on a miss. ErrUnavailable is only
// used inside the scavenger and never reaches callers.
package cache
