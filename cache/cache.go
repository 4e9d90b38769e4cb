package cache

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/objcache/internal/util"
	"github.com/IvanBrykalov/objcache/policy/lru"
	"github.com/IvanBrykalov/objcache/sizer"
)

// cache fans every single-key operation out to one partition chosen by the
// router. All methods are safe for concurrent use by multiple goroutines.
type cache[V any] struct {
	parts  []*partition[V]
	router Router
	closed atomic.Bool

	opt Options[V]
	log *slog.Logger

	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New constructs a cache with the provided Options.
// Defaults:
//   - Partitions <= 0 -> auto (ReasonableShardCount, fitted to SizeLimitBytes)
//   - nil SizeOf      -> sizer.Default
//   - nil Policy      -> LRU
//   - nil Metrics     -> NoopMetrics
//   - nil Logger      -> slog.Default()
//
// When ScavengeInterval > 0 one scavenger goroutine per partition is started;
// Close stops them.
func New[V any](opt Options[V]) (Cache[V], error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	if opt.Partitions == 0 {
		opt.Partitions = util.ReasonableShardCount()
		if opt.SizeLimitBytes > 0 {
			opt.Partitions = util.FitPartitions(opt.Partitions, opt.SizeLimitBytes, MinPartitionBytes)
		}
	}
	if opt.SizeOf == nil {
		opt.SizeOf = sizer.Default
	}
	if opt.Policy == nil {
		opt.Policy = lru.New()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.ScavengeLockTimeout == 0 {
		opt.ScavengeLockTimeout = DefaultScavengeLockTimeout
	}

	c := &cache[V]{
		parts:  make([]*partition[V], opt.Partitions),
		router: NewRouter(opt.Partitions, opt.CaseSensitive, opt.HashFunc),
		opt:    opt,
		log:    opt.Logger,
	}

	budgets := util.SplitBudget(opt.SizeLimitBytes, opt.Partitions)
	minBudget := budgets[len(budgets)-1]
	if opt.SizeLimitBytes > 0 && opt.Partitions > 1 && minBudget < MinPartitionBytes {
		c.log.Warn("partition budget below minimum, consider fewer partitions",
			slog.Int("partitions", opt.Partitions),
			slog.Uint64("size_limit_bytes", opt.SizeLimitBytes),
			slog.Uint64("partition_limit_bytes", minBudget),
			slog.Uint64("min_partition_bytes", MinPartitionBytes),
		)
	}
	for i := range c.parts {
		c.parts[i] = newPartition(PartitionConfig{
			Index:              i,
			SizeLimitBytes:     budgets[i],
			CaseSensitive:      opt.CaseSensitive,
			TrackSize:          opt.TrackSize,
			CompactionFraction: opt.CompactionFraction,
			ScavengeInterval:   opt.ScavengeInterval,
			LockTimeout:        opt.ScavengeLockTimeout,
		}, &c.opt)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	if opt.ScavengeInterval > 0 {
		for _, p := range c.parts {
			c.wg.Add(1)
			go func(p *partition[V]) {
				defer c.wg.Done()
				p.run(ctx, opt.ScavengeInterval)
			}(p)
		}
	}

	c.log.Debug("cache created",
		slog.Int("partitions", opt.Partitions),
		slog.Uint64("size_limit_bytes", opt.SizeLimitBytes),
		slog.Uint64("partition_limit_bytes", minBudget),
		slog.Bool("track_size", opt.TrackSize),
		slog.Duration("scavenge_interval", opt.ScavengeInterval),
		slog.String("policy", opt.Policy.Name()),
	)
	return c, nil
}

// MustNew is New that panics on invalid options.
func MustNew[V any](opt Options[V]) Cache[V] {
	c, err := New(opt)
	if err != nil {
		panic(err)
	}
	return c
}

// ---- Cache[V] implementation ----

func (c *cache[V]) Contains(key string) bool {
	if c.closed.Load() {
		return false
	}
	k, p := c.route(key)
	return p.contains(k)
}

func (c *cache[V]) Get(key string) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	k, p := c.route(key)
	return p.get(k)
}

func (c *cache[V]) TryGet(key string) (V, bool) { return c.Get(key) }

func (c *cache[V]) Fetch(key string) (V, error) {
	v, ok := c.Get(key)
	if !ok {
		return v, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return v, nil
}

func (c *cache[V]) Upsert(key string, v V, opts ...UpsertOption) error {
	if isNil(v) {
		return fmt.Errorf("%w: nil value for key %q", ErrInvalidArgument, key)
	}
	if c.closed.Load() {
		return ErrClosed
	}

	var o upsertOptions
	for _, fn := range opts {
		fn(&o)
	}
	ttl := c.opt.DefaultTTL
	if o.hasTTL {
		ttl = o.ttl
	}

	k, p := c.route(key)
	size := o.size
	if !o.hasSize && c.opt.TrackSize {
		size = estimate(c.opt.SizeOf, any(v), p.log)
	}
	// Close may have run since the check above; the partition knows for sure.
	return p.upsert(k, v, size, ttl)
}

func (c *cache[V]) Remove(key string) bool {
	if c.closed.Load() {
		return false
	}
	k, p := c.route(key)
	return p.remove(k)
}

func (c *cache[V]) RemovePrefix(prefix string) int {
	canon := c.router.Canonical(prefix)
	total := 0
	for _, p := range c.parts {
		total += p.removePrefix(canon)
	}
	return total
}

func (c *cache[V]) Clear() {
	for _, p := range c.parts {
		p.clear()
	}
}

func (c *cache[V]) Len() int {
	total := 0
	for _, p := range c.parts {
		total += p.Len()
	}
	return total
}

func (c *cache[V]) SizeBytes() uint64 {
	var total uint64
	for _, p := range c.parts {
		total += p.sizeBytes()
	}
	return total
}

func (c *cache[V]) TotalReads() uint64 {
	var total uint64
	for _, p := range c.parts {
		total += p.totalReads()
	}
	return total
}

func (c *cache[V]) TotalMisses() uint64 {
	var total uint64
	for _, p := range c.parts {
		total += p.totalMisses()
	}
	return total
}

func (c *cache[V]) TotalWrites() uint64 {
	var total uint64
	for _, p := range c.parts {
		total += p.totalWrites()
	}
	return total
}

func (c *cache[V]) Stats() []PartitionStats {
	out := make([]PartitionStats, len(c.parts))
	for i, p := range c.parts {
		out[i] = p.stats()
	}
	return out
}

func (c *cache[V]) PartitionOf(key string) int { return c.router.PartitionOf(key) }

func (c *cache[V]) Inspect(key string) (EntryInfo, bool) {
	k, p := c.route(key)
	return p.inspect(k)
}

func (c *cache[V]) Scavenge() ScavengeReport {
	r := ScavengeReport{Partitions: make([]ScavengeResult, len(c.parts))}
	for i, p := range c.parts {
		res := p.scavenge()
		r.Partitions[i] = res
		r.Expired += res.Expired
		r.Evicted += res.Evicted
		if res.Skipped {
			r.Skipped++
		}
	}
	return r
}

// Close stops every scavenger, waits for running cycles to finish, then
// clears and closes all partitions. Upserts racing with Close either land
// before their partition is closed (and are dropped with it) or fail with
// ErrClosed. It is idempotent.
func (c *cache[V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.stop()
	c.wg.Wait()
	entries := c.Len()
	for _, p := range c.parts {
		p.close()
	}
	c.log.Info("cache closed", slog.Int("dropped_entries", entries))
	return nil
}

// ---- helpers ----

// route canonicalizes key once and picks its partition.
func (c *cache[V]) route(key string) (string, *partition[V]) {
	k := c.router.Canonical(key)
	return k, c.parts[c.router.indexOf(k)]
}

// isNil reports whether v is nil, including typed nils such as a nil
// pointer or map stored in an interface-typed V.
func isNil[V any](v V) bool {
	a := any(v)
	if a == nil {
		return true
	}
	rv := reflect.ValueOf(a)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

func typeName(v any) string { return fmt.Sprintf("%T", v) }
