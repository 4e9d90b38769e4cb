package cache

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeClock struct{ t atomic.Int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t.Load() }
func (f *fakeClock) add(d time.Duration) { f.t.Add(int64(d)) }

func newTestCache[V any](t *testing.T, opt Options[V]) Cache[V] {
	t.Helper()
	c, err := New(opt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Upsert followed by Get returns the same value.
func TestCache_RoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[string]{Partitions: 4})

	for i := 0; i < 100; i++ {
		k := "k:" + strconv.Itoa(i)
		if err := c.Upsert(k, "v"+strconv.Itoa(i)); err != nil {
			t.Fatalf("Upsert %s: %v", k, err)
		}
	}
	for i := 0; i < 100; i++ {
		k := "k:" + strconv.Itoa(i)
		if v, ok := c.Get(k); !ok || v != "v"+strconv.Itoa(i) {
			t.Fatalf("Get %s: want %q, got %q ok=%v", k, "v"+strconv.Itoa(i), v, ok)
		}
		if v, ok := c.TryGet(k); !ok || v != "v"+strconv.Itoa(i) {
			t.Fatalf("TryGet %s: got %q ok=%v", k, v, ok)
		}
	}
	if c.Len() != 100 {
		t.Fatalf("Len want 100, got %d", c.Len())
	}
}

// Basic Upsert/Get/Remove semantics; Remove is idempotent.
func TestCache_BasicUpsertGetRemove(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[int]{Partitions: 2})

	require.NoError(t, c.Upsert("a", 1))
	require.NoError(t, c.Upsert("a", 11))
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 11, v)
	require.True(t, c.Contains("a"))

	require.True(t, c.Remove("a"))
	require.False(t, c.Remove("a"), "second Remove must report absence")
	require.False(t, c.Remove("never-there"))
	require.False(t, c.Contains("a"))
	require.Equal(t, 0, c.Len())
}

func TestCache_Fetch(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[string]{Partitions: 1})
	require.NoError(t, c.Upsert("present", "x"))

	v, err := c.Fetch("present")
	require.NoError(t, err)
	require.Equal(t, "x", v)

	_, err = c.Fetch("absent")
	require.ErrorIs(t, err, ErrNotFound)
}

// Nil values are rejected and leave the previous entry untouched.
func TestCache_NilRejected(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[*string]{Partitions: 1})
	s := "original"
	require.NoError(t, c.Upsert("k", &s))

	err := c.Upsert("k", nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "original", *got)
	info, _ := c.Inspect("k")
	require.Equal(t, uint64(1), info.Writes)

	anyCache := newTestCache(t, Options[any]{Partitions: 1})
	require.ErrorIs(t, anyCache.Upsert("k", nil), ErrInvalidArgument)
	var m map[string]int
	require.ErrorIs(t, anyCache.Upsert("k", m), ErrInvalidArgument)
	require.Equal(t, 0, anyCache.Len())
}

// Case-insensitive caches fold keys before routing and storage.
func TestCache_CaseCanonicalization(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[string]{Partitions: 16})
	require.NoError(t, c.Upsert("Key", "v"))

	v, ok := c.Get("key")
	require.True(t, ok)
	require.Equal(t, "v", v)
	require.True(t, c.Contains("KEY"))
	require.Equal(t, c.PartitionOf("Key"), c.PartitionOf("key"))
	require.Equal(t, c.PartitionOf("Key"), c.PartitionOf("kEY"))

	require.True(t, c.Remove("KEY"))
	require.Equal(t, 0, c.Len())

	cs := newTestCache(t, Options[string]{Partitions: 16, CaseSensitive: true})
	require.NoError(t, cs.Upsert("Key", "v"))
	_, ok = cs.Get("key")
	require.False(t, ok, "case-sensitive cache must not fold keys")
	_, ok = cs.Get("Key")
	require.True(t, ok)
}

// Same configuration, same routing, across cache instances.
func TestCache_DeterministicRouting(t *testing.T) {
	t.Parallel()

	a := newTestCache(t, Options[int]{Partitions: 7})
	b := newTestCache(t, Options[int]{Partitions: 7})

	for i := 0; i < 1_000; i++ {
		k := fmt.Sprintf("key-%d", i)
		ia := a.PartitionOf(k)
		require.Equal(t, ia, a.PartitionOf(k))
		require.Equal(t, ia, b.PartitionOf(k))
		require.GreaterOrEqual(t, ia, 0)
		require.Less(t, ia, 7)
	}
}

func TestCache_RemovePrefix(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[string]{Partitions: 8})
	for _, k := range []string{"car1", "car2", "truck1"} {
		require.NoError(t, c.Upsert(k, k))
	}

	require.Equal(t, 2, c.RemovePrefix("car"))
	require.Equal(t, 1, c.Len())
	require.True(t, c.Contains("truck1"))

	require.NoError(t, c.Upsert("Car3", "x"))
	require.Equal(t, 1, c.RemovePrefix("CAR"), "prefix is canonicalized like keys")
	require.Equal(t, 0, c.RemovePrefix("car"))
}

// Updates replace value, size and TTL but keep the creation time.
func TestCache_UpdatePreservesCreated(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	clk.add(time.Second)
	c := newTestCache(t, Options[string]{Partitions: 1, TrackSize: true, Clock: clk})

	require.NoError(t, c.Upsert("k", "hello", WithTTL(time.Minute)))
	first, ok := c.Inspect("k")
	require.True(t, ok)
	require.Equal(t, uint64(5), first.SizeBytes)
	require.Equal(t, uint64(1), first.Writes)
	require.Equal(t, time.Minute, first.TTL)

	clk.add(time.Second)
	require.NoError(t, c.Upsert("k", "hello world", WithTTL(time.Hour)))
	second, _ := c.Inspect("k")
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.True(t, second.LastWrittenAt.After(first.LastWrittenAt))
	require.Equal(t, uint64(11), second.SizeBytes)
	require.Equal(t, uint64(2), second.Writes)
	require.Equal(t, time.Hour, second.TTL)
	require.Equal(t, uint64(11), c.SizeBytes())

	require.NoError(t, c.Upsert("k", "hi", WithSize(1_000)))
	third, _ := c.Inspect("k")
	require.Equal(t, uint64(1_000), third.SizeBytes, "explicit size wins over estimation")
	require.Equal(t, time.Duration(0), third.TTL, "no WithTTL means DefaultTTL (none)")
	require.Equal(t, uint64(1_000), c.SizeBytes())
}

func TestCache_NoSizeTracking(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[string]{Partitions: 1})
	require.NoError(t, c.Upsert("k", "some value"))
	require.Equal(t, uint64(0), c.SizeBytes(), "no estimation when TrackSize is off")
}

// Uses a fake clock to avoid timing flakiness.
// Expiry is sliding and only enforced by the scavenger.
func TestCache_TTL_FakeClock(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newTestCache(t, Options[string]{Partitions: 1, Clock: clk})

	require.NoError(t, c.Upsert("x", "v", WithTTL(100*time.Millisecond)))
	require.NoError(t, c.Upsert("forever", "v"))

	clk.add(50 * time.Millisecond)
	require.Equal(t, 0, c.Scavenge().Expired)
	_, ok := c.Get("x") // restarts the TTL window at t=50ms
	require.True(t, ok)

	clk.add(80 * time.Millisecond) // idle 80ms < 100ms
	require.Equal(t, 0, c.Scavenge().Expired)

	clk.add(40 * time.Millisecond) // idle 120ms > 100ms
	require.True(t, c.Contains("x"), "expiry is eventual: unswept entries stay visible")

	r := c.Scavenge()
	require.Equal(t, 1, r.Expired)
	require.False(t, c.Contains("x"))
	require.True(t, c.Contains("forever"))
	require.Equal(t, 1, c.Len())
}

// Expired entries are still returned by Get until a scavenge sweeps them.
func TestCache_GetExpiredBeforeSweep(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newTestCache(t, Options[string]{Partitions: 1, Clock: clk, DefaultTTL: time.Second})
	require.NoError(t, c.Upsert("k", "v"))

	clk.add(2 * time.Second)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}

// Real scavenger goroutines sweep idle entries on their own.
func TestCache_TTL_BackgroundScavenger(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[string]{
		Partitions:       4,
		ScavengeInterval: 20 * time.Millisecond,
	})
	require.NoError(t, c.Upsert("short", "v", WithTTL(50*time.Millisecond)))
	require.NoError(t, c.Upsert("long", "v", WithTTL(time.Hour)))

	time.Sleep(200 * time.Millisecond)
	require.Eventually(t, func() bool { return !c.Contains("short") }, time.Second, 10*time.Millisecond)
	require.True(t, c.Contains("long"))
	require.Equal(t, 1, c.Len())
}

// Entries with the oldest last read are evicted until the partition fits.
func TestCache_SizeEvictionLRU(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	var reasons []EvictReason
	var victims []string
	c := newTestCache(t, Options[string]{
		Partitions:     1, // single partition so the budget and LRU order are global
		SizeLimitBytes: 100,
		TrackSize:      true,
		Clock:          clk,
		OnEvict: func(k string, _ string, r EvictReason) {
			victims = append(victims, k)
			reasons = append(reasons, r)
		},
	})

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		clk.add(time.Millisecond)
		require.NoError(t, c.Upsert(k, k, WithSize(30)))
	}
	clk.add(time.Millisecond)
	c.Get("a")
	clk.add(time.Millisecond)
	c.Get("c")
	require.Equal(t, uint64(150), c.SizeBytes())

	r := c.Scavenge()
	require.Equal(t, 2, r.Evicted)
	require.Equal(t, 0, r.Expired)
	require.Equal(t, uint64(60), r.Partitions[0].FreedBytes)
	require.LessOrEqual(t, c.SizeBytes(), uint64(100))
	require.Equal(t, []string{"b", "d"}, victims)
	require.Equal(t, []EvictReason{EvictCapacity, EvictCapacity}, reasons)
	for _, k := range []string{"a", "c", "e"} {
		require.True(t, c.Contains(k), k)
	}
	require.Equal(t, uint64(2), c.Stats()[0].Evictions)
}

// CompactionFraction frees more than the strict minimum.
func TestCache_Compaction(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newTestCache(t, Options[string]{
		Partitions:         1,
		SizeLimitBytes:     100,
		TrackSize:          true,
		CompactionFraction: 0.5,
		Clock:              clk,
	})
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		clk.add(time.Millisecond)
		require.NoError(t, c.Upsert(k, k, WithSize(30)))
	}
	clk.add(time.Millisecond)
	c.Get("a")
	clk.add(time.Millisecond)
	c.Get("c")

	// toFree = 150-100 + 50 = 100 -> b, d, e, a.
	r := c.Scavenge()
	require.Equal(t, 4, r.Evicted)
	require.Equal(t, 1, c.Len())
	require.True(t, c.Contains("c"))
}

// Expired entries leave first and are not counted again by the size pass.
func TestCache_ExpireThenSize(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newTestCache(t, Options[string]{
		Partitions:     1,
		SizeLimitBytes: 100,
		TrackSize:      true,
		Clock:          clk,
	})
	require.NoError(t, c.Upsert("stale", "x", WithSize(40), WithTTL(time.Second)))
	for _, k := range []string{"a", "b", "c"} {
		clk.add(time.Millisecond)
		require.NoError(t, c.Upsert(k, k, WithSize(40)))
	}
	clk.add(2 * time.Second)
	c.Get("b")
	c.Get("c")

	// After expiring "stale" (40), 120 > 100 remains; evict "a" (oldest read).
	r := c.Scavenge()
	require.Equal(t, 1, r.Expired)
	require.Equal(t, 1, r.Evicted)
	require.Equal(t, uint64(40), r.Partitions[0].FreedBytes)
	require.Equal(t, uint64(80), c.SizeBytes())
	require.False(t, c.Contains("a"))
}

// Partition budgets add up to the cache limit, so a scavenge brings the
// whole cache under it even when each partition gets less than
// MinPartitionBytes.
func TestCache_SizeBoundAcrossPartitions(t *testing.T) {
	t.Parallel()

	const (
		limit     = 100 << 10
		entrySize = 1 << 10
	)
	c := newTestCache(t, Options[int]{
		Partitions:     16,
		SizeLimitBytes: limit,
		TrackSize:      true,
	})
	for i := 0; i < 2_000; i++ {
		require.NoError(t, c.Upsert("k:"+strconv.Itoa(i), i, WithSize(entrySize)))
	}
	require.Greater(t, c.SizeBytes(), uint64(limit))

	var budget uint64
	for _, s := range c.Stats() {
		budget += s.Config.SizeLimitBytes
	}
	require.Equal(t, uint64(limit), budget)

	r := c.Scavenge()
	require.Positive(t, r.Evicted)
	require.LessOrEqual(t, c.SizeBytes(), uint64(limit+entrySize),
		"SizeBytes %d exceeds limit %d by more than one entry", c.SizeBytes(), limit)
	for _, s := range c.Stats() {
		require.LessOrEqual(t, s.SizeBytes, s.Config.SizeLimitBytes, "partition %d", s.Index)
	}
}

// With Partitions unset, a small budget gets fewer partitions rather than
// budgets below MinPartitionBytes.
func TestCache_AutoPartitionsFitBudget(t *testing.T) {
	t.Parallel()

	const limit = 100 << 10
	c := newTestCache(t, Options[string]{SizeLimitBytes: limit, TrackSize: true})

	stats := c.Stats()
	var budget uint64
	for _, s := range stats {
		budget += s.Config.SizeLimitBytes
		if len(stats) > 1 {
			require.GreaterOrEqual(t, s.Config.SizeLimitBytes, uint64(MinPartitionBytes))
		}
	}
	require.Equal(t, uint64(limit), budget)
	require.Len(t, stats, 1, "100KiB cannot feed two 64KiB partitions")
}

// An explicit partition count is honoured, with a warning when it leaves
// partitions below MinPartitionBytes.
func TestNew_WarnsOnSmallPartitionBudget(t *testing.T) {
	t.Parallel()

	newLogged := func(opt Options[string]) string {
		var buf bytes.Buffer
		opt.Logger = slog.New(slog.NewTextHandler(&buf, nil))
		c, err := New(opt)
		require.NoError(t, err)
		out := buf.String()
		require.NoError(t, c.Close())
		return out
	}

	out := newLogged(Options[string]{Partitions: 16, SizeLimitBytes: 100 << 10})
	require.True(t, strings.Contains(out, "level=WARN"), out)
	require.True(t, strings.Contains(out, "partitions=16"), out)

	out = newLogged(Options[string]{Partitions: 4, SizeLimitBytes: 1 << 20})
	require.False(t, strings.Contains(out, "level=WARN"), out)
}

// Stats sums match aggregate getters and expose per-partition config copies.
func TestCache_Stats(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[string]{
		Partitions:     4,
		SizeLimitBytes: 1 << 20,
		TrackSize:      true,
	})
	for i := 0; i < 200; i++ {
		k := "k" + strconv.Itoa(i)
		require.NoError(t, c.Upsert(k, "value"))
		c.Get(k)
	}
	c.Get("missing")

	stats := c.Stats()
	require.Len(t, stats, 4)
	var count int
	var size, hits, misses, writes uint64
	for i, s := range stats {
		require.Equal(t, i, s.Index)
		require.Equal(t, i, s.Config.Index)
		require.Equal(t, uint64(1<<18), s.Config.SizeLimitBytes)
		count += s.Count
		size += s.SizeBytes
		hits += s.Hits
		misses += s.Misses
		writes += s.Writes
	}
	require.Equal(t, c.Len(), count)
	require.Equal(t, c.SizeBytes(), size)
	require.Equal(t, uint64(1_000), size)
	require.Equal(t, c.TotalReads(), hits)
	require.Equal(t, uint64(200), hits)
	require.Equal(t, uint64(1), misses)
	require.Equal(t, c.TotalMisses(), misses)
	require.Equal(t, uint64(200), writes)
	require.Equal(t, c.TotalWrites(), writes)

	stats[0].Config.SizeLimitBytes = 1
	require.Equal(t, uint64(1<<18), c.Stats()[0].Config.SizeLimitBytes, "Stats returns copies")
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[string]{Partitions: 4, TrackSize: true})
	for i := 0; i < 50; i++ {
		require.NoError(t, c.Upsert(strconv.Itoa(i), "v"))
	}
	c.Clear()
	require.Equal(t, 0, c.Len())
	require.Equal(t, uint64(0), c.SizeBytes())
	require.Equal(t, uint64(50), c.TotalWrites(), "lifetime counters survive Clear")
}

func TestCache_Close(t *testing.T) {
	t.Parallel()

	c, err := New(Options[string]{Partitions: 4, ScavengeInterval: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, c.Upsert("k", "v"))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close is idempotent")

	require.ErrorIs(t, c.Upsert("k", "v"), ErrClosed)
	_, ok := c.Get("k")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

// Upserts racing with Close never leave entries behind.
func TestCache_CloseRejectsRacingUpserts(t *testing.T) {
	t.Parallel()

	c, err := New(Options[int]{Partitions: 4, TrackSize: true})
	require.NoError(t, err)

	start := make(chan struct{})
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			<-start
			for i := 0; ; i++ {
				err := c.Upsert(strconv.Itoa(w)+":"+strconv.Itoa(i%64), i)
				if errors.Is(err, ErrClosed) {
					return nil
				}
				if err != nil {
					return err
				}
			}
		})
	}
	close(start)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, g.Wait())

	require.Equal(t, 0, c.Len())
	require.Equal(t, uint64(0), c.SizeBytes())

	p := partitionsOf(c)[0]
	require.ErrorIs(t, p.upsert("k", 1, 8, 0), ErrClosed)
	require.False(t, p.contains("k"))
}

func TestNew_InvalidOptions(t *testing.T) {
	t.Parallel()

	bad := []Options[int]{
		{Partitions: -1},
		{CompactionFraction: 1},
		{CompactionFraction: -0.1},
		{ScavengeInterval: -time.Second},
		{ScavengeLockTimeout: -time.Second},
		{DefaultTTL: -time.Second},
	}
	for i, opt := range bad {
		_, err := New(opt)
		if !errors.Is(err, ErrInvalidOptions) {
			t.Fatalf("case %d: want ErrInvalidOptions, got %v", i, err)
		}
	}
	require.Panics(t, func() { MustNew(Options[int]{Partitions: -1}) })
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opt := DefaultOptions[string]()
	require.True(t, opt.TrackSize)
	require.Equal(t, DefaultScavengeInterval, opt.ScavengeInterval)
	require.InDelta(t, DefaultCompactionFraction, opt.CompactionFraction, 1e-9)

	c := newTestCache(t, opt)
	require.NotEmpty(t, c.Stats())
}

// Concurrent reads of one key are counted exactly: every hit increments the
// entry's read counter under the partition guard.
func TestCache_ConcurrentReadCounters(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[string]{Partitions: 4})
	require.NoError(t, c.Upsert("hot", "v"))

	const workers, perWorker = 16, 1_000
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				if v, ok := c.Get("hot"); !ok || v != "v" {
					return fmt.Errorf("got %q ok=%v", v, ok)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	info, ok := c.Inspect("hot")
	require.True(t, ok)
	require.Equal(t, uint64(workers*perWorker), info.Reads)
	require.Equal(t, uint64(workers*perWorker), c.TotalReads())
}

// Concurrent upserts of one key: the final value is one of the written ones
// and the write counter matches the number of upserts.
func TestCache_ConcurrentUpsertSameKey(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[int]{Partitions: 2, TrackSize: true})

	const workers, perWorker = 8, 500
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				if err := c.Upsert("k", w*perWorker+i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	v, ok := c.Get("k")
	require.True(t, ok)
	require.GreaterOrEqual(t, v, 0)
	require.Less(t, v, workers*perWorker)
	info, _ := c.Inspect("k")
	require.Equal(t, uint64(workers*perWorker), info.Writes)
	require.Equal(t, 1, c.Len())
	require.Equal(t, uint64(8), c.SizeBytes())
}
