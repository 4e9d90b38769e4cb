package cache

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
)

// benchmarkMix exercises a read/write mix against a warm cache.
// It uses parallel workers (RunParallel spawns GOMAXPROCS goroutines).
// String keys include strconv/concat costs and often allocate, which is fine
// for an end-to-end benchmark.
func benchmarkMix(b *testing.B, readsPct int, trackSize bool) {
	c, err := New(Options[string]{TrackSize: trackSize})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = c.Close() })

	// Preload a realistic working set.
	for i := 0; i < 50_000; i++ {
		_ = c.Upsert("k:"+strconv.Itoa(i), "v")
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1 // hot keyspace (power of two for fast &-mask)

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			if r.Intn(100) < readsPct {
				c.Get(k)
			} else {
				_ = c.Upsert(k, "v")
			}
			i++
		}
	})
}

func BenchmarkCache_90r10w(b *testing.B)          { benchmarkMix(b, 90, false) }
func BenchmarkCache_50r50w(b *testing.B)          { benchmarkMix(b, 50, false) }
func BenchmarkCache_50r50w_TrackSize(b *testing.B) { benchmarkMix(b, 50, true) }

// BenchmarkScavenge measures one full size pass over a large partition.
func BenchmarkScavenge(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		c, err := New(Options[int]{Partitions: 1, SizeLimitBytes: 50_000, TrackSize: true})
		if err != nil {
			b.Fatal(err)
		}
		for j := 0; j < 100_000; j++ {
			_ = c.Upsert(strconv.Itoa(j), j, WithSize(1))
		}
		b.StartTimer()
		c.Scavenge()
		b.StopTimer()
		_ = c.Close()
	}
}
