// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/objcache/cache"
	pmet "github.com/IvanBrykalov/objcache/metrics/prom"
	"github.com/IvanBrykalov/objcache/policy"
	"github.com/IvanBrykalov/objcache/policy/fifo"
	"github.com/IvanBrykalov/objcache/policy/lfu"
	"github.com/IvanBrykalov/objcache/policy/lru"
)

func main() {
	// ---- Flags ----
	var (
		limit      = flag.Uint64("limit", 64<<20, "size limit in bytes (0 = unbounded)")
		partitions = flag.Int("partitions", 0, "number of partitions (0=auto)")
		policyName = flag.String("policy", "lru", "eviction policy: lru | lfu | fifo")
		scavenge   = flag.Duration("scavenge", time.Second, "scavenge interval (0 = disabled)")
		compaction = flag.Float64("compaction", cache.DefaultCompactionFraction, "extra fraction of the budget freed per size pass")
		ttl        = flag.Duration("ttl", 0, "sliding TTL for every entry (0 = none)")
		valueSize  = flag.Int("value", 128, "value size in bytes")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 100_000, "preload entries")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
		verbose     = flag.Bool("v", false, "debug logging (logs every scavenge cycle)")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// ---- pprof + Prometheus (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go serve(log, "pprof", *pprofAddr)
	}
	opt := cache.DefaultOptions[[]byte]()
	if *metricsAddr != "" {
		opt.Metrics = pmet.New(nil, "objcache", "bench", nil)
		http.Handle("/metrics", promhttp.Handler())
		go serve(log, "metrics", *metricsAddr)
	}

	// ---- Build cache ----
	pol, err := policyByName(*policyName)
	if err != nil {
		log.Error("bad flag", slog.Any("error", err))
		os.Exit(2)
	}
	opt.Partitions = *partitions
	opt.SizeLimitBytes = *limit
	opt.ScavengeInterval = *scavenge
	opt.CompactionFraction = *compaction
	opt.DefaultTTL = *ttl
	opt.Policy = pol
	opt.Logger = log
	c, err := cache.New(opt)
	if err != nil {
		log.Error("cache init failed", slog.Any("error", err))
		os.Exit(2)
	}
	defer func() { _ = c.Close() }()

	value := make([]byte, *valueSize)
	for i := 0; i < *preload; i++ {
		_ = c.Upsert("k:"+strconv.Itoa(i), value, cache.WithSize(uint64(len(value))))
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, hits, total atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < workersN; w++ {
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(seedBase + int64(w)*9973))
			z := rand.NewZipf(r, *zipfS, *zipfV, keysMax)

			for ctx.Err() == nil {
				total.Add(1)
				k := "k:" + strconv.FormatUint(z.Uint64(), 10)
				if int(r.Int31n(100)) < readPctVal {
					reads.Add(1)
					if _, ok := c.Get(k); ok {
						hits.Add(1)
					}
					continue
				}
				writes.Add(1)
				if err := c.Upsert(k, value, cache.WithSize(uint64(len(value)))); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("workload failed", slog.Any("error", err))
	}
	elapsed := time.Since(start)

	// ---- Report ----
	report := c.Scavenge()
	ops := total.Load()
	hitRate := 0.0
	if n := reads.Load(); n > 0 {
		hitRate = float64(hits.Load()) / float64(n) * 100
	}

	fmt.Printf("policy=%s limit=%d partitions=%d workers=%d keys=%d dur=%v seed=%d\n",
		pol.Name(), *limit, len(c.Stats()), workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), reads.Load(), writes.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", c.TotalReads(), c.TotalMisses(), hitRate)
	fmt.Printf("Len()=%d  SizeBytes()=%d  final scavenge: expired=%d evicted=%d skipped=%d\n",
		c.Len(), c.SizeBytes(), report.Expired, report.Evicted, report.Skipped)

	var evictions uint64
	for _, s := range c.Stats() {
		evictions += s.Evictions
	}
	fmt.Printf("evictions=%d\n", evictions)
}

func policyByName(name string) (policy.Policy, error) {
	switch name {
	case "lru":
		return lru.New(), nil
	case "lfu":
		return lfu.New(), nil
	case "fifo":
		return fifo.New(), nil
	default:
		return nil, fmt.Errorf("unknown policy %q (use lru, lfu or fifo)", name)
	}
}

func serve(log *slog.Logger, what, addr string) {
	log.Info("serving", slog.String("what", what), slog.String("addr", addr))
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Error("http server stopped", slog.String("what", what), slog.Any("error", err))
	}
}
