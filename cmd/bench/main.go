// Command bench runs a synthetic instance-pool workload against the cache and
// exposes optional pprof/Prometheus/stats endpoints.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/instancecache/cache"
	"github.com/IvanBrykalov/instancecache/internal/config"
	"github.com/IvanBrykalov/instancecache/locktable"
	pmet "github.com/IvanBrykalov/instancecache/metrics/prom"
)

// instance is what the bench caches.
type instance struct {
	id  uuid.UUID
	key string
}

func main() {
	// ---- Flags ----
	var (
		cfgPath  = flag.String("config", "", "YAML cache config (flags below override it)")
		capacity = flag.Int("cap", 0, "cache capacity (entries, 0 = from config)")
		policy   = flag.String("policy", "", "eviction policy: lru | 2q (empty = from config)")
		locked   = flag.Bool("locks", true, "synchronize eviction with a shared lock table")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")
		teardown = flag.Duration("teardown", 0, "simulated discard cost")

		keys  = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", "", "serve /metrics and /stats at addr (empty = from config)")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatal(err)
		}
	}
	if *capacity > 0 {
		cfg.Capacity = *capacity
	}
	if *policy != "" {
		cfg.Policy = *policy
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *locked && cfg.LockTimeout == 0 {
		// Workers hold one key while evicting another; without a bound two
		// of them can wait on each other forever.
		cfg.LockTimeout = 50 * time.Millisecond
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Build cache ----
	var discarded atomic.Uint64
	var discard cache.DiscardStrategy[string, *instance] = cache.DiscardFunc[string, *instance](
		func(_ string, _ *instance) error {
			if *teardown > 0 {
				time.Sleep(*teardown)
			}
			discarded.Add(1)
			return nil
		})
	var locks locktable.Table[string]
	if *locked {
		locks = locktable.New[string](locktable.Options[string]{})
		discard = cache.WithLockTable[string, *instance](discard, locks)
	}

	opt := config.Options[string, *instance](cfg, discard)
	opt.Logger = logger
	opt.Metrics = pmet.New(nil, cfg.Metrics.Namespace, cfg.Metrics.Subsystem,
		prometheus.Labels{"cache": cfg.Name})
	c, err := cache.New(opt)
	if err != nil {
		log.Fatal(err)
	}

	// ---- Prometheus metrics + JSON stats (on DefaultServeMux) ----
	if cfg.Metrics.Addr != "" {
		http.Handle("/metrics", promhttp.Handler())
		http.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(c.Stats())
		})
		go func() {
			log.Printf("metrics: serving at %s", cfg.Metrics.Addr)
			log.Println(http.ListenAndServe(cfg.Metrics.Addr, nil))
		}()
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
	var reads, writes, hits, misses, busy, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)
			owner := locktable.WithOwner(context.Background(), locktable.NewOwner())

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				k := "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					if _, ok := c.Get(k); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
					continue
				}

				atomic.AddUint64(&writes, 1)
				if err := put(owner, c, locks, k); err != nil {
					atomic.AddUint64(&busy, 1)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	hitsN := atomic.LoadUint64(&hits)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("name=%s policy=%s cap=%d locks=%v workers=%d keys=%d dur=%v seed=%d\n",
		cfg.Name, cfg.Policy, cfg.Capacity, *locked, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  busy=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, atomic.LoadUint64(&writes), atomic.LoadUint64(&busy))
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, atomic.LoadUint64(&misses), hitRate)
	fmt.Printf("Len()=%d  discarded=%d\n", c.Len(), discarded.Load())

	if err := c.Close(); err != nil {
		log.Printf("close: %v", err)
	}
	fmt.Printf("after Close: discarded=%d\n", discarded.Load())
}

// put creates a fresh instance for k. With a lock table it locks k first,
// the way a container guards an instance, and lets eviction re-enter.
func put(ctx context.Context, c cache.Cache[string, *instance], locks locktable.Table[string], k string) error {
	if locks != nil {
		h := locks.GetLock(k)
		defer h.Release()
		if err := h.Lock(ctx); err != nil {
			return err
		}
		defer h.Unlock()
	}
	_, _, err := c.PutContext(ctx, k, &instance{id: uuid.New(), key: k})
	return err
}
