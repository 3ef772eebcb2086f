package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/MotherTongues/mothertongues/internal/searcher"
	"github.com/MotherTongues/mothertongues/internal/searcher/cache"
	"github.com/MotherTongues/mothertongues/internal/source"
	"github.com/MotherTongues/mothertongues/pkg/config"
	"github.com/MotherTongues/mothertongues/pkg/logger"
	"github.com/MotherTongues/mothertongues/pkg/metrics"
)

type Config struct {
	Side        config.Side
	Concurrency int
	Duration    time.Duration
	Queries     []string
	Limit       int
}

type Stats struct {
	totalQueries atomic.Int64
	errorCount   atomic.Int64
	cacheHits    atomic.Int64
	emptyResults atomic.Int64
	latencies    []time.Duration
	latenciesMu  sync.Mutex
}

func NewStats() *Stats {
	return &Stats{latencies: make([]time.Duration, 0, 100000)}
}

func (s *Stats) Record(duration time.Duration, res *searcher.Result, cached bool, err error) {
	s.totalQueries.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if cached {
		s.cacheHits.Add(1)
	}
	if res.Total == 0 {
		s.emptyResults.Add(1)
	}
	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()
}

var defaultQueries = map[config.Side][]string{
	config.SideL1: {"kat", "hnd", "ko", "hest", "fugel", "bjorn", "aal", "eble"},
	config.SideL2: {"cat", "dgo", "cows", "horse", "brd", "bear", "eel", "aple"},
}

func main() {
	configPath := pflag.StringP("config", "c", "configs/development.yaml", "path to config file")
	sideFlag := pflag.String("side", "l1", "dictionary side to query: l1 or l2")
	concurrency := pflag.Int("concurrency", 10, "number of concurrent workers")
	duration := pflag.Duration("duration", 30*time.Second, "test duration")
	limit := pflag.Int("limit", 10, "hits per query")
	queries := pflag.StringSlice("query", nil, "query text (repeatable); defaults to a built-in misspelling set")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	side, err := config.ParseSide(*sideFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --side: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("warn", cfg.Logging.Format)

	lt := Config{
		Side:        side,
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     *queries,
		Limit:       *limit,
	}
	if len(lt.Queries) == 0 {
		lt.Queries = defaultQueries[side]
	}

	engine, qc, closeStore, err := setup(cfg, side)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	fmt.Println("=== Dictionary Search Load Test ===")
	fmt.Printf("Side:        %s (%s)\n", side, strategyOf(engine, side))
	fmt.Printf("Cache:       %s\n", cfg.Cache.Backend)
	fmt.Printf("Concurrency: %d\n", lt.Concurrency)
	fmt.Printf("Duration:    %s\n", lt.Duration)
	fmt.Printf("Queries:     %d unique (%s)\n", len(lt.Queries), strings.Join(lt.Queries, ", "))
	fmt.Println()

	stats := runLoadTest(qc, lt)
	printReport(stats, lt.Duration)
}

// setup loads entries, builds side and opens the configured cache store.
// Cached results of side are dropped first because generations restart at 1
// in every process.
func setup(cfg *config.Config, side config.Side) (*searcher.Engine, *cache.QueryCache, func() error, error) {
	ctx := context.Background()
	src, closeSource, err := source.Open(ctx, cfg.Source, cfg.Postgres)
	if err != nil {
		return nil, nil, nil, err
	}
	defer closeSource()
	entries, err := src.Load(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	m := metrics.New(prometheus.NewRegistry())
	engine := searcher.New(cfg.Dictionary, cfg.Search, m)
	if _, err := engine.Build(ctx, side, entries); err != nil {
		return nil, nil, nil, err
	}
	store, closeStore, err := cache.OpenStore(ctx, cfg.Cache, cfg.Redis, m)
	if err != nil {
		return nil, nil, nil, err
	}
	if store == nil {
		store = noStore{}
	}
	qc := cache.New(engine, store, cfg.Cache.TTL, m)
	if err := qc.InvalidateSide(ctx, side); err != nil {
		closeStore()
		return nil, nil, nil, err
	}
	return engine, qc, closeStore, nil
}

func strategyOf(engine *searcher.Engine, side config.Side) string {
	if snap := engine.Snapshot(side); snap != nil {
		return snap.Matcher.Strategy()
	}
	return "unknown"
}

func runLoadTest(qc *cache.QueryCache, cfg Config) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			queryIdx := workerID
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				q := searcher.Query{
					Text:  cfg.Queries[queryIdx%len(cfg.Queries)],
					Side:  string(cfg.Side),
					Limit: cfg.Limit,
				}
				queryIdx++

				start := time.Now()
				res, cached, err := qc.Search(ctx, q)
				if err != nil && ctx.Err() != nil {
					return
				}
				stats.Record(time.Since(start), res, cached, err)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalQueries.Load()
	errors := stats.errorCount.Load()
	hits := stats.cacheHits.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Queries:   %d\n", total)
	fmt.Printf("Errors:          %d\n", errors)
	fmt.Printf("Cache Hits:      %d\n", hits)
	fmt.Printf("Empty Results:   %d\n", stats.emptyResults.Load())
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Cache Hit Rate:  %.2f%%\n", float64(hits)/float64(total)*100)
		fmt.Printf("Queries/sec:     %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No queries completed.")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// noStore never holds anything, so every query reaches the engine.
type noStore struct{}

func (noStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (noStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (noStore) DeletePrefix(context.Context, string) (int64, error) { return 0, nil }
