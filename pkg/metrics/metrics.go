// Package metrics defines the Prometheus collectors for index builds, query
// execution and the query cache, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of the search core.
type Metrics struct {
	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchResultsCount  *prometheus.HistogramVec
	MatchedTerms        *prometheus.HistogramVec
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	IndexBuildsTotal    *prometheus.CounterVec
	IndexBuildDuration  *prometheus.HistogramVec
	IndexTerms          *prometheus.GaugeVec
	IndexEntries        *prometheus.GaugeVec
	IndexGeneration     *prometheus.GaugeVec
	ReloadEventsTotal   *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg. Passing
// prometheus.DefaultRegisterer exposes them through Handler; tests pass a
// fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mtd_search_queries_total",
				Help: "Total search queries by side and result type (hit, zero_result, empty_query, error).",
			},
			[]string{"side", "result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mtd_search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"side", "strategy"},
		),
		SearchResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mtd_search_results_count",
				Help:    "Number of ranked entries per search query before paging.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
			[]string{"side"},
		),
		MatchedTerms: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mtd_matcher_terms",
				Help:    "Index terms within the edit-distance bound per query term.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"side", "strategy"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mtd_cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mtd_cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mtd_index_builds_total",
				Help: "Total index builds by side and status.",
			},
			[]string{"side", "status"},
		),
		IndexBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mtd_index_build_duration_seconds",
				Help:    "Index build duration in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"side"},
		),
		IndexTerms: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mtd_index_terms",
				Help: "Distinct terms in the published index.",
			},
			[]string{"side"},
		),
		IndexEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mtd_index_entries",
				Help: "Entries in the published index.",
			},
			[]string{"side"},
		),
		IndexGeneration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mtd_index_generation",
				Help: "Generation number of the published index.",
			},
			[]string{"side"},
		),
		ReloadEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mtd_reload_events_total",
				Help: "Dictionary update events by outcome.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mtd_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.MatchedTerms,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexBuildsTotal,
		m.IndexBuildDuration,
		m.IndexTerms,
		m.IndexEntries,
		m.IndexGeneration,
		m.ReloadEventsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
