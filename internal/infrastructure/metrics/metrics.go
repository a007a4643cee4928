package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gemsearch"

var (
	registerOnce sync.Once

	queriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queries_total",
		Help:      "Total number of product queries by outcome (matched, empty, error)",
	}, []string{"outcome"})
	matchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "match_duration_seconds",
		Help:      "Time spent filtering the catalog for one query",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms up to ~1s
	})
	matchedProducts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "matched_products",
		Help:      "Number of products matched per query",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 250},
	})
	catalogFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_fetches_total",
		Help:      "Catalog snapshot reads by source (cache, origin, stale, error)",
	}, []string{"source"})
	catalogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_products",
		Help:      "Number of products in the most recent catalog snapshot",
	})
	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by backend and result (hit, miss)",
	}, []string{"backend", "result"})
)

// Register initializes metrics with the global Prometheus registry (idempotent)
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(queriesTotal, matchDuration, matchedProducts,
			catalogFetches, catalogSize, cacheLookups)
	})
}

// Query outcomes
const (
	OutcomeMatched = "matched"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// Catalog sources
const (
	SourceCache  = "cache"
	SourceOrigin = "origin"
	SourceStale  = "stale"
	SourceError  = "error"
)

// IncQuery counts one answered query by outcome.
func IncQuery(outcome string) { queriesTotal.WithLabelValues(outcome).Inc() }

// IncCatalogFetch counts one catalog snapshot read by source.
func IncCatalogFetch(source string) { catalogFetches.WithLabelValues(source).Inc() }

func SetCatalogSize(n int) { catalogSize.Set(float64(n)) }

func ObserveMatchedProducts(n int) { matchedProducts.Observe(float64(n)) }

func ObserveMatchDuration(d time.Duration) { matchDuration.Observe(d.Seconds()) }

// ObserveCacheLookup records a hit or miss for the named cache backend.
func ObserveCacheLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(backend, result).Inc()
}
