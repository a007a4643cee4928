package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister_Idempotent(t *testing.T) {
	Register()
	Register()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "gemsearch_catalog_products" {
			found = true
		}
	}
	if !found {
		t.Error("gemsearch_catalog_products not registered")
	}
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(queriesTotal.WithLabelValues(OutcomeMatched))
	IncQuery(OutcomeMatched)
	if got := testutil.ToFloat64(queriesTotal.WithLabelValues(OutcomeMatched)); got != before+1 {
		t.Errorf("queries_total{matched} = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(catalogFetches.WithLabelValues(SourceStale))
	IncCatalogFetch(SourceStale)
	if got := testutil.ToFloat64(catalogFetches.WithLabelValues(SourceStale)); got != before+1 {
		t.Errorf("catalog_fetches_total{stale} = %v, want %v", got, before+1)
	}

	hits := testutil.ToFloat64(cacheLookups.WithLabelValues("memory", "hit"))
	misses := testutil.ToFloat64(cacheLookups.WithLabelValues("memory", "miss"))
	ObserveCacheLookup("memory", true)
	ObserveCacheLookup("memory", false)
	ObserveCacheLookup("memory", false)
	if got := testutil.ToFloat64(cacheLookups.WithLabelValues("memory", "hit")); got != hits+1 {
		t.Errorf("hits = %v, want %v", got, hits+1)
	}
	if got := testutil.ToFloat64(cacheLookups.WithLabelValues("memory", "miss")); got != misses+2 {
		t.Errorf("misses = %v, want %v", got, misses+2)
	}
}

func TestGaugeAndHistograms(t *testing.T) {
	SetCatalogSize(42)
	if got := testutil.ToFloat64(catalogSize); got != 42 {
		t.Errorf("catalog_products = %v, want 42", got)
	}

	ObserveMatchDuration(3 * time.Millisecond)
	ObserveMatchedProducts(7)
	if n := testutil.CollectAndCount(matchDuration); n != 1 {
		t.Errorf("match_duration_seconds series = %d, want 1", n)
	}
	if n := testutil.CollectAndCount(matchedProducts); n != 1 {
		t.Errorf("matched_products series = %d, want 1", n)
	}
}
