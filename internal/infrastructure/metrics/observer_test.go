package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/asakaida/polyload/internal/entities"
	"github.com/asakaida/polyload/internal/registry"
	"github.com/asakaida/polyload/internal/repositories"
	"github.com/asakaida/polyload/internal/repositories/memory"
	"github.com/asakaida/polyload/internal/services/eagerload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserver_RecordsIntoCollectorAndExporter(t *testing.T) {
	collector := NewCollector()
	exporter := NewPrometheusExporter(collector, prometheus.NewRegistry())
	observer := Observer(collector, exporter)

	observer.ObserveFetch("posts", 2, 10*time.Millisecond, nil)
	observer.ObserveFetch("posts", 0, time.Millisecond, errors.New("boom"))
	observer.ObserveSkip("Comment", "category", 3)
	observer.ObserveUnresolved("likeable", "Video", 1)

	if got := collector.GetLoadMetrics().Fetches["posts"]; got != 2 {
		t.Errorf("collector: expected 2 fetches, got %d", got)
	}
	if got := testutil.ToFloat64(exporter.fetches.WithLabelValues("posts")); got != 2 {
		t.Errorf("exporter: expected 2 fetches, got %v", got)
	}
	if got := testutil.ToFloat64(exporter.fetchErrors.WithLabelValues("posts")); got != 1 {
		t.Errorf("exporter: expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(exporter.fetchRows.WithLabelValues("posts")); got != 2 {
		t.Errorf("exporter: expected 2 rows, got %v", got)
	}
	if got := testutil.ToFloat64(exporter.skips.WithLabelValues("Comment", "category")); got != 3 {
		t.Errorf("exporter: expected 3 skips, got %v", got)
	}
	if got := testutil.ToFloat64(exporter.unresolved.WithLabelValues("likeable", "Video")); got != 1 {
		t.Errorf("exporter: expected 1 unresolved, got %v", got)
	}
}

func TestObserver_WithoutExporter(t *testing.T) {
	collector := NewCollector()
	observer := Observer(collector, nil)

	observer.ObserveFetch("users", 1, time.Millisecond, nil)
	observer.ObserveSkip("Post", "tags", 1)
	observer.ObserveUnresolved("likeable", "", 2)

	m := collector.GetLoadMetrics()
	if m.Fetches["users"] != 1 || m.Skips["Post.tags"] != 1 || m.Unresolved[""] != 2 {
		t.Errorf("unexpected metrics: %+v", m)
	}
}

func TestExporter_CacheMetricsOnScrape(t *testing.T) {
	collector := NewCollector()
	reg := prometheus.NewRegistry()
	NewPrometheusExporter(collector, reg)

	expected := `
# HELP polyload_row_cache_hits_total Total number of row cache hits
# TYPE polyload_row_cache_hits_total counter
polyload_row_cache_hits_total 0
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "polyload_row_cache_hits_total"); err != nil {
		t.Error(err)
	}
}

func TestObserver_WiredIntoLoader(t *testing.T) {
	reg := registry.New()
	schemas := []*entities.EntitySchema{
		{
			Name: "Like", Table: "likes", PrimaryKey: "id",
			Relationships: []*entities.Relationship{
				{Name: "likeable", Kind: entities.KindMorphTo, LocalKey: "likeable_id", TypeColumn: "likeable_type"},
			},
		},
		{Name: "Post", Table: "posts", PrimaryKey: "id"},
	}
	for _, s := range schemas {
		if err := reg.Register(s); err != nil {
			t.Fatalf("failed to register %s: %v", s.Name, err)
		}
	}

	store := memory.NewRowStore()
	store.Insert("posts", repositories.Row{"id": int64(1)})

	likeSchema, _ := reg.Lookup("Like")
	likes := []*entities.Record{
		entities.NewRecord(likeSchema, map[string]interface{}{"id": int64(1), "likeable_type": "Post", "likeable_id": int64(1)}),
		entities.NewRecord(likeSchema, map[string]interface{}{"id": int64(2), "likeable_type": "Video", "likeable_id": int64(9)}),
	}

	collector := NewCollector()
	loader := eagerload.NewLoader(reg, store, eagerload.WithObserver(Observer(collector, nil)))
	if err := loader.Load(context.Background(), likes, "likeable.comments"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := collector.GetLoadMetrics()
	if m.Fetches["posts"] != 1 || m.FetchRows["posts"] != 1 {
		t.Errorf("expected one posts fetch returning one row, got %+v", m)
	}
	if m.Unresolved["Video"] != 1 {
		t.Errorf("expected Video to be unresolved, got %v", m.Unresolved)
	}
	if m.Skips["Post.comments"] != 1 {
		t.Errorf("expected Post.comments to be skipped, got %v", m.Skips)
	}
}
