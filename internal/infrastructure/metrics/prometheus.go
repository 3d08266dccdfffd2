package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	fetchRows     *prometheus.CounterVec
	skips         *prometheus.CounterVec
	unresolved    *prometheus.CounterVec
}

// NewPrometheusExporter creates a new Prometheus exporter registered on reg.
// Cache metrics are read from the collector at scrape time.
func NewPrometheusExporter(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(reg)

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "polyload_row_cache_hits_total",
		Help: "Total number of row cache hits",
	}, func() float64 { return float64(collector.GetCacheMetrics().Hits) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "polyload_row_cache_misses_total",
		Help: "Total number of row cache misses",
	}, func() float64 { return float64(collector.GetCacheMetrics().Misses) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "polyload_row_cache_evictions_total",
		Help: "Total number of row cache evictions due to memory limits",
	}, func() float64 { return float64(collector.GetCacheMetrics().Evictions) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "polyload_row_cache_invalidations_total",
		Help: "Total number of row cache entries dropped by invalidation",
	}, func() float64 { return float64(collector.GetCacheMetrics().Invalidations) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "polyload_row_cache_hit_rate",
		Help: "Current cache hit rate (0.0 to 1.0)",
	}, func() float64 { return collector.GetCacheMetrics().HitRate })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "polyload_row_cache_keys_current",
		Help: "Current number of keys in the row cache",
	}, func() float64 { return float64(collector.GetCacheMetrics().KeysCurrent) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "polyload_row_cache_memory_bytes",
		Help: "Current memory usage of the row cache in bytes",
	}, func() float64 { return float64(collector.GetCacheMetrics().MemoryBytes) })

	return &PrometheusExporter{
		collector: collector,
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyload_fetches_total",
				Help: "Total number of row store fetches issued by the eager loader",
			},
			[]string{"table"},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polyload_fetch_duration_seconds",
				Help:    "Duration of row store fetches in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"table"},
		),
		fetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyload_fetch_errors_total",
				Help: "Total number of failed row store fetches",
			},
			[]string{"table"},
		),
		fetchRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyload_fetched_rows_total",
				Help: "Total number of rows returned to the eager loader",
			},
			[]string{"table"},
		),
		skips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyload_skipped_records_total",
				Help: "Records whose schema does not declare the requested relation",
			},
			[]string{"entity", "relation"},
		),
		unresolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyload_unresolved_records_total",
				Help: "Polymorphic records whose discriminator has no registered schema",
			},
			[]string{"relation", "discriminator"},
		),
	}
}

// RecordFetch records a fetch in Prometheus.
func (e *PrometheusExporter) RecordFetch(table string, rows int, durationSeconds float64, failed bool) {
	e.fetches.WithLabelValues(table).Inc()
	e.fetchDuration.WithLabelValues(table).Observe(durationSeconds)
	if failed {
		e.fetchErrors.WithLabelValues(table).Inc()
		return
	}
	e.fetchRows.WithLabelValues(table).Add(float64(rows))
}

// RecordSkip records skipped records in Prometheus.
func (e *PrometheusExporter) RecordSkip(entity, relation string, records int) {
	e.skips.WithLabelValues(entity, relation).Add(float64(records))
}

// RecordUnresolved records unresolved records in Prometheus.
func (e *PrometheusExporter) RecordUnresolved(relation, discriminator string, records int) {
	e.unresolved.WithLabelValues(relation, discriminator).Add(float64(records))
}

// Serve exposes /metrics from gatherer on addr until ctx is done
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
