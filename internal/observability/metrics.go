package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// loss pipeline and the query API.
type Metrics struct {
	DocumentsFetched prometheus.Counter
	FetchErrors      prometheus.Counter
	CellsPopulated   prometheus.Gauge
	TractsMapped     prometheus.Counter
	TractsExcluded   prometheus.Counter
	LossRowsComputed prometheus.Counter
	RunsPublished    prometheus.Counter
	NotifyErrors     prometheus.Counter
	RunDuration      prometheus.Histogram

	// Query API metrics.
	RequestDuration *prometheus.HistogramVec // label: route
	ResultCache     *prometheus.CounterVec   // label: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DocumentsFetched,
		m.FetchErrors,
		m.CellsPopulated,
		m.TractsMapped,
		m.TractsExcluded,
		m.LossRowsComputed,
		m.RunsPublished,
		m.NotifyErrors,
		m.RunDuration,
		m.RequestDuration,
		m.ResultCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DocumentsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cat_loss",
			Name:      "documents_fetched_total",
			Help:      "Total raw forecast documents fetched from the object store.",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cat_loss",
			Name:      "fetch_errors_total",
			Help:      "Total raw document fetch or parse failures.",
		}),
		CellsPopulated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cat_loss",
			Name:      "cells_populated",
			Help:      "Grid cells with a non-empty hazard series in the current run.",
		}),
		TractsMapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cat_loss",
			Name:      "tracts_mapped_total",
			Help:      "Exposure units assigned to a grid cell with hazard history.",
		}),
		TractsExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cat_loss",
			Name:      "tracts_excluded_total",
			Help:      "Exposure units dropped because their nearest cell has no hazard history.",
		}),
		LossRowsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cat_loss",
			Name:      "loss_rows_computed_total",
			Help:      "Total per-tract per-timestamp loss rows computed.",
		}),
		RunsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cat_loss",
			Name:      "runs_published_total",
			Help:      "Total result sets published.",
		}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cat_loss",
			Name:      "notify_errors_total",
			Help:      "Total run-completion notification failures.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cat_loss",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-model-aggregate-publish run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cat_loss",
			Name:      "api_request_duration_seconds",
			Help:      "Query API request duration by route.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route"}),
		ResultCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cat_loss",
			Name:      "result_cache_total",
			Help:      "Published-object cache lookups by result.",
		}, []string{"result"}),
	}
}
