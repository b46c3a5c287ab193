package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// refresh lifecycle and the published snapshot.
type Metrics struct {
	RefreshRuns      *prometheus.CounterVec // labels: outcome={success,error,conflict}
	RefreshDuration  prometheus.Histogram
	RefreshInFlight  prometheus.Gauge
	SnapshotRows     prometheus.Gauge
	SnapshotBuiltAt  prometheus.Gauge
	RowsUnknownClass prometheus.Gauge
	RowsUnassigned   *prometheus.GaugeVec // labels: family
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "glacier_attrs",
			Name:      "refresh_runs_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "glacier_attrs",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete load-derive-publish cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RefreshInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "glacier_attrs",
			Name:      "refresh_in_flight",
			Help:      "1 while a refresh is recomputing, 0 otherwise.",
		}),
		SnapshotRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "glacier_attrs",
			Name:      "snapshot_rows",
			Help:      "Row count of the currently published snapshot.",
		}),
		SnapshotBuiltAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "glacier_attrs",
			Name:      "snapshot_built_timestamp_seconds",
			Help:      "Unix time the published snapshot was built.",
		}),
		RowsUnknownClass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "glacier_attrs",
			Name:      "rows_unknown_classification",
			Help:      "Rows in the published snapshot whose classification code decoded to unknown.",
		}),
		RowsUnassigned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "glacier_attrs",
			Name:      "rows_unassigned",
			Help:      "Rows in the published snapshot with no region match, per family.",
		}, []string{"family"}),
	}

	prometheus.MustRegister(
		m.RefreshRuns,
		m.RefreshDuration,
		m.RefreshInFlight,
		m.SnapshotRows,
		m.SnapshotBuiltAt,
		m.RowsUnknownClass,
		m.RowsUnassigned,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RefreshRuns:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "glacier_attrs", Name: "refresh_runs_total"}, []string{"outcome"}),
		RefreshDuration:  prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "glacier_attrs", Name: "refresh_duration_seconds"}),
		RefreshInFlight:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "glacier_attrs", Name: "refresh_in_flight"}),
		SnapshotRows:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "glacier_attrs", Name: "snapshot_rows"}),
		SnapshotBuiltAt:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "glacier_attrs", Name: "snapshot_built_timestamp_seconds"}),
		RowsUnknownClass: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "glacier_attrs", Name: "rows_unknown_classification"}),
		RowsUnassigned:   prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "glacier_attrs", Name: "rows_unassigned"}, []string{"family"}),
	}
}
