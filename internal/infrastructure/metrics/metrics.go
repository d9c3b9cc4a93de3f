package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the persistence layer.
type Metrics struct {
	Registry *prometheus.Registry

	StorageOperations *prometheus.CounterVec
	StorageErrors     *prometheus.CounterVec
	MigrationRuns     *prometheus.CounterVec
	BackupsCreated    *prometheus.CounterVec
	BackupsDeleted    prometheus.Counter
	ExportBytes       prometheus.Histogram
}

// New creates and registers the application metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		StorageOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_storage_operations_total",
				Help: "Total number of key-value storage operations",
			},
			[]string{"operation", "status"},
		),
		StorageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_storage_errors_total",
				Help: "Storage errors by kind and recoverability",
			},
			[]string{"kind", "recoverable"},
		),
		MigrationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_migration_runs_total",
				Help: "Schema migration attempts by outcome",
			},
			[]string{"from_version", "status"},
		),
		BackupsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_backups_created_total",
				Help: "Backups created by kind",
			},
			[]string{"kind"},
		),
		BackupsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "planner_backups_deleted_total",
				Help: "Backups deleted by rotation",
			},
		),
		ExportBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "planner_export_bytes",
				Help:    "Size of full-dataset export documents in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
		),
	}

	registry.MustRegister(
		m.StorageOperations,
		m.StorageErrors,
		m.MigrationRuns,
		m.BackupsCreated,
		m.BackupsDeleted,
		m.ExportBytes,
	)

	return m
}

// ObserveOperation records one storage operation outcome.
func (m *Metrics) ObserveOperation(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StorageOperations.WithLabelValues(op, status).Inc()
}
