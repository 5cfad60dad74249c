package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for JobsProcessedTotal.
const (
	ResultCompleted  = "completed"
	ResultBuried     = "buried"
	ResultReleased   = "released"
	ResultStoreError = "store_error"
	ResultError      = "error"
)

// Source labels for QueriesTotal.
const (
	SourceBroker   = "broker"
	SourceStore    = "store"
	SourceNotFound = "not_found"
	SourceError    = "error"
)

var (
	// SubmissionsTotal counts job submissions by outcome.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributed_workers_submissions_total",
			Help: "Total number of job submissions",
		},
		[]string{"status"},
	)

	// QueriesTotal counts status queries by the backend that answered them.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributed_workers_queries_total",
			Help: "Total number of job status queries",
		},
		[]string{"source"},
	)

	// JobsProcessedTotal counts reserved jobs by how their processing ended.
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributed_workers_jobs_processed_total",
			Help: "Total number of reserved jobs handled by workers",
		},
		[]string{"result"},
	)

	// ProcessingDuration tracks how long the processor spends on a job, in seconds.
	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distributed_workers_processing_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	// WorkersActive tracks the number of worker loops currently holding a job.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "distributed_workers_workers_active",
			Help: "Number of worker loops currently processing a job",
		},
	)

	// ReservationRaces counts acknowledgements for jobs the broker no longer holds.
	ReservationRaces = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distributed_workers_reservation_races_total",
			Help: "Total number of deletes that found the job already gone",
		},
	)

	// ReserveErrors counts failed reserve calls.
	ReserveErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distributed_workers_reserve_errors_total",
			Help: "Total number of failed reserve calls",
		},
	)
)
