package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request dispatch metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentryrelay_requests_total",
			Help: "Total number of inbound requests by dispatch outcome",
		},
		[]string{"route", "status"},
	)

	RequestBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryrelay_request_bytes_total",
			Help: "Total bytes of envelope data received",
		},
	)

	// Background task metrics
	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentryrelay_tasks_in_flight",
			Help: "Number of background tasks currently running",
		},
	)

	ForwardErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryrelay_forward_errors_total",
			Help: "Total number of failed upstream forwards",
		},
	)

	// Queue metrics
	EnqueueDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentryrelay_enqueue_duration_seconds",
			Help:    "Duration of queue publishes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EnqueueErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryrelay_enqueue_errors_total",
			Help: "Total number of failed queue publishes",
		},
	)

	// Batch writer metrics
	InsertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentryrelay_insert_duration_seconds",
			Help:    "Duration of bulk inserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	InsertErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryrelay_insert_errors_total",
			Help: "Total number of failed bulk inserts",
		},
	)

	BatchRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentryrelay_batch_rows",
			Help:    "Rows per consumed batch",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentryrelay_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"project"},
	)
)
