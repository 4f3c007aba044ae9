package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	CheckoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout sessions requested, by outcome",
		},
		[]string{"outcome"}, // created|rejected|error
	)

	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_completions_total",
			Help: "Completion events handled, by outcome",
		},
		[]string{"outcome"}, // settled|partial|duplicate|ignored
	)

	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seller_transfers_total",
			Help: "Seller transfer attempts, by result",
		},
		[]string{"result"}, // ok|failed
	)

	TransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seller_transfer_duration_seconds",
			Help:    "Latency of a single seller transfer",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_reconcile_legs_total",
			Help: "Failed transfer legs retried by the reconciler, by result",
		},
		[]string{"result"},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
	WorkerTasksFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_tasks_failed_total",
			Help: "Background tasks dropped after exhausting retries",
		},
		[]string{"task"},
	)
)

var Handler = promhttp.Handler

var initOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestLatency,
			CheckoutsTotal,
			CompletionsTotal,
			TransfersTotal,
			TransferDuration,
			ReconciledTotal,
			WorkerQueueDepth,
			WorkerTasksFailed,
		)
	})
}
