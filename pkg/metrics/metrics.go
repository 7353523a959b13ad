package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session metrics.
var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zonecore_sessions_active",
		Help: "Number of session tokens currently cached by the verify hub.",
	})

	SessionLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonecore_session_logins_total",
			Help: "Total login attempts by login type and outcome.",
		},
		[]string{"login_type", "outcome"},
	)

	SessionRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonecore_session_refreshes_total",
			Help: "Total session token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Backup task metrics.
var (
	TasksActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zonecore_tasks_active",
			Help: "Backup tasks currently known to the task store, by state.",
		},
		[]string{"state"},
	)

	TaskRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonecore_task_runs_total",
			Help: "Total RunOnce invocations across all backup task drivers, by resulting state.",
		},
		[]string{"state"},
	)
)

// Chunk metrics.
var (
	ChunksUploadedTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zonecore_chunks_uploaded_total",
		Help: "Distinct content-addressed chunks whose bytes have been uploaded.",
	})

	ChunksDedupedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zonecore_chunks_deduped_total",
		Help: "Chunk uploads skipped because the content hash was already recorded as uploaded.",
	})

	BytesUploadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zonecore_bytes_uploaded_total",
		Help: "Total chunk bytes handed to a chunk uploader.",
	})
)

// RPC metrics.
var (
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonecore_rpc_requests_total",
			Help: "Total kRPC requests dispatched, by service, method and outcome.",
		},
		[]string{"service", "method", "outcome"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zonecore_rpc_request_duration_seconds",
			Help:    "kRPC request handling duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)
)

// Object map metrics.
var (
	ObjectMapsBuiltTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonecore_objectmaps_built_total",
			Help: "Total object maps built, by storage mode (simple/normal/huge).",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsActive,
		SessionLoginsTotal,
		SessionRefreshesTotal,
		TasksActive,
		TaskRunsTotal,
		ChunksUploadedTotal,
		ChunksDedupedTotal,
		BytesUploadedTotal,
		RPCRequestsTotal,
		RPCRequestDuration,
		ObjectMapsBuiltTotal,
	)
}

// Handler returns the HTTP handler that exposes every registered metric
// in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
