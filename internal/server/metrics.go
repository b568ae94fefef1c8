package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsNamespace prefixes every metric this server registers.
const metricsNamespace = "learnbot"

// serverMetrics holds the Prometheus instruments for one Server instance.
// Each Server registers into its own Registerer so tests stay hermetic.
type serverMetrics struct {
	// httpRequestsTotal counts requests by method, logical handler name,
	// and response status code.
	httpRequestsTotal *prometheus.CounterVec
	// httpDurationSeconds observes per-handler request latency.
	httpDurationSeconds *prometheus.HistogramVec
	// chatRequestsTotal counts chat turns by outcome
	// (ok, blocked, not_found, error).
	chatRequestsTotal *prometheus.CounterVec
	// chatDurationSeconds observes end-to-end chat turn latency by outcome.
	chatDurationSeconds *prometheus.HistogramVec
	// chatActiveStreams tracks currently open SSE chat streams.
	chatActiveStreams prometheus.Gauge
	// uploadsTotal counts successfully processed document uploads.
	uploadsTotal prometheus.Counter
	// uploadChunksTotal counts chunks indexed across all uploads.
	uploadChunksTotal prometheus.Counter
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)
	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, handler, and status code.",
		}, []string{"method", "handler", "code"}),
		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and handler.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "handler"}),
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chat_requests_total",
			Help:      "Chat turns by outcome (ok, blocked, not_found, error).",
		}, []string{"outcome"}),
		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "chat_duration_seconds",
			Help:      "End-to-end chat turn latency by outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		chatActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "chat_active_streams",
			Help:      "Currently open SSE chat streams.",
		}),
		uploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "uploads_total",
			Help:      "Successfully processed document uploads.",
		}),
		uploadChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upload_chunks_total",
			Help:      "Document chunks indexed across all uploads.",
		}),
	}
}
