package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records auth operations by name and result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocabquiz_auth_attempts_total",
			Help: "Total number of authentication operations",
		},
		[]string{"operation", "result"},
	)

	// RefreshReuse counts refresh tokens rejected as reused, which revokes every session of the owner.
	RefreshReuse = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vocabquiz_refresh_reuse_total",
			Help: "Refresh token presentations treated as reuse",
		},
	)

	// EmailsSent counts verification and reset emails by kind and result (sent|failed|disabled).
	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocabquiz_emails_sent_total",
			Help: "Transactional emails dispatched by the auth core",
		},
		[]string{"kind", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vocabquiz_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
