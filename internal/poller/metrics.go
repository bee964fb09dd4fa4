package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_poller_sessions_total",
			Help: "Total number of finished poll sessions, partitioned by outcome.",
		},
		[]string{"outcome"}, // ready, failed, timed_out, canceled
	)
	fetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "story_poller_fetch_errors_total",
		Help: "Total number of status fetches that failed and were skipped.",
	})
	sessionAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "story_poller_session_attempts",
		Help:    "Number of status polls made per finished session.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1, 2, 4, ..., 128
	})
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "story_poller_registry_active_sessions",
		Help: "Number of poll sessions currently held by the registry.",
	})
)
