package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	illustrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_illustrations_total",
			Help: "Total number of illustration jobs, partitioned by outcome.",
		},
		[]string{"outcome"}, // ready, failed, timed_out, canceled, interrupted, dispatch_failed
	)
	illustrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "story_illustration_duration_seconds",
		Help:    "Duration of illustration jobs from submission to persistence.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 9), // 1s ... 256s
	})
	storePersistErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_store_persist_errors_total",
			Help: "Total number of failed story persistence attempts.",
		},
		[]string{"store"}, // local, remote
	)
	storiesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_stories_generated_total",
			Help: "Total number of generated stories.",
		},
		[]string{"mode", "status"}, // mode: sync|stream, status: success|partial|error
	)
	dispatchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "story_illustration_dispatch_in_flight",
		Help: "Number of illustration jobs currently running in process.",
	})
)
