package imagegen

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_image_api_requests_total",
			Help: "Total number of requests to the image generation API.",
		},
		[]string{"operation", "result"}, // submit|status, ok|error
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "story_image_api_request_duration_seconds",
			Help:    "Duration of requests to the image generation API.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
