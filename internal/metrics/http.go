package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:      "http_request_latency_seconds",
			Namespace: EcobinNamespace,
			Buckets:   prometheus.DefBuckets,
			Help:      "The latency of http operations in seconds.",
		},
		[]string{"verb", "route"},
	)

	HttpResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "http_responses_total",
			Namespace: EcobinNamespace,
			Help:      "The total number of http responses by route and status.",
		},
		[]string{"route", "status"},
	)
)
