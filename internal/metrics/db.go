package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ScyllaDb = "scylladb"
)

var (
	DbReadLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:      "db_read_latency_seconds",
			Namespace: EcobinNamespace,
			ConstLabels: prometheus.Labels{
				"db": ScyllaDb,
			},
			Buckets: prometheus.DefBuckets,
			Help:    "The latency of db read operations in seconds.",
		},
		[]string{"query"},
	)

	DbWriteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "db_write_errors_total",
			Namespace: EcobinNamespace,
			ConstLabels: prometheus.Labels{
				"db": ScyllaDb,
			},
			Help: "The total number of failed db writes.",
		},
		[]string{"table"},
	)
)
