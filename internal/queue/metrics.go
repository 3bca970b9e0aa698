package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for snapshot publishing
var (
	publishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "httping_nats_publish_duration_seconds",
			Help:    "Time to publish a snapshot to JetStream and receive the ack",
			Buckets: prometheus.DefBuckets,
		},
	)

	publishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "httping_nats_publish_failures_total",
			Help: "Total number of snapshot publishes that failed",
		},
	)

	natsReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "httping_nats_reconnects_total",
			Help: "Total number of NATS reconnection events",
		},
	)

	metricsOnce sync.Once
)

func init() {
	metricsOnce.Do(func() {
		prometheus.DefaultRegisterer.MustRegister(publishDuration)
		prometheus.DefaultRegisterer.MustRegister(publishFailuresTotal)
		prometheus.DefaultRegisterer.MustRegister(natsReconnectsTotal)
	})
}
