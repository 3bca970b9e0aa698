package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors for the rollup engine.
var (
	SamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httping_samples_total",
			Help: "Samples recorded per target by outcome",
		},
		[]string{"target", "outcome"}, // ok, error, timeout
	)

	ProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httping_probe_duration_seconds",
			Help:    "Wall-clock duration of probe executions",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"target"},
	)

	GateDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httping_gate_denials_total",
			Help: "Probe cycles aborted because the local network was unhealthy",
		},
		[]string{"target", "phase"}, // before, after
	)

	BucketsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httping_buckets_closed_total",
			Help: "Interval buckets closed by live aggregation",
		},
		[]string{"target", "granularity"},
	)

	PersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httping_persist_failures_total",
			Help: "Failed writes to the durable store",
		},
		[]string{"op"}, // sample, bucket
	)

	TickPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httping_tick_panics_total",
			Help: "Panics recovered in per-target workers",
		},
		[]string{"target"},
	)

	WindowSamples = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "httping_window_samples",
			Help: "Samples currently held in the recent window",
		},
		[]string{"target"},
	)

	RecomputeFindings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httping_recompute_findings_total",
			Help: "Findings reported by the recompute validator",
		},
		[]string{"target", "kind"},
	)

	LocalLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "httping_local_latency_seconds",
			Help:    "Local connectivity probe round-trip time",
			Buckets: []float64{.001, .002, .005, .01, .02, .035, .05, .1, .25},
		},
	)

	SnapshotsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httping_snapshots_published_total",
			Help: "Snapshots handed to broadcasters",
		},
		[]string{"sink", "status"},
	)

	registerOnce sync.Once
)

// Collectors returns every engine collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SamplesTotal,
		ProbeDuration,
		GateDenials,
		BucketsClosed,
		PersistFailures,
		TickPanics,
		WindowSamples,
		RecomputeFindings,
		LocalLatency,
		SnapshotsPublished,
	}
}

func init() {
	registerOnce.Do(func() {
		prometheus.DefaultRegisterer.MustRegister(Collectors()...)
	})
}
