package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/home-dashboard/httping/internal/metrics"
	"github.com/home-dashboard/httping/internal/models"
	"github.com/home-dashboard/httping/internal/rollup"
)

// Prober measures one target and classifies the outcome into a latency or a
// sentinel.
type Prober interface {
	Probe(ctx context.Context, t models.Target) models.Latency
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, t models.Target) models.Latency

func (f ProberFunc) Probe(ctx context.Context, t models.Target) models.Latency {
	return f(ctx, t)
}

const persistTimeout = 5 * time.Second

// Monitor owns the live state of one target: its Recent Window, closed bucket
// queues and the persistence of both. All access goes through mu.
type Monitor struct {
	mu     sync.Mutex
	target models.Target
	site   int64
	agg    *rollup.Aggregator
	store  rollup.Store
	prober Prober
	gate   Gatekeeper
	logger *zap.Logger
	now    func() time.Time
}

// NewMonitor creates a monitor for t backed by the persisted site id.
func NewMonitor(t models.Target, site int64, store rollup.Store, prober Prober, gate Gatekeeper, logger *zap.Logger) *Monitor {
	if gate == nil {
		gate = AlwaysHealthy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		target: t,
		site:   site,
		agg:    rollup.NewAggregator(t.Loc(), rollup.Retention),
		store:  store,
		prober: prober,
		gate:   gate,
		logger: logger.With(zap.String("target", t.InternalName)),
		now:    time.Now,
	}
}

// Target returns the monitored target.
func (m *Monitor) Target() models.Target { return m.target }

// Site returns the persisted site id.
func (m *Monitor) Site() int64 { return m.site }

// Locker exposes the target lock so maintenance passes can serialize their
// writes with live ingestion.
func (m *Monitor) Locker() sync.Locker { return &m.mu }

// Recover loads the retained raw samples and the most recent closed buckets
// from the store.
func (m *Monitor) Recover(ctx context.Context) error {
	since := m.now().Add(-rollup.Retention)
	samples, err := m.store.SamplesSince(ctx, m.site, since)
	if err != nil {
		return fmt.Errorf("failed to load samples: %w", err)
	}

	m.mu.Lock()
	skipped := m.agg.RestoreSamples(samples)
	m.mu.Unlock()

	if skipped > 0 {
		m.logger.Warn("skipped out-of-order samples during recovery", zap.Int("skipped", skipped))
	}
	if err := m.ReloadBuckets(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	metrics.WindowSamples.WithLabelValues(m.target.InternalName).Set(float64(m.agg.Window().Len()))
	m.mu.Unlock()

	m.logger.Info("recovered target state",
		zap.Int("samples", len(samples)-skipped))
	return nil
}

// ReloadBuckets replaces the in-memory queues with the persisted buckets,
// keeping buckets the live path closed while the store was being read.
func (m *Monitor) ReloadBuckets(ctx context.Context) error {
	loaded := make(map[models.Granularity][]models.IntervalBucket, len(models.Granularities))
	for _, g := range models.Granularities {
		buckets, err := m.store.RecentBuckets(ctx, m.site, g, g.QueueLimit())
		if err != nil {
			return fmt.Errorf("failed to load %s buckets: %w", g, err)
		}
		loaded[g] = buckets
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for g, buckets := range loaded {
		m.agg.RestoreQueue(g, buckets)
	}
	return nil
}

// Run probes the target on its interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	clock := NewClock(m.target.Interval)
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	m.logger.Info("monitor started", zap.Duration("interval", m.target.Interval))
	for {
		next := clock.Next(m.now())
		timer.Reset(time.Until(next))
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return
		case <-timer.C:
		}
		m.safeTick(ctx)
	}
}

func (m *Monitor) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TickPanics.WithLabelValues(m.target.InternalName).Inc()
			m.logger.Error("panic in probe tick", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	m.Tick(ctx)
}

// Tick runs one gated probe and records the result. It reports whether a
// sample was recorded.
func (m *Monitor) Tick(ctx context.Context) bool {
	name := m.target.InternalName
	if !m.gate.Healthy() {
		metrics.GateDenials.WithLabelValues(name, "before").Inc()
		m.logger.Debug("local network unhealthy, skipping probe")
		return false
	}

	start := m.now()
	latency := m.prober.Probe(ctx, m.target)
	metrics.ProbeDuration.WithLabelValues(name).Observe(m.now().Sub(start).Seconds())

	if !m.gate.Healthy() {
		metrics.GateDenials.WithLabelValues(name, "after").Inc()
		m.logger.Debug("local network degraded during probe, discarding result")
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	if _, err := m.Record(ctx, models.NewSample(start, latency)); err != nil {
		if errors.Is(err, rollup.ErrOutOfOrder) {
			m.logger.Warn("dropping sample", zap.Time("ts", start), zap.Error(err))
		} else {
			m.logger.Error("failed to record sample", zap.Error(err))
		}
		return false
	}
	return true
}

// Record appends s to the window, closes and persists any finished buckets,
// and persists s. Store failures are logged and counted but never undo the
// in-memory update.
func (m *Monitor) Record(ctx context.Context, s models.Sample) ([]models.IntervalBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := m.target.InternalName
	closed, err := m.agg.Append(s)
	if err != nil {
		metrics.SamplesTotal.WithLabelValues(name, "rejected").Inc()
		return nil, err
	}

	metrics.SamplesTotal.WithLabelValues(name, outcome(s.Latency)).Inc()
	metrics.WindowSamples.WithLabelValues(name).Set(float64(m.agg.Window().Len()))

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := m.store.InsertSample(pctx, m.site, s); err != nil {
		metrics.PersistFailures.WithLabelValues("sample").Inc()
		m.logger.Error("failed to persist sample", zap.Time("ts", s.Timestamp), zap.Error(err))
	}
	for _, b := range closed {
		metrics.BucketsClosed.WithLabelValues(name, b.Granularity.Key()).Inc()
	}
	if err := rollup.UpsertBuckets(pctx, m.store, m.site, closed); err != nil {
		metrics.PersistFailures.WithLabelValues("bucket").Inc()
		m.logger.Error("failed to persist closed buckets",
			zap.Int("buckets", len(closed)),
			zap.Time("ts", s.Timestamp),
			zap.Error(err))
	}
	return closed, nil
}

// Snapshot assembles the outward view of the target at now.
func (m *Monitor) Snapshot(now time.Time, validity time.Duration) models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return rollup.Assemble(m.target, m.agg, now, validity)
}

func outcome(l models.Latency) string {
	switch l {
	case models.LatencyError:
		return "error"
	case models.LatencyTimeout:
		return "timeout"
	default:
		return "ok"
	}
}
