package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/home-dashboard/httping/internal/metrics"
	"github.com/home-dashboard/httping/internal/models"
	"github.com/home-dashboard/httping/internal/rollup"
)

// ErrUnknownTarget is returned for an internal name no monitor is registered under.
var ErrUnknownTarget = errors.New("unknown target")

// ManagerConfig holds the manager's timing settings.
type ManagerConfig struct {
	PublishInterval time.Duration
	// Validity is how long a published snapshot stays current. Defaults to
	// twice the publish interval.
	Validity time.Duration
}

// Manager runs one monitor per target and publishes their snapshots on a
// separate tick.
type Manager struct {
	cfg         ManagerConfig
	store       rollup.Store
	prober      Prober
	gate        Gatekeeper
	broadcaster metrics.Broadcaster
	logger      *zap.Logger

	mu       sync.RWMutex
	monitors map[string]*Monitor
	order    []string

	recomputeMu sync.Mutex
	wg          sync.WaitGroup
	now         func() time.Time
}

// NewManager creates a manager. A nil broadcaster disables publishing.
func NewManager(cfg ManagerConfig, store rollup.Store, prober Prober, gate Gatekeeper, broadcaster metrics.Broadcaster, logger *zap.Logger) *Manager {
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 5 * time.Second
	}
	if cfg.Validity <= 0 {
		cfg.Validity = 2 * cfg.PublishInterval
	}
	if broadcaster == nil {
		broadcaster = metrics.NewNullBroadcaster()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:         cfg,
		store:       store,
		prober:      prober,
		gate:        gate,
		broadcaster: broadcaster,
		logger:      logger,
		monitors:    make(map[string]*Monitor),
		now:         time.Now,
	}
}

// Add registers t, resolving its site id and recovering persisted state.
func (m *Manager) Add(ctx context.Context, t models.Target) (*Monitor, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, exists := m.monitors[t.InternalName]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("duplicate target %q", t.InternalName)
	}
	m.mu.Unlock()

	site, err := m.store.EnsureSite(ctx, t.InternalName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve site for %s: %w", t.InternalName, err)
	}

	mon := NewMonitor(t, site, m.store, m.prober, m.gate, m.logger)
	if err := mon.Recover(ctx); err != nil {
		// start with an empty window rather than not monitoring at all
		m.logger.Error("failed to recover target state",
			zap.String("target", t.InternalName), zap.Error(err))
	}

	m.mu.Lock()
	m.monitors[t.InternalName] = mon
	m.order = append(m.order, t.InternalName)
	m.mu.Unlock()
	return mon, nil
}

// Monitor returns the monitor registered for internalName.
func (m *Manager) Monitor(internalName string) (*Monitor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[internalName]
	return mon, ok
}

// Targets returns the registered targets in registration order.
func (m *Manager) Targets() []models.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Target, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.monitors[name].Target())
	}
	return out
}

func (m *Manager) all() []*Monitor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Monitor, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.monitors[name])
	}
	return out
}

// Start launches one worker per target and the publish loop. Both stop when
// ctx is cancelled; Wait blocks until they have.
func (m *Manager) Start(ctx context.Context) {
	for _, mon := range m.all() {
		m.wg.Add(1)
		go func(mon *Monitor) {
			defer m.wg.Done()
			mon.Run(ctx)
		}(mon)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.publishLoop(ctx)
	}()
}

// Wait blocks until all goroutines started by Start have returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Publish(m.now())
		}
	}
}

// Snapshots assembles the snapshot of every target at now.
func (m *Manager) Snapshots(now time.Time) []models.Snapshot {
	mons := m.all()
	out := make([]models.Snapshot, 0, len(mons))
	for _, mon := range mons {
		out = append(out, mon.Snapshot(now, m.cfg.Validity))
	}
	return out
}

// Snapshot assembles the snapshot of one target at now.
func (m *Manager) Snapshot(internalName string, now time.Time) (models.Snapshot, error) {
	mon, ok := m.Monitor(internalName)
	if !ok {
		return models.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownTarget, internalName)
	}
	return mon.Snapshot(now, m.cfg.Validity), nil
}

// Publish hands the snapshots at now to the broadcaster.
func (m *Manager) Publish(now time.Time) {
	snaps := m.Snapshots(now)
	for i := range snaps {
		m.broadcaster.BroadcastSnapshot(&snaps[i])
	}
}

// Recompute runs the validator for one target under the target's lock and
// reloads its queues afterwards so live snapshots reflect the repairs.
// Concurrent recomputes are serialized.
func (m *Manager) Recompute(ctx context.Context, internalName string, dryRun bool, grans ...models.Granularity) (*rollup.Report, error) {
	mon, ok := m.Monitor(internalName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, internalName)
	}

	m.recomputeMu.Lock()
	defer m.recomputeMu.Unlock()

	v := rollup.NewValidator(m.store, m.logger,
		rollup.WithDryRun(dryRun),
		rollup.WithLocker(mon.Locker()),
		rollup.WithObserver(func(target string, f rollup.Finding) {
			metrics.RecomputeFindings.WithLabelValues(target, string(f.Kind)).Inc()
		}))

	report, err := v.Validate(ctx, mon.Target(), mon.Site(), grans...)
	if err != nil {
		return report, err
	}
	if !dryRun && report.Corrections() > 0 {
		if err := mon.ReloadBuckets(ctx); err != nil {
			return report, fmt.Errorf("recompute applied but reload failed: %w", err)
		}
	}
	return report, nil
}

// RecomputeAll recomputes every target, logging failures and continuing.
func (m *Manager) RecomputeAll(ctx context.Context) []*rollup.Report {
	var reports []*rollup.Report
	for _, t := range m.Targets() {
		report, err := m.Recompute(ctx, t.InternalName, false)
		if err != nil {
			m.logger.Error("recompute failed", zap.String("target", t.InternalName), zap.Error(err))
			continue
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Target < reports[j].Target })
	return reports
}

// ScheduleRecompute runs RecomputeAll on a cron schedule with a seconds
// field, e.g. "0 30 3 * * *". The returned cron is already started; it is
// stopped when ctx is cancelled.
func (m *Manager) ScheduleRecompute(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(spec, func() {
		start := m.now()
		reports := m.RecomputeAll(ctx)
		m.logger.Info("scheduled recompute finished",
			zap.Int("targets", len(reports)),
			zap.Duration("took", m.now().Sub(start)))
	}); err != nil {
		return nil, fmt.Errorf("invalid recompute schedule %q: %w", spec, err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
