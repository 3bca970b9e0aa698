package probe

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/home-dashboard/httping/internal/metrics"
)

// DefaultLocalInterval is how often the local network is checked.
const DefaultLocalInterval = 5 * time.Second

// Recorder receives local connectivity results.
type Recorder interface {
	Record(at time.Time, rtt time.Duration, ok bool)
}

// LocalProber measures TCP connect time to a nearby host, normally the
// router, and feeds the results to a Recorder.
type LocalProber struct {
	address  string
	interval time.Duration
	timeout  time.Duration
	recorder Recorder
	logger   *zap.Logger
	dial     func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewLocalProber creates a prober dialing address ("host:port").
func NewLocalProber(address string, interval time.Duration, recorder Recorder, logger *zap.Logger) *LocalProber {
	if interval <= 0 {
		interval = DefaultLocalInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &net.Dialer{}
	return &LocalProber{
		address:  address,
		interval: interval,
		timeout:  time.Second,
		recorder: recorder,
		logger:   logger,
		dial:     d.DialContext,
	}
}

// Measure dials once and records the result.
func (p *LocalProber) Measure(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dial(ctx, "tcp", p.address)
	rtt := time.Since(start)
	if err != nil {
		p.recorder.Record(start, rtt, false)
		return rtt, err
	}
	conn.Close()

	p.recorder.Record(start, rtt, true)
	metrics.LocalLatency.Observe(rtt.Seconds())
	return rtt, nil
}

// Run measures immediately and then every interval until ctx is cancelled.
func (p *LocalProber) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("local prober started", zap.String("address", p.address))
	for {
		if _, err := p.Measure(ctx); err != nil && ctx.Err() == nil {
			p.logger.Debug("local probe failed", zap.String("address", p.address), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
