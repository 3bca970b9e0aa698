package monitor

import (
	"sync"
	"time"
)

// Gate policy defaults.
const (
	DefaultGateWindow    = 30 * time.Second
	DefaultGateMinCount  = 4
	DefaultGateThreshold = 35 * time.Millisecond
)

// Gatekeeper reports whether the local network is healthy enough for a probe
// result to be trusted.
type Gatekeeper interface {
	Healthy() bool
}

// AlwaysHealthy is a Gatekeeper used when gating is disabled.
type AlwaysHealthy struct{}

func (AlwaysHealthy) Healthy() bool { return true }

type localSample struct {
	at  time.Time
	rtt time.Duration
	ok  bool
}

// Gate keeps recent local-network latency samples and reports healthy when
// enough of them were observed recently and all were fast.
type Gate struct {
	mu        sync.Mutex
	window    time.Duration
	minCount  int
	threshold time.Duration
	history   []localSample
	now       func() time.Time
}

// NewGate creates a gate with the given policy. Zero values fall back to the
// defaults.
func NewGate(window time.Duration, minCount int, threshold time.Duration) *Gate {
	if window <= 0 {
		window = DefaultGateWindow
	}
	if minCount <= 0 {
		minCount = DefaultGateMinCount
	}
	if threshold <= 0 {
		threshold = DefaultGateThreshold
	}
	return &Gate{
		window:    window,
		minCount:  minCount,
		threshold: threshold,
		now:       time.Now,
	}
}

// Record stores a local probe result. A failed probe is kept as a sample that
// can never pass the threshold.
func (g *Gate) Record(at time.Time, rtt time.Duration, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.history = append(g.history, localSample{at: at, rtt: rtt, ok: ok})
	g.prune(at)
}

// Healthy reports whether at least minCount samples fall inside the window
// and every one of them is below the threshold.
func (g *Gate) Healthy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.window)
	count := 0
	for i := len(g.history) - 1; i >= 0; i-- {
		s := g.history[i]
		if s.at.Before(cutoff) {
			break
		}
		if !s.ok || s.rtt >= g.threshold {
			return false
		}
		count++
	}
	return count >= g.minCount
}

func (g *Gate) prune(now time.Time) {
	cutoff := now.Add(-g.window)
	drop := 0
	for drop < len(g.history) && g.history[drop].at.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		g.history = append(g.history[:0], g.history[drop:]...)
	}
}
