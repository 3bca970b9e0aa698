package models

import (
	"math"
	"time"
)

// Latency is a probe outcome in milliseconds. Two values are reserved as
// sentinels and never represent a measurement.
type Latency uint16

const (
	// LatencyError marks a probe that completed but failed validation
	// (non-2xx status or missing expected content).
	LatencyError Latency = 0

	// LatencyTimeout marks a probe that timed out or failed in transport.
	LatencyTimeout Latency = math.MaxUint16

	// MinLatency and MaxLatency bound genuine measurements.
	MinLatency Latency = 1
	MaxLatency Latency = math.MaxUint16 - 1
)

// IsSentinel reports whether l is one of the reserved outcome markers.
func (l Latency) IsSentinel() bool {
	return l == LatencyError || l == LatencyTimeout
}

// LatencyFromDuration rounds elapsed to whole milliseconds and clips it into
// [MinLatency, MaxLatency].
func LatencyFromDuration(elapsed time.Duration) Latency {
	ms := math.Round(float64(elapsed) / float64(time.Millisecond))
	if ms < float64(MinLatency) {
		return MinLatency
	}
	if ms > float64(MaxLatency) {
		return MaxLatency
	}
	return Latency(ms)
}

// Sample is one probe outcome at second resolution. Samples are append-only.
type Sample struct {
	Timestamp time.Time `json:"ts"`
	Latency   Latency   `json:"latency"`
}

// NewSample truncates at to whole seconds in UTC.
func NewSample(at time.Time, latency Latency) Sample {
	return Sample{
		Timestamp: time.Unix(at.Unix(), 0).UTC(),
		Latency:   latency,
	}
}
