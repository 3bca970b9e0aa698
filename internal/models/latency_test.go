package models

import (
	"testing"
	"time"
)

func TestLatencyFromDuration(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    Latency
	}{
		{"zero clips to minimum", 0, MinLatency},
		{"sub-millisecond clips to minimum", 400 * time.Microsecond, MinLatency},
		{"rounds down", 1400 * time.Microsecond, 1},
		{"rounds half up", 1500 * time.Microsecond, 2},
		{"plain", 123 * time.Millisecond, 123},
		{"clips below timeout sentinel", 70 * time.Second, MaxLatency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LatencyFromDuration(tt.elapsed)
			if got != tt.want {
				t.Errorf("LatencyFromDuration(%s) = %d, want %d", tt.elapsed, got, tt.want)
			}
			if got.IsSentinel() {
				t.Errorf("LatencyFromDuration(%s) produced sentinel %d", tt.elapsed, got)
			}
		})
	}
}

func TestIsSentinel(t *testing.T) {
	if !LatencyError.IsSentinel() || !LatencyTimeout.IsSentinel() {
		t.Error("0 and 65535 must be sentinels")
	}
	if MinLatency.IsSentinel() || MaxLatency.IsSentinel() {
		t.Error("1 and 65534 are measurements")
	}
}

func TestNewSampleTruncatesToSeconds(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	at := time.Date(2024, 3, 1, 14, 0, 5, 987654321, loc)

	s := NewSample(at, 42)
	want := time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)
	if !s.Timestamp.Equal(want) || s.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp = %v, want %v", s.Timestamp, want)
	}
	if s.Latency != 42 {
		t.Errorf("Latency = %d, want 42", s.Latency)
	}
}
