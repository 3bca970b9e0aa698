package models

import "testing"

func TestPercentile(t *testing.T) {
	sorted := []Latency{10, 20, 30, 40, 50}

	tests := []struct {
		rank int
		want Latency
	}{
		{1, 10},
		{25, 20},
		{50, 30},
		{75, 40},
		{95, 40},
		{99, 40},
	}

	for _, tt := range tests {
		if got := Percentile(sorted, tt.rank); got != tt.want {
			t.Errorf("Percentile(p%d) = %d, want %d", tt.rank, got, tt.want)
		}
	}
}

func TestComputePercentiles(t *testing.T) {
	tests := []struct {
		name   string
		sorted []Latency
		want   Percentiles
	}{
		{"empty", nil, Percentiles{}},
		{"single", []Latency{42}, Percentiles{42, 42, 42, 42, 42, 42}},
		{"five", []Latency{10, 20, 30, 40, 50}, Percentiles{10, 20, 30, 40, 40, 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputePercentiles(tt.sorted); got != tt.want {
				t.Errorf("ComputePercentiles() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPercentilesValuesRoundTrip(t *testing.T) {
	p := Percentiles{P1: 1, P25: 2, P50: 3, P75: 4, P95: 5, P99: 6}
	if got := PercentilesFromValues(p.Values()); got != p {
		t.Errorf("PercentilesFromValues(Values()) = %+v, want %+v", got, p)
	}
}
