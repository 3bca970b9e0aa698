package models

// PercentileRanks are the order statistics reported for every bucket.
var PercentileRanks = [...]int{1, 25, 50, 75, 95, 99}

// Percentile returns the nearest-rank order statistic at rank p (0-100) of an
// ascending slice, using zero-based index floor((n-1)*p/100).
//
// sorted must be non-empty; callers guard the empty case.
func Percentile(sorted []Latency, p int) Latency {
	return sorted[(len(sorted)-1)*p/100]
}

// Percentiles holds the six order statistics of a bucket's good samples.
type Percentiles struct {
	P1  Latency `json:"p1"`
	P25 Latency `json:"p25"`
	P50 Latency `json:"p50"`
	P75 Latency `json:"p75"`
	P95 Latency `json:"p95"`
	P99 Latency `json:"p99"`
}

// ComputePercentiles evaluates every rank in PercentileRanks over sorted. An
// empty input yields zeroed percentiles.
func ComputePercentiles(sorted []Latency) Percentiles {
	if len(sorted) == 0 {
		return Percentiles{}
	}
	return Percentiles{
		P1:  Percentile(sorted, 1),
		P25: Percentile(sorted, 25),
		P50: Percentile(sorted, 50),
		P75: Percentile(sorted, 75),
		P95: Percentile(sorted, 95),
		P99: Percentile(sorted, 99),
	}
}

// Values returns the percentiles in PercentileRanks order.
func (p Percentiles) Values() [6]Latency {
	return [6]Latency{p.P1, p.P25, p.P50, p.P75, p.P95, p.P99}
}

// PercentilesFromValues is the inverse of Values.
func PercentilesFromValues(v [6]Latency) Percentiles {
	return Percentiles{P1: v[0], P25: v[1], P50: v[2], P75: v[3], P95: v[4], P99: v[5]}
}
