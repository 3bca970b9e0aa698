package models

import "time"

// IntervalBucket is a closed statistical summary for one granularity and one
// aligned start time. Percentiles cover good (non-sentinel) samples only;
// Total counts every sample including sentinels.
type IntervalBucket struct {
	Granularity Granularity `json:"-"`
	Start       time.Time   `json:"start"`
	Total       int         `json:"count"`
	Timeouts    int         `json:"timeouts"`
	Errors      int         `json:"errors"`
	Percentiles
}

// Good returns the number of samples that contributed to the percentiles.
func (b IntervalBucket) Good() int {
	return b.Total - b.Timeouts - b.Errors
}

// SameStats reports whether b and o carry identical counts and percentiles.
func (b IntervalBucket) SameStats(o IntervalBucket) bool {
	return b.Total == o.Total &&
		b.Timeouts == o.Timeouts &&
		b.Errors == o.Errors &&
		b.Percentiles == o.Percentiles
}

// EmptyBucket is the synthetic placeholder used to fill gaps in history.
func EmptyBucket(g Granularity, start time.Time) IntervalBucket {
	return IntervalBucket{Granularity: g, Start: start}
}
