package rollup

import (
	"slices"
	"time"

	"github.com/home-dashboard/httping/internal/models"
)

// Accumulator folds samples into bucket statistics. Live aggregation, rolling
// snapshot windows and the recompute validator all go through it so the three
// never diverge.
type Accumulator struct {
	total    int
	timeouts int
	errors   int
	good     []models.Latency
}

// Add counts one sample. Sentinels are counted but excluded from percentiles.
func (a *Accumulator) Add(l models.Latency) {
	a.total++
	switch l {
	case models.LatencyTimeout:
		a.timeouts++
	case models.LatencyError:
		a.errors++
	default:
		a.good = append(a.good, l)
	}
}

// Total returns the number of samples added so far.
func (a *Accumulator) Total() int {
	return a.total
}

// Bucket sorts the good samples and builds the summary for start.
func (a *Accumulator) Bucket(g models.Granularity, start time.Time) models.IntervalBucket {
	slices.Sort(a.good)
	return models.IntervalBucket{
		Granularity: g,
		Start:       start,
		Total:       a.total,
		Timeouts:    a.timeouts,
		Errors:      a.errors,
		Percentiles: models.ComputePercentiles(a.good),
	}
}

// Reset clears the accumulator, keeping its buffer.
func (a *Accumulator) Reset() {
	a.total, a.timeouts, a.errors = 0, 0, 0
	a.good = a.good[:0]
}

// Summarize is a convenience over Accumulator for a slice of samples.
func Summarize(g models.Granularity, start time.Time, samples []models.Sample) models.IntervalBucket {
	var acc Accumulator
	for _, s := range samples {
		acc.Add(s.Latency)
	}
	return acc.Bucket(g, start)
}
