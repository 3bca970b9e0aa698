package rollup

import (
	"time"

	"github.com/home-dashboard/httping/internal/models"
)

// Rolling summary spans published with every snapshot.
const (
	RollingShort  = 30 * time.Minute
	RollingMedium = 24 * time.Hour
	RollingLong   = 30 * 24 * time.Hour
)

// Assemble builds the outward snapshot of one target at now. The caller holds
// the target lock so the window and queues form a consistent view.
func Assemble(t models.Target, a *Aggregator, now time.Time, validity time.Duration) models.Snapshot {
	snap := models.Snapshot{
		Name:         t.Name,
		InternalName: t.InternalName,
		GeneratedAt:  now.UTC(),
		ValidUntil:   now.Add(validity).UTC(),
		Recent:       recentLatencies(a.window, models.SnapshotLength),
	}
	for _, g := range models.Granularities {
		snap.SetBuckets(g, FillSeries(a.Queue(g), g, a.loc, now, models.SnapshotLength))
	}
	snap.Last30Minutes = rollingSummary(a.window, now, RollingShort)
	snap.Last24Hours = rollingSummary(a.window, now, RollingMedium)
	snap.Last30Days = rollingSummary(a.window, now, RollingLong)
	return snap
}

func recentLatencies(w *Window, n int) []int {
	out := make([]int, n)
	have := w.Len()
	for i := range out {
		// slot n-1 holds the newest sample
		idx := have - n + i
		if idx < 0 {
			out[i] = models.NoData
			continue
		}
		out[i] = int(w.At(idx).Latency)
	}
	return out
}

func rollingSummary(w *Window, now time.Time, span time.Duration) models.IntervalBucket {
	start := now.Add(-span)
	var acc Accumulator
	w.ScanBackward(w.Len()-1, start, func(s models.Sample) bool {
		if !s.Timestamp.After(now) {
			acc.Add(s.Latency)
		}
		return true
	})
	return acc.Bucket(models.TwoMinute, start.UTC())
}

// FillSeries returns the n most recently closed periods of g as of now, oldest
// first. Periods without a closed bucket in queue get a synthetic empty bucket
// so gaps never shift the alignment of the series. queue must be ascending.
func FillSeries(queue []models.IntervalBucket, g models.Granularity, loc *time.Location, now time.Time, n int) []models.IntervalBucket {
	out := make([]models.IntervalBucket, n)
	expected := g.Prev(g.Align(now, loc), loc)
	idx := len(queue) - 1
	for k := n - 1; k >= 0; k-- {
		// skip buckets newer than expected (still open or misaligned)
		for idx >= 0 && queue[idx].Start.After(expected) {
			idx--
		}
		if idx >= 0 && queue[idx].Start.Equal(expected) {
			out[k] = queue[idx]
			out[k].Granularity = g
			idx--
		} else {
			out[k] = models.EmptyBucket(g, expected)
		}
		expected = g.Prev(expected, loc)
	}
	return out
}
