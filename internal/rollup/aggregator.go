package rollup

import (
	"time"

	"github.com/home-dashboard/httping/internal/models"
)

// Aggregator owns the Recent Window of one target and the per-granularity
// queues of closed buckets. It detects granularity-boundary crossings on every
// append and closes the finished buckets.
//
// Aggregator is not safe for concurrent use; the owning monitor serializes
// access with its lock.
type Aggregator struct {
	loc    *time.Location
	window *Window
	queues map[models.Granularity][]models.IntervalBucket
	acc    Accumulator
}

// NewAggregator creates an aggregator aligning daily and monthly buckets in loc.
func NewAggregator(loc *time.Location, retention time.Duration) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	a := &Aggregator{
		loc:    loc,
		window: NewWindow(retention),
		queues: make(map[models.Granularity][]models.IntervalBucket, len(models.Granularities)),
	}
	for _, g := range models.Granularities {
		a.queues[g] = nil
	}
	return a
}

// Location returns the timezone used for daily and monthly alignment.
func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// Window exposes the Recent Window for read-only scans.
func (a *Aggregator) Window() *Window {
	return a.window
}

// Queue returns the closed buckets for g in ascending start order. The slice
// must not be modified.
func (a *Aggregator) Queue(g models.Granularity) []models.IntervalBucket {
	return a.queues[g]
}

// Append adds s to the window and returns the buckets closed by it, finest
// granularity first. The first sample of a target never closes a bucket.
func (a *Aggregator) Append(s models.Sample) ([]models.IntervalBucket, error) {
	prev, hasPrev := a.window.Last()
	if err := a.window.Append(s); err != nil {
		return nil, err
	}
	if !hasPrev {
		return nil, nil
	}

	var closed []models.IntervalBucket
	for _, g := range models.Granularities {
		prevStart := g.Align(prev.Timestamp, a.loc)
		curStart := g.Align(s.Timestamp, a.loc)
		if prevStart.Equal(curStart) {
			continue
		}
		b := a.closeBucket(g, prevStart)
		if b.Total == 0 {
			// every contributing sample already fell out of retention
			continue
		}
		a.push(b)
		closed = append(closed, b)
	}
	return closed, nil
}

// closeBucket scans backward from the second-to-last sample while samples
// belong to the bucket starting at start.
func (a *Aggregator) closeBucket(g models.Granularity, start time.Time) models.IntervalBucket {
	a.acc.Reset()
	a.window.ScanBackward(a.window.Len()-2, start, func(s models.Sample) bool {
		a.acc.Add(s.Latency)
		return true
	})
	return a.acc.Bucket(g, start)
}

func (a *Aggregator) push(b models.IntervalBucket) {
	q := a.queues[b.Granularity]
	if n := len(q); n > 0 && !q[n-1].Start.Before(b.Start) {
		if q[n-1].Start.Equal(b.Start) {
			q[n-1] = b
		}
		// an older start than the tail would break ordering; the validator
		// repairs persisted history instead
		return
	}
	q = append(q, b)
	if limit := b.Granularity.QueueLimit(); limit > 0 && len(q) > limit {
		q = append(q[:0:0], q[len(q)-limit:]...)
	}
	a.queues[b.Granularity] = q
}

// RestoreSamples loads persisted samples in ascending order without closing
// any bucket. Out-of-order rows are skipped and counted.
func (a *Aggregator) RestoreSamples(samples []models.Sample) (skipped int) {
	for _, s := range samples {
		if err := a.window.Append(s); err != nil {
			skipped++
		}
	}
	return skipped
}

// RestoreQueue replaces the queue for g with buckets, which must be in
// ascending start order. In-memory buckets newer than the last loaded one were
// closed after the load began and are kept.
func (a *Aggregator) RestoreQueue(g models.Granularity, buckets []models.IntervalBucket) {
	var newer []models.IntervalBucket
	for _, b := range a.queues[g] {
		if n := len(buckets); n > 0 && !b.Start.After(buckets[n-1].Start) {
			continue
		}
		if g.IsAligned(b.Start, a.loc) {
			newer = append(newer, b)
		}
	}

	a.queues[g] = nil
	for _, b := range buckets {
		b.Granularity = g
		a.push(b)
	}
	for _, b := range newer {
		a.push(b)
	}
}
