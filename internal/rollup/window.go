package rollup

import (
	"errors"
	"time"

	"github.com/home-dashboard/httping/internal/models"
)

// Retention is how long raw samples stay in the Recent Window: long enough to
// recompute a monthly bucket.
const Retention = 35 * 24 * time.Hour

// compactThreshold is the number of evicted head slots tolerated before the
// backing array is compacted.
const compactThreshold = 4096

// ErrOutOfOrder is returned when a sample is not strictly newer than the
// window tail.
var ErrOutOfOrder = errors.New("rollup: sample is not newer than the window tail")

// Window is a bounded, strictly time-ordered sequence of raw samples for one
// target. It is not safe for concurrent use; callers hold the target lock.
type Window struct {
	samples   []models.Sample
	head      int
	retention time.Duration
}

// NewWindow creates a window that evicts samples older than retention
// relative to the newest sample.
func NewWindow(retention time.Duration) *Window {
	if retention <= 0 {
		retention = Retention
	}
	return &Window{
		samples:   make([]models.Sample, 0, 1024),
		retention: retention,
	}
}

// Len returns the number of retained samples.
func (w *Window) Len() int {
	return len(w.samples) - w.head
}

// At returns the i-th retained sample, 0 being the oldest.
func (w *Window) At(i int) models.Sample {
	return w.samples[w.head+i]
}

// Last returns the newest sample.
func (w *Window) Last() (models.Sample, bool) {
	if w.Len() == 0 {
		return models.Sample{}, false
	}
	return w.samples[len(w.samples)-1], true
}

// First returns the oldest retained sample.
func (w *Window) First() (models.Sample, bool) {
	if w.Len() == 0 {
		return models.Sample{}, false
	}
	return w.samples[w.head], true
}

// Append pushes s to the tail and evicts head samples older than
// s.Timestamp - retention.
func (w *Window) Append(s models.Sample) error {
	if last, ok := w.Last(); ok && !s.Timestamp.After(last.Timestamp) {
		return ErrOutOfOrder
	}
	w.samples = append(w.samples, s)
	w.evict(s.Timestamp.Add(-w.retention))
	return nil
}

// ScanBackward calls fn for samples from index from toward the head while
// their timestamp is >= stop. Returning false from fn ends the scan early.
func (w *Window) ScanBackward(from int, stop time.Time, fn func(models.Sample) bool) {
	if from >= w.Len() {
		from = w.Len() - 1
	}
	for i := from; i >= 0; i-- {
		s := w.At(i)
		if s.Timestamp.Before(stop) {
			return
		}
		if !fn(s) {
			return
		}
	}
}

func (w *Window) evict(cutoff time.Time) {
	for w.head < len(w.samples) && w.samples[w.head].Timestamp.Before(cutoff) {
		w.samples[w.head] = models.Sample{}
		w.head++
	}
	if w.head >= compactThreshold && w.head*2 >= len(w.samples) {
		n := copy(w.samples, w.samples[w.head:])
		w.samples = w.samples[:n]
		w.head = 0
	}
}
