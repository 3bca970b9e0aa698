package monitor

import "time"

// Clock schedules probe times at a fixed cadence. It does not catch up: when
// the caller falls more than one interval behind, the schedule restarts at the
// current time.
type Clock struct {
	interval time.Duration
	last     time.Time
	started  bool
}

// NewClock creates a clock ticking every interval.
func NewClock(interval time.Duration) *Clock {
	return &Clock{interval: interval}
}

// Next returns the next scheduled probe time as of now.
func (c *Clock) Next(now time.Time) time.Time {
	if !c.started {
		c.started = true
		c.last = now
		return now
	}
	next := c.last.Add(c.interval)
	if now.Sub(next) > c.interval {
		next = now
	}
	c.last = next
	return next
}
