package models

import (
	"fmt"
	"time"
)

// Granularity is one of the four fixed rollup periods.
type Granularity int

const (
	TwoMinute Granularity = iota
	Hourly
	Daily
	Monthly
)

// Granularities lists every rollup period, finest first.
var Granularities = []Granularity{TwoMinute, Hourly, Daily, Monthly}

// DefaultQueueLimit bounds the in-memory queues of the sub-monthly granularities.
const DefaultQueueLimit = 500

// Key is the persisted identifier of the granularity.
func (g Granularity) Key() string {
	switch g {
	case TwoMinute:
		return "2m"
	case Hourly:
		return "1h"
	case Daily:
		return "1d"
	case Monthly:
		return "1mo"
	default:
		return fmt.Sprintf("unknown(%d)", int(g))
	}
}

func (g Granularity) String() string {
	switch g {
	case TwoMinute:
		return "two-minute"
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Monthly:
		return "monthly"
	default:
		return g.Key()
	}
}

// ParseGranularity accepts either the persisted key or the long name.
func ParseGranularity(s string) (Granularity, error) {
	for _, g := range Granularities {
		if s == g.Key() || s == g.String() {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unknown granularity %q", s)
}

// QueueLimit is the maximum number of closed buckets kept in memory, 0 meaning
// unbounded.
func (g Granularity) QueueLimit() int {
	if g == Monthly {
		return 0
	}
	return DefaultQueueLimit
}

// Align maps t to the start of its containing bucket. Two-minute and hourly
// buckets are aligned in UTC; daily and monthly buckets to local midnight in
// loc. The result is always expressed in UTC.
func (g Granularity) Align(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	switch g {
	case TwoMinute:
		return floorUnix(t, 120)
	case Hourly:
		return floorUnix(t, 3600)
	case Daily:
		lt := t.In(loc)
		return localMidnight(lt.Year(), lt.Month(), lt.Day(), loc)
	case Monthly:
		lt := t.In(loc)
		return localMidnight(lt.Year(), lt.Month(), 1, loc)
	default:
		panic(fmt.Sprintf("models: align with unknown granularity %d", int(g)))
	}
}

// Prev returns the start of the bucket immediately preceding the one that
// contains start.
func (g Granularity) Prev(start time.Time, loc *time.Location) time.Time {
	return g.Align(g.Align(start, loc).Add(-time.Second), loc)
}

// IsAligned reports whether start is a valid bucket start under the current
// alignment rules.
func (g Granularity) IsAligned(start time.Time, loc *time.Location) bool {
	return g.Align(start, loc).Equal(start)
}

// localMidnight returns the first instant of the local day, in UTC. Where
// DST starts at 00:00 (America/Sao_Paulo, America/Havana) midnight does not
// exist and time.Date may land on the previous day; the day then starts at
// the transition.
func localMidnight(year int, month time.Month, day int, loc *time.Location) time.Time {
	r := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if r.Day() != day {
		if _, end := r.ZoneBounds(); !end.IsZero() {
			r = end
		}
	}
	return r.UTC()
}

func floorUnix(t time.Time, step int64) time.Time {
	sec := t.Unix()
	rem := sec % step
	if rem < 0 {
		rem += step
	}
	return time.Unix(sec-rem, 0).UTC()
}

func (g Granularity) MarshalText() ([]byte, error) {
	return []byte(g.Key()), nil
}

func (g *Granularity) UnmarshalText(text []byte) error {
	parsed, err := ParseGranularity(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}
