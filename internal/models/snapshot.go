package models

import "time"

const (
	// SnapshotLength is the fixed length of every array in a Snapshot.
	SnapshotLength = 30

	// NoData marks an empty slot in Snapshot.Recent.
	NoData = -1
)

// Snapshot is the outward-facing summary of one target, published on every
// publish tick.
type Snapshot struct {
	Name         string    `json:"name"`
	InternalName string    `json:"id"`
	GeneratedAt  time.Time `json:"generated_at"`

	// ValidUntil is the horizon after which display clients treat the
	// snapshot as stale.
	ValidUntil time.Time `json:"valid_until"`

	// Recent holds the most recent raw latencies, oldest first. Sentinels keep
	// their 0/65535 values and missing slots are NoData.
	Recent []int `json:"recent"`

	TwoMinute []IntervalBucket `json:"two_minute"`
	Hourly    []IntervalBucket `json:"hourly"`
	Daily     []IntervalBucket `json:"daily"`
	Monthly   []IntervalBucket `json:"monthly"`

	Last30Minutes IntervalBucket `json:"last_30_minutes"`
	Last24Hours   IntervalBucket `json:"last_24_hours"`
	Last30Days    IntervalBucket `json:"last_30_days"`
}

// Buckets returns the array for g.
func (s *Snapshot) Buckets(g Granularity) []IntervalBucket {
	switch g {
	case TwoMinute:
		return s.TwoMinute
	case Hourly:
		return s.Hourly
	case Daily:
		return s.Daily
	default:
		return s.Monthly
	}
}

// SetBuckets stores the array for g.
func (s *Snapshot) SetBuckets(g Granularity, buckets []IntervalBucket) {
	switch g {
	case TwoMinute:
		s.TwoMinute = buckets
	case Hourly:
		s.Hourly = buckets
	case Daily:
		s.Daily = buckets
	default:
		s.Monthly = buckets
	}
}
