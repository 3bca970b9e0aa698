package rollup

import (
	"context"
	"errors"
	"time"

	"github.com/home-dashboard/httping/internal/models"
)

// ErrUnknownSite is returned by stores for a site id they never issued.
var ErrUnknownSite = errors.New("rollup: unknown site")

// Store persists raw samples and closed buckets. Persistence is best-effort
// durability for restart recovery; the in-memory state is authoritative for
// the live path.
type Store interface {
	// EnsureSite returns the site id for internalName, creating it if needed.
	EnsureSite(ctx context.Context, internalName string) (int64, error)

	InsertSample(ctx context.Context, site int64, s models.Sample) error

	// SamplesSince returns samples with timestamp >= since in ascending order.
	SamplesSince(ctx context.Context, site int64, since time.Time) ([]models.Sample, error)

	// UpsertBucket inserts b or overwrites the bucket with the same start.
	UpsertBucket(ctx context.Context, site int64, b models.IntervalBucket) error

	// RecentBuckets returns the most recent limit buckets for g in ascending
	// order; limit <= 0 returns all of them.
	RecentBuckets(ctx context.Context, site int64, g models.Granularity, limit int) ([]models.IntervalBucket, error)

	DeleteBucket(ctx context.Context, site int64, g models.Granularity, start time.Time) error
}

// BatchStore is implemented by stores that can write several buckets
// atomically.
type BatchStore interface {
	UpsertBuckets(ctx context.Context, site int64, buckets []models.IntervalBucket) error
}

// UpsertBuckets persists buckets, in one batch when store supports it. The
// fallback writes each bucket and returns every failure joined.
func UpsertBuckets(ctx context.Context, store Store, site int64, buckets []models.IntervalBucket) error {
	if len(buckets) == 0 {
		return nil
	}
	if bs, ok := store.(BatchStore); ok {
		return bs.UpsertBuckets(ctx, site, buckets)
	}
	var errs []error
	for _, b := range buckets {
		if err := store.UpsertBucket(ctx, site, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
