package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/home-dashboard/httping/internal/models"
	"github.com/home-dashboard/httping/internal/rollup"
)

var (
	_ rollup.Store      = (*Store)(nil)
	_ rollup.BatchStore = (*Store)(nil)
)

// defaultRetries bounds how often a transient failure is retried on the
// ingestion path.
const defaultRetries = 2

// Store persists samples and buckets in PostgreSQL. Writes are retried on
// transient errors.
type Store struct {
	sites   *SiteRepository
	samples *SampleRepository
	buckets *BucketRepository
	retries int
}

// NewStore creates a store over conn.
func NewStore(conn *Connection) *Store {
	return &Store{
		sites:   NewSiteRepository(conn),
		samples: NewSampleRepository(conn),
		buckets: NewBucketRepository(conn),
		retries: defaultRetries,
	}
}

// Samples exposes the raw sample repository for maintenance tools.
func (s *Store) Samples() *SampleRepository { return s.samples }

// Sites exposes the site repository.
func (s *Store) Sites() *SiteRepository { return s.sites }

// Stats returns connection pool statistics.
func (s *Store) Stats() sql.DBStats {
	return s.sites.GetConnectionStats()
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.sites.HealthCheck(ctx)
}

func (s *Store) EnsureSite(ctx context.Context, internalName string) (int64, error) {
	var id int64
	err := s.sites.RetryableOperation(ctx, s.retries, func() error {
		var err error
		id, err = s.sites.EnsureSite(ctx, internalName)
		return err
	})
	return id, err
}

func (s *Store) InsertSample(ctx context.Context, site int64, sample models.Sample) error {
	return s.samples.RetryableOperation(ctx, s.retries, func() error {
		return s.samples.InsertSample(ctx, site, sample)
	})
}

func (s *Store) SamplesSince(ctx context.Context, site int64, since time.Time) ([]models.Sample, error) {
	return s.samples.SamplesSince(ctx, site, since)
}

func (s *Store) UpsertBucket(ctx context.Context, site int64, b models.IntervalBucket) error {
	return s.buckets.RetryableOperation(ctx, s.retries, func() error {
		return s.buckets.UpsertBucket(ctx, site, b)
	})
}

// UpsertBuckets writes the buckets closed by one sample atomically.
func (s *Store) UpsertBuckets(ctx context.Context, site int64, buckets []models.IntervalBucket) error {
	return s.buckets.RetryableOperation(ctx, s.retries, func() error {
		return s.buckets.UpsertBuckets(ctx, site, buckets)
	})
}

func (s *Store) RecentBuckets(ctx context.Context, site int64, g models.Granularity, limit int) ([]models.IntervalBucket, error) {
	return s.buckets.RecentBuckets(ctx, site, g, limit)
}

func (s *Store) DeleteBucket(ctx context.Context, site int64, g models.Granularity, start time.Time) error {
	return s.buckets.RetryableOperation(ctx, s.retries, func() error {
		return s.buckets.DeleteBucket(ctx, site, g, start)
	})
}
