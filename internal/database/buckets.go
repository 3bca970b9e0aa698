package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/home-dashboard/httping/internal/models"
)

// BucketRepository provides operations for the interval_buckets table
type BucketRepository struct {
	*Repository
}

// NewBucketRepository creates a new interval buckets repository
func NewBucketRepository(conn *Connection) *BucketRepository {
	return &BucketRepository{Repository: NewRepository(conn)}
}

const upsertBucketQuery = `
		INSERT INTO interval_buckets (
			site_id, start_ts_ms, granularity, total_count, timeout_count, error_count,
			p01, p25, p50, p75, p95, p99, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW()
		) ON CONFLICT (site_id, start_ts_ms, granularity)
		DO UPDATE SET
			total_count = $4,
			timeout_count = $5,
			error_count = $6,
			p01 = $7,
			p25 = $8,
			p50 = $9,
			p75 = $10,
			p95 = $11,
			p99 = $12,
			updated_at = NOW()`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// UpsertBucket inserts b or replaces the stored bucket with the same start.
func (r *BucketRepository) UpsertBucket(ctx context.Context, site int64, b models.IntervalBucket) error {
	return upsertBucket(ctx, r.conn, site, b)
}

// UpsertBuckets writes buckets in one transaction.
func (r *BucketRepository) UpsertBuckets(ctx context.Context, site int64, buckets []models.IntervalBucket) error {
	return r.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, b := range buckets {
			if err := upsertBucket(ctx, tx, site, b); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertBucket(ctx context.Context, db execer, site int64, b models.IntervalBucket) error {
	_, err := db.ExecContext(ctx, upsertBucketQuery,
		site, b.Start.UnixMilli(), b.Granularity.Key(),
		b.Total, b.Timeouts, b.Errors,
		int(b.P1), int(b.P25), int(b.P50), int(b.P75), int(b.P95), int(b.P99),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s bucket: %w", b.Granularity, err)
	}
	return nil
}

// RecentBuckets returns the latest limit buckets of g for site in ascending
// start order. A non-positive limit returns all of them.
func (r *BucketRepository) RecentBuckets(ctx context.Context, site int64, g models.Granularity, limit int) ([]models.IntervalBucket, error) {
	query := `
		SELECT start_ts_ms, total_count, timeout_count, error_count,
			   p01, p25, p50, p75, p95, p99
		FROM (
			SELECT *
			FROM interval_buckets
			WHERE site_id = $1 AND granularity = $2
			ORDER BY start_ts_ms DESC
			LIMIT $3
		) recent
		ORDER BY start_ts_ms ASC`

	// LIMIT NULL means no limit
	var lim interface{}
	if limit > 0 {
		lim = limit
	}

	rows, err := r.conn.QueryContext(ctx, query, site, g.Key(), lim)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s buckets: %w", g, err)
	}
	defer rows.Close()

	var buckets []models.IntervalBucket
	for rows.Next() {
		var startMs int64
		var p [6]int
		b := models.IntervalBucket{Granularity: g}
		if err := rows.Scan(&startMs, &b.Total, &b.Timeouts, &b.Errors,
			&p[0], &p[1], &p[2], &p[3], &p[4], &p[5]); err != nil {
			return nil, fmt.Errorf("failed to scan bucket row: %w", err)
		}
		b.Start = time.UnixMilli(startMs).UTC()
		var vals [6]models.Latency
		for i, v := range p {
			vals[i] = models.Latency(v)
		}
		b.Percentiles = models.PercentilesFromValues(vals)
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bucket rows: %w", err)
	}
	return buckets, nil
}

// DeleteBucket removes the bucket of g starting at start.
func (r *BucketRepository) DeleteBucket(ctx context.Context, site int64, g models.Granularity, start time.Time) error {
	query := "DELETE FROM interval_buckets WHERE site_id = $1 AND granularity = $2 AND start_ts_ms = $3"
	if _, err := r.conn.ExecContext(ctx, query, site, g.Key(), start.UnixMilli()); err != nil {
		return fmt.Errorf("failed to delete %s bucket: %w", g, err)
	}
	return nil
}
