package database

import (
	"context"
	"fmt"
	"time"

	"github.com/home-dashboard/httping/internal/models"
)

// SampleRepository provides operations for the raw_samples table
type SampleRepository struct {
	*Repository
}

// NewSampleRepository creates a new raw samples repository
func NewSampleRepository(conn *Connection) *SampleRepository {
	return &SampleRepository{Repository: NewRepository(conn)}
}

// InsertSample stores one sample. A row already present for the same second
// is left as is.
func (r *SampleRepository) InsertSample(ctx context.Context, site int64, s models.Sample) error {
	query := `
		INSERT INTO raw_samples (site_id, ts_ms, latency)
		VALUES ($1, $2, $3)
		ON CONFLICT (site_id, ts_ms) DO NOTHING`

	if _, err := r.conn.ExecContext(ctx, query, site, s.Timestamp.UnixMilli(), int(s.Latency)); err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// SamplesSince returns the samples of site at or after since, oldest first.
func (r *SampleRepository) SamplesSince(ctx context.Context, site int64, since time.Time) ([]models.Sample, error) {
	query := `
		SELECT ts_ms, latency
		FROM raw_samples
		WHERE site_id = $1 AND ts_ms >= $2
		ORDER BY ts_ms ASC`

	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}

	rows, err := r.conn.QueryContext(ctx, query, site, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []models.Sample
	for rows.Next() {
		var tsMs int64
		var latency int
		if err := rows.Scan(&tsMs, &latency); err != nil {
			return nil, fmt.Errorf("failed to scan sample row: %w", err)
		}
		samples = append(samples, models.Sample{
			Timestamp: time.UnixMilli(tsMs).UTC(),
			Latency:   models.Latency(latency),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sample rows: %w", err)
	}
	return samples, nil
}

// DeleteSamplesBefore removes samples older than cutoff across all sites and
// returns the number of rows deleted.
func (r *SampleRepository) DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.conn.ExecContext(ctx, "DELETE FROM raw_samples WHERE ts_ms < $1", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old samples: %w", err)
	}

	rowsDeleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted rows count: %w", err)
	}
	return rowsDeleted, nil
}

// CountSamplesBefore returns how many samples DeleteSamplesBefore would remove.
func (r *SampleRepository) CountSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	if err := r.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM raw_samples WHERE ts_ms < $1", cutoff.UnixMilli()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count old samples: %w", err)
	}
	return n, nil
}
