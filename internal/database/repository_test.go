package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/home-dashboard/httping/internal/models"
)

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errors.New("constraint violated")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return &pq.Error{Code: "08006"}
	})
	if !IsConnectionError(err) {
		t.Errorf("expected wrapped connection error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry(ctx, 5, time.Second, func() error {
		return &pq.Error{Code: "40P01"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// testStore connects to TEST_DATABASE_URL and applies the migrations.
func testStore(t *testing.T) (*Store, *Connection) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL integration test")
	}

	conn, err := NewConnection(&ConnectionConfig{URL: url, MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	ctx := context.Background()
	manager := NewMigrationManager(conn, nil)
	if err := manager.Up(ctx, migrations); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	statuses, err := manager.Status(ctx, migrations)
	if err != nil {
		t.Fatalf("migrate status: %v", err)
	}
	for _, s := range statuses {
		if !s.Applied || s.AppliedAt.IsZero() {
			t.Fatalf("migration %d not recorded: %+v", s.Version, s)
		}
	}
	if _, err := conn.ExecContext(ctx, "TRUNCATE sites RESTART IDENTITY CASCADE"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewStore(conn), conn
}

func TestStoreIntegration(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	site, err := store.EnsureSite(ctx, "router")
	if err != nil {
		t.Fatalf("EnsureSite: %v", err)
	}
	again, err := store.EnsureSite(ctx, "router")
	if err != nil || again != site {
		t.Fatalf("EnsureSite not stable: %d vs %d (%v)", site, again, err)
	}

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, lat := range []models.Latency{10, 0, 65535, 30} {
		if err := store.InsertSample(ctx, site, models.NewSample(base.Add(time.Duration(i)*time.Second), lat)); err != nil {
			t.Fatalf("InsertSample: %v", err)
		}
	}
	// duplicate second is ignored
	if err := store.InsertSample(ctx, site, models.NewSample(base, 99)); err != nil {
		t.Fatalf("duplicate InsertSample: %v", err)
	}

	samples, err := store.SamplesSince(ctx, site, base.Add(time.Second))
	if err != nil {
		t.Fatalf("SamplesSince: %v", err)
	}
	if len(samples) != 3 || samples[1].Latency != models.LatencyTimeout {
		t.Errorf("unexpected samples %+v", samples)
	}

	for h := 0; h < 3; h++ {
		b := models.IntervalBucket{
			Granularity: models.Hourly,
			Start:       base.Add(time.Duration(h) * time.Hour),
			Total:       h + 1,
			Percentiles: models.Percentiles{P1: 1, P25: 2, P50: 3, P75: 4, P95: 5, P99: 6},
		}
		if err := store.UpsertBucket(ctx, site, b); err != nil {
			t.Fatalf("UpsertBucket: %v", err)
		}
	}

	recent, err := store.RecentBuckets(ctx, site, models.Hourly, 2)
	if err != nil {
		t.Fatalf("RecentBuckets: %v", err)
	}
	if len(recent) != 2 || !recent[0].Start.Equal(base.Add(time.Hour)) || recent[1].Total != 3 {
		t.Errorf("unexpected recent buckets %+v", recent)
	}
	if recent[0].P99 != 6 {
		t.Errorf("percentiles not round-tripped: %+v", recent[0].Percentiles)
	}

	if err := store.DeleteBucket(ctx, site, models.Hourly, base); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
	all, err := store.RecentBuckets(ctx, site, models.Hourly, 0)
	if err != nil {
		t.Fatalf("RecentBuckets: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 buckets after delete, got %d", len(all))
	}

	batch := []models.IntervalBucket{
		{Granularity: models.TwoMinute, Start: base, Total: 4},
		{Granularity: models.Daily, Start: base.Truncate(24 * time.Hour), Total: 4},
	}
	if err := store.UpsertBuckets(ctx, site, batch); err != nil {
		t.Fatalf("UpsertBuckets: %v", err)
	}
	for _, g := range []models.Granularity{models.TwoMinute, models.Daily} {
		got, err := store.RecentBuckets(ctx, site, g, 0)
		if err != nil || len(got) != 1 || got[0].Total != 4 {
			t.Errorf("%s after batch: %+v (%v)", g, got, err)
		}
	}
	if stats := store.Stats(); stats.OpenConnections < 1 {
		t.Errorf("expected an open connection, got %+v", stats)
	}

	n, err := store.Samples().DeleteSamplesBefore(ctx, base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("DeleteSamplesBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pruned samples, got %d", n)
	}
}
