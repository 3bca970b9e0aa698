package rollup

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/home-dashboard/httping/internal/models"
)

var validatorTarget = models.Target{Name: "Router", InternalName: "router", Location: time.UTC}

// seedHistory stores four samples per hour for five hours starting at base.
func seedHistory(t *testing.T) (*MemoryStore, int64) {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	site, err := store.EnsureSite(ctx, validatorTarget.InternalName)
	if err != nil {
		t.Fatal(err)
	}
	for h := 0; h < 5; h++ {
		for m := 0; m < 4; m++ {
			s := sampleAt(time.Duration(h)*time.Hour+time.Duration(m*15)*time.Minute, models.Latency(10*(m+1)))
			if err := store.InsertSample(ctx, site, s); err != nil {
				t.Fatal(err)
			}
		}
	}
	return store, site
}

func hourlyBuckets(t *testing.T, store *MemoryStore, site int64) map[time.Time]models.IntervalBucket {
	t.Helper()
	buckets, err := store.RecentBuckets(context.Background(), site, models.Hourly, 0)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[time.Time]models.IntervalBucket, len(buckets))
	for _, b := range buckets {
		out[b.Start] = b
	}
	return out
}

type countingLocker struct{ locks, unlocks int }

func (l *countingLocker) Lock()   { l.locks++ }
func (l *countingLocker) Unlock() { l.unlocks++ }

func TestValidatorInsertsMissingAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, site := seedHistory(t)
	lock := &countingLocker{}
	v := NewValidator(store, nil, WithLocker(lock))

	report, err := v.Validate(ctx, validatorTarget, site, models.Hourly)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	// first and last hours are incomplete by rule
	if report.Groups != 3 || report.Count(CorrectionMissing) != 3 || report.Samples != 20 {
		t.Fatalf("report = %+v", report)
	}
	if lock.locks != 3 || lock.unlocks != 3 {
		t.Errorf("lock held %d/%d times, want once per write", lock.locks, lock.unlocks)
	}

	stored := hourlyBuckets(t, store, site)
	if len(stored) != 3 {
		t.Fatalf("stored %d buckets, want 3", len(stored))
	}
	b := stored[base.Add(time.Hour)]
	if b.Total != 4 || b.P50 != 20 || b.P99 != 30 {
		t.Errorf("bucket = %+v", b)
	}
	if _, ok := stored[base]; ok {
		t.Error("first group must not be written")
	}

	again, err := v.Validate(ctx, validatorTarget, site, models.Hourly)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Findings) != 0 {
		t.Errorf("second run findings = %+v, want none", again.Findings)
	}
}

func TestValidatorCorrections(t *testing.T) {
	ctx := context.Background()
	store, site := seedHistory(t)

	smaller := models.IntervalBucket{Granularity: models.Hourly, Start: base.Add(time.Hour), Total: 1}
	larger := models.IntervalBucket{Granularity: models.Hourly, Start: base.Add(2 * time.Hour), Total: 100}
	misaligned := models.IntervalBucket{Granularity: models.Hourly, Start: base.Add(90 * time.Minute), Total: 4}
	for _, b := range []models.IntervalBucket{smaller, larger, misaligned} {
		store.UpsertBucket(ctx, site, b)
	}

	var observed []Correction
	v := NewValidator(store, nil, WithObserver(func(target string, f Finding) {
		if target != "router" {
			t.Errorf("observer target = %q", target)
		}
		observed = append(observed, f.Kind)
	}))

	report, err := v.Validate(ctx, validatorTarget, site, models.Hourly)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		kind Correction
		want int
	}{
		{CorrectionMissing, 1},
		{CorrectionDifferent, 1},
		{CorrectionReview, 1},
		{CorrectionInvalid, 1},
	}
	for _, tt := range tests {
		if got := report.Count(tt.kind); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.kind, got, tt.want)
		}
	}
	if report.Corrections() != 3 || len(observed) != 4 {
		t.Errorf("corrections = %d, observed = %v", report.Corrections(), observed)
	}

	stored := hourlyBuckets(t, store, site)
	if got := stored[base.Add(time.Hour)].Total; got != 4 {
		t.Errorf("DIFFERENT bucket total = %d, want overwritten to 4", got)
	}
	if got := stored[base.Add(2*time.Hour)].Total; got != 100 {
		t.Errorf("REVIEW bucket total = %d, want untouched 100", got)
	}
	if _, ok := stored[base.Add(90*time.Minute)]; ok {
		t.Error("INVALID bucket was not deleted")
	}
	if _, ok := stored[base.Add(3*time.Hour)]; !ok {
		t.Error("MISSING bucket was not inserted")
	}
}

func TestValidatorDryRun(t *testing.T) {
	ctx := context.Background()
	store, site := seedHistory(t)
	misaligned := models.IntervalBucket{Granularity: models.Hourly, Start: base.Add(90 * time.Minute), Total: 4}
	store.UpsertBucket(ctx, site, misaligned)

	v := NewValidator(store, nil, WithDryRun(true))
	report, err := v.Validate(ctx, validatorTarget, site, models.Hourly)
	if err != nil {
		t.Fatal(err)
	}
	if !report.DryRun || report.Count(CorrectionMissing) != 3 || report.Count(CorrectionInvalid) != 1 {
		t.Fatalf("report = %+v", report)
	}
	for _, f := range report.Findings {
		if f.Applied {
			t.Errorf("dry run applied %s at %v", f.Kind, f.Start)
		}
	}

	stored := hourlyBuckets(t, store, site)
	if len(stored) != 1 {
		t.Errorf("dry run changed the store: %d buckets", len(stored))
	}
}

func TestValidatorLocalDailyGroups(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("UTC+9", 9*3600)
	target := models.Target{Name: "NAS", InternalName: "nas", Location: loc}
	store := NewMemoryStore()
	site, _ := store.EnsureSite(ctx, "nas")

	// one sample every six hours over four local days
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, loc)
	for i := 0; i < 16; i++ {
		store.InsertSample(ctx, site, models.NewSample(start.Add(time.Duration(i)*6*time.Hour), 10))
	}
	// a bucket aligned to UTC midnight is wrong for this target
	store.UpsertBucket(ctx, site, models.IntervalBucket{Granularity: models.Daily, Start: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Total: 4})

	report, err := NewValidator(store, nil).Validate(ctx, target, site, models.Daily)
	if err != nil {
		t.Fatal(err)
	}
	if report.Groups != 2 || report.Count(CorrectionMissing) != 2 || report.Count(CorrectionInvalid) != 1 {
		t.Fatalf("report = %+v", report)
	}

	daily, _ := store.RecentBuckets(ctx, site, models.Daily, 0)
	for _, b := range daily {
		if !models.Daily.IsAligned(b.Start, loc) || b.Total != 4 {
			t.Errorf("unexpected daily bucket %+v", b)
		}
	}
}

func TestValidatorSkippedMidnightConverges(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("zone unavailable: %v", err)
	}
	target := models.Target{Name: "Modem", InternalName: "modem", Location: loc}
	store := NewMemoryStore()
	site, _ := store.EnsureSite(ctx, "modem")

	// local midnight on 2018-11-04 does not exist
	start := time.Date(2018, 11, 1, 0, 0, 0, 0, time.UTC)
	for ts := start; ts.Before(start.Add(7 * 24 * time.Hour)); ts = ts.Add(time.Hour) {
		store.InsertSample(ctx, site, models.NewSample(ts, 10))
	}

	v := NewValidator(store, nil)
	grans := []models.Granularity{models.Daily, models.Monthly}
	first, err := v.Validate(ctx, target, site, grans...)
	if err != nil {
		t.Fatal(err)
	}
	if first.Count(CorrectionMissing) == 0 {
		t.Fatalf("first run wrote nothing: %+v", first)
	}
	for run := 2; run <= 3; run++ {
		report, err := v.Validate(ctx, target, site, grans...)
		if err != nil {
			t.Fatal(err)
		}
		if n := report.Corrections(); n != 0 {
			t.Errorf("run %d made %d corrections: %+v", run, n, report.Findings)
		}
	}

	daily, _ := store.RecentBuckets(ctx, site, models.Daily, 0)
	for _, b := range daily {
		if !models.Daily.IsAligned(b.Start, loc) {
			t.Errorf("daily bucket %v not aligned", b.Start)
		}
	}
}

func TestValidatorCancelled(t *testing.T) {
	store, site := seedHistory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewValidator(store, nil).Validate(ctx, validatorTarget, site); err == nil {
		t.Error("expected context error")
	}
}
