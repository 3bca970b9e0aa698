package rollup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/home-dashboard/httping/internal/models"
)

// Correction classifies one validator finding.
type Correction string

const (
	// CorrectionMissing: no persisted bucket for a complete group; inserted.
	CorrectionMissing Correction = "MISSING"

	// CorrectionDifferent: persisted bucket differs and holds no more samples
	// than the recomputed one; overwritten.
	CorrectionDifferent Correction = "DIFFERENT"

	// CorrectionReview: persisted bucket differs but holds more samples than
	// the rescan found; left untouched for manual review.
	CorrectionReview Correction = "REVIEW"

	// CorrectionInvalid: persisted start is not aligned under current rules;
	// deleted.
	CorrectionInvalid Correction = "INVALID"
)

// Finding is one discrepancy between raw history and persisted buckets.
type Finding struct {
	Granularity models.Granularity     `json:"granularity"`
	Start       time.Time              `json:"start"`
	Kind        Correction             `json:"kind"`
	Stored      *models.IntervalBucket `json:"stored,omitempty"`
	Recomputed  *models.IntervalBucket `json:"recomputed,omitempty"`
	Applied     bool                   `json:"applied"`
}

// Report summarizes one validator run for a target.
type Report struct {
	Target   string    `json:"target"`
	Samples  int       `json:"samples"`
	Groups   int       `json:"groups_checked"`
	Findings []Finding `json:"findings"`
	DryRun   bool      `json:"dry_run"`
}

// Count returns the number of findings of kind.
func (r *Report) Count(kind Correction) int {
	n := 0
	for _, f := range r.Findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

// Corrections returns the number of findings that change persisted state.
func (r *Report) Corrections() int {
	return r.Count(CorrectionMissing) + r.Count(CorrectionDifferent) + r.Count(CorrectionInvalid)
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithDryRun reports findings without writing.
func WithDryRun(dryRun bool) ValidatorOption {
	return func(v *Validator) { v.dryRun = dryRun }
}

// WithLocker makes the validator hold l around the writes of each bucket
// group, and only then, so live ingestion is never starved.
func WithLocker(l sync.Locker) ValidatorOption {
	return func(v *Validator) { v.lock = l }
}

// WithObserver registers a callback invoked for every finding.
func WithObserver(fn func(target string, f Finding)) ValidatorOption {
	return func(v *Validator) { v.observe = fn }
}

// Validator rebuilds canonical buckets from full raw history and reconciles
// them with persisted buckets. It is an offline maintenance pass and is
// idempotent on stable input.
type Validator struct {
	store   Store
	logger  *zap.Logger
	dryRun  bool
	lock    sync.Locker
	observe func(string, Finding)
}

// NewValidator creates a validator over store.
func NewValidator(store Store, logger *zap.Logger, opts ...ValidatorOption) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{store: store, logger: logger}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type sampleGroup struct {
	start   time.Time
	samples []models.Sample
}

// Validate reconciles the given granularities (all when empty) of target.
func (v *Validator) Validate(ctx context.Context, t models.Target, site int64, grans ...models.Granularity) (*Report, error) {
	if len(grans) == 0 {
		grans = models.Granularities
	}
	samples, err := v.store.SamplesSince(ctx, site, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load raw history for %s: %w", t.InternalName, err)
	}

	report := &Report{Target: t.InternalName, Samples: len(samples), DryRun: v.dryRun}
	for _, g := range grans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := v.validateGranularity(ctx, t, site, g, samples, report); err != nil {
			return report, err
		}
	}

	v.logger.Info("recompute finished",
		zap.String("target", t.InternalName),
		zap.Int("samples", report.Samples),
		zap.Int("groups", report.Groups),
		zap.Int("missing", report.Count(CorrectionMissing)),
		zap.Int("different", report.Count(CorrectionDifferent)),
		zap.Int("review", report.Count(CorrectionReview)),
		zap.Int("invalid", report.Count(CorrectionInvalid)),
		zap.Bool("dry_run", v.dryRun))
	return report, nil
}

func (v *Validator) validateGranularity(ctx context.Context, t models.Target, site int64, g models.Granularity, samples []models.Sample, report *Report) error {
	loc := t.Loc()
	stored, err := v.store.RecentBuckets(ctx, site, g, 0)
	if err != nil {
		return fmt.Errorf("failed to load %s buckets for %s: %w", g, t.InternalName, err)
	}
	byStart := make(map[int64]models.IntervalBucket, len(stored))
	for _, b := range stored {
		byStart[b.Start.Unix()] = b
	}

	groups := groupSamples(samples, g, loc)
	// first and last groups are always treated as incomplete
	if len(groups) > 2 {
		groups = groups[1 : len(groups)-1]
	} else {
		groups = nil
	}

	for _, grp := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Groups++
		canonical := Summarize(g, grp.start, grp.samples)
		existing, ok := byStart[grp.start.Unix()]
		switch {
		case !ok:
			if err := v.apply(ctx, report, t, Finding{Granularity: g, Start: grp.start, Kind: CorrectionMissing, Recomputed: &canonical}, func() error {
				return v.store.UpsertBucket(ctx, site, canonical)
			}); err != nil {
				return err
			}
		case existing.SameStats(canonical):
		case existing.Total <= canonical.Total:
			if err := v.apply(ctx, report, t, Finding{Granularity: g, Start: grp.start, Kind: CorrectionDifferent, Stored: &existing, Recomputed: &canonical}, func() error {
				return v.store.UpsertBucket(ctx, site, canonical)
			}); err != nil {
				return err
			}
		default:
			f := Finding{Granularity: g, Start: grp.start, Kind: CorrectionReview, Stored: &existing, Recomputed: &canonical}
			report.Findings = append(report.Findings, f)
			v.notify(t, f)
			v.logger.Warn("persisted bucket holds more samples than raw history, needs review",
				zap.String("target", t.InternalName),
				zap.String("granularity", g.String()),
				zap.Time("start", grp.start),
				zap.Int("stored_total", existing.Total),
				zap.Int("recomputed_total", canonical.Total))
		}
	}

	for _, b := range stored {
		if g.IsAligned(b.Start, loc) {
			continue
		}
		start := b.Start
		if err := v.apply(ctx, report, t, Finding{Granularity: g, Start: start, Kind: CorrectionInvalid, Stored: &b}, func() error {
			return v.store.DeleteBucket(ctx, site, g, start)
		}); err != nil {
			return err
		}
	}
	return nil
}

// apply records f and, unless dry-running, performs write under the lock.
func (v *Validator) apply(ctx context.Context, report *Report, t models.Target, f Finding, write func() error) error {
	if !v.dryRun {
		if v.lock != nil {
			v.lock.Lock()
		}
		err := write()
		if v.lock != nil {
			v.lock.Unlock()
		}
		if err != nil {
			return fmt.Errorf("failed to apply %s correction for %s %s at %s: %w",
				f.Kind, t.InternalName, f.Granularity, f.Start.Format(time.RFC3339), err)
		}
		f.Applied = true
	}
	report.Findings = append(report.Findings, f)
	v.notify(t, f)
	v.logger.Info("bucket correction",
		zap.String("target", t.InternalName),
		zap.String("kind", string(f.Kind)),
		zap.String("granularity", f.Granularity.String()),
		zap.Time("start", f.Start),
		zap.Bool("applied", f.Applied))
	return ctx.Err()
}

func (v *Validator) notify(t models.Target, f Finding) {
	if v.observe != nil {
		v.observe(t.InternalName, f)
	}
}

// groupSamples splits ascending samples into runs sharing the same aligned
// start for g.
func groupSamples(samples []models.Sample, g models.Granularity, loc *time.Location) []sampleGroup {
	var groups []sampleGroup
	for i := 0; i < len(samples); {
		start := g.Align(samples[i].Timestamp, loc)
		j := i + 1
		for j < len(samples) && g.Align(samples[j].Timestamp, loc).Equal(start) {
			j++
		}
		groups = append(groups, sampleGroup{start: start, samples: samples[i:j]})
		i = j
	}
	return groups
}
