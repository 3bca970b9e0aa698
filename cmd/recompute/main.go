package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/home-dashboard/httping/config"
	"github.com/home-dashboard/httping/internal/database"
	"github.com/home-dashboard/httping/internal/logging"
	"github.com/home-dashboard/httping/internal/models"
	"github.com/home-dashboard/httping/internal/rollup"
)

func main() {
	var (
		targetsFile = flag.String("targets", "", "Path to the targets file (overrides TARGETS_FILE)")
		target      = flag.String("target", "", "Internal name of the target to recompute (default: all)")
		grans       = flag.String("granularity", "", "Comma-separated granularities: 2m,1h,1d,1mo (default: all)")
		dryRun      = flag.Bool("dry-run", false, "Report discrepancies without writing")
		timeout     = flag.Duration("timeout", 30*time.Minute, "Operation timeout")
	)
	flag.Parse()

	logger := logging.NewDevelopment("httping-recompute")
	defer logger.Sync()

	cfg := config.Load()
	if *targetsFile != "" {
		cfg.Engine.TargetsFile = *targetsFile
	}

	granularities, err := parseGranularities(*grans)
	if err != nil {
		logger.Fatal("invalid -granularity", zap.String("granularity", *grans), zap.Error(err))
	}

	targets, err := config.LoadTargets(cfg.Engine.TargetsFile)
	if err != nil {
		logger.Fatal("failed to load targets", zap.String("file", cfg.Engine.TargetsFile), zap.Error(err))
	}
	targets, err = selectTargets(targets, *target)
	if err != nil {
		logger.Fatal("unknown target", zap.String("target", *target), zap.Error(err))
	}

	conn, err := database.NewConnection(cfg.Database.ConnectionConfig())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()
	store := database.NewStore(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	v := rollup.NewValidator(store, logger, rollup.WithDryRun(*dryRun))

	failed, err := recomputeAll(ctx, store.Sites(), v, targets, granularities, logger)
	if err != nil {
		logger.Fatal("recompute aborted", zap.Error(err))
	}
	if failed > 0 {
		logger.Error("recompute finished with failures", zap.Int("failed", failed), zap.Int("targets", len(targets)))
		os.Exit(1)
	}
}

type siteFinder interface {
	FindSite(ctx context.Context, internalName string) (int64, error)
}

// recomputeAll validates each target in turn. A target that fails validation
// is logged and counted; a failed site lookup aborts the run.
func recomputeAll(ctx context.Context, sites siteFinder, v *rollup.Validator, targets []models.Target, grans []models.Granularity, logger *zap.Logger) (int, error) {
	failed := 0
	for _, t := range targets {
		site, err := sites.FindSite(ctx, t.InternalName)
		if errors.Is(err, sql.ErrNoRows) {
			logger.Warn("no stored history, skipped", zap.String("target", t.InternalName))
			continue
		}
		if err != nil {
			return failed, fmt.Errorf("look up %s: %w", t.InternalName, err)
		}

		report, err := v.Validate(ctx, t, site, grans...)
		if err != nil {
			logger.Error("recompute failed", zap.String("target", t.InternalName), zap.Error(err))
			failed++
			continue
		}
		printReport(report)
	}
	return failed, nil
}

func parseGranularities(s string) ([]models.Granularity, error) {
	if s == "" {
		return nil, nil
	}
	var out []models.Granularity
	for _, part := range strings.Split(s, ",") {
		g, err := models.ParseGranularity(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func selectTargets(targets []models.Target, name string) ([]models.Target, error) {
	if name == "" {
		return targets, nil
	}
	for _, t := range targets {
		if t.InternalName == name {
			return []models.Target{t}, nil
		}
	}
	return nil, fmt.Errorf("target %q not found in targets file", name)
}

func printReport(r *rollup.Report) {
	header := color.New(color.FgCyan, color.Bold)
	if r.DryRun {
		header.Printf("%s (dry run)\n", r.Target)
	} else {
		header.Printf("%s\n", r.Target)
	}
	fmt.Printf("  samples: %d  groups checked: %d\n", r.Samples, r.Groups)

	if len(r.Findings) == 0 {
		color.Green("  no discrepancies")
		return
	}

	for _, f := range r.Findings {
		line := fmt.Sprintf("  %-9s %-4s %s", f.Kind, f.Granularity.Key(), f.Start.UTC().Format(time.RFC3339))
		if f.Stored != nil && f.Recomputed != nil {
			line += fmt.Sprintf("  stored=%d recomputed=%d", f.Stored.Total, f.Recomputed.Total)
		}
		kindColor(f.Kind).Println(line)
	}
	fmt.Printf("  missing=%d different=%d review=%d invalid=%d\n",
		r.Count(rollup.CorrectionMissing), r.Count(rollup.CorrectionDifferent),
		r.Count(rollup.CorrectionReview), r.Count(rollup.CorrectionInvalid))
}

func kindColor(kind rollup.Correction) *color.Color {
	switch kind {
	case rollup.CorrectionReview:
		return color.New(color.FgYellow)
	case rollup.CorrectionInvalid:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgGreen)
	}
}
