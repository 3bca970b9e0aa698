package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/home-dashboard/httping/config"
	"github.com/home-dashboard/httping/internal/database"
	"github.com/home-dashboard/httping/internal/logging"
	"github.com/home-dashboard/httping/internal/rollup"
)

type Config struct {
	DryRun          bool
	SampleRetention time.Duration
	HealthCheck     bool
	Timeout         time.Duration
}

func main() {
	appCfg := config.Load()

	cfg := &Config{}
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "Perform dry run without actually deleting data")
	flag.DurationVar(&cfg.SampleRetention, "sample-retention", appCfg.Cleanup.SampleRetention,
		"Age after which raw samples are deleted (0 disables pruning)")
	flag.BoolVar(&cfg.HealthCheck, "health-check", false, "Perform database health check only")
	flag.DurationVar(&cfg.Timeout, "timeout", 5*time.Minute, "Operation timeout")
	flag.Parse()

	logger := logging.NewDevelopment("httping-cleanup")
	defer logger.Sync()

	conn, err := database.NewConnection(appCfg.Database.ConnectionConfig())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	store := database.NewStore(conn)

	if cfg.HealthCheck {
		if err := runHealthCheck(ctx, store, logger); err != nil {
			logger.Fatal("health check failed", zap.Error(err))
		}
		return
	}

	if err := runCleanup(ctx, store, cfg, time.Now(), logger); err != nil {
		logger.Fatal("cleanup failed", zap.Error(err))
	}
}

// checkRetention rejects retentions that would delete history the live
// window and the recompute validator still read.
func checkRetention(retention time.Duration) error {
	if retention < rollup.Retention {
		return fmt.Errorf("sample retention %s is shorter than the %s recent window", retention, rollup.Retention)
	}
	return nil
}

func runCleanup(ctx context.Context, store *database.Store, cfg *Config, now time.Time, logger *zap.Logger) error {
	if cfg.SampleRetention == 0 {
		logger.Info("sample pruning disabled")
		return nil
	}
	if err := checkRetention(cfg.SampleRetention); err != nil {
		return err
	}

	cutoff := now.Add(-cfg.SampleRetention)
	logger.Info("cleaning up raw_samples", zap.Time("cutoff", cutoff.UTC()), zap.Duration("retention", cfg.SampleRetention))

	count, err := store.Samples().CountSamplesBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}
	logger.Info("found records to clean up", zap.Int64("count", count))

	if count == 0 {
		return nil
	}
	if cfg.DryRun {
		logger.Info("dry run, nothing deleted", zap.Int64("count", count))
		return nil
	}

	deleted, err := store.Samples().DeleteSamplesBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	logger.Info("deleted samples", zap.Int64("deleted", deleted))
	return nil
}

func runHealthCheck(ctx context.Context, store *database.Store, logger *zap.Logger) error {
	if err := store.HealthCheck(ctx); err != nil {
		return err
	}

	sites, err := store.Sites().ListSites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	stats := store.Stats()
	logger.Info("database healthy",
		zap.Int("sites", len(sites)),
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle))
	return nil
}
