package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/home-dashboard/httping/config"
	"github.com/home-dashboard/httping/internal/auth"
	"github.com/home-dashboard/httping/internal/database"
	"github.com/home-dashboard/httping/internal/logging"
	"github.com/home-dashboard/httping/internal/metrics"
	"github.com/home-dashboard/httping/internal/monitor"
	"github.com/home-dashboard/httping/internal/probe"
	"github.com/home-dashboard/httping/internal/queue"
	"github.com/home-dashboard/httping/internal/rollup"
	"github.com/home-dashboard/httping/internal/server"
	"github.com/home-dashboard/httping/internal/tracing"
	"github.com/home-dashboard/httping/internal/websocket"
)

func main() {
	targetsFile := flag.String("targets", "", "Path to the targets file (overrides TARGETS_FILE)")
	hashPassword := flag.String("hash-password", "", "Print the bcrypt hash for AUTH_PASSWORD_HASH and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg := config.Load()
	if *targetsFile != "" {
		cfg.Engine.TargetsFile = *targetsFile
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("httpingd failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging.Development {
		return logging.NewDevelopment(cfg.Tracing.ServiceName), nil
	}
	return logging.New(cfg.Tracing.ServiceName, cfg.Logging.Level)
}

func run(cfg *config.Config, logger *zap.Logger) error {
	targets, err := config.LoadTargets(cfg.Engine.TargetsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerCfg := tracing.DefaultConfig(cfg.Tracing.ServiceName)
	tracerCfg.Enabled = cfg.Tracing.Enabled
	tracerCfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tracerCfg.SampleRatio = cfg.Tracing.SampleRatio
	shutdownTracer, err := tracing.InitTracer(tracerCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdownTracer(context.Background())

	var store rollup.Store
	var health server.HealthChecker
	if cfg.Database.Enabled {
		conn, err := database.NewConnection(cfg.Database.ConnectionConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close()
		dbStore := database.NewStore(conn)
		store, health = dbStore, dbStore
		logger.Info("using PostgreSQL store")
	} else {
		store = rollup.NewMemoryStore()
		logger.Warn("database disabled, history will not survive restarts")
	}

	var gate monitor.Gatekeeper = monitor.AlwaysHealthy{}
	if cfg.Gate.Enabled {
		g := monitor.NewGate(cfg.Gate.Window, cfg.Gate.MinCount, cfg.Gate.Threshold)
		gate = g
		go probe.NewLocalProber(cfg.Gate.Address, cfg.Gate.Interval, g, logger).Run(ctx)
	}

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	broadcasters := metrics.MultiBroadcaster{metrics.NewAsyncBroadcaster("websocket", hub, 1, logger)}
	if cfg.NATS.Enabled {
		natsCfg := queue.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.StreamRetention = cfg.NATS.StreamRetention
		publisher, err := queue.NewSnapshotPublisher(ctx, natsCfg, logger)
		if err != nil {
			// snapshots still reach websocket clients
			logger.Error("NATS unavailable, snapshot bus disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			broadcasters = append(broadcasters, metrics.NewAsyncBroadcaster("nats", publisher, 2, logger))
		}
	}
	defer broadcasters.Close()

	mgr := monitor.NewManager(monitor.ManagerConfig{
		PublishInterval: cfg.Engine.PublishInterval,
		Validity:        cfg.Engine.SnapshotValidity,
	}, store, probe.NewExecutor(logger), gate, broadcasters, logger)

	authenticator, err := auth.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.PasswordHash, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	if authenticator == nil {
		logger.Warn("operator authentication disabled, recompute endpoint is open")
	}

	for _, t := range targets {
		if _, err := mgr.Add(ctx, t); err != nil {
			return fmt.Errorf("failed to add target %s: %w", t.InternalName, err)
		}
	}
	logger.Info("targets loaded", zap.Int("count", len(targets)), zap.String("file", cfg.Engine.TargetsFile))

	if cfg.Engine.RecomputeOnStart {
		go mgr.RecomputeAll(ctx)
	}
	if cfg.Engine.RecomputeSchedule != "" {
		if _, err := mgr.ScheduleRecompute(ctx, cfg.Engine.RecomputeSchedule); err != nil {
			return err
		}
	}

	mgr.Start(ctx)

	router := server.NewRouter(server.RouterConfig{
		Engine:      mgr,
		Store:       health,
		WebSocket:   websocket.NewHandler(hub, cfg.WebSocket.Token, cfg.HTTP.CORSOrigins),
		Auth:        authenticator,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      logger,
	})
	srv := server.NewServer(
		fmt.Sprintf(":%d", cfg.HTTP.Port),
		router,
		cfg.HTTP.ReadTimeout,
		cfg.HTTP.WriteTimeout,
		&server.TLSConfig{CertFile: cfg.HTTP.TLSCertFile, KeyFile: cfg.HTTP.TLSKeyFile},
		logger,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			stop()
			mgr.Wait()
			return err
		}
	}

	if err := srv.Shutdown(10 * time.Second); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	mgr.Wait()
	logger.Info("httpingd stopped")
	return nil
}
