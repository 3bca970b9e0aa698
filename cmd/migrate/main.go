package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/home-dashboard/httping/config"
	"github.com/home-dashboard/httping/internal/database"
	"github.com/home-dashboard/httping/internal/logging"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status")
		timeout = flag.Duration("timeout", 30*time.Second, "Operation timeout")
	)
	flag.Parse()

	cfg := config.Load()
	logger := logging.NewDevelopment("httping-migrate")
	defer logger.Sync()

	dbConfig := cfg.Database.ConnectionConfig()
	dbConfig.MaxOpenConns = 5 // Lower for migration tool
	dbConfig.MaxIdleConns = 2

	conn, err := database.NewConnection(dbConfig)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	migrations, err := database.LoadMigrations()
	if err != nil {
		logger.Fatal("failed to load migrations", zap.Error(err))
	}
	if len(migrations) == 0 {
		logger.Warn("no migrations found")
		return
	}

	manager := database.NewMigrationManager(conn, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *command {
	case "up":
		if err := manager.Up(ctx, migrations); err != nil {
			logger.Fatal("migration up failed", zap.Error(err))
		}
		color.Green("All migrations applied successfully")

	case "down":
		err := manager.Down(ctx, migrations)
		if errors.Is(err, database.ErrNothingToRollBack) {
			color.Yellow("Nothing to roll back")
			return
		}
		if err != nil {
			logger.Fatal("migration down failed", zap.Error(err))
		}
		color.Green("Migration rolled back successfully")

	case "status":
		statuses, err := manager.Status(ctx, migrations)
		if err != nil {
			logger.Fatal("migration status failed", zap.Error(err))
		}
		printStatus(statuses)

	default:
		logger.Error("unknown command", zap.String("command", *command))
		fmt.Fprintf(os.Stderr, "Available commands: up, down, status\n")
		os.Exit(1)
	}
}

func printStatus(statuses []database.MigrationStatus) {
	color.New(color.FgCyan, color.Bold).Println("Migration Status:")
	for _, s := range statuses {
		state := color.YellowString("pending")
		if s.Applied {
			state = color.GreenString("applied")
		}
		fmt.Printf("  %03d  %-32s %s\n", s.Version, s.Name, state)
	}
}
