package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.io/infrasutra/mailroom/internal/config"
	"github.io/infrasutra/mailroom/internal/runtime"
	"github.io/infrasutra/mailroom/internal/store"
)

type seedConfig struct {
	app config.Config
}

func main() {
	_ = godotenv.Load()
	cfg := parseSeedFlags()
	logger := runtime.NewLogger(cfg.app)
	if err := run(cfg, logger); err != nil {
		logger.Error("mailroom-seed failed", "error", err)
		os.Exit(1)
	}
}

func parseSeedFlags() seedConfig {
	app := config.Load()
	dbPath := flag.String("db", app.DBPath, "sqlite database to seed")
	flag.Parse()
	app.DBPath = *dbPath
	return seedConfig{app: app}
}

func run(cfg seedConfig, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := runtime.OpenStore(ctx, cfg.app)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("starting database seeding", "db", cfg.app.DBPath)
	n, err := seed(ctx, db, logger)
	if err != nil {
		return err
	}
	logger.Info("database seeding completed", "created", n)
	return nil
}

type creator interface {
	Create(ctx context.Context, fields store.Fields) (store.Message, error)
}

// seed writes the sample messages straight to the store, bypassing delivery.
func seed(ctx context.Context, repo creator, logger *slog.Logger) (int, error) {
	for i, fields := range sampleEmails {
		if err := fields.Validate(); err != nil {
			return i, fmt.Errorf("sample %d: %w", i, err)
		}
		message, err := repo.Create(ctx, fields)
		if err != nil {
			return i, fmt.Errorf("create sample %q: %w", fields.Subject, err)
		}
		logger.Info("created email", "id", message.ID, "subject", message.Subject)
	}
	return len(sampleEmails), nil
}
