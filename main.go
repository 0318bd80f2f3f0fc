package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cinesync/apps/etl/internal/app"
	"cinesync/apps/etl/internal/config"
	"cinesync/apps/etl/internal/logger"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	deps, err := app.Bootstrap(cfg, log)
	if err != nil {
		slog.Error("failed to bootstrap", "error", err)
		os.Exit(1)
	}

	// SIGINT/SIGTERM raise the cooperative stop flag; the pipeline observes
	// it at the end of the current cycle and exits cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, deps, log)
	if err := a.Run(ctx); err != nil {
		slog.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
	slog.Info("sync pipeline stopped")
}
