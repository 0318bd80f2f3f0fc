package app

import (
	"context"
	"log/slog"
	"time"

	"cinesync/apps/etl/internal/config"
	"cinesync/apps/etl/internal/etl"
	"cinesync/apps/etl/internal/movies"
	"cinesync/apps/etl/internal/retry"
	"cinesync/apps/etl/internal/transform"
)

type App struct {
	Pipeline *etl.Pipeline
	deps     *Dependencies
}

func New(cfg *config.Config, deps *Dependencies, log *slog.Logger) *App {
	policy := retry.New(cfg.Retry.MaxAttempts, cfg.Retry.DelayDuration(), cfg.Retry.Backoff)

	pipeline := etl.NewPipeline(
		&extractorAdapter{repo: deps.Extractor},
		deps.Uploader,
		transform.Chunk,
		deps.Notifier,
		policy,
		cfg.Schedule.IntervalDuration(),
		log,
	)

	return &App{Pipeline: pipeline, deps: deps}
}

// Run drives the pipeline until ctx is cancelled, then releases resources.
func (a *App) Run(ctx context.Context) error {
	defer a.deps.Close()
	return a.Pipeline.Run(ctx)
}

// Adapter narrowing *movies.PostgresRepo to the pipeline's Extractor
// interface (the concrete ChangeStream needs lifting to the interface type).
type extractorAdapter struct {
	repo *movies.PostgresRepo
}

func (a *extractorAdapter) Connect(ctx context.Context) error {
	return a.repo.Connect(ctx)
}

func (a *extractorAdapter) HasPendingChanges(ctx context.Context) (bool, error) {
	return a.repo.HasPendingChanges(ctx)
}

func (a *extractorAdapter) StreamChanges(ctx context.Context) (etl.ChangeStream, error) {
	return a.repo.StreamChanges(ctx)
}

func (a *extractorAdapter) CommitWatermark(ts time.Time) error {
	return a.repo.CommitWatermark(ts)
}

func (a *extractorAdapter) Watermark() string {
	return a.repo.Watermark()
}
