// Package etl drives the sync cycle: connect, health-check, extract,
// transform, upload, commit, pace, repeat.
package etl

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cinesync/apps/etl/internal/logger"
	"cinesync/apps/etl/internal/movies"
	"cinesync/apps/etl/internal/retry"
)

// ChangeStream is one lazy pass over the changed records, in bounded chunks.
type ChangeStream interface {
	Next() ([]movies.Record, error)
	Close() error
}

// Extractor is the read side of the pipeline.
type Extractor interface {
	Connect(ctx context.Context) error
	HasPendingChanges(ctx context.Context) (bool, error)
	StreamChanges(ctx context.Context) (ChangeStream, error)
	CommitWatermark(ts time.Time) error
	Watermark() string
}

// Uploader is the write side of the pipeline.
type Uploader interface {
	IsAlive(ctx context.Context) bool
	Upload(ctx context.Context, payload []byte) error
}

// TransformFunc converts a chunk of records into a bulk payload.
type TransformFunc func([]movies.Record) ([]byte, error)

// Notifier receives per-cycle progress. Optional.
type Notifier interface {
	CycleCompleted(ctx context.Context, records int, watermark string)
}

type Pipeline struct {
	extractor Extractor
	uploader  Uploader
	transform TransformFunc
	notifier  Notifier
	retry     retry.Policy
	interval  time.Duration
	logger    *slog.Logger
}

func NewPipeline(
	extractor Extractor,
	uploader Uploader,
	transform TransformFunc,
	notifier Notifier,
	policy retry.Policy,
	interval time.Duration,
	log *slog.Logger,
) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		uploader:  uploader,
		transform: transform,
		notifier:  notifier,
		retry:     policy,
		interval:  interval,
		logger:    log,
	}
}

// Run executes sync cycles until ctx is cancelled. Cancellation is
// cooperative: the stop flag is observed at the end of a cycle, never
// mid-extraction or mid-upload, so an in-flight cycle always completes its
// bookkeeping before the loop exits.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("sync pipeline started", "interval", p.interval)
	for {
		// The cycle runs on a context that survives the stop signal: the
		// signal only raises the flag checked below, and an in-flight
		// extraction or upload always runs to completion.
		cycleCtx := logger.WithCycleID(context.WithoutCancel(ctx), uuid.New().String())
		p.runCycle(cycleCtx)

		// Cycle boundary: the stop flag is honored before the pacing sleep.
		select {
		case <-ctx.Done():
			p.logger.Info("stop signal observed, shutting down")
			return nil
		case <-time.After(p.interval):
		}
	}
}

// runCycle performs one pass. Any failure aborts this cycle only; the loop
// naturally retries on the next tick.
func (p *Pipeline) runCycle(ctx context.Context) {
	if err := p.retry.Do(ctx, p.logger, p.extractor.Connect); err != nil {
		p.logger.ErrorContext(ctx, "source connection failed, skipping cycle", "error", err)
		return
	}

	if !p.uploader.IsAlive(ctx) {
		p.logger.WarnContext(ctx, "sink not ready, skipping cycle")
		return
	}

	var pending bool
	err := p.retry.Do(ctx, p.logger, func(ctx context.Context) error {
		var err error
		pending, err = p.extractor.HasPendingChanges(ctx)
		return err
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "pending changes probe failed, skipping cycle", "error", err)
		return
	}
	if !pending {
		p.logger.DebugContext(ctx, "no pending changes")
		return
	}

	var stream ChangeStream
	err = p.retry.Do(ctx, p.logger, func(ctx context.Context) error {
		var err error
		stream, err = p.extractor.StreamChanges(ctx)
		return err
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "change stream open failed, skipping cycle", "error", err)
		return
	}
	defer stream.Close()

	records := 0
	var uploadedTail time.Time
	commitTail := func() bool {
		if err := p.extractor.CommitWatermark(uploadedTail); err != nil {
			p.logger.ErrorContext(ctx, "watermark commit failed, aborting cycle", "error", err)
			return false
		}
		return true
	}
	for {
		chunk, err := stream.Next()
		if err != nil {
			p.logger.ErrorContext(ctx, "change stream failed, aborting cycle", "error", err, "records_synced", records)
			return
		}
		if len(chunk) == 0 {
			// Stream exhausted: no row in this pass shares the tail's
			// timestamp anymore, so it is safe to commit.
			if records > 0 && !commitTail() {
				return
			}
			break
		}

		// The watermark advances only after confirmed upload, and only once
		// the next chunk's first record is strictly later: resume filters
		// with "updated_at > watermark", so committing a tail whose
		// timestamp is shared by not-yet-delivered rows would skip them.
		if records > 0 && chunk[0].UpdatedAt.After(uploadedTail) {
			if !commitTail() {
				return
			}
		}

		// Transform errors are structural, never retried: dropping the
		// record instead would silently lose it from the index.
		payload, err := p.transform(chunk)
		if err != nil {
			p.logger.ErrorContext(ctx, "record transformation failed, aborting cycle", "error", err)
			return
		}

		err = p.retry.Do(ctx, p.logger, func(ctx context.Context) error {
			return p.uploader.Upload(ctx, payload)
		})
		if err != nil {
			p.logger.ErrorContext(ctx, "bulk upload failed, aborting cycle", "error", err, "records_synced", records)
			return
		}

		uploadedTail = chunk[len(chunk)-1].UpdatedAt
		records += len(chunk)
	}

	if records > 0 {
		watermark := p.extractor.Watermark()
		p.logger.InfoContext(ctx, "cycle complete", "records", records, "watermark", watermark)
		if p.notifier != nil {
			p.notifier.CycleCompleted(ctx, records, watermark)
		}
	}
}
