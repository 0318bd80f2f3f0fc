package app

import (
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"

	"cinesync/apps/etl/internal/adapter/elastic"
	"cinesync/apps/etl/internal/config"
	"cinesync/apps/etl/internal/etl"
	"cinesync/apps/etl/internal/movies"
	"cinesync/apps/etl/internal/state"
)

// Dependencies holds the wired collaborators of the pipeline. Connection
// establishment to the source is deliberately not done here: the orchestrator
// owns connect-with-retry at the start of every cycle.
type Dependencies struct {
	State     *state.State
	Extractor *movies.PostgresRepo
	Uploader  *elastic.Client
	Notifier  etl.Notifier

	producer *nsq.Producer
}

func Bootstrap(cfg *config.Config, log *slog.Logger) (*Dependencies, error) {
	st, err := state.New(state.NewJSONFileStorage(cfg.State.FilePath))
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	extractor := movies.NewPostgresRepo(cfg.Source.DSN(), cfg.Source.ChunkSize, st)
	uploader := elastic.NewClient(
		cfg.Sink.BaseURL(),
		cfg.Sink.BulkPath,
		cfg.Sink.HealthPath,
		cfg.Sink.Headers,
		cfg.Sink.ChunkDelayDuration(),
		log,
	)

	deps := &Dependencies{
		State:     st,
		Extractor: extractor,
		Uploader:  uploader,
	}

	if cfg.Events.NSQDAddr != "" {
		producer, err := nsq.NewProducer(cfg.Events.NSQDAddr, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("nsq producer: %w", err)
		}
		deps.producer = producer
		deps.Notifier = etl.NewProgressNotifier(producer, cfg.Events.Topic, log)
		log.Info("progress events enabled", "nsqd", cfg.Events.NSQDAddr, "topic", cfg.Events.Topic)
	}

	return deps, nil
}

func (d *Dependencies) Close() {
	if err := d.Extractor.Disconnect(); err != nil {
		slog.Warn("failed to close source connection", "error", err)
	}
	if d.producer != nil {
		d.producer.Stop()
	}
}
