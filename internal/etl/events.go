package etl

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"cinesync/apps/etl/internal/logger"
)

// Publisher is the message-bus surface the notifier needs. *nsq.Producer
// satisfies it.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// ProgressEvent is published after every productive cycle so downstream
// consumers (cache invalidation, dashboards) can react to index updates.
type ProgressEvent struct {
	CycleID     string    `json:"cycle_id"`
	Records     int       `json:"records"`
	Watermark   string    `json:"watermark"`
	CompletedAt time.Time `json:"completed_at"`
}

// ProgressNotifier publishes ProgressEvents to NSQ. Delivery is best effort:
// a publish failure is logged and never fails the cycle.
type ProgressNotifier struct {
	publisher Publisher
	topic     string
	logger    *slog.Logger
}

func NewProgressNotifier(publisher Publisher, topic string, log *slog.Logger) *ProgressNotifier {
	return &ProgressNotifier{publisher: publisher, topic: topic, logger: log}
}

func (n *ProgressNotifier) CycleCompleted(ctx context.Context, records int, watermark string) {
	event := ProgressEvent{
		CycleID:     logger.CycleID(ctx),
		Records:     records,
		Watermark:   watermark,
		CompletedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.WarnContext(ctx, "failed to encode progress event", "error", err)
		return
	}
	if err := n.publisher.Publish(n.topic, body); err != nil {
		n.logger.WarnContext(ctx, "failed to publish progress event", "topic", n.topic, "error", err)
	}
}
