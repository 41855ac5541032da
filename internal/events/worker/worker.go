// Package worker drains the transition event outbox into Kafka.
package worker

import (
	"context"
	"log/slog"
	"time"

	"civicdesk/internal/events"
	"civicdesk/internal/events/outbox"
)

// Store is the outbox surface the worker needs.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]outbox.Entry, error)
	MarkPublished(ctx context.Context, seqs []int64) error
}

// Publisher delivers one event to the stream.
type Publisher interface {
	Publish(ctx context.Context, event events.TransitionEvent) error
}

const defaultBatchSize = 100

// Worker polls the outbox and publishes pending events. A publish failure
// leaves the entry in place for the next tick, giving at-least-once delivery.
type Worker struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// New constructs an outbox worker polling at the given interval.
func New(store Store, publisher Publisher, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: defaultBatchSize,
		logger:    logger,
	}
}

// Run drains the outbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Drain(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch of pending entries. Entries are confirmed
// individually so one broker hiccup does not re-deliver the whole batch.
func (w *Worker) Drain(ctx context.Context) error {
	entries, err := w.store.FetchPending(ctx, w.batchSize)
	if err != nil {
		return err
	}

	var published []int64
	for _, entry := range entries {
		if err := w.publisher.Publish(ctx, entry.Event); err != nil {
			w.logger.WarnContext(ctx, "transition event publish failed, will retry",
				"outbox_seq", entry.ID,
				"request_id", entry.Event.RequestID,
				"error", err,
			)
			break
		}
		published = append(published, entry.ID)
	}

	if len(published) == 0 {
		return nil
	}
	return w.store.MarkPublished(ctx, published)
}
