package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

// SubscriptionSource looks up subscriptions interested in an event.
// Implemented by store.SubscriptionStore.
type SubscriptionSource interface {
	ListActiveForEvent(ctx context.Context, eventType string) ([]domain.WebhookSubscription, error)
}

// JobEnqueuer enqueues a job of the given type. Implemented by
// queue.Enqueuer.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, maxAttempts int) (string, error)
}

// Emitter fans an event out to every interested subscription by
// enqueueing one delivery job per subscription. Emission is always a
// side effect of some primary job's success, so a fan-out failure is
// reported to the caller but must never be treated as a reason to fail
// or retry the primary job.
type Emitter struct {
	subs     SubscriptionSource
	enqueuer JobEnqueuer
	logger   *slog.Logger
}

// NewEmitter creates a new Emitter instance
func NewEmitter(subs SubscriptionSource, enqueuer JobEnqueuer, logger *slog.Logger) *Emitter {
	return &Emitter{
		subs:     subs,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// Emit enqueues one webhook delivery job per active subscription whose
// event-type set contains eventType. Returns the number of deliveries
// enqueued.
func (e *Emitter) Emit(ctx context.Context, eventType string, data map[string]any) (int, error) {
	subs, err := e.subs.ListActiveForEvent(ctx, eventType)
	if err != nil {
		return 0, fmt.Errorf("failed to look up subscriptions for %s: %w", eventType, err)
	}

	enqueued := 0
	for _, sub := range subs {
		payload := domain.DeliverPayload{
			SubscriptionID: sub.ID,
			EventType:      eventType,
			Data:           data,
		}

		jobID, err := e.enqueuer.Enqueue(ctx, domain.JobTypeDeliver, payload, 1)
		if err != nil {
			e.logger.Error("Failed to enqueue delivery job",
				slog.String("event_type", eventType),
				slog.String("subscription_id", sub.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		e.logger.Debug("Delivery job enqueued for event",
			slog.String("event_type", eventType),
			slog.String("subscription_id", sub.ID),
			slog.String("job_id", jobID),
		)
		enqueued++
	}

	return enqueued, nil
}
