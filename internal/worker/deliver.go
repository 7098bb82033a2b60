package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/metrics"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/webhook"
)

// SubscriptionGetter loads one subscription. Implemented by
// store.SubscriptionStore.
type SubscriptionGetter interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*domain.WebhookSubscription, error)
}

// DeliveryLedger records delivery outcomes and dead letters.
// Implemented by store.DeliveryStore.
type DeliveryLedger interface {
	InsertAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error
	CreateDeadLetter(ctx context.Context, dl *domain.DeadLetter) error
	ResolveDeadLetter(ctx context.Context, deadLetterID, replayJobID string) error
}

// WebhookSender posts a signed event envelope. Implemented by
// webhook.Sender.
type WebhookSender interface {
	Send(ctx context.Context, d webhook.Delivery) (webhook.Result, error)
}

// DeliverHandler runs webhook.deliver jobs. HTTP retries happen inside
// the handler with exponential backoff; the job itself is never
// requeued. Exactly one ledger row is written per job, and a delivery
// that exhausts its attempts is dead-lettered exactly once.
type DeliverHandler struct {
	subs        SubscriptionGetter
	ledger      DeliveryLedger
	sender      WebhookSender
	registry    *metrics.Registry
	maxAttempts int
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration)
	logger      *slog.Logger
}

// NewDeliverHandler creates a new DeliverHandler instance
func NewDeliverHandler(
	subs SubscriptionGetter,
	ledger DeliveryLedger,
	sender WebhookSender,
	registry *metrics.Registry,
	maxAttempts int,
	backoffBase time.Duration,
	logger *slog.Logger,
) *DeliverHandler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &DeliverHandler{
		subs:        subs,
		ledger:      ledger,
		sender:      sender,
		registry:    registry,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		sleep:       sleepContext,
		logger:      logger,
	}
}

// Handle executes one delivery job.
func (h *DeliverHandler) Handle(ctx context.Context, job *domain.Job) (map[string]any, error) {
	var payload domain.DeliverPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", domain.ErrClassValidation, domain.ErrInvalidPayload, err)
	}
	if payload.SubscriptionID == "" || payload.EventType == "" {
		return nil, fmt.Errorf("%s: missing subscription_id or event_type", domain.ErrClassValidation)
	}

	sub, err := h.subs.GetSubscription(ctx, payload.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil, fmt.Errorf("%s: %w", domain.ErrClassValidation, err)
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	if !sub.IsActive {
		h.logger.Info("Skipping delivery to inactive subscription",
			slog.String("subscription_id", sub.ID),
			slog.String("event_type", payload.EventType),
		)
		return map[string]any{"status": "skipped", "reason": "subscription inactive"}, nil
	}

	delivery := webhook.Delivery{
		JobID:          job.ID,
		SubscriptionID: sub.ID,
		TargetURL:      sub.TargetURL,
		Secret:         sub.SigningSecret,
		EventType:      payload.EventType,
		Data:           payload.Data,
	}

	var lastErr error
	var lastResult webhook.Result
	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		result, err := h.sender.Send(ctx, delivery)
		lastResult = result
		if err == nil {
			return h.settleDelivered(ctx, job, payload, attempt, result)
		}

		lastErr = err
		h.logger.Warn("Webhook delivery attempt failed",
			slog.String("job_id", job.ID),
			slog.String("subscription_id", sub.ID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", h.maxAttempts),
			slog.String("error", err.Error()),
		)

		if attempt < h.maxAttempts {
			h.sleep(ctx, h.backoffBase*time.Duration(1<<uint(attempt-1)))
		}
	}

	return nil, h.settleExhausted(ctx, job, payload, lastErr, lastResult)
}

func (h *DeliverHandler) settleDelivered(ctx context.Context, job *domain.Job, payload domain.DeliverPayload, attemptsMade int, result webhook.Result) (map[string]any, error) {
	h.registry.Inc(metrics.DeliveredTotal)
	h.registry.ObserveDeliveryLatency(time.Duration(result.DurationMs) * time.Millisecond)

	attempt := &domain.DeliveryAttempt{
		ID:             uuid.New().String(),
		SubscriptionID: payload.SubscriptionID,
		EventType:      payload.EventType,
		Status:         domain.DeliveryStatusDelivered,
		JobID:          job.ID,
		AttemptsMade:   attemptsMade,
		DurationMs:     result.DurationMs,
		LastAttemptAt:  time.Now(),
	}
	if err := h.ledger.InsertAttempt(ctx, attempt); err != nil {
		h.logger.Error("Failed to record delivered attempt",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	// A replay that lands resolves its originating dead letter.
	if payload.FailureID != "" {
		if err := h.ledger.ResolveDeadLetter(ctx, payload.FailureID, job.ID); err != nil {
			h.logger.Error("Failed to resolve dead letter after replay",
				slog.String("dead_letter_id", payload.FailureID),
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	out := map[string]any{
		"status":       domain.DeliveryStatusDelivered,
		"attemptsMade": attemptsMade,
		"statusCode":   result.StatusCode,
		"durationMs":   result.DurationMs,
	}
	if payload.FailureID != "" {
		out["resolvedFailureId"] = payload.FailureID
	}
	return out, nil
}

func (h *DeliverHandler) settleExhausted(ctx context.Context, job *domain.Job, payload domain.DeliverPayload, lastErr error, lastResult webhook.Result) error {
	h.registry.Inc(metrics.FailedTotal)

	finalErr := fmt.Sprintf("%s: delivery failed after %d attempts: %v",
		domain.ErrClassDelivery, h.maxAttempts, lastErr)

	attempt := &domain.DeliveryAttempt{
		ID:             uuid.New().String(),
		SubscriptionID: payload.SubscriptionID,
		EventType:      payload.EventType,
		Status:         domain.DeliveryStatusFailed,
		JobID:          job.ID,
		AttemptsMade:   h.maxAttempts,
		LastError:      lastErr.Error(),
		DurationMs:     lastResult.DurationMs,
		LastAttemptAt:  time.Now(),
	}
	if err := h.ledger.InsertAttempt(ctx, attempt); err != nil {
		h.logger.Error("Failed to record failed attempt",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	deadLetter := &domain.DeadLetter{
		ID:             uuid.New().String(),
		JobID:          job.ID,
		SubscriptionID: payload.SubscriptionID,
		EventType:      payload.EventType,
		Payload:        job.Payload,
		FinalError:     finalErr,
		Attempts:       h.maxAttempts,
	}
	if err := h.ledger.CreateDeadLetter(ctx, deadLetter); err != nil {
		h.logger.Error("Failed to create dead letter",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	return errors.New(finalErr)
}
