package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/store"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/webhook"
)

// JobReader reads the job store. Implemented by store.JobStore.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]domain.Job, error)
}

// SubscriptionManager is the admin surface of the subscription store.
// Implemented by store.SubscriptionStore.
type SubscriptionManager interface {
	CreateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error
	GetSubscription(ctx context.Context, subscriptionID string) (*domain.WebhookSubscription, error)
	ListSubscriptions(ctx context.Context) ([]domain.WebhookSubscription, error)
	UpdateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error
	DeleteSubscription(ctx context.Context, subscriptionID string) error
	CountActive(ctx context.Context) (int, error)
}

// DeliveryReader reads the delivery ledger and dead letters.
// Implemented by store.DeliveryStore.
type DeliveryReader interface {
	ListAttempts(ctx context.Context, filter domain.DeliveryFilter) ([]domain.DeliveryAttempt, error)
	GetDeadLetter(ctx context.Context, deadLetterID string) (*domain.DeadLetter, error)
	ListDeadLetters(ctx context.Context, filter domain.DeliveryFilter) ([]domain.DeadLetter, error)
	GetMetricsSummary(ctx context.Context) (*store.MetricsSummary, error)
}

// JobEnqueuer enqueues jobs. Implemented by queue.Enqueuer.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, maxAttempts int) (string, error)
}

// ChallengeSender posts one-off verification challenges. Implemented by
// webhook.Sender.
type ChallengeSender interface {
	Send(ctx context.Context, d webhook.Delivery) (webhook.Result, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger            *slog.Logger
	Jobs              JobReader
	Subscriptions     SubscriptionManager
	Deliveries        DeliveryReader
	Enqueuer          JobEnqueuer
	Verifier          ChallengeSender
	IngestMaxAttempts int
	VerifyTimeout     time.Duration
}
