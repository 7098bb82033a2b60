package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

// Publisher publishes a message to the queue bound to the routing key.
// Implemented by shared/rabbitmq.Client.
type Publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte) error
}

// JobCreator persists new job rows. Implemented by store.JobStore.
type JobCreator interface {
	CreateJob(ctx context.Context, job *domain.Job) error
}

// JobMessage is the wire message placed on a job queue. Workers fetch the
// full job row by id, so the message stays minimal.
type JobMessage struct {
	JobID string `json:"job_id"`
}

// Enqueuer creates a job row and publishes its id to the job type's
// queue. The enqueue never blocks on downstream processing: the insert
// and publish complete regardless of worker backlog.
type Enqueuer struct {
	jobs      JobCreator
	publisher Publisher
	logger    *slog.Logger
}

// NewEnqueuer creates a new Enqueuer instance
func NewEnqueuer(jobs JobCreator, publisher Publisher, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{
		jobs:      jobs,
		publisher: publisher,
		logger:    logger,
	}
}

// Enqueue persists a queued job and publishes it. maxAttempts bounds the
// job-level retry loop; pass 1 for job types that retry internally or
// not at all.
func (e *Enqueuer) Enqueue(ctx context.Context, jobType string, payload any, maxAttempts int) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := &domain.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     string(body),
		Status:      domain.JobStatusQueued,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := e.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	msg, err := json.Marshal(JobMessage{JobID: job.ID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job message: %w", err)
	}

	if err := e.publisher.PublishWithRetry(ctx, jobType, msg); err != nil {
		return "", fmt.Errorf("failed to publish job message: %w", err)
	}

	e.logger.Debug("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("job_type", jobType),
	)

	return job.ID, nil
}
