package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/metrics"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/queue"
)

// Handler executes one claimed job and returns its result metadata.
// A retryable error sends the job back to the queue while attempts
// remain; any other error fails it terminally.
type Handler interface {
	Handle(ctx context.Context, job *domain.Job) (map[string]any, error)
}

// MessageSource delivers queue messages. Implemented by rabbitmq.Client.
type MessageSource interface {
	Consume(queueName, consumerTag string) (<-chan amqp.Delivery, error)
}

// JobLifecycle is the slice of the job store a pool needs.
type JobLifecycle interface {
	ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error)
	MarkCompleted(ctx context.Context, jobID string, result map[string]any) error
	MarkFailed(ctx context.Context, jobID, errorMsg string) error
	MarkRetry(ctx context.Context, jobID, errorMsg string) error
}

// EventEmitter fans events out to webhook subscriptions. Implemented by
// events.Emitter.
type EventEmitter interface {
	Emit(ctx context.Context, eventType string, data map[string]any) (int, error)
}

// PoolConfig configures one job type's consumer pool.
type PoolConfig struct {
	JobType     string
	QueueName   string
	Concurrency int
	JobTimeout  time.Duration

	// Backoff returns the delay before a retry of the given attempt.
	// Nil disables job-level retries regardless of max_attempts.
	Backoff func(attempt int) time.Duration
}

// Pool consumes one queue with bounded concurrency. Every message is a
// job id; the pool claims the job, runs the handler and settles the
// message. Claim failure on a redelivered message is acked away so
// at-least-once delivery never reruns a claimed job.
type Pool struct {
	config   PoolConfig
	source   MessageSource
	jobs     JobLifecycle
	handler  Handler
	emitter  EventEmitter
	registry *metrics.Registry
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewPool creates a new Pool instance
func NewPool(
	config PoolConfig,
	source MessageSource,
	jobs JobLifecycle,
	handler Handler,
	emitter EventEmitter,
	registry *metrics.Registry,
	logger *slog.Logger,
) *Pool {
	return &Pool{
		config:   config,
		source:   source,
		jobs:     jobs,
		handler:  handler,
		emitter:  emitter,
		registry: registry,
		logger:   logger.With(slog.String("job_type", config.JobType)),
	}
}

// Start begins consuming the pool's queue. Workers exit when ctx is
// cancelled or the delivery channel closes.
func (p *Pool) Start(ctx context.Context) error {
	consumerTag := fmt.Sprintf("%s-%s", p.config.QueueName, uuid.New().String()[:8])

	deliveries, err := p.source.Consume(p.config.QueueName, consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", p.config.QueueName, err)
	}

	for i := 0; i < p.config.Concurrency; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.config.JobType, i)
		p.wg.Add(1)
		go p.runWorker(ctx, workerID, deliveries)
	}

	p.logger.Info("Worker pool started",
		slog.String("queue", p.config.QueueName),
		slog.Int("concurrency", p.config.Concurrency),
	)

	return nil
}

// Wait blocks until every worker goroutine has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID string, deliveries <-chan amqp.Delivery) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			p.processDelivery(ctx, workerID, delivery)
		}
	}
}

func (p *Pool) processDelivery(ctx context.Context, workerID string, delivery amqp.Delivery) {
	var msg queue.JobMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil || msg.JobID == "" {
		p.logger.Error("Discarding malformed queue message",
			slog.String("worker_id", workerID),
			slog.String("body", string(delivery.Body)),
		)
		delivery.Nack(false, false)
		return
	}

	job, err := p.jobs.ClaimJob(ctx, msg.JobID, workerID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			// Redelivery of a job some worker already owns or finished.
			delivery.Ack(false)
			return
		}
		p.logger.Error("Failed to claim job, requeueing",
			slog.String("job_id", msg.JobID),
			slog.String("error", err.Error()),
		)
		delivery.Nack(false, true)
		return
	}

	jobCtx := ctx
	var cancel context.CancelFunc
	if p.config.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	result, err := p.handler.Handle(jobCtx, job)
	if err != nil {
		p.settleFailure(ctx, job, err, delivery)
		return
	}

	if err := p.jobs.MarkCompleted(ctx, job.ID, result); err != nil {
		p.logger.Error("Failed to mark job completed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	// Delivery jobs never emit job.completed: the event would fan out
	// into more delivery jobs.
	if p.emitter != nil && job.Type != domain.JobTypeDeliver {
		data := map[string]any{
			"jobId":   job.ID,
			"jobType": job.Type,
			"result":  result,
		}
		if _, err := p.emitter.Emit(ctx, domain.EventJobCompleted, data); err != nil {
			p.logger.Warn("Failed to emit job.completed event",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	delivery.Ack(false)
}

func (p *Pool) settleFailure(ctx context.Context, job *domain.Job, handleErr error, delivery amqp.Delivery) {
	canRetry := p.config.Backoff != nil &&
		domain.IsRetryable(handleErr) &&
		job.Attempt < job.MaxAttempts

	if !canRetry {
		if err := p.jobs.MarkFailed(ctx, job.ID, handleErr.Error()); err != nil {
			p.logger.Error("Failed to mark job failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		p.registry.Inc(metrics.JobsFailed)
		p.logger.Error("Job failed terminally",
			slog.String("job_id", job.ID),
			slog.Int("attempt", job.Attempt),
			slog.String("error", handleErr.Error()),
		)
		delivery.Ack(false)
		return
	}

	// Return the job to queued before requeueing the message so the
	// next claim succeeds.
	if err := p.jobs.MarkRetry(ctx, job.ID, handleErr.Error()); err != nil {
		p.logger.Error("Failed to mark job for retry",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		delivery.Nack(false, true)
		return
	}

	delay := p.config.Backoff(job.Attempt)
	p.logger.Warn("Job attempt failed, retrying",
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Duration("backoff", delay),
		slog.String("error", handleErr.Error()),
	)

	sleepContext(ctx, delay)
	delivery.Nack(false, true)
}

// LinearBackoff grows the delay by base per attempt.
func LinearBackoff(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return time.Duration(attempt) * base
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
