package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

// DeliveryStore is the delivery ledger: one row per delivery outcome,
// plus dead letters for deliveries that exhausted their retries.
type DeliveryStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewDeliveryStore creates a new DeliveryStore instance
func NewDeliveryStore(db *sqlx.DB, logger *slog.Logger) *DeliveryStore {
	return &DeliveryStore{
		db:     db,
		logger: logger,
	}
}

// InsertAttempt appends a ledger row for one delivery outcome.
func (s *DeliveryStore) InsertAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	query := `
		INSERT INTO delivery_attempts (
			attempt_id, subscription_id, event_type, status, job_id,
			attempts_made, last_error, duration_ms, last_attempt_at,
			is_resolved, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			FALSE, NOW()
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		attempt.ID, attempt.SubscriptionID, attempt.EventType, attempt.Status, attempt.JobID,
		attempt.AttemptsMade, attempt.LastError, attempt.DurationMs, attempt.LastAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery attempt: %w", err)
	}

	return nil
}

// ListAttempts returns ledger rows matching the filter, newest first.
func (s *DeliveryStore) ListAttempts(ctx context.Context, filter domain.DeliveryFilter) ([]domain.DeliveryAttempt, error) {
	builder := sq.Select(
		"attempt_id", "subscription_id", "event_type", "status", "job_id",
		"attempts_made", "last_error", "duration_ms", "last_attempt_at",
		"is_resolved", "replayed_at", "replay_job_id", "created_at",
	).
		From("delivery_attempts").
		PlaceholderFormat(sq.Dollar).
		OrderBy("created_at DESC", "attempt_id DESC").
		Limit(uint64(filter.PageSize + 1))

	builder = applyDeliveryFilter(builder, filter)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build delivery list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.DeliveryAttempt
	for rows.Next() {
		var a domain.DeliveryAttempt
		var lastError, replayJobID sql.NullString
		var replayedAt sql.NullTime

		err := rows.Scan(
			&a.ID, &a.SubscriptionID, &a.EventType, &a.Status, &a.JobID,
			&a.AttemptsMade, &lastError, &a.DurationMs, &a.LastAttemptAt,
			&a.IsResolved, &replayedAt, &replayJobID, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt row: %w", err)
		}

		a.LastError = lastError.String
		a.ReplayJobID = replayJobID.String
		if replayedAt.Valid {
			t := replayedAt.Time
			a.ReplayedAt = &t
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

// CreateDeadLetter records a delivery that exhausted its retries. The
// uniqueness constraint on job_id guarantees at most one dead letter per
// originating job even when the delivery job is redelivered.
func (s *DeliveryStore) CreateDeadLetter(ctx context.Context, dl *domain.DeadLetter) error {
	query := `
		INSERT INTO dead_letters (
			dead_letter_id, job_id, subscription_id, event_type, payload,
			final_error, attempts, is_resolved, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, FALSE, NOW()
		)
		ON CONFLICT (job_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		dl.ID, dl.JobID, dl.SubscriptionID, dl.EventType, dl.Payload,
		dl.FinalError, dl.Attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to create dead letter: %w", err)
	}

	return nil
}

// GetDeadLetter retrieves a dead letter by its ID
func (s *DeliveryStore) GetDeadLetter(ctx context.Context, deadLetterID string) (*domain.DeadLetter, error) {
	query := `
		SELECT dead_letter_id, job_id, subscription_id, event_type, payload,
		       final_error, attempts, is_resolved, replayed_at, replay_job_id,
		       created_at
		FROM dead_letters
		WHERE dead_letter_id = $1
	`

	dl, err := scanDeadLetter(s.db.QueryRowContext(ctx, query, deadLetterID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}

	return dl, nil
}

// ListDeadLetters returns dead letters matching the filter, newest first.
func (s *DeliveryStore) ListDeadLetters(ctx context.Context, filter domain.DeliveryFilter) ([]domain.DeadLetter, error) {
	builder := sq.Select(
		"dead_letter_id", "job_id", "subscription_id", "event_type", "payload",
		"final_error", "attempts", "is_resolved", "replayed_at", "replay_job_id",
		"created_at",
	).
		From("dead_letters").
		PlaceholderFormat(sq.Dollar).
		OrderBy("created_at DESC", "dead_letter_id DESC")

	if filter.PageSize > 0 {
		builder = builder.Limit(uint64(filter.PageSize + 1))
	}

	if filter.SubscriptionID != "" {
		builder = builder.Where(sq.Eq{"subscription_id": filter.SubscriptionID})
	}
	if filter.EventType != "" {
		builder = builder.Where(sq.Eq{"event_type": filter.EventType})
	}
	if filter.IsResolved != nil {
		builder = builder.Where(sq.Eq{"is_resolved": *filter.IsResolved})
	}
	if filter.From != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		builder = builder.Where(sq.LtOrEq{"created_at": *filter.To})
	}
	if filter.Cursor != nil {
		builder = builder.Where(
			sq.Expr("(created_at, dead_letter_id) < (?, ?)", filter.Cursor.CreatedAt, filter.Cursor.ID),
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build dead letter list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []domain.DeadLetter
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter row: %w", err)
		}
		letters = append(letters, *dl)
	}

	return letters, rows.Err()
}

// ResolveDeadLetter marks the dead letter and its failed ledger rows
// resolved after a successful replay.
func (s *DeliveryStore) ResolveDeadLetter(ctx context.Context, deadLetterID, replayJobID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var jobID string
	err = tx.QueryRowContext(ctx, `
		UPDATE dead_letters
		SET is_resolved = TRUE,
		    replayed_at = NOW(),
		    replay_job_id = $1
		WHERE dead_letter_id = $2
		RETURNING job_id
	`, replayJobID, deadLetterID).Scan(&jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrDeadLetterNotFound
		}
		return fmt.Errorf("failed to resolve dead letter: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE delivery_attempts
		SET is_resolved = TRUE,
		    replayed_at = NOW(),
		    replay_job_id = $1
		WHERE job_id = $2 AND status = $3
	`, replayJobID, jobID, domain.DeliveryStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to resolve delivery attempts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resolution: %w", err)
	}

	s.logger.Info("Dead letter resolved",
		slog.String("dead_letter_id", deadLetterID),
		slog.String("replay_job_id", replayJobID),
	)

	return nil
}

// MetricsSummary aggregates ledger counters and delivery latency
// percentiles for the admin metrics endpoint.
type MetricsSummary struct {
	DeliveredTotal     int64    `db:"delivered_total"`
	FailedTotal        int64    `db:"failed_total"`
	UnresolvedFailures int64    `db:"unresolved_failures"`
	LatencyP50Ms       *float64 `db:"latency_p50_ms"`
	LatencyP90Ms       *float64 `db:"latency_p90_ms"`
	LatencyP99Ms       *float64 `db:"latency_p99_ms"`
}

// GetMetricsSummary computes counters and latency percentiles over the
// ledger in one pass.
func (s *DeliveryStore) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $1)                          AS delivered_total,
			COUNT(*) FILTER (WHERE status = $2)                          AS failed_total,
			COUNT(*) FILTER (WHERE status = $2 AND is_resolved = FALSE)  AS unresolved_failures,
			PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY duration_ms)
				FILTER (WHERE status = $1)                               AS latency_p50_ms,
			PERCENTILE_CONT(0.9) WITHIN GROUP (ORDER BY duration_ms)
				FILTER (WHERE status = $1)                               AS latency_p90_ms,
			PERCENTILE_CONT(0.99) WITHIN GROUP (ORDER BY duration_ms)
				FILTER (WHERE status = $1)                               AS latency_p99_ms
		FROM delivery_attempts
	`

	var summary MetricsSummary
	err := s.db.GetContext(ctx, &summary, query,
		domain.DeliveryStatusDelivered, domain.DeliveryStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics summary: %w", err)
	}

	return &summary, nil
}

func applyDeliveryFilter(builder sq.SelectBuilder, filter domain.DeliveryFilter) sq.SelectBuilder {
	if filter.SubscriptionID != "" {
		builder = builder.Where(sq.Eq{"subscription_id": filter.SubscriptionID})
	}
	if filter.EventType != "" {
		builder = builder.Where(sq.Eq{"event_type": filter.EventType})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.IsResolved != nil {
		builder = builder.Where(sq.Eq{"is_resolved": *filter.IsResolved})
	}
	if filter.From != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		builder = builder.Where(sq.LtOrEq{"created_at": *filter.To})
	}
	if filter.Cursor != nil {
		builder = builder.Where(
			sq.Expr("(created_at, attempt_id) < (?, ?)", filter.Cursor.CreatedAt, filter.Cursor.ID),
		)
	}
	return builder
}

func scanDeadLetter(row rowScanner) (*domain.DeadLetter, error) {
	var dl domain.DeadLetter
	var replayJobID sql.NullString
	var replayedAt sql.NullTime

	err := row.Scan(
		&dl.ID, &dl.JobID, &dl.SubscriptionID, &dl.EventType, &dl.Payload,
		&dl.FinalError, &dl.Attempts, &dl.IsResolved, &replayedAt, &replayJobID,
		&dl.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	dl.ReplayJobID = replayJobID.String
	if replayedAt.Valid {
		t := replayedAt.Time
		dl.ReplayedAt = &t
	}

	return &dl, nil
}
