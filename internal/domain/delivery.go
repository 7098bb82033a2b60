package domain

import "time"

// Delivery attempt outcomes
const (
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
)

// DeliveryAttempt is one ledger row: the outcome of a delivery job.
// Rows are append-only; only failed rows are later mutated, and only to
// mark them resolved after a successful replay.
type DeliveryAttempt struct {
	ID             string     `db:"attempt_id"`
	SubscriptionID string     `db:"subscription_id"`
	EventType      string     `db:"event_type"`
	Status         string     `db:"status"`
	JobID          string     `db:"job_id"`
	AttemptsMade   int        `db:"attempts_made"`
	LastError      string     `db:"last_error"`
	DurationMs     int64      `db:"duration_ms"`
	LastAttemptAt  time.Time  `db:"last_attempt_at"`
	IsResolved     bool       `db:"is_resolved"`
	ReplayedAt     *time.Time `db:"replayed_at"`
	ReplayJobID    string     `db:"replay_job_id"`
	CreatedAt      time.Time  `db:"created_at"`
}

// DeadLetter records a delivery that exhausted its retries. One per
// originating job, never deleted; replay marks it resolved.
type DeadLetter struct {
	ID             string     `db:"dead_letter_id"`
	JobID          string     `db:"job_id"`
	SubscriptionID string     `db:"subscription_id"`
	EventType      string     `db:"event_type"`
	Payload        string     `db:"payload"`
	FinalError     string     `db:"final_error"`
	Attempts       int        `db:"attempts"`
	IsResolved     bool       `db:"is_resolved"`
	ReplayedAt     *time.Time `db:"replayed_at"`
	ReplayJobID    string     `db:"replay_job_id"`
	CreatedAt      time.Time  `db:"created_at"`
}

// DeliveryFilter narrows ledger and dead-letter listings.
type DeliveryFilter struct {
	SubscriptionID string
	EventType      string
	Status         string
	IsResolved     *bool
	From           *time.Time
	To             *time.Time
	PageSize       int
	Cursor         *ListCursor
}

// ListCursor is an opaque (created_at, id) pagination position.
type ListCursor struct {
	CreatedAt time.Time
	ID        string
}
