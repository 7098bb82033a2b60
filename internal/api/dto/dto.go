package dto

// CreateIngestJobRequest is the body of POST /api/v1/jobs/ingest.
type CreateIngestJobRequest struct {
	Source  string   `json:"source" binding:"required"`
	Zip     string   `json:"zip" binding:"required"`
	Filters []string `json:"filters"`
}

// CreateMatchmakingJobRequest is the body of POST /api/v1/jobs/matchmake.
type CreateMatchmakingJobRequest struct {
	MinScore *int   `json:"min_score"`
	Source   string `json:"source"`
	RecordID string `json:"record_id"`
}

// CreateJobResponse acknowledges an accepted job.
type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ListJobsRequest holds the query parameters of GET /api/v1/jobs.
type ListJobsRequest struct {
	JobType  string `form:"job_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// JobDTO is the wire representation of a job.
type JobDTO struct {
	JobID          string         `json:"job_id"`
	JobType        string         `json:"job_type"`
	Payload        string         `json:"payload"`
	Status         string         `json:"status"`
	Attempt        int            `json:"attempt"`
	MaxAttempts    int            `json:"max_attempts"`
	PreviousErrors []string       `json:"previous_errors,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	StartedAt      string         `json:"started_at,omitempty"`
	FinishedAt     string         `json:"finished_at,omitempty"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
}

// ListJobsResponse pages through jobs.
type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// CreateSubscriptionRequest is the body of POST /api/v1/webhooks/subscriptions.
// An empty secret is generated server-side. This is the only response that
// ever carries the signing secret.
type CreateSubscriptionRequest struct {
	TargetURL     string   `json:"target_url" binding:"required"`
	EventTypes    []string `json:"event_types" binding:"required"`
	SigningSecret string   `json:"signing_secret"`
}

// UpdateSubscriptionRequest mutates a subscription. The signing secret is
// immutable; a non-empty secret here is rejected.
type UpdateSubscriptionRequest struct {
	TargetURL     string   `json:"target_url" binding:"required"`
	EventTypes    []string `json:"event_types" binding:"required"`
	IsActive      *bool    `json:"is_active" binding:"required"`
	SigningSecret string   `json:"signing_secret"`
}

// SubscriptionDTO is the wire representation of a subscription. The
// signing secret is omitted everywhere except creation.
type SubscriptionDTO struct {
	SubscriptionID string   `json:"subscription_id"`
	TargetURL      string   `json:"target_url"`
	EventTypes     []string `json:"event_types"`
	SigningSecret  string   `json:"signing_secret,omitempty"`
	IsActive       bool     `json:"is_active"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

// ListSubscriptionsResponse wraps the subscription collection.
type ListSubscriptionsResponse struct {
	Subscriptions []SubscriptionDTO `json:"subscriptions"`
}

// VerifyEndpointRequest is the body of POST /api/v1/webhooks/verify.
// It challenges an arbitrary URL before any subscription exists; an
// empty secret is generated per challenge.
type VerifyEndpointRequest struct {
	TargetURL     string `json:"target_url" binding:"required"`
	SigningSecret string `json:"signing_secret"`
}

// VerifyResponse reports the outcome of a one-off signed challenge.
type VerifyResponse struct {
	SubscriptionID string `json:"subscription_id,omitempty"`
	Verified       bool   `json:"verified"`
	StatusCode     int    `json:"status_code,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ListDeliveriesRequest holds the query parameters of
// GET /api/v1/webhooks/deliveries.
type ListDeliveriesRequest struct {
	SubscriptionID string `form:"subscription_id"`
	EventType      string `form:"event_type"`
	Status         string `form:"status"`
	Resolved       *bool  `form:"resolved"`
	From           string `form:"from"`
	To             string `form:"to"`
	PageSize       int    `form:"page_size"`
	Cursor         string `form:"cursor"`
}

// DeliveryDTO is the wire representation of a delivery ledger row.
type DeliveryDTO struct {
	AttemptID      string `json:"attempt_id"`
	SubscriptionID string `json:"subscription_id"`
	EventType      string `json:"event_type"`
	Status         string `json:"status"`
	JobID          string `json:"job_id"`
	AttemptsMade   int    `json:"attempts_made"`
	LastError      string `json:"last_error,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
	LastAttemptAt  string `json:"last_attempt_at"`
	IsResolved     bool   `json:"is_resolved"`
	ReplayedAt     string `json:"replayed_at,omitempty"`
	ReplayJobID    string `json:"replay_job_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ListDeliveriesResponse pages through ledger rows.
type ListDeliveriesResponse struct {
	Deliveries []DeliveryDTO `json:"deliveries"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// DeadLetterDTO is the wire representation of a dead letter.
type DeadLetterDTO struct {
	DeadLetterID   string `json:"dead_letter_id"`
	JobID          string `json:"job_id"`
	SubscriptionID string `json:"subscription_id"`
	EventType      string `json:"event_type"`
	FinalError     string `json:"final_error"`
	Attempts       int    `json:"attempts"`
	IsResolved     bool   `json:"is_resolved"`
	ReplayedAt     string `json:"replayed_at,omitempty"`
	ReplayJobID    string `json:"replay_job_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ListDeadLettersResponse pages through dead letters.
type ListDeadLettersResponse struct {
	DeadLetters []DeadLetterDTO `json:"dead_letters"`
	NextCursor  string          `json:"next_cursor,omitempty"`
}

// ReplayResponse acknowledges a single dead-letter replay.
type ReplayResponse struct {
	DeadLetterID string `json:"dead_letter_id"`
	ReplayJobID  string `json:"replay_job_id"`
	Status       string `json:"status"`
}

// BulkReplayRequest narrows the dead letters replayed by
// POST /api/v1/webhooks/dead-letters/replay.
type BulkReplayRequest struct {
	SubscriptionID string `json:"subscription_id"`
	EventType      string `json:"event_type"`
}

// BulkReplayResponse reports how many unresolved dead letters were
// requeued.
type BulkReplayResponse struct {
	ReplayedCount int      `json:"replayed_count"`
	ReplayJobIDs  []string `json:"replay_job_ids"`
}

// LatencyDTO carries delivery latency percentiles in milliseconds.
type LatencyDTO struct {
	P50 *float64 `json:"p50"`
	P90 *float64 `json:"p90"`
	P99 *float64 `json:"p99"`
}

// MetricsResponse is the body of GET /api/v1/metrics.
type MetricsResponse struct {
	DeliveredTotal      int64      `json:"delivered_total"`
	FailedTotal         int64      `json:"failed_total"`
	UnresolvedFailures  int64      `json:"unresolved_failures"`
	ActiveSubscriptions int        `json:"active_subscriptions"`
	DeliveryLatencyMs   LatencyDTO `json:"delivery_latency_ms"`
}
