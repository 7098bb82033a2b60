package domain

import "time"

// Job status constants
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job type constants, one durable queue per type
const (
	JobTypeIngest    = "scrape.ingest"
	JobTypeEnrich    = "record.enrich"
	JobTypeMatchmake = "match.run"
	JobTypeDeliver   = "webhook.deliver"
)

// Job is a row in the job store. A job is mutated only by the worker that
// claimed it; attempt increases monotonically and terminal status is
// completed or failed.
type Job struct {
	ID             string         `db:"job_id"`
	Type           string         `db:"job_type"`
	Payload        string         `db:"payload"`
	Status         string         `db:"status"`
	Attempt        int            `db:"attempt"`
	MaxAttempts    int            `db:"max_attempts"`
	PreviousErrors []string       `db:"-"`
	Result         map[string]any `db:"-"`
	ErrorMessage   string         `db:"error_message"`
	StartedAt      *time.Time     `db:"started_at"`
	FinishedAt     *time.Time     `db:"finished_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// IngestPayload is the payload of a scrape.ingest job.
type IngestPayload struct {
	Source  string   `json:"source"`
	Zip     string   `json:"zip"`
	Filters []string `json:"filters,omitempty"`
}

// EnrichPayload is the payload of a record.enrich job.
type EnrichPayload struct {
	RecordID string `json:"record_id"`
}

// MatchmakePayload is the payload of a match.run job. TriggeredBy records
// job provenance ("auto" or "manual") and is deliberately a separate field
// from the Source record filter.
type MatchmakePayload struct {
	MinScore    *int   `json:"min_score,omitempty"`
	Source      string `json:"source,omitempty"`
	RecordID    string `json:"record_id,omitempty"`
	TriggeredBy string `json:"triggered_by,omitempty"`
}

// DeliverPayload is the payload of a webhook.deliver job. FailureID is set
// when the job is a replay of a dead-lettered delivery. ReplayMode is
// carried for auditing but the worker does not branch on it.
type DeliverPayload struct {
	SubscriptionID string         `json:"subscription_id"`
	EventType      string         `json:"event_type"`
	Data           map[string]any `json:"data"`
	FailureID      string         `json:"failure_id,omitempty"`
	ReplayMode     string         `json:"replay_mode,omitempty"`
}
