package domain

import "time"

// Activity type constants
const (
	ActivityRecordEnriched       = "record.enriched"
	ActivityMatchmakingCompleted = "matchmaking.completed"
)

// Activity is an append-only audit record. Writes are best-effort side
// effects of worker success and never fail the originating job.
type Activity struct {
	ID         string         `db:"activity_id"`
	Type       string         `db:"activity_type"`
	PropertyID string         `db:"property_id"`
	LeadID     string         `db:"lead_id"`
	Metadata   map[string]any `db:"-"`
	CreatedAt  time.Time      `db:"created_at"`
}
