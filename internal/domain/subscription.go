package domain

import "time"

// Event types emitted by the pipeline.
const (
	EventJobCompleted         = "job.completed"
	EventPropertyNew          = "property.new"
	EventMatchmakingCompleted = "matchmaking.completed"
	EventCRMActivity          = "crm.activity"
)

// WebhookSubscription is a subscriber endpoint. The delivery pipeline
// treats subscriptions as read-only; they are managed via the admin API.
// Secret rotation is create-new-then-disable-old, never an in-place
// secret mutation.
type WebhookSubscription struct {
	ID            string    `db:"subscription_id"`
	TargetURL     string    `db:"target_url"`
	EventTypes    []string  `db:"-"`
	SigningSecret string    `db:"signing_secret"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// WantsEvent reports whether the subscription is interested in eventType.
func (s *WebhookSubscription) WantsEvent(eventType string) bool {
	for _, e := range s.EventTypes {
		if e == eventType {
			return true
		}
	}
	return false
}
