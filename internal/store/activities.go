package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

// ActivityStore is the append-only audit log.
type ActivityStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewActivityStore creates a new ActivityStore instance
func NewActivityStore(db *sqlx.DB, logger *slog.Logger) *ActivityStore {
	return &ActivityStore{
		db:     db,
		logger: logger,
	}
}

// InsertActivity appends one audit record.
func (s *ActivityStore) InsertActivity(ctx context.Context, activity *domain.Activity) error {
	var metadataJSON []byte
	var err error
	if activity.Metadata != nil {
		metadataJSON, err = json.Marshal(activity.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal activity metadata: %w", err)
		}
	}

	query := `
		INSERT INTO activities (
			activity_id, activity_type, property_id, lead_id, metadata, created_at
		) VALUES (
			$1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NOW()
		)
	`

	_, err = s.db.ExecContext(ctx, query,
		activity.ID, activity.Type, activity.PropertyID, activity.LeadID, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	return nil
}
