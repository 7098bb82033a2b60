package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

// SubscriptionStore manages webhook subscriptions. The delivery pipeline
// only ever reads them; mutation happens through the admin API.
type SubscriptionStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSubscriptionStore creates a new SubscriptionStore instance
func NewSubscriptionStore(db *sqlx.DB, logger *slog.Logger) *SubscriptionStore {
	return &SubscriptionStore{
		db:     db,
		logger: logger,
	}
}

// CreateSubscription inserts a new subscription.
func (s *SubscriptionStore) CreateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	query := `
		INSERT INTO webhook_subscriptions (
			subscription_id, target_url, event_types, signing_secret,
			is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW(), NOW()
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		sub.ID, sub.TargetURL, pq.Array(sub.EventTypes), sub.SigningSecret, sub.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// GetSubscription retrieves a subscription by its ID
func (s *SubscriptionStore) GetSubscription(ctx context.Context, subscriptionID string) (*domain.WebhookSubscription, error) {
	query := `
		SELECT subscription_id, target_url, event_types, signing_secret,
		       is_active, created_at, updated_at
		FROM webhook_subscriptions
		WHERE subscription_id = $1
	`

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, subscriptionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// ListSubscriptions returns all subscriptions, newest first.
func (s *SubscriptionStore) ListSubscriptions(ctx context.Context) ([]domain.WebhookSubscription, error) {
	query := `
		SELECT subscription_id, target_url, event_types, signing_secret,
		       is_active, created_at, updated_at
		FROM webhook_subscriptions
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}

	return subs, rows.Err()
}

// ListActiveForEvent returns every active subscription interested in the
// given event type.
func (s *SubscriptionStore) ListActiveForEvent(ctx context.Context, eventType string) ([]domain.WebhookSubscription, error) {
	query := `
		SELECT subscription_id, target_url, event_types, signing_secret,
		       is_active, created_at, updated_at
		FROM webhook_subscriptions
		WHERE is_active = TRUE AND $1 = ANY(event_types)
	`

	rows, err := s.db.QueryContext(ctx, query, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for event: %w", err)
	}
	defer rows.Close()

	var subs []domain.WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}

	return subs, rows.Err()
}

// UpdateSubscription updates target URL, event types and active flag.
// The signing secret is immutable; rotation is create-new, disable-old.
func (s *SubscriptionStore) UpdateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	query := `
		UPDATE webhook_subscriptions
		SET target_url = $1,
		    event_types = $2,
		    is_active = $3,
		    updated_at = NOW()
		WHERE subscription_id = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		sub.TargetURL, pq.Array(sub.EventTypes), sub.IsActive, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrSubscriptionNotFound
	}

	return nil
}

// DeleteSubscription removes a subscription.
func (s *SubscriptionStore) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM webhook_subscriptions WHERE subscription_id = $1`, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrSubscriptionNotFound
	}

	return nil
}

// CountActive returns the number of active subscriptions.
func (s *SubscriptionStore) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM webhook_subscriptions WHERE is_active = TRUE`)
	if err != nil {
		return 0, fmt.Errorf("failed to count active subscriptions: %w", err)
	}
	return count, nil
}

func scanSubscription(row rowScanner) (*domain.WebhookSubscription, error) {
	var sub domain.WebhookSubscription
	var eventTypes pq.StringArray

	err := row.Scan(
		&sub.ID,
		&sub.TargetURL,
		&eventTypes,
		&sub.SigningSecret,
		&sub.IsActive,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.EventTypes = []string(eventTypes)
	return &sub, nil
}
