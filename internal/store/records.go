package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

// RecordStore persists scraped property records. The uniqueness
// constraint on (source, zip, address_norm) is the sole concurrency
// primitive for dedup: insert and catch the conflict, never lock and
// check.
type RecordStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewRecordStore creates a new RecordStore instance
func NewRecordStore(db *sqlx.DB, logger *slog.Logger) *RecordStore {
	return &RecordStore{
		db:     db,
		logger: logger,
	}
}

// InsertOrRefresh atomically inserts a record keyed by (source, zip,
// normalized address). A uniqueness conflict is not an error: the
// existing record's payload is refreshed in place and inserted=false is
// returned so the caller can count the dedup.
func (s *RecordStore) InsertOrRefresh(ctx context.Context, rec *domain.ScrapedRecord) (inserted bool, recordID string, err error) {
	insertQuery := `
		INSERT INTO scraped_records (
			record_id, source, zip, address, address_norm, payload,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW()
		)
		ON CONFLICT (source, zip, address_norm) DO NOTHING
		RETURNING record_id
	`

	err = s.db.QueryRowContext(ctx, insertQuery,
		rec.ID, rec.Source, rec.Zip, rec.Address, rec.AddressNorm, rec.Payload,
	).Scan(&recordID)

	if err == nil {
		return true, recordID, nil
	}
	if err != sql.ErrNoRows {
		return false, "", fmt.Errorf("failed to insert record: %w", err)
	}

	// Conflict: refresh the known record's payload in place.
	refreshQuery := `
		UPDATE scraped_records
		SET payload = $1,
		    updated_at = NOW()
		WHERE source = $2 AND zip = $3 AND address_norm = $4
		RETURNING record_id
	`

	err = s.db.QueryRowContext(ctx, refreshQuery,
		rec.Payload, rec.Source, rec.Zip, rec.AddressNorm,
	).Scan(&recordID)
	if err != nil {
		return false, "", fmt.Errorf("failed to refresh deduplicated record: %w", err)
	}

	s.logger.Debug("Record deduplicated, payload refreshed",
		slog.String("record_id", recordID),
		slog.String("source", rec.Source),
		slog.String("zip", rec.Zip),
	)

	return false, recordID, nil
}

// GetRecord retrieves a record by its ID
func (s *RecordStore) GetRecord(ctx context.Context, recordID string) (*domain.ScrapedRecord, error) {
	query := `
		SELECT record_id, source, zip, address, address_norm, payload,
		       score, tags, condition, auto_matched, enriched_at,
		       created_at, updated_at
		FROM scraped_records
		WHERE record_id = $1
	`

	var rec domain.ScrapedRecord
	var score sql.NullInt64
	var tags pq.StringArray
	var condition sql.NullString
	var enrichedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, recordID).Scan(
		&rec.ID, &rec.Source, &rec.Zip, &rec.Address, &rec.AddressNorm, &rec.Payload,
		&score, &tags, &condition, &rec.AutoMatched, &enrichedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	if score.Valid {
		v := int(score.Int64)
		rec.Score = &v
	}
	rec.Tags = []string(tags)
	rec.Condition = condition.String
	if enrichedAt.Valid {
		t := enrichedAt.Time
		rec.EnrichedAt = &t
	}

	return &rec, nil
}

// SaveEnrichment persists the score/tag/condition annotation. The guard
// on score IS NULL keeps a redelivered enrichment job from overwriting
// an earlier result.
func (s *RecordStore) SaveEnrichment(ctx context.Context, recordID string, score int, tags []string, condition string) error {
	query := `
		UPDATE scraped_records
		SET score = $1,
		    tags = $2,
		    condition = $3,
		    enriched_at = NOW(),
		    updated_at = NOW()
		WHERE record_id = $4 AND score IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, score, pq.Array(tags), condition, recordID)
	if err != nil {
		return fmt.Errorf("failed to save enrichment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Enrichment not saved - record already enriched",
			slog.String("record_id", recordID),
		)
	}

	return nil
}

// MarkAutoMatched flips the auto-trigger flag exactly once. Returns false
// when another enrichment run already triggered matchmaking for this
// record.
func (s *RecordStore) MarkAutoMatched(ctx context.Context, recordID string) (bool, error) {
	query := `
		UPDATE scraped_records
		SET auto_matched = TRUE,
		    updated_at = NOW()
		WHERE record_id = $1 AND auto_matched = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, recordID)
	if err != nil {
		return false, fmt.Errorf("failed to mark record auto-matched: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// MatchFilter translates a matchmaking job's filter to a count query.
type MatchFilter struct {
	MinScore *int
	Source   string
	RecordID string
}

// CountMatches counts records satisfying the filter.
func (s *RecordStore) CountMatches(ctx context.Context, filter MatchFilter) (int, error) {
	builder := sq.Select("COUNT(*)").
		From("scraped_records").
		PlaceholderFormat(sq.Dollar)

	if filter.MinScore != nil {
		builder = builder.Where(sq.GtOrEq{"score": *filter.MinScore})
	}
	if filter.Source != "" {
		builder = builder.Where(sq.Eq{"source": filter.Source})
	}
	if filter.RecordID != "" {
		builder = builder.Where(sq.Eq{"record_id": filter.RecordID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build match count query: %w", err)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}

	return count, nil
}
