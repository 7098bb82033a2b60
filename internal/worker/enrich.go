package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/metrics"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/scoring"
)

// AutoMatchScoreThreshold triggers matchmaking for any record scoring at
// or above it.
const AutoMatchScoreThreshold = 85

// RecordRepo is the slice of the record store enrichment needs.
type RecordRepo interface {
	GetRecord(ctx context.Context, recordID string) (*domain.ScrapedRecord, error)
	SaveEnrichment(ctx context.Context, recordID string, score int, tags []string, condition string) error
	MarkAutoMatched(ctx context.Context, recordID string) (bool, error)
}

// ActivityWriter appends audit records. Implemented by
// store.ActivityStore.
type ActivityWriter interface {
	InsertActivity(ctx context.Context, activity *domain.Activity) error
}

// EnrichHandler runs record.enrich jobs: compute the score/tag/condition
// annotation for a record and fire the matchmaking auto-trigger for
// strong leads. Enrichment is idempotent; re-running it on an already
// enriched record is a no-op.
type EnrichHandler struct {
	records    RecordRepo
	scorer     *scoring.PropertyScorer
	enqueuer   JobEnqueuer
	emitter    EventEmitter
	activities ActivityWriter
	registry   *metrics.Registry
	logger     *slog.Logger
}

// NewEnrichHandler creates a new EnrichHandler instance
func NewEnrichHandler(
	records RecordRepo,
	scorer *scoring.PropertyScorer,
	enqueuer JobEnqueuer,
	emitter EventEmitter,
	activities ActivityWriter,
	registry *metrics.Registry,
	logger *slog.Logger,
) *EnrichHandler {
	return &EnrichHandler{
		records:    records,
		scorer:     scorer,
		enqueuer:   enqueuer,
		emitter:    emitter,
		activities: activities,
		registry:   registry,
		logger:     logger,
	}
}

// Handle executes one enrichment job.
func (h *EnrichHandler) Handle(ctx context.Context, job *domain.Job) (map[string]any, error) {
	var payload domain.EnrichPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", domain.ErrClassValidation, domain.ErrInvalidPayload, err)
	}
	if payload.RecordID == "" {
		return nil, fmt.Errorf("%s: missing required field record_id", domain.ErrClassValidation)
	}

	rec, err := h.records.GetRecord(ctx, payload.RecordID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", domain.ErrClassValidation, err)
		}
		return nil, domain.NewRetryableError(
			fmt.Errorf("failed to load record %s: %w", payload.RecordID, err))
	}

	if rec.Enriched() {
		h.logger.Info("Record already enriched, skipping",
			slog.String("record_id", rec.ID),
		)
		result := map[string]any{"recordId": rec.ID, "skipped": true}
		if rec.Score != nil {
			result["score"] = *rec.Score
		}
		return result, nil
	}

	annotation, err := h.scorer.Annotate(rec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", domain.ErrClassValidation, err)
	}

	if err := h.records.SaveEnrichment(ctx, rec.ID, annotation.Score, annotation.Tags, annotation.Condition); err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("failed to save enrichment: %w", err))
	}
	h.registry.Inc(metrics.RecordsEnriched)

	autoTriggered := h.maybeTriggerMatchmaking(ctx, rec.ID, annotation)
	h.recordSideEffects(ctx, rec, annotation, autoTriggered)

	h.logger.Info("Record enriched",
		slog.String("record_id", rec.ID),
		slog.Int("score", annotation.Score),
		slog.String("condition", annotation.Condition),
		slog.Bool("auto_triggered", autoTriggered),
	)

	return map[string]any{
		"recordId":      rec.ID,
		"score":         annotation.Score,
		"tags":          annotation.Tags,
		"condition":     annotation.Condition,
		"autoTriggered": autoTriggered,
	}, nil
}

// maybeTriggerMatchmaking fires at most one auto matchmaking job per
// record. The auto_matched flag is the once-only guard.
func (h *EnrichHandler) maybeTriggerMatchmaking(ctx context.Context, recordID string, annotation scoring.Annotation) bool {
	strongLead := annotation.Score >= AutoMatchScoreThreshold ||
		containsTag(annotation.Tags, scoring.TagHighIntent) ||
		containsTag(annotation.Tags, scoring.TagUrgentSeller)
	if !strongLead {
		return false
	}

	first, err := h.records.MarkAutoMatched(ctx, recordID)
	if err != nil {
		h.logger.Error("Failed to mark record auto-matched",
			slog.String("record_id", recordID),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !first {
		return false
	}

	matchPayload := domain.MatchmakePayload{
		RecordID:    recordID,
		TriggeredBy: domain.ProvenanceAuto,
	}
	if _, err := h.enqueuer.Enqueue(ctx, domain.JobTypeMatchmake, matchPayload, 1); err != nil {
		h.logger.Error("Failed to enqueue auto matchmaking job",
			slog.String("record_id", recordID),
			slog.String("error", err.Error()),
		)
		return false
	}

	return true
}

func (h *EnrichHandler) recordSideEffects(ctx context.Context, rec *domain.ScrapedRecord, annotation scoring.Annotation, autoTriggered bool) {
	activity := &domain.Activity{
		ID:         uuid.New().String(),
		Type:       domain.ActivityRecordEnriched,
		PropertyID: rec.ID,
		Metadata: map[string]any{
			"score":         annotation.Score,
			"tags":          annotation.Tags,
			"condition":     annotation.Condition,
			"autoTriggered": autoTriggered,
		},
	}
	if err := h.activities.InsertActivity(ctx, activity); err != nil {
		h.logger.Warn("Failed to record enrichment activity",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	data := map[string]any{
		"activityType": domain.ActivityRecordEnriched,
		"recordId":     rec.ID,
		"source":       rec.Source,
		"score":        annotation.Score,
		"tags":         annotation.Tags,
	}
	if _, err := h.emitter.Emit(ctx, domain.EventCRMActivity, data); err != nil {
		h.logger.Warn("Failed to emit crm.activity event",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
