package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/metrics"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/store"
)

// MatchCounter counts records satisfying a matchmaking filter.
// Implemented by store.RecordStore.
type MatchCounter interface {
	CountMatches(ctx context.Context, filter store.MatchFilter) (int, error)
}

// MatchmakeHandler runs match.run jobs: count the records satisfying
// the job's filter and publish the outcome. Matchmaking jobs are not
// retried; a failed run is rerun by whoever requested it.
type MatchmakeHandler struct {
	records    MatchCounter
	emitter    EventEmitter
	activities ActivityWriter
	registry   *metrics.Registry
	logger     *slog.Logger
}

// NewMatchmakeHandler creates a new MatchmakeHandler instance
func NewMatchmakeHandler(
	records MatchCounter,
	emitter EventEmitter,
	activities ActivityWriter,
	registry *metrics.Registry,
	logger *slog.Logger,
) *MatchmakeHandler {
	return &MatchmakeHandler{
		records:    records,
		emitter:    emitter,
		activities: activities,
		registry:   registry,
		logger:     logger,
	}
}

// Handle executes one matchmaking job.
func (h *MatchmakeHandler) Handle(ctx context.Context, job *domain.Job) (map[string]any, error) {
	var payload domain.MatchmakePayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", domain.ErrClassValidation, domain.ErrInvalidPayload, err)
	}

	// The provenance marker is never a record source; only allow-listed
	// sources may be used as filters.
	if payload.Source != "" && !domain.IsAllowedScrapeSource(payload.Source) {
		return nil, fmt.Errorf("%s: invalid source filter %q", domain.ErrClassValidation, payload.Source)
	}

	count, err := h.records.CountMatches(ctx, store.MatchFilter{
		MinScore: payload.MinScore,
		Source:   payload.Source,
		RecordID: payload.RecordID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run matchmaking: %w", err)
	}

	triggeredBy := payload.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "manual"
	}
	completedAt := time.Now().UTC().Format(time.RFC3339)

	h.registry.Inc(metrics.MatchesRun)
	h.logger.Info("Matchmaking completed",
		slog.String("job_id", job.ID),
		slog.Int("matched", count),
		slog.String("triggered_by", triggeredBy),
	)

	eventData := map[string]any{
		"jobId":        job.ID,
		"matchedCount": count,
		"triggeredBy":  triggeredBy,
		"timestamp":    completedAt,
	}
	if payload.RecordID != "" {
		eventData["recordId"] = payload.RecordID
	}
	if payload.Source != "" {
		eventData["source"] = payload.Source
	}
	if payload.MinScore != nil {
		eventData["minScore"] = *payload.MinScore
	}
	if _, err := h.emitter.Emit(ctx, domain.EventMatchmakingCompleted, eventData); err != nil {
		h.logger.Warn("Failed to emit matchmaking.completed event",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	activity := &domain.Activity{
		ID:         uuid.New().String(),
		Type:       domain.ActivityMatchmakingCompleted,
		PropertyID: payload.RecordID,
		Metadata: map[string]any{
			"matchedCount": count,
			"triggeredBy":  triggeredBy,
			"timestamp":    completedAt,
		},
	}
	if err := h.activities.InsertActivity(ctx, activity); err != nil {
		h.logger.Warn("Failed to record matchmaking activity",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	return map[string]any{
		"matchedCount": count,
		"triggeredBy":  triggeredBy,
		"timestamp":    completedAt,
	}, nil
}
