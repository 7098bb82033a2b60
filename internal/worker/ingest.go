package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/metrics"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/queue"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/scrape"
)

// RecordSink is the slice of the record store ingestion writes to.
type RecordSink interface {
	InsertOrRefresh(ctx context.Context, rec *domain.ScrapedRecord) (inserted bool, recordID string, err error)
}

// JobEnqueuer enqueues follow-up jobs. Implemented by queue.Enqueuer.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, maxAttempts int) (string, error)
}

var _ JobEnqueuer = (*queue.Enqueuer)(nil)

// IngestHandler runs scrape.ingest jobs: fetch listings through the
// source's adapter, persist them with dedup, and enqueue enrichment for
// every new record.
type IngestHandler struct {
	adapters          *scrape.Registry
	records           RecordSink
	enqueuer          JobEnqueuer
	emitter           EventEmitter
	registry          *metrics.Registry
	enrichMaxAttempts int
	logger            *slog.Logger
}

// NewIngestHandler creates a new IngestHandler instance
func NewIngestHandler(
	adapters *scrape.Registry,
	records RecordSink,
	enqueuer JobEnqueuer,
	emitter EventEmitter,
	registry *metrics.Registry,
	enrichMaxAttempts int,
	logger *slog.Logger,
) *IngestHandler {
	if enrichMaxAttempts < 1 {
		enrichMaxAttempts = 1
	}
	return &IngestHandler{
		adapters:          adapters,
		records:           records,
		enqueuer:          enqueuer,
		emitter:           emitter,
		registry:          registry,
		enrichMaxAttempts: enrichMaxAttempts,
		logger:            logger,
	}
}

// Handle executes one ingestion job. Adapter and persistence failures
// are retryable; payload validation failures are terminal.
func (h *IngestHandler) Handle(ctx context.Context, job *domain.Job) (map[string]any, error) {
	var payload domain.IngestPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", domain.ErrClassValidation, domain.ErrInvalidPayload, err)
	}

	if !domain.IsAllowedScrapeSource(payload.Source) {
		return nil, fmt.Errorf("%s: invalid source %q", domain.ErrClassValidation, payload.Source)
	}
	if payload.Zip == "" {
		return nil, fmt.Errorf("%s: missing required field zip", domain.ErrClassValidation)
	}

	adapter, ok := h.adapters.Get(payload.Source)
	if !ok {
		return nil, fmt.Errorf("%s: no adapter registered for source %q", domain.ErrClassValidation, payload.Source)
	}

	fetched, err := adapter.Fetch(ctx, payload.Zip, parseFilters(payload.Filters))
	if err != nil {
		class := scrape.ClassifyError(err)
		wrapped := fmt.Errorf("%s: %w", class, err)
		if class == domain.ErrClassValidation {
			return nil, wrapped
		}
		return nil, domain.NewRetryableError(wrapped)
	}

	scrapedCount := 0
	dedupedCount := 0
	var newRecordIDs []string

	for _, item := range fetched.Items {
		itemPayload, err := json.Marshal(item.Payload)
		if err != nil {
			fetched.Errors = append(fetched.Errors, fmt.Sprintf("%s: %v", item.Address, err))
			continue
		}

		rec := &domain.ScrapedRecord{
			ID:          uuid.New().String(),
			Source:      payload.Source,
			Zip:         item.Zip,
			Address:     item.Address,
			AddressNorm: domain.NormalizeAddress(item.Address),
			Payload:     string(itemPayload),
		}

		inserted, recordID, err := h.records.InsertOrRefresh(ctx, rec)
		if err != nil {
			return nil, domain.NewRetryableError(
				fmt.Errorf("%s: failed to persist record: %w", domain.ErrClassUpstream, err))
		}

		// Every fetched item counts as scraped; dedup only skips the
		// follow-up work.
		scrapedCount++
		if !inserted {
			dedupedCount++
			h.registry.Inc(metrics.RecordsDeduped)
			continue
		}

		newRecordIDs = append(newRecordIDs, recordID)
		h.registry.Inc(metrics.RecordsIngested)

		if _, err := h.enqueuer.Enqueue(ctx, domain.JobTypeEnrich, domain.EnrichPayload{RecordID: recordID}, h.enrichMaxAttempts); err != nil {
			h.logger.Error("Failed to enqueue enrichment job",
				slog.String("record_id", recordID),
				slog.String("error", err.Error()),
			)
		}

		if _, err := h.emitter.Emit(ctx, domain.EventPropertyNew, map[string]any{
			"recordId": recordID,
			"source":   payload.Source,
			"zip":      item.Zip,
			"address":  item.Address,
		}); err != nil {
			h.logger.Warn("Failed to emit property.new event",
				slog.String("record_id", recordID),
				slog.String("error", err.Error()),
			)
		}
	}

	h.logger.Info("Ingestion completed",
		slog.String("job_id", job.ID),
		slog.String("source", payload.Source),
		slog.String("zip", payload.Zip),
		slog.Int("scraped", scrapedCount),
		slog.Int("deduped", dedupedCount),
	)

	result := map[string]any{
		"scrapedCount": scrapedCount,
		"dedupedCount": dedupedCount,
		"recordIds":    newRecordIDs,
	}
	if len(fetched.Errors) > 0 {
		result["itemErrors"] = fetched.Errors
	}
	if fetched.Meta != nil {
		result["meta"] = fetched.Meta
	}

	return result, nil
}

// parseFilters converts "key=value" filter strings to the adapter's
// filter map. Bare entries become boolean flags.
func parseFilters(filters []string) map[string]any {
	if len(filters) == 0 {
		return nil
	}

	out := make(map[string]any, len(filters))
	for _, f := range filters {
		if key, value, ok := strings.Cut(f, "="); ok {
			out[strings.TrimSpace(key)] = strings.TrimSpace(value)
		} else if f != "" {
			out[strings.TrimSpace(f)] = true
		}
	}
	return out
}
