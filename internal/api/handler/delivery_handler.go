package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/api/dto"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

// Replay provenance markers carried on replayed delivery jobs.
const (
	ReplayModeSingle = "single"
	ReplayModeBulk   = "bulk"
)

// DeliveryHandler handles delivery ledger and dead-letter requests
type DeliveryHandler struct {
	logger     *slog.Logger
	deliveries DeliveryReader
	enqueuer   JobEnqueuer
}

// NewDeliveryHandler creates a new DeliveryHandler instance
func NewDeliveryHandler(deps *Dependencies) *DeliveryHandler {
	return &DeliveryHandler{
		logger:     deps.Logger,
		deliveries: deps.Deliveries,
		enqueuer:   deps.Enqueuer,
	}
}

// ListDeliveries handles GET /api/v1/webhooks/deliveries
// Lists ledger rows with filtering and cursor pagination.
func (h *DeliveryHandler) ListDeliveries(c *gin.Context) {
	var req dto.ListDeliveriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	filter, err := buildDeliveryFilter(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	attempts, err := h.deliveries.ListAttempts(c.Request.Context(), *filter)
	if err != nil {
		h.logger.Error("Failed to list deliveries", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list deliveries",
		})
		return
	}

	hasMore := len(attempts) > filter.PageSize
	if hasMore {
		attempts = attempts[:filter.PageSize]
	}

	response := dto.ListDeliveriesResponse{
		Deliveries: make([]dto.DeliveryDTO, len(attempts)),
	}
	for i := range attempts {
		response.Deliveries[i] = deliveryToDTO(&attempts[i])
	}

	if hasMore {
		last := attempts[len(attempts)-1]
		response.NextCursor = EncodeCursor(&domain.ListCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	c.JSON(http.StatusOK, response)
}

// ListDeadLetters handles GET /api/v1/webhooks/dead-letters
func (h *DeliveryHandler) ListDeadLetters(c *gin.Context) {
	var req dto.ListDeliveriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	filter, err := buildDeliveryFilter(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	letters, err := h.deliveries.ListDeadLetters(c.Request.Context(), *filter)
	if err != nil {
		h.logger.Error("Failed to list dead letters", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list dead letters",
		})
		return
	}

	hasMore := len(letters) > filter.PageSize
	if hasMore {
		letters = letters[:filter.PageSize]
	}

	response := dto.ListDeadLettersResponse{
		DeadLetters: make([]dto.DeadLetterDTO, len(letters)),
	}
	for i := range letters {
		response.DeadLetters[i] = deadLetterToDTO(&letters[i])
	}

	if hasMore {
		last := letters[len(letters)-1]
		response.NextCursor = EncodeCursor(&domain.ListCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	c.JSON(http.StatusOK, response)
}

// ReplayDeadLetter handles POST /api/v1/webhooks/dead-letters/:dead_letter_id/replay
// Requeues a single unresolved dead letter as a fresh delivery job. A
// resolved dead letter is rejected; resolution happens when the replay
// actually lands.
func (h *DeliveryHandler) ReplayDeadLetter(c *gin.Context) {
	deadLetterID := c.Param("dead_letter_id")
	if _, err := uuid.Parse(deadLetterID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "dead_letter_id must be a valid UUID",
		})
		return
	}

	dl, err := h.deliveries.GetDeadLetter(c.Request.Context(), deadLetterID)
	if err != nil {
		if errors.Is(err, domain.ErrDeadLetterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Dead letter not found",
			})
			return
		}
		h.logger.Error("Failed to get dead letter", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get dead letter",
		})
		return
	}

	if dl.IsResolved {
		c.JSON(http.StatusConflict, gin.H{
			"error": domain.ErrAlreadyResolved.Error(),
		})
		return
	}

	jobID, err := h.enqueueReplay(c, dl, ReplayModeSingle)
	if err != nil {
		return
	}

	c.JSON(http.StatusAccepted, dto.ReplayResponse{
		DeadLetterID: dl.ID,
		ReplayJobID:  jobID,
		Status:       domain.JobStatusQueued,
	})
}

// BulkReplayDeadLetters handles POST /api/v1/webhooks/dead-letters/replay
// Requeues every unresolved dead letter matching the filter.
func (h *DeliveryHandler) BulkReplayDeadLetters(c *gin.Context) {
	var req dto.BulkReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	unresolved := false
	letters, err := h.deliveries.ListDeadLetters(c.Request.Context(), domain.DeliveryFilter{
		SubscriptionID: req.SubscriptionID,
		EventType:      req.EventType,
		IsResolved:     &unresolved,
	})
	if err != nil {
		h.logger.Error("Failed to list dead letters for bulk replay", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list dead letters",
		})
		return
	}

	response := dto.BulkReplayResponse{}
	for i := range letters {
		jobID, err := h.enqueueReplay(c, &letters[i], ReplayModeBulk)
		if err != nil {
			return
		}
		response.ReplayedCount++
		response.ReplayJobIDs = append(response.ReplayJobIDs, jobID)
	}

	c.JSON(http.StatusAccepted, response)
}

func (h *DeliveryHandler) enqueueReplay(c *gin.Context, dl *domain.DeadLetter, mode string) (string, error) {
	var original domain.DeliverPayload
	if err := json.Unmarshal([]byte(dl.Payload), &original); err != nil {
		h.logger.Error("Dead letter payload is malformed",
			slog.String("dead_letter_id", dl.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Dead letter payload is malformed",
		})
		return "", err
	}

	payload := domain.DeliverPayload{
		SubscriptionID: dl.SubscriptionID,
		EventType:      dl.EventType,
		Data:           original.Data,
		FailureID:      dl.ID,
		ReplayMode:     mode,
	}

	jobID, err := h.enqueuer.Enqueue(c.Request.Context(), domain.JobTypeDeliver, payload, 1)
	if err != nil {
		h.logger.Error("Failed to enqueue replay job",
			slog.String("dead_letter_id", dl.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue replay",
		})
		return "", err
	}

	return jobID, nil
}

func buildDeliveryFilter(req *dto.ListDeliveriesRequest) (*domain.DeliveryFilter, error) {
	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeCursor(req.Cursor)
	if err != nil {
		return nil, errors.New("invalid cursor")
	}

	filter := &domain.DeliveryFilter{
		SubscriptionID: req.SubscriptionID,
		EventType:      req.EventType,
		Status:         req.Status,
		IsResolved:     req.Resolved,
		PageSize:       req.PageSize,
		Cursor:         cursor,
	}

	if req.From != "" {
		from, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			return nil, errors.New("from must be an RFC3339 timestamp")
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			return nil, errors.New("to must be an RFC3339 timestamp")
		}
		filter.To = &to
	}

	return filter, nil
}

func deliveryToDTO(a *domain.DeliveryAttempt) dto.DeliveryDTO {
	out := dto.DeliveryDTO{
		AttemptID:      a.ID,
		SubscriptionID: a.SubscriptionID,
		EventType:      a.EventType,
		Status:         a.Status,
		JobID:          a.JobID,
		AttemptsMade:   a.AttemptsMade,
		LastError:      a.LastError,
		DurationMs:     a.DurationMs,
		LastAttemptAt:  a.LastAttemptAt.Format(time.RFC3339),
		IsResolved:     a.IsResolved,
		ReplayJobID:    a.ReplayJobID,
		CreatedAt:      a.CreatedAt.Format(time.RFC3339),
	}
	if a.ReplayedAt != nil {
		out.ReplayedAt = a.ReplayedAt.Format(time.RFC3339)
	}
	return out
}

func deadLetterToDTO(dl *domain.DeadLetter) dto.DeadLetterDTO {
	out := dto.DeadLetterDTO{
		DeadLetterID:   dl.ID,
		JobID:          dl.JobID,
		SubscriptionID: dl.SubscriptionID,
		EventType:      dl.EventType,
		FinalError:     dl.FinalError,
		Attempts:       dl.Attempts,
		IsResolved:     dl.IsResolved,
		ReplayJobID:    dl.ReplayJobID,
		CreatedAt:      dl.CreatedAt.Format(time.RFC3339),
	}
	if dl.ReplayedAt != nil {
		out.ReplayedAt = dl.ReplayedAt.Format(time.RFC3339)
	}
	return out
}
