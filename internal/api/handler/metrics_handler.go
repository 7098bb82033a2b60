package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/api/dto"
)

// MetricsHandler serves the admin metrics summary. Counters and latency
// percentiles are computed from the delivery ledger so they survive
// restarts of either service.
type MetricsHandler struct {
	logger     *slog.Logger
	deliveries DeliveryReader
	subs       SubscriptionManager
}

// NewMetricsHandler creates a new MetricsHandler instance
func NewMetricsHandler(deps *Dependencies) *MetricsHandler {
	return &MetricsHandler{
		logger:     deps.Logger,
		deliveries: deps.Deliveries,
		subs:       deps.Subscriptions,
	}
}

// GetMetrics handles GET /api/v1/metrics
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	summary, err := h.deliveries.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to compute metrics summary", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to compute metrics",
		})
		return
	}

	activeSubs, err := h.subs.CountActive(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to count active subscriptions", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to compute metrics",
		})
		return
	}

	c.JSON(http.StatusOK, dto.MetricsResponse{
		DeliveredTotal:      summary.DeliveredTotal,
		FailedTotal:         summary.FailedTotal,
		UnresolvedFailures:  summary.UnresolvedFailures,
		ActiveSubscriptions: activeSubs,
		DeliveryLatencyMs: dto.LatencyDTO{
			P50: summary.LatencyP50Ms,
			P90: summary.LatencyP90Ms,
			P99: summary.LatencyP99Ms,
		},
	})
}
