package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/api/dto"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/webhook"
)

// EventVerify is the event type of the one-off verification challenge.
const EventVerify = "webhook.verify"

var knownEventTypes = map[string]bool{
	domain.EventJobCompleted:         true,
	domain.EventPropertyNew:          true,
	domain.EventMatchmakingCompleted: true,
	domain.EventCRMActivity:          true,
}

// SubscriptionHandler handles webhook subscription admin requests
type SubscriptionHandler struct {
	logger        *slog.Logger
	subs          SubscriptionManager
	verifier      ChallengeSender
	verifyTimeout time.Duration
}

// NewSubscriptionHandler creates a new SubscriptionHandler instance
func NewSubscriptionHandler(deps *Dependencies) *SubscriptionHandler {
	return &SubscriptionHandler{
		logger:        deps.Logger,
		subs:          deps.Subscriptions,
		verifier:      deps.Verifier,
		verifyTimeout: deps.VerifyTimeout,
	}
}

// CreateSubscription handles POST /api/v1/webhooks/subscriptions
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := validateSubscriptionFields(req.TargetURL, req.EventTypes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	secret := req.SigningSecret
	if secret == "" {
		secret = uuid.New().String()
	}

	sub := &domain.WebhookSubscription{
		ID:            uuid.New().String(),
		TargetURL:     req.TargetURL,
		EventTypes:    req.EventTypes,
		SigningSecret: secret,
		IsActive:      true,
	}

	if err := h.subs.CreateSubscription(c.Request.Context(), sub); err != nil {
		h.logger.Error("Failed to create subscription", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create subscription",
		})
		return
	}

	// The secret is returned exactly once, at creation.
	out := subscriptionToDTO(sub)
	out.SigningSecret = sub.SigningSecret
	c.JSON(http.StatusCreated, out)
}

// GetSubscription handles GET /api/v1/webhooks/subscriptions/:subscription_id
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	sub, ok := h.loadSubscription(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, subscriptionToDTO(sub))
}

// ListSubscriptions handles GET /api/v1/webhooks/subscriptions
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	subs, err := h.subs.ListSubscriptions(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list subscriptions", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list subscriptions",
		})
		return
	}

	response := dto.ListSubscriptionsResponse{
		Subscriptions: make([]dto.SubscriptionDTO, len(subs)),
	}
	for i := range subs {
		response.Subscriptions[i] = *subscriptionToDTO(&subs[i])
	}
	c.JSON(http.StatusOK, response)
}

// UpdateSubscription handles PUT /api/v1/webhooks/subscriptions/:subscription_id
// The signing secret is immutable; rotation is create-new, disable-old.
func (h *SubscriptionHandler) UpdateSubscription(c *gin.Context) {
	sub, ok := h.loadSubscription(c)
	if !ok {
		return
	}

	var req dto.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.SigningSecret != "" {
		c.JSON(http.StatusConflict, gin.H{
			"error": domain.ErrSecretImmutable.Error(),
		})
		return
	}

	if err := validateSubscriptionFields(req.TargetURL, req.EventTypes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	sub.TargetURL = req.TargetURL
	sub.EventTypes = req.EventTypes
	sub.IsActive = *req.IsActive

	if err := h.subs.UpdateSubscription(c.Request.Context(), sub); err != nil {
		h.logger.Error("Failed to update subscription", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update subscription",
		})
		return
	}

	c.JSON(http.StatusOK, subscriptionToDTO(sub))
}

// DeleteSubscription handles DELETE /api/v1/webhooks/subscriptions/:subscription_id
func (h *SubscriptionHandler) DeleteSubscription(c *gin.Context) {
	subscriptionID := c.Param("subscription_id")
	if _, err := uuid.Parse(subscriptionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "subscription_id must be a valid UUID",
		})
		return
	}

	if err := h.subs.DeleteSubscription(c.Request.Context(), subscriptionID); err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Subscription not found",
			})
			return
		}
		h.logger.Error("Failed to delete subscription", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete subscription",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// VerifySubscription handles POST /api/v1/webhooks/subscriptions/:subscription_id/verify
// Posts a signed one-off challenge to the endpoint without touching the
// delivery ledger.
func (h *SubscriptionHandler) VerifySubscription(c *gin.Context) {
	sub, ok := h.loadSubscription(c)
	if !ok {
		return
	}

	result, err := h.sendChallenge(c.Request.Context(), webhook.Delivery{
		JobID:          uuid.New().String(),
		SubscriptionID: sub.ID,
		TargetURL:      sub.TargetURL,
		Secret:         sub.SigningSecret,
		EventType:      EventVerify,
		Data: map[string]any{
			"challenge": uuid.New().String(),
		},
	})

	response := dto.VerifyResponse{
		SubscriptionID: sub.ID,
		Verified:       err == nil,
		StatusCode:     result.StatusCode,
	}
	if err != nil {
		response.Error = err.Error()
		c.JSON(http.StatusBadGateway, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

// VerifyEndpoint handles POST /api/v1/webhooks/verify
// Challenges an arbitrary URL so an endpoint can be checked before any
// subscription exists. Nothing is persisted.
func (h *SubscriptionHandler) VerifyEndpoint(c *gin.Context) {
	var req dto.VerifyEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := validateTargetURL(req.TargetURL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	secret := req.SigningSecret
	if secret == "" {
		secret = uuid.New().String()
	}

	result, err := h.sendChallenge(c.Request.Context(), webhook.Delivery{
		JobID:     uuid.New().String(),
		TargetURL: req.TargetURL,
		Secret:    secret,
		EventType: EventVerify,
		Data: map[string]any{
			"challenge": uuid.New().String(),
		},
	})

	response := dto.VerifyResponse{
		Verified:   err == nil,
		StatusCode: result.StatusCode,
	}
	if err != nil {
		response.Error = err.Error()
		c.JSON(http.StatusBadGateway, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *SubscriptionHandler) sendChallenge(ctx context.Context, d webhook.Delivery) (webhook.Result, error) {
	if h.verifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.verifyTimeout)
		defer cancel()
	}
	return h.verifier.Send(ctx, d)
}

func (h *SubscriptionHandler) loadSubscription(c *gin.Context) (*domain.WebhookSubscription, bool) {
	subscriptionID := c.Param("subscription_id")
	if _, err := uuid.Parse(subscriptionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "subscription_id must be a valid UUID",
		})
		return nil, false
	}

	sub, err := h.subs.GetSubscription(c.Request.Context(), subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Subscription not found",
			})
			return nil, false
		}
		h.logger.Error("Failed to get subscription", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get subscription",
		})
		return nil, false
	}

	return sub, true
}

func validateTargetURL(targetURL string) error {
	parsed, err := url.Parse(targetURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return errors.New("target_url must be a valid http or https URL")
	}
	return nil
}

func validateSubscriptionFields(targetURL string, eventTypes []string) error {
	if err := validateTargetURL(targetURL); err != nil {
		return err
	}

	if len(eventTypes) == 0 {
		return errors.New("event_types must not be empty")
	}
	for _, et := range eventTypes {
		if !knownEventTypes[et] {
			return errors.New("unknown event type: " + et)
		}
	}

	return nil
}

func subscriptionToDTO(sub *domain.WebhookSubscription) *dto.SubscriptionDTO {
	return &dto.SubscriptionDTO{
		SubscriptionID: sub.ID,
		TargetURL:      sub.TargetURL,
		EventTypes:     sub.EventTypes,
		IsActive:       sub.IsActive,
		CreatedAt:      sub.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      sub.UpdatedAt.Format(time.RFC3339),
	}
}
