package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/api/dto"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/webhook"
)

func subscriptionRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()
	h := NewSubscriptionHandler(deps)
	r.POST("/api/v1/webhooks/subscriptions", h.CreateSubscription)
	r.GET("/api/v1/webhooks/subscriptions", h.ListSubscriptions)
	r.GET("/api/v1/webhooks/subscriptions/:subscription_id", h.GetSubscription)
	r.PUT("/api/v1/webhooks/subscriptions/:subscription_id", h.UpdateSubscription)
	r.DELETE("/api/v1/webhooks/subscriptions/:subscription_id", h.DeleteSubscription)
	r.POST("/api/v1/webhooks/subscriptions/:subscription_id/verify", h.VerifySubscription)
	r.POST("/api/v1/webhooks/verify", h.VerifyEndpoint)
	return r
}

func seedSubscription(deps *Dependencies) *domain.WebhookSubscription {
	sub := &domain.WebhookSubscription{
		ID:            uuid.New().String(),
		TargetURL:     "https://crm.example.com/hook",
		EventTypes:    []string{domain.EventPropertyNew},
		SigningSecret: "s3cr3t",
		IsActive:      true,
	}
	deps.Subscriptions.(*fakeSubscriptionManager).subs[sub.ID] = sub
	return sub
}

func TestCreateSubscription(t *testing.T) {
	deps := testDeps()
	r := subscriptionRouter(deps)

	w := performRequest(t, r, http.MethodPost, "/api/v1/webhooks/subscriptions", dto.CreateSubscriptionRequest{
		TargetURL:  "https://crm.example.com/hook",
		EventTypes: []string{domain.EventPropertyNew, domain.EventMatchmakingCompleted},
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var resp dto.SubscriptionDTO
	decodeBody(t, w, &resp)
	assert.NotEmpty(t, resp.SubscriptionID)
	assert.NotEmpty(t, resp.SigningSecret)
	assert.True(t, resp.IsActive)
}

func TestCreateSubscription_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body dto.CreateSubscriptionRequest
	}{
		{
			name: "bad scheme",
			body: dto.CreateSubscriptionRequest{
				TargetURL:  "ftp://crm.example.com/hook",
				EventTypes: []string{domain.EventPropertyNew},
			},
		},
		{
			name: "unknown event type",
			body: dto.CreateSubscriptionRequest{
				TargetURL:  "https://crm.example.com/hook",
				EventTypes: []string{"records.deleted"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := subscriptionRouter(testDeps())

			w := performRequest(t, r, http.MethodPost, "/api/v1/webhooks/subscriptions", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetSubscription_HidesSecret(t *testing.T) {
	deps := testDeps()
	sub := seedSubscription(deps)
	r := subscriptionRouter(deps)

	w := performRequest(t, r, http.MethodGet, "/api/v1/webhooks/subscriptions/"+sub.ID, nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.SubscriptionDTO
	decodeBody(t, w, &resp)
	assert.Equal(t, sub.ID, resp.SubscriptionID)
	assert.Empty(t, resp.SigningSecret)
}

func TestUpdateSubscription(t *testing.T) {
	deps := testDeps()
	sub := seedSubscription(deps)
	r := subscriptionRouter(deps)

	active := false
	w := performRequest(t, r, http.MethodPut, "/api/v1/webhooks/subscriptions/"+sub.ID, dto.UpdateSubscriptionRequest{
		TargetURL:  "https://crm.example.com/hook/v2",
		EventTypes: []string{domain.EventCRMActivity},
		IsActive:   &active,
	})

	require.Equal(t, http.StatusOK, w.Code)

	updated := deps.Subscriptions.(*fakeSubscriptionManager).updated
	require.NotNil(t, updated)
	assert.Equal(t, "https://crm.example.com/hook/v2", updated.TargetURL)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "s3cr3t", updated.SigningSecret)
}

func TestUpdateSubscription_SecretImmutable(t *testing.T) {
	deps := testDeps()
	sub := seedSubscription(deps)
	r := subscriptionRouter(deps)

	active := true
	w := performRequest(t, r, http.MethodPut, "/api/v1/webhooks/subscriptions/"+sub.ID, dto.UpdateSubscriptionRequest{
		TargetURL:     "https://crm.example.com/hook",
		EventTypes:    []string{domain.EventPropertyNew},
		IsActive:      &active,
		SigningSecret: "new-secret",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Nil(t, deps.Subscriptions.(*fakeSubscriptionManager).updated)
}

func TestDeleteSubscription(t *testing.T) {
	deps := testDeps()
	sub := seedSubscription(deps)
	r := subscriptionRouter(deps)

	w := performRequest(t, r, http.MethodDelete, "/api/v1/webhooks/subscriptions/"+sub.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = performRequest(t, r, http.MethodDelete, "/api/v1/webhooks/subscriptions/"+sub.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerifySubscription(t *testing.T) {
	deps := testDeps()
	sub := seedSubscription(deps)
	verifier := deps.Verifier.(*fakeChallengeSender)
	r := subscriptionRouter(deps)

	w := performRequest(t, r, http.MethodPost, "/api/v1/webhooks/subscriptions/"+sub.ID+"/verify", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.VerifyResponse
	decodeBody(t, w, &resp)
	assert.True(t, resp.Verified)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 1, verifier.calls)
	assert.Equal(t, EventVerify, verifier.delivery.EventType)
	assert.Equal(t, sub.SigningSecret, verifier.delivery.Secret)
	assert.NotEmpty(t, verifier.delivery.JobID)
	assert.NotEmpty(t, verifier.delivery.Data["challenge"])
}

func TestVerifyEndpoint_NoSubscriptionNeeded(t *testing.T) {
	deps := testDeps()
	verifier := deps.Verifier.(*fakeChallengeSender)
	r := subscriptionRouter(deps)

	w := performRequest(t, r, http.MethodPost, "/api/v1/webhooks/verify", dto.VerifyEndpointRequest{
		TargetURL: "https://crm.example.com/hook",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.VerifyResponse
	decodeBody(t, w, &resp)
	assert.True(t, resp.Verified)
	assert.Empty(t, resp.SubscriptionID)

	assert.Equal(t, 1, verifier.calls)
	assert.Equal(t, EventVerify, verifier.delivery.EventType)
	assert.Equal(t, "https://crm.example.com/hook", verifier.delivery.TargetURL)
	assert.NotEmpty(t, verifier.delivery.Secret)
	assert.NotEmpty(t, verifier.delivery.JobID)

	// Nothing gets persisted by a one-off challenge.
	assert.Empty(t, deps.Subscriptions.(*fakeSubscriptionManager).subs)
}

func TestVerifyEndpoint_SuppliedSecretAndBadURL(t *testing.T) {
	deps := testDeps()
	verifier := deps.Verifier.(*fakeChallengeSender)
	r := subscriptionRouter(deps)

	w := performRequest(t, r, http.MethodPost, "/api/v1/webhooks/verify", dto.VerifyEndpointRequest{
		TargetURL:     "https://crm.example.com/hook",
		SigningSecret: "s3cr3t",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s3cr3t", verifier.delivery.Secret)

	w = performRequest(t, r, http.MethodPost, "/api/v1/webhooks/verify", dto.VerifyEndpointRequest{
		TargetURL: "ftp://crm.example.com/hook",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, verifier.calls)
}

func TestVerifySubscription_EndpointDown(t *testing.T) {
	deps := testDeps()
	sub := seedSubscription(deps)
	deps.Verifier = &fakeChallengeSender{
		result: webhook.Result{StatusCode: http.StatusInternalServerError},
		err:    errors.New("webhook endpoint returned status 500"),
	}
	r := subscriptionRouter(deps)

	w := performRequest(t, r, http.MethodPost, "/api/v1/webhooks/subscriptions/"+sub.ID+"/verify", nil)

	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp dto.VerifyResponse
	decodeBody(t, w, &resp)
	assert.False(t, resp.Verified)
	assert.NotEmpty(t, resp.Error)
}
