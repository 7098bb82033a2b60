package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Request headers carried on every delivery.
const (
	HeaderEventType = "X-Event-Type"
	HeaderWebhookID = "X-Webhook-Id"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// Envelope is the wire body posted to a subscriber endpoint.
type Envelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Delivery describes one outbound webhook POST. JobID identifies the
// delivery job and is what the receiver sees as X-Webhook-Id.
type Delivery struct {
	JobID          string
	SubscriptionID string
	TargetURL      string
	Secret         string
	EventType      string
	Data           map[string]any
}

// Result reports the outcome of a single POST attempt.
type Result struct {
	StatusCode int
	DurationMs int64
}

// Sender posts signed event envelopes to subscriber endpoints.
type Sender struct {
	client *resty.Client
}

// NewSender creates a new Sender instance
func NewSender(timeout time.Duration) *Sender {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "convexa-webhook/1.0")

	return &Sender{client: client}
}

// Send serializes the envelope, signs the raw body with the
// subscription secret and posts it to the target URL. A non-2xx status
// is returned as an error together with the status code.
func (s *Sender) Send(ctx context.Context, d Delivery) (Result, error) {
	body, err := json.Marshal(Envelope{Event: d.EventType, Data: d.Data})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	start := time.Now()
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader(HeaderEventType, d.EventType).
		SetHeader(HeaderWebhookID, d.JobID).
		SetHeader(HeaderTimestamp, strconv.FormatInt(start.UnixMilli(), 10)).
		SetHeader(HeaderSignature, Sign(d.Secret, body)).
		SetBody(body).
		Post(d.TargetURL)

	result := Result{DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		return result, fmt.Errorf("failed to reach webhook endpoint: %w", err)
	}

	result.StatusCode = resp.StatusCode()
	if resp.IsError() {
		return result, fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode())
	}

	return result, nil
}
