package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/metrics"
)

func deliverJob(t *testing.T, payload domain.DeliverPayload) *domain.Job {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return testJob(domain.JobTypeDeliver, string(body))
}

func activeSubscription() *domain.WebhookSubscription {
	return &domain.WebhookSubscription{
		ID:            "sub-1",
		TargetURL:     "https://crm.example.com/hook",
		EventTypes:    []string{domain.EventPropertyNew},
		SigningSecret: "s3cr3t",
		IsActive:      true,
	}
}

func newDeliverHandler(subs *fakeSubscriptionGetter, ledger *fakeLedger, sender *fakeSender, registry *metrics.Registry) (*DeliverHandler, *[]time.Duration) {
	handler := NewDeliverHandler(subs, ledger, sender, registry, 5, 2*time.Second, testLogger())

	var slept []time.Duration
	handler.sleep = func(_ context.Context, d time.Duration) {
		slept = append(slept, d)
	}
	return handler, &slept
}

func TestDeliverHandler_FirstAttemptSucceeds(t *testing.T) {
	ledger := &fakeLedger{}
	sender := &fakeSender{}
	registry := metrics.NewRegistry()
	handler, slept := newDeliverHandler(&fakeSubscriptionGetter{sub: activeSubscription()}, ledger, sender, registry)

	job := deliverJob(t, domain.DeliverPayload{
		SubscriptionID: "sub-1",
		EventType:      domain.EventPropertyNew,
		Data:           map[string]any{"recordId": "rec-1"},
	})

	result, err := handler.Handle(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryStatusDelivered, result["status"])
	assert.Equal(t, 1, result["attemptsMade"])
	assert.Empty(t, *slept)

	require.Len(t, ledger.attempts, 1)
	attempt := ledger.attempts[0]
	assert.Equal(t, domain.DeliveryStatusDelivered, attempt.Status)
	assert.Equal(t, job.ID, attempt.JobID)
	assert.Equal(t, 1, attempt.AttemptsMade)
	assert.Empty(t, ledger.deadLetters)

	require.Len(t, sender.deliveries, 1)
	assert.Equal(t, "https://crm.example.com/hook", sender.deliveries[0].TargetURL)
	assert.Equal(t, "s3cr3t", sender.deliveries[0].Secret)
	assert.Equal(t, job.ID, sender.deliveries[0].JobID)

	assert.Equal(t, int64(1), registry.Get(metrics.DeliveredTotal))
	assert.Equal(t, int64(0), registry.Get(metrics.FailedTotal))
}

func TestDeliverHandler_RetriesWithExponentialBackoff(t *testing.T) {
	ledger := &fakeLedger{}
	sender := &fakeSender{failures: 2}
	handler, slept := newDeliverHandler(&fakeSubscriptionGetter{sub: activeSubscription()}, ledger, sender, metrics.NewRegistry())

	result, err := handler.Handle(context.Background(), deliverJob(t, domain.DeliverPayload{
		SubscriptionID: "sub-1",
		EventType:      domain.EventPropertyNew,
		Data:           map[string]any{},
	}))
	require.NoError(t, err)

	assert.Equal(t, 3, result["attemptsMade"])
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *slept)

	require.Len(t, ledger.attempts, 1)
	assert.Equal(t, domain.DeliveryStatusDelivered, ledger.attempts[0].Status)
	assert.Equal(t, 3, ledger.attempts[0].AttemptsMade)
}

func TestDeliverHandler_ExhaustionDeadLetters(t *testing.T) {
	ledger := &fakeLedger{}
	sender := &fakeSender{failures: 100}
	registry := metrics.NewRegistry()
	handler, slept := newDeliverHandler(&fakeSubscriptionGetter{sub: activeSubscription()}, ledger, sender, registry)

	job := deliverJob(t, domain.DeliverPayload{
		SubscriptionID: "sub-1",
		EventType:      domain.EventPropertyNew,
		Data:           map[string]any{},
	})

	_, err := handler.Handle(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrClassDelivery)

	assert.Equal(t, 5, sender.calls)
	assert.Len(t, *slept, 4)

	require.Len(t, ledger.attempts, 1)
	attempt := ledger.attempts[0]
	assert.Equal(t, domain.DeliveryStatusFailed, attempt.Status)
	assert.Equal(t, 5, attempt.AttemptsMade)
	assert.NotEmpty(t, attempt.LastError)

	require.Len(t, ledger.deadLetters, 1)
	dl := ledger.deadLetters[0]
	assert.Equal(t, job.ID, dl.JobID)
	assert.Equal(t, "sub-1", dl.SubscriptionID)
	assert.Equal(t, 5, dl.Attempts)

	assert.Equal(t, int64(1), registry.Get(metrics.FailedTotal))
}

func TestDeliverHandler_ReplayResolvesDeadLetter(t *testing.T) {
	ledger := &fakeLedger{}
	sender := &fakeSender{}
	handler, _ := newDeliverHandler(&fakeSubscriptionGetter{sub: activeSubscription()}, ledger, sender, metrics.NewRegistry())

	job := deliverJob(t, domain.DeliverPayload{
		SubscriptionID: "sub-1",
		EventType:      domain.EventPropertyNew,
		Data:           map[string]any{},
		FailureID:      "dl-1",
		ReplayMode:     "single",
	})

	result, err := handler.Handle(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "dl-1", result["resolvedFailureId"])
	require.Len(t, ledger.resolved, 1)
	assert.Equal(t, [2]string{"dl-1", job.ID}, ledger.resolved[0])
}

func TestDeliverHandler_ZeroMaxAttemptsStillSendsOnce(t *testing.T) {
	ledger := &fakeLedger{}
	sender := &fakeSender{failures: 100}
	handler := NewDeliverHandler(&fakeSubscriptionGetter{sub: activeSubscription()},
		ledger, sender, metrics.NewRegistry(), 0, time.Second, testLogger())

	job := deliverJob(t, domain.DeliverPayload{
		SubscriptionID: "sub-1",
		EventType:      domain.EventPropertyNew,
		Data:           map[string]any{},
	})

	_, err := handler.Handle(context.Background(), job)
	require.Error(t, err)

	assert.Equal(t, 1, sender.calls)
	require.Len(t, ledger.attempts, 1)
	assert.Equal(t, 1, ledger.attempts[0].AttemptsMade)
	assert.Len(t, ledger.deadLetters, 1)
}

func TestDeliverHandler_InactiveSubscriptionSkips(t *testing.T) {
	sub := activeSubscription()
	sub.IsActive = false
	ledger := &fakeLedger{}
	sender := &fakeSender{}
	handler, _ := newDeliverHandler(&fakeSubscriptionGetter{sub: sub}, ledger, sender, metrics.NewRegistry())

	result, err := handler.Handle(context.Background(), deliverJob(t, domain.DeliverPayload{
		SubscriptionID: "sub-1",
		EventType:      domain.EventPropertyNew,
		Data:           map[string]any{},
	}))
	require.NoError(t, err)

	assert.Equal(t, "skipped", result["status"])
	assert.Equal(t, 0, sender.calls)
	assert.Empty(t, ledger.attempts)
}

func TestDeliverHandler_UnknownSubscription(t *testing.T) {
	handler, _ := newDeliverHandler(&fakeSubscriptionGetter{err: domain.ErrSubscriptionNotFound},
		&fakeLedger{}, &fakeSender{}, metrics.NewRegistry())

	_, err := handler.Handle(context.Background(), deliverJob(t, domain.DeliverPayload{
		SubscriptionID: "missing",
		EventType:      domain.EventPropertyNew,
		Data:           map[string]any{},
	}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrClassValidation)
}

func TestDeliverHandler_MissingFields(t *testing.T) {
	handler, _ := newDeliverHandler(&fakeSubscriptionGetter{sub: activeSubscription()},
		&fakeLedger{}, &fakeSender{}, metrics.NewRegistry())

	_, err := handler.Handle(context.Background(), testJob(domain.JobTypeDeliver, `{"data":{}}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrClassValidation)
}
