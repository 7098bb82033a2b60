package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/store"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testDeps() *Dependencies {
	return &Dependencies{
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		Jobs:              &fakeJobReader{},
		Subscriptions:     newFakeSubscriptionManager(),
		Deliveries:        &fakeDeliveryReader{},
		Enqueuer:          &fakeEnqueuer{},
		Verifier:          &fakeChallengeSender{},
		IngestMaxAttempts: 3,
		VerifyTimeout:     5 * time.Second,
	}
}

func performRequest(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

type fakeJobReader struct {
	job     *domain.Job
	jobs    []domain.Job
	filter  store.JobFilter
	getErr  error
	listErr error
}

func (f *fakeJobReader) GetJob(_ context.Context, _ string) (*domain.Job, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.job, nil
}

func (f *fakeJobReader) ListJobs(_ context.Context, filter store.JobFilter) ([]domain.Job, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.filter = filter
	return f.jobs, nil
}

type enqueuedJob struct {
	jobType     string
	payload     any
	maxAttempts int
}

type fakeEnqueuer struct {
	jobs []enqueuedJob
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, jobType string, payload any, maxAttempts int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, enqueuedJob{jobType: jobType, payload: payload, maxAttempts: maxAttempts})
	return uuid.New().String(), nil
}

type fakeSubscriptionManager struct {
	subs    map[string]*domain.WebhookSubscription
	updated *domain.WebhookSubscription
	active  int
}

func newFakeSubscriptionManager() *fakeSubscriptionManager {
	return &fakeSubscriptionManager{subs: make(map[string]*domain.WebhookSubscription)}
}

func (f *fakeSubscriptionManager) CreateSubscription(_ context.Context, sub *domain.WebhookSubscription) error {
	f.subs[sub.ID] = sub
	return nil
}

func (f *fakeSubscriptionManager) GetSubscription(_ context.Context, id string) (*domain.WebhookSubscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubscriptionManager) ListSubscriptions(_ context.Context) ([]domain.WebhookSubscription, error) {
	var out []domain.WebhookSubscription
	for _, sub := range f.subs {
		out = append(out, *sub)
	}
	return out, nil
}

func (f *fakeSubscriptionManager) UpdateSubscription(_ context.Context, sub *domain.WebhookSubscription) error {
	if _, ok := f.subs[sub.ID]; !ok {
		return domain.ErrSubscriptionNotFound
	}
	f.subs[sub.ID] = sub
	f.updated = sub
	return nil
}

func (f *fakeSubscriptionManager) DeleteSubscription(_ context.Context, id string) error {
	if _, ok := f.subs[id]; !ok {
		return domain.ErrSubscriptionNotFound
	}
	delete(f.subs, id)
	return nil
}

func (f *fakeSubscriptionManager) CountActive(_ context.Context) (int, error) {
	return f.active, nil
}

type fakeDeliveryReader struct {
	attempts   []domain.DeliveryAttempt
	deadLetter *domain.DeadLetter
	letters    []domain.DeadLetter
	summary    *store.MetricsSummary
	filter     domain.DeliveryFilter
}

func (f *fakeDeliveryReader) ListAttempts(_ context.Context, filter domain.DeliveryFilter) ([]domain.DeliveryAttempt, error) {
	f.filter = filter
	return f.attempts, nil
}

func (f *fakeDeliveryReader) GetDeadLetter(_ context.Context, _ string) (*domain.DeadLetter, error) {
	if f.deadLetter == nil {
		return nil, domain.ErrDeadLetterNotFound
	}
	return f.deadLetter, nil
}

func (f *fakeDeliveryReader) ListDeadLetters(_ context.Context, filter domain.DeliveryFilter) ([]domain.DeadLetter, error) {
	f.filter = filter
	return f.letters, nil
}

func (f *fakeDeliveryReader) GetMetricsSummary(_ context.Context) (*store.MetricsSummary, error) {
	return f.summary, nil
}

type fakeChallengeSender struct {
	delivery webhook.Delivery
	result   webhook.Result
	err      error
	calls    int
}

func (f *fakeChallengeSender) Send(_ context.Context, d webhook.Delivery) (webhook.Result, error) {
	f.calls++
	f.delivery = d
	if f.err != nil {
		return f.result, f.err
	}
	if f.result.StatusCode == 0 {
		f.result.StatusCode = http.StatusOK
	}
	return f.result, nil
}
