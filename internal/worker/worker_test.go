package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/scrape"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/store"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/webhook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJob(jobType, payload string) *domain.Job {
	return &domain.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     payload,
		Status:      domain.JobStatusRunning,
		Attempt:     1,
		MaxAttempts: 1,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

type enqueuedJob struct {
	jobType     string
	payload     any
	maxAttempts int
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []enqueuedJob
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, jobType string, payload any, maxAttempts int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, enqueuedJob{jobType: jobType, payload: payload, maxAttempts: maxAttempts})
	return uuid.New().String(), nil
}

type emittedEvent struct {
	eventType string
	data      map[string]any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
	err    error
}

func (f *fakeEmitter) Emit(_ context.Context, eventType string, data map[string]any) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emittedEvent{eventType: eventType, data: data})
	return 1, nil
}

type fakeAdapter struct {
	source string
	result *scrape.Result
	err    error
}

func (f *fakeAdapter) Source() string { return f.source }

func (f *fakeAdapter) Fetch(_ context.Context, _ string, _ map[string]any) (*scrape.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeRecordSink dedups on normalized address like the real store does
// on its uniqueness constraint.
type fakeRecordSink struct {
	mu   sync.Mutex
	seen map[string]string
	err  error
}

func newFakeRecordSink() *fakeRecordSink {
	return &fakeRecordSink{seen: make(map[string]string)}
}

func (f *fakeRecordSink) InsertOrRefresh(_ context.Context, rec *domain.ScrapedRecord) (bool, string, error) {
	if f.err != nil {
		return false, "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rec.Source + "|" + rec.Zip + "|" + rec.AddressNorm
	if id, ok := f.seen[key]; ok {
		return false, id, nil
	}
	f.seen[key] = rec.ID
	return true, rec.ID, nil
}

type fakeRecordRepo struct {
	record        *domain.ScrapedRecord
	getErr        error
	saveErr       error
	saved         bool
	savedScore    int
	savedTags     []string
	savedCond     string
	autoMatched   bool
	markCalls     int
	markFirstOnly bool
}

func (f *fakeRecordRepo) GetRecord(_ context.Context, recordID string) (*domain.ScrapedRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.record, nil
}

func (f *fakeRecordRepo) SaveEnrichment(_ context.Context, _ string, score int, tags []string, condition string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = true
	f.savedScore = score
	f.savedTags = tags
	f.savedCond = condition
	return nil
}

func (f *fakeRecordRepo) MarkAutoMatched(_ context.Context, _ string) (bool, error) {
	f.markCalls++
	if f.markFirstOnly && f.markCalls > 1 {
		return false, nil
	}
	if f.autoMatched {
		return false, nil
	}
	f.autoMatched = true
	return true, nil
}

type fakeActivityWriter struct {
	mu         sync.Mutex
	activities []*domain.Activity
	err        error
}

func (f *fakeActivityWriter) InsertActivity(_ context.Context, activity *domain.Activity) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, activity)
	return nil
}

type fakeMatchCounter struct {
	count  int
	filter store.MatchFilter
	err    error
}

func (f *fakeMatchCounter) CountMatches(_ context.Context, filter store.MatchFilter) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.filter = filter
	return f.count, nil
}

type fakeSubscriptionGetter struct {
	sub *domain.WebhookSubscription
	err error
}

func (f *fakeSubscriptionGetter) GetSubscription(_ context.Context, _ string) (*domain.WebhookSubscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

type fakeLedger struct {
	mu          sync.Mutex
	attempts    []*domain.DeliveryAttempt
	deadLetters []*domain.DeadLetter
	resolved    [][2]string
	resolveErr  error
}

func (f *fakeLedger) InsertAttempt(_ context.Context, attempt *domain.DeliveryAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeLedger) CreateDeadLetter(_ context.Context, dl *domain.DeadLetter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.deadLetters {
		if existing.JobID == dl.JobID {
			return nil
		}
	}
	f.deadLetters = append(f.deadLetters, dl)
	return nil
}

func (f *fakeLedger) ResolveDeadLetter(_ context.Context, deadLetterID, replayJobID string) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, [2]string{deadLetterID, replayJobID})
	return nil
}

// fakeSender fails the first failures calls, then succeeds.
type fakeSender struct {
	mu         sync.Mutex
	failures   int
	calls      int
	err        error
	deliveries []webhook.Delivery
}

func (f *fakeSender) Send(_ context.Context, d webhook.Delivery) (webhook.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.deliveries = append(f.deliveries, d)
	if f.calls <= f.failures {
		err := f.err
		if err == nil {
			err = errors.New("webhook endpoint returned status 500")
		}
		return webhook.Result{StatusCode: 500, DurationMs: 5}, err
	}
	return webhook.Result{StatusCode: 200, DurationMs: 12}, nil
}
