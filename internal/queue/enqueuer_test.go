package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

type fakeJobCreator struct {
	created *domain.Job
	err     error
}

func (f *fakeJobCreator) CreateJob(_ context.Context, job *domain.Job) error {
	if f.err != nil {
		return f.err
	}
	f.created = job
	return nil
}

type fakePublisher struct {
	routingKey string
	body       []byte
	err        error
}

func (f *fakePublisher) PublishWithRetry(_ context.Context, routingKey string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.routingKey = routingKey
	f.body = body
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnqueue(t *testing.T) {
	jobs := &fakeJobCreator{}
	publisher := &fakePublisher{}
	enqueuer := NewEnqueuer(jobs, publisher, testLogger())

	payload := domain.IngestPayload{Source: "probate", Zip: "08081"}
	jobID, err := enqueuer.Enqueue(context.Background(), domain.JobTypeIngest, payload, 3)

	require.NoError(t, err)
	require.NoError(t, uuid.Validate(jobID))

	require.NotNil(t, jobs.created)
	assert.Equal(t, jobID, jobs.created.ID)
	assert.Equal(t, domain.JobTypeIngest, jobs.created.Type)
	assert.Equal(t, domain.JobStatusQueued, jobs.created.Status)
	assert.Equal(t, 3, jobs.created.MaxAttempts)
	assert.JSONEq(t, `{"source":"probate","zip":"08081"}`, jobs.created.Payload)

	// Routing key is the job type; the wire message carries only the id.
	assert.Equal(t, domain.JobTypeIngest, publisher.routingKey)

	var msg JobMessage
	require.NoError(t, json.Unmarshal(publisher.body, &msg))
	assert.Equal(t, jobID, msg.JobID)
}

func TestEnqueue_PersistFailure(t *testing.T) {
	jobs := &fakeJobCreator{err: errors.New("connection refused")}
	publisher := &fakePublisher{}
	enqueuer := NewEnqueuer(jobs, publisher, testLogger())

	_, err := enqueuer.Enqueue(context.Background(), domain.JobTypeEnrich, domain.EnrichPayload{RecordID: "rec-1"}, 1)

	require.Error(t, err)
	assert.Empty(t, publisher.routingKey)
}

func TestEnqueue_PublishFailure(t *testing.T) {
	jobs := &fakeJobCreator{}
	publisher := &fakePublisher{err: errors.New("channel closed")}
	enqueuer := NewEnqueuer(jobs, publisher, testLogger())

	_, err := enqueuer.Enqueue(context.Background(), domain.JobTypeDeliver, domain.DeliverPayload{SubscriptionID: "sub-1"}, 1)

	assert.Error(t, err)
}
