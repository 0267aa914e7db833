package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/storage"
)

type fakeJobStore struct {
	storage.Store
	mu           sync.Mutex
	enqueued     []storage.WebhookJob
	due          []storage.WebhookJob
	delivered    []uuid.UUID
	rescheduled  map[uuid.UUID]time.Time
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{rescheduled: make(map[uuid.UUID]time.Time)}
}

func (s *fakeJobStore) EnqueueWebhookJob(ctx context.Context, job storage.WebhookJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueued = append(s.enqueued, job)
	return nil
}

func (s *fakeJobStore) DueWebhookJobs(ctx context.Context, now time.Time, limit int) ([]storage.WebhookJob, error) {
	return s.due, nil
}

func (s *fakeJobStore) MarkWebhookDelivered(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, id)
	return nil
}

func (s *fakeJobStore) RescheduleWebhookJob(ctx context.Context, id uuid.UUID, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rescheduled[id] = next
	return nil
}

func TestEnqueueStampsVersionAndTimestamp(t *testing.T) {
	store := newFakeJobStore()
	d := NewDispatcher(store)
	err := d.Enqueue(context.Background(), "http://example.invalid/hook", Event{EventType: "transaction.mined"})
	require.NoError(t, err)
	require.Len(t, store.enqueued, 1)
	require.Equal(t, "http://example.invalid/hook", store.enqueued[0].TargetURL)
	require.Equal(t, "transaction.mined", store.enqueued[0].EventType)

	var ev Event
	require.NoError(t, json.Unmarshal(store.enqueued[0].Payload, &ev))
	require.Equal(t, apiVersion, ev.APIVersion)
	require.False(t, ev.Timestamp.IsZero())
}

func TestBackoffFor(t *testing.T) {
	require.Equal(t, 1*time.Second, backoffFor(0))
	require.Equal(t, 1*time.Second, backoffFor(1))
	require.Equal(t, 10*time.Second, backoffFor(2))
	require.Equal(t, time.Minute, backoffFor(3))
	require.Equal(t, 10*time.Minute, backoffFor(4))
	require.Equal(t, time.Hour, backoffFor(5))
	require.Equal(t, time.Hour, backoffFor(99), "attempts beyond the ladder stay capped at the last rung")
}

func TestRunOnceMarksDeliveredOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	jobID := uuid.New()
	store := newFakeJobStore()
	store.due = []storage.WebhookJob{{ID: jobID, TargetURL: srv.URL, Payload: []byte(`{}`)}}

	d := NewDispatcher(store)
	require.NoError(t, d.RunOnce(context.Background()))
	require.Equal(t, []uuid.UUID{jobID}, store.delivered)
	require.Empty(t, store.rescheduled)
}

func TestRunOnceReschedulesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	jobID := uuid.New()
	store := newFakeJobStore()
	store.due = []storage.WebhookJob{{ID: jobID, TargetURL: srv.URL, Payload: []byte(`{}`), Attempt: 0}}

	d := NewDispatcher(store)
	require.NoError(t, d.RunOnce(context.Background()))
	require.Empty(t, store.delivered)
	require.Contains(t, store.rescheduled, jobID)
}
