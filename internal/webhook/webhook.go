// Package webhook implements the at-least-once dispatcher of §4.8: queue
// state transitions enqueue a job; a worker drains due jobs with
// exponential backoff and POSTs the payload to the configured target URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/rrelayer/rrelayer/internal/metrics"
	"github.com/rrelayer/rrelayer/internal/storage"
)

// backoffSchedule is §4.8's literal retry ladder: 1s, 10s, 1m, 10m, 1h,
// capped thereafter.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	10 * time.Second,
	1 * time.Minute,
	10 * time.Minute,
	1 * time.Hour,
}

// Event is the payload shape every webhook job carries: event type, the
// affected identifier, and event-specific fields, always timestamped and
// versioned (§4.8).
type Event struct {
	APIVersion string                 `json:"api_version"`
	EventType  string                 `json:"event_type"`
	Timestamp  time.Time              `json:"timestamp"`
	RelayerID  uuid.UUID              `json:"relayer_id"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

const apiVersion = "1.0"

// Dispatcher drains due jobs from storage and POSTs them, rescheduling on
// failure per the backoff ladder.
type Dispatcher struct {
	store  storage.Store
	client *http.Client
}

func NewDispatcher(store storage.Store) *Dispatcher {
	return &Dispatcher{store: store, client: &http.Client{Timeout: 10 * time.Second}}
}

// Enqueue persists a new job for a state transition; called by the queue
// right after the transition itself is persisted (§4.7 ordering: DB write
// before externally visible effect).
func (d *Dispatcher) Enqueue(ctx context.Context, targetURL string, ev Event) error {
	ev.APIVersion = apiVersion
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return d.store.EnqueueWebhookJob(ctx, storage.WebhookJob{
		ID:            uuid.New(),
		EventType:     ev.EventType,
		Payload:       payload,
		TargetURL:     targetURL,
		NextAttemptAt: time.Now(),
	})
}

// RunOnce drains all currently-due jobs, delivering each and rescheduling
// failures. Intended to be called on a fixed interval by the background
// supervisor. Returns an error only when the due-job listing itself
// fails; a single job's delivery failure is handled internally via the
// backoff ladder and never aborts the pass.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	jobs, err := d.store.DueWebhookJobs(ctx, time.Now(), 100)
	if err != nil {
		return fmt.Errorf("webhook: list due jobs: %w", err)
	}
	for _, job := range jobs {
		metrics.WebhookDeliveryAttempts.Inc(1)
		if err := d.deliver(ctx, job); err != nil {
			metrics.WebhookDeliveryFailures.Inc(1)
			next := backoffFor(job.Attempt + 1)
			log.Warn("webhook: delivery failed, rescheduling", "id", job.ID, "attempt", job.Attempt, "err", err, "next_in", next)
			if rerr := d.store.RescheduleWebhookJob(ctx, job.ID, time.Now().Add(next)); rerr != nil {
				log.Error("webhook: reschedule failed", "id", job.ID, "err", rerr)
			}
			continue
		}
		if err := d.store.MarkWebhookDelivered(ctx, job.ID); err != nil {
			log.Error("webhook: mark delivered failed", "id", job.ID, "err", err)
		}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, job storage.WebhookJob) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.TargetURL, bytes.NewReader(job.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errStatus(resp.StatusCode)
	}
	return nil
}

func backoffFor(attempt int) time.Duration {
	if attempt <= 0 {
		return backoffSchedule[0]
	}
	if attempt-1 >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[attempt-1]
}

type errStatus int

func (e errStatus) Error() string { return "webhook: non-2xx response" }
