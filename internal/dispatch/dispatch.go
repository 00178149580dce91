// Package dispatch defines the task-submission boundary between the
// scheduler and the worker pool. The scheduler depends on Submitter only;
// the queue-backed implementation lives here, and tests substitute a
// synchronous double.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
)

// RunExecutionTask is the payload for one dispatched execution unit.
// Trace carries the W3C trace context across the queue so worker spans
// join the scheduling trace.
type RunExecutionTask struct {
	TenantID   uuid.UUID              `json:"tenant_id"`
	SuiteRunID *uuid.UUID             `json:"suite_run_id,omitempty"`
	ScenarioID uuid.UUID              `json:"scenario_id"`
	Language   string                 `json:"language"`
	Trace      propagation.MapCarrier `json:"trace,omitempty"`
}

// AggregateRunTask is the payload for a delayed reconciliation pass.
type AggregateRunTask struct {
	TenantID   uuid.UUID              `json:"tenant_id"`
	SuiteRunID uuid.UUID              `json:"suite_run_id"`
	Trace      propagation.MapCarrier `json:"trace,omitempty"`
}

// Submitter is the abstract worker-dispatch protocol: submit a named task
// (optionally delayed) and best-effort cancel one by id. The queue
// implementation provides at-least-once delivery; nothing here depends on
// a broker wire format.
type Submitter interface {
	Submit(ctx context.Context, tx store.DBTransaction, name string, tenantID uuid.UUID, suiteRunID *uuid.UUID, payload any, delay time.Duration) (string, error)
	Cancel(ctx context.Context, taskID string) error
}

// QueueSubmitter implements Submitter on top of the store task queue.
type QueueSubmitter struct {
	queue store.TaskQueue
}

// NewQueueSubmitter creates a queue-backed submitter.
func NewQueueSubmitter(q store.TaskQueue) *QueueSubmitter {
	return &QueueSubmitter{queue: q}
}

// Submit enqueues one task. Passing the scheduler's open transaction makes
// dispatch atomic with the run's pending -> running transition.
func (s *QueueSubmitter) Submit(ctx context.Context, tx store.DBTransaction, name string, tenantID uuid.UUID, suiteRunID *uuid.UUID, payload any, delay time.Duration) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}

	var visibleAfter time.Time
	if delay > 0 {
		visibleAfter = time.Now().Add(delay)
	}

	id, err := s.queue.Enqueue(ctx, tx, name, tenantID, suiteRunID, body, visibleAfter)
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(id, 10), nil
}

// Cancel drops a queued task by id. Advisory: a task already claimed by a
// worker completes its current turn before observing cancellation.
func (s *QueueSubmitter) Cancel(ctx context.Context, taskID string) error {
	id, err := strconv.ParseInt(taskID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", taskID, err)
	}
	return s.queue.Delete(ctx, nil, id)
}
