// Package store contains the database layer for the voice QA platform.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task names routed through the queue.
const (
	TaskRunExecution = "run_execution"
	TaskAggregateRun = "aggregate_suite_run"
)

// TaskQueue defines the interface for worker task dispatch.
// Implementations must use SELECT ... FOR UPDATE SKIP LOCKED semantics and
// provide at-least-once delivery. Cancellation is best-effort: a task
// already claimed by a worker is not recalled.
type TaskQueue interface {
	// Enqueue adds a new task to the queue. A future visibleAfter delays
	// delivery. Returns the queue-assigned task id.
	Enqueue(ctx context.Context, tx DBTransaction, name string, tenantID uuid.UUID, suiteRunID *uuid.UUID, payload json.RawMessage, visibleAfter time.Time) (int64, error)

	// DequeueBatch claims up to 'limit' available tasks atomically.
	// Returns nil slice if the queue is empty.
	DequeueBatch(ctx context.Context, tenantIDs []uuid.UUID, limit int) ([]TaskItem, error)

	// Complete removes a finished task from the queue. The business outcome
	// of the work (execution passed or failed) is irrelevant here; Complete
	// means the worker ran it to a conclusion.
	Complete(ctx context.Context, tx DBTransaction, taskID int64) error

	// Fail re-schedules a task with exponential backoff, or drops it once
	// the retry budget is exhausted.
	Fail(ctx context.Context, tx DBTransaction, taskID int64, errMsg string) error

	// SetVisibleAfter extends the visibility timeout (heartbeat).
	SetVisibleAfter(ctx context.Context, tx DBTransaction, taskID int64, visibleAfter time.Time) error

	// Delete removes a task by id, best-effort cancel.
	Delete(ctx context.Context, tx DBTransaction, taskID int64) error

	// DeletePendingForRun removes all still-queued tasks of a suite run and
	// returns how many were dropped.
	DeletePendingForRun(ctx context.Context, tx DBTransaction, runID uuid.UUID) (int64, error)

	// CountPendingForRun returns how many execution tasks of a run are
	// still queued. The run's own aggregation task never counts: the queue
	// keeps a claimed row until the worker settles it, and the aggregator
	// must not mistake its own row for outstanding dispatch work.
	CountPendingForRun(ctx context.Context, runID uuid.UUID) (int64, error)

	// Count tracks count of items in the queue.
	Count(ctx context.Context) (int64, error)
}

// TaskItem represents a dequeued task from the queue.
type TaskItem struct {
	ID      int64
	Name    string
	Payload json.RawMessage
}
