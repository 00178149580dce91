package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
)

// recordingQueue implements store.TaskQueue, tracking enqueue and delete
// calls.
type recordingQueue struct {
	enqueueName    string
	enqueuePayload json.RawMessage
	visibleAfter   time.Time
	nextID         int64

	deletedIDs []int64
}

func (q *recordingQueue) Enqueue(ctx context.Context, tx store.DBTransaction, name string, tenantID uuid.UUID, suiteRunID *uuid.UUID, payload json.RawMessage, visibleAfter time.Time) (int64, error) {
	q.enqueueName = name
	q.enqueuePayload = payload
	q.visibleAfter = visibleAfter
	return q.nextID, nil
}

func (q *recordingQueue) DequeueBatch(ctx context.Context, tenantIDs []uuid.UUID, limit int) ([]store.TaskItem, error) {
	return nil, nil
}

func (q *recordingQueue) Complete(ctx context.Context, tx store.DBTransaction, taskID int64) error {
	return nil
}

func (q *recordingQueue) Fail(ctx context.Context, tx store.DBTransaction, taskID int64, errMsg string) error {
	return nil
}

func (q *recordingQueue) SetVisibleAfter(ctx context.Context, tx store.DBTransaction, taskID int64, visibleAfter time.Time) error {
	return nil
}

func (q *recordingQueue) Delete(ctx context.Context, tx store.DBTransaction, taskID int64) error {
	q.deletedIDs = append(q.deletedIDs, taskID)
	return nil
}

func (q *recordingQueue) DeletePendingForRun(ctx context.Context, tx store.DBTransaction, runID uuid.UUID) (int64, error) {
	return 0, nil
}

func (q *recordingQueue) CountPendingForRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	return 0, nil
}

func (q *recordingQueue) Count(ctx context.Context) (int64, error) {
	return 0, nil
}

func TestSubmitMarshalsPayload(t *testing.T) {
	q := &recordingQueue{nextID: 17}
	s := NewQueueSubmitter(q)

	task := RunExecutionTask{
		TenantID:   uuid.New(),
		ScenarioID: uuid.New(),
		Language:   "de-DE",
	}

	id, err := s.Submit(context.Background(), nil, store.TaskRunExecution, task.TenantID, nil, task, 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id != "17" {
		t.Errorf("got task id %q, want \"17\"", id)
	}
	if q.enqueueName != store.TaskRunExecution {
		t.Errorf("got task name %q", q.enqueueName)
	}
	if !q.visibleAfter.IsZero() {
		t.Errorf("expected zero visibleAfter for undelayed submit, got %v", q.visibleAfter)
	}

	var decoded RunExecutionTask
	if err := json.Unmarshal(q.enqueuePayload, &decoded); err != nil {
		t.Fatalf("payload does not round-trip: %v", err)
	}
	if decoded.ScenarioID != task.ScenarioID || decoded.Language != "de-DE" {
		t.Errorf("payload mismatch: %+v", decoded)
	}
}

func TestSubmitDelayBecomesVisibleAfter(t *testing.T) {
	q := &recordingQueue{nextID: 1}
	s := NewQueueSubmitter(q)

	before := time.Now()
	_, err := s.Submit(context.Background(), nil, store.TaskAggregateRun, uuid.New(), nil, AggregateRunTask{}, 30*time.Second)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	want := before.Add(30 * time.Second)
	if q.visibleAfter.Before(want) || q.visibleAfter.After(want.Add(time.Second)) {
		t.Errorf("got visibleAfter %v, want ~%v", q.visibleAfter, want)
	}
}

func TestCancelParsesTaskID(t *testing.T) {
	q := &recordingQueue{}
	s := NewQueueSubmitter(q)

	if err := s.Cancel(context.Background(), "42"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if len(q.deletedIDs) != 1 || q.deletedIDs[0] != 42 {
		t.Errorf("got deleted ids %v, want [42]", q.deletedIDs)
	}

	if err := s.Cancel(context.Background(), "not-a-number"); err == nil {
		t.Error("expected error for malformed task id")
	}
}
