package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func executionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "suite_run_id", "scenario_id", "language", "participant_id",
		"state_token", "current_step", "total_steps", "status", "state_snapshot", "error_message",
		"created_at", "started_at", "completed_at",
	})
}

func TestListFailedExecutionsByRun_IncludesValidationFailures(t *testing.T) {
	// The selection predicate must match CountExecutionOutcomes: a completed
	// conversation with a failing step counts as failed, so retry has to
	// pick it up alongside hard failures.
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	runID := uuid.New()
	tenantID := uuid.New()
	hardFailID := uuid.New()
	validationFailID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`status = 'failed'\s+OR \(status = 'completed'\s+AND \(NOT EXISTS .* OR EXISTS .*NOT se\.validation_passed`).
		WithArgs(runID).
		WillReturnRows(executionRows().
			AddRow(hardFailID, tenantID, runID, uuid.New(), "en-US", "p-1",
				"", 1, 3, "failed", nil, "provider gave up", now, now, now).
			AddRow(validationFailID, tenantID, runID, uuid.New(), "de-DE", "p-2",
				"tok", 3, 3, "completed", nil, nil, now, now, now))

	executions, err := store_.ListFailedExecutionsByRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("ListFailedExecutionsByRun failed: %v", err)
	}

	if len(executions) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(executions))
	}
	if executions[0].ID != hardFailID || executions[0].Status != store.ExecutionStatusFailed {
		t.Errorf("unexpected first execution: %+v", executions[0])
	}
	if executions[1].ID != validationFailID || executions[1].Status != store.ExecutionStatusCompleted {
		t.Errorf("expected the validation failure to be included: %+v", executions[1])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCountExecutionOutcomes(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	runID := uuid.New()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\),`).
		WithArgs(runID).
		WillReturnRows(sqlmock.NewRows([]string{"total", "terminal", "passed", "failed", "cancelled"}).
			AddRow(6, 5, 3, 1, 1))

	counts, err := store_.CountExecutionOutcomes(context.Background(), runID)
	if err != nil {
		t.Fatalf("CountExecutionOutcomes failed: %v", err)
	}

	want := store.OutcomeCounts{Total: 6, Terminal: 5, Passed: 3, Failed: 1, Cancelled: 1}
	if counts != want {
		t.Errorf("got %+v, want %+v", counts, want)
	}
}
