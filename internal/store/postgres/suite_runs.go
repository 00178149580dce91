package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
)

func (s *Store) CreateSuiteRun(ctx context.Context, tx store.DBTransaction, run *store.SuiteRun) error {
	executor := s.getExecutor(tx)

	meta, err := json.Marshal(run.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger metadata: %w", err)
	}

	query := `
		INSERT INTO suite_runs
			(id, tenant_id, suite_id, trigger_type, trigger_metadata, status,
			 total_tests, passed_tests, failed_tests, skipped_tests, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, 0, $8, $9)
	`

	_, err = executor.ExecContext(ctx, query,
		run.ID, run.TenantID, run.SuiteID,
		run.TriggerType, meta, run.Status,
		run.TotalTests, run.CreatedBy, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create suite run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) GetSuiteRunByID(ctx context.Context, id uuid.UUID) (*store.SuiteRun, error) {
	query := `
		SELECT id, tenant_id, suite_id, trigger_type, trigger_metadata, status,
		       total_tests, passed_tests, failed_tests, skipped_tests,
		       created_by, created_at, started_at, completed_at
		FROM suite_runs WHERE id = $1
	`

	var run store.SuiteRun
	var meta []byte

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.TenantID, &run.SuiteID,
		&run.TriggerType, &meta, &run.Status,
		&run.TotalTests, &run.PassedTests, &run.FailedTests, &run.SkippedTests,
		&run.CreatedBy, &run.CreatedAt, &run.StartedAt, &run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(meta, &run.Trigger); err != nil {
		return nil, fmt.Errorf("corrupt trigger metadata for run %s: %w", run.ID, err)
	}

	return &run, nil
}

// MarkSuiteRunRunning fixes total_tests and moves pending -> running.
// The status guard in the WHERE clause is the sole protection against
// double-scheduling; a second call matches zero rows.
func (s *Store) MarkSuiteRunRunning(ctx context.Context, tx store.DBTransaction, id uuid.UUID, total int) (bool, error) {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, `
		UPDATE suite_runs
		SET status = $1, total_tests = $2, started_at = NOW()
		WHERE id = $3 AND status = $4
	`, store.SuiteRunStatusRunning, total, id, store.SuiteRunStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark run %s running: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IncrementRunCounters applies atomic deltas. Concurrently completing
// workers all funnel through this statement; the database serializes the
// increments so no update is lost.
func (s *Store) IncrementRunCounters(ctx context.Context, tx store.DBTransaction, id uuid.UUID, passed, failed, skipped int) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx, `
		UPDATE suite_runs
		SET passed_tests = passed_tests + $1,
		    failed_tests = failed_tests + $2,
		    skipped_tests = skipped_tests + $3
		WHERE id = $4
	`, passed, failed, skipped, id)
	if err != nil {
		return fmt.Errorf("failed to increment counters for run %s: %w", id, err)
	}
	return nil
}

func (s *Store) CompleteSuiteRun(ctx context.Context, tx store.DBTransaction, id uuid.UUID, passed, failed, skipped int) (bool, error) {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, `
		UPDATE suite_runs
		SET status = $1, passed_tests = $2, failed_tests = $3, skipped_tests = $4, completed_at = NOW()
		WHERE id = $5 AND status = $6
	`, store.SuiteRunStatusCompleted, passed, failed, skipped, id, store.SuiteRunStatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to complete run %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CancelSuiteRun folds whatever did not finish before the cancellation
// signal into skipped_tests, so the counter invariant holds on the final
// record.
func (s *Store) CancelSuiteRun(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (bool, error) {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, `
		UPDATE suite_runs
		SET status = $1,
		    skipped_tests = total_tests - passed_tests - failed_tests,
		    completed_at = NOW()
		WHERE id = $2 AND status IN ($3, $4)
	`, store.SuiteRunStatusCancelled, id, store.SuiteRunStatusPending, store.SuiteRunStatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to cancel run %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
