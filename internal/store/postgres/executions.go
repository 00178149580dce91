package postgres

import (
	"context"
	"fmt"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
)

const executionColumns = `id, tenant_id, suite_run_id, scenario_id, language, participant_id,
	state_token, current_step, total_steps, status, state_snapshot, error_message,
	created_at, started_at, completed_at`

func (s *Store) CreateExecution(ctx context.Context, tx store.DBTransaction, execution *store.MultiTurnExecution) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO multi_turn_executions
			(id, tenant_id, suite_run_id, scenario_id, language, participant_id,
			 state_token, current_step, total_steps, status, state_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := executor.ExecContext(ctx, query,
		execution.ID, execution.TenantID, execution.SuiteRunID,
		execution.ScenarioID, execution.Language, execution.ParticipantID,
		execution.StateToken, execution.CurrentStep, execution.TotalSteps,
		execution.Status, execution.StateSnapshot, execution.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution %s: %w", execution.ID, err)
	}
	return nil
}

func (s *Store) GetExecutionByID(ctx context.Context, id uuid.UUID) (*store.MultiTurnExecution, error) {
	query := fmt.Sprintf("SELECT %s FROM multi_turn_executions WHERE id = $1", executionColumns)

	return scanExecution(s.db.QueryRowContext(ctx, query, id))
}

// TransitionExecution applies a status change while the execution is still
// non-terminal. Terminal states are absorbing: once completed, failed or
// cancelled the row never changes status again.
func (s *Store) TransitionExecution(ctx context.Context, tx store.DBTransaction, id uuid.UUID, to store.ExecutionStatus, errMsg *string) (bool, error) {
	executor := s.getExecutor(tx)

	query := `
		UPDATE multi_turn_executions
		SET status = $1,
		    error_message = COALESCE($2, error_message),
		    started_at = CASE WHEN $1 = 'in_progress' THEN COALESCE(started_at, NOW()) ELSE started_at END,
		    completed_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE completed_at END
		WHERE id = $3 AND status NOT IN ('completed', 'failed', 'cancelled')
	`

	res, err := executor.ExecContext(ctx, query, to, errMsg, id)
	if err != nil {
		return false, fmt.Errorf("failed to transition execution %s to %s: %w", id, to, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AppendStep writes one turn and advances the owning execution inside a
// single transaction. The unique (execution_id, step_order) constraint
// rejects duplicate turns from a redelivered task.
func (s *Store) AppendStep(ctx context.Context, step *store.StepExecution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO step_executions
			(id, execution_id, step_order, utterance, input_audio_ref, response_audio_ref,
			 request_id, transcription, command_type, confidence,
			 state_token_before, state_token_after, validation_passed, validation_details,
			 latency_ms, executed_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		step.ID, step.ExecutionID, step.StepOrder, step.Utterance,
		step.InputAudioRef, step.ResponseAudioRef,
		step.RequestID, step.Transcription, step.CommandType, step.Confidence,
		step.StateTokenBefore, step.StateTokenAfter,
		step.ValidationPassed, step.ValidationDetails,
		step.LatencyMS, step.ExecutedAt, step.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert step %d of execution %s: %w", step.StepOrder, step.ExecutionID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE multi_turn_executions
		SET current_step = $1, state_token = $2
		WHERE id = $3 AND status = 'in_progress'
	`, step.StepOrder, step.StateTokenAfter, step.ExecutionID)
	if err != nil {
		return fmt.Errorf("failed to advance execution %s: %w", step.ExecutionID, err)
	}

	return tx.Commit()
}

func (s *Store) ListStepsByExecution(ctx context.Context, executionID uuid.UUID) ([]store.StepExecution, error) {
	query := `
		SELECT id, execution_id, step_order, utterance, input_audio_ref, response_audio_ref,
		       request_id, transcription, command_type, confidence,
		       state_token_before, state_token_after, validation_passed, validation_details,
		       latency_ms, executed_at, error_message
		FROM step_executions
		WHERE execution_id = $1
		ORDER BY step_order ASC
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps for execution %s: %w", executionID, err)
	}
	defer rows.Close()

	var steps []store.StepExecution
	for rows.Next() {
		var st store.StepExecution
		if err := rows.Scan(
			&st.ID, &st.ExecutionID, &st.StepOrder, &st.Utterance,
			&st.InputAudioRef, &st.ResponseAudioRef,
			&st.RequestID, &st.Transcription, &st.CommandType, &st.Confidence,
			&st.StateTokenBefore, &st.StateTokenAfter,
			&st.ValidationPassed, &st.ValidationDetails,
			&st.LatencyMS, &st.ExecutedAt, &st.ErrorMessage,
		); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}

	return steps, rows.Err()
}

func (s *Store) ListExecutionsByRun(ctx context.Context, runID uuid.UUID) ([]store.MultiTurnExecution, error) {
	query := fmt.Sprintf(`SELECT %s FROM multi_turn_executions WHERE suite_run_id = $1 ORDER BY created_at ASC`, executionColumns)

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions for run %s: %w", runID, err)
	}
	defer rows.Close()

	return collectExecutions(rows)
}

// ListFailedExecutionsByRun returns the run's executions that count as
// failed: status failed, or completed without every step passing validation.
// The predicate must match CountExecutionOutcomes, or retry would skip
// validation failures the counters report as failed.
func (s *Store) ListFailedExecutionsByRun(ctx context.Context, runID uuid.UUID) ([]store.MultiTurnExecution, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM multi_turn_executions e
		WHERE suite_run_id = $1
		  AND (status = 'failed'
			OR (status = 'completed'
				AND (NOT EXISTS (SELECT 1 FROM step_executions se WHERE se.execution_id = e.id)
					OR EXISTS (SELECT 1 FROM step_executions se WHERE se.execution_id = e.id AND NOT se.validation_passed))))
		ORDER BY created_at ASC`, executionColumns)

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed executions for run %s: %w", runID, err)
	}
	defer rows.Close()

	return collectExecutions(rows)
}

func (s *Store) CancelNonTerminalExecutions(ctx context.Context, tx store.DBTransaction, runID uuid.UUID) (int64, error) {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, `
		UPDATE multi_turn_executions
		SET status = $1, completed_at = NOW()
		WHERE suite_run_id = $2 AND status NOT IN ('completed', 'failed', 'cancelled')
	`, store.ExecutionStatusCancelled, runID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel executions for run %s: %w", runID, err)
	}

	return res.RowsAffected()
}

// CountExecutionOutcomes computes the aggregator's counters in one scan.
// "Passed" is the computed all-steps-passed property: a completed execution
// with at least one step and no failing step.
func (s *Store) CountExecutionOutcomes(ctx context.Context, runID uuid.UUID) (store.OutcomeCounts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('completed', 'failed', 'cancelled')),
			COUNT(*) FILTER (WHERE status = 'completed'
				AND EXISTS (SELECT 1 FROM step_executions se WHERE se.execution_id = e.id)
				AND NOT EXISTS (SELECT 1 FROM step_executions se WHERE se.execution_id = e.id AND NOT se.validation_passed)),
			COUNT(*) FILTER (WHERE status = 'failed'
				OR (status = 'completed'
					AND (NOT EXISTS (SELECT 1 FROM step_executions se WHERE se.execution_id = e.id)
						OR EXISTS (SELECT 1 FROM step_executions se WHERE se.execution_id = e.id AND NOT se.validation_passed)))),
			COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM multi_turn_executions e
		WHERE suite_run_id = $1
	`

	var counts store.OutcomeCounts
	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&counts.Total, &counts.Terminal, &counts.Passed, &counts.Failed, &counts.Cancelled,
	)
	if err != nil {
		return store.OutcomeCounts{}, fmt.Errorf("failed to count outcomes for run %s: %w", runID, err)
	}

	return counts, nil
}

func scanExecution(row rowScanner) (*store.MultiTurnExecution, error) {
	var e store.MultiTurnExecution
	err := row.Scan(
		&e.ID, &e.TenantID, &e.SuiteRunID, &e.ScenarioID, &e.Language, &e.ParticipantID,
		&e.StateToken, &e.CurrentStep, &e.TotalSteps, &e.Status, &e.StateSnapshot, &e.ErrorMessage,
		&e.CreatedAt, &e.StartedAt, &e.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectExecutions(rows interface {
	Next() bool
	Err() error
	Scan(dest ...interface{}) error
}) ([]store.MultiTurnExecution, error) {
	var executions []store.MultiTurnExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *e)
	}
	return executions, rows.Err()
}
