package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Default retry policy for task delivery. These retries cover
// infrastructure failures (worker crashed, database unreachable); a test
// that ran and failed is a completed task, never a retried one.
const (
	MaxTaskRetries    = 5
	VisibilityTimeout = 5 * time.Minute
)

// Enqueue adds a task to the task_queue.
func (s *Store) Enqueue(ctx context.Context, tx store.DBTransaction, name string, tenantID uuid.UUID, suiteRunID *uuid.UUID, payload json.RawMessage, visibleAfter time.Time) (int64, error) {
	if visibleAfter.IsZero() {
		visibleAfter = time.Now()
	}

	executor := s.getExecutor(tx)

	query := `
		INSERT INTO task_queue (task_name, tenant_id, suite_run_id, payload, visible_after)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := executor.QueryRowContext(ctx, query, name, tenantID, suiteRunID, payload, visibleAfter).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s task: %w", name, err)
	}

	return id, nil
}

// DequeueBatch claims up to 'limit' available tasks atomically using
// SELECT ... FOR UPDATE SKIP LOCKED. Returns nil slice if none are
// available.
func (s *Store) DequeueBatch(ctx context.Context, tenantIDs []uuid.UUID, limit int) ([]store.TaskItem, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	args := []interface{}{limit}
	whereClause := "WHERE visible_after <= NOW()"

	if len(tenantIDs) > 0 {
		whereClause += " AND tenant_id = ANY($2)"
		args = append(args, pq.Array(tenantIDs))
	}

	selectQuery := fmt.Sprintf(`
		SELECT id, task_name, payload
		FROM task_queue
		%s
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, whereClause)

	rows, err := tx.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("batch dequeue query failed: %w", err)
	}
	defer rows.Close()

	var items []store.TaskItem
	var taskIDs []int64

	for rows.Next() {
		var item store.TaskItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Payload); err != nil {
			return nil, fmt.Errorf("batch dequeue scan failed: %w", err)
		}
		items = append(items, item)
		taskIDs = append(taskIDs, item.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch dequeue rows error: %w", err)
	}

	// Empty queue
	if len(items) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE task_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'),
		    attempt = attempt + 1
		WHERE id = ANY($2)
	`, VisibilityTimeout.Seconds(), pq.Array(taskIDs))
	if err != nil {
		return nil, fmt.Errorf("batch visibility update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return items, nil
}

// Complete removes a finished task.
func (s *Store) Complete(ctx context.Context, tx store.DBTransaction, taskID int64) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx, "DELETE FROM task_queue WHERE id = $1", taskID)
	return err
}

// Fail re-schedules a task with exponential backoff until the retry budget
// is exhausted, then drops it. The delayed aggregator pass reconciles any
// execution configs that never produced an execution record.
func (s *Store) Fail(ctx context.Context, tx store.DBTransaction, taskID int64, errMsg string) error {
	executor := s.getExecutor(tx)

	var attempt int
	err := executor.QueryRowContext(ctx, "SELECT attempt FROM task_queue WHERE id = $1", taskID).Scan(&attempt)

	isFatal := false
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Task already gone
			return nil
		}
		return err
	} else if attempt > MaxTaskRetries {
		isFatal = true
	}

	if !isFatal {
		// Exponential backoff: 10s * 2^attempt
		backoff := time.Duration(10*(1<<attempt)) * time.Second
		_, err = executor.ExecContext(ctx, `
			UPDATE task_queue
			SET visible_after = NOW() + ($1 * INTERVAL '1 second')
			WHERE id = $2
		`, backoff.Seconds(), taskID)
		return err
	}

	_, err = executor.ExecContext(ctx, "DELETE FROM task_queue WHERE id = $1", taskID)
	if err != nil {
		return fmt.Errorf("failed to drop exhausted task %d (%s): %w", taskID, errMsg, err)
	}
	return nil
}

// SetVisibleAfter extends the heartbeat.
func (s *Store) SetVisibleAfter(ctx context.Context, tx store.DBTransaction, taskID int64, visibleAfter time.Time) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		UPDATE task_queue
		SET visible_after = $1
		WHERE id = $2
	`, visibleAfter, taskID)
	return err
}

// Delete removes a task by id. Best-effort cancel: a row already claimed
// and deleted by a worker is a no-op here.
func (s *Store) Delete(ctx context.Context, tx store.DBTransaction, taskID int64) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, "DELETE FROM task_queue WHERE id = $1", taskID)
	return err
}

// DeletePendingForRun drops every still-queued task of a suite run.
func (s *Store) DeletePendingForRun(ctx context.Context, tx store.DBTransaction, runID uuid.UUID) (int64, error) {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, "DELETE FROM task_queue WHERE suite_run_id = $1", runID)
	if err != nil {
		return 0, fmt.Errorf("failed to drop queued tasks for run %s: %w", runID, err)
	}
	return res.RowsAffected()
}

// CountPendingForRun returns how many execution tasks of a run remain
// queued. Only run_execution rows count: a claimed task stays in task_queue
// until the worker settles it, so counting the run's aggregation task here
// would make the aggregator see its own row as pending work and reschedule
// forever.
func (s *Store) CountPendingForRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM task_queue WHERE suite_run_id = $1 AND task_name = $2",
		runID, store.TaskRunExecution,
	).Scan(&count)
	return count, err
}

// Count tracks count of items in the queue.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM task_queue").Scan(&count)
	return count, err
}
