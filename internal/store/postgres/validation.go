package postgres

import (
	"context"
	"fmt"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func (s *Store) CreateValidationResult(ctx context.Context, tx store.DBTransaction, result *store.ValidationResult, item *store.ValidationQueueItem) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx, `
		INSERT INTO validation_results (id, execution_id, outcome, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, result.ID, result.ExecutionID, result.Outcome, result.Notes, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create validation result for execution %s: %w", result.ExecutionID, err)
	}

	if item != nil {
		_, err = executor.ExecContext(ctx, `
			INSERT INTO validation_queue_items (id, result_id, status, created_at)
			VALUES ($1, $2, $3, $4)
		`, item.ID, item.ResultID, item.Status, item.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to enqueue validation item for result %s: %w", result.ID, err)
		}
	}

	return nil
}

// ListValidationData loads the validation rows for a batch of executions in
// three queries, so callers never re-derive the result/queue/validation
// joins themselves.
func (s *Store) ListValidationData(ctx context.Context, executionIDs []uuid.UUID) (map[uuid.UUID]*store.ValidationData, error) {
	if len(executionIDs) == 0 {
		return map[uuid.UUID]*store.ValidationData{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, execution_id, outcome, notes, created_at
		FROM validation_results
		WHERE execution_id = ANY($1)
	`, pq.Array(executionIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list validation results: %w", err)
	}
	defer rows.Close()

	data := make(map[uuid.UUID]*store.ValidationData)
	byResult := make(map[uuid.UUID]*store.ValidationData)
	var resultIDs []uuid.UUID

	for rows.Next() {
		var r store.ValidationResult
		if err := rows.Scan(&r.ID, &r.ExecutionID, &r.Outcome, &r.Notes, &r.CreatedAt); err != nil {
			return nil, err
		}
		d := &store.ValidationData{Result: r}
		data[r.ExecutionID] = d
		byResult[r.ID] = d
		resultIDs = append(resultIDs, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(resultIDs) == 0 {
		return data, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, result_id, status, claimed_by, claimed_at, created_at
		FROM validation_queue_items
		WHERE result_id = ANY($1)
		ORDER BY created_at ASC
	`, pq.Array(resultIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list validation queue items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it store.ValidationQueueItem
		if err := itemRows.Scan(&it.ID, &it.ResultID, &it.Status, &it.ClaimedBy, &it.ClaimedAt, &it.CreatedAt); err != nil {
			return nil, err
		}
		if d, ok := byResult[it.ResultID]; ok {
			d.QueueItems = append(d.QueueItems, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	hvRows, err := s.db.QueryContext(ctx, `
		SELECT id, result_id, validator_id, passed, notes, submitted_at, claimed_at, created_at
		FROM human_validations
		WHERE result_id = ANY($1)
		ORDER BY created_at ASC
	`, pq.Array(resultIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list human validations: %w", err)
	}
	defer hvRows.Close()

	for hvRows.Next() {
		var hv store.HumanValidation
		if err := hvRows.Scan(&hv.ID, &hv.ResultID, &hv.ValidatorID, &hv.Passed, &hv.Notes, &hv.SubmittedAt, &hv.ClaimedAt, &hv.CreatedAt); err != nil {
			return nil, err
		}
		if d, ok := byResult[hv.ResultID]; ok {
			d.HumanValidations = append(d.HumanValidations, hv)
		}
	}

	return data, hvRows.Err()
}
