package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func (s *Store) CreateScenario(ctx context.Context, tx store.DBTransaction, scenario *store.Scenario) error {
	executor := s.getExecutor(tx)

	steps, err := json.Marshal(scenario.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal scenario steps: %w", err)
	}

	query := `
		INSERT INTO scenarios (id, tenant_id, suite_id, name, active, steps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = executor.ExecContext(ctx, query,
		scenario.ID, scenario.TenantID, scenario.SuiteID,
		scenario.Name, scenario.Active, steps,
		scenario.CreatedAt, scenario.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scenario %s: %w", scenario.ID, err)
	}
	return nil
}

func (s *Store) GetScenarioByID(ctx context.Context, id uuid.UUID) (*store.Scenario, error) {
	query := "SELECT id, tenant_id, suite_id, name, active, steps, created_at, updated_at FROM scenarios WHERE id = $1"

	return scanScenario(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) ListActiveScenariosBySuite(ctx context.Context, tenantID, suiteID uuid.UUID) ([]store.Scenario, error) {
	query := `
		SELECT id, tenant_id, suite_id, name, active, steps, created_at, updated_at
		FROM scenarios
		WHERE tenant_id = $1 AND suite_id = $2 AND active
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, suiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios for suite %s: %w", suiteID, err)
	}
	defer rows.Close()

	return collectScenarios(rows)
}

func (s *Store) ListScenariosByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]store.Scenario, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, tenant_id, suite_id, name, active, steps, created_at, updated_at
		FROM scenarios
		WHERE tenant_id = $1 AND id = ANY($2)
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios by ids: %w", err)
	}
	defer rows.Close()

	return collectScenarios(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScenario(row rowScanner) (*store.Scenario, error) {
	var sc store.Scenario
	var steps []byte

	err := row.Scan(
		&sc.ID, &sc.TenantID, &sc.SuiteID,
		&sc.Name, &sc.Active, &steps,
		&sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(steps, &sc.Steps); err != nil {
		return nil, fmt.Errorf("corrupt scenario steps for %s: %w", sc.ID, err)
	}

	return &sc, nil
}

func collectScenarios(rows interface {
	Next() bool
	Err() error
	Scan(dest ...interface{}) error
}) ([]store.Scenario, error) {
	var scenarios []store.Scenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, *sc)
	}
	return scenarios, rows.Err()
}
