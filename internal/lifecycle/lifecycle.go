// Package lifecycle owns the suite run state machine: creating runs,
// cancelling them, and spawning retry runs from a completed run's failures.
// Scheduling (fan-out into execution units) lives in the scheduler package;
// lifecycle only moves runs between states.
package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/apperr"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
)

// Store combines the repository methods the lifecycle manager needs.
type Store interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	GetSuiteRunByID(ctx context.Context, id uuid.UUID) (*store.SuiteRun, error)
	CreateSuiteRun(ctx context.Context, tx store.DBTransaction, run *store.SuiteRun) error
	CancelSuiteRun(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (bool, error)
	ListActiveScenariosBySuite(ctx context.Context, tenantID, suiteID uuid.UUID) ([]store.Scenario, error)
	ListScenariosByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]store.Scenario, error)
	ListFailedExecutionsByRun(ctx context.Context, runID uuid.UUID) ([]store.MultiTurnExecution, error)
	CancelNonTerminalExecutions(ctx context.Context, tx store.DBTransaction, runID uuid.UUID) (int64, error)
	DeletePendingForRun(ctx context.Context, tx store.DBTransaction, runID uuid.UUID) (int64, error)
}

// Manager drives suite run state transitions.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// New creates a lifecycle manager.
func New(s Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: s, logger: logger}
}

// CreateRunParams are the inputs to CreateSuiteRun.
// ScenarioIDs, when present, wins over the suite's active scenario set.
type CreateRunParams struct {
	TenantID    uuid.UUID
	SuiteID     *uuid.UUID
	TriggerType store.TriggerType
	Trigger     store.TriggerMetadata
	CreatedBy   *uuid.UUID
}

// CreateSuiteRun records a new run in pending state. Nothing is dispatched
// here; a separate schedule call fans the run out. TotalTests is set to the
// resolved scenario count as a provisional figure and fixed for real when
// the run leaves pending.
func (m *Manager) CreateSuiteRun(ctx context.Context, params CreateRunParams) (*store.SuiteRun, error) {
	if params.TenantID == uuid.Nil {
		return nil, apperr.InvalidArgument("tenant id is required")
	}
	if params.TriggerType == "" {
		params.TriggerType = store.TriggerManual
	}

	scenarios, err := m.resolveScenarios(ctx, params.TenantID, params.SuiteID, params.Trigger.ScenarioIDs)
	if err != nil {
		return nil, err
	}
	if len(scenarios) == 0 && len(params.Trigger.Overrides) == 0 {
		return nil, apperr.InvalidArgument("suite run selects no scenarios")
	}

	total := len(scenarios)
	if len(params.Trigger.Overrides) > 0 {
		total = len(params.Trigger.Overrides)
	}

	run := &store.SuiteRun{
		ID:          uuid.New(),
		TenantID:    params.TenantID,
		SuiteID:     params.SuiteID,
		TriggerType: params.TriggerType,
		Trigger:     params.Trigger,
		Status:      store.SuiteRunStatusPending,
		TotalTests:  total,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}

	if err := m.store.CreateSuiteRun(ctx, nil, run); err != nil {
		return nil, err
	}

	m.logger.Info("suite run created",
		"suite_run_id", run.ID, "trigger", run.TriggerType, "scenarios", total)
	return run, nil
}

// CancelSuiteRun cancels a pending or running run: queued tasks of the run
// are dropped, non-terminal executions are marked cancelled, and the
// untouched remainder is absorbed into skipped_tests.
//
// Cancelling an already-cancelled run succeeds without effect. Cancelling a
// completed run is an invalid transition.
func (m *Manager) CancelSuiteRun(ctx context.Context, runID, tenantID uuid.UUID) (*store.SuiteRun, error) {
	run, err := m.getScopedRun(ctx, runID, tenantID)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case store.SuiteRunStatusCancelled:
		return run, nil
	case store.SuiteRunStatusCompleted:
		return nil, apperr.InvalidState("suite run %s is completed and cannot be cancelled", runID)
	}

	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	dropped, err := m.store.DeletePendingForRun(ctx, tx, runID)
	if err != nil {
		return nil, err
	}
	cancelled, err := m.store.CancelNonTerminalExecutions(ctx, tx, runID)
	if err != nil {
		return nil, err
	}
	moved, err := m.store.CancelSuiteRun(ctx, tx, runID)
	if err != nil {
		return nil, err
	}
	if !moved {
		// A concurrent finalization won the race inside this window.
		return nil, apperr.InvalidState("suite run %s reached a terminal state concurrently", runID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	m.logger.Info("suite run cancelled",
		"suite_run_id", runID, "dropped_tasks", dropped, "cancelled_executions", cancelled)

	return m.store.GetSuiteRunByID(ctx, runID)
}

// RetryFailedTests creates a new pending run whose execution units are
// exactly the (scenario, language) pairs that failed in the source run. The
// source run is left untouched; its lineage is recorded in the new run's
// trigger metadata.
func (m *Manager) RetryFailedTests(ctx context.Context, runID, tenantID uuid.UUID, createdBy *uuid.UUID) (*store.SuiteRun, error) {
	run, err := m.getScopedRun(ctx, runID, tenantID)
	if err != nil {
		return nil, err
	}
	if !run.Status.Terminal() {
		return nil, apperr.InvalidState("suite run %s is %s, only finished runs can be retried", runID, run.Status)
	}

	failed, err := m.store.ListFailedExecutionsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		return nil, apperr.InvalidState("suite run %s has no failed executions to retry", runID)
	}

	overrides := make([]store.ExecutionConfig, 0, len(failed))
	failedIDs := make([]uuid.UUID, 0, len(failed))
	for _, e := range failed {
		overrides = append(overrides, store.ExecutionConfig{
			ScenarioID: e.ScenarioID,
			Language:   e.Language,
		})
		failedIDs = append(failedIDs, e.ID)
	}

	retry := &store.SuiteRun{
		ID:          uuid.New(),
		TenantID:    run.TenantID,
		SuiteID:     run.SuiteID,
		TriggerType: store.TriggerRetry,
		Trigger: store.TriggerMetadata{
			Overrides:          overrides,
			SourceRunID:        &run.ID,
			FailedExecutionIDs: failedIDs,
		},
		Status:     store.SuiteRunStatusPending,
		TotalTests: len(overrides),
		CreatedBy:  createdBy,
		CreatedAt:  time.Now().UTC(),
	}

	if err := m.store.CreateSuiteRun(ctx, nil, retry); err != nil {
		return nil, err
	}

	m.logger.Info("retry run created",
		"suite_run_id", retry.ID, "source_run_id", run.ID, "units", len(overrides))
	return retry, nil
}

// GetSuiteRun returns a tenant-scoped run.
func (m *Manager) GetSuiteRun(ctx context.Context, runID, tenantID uuid.UUID) (*store.SuiteRun, error) {
	return m.getScopedRun(ctx, runID, tenantID)
}

func (m *Manager) getScopedRun(ctx context.Context, runID, tenantID uuid.UUID) (*store.SuiteRun, error) {
	run, err := m.store.GetSuiteRunByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("suite run %s not found", runID)
		}
		return nil, err
	}
	if tenantID != uuid.Nil && run.TenantID != tenantID {
		return nil, apperr.NotFound("suite run %s not found", runID)
	}
	return run, nil
}

func (m *Manager) resolveScenarios(ctx context.Context, tenantID uuid.UUID, suiteID *uuid.UUID, scenarioIDs []uuid.UUID) ([]store.Scenario, error) {
	if len(scenarioIDs) > 0 {
		scenarios, err := m.store.ListScenariosByIDs(ctx, tenantID, scenarioIDs)
		if err != nil {
			return nil, err
		}
		if len(scenarios) != len(scenarioIDs) {
			return nil, apperr.InvalidArgument("one or more requested scenarios do not exist")
		}
		return scenarios, nil
	}
	if suiteID != nil {
		return m.store.ListActiveScenariosBySuite(ctx, tenantID, *suiteID)
	}
	return nil, nil
}
