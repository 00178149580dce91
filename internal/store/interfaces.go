package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction
// to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// TenantStore handles retrieving tenant information for authentication.
type TenantStore interface {
	// CreateTenant inserts a new tenant to the database.
	CreateTenant(ctx context.Context, tenant *Tenant, hashedKey string) error

	// GetTenantByID returns a tenant by its ID.
	GetTenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// GetTenantByAPIKeyHash returns a tenant by its API key hash.
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*Tenant, error)
}

// ScenarioStore handles the persistence of scenario definitions.
type ScenarioStore interface {
	// CreateScenario inserts a new scenario definition.
	CreateScenario(ctx context.Context, tx DBTransaction, scenario *Scenario) error

	// GetScenarioByID returns a scenario by its ID.
	GetScenarioByID(ctx context.Context, id uuid.UUID) (*Scenario, error)

	// ListActiveScenariosBySuite returns the active scenarios linked to a
	// suite, scoped by tenant.
	ListActiveScenariosBySuite(ctx context.Context, tenantID, suiteID uuid.UUID) ([]Scenario, error)

	// ListScenariosByIDs returns the scenarios matching the given ids,
	// scoped by tenant. Missing ids are simply absent from the result.
	ListScenariosByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]Scenario, error)
}

// SuiteRunStore handles the persistence of suite runs and their counters.
//
// Counter updates are expressed as SQL increments or guarded absolute sets,
// never as read-modify-write on a value cached in memory: executions of the
// same run complete from many workers concurrently.
type SuiteRunStore interface {
	// CreateSuiteRun inserts a new suite run in pending state.
	CreateSuiteRun(ctx context.Context, tx DBTransaction, run *SuiteRun) error

	// GetSuiteRunByID returns a suite run by its ID.
	GetSuiteRunByID(ctx context.Context, id uuid.UUID) (*SuiteRun, error)

	// MarkSuiteRunRunning fixes total_tests and transitions pending ->
	// running, stamping started_at. Returns false when the run was not in
	// pending (the sole guard against double-scheduling).
	MarkSuiteRunRunning(ctx context.Context, tx DBTransaction, id uuid.UUID, total int) (bool, error)

	// IncrementRunCounters applies atomic deltas to the outcome counters.
	IncrementRunCounters(ctx context.Context, tx DBTransaction, id uuid.UUID, passed, failed, skipped int) error

	// CompleteSuiteRun sets the counters to their reconciled values and
	// transitions running -> completed. Returns false when the run was not
	// running (already terminal, or never scheduled).
	CompleteSuiteRun(ctx context.Context, tx DBTransaction, id uuid.UUID, passed, failed, skipped int) (bool, error)

	// CancelSuiteRun transitions pending/running -> cancelled, absorbing
	// the untouched remainder into skipped_tests. Returns false when the
	// run was already terminal.
	CancelSuiteRun(ctx context.Context, tx DBTransaction, id uuid.UUID) (bool, error)
}

// OutcomeCounts is the aggregator's view of a run's executions.
// Passed requires a completed execution whose every step passed validation;
// a completed execution with a failing step counts as failed.
type OutcomeCounts struct {
	Total     int
	Terminal  int
	Passed    int
	Failed    int
	Cancelled int
}

// ExecutionStore handles the persistence of multi-turn executions and their
// turn records.
type ExecutionStore interface {
	// CreateExecution inserts the initial state of a new execution.
	CreateExecution(ctx context.Context, tx DBTransaction, execution *MultiTurnExecution) error

	// GetExecutionByID returns an execution by its ID.
	GetExecutionByID(ctx context.Context, id uuid.UUID) (*MultiTurnExecution, error)

	// TransitionExecution moves an execution to the given status, recording
	// errMsg when non-nil. Terminal states are absorbing: the update only
	// applies while the current status is non-terminal, and the return
	// value reports whether it did.
	TransitionExecution(ctx context.Context, tx DBTransaction, id uuid.UUID, to ExecutionStatus, errMsg *string) (bool, error)

	// AppendStep writes one completed turn and advances the owning
	// execution's step counter and conversation-state token in the same
	// transaction. Steps are immutable once written.
	AppendStep(ctx context.Context, step *StepExecution) error

	// ListStepsByExecution returns an execution's turns in step order.
	ListStepsByExecution(ctx context.Context, executionID uuid.UUID) ([]StepExecution, error)

	// ListExecutionsByRun returns all executions belonging to a suite run.
	ListExecutionsByRun(ctx context.Context, runID uuid.UUID) ([]MultiTurnExecution, error)

	// ListFailedExecutionsByRun returns the executions of a run in failed
	// status, for the retry path.
	ListFailedExecutionsByRun(ctx context.Context, runID uuid.UUID) ([]MultiTurnExecution, error)

	// CancelNonTerminalExecutions marks every pending/in_progress execution
	// of a run cancelled and returns how many rows changed.
	CancelNonTerminalExecutions(ctx context.Context, tx DBTransaction, runID uuid.UUID) (int64, error)

	// CountExecutionOutcomes computes the per-outcome counts for a run.
	CountExecutionOutcomes(ctx context.Context, runID uuid.UUID) (OutcomeCounts, error)
}

// ValidationStore handles the persistence of validation results and their
// queue items / human validations. The core consumes these; it does not own
// their review workflow.
type ValidationStore interface {
	// CreateValidationResult inserts a validation result together with its
	// initial pending queue item.
	CreateValidationResult(ctx context.Context, tx DBTransaction, result *ValidationResult, item *ValidationQueueItem) error

	// ListValidationData returns, for each given execution id, its
	// validation result (if any) with all queue items and human
	// validations. Executions without a result are absent from the map.
	ListValidationData(ctx context.Context, executionIDs []uuid.UUID) (map[uuid.UUID]*ValidationData, error)
}

// ValidationData bundles one execution's validation rows before hydration.
type ValidationData struct {
	Result           ValidationResult
	QueueItems       []ValidationQueueItem
	HumanValidations []HumanValidation
}
