package lifecycle

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/apperr"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
)

// fakeTx implements store.Tx for testing.
type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}
func (t *fakeTx) Commit() error {
	t.committed = true
	return nil
}
func (t *fakeTx) Rollback() error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// mockStore implements Store for testing.
type mockStore struct {
	runs      map[uuid.UUID]*store.SuiteRun
	scenarios []store.Scenario
	failed    []store.MultiTurnExecution

	tx                  *fakeTx
	created             []*store.SuiteRun
	cancelledExecutions int64
	droppedTasks        int64
	cancelRunCalled     bool
}

func newMockStore() *mockStore {
	return &mockStore{runs: make(map[uuid.UUID]*store.SuiteRun)}
}

func (m *mockStore) BeginTx(ctx context.Context) (store.Tx, error) {
	m.tx = &fakeTx{}
	return m.tx, nil
}

func (m *mockStore) GetSuiteRunByID(ctx context.Context, id uuid.UUID) (*store.SuiteRun, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *run
	return &copied, nil
}

func (m *mockStore) CreateSuiteRun(ctx context.Context, tx store.DBTransaction, run *store.SuiteRun) error {
	copied := *run
	m.runs[run.ID] = &copied
	m.created = append(m.created, &copied)
	return nil
}

func (m *mockStore) CancelSuiteRun(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (bool, error) {
	m.cancelRunCalled = true
	run, ok := m.runs[id]
	if !ok || run.Status.Terminal() {
		return false, nil
	}
	run.Status = store.SuiteRunStatusCancelled
	run.SkippedTests = run.TotalTests - run.PassedTests - run.FailedTests
	return true, nil
}

func (m *mockStore) ListActiveScenariosBySuite(ctx context.Context, tenantID, suiteID uuid.UUID) ([]store.Scenario, error) {
	var out []store.Scenario
	for _, s := range m.scenarios {
		if s.Active && s.SuiteID != nil && *s.SuiteID == suiteID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStore) ListScenariosByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]store.Scenario, error) {
	var out []store.Scenario
	for _, id := range ids {
		for _, s := range m.scenarios {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (m *mockStore) ListFailedExecutionsByRun(ctx context.Context, runID uuid.UUID) ([]store.MultiTurnExecution, error) {
	return m.failed, nil
}

func (m *mockStore) CancelNonTerminalExecutions(ctx context.Context, tx store.DBTransaction, runID uuid.UUID) (int64, error) {
	return m.cancelledExecutions, nil
}

func (m *mockStore) DeletePendingForRun(ctx context.Context, tx store.DBTransaction, runID uuid.UUID) (int64, error) {
	return m.droppedTasks, nil
}

func TestCreateSuiteRunFromSuite(t *testing.T) {
	ms := newMockStore()
	tenantID := uuid.New()
	suiteID := uuid.New()
	ms.scenarios = []store.Scenario{
		{ID: uuid.New(), SuiteID: &suiteID, Active: true},
		{ID: uuid.New(), SuiteID: &suiteID, Active: true},
		{ID: uuid.New(), SuiteID: &suiteID, Active: false}, // inactive is excluded
	}

	m := New(ms, nil)
	run, err := m.CreateSuiteRun(context.Background(), CreateRunParams{
		TenantID: tenantID,
		SuiteID:  &suiteID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.Status != store.SuiteRunStatusPending {
		t.Errorf("expected pending, got %s", run.Status)
	}
	if run.TotalTests != 2 {
		t.Errorf("expected 2 total tests, got %d", run.TotalTests)
	}
	if run.TriggerType != store.TriggerManual {
		t.Errorf("expected manual trigger default, got %s", run.TriggerType)
	}
}

func TestCreateSuiteRunExplicitScenarioIDsWin(t *testing.T) {
	ms := newMockStore()
	suiteID := uuid.New()
	ms.scenarios = []store.Scenario{
		{ID: uuid.New(), SuiteID: &suiteID, Active: true},
		{ID: uuid.New(), SuiteID: &suiteID, Active: true},
	}

	m := New(ms, nil)
	run, err := m.CreateSuiteRun(context.Background(), CreateRunParams{
		TenantID: uuid.New(),
		SuiteID:  &suiteID,
		Trigger:  store.TriggerMetadata{ScenarioIDs: []uuid.UUID{ms.scenarios[1].ID}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.TotalTests != 1 {
		t.Errorf("expected explicit list to win over suite, got %d", run.TotalTests)
	}
}

func TestCreateSuiteRunRejections(t *testing.T) {
	ms := newMockStore()
	m := New(ms, nil)

	t.Run("no tenant", func(t *testing.T) {
		_, err := m.CreateSuiteRun(context.Background(), CreateRunParams{})
		if !apperr.IsInvalidArgument(err) {
			t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
		}
	})

	t.Run("no scenarios", func(t *testing.T) {
		suiteID := uuid.New() // empty suite
		_, err := m.CreateSuiteRun(context.Background(), CreateRunParams{TenantID: uuid.New(), SuiteID: &suiteID})
		if !apperr.IsInvalidArgument(err) {
			t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
		}
	})

	t.Run("unknown scenario id", func(t *testing.T) {
		_, err := m.CreateSuiteRun(context.Background(), CreateRunParams{
			TenantID: uuid.New(),
			Trigger:  store.TriggerMetadata{ScenarioIDs: []uuid.UUID{uuid.New()}},
		})
		if !apperr.IsInvalidArgument(err) {
			t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
		}
	})
}

func TestCancelSuiteRun(t *testing.T) {
	ms := newMockStore()
	tenantID := uuid.New()
	run := &store.SuiteRun{ID: uuid.New(), TenantID: tenantID, Status: store.SuiteRunStatusRunning, TotalTests: 10, PassedTests: 3, FailedTests: 2}
	ms.runs[run.ID] = run
	ms.cancelledExecutions = 2
	ms.droppedTasks = 3

	m := New(ms, nil)
	got, err := m.CancelSuiteRun(context.Background(), run.ID, tenantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Status != store.SuiteRunStatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	// Remainder folds into skipped: 10 - 3 - 2.
	if got.SkippedTests != 5 {
		t.Errorf("expected 5 skipped, got %d", got.SkippedTests)
	}
	if !ms.tx.committed {
		t.Error("expected the cancel transaction to commit")
	}
}

func TestCancelSuiteRunIdempotent(t *testing.T) {
	ms := newMockStore()
	tenantID := uuid.New()
	run := &store.SuiteRun{ID: uuid.New(), TenantID: tenantID, Status: store.SuiteRunStatusCancelled}
	ms.runs[run.ID] = run

	m := New(ms, nil)
	got, err := m.CancelSuiteRun(context.Background(), run.ID, tenantID)
	if err != nil {
		t.Fatalf("expected idempotent success, got %v", err)
	}
	if got.Status != store.SuiteRunStatusCancelled {
		t.Errorf("unexpected status %s", got.Status)
	}
	if ms.cancelRunCalled {
		t.Error("expected no store mutation on an already-cancelled run")
	}
}

func TestCancelCompletedRunIsInvalid(t *testing.T) {
	ms := newMockStore()
	tenantID := uuid.New()
	run := &store.SuiteRun{ID: uuid.New(), TenantID: tenantID, Status: store.SuiteRunStatusCompleted}
	ms.runs[run.ID] = run

	m := New(ms, nil)
	_, err := m.CancelSuiteRun(context.Background(), run.ID, tenantID)
	if !apperr.IsInvalidState(err) {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
}

func TestCancelMissingRun(t *testing.T) {
	m := New(newMockStore(), nil)
	_, err := m.CancelSuiteRun(context.Background(), uuid.New(), uuid.New())
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestCancelTenantMismatch(t *testing.T) {
	ms := newMockStore()
	run := &store.SuiteRun{ID: uuid.New(), TenantID: uuid.New(), Status: store.SuiteRunStatusRunning}
	ms.runs[run.ID] = run

	m := New(ms, nil)
	_, err := m.CancelSuiteRun(context.Background(), run.ID, uuid.New())
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND for foreign tenant, got %v", err)
	}
}

func TestRetryFailedTests(t *testing.T) {
	ms := newMockStore()
	tenantID := uuid.New()
	suiteID := uuid.New()
	source := &store.SuiteRun{ID: uuid.New(), TenantID: tenantID, SuiteID: &suiteID, Status: store.SuiteRunStatusCompleted}
	ms.runs[source.ID] = source

	scenarioA, scenarioB := uuid.New(), uuid.New()
	ms.failed = []store.MultiTurnExecution{
		{ID: uuid.New(), ScenarioID: scenarioA, Language: "en-US"},
		{ID: uuid.New(), ScenarioID: scenarioA, Language: "de-DE"},
		{ID: uuid.New(), ScenarioID: scenarioB, Language: "en-US"},
	}

	m := New(ms, nil)
	retry, err := m.RetryFailedTests(context.Background(), source.ID, tenantID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if retry.TriggerType != store.TriggerRetry {
		t.Errorf("expected retry trigger, got %s", retry.TriggerType)
	}
	if retry.Status != store.SuiteRunStatusPending {
		t.Errorf("expected pending, got %s", retry.Status)
	}
	if retry.TotalTests != 3 {
		t.Errorf("expected 3 units, got %d", retry.TotalTests)
	}
	if len(retry.Trigger.Overrides) != 3 {
		t.Fatalf("expected 3 overrides, got %d", len(retry.Trigger.Overrides))
	}
	// The exact failed (scenario, language) pairs, not a language re-expansion.
	if retry.Trigger.Overrides[1].ScenarioID != scenarioA || retry.Trigger.Overrides[1].Language != "de-DE" {
		t.Errorf("unexpected override: %+v", retry.Trigger.Overrides[1])
	}
	if retry.Trigger.SourceRunID == nil || *retry.Trigger.SourceRunID != source.ID {
		t.Error("expected lineage back to the source run")
	}
	if len(retry.Trigger.FailedExecutionIDs) != 3 {
		t.Errorf("expected 3 failed execution ids, got %d", len(retry.Trigger.FailedExecutionIDs))
	}

	// The source run is untouched.
	if ms.runs[source.ID].Status != store.SuiteRunStatusCompleted {
		t.Error("expected source run to stay completed")
	}
}

func TestRetryIncludesValidationFailures(t *testing.T) {
	// A conversation that completed but did not pass validation surfaces in
	// the store's failed listing with status completed. Retry treats it
	// like any hard failure.
	ms := newMockStore()
	tenantID := uuid.New()
	source := &store.SuiteRun{ID: uuid.New(), TenantID: tenantID, Status: store.SuiteRunStatusCompleted, FailedTests: 1}
	ms.runs[source.ID] = source

	scenarioID := uuid.New()
	ms.failed = []store.MultiTurnExecution{
		{ID: uuid.New(), ScenarioID: scenarioID, Language: "fr-FR", Status: store.ExecutionStatusCompleted},
	}

	m := New(ms, nil)
	retry, err := m.RetryFailedTests(context.Background(), source.ID, tenantID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(retry.Trigger.Overrides) != 1 {
		t.Fatalf("expected 1 override, got %d", len(retry.Trigger.Overrides))
	}
	if retry.Trigger.Overrides[0].ScenarioID != scenarioID || retry.Trigger.Overrides[0].Language != "fr-FR" {
		t.Errorf("unexpected override: %+v", retry.Trigger.Overrides[0])
	}
}

func TestRetryRequiresTerminalRun(t *testing.T) {
	ms := newMockStore()
	tenantID := uuid.New()
	run := &store.SuiteRun{ID: uuid.New(), TenantID: tenantID, Status: store.SuiteRunStatusRunning}
	ms.runs[run.ID] = run
	ms.failed = []store.MultiTurnExecution{{ID: uuid.New()}}

	m := New(ms, nil)
	_, err := m.RetryFailedTests(context.Background(), run.ID, tenantID, nil)
	if !apperr.IsInvalidState(err) {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
}

func TestRetryWithoutFailures(t *testing.T) {
	ms := newMockStore()
	tenantID := uuid.New()
	run := &store.SuiteRun{ID: uuid.New(), TenantID: tenantID, Status: store.SuiteRunStatusCompleted}
	ms.runs[run.ID] = run

	m := New(ms, nil)
	_, err := m.RetryFailedTests(context.Background(), run.ID, tenantID, nil)
	if !apperr.IsInvalidState(err) {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
}
