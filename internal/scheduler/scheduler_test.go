package scheduler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/apperr"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/dispatch"
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
	run       *store.SuiteRun
	scenarios []store.Scenario

	tx              *fakeTx
	markRunningOK   bool
	markRunningArgs []int
}

func (m *mockStore) BeginTx(ctx context.Context) (store.Tx, error) {
	m.tx = &fakeTx{}
	return m.tx, nil
}

func (m *mockStore) GetSuiteRunByID(ctx context.Context, id uuid.UUID) (*store.SuiteRun, error) {
	if m.run == nil || m.run.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.run, nil
}

func (m *mockStore) GetScenarioByID(ctx context.Context, id uuid.UUID) (*store.Scenario, error) {
	for i := range m.scenarios {
		if m.scenarios[i].ID == id {
			return &m.scenarios[i], nil
		}
	}
	return nil, sql.ErrNoRows
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

func (m *mockStore) MarkSuiteRunRunning(ctx context.Context, tx store.DBTransaction, id uuid.UUID, total int) (bool, error) {
	m.markRunningArgs = append(m.markRunningArgs, total)
	return m.markRunningOK, nil
}

// mockSubmitter implements dispatch.Submitter for testing.
type mockSubmitter struct {
	submissions []submission
}

type submission struct {
	name    string
	payload any
	inTx    bool
	delay   time.Duration
}

func (m *mockSubmitter) Submit(ctx context.Context, tx store.DBTransaction, name string, tenantID uuid.UUID, suiteRunID *uuid.UUID, payload any, delay time.Duration) (string, error) {
	m.submissions = append(m.submissions, submission{name: name, payload: payload, inTx: tx != nil, delay: delay})
	return "task-1", nil
}

func (m *mockSubmitter) Cancel(ctx context.Context, taskID string) error {
	return nil
}

func pendingRun(tenantID uuid.UUID) *store.SuiteRun {
	suiteID := uuid.New()
	return &store.SuiteRun{
		ID:       uuid.New(),
		TenantID: tenantID,
		SuiteID:  &suiteID,
		Status:   store.SuiteRunStatusPending,
	}
}

func suiteScenarios(suiteID uuid.UUID, n int) []store.Scenario {
	out := make([]store.Scenario, n)
	for i := range out {
		out[i] = store.Scenario{ID: uuid.New(), SuiteID: &suiteID, Active: true}
	}
	return out
}

func (m *mockSubmitter) executionTasks() []dispatch.RunExecutionTask {
	var out []dispatch.RunExecutionTask
	for _, s := range m.submissions {
		if s.name == store.TaskRunExecution {
			out = append(out, s.payload.(dispatch.RunExecutionTask))
		}
	}
	return out
}

func TestScheduleFansOutScenarioLanguageProduct(t *testing.T) {
	tenantID := uuid.New()
	run := pendingRun(tenantID)
	run.Trigger.Languages = store.LanguageList{"en-US", "de-DE", "fr-FR"}

	ms := &mockStore{run: run, scenarios: suiteScenarios(*run.SuiteID, 2), markRunningOK: true}
	sub := &mockSubmitter{}
	s := New(ms, sub, nil, Options{})

	taskIDs, err := s.ScheduleTestExecutions(context.Background(), run.ID, tenantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 2 scenarios x 3 languages
	if len(taskIDs) != 6 {
		t.Fatalf("expected 6 task ids, got %d", len(taskIDs))
	}
	tasks := sub.executionTasks()
	if len(tasks) != 6 {
		t.Fatalf("expected 6 execution tasks, got %d", len(tasks))
	}
	if len(ms.markRunningArgs) != 1 || ms.markRunningArgs[0] != 6 {
		t.Errorf("expected total fixed at 6, got %v", ms.markRunningArgs)
	}
	if !ms.tx.committed {
		t.Error("expected the dispatch transaction to commit")
	}

	langs := map[string]int{}
	for _, task := range tasks {
		langs[task.Language]++
		if task.SuiteRunID == nil || *task.SuiteRunID != run.ID {
			t.Error("expected tasks to reference the run")
		}
	}
	for _, l := range []string{"en-US", "de-DE", "fr-FR"} {
		if langs[l] != 2 {
			t.Errorf("expected 2 units for %s, got %d", l, langs[l])
		}
	}
}

func TestScheduleDefaultsLanguage(t *testing.T) {
	tenantID := uuid.New()
	run := pendingRun(tenantID)
	run.Trigger.Languages = store.LanguageList{"  ", ""}

	ms := &mockStore{run: run, scenarios: suiteScenarios(*run.SuiteID, 1), markRunningOK: true}
	sub := &mockSubmitter{}
	s := New(ms, sub, nil, Options{DefaultLanguage: "en-GB"})

	if _, err := s.ScheduleTestExecutions(context.Background(), run.ID, tenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks := sub.executionTasks()
	if len(tasks) != 1 || tasks[0].Language != "en-GB" {
		t.Fatalf("expected one unit in the default language, got %+v", tasks)
	}
}

func TestScheduleEnqueuesDelayedAggregation(t *testing.T) {
	tenantID := uuid.New()
	run := pendingRun(tenantID)

	ms := &mockStore{run: run, scenarios: suiteScenarios(*run.SuiteID, 1), markRunningOK: true}
	sub := &mockSubmitter{}
	s := New(ms, sub, nil, Options{AggregateDelay: 45 * time.Second})

	if _, err := s.ScheduleTestExecutions(context.Background(), run.ID, tenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var agg *submission
	for i := range sub.submissions {
		if sub.submissions[i].name == store.TaskAggregateRun {
			agg = &sub.submissions[i]
		}
	}
	if agg == nil {
		t.Fatal("expected an aggregation task")
	}
	if agg.delay != 45*time.Second {
		t.Errorf("expected 45s delay, got %v", agg.delay)
	}
	if agg.inTx {
		t.Error("expected aggregation enqueued outside the dispatch transaction")
	}
}

func TestScheduleOverridesWinVerbatim(t *testing.T) {
	tenantID := uuid.New()
	run := pendingRun(tenantID)
	scenarios := suiteScenarios(*run.SuiteID, 3)
	run.Trigger.Languages = store.LanguageList{"en-US", "de-DE"}
	run.Trigger.Overrides = []store.ExecutionConfig{
		{ScenarioID: scenarios[0].ID, Language: "de-DE"},
		{ScenarioID: scenarios[2].ID, Language: "en-US"},
	}

	ms := &mockStore{run: run, scenarios: scenarios, markRunningOK: true}
	sub := &mockSubmitter{}
	s := New(ms, sub, nil, Options{})

	if _, err := s.ScheduleTestExecutions(context.Background(), run.ID, tenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Overrides bypass the cross-product entirely.
	tasks := sub.executionTasks()
	if len(tasks) != 2 {
		t.Fatalf("expected exactly the 2 override units, got %d", len(tasks))
	}
	if tasks[0].ScenarioID != scenarios[0].ID || tasks[0].Language != "de-DE" {
		t.Errorf("unexpected first unit: %+v", tasks[0])
	}
}

func TestScheduleOverrideMissingScenario(t *testing.T) {
	tenantID := uuid.New()
	run := pendingRun(tenantID)
	run.Trigger.Overrides = []store.ExecutionConfig{{ScenarioID: uuid.New(), Language: "en-US"}}

	ms := &mockStore{run: run, markRunningOK: true}
	s := New(ms, &mockSubmitter{}, nil, Options{})

	_, err := s.ScheduleTestExecutions(context.Background(), run.ID, tenantID)
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestScheduleErrors(t *testing.T) {
	tenantID := uuid.New()

	t.Run("missing run", func(t *testing.T) {
		ms := &mockStore{}
		s := New(ms, &mockSubmitter{}, nil, Options{})
		_, err := s.ScheduleTestExecutions(context.Background(), uuid.New(), tenantID)
		if !apperr.IsNotFound(err) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("tenant mismatch reads as missing", func(t *testing.T) {
		run := pendingRun(uuid.New())
		ms := &mockStore{run: run}
		s := New(ms, &mockSubmitter{}, nil, Options{})
		_, err := s.ScheduleTestExecutions(context.Background(), run.ID, tenantID)
		if !apperr.IsNotFound(err) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("non-pending run", func(t *testing.T) {
		run := pendingRun(tenantID)
		run.Status = store.SuiteRunStatusRunning
		ms := &mockStore{run: run}
		s := New(ms, &mockSubmitter{}, nil, Options{})
		_, err := s.ScheduleTestExecutions(context.Background(), run.ID, tenantID)
		if !apperr.IsInvalidState(err) {
			t.Fatalf("expected INVALID_STATE, got %v", err)
		}
	})

	t.Run("zero units", func(t *testing.T) {
		run := pendingRun(tenantID)
		ms := &mockStore{run: run} // no scenarios in the suite
		s := New(ms, &mockSubmitter{}, nil, Options{})
		_, err := s.ScheduleTestExecutions(context.Background(), run.ID, tenantID)
		if !apperr.IsInvalidArgument(err) {
			t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
		}
	})
}

func TestScheduleConcurrentLoserRollsBack(t *testing.T) {
	tenantID := uuid.New()
	run := pendingRun(tenantID)

	ms := &mockStore{run: run, scenarios: suiteScenarios(*run.SuiteID, 1), markRunningOK: false}
	sub := &mockSubmitter{}
	s := New(ms, sub, nil, Options{})

	_, err := s.ScheduleTestExecutions(context.Background(), run.ID, tenantID)
	if !apperr.IsInvalidState(err) {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
	if ms.tx.committed {
		t.Error("expected the transaction not to commit")
	}
	if !ms.tx.rolledBack {
		t.Error("expected the transaction to roll back")
	}

	// No aggregation pass for a run that was never scheduled here.
	for _, s := range sub.submissions {
		if s.name == store.TaskAggregateRun {
			t.Error("expected no aggregation task after a lost race")
		}
	}
}

func TestScheduleExplicitScenarioIDs(t *testing.T) {
	tenantID := uuid.New()
	run := pendingRun(tenantID)
	scenarios := suiteScenarios(*run.SuiteID, 3)
	run.Trigger.ScenarioIDs = []uuid.UUID{scenarios[1].ID}

	ms := &mockStore{run: run, scenarios: scenarios, markRunningOK: true}
	sub := &mockSubmitter{}
	s := New(ms, sub, nil, Options{})

	if _, err := s.ScheduleTestExecutions(context.Background(), run.ID, tenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks := sub.executionTasks()
	if len(tasks) != 1 || tasks[0].ScenarioID != scenarios[1].ID {
		t.Fatalf("expected the explicit scenario only, got %+v", tasks)
	}
}
