// Package scheduler turns a pending suite run into dispatched execution
// units. It runs single-threaded per invocation and fans the work out to
// the worker pool through the dispatch boundary.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/apperr"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/dispatch"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Store combines the repository methods the scheduler needs.
type Store interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	GetSuiteRunByID(ctx context.Context, id uuid.UUID) (*store.SuiteRun, error)
	GetScenarioByID(ctx context.Context, id uuid.UUID) (*store.Scenario, error)
	ListActiveScenariosBySuite(ctx context.Context, tenantID, suiteID uuid.UUID) ([]store.Scenario, error)
	ListScenariosByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]store.Scenario, error)
	MarkSuiteRunRunning(ctx context.Context, tx store.DBTransaction, id uuid.UUID, total int) (bool, error)
}

// Scheduler expands suite runs into execution units and dispatches them.
type Scheduler struct {
	store           Store
	submitter       dispatch.Submitter
	logger          *slog.Logger
	defaultLanguage string
	aggregateDelay  time.Duration
}

// Options tunes scheduling behavior.
type Options struct {
	// DefaultLanguage is the baseline used when a run carries no language
	// list (default: en-US).
	DefaultLanguage string

	// AggregateDelay is how long after dispatch the reconciliation pass
	// runs (default: 30s). It is a safety net; workers push incremental
	// counter updates as they finish.
	AggregateDelay time.Duration
}

// New creates a scheduler.
func New(s Store, submitter dispatch.Submitter, logger *slog.Logger, opts Options) *Scheduler {
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en-US"
	}
	if opts.AggregateDelay <= 0 {
		opts.AggregateDelay = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:           s,
		submitter:       submitter,
		logger:          logger,
		defaultLanguage: opts.DefaultLanguage,
		aggregateDelay:  opts.AggregateDelay,
	}
}

// ScheduleTestExecutions expands a pending run into (scenario, language)
// units, dispatches one task per unit, and moves the run to running.
//
// tenantID may be uuid.Nil in single-tenant deployments; otherwise a
// mismatch is indistinguishable from a missing run.
func (s *Scheduler) ScheduleTestExecutions(ctx context.Context, runID, tenantID uuid.UUID) ([]string, error) {
	run, err := s.store.GetSuiteRunByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("suite run %s not found", runID)
		}
		return nil, err
	}
	if tenantID != uuid.Nil && run.TenantID != tenantID {
		return nil, apperr.NotFound("suite run %s not found", runID)
	}
	if run.Status != store.SuiteRunStatusPending {
		return nil, apperr.InvalidState("suite run %s is %s, only pending runs can be scheduled", runID, run.Status)
	}

	languages := s.resolveLanguages(run.Trigger.Languages)

	configs, err := s.buildConfigs(ctx, run, languages)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, apperr.InvalidArgument("suite run %s resolves to zero execution units", runID)
	}

	// Trace context rides inside the task payload so worker spans join
	// this scheduling trace.
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	// Dispatch and the pending -> running transition commit together:
	// either the units are queued and the run is running, or neither.
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	taskIDs := make([]string, 0, len(configs))
	for _, cfg := range configs {
		taskID, err := s.submitter.Submit(ctx, tx, store.TaskRunExecution, run.TenantID, &run.ID, dispatch.RunExecutionTask{
			TenantID:   run.TenantID,
			SuiteRunID: &run.ID,
			ScenarioID: cfg.ScenarioID,
			Language:   cfg.Language,
			Trace:      carrier,
		}, 0)
		if err != nil {
			return nil, err
		}
		taskIDs = append(taskIDs, taskID)
	}

	moved, err := s.store.MarkSuiteRunRunning(ctx, tx, run.ID, len(configs))
	if err != nil {
		return nil, err
	}
	if !moved {
		// Lost a race with a concurrent scheduler call; the transaction
		// rolls back and no duplicate units survive.
		return nil, apperr.InvalidState("suite run %s was scheduled concurrently", runID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	// Safety-net reconciliation after a bounded delay. Enqueued outside
	// the transaction: if it is lost, the next incremental update or a
	// manual aggregate still converges the counters.
	if _, err := s.submitter.Submit(ctx, nil, store.TaskAggregateRun, run.TenantID, &run.ID, dispatch.AggregateRunTask{
		TenantID:   run.TenantID,
		SuiteRunID: run.ID,
		Trace:      carrier,
	}, s.aggregateDelay); err != nil {
		s.logger.Error("failed to enqueue aggregation pass", "suite_run_id", run.ID, "error", err)
	}

	s.logger.Info("suite run scheduled",
		"suite_run_id", run.ID, "units", len(configs), "languages", languages)

	return taskIDs, nil
}

// resolveLanguages normalizes the run's language list: blank entries are
// dropped and an empty result falls back to the baseline language. The
// singleton-string form is already normalized by TriggerMetadata's
// unmarshalling.
func (s *Scheduler) resolveLanguages(languages store.LanguageList) []string {
	out := make([]string, 0, len(languages))
	for _, l := range languages {
		if trimmed := strings.TrimSpace(l); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		out = []string{s.defaultLanguage}
	}
	return out
}

// buildConfigs produces the execution unit set. Explicit overrides (the
// retry path) are used verbatim after checking each referenced scenario
// still exists; otherwise the scenario set is cross-producted with the
// resolved languages.
func (s *Scheduler) buildConfigs(ctx context.Context, run *store.SuiteRun, languages []string) ([]store.ExecutionConfig, error) {
	if len(run.Trigger.Overrides) > 0 {
		for _, cfg := range run.Trigger.Overrides {
			if _, err := s.store.GetScenarioByID(ctx, cfg.ScenarioID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, apperr.NotFound("override references missing scenario %s", cfg.ScenarioID)
				}
				return nil, err
			}
		}
		return run.Trigger.Overrides, nil
	}

	var scenarios []store.Scenario
	var err error
	if len(run.Trigger.ScenarioIDs) > 0 {
		scenarios, err = s.store.ListScenariosByIDs(ctx, run.TenantID, run.Trigger.ScenarioIDs)
	} else if run.SuiteID != nil {
		scenarios, err = s.store.ListActiveScenariosBySuite(ctx, run.TenantID, *run.SuiteID)
	}
	if err != nil {
		return nil, err
	}

	configs := make([]store.ExecutionConfig, 0, len(scenarios)*len(languages))
	for _, sc := range scenarios {
		for _, lang := range languages {
			configs = append(configs, store.ExecutionConfig{ScenarioID: sc.ID, Language: lang})
		}
	}
	return configs, nil
}
