// Package aggregator reconciles a suite run's counters against the actual
// outcomes of its executions and finalizes the run once every unit has
// concluded. It is the safety net behind the workers' incremental counter
// updates: lost tasks and partial dispatches converge here.
package aggregator

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/dispatch"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
)

// Store combines the repository methods the aggregator needs.
type Store interface {
	GetSuiteRunByID(ctx context.Context, id uuid.UUID) (*store.SuiteRun, error)
	CountExecutionOutcomes(ctx context.Context, runID uuid.UUID) (store.OutcomeCounts, error)
	CountPendingForRun(ctx context.Context, runID uuid.UUID) (int64, error)
	CompleteSuiteRun(ctx context.Context, tx store.DBTransaction, id uuid.UUID, passed, failed, skipped int) (bool, error)
}

// Aggregator finalizes suite runs.
type Aggregator struct {
	store        Store
	submitter    dispatch.Submitter
	logger       *slog.Logger
	recheckDelay time.Duration
}

// New creates an aggregator. recheckDelay bounds how soon a not-yet-settled
// run is looked at again.
func New(s Store, submitter dispatch.Submitter, logger *slog.Logger, recheckDelay time.Duration) *Aggregator {
	if recheckDelay <= 0 {
		recheckDelay = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: s, submitter: submitter, logger: logger, recheckDelay: recheckDelay}
}

// Reconcile recomputes a run's counters from its execution rows and
// completes the run when everything has settled: every existing execution
// is terminal and no task of the run is still queued. Units that were
// scheduled but never produced an execution row (lost tasks past their
// retry budget) are folded into skipped_tests.
//
// Reconcile is idempotent. On an already-terminal run it is a no-op; when
// the run has not settled yet it re-enqueues itself after a delay.
func (a *Aggregator) Reconcile(ctx context.Context, task dispatch.AggregateRunTask) error {
	runID := task.SuiteRunID
	log := a.logger.With("suite_run_id", runID)

	run, err := a.store.GetSuiteRunByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("aggregation requested for unknown suite run")
			return nil
		}
		return err
	}
	if run.Status.Terminal() {
		return nil
	}

	counts, err := a.store.CountExecutionOutcomes(ctx, runID)
	if err != nil {
		return err
	}
	queued, err := a.store.CountPendingForRun(ctx, runID)
	if err != nil {
		return err
	}

	if queued > 0 || counts.Terminal < counts.Total {
		log.Info("suite run not settled yet, rescheduling aggregation",
			"queued_tasks", queued, "terminal", counts.Terminal, "executions", counts.Total)
		_, err := a.submitter.Submit(ctx, nil, store.TaskAggregateRun, run.TenantID, &run.ID, dispatch.AggregateRunTask{
			TenantID:   run.TenantID,
			SuiteRunID: run.ID,
			Trace:      task.Trace,
		}, a.recheckDelay)
		return err
	}

	// Everything that will ever run has run. Cancelled executions and the
	// dispatch shortfall both land in skipped.
	skipped := counts.Cancelled
	if shortfall := run.TotalTests - counts.Total; shortfall > 0 {
		log.Warn("suite run lost execution units to the retry budget", "shortfall", shortfall)
		skipped += shortfall
	}

	done, err := a.store.CompleteSuiteRun(ctx, nil, runID, counts.Passed, counts.Failed, skipped)
	if err != nil {
		return err
	}
	if !done {
		// A concurrent cancel (or a second aggregation pass) got there
		// first. Terminal states absorb; nothing left to do.
		log.Info("suite run already finalized concurrently")
		return nil
	}

	log.Info("suite run completed",
		"passed", counts.Passed, "failed", counts.Failed, "skipped", skipped)
	return nil
}
