// Package runner executes one (scenario, language) execution unit end to
// end: it drives the multi-turn conversation against the NLU provider,
// records each turn, and reports the terminal outcome onto the owning
// suite run's counters.
package runner

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/audio"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/dispatch"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/nlu"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/validation"
	"github.com/google/uuid"
)

// Store combines the repository methods the runner needs.
type Store interface {
	GetSuiteRunByID(ctx context.Context, id uuid.UUID) (*store.SuiteRun, error)
	GetScenarioByID(ctx context.Context, id uuid.UUID) (*store.Scenario, error)
	CreateExecution(ctx context.Context, tx store.DBTransaction, execution *store.MultiTurnExecution) error
	GetExecutionByID(ctx context.Context, id uuid.UUID) (*store.MultiTurnExecution, error)
	TransitionExecution(ctx context.Context, tx store.DBTransaction, id uuid.UUID, to store.ExecutionStatus, errMsg *string) (bool, error)
	AppendStep(ctx context.Context, step *store.StepExecution) error
	IncrementRunCounters(ctx context.Context, tx store.DBTransaction, id uuid.UUID, passed, failed, skipped int) error
	CreateValidationResult(ctx context.Context, tx store.DBTransaction, result *store.ValidationResult, item *store.ValidationQueueItem) error
}

// Runner runs execution units. Safe for concurrent use; each Run call is
// independent.
type Runner struct {
	store  Store
	client nlu.Client
	synth  audio.Synthesizer // Optional; nil disables input-audio synthesis
	logger *slog.Logger
}

// New creates a runner.
func New(s Store, client nlu.Client, synth audio.Synthesizer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: s, client: client, synth: synth, logger: logger}
}

// Run executes one dispatched execution unit.
//
// The returned error reports infrastructure failure only (the task should
// be redelivered). A conversation that ran and failed is a concluded task:
// the failure lands on the execution record and the run's failed counter,
// and Run returns nil.
func (r *Runner) Run(ctx context.Context, task dispatch.RunExecutionTask) error {
	log := r.logger.With("scenario_id", task.ScenarioID, "language", task.Language)

	if task.SuiteRunID != nil {
		// A cancel may have won the race with this claim. The cancellation
		// path already folded the unit into skipped_tests, so starting a
		// fresh execution on a terminal run would corrupt the counters.
		run, err := r.store.GetSuiteRunByID(ctx, *task.SuiteRunID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				log.Error("suite run missing for dispatched unit")
				return nil
			}
			return err
		}
		if run.Status.Terminal() {
			log.Info("suite run already terminal, dropping unit", "status", run.Status)
			return nil
		}
	}

	scenario, err := r.store.GetScenarioByID(ctx, task.ScenarioID)
	if err != nil {
		// The scenario was deleted between scheduling and execution.
		// Nothing runs and no execution row appears; the final
		// reconciliation books the unit as skipped shortfall.
		log.Error("scenario not found for dispatched unit", "error", err)
		return nil
	}

	execution := &store.MultiTurnExecution{
		ID:            uuid.New(),
		TenantID:      task.TenantID,
		SuiteRunID:    task.SuiteRunID,
		ScenarioID:    scenario.ID,
		Language:      task.Language,
		ParticipantID: uuid.NewString(),
		Status:        store.ExecutionStatusPending,
		TotalSteps:    len(scenario.Steps),
		CreatedAt:     time.Now().UTC(),
	}

	if err := r.store.CreateExecution(ctx, nil, execution); err != nil {
		return err
	}
	if _, err := r.store.TransitionExecution(ctx, nil, execution.ID, store.ExecutionStatusInProgress, nil); err != nil {
		return err
	}

	log = log.With("execution_id", execution.ID)

	allPassed := len(scenario.Steps) > 0
	stateToken := ""

	for _, step := range scenario.Steps {
		// Cancellation is advisory: a cancel marks the row terminal and we
		// notice here, after the current turn, never mid-flight.
		current, err := r.store.GetExecutionByID(ctx, execution.ID)
		if err != nil {
			return err
		}
		if current.Status == store.ExecutionStatusCancelled {
			log.Info("execution cancelled, stopping before next turn", "next_step", step.Order)
			return nil
		}

		verdict, stepRec, err := r.runTurn(ctx, execution, step, stateToken)
		if err != nil {
			if ctx.Err() != nil {
				// Worker is shutting down; let the queue redeliver.
				return err
			}
			// The provider gave a terminal answer (retries are already
			// spent inside the client): the whole execution fails at this
			// turn and the remaining turns never run.
			msg := err.Error()
			log.Warn("turn failed, aborting execution", "step", step.Order, "error", msg)
			if _, terr := r.store.TransitionExecution(ctx, nil, execution.ID, store.ExecutionStatusFailed, &msg); terr != nil {
				return terr
			}
			return r.incrementOutcome(ctx, task.SuiteRunID, false)
		}

		if err := r.store.AppendStep(ctx, stepRec); err != nil {
			return err
		}

		stateToken = stepRec.StateTokenAfter
		if !verdict.Passed {
			allPassed = false
		}
	}

	if _, err := r.store.TransitionExecution(ctx, nil, execution.ID, store.ExecutionStatusCompleted, nil); err != nil {
		return err
	}

	if !allPassed {
		// Completed conversations with failing validations go to the human
		// review queue.
		result := &store.ValidationResult{
			ID:          uuid.New(),
			ExecutionID: execution.ID,
			Outcome:     "needs_review",
			CreatedAt:   time.Now().UTC(),
		}
		item := &store.ValidationQueueItem{
			ID:        uuid.New(),
			ResultID:  result.ID,
			Status:    store.QueueItemPending,
			CreatedAt: result.CreatedAt,
		}
		if err := r.store.CreateValidationResult(ctx, nil, result, item); err != nil {
			log.Error("failed to enqueue validation review", "error", err)
		}
	}

	log.Info("execution finished", "all_steps_passed", allPassed)
	return r.incrementOutcome(ctx, task.SuiteRunID, allPassed)
}

// runTurn sends one utterance and assembles the immutable step record.
// The record is returned, not persisted: a failing turn leaves no partial
// step behind.
func (r *Runner) runTurn(ctx context.Context, execution *store.MultiTurnExecution, step store.ScriptStep, stateToken string) (validation.StepVerdict, *store.StepExecution, error) {
	var inputAudioRef *string
	if r.synth != nil {
		if ref, err := r.synth.Synthesize(ctx, step.Utterance, execution.Language); err != nil {
			// Fixture material only; the turn proceeds without it.
			r.logger.Warn("input audio synthesis failed", "execution_id", execution.ID, "step", step.Order, "error", err)
		} else {
			inputAudioRef = &ref
		}
	}

	requestID := uuid.New()
	start := time.Now()

	resp, err := r.client.Query(ctx, nlu.QueryRequest{
		Utterance:     step.Utterance,
		ParticipantID: execution.ParticipantID,
		RequestID:     requestID,
		StateToken:    stateToken,
	})
	if err != nil {
		return validation.StepVerdict{}, nil, err
	}

	latency := time.Since(start)
	verdict := validation.EvaluateStep(step, resp)

	return verdict, &store.StepExecution{
		ID:                uuid.New(),
		ExecutionID:       execution.ID,
		StepOrder:         step.Order,
		Utterance:         step.Utterance,
		InputAudioRef:     inputAudioRef,
		RequestID:         requestID,
		Transcription:     resp.Transcription,
		CommandType:       resp.CommandType,
		Confidence:        resp.Confidence,
		StateTokenBefore:  stateToken,
		StateTokenAfter:   resp.StateToken,
		ValidationPassed:  verdict.Passed,
		ValidationDetails: verdict.Details(),
		LatencyMS:         latency.Milliseconds(),
		ExecutedAt:        time.Now().UTC(),
	}, nil
}

func (r *Runner) incrementOutcome(ctx context.Context, runID *uuid.UUID, passed bool) error {
	if runID == nil {
		return nil
	}
	if passed {
		return r.store.IncrementRunCounters(ctx, nil, *runID, 1, 0, 0)
	}
	return r.store.IncrementRunCounters(ctx, nil, *runID, 0, 1, 0)
}
