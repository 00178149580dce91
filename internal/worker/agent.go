// Package worker contains the pull-loop agent that executes queued tasks.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/aggregator"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/dispatch"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/runner"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ID                  string
	Concurrency         int
	PollInterval        time.Duration
	MaxBackoff          time.Duration // Maximum backoff when queue is empty (default: 30s)
	HeartbeatInterval   time.Duration // Interval between heartbeat calls (default: 2m)
	VisibilityExtension time.Duration // How long to extend visibility on heartbeat (default: 5m)
	TaskTimeout         time.Duration // Per-task execution deadline (default: 30m)
}

// Agent runs the pull-loop: it claims batches of tasks from the queue and
// routes them to the execution runner or the aggregator.
type Agent struct {
	queue      store.TaskQueue
	runner     *runner.Runner
	aggregator *aggregator.Aggregator
	config     AgentConfig
	tenantIDs  []uuid.UUID
	logger     *slog.Logger
	done       chan struct{}
}

// New creates a new worker agent.
// tenantIDs: Optional. If provided, this worker only pulls tasks for these specific tenants.
func New(q store.TaskQueue, r *runner.Runner, agg *aggregator.Aggregator, config AgentConfig, tenantIDs []uuid.UUID, logger *slog.Logger) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 2 * time.Minute
	}

	if config.VisibilityExtension <= 0 {
		config.VisibilityExtension = 5 * time.Minute
	}

	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 30 * time.Minute
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		queue:      q,
		runner:     r,
		aggregator: agg,
		config:     config,
		tenantIDs:  tenantIDs,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On SIGTERM, it stops dequeuing new work and allows in-flight executions to finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "agent_id", a.config.ID, "concurrency", a.config.Concurrency)

	// Semaphore to limit concurrency
	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling)
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty queue, resets on work found)
	currentBackoff := a.config.PollInterval

	// Helper to trigger immediate non-blocking re-poll
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	// Initial poll
	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context cancelled, waiting for running tasks to finish")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			// Timer-based poll (with backoff)
			triggerPoll()

		case <-pollNow:
			// Count available slots
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			// Batch dequeue up to available slots
			items, err := a.queue.DequeueBatch(ctx, a.tenantIDs, availableSlots)
			if err != nil {
				a.logger.Error("dequeue batch failed", "error", err)
				continue
			}

			if len(items) == 0 {
				// Empty queue - increase backoff (exponential, capped at MaxBackoff)
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			// Found work - reset backoff to minimum
			currentBackoff = a.config.PollInterval

			a.logger.Debug("claimed tasks", "count", len(items))

			// Dispatch each task to a worker goroutine
			for _, item := range items {
				// Acquire semaphore slot
				sem <- struct{}{}

				wg.Add(1)
				go func(item store.TaskItem) {
					defer wg.Done()
					defer func() {
						<-sem
						// Signal that a slot is now available - trigger immediate re-poll
						triggerPoll()
					}()
					a.processItem(ctx, item)
				}(item)
			}

			// If we got tasks and there are still slots available, poll again immediately
			if len(items) > 0 && len(items) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processItem runs a single claimed task to a conclusion and settles it on
// the queue: Complete when the task ran (whatever the business outcome),
// Fail when infrastructure got in the way and the queue should redeliver.
func (a *Agent) processItem(ctx context.Context, item store.TaskItem) {
	log := a.logger.With("task_id", item.ID, "task_name", item.Name)

	// The task deadline is independent of the poll context: on SIGTERM the
	// in-flight conversation finishes its drain instead of being cut off.
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.TaskTimeout)
	defer cancel()

	// Heartbeat keeps the claim alive while long conversations run.
	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	defer cancelHeartbeat()
	go a.runHeartbeat(heartbeatCtx, item.ID)

	var err error
	switch item.Name {
	case store.TaskRunExecution:
		err = a.runExecutionTask(execCtx, item.Payload)
	case store.TaskAggregateRun:
		err = a.aggregateTask(execCtx, item.Payload)
	default:
		log.Error("unknown task name, dropping")
		err = nil
	}

	cancelHeartbeat()

	// Queue settlement uses a fresh context; ctx may already be cancelled.
	settleCtx, settleCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer settleCancel()

	if err != nil {
		log.Warn("task failed, rescheduling", "error", err)
		if ferr := a.queue.Fail(settleCtx, nil, item.ID, err.Error()); ferr != nil {
			log.Error("failed to reschedule task", "error", ferr)
		}
		return
	}

	if cerr := a.queue.Complete(settleCtx, nil, item.ID); cerr != nil {
		log.Error("failed to complete task", "error", cerr)
	}
}

func (a *Agent) runExecutionTask(ctx context.Context, payload json.RawMessage) error {
	var task dispatch.RunExecutionTask
	if err := json.Unmarshal(payload, &task); err != nil {
		// Malformed payloads never become runnable; swallow instead of
		// burning the retry budget.
		a.logger.Error("invalid run_execution payload", "error", err)
		return nil
	}

	ctx = a.extractTrace(ctx, task.Trace)
	tracer := otel.Tracer("worker-agent")
	ctx, span := tracer.Start(ctx, "run_execution",
		trace.WithAttributes(
			attribute.String("scenario.id", task.ScenarioID.String()),
			attribute.String("language", task.Language),
			attribute.String("tenant.id", task.TenantID.String()),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	if err := a.runner.Run(ctx, task); err != nil {
		span.RecordError(err)
		return fmt.Errorf("run execution: %w", err)
	}
	return nil
}

func (a *Agent) aggregateTask(ctx context.Context, payload json.RawMessage) error {
	var task dispatch.AggregateRunTask
	if err := json.Unmarshal(payload, &task); err != nil {
		a.logger.Error("invalid aggregate_suite_run payload", "error", err)
		return nil
	}

	ctx = a.extractTrace(ctx, task.Trace)
	tracer := otel.Tracer("worker-agent")
	ctx, span := tracer.Start(ctx, "aggregate_suite_run",
		trace.WithAttributes(
			attribute.String("suite_run.id", task.SuiteRunID.String()),
			attribute.String("tenant.id", task.TenantID.String()),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	if err := a.aggregator.Reconcile(ctx, task); err != nil {
		span.RecordError(err)
		return fmt.Errorf("aggregate suite run: %w", err)
	}
	return nil
}

func (a *Agent) extractTrace(ctx context.Context, carrier propagation.MapCarrier) context.Context {
	if carrier == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// runHeartbeat refreshes the visibility timeout periodically while a task is executing.
// This prevents long-running conversations from being picked up by another worker.
func (a *Agent) runHeartbeat(ctx context.Context, taskID int64) {
	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Extend visibility timeout
			visibleAfter := time.Now().Add(a.config.VisibilityExtension)
			if err := a.queue.SetVisibleAfter(context.Background(), nil, taskID, visibleAfter); err != nil {
				a.logger.Warn("heartbeat failed", "task_id", taskID, "error", err)
			}
		}
	}
}
