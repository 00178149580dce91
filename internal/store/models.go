// Package store contains the database layer for the voice QA platform.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tenant represents a tenant in the multi-tenant system.
// All operations must be scoped by TenantID.
type Tenant struct {
	ID             uuid.UUID
	Name           string
	RateLimit      int
	RateLimitBurst int
	CreatedAt      time.Time
}

// EffectiveTenant resolves the tenant a request operates under.
// An individual user without an organization is their own tenant, so the
// user id stands in when no explicit tenant id is present. Constructed once
// at the boundary; never re-derived deeper in the stack.
func EffectiveTenant(tenantID, userID uuid.UUID) uuid.UUID {
	if tenantID != uuid.Nil {
		return tenantID
	}
	return userID
}

// ScriptStep is one authored turn of a scenario: the utterance to send and
// the outcome the response is validated against.
type ScriptStep struct {
	Order               int    `json:"order"`
	Utterance           string `json:"utterance"`
	ExpectedCommandType string `json:"expected_command_type,omitempty"`
	ExpectedResponse    string `json:"expected_response,omitempty"`
}

// Scenario is a multi-turn test scenario definition.
type Scenario struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	SuiteID   *uuid.UUID
	Name      string
	Active    bool
	Steps     []ScriptStep // Stored as JSONB, ordered by Step.Order
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TriggerType records how a suite run was requested.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerAPI       TriggerType = "api"
	TriggerRetry     TriggerType = "retry"
)

// LanguageList unmarshals either a JSON string (treated as a singleton
// list) or a JSON array of strings. Trigger metadata arrives from several
// callers and both shapes occur in the wild.
type LanguageList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *LanguageList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = LanguageList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = LanguageList(many)
	return nil
}

// ExecutionConfig is the unit of dispatch: one scenario in one language.
// Ephemeral; it exists only inside trigger metadata and task payloads.
type ExecutionConfig struct {
	ScenarioID uuid.UUID `json:"scenario_id"`
	Language   string    `json:"language"`
}

// TriggerMetadata carries the per-run scheduling inputs.
// Overrides (the retry path) win over the scenario-id/suite resolution.
type TriggerMetadata struct {
	Languages          LanguageList      `json:"languages,omitempty"`
	ScenarioIDs        []uuid.UUID       `json:"scenario_ids,omitempty"`
	Overrides          []ExecutionConfig `json:"overrides,omitempty"`
	SourceRunID        *uuid.UUID        `json:"source_run_id,omitempty"`
	FailedExecutionIDs []uuid.UUID       `json:"failed_execution_ids,omitempty"`
}

// SuiteRunStatus represents the state of a suite run.
type SuiteRunStatus string

const (
	SuiteRunStatusPending   SuiteRunStatus = "pending"
	SuiteRunStatusRunning   SuiteRunStatus = "running"
	SuiteRunStatusCompleted SuiteRunStatus = "completed"
	SuiteRunStatusCancelled SuiteRunStatus = "cancelled"
)

// Terminal reports whether the status is absorbing.
func (s SuiteRunStatus) Terminal() bool {
	return s == SuiteRunStatusCompleted || s == SuiteRunStatusCancelled
}

// SuiteRun is one request to execute a set of scenarios, possibly across
// multiple languages. Counters satisfy passed+failed+skipped <= total at
// every observable point; TotalTests is fixed once the run leaves pending.
type SuiteRun struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	SuiteID      *uuid.UUID
	TriggerType  TriggerType
	Trigger      TriggerMetadata // Stored as JSONB
	Status       SuiteRunStatus
	TotalTests   int
	PassedTests  int
	FailedTests  int
	SkippedTests int
	CreatedBy    *uuid.UUID
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// ExecutionStatus represents the state of a multi-turn execution.
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"
	ExecutionStatusInProgress ExecutionStatus = "in_progress"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
	ExecutionStatusCancelled  ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is absorbing. Status transitions are
// monotonic; no execution regresses out of a terminal state.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// MultiTurnExecution is the runtime record of one (scenario, language)
// execution unit. CurrentStep never exceeds TotalSteps.
type MultiTurnExecution struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	SuiteRunID    *uuid.UUID // Nullable for standalone runs
	ScenarioID    uuid.UUID
	Language      string
	ParticipantID string // External conversation-participant id
	StateToken    string // Opaque conversation-state token, echoed per turn
	CurrentStep   int
	TotalSteps    int
	Status        ExecutionStatus
	StateSnapshot json.RawMessage
	ErrorMessage  *string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// StepExecution is one conversation turn's request/response/validation
// record. Immutable after creation: a turn is written once with its full
// result or not at all.
type StepExecution struct {
	ID                uuid.UUID
	ExecutionID       uuid.UUID
	StepOrder         int // Contiguous, increasing, starting at 1
	Utterance         string
	InputAudioRef     *string
	ResponseAudioRef  *string
	RequestID         uuid.UUID
	Transcription     string
	CommandType       string
	Confidence        float64
	StateTokenBefore  string
	StateTokenAfter   string
	ValidationPassed  bool
	ValidationDetails json.RawMessage
	LatencyMS         int64
	ExecutedAt        time.Time
	ErrorMessage      *string
}

// AllStepsPassed reports whether every recorded turn passed validation.
// Computed, never stored: false for zero-step executions.
func AllStepsPassed(steps []StepExecution) bool {
	if len(steps) == 0 {
		return false
	}
	for _, s := range steps {
		if !s.ValidationPassed {
			return false
		}
	}
	return true
}

// ValidationResult associates one execution with its human-review state.
// At most one result exists per execution.
type ValidationResult struct {
	ID          uuid.UUID
	ExecutionID uuid.UUID
	Outcome     string
	Notes       *string
	CreatedAt   time.Time
}

// QueueItemStatus represents the state of a validation queue item.
type QueueItemStatus string

const (
	QueueItemPending QueueItemStatus = "pending"
	QueueItemClaimed QueueItemStatus = "claimed"
	QueueItemDone    QueueItemStatus = "done"
)

// ValidationQueueItem is one unit of pending human review work.
type ValidationQueueItem struct {
	ID        uuid.UUID
	ResultID  uuid.UUID
	Status    QueueItemStatus
	ClaimedBy *uuid.UUID
	ClaimedAt *time.Time
	CreatedAt time.Time
}

// HumanValidation is one reviewer's verdict on an execution.
type HumanValidation struct {
	ID          uuid.UUID
	ResultID    uuid.UUID
	ValidatorID uuid.UUID
	Passed      bool
	Notes       *string
	SubmittedAt *time.Time
	ClaimedAt   *time.Time
	CreatedAt   time.Time
}
