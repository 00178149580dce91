// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import (
	"encoding/json"
	"time"
)

// CreateTenantRequest is the request body for creating a new tenant.
type CreateTenantRequest struct {
	Name           string `json:"name"`
	RateLimit      int    `json:"rate_limit,omitempty"`
	RateLimitBurst int    `json:"rate_limit_burst,omitempty"`
}

// CreateTenantResponse is the response body after creating a tenant.
type CreateTenantResponse struct {
	ID     string `json:"tenant_id"`
	Name   string `json:"name"`
	ApiKey string `json:"api_key"`
}

// ScriptStepRequest is one authored conversation turn.
type ScriptStepRequest struct {
	Utterance           string `json:"utterance"`
	ExpectedCommandType string `json:"expected_command_type,omitempty"`
	ExpectedResponse    string `json:"expected_response,omitempty"`
}

// CreateScenarioRequest is the request body for creating a scenario.
type CreateScenarioRequest struct {
	Name    string              `json:"name"`
	SuiteID *string             `json:"suite_id,omitempty"`
	Active  *bool               `json:"active,omitempty"`
	Steps   []ScriptStepRequest `json:"steps"`
}

// CreateScenarioResponse is the response body after creating a scenario.
type CreateScenarioResponse struct {
	ScenarioID string `json:"scenario_id"`
}

// CreateSuiteRunRequest is the request body for creating a suite run.
// Languages accepts a string or an array of strings. ScenarioIDs, when
// present, wins over SuiteID's active scenario set.
type CreateSuiteRunRequest struct {
	SuiteID     *string         `json:"suite_id,omitempty"`
	ScenarioIDs []string        `json:"scenario_ids,omitempty"`
	Languages   json.RawMessage `json:"languages,omitempty"`
	TriggerType string          `json:"trigger_type,omitempty"`
}

// ScheduleSuiteRunResponse is the response body after scheduling a run.
type ScheduleSuiteRunResponse struct {
	SuiteRunID string   `json:"suite_run_id"`
	Status     string   `json:"status"`
	TaskIDs    []string `json:"task_ids"`
}

// SuiteRunResponse represents a suite run in API responses.
type SuiteRunResponse struct {
	ID           string     `json:"id"`
	SuiteID      *string    `json:"suite_id,omitempty"`
	TriggerType  string     `json:"trigger_type"`
	Status       string     `json:"status"`
	TotalTests   int        `json:"total_tests"`
	PassedTests  int        `json:"passed_tests"`
	FailedTests  int        `json:"failed_tests"`
	SkippedTests int        `json:"skipped_tests"`
	SourceRunID  *string    `json:"source_run_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// HumanValidationResponse is the resolved latest reviewer verdict.
type HumanValidationResponse struct {
	ValidatorID string     `json:"validator_id"`
	Passed      bool       `json:"passed"`
	Notes       *string    `json:"notes,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// ExecutionResponse represents a multi-turn execution in API responses,
// including its resolved validation metadata.
type ExecutionResponse struct {
	ID                    string                   `json:"id"`
	ScenarioID            string                   `json:"scenario_id"`
	Language              string                   `json:"language"`
	Status                string                   `json:"status"`
	CurrentStep           int                      `json:"current_step"`
	TotalSteps            int                      `json:"total_steps"`
	ErrorMessage          *string                  `json:"error_message,omitempty"`
	ValidationOutcome     *string                  `json:"validation_outcome,omitempty"`
	HasPendingReview      bool                     `json:"has_pending_review"`
	LatestHumanValidation *HumanValidationResponse `json:"latest_human_validation,omitempty"`
	StartedAt             *time.Time               `json:"started_at,omitempty"`
	CompletedAt           *time.Time               `json:"completed_at,omitempty"`
}

// ListExecutionsResponse is the response body for listing a run's executions.
type ListExecutionsResponse struct {
	Executions []ExecutionResponse `json:"executions"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
