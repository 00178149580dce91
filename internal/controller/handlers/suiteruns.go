package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/controller/middleware"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/lifecycle"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/validation"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/pkg/api"
)

// CreateSuiteRun handles POST /suite-runs.
// The run is recorded in pending state; a follow-up schedule call fans it
// out into execution units.
func (h *Handlers) CreateSuiteRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.CreateSuiteRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	languages, err := unmarshalLanguages(req.Languages)
	if err != nil {
		h.httpError(w, "Invalid languages field", http.StatusBadRequest)
		return
	}

	var suiteID *uuid.UUID
	if req.SuiteID != nil {
		id, err := uuid.Parse(*req.SuiteID)
		if err != nil {
			h.httpError(w, "Invalid suite id", http.StatusBadRequest)
			return
		}
		suiteID = &id
	}

	scenarioIDs := make([]uuid.UUID, 0, len(req.ScenarioIDs))
	for _, raw := range req.ScenarioIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.httpError(w, "Invalid scenario id", http.StatusBadRequest)
			return
		}
		scenarioIDs = append(scenarioIDs, id)
	}

	triggerType := store.TriggerType(req.TriggerType)
	if triggerType == "" {
		triggerType = store.TriggerAPI
	}

	run, err := h.lifecycle.CreateSuiteRun(ctx, lifecycle.CreateRunParams{
		TenantID:    tenant.ID,
		SuiteID:     suiteID,
		TriggerType: triggerType,
		Trigger: store.TriggerMetadata{
			Languages:   languages,
			ScenarioIDs: scenarioIDs,
		},
	})
	if err != nil {
		h.appError(w, err)
		return
	}

	h.respondJson(w, http.StatusCreated, suiteRunResponse(run))
}

// ScheduleSuiteRun handles POST /suite-runs/{id}/schedule.
func (h *Handlers) ScheduleSuiteRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, runID, ok := h.scopedRunID(w, r)
	if !ok {
		return
	}

	taskIDs, err := h.scheduler.ScheduleTestExecutions(ctx, runID, tenant.ID)
	if err != nil {
		h.appError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.ScheduleSuiteRunResponse{
		SuiteRunID: runID.String(),
		Status:     string(store.SuiteRunStatusRunning),
		TaskIDs:    taskIDs,
	})
}

// CancelSuiteRun handles POST /suite-runs/{id}/cancel.
func (h *Handlers) CancelSuiteRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, runID, ok := h.scopedRunID(w, r)
	if !ok {
		return
	}

	run, err := h.lifecycle.CancelSuiteRun(ctx, runID, tenant.ID)
	if err != nil {
		h.appError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, suiteRunResponse(run))
}

// RetryFailedTests handles POST /suite-runs/{id}/retry.
func (h *Handlers) RetryFailedTests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, runID, ok := h.scopedRunID(w, r)
	if !ok {
		return
	}

	retry, err := h.lifecycle.RetryFailedTests(ctx, runID, tenant.ID, nil)
	if err != nil {
		h.appError(w, err)
		return
	}

	h.respondJson(w, http.StatusCreated, suiteRunResponse(retry))
}

// GetSuiteRun handles GET /suite-runs/{id}.
func (h *Handlers) GetSuiteRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, runID, ok := h.scopedRunID(w, r)
	if !ok {
		return
	}

	run, err := h.lifecycle.GetSuiteRun(ctx, runID, tenant.ID)
	if err != nil {
		h.appError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, suiteRunResponse(run))
}

// ListExecutions handles GET /suite-runs/{id}/executions.
// Each execution carries its resolved validation metadata.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, runID, ok := h.scopedRunID(w, r)
	if !ok {
		return
	}

	if _, err := h.lifecycle.GetSuiteRun(ctx, runID, tenant.ID); err != nil {
		h.appError(w, err)
		return
	}

	executions, err := h.store.ListExecutionsByRun(ctx, runID)
	if err != nil {
		h.httpError(w, "Failed to list executions", http.StatusInternalServerError)
		return
	}

	hydrated, err := validation.Hydrate(ctx, h.store, executions)
	if err != nil {
		h.httpError(w, "Failed to resolve validation metadata", http.StatusInternalServerError)
		return
	}

	resp := api.ListExecutionsResponse{Executions: make([]api.ExecutionResponse, 0, len(hydrated))}
	for _, hx := range hydrated {
		resp.Executions = append(resp.Executions, executionResponse(hx))
	}

	h.respondJson(w, http.StatusOK, resp)
}

// scopedRunID resolves the authenticated tenant and the {id} path value.
func (h *Handlers) scopedRunID(w http.ResponseWriter, r *http.Request) (*store.Tenant, uuid.UUID, bool) {
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}

	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid suite run id", http.StatusBadRequest)
		return nil, uuid.Nil, false
	}

	return tenant, runID, true
}

func suiteRunResponse(run *store.SuiteRun) api.SuiteRunResponse {
	resp := api.SuiteRunResponse{
		ID:           run.ID.String(),
		TriggerType:  string(run.TriggerType),
		Status:       string(run.Status),
		TotalTests:   run.TotalTests,
		PassedTests:  run.PassedTests,
		FailedTests:  run.FailedTests,
		SkippedTests: run.SkippedTests,
		CreatedAt:    run.CreatedAt,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
	}
	if run.SuiteID != nil {
		s := run.SuiteID.String()
		resp.SuiteID = &s
	}
	if run.Trigger.SourceRunID != nil {
		s := run.Trigger.SourceRunID.String()
		resp.SourceRunID = &s
	}
	return resp
}

func executionResponse(hx validation.HydratedExecution) api.ExecutionResponse {
	e := hx.Execution
	resp := api.ExecutionResponse{
		ID:               e.ID.String(),
		ScenarioID:       e.ScenarioID.String(),
		Language:         e.Language,
		Status:           string(e.Status),
		CurrentStep:      e.CurrentStep,
		TotalSteps:       e.TotalSteps,
		ErrorMessage:     e.ErrorMessage,
		HasPendingReview: hx.PendingQueueItem != nil,
		StartedAt:        e.StartedAt,
		CompletedAt:      e.CompletedAt,
	}
	if hx.Result != nil {
		outcome := hx.Result.Outcome
		resp.ValidationOutcome = &outcome
	}
	if hv := hx.LatestHumanValidation; hv != nil {
		resp.LatestHumanValidation = &api.HumanValidationResponse{
			ValidatorID: hv.ValidatorID.String(),
			Passed:      hv.Passed,
			Notes:       hv.Notes,
			SubmittedAt: hv.SubmittedAt,
		}
	}
	return resp
}
