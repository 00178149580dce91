package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/controller/middleware"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/scenario"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/pkg/api"
)

// CreateScenario handles POST /scenarios.
// The body is a scenario definition document; it is schema-validated before
// anything is written, so malformed scripts never reach a suite run.
func (h *Handlers) CreateScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.httpError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	def, steps, err := scenario.Parse(body)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var suiteID *uuid.UUID
	if def.SuiteID != "" {
		id, err := uuid.Parse(def.SuiteID)
		if err != nil {
			h.httpError(w, "Invalid suite id", http.StatusBadRequest)
			return
		}
		suiteID = &id
	}

	active := true
	if def.Active != nil {
		active = *def.Active
	}

	now := time.Now().UTC()
	sc := &store.Scenario{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		SuiteID:   suiteID,
		Name:      def.Name,
		Active:    active,
		Steps:     steps,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateScenario(ctx, nil, sc); err != nil {
		h.httpError(w, "Failed to create scenario", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, api.CreateScenarioResponse{ScenarioID: sc.ID.String()})
}

// unmarshalLanguages decodes the string-or-array languages field of a
// create-run request.
func unmarshalLanguages(raw json.RawMessage) (store.LanguageList, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var languages store.LanguageList
	if err := json.Unmarshal(raw, &languages); err != nil {
		return nil, err
	}
	return languages, nil
}
