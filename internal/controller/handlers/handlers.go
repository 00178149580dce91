// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/apperr"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/lifecycle"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/scheduler"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/pkg/api"
)

// StoreFactory combines the interfaces needed for the controller to function.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.TenantStore
	store.ScenarioStore
	store.SuiteRunStore
	store.ExecutionStore
	store.ValidationStore
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store     StoreFactory
	lifecycle *lifecycle.Manager
	scheduler *scheduler.Scheduler
}

// New creates a new Handlers instance with the given dependencies.
func New(s StoreFactory, lm *lifecycle.Manager, sched *scheduler.Scheduler) *Handlers {
	return &Handlers{store: s, lifecycle: lm, scheduler: sched}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// appError maps domain errors onto HTTP statuses: missing resources are
// 404, invalid state transitions 409, bad inputs 400, everything else 500.
func (h *Handlers) appError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		h.httpError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var status int
	switch ae.Code {
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeInvalidState:
		status = http.StatusConflict
	case apperr.CodeInvalidArgument:
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}

	h.respondJson(w, status, api.ErrorResponse{
		Error:   ae.Message,
		Code:    ae.Code,
		Details: ae.Details,
	})
}
