// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/controller/handlers"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/controller/middleware"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/lifecycle"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/scheduler"
)

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, store handlers.StoreFactory, lm *lifecycle.Manager, sched *scheduler.Scheduler, metricsHandler http.Handler) *Server {
	h := handlers.New(store, lm, sched)
	authMW := middleware.AuthMiddleware(store)
	rateMW := middleware.RateLimitMiddleware()

	protected := func(hf http.HandlerFunc) http.Handler {
		return authMW(rateMW(hf))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /tenants", h.CreateTenant)

	// Public authenticated apis
	mux.Handle("POST /scenarios", protected(h.CreateScenario))
	mux.Handle("POST /suite-runs", protected(h.CreateSuiteRun))
	mux.Handle("POST /suite-runs/{id}/schedule", protected(h.ScheduleSuiteRun))
	mux.Handle("POST /suite-runs/{id}/cancel", protected(h.CancelSuiteRun))
	mux.Handle("POST /suite-runs/{id}/retry", protected(h.RetryFailedTests))
	mux.Handle("GET /suite-runs/{id}", protected(h.GetSuiteRun))
	mux.Handle("GET /suite-runs/{id}/executions", protected(h.ListExecutions))

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
