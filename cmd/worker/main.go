// Package main is the entry point for the voice QA worker.
// The worker pulls queued tasks and drives the multi-turn conversations
// against the NLU provider. It owns concurrency, timeouts and retries.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/aggregator"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/audio"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/config"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/dispatch"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/logger"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/nlu"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/observability"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/runner"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store/postgres"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer st.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "voiceqa-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slogger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	nluClient := nlu.NewHTTPClient(nlu.Options{
		Endpoint:       cfg.NLUEndpoint,
		APIKey:         cfg.NLUAPIKey,
		MaxRetries:     cfg.NLUMaxRetries,
		InitialBackoff: cfg.NLUInitialBackoff,
		AttemptTimeout: cfg.NLUTimeout,
		Logger:         slogger,
	})

	// Input-audio synthesis is optional; without a clip store the runner
	// sends text only.
	var synth audio.Synthesizer
	if cfg.AudioBucket != "" {
		s, err := audio.NewPollySynthesizer(ctx, cfg.AWSRegion, audio.NewFSStore(cfg.AudioBucket))
		if err != nil {
			log.Fatalf("Failed to create synthesizer: %v", err)
		}
		synth = s
	}

	submitter := dispatch.NewQueueSubmitter(st)
	run := runner.New(st, nluClient, synth, slogger)
	agg := aggregator.New(st, submitter, slogger, cfg.AggregateDelay)

	agent := worker.New(st, run, agg, worker.AgentConfig{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
	}, nil, slogger)

	slogger.Info("worker started", "concurrency", cfg.WorkerConcurrency)
	go agent.Run(ctx)

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics("voiceqa-worker")
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slogger.Error("failed to shutdown metrics", "error", err)
		}
	}()

	// Start a dedicated metrics server on port 6162
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		slogger.Info("worker metrics listening on :6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			slogger.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogger.Info("shutting down worker")
	cancel()

	<-agent.Done()
}
