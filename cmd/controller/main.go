// Package main is the entry point for the voice QA controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/config"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/controller"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/dispatch"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/lifecycle"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/logger"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/observability"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/scheduler"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store/postgres"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	// Load Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	// Setup Database
	ctx := context.Background()
	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer st.Close()

	// Run migrations if requested
	if *migrateFlag {
		slogger.Info("running database migrations")
		if err := postgres.Migrate(st.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		slogger.Info("migrations completed")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "voiceqa-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slogger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics("voiceqa-controller")
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slogger.Error("failed to shutdown metrics", "error", err)
		}
	}()

	// Use an Observable Gauge (Async) that queries the DB only when scraped.
	meter := otel.Meter("voiceqa-controller")
	_, err = meter.Int64ObservableGauge("voiceqa.queue.depth",
		metric.WithDescription("Current number of tasks in the queue"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := st.Count(ctx)
			if err != nil {
				slogger.Error("failed to count queue depth", "error", err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		slogger.Error("failed to register queue depth metric", "error", err)
	}

	submitter := dispatch.NewQueueSubmitter(st)
	lm := lifecycle.New(st, slogger)
	sched := scheduler.New(st, submitter, slogger, scheduler.Options{
		DefaultLanguage: cfg.DefaultLanguage,
		AggregateDelay:  cfg.AggregateDelay,
	})

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, st, lm, sched, metricsHandler)

	go func() {
		slogger.Info("controller starting", "addr", addr)
		if err := srv.Run(ctx); err != nil {
			slogger.Error("server stopped", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogger.Info("shutting down controller")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	slogger.Info("server exited properly")
}
