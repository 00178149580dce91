// Package config handles environment variable loading for ports, database
// strings, provider endpoints, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// OTLP collector endpoint for traces
	OTELEndpoint string

	// NLU provider settings
	NLUEndpoint       string
	NLUAPIKey         string
	NLUTimeout        time.Duration // Per attempt, not cumulative
	NLUMaxRetries     int
	NLUInitialBackoff time.Duration

	// Worker-specific configuration
	WorkerConcurrency  int
	WorkerPollInterval time.Duration

	// Delay before the aggregator reconciliation pass runs
	AggregateDelay time.Duration

	// Baseline language used when a run carries no language list
	DefaultLanguage string

	// Input-audio synthesis. Empty bucket disables synthesis.
	AudioBucket string
	AWSRegion   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	port := 6161
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		port = p
	}

	concurrency := 4
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		c, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
		}
		concurrency = c
	}

	pollInterval := 1 * time.Second
	if v := os.Getenv("WORKER_POLL_INTERVAL"); v != "" {
		pi, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WORKER_POLL_INTERVAL: %w", err)
		}
		pollInterval = pi
	}

	nluTimeout := 15 * time.Second
	if v := os.Getenv("NLU_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid NLU_TIMEOUT: %w", err)
		}
		nluTimeout = d
	}

	nluRetries := 3
	if v := os.Getenv("NLU_MAX_RETRIES"); v != "" {
		r, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid NLU_MAX_RETRIES: %w", err)
		}
		nluRetries = r
	}

	aggregateDelay := 30 * time.Second
	if v := os.Getenv("AGGREGATE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid AGGREGATE_DELAY: %w", err)
		}
		aggregateDelay = d
	}

	defaultLanguage := os.Getenv("DEFAULT_LANGUAGE")
	if defaultLanguage == "" {
		defaultLanguage = "en-US"
	}

	return &Config{
		DatabaseURL:        dbURL,
		HTTPPort:           port,
		OTELEndpoint:       os.Getenv("OTEL_ENDPOINT"),
		NLUEndpoint:        os.Getenv("NLU_ENDPOINT"),
		NLUAPIKey:          os.Getenv("NLU_API_KEY"),
		NLUTimeout:         nluTimeout,
		NLUMaxRetries:      nluRetries,
		NLUInitialBackoff:  500 * time.Millisecond,
		WorkerConcurrency:  concurrency,
		WorkerPollInterval: pollInterval,
		AggregateDelay:     aggregateDelay,
		DefaultLanguage:    defaultLanguage,
		AudioBucket:        os.Getenv("AUDIO_BUCKET"),
		AWSRegion:          os.Getenv("AWS_REGION"),
	}, nil
}
