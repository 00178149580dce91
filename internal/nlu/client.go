// Package nlu contains the client for the remote conversational-AI
// provider, including the retry/backoff resilience layer. One Query is one
// conversation turn; the caller threads the conversation-state token from
// each response into the next request.
package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// QueryRequest is a single-turn query to the provider.
type QueryRequest struct {
	Utterance     string    `json:"utterance"`
	ParticipantID string    `json:"participant_id"`
	RequestID     uuid.UUID `json:"request_id"`
	StateToken    string    `json:"conversation_state_token,omitempty"`
}

// QueryResponse is the provider's answer for one turn.
type QueryResponse struct {
	Transcription  string  `json:"transcription"`
	CommandType    string  `json:"command_type"`
	Confidence     float64 `json:"confidence"`
	SpokenResponse string  `json:"spoken_response"`
	StateToken     string  `json:"new_conversation_state_token"`
	Status         string  `json:"status"`
}

// Client issues single-turn queries to the NLU provider.
type Client interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
}

// Options configures the HTTP client's resilience policy.
type Options struct {
	Endpoint       string
	APIKey         string
	MaxRetries     int           // Retries after the first attempt (default: 3)
	InitialBackoff time.Duration // Doubled per retry (default: 500ms)
	AttemptTimeout time.Duration // Per attempt, not cumulative (default: 15s)
	Logger         *slog.Logger
}

// HTTPClient is the production Client implementation.
type HTTPClient struct {
	opts Options
	http *http.Client
}

// NewHTTPClient creates a provider client with the given resilience policy.
func NewHTTPClient(opts Options) *HTTPClient {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &HTTPClient{
		opts: opts,
		// No client-level timeout: the per-attempt context owns deadlines.
		http: &http.Client{},
	}
}

// Query sends one turn to the provider. Transient failures (429 and 5xx
// from the retryable set) are retried with exponential backoff and never
// surface when a later attempt succeeds. Everything else, and an exhausted
// retry budget, returns a *ProviderError carrying the last HTTP status and
// raw body.
func (c *HTTPClient) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query request: %w", err)
	}

	var lastErr *ProviderError
	backoff := c.opts.InitialBackoff

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			c.opts.Logger.Warn("retrying provider query",
				"request_id", req.RequestID, "attempt", attempt, "status", lastErr.Status)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		resp, perr := c.attempt(ctx, body)
		if perr == nil {
			return resp, nil
		}
		if !perr.Retryable {
			return nil, perr
		}
		lastErr = perr
	}

	// Retry budget exhausted: escalate the last transient failure to a
	// permanent one so the caller sees a terminal classification.
	return nil, &ProviderError{
		Status:    lastErr.Status,
		Body:      lastErr.Body,
		Retryable: false,
		Attempts:  c.opts.MaxRetries + 1,
	}
}

func (c *HTTPClient) attempt(ctx context.Context, body []byte) (*QueryResponse, *ProviderError) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Body: err.Error(), Retryable: false}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Transport-level failures (timeout, connection refused) are
		// indistinguishable from a provider outage; retry them.
		return nil, &ProviderError{Body: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Status: resp.StatusCode, Body: err.Error(), Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Status:    resp.StatusCode,
			Body:      string(raw),
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	var out QueryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		// A malformed 200 is a provider bug, not an outage.
		return nil, &ProviderError{Status: resp.StatusCode, Body: string(raw), Retryable: false}
	}

	return &out, nil
}

// retryableStatus defines the transient-error set.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	}
	return false
}
