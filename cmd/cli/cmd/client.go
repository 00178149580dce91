package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/pkg/api"
)

// Client handles API calls to the voice QA controller.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client with the given base URL and token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do issues one JSON request and decodes the response into out when the
// status is 2xx.
func (c *Client) do(method, path string, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// CreateScenario sends POST /scenarios with a raw definition document.
func (c *Client) CreateScenario(definition []byte) (*api.CreateScenarioResponse, error) {
	httpReq, err := http.NewRequest(http.MethodPost, c.BaseURL+"/scenarios", bytes.NewReader(definition))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result api.CreateScenarioResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// CreateSuiteRun sends POST /suite-runs.
func (c *Client) CreateSuiteRun(req api.CreateSuiteRunRequest) (*api.SuiteRunResponse, error) {
	var result api.SuiteRunResponse
	if err := c.do(http.MethodPost, "/suite-runs", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ScheduleSuiteRun sends POST /suite-runs/{id}/schedule.
func (c *Client) ScheduleSuiteRun(runID string) (*api.ScheduleSuiteRunResponse, error) {
	var result api.ScheduleSuiteRunResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/suite-runs/%s/schedule", runID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSuiteRun sends GET /suite-runs/{id}.
func (c *Client) GetSuiteRun(runID string) (*api.SuiteRunResponse, error) {
	var result api.SuiteRunResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/suite-runs/%s", runID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListExecutions sends GET /suite-runs/{id}/executions.
func (c *Client) ListExecutions(runID string) (*api.ListExecutionsResponse, error) {
	var result api.ListExecutionsResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/suite-runs/%s/executions", runID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelSuiteRun sends POST /suite-runs/{id}/cancel.
func (c *Client) CancelSuiteRun(runID string) (*api.SuiteRunResponse, error) {
	var result api.SuiteRunResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/suite-runs/%s/cancel", runID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RetryFailedTests sends POST /suite-runs/{id}/retry.
func (c *Client) RetryFailedTests(runID string) (*api.SuiteRunResponse, error) {
	var result api.SuiteRunResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/suite-runs/%s/retry", runID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
