package nlu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(endpoint string) *HTTPClient {
	return NewHTTPClient(Options{
		Endpoint:       endpoint,
		APIKey:         "test-key",
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		AttemptTimeout: time.Second,
	})
}

func okResponse(token string) string {
	b, _ := json.Marshal(QueryResponse{
		Transcription:  "turn on the lights",
		CommandType:    "lights_on",
		Confidence:     0.97,
		SpokenResponse: "Okay, lights on.",
		StateToken:     token,
		Status:         "ok",
	})
	return string(b)
}

func TestQuerySuccess(t *testing.T) {
	var gotAuth string
	var gotReq QueryRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(okResponse("tok-1")))
	}))
	defer server.Close()

	reqID := uuid.New()
	resp, err := testClient(server.URL).Query(context.Background(), QueryRequest{
		Utterance:     "turn on the lights",
		ParticipantID: "participant-1",
		RequestID:     reqID,
		StateToken:    "tok-0",
	})

	require.NoError(t, err)
	assert.Equal(t, "lights_on", resp.CommandType)
	assert.Equal(t, "tok-1", resp.StateToken)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, reqID, gotReq.RequestID)
	assert.Equal(t, "tok-0", gotReq.StateToken)
}

func TestQueryRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(okResponse("tok-1")))
	}))
	defer server.Close()

	resp, err := testClient(server.URL).Query(context.Background(), QueryRequest{Utterance: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "tok-1", resp.StateToken)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueryExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Query(context.Background(), QueryRequest{Utterance: "hi"})

	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusInternalServerError, pe.Status)
	assert.Contains(t, pe.Body, "model overloaded")
	assert.False(t, pe.Retryable)
	assert.Equal(t, 4, pe.Attempts) // initial attempt + 3 retries
	assert.Equal(t, int32(4), calls.Load())
	assert.True(t, IsPermanent(err))
}

func TestQueryDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"utterance is empty"}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Query(context.Background(), QueryRequest{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadRequest, pe.Status)
	assert.Contains(t, pe.Body, "utterance is empty")
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, IsPermanent(err))
}

func TestQueryRetries429(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(okResponse("tok-1")))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Query(context.Background(), QueryRequest{Utterance: "hi"})

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueryMalformedSuccessBodyIsPermanent(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"command_type": `))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Query(context.Background(), QueryRequest{Utterance: "hi"})

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueryContextCancelDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(Options{
		Endpoint:       server.URL,
		MaxRetries:     3,
		InitialBackoff: time.Minute,
		AttemptTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.Query(ctx, QueryRequest{Utterance: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(context.Canceled))
	assert.False(t, IsPermanent(&ProviderError{Retryable: true}))
	assert.True(t, IsPermanent(&ProviderError{Retryable: false}))
}
