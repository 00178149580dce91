package nlu

import (
	"errors"
	"fmt"
)

// ProviderError is the domain error for provider failures. It always
// carries the HTTP status and raw response body so callers can tell
// "provider rejected the request" from "provider is down". Retryable marks
// a transient failure still inside the retry budget; errors returned from
// Query with Retryable=false are permanent.
type ProviderError struct {
	Status    int
	Body      string
	Retryable bool
	Attempts  int
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("nlu provider error after %d attempts (status %d): %s", e.Attempts, e.Status, e.Body)
	}
	return fmt.Sprintf("nlu provider error (status %d): %s", e.Status, e.Body)
}

// IsPermanent reports whether err is a non-retryable provider failure.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && !pe.Retryable
}
