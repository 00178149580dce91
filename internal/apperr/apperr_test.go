package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := NotFound("suite run %s not found", "abc")
	want := "[NOT_FOUND] suite run abc not found"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestErrorStringWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := InvalidState("run is busy").WithCause(cause)

	if got := err.Error(); got != "[INVALID_STATE] run is busy: connection refused" {
		t.Errorf("unexpected error string: %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"not found matches", NotFound("x"), IsNotFound, true},
		{"invalid state matches", InvalidState("x"), IsInvalidState, true},
		{"invalid argument matches", InvalidArgument("x"), IsInvalidArgument, true},
		{"not found is not invalid state", NotFound("x"), IsInvalidState, false},
		{"plain error matches nothing", errors.New("x"), IsNotFound, false},
		{"nil matches nothing", nil, IsInvalidArgument, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPredicatesUnwrap(t *testing.T) {
	wrapped := fmt.Errorf("scheduling: %w", InvalidState("run is completed"))
	if !IsInvalidState(wrapped) {
		t.Error("expected IsInvalidState to see through wrapping")
	}
}

func TestWithDetail(t *testing.T) {
	err := InvalidArgument("bad input").WithDetail("field", "languages").WithDetail("count", 0)

	if err.Details["field"] != "languages" {
		t.Errorf("expected detail field=languages, got %v", err.Details["field"])
	}
	if err.Details["count"] != 0 {
		t.Errorf("expected detail count=0, got %v", err.Details["count"])
	}
}
