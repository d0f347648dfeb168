package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "Screen not found"}
	want := "NOT_FOUND: Screen not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestErrorEnvelope_unwrapsThroughFmt(t *testing.T) {
	wrapped := fmt.Errorf("fetch: %w", NewBackendTimeoutError())

	var ee *ErrorEnvelope
	if !errors.As(wrapped, &ee) {
		t.Fatal("errors.As should find the envelope")
	}
	if ee.Code != ErrBackendTimeout {
		t.Errorf("Code = %q, want %q", ee.Code, ErrBackendTimeout)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrorEnvelope
		code string
	}{
		{"bad request", NewBadRequestError("bad"), ErrBadRequest},
		{"not found", NewNotFoundError("missing"), ErrNotFound},
		{"conflict", NewConflictError("dup"), ErrConflict},
		{"internal", NewInternalError(), ErrInternalError},
		{"backend unavailable", NewBackendUnavailableError(), ErrBackendUnavailable},
		{"backend timeout", NewBackendTimeoutError(), ErrBackendTimeout},
		{"rate limited", NewRateLimitedError(), ErrRateLimited},
		{"session not found", NewSessionNotFoundError("s-1"), ErrSessionNotFound},
		{"session limit", NewSessionLimitError(10), ErrSessionLimit},
		{"unknown view", NewUnknownViewError("orders", "ghost"), ErrUnknownView},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Message should not be empty")
			}
		})
	}
}

func TestNewSessionNotFoundError_mentionsID(t *testing.T) {
	e := NewSessionNotFoundError("sess-42")
	want := `session "sess-42" not found or expired`
	if e.Message != want {
		t.Errorf("Message = %q, want %q", e.Message, want)
	}
}
