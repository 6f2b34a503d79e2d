package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for the store contract and intent lookup. The store-contract
// violations (ErrDuplicateRun, ErrOutOfOrderSequence, ErrInvalidTransition)
// indicate a programming error and are surfaced as fatal engine errors, never
// retried.
var (
	ErrUnknownIntent      = errors.New("unknown intent")
	ErrTooManyAttempts    = errors.New("too many clarification attempts")
	ErrDuplicateRun       = errors.New("duplicate run")
	ErrOutOfOrderSequence = errors.New("step event sequence out of order")
	ErrInvalidTransition  = errors.New("invalid run status transition")
	ErrRunNotFound        = errors.New("run not found")
)

// BackendError is the structured business error a backend operation returns.
// It is propagated verbatim into the failing step event's detail.
type BackendError struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Severity string          `json:"severity,omitempty"`
	Details  json.RawMessage `json:"details,omitempty"`
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error %s: %s", e.Code, e.Message)
}

// AsBackendError converts any step failure into a structured error suitable
// for a step event detail. Transport-level failures that never reached the
// backend's error envelope are wrapped under a transport_error code.
func AsBackendError(err error) *BackendError {
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}
	return &BackendError{Code: "transport_error", Message: err.Error(), Severity: "error"}
}
