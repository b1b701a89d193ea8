package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ValidationError is malformed or empty input. Never retried, surfaced as 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// TimeoutError is a network call that exceeded its budget or was cancelled.
type TimeoutError struct {
	Op     string
	Budget time.Duration
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s: %v", e.Op, e.Budget, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Canceled reports whether the call was aborted by its caller rather than by
// its own deadline.
func (e *TimeoutError) Canceled() bool {
	return errors.Is(e.Err, context.Canceled)
}

// UpstreamError is a transport failure, a non-2xx status or an unusable
// envelope from the completion provider. Status is 0 for transport failures.
type UpstreamError struct {
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		if e.Err != nil {
			return "upstream error: " + e.Err.Error()
		}
		return "upstream error: " + e.Message
	}
	return fmt.Sprintf("upstream error: status=%d message=%s", e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

const snippetLimit = 500

// UnparsableAnalysisError means every repair step failed. Snippet holds the
// first 500 characters of the raw content.
type UnparsableAnalysisError struct {
	Snippet string
	Err     error
}

func NewUnparsable(raw string, err error) *UnparsableAnalysisError {
	s := raw
	if r := []rune(s); len(r) > snippetLimit {
		s = string(r[:snippetLimit])
	}
	return &UnparsableAnalysisError{Snippet: s, Err: err}
}

func (e *UnparsableAnalysisError) Error() string {
	return fmt.Sprintf("unparsable analysis content: %v", e.Err)
}

func (e *UnparsableAnalysisError) Unwrap() error { return e.Err }

// PersistenceError is a storage failure after a valid analysis was produced.
// It is logged and never fails the user-facing request.
type PersistenceError struct {
	Op           string
	AssessmentID string
	Err          error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed for assessment %s: %v", e.Op, e.AssessmentID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfigurationError is a missing or inconsistent secret/setting. Retrying
// cannot fix it.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// Class names the taxonomy bucket of err for logs and metric labels.
func Class(err error) string {
	if err == nil {
		return "none"
	}
	var (
		ve *ValidationError
		te *TimeoutError
		ue *UpstreamError
		pe *UnparsableAnalysisError
		se *PersistenceError
		ce *ConfigurationError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &ue):
		return "upstream"
	case errors.As(err, &pe):
		return "unparsable"
	case errors.As(err, &se):
		return "persistence"
	case errors.As(err, &ce):
		return "configuration"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "unknown"
	}
}
