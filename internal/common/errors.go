// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrPersistence    = errors.New("persistence failure")

	// LLM errors.
	ErrUpstreamUnavailable = errors.New("upstream model unavailable")
	ErrInvalidResponse     = errors.New("invalid model response")

	// Classification errors.
	ErrClassificationFailed = errors.New("classification failed")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Kind classifies a failure for callers that branch on the failure category
// rather than on a specific sentinel.
type Kind string

// Failure kinds.
const (
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindInvalidResponse     Kind = "INVALID_RESPONSE"
	KindRuleMismatch        Kind = "RULE_MISMATCH"
	KindPersistenceFailure  Kind = "PERSISTENCE_FAILURE"
)

// KindError attaches a Kind and the failing operation to an underlying error.
type KindError struct {
	Err  error
	Kind Kind
	Op   string
}

func (e *KindError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// NewKindError wraps err with the given kind and operation name.
func NewKindError(kind Kind, op string, err error) error {
	return &KindError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or "" if it has none.
func KindOf(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	// Transport and provider failures are retryable unless marked otherwise.
	return true
}
