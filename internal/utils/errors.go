package utils

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable marks failures of an external collaborator (registry,
// event store, blueprint catalogue, context provider). Callers fail open on it.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// Upstream wraps err so that errors.Is(err, ErrUpstreamUnavailable) holds.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Op: op, Msg: ErrUpstreamUnavailable.Error(), Err: errors.Join(ErrUpstreamUnavailable, err)}
}

// IsUpstream reports whether err came from an unavailable collaborator.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
