package podcast

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure. Kinds, not types: callers switch
// on kind to decide between retrying a state, degrading, or failing the job.
type ErrorKind string

const (
	ErrBadInput           ErrorKind = "bad_input"
	ErrBudgetExceeded     ErrorKind = "budget_exceeded"
	ErrUpstreamTransient  ErrorKind = "upstream_transient"
	ErrUpstreamPermanent  ErrorKind = "upstream_permanent"
	ErrContract           ErrorKind = "contract"
	ErrVerifyUnresolvable ErrorKind = "verify_unresolvable"
	ErrSynthesizeDegraded ErrorKind = "synthesize_degraded"
	ErrCancelled          ErrorKind = "cancelled"
	ErrInternal           ErrorKind = "internal"
)

// Error is the structured error surfaced on job snapshots and API responses.
type Error struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retriable bool      `json:"retriable"`

	cause error
}

// NewError builds a structured error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retriable: kindRetriable(kind),
	}
}

// WrapError wraps err with a kind, preserving the chain for errors.Is/As.
func WrapError(kind ErrorKind, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		// Already classified; keep the original kind.
		return pe
	}
	return &Error{
		Kind:      kind,
		Message:   err.Error(),
		Retriable: kindRetriable(kind),
		cause:     err,
	}
}

func kindRetriable(kind ErrorKind) bool {
	switch kind {
	case ErrUpstreamTransient, ErrContract:
		return true
	default:
		return false
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the error kind from any error in the chain.
// Unclassified errors report ErrInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrJobCancelled) {
		return ErrCancelled
	}
	return ErrInternal
}

// IsRetriable reports whether the error is worth retrying at the state level.
func IsRetriable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retriable
	}
	return false
}

// Sentinel errors used across packages.
var (
	// ErrJobCancelled is returned when a job's cancellation handle fires.
	ErrJobCancelled = errors.New("job cancelled")

	// ErrJobNotFound is returned by the job store for unknown IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrPaperNotFound is returned by the paper store for unknown IDs.
	ErrPaperNotFound = errors.New("paper not found")

	// ErrEpisodeNotFound is returned by the episode store for unknown IDs.
	ErrEpisodeNotFound = errors.New("episode not found")

	// ErrMalformedContract is returned when repair of a structured
	// response is exhausted.
	ErrMalformedContract = errors.New("malformed contract")
)
