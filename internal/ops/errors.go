package ops

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session and corpus errors so callers can map them
// to user-visible behavior without string matching.
type ErrorKind string

const (
	KindIllegalTransition  ErrorKind = "illegal_transition"
	KindInvalidArea        ErrorKind = "invalid_area"
	KindNonMonotonicTime   ErrorKind = "non_monotonic_time"
	KindDanglingRound      ErrorKind = "dangling_round"
	KindDataIntegrity      ErrorKind = "data_integrity"
	KindPersistenceFailure ErrorKind = "persistence_failure"
)

// Error is a session error with a machine-readable kind. The opaque
// cause, if any, is preserved for unwrapping.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func persistenceError(op string, cause error) *Error {
	return &Error{Kind: KindPersistenceFailure, Msg: op, Cause: cause}
}

// KindOf returns the ErrorKind of err, or "" if err is not an ops error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
