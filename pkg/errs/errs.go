// Package errs defines the closed error taxonomy the scheduler uses to
// propagate failures from the core up to the ControlAPI boundary.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the scheduler's named failure categories. The ControlAPI
// maps each Kind to an HTTP status directly instead of pattern-matching
// error strings.
type Kind string

const (
	NotReady        Kind = "NotReady"
	NoEligibleNodes Kind = "NoEligibleNodes"
	NoCapacity      Kind = "NoCapacity"
	Transport       Kind = "Transport"
	WorkerError     Kind = "WorkerError"
	Timeout         Kind = "Timeout"
	Validation      Kind = "Validation"
	ProviderError   Kind = "ProviderError"
)

// Error is a Kind-tagged error, wrapping an optional cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given Kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error of the given Kind around a cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// defaulting to an empty Kind otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
