// Package apperr defines the error taxonomy shared by the store, auth, admin
// and notification layers. Every failure surfaced to a user carries a Kind so
// callers can branch on it instead of matching message strings.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error by what the caller can do about it.
type Kind string

const (
	KindUnknown                Kind = "unknown"
	KindAuthFailure            Kind = "auth_failure"
	KindPermissionDenied       Kind = "permission_denied"
	KindNotFound               Kind = "not_found"
	KindUnsupportedEnvironment Kind = "unsupported_environment"
	KindNetworkFailure         Kind = "network_failure"
	KindInvalidInput           Kind = "invalid_input"
	KindConflict               Kind = "conflict"
)

// Error is a classified error. Op names the failing operation ("admin.create"),
// Message is safe to show to a user, Err is the underlying cause if any.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain. Context
// cancellation and deadlines count as network failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindNetworkFailure
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing text of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

func AuthFailure(op, message string) *Error      { return New(KindAuthFailure, op, message) }
func PermissionDenied(op, message string) *Error { return New(KindPermissionDenied, op, message) }
func NotFound(op, message string) *Error         { return New(KindNotFound, op, message) }
func InvalidInput(op, message string) *Error     { return New(KindInvalidInput, op, message) }
func Conflict(op, message string) *Error         { return New(KindConflict, op, message) }

// Unsupported reports a capability missing from the runtime environment.
func Unsupported(op, message string) *Error {
	return New(KindUnsupportedEnvironment, op, message)
}

// Network wraps an I/O failure.
func Network(op string, err error) error {
	return Wrap(KindNetworkFailure, op, err)
}
