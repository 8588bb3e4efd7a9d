package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so adapters can map it to a status code
// without inspecting message text.
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "INVALID_INPUT"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindPolicyViolation   ErrorKind = "POLICY_VIOLATION"
	KindInsufficientStock ErrorKind = "INSUFFICIENT_STOCK"
	KindConflict          ErrorKind = "CONFLICT"
	KindExpiredWindow     ErrorKind = "EXPIRED_WINDOW"
	KindInternal          ErrorKind = "INTERNAL"
)

// Error is the structured error returned by every service in this package.
// Message is safe to show to API callers; Err (if any) is the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err. Errors that did not originate from this
// package (driver failures, context cancellation) are reported as Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func invalidInput(format string, args ...any) error {
	return Errorf(KindInvalidInput, format, args...)
}

func notFound(format string, args ...any) error {
	return Errorf(KindNotFound, format, args...)
}

func conflict(format string, args ...any) error {
	return Errorf(KindConflict, format, args...)
}
