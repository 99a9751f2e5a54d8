// Package syroserr defines the engine-wide error taxonomy shared by every
// Syros coordination engine (locks, sagas, events, cache).
//
// Every failure path in pkg/syros/{lock,saga,event,cache} returns an *Error
// with a stable Kind so that transport adapters (outside this module's scope)
// can map it to a protocol code without inspecting message text.
package syroserr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind discriminates the reason an operation failed.
type Kind string

// Error kinds.
const (
	LockConflict          Kind = "LockConflict"
	LockNotFound          Kind = "LockNotFound"
	WaitTimeout           Kind = "WaitTimeout"
	SagaNotFound          Kind = "SagaNotFound"
	SagaInvalidTransition Kind = "SagaInvalidTransition"
	StepExecutionFailed   Kind = "StepExecutionFailed"
	VersionConflict       Kind = "VersionConflict"
	StreamNotFound        Kind = "StreamNotFound"
	CacheMiss             Kind = "CacheMiss"
	StoreTimeout          Kind = "StoreTimeout"
	StoreUnavailable      Kind = "StoreUnavailable"
	InvalidArgument       Kind = "InvalidArgument"
	Internal              Kind = "Internal"
)

// retryable records, per kind, whether a caller is expected to retry the
// same request unmodified. Kept as a lookup table rather than scattered
// booleans so the whole taxonomy stays in one place.
var retryable = map[Kind]bool{
	LockConflict:          false,
	LockNotFound:          false,
	WaitTimeout:           true,
	SagaNotFound:          false,
	SagaInvalidTransition: false,
	StepExecutionFailed:   false,
	VersionConflict:       true,
	StreamNotFound:        false,
	CacheMiss:             false,
	StoreTimeout:          true,
	StoreUnavailable:      true,
	InvalidArgument:       false,
	Internal:              false,
}

// Error is the structured value every engine boundary returns on failure.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryable[kind],
	}
}

// Wrap creates an *Error of the given kind around a causing error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryable[kind],
		Cause:     cause,
	}
}

// Is reports whether err is (or wraps) a Syros *Error of the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == kind
}

// StoreKind classifies a failure from one of the underlying stores:
// StoreTimeout for a deadline/timeout failure (transient, the store may just
// be slow), StoreUnavailable for everything else (connection or protocol
// failure). Both are retryable; the split exists so callers and transports
// can distinguish "waited too long" from "could not talk to it at all".
func StoreKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return StoreTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StoreTimeout
	}
	return StoreUnavailable
}

// KindOf extracts the Kind from err, returning Internal if err is not a
// Syros *Error. Useful at a transport boundary that must always choose a
// protocol status code.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Internal
}
