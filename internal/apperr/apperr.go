// Package apperr holds the error taxonomy shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Code is the stable, user-visible error category.
type Code string

const (
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	CodeConflict             Code = "CONFLICT"
	CodeUpstreamFailure      Code = "UPSTREAM_FAILURE"
)

// Reason narrows a Code down to the rule that was violated.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonShiftsInUse         Reason = "SHIFTS_IN_USE"
	ReasonSeatAlreadyReserved Reason = "SEAT_ALREADY_RESERVED"
	ReasonAlreadyConfigured   Reason = "ALREADY_CONFIGURED"
	ReasonSeatOccupied        Reason = "SEAT_OCCUPIED"
	ReasonNoSeatAllocated     Reason = "NO_SEAT_ALLOCATED"
	ReasonSeatNotReserved     Reason = "SEAT_NOT_RESERVED"
	ReasonSeatNotFound        Reason = "SEAT_NOT_FOUND"
	ReasonEmailInUse          Reason = "EMAIL_IN_USE"
	ReasonVersionMismatch     Reason = "VERSION_MISMATCH"
	ReasonRolledBack          Reason = "ROLLED_BACK"
	ReasonReconciliation      Reason = "RECONCILIATION_REQUIRED"
)

// Error is a typed failure returned by services.
type Error struct {
	Code    Code
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Reason != ReasonNone {
		msg += "/" + string(e.Reason)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code and, when the target carries one, on Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Sentinels usable with errors.Is.
var (
	ErrUnauthorized         = &Error{Code: CodeUnauthorized}
	ErrForbidden            = &Error{Code: CodeForbidden}
	ErrNotFound             = &Error{Code: CodeNotFound}
	ErrInvalidConfiguration = &Error{Code: CodeInvalidConfiguration}
	ErrConflict             = &Error{Code: CodeConflict}
	ErrUpstreamFailure      = &Error{Code: CodeUpstreamFailure}

	ErrShiftsInUse         = &Error{Code: CodeConflict, Reason: ReasonShiftsInUse}
	ErrSeatAlreadyReserved = &Error{Code: CodeConflict, Reason: ReasonSeatAlreadyReserved}
	ErrAlreadyConfigured   = &Error{Code: CodeConflict, Reason: ReasonAlreadyConfigured}
	ErrSeatOccupied        = &Error{Code: CodeConflict, Reason: ReasonSeatOccupied}
	ErrNoSeatAllocated     = &Error{Code: CodeConflict, Reason: ReasonNoSeatAllocated}
	ErrSeatNotReserved     = &Error{Code: CodeConflict, Reason: ReasonSeatNotReserved}
	ErrEmailInUse          = &Error{Code: CodeConflict, Reason: ReasonEmailInUse}
	ErrVersionMismatch     = &Error{Code: CodeConflict, Reason: ReasonVersionMismatch}
	ErrSeatNotFound        = &Error{Code: CodeNotFound, Reason: ReasonSeatNotFound}
	ErrReconciliation      = &Error{Code: CodeUpstreamFailure, Reason: ReasonReconciliation}
)

func New(code Code, reason Reason, format string, args ...any) *Error {
	return &Error{Code: code, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...any) *Error {
	return New(CodeUnauthorized, ReasonNone, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(CodeForbidden, ReasonNone, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, ReasonNone, format, args...)
}

func Invalid(format string, args ...any) *Error {
	return New(CodeInvalidConfiguration, ReasonNone, format, args...)
}

func Conflict(reason Reason, format string, args ...any) *Error {
	return New(CodeConflict, reason, format, args...)
}

// Upstream wraps a storage or provider failure. rolledBack reports whether the
// operation's partial writes were undone.
func Upstream(err error, rolledBack bool, format string, args ...any) *Error {
	reason := ReasonRolledBack
	if !rolledBack {
		reason = ReasonReconciliation
	}
	e := New(CodeUpstreamFailure, reason, format, args...)
	e.Err = err
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// RequiresReconciliation reports whether err left storage in an unknown state.
func RequiresReconciliation(err error) bool {
	return errors.Is(err, ErrReconciliation)
}
