// Package errclass defines the stable, machine-readable error classes
// returned by the audit engine.
package errclass

import (
	"errors"
	"fmt"
)

// Error is a coded error class. Two Errors match under errors.Is when
// their codes are equal, regardless of message or cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithMessage returns a new Error with the same Code but a specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg, Cause: e.Cause}
}

// WithMessagef returns a new Error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...), Cause: e.Cause}
}

// Wrap returns a new Error of the same class carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Cause: err}
}

// Error classes. IO, Validation, NotFound and PartialFailure are the broad
// kinds; the remaining classes refine Validation for callers that need it.
var (
	ErrIO               = &Error{Code: "E_IO"}
	ErrValidation       = &Error{Code: "E_VALIDATION"}
	ErrNotFound         = &Error{Code: "E_NOT_FOUND"}
	ErrPartialFailure   = &Error{Code: "E_PARTIAL_FAILURE"}
	ErrFrameCorrupt     = &Error{Code: "E_FRAME_CORRUPT"}
	ErrChecksumMismatch = &Error{Code: "E_CHECKSUM_MISMATCH"}
	ErrNameInvalid      = &Error{Code: "E_NAME_INVALID"}
	ErrConfigInvalid    = &Error{Code: "E_CONFIG_INVALID"}
	ErrLocked           = &Error{Code: "E_LOCKED"}
)

// IsValidation reports whether err belongs to the Validation kind,
// including its refinements.
func IsValidation(err error) bool {
	for _, class := range []*Error{ErrValidation, ErrFrameCorrupt, ErrChecksumMismatch, ErrNameInvalid, ErrConfigInvalid} {
		if errors.Is(err, class) {
			return true
		}
	}
	return false
}
