// Package errors provides coded errors shared across the proposals service.
// Codes drive the caller-visible taxonomy; messages are stable reason strings.
package errors

import (
	"errors"
	"fmt"
)

// ErrCode classifies an error for callers.
type ErrCode string

const (
	ErrCodeValidation        ErrCode = "VALIDATION"
	ErrCodeUnauthorized      ErrCode = "UNAUTHORIZED"
	ErrCodeLineage           ErrCode = "LINEAGE_VIOLATION"
	ErrCodeNoChange          ErrCode = "NO_CHANGE"
	ErrCodeSequenceCollision ErrCode = "SEQUENCE_COLLISION"
	ErrCodeConflict          ErrCode = "CONFLICT"
	ErrCodeNotFound          ErrCode = "NOT_FOUND"
	ErrCodeInternal          ErrCode = "INTERNAL"
)

// Error is a coded error. BlockingID optionally names the entity that caused
// a lineage rejection so the caller can offer remediation.
type Error struct {
	Code       ErrCode
	Message    string
	BlockingID string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code ErrCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a code and message.
func Wrap(err error, code ErrCode, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports that an entity of the given kind does not exist.
func NotFound(kind, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// InvalidInput reports a malformed or missing field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf("%s: %s", field, message)}
}

// Unauthorized reports that the actor lacks a required role.
func Unauthorized(message string) *Error {
	return &Error{Code: ErrCodeUnauthorized, Message: message}
}

// LineageViolation reports a failed creation/mutation/deletion precondition.
// blockingID may be empty when no single entity blocks the operation.
func LineageViolation(message, blockingID string) *Error {
	return &Error{Code: ErrCodeLineage, Message: message, BlockingID: blockingID}
}

// NoChange reports that an edit or child creation carries zero changes.
func NoChange(message string) *Error {
	return &Error{Code: ErrCodeNoChange, Message: message}
}

// SequenceCollision reports a lost race assigning a sequence number.
// The orchestrator retries these a bounded number of times.
func SequenceCollision(scope string) *Error {
	return &Error{Code: ErrCodeSequenceCollision, Message: fmt.Sprintf("sequence number already taken in scope %s", scope)}
}

// Conflict reports a concurrent-writer conflict (stale version).
func Conflict(message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

// From returns err as a coded *Error, wrapping uncoded errors as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: ErrCodeInternal, Message: err.Error(), cause: err}
}

// CodeOf extracts the code from err, or ErrCodeInternal for uncoded errors.
func CodeOf(err error) ErrCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrCode) bool {
	return CodeOf(err) == code
}
