package engine

import (
	"errors"
	"fmt"
)

// Error represents a failure detected by an engine operation.
//
// Engine errors include:
//   - Schema invalid: a lexicon document violates the grammar
//   - Record invalid: a record payload violates its collection schema
//   - Unknown collection: no record lexicon covers the collection
//   - Missing script: an invokable lexicon has no handler or target
//   - Not found: a lexicon or record lookup missed
//   - Revision conflict: a lexicon put lost its compare-and-swap
//
// Error includes structured fields for diagnostics; the HTTP layer maps
// Code to the wire error taxonomy.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Subject identifies what the operation was acting on: an NSID,
	// an AT URI, or a field path, depending on the code.
	Subject string
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeSchemaInvalid indicates a lexicon document failed validation.
	ErrCodeSchemaInvalid ErrorCode = "SCHEMA_INVALID"

	// ErrCodeRecordInvalid indicates a record payload failed its schema.
	ErrCodeRecordInvalid ErrorCode = "RECORD_INVALID"

	// ErrCodeUnknownCollection indicates no record lexicon covers the
	// collection a record operation targeted.
	ErrCodeUnknownCollection ErrorCode = "UNKNOWN_COLLECTION"

	// ErrCodeMissingScript indicates an invokable lexicon carries neither
	// a handler script nor a target collection.
	ErrCodeMissingScript ErrorCode = "MISSING_SCRIPT"

	// ErrCodeNotFound indicates a lexicon or record lookup missed.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeConflict indicates a lexicon put lost its compare-and-swap
	// after exhausting retries.
	ErrCodeConflict ErrorCode = "REVISION_CONFLICT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Subject)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the engine error code from err, unwrapping as needed.
// Returns the empty code when err is not an engine error.
func CodeOf(err error) ErrorCode {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsNotFound returns true if the error is a missing lexicon or record.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsConflict returns true if the error is a lost revision race.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}

func newError(code ErrorCode, subject, format string, args ...any) *Error {
	return &Error{Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)}
}
