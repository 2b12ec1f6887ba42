// Package errors defines the CommitMux error taxonomy: a small set of
// stable codes distinguishing persistence faults, repository-access
// faults, filesystem faults, configuration faults, and missing-entity
// faults, each wrapping an underlying cause.
package errors

import "fmt"

// Code identifies which subsystem produced an error.
type Code string

const (
	// Store indicates a persistence-layer fault: I/O, SQL errors, schema
	// violations, UTF-8 decode of stored data, or compression failures.
	Store Code = "STORE"
	// Ingest indicates a repository-access failure: open, walk, or diff.
	Ingest Code = "INGEST"
	// Io indicates a filesystem fault unrelated to the store or repository.
	Io Code = "IO"
	// Config indicates missing or malformed configuration.
	Config Code = "CONFIG"
	// NotFound indicates a requested entity (repo, commit, patch) is absent.
	NotFound Code = "NOT_FOUND"
)

// Error is the CommitMux error type. It carries a stable code, a
// human-readable message, and an optional cause that Unwrap exposes
// for errors.Is/errors.As chains.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New creates an Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that preserves cause in its Unwrap chain.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code, so
// callers can write errors.Is(err, errors.New(errors.NotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NotFoundf builds a NotFound error with a formatted message.
func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// Storef builds a Store error with a formatted message and cause.
func Storef(cause error, format string, args ...interface{}) *Error {
	return Wrap(Store, fmt.Sprintf(format, args...), cause)
}

// Ingestf builds an Ingest error with a formatted message and cause.
func Ingestf(cause error, format string, args ...interface{}) *Error {
	return Wrap(Ingest, fmt.Sprintf(format, args...), cause)
}

// CodeOf extracts the Code from err, if it (or something it wraps)
// is an *Error. Returns ("", false) otherwise.
func CodeOf(err error) (Code, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "", false
}
