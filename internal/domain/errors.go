package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is a machine-checkable classification of a domain error.
// API handlers map kinds to HTTP status codes; callers use KindOf to
// branch without string matching.
type ErrorKind string

const (
	// KindValidation marks bad input: oversized or undecodable images,
	// malformed filters, a named option with no values. Never retried.
	KindValidation ErrorKind = "validation_error"

	// KindSearchUnavailable marks a search that could not be served at
	// all: the only viable retrieval backend is down.
	KindSearchUnavailable ErrorKind = "search_unavailable"

	// KindTooManyOptions marks a variant generation request exceeding
	// the three-slot option model.
	KindTooManyOptions ErrorKind = "too_many_options"

	// KindNotFound marks a missing catalog record.
	KindNotFound ErrorKind = "not_found"
)

// Error is a domain error carrying a kind and a human-readable message.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError creates a KindValidation error.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NewSearchUnavailableError creates a KindSearchUnavailable error wrapping
// the underlying backend failure.
func NewSearchUnavailableError(msg string, err error) *Error {
	return &Error{Kind: KindSearchUnavailable, Msg: msg, Err: err}
}

// NewTooManyOptionsError creates a KindTooManyOptions error.
func NewTooManyOptionsError(got int) *Error {
	return &Error{
		Kind: KindTooManyOptions,
		Msg:  fmt.Sprintf("at most %d product options are supported, got %d", MaxProductOptions, got),
	}
}

// NewNotFoundError creates a KindNotFound error.
func NewNotFoundError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err if it is (or wraps) a domain Error,
// or "" otherwise.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
