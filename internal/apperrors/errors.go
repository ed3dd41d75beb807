// Package apperrors defines the four structured error kinds the core
// and its reference HTTP transport share, grounded directly on the
// original ai-manus project's application/errors/exceptions.py
// hierarchy (AppException/NotFoundError/BadRequestError/ServerError/
// UnauthorizedError) and mapped onto Go's error-wrapping idiom instead
// of an exception class tree.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy the §6 error envelope and §7
// error-handling rules are built on.
type Kind string

const (
	KindNotFound     Kind = "NotFound"
	KindBadInput     Kind = "BadInput"
	KindUnauthorized Kind = "Unauthorized"
	KindServer       Kind = "Server"
)

// HTTPStatus returns the status code the reference transport maps
// each kind onto, per spec.md §6/§7.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return 404
	case KindBadInput:
		return 400
	case KindUnauthorized:
		return 401
	default:
		return 500
	}
}

// Code returns the numeric code the §6 error envelope carries,
// matching the Python original's code==status_code convention.
func (k Kind) Code() int {
	return k.HTTPStatus()
}

// Error is a structured application error: a Kind plus a human
// message, optionally wrapping a lower-level cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NotFound, BadInput, Unauthorized and Server construct an *Error of
// the matching Kind.
func NotFound(msg string, cause error) *Error     { return &Error{Kind: KindNotFound, Message: msg, Cause: cause} }
func BadInput(msg string, cause error) *Error     { return &Error{Kind: KindBadInput, Message: msg, Cause: cause} }
func Unauthorized(msg string, cause error) *Error { return &Error{Kind: KindUnauthorized, Message: msg, Cause: cause} }
func Server(msg string, cause error) *Error       { return &Error{Kind: KindServer, Message: msg, Cause: cause} }

// As extracts the *Error from err, if any, falling back to a Server
// kind for unrecognized errors — the same default the Python
// original's FastAPI exception handler applies to any exception that
// isn't already an AppException.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindServer, Message: err.Error()}
}
