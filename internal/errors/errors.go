// Package errors carries typed application errors from the domain layer out
// to HTTP responses, keeping the status mapping in one place.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind buckets an error for status mapping, logging and metrics.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
	KindExternal   Kind = "external"
)

var statusByKind = map[Kind]int{
	KindValidation: http.StatusBadRequest,
	KindNotFound:   http.StatusNotFound,
	KindConflict:   http.StatusConflict,
	KindInternal:   http.StatusInternalServerError,
	KindExternal:   http.StatusBadGateway,
}

// Error is a typed error with optional cause and key/value context that ends
// up in both the log line and the JSON response.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus maps the error kind to a response status code.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithContext attaches a key/value pair, returning the error for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause, Context: make(map[string]any)}
}

// ValidationError reports invalid caller input (400).
func ValidationError(message string) *Error { return newError(KindValidation, message, nil) }

// NotFoundError reports a missing resource (404).
func NotFoundError(message string) *Error { return newError(KindNotFound, message, nil) }

// ConflictError reports a state conflict such as a lost claim race (409).
func ConflictError(message string) *Error { return newError(KindConflict, message, nil) }

// InternalError wraps an unexpected server-side failure (500).
func InternalError(message string, cause error) *Error {
	return newError(KindInternal, message, cause)
}

// ExternalError wraps an upstream dependency failure (502).
func ExternalError(message string, cause error) *Error {
	return newError(KindExternal, message, cause)
}

// Response is the JSON error body sent to clients. The cause is deliberately
// omitted; it only appears in logs.
type Response struct {
	Error   string         `json:"error"`
	Type    Kind           `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) response() Response {
	return Response{Error: e.Message, Type: e.Kind, Context: e.Context}
}

// coerce normalizes any error into an *Error, wrapping unknown ones as
// internal.
func coerce(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError("internal server error", err)
}
