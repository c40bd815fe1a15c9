// Package errors carries the typed error used across the service. Each Code
// maps to an HTTP status, a public message and whether callers may retry.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodeSignature     Code = "INVALID_SIGNATURE"
	CodeUpstream      Code = "UPSTREAM_ERROR"
	CodePersistence   Code = "PERSISTENCE_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	final     = false
	retryable = true
	hidden    = false
	shown     = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, final, "validation failed", shown},
	CodeUnauthorized:  {http.StatusUnauthorized, final, "authentication required", hidden},
	CodeForbidden:     {http.StatusForbidden, final, "access denied", hidden},
	CodeNotFound:      {http.StatusNotFound, final, "resource not found", hidden},
	CodeConflict:      {http.StatusConflict, final, "conflict detected", hidden},
	CodeStateConflict: {http.StatusUnprocessableEntity, final, "state transition disallowed", shown},
	CodeIdempotency:   {http.StatusConflict, final, "idempotency key reused", shown},
	CodeRateLimit:     {http.StatusTooManyRequests, final, "rate limit exceeded", hidden},
	CodeInternal:      {http.StatusInternalServerError, retryable, "internal server error", hidden},
	CodeDependency:    {http.StatusServiceUnavailable, retryable, "dependency unavailable", shown},
	CodeSignature:     {http.StatusUnauthorized, final, "invalid signature", hidden},
	// Upstream covers the payment and messaging providers. The message is
	// surfaced as-is because it may carry the order number for support.
	CodeUpstream:    {http.StatusBadGateway, retryable, "upstream provider failure", shown},
	CodePersistence: {http.StatusInternalServerError, retryable, "persistence failure", hidden},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Retryable reports whether repeating the failed call may succeed. Untyped
// errors are treated as internal failures and so are retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	return MetadataFor(typed.code).Retryable
}
