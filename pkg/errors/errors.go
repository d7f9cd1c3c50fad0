// Package errors is the typed error model shared by services and the HTTP
// layer. Every Code maps to one HTTP status and a retry hint.
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

	// CodeExternalService is a payment provider failure after retries.
	CodeExternalService Code = "EXTERNAL_SERVICE_ERROR"
	// CodeConsistency flags stored data that contradicts itself, e.g. an
	// order pointing at a missing payment transaction.
	CodeConsistency Code = "CONSISTENCY_ERROR"
	// CodeTimeout is a unit of work that exceeded its deadline and rolled back.
	CodeTimeout Code = "TRANSACTION_TIMEOUT"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable  = true
	withDetail = true
)

func meta(status int, retry, details bool, public string) Metadata {
	return Metadata{HTTPStatus: status, Retryable: retry, PublicMessage: public, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:      meta(http.StatusBadRequest, false, withDetail, "validation failed"),
	CodeUnauthorized:    meta(http.StatusUnauthorized, false, false, "authentication required"),
	CodeForbidden:       meta(http.StatusForbidden, false, false, "access denied"),
	CodeNotFound:        meta(http.StatusNotFound, false, false, "resource not found"),
	CodeConflict:        meta(http.StatusConflict, false, withDetail, "conflict detected"),
	CodeStateConflict:   meta(http.StatusUnprocessableEntity, false, withDetail, "state transition disallowed"),
	CodeIdempotency:     meta(http.StatusConflict, false, withDetail, "idempotency key reused"),
	CodeRateLimit:       meta(http.StatusTooManyRequests, false, false, "rate limit exceeded"),
	CodeInternal:        meta(http.StatusInternalServerError, retryable, false, "internal server error"),
	CodeDependency:      meta(http.StatusServiceUnavailable, retryable, withDetail, "dependency unavailable"),
	CodeExternalService: meta(http.StatusBadGateway, retryable, false, "payment provider unavailable"),
	CodeConsistency:     meta(http.StatusInternalServerError, false, false, "internal consistency error"),
	CodeTimeout:         meta(http.StatusServiceUnavailable, retryable, false, "operation timed out, retry later"),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error carries a Code, a client-facing message and optional structured
// details (for example the productId of an exhausted listing).
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
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
	if e != nil {
		e.details = details
	}
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

// IsCode reports whether the first typed error in err's chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
