// Package apperr defines the error taxonomy shared by every component and the
// canonical error envelope returned to callers.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies a failure. Each kind maps to a fixed HTTP status and
// envelope type.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindAuth               Kind = "auth_error"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindPayloadTooLarge    Kind = "payload_too_large"
	KindRateLimited        Kind = "rate_limited"
	KindServiceUnavailable Kind = "service_unavailable"
	KindBadGateway         Kind = "bad_gateway"
	KindGatewayTimeout     Kind = "gateway_timeout"
	KindInternal           Kind = "internal_error"
)

// Status returns the default HTTP status of the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindBadGateway:
		return http.StatusBadGateway
	case KindGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Type returns the OpenAI-style error type written in the envelope.
func (k Kind) Type() string {
	switch k {
	case KindValidation, KindNotFound, KindConflict, KindPayloadTooLarge:
		return "invalid_request_error"
	case KindAuth:
		return "auth_error"
	case KindRateLimited:
		return "rate_limit_error"
	default:
		return "api_error"
	}
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Param   string
	Details interface{}

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Cause returns the underlying error, if any.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports errors.Is / errors.As through the cause chain.
func (e *Error) Unwrap() error { return e.cause }

// WithParam names the offending request parameter.
func (e *Error) WithParam(param string) *Error {
	e.Param = param
	return e
}

// WithDetails attaches structured details to the envelope.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// WithCause records the underlying error without exposing it to callers.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// New creates an error of the given kind. Code defaults to the kind name.
func New(kind Kind, code, message string) *Error {
	if code == "" {
		code = string(kind)
	}
	return &Error{Kind: kind, Status: kind.Status(), Code: code, Message: message}
}

func Validation(code, message string) *Error { return New(KindValidation, code, message) }

// Unauthorized is a missing or invalid credential (401).
func Unauthorized(code, message string) *Error { return New(KindAuth, code, message) }

// Forbidden is a valid credential without access to the resource (403).
func Forbidden(code, message string) *Error {
	e := New(KindAuth, code, message)
	e.Status = http.StatusForbidden
	return e
}

func NotFound(code, message string) *Error { return New(KindNotFound, code, message) }

func Conflict(code, message string) *Error { return New(KindConflict, code, message) }

func PayloadTooLarge(message string) *Error {
	return New(KindPayloadTooLarge, "request_too_large", message)
}

func RateLimited(message string) *Error {
	return New(KindRateLimited, "rate_limit_exceeded", message)
}

func ServiceUnavailable(code, message string) *Error {
	return New(KindServiceUnavailable, code, message)
}

func BadGateway(code, message string) *Error { return New(KindBadGateway, code, message) }

func GatewayTimeout(code, message string) *Error { return New(KindGatewayTimeout, code, message) }

// Internal wraps an unexpected failure.
func Internal(err error, message string) *Error {
	return New(KindInternal, "", message).WithCause(err)
}

// From classifies any error. Errors that carry no *Error in their chain become
// internal errors.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err, "an unexpected error occurred")
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	return From(err).Kind
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
