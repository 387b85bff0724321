package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable wire taxonomy for errors. The string values are what
// clients see in the "code" field; they never change even when messages do.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindAuthRequired        Kind = "AUTH_REQUIRED"
	KindAuthRevoked         Kind = "AUTH_REVOKED"
	KindNotFound            Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindStale               Kind = "STALE"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindInFlight            Kind = "IN_FLIGHT"
	KindPaymentVerification Kind = "PAYMENT_VERIFICATION_FAILED"
	KindInternal            Kind = "INTERNAL"
)

// Error is a tagged error carrying the taxonomy kind and a human-readable
// message. Services return these; the HTTP edge translates them once.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind: errors.Is(err, apperrors.New(KindConflict, ""))
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a tagged error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a tagged error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a kind and message
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Internal wraps an unexpected error as INTERNAL
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf extracts the kind of an error, defaulting to INTERNAL for
// untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf extracts the human-readable message of an error
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a kind to the HTTP status code it surfaces as
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthRequired, KindAuthRevoked:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInFlight:
		return http.StatusConflict
	case KindStale:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindPaymentVerification:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsRetriable reports whether the error should signal retry to an
// external caller (webhook providers retry on 5xx).
func IsRetriable(err error) bool {
	return KindOf(err) == KindInternal
}
