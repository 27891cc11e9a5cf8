// Package apperr defines the error taxonomy shared by the service and HTTP layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a failure so callers can map it onto a response without string matching.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_FAILED"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindUnauthenticated     Kind = "UNAUTHENTICATED"
	KindInsufficientCredits Kind = "INSUFFICIENT_CREDITS"
	KindGenerationFailed    Kind = "GENERATION_FAILED"
	KindStorageFailed       Kind = "STORAGE_FAILED"
	KindInvalidSignature    Kind = "INVALID_SIGNATURE"
	KindOrderNotFound       Kind = "ORDER_NOT_FOUND"
	KindUserNotFound        Kind = "USER_NOT_FOUND"
	KindNotFound            Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindForbidden           Kind = "FORBIDDEN"
	KindUnexpected          Kind = "UNEXPECTED_ERROR"
)

// Error is a classified failure. Message is safe to show to the client, Err is not.
type Error struct {
	Kind       Kind
	Message    string
	Err        error
	RetryAfter time.Duration
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

// Is matches any *Error of the same kind, so errors.Is(err, apperr.New(KindRateLimited, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// RateLimited builds a rate-limit rejection carrying a retry hint.
func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// KindOf returns the kind of the first *Error in the chain, or KindUnexpected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// HTTPStatus maps an error onto a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindValidation, KindInvalidSignature:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInsufficientCredits:
		return http.StatusPaymentRequired
	case KindForbidden:
		return http.StatusForbidden
	case KindOrderNotFound, KindUserNotFound, KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindGenerationFailed, KindStorageFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that may be shown to the client.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindUnexpected {
		return "Unexpected error. Please try again later."
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// RetryAfter returns the retry hint carried by a rate-limit error, if any.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
