// Package domainerrors defines coded errors for the engine's domain layer.
//
// Stores and infrastructure return sentinel errors (pkg/platform/sentinel);
// services translate those into coded domain errors so handlers can map them
// to HTTP statuses without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. Codes follow the failure categories of the
// engine: validation, timing, authorization, resource limits, integrity.
type Code string

const (
	// CodeInvalidInput marks validation failures: bad label syntax, zero
	// prices, malformed addresses. The caller must correct the input.
	CodeInvalidInput Code = "invalid_input"

	// CodeInsufficientPayment marks calls funded below the required price.
	CodeInsufficientPayment Code = "insufficient_payment"

	// CodeNotFound marks lookups of absent commitments, listings, auctions,
	// or withdrawal requests.
	CodeNotFound Code = "not_found"

	// CodeConflict marks state conflicts: re-committing a live commitment,
	// listing an already-escrowed name, executing an executed withdrawal.
	CodeConflict Code = "conflict"

	// CodeTooEarly marks timing failures where the caller must wait:
	// commitment younger than the minimum age, withdrawal still timelocked,
	// auction not yet ended.
	CodeTooEarly Code = "too_early"

	// CodeExpired marks timing failures where the window has closed:
	// commitment older than the maximum age, auction already ended.
	CodeExpired Code = "expired"

	// CodeUnauthorized marks missing or invalid operator credentials.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden marks authorization failures for a known caller: not the
	// owner or seller, unauthorized limiter caller, action while paused.
	CodeForbidden Code = "forbidden"

	// CodeRateLimited marks the registration limiter rejecting a caller.
	CodeRateLimited Code = "rate_limited"

	// CodeLimitExceeded marks configured caps being exceeded: referrer fee
	// above the maximum, emergency withdrawal above the cap.
	CodeLimitExceeded Code = "limit_exceeded"

	// CodeInternal marks unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates a cause with a domain code and message. Returns nil when the
// cause is nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or any error in its chain carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the domain code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to an HTTP status for the JSON error
// envelope. Unknown codes map to 500.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeInsufficientPayment:
		return http.StatusPaymentRequired
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooEarly:
		return http.StatusTooEarly
	case CodeExpired:
		return http.StatusGone
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeLimitExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
