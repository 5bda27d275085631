// Package domainerrors defines the stable error taxonomy surfaced by domain
// services. Every rejected operation carries a Code so transports can map it
// to a status without string matching, plus an optional State snapshot so
// callers can reconcile without re-querying.
package domainerrors

import "errors"

// Code identifies the kind of domain failure. Codes are part of the API
// contract: handlers and clients branch on them, so values are stable.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"

	// Contract lifecycle violations. Never retried automatically: retrying
	// would not change the outcome.
	CodeInvalidTransition  Code = "invalid_transition"
	CodeNotSignable        Code = "not_signable"
	CodeExpired            Code = "expired"
	CodeUnauthorizedSigner Code = "unauthorized_signer"
	CodeAlreadySigned      Code = "already_signed"

	// Chain connectivity failures.
	CodeNoHealthyEndpoint Code = "no_healthy_endpoint"
)

// Error is a domain error with a stable code. State, when set, carries the
// current authoritative view of the entity the operation was rejected
// against (e.g. signing progress) and is serialized into error responses.
type Error struct {
	Code    Code
	Message string
	State   any
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that preserves the underlying cause for
// errors.Is/As chains while exposing a stable code to callers.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithState attaches an authoritative state snapshot to the error and
// returns it, so call sites can chain it on construction.
func (e *Error) WithState(state any) *Error {
	e.State = state
	return e
}

// CodeOf extracts the domain code from err, or CodeInternal when err is not
// a domain error.
func CodeOf(err error) Code {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code
	}
	return CodeInternal
}

// HasCode reports whether err is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code == code
	}
	return false
}

// Is is a readability alias for HasCode, matching the common call shape
// dErrors.Is(err, dErrors.CodeNotFound).
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
