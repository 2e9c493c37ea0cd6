// Package apierror defines the closed error taxonomy used across the
// engine and its HTTP conversion.
package apierror

import (
	"fmt"
	"net/http"
)

// Code is one of the seven kinds of the closed error taxonomy below.
type Code string

const (
	// CodeValidation covers missing/malformed envelope fields and
	// malformed base64/hex.
	CodeValidation Code = "validation"
	// CodeAuth covers signer mismatch and expired envelope timestamps.
	CodeAuth Code = "auth"
	// CodeAdminDisabled is returned for admin actions attempted while
	// disabled (e.g. backup in production without an explicit override).
	CodeAdminDisabled Code = "admin_disabled"
	// CodeNotFound covers device/session/proposal lookups with no match.
	CodeNotFound Code = "not_found"
	// CodeConflict covers uniqueness violations, e.g. re-registering the
	// same (account, deviceId).
	CodeConflict Code = "conflict"
	// CodeBusy covers storage lock contention beyond the retry window.
	// Callers should retry after a short backoff.
	CodeBusy Code = "busy"
	// CodeFatal covers unexpected errors.
	CodeFatal Code = "fatal"
)

// Error is the error type every package in this module returns for
// request-facing failures.
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

// New constructs an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an Error with the given code and message, keeping err
// as the underlying cause for logging/unwrapping.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err is an *Error of the given code.
func Is(err error, code Code) bool {
	aerr, ok := err.(*Error)
	return ok && aerr.Code == code
}

// httpStatus maps a taxonomy code to its HTTP status code.
func httpStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeAdminDisabled:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeBusy:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// body is the wire shape for a failed request: {"error": "...", "details"?: "..."}.
type body struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ToHTTP converts any error into a status code and a JSON-ready body. Errors
// that aren't *Error are treated as CodeFatal without leaking their text.
func ToHTTP(err error) (int, interface{}) {
	aerr, ok := err.(*Error)
	if !ok {
		return http.StatusInternalServerError, body{Error: string(CodeFatal)}
	}
	return httpStatus(aerr.Code), body{
		Error:     string(aerr.Code),
		Details:   aerr.Message,
		Retryable: aerr.Code == CodeBusy,
	}
}
