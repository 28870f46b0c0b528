// Package domain defines the error taxonomy shared by the checkout and
// reconciliation flows and mapped to HTTP classes at the API boundary.
package domain

import (
	"errors"
	"fmt"
)

// Error codes. Permanent mismatches (ENOTFOUND, ECONFLICT on transitions) are
// resolved locally and recorded; EUNAVAILABLE propagates so the sender retries.
const (
	EINVALID     = "invalid"     // client-fixable validation failure
	ENOTFOUND    = "not_found"   // unknown order/tenant/reference
	ECONFLICT    = "conflict"    // illegal transition or already-consumed resource
	EAUTH        = "auth"        // authenticity check failed
	EPAYMENT     = "payment"     // authorization could not be created
	EUNAVAILABLE = "unavailable" // transient dependency failure
)

// Error is a coded domain error.
type Error struct {
	Code    string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.err }

// Errorf builds a coded error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code string, err error, message string) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// ErrorCode extracts the code from err, defaulting to EUNAVAILABLE for
// untyped errors so unknown failures are treated as retryable.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EUNAVAILABLE
}

// ErrorMessage returns the human-readable message for err.
func ErrorMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
