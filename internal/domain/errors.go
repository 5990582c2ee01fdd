package domain

import (
	"errors" // errors.As support
	"fmt"    // Error formatting
)

// Kind classifies a domain error. Every error returned by the ledger carries
// a stable kind so the HTTP layer can map it to a status code without
// inspecting message text.
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"   // Non-positive amount, mismatched currencies, same account
	KindNotFound          Kind = "not_found"          // Unknown account, user or currency
	KindForbidden         Kind = "forbidden"          // Caller does not own the account
	KindInsufficientFunds Kind = "insufficient_funds" // Balance below the fee-inflated debit
	KindInvalidState      Kind = "invalid_state"      // Limit cap below the amount already spent this month
	KindTimeout           Kind = "timeout"            // Lock wait exceeded the configured bound
	KindStorageFailure    Kind = "storage_failure"    // Fatal storage I/O, not retried
)

// Error is a business-rule or storage failure with a stable kind and a
// human-readable message. Internal state (lock identities, row versions) is
// never put into Message.
type Error struct {
	Kind    Kind   // Stable error kind
	Message string // Human-readable message
	Err     error  // Wrapped cause, if any
}

// Error returns the human-readable message
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/As
func (e *Error) Unwrap() error { return e.Err }

// E builds a domain error with the given kind and message
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Ef builds a domain error with a formatted message
func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapStorage wraps a fatal storage error so callers see a stable kind
func WrapStorage(err error, message string) *Error {
	return &Error{Kind: KindStorageFailure, Message: message, Err: err}
}

// KindOf extracts the kind of err, or KindStorageFailure when err is not a
// domain error (unclassified failures are treated as storage faults).
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStorageFailure
}
