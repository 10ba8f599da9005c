package metadata

import "errors"

// StoreError represents a domain error from namespace operations.
//
// These are business logic errors (item not found, permission denied,
// invalid parent) as opposed to infrastructure errors. Transport and
// backend failures are reported as ErrUnavailable so callers can decide
// whether to retry; domain-rule violations are never retried.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Ref is the offending identifier (item id, email) when applicable
	Ref string

	// Err is the underlying cause, if any (transport errors mostly)
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.Ref != "" {
		msg += ": " + e.Ref
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a store error.
//
// Every failure maps to exactly one category so callers can decide
// between a validation message, a permission denial, and a retry
// affordance - never a generic unlabelled failure.
type ErrorCode int

const (
	// ErrNotFound indicates the referenced folder/file/grant doesn't exist
	ErrNotFound ErrorCode = iota

	// ErrForbidden indicates the acting principal lacks the required
	// ownership or grant. Never retried.
	ErrForbidden

	// ErrInvalidArgument indicates malformed input
	// Examples: empty name, unknown permission value
	ErrInvalidArgument

	// ErrInvalidParent indicates the target parent is absent, foreign-owned,
	// or would create a cycle in the folder tree
	ErrInvalidParent

	// ErrSelfShare indicates an owner tried to share an item with themselves
	ErrSelfShare

	// ErrGranteeNotFound indicates the share recipient email resolved to
	// no known principal
	ErrGranteeNotFound

	// ErrUnavailable indicates a transport or backend failure.
	// Retryable with backoff; multi-step operations must not assume
	// partial progress succeeded when this occurs mid-sequence.
	ErrUnavailable

	// ErrNotSupported indicates the operation is deliberately unsupported
	// Example: browsing into a folder reached through a share grant
	ErrNotSupported
)

// String returns the canonical name of the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not_found"
	case ErrForbidden:
		return "forbidden"
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrInvalidParent:
		return "invalid_parent"
	case ErrSelfShare:
		return "self_share"
	case ErrGranteeNotFound:
		return "grantee_not_found"
	case ErrUnavailable:
		return "unavailable"
	case ErrNotSupported:
		return "not_supported"
	default:
		return "unknown"
	}
}

// CodeOf extracts the ErrorCode from an error chain.
// The second return is false when err carries no StoreError.
func CodeOf(err error) (ErrorCode, bool) {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code, true
	}
	return 0, false
}

// IsCode reports whether err carries a StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

// Retryable reports whether err represents a transient failure worth
// retrying. Validation and authorization failures are never retryable.
func Retryable(err error) bool {
	return IsCode(err, ErrUnavailable)
}
