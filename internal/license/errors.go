package license

import (
	"errors"
	"fmt"
)

// Sentinel errors for license engine operations.
var (
	// ErrInvalidInput is returned for empty or malformed keys before any
	// network call is made.
	ErrInvalidInput = errors.New("license: invalid input")

	// ErrNotActivated is returned when an operation requires a stored key
	// and none exists.
	ErrNotActivated = errors.New("license: not activated")

	// ErrRateLimited is returned when activation attempts exceed the
	// configured rate.
	ErrRateLimited = errors.New("license: too many activation attempts")
)

// Transient failure sentinels. The authority's true answer is unknown, so
// these drive grace-period logic rather than immediate lockout.
var (
	ErrUnreachable       = errors.New("license: authority unreachable")
	ErrTimeout           = errors.New("license: authority timed out")
	ErrServerError       = errors.New("license: authority server error")
	ErrMalformedResponse = errors.New("license: malformed authority response")
)

// RejectionError is an authoritative negative from the license authority:
// the key is invalid, revoked, expired, or over its site limit. It is not a
// network failure and never opens a grace window.
type RejectionError struct {
	Status string // authority-reported status, e.g. "expired", "invalid"
	Reason string // human-readable reason, surfaced verbatim to the user
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("license rejected by authority (%s)", e.Status)
	}
	return fmt.Sprintf("license rejected by authority: %s", e.Reason)
}

// IsTransient reports whether err is a connectivity/server-side failure that
// should be tolerated within the grace window.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnreachable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServerError) ||
		errors.Is(err, ErrMalformedResponse)
}

// IsAuthoritative reports whether err is an explicit denial from the
// authority. Authoritative failures always win over grace considerations.
func IsAuthoritative(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}

// classifyFailure maps an error from the remote client onto the failure kind
// stored in the record.
func classifyFailure(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case IsAuthoritative(err):
		return FailureAuthoritative
	case IsTransient(err):
		return FailureTransient
	default:
		// Unknown errors are treated like connectivity problems: never
		// trust them enough to lock a paying customer out.
		return FailureTransient
	}
}
