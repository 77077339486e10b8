package errors

import (
	"errors"
	"net/http"

	"scanpro/internal/license"
)

// Error codes for license operations.
const (
	ErrCodeInvalidKey           = "INVALID_LICENSE_KEY"
	ErrCodeNotActivated         = "LICENSE_NOT_ACTIVATED"
	ErrCodeRejected             = "LICENSE_REJECTED"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeAuthorityUnavailable = "LICENSE_AUTHORITY_UNAVAILABLE"
	ErrCodeFeatureLocked        = "FEATURE_LOCKED"
)

// Common license error responses.
var (
	ErrLicenseNotActivated = New(http.StatusPreconditionRequired, ErrCodeNotActivated,
		"No license has been activated. Please activate a license to continue")

	ErrFeatureLocked = New(http.StatusPaymentRequired, ErrCodeFeatureLocked,
		"This feature requires an active license")

	ErrTooManyAttempts = New(http.StatusTooManyRequests, ErrCodeRateLimited,
		"Too many activation attempts. Please try again later")
)

// MapLicenseError translates an engine error into the API error surface.
// Rejections carry the authority's reason verbatim; transient failures come
// back with retry guidance instead of a hard denial.
func MapLicenseError(err error) *APIError {
	var rej *license.RejectionError
	switch {
	case errors.Is(err, license.ErrInvalidInput):
		return NewWithDetails(http.StatusBadRequest, ErrCodeInvalidKey,
			"The provided license key is invalid or malformed", err.Error())
	case errors.Is(err, license.ErrNotActivated):
		return ErrLicenseNotActivated
	case errors.Is(err, license.ErrRateLimited):
		return ErrTooManyAttempts
	case errors.As(err, &rej):
		return NewWithDetails(http.StatusForbidden, ErrCodeRejected,
			"The license authority rejected this license", rej.Reason)
	case license.IsTransient(err):
		return NewWithDetails(http.StatusServiceUnavailable, ErrCodeAuthorityUnavailable,
			"Unable to reach the license authority. Please check your connection and try again",
			err.Error())
	default:
		return NewWithDetails(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR",
			"An unexpected error occurred. Please try again later", err.Error())
	}
}
