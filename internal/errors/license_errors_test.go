package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"scanpro/internal/license"
)

func TestMapLicenseError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid input",
			err:        fmt.Errorf("%w: license key is empty", license.ErrInvalidInput),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeInvalidKey,
		},
		{
			name:       "not activated",
			err:        license.ErrNotActivated,
			wantStatus: http.StatusPreconditionRequired,
			wantCode:   ErrCodeNotActivated,
		},
		{
			name:       "rate limited",
			err:        license.ErrRateLimited,
			wantStatus: http.StatusTooManyRequests,
			wantCode:   ErrCodeRateLimited,
		},
		{
			name:       "rejection",
			err:        &license.RejectionError{Status: "invalid", Reason: "site limit exceeded"},
			wantStatus: http.StatusForbidden,
			wantCode:   ErrCodeRejected,
		},
		{
			name:       "wrapped rejection",
			err:        fmt.Errorf("check failed: %w", &license.RejectionError{Status: "expired", Reason: "term ended"}),
			wantStatus: http.StatusForbidden,
			wantCode:   ErrCodeRejected,
		},
		{
			name:       "unreachable",
			err:        license.ErrUnreachable,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeAuthorityUnavailable,
		},
		{
			name:       "timeout",
			err:        license.ErrTimeout,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeAuthorityUnavailable,
		},
		{
			name:       "server error",
			err:        license.ErrServerError,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeAuthorityUnavailable,
		},
		{
			name:       "unknown error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_SERVER_ERROR",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := MapLicenseError(tc.err)
			assert.Equal(t, tc.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tc.wantCode, apiErr.ErrorCode)
		})
	}
}

func TestMapLicenseErrorRejectionCarriesReason(t *testing.T) {
	apiErr := MapLicenseError(&license.RejectionError{Status: "invalid", Reason: "site limit exceeded"})
	assert.Equal(t, "site limit exceeded", apiErr.Details)
}

func TestNewErrorResponseEnvelope(t *testing.T) {
	resp := NewErrorResponse(ErrFeatureLocked)
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusPaymentRequired, resp.Error.StatusCode)
	assert.Equal(t, ErrCodeFeatureLocked, resp.Error.ErrorCode)
}
