package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker struct {
	active bool
	calls  int
}

func (c *staticChecker) IsActive(ctx context.Context) bool {
	c.calls++
	return c.active
}

func gateRequest(gate *LicenseGate, path string) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	gate.Handler(next).ServeHTTP(rec, req)
	return rec
}

func TestGateAllowsActiveLicense(t *testing.T) {
	checker := &staticChecker{active: true}
	gate := NewLicenseGate(checker, slog.Default())

	rec := gateRequest(gate, "/api/features/vulnerability-scan/run")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, checker.calls)
}

func TestGateDeniesWithoutLicense(t *testing.T) {
	checker := &staticChecker{active: false}
	gate := NewLicenseGate(checker, slog.Default())

	rec := gateRequest(gate, "/api/features/vulnerability-scan/run")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var envelope struct {
		Success bool `json:"success"`
		Error   struct {
			ErrorCode string `json:"error_code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.False(t, envelope.Success)
	assert.Equal(t, "FEATURE_LOCKED", envelope.Error.ErrorCode)
}

func TestGateExcludesAdminAndHealthPaths(t *testing.T) {
	checker := &staticChecker{active: false}
	gate := NewLicenseGate(checker, slog.Default())

	paths := []string{
		"/",
		"/api/health",
		"/api/health/live",
		"/api/health/ready",
		"/api/license/status",
		"/api/license/activate",
		"/api/license/check",
		"/metrics",
		"/static/css/app.css",
	}
	for _, path := range paths {
		rec := gateRequest(gate, path)
		assert.Equal(t, http.StatusOK, rec.Code, "path %s must bypass the gate", path)
	}
	assert.Zero(t, checker.calls, "excluded paths never consult the checker")
}

func TestGateCapabilityListingOpenWhileLocked(t *testing.T) {
	checker := &staticChecker{active: false}
	gate := NewLicenseGate(checker, slog.Default())

	// A locked install can still see the capability list.
	rec := gateRequest(gate, "/api/features")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = gateRequest(gate, "/api/features/")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Running a capability stays gated.
	rec = gateRequest(gate, "/api/features/vulnerability-scan/run")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestGateAddExcludePath(t *testing.T) {
	checker := &staticChecker{active: false}
	gate := NewLicenseGate(checker, slog.Default())
	gate.AddExcludePath("/custom/webhook")

	rec := gateRequest(gate, "/custom/webhook")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateDisabled(t *testing.T) {
	checker := &staticChecker{active: false}
	gate := NewLicenseGate(checker, slog.Default())
	gate.SetEnabled(false)

	rec := gateRequest(gate, "/api/features/vulnerability-scan/run")
	assert.Equal(t, http.StatusOK, rec.Code)
}
