package features

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticGate bool

func (g staticGate) IsActive(ctx context.Context) bool { return bool(g) }

func TestListIsStableAndComplete(t *testing.T) {
	reg := NewRegistry(staticGate(false), slog.Default())

	assert.Equal(t, []string{CapAIAnalysis, CapPerformanceScan, CapVulnerabilityScan}, reg.List())
	// Listing never consults the gate: a locked install can still see what
	// it is missing.
	assert.Equal(t, reg.List(), reg.List())
}

func TestRunWithActiveLicense(t *testing.T) {
	reg := NewRegistry(staticGate(true), slog.Default())

	res, err := reg.Run(context.Background(), CapVulnerabilityScan)
	require.NoError(t, err)
	assert.Equal(t, CapVulnerabilityScan, res.CapabilityID)
	assert.NotEmpty(t, res.Summary)
}

func TestRunLockedWithoutLicense(t *testing.T) {
	reg := NewRegistry(staticGate(false), slog.Default())

	for _, id := range reg.List() {
		res, err := reg.Run(context.Background(), id)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrLocked)
	}
}

func TestRunUnknownCapability(t *testing.T) {
	reg := NewRegistry(staticGate(true), slog.Default())

	_, err := reg.Run(context.Background(), "quantum-scan")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}
