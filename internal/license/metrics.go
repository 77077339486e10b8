package license

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

const MeterName = "license-engine"

// LicenseMetrics holds the license-specific OpenTelemetry instruments.
type LicenseMetrics struct {
	// Activation metrics
	ActivationAttempts metric.Int64Counter
	ActivationSuccess  metric.Int64Counter
	ActivationFailures metric.Int64Counter

	// Validation metrics
	ValidationAttempts    metric.Int64Counter
	ValidationSuccess     metric.Int64Counter
	ValidationFailures    metric.Int64Counter
	ValidationDuration    metric.Float64Histogram
	ValidationCacheHits   metric.Int64Counter
	ValidationCacheMisses metric.Int64Counter

	// Grace period metrics
	GraceEntries     metric.Int64Counter
	GraceExpirations metric.Int64Counter

	// Security metrics
	RateLimitHits metric.Int64Counter
}

// NewLicenseMetrics creates all license instruments on the given meter.
func NewLicenseMetrics(meter metric.Meter) (*LicenseMetrics, error) {
	m := &LicenseMetrics{}
	var err error

	if m.ActivationAttempts, err = meter.Int64Counter("license.activation.attempts",
		metric.WithDescription("Total license activation attempts")); err != nil {
		return nil, fmt.Errorf("create activation attempts counter: %w", err)
	}
	if m.ActivationSuccess, err = meter.Int64Counter("license.activation.success",
		metric.WithDescription("Successful license activations")); err != nil {
		return nil, fmt.Errorf("create activation success counter: %w", err)
	}
	if m.ActivationFailures, err = meter.Int64Counter("license.activation.failures",
		metric.WithDescription("Failed license activations")); err != nil {
		return nil, fmt.Errorf("create activation failures counter: %w", err)
	}
	if m.ValidationAttempts, err = meter.Int64Counter("license.validation.attempts",
		metric.WithDescription("Total license validation attempts")); err != nil {
		return nil, fmt.Errorf("create validation attempts counter: %w", err)
	}
	if m.ValidationSuccess, err = meter.Int64Counter("license.validation.success",
		metric.WithDescription("Successful license validations")); err != nil {
		return nil, fmt.Errorf("create validation success counter: %w", err)
	}
	if m.ValidationFailures, err = meter.Int64Counter("license.validation.failures",
		metric.WithDescription("Failed license validations")); err != nil {
		return nil, fmt.Errorf("create validation failures counter: %w", err)
	}
	if m.ValidationDuration, err = meter.Float64Histogram("license.validation.duration",
		metric.WithDescription("License validation duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create validation duration histogram: %w", err)
	}
	if m.ValidationCacheHits, err = meter.Int64Counter("license.validation.cache.hits",
		metric.WithDescription("Validation cache hits")); err != nil {
		return nil, fmt.Errorf("create cache hits counter: %w", err)
	}
	if m.ValidationCacheMisses, err = meter.Int64Counter("license.validation.cache.misses",
		metric.WithDescription("Validation cache misses")); err != nil {
		return nil, fmt.Errorf("create cache misses counter: %w", err)
	}
	if m.GraceEntries, err = meter.Int64Counter("license.grace.entries",
		metric.WithDescription("Transitions into the grace period")); err != nil {
		return nil, fmt.Errorf("create grace entries counter: %w", err)
	}
	if m.GraceExpirations, err = meter.Int64Counter("license.grace.expirations",
		metric.WithDescription("Grace windows that closed without a successful validation")); err != nil {
		return nil, fmt.Errorf("create grace expirations counter: %w", err)
	}
	if m.RateLimitHits, err = meter.Int64Counter("license.ratelimit.hits",
		metric.WithDescription("Activation attempts refused by the rate limiter")); err != nil {
		return nil, fmt.Errorf("create rate limit counter: %w", err)
	}

	return m, nil
}
