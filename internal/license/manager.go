package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultCacheTTL bounds how long a validation result is served without
	// consulting the authority again.
	DefaultCacheTTL = 5 * time.Minute

	// Activation throttle. Blunts key brute-forcing through the admin
	// surface without ever blocking a legitimate retry for long.
	activationRate  = rate.Limit(1.0 / 60.0) // one token a minute
	activationBurst = 5

	checkFlightKey = "license-check-in-flight"
)

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	// SiteID is the stable identifier for this installation, typically
	// derived from the host's base URL.
	SiteID string

	// CacheTTL overrides DefaultCacheTTL.
	CacheTTL time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	// Metrics, when set, receives OpenTelemetry measurements.
	Metrics *LicenseMetrics
}

// Manager is the license state machine. It owns the stored record: every
// status transition happens here, under the manager's lock, driven by the
// transient/authoritative classification of remote outcomes.
type Manager struct {
	client  AuthorityClient
	store   Store
	cache   *ValidationCache
	logger  *slog.Logger
	metrics *LicenseMetrics
	siteID  string
	now     func() time.Time
	limiter *rate.Limiter

	// group collapses concurrent validation calls into one remote request;
	// the second caller observes the first's in-flight result.
	group singleflight.Group

	mu  sync.Mutex
	rec Record
}

// NewManager creates the engine, loading any previously stored record.
// A missing or discarded record starts the machine at inactive.
func NewManager(client AuthorityClient, store Store, logger *slog.Logger, opts Options) (*Manager, error) {
	if client == nil {
		return nil, errors.New("license: nil authority client")
	}
	if store == nil {
		return nil, errors.New("license: nil store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	m := &Manager{
		client:  client,
		store:   store,
		cache:   NewValidationCache(ttl, clock),
		logger:  logger.With(slog.String("component", "license_manager")),
		metrics: opts.Metrics,
		siteID:  opts.SiteID,
		now:     clock,
		limiter: rate.NewLimiter(activationRate, activationBurst),
	}

	rec, err := store.Load(context.Background())
	switch {
	case errors.Is(err, ErrNoRecord):
		rec = defaultRecord()
	case err != nil:
		return nil, fmt.Errorf("load license record: %w", err)
	}
	m.rec = rec

	m.logger.Info("license manager initialized",
		slog.String("status", string(rec.Status)),
		slog.String("license_key", MaskKey(rec.Key)),
		slog.String("site_id", opts.SiteID),
		slog.Duration("cache_ttl", ttl),
	)
	return m, nil
}

// Activate sends the key and site identity to the authority and, on
// success, replaces the stored record atomically. On rejection or any
// failure the stored record is left unchanged.
func (m *Manager) Activate(ctx context.Context, key string) (*StatusDetail, error) {
	key = NormalizeKey(key)
	if key == "" {
		return nil, fmt.Errorf("%w: license key is empty", ErrInvalidInput)
	}

	if !m.limiter.Allow() {
		m.logger.WarnContext(ctx, "activation rate limit exceeded",
			slog.String("action", "activate"),
		)
		m.count(ctx, m.metricOrNil().RateLimitHits)
		return nil, ErrRateLimited
	}

	m.count(ctx, m.metricOrNil().ActivationAttempts)

	result, err := m.client.Activate(ctx, key, m.siteID)
	if err != nil {
		m.count(ctx, m.metricOrNil().ActivationFailures,
			attribute.String("failure", string(classifyFailure(err))))
		m.logger.WarnContext(ctx, "license activation failed",
			slog.String("action", "activate"),
			slog.String("license_key", MaskKey(key)),
			slog.String("failure_kind", string(classifyFailure(err))),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	now := m.now()
	m.mu.Lock()
	previous := m.rec.Status
	m.rec = Record{
		Key:                key,
		Status:             StatusActive,
		ExpiresAt:          result.ExpiresAt,
		SiteCount:          result.SiteCount,
		MaxSites:           result.MaxSites,
		LastValidatedAt:    now,
		LastCheckAttemptAt: now,
	}
	detail := m.detailLocked(now)
	maxSites := m.rec.MaxSites
	saveErr := m.store.Save(ctx, m.rec)
	m.mu.Unlock()
	m.cache.Invalidate()

	if saveErr != nil {
		// The authority accepted the activation; persistence failing is a
		// host problem the admin has to see.
		m.logger.ErrorContext(ctx, "failed to persist activated license",
			slog.String("error", saveErr.Error()),
		)
		return &detail, fmt.Errorf("activation succeeded but record could not be saved: %w", saveErr)
	}

	m.count(ctx, m.metricOrNil().ActivationSuccess)
	m.logger.InfoContext(ctx, "license activated",
		slog.String("action", "activate"),
		slog.String("license_key", MaskKey(key)),
		slog.String("previous_status", string(previous)),
		slog.Int("max_sites", maxSites),
	)
	return &detail, nil
}

// Deactivate releases this site's slot on the authority on a best-effort
// basis and always clears local state: a customer can walk away from a
// license on their own machine even when the authority is down. A failed
// remote release is reported in the returned detail, never as an error.
func (m *Manager) Deactivate(ctx context.Context) (*StatusDetail, error) {
	m.mu.Lock()
	key := m.rec.Key
	m.mu.Unlock()

	if key == "" {
		return nil, ErrNotActivated
	}

	var remoteMsg string
	if _, err := m.client.Deactivate(ctx, key, m.siteID); err != nil {
		remoteMsg = fmt.Sprintf("remote release failed: %v; site slot may remain counted until the authority reconciles", err)
		m.logger.WarnContext(ctx, "remote license release failed, clearing local state anyway",
			slog.String("action", "deactivate"),
			slog.String("license_key", MaskKey(key)),
			slog.String("error", err.Error()),
		)
	} else {
		m.logger.InfoContext(ctx, "license released on authority",
			slog.String("action", "deactivate"),
			slog.String("license_key", MaskKey(key)),
		)
	}

	now := m.now()
	m.mu.Lock()
	m.rec = defaultRecord()
	detail := m.detailLocked(now)
	saveErr := m.store.Save(ctx, m.rec)
	m.mu.Unlock()
	m.cache.Invalidate()

	if saveErr != nil {
		return &detail, fmt.Errorf("clear license record: %w", saveErr)
	}
	detail.Message = joinMessages("License deactivated", remoteMsg)
	return &detail, nil
}

// Validate re-checks entitlement. With force=false a result cached within
// the TTL is returned without a network call; force=true always consults the
// authority (user-initiated "check now"). Concurrent calls share a single
// remote request.
func (m *Manager) Validate(ctx context.Context, force bool) (*StatusDetail, error) {
	if !force {
		if cached, ok := m.cache.Get(); ok {
			m.count(ctx, m.metricOrNil().ValidationCacheHits)
			return &cached.Detail, cached.Err
		}
		m.count(ctx, m.metricOrNil().ValidationCacheMisses)
	}

	v, err, _ := m.group.Do(checkFlightKey, func() (interface{}, error) {
		start := m.now()
		detail, err := m.doValidate(ctx)
		if m.metrics != nil {
			m.metrics.ValidationDuration.Record(ctx, m.now().Sub(start).Seconds())
		}
		m.cache.Set(*detail, err)
		return detail, err
	})

	detail, _ := v.(*StatusDetail)
	return detail, err
}

// doValidate performs one remote check and applies the transition table.
// A single attempt per invocation; retry is the scheduler's concern.
func (m *Manager) doValidate(ctx context.Context) (*StatusDetail, error) {
	m.mu.Lock()
	key := m.rec.Key
	m.mu.Unlock()

	now := m.now()
	if key == "" {
		m.mu.Lock()
		detail := m.detailLocked(now)
		m.mu.Unlock()
		return &detail, ErrNotActivated
	}

	m.count(ctx, m.metricOrNil().ValidationAttempts)
	result, err := m.client.Validate(ctx, key, m.siteID)

	m.mu.Lock()
	defer m.mu.Unlock()

	now = m.now()
	m.rec.LastCheckAttemptAt = now

	switch {
	case err == nil:
		m.applySuccessLocked(ctx, result, now)
	case IsAuthoritative(err):
		m.applyRejectionLocked(ctx, err, now)
	default:
		m.applyTransientLocked(ctx, err, now)
	}

	if saveErr := m.store.Save(ctx, m.rec); saveErr != nil {
		m.logger.ErrorContext(ctx, "failed to persist license record after validation",
			slog.String("error", saveErr.Error()),
		)
	}

	detail := m.detailLocked(now)
	return &detail, err
}

// applySuccessLocked handles an authoritative confirmation.
func (m *Manager) applySuccessLocked(ctx context.Context, result *RemoteResult, now time.Time) {
	previous := m.rec.Status
	m.rec.Status = StatusActive
	m.rec.ExpiresAt = result.ExpiresAt
	m.rec.SiteCount = result.SiteCount
	m.rec.MaxSites = result.MaxSites
	m.rec.LastValidatedAt = now
	m.rec.LastFailure = FailureNone

	m.count(ctx, m.metricOrNil().ValidationSuccess)
	if previous != StatusActive {
		m.logger.InfoContext(ctx, "license validation restored active status",
			slog.String("action", "validate"),
			slog.String("license_key", MaskKey(m.rec.Key)),
			slog.String("previous_status", string(previous)),
		)
	} else {
		m.logger.DebugContext(ctx, "license validated",
			slog.String("action", "validate"),
			slog.String("license_key", MaskKey(m.rec.Key)),
		)
	}
}

// applyRejectionLocked handles an explicit denial. Grace never protects
// against revocation: the lock is immediate.
func (m *Manager) applyRejectionLocked(ctx context.Context, err error, now time.Time) {
	var rej *RejectionError
	errors.As(err, &rej)

	previous := m.rec.Status
	if rej != nil && rej.Status == string(StatusExpired) {
		m.rec.Status = StatusExpired
	} else {
		m.rec.Status = StatusInvalid
	}
	m.rec.LastFailure = FailureAuthoritative

	m.count(ctx, m.metricOrNil().ValidationFailures,
		attribute.String("failure", string(FailureAuthoritative)))
	m.logger.WarnContext(ctx, "authority rejected license, features locked",
		slog.String("action", "validate"),
		slog.String("license_key", MaskKey(m.rec.Key)),
		slog.String("previous_status", string(previous)),
		slog.String("new_status", string(m.rec.Status)),
		slog.String("error", err.Error()),
	)
}

// applyTransientLocked handles connectivity/server failures. An entitled
// record degrades to grace, then to expired once the window closes. A
// record that was not entitled stays put: a failed call never advances the
// state beyond what the grace rules dictate.
func (m *Manager) applyTransientLocked(ctx context.Context, err error, now time.Time) {
	m.rec.LastFailure = FailureTransient

	m.count(ctx, m.metricOrNil().ValidationFailures,
		attribute.String("failure", string(FailureTransient)))

	switch m.rec.Status {
	case StatusActive, StatusGrace:
		if GraceOpen(m.rec.LastValidatedAt, now, FailureTransient) {
			if m.rec.Status == StatusActive {
				m.count(ctx, m.metricOrNil().GraceEntries)
			}
			m.rec.Status = StatusGrace
			m.logger.WarnContext(ctx, "license check failed, grace window open",
				slog.String("action", "validate"),
				slog.String("license_key", MaskKey(m.rec.Key)),
				slog.Duration("grace_remaining", GraceRemaining(m.rec.LastValidatedAt, now, FailureTransient)),
				slog.String("error", err.Error()),
			)
		} else {
			m.rec.Status = StatusExpired
			m.count(ctx, m.metricOrNil().GraceExpirations)
			m.logger.ErrorContext(ctx, "grace window elapsed without successful validation, features locked",
				slog.String("action", "validate"),
				slog.String("license_key", MaskKey(m.rec.Key)),
				slog.Time("last_validated_at", m.rec.LastValidatedAt),
				slog.String("error", err.Error()),
			)
		}
	default:
		m.logger.DebugContext(ctx, "license check failed with no entitlement to protect",
			slog.String("action", "validate"),
			slog.String("status", string(m.rec.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// IsActive is the single query surface feature gates call. It is cheap: it
// reads the record and the derived grace computation, never the network.
func (m *Manager) IsActive(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := effectiveStatus(m.rec, m.now())
	return status == StatusActive || status == StatusGrace
}

// Detail returns the diagnostic snapshot for the admin surface.
func (m *Manager) Detail(ctx context.Context) *StatusDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	detail := m.detailLocked(m.now())
	return &detail
}

// OnScheduledTick is the scheduler hook: a non-forced validation whose
// outcome is observable only through logs and Detail, never surfaced to a
// user synchronously.
func (m *Manager) OnScheduledTick(ctx context.Context) {
	detail, err := m.Validate(ctx, false)
	switch {
	case err == nil:
		m.logger.DebugContext(ctx, "scheduled license check completed",
			slog.String("status", string(detail.Status)),
		)
	case errors.Is(err, ErrNotActivated):
		m.logger.DebugContext(ctx, "scheduled license check skipped, no license activated")
	case IsAuthoritative(err):
		m.logger.ErrorContext(ctx, "scheduled license check: authority denied entitlement",
			slog.String("status", string(detail.Status)),
			slog.String("error", err.Error()),
		)
	default:
		m.logger.WarnContext(ctx, "scheduled license check failed",
			slog.String("status", string(detail.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// Reset wipes the record and all transient state. Used by uninstall.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	m.rec = defaultRecord()
	err := m.store.Clear(ctx)
	m.mu.Unlock()
	m.cache.Invalidate()

	if err != nil {
		return fmt.Errorf("reset license state: %w", err)
	}
	m.logger.InfoContext(ctx, "license state reset")
	return nil
}

// InvalidateCache drops the memoized validation result.
func (m *Manager) InvalidateCache() {
	m.cache.Invalidate()
}

// CacheStats exposes validation-cache statistics for diagnostics.
func (m *Manager) CacheStats() map[string]interface{} {
	return m.cache.Stats()
}

// effectiveStatus derives the status eagerly: a grace record whose window
// has closed, or an active record past its expiry date, reads as expired
// without waiting for the next scheduled tick. The derived value is
// persisted by the next validation.
func effectiveStatus(rec Record, now time.Time) Status {
	switch rec.Status {
	case StatusGrace:
		if !GraceOpen(rec.LastValidatedAt, now, rec.LastFailure) {
			return StatusExpired
		}
	case StatusActive:
		if rec.ExpiresAt != nil && now.After(*rec.ExpiresAt) {
			return StatusExpired
		}
	}
	return rec.Status
}

// detailLocked builds a StatusDetail from the current record. Callers hold mu.
func (m *Manager) detailLocked(now time.Time) StatusDetail {
	status := effectiveStatus(m.rec, now)
	detail := StatusDetail{
		Status:          status,
		ExpiresAt:       m.rec.ExpiresAt,
		SiteCount:       m.rec.SiteCount,
		MaxSites:        m.rec.MaxSites,
		LastValidatedAt: m.rec.LastValidatedAt,
	}
	if status == StatusGrace {
		detail.GraceRemaining = GraceRemaining(m.rec.LastValidatedAt, now, m.rec.LastFailure)
	}
	detail.Message = statusMessage(status, detail, now)
	return detail
}

func statusMessage(status Status, detail StatusDetail, now time.Time) string {
	switch status {
	case StatusActive:
		if detail.ExpiresAt != nil {
			days := int(detail.ExpiresAt.Sub(now).Hours() / 24)
			return fmt.Sprintf("License is active, %d days until expiry", days)
		}
		return "License is active"
	case StatusGrace:
		return fmt.Sprintf("License authority unreachable, running on last good validation (%s of grace remaining)",
			detail.GraceRemaining.Round(time.Minute))
	case StatusExpired:
		return "License has expired. Re-activate or check again once connectivity is restored"
	case StatusInvalid:
		return "License was rejected by the authority. Enter a valid license key"
	default:
		return "No license activated"
	}
}

// metricOrNil lets call sites stay terse when metrics are not wired.
func (m *Manager) metricOrNil() *LicenseMetrics {
	if m.metrics == nil {
		return &LicenseMetrics{}
	}
	return m.metrics
}

// count records 1 on the counter when metrics are wired.
func (m *Manager) count(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func joinMessages(msgs ...string) string {
	out := ""
	for _, msg := range msgs {
		if msg == "" {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += msg
	}
	return out
}
