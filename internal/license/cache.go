package license

import (
	"sync"
	"time"
)

// checkResult is a memoized validation outcome.
type checkResult struct {
	Detail    StatusDetail
	Err       error
	CachedAt  time.Time
	ExpiresAt time.Time
}

// ValidationCache memoizes the most recent validation result so a burst of
// local queries (several feature gates in one request cycle) issues at most
// one remote call. Single-tenant: there is exactly one license record, so
// the cache holds one entry.
type ValidationCache struct {
	mu        sync.RWMutex
	entry     *checkResult
	ttl       time.Duration
	errorTTL  time.Duration
	now       func() time.Time
	hitCount  int64
	missCount int64
}

// NewValidationCache creates a cache with the given TTL for successful
// results. Failed results are cached for a shorter window so recovery is
// noticed quickly.
func NewValidationCache(ttl time.Duration, clock func() time.Time) *ValidationCache {
	if clock == nil {
		clock = time.Now
	}
	errorTTL := 2 * time.Minute
	if ttl < errorTTL {
		errorTTL = ttl
	}
	return &ValidationCache{
		ttl:      ttl,
		errorTTL: errorTTL,
		now:      clock,
	}
}

// Get returns the cached result if it has not expired.
func (c *ValidationCache) Get() (*checkResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry == nil || c.now().After(c.entry.ExpiresAt) {
		c.missCount++
		return nil, false
	}
	c.hitCount++
	result := *c.entry
	return &result, true
}

// Set stores a validation result. Results carrying an error expire sooner.
func (c *ValidationCache) Set(detail StatusDetail, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	ttl := c.ttl
	if err != nil {
		ttl = c.errorTTL
	}
	c.entry = &checkResult{
		Detail:    detail,
		Err:       err,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Invalidate drops the cached result. The next non-forced validation will go
// to the authority.
func (c *ValidationCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
}

// Stats returns cache statistics for the diagnostics surface.
func (c *ValidationCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hitCount + c.missCount
	hitRatio := float64(0)
	if total > 0 {
		hitRatio = float64(c.hitCount) / float64(total)
	}

	stats := map[string]interface{}{
		"hit_count":   c.hitCount,
		"miss_count":  c.missCount,
		"hit_ratio":   hitRatio,
		"ttl_seconds": c.ttl.Seconds(),
		"cached":      c.entry != nil,
	}
	if c.entry != nil {
		stats["cached_at"] = c.entry.CachedAt
		stats["expires_at"] = c.entry.ExpiresAt
	}
	return stats
}
