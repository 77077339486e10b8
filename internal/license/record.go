package license

import (
	"strings"
	"time"
)

// Status represents the entitlement state of the installation.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
	StatusGrace    Status = "grace"
	StatusExpired  Status = "expired"
	StatusInvalid  Status = "invalid"
)

// FailureKind classifies the outcome of the most recent remote check.
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureTransient     FailureKind = "transient"
	FailureAuthoritative FailureKind = "authoritative"
)

// Record is the single durable license record for this installation.
// It is mutated only by the Manager; everything else reads copies.
type Record struct {
	Key                string      `json:"license_key"`
	Status             Status      `json:"status"`
	ExpiresAt          *time.Time  `json:"expires_at,omitempty"`
	SiteCount          int         `json:"site_count"`
	MaxSites           int         `json:"max_sites"`
	LastValidatedAt    time.Time   `json:"last_validated_at"`
	LastCheckAttemptAt time.Time   `json:"last_check_attempt_at"`
	LastFailure        FailureKind `json:"last_failure,omitempty"`
}

// defaultRecord returns the first-run record: no key, nothing unlocked.
func defaultRecord() Record {
	return Record{Status: StatusInactive}
}

// StatusDetail is the diagnostic snapshot exposed to feature gates and the
// admin surface. GraceRemaining is zero unless the record is in grace.
type StatusDetail struct {
	Status          Status        `json:"status"`
	ExpiresAt       *time.Time    `json:"expires_at,omitempty"`
	SiteCount       int           `json:"site_count"`
	MaxSites        int           `json:"max_sites"`
	LastValidatedAt time.Time     `json:"last_validated_at"`
	GraceRemaining  time.Duration `json:"grace_remaining,omitempty"`
	Message         string        `json:"message,omitempty"`
}

// NormalizeKey trims surrounding whitespace from a user-supplied key.
// Keys are otherwise opaque and passed to the authority verbatim.
func NormalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// MaskKey masks a license key for logging. Only the first and last four
// characters survive.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
