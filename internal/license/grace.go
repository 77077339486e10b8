package license

import "time"

// GraceDuration is the fixed window during which a prior successful
// validation is still trusted despite current connectivity failures.
const GraceDuration = 48 * time.Hour

// GraceOpen reports whether the grace window is open. Grace is available
// only when the most recent check failed with a transient classification and
// the last successful validation is within GraceDuration of now. An
// authoritative failure, or a record that has never validated, gets no grace.
func GraceOpen(lastValidated, now time.Time, failure FailureKind) bool {
	if failure != FailureTransient {
		return false
	}
	if lastValidated.IsZero() {
		return false
	}
	return now.Sub(lastValidated) <= GraceDuration
}

// GraceRemaining returns how much of the grace window is left, or zero when
// the window is closed.
func GraceRemaining(lastValidated, now time.Time, failure FailureKind) time.Duration {
	if !GraceOpen(lastValidated, now, failure) {
		return 0
	}
	return GraceDuration - now.Sub(lastValidated)
}
