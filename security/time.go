package security

import "time"

// DefaultClockSkewGracePeriod is the grace applied to expiry checks so that
// minor clock drift between the server and its clients does not produce
// false expirations. Five seconds covers typical NTP drift while keeping
// the effective lifetime extension negligible.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsTokenExpired reports whether expiresAt has passed, allowing the default
// clock-skew grace period. A zero time means no expiration.
func IsTokenExpired(expiresAt time.Time) bool {
	return IsTokenExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsTokenExpiredWithGracePeriod is IsTokenExpired with a caller-chosen grace
// period.
func IsTokenExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}

// IsTokenExpiringSoon reports whether expiresAt falls within the given
// threshold from now.
func IsTokenExpiringSoon(expiresAt time.Time, threshold time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().Add(threshold).After(expiresAt)
}
