package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor logs security-relevant events. User identifiers are hashed before
// logging so audit trails can be correlated without storing PII.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates an auditor. A nil logger falls back to slog.Default.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event is one security audit record.
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent emits an audit record with hashed user identity.
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogTokenIssued records an access token grant.
func (a *Auditor) LogTokenIssued(userID, clientID, ipAddress, grantType, scope string) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"grant_type": grantType,
			"scope":      scope,
		},
	})
}

// LogTokenRefreshed records a refresh-token redemption.
func (a *Auditor) LogTokenRefreshed(userID, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventTokenRefreshed,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"rotated": true,
		},
	})
}

// LogTokenRevoked records a revocation, tokenType being "access_token" or
// "refresh_token".
func (a *Auditor) LogTokenRevoked(userID, clientID, ipAddress, tokenType string) {
	a.LogEvent(Event{
		Type:      EventTokenRevoked,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"token_type": tokenType,
		},
	})
}

// LogAuthFailure records a failed client or resource-owner authentication.
func (a *Auditor) LogAuthFailure(userID, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogCodeIssued records issuance of an authorization code.
func (a *Auditor) LogCodeIssued(userID, clientID, ipAddress, scope string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeIssued,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogCodeReuse records a second redemption attempt for an authorization
// code.
func (a *Auditor) LogCodeReuse(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeReuseDetected,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogRefreshReuse records a replay of an already-consumed refresh token.
func (a *Auditor) LogRefreshReuse(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventRefreshTokenReuseDetected,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// hashForLogging returns a short SHA256 prefix of sensitive data so it can
// be correlated in logs without being recoverable.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
