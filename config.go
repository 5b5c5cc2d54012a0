package oauth

import (
	"fmt"
	"sort"
	"time"
)

// Default configuration values.
const (
	// DefaultAccessTokenTTL is the lifetime of access tokens and of
	// authorization codes, which share the same TTL.
	DefaultAccessTokenTTL = time.Hour

	// DefaultRealm is the protection realm announced in WWW-Authenticate
	// challenges at the resource boundary.
	DefaultRealm = "api"
)

// DefaultScopes is the scope set used when none is configured.
var DefaultScopes = map[string]string{
	"read":  "Read access to protected resources",
	"write": "Write access to protected resources",
}

// Config is the immutable configuration for a Server. Construct it once at
// startup; the zero value of any field falls back to a sensible default.
type Config struct {
	// Issuer is the server's base URL. It drives the HSTS decision on
	// security headers.
	Issuer string

	// AccessTokenTTL is the lifetime of minted access tokens. The same TTL
	// bounds authorization codes. Defaults to one hour.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the lifetime of refresh tokens. Zero means refresh
	// tokens never expire.
	RefreshTokenTTL time.Duration

	// DisableRefreshTokens suppresses refresh tokens entirely. When false,
	// the authorization-code and password grants issue one alongside each
	// access token. The client-credentials and implicit grants never issue
	// refresh tokens regardless of this setting.
	DisableRefreshTokens bool

	// Scopes enumerates the valid scopes with human-readable descriptions
	// shown on the consent prompt. Defaults to DefaultScopes.
	Scopes map[string]string

	// Realm is the WWW-Authenticate realm. Defaults to DefaultRealm.
	Realm string

	// AuditEnabled turns on security audit logging.
	AuditEnabled bool

	// TrustProxyHeaders enables client IP extraction from X-Forwarded-For
	// and X-Real-IP. Only set this behind a reverse proxy you operate.
	TrustProxyHeaders bool

	// TrustedProxyCount is the number of trusted proxies in front of the
	// server, used to pick the right X-Forwarded-For entry.
	TrustedProxyCount int
}

// withDefaults returns a copy with zero-valued fields filled in.
func (c Config) withDefaults() Config {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	if c.Realm == "" {
		c.Realm = DefaultRealm
	}
	return c
}

// Validate checks the configuration for values that cannot be defaulted
// away.
func (c Config) Validate() error {
	if c.RefreshTokenTTL < 0 {
		return fmt.Errorf("refresh token TTL cannot be negative")
	}
	for scope := range c.Scopes {
		if scope == "" {
			return fmt.Errorf("scope names cannot be empty")
		}
	}
	return nil
}

// ScopeNames returns the configured scope names in sorted order.
func (c Config) ScopeNames() []string {
	names := make([]string, 0, len(c.Scopes))
	for name := range c.Scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScopeAllowed reports whether a single scope is configured.
func (c Config) ScopeAllowed(scope string) bool {
	_, ok := c.Scopes[scope]
	return ok
}
