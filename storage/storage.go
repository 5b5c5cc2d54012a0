package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/authokit/oauthprovider/security"
)

// Client types (RFC 6749 section 2.1)
const (
	ClientConfidential = "confidential"
	ClientPublic       = "public"
)

// Grant types a client can be configured for. Each client is bound to
// exactly one flow.
const (
	GrantAuthorizationCode = "authorization-code"
	GrantImplicit          = "implicit"
	GrantPassword          = "password"
	GrantClientCredentials = "client-credentials"
)

// Client represents a registered OAuth application.
//
// RedirectURIs is a whitespace-separated list of absolute URIs, the first of
// which acts as the default. The client secret is stored as a bcrypt hash and
// is empty for public clients.
type Client struct {
	ClientID     string
	SecretHash   string // bcrypt hash, empty for public clients
	ClientType   string // ClientConfidential or ClientPublic
	GrantType    string // one of the Grant* constants
	RedirectURIs string // whitespace-separated absolute URIs
	Name         string
	UserID       string // owning account
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks structural invariants that are enforced at request
// validation time rather than at storage time: redirect-based grants require
// at least one registered redirect URI, and every listed URI must be an
// absolute URL.
func (c *Client) Validate() error {
	if c.RedirectURIs == "" {
		if c.GrantType == GrantAuthorizationCode || c.GrantType == GrantImplicit {
			return fmt.Errorf("redirect URIs required for %s grant", c.GrantType)
		}
		return nil
	}
	return ValidateRedirectURIs(c.RedirectURIs)
}

// DefaultRedirectURI returns the first URI in the registered list, or an
// empty string when none are registered.
func (c *Client) DefaultRedirectURI() string {
	uris := strings.Fields(c.RedirectURIs)
	if len(uris) == 0 {
		return ""
	}
	return uris[0]
}

// RedirectURIAllowed reports whether the given URI is registered for this
// client. Comparison is exact; no prefix or pattern matching.
func (c *Client) RedirectURIAllowed(redirectURI string) bool {
	for _, uri := range strings.Fields(c.RedirectURIs) {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

// ValidateRedirectURIs validates a whitespace-separated URI list. Each entry
// must parse as an absolute URL with a scheme and host.
func ValidateRedirectURIs(value string) error {
	for _, raw := range strings.Fields(value) {
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid redirect URI %q: %w", raw, err)
		}
		if !parsed.IsAbs() || parsed.Host == "" {
			return fmt.Errorf("redirect URI %q is not an absolute URL", raw)
		}
	}
	return nil
}

// AuthorizationCode is the single-use artifact of the authorization-code
// grant. It is bound to the client, the approving user, and the redirect URI
// it was issued for, and carries the scopes the user granted.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	UserID      string
	RedirectURI string
	Scope       string // space-separated granted scopes
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// IsExpired reports whether the code's expiry has passed.
func (c *AuthorizationCode) IsExpired() bool {
	return security.IsTokenExpired(c.ExpiresAt)
}

// AccessToken is a bearer token granting resource access. UserID is empty for
// tokens minted by the client-credentials grant.
type AccessToken struct {
	Token     string
	ClientID  string
	UserID    string
	Scope     string // space-separated granted scopes
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the token's expiry has passed.
func (t *AccessToken) IsExpired() bool {
	return security.IsTokenExpired(t.ExpiresAt)
}

// AllowScopes reports whether the token covers all required scopes. Scope
// strings are treated as whitespace-delimited sets; an empty requirement is
// satisfied by any token.
func (t *AccessToken) AllowScopes(required []string) bool {
	if len(required) == 0 {
		return true
	}
	granted := make(map[string]bool)
	for _, s := range strings.Fields(t.Scope) {
		granted[s] = true
	}
	for _, s := range required {
		if !granted[s] {
			return false
		}
	}
	return true
}

// IsValid reports whether the token is usable for the required scopes:
// not expired and covering every scope in required.
func (t *AccessToken) IsValid(required []string) bool {
	return !t.IsExpired() && t.AllowScopes(required)
}

// RefreshToken is the long-lived handle paired one-to-one with an
// AccessToken. A zero ExpiresAt means the token never expires. Redeeming a
// refresh token rotates the pair; revoking it cascades to the paired access
// token.
type RefreshToken struct {
	Token       string
	ClientID    string
	UserID      string
	AccessToken string    // token string of the paired access token
	Scope       string    // scopes of the original grant, space-separated
	ExpiresAt   time.Time // zero = never expires
	CreatedAt   time.Time
}

// IsExpired reports whether the token's expiry has passed. Tokens without an
// expiry never expire.
func (t *RefreshToken) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return security.IsTokenExpired(t.ExpiresAt)
}

// ClientStore is the client registry. All methods accept context.Context for
// tracing and cancellation.
type ClientStore interface {
	// SaveClient creates or updates a registered client.
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID. Returns ErrClientNotFound when no
	// client is registered under the ID.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret verifies a client's secret against the stored
	// hash. Implementations must take constant time with respect to whether
	// the client exists. Public clients validate with an empty secret.
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error

	// DeleteClient removes a client and cascades to all of its tokens and
	// authorization codes.
	DeleteClient(ctx context.Context, clientID string) error

	// ListClients lists all registered clients.
	ListClients(ctx context.Context) ([]*Client, error)
}

// TokenStore persists authorization codes, access tokens, and refresh
// tokens. The two Consume operations are the concurrency-critical part of
// the contract: each must be atomic per key so that a code cannot be
// redeemed twice and a refresh token cannot be rotated twice.
type TokenStore interface {
	// SaveAuthorizationCode persists a newly issued authorization code.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthorizationCode atomically looks up a code by (client, code),
	// verifies it has not expired, and deletes it. Exactly one concurrent
	// caller can succeed; all others receive ErrCodeNotFound. An expired
	// code yields ErrTokenExpired and is deleted as a side effect.
	ConsumeAuthorizationCode(ctx context.Context, clientID, code string) (*AuthorizationCode, error)

	// SaveAccessToken persists a newly minted access token.
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken retrieves an access token by its token string. Expired
	// tokens are still returned; validity is the caller's decision.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	// DeleteAccessToken removes an access token.
	DeleteAccessToken(ctx context.Context, token string) error

	// SaveRefreshToken persists a refresh token. Implementations must
	// discard any previous refresh token held by the same (user, client)
	// pair so that at most one handle exists per pair.
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken retrieves a refresh token by its token string.
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)

	// ConsumeRefreshToken atomically looks up a refresh token, deletes it
	// together with its paired access token, and returns it. Exactly one
	// concurrent caller can succeed; all others receive ErrTokenNotFound.
	// This is the anti-replay mechanism behind rotation.
	ConsumeRefreshToken(ctx context.Context, token string) (*RefreshToken, error)

	// DeleteRefreshToken removes a refresh token and cascades to its paired
	// access token.
	DeleteRefreshToken(ctx context.Context, token string) error
}
