package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/authokit/oauthprovider/storage"
	"github.com/authokit/oauthprovider/users"
)

// Validator is the seam through which host policy and persistence are
// injected into the grant engine. Methods that enforce protocol rules
// return *Error (as error) so the engine can surface the proper OAuth error
// code and status; persistence-layer "not found" conditions are translated
// here and never propagate as raw lookup failures.
type Validator interface {
	// ValidateClient resolves a client by ID.
	ValidateClient(ctx context.Context, clientID string) (*storage.Client, error)

	// AuthenticateClient resolves and authenticates a client.
	// Authentication is required for confidential clients and for any
	// client that presented a secret; public clients may omit it.
	AuthenticateClient(ctx context.Context, clientID, clientSecret string, secretProvided bool) (*storage.Client, error)

	// ResolveRedirectURI validates the requested redirect URI against the
	// client's registered list, falling back to the client's default when
	// the request omits it.
	ResolveRedirectURI(client *storage.Client, requested string) (string, error)

	// ValidateResponseType checks the response_type against the client's
	// configured grant type.
	ValidateResponseType(client *storage.Client, responseType string) error

	// ValidateScopes checks that every requested scope is configured.
	ValidateScopes(requested []string) error

	// DefaultScopes returns the scopes granted when a request names none.
	DefaultScopes() []string

	// AuthenticateUser verifies resource-owner credentials for the password
	// grant.
	AuthenticateUser(ctx context.Context, username, password string) (*users.User, error)

	// SaveAuthorizationCode persists a freshly issued code.
	SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error

	// ConsumeAuthorizationCode atomically redeems a code for the client. A
	// missing, foreign, expired, or already-redeemed code yields
	// invalid_grant.
	ConsumeAuthorizationCode(ctx context.Context, clientID, code string) (*storage.AuthorizationCode, error)

	// SaveBearerToken persists a minted access token and, when non-nil, its
	// paired refresh token.
	SaveBearerToken(ctx context.Context, access *storage.AccessToken, refresh *storage.RefreshToken) error

	// ValidateBearerToken resolves a presented bearer token and applies the
	// scope policy: the token must be unexpired and its granted scopes must
	// cover requiredScopes.
	ValidateBearerToken(ctx context.Context, token string, requiredScopes []string) (*storage.AccessToken, error)

	// ConsumeRefreshToken atomically redeems a refresh token, deleting it
	// and its paired access token. A missing, expired, or already-rotated
	// token yields invalid_grant.
	ConsumeRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error)

	// RevokeToken revokes a token owned by the authenticated client,
	// consulting the hint first and then the other token type. Unknown
	// tokens and tokens owned by other clients are ignored without error.
	RevokeToken(ctx context.Context, clientID, token, hint string) error
}

// DefaultValidator implements Validator over the storage interfaces and a
// user authenticator.
type DefaultValidator struct {
	clients storage.ClientStore
	tokens  storage.TokenStore
	users   users.Authenticator
	config  Config
	logger  *slog.Logger
}

var _ Validator = (*DefaultValidator)(nil)

// NewDefaultValidator creates the stock validator. The users authenticator
// may be nil when the password grant is not used.
func NewDefaultValidator(clients storage.ClientStore, tokens storage.TokenStore, authenticator users.Authenticator, config Config) *DefaultValidator {
	return &DefaultValidator{
		clients: clients,
		tokens:  tokens,
		users:   authenticator,
		config:  config.withDefaults(),
		logger:  slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (v *DefaultValidator) SetLogger(logger *slog.Logger) {
	v.logger = logger
}

// ValidateClient resolves a client by ID.
func (v *DefaultValidator) ValidateClient(ctx context.Context, clientID string) (*storage.Client, error) {
	client, err := v.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, ErrInvalidClient("Client not found")
		}
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}
	return client, nil
}

// AuthenticateClient resolves and authenticates a client.
func (v *DefaultValidator) AuthenticateClient(ctx context.Context, clientID, clientSecret string, secretProvided bool) (*storage.Client, error) {
	if clientID == "" {
		return nil, ErrInvalidClient("Client credentials required")
	}

	client, err := v.ValidateClient(ctx, clientID)
	if err != nil {
		// Burn a secret check anyway so the response time does not reveal
		// whether the client exists.
		_ = v.clients.ValidateClientSecret(ctx, clientID, clientSecret)
		return nil, err
	}

	// Public clients that did not present a secret are exempt; everyone
	// else must pass the check.
	if client.ClientType == storage.ClientPublic && !secretProvided {
		return client, nil
	}

	if err := v.clients.ValidateClientSecret(ctx, clientID, clientSecret); err != nil {
		if errors.Is(err, storage.ErrInvalidClientSecret) || errors.Is(err, storage.ErrClientNotFound) {
			return nil, ErrInvalidClient("Invalid client credentials")
		}
		return nil, fmt.Errorf("client secret validation failed: %w", err)
	}
	return client, nil
}

// ResolveRedirectURI validates or defaults the redirect URI.
func (v *DefaultValidator) ResolveRedirectURI(client *storage.Client, requested string) (string, error) {
	if requested == "" {
		uri := client.DefaultRedirectURI()
		if uri == "" {
			return "", ErrInvalidRequest("Missing redirect URI")
		}
		return uri, nil
	}
	if !client.RedirectURIAllowed(requested) {
		return "", ErrInvalidRequest("Mismatching redirect URI")
	}
	return requested, nil
}

// ValidateResponseType checks response_type against the client's grant type.
func (v *DefaultValidator) ValidateResponseType(client *storage.Client, responseType string) error {
	switch responseType {
	case "":
		return ErrInvalidRequest("Missing response_type parameter")
	case ResponseTypeCode:
		if client.GrantType != storage.GrantAuthorizationCode {
			return ErrUnauthorizedClient("Client is not authorized for the code response type")
		}
	case ResponseTypeToken:
		if client.GrantType != storage.GrantImplicit {
			return ErrUnauthorizedClient("Client is not authorized for the token response type")
		}
	default:
		return NewError(ErrorCodeUnsupportedResponseType, fmt.Sprintf("Unsupported response type: %s", responseType), 400)
	}
	return nil
}

// ValidateScopes checks requested scopes against the configured set.
func (v *DefaultValidator) ValidateScopes(requested []string) error {
	for _, scope := range requested {
		if !v.config.ScopeAllowed(scope) {
			return ErrInvalidScope(fmt.Sprintf("Invalid scope: %s", scope))
		}
	}
	return nil
}

// DefaultScopes returns all configured scopes.
func (v *DefaultValidator) DefaultScopes() []string {
	return v.config.ScopeNames()
}

// AuthenticateUser verifies resource-owner credentials. Bad credentials map
// to invalid_grant with status 400, matching the password grant's error
// contract.
func (v *DefaultValidator) AuthenticateUser(ctx context.Context, username, password string) (*users.User, error) {
	if v.users == nil {
		return nil, ErrUnauthorizedClient("Password grant is not configured")
	}
	user, err := v.users.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			return nil, NewError(ErrorCodeInvalidGrant, "Invalid credentials given", 400)
		}
		return nil, fmt.Errorf("user authentication failed: %w", err)
	}
	return user, nil
}

// SaveAuthorizationCode persists a freshly issued code.
func (v *DefaultValidator) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if err := v.tokens.SaveAuthorizationCode(ctx, code); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	return nil
}

// ConsumeAuthorizationCode atomically redeems a code.
func (v *DefaultValidator) ConsumeAuthorizationCode(ctx context.Context, clientID, code string) (*storage.AuthorizationCode, error) {
	authCode, err := v.tokens.ConsumeAuthorizationCode(ctx, clientID, code)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrCodeNotFound):
			return nil, ErrInvalidGrant("Invalid authorization code")
		case errors.Is(err, storage.ErrTokenExpired):
			return nil, ErrInvalidGrant("Authorization code expired")
		}
		return nil, fmt.Errorf("authorization code redemption failed: %w", err)
	}
	return authCode, nil
}

// SaveBearerToken persists a minted token pair.
func (v *DefaultValidator) SaveBearerToken(ctx context.Context, access *storage.AccessToken, refresh *storage.RefreshToken) error {
	if err := v.tokens.SaveAccessToken(ctx, access); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	if refresh != nil {
		if err := v.tokens.SaveRefreshToken(ctx, refresh); err != nil {
			return fmt.Errorf("failed to save refresh token: %w", err)
		}
	}
	return nil
}

// ValidateBearerToken resolves a bearer token and applies the scope policy.
// Invalid and insufficient tokens both yield 403 at the resource boundary;
// only an absent credential yields 401, and that is the adapter's call.
func (v *DefaultValidator) ValidateBearerToken(ctx context.Context, token string, requiredScopes []string) (*storage.AccessToken, error) {
	if token == "" {
		return nil, ErrInvalidToken("Bearer token required")
	}

	at, err := v.tokens.GetAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, ErrAccessDenied("Invalid bearer token")
		}
		return nil, fmt.Errorf("bearer token lookup failed: %w", err)
	}

	if at.IsExpired() {
		return nil, ErrAccessDenied("Bearer token expired")
	}
	if !at.AllowScopes(requiredScopes) {
		return nil, ErrInsufficientScope("Token lacks required scope")
	}
	return at, nil
}

// ConsumeRefreshToken atomically redeems a refresh token.
func (v *DefaultValidator) ConsumeRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	rt, err := v.tokens.ConsumeRefreshToken(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenNotFound):
			return nil, ErrInvalidGrant("Invalid refresh token")
		case errors.Is(err, storage.ErrTokenExpired):
			return nil, ErrInvalidGrant("Refresh token expired")
		}
		return nil, fmt.Errorf("refresh token redemption failed: %w", err)
	}
	return rt, nil
}

// RevokeToken revokes a token for the authenticated client. Per RFC 7009
// the operation never reveals whether the token existed, so unknown tokens
// and foreign ownership return nil.
func (v *DefaultValidator) RevokeToken(ctx context.Context, clientID, token, hint string) error {
	order := []string{TokenHintAccessToken, TokenHintRefreshToken}
	if hint == TokenHintRefreshToken {
		order = []string{TokenHintRefreshToken, TokenHintAccessToken}
	}

	for _, kind := range order {
		switch kind {
		case TokenHintAccessToken:
			at, err := v.tokens.GetAccessToken(ctx, token)
			if err != nil {
				if errors.Is(err, storage.ErrTokenNotFound) {
					continue
				}
				return fmt.Errorf("revocation lookup failed: %w", err)
			}
			if at.ClientID != clientID {
				return nil
			}
			if err := v.tokens.DeleteAccessToken(ctx, token); err != nil {
				return fmt.Errorf("failed to revoke access token: %w", err)
			}
			return nil
		case TokenHintRefreshToken:
			rt, err := v.tokens.GetRefreshToken(ctx, token)
			if err != nil {
				if errors.Is(err, storage.ErrTokenNotFound) {
					continue
				}
				return fmt.Errorf("revocation lookup failed: %w", err)
			}
			if rt.ClientID != clientID {
				return nil
			}
			// Cascades to the paired access token.
			if err := v.tokens.DeleteRefreshToken(ctx, token); err != nil {
				return fmt.Errorf("failed to revoke refresh token: %w", err)
			}
			return nil
		}
	}
	return nil
}
