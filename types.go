package oauth

// Wire-level grant_type values accepted at the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypePassword          = "password"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeRefreshToken      = "refresh_token"
)

// Wire-level response_type values accepted at the authorization endpoint.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// TokenTypeBearer is the only token_type this server issues.
const TokenTypeBearer = "Bearer"

// token_type_hint values recognized at the revocation endpoint.
const (
	TokenHintAccessToken  = "access_token"
	TokenHintRefreshToken = "refresh_token"
)

// TokenResponse is the JSON body of a successful token endpoint response
// (RFC 6749 section 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ErrorResponse is the JSON body of a failed token or revocation request
// (RFC 6749 section 5.2).
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// AuthorizationRequest is the normalized form of an authorization endpoint
// request, independent of transport.
type AuthorizationRequest struct {
	ClientID     string
	ResponseType string
	RedirectURI  string // empty falls back to the client's default
	Scope        string // space-separated; empty falls back to all configured scopes
	State        string
}

// AuthorizationPrompt is the consent context returned for a validated
// authorization request: what the host renders to the resource owner, with
// the request fields echoed so the approval form can post them back.
type AuthorizationPrompt struct {
	ClientID          string            `json:"client_id"`
	ClientName        string            `json:"client_name"`
	ResponseType      string            `json:"response_type"`
	RedirectURI       string            `json:"redirect_uri"`
	Scopes            []string          `json:"scopes"`
	ScopeDescriptions map[string]string `json:"scope_descriptions"`
	State             string            `json:"state,omitempty"`
}

// TokenRequest is the normalized form of a token endpoint request. Client
// credentials arrive through the Authorization header or the form body; the
// adapter resolves precedence before the engine sees the request.
type TokenRequest struct {
	GrantType string

	// authorization_code grant
	Code        string
	RedirectURI string

	// password grant
	Username string
	Password string

	// refresh_token grant
	RefreshToken string

	// password, client_credentials, and refresh_token grants
	Scope string

	// Client authentication. SecretProvided distinguishes an empty secret
	// from an absent one: a client that presented credentials must pass
	// authentication even if it is public.
	ClientID       string
	ClientSecret   string
	SecretProvided bool
}

// RevocationRequest is the normalized form of a revocation endpoint request
// (RFC 7009).
type RevocationRequest struct {
	Token         string
	TokenTypeHint string

	ClientID       string
	ClientSecret   string
	SecretProvided bool
}
