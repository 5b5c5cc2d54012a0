package security

// Audit event types. Using constants keeps event names consistent across the
// codebase and searchable in log aggregation.
const (
	// Token lifecycle

	// EventTokenIssued is logged when an access token is issued to a client.
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token is redeemed and the
	// token pair is rotated.
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a token is revoked by its holder.
	EventTokenRevoked = "token_revoked"

	// EventRefreshTokenReuseDetected is logged when an already-consumed
	// refresh token is presented again, which indicates replay or theft.
	EventRefreshTokenReuseDetected = "refresh_token_reuse_detected"

	// Authorization flow

	// EventAuthorizationCodeIssued is logged when an authorization code is
	// issued after user approval.
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationCodeReuseDetected is logged when an authorization
	// code is presented a second time.
	EventAuthorizationCodeReuseDetected = "authorization_code_reuse_detected"

	// EventAuthorizationDenied is logged when the resource owner declines an
	// authorization request.
	EventAuthorizationDenied = "authorization_denied"

	// EventInvalidRedirect is logged when a request carries a redirect URI
	// that is not registered for the client.
	EventInvalidRedirect = "invalid_redirect"

	// Failures

	// EventAuthFailure is logged when client or resource-owner
	// authentication fails.
	EventAuthFailure = "auth_failure"

	// EventScopeRejected is logged when a request asks for scopes outside
	// the server's configured set.
	EventScopeRejected = "scope_rejected"

	// EventInsufficientScope is logged when a valid token is presented to a
	// resource that requires scopes the token does not carry.
	EventInsufficientScope = "insufficient_scope"
)
