package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/authokit/oauthprovider/generate"
	"github.com/authokit/oauthprovider/instrumentation"
	"github.com/authokit/oauthprovider/internal/util"
	"github.com/authokit/oauthprovider/security"
	"github.com/authokit/oauthprovider/storage"
)

// Server is the grant engine: it orchestrates the four grant flows and
// revocation over the Validator contract. The engine itself is stateless and
// request-scoped; all durable state lives behind the validator's stores.
type Server struct {
	config    Config
	validator Validator
	generator generate.Generator
	logger    *slog.Logger
	auditor   *security.Auditor

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// NewServer creates a grant engine with the given configuration and
// validator.
func NewServer(config Config, validator Validator) (*Server, error) {
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config = config.withDefaults()
	logger := slog.Default()

	return &Server{
		config:    config,
		validator: validator,
		generator: generate.Default{},
		logger:    logger,
		auditor:   security.NewAuditor(logger, config.AuditEnabled),
	}, nil
}

// SetLogger sets a custom logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
	s.auditor = security.NewAuditor(logger, s.config.AuditEnabled)
}

// SetGenerator replaces the credential generator.
func (s *Server) SetGenerator(g generate.Generator) {
	if g != nil {
		s.generator = g
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the engine.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// Config returns the server's effective configuration.
func (s *Server) Config() Config {
	return s.config
}

// Validator returns the injected validator, for hosts that need direct
// access to bearer-token validation.
func (s *Server) Validator() Validator {
	return s.validator
}

// ============================================================
// Authorization endpoint
// ============================================================

// ValidateAuthorizationRequest validates an authorization request and
// returns the consent prompt context for the host to render.
//
// Only client, redirect URI, and response type problems surface here; scope
// checking is deferred to CreateAuthorizationResponse. Failures return
// *AuthorizationError, fatal when the client or redirect URI cannot be
// trusted.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*AuthorizationPrompt, error) {
	ctx, span := s.startSpan(ctx, "validate_authorization_request")
	defer span.End()

	client, redirectURI, _, err := s.resolveAuthorization(ctx, req)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	scopes := util.SplitScope(req.Scope)
	if len(scopes) == 0 {
		scopes = s.validator.DefaultScopes()
	}

	descriptions := make(map[string]string, len(scopes))
	for _, scope := range scopes {
		descriptions[scope] = s.config.Scopes[scope]
	}

	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordAuthorizationRequest(ctx, client.ClientID, req.ResponseType)
	}
	instrumentation.SetSpanSuccess(span)

	return &AuthorizationPrompt{
		ClientID:          client.ClientID,
		ClientName:        client.Name,
		ResponseType:      req.ResponseType,
		RedirectURI:       redirectURI,
		Scopes:            scopes,
		ScopeDescriptions: descriptions,
		State:             req.State,
	}, nil
}

// CreateAuthorizationResponse finishes an authorization request once the
// resource owner has decided. On approval it returns the redirect URL
// carrying a code (code grant) or a token fragment (implicit grant); on
// denial or scope failure it returns an *AuthorizationError whose redirect
// carries the error back to the client.
func (s *Server) CreateAuthorizationResponse(ctx context.Context, req *AuthorizationRequest, userID string, allowed bool) (string, error) {
	ctx, span := s.startSpan(ctx, "create_authorization_response")
	defer span.End()

	client, redirectURI, useFragment, err := s.resolveAuthorization(ctx, req)
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", err
	}

	if !allowed {
		s.auditor.LogEvent(security.Event{
			Type:     security.EventAuthorizationDenied,
			UserID:   userID,
			ClientID: client.ClientID,
		})
		err = NewRedirectAuthorizationError(
			NewError(ErrorCodeAccessDenied, "The resource owner denied the request", 403),
			redirectURI, req.State, useFragment)
		instrumentation.RecordError(span, err)
		return "", err
	}

	// Scope errors are deliberately surfaced here rather than during
	// request validation, after the redirect URI has been verified, so they
	// can be carried back to the client.
	scopes := util.SplitScope(req.Scope)
	if len(scopes) == 0 {
		scopes = s.validator.DefaultScopes()
	}
	if scopeErr := s.validator.ValidateScopes(scopes); scopeErr != nil {
		oauthErr := asOAuthError(scopeErr)
		err = NewRedirectAuthorizationError(oauthErr, redirectURI, req.State, useFragment)
		instrumentation.RecordError(span, err)
		return "", err
	}
	grantedScope := util.JoinScope(scopes)

	switch req.ResponseType {
	case ResponseTypeCode:
		code := &storage.AuthorizationCode{
			Code:        s.generator.Token(),
			ClientID:    client.ClientID,
			UserID:      userID,
			RedirectURI: redirectURI,
			Scope:       grantedScope,
			ExpiresAt:   time.Now().Add(s.config.AccessTokenTTL),
		}
		if err := s.validator.SaveAuthorizationCode(ctx, code); err != nil {
			s.logger.Error("Failed to save authorization code", "error", err, "client_id", client.ClientID)
			instrumentation.RecordError(span, err)
			return "", NewFatalAuthorizationError(ErrServerError("Failed to issue authorization code"))
		}

		s.auditor.LogCodeIssued(userID, client.ClientID, "", grantedScope)
		instrumentation.SetSpanSuccess(span)

		params := url.Values{}
		params.Set("code", code.Code)
		if req.State != "" {
			params.Set("state", req.State)
		}
		return appendParams(redirectURI, params, false), nil

	case ResponseTypeToken:
		// Implicit grant: the token rides the fragment and no refresh token
		// is ever issued.
		resp, err := s.mintTokens(ctx, client, userID, grantedScope, false)
		if err != nil {
			instrumentation.RecordError(span, err)
			return "", NewFatalAuthorizationError(asOAuthError(err))
		}

		s.auditor.LogTokenIssued(userID, client.ClientID, "", "implicit", grantedScope)
		instrumentation.SetSpanSuccess(span)

		params := url.Values{}
		params.Set("access_token", resp.AccessToken)
		params.Set("token_type", resp.TokenType)
		params.Set("expires_in", strconv.FormatInt(resp.ExpiresIn, 10))
		params.Set("scope", resp.Scope)
		if req.State != "" {
			params.Set("state", req.State)
		}
		return appendParams(redirectURI, params, true), nil
	}

	// resolveAuthorization already rejected anything else.
	return "", NewFatalAuthorizationError(ErrServerError("Unreachable response type"))
}

// resolveAuthorization runs the fatal-capable half of authorization request
// validation: client resolution, redirect URI resolution, and response type
// legality.
func (s *Server) resolveAuthorization(ctx context.Context, req *AuthorizationRequest) (*storage.Client, string, bool, error) {
	if req.ClientID == "" {
		return nil, "", false, NewFatalAuthorizationError(ErrInvalidRequest("Missing client_id parameter"))
	}

	client, err := s.validator.ValidateClient(ctx, req.ClientID)
	if err != nil {
		return nil, "", false, NewFatalAuthorizationError(asOAuthError(err))
	}

	redirectURI, err := s.validator.ResolveRedirectURI(client, req.RedirectURI)
	if err != nil {
		return nil, "", false, NewFatalAuthorizationError(asOAuthError(err))
	}

	useFragment := req.ResponseType == ResponseTypeToken

	if err := s.validator.ValidateResponseType(client, req.ResponseType); err != nil {
		// The redirect URI is verified at this point, so response type
		// errors are carried back to the client.
		return nil, "", false, NewRedirectAuthorizationError(asOAuthError(err), redirectURI, req.State, useFragment)
	}

	return client, redirectURI, useFragment, nil
}

// ============================================================
// Token endpoint
// ============================================================

// CreateTokenResponse processes a token endpoint request, dispatching on
// grant_type. Failures return *Error with the OAuth code and HTTP status to
// surface.
func (s *Server) CreateTokenResponse(ctx context.Context, req *TokenRequest, clientIP string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "create_token_response",
		attribute.String(instrumentation.AttrGrantType, req.GrantType))
	defer span.End()

	client, err := s.validator.AuthenticateClient(ctx, req.ClientID, req.ClientSecret, req.SecretProvided)
	if err != nil {
		s.auditor.LogAuthFailure("", req.ClientID, clientIP, "client authentication failed")
		s.recordAuthFailure(ctx, "invalid_client")
		instrumentation.RecordError(span, err)
		return nil, asOAuthError(err)
	}

	var resp *TokenResponse
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		resp, err = s.handleAuthorizationCodeGrant(ctx, client, req, clientIP)
	case GrantTypePassword:
		resp, err = s.handlePasswordGrant(ctx, client, req, clientIP)
	case GrantTypeClientCredentials:
		resp, err = s.handleClientCredentialsGrant(ctx, client, req, clientIP)
	case GrantTypeRefreshToken:
		resp, err = s.handleRefreshTokenGrant(ctx, client, req, clientIP)
	default:
		err = ErrUnsupportedGrantType(fmt.Sprintf("Unsupported grant type: %s", req.GrantType))
	}

	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, asOAuthError(err)
	}

	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordTokenIssued(ctx, client.ClientID, req.GrantType)
	}
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

func (s *Server) handleAuthorizationCodeGrant(ctx context.Context, client *storage.Client, req *TokenRequest, clientIP string) (*TokenResponse, error) {
	if client.GrantType != storage.GrantAuthorizationCode {
		return nil, ErrUnauthorizedClient("Client is not authorized for the authorization_code grant")
	}
	if req.Code == "" {
		return nil, ErrInvalidRequest("Missing code parameter")
	}

	code, err := s.validator.ConsumeAuthorizationCode(ctx, client.ClientID, req.Code)
	if err != nil {
		s.auditor.LogCodeReuse(client.ClientID, clientIP)
		if s.instrumentation != nil {
			s.instrumentation.Metrics().RecordCodeReuseDetected(ctx)
		}
		return nil, err
	}

	// The code is burned above even when the redirect URI mismatches; a
	// request that fails here cannot retry with the same code.
	if code.RedirectURI != req.RedirectURI {
		s.auditor.LogAuthFailure(code.UserID, client.ClientID, clientIP, "redirect URI mismatch at code redemption")
		return nil, ErrInvalidGrant("Mismatching redirect URI")
	}

	resp, err := s.mintTokens(ctx, client, code.UserID, code.Scope, true)
	if err != nil {
		return nil, err
	}

	s.auditor.LogTokenIssued(code.UserID, client.ClientID, clientIP, GrantTypeAuthorizationCode, code.Scope)
	return resp, nil
}

func (s *Server) handlePasswordGrant(ctx context.Context, client *storage.Client, req *TokenRequest, clientIP string) (*TokenResponse, error) {
	if client.GrantType != storage.GrantPassword {
		return nil, ErrUnauthorizedClient("Client is not authorized for the password grant")
	}
	if req.Username == "" || req.Password == "" {
		return nil, ErrInvalidRequest("Missing username or password parameter")
	}

	user, err := s.validator.AuthenticateUser(ctx, req.Username, req.Password)
	if err != nil {
		s.auditor.LogAuthFailure("", client.ClientID, clientIP, "resource owner authentication failed")
		s.recordAuthFailure(ctx, "invalid_user_credentials")
		return nil, err
	}

	scopes := util.SplitScope(req.Scope)
	if len(scopes) == 0 {
		scopes = s.validator.DefaultScopes()
	}
	if err := s.validator.ValidateScopes(scopes); err != nil {
		// The password grant reports scope failures as 401.
		oauthErr := asOAuthError(err)
		if oauthErr.Code == ErrorCodeInvalidScope {
			oauthErr = NewError(ErrorCodeInvalidScope, oauthErr.Description, 401)
		}
		return nil, oauthErr
	}
	grantedScope := util.JoinScope(scopes)

	resp, err := s.mintTokens(ctx, client, user.ID, grantedScope, true)
	if err != nil {
		return nil, err
	}

	s.auditor.LogTokenIssued(user.ID, client.ClientID, clientIP, GrantTypePassword, grantedScope)
	return resp, nil
}

func (s *Server) handleClientCredentialsGrant(ctx context.Context, client *storage.Client, req *TokenRequest, clientIP string) (*TokenResponse, error) {
	if client.GrantType != storage.GrantClientCredentials {
		return nil, ErrUnauthorizedClient("Client is not authorized for the client_credentials grant")
	}

	scopes := util.SplitScope(req.Scope)
	if len(scopes) == 0 {
		scopes = s.validator.DefaultScopes()
	}
	if err := s.validator.ValidateScopes(scopes); err != nil {
		return nil, err
	}
	grantedScope := util.JoinScope(scopes)

	// No user attaches to the token and no refresh token is issued; the
	// client can simply request a new token with its credentials.
	resp, err := s.mintTokens(ctx, client, "", grantedScope, false)
	if err != nil {
		return nil, err
	}

	s.auditor.LogTokenIssued("", client.ClientID, clientIP, GrantTypeClientCredentials, grantedScope)
	return resp, nil
}

func (s *Server) handleRefreshTokenGrant(ctx context.Context, client *storage.Client, req *TokenRequest, clientIP string) (*TokenResponse, error) {
	if client.GrantType != storage.GrantAuthorizationCode && client.GrantType != storage.GrantPassword {
		return nil, ErrUnauthorizedClient("Client is not authorized for the refresh_token grant")
	}
	if req.RefreshToken == "" {
		return nil, ErrInvalidRequest("Missing refresh_token parameter")
	}

	// Consumption deletes the old pair; a replay of the same token lands
	// here again and fails invalid_grant. That, not validation, is the
	// anti-replay mechanism.
	rt, err := s.validator.ConsumeRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		s.auditor.LogRefreshReuse(client.ClientID, clientIP)
		if s.instrumentation != nil {
			s.instrumentation.Metrics().RecordTokenReuseDetected(ctx)
		}
		return nil, err
	}

	if rt.ClientID != client.ClientID {
		s.auditor.LogAuthFailure(rt.UserID, client.ClientID, clientIP, "refresh token presented by foreign client")
		return nil, ErrInvalidGrant("Invalid refresh token")
	}

	// Requested scopes may narrow but never widen the original grant.
	grantedScope := rt.Scope
	if req.Scope != "" {
		requested := util.SplitScope(req.Scope)
		if !util.ScopeSubset(requested, util.SplitScope(rt.Scope)) {
			return nil, ErrInvalidGrant("Requested scope exceeds the original grant")
		}
		grantedScope = util.JoinScope(requested)
	}

	resp, err := s.mintTokens(ctx, client, rt.UserID, grantedScope, true)
	if err != nil {
		return nil, err
	}

	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordTokenRefresh(ctx, client.ClientID)
	}
	s.auditor.LogTokenRefreshed(rt.UserID, client.ClientID, clientIP)
	return resp, nil
}

// mintTokens creates an access token, optionally with a paired refresh
// token, persists the pair, and builds the wire response.
func (s *Server) mintTokens(ctx context.Context, client *storage.Client, userID, scope string, withRefresh bool) (*TokenResponse, error) {
	now := time.Now()
	access := &storage.AccessToken{
		Token:     s.generator.Token(),
		ClientID:  client.ClientID,
		UserID:    userID,
		Scope:     scope,
		ExpiresAt: now.Add(s.config.AccessTokenTTL),
		CreatedAt: now,
	}

	var refresh *storage.RefreshToken
	if withRefresh && !s.config.DisableRefreshTokens {
		refresh = &storage.RefreshToken{
			Token:       s.generator.Token(),
			ClientID:    client.ClientID,
			UserID:      userID,
			AccessToken: access.Token,
			Scope:       scope,
			CreatedAt:   now,
		}
		if s.config.RefreshTokenTTL > 0 {
			refresh.ExpiresAt = now.Add(s.config.RefreshTokenTTL)
		}
	}

	if err := s.validator.SaveBearerToken(ctx, access, refresh); err != nil {
		s.logger.Error("Failed to persist bearer token", "error", err,
			"client_id", client.ClientID,
			"token_prefix", util.SafeTruncate(access.Token, 8))
		return nil, ErrServerError("Failed to persist token")
	}

	resp := &TokenResponse{
		AccessToken: access.Token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(s.config.AccessTokenTTL.Seconds()),
		Scope:       scope,
	}
	if refresh != nil {
		resp.RefreshToken = refresh.Token
	}
	return resp, nil
}

// ============================================================
// Revocation endpoint
// ============================================================

// CreateRevocationResponse processes an RFC 7009 revocation request. A nil
// return means 200: success and "token did not exist" must stay
// indistinguishable to the caller. Only authentication and
// malformed-request failures return an error.
func (s *Server) CreateRevocationResponse(ctx context.Context, req *RevocationRequest, clientIP string) error {
	ctx, span := s.startSpan(ctx, "create_revocation_response")
	defer span.End()

	client, err := s.validator.AuthenticateClient(ctx, req.ClientID, req.ClientSecret, req.SecretProvided)
	if err != nil {
		s.auditor.LogAuthFailure("", req.ClientID, clientIP, "client authentication failed at revocation")
		s.recordAuthFailure(ctx, "invalid_client")
		instrumentation.RecordError(span, err)
		return asOAuthError(err)
	}

	if req.Token == "" {
		err = ErrInvalidRequest("Missing token parameter")
		instrumentation.RecordError(span, err)
		return err
	}

	hint := req.TokenTypeHint
	if hint != TokenHintAccessToken && hint != TokenHintRefreshToken {
		// Unrecognized hints are ignored per RFC 7009 section 2.1.
		hint = ""
	}

	if err := s.validator.RevokeToken(ctx, client.ClientID, req.Token, hint); err != nil {
		s.logger.Error("Revocation failed", "error", err, "client_id", client.ClientID)
		instrumentation.RecordError(span, err)
		return ErrServerError("Revocation failed")
	}

	if s.instrumentation != nil {
		tokenType := hint
		if tokenType == "" {
			tokenType = "unknown"
		}
		s.instrumentation.Metrics().RecordTokenRevocation(ctx, client.ClientID, tokenType)
	}
	s.auditor.LogTokenRevoked("", client.ClientID, clientIP, hint)
	instrumentation.SetSpanSuccess(span)
	return nil
}

// ============================================================
// Resource boundary
// ============================================================

// ValidateBearerToken resolves a bearer token presented at a protected
// resource and applies the scope policy. An empty requiredScopes means any
// valid token suffices.
func (s *Server) ValidateBearerToken(ctx context.Context, token string, requiredScopes []string) (*storage.AccessToken, error) {
	ctx, span := s.startSpan(ctx, "validate_bearer_token")
	defer span.End()

	at, err := s.validator.ValidateBearerToken(ctx, token, requiredScopes)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, asOAuthError(err)
	}

	instrumentation.AddGrantAttributes(span, at.ClientID, at.UserID, at.Scope)
	instrumentation.SetSpanSuccess(span)
	return at, nil
}

// ============================================================
// Helpers
// ============================================================

// startSpan starts an engine span, or returns the ambient span when
// instrumentation is not configured.
func (s *Server) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, "oauth.server."+operation, trace.WithAttributes(attrs...))
}

func (s *Server) recordAuthFailure(ctx context.Context, reason string) {
	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordAuthFailure(ctx, reason)
	}
}

// asOAuthError coerces an error into *Error, mapping anything unexpected to
// server_error so internal failures never leak.
func asOAuthError(err error) *Error {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return ErrServerError("Internal server error")
}
