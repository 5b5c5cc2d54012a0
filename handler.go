package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/authokit/oauthprovider/security"
	"github.com/authokit/oauthprovider/storage"
)

// Handler is the HTTP adapter in front of the grant engine: it parses
// transport-level requests into normalized request types and serializes
// engine results back.
type Handler struct {
	server *Server
	logger *slog.Logger

	// resolveUser maps an authorization endpoint request to the logged-in
	// resource owner. Authentication itself belongs to the host; until a
	// resolver is installed, consent POSTs are denied.
	resolveUser func(*http.Request) (string, error)
}

// NewHandler creates an HTTP adapter for the given engine.
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// SetUserResolver installs the host's session-to-user mapping used by the
// authorization endpoint.
func (h *Handler) SetUserResolver(fn func(*http.Request) (string, error)) {
	h.resolveUser = fn
}

// RegisterRoutes mounts the three protocol endpoints on the mux, wrapped
// with request ID propagation and HTTP metrics.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/authorize", security.RequestIDMiddleware(h.instrument("/authorize", h.ServeAuthorization)))
	mux.Handle("/token", security.RequestIDMiddleware(h.instrument("/token", h.ServeToken)))
	mux.Handle("/revoke_token", security.RequestIDMiddleware(h.instrument("/revoke_token", h.ServeRevocation)))
}

// ServeAuthorization handles the authorization endpoint. GET validates the
// request and returns the consent prompt context; POST finishes it with the
// resource owner's decision and redirects.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveAuthorizationPrompt(w, r)
	case http.MethodPost:
		h.serveAuthorizationDecision(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) serveAuthorizationPrompt(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &AuthorizationRequest{
		ClientID:     q.Get("client_id"),
		ResponseType: q.Get("response_type"),
		RedirectURI:  q.Get("redirect_uri"),
		Scope:        q.Get("scope"),
		State:        q.Get("state"),
	}

	prompt, err := h.server.ValidateAuthorizationRequest(r.Context(), req)
	if err != nil {
		h.writeAuthorizationError(w, r, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config().Issuer)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(prompt)
}

func (h *Handler) serveAuthorizationDecision(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	req := &AuthorizationRequest{
		ClientID:     r.PostFormValue("client_id"),
		ResponseType: r.PostFormValue("response_type"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		Scope:        r.PostFormValue("scope"),
		State:        r.PostFormValue("state"),
	}
	allowed := r.PostFormValue("allow") == "true"

	if h.resolveUser == nil {
		h.writeError(w, ErrorCodeAccessDenied, "No resource owner session", http.StatusForbidden)
		return
	}
	userID, err := h.resolveUser(r)
	if err != nil || userID == "" {
		h.writeError(w, ErrorCodeAccessDenied, "Resource owner not authenticated", http.StatusForbidden)
		return
	}

	redirectURL, err := h.server.CreateAuthorizationResponse(r.Context(), req, userID, allowed)
	if err != nil {
		h.writeAuthorizationError(w, r, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config().Issuer)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// ServeToken handles the token endpoint.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	clientID, clientSecret, secretProvided := h.clientCredentials(r)
	req := &TokenRequest{
		GrantType:      r.PostFormValue("grant_type"),
		Code:           r.PostFormValue("code"),
		RedirectURI:    r.PostFormValue("redirect_uri"),
		Username:       r.PostFormValue("username"),
		Password:       r.PostFormValue("password"),
		RefreshToken:   r.PostFormValue("refresh_token"),
		Scope:          r.PostFormValue("scope"),
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		SecretProvided: secretProvided,
	}

	resp, err := h.server.CreateTokenResponse(r.Context(), req, h.clientIP(r))
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config().Issuer)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}

// ServeRevocation handles the revocation endpoint (RFC 7009).
func (h *Handler) ServeRevocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	clientID, clientSecret, secretProvided := h.clientCredentials(r)
	req := &RevocationRequest{
		Token:          r.PostFormValue("token"),
		TokenTypeHint:  r.PostFormValue("token_type_hint"),
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		SecretProvided: secretProvided,
	}

	if err := h.server.CreateRevocationResponse(r.Context(), req, h.clientIP(r)); err != nil {
		h.writeOAuthError(w, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config().Issuer)
	w.WriteHeader(http.StatusOK)
}

// ============================================================
// Resource boundary
// ============================================================

type tokenContextKey struct{}

// TokenFromContext returns the access token attached by RequireScopes.
func TokenFromContext(ctx context.Context) (*storage.AccessToken, bool) {
	at, ok := ctx.Value(tokenContextKey{}).(*storage.AccessToken)
	return at, ok
}

// RequireScopes guards a protected resource: the request must carry a valid
// bearer token covering every scope in requiredScopes. A missing credential
// yields 401; an invalid or insufficient token yields 403. The resolved
// token is attached to the request context.
func (h *Handler) RequireScopes(requiredScopes []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := h.extractBearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", h.challenge(requiredScopes))
			h.writeError(w, ErrorCodeInvalidToken, "Bearer token required", http.StatusUnauthorized)
			return
		}

		at, err := h.server.ValidateBearerToken(r.Context(), token, requiredScopes)
		if err != nil {
			oauthErr := asOAuthError(err)
			w.Header().Set("WWW-Authenticate", h.challenge(requiredScopes))
			h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
			return
		}

		ctx := context.WithValue(r.Context(), tokenContextKey{}, at)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken pulls the token out of the Authorization header.
func (h *Handler) extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// challenge builds the WWW-Authenticate value for the resource boundary.
func (h *Handler) challenge(requiredScopes []string) string {
	value := fmt.Sprintf("Bearer realm=%q", h.server.Config().Realm)
	if len(requiredScopes) > 0 {
		value += fmt.Sprintf(", scope=%q", strings.Join(requiredScopes, " "))
	}
	return value
}

// ============================================================
// Helpers
// ============================================================

// clientCredentials resolves client authentication, with the Basic header
// taking precedence over body fields.
func (h *Handler) clientCredentials(r *http.Request) (clientID, clientSecret string, secretProvided bool) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret, true
	}
	clientID = r.PostFormValue("client_id")
	clientSecret = r.PostFormValue("client_secret")
	secretProvided = r.PostForm.Has("client_secret")
	return clientID, clientSecret, secretProvided
}

func (h *Handler) clientIP(r *http.Request) string {
	cfg := h.server.Config()
	return security.GetClientIP(r, cfg.TrustProxyHeaders, cfg.TrustedProxyCount)
}

// writeAuthorizationError surfaces an authorization endpoint failure: fatal
// errors render a JSON error response, recoverable ones redirect back to
// the client with the error appended.
func (h *Handler) writeAuthorizationError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		oauthErr := asOAuthError(err)
		h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
		return
	}

	if authErr.Fatal {
		status := authErr.Err.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadRequest
		}
		h.writeError(w, authErr.Err.Code, authErr.Err.Description, status)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config().Issuer)
	http.Redirect(w, r, authErr.RedirectURL(), http.StatusFound)
}

// writeOAuthError serializes an engine error to the wire.
func (h *Handler) writeOAuthError(w http.ResponseWriter, err error) {
	oauthErr := asOAuthError(err)
	h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
}

func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	security.SetSecurityHeaders(w, h.server.Config().Issuer)

	if status == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Bearer realm=%q", h.server.Config().Realm))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

// instrument wraps a protocol endpoint with HTTP request metrics.
func (h *Handler) instrument(endpoint string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.server.instrumentation == nil {
			next(w, r)
			return
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)

		h.server.instrumentation.Metrics().RecordHTTPRequest(
			r.Context(), r.Method, endpoint, recorder.status,
			float64(time.Since(start).Milliseconds()))
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
