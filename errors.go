package oauth

import (
	"fmt"
	"net/http"
	"net/url"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeInsufficientScope       = "insufficient_scope"
	ErrorCodeServerError             = "server_error"
)

// Error represents an OAuth 2.0 error response carried as JSON with an HTTP
// status.
type Error struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates an OAuth error with an explicit status.
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common OAuth errors as reusable constructors
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *Error {
		return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *Error {
		return NewError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	}

	// ErrInvalidGrant indicates the authorization code or refresh token is invalid,
	// expired, or bound to a different client
	ErrInvalidGrant = func(desc string) *Error {
		return NewError(ErrorCodeInvalidGrant, desc, http.StatusUnauthorized)
	}

	// ErrInvalidScope indicates the requested scope is outside the configured set
	ErrInvalidScope = func(desc string) *Error {
		return NewError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
	}

	// ErrInvalidToken indicates the bearer token is missing, invalid, or expired
	ErrInvalidToken = func(desc string) *Error {
		return NewError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
	}

	// ErrUnauthorizedClient indicates the client is not allowed the requested grant type
	ErrUnauthorizedClient = func(desc string) *Error {
		return NewError(ErrorCodeUnauthorizedClient, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedGrantType indicates the grant type is not one of the four flows
	ErrUnsupportedGrantType = func(desc string) *Error {
		return NewError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
	}

	// ErrAccessDenied indicates the resource owner or server denied the request
	ErrAccessDenied = func(desc string) *Error {
		return NewError(ErrorCodeAccessDenied, desc, http.StatusForbidden)
	}

	// ErrInsufficientScope indicates a valid token lacks a required scope
	ErrInsufficientScope = func(desc string) *Error {
		return NewError(ErrorCodeInsufficientScope, desc, http.StatusForbidden)
	}

	// ErrServerError indicates an internal failure
	ErrServerError = func(desc string) *Error {
		return NewError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}
)

// AuthorizationError is an error arising at the authorization endpoint. Two
// categories exist: fatal errors, where the client or redirect URI itself
// cannot be trusted and the user-agent must never be redirected, and
// recoverable errors, which are carried back to the client appended to its
// redirect URI.
type AuthorizationError struct {
	Err *Error

	// RedirectURI is the verified URI to carry recoverable errors back to.
	// Empty for fatal errors.
	RedirectURI string

	// State is echoed back on the redirect when the request carried one.
	State string

	// UseFragment selects fragment encoding (implicit grant) over query
	// encoding (code grant) for the redirect parameters.
	UseFragment bool

	// Fatal marks errors that must render an error response instead of
	// redirecting.
	Fatal bool
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying OAuth error.
func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// RedirectURL builds the redirect carrying the error back to the client.
// Only meaningful for recoverable errors.
func (e *AuthorizationError) RedirectURL() string {
	params := url.Values{}
	params.Set("error", e.Err.Code)
	if e.Err.Description != "" {
		params.Set("error_description", e.Err.Description)
	}
	if e.State != "" {
		params.Set("state", e.State)
	}
	return appendParams(e.RedirectURI, params, e.UseFragment)
}

// NewFatalAuthorizationError wraps an OAuth error that must not redirect.
func NewFatalAuthorizationError(err *Error) *AuthorizationError {
	return &AuthorizationError{Err: err, Fatal: true}
}

// NewRedirectAuthorizationError wraps an OAuth error carried back on the
// client's verified redirect URI.
func NewRedirectAuthorizationError(err *Error, redirectURI, state string, useFragment bool) *AuthorizationError {
	return &AuthorizationError{
		Err:         err,
		RedirectURI: redirectURI,
		State:       state,
		UseFragment: useFragment,
	}
}

// appendParams attaches params to a base URL as query string or fragment.
func appendParams(baseURL string, params url.Values, fragment bool) string {
	if fragment {
		return baseURL + "#" + params.Encode()
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return baseURL + "?" + params.Encode()
	}
	q := parsed.Query()
	for key, values := range params {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
