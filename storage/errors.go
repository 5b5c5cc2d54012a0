package storage

import "errors"

// Sentinel errors returned by store implementations. Callers use errors.Is
// to translate these into OAuth protocol errors at the validator boundary;
// they must never surface to an HTTP response as-is.
var (
	// ErrClientNotFound indicates no client is registered under the given ID.
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidClientSecret indicates the presented secret does not match
	// the stored hash (or the client does not exist; the two cases are
	// deliberately indistinguishable).
	ErrInvalidClientSecret = errors.New("invalid client credentials")

	// ErrCodeNotFound indicates the authorization code does not exist for the
	// given client, or was already consumed.
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrTokenNotFound indicates the access or refresh token does not exist,
	// or was already consumed by a concurrent rotation.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired indicates the code or token exists but its expiry has
	// passed.
	ErrTokenExpired = errors.New("token expired")
)
