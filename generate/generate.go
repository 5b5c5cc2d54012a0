// Package generate produces the opaque credential strings handed out by the
// authorization server: client IDs, client secrets, authorization codes, and
// tokens.
package generate

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/oauth2"
)

const (
	// ClientIDLength is the length of generated client identifiers.
	ClientIDLength = 64

	// ClientSecretLength is the length of generated client secrets.
	ClientSecretLength = 128

	// clientIDCharset deliberately omits ':' so generated IDs survive HTTP
	// basic auth, where the colon separates username and password.
	clientIDCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

	secretCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Generator produces credential strings. Implementations must draw from a
// cryptographically secure source.
type Generator interface {
	// ClientID returns a new client identifier.
	ClientID() string

	// ClientSecret returns a new client secret (the plaintext handed to the
	// client once; only its hash is stored).
	ClientSecret() string

	// Token returns a new opaque token string, used for access tokens,
	// refresh tokens, and authorization codes alike.
	Token() string
}

// Default is the stock generator. Tokens use the same URL-safe high-entropy
// construction as PKCE verifiers.
type Default struct{}

var _ Generator = Default{}

// ClientID returns a 64-character identifier safe for use in basic auth.
func (Default) ClientID() string {
	return randomString(ClientIDLength, clientIDCharset)
}

// ClientSecret returns a 128-character secret.
func (Default) ClientSecret() string {
	return randomString(ClientSecretLength, secretCharset)
}

// Token returns a 43-character URL-safe token with 256 bits of entropy.
func (Default) Token() string {
	return oauth2.GenerateVerifier()
}

// randomString draws length characters uniformly from charset. It panics
// only if the system RNG fails, which is unrecoverable.
func randomString(length int, charset string) string {
	b := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}
