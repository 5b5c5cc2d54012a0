// Package testutil provides shared helpers for the library's tests.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/authokit/oauthprovider/storage"
)

// HashSecret returns a bcrypt hash of secret at minimum cost. Test clients
// use low-cost hashes to keep the suite fast.
func HashSecret(secret string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("failed to hash secret: %v", err))
	}
	return string(hash)
}

// GenerateRandomString returns a random base64url string of the given
// length.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// NewTestClient returns a confidential authorization-code client with two
// registered redirect URIs.
func NewTestClient() *storage.Client {
	return &storage.Client{
		ClientID:     "test-client-id",
		SecretHash:   HashSecret("secret"),
		ClientType:   storage.ClientConfidential,
		GrantType:    storage.GrantAuthorizationCode,
		RedirectURIs: "http://localhost http://example.com",
		Name:         "Test Application",
		UserID:       "owner-1",
		CreatedAt:    time.Now(),
	}
}

// NewTestAuthorizationCode returns an unexpired code bound to the test
// client.
func NewTestAuthorizationCode() *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:        GenerateRandomString(32),
		ClientID:    "test-client-id",
		UserID:      "test-user-123",
		RedirectURI: "http://localhost",
		Scope:       "read write",
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}
}

// NewTestAccessToken returns an unexpired access token bound to the test
// client.
func NewTestAccessToken() *storage.AccessToken {
	return &storage.AccessToken{
		Token:     GenerateRandomString(32),
		ClientID:  "test-client-id",
		UserID:    "test-user-123",
		Scope:     "read write",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// NewTestRefreshToken returns a never-expiring refresh token paired with
// the given access token.
func NewTestRefreshToken(accessToken string) *storage.RefreshToken {
	return &storage.RefreshToken{
		Token:       GenerateRandomString(32),
		ClientID:    "test-client-id",
		UserID:      "test-user-123",
		AccessToken: accessToken,
		Scope:       "read write",
		CreatedAt:   time.Now(),
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want.
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
