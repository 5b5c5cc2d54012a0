package generate

import (
	"strings"
	"testing"
)

func TestDefaultClientID(t *testing.T) {
	g := Default{}

	id := g.ClientID()
	if len(id) != ClientIDLength {
		t.Errorf("ClientID length = %d, want %d", len(id), ClientIDLength)
	}

	// Client IDs travel in HTTP basic auth, where a colon would split the
	// credential.
	if strings.Contains(id, ":") {
		t.Errorf("ClientID %q contains a colon", id)
	}

	for _, r := range id {
		if !strings.ContainsRune(clientIDCharset, r) {
			t.Errorf("ClientID contains %q outside the charset", r)
		}
	}

	if id == g.ClientID() {
		t.Error("consecutive client IDs should differ")
	}
}

func TestDefaultClientSecret(t *testing.T) {
	g := Default{}

	secret := g.ClientSecret()
	if len(secret) != ClientSecretLength {
		t.Errorf("ClientSecret length = %d, want %d", len(secret), ClientSecretLength)
	}
	if secret == g.ClientSecret() {
		t.Error("consecutive secrets should differ")
	}
}

func TestDefaultToken(t *testing.T) {
	g := Default{}

	token := g.Token()
	if token == "" {
		t.Fatal("empty token")
	}
	if strings.ContainsAny(token, " +/=") {
		t.Errorf("token %q is not URL-safe", token)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := g.Token()
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}
