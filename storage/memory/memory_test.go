package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/authokit/oauthprovider/internal/testutil"
	"github.com/authokit/oauthprovider/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	t.Cleanup(s.Stop)
	return s
}

func TestClientRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	client := testutil.NewTestClient()
	testutil.AssertNoError(t, s.SaveClient(ctx, client))

	got, err := s.GetClient(ctx, client.ClientID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.Name, client.Name)

	_, err = s.GetClient(ctx, "unknown")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("expected ErrClientNotFound, got %v", err)
	}
}

func TestValidateClientSecret(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	client := testutil.NewTestClient()
	testutil.AssertNoError(t, s.SaveClient(ctx, client))

	public := testutil.NewTestClient()
	public.ClientID = "public-client-id"
	public.ClientType = storage.ClientPublic
	public.SecretHash = ""
	testutil.AssertNoError(t, s.SaveClient(ctx, public))

	tests := []struct {
		name     string
		clientID string
		secret   string
		wantErr  bool
	}{
		{"correct secret", client.ClientID, "secret", false},
		{"wrong secret", client.ClientID, "wrong", true},
		{"empty secret for confidential client", client.ClientID, "", true},
		{"unknown client", "no-such-client", "secret", true},
		{"public client with empty secret", public.ClientID, "", false},
		{"public client with presented secret", public.ClientID, "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateClientSecret(ctx, tt.clientID, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateClientSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConsumeAuthorizationCodeSingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := testutil.NewTestAuthorizationCode()
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))

	got, err := s.ConsumeAuthorizationCode(ctx, code.ClientID, code.Code)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.Scope, code.Scope)

	if _, err := s.ConsumeAuthorizationCode(ctx, code.ClientID, code.Code); !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("second redemption: expected ErrCodeNotFound, got %v", err)
	}
}

func TestConsumeAuthorizationCodeWrongClient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := testutil.NewTestAuthorizationCode()
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))

	if _, err := s.ConsumeAuthorizationCode(ctx, "other-client", code.Code); !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("expected ErrCodeNotFound for foreign client, got %v", err)
	}

	// The code survives a foreign-client probe.
	if _, err := s.ConsumeAuthorizationCode(ctx, code.ClientID, code.Code); err != nil {
		t.Errorf("owner redemption after foreign probe failed: %v", err)
	}
}

func TestConsumeAuthorizationCodeExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := testutil.NewTestAuthorizationCode()
	code.ExpiresAt = time.Now().Add(-time.Hour)
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))

	if _, err := s.ConsumeAuthorizationCode(ctx, code.ClientID, code.Code); !errors.Is(err, storage.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}

	// Expired codes are deleted on the failed redemption.
	if _, err := s.ConsumeAuthorizationCode(ctx, code.ClientID, code.Code); !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("expected ErrCodeNotFound after expiry burn, got %v", err)
	}
}

func TestConsumeAuthorizationCodeConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := testutil.NewTestAuthorizationCode()
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))

	const workers = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeAuthorizationCode(ctx, code.ClientID, code.Code); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	if got := len(successes); got != 1 {
		t.Errorf("expected exactly 1 successful redemption, got %d", got)
	}
}

func TestConsumeRefreshTokenCascadesAccessToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	access := testutil.NewTestAccessToken()
	testutil.AssertNoError(t, s.SaveAccessToken(ctx, access))
	refresh := testutil.NewTestRefreshToken(access.Token)
	testutil.AssertNoError(t, s.SaveRefreshToken(ctx, refresh))

	got, err := s.ConsumeRefreshToken(ctx, refresh.Token)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.UserID, refresh.UserID)

	if _, err := s.ConsumeRefreshToken(ctx, refresh.Token); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("second redemption: expected ErrTokenNotFound, got %v", err)
	}
	if _, err := s.GetAccessToken(ctx, access.Token); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("paired access token should be gone, got %v", err)
	}
}

func TestConsumeRefreshTokenConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	access := testutil.NewTestAccessToken()
	testutil.AssertNoError(t, s.SaveAccessToken(ctx, access))
	refresh := testutil.NewTestRefreshToken(access.Token)
	testutil.AssertNoError(t, s.SaveRefreshToken(ctx, refresh))

	const workers = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeRefreshToken(ctx, refresh.Token); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	if got := len(successes); got != 1 {
		t.Errorf("expected exactly 1 successful rotation, got %d", got)
	}
}

func TestSaveRefreshTokenDiscardsPreviousPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	oldAccess := testutil.NewTestAccessToken()
	testutil.AssertNoError(t, s.SaveAccessToken(ctx, oldAccess))
	oldRefresh := testutil.NewTestRefreshToken(oldAccess.Token)
	testutil.AssertNoError(t, s.SaveRefreshToken(ctx, oldRefresh))

	newAccess := testutil.NewTestAccessToken()
	testutil.AssertNoError(t, s.SaveAccessToken(ctx, newAccess))
	newRefresh := testutil.NewTestRefreshToken(newAccess.Token)
	testutil.AssertNoError(t, s.SaveRefreshToken(ctx, newRefresh))

	if _, err := s.GetRefreshToken(ctx, oldRefresh.Token); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("superseded refresh token should be gone, got %v", err)
	}
	if _, err := s.GetAccessToken(ctx, oldAccess.Token); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("superseded access token should be gone, got %v", err)
	}
	if _, err := s.GetRefreshToken(ctx, newRefresh.Token); err != nil {
		t.Errorf("new refresh token should exist: %v", err)
	}
}

func TestDeleteRefreshTokenCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	access := testutil.NewTestAccessToken()
	testutil.AssertNoError(t, s.SaveAccessToken(ctx, access))
	refresh := testutil.NewTestRefreshToken(access.Token)
	testutil.AssertNoError(t, s.SaveRefreshToken(ctx, refresh))

	testutil.AssertNoError(t, s.DeleteRefreshToken(ctx, refresh.Token))

	if _, err := s.GetAccessToken(ctx, access.Token); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("paired access token should be gone after refresh revocation, got %v", err)
	}
}

func TestDeleteClientCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	client := testutil.NewTestClient()
	testutil.AssertNoError(t, s.SaveClient(ctx, client))

	code := testutil.NewTestAuthorizationCode()
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))
	access := testutil.NewTestAccessToken()
	testutil.AssertNoError(t, s.SaveAccessToken(ctx, access))
	refresh := testutil.NewTestRefreshToken(access.Token)
	testutil.AssertNoError(t, s.SaveRefreshToken(ctx, refresh))

	testutil.AssertNoError(t, s.DeleteClient(ctx, client.ClientID))

	if _, err := s.ConsumeAuthorizationCode(ctx, client.ClientID, code.Code); !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("code should be gone after client deletion, got %v", err)
	}
	if _, err := s.GetAccessToken(ctx, access.Token); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("access token should be gone after client deletion, got %v", err)
	}
	if _, err := s.GetRefreshToken(ctx, refresh.Token); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("refresh token should be gone after client deletion, got %v", err)
	}
}

func TestCleanupRemovesExpiredEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Well past the clock-skew grace period.
	past := time.Now().Add(-time.Hour)

	code := testutil.NewTestAuthorizationCode()
	code.ExpiresAt = past
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))

	access := testutil.NewTestAccessToken()
	access.ExpiresAt = past
	testutil.AssertNoError(t, s.SaveAccessToken(ctx, access))

	keeper := testutil.NewTestAccessToken()
	testutil.AssertNoError(t, s.SaveAccessToken(ctx, keeper))

	s.cleanup()

	if _, err := s.GetAccessToken(ctx, access.Token); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("expired access token should be swept, got %v", err)
	}
	if _, err := s.GetAccessToken(ctx, keeper.Token); err != nil {
		t.Errorf("live access token should survive cleanup: %v", err)
	}
	if _, err := s.ConsumeAuthorizationCode(ctx, code.ClientID, code.Code); !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("expired code should be swept, got %v", err)
	}
}
