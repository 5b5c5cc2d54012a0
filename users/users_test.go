package users

import (
	"context"
	"errors"
	"testing"
)

func TestDirectoryAuthenticate(t *testing.T) {
	d := NewDirectory()
	if err := d.Add("user-1", "alice", "wonderland"); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		user, err := d.Authenticate(ctx, "alice", "wonderland")
		if err != nil {
			t.Fatalf("Authenticate() failed: %v", err)
		}
		if user.ID != "user-1" || user.Username != "alice" {
			t.Errorf("unexpected user %+v", user)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := d.Authenticate(ctx, "alice", "looking-glass")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown username", func(t *testing.T) {
		_, err := d.Authenticate(ctx, "mallory", "wonderland")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("empty password", func(t *testing.T) {
		_, err := d.Authenticate(ctx, "alice", "")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestDirectoryDeactivate(t *testing.T) {
	d := NewDirectory()
	if err := d.Add("user-1", "alice", "wonderland"); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	d.Deactivate("alice")

	// Inactive accounts fail with the same error as wrong credentials.
	_, err := d.Authenticate(context.Background(), "alice", "wonderland")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for inactive user, got %v", err)
	}
}

func TestDirectoryAuthenticateCopies(t *testing.T) {
	d := NewDirectory()
	if err := d.Add("user-1", "alice", "wonderland"); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	user, err := d.Authenticate(context.Background(), "alice", "wonderland")
	if err != nil {
		t.Fatalf("Authenticate() failed: %v", err)
	}

	// Mutating the returned value must not affect the directory.
	user.Active = false

	again, err := d.Authenticate(context.Background(), "alice", "wonderland")
	if err != nil {
		t.Fatalf("second Authenticate() failed: %v", err)
	}
	if !again.Active {
		t.Error("directory entry was mutated through the returned user")
	}
}
