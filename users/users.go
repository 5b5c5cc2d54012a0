// Package users defines the resource-owner abstraction used by the password
// grant and a bcrypt-backed in-memory directory for development and tests.
package users

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when the username is unknown, the
// password is wrong, or the account is inactive. Callers must not
// distinguish the three cases to avoid a username oracle.
var ErrInvalidCredentials = errors.New("invalid resource owner credentials")

// dummyPasswordHash keeps authentication constant-time for unknown
// usernames.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// User is an authenticated resource owner.
type User struct {
	ID       string
	Username string
	Active   bool
}

// Authenticator verifies resource-owner credentials for the password grant.
type Authenticator interface {
	// Authenticate returns the user matching the credentials, or
	// ErrInvalidCredentials. Implementations must take constant time with
	// respect to whether the username exists.
	Authenticate(ctx context.Context, username, password string) (*User, error)
}

type directoryEntry struct {
	user         User
	passwordHash string
}

// Directory is an in-memory Authenticator.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]*directoryEntry
}

var _ Authenticator = (*Directory)(nil)

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		entries: make(map[string]*directoryEntry),
	}
}

// Add registers a user with the given password. The password is stored only
// as a bcrypt hash.
func (d *Directory) Add(id, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[username] = &directoryEntry{
		user:         User{ID: id, Username: username, Active: true},
		passwordHash: string(hash),
	}
	return nil
}

// Deactivate marks a user inactive. Inactive users fail authentication with
// the same error as wrong credentials.
func (d *Directory) Deactivate(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.entries[username]; ok {
		entry.user.Active = false
	}
}

// Authenticate verifies the credentials against the directory. Exactly one
// bcrypt comparison runs on every call, against a dummy hash when the
// username is unknown.
func (d *Directory) Authenticate(ctx context.Context, username, password string) (*User, error) {
	d.mu.RLock()
	entry, ok := d.entries[username]
	d.mu.RUnlock()

	hashToCompare := dummyPasswordHash
	if ok {
		hashToCompare = entry.passwordHash
	}

	bcryptErr := bcrypt.CompareHashAndPassword([]byte(hashToCompare), []byte(password))

	if !ok || bcryptErr != nil || !entry.user.Active {
		return nil, ErrInvalidCredentials
	}

	user := entry.user
	return &user, nil
}
