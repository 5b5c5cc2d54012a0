// Package memory provides an in-memory implementation of the storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/authokit/oauthprovider/instrumentation"
	"github.com/authokit/oauthprovider/security"
	"github.com/authokit/oauthprovider/storage"
)

// dummySecretHash is a pre-computed bcrypt hash (of "test") compared against
// when a client does not exist, so that secret validation takes the same
// time whether or not the client ID is registered.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Store is an in-memory implementation of storage.ClientStore and
// storage.TokenStore. A background goroutine removes expired entries.
type Store struct {
	mu sync.RWMutex

	clients       map[string]*storage.Client
	authCodes     map[string]*storage.AuthorizationCode // code -> record
	accessTokens  map[string]*storage.AccessToken       // token -> record
	refreshTokens map[string]*storage.RefreshToken      // token -> record

	// (user, client) -> refresh token string; enforces one refresh token
	// per pair
	refreshByPair map[string]string

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for lock-free gauge callbacks
	clientsCount  atomic.Int64
	codesCount    atomic.Int64
	accessCount   atomic.Int64
	refreshCount  atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
)

// New creates an in-memory store with the default cleanup interval of one
// minute.
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates an in-memory store with a custom cleanup interval.
// A zero or negative interval falls back to one minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		authCodes:       make(map[string]*storage.AuthorizationCode),
		accessTokens:    make(map[string]*storage.AccessToken),
		refreshTokens:   make(map[string]*storage.RefreshToken),
		refreshByPair:   make(map[string]string),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}

	s.clientsCount.Store(int64(len(s.clients)))
	s.codesCount.Store(int64(len(s.authCodes)))
	s.accessCount.Store(int64(len(s.accessTokens)))
	s.refreshCount.Store(int64(len(s.refreshTokens)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCount.Load() },
			func() int64 { return s.codesCount.Load() },
			func() int64 { return s.accessCount.Load() },
			func() int64 { return s.refreshCount.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop stops the cleanup goroutine.
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// pairKey builds the index key enforcing one refresh token per
// (user, client) pair.
func pairKey(userID, clientID string) string {
	return userID + "\x00" + clientID
}

// ============================================================
// ClientStore
// ============================================================

// SaveClient creates or updates a registered client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil {
		err = fmt.Errorf("client cannot be nil")
		return err
	}
	if client.ClientID == "" {
		err = fmt.Errorf("client ID cannot be empty")
		return err
	}
	if err = client.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.clients[client.ClientID]
	now := time.Now()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now
	s.clients[client.ClientID] = client

	if !existed {
		s.clientsCount.Add(1)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID, "client_type", client.ClientType)
	return nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}
	return client, nil
}

// ValidateClientSecret validates a client's secret using bcrypt. A bcrypt
// comparison runs on every call, against a dummy hash when the client does
// not exist, so response time does not reveal client existence. Public
// clients authenticate without a secret.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	ctx, span := s.startStorageSpan(ctx, "validate_client_secret")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "validate_client_secret", err, startTime)
	}()

	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	hashToCompare := dummySecretHash
	isPublic := false
	if ok {
		if client.ClientType == storage.ClientPublic {
			isPublic = true
		} else if client.SecretHash != "" {
			hashToCompare = client.SecretHash
		}
	}

	// Always run the comparison, even for unknown or public clients.
	bcryptErr := bcrypt.CompareHashAndPassword([]byte(hashToCompare), []byte(clientSecret))

	if isPublic {
		// Public clients hold no secret, so only an empty presented secret
		// can match.
		if clientSecret != "" {
			err = storage.ErrInvalidClientSecret
			return err
		}
		return nil
	}
	if !ok || bcryptErr != nil {
		err = storage.ErrInvalidClientSecret
		return err
	}
	return nil
}

// DeleteClient removes a client together with its authorization codes and
// tokens.
func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_client", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return err
	}

	delete(s.clients, clientID)
	s.clientsCount.Add(-1)

	for code, authCode := range s.authCodes {
		if authCode.ClientID == clientID {
			delete(s.authCodes, code)
			s.codesCount.Add(-1)
		}
	}
	for token, at := range s.accessTokens {
		if at.ClientID == clientID {
			delete(s.accessTokens, token)
			s.accessCount.Add(-1)
		}
	}
	for token, rt := range s.refreshTokens {
		if rt.ClientID == clientID {
			delete(s.refreshTokens, token)
			delete(s.refreshByPair, pairKey(rt.UserID, rt.ClientID))
			s.refreshCount.Add(-1)
		}
	}

	s.logger.Debug("Deleted client and associated grants", "client_id", clientID)
	return nil
}

// ListClients lists all registered clients.
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "list_clients")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "list_clients", nil, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}
	return clients, nil
}

// ============================================================
// TokenStore
// ============================================================

// SaveAuthorizationCode persists a newly issued authorization code.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_code", err, startTime)
	}()

	if code == nil {
		err = fmt.Errorf("authorization code cannot be nil")
		return err
	}
	if code.Code == "" {
		err = fmt.Errorf("authorization code value cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.authCodes[code.Code]
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}
	s.authCodes[code.Code] = code
	if !existed {
		s.codesCount.Add(1)
	}
	return nil
}

// ConsumeAuthorizationCode atomically looks up, expiry-checks, and deletes
// an authorization code. Under concurrent redemption exactly one caller
// receives the code; the rest get storage.ErrCodeNotFound.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, clientID, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "consume_authorization_code", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	authCode, ok := s.authCodes[code]
	if !ok || authCode.ClientID != clientID {
		err = storage.ErrCodeNotFound
		return nil, err
	}

	// Burn the code regardless of outcome.
	delete(s.authCodes, code)
	s.codesCount.Add(-1)

	if authCode.IsExpired() {
		err = storage.ErrTokenExpired
		return nil, err
	}
	return authCode, nil
}

// SaveAccessToken persists a newly minted access token.
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_access_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_access_token", err, startTime)
	}()

	if token == nil {
		err = fmt.Errorf("access token cannot be nil")
		return err
	}
	if token.Token == "" {
		err = fmt.Errorf("access token value cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.accessTokens[token.Token]
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	s.accessTokens[token.Token] = token
	if !existed {
		s.accessCount.Add(1)
	}
	return nil
}

// GetAccessToken retrieves an access token by its token string.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_access_token", err, startTime)
	}()

	s.mu.RLock()
	at, ok := s.accessTokens[token]
	s.mu.RUnlock()

	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}
	return at, nil
}

// DeleteAccessToken removes an access token. Deleting an unknown token is
// not an error.
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_access_token")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_access_token", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accessTokens[token]; ok {
		delete(s.accessTokens, token)
		s.accessCount.Add(-1)
	}
	return nil
}

// SaveRefreshToken persists a refresh token. Any previous refresh token held
// by the same (user, client) pair is discarded together with its paired
// access token, so at most one refresh token exists per pair.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_refresh_token", err, startTime)
	}()

	if token == nil {
		err = fmt.Errorf("refresh token cannot be nil")
		return err
	}
	if token.Token == "" {
		err = fmt.Errorf("refresh token value cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(token.UserID, token.ClientID)
	if previous, ok := s.refreshByPair[key]; ok && previous != token.Token {
		if old, ok := s.refreshTokens[previous]; ok {
			s.deleteRefreshLocked(old)
			s.logger.Debug("Discarded superseded refresh token",
				"client_id", token.ClientID)
		}
	}

	_, existed := s.refreshTokens[token.Token]
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	s.refreshTokens[token.Token] = token
	s.refreshByPair[key] = token.Token
	if !existed {
		s.refreshCount.Add(1)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token by its token string.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	ctx, span := s.startStorageSpan(ctx, "get_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_refresh_token", err, startTime)
	}()

	s.mu.RLock()
	rt, ok := s.refreshTokens[token]
	s.mu.RUnlock()

	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}
	return rt, nil
}

// ConsumeRefreshToken atomically removes a refresh token and its paired
// access token, returning the refresh token record. Under concurrent
// redemption exactly one caller succeeds; the rest get
// storage.ErrTokenNotFound. This backs rotation's replay protection.
func (s *Store) ConsumeRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "consume_refresh_token", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.refreshTokens[token]
	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}

	s.deleteRefreshLocked(rt)

	if rt.IsExpired() {
		err = storage.ErrTokenExpired
		return nil, err
	}
	return rt, nil
}

// DeleteRefreshToken removes a refresh token and cascades to its paired
// access token. Deleting an unknown token is not an error.
func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_refresh_token")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_refresh_token", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if rt, ok := s.refreshTokens[token]; ok {
		s.deleteRefreshLocked(rt)
	}
	return nil
}

// deleteRefreshLocked removes a refresh token, its pair index entry, and its
// paired access token. Caller holds s.mu.
func (s *Store) deleteRefreshLocked(rt *storage.RefreshToken) {
	delete(s.refreshTokens, rt.Token)
	s.refreshCount.Add(-1)

	key := pairKey(rt.UserID, rt.ClientID)
	if s.refreshByPair[key] == rt.Token {
		delete(s.refreshByPair, key)
	}

	if rt.AccessToken != "" {
		if _, ok := s.accessTokens[rt.AccessToken]; ok {
			delete(s.accessTokens, rt.AccessToken)
			s.accessCount.Add(-1)
		}
	}
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired codes and tokens. Expiry uses the clock-skew
// grace period so entries are never reaped before the handlers would reject
// them.
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0

	for code, authCode := range s.authCodes {
		if security.IsTokenExpired(authCode.ExpiresAt) {
			delete(s.authCodes, code)
			s.codesCount.Add(-1)
			cleaned++
		}
	}

	for token, at := range s.accessTokens {
		if security.IsTokenExpired(at.ExpiresAt) {
			delete(s.accessTokens, token)
			s.accessCount.Add(-1)
			cleaned++
		}
	}

	for token, rt := range s.refreshTokens {
		if !rt.ExpiresAt.IsZero() && security.IsTokenExpired(rt.ExpiresAt) {
			delete(s.refreshTokens, token)
			s.refreshCount.Add(-1)
			key := pairKey(rt.UserID, rt.ClientID)
			if s.refreshByPair[key] == token {
				delete(s.refreshByPair, key)
			}
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
}

// ============================================================
// Instrumentation helpers
// ============================================================

// startStorageSpan starts a span for a storage operation. Returns a no-op
// span when instrumentation is not configured.
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets
// span status.
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else if span != nil {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
