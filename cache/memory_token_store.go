package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/ohmage/oauth2/domain"
)

// MemoryTokenStore implements domain.TokenRepository in memory, for tests
// and single-node development. Tokens are keyed by access-token value,
// with secondary indexes for refresh-token and originating-code lookups.
type MemoryTokenStore struct {
	mu        sync.Mutex
	cache     *ttlcache.Cache[string, *domain.AuthorizationToken]
	byRefresh map[string]string   // refresh token -> access token
	byCode    map[string][]string // code value -> access tokens, oldest first
}

// NewMemoryTokenStore creates a token store whose records are evicted
// after the given retention window. Retention must comfortably exceed the
// token TTL; protocol expiration stays a read-time concern of the engine.
func NewMemoryTokenStore(retention time.Duration) *MemoryTokenStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.AuthorizationToken](retention),
		ttlcache.WithDisableTouchOnHit[string, *domain.AuthorizationToken](),
	)
	go cache.Start()

	return &MemoryTokenStore{
		cache:     cache,
		byRefresh: make(map[string]string),
		byCode:    make(map[string][]string),
	}
}

// AddToken implements domain.TokenRepository.
func (s *MemoryTokenStore) AddToken(_ context.Context, token *domain.AuthorizationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Has(token.AccessToken) {
		return domain.ErrDuplicateRecord
	}
	if _, ok := s.byRefresh[token.RefreshToken]; ok {
		return domain.ErrDuplicateRecord
	}

	clone := *token
	s.cache.Set(token.AccessToken, &clone, ttlcache.DefaultTTL)
	s.byRefresh[token.RefreshToken] = token.AccessToken
	if token.AuthorizationCode != "" {
		s.byCode[token.AuthorizationCode] = append(s.byCode[token.AuthorizationCode], token.AccessToken)
	}
	return nil
}

// GetToken implements domain.TokenRepository.
func (s *MemoryTokenStore) GetToken(_ context.Context, accessToken string) (*domain.AuthorizationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(accessToken)
}

// GetTokenByRefreshToken implements domain.TokenRepository.
func (s *MemoryTokenStore) GetTokenByRefreshToken(_ context.Context, refreshToken string) (*domain.AuthorizationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accessToken, ok := s.byRefresh[refreshToken]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return s.get(accessToken)
}

// GetTokenByCode returns the head of the code's token chain: the oldest
// token minted for the code.
func (s *MemoryTokenStore) GetTokenByCode(_ context.Context, codeValue string) (*domain.AuthorizationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, accessToken := range s.byCode[codeValue] {
		token, err := s.get(accessToken)
		if err == nil {
			return token, nil
		}
	}
	return nil, domain.ErrTokenNotFound
}

// ReplaceToken implements the compare-and-set replace: the stored record
// must still match old on its mutable fields (status, next token).
func (s *MemoryTokenStore) ReplaceToken(_ context.Context, old, updated *domain.AuthorizationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(old.AccessToken)
	if item == nil {
		return domain.ErrTokenNotFound
	}
	stored := item.Value()

	if stored.Status != old.Status || stored.NextToken != old.NextToken {
		return domain.ErrStaleRecord
	}

	clone := *updated
	s.cache.Set(old.AccessToken, &clone, ttlcache.DefaultTTL)
	return nil
}

// DeleteExpiredTokens implements domain.TokenRepository.
func (s *MemoryTokenStore) DeleteExpiredTokens(_ context.Context) error {
	s.cache.DeleteExpired()
	return nil
}

// Count reports the number of live records, for tests.
func (s *MemoryTokenStore) Count(_ context.Context) int {
	return s.cache.Len()
}

// Close stops the eviction goroutine.
func (s *MemoryTokenStore) Close() error {
	s.cache.Stop()
	return nil
}

// get assumes s.mu is held.
func (s *MemoryTokenStore) get(accessToken string) (*domain.AuthorizationToken, error) {
	item := s.cache.Get(accessToken)
	if item == nil {
		return nil, domain.ErrTokenNotFound
	}
	clone := *item.Value()
	return &clone, nil
}
