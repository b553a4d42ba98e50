package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/ohmage/oauth2/domain"
)

// MemoryCodeStore implements domain.AuthorizationCodeRepository in
// memory, for tests and single-node development. Records are retained
// well past their protocol expiration (which is a read-time check) and
// only evicted after the retention window.
type MemoryCodeStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *domain.AuthorizationCode]
}

// NewMemoryCodeStore creates a code store whose records are evicted after
// the given retention window.
func NewMemoryCodeStore(retention time.Duration) *MemoryCodeStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.AuthorizationCode](retention),
		ttlcache.WithDisableTouchOnHit[string, *domain.AuthorizationCode](),
	)
	go cache.Start()

	return &MemoryCodeStore{cache: cache}
}

// AddCode implements domain.AuthorizationCodeRepository.
func (s *MemoryCodeStore) AddCode(_ context.Context, code *domain.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Has(code.Code) {
		return domain.ErrDuplicateRecord
	}
	s.cache.Set(code.Code, cloneCode(code), ttlcache.DefaultTTL)
	return nil
}

// GetCode implements domain.AuthorizationCodeRepository.
func (s *MemoryCodeStore) GetCode(_ context.Context, codeValue string) (*domain.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(codeValue)
	if item == nil {
		return nil, domain.ErrCodeNotFound
	}
	return cloneCode(item.Value()), nil
}

// GetCodesByResponder implements domain.AuthorizationCodeRepository.
func (s *MemoryCodeStore) GetCodesByResponder(_ context.Context, userID string) ([]*domain.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var codes []*domain.AuthorizationCode
	for _, item := range s.cache.Items() {
		code := item.Value()
		if code.Response != nil && code.Response.UserID == userID {
			codes = append(codes, cloneCode(code))
		}
	}
	sort.Slice(codes, func(i, j int) bool {
		return codes[i].CreationTimestamp < codes[j].CreationTimestamp
	})
	return codes, nil
}

// ReplaceCode implements the compare-and-set replace: the stored record
// must still match old on its mutable fields.
func (s *MemoryCodeStore) ReplaceCode(_ context.Context, old, updated *domain.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(old.Code)
	if item == nil {
		return domain.ErrCodeNotFound
	}
	stored := item.Value()

	if stored.UsedTimestamp != old.UsedTimestamp || !responsesEqual(stored.Response, old.Response) {
		return domain.ErrStaleRecord
	}

	s.cache.Set(old.Code, cloneCode(updated), ttlcache.DefaultTTL)
	return nil
}

// DeleteExpiredCodes implements domain.AuthorizationCodeRepository.
// ttlcache evicts on the retention window; this forces a sweep.
func (s *MemoryCodeStore) DeleteExpiredCodes(_ context.Context) error {
	s.cache.DeleteExpired()
	return nil
}

// Close stops the eviction goroutine.
func (s *MemoryCodeStore) Close() error {
	s.cache.Stop()
	return nil
}

func responsesEqual(a, b *domain.AuthorizationCodeResponse) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// cloneCode copies a record deeply enough that callers can mutate the
// result without reaching the stored record behind the compare-and-set.
func cloneCode(code *domain.AuthorizationCode) *domain.AuthorizationCode {
	clone := *code
	if code.Response != nil {
		response := *code.Response
		clone.Response = &response
	}
	if code.Scopes != nil {
		clone.Scopes = append([]domain.Scope(nil), code.Scopes...)
	}
	return &clone
}
