package cache

import (
	"context"
	"sync"

	"github.com/ohmage/oauth2/domain"
)

// MemoryUserStore implements domain.UserRepository in memory, for tests
// and single-node development.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

// CreateUser implements domain.UserRepository.
func (s *MemoryUserStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[user.ID]; ok {
		return domain.ErrDuplicateRecord
	}
	if _, ok := s.byEmail[user.Email]; ok {
		return domain.ErrDuplicateRecord
	}
	s.byID[user.ID] = *user
	s.byEmail[user.Email] = user.ID
	return nil
}

// GetUserByEmail implements domain.UserRepository.
func (s *MemoryUserStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	user := s.byID[id]
	return &user, nil
}

// GetUserByID implements domain.UserRepository.
func (s *MemoryUserStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}
