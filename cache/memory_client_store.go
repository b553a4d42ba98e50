package cache

import (
	"context"
	"sync"

	"github.com/ohmage/oauth2/domain"
)

// MemoryClientStore implements domain.ClientRepository in memory. Client
// registrations are few and long-lived, so a plain map suffices; there is
// no eviction.
type MemoryClientStore struct {
	mu      sync.RWMutex
	clients map[string]domain.OAuthClient
}

// NewMemoryClientStore creates an empty in-memory client registry.
func NewMemoryClientStore() *MemoryClientStore {
	return &MemoryClientStore{clients: make(map[string]domain.OAuthClient)}
}

// CreateClient implements domain.ClientRepository.
func (s *MemoryClientStore) CreateClient(_ context.Context, client *domain.OAuthClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.ID]; ok {
		return domain.ErrDuplicateRecord
	}
	s.clients[client.ID] = *client
	return nil
}

// GetClient implements domain.ClientRepository.
func (s *MemoryClientStore) GetClient(_ context.Context, clientID string) (*domain.OAuthClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	return &client, nil
}

// UpdateClient implements domain.ClientRepository.
func (s *MemoryClientStore) UpdateClient(_ context.Context, client *domain.OAuthClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.ID]; !ok {
		return domain.ErrClientNotFound
	}
	s.clients[client.ID] = *client
	return nil
}

// ListClientIDs implements domain.ClientRepository.
func (s *MemoryClientStore) ListClientIDs(_ context.Context, owner string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, client := range s.clients {
		if client.Owner == owner {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
