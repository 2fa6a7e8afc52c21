package memory

import (
	"context"
	"sync"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
)

var _ service.APIKeyRepository = (*APIKeyStore)(nil)

// APIKeyStore provides in-memory storage for API keys.
type APIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*domain.APIKey
}

// NewAPIKeyStore creates a new API key store.
func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{keys: make(map[string]*domain.APIKey)}
}

// Get retrieves an API key by ID.
func (s *APIKeyStore) Get(_ context.Context, keyID string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[keyID]
	if !ok {
		return nil, domain.ErrAPIKeyNotFound
	}
	return key.Clone(), nil
}

// Create stores a new API key.
func (s *APIKeyStore) Create(_ context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.KeyID]; exists {
		return domain.ErrAPIKeyConflict
	}
	s.keys[key.KeyID] = key.Clone()
	return nil
}

// Update replaces an existing API key.
func (s *APIKeyStore) Update(_ context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.KeyID]; !exists {
		return domain.ErrAPIKeyNotFound
	}
	s.keys[key.KeyID] = key.Clone()
	return nil
}

// List returns all API keys.
func (s *APIKeyStore) List(_ context.Context) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*domain.APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		keys = append(keys, key.Clone())
	}
	return keys, nil
}
