package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/storage/kv"
)

var _ service.APIKeyRepository = (*APIKeyStore)(nil)

// APIKeyStore persists API keys in Redis. Key IDs are also kept in a set
// so that List does not need to SCAN the keyspace.
type APIKeyStore struct {
	s *Store
}

// APIKeys returns the store's API key repository.
func (s *Store) APIKeys() *APIKeyStore {
	return &APIKeyStore{s: s}
}

func (a *APIKeyStore) indexKey() string {
	return a.s.key("keys")
}

// Get retrieves an API key by ID.
func (a *APIKeyStore) Get(ctx context.Context, keyID string) (*domain.APIKey, error) {
	b, err := a.s.client.Get(ctx, a.s.key(kv.APIKeyKey(keyID))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	key, err := kv.DecodeAPIKey(b)
	if err != nil {
		return nil, storageErr(err)
	}
	return key, nil
}

// Create stores a new API key.
func (a *APIKeyStore) Create(ctx context.Context, key *domain.APIKey) error {
	b, err := kv.EncodeAPIKey(key)
	if err != nil {
		return err
	}
	ok, err := a.s.client.SetNX(ctx, a.s.key(kv.APIKeyKey(key.KeyID)), b, 0).Result()
	if err != nil {
		return storageErr(err)
	}
	if !ok {
		return domain.ErrAPIKeyConflict
	}
	if err := a.s.client.SAdd(ctx, a.indexKey(), key.KeyID).Err(); err != nil {
		return storageErr(err)
	}
	return nil
}

// Update replaces an existing API key.
func (a *APIKeyStore) Update(ctx context.Context, key *domain.APIKey) error {
	b, err := kv.EncodeAPIKey(key)
	if err != nil {
		return err
	}
	ok, err := a.s.client.SetXX(ctx, a.s.key(kv.APIKeyKey(key.KeyID)), b, redis.KeepTTL).Result()
	if err != nil {
		return storageErr(err)
	}
	if !ok {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

// List returns all API keys.
func (a *APIKeyStore) List(ctx context.Context) ([]*domain.APIKey, error) {
	ids, err := a.s.client.SMembers(ctx, a.indexKey()).Result()
	if err != nil {
		return nil, storageErr(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	redisKeys := make([]string, len(ids))
	for i, id := range ids {
		redisKeys[i] = a.s.key(kv.APIKeyKey(id))
	}
	vals, err := a.s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, storageErr(err)
	}

	keys := make([]*domain.APIKey, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		key, err := kv.DecodeAPIKey([]byte(str))
		if err != nil {
			return nil, storageErr(err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
