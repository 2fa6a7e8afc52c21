package badgerstore

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/storage/kv"
)

var _ service.APIKeyRepository = (*APIKeyStore)(nil)

// APIKeyStore persists API keys in the same database as sessions.
type APIKeyStore struct {
	s *Store
}

// APIKeys returns the store's API key repository.
func (s *Store) APIKeys() *APIKeyStore {
	return &APIKeyStore{s: s}
}

// Get retrieves an API key by ID.
func (a *APIKeyStore) Get(ctx context.Context, keyID string) (*domain.APIKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var key *domain.APIKey
	err := a.s.db.View(func(txn *badger.Txn) error {
		b, err := getValue(txn, kv.APIKeyKey(keyID))
		if err != nil {
			return err
		}
		if b == nil {
			return domain.ErrAPIKeyNotFound
		}
		key, err = kv.DecodeAPIKey(b)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return key, nil
}

// Create stores a new API key.
func (a *APIKeyStore) Create(ctx context.Context, key *domain.APIKey) error {
	return a.put(ctx, key, false)
}

// Update replaces an existing API key.
func (a *APIKeyStore) Update(ctx context.Context, key *domain.APIKey) error {
	return a.put(ctx, key, true)
}

func (a *APIKeyStore) put(ctx context.Context, key *domain.APIKey, mustExist bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := kv.EncodeAPIKey(key)
	if err != nil {
		return err
	}
	err = a.s.db.Update(func(txn *badger.Txn) error {
		k := []byte(kv.APIKeyKey(key.KeyID))
		_, err := txn.Get(k)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if mustExist {
				return domain.ErrAPIKeyNotFound
			}
		case err != nil:
			return err
		case !mustExist:
			return domain.ErrAPIKeyConflict
		}
		return txn.Set(k, b)
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrAPIKeyConflict
	}
	if err != nil {
		return storageErr(err)
	}
	return nil
}

// List returns all API keys.
func (a *APIKeyStore) List(ctx context.Context) ([]*domain.APIKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []*domain.APIKey
	err := a.s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(kv.PrefixAPIKey)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			b, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			key, err := kv.DecodeAPIKey(b)
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return keys, nil
}
