package badgerstore

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/storage/kv"
)

var _ service.SessionRepository = (*Store)(nil)

// GetSession returns the session for key, NotStarted if none is stored.
func (s *Store) GetSession(ctx context.Context, key domain.SessionKey) (*domain.AttendanceSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var session *domain.AttendanceSession
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		session, err = readSession(txn, key)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return session, nil
}

// LastFix returns the employee's last accepted fix, nil if none.
func (s *Store) LastFix(ctx context.Context, tenantID, employeeID string) (*domain.LocationFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var fix *domain.LocationFix
	err := s.db.View(func(txn *badger.Txn) error {
		b, err := getValue(txn, kv.FixKey(tenantID, employeeID))
		if err != nil || b == nil {
			return err
		}
		fix, err = kv.DecodeFix(b)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return fix, nil
}

// GetResult returns the stored result of a client event.
func (s *Store) GetResult(ctx context.Context, tenantID, employeeID, clientEventID string) (*domain.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result *domain.ValidationResult
	err := s.db.View(func(txn *badger.Txn) error {
		b, err := getValue(txn, kv.ResultKey(tenantID, employeeID, clientEventID))
		if err != nil {
			return err
		}
		if b == nil {
			return domain.ErrResultNotFound
		}
		result, err = kv.DecodeResult(b)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return result, nil
}

// Commit writes c in one transaction. The session write is conditional on
// the stored version matching c.ExpectedVersion.
func (s *Store) Commit(ctx context.Context, c *domain.Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if c.Session != nil {
			key := c.Session.Key()
			current, err := readSession(txn, key)
			if err != nil {
				return err
			}
			if current.Version != c.ExpectedVersion {
				return domain.ErrSessionVersionConflict
			}
			next := c.Session.Clone()
			next.Version = c.ExpectedVersion + 1
			next.UpdatedAt = time.Now().UnixMilli()
			b, err := kv.EncodeSession(next)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(kv.SessionKey(key)), b); err != nil {
				return err
			}
			if err := txn.Set([]byte(kv.DateIndexKey(key)), nil); err != nil {
				return err
			}
		}
		if c.Fix != nil {
			b, err := kv.EncodeFix(c.Fix)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(kv.FixKey(c.TenantID, c.EmployeeID)), b); err != nil {
				return err
			}
		}
		if c.Result != nil {
			b, err := kv.EncodeResult(c.Result)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(kv.ResultKey(c.TenantID, c.EmployeeID, c.ClientEventID)), b); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrSessionVersionConflict
	}
	if err != nil {
		return storageErr(err)
	}
	return nil
}

// ListSessions returns an employee's sessions with dates in [from, to].
func (s *Store) ListSessions(ctx context.Context, tenantID, employeeID, from, to string) ([]*domain.AttendanceSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*domain.AttendanceSession
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(kv.DateIndexPrefix(tenantID, employeeID))
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var dates []string
		for it.Rewind(); it.Valid(); it.Next() {
			date := kv.DateFromIndexKey(string(it.Item().Key()))
			if to != "" && date > to {
				break
			}
			if kv.InRange(date, from, to) {
				dates = append(dates, date)
			}
		}

		for _, d := range dates {
			session, err := readSession(txn, domain.SessionKey{TenantID: tenantID, EmployeeID: employeeID, Date: d})
			if err != nil {
				return err
			}
			if session.Version > 0 {
				out = append(out, session)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

func readSession(txn *badger.Txn, key domain.SessionKey) (*domain.AttendanceSession, error) {
	b, err := getValue(txn, kv.SessionKey(key))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return domain.NewSession(key), nil
	}
	return kv.DecodeSession(b)
}

// getValue returns a copy of the value at key, nil if absent.
func getValue(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// storageErr passes domain errors through and wraps the rest.
func storageErr(err error) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return domain.ErrStorageError.WithCause(ErrClosed)
	}
	return domain.ErrStorageError.WithCause(err)
}
