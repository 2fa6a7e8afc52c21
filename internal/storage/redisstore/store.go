package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/storage/kv"
)

var _ service.SessionRepository = (*Store)(nil)

// Config configures the Redis store.
type Config struct {
	// URL is a redis:// URL or a host:port address.
	URL string

	// KeyPrefix namespaces every key (default: "geoattend:").
	KeyPrefix string

	// ResultTTL expires stored idempotency results. 0 keeps them forever.
	ResultTTL time.Duration
}

// Store is a Redis-backed session store.
type Store struct {
	client *redis.Client
	prefix string
	cfg    Config
	logger *slog.Logger
}

// Connect builds a client from a redis:// URL or host:port address.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("redisstore: parse url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redisstore: url is required")
	}
	client, err := Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	return New(client, cfg, logger), nil
}

// New wraps an existing client.
func New(client *redis.Client, cfg Config, logger *slog.Logger) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "geoattend:"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		prefix: cfg.KeyPrefix,
		cfg:    cfg,
		logger: logger.With("component", "redisstore"),
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// dateIndexKey is a sorted set of an employee's session dates, all with
// score 0 so that ZRANGEBYLEX selects date ranges.
func (s *Store) dateIndexKey(tenantID, employeeID string) string {
	return s.key(strings.TrimSuffix(kv.DateIndexPrefix(tenantID, employeeID), "/"))
}

// GetSession returns the session for key, NotStarted if none is stored.
func (s *Store) GetSession(ctx context.Context, key domain.SessionKey) (*domain.AttendanceSession, error) {
	session, err := readSession(ctx, s.client, s.key(kv.SessionKey(key)), key)
	if err != nil {
		return nil, storageErr(err)
	}
	return session, nil
}

// LastFix returns the employee's last accepted fix, nil if none.
func (s *Store) LastFix(ctx context.Context, tenantID, employeeID string) (*domain.LocationFix, error) {
	b, err := s.client.Get(ctx, s.key(kv.FixKey(tenantID, employeeID))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	fix, err := kv.DecodeFix(b)
	if err != nil {
		return nil, storageErr(err)
	}
	return fix, nil
}

// GetResult returns the stored result of a client event.
func (s *Store) GetResult(ctx context.Context, tenantID, employeeID, clientEventID string) (*domain.ValidationResult, error) {
	b, err := s.client.Get(ctx, s.key(kv.ResultKey(tenantID, employeeID, clientEventID))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrResultNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	r, err := kv.DecodeResult(b)
	if err != nil {
		return nil, storageErr(err)
	}
	return r, nil
}

// Commit writes c in one MULTI/EXEC. When c.Session is set the session
// key is watched and its stored version must equal c.ExpectedVersion.
func (s *Store) Commit(ctx context.Context, c *domain.Commit) error {
	var watched []string
	var sessKey string
	if c.Session != nil {
		sessKey = s.key(kv.SessionKey(c.Session.Key()))
		watched = append(watched, sessKey)
	}

	var payload struct {
		session, fix, result []byte
	}
	var err error
	if c.Fix != nil {
		if payload.fix, err = kv.EncodeFix(c.Fix); err != nil {
			return err
		}
	}
	if c.Result != nil {
		if payload.result, err = kv.EncodeResult(c.Result); err != nil {
			return err
		}
	}

	txf := func(tx *redis.Tx) error {
		var next *domain.AttendanceSession
		if c.Session != nil {
			current, err := readSession(ctx, tx, sessKey, c.Session.Key())
			if err != nil {
				return err
			}
			if current.Version != c.ExpectedVersion {
				return domain.ErrSessionVersionConflict
			}
			next = c.Session.Clone()
			next.Version = c.ExpectedVersion + 1
			next.UpdatedAt = time.Now().UnixMilli()
			if payload.session, err = kv.EncodeSession(next); err != nil {
				return err
			}
		}

		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if next != nil {
				p.Set(ctx, sessKey, payload.session, 0)
				p.ZAdd(ctx, s.dateIndexKey(c.TenantID, c.EmployeeID), redis.Z{Score: 0, Member: next.Date})
			}
			if payload.fix != nil {
				p.Set(ctx, s.key(kv.FixKey(c.TenantID, c.EmployeeID)), payload.fix, 0)
			}
			if payload.result != nil {
				p.Set(ctx, s.key(kv.ResultKey(c.TenantID, c.EmployeeID, c.ClientEventID)), payload.result, s.cfg.ResultTTL)
			}
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, watched...)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrSessionVersionConflict
	}
	if err != nil {
		return storageErr(err)
	}
	return nil
}

// ListSessions returns an employee's sessions with dates in [from, to].
func (s *Store) ListSessions(ctx context.Context, tenantID, employeeID, from, to string) ([]*domain.AttendanceSession, error) {
	rng := &redis.ZRangeBy{Min: "-", Max: "+"}
	if from != "" {
		rng.Min = "[" + from
	}
	if to != "" {
		rng.Max = "[" + to
	}
	dates, err := s.client.ZRangeByLex(ctx, s.dateIndexKey(tenantID, employeeID), rng).Result()
	if err != nil {
		return nil, storageErr(err)
	}
	if len(dates) == 0 {
		return nil, nil
	}

	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = s.key(kv.SessionKey(domain.SessionKey{TenantID: tenantID, EmployeeID: employeeID, Date: d}))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storageErr(err)
	}

	out := make([]*domain.AttendanceSession, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		session, err := kv.DecodeSession([]byte(str))
		if err != nil {
			s.logger.Warn("skipping undecodable session", "key", keys[i], "error", err)
			continue
		}
		out = append(out, session)
	}
	return out, nil
}

func readSession(ctx context.Context, c redis.Cmdable, redisKey string, key domain.SessionKey) (*domain.AttendanceSession, error) {
	b, err := c.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewSession(key), nil
	}
	if err != nil {
		return nil, err
	}
	return kv.DecodeSession(b)
}

// storageErr passes domain and context errors through and wraps the rest.
func storageErr(err error) error {
	var de *domain.DomainError
	if errors.As(err, &de) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.ErrStorageError.WithCause(err)
}
