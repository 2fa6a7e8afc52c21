package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/storage/audit"
	"github.com/yndnr/geoattend-go/internal/storage/badgerstore"
	"github.com/yndnr/geoattend-go/internal/storage/memory"
	"github.com/yndnr/geoattend-go/internal/storage/redisstore"
)

// Session store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Default directories under DataDir.
const (
	DefaultBadgerDir = "badger"
	DefaultAuditDir  = "audit"
)

// Config configures the storage engine.
type Config struct {
	// Backend selects the session store: memory, badger or redis.
	Backend string

	// DataDir is the base directory for on-disk state.
	DataDir string

	Badger badgerstore.Config
	Redis  redisstore.Config

	// Audit configures the audit log. An empty Audit.Dir keeps the log in
	// memory, which loses history on restart.
	Audit audit.Config

	// Registry receives storage metrics when set.
	Registry prometheus.Registerer

	// Logger is the structured logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		Backend: BackendMemory,
		DataDir: dataDir,
		Badger:  badgerstore.DefaultConfig(filepath.Join(dataDir, DefaultBadgerDir)),
		Audit:   audit.DefaultConfig(filepath.Join(dataDir, DefaultAuditDir)),
		Logger:  slog.Default(),
	}
}

// recordSource is an audit log that can list every record for replay.
type recordSource interface {
	service.AuditLog
	Records() []*domain.AuditRecord
	Len() int
}

// Engine wires the selected session store with the audit log.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	sessions service.SessionRepository
	apiKeys  service.APIKeyRepository
	audit    recordSource

	closers []func() error
	pinger  func(context.Context) error
	counter func() int
}

// Open opens the configured backend and audit log.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}

	e := &Engine{cfg: cfg, logger: cfg.Logger.With("component", "storage")}

	if cfg.Audit.Dir != "" {
		l, err := audit.Open(cfg.Audit, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("storage: open audit log: %w", err)
		}
		e.audit = l
		e.closers = append(e.closers, l.Close)
	} else {
		e.logger.Warn("audit log is in memory; history is lost on restart")
		e.audit = memory.NewAuditLog()
	}

	switch cfg.Backend {
	case BackendMemory:
		s := memory.New()
		e.sessions = s
		e.apiKeys = memory.NewAPIKeyStore()
		e.counter = s.Count

	case BackendBadger:
		if cfg.Badger.Dir == "" && !cfg.Badger.InMemory {
			cfg.Badger.Dir = filepath.Join(cfg.DataDir, DefaultBadgerDir)
		}
		s, err := badgerstore.Open(cfg.Badger, cfg.Logger)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		if cfg.Registry != nil {
			s.RegisterMetrics(cfg.Registry)
		}
		e.sessions = s
		e.apiKeys = s.APIKeys()
		e.closers = append(e.closers, s.Close)

	case BackendRedis:
		s, err := redisstore.Open(ctx, cfg.Redis, cfg.Logger)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		e.sessions = s
		e.apiKeys = s.APIKeys()
		e.closers = append(e.closers, s.Close)
		e.pinger = s.Ping

	default:
		e.Close()
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}

	e.logger.Info("storage opened", "backend", cfg.Backend, "audit_dir", cfg.Audit.Dir)
	return e, nil
}

// Sessions returns the session repository.
func (e *Engine) Sessions() service.SessionRepository { return e.sessions }

// APIKeys returns the API key repository.
func (e *Engine) APIKeys() service.APIKeyRepository { return e.apiKeys }

// Audit returns the audit log.
func (e *Engine) Audit() service.AuditLog { return e.audit }

// Ping checks that the backend is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if e.pinger == nil {
		return nil
	}
	return e.pinger(ctx)
}

// SessionCount returns the number of stored sessions, or -1 when the
// backend does not track it cheaply.
func (e *Engine) SessionCount() int {
	if e.counter == nil {
		return -1
	}
	return e.counter()
}

// AuditLen returns the number of audit records.
func (e *Engine) AuditLen() int {
	return e.audit.Len()
}

// Durable reports whether sessions survive a restart without replay.
func (e *Engine) Durable() bool {
	return e.cfg.Backend != BackendMemory
}

// Recover rebuilds a memory session store from the audit log. Durable
// backends keep their own state and are left untouched.
func (e *Engine) Recover(ctx context.Context, svc *service.AttendanceService) error {
	if e.Durable() {
		return nil
	}
	records := e.audit.Records()
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	e.logger.Info("session recovery started", "records", len(records))

	stats, err := svc.Recover(ctx, records)
	if err != nil {
		return fmt.Errorf("storage: recover: %w", err)
	}

	e.logger.Info("session recovery completed",
		"events", stats.Events,
		"applied", stats.Applied,
		"rejected", stats.Rejected,
		"skipped", stats.Skipped,
		"elapsed", time.Since(start))
	return nil
}

// Close closes the backend and the audit log, in reverse open order.
func (e *Engine) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}
