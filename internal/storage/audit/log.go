package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/storage/memory"
	"github.com/yndnr/geoattend-go/pkg/crypto/adaptive"
)

var _ service.AuditLog = (*Log)(nil)

// Log is the file-backed service.AuditLog. Records are appended to
// segment files and indexed in memory for lookups; the index is rebuilt
// from disk on Open.
type Log struct {
	cfg    Config
	cipher adaptive.Cipher
	logger *slog.Logger

	mu     sync.Mutex
	w      *writer
	index  *memory.AuditLog
	closed bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open opens (or creates) the audit log in cfg.Dir and replays it.
func Open(cfg Config, logger *slog.Logger) (*Log, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("audit: dir is required")
	}
	applyDefaults(&cfg)
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("audit: create dir: %w", err)
	}

	c, err := newCipher(cfg)
	if err != nil {
		return nil, err
	}

	index := memory.NewAuditLog()
	stats, err := Replay(cfg.Dir, c, func(rec *domain.AuditRecord) error {
		index.Load(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	w, err := newWriter(cfg, c)
	if err != nil {
		return nil, err
	}

	l := &Log{
		cfg:    cfg,
		cipher: c,
		logger: logger.With("component", "audit"),
		w:      w,
		index:  index,
		stopCh: make(chan struct{}),
	}
	l.logger.Info("audit log opened",
		"dir", cfg.Dir,
		"segments", stats.Segments,
		"records", stats.Records,
		"truncated_segments", stats.Truncated,
		"sync_mode", string(cfg.SyncMode),
		"encrypted", c != nil)

	if cfg.SyncMode == SyncModeBatch {
		l.startSyncLoop()
	}
	return l, nil
}

// Append writes rec and assigns its sequence number. In sync mode the
// frame is fsynced before Append returns.
func (l *Log) Append(ctx context.Context, rec *domain.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errClosed
	}

	rec.Seq = l.index.LastSeq() + 1
	frame, err := encodeFrame(rec, l.cipher)
	if err != nil {
		rec.Seq = 0
		return err
	}
	if err := l.w.append(frame); err != nil {
		rec.Seq = 0
		return err
	}
	l.index.Load(rec)
	return nil
}

// Get returns the latest record for eventID.
func (l *Log) Get(ctx context.Context, eventID string) (*domain.AuditRecord, error) {
	return l.index.Get(ctx, eventID)
}

// List returns the latest record per event matching f, newest first.
func (l *Log) List(ctx context.Context, f service.AuditFilter) ([]*domain.AuditRecord, error) {
	return l.index.List(ctx, f)
}

// Records returns every record in append order.
func (l *Log) Records() []*domain.AuditRecord {
	return l.index.Records()
}

// Len returns the number of records.
func (l *Log) Len() int {
	return l.index.Len()
}

// Sync fsyncs pending appends.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	return l.w.sync()
}

// Close stops the sync loop and seals the active segment.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.finalize()
}

func (l *Log) startSyncLoop() {
	ticker := time.NewTicker(l.cfg.SyncInterval)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := l.Sync(); err != nil {
					l.logger.Error("audit sync failed", "error", err)
				}
			case <-l.stopCh:
				return
			}
		}
	}()
}

// newCipher returns nil when no key is configured.
func newCipher(cfg Config) (adaptive.Cipher, error) {
	if cfg.EncryptionKey == "" {
		return nil, nil
	}
	key, err := adaptive.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("audit: encryption key: %w", err)
	}
	return adaptive.NewWithType(key, cfg.Cipher)
}
