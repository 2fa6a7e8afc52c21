package tlsroots

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay lets writers finish both files before the pair is reloaded.
const DefaultReloadDelay = 200 * time.Millisecond

// CertWatcher holds the listener key pair and reloads it when the files
// change. A failed reload keeps the previous pair.
type CertWatcher struct {
	certFile string
	keyFile  string
	delay    time.Duration
	logger   *slog.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

// WatcherOption configures a CertWatcher.
type WatcherOption func(*CertWatcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *CertWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithReloadDelay sets how long change events are coalesced.
func WithReloadDelay(d time.Duration) WatcherOption {
	return func(w *CertWatcher) {
		w.delay = d
	}
}

// NewCertWatcher loads the key pair once and returns the watcher.
func NewCertWatcher(opts ServerOptions, wopts ...WatcherOption) (*CertWatcher, error) {
	if opts.CertFile == "" || opts.KeyFile == "" {
		return nil, ErrMissingKeyPair
	}
	w := &CertWatcher{
		certFile: opts.CertFile,
		keyFile:  opts.KeyFile,
		delay:    DefaultReloadDelay,
		logger:   slog.Default(),
	}
	for _, o := range wopts {
		o(w)
	}
	if err := w.Reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (w *CertWatcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cert, nil
}

// Reload reads the key pair from disk.
func (w *CertWatcher) Reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}
	w.mu.Lock()
	w.cert = &cert
	w.mu.Unlock()
	return nil
}

// Run watches the directories of both files until ctx is done. Directories
// are watched rather than files so that atomic renames are seen.
func (w *CertWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer fw.Close()

	dirs := map[string]struct{}{filepath.Dir(w.certFile): {}, filepath.Dir(w.keyFile): {}}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}

	names := map[string]struct{}{filepath.Clean(w.certFile): {}, filepath.Clean(w.keyFile): {}}
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if _, watched := names[filepath.Clean(ev.Name)]; !watched {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				w.logger.Error("certificate reload failed", "error", err, "cert_file", w.certFile)
				continue
			}
			w.logger.Info("certificate reloaded", "cert_file", w.certFile)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("certificate watcher error", "error", err)
		}
	}
}
