package audit

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/pkg/crypto/adaptive"
)

var (
	errInvalidMagic = errors.New("audit: invalid magic bytes")
	errClosed       = errors.New("audit: log is closed")
)

// File format constants.
const (
	FilePrefix      = "audit-"
	FileExtension   = ".log"
	MagicBytes      = "GAAUDIT\x01"
	MagicBytesSize  = 8
	ChecksumSize    = 32
	DefaultFilePerm = 0600
	DefaultDirPerm  = 0750
)

// Default configuration values.
const (
	DefaultSyncInterval         = 100 * time.Millisecond
	DefaultMaxSegmentSize int64 = 64 << 20 // 64MB
)

// SyncMode defines when appended frames are fsynced.
type SyncMode string

const (
	// SyncModeSync fsyncs on every append.
	SyncModeSync SyncMode = "sync"

	// SyncModeBatch writes every append through to the OS and fsyncs on
	// an interval.
	SyncModeBatch SyncMode = "batch"
)

// Config configures the audit log.
type Config struct {
	Dir string

	SyncMode     SyncMode
	SyncInterval time.Duration

	MaxSegmentSize int64

	// EncryptionKey, when set, seals new records at rest. It is a 32-byte
	// key in hex or base64.
	EncryptionKey string
	Cipher        adaptive.CipherType
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		SyncMode:       SyncModeSync,
		SyncInterval:   DefaultSyncInterval,
		MaxSegmentSize: DefaultMaxSegmentSize,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.SyncMode == "" {
		cfg.SyncMode = SyncModeSync
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.MaxSegmentSize <= 0 {
		cfg.MaxSegmentSize = DefaultMaxSegmentSize
	}
}

// writer appends frames to segment files. It is not safe for concurrent
// use; Log serializes access.
type writer struct {
	cfg    Config
	cipher adaptive.Cipher

	segmentID uint64
	file      *os.File
	fileSize  int64 // bytes written excluding trailing checksum
	hash      hash.Hash
	dirty     bool
}

func newWriter(cfg Config, c adaptive.Cipher) (*writer, error) {
	w := &writer{cfg: cfg, cipher: c}

	latestID, latestPath, closed, err := findLatestSegment(cfg.Dir)
	if err != nil {
		return nil, err
	}

	if latestID == 0 || closed {
		w.segmentID = latestID + 1
		if err := w.openNewSegment(); err != nil {
			return nil, err
		}
		return w, nil
	}

	w.segmentID = latestID
	if err := w.openExistingSegment(latestPath); err != nil {
		return nil, err
	}
	return w, nil
}

// append writes one frame, rotating first if the segment would overflow.
func (w *writer) append(frame []byte) error {
	if w.file == nil {
		return fmt.Errorf("audit: file not open")
	}
	if w.fileSize > MagicBytesSize && w.fileSize+int64(len(frame)) > w.cfg.MaxSegmentSize {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	if _, err := w.write(frame); err != nil {
		return fmt.Errorf("audit: write frame: %w", err)
	}
	w.dirty = true
	if w.cfg.SyncMode == SyncModeSync {
		return w.sync()
	}
	return nil
}

func (w *writer) sync() error {
	if w.file == nil || !w.dirty {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	w.dirty = false
	return nil
}

func (w *writer) rotate() error {
	if err := w.finalize(); err != nil {
		return err
	}
	w.segmentID++
	return w.openNewSegment()
}

func (w *writer) openNewSegment() error {
	path := filepath.Join(w.cfg.Dir, formatSegmentFilename(w.segmentID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("audit: open segment: %w", err)
	}

	w.file = file
	w.fileSize = 0
	w.hash = sha256.New()

	if _, err := w.write([]byte(MagicBytes)); err != nil {
		file.Close()
		w.file = nil
		return fmt.Errorf("audit: write magic: %w", err)
	}
	return nil
}

// openExistingSegment reopens the active segment for appending. A torn
// frame at the tail is truncated away so new frames stay readable.
func (w *writer) openExistingSegment(path string) error {
	validLen, err := scanValidLength(path, w.cipher)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_RDWR, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("audit: open existing segment: %w", err)
	}
	if err := file.Truncate(validLen); err != nil {
		file.Close()
		return fmt.Errorf("audit: truncate torn tail: %w", err)
	}

	w.hash = sha256.New()
	if _, err := io.CopyN(w.hash, io.NewSectionReader(file, 0, validLen), validLen); err != nil {
		file.Close()
		return fmt.Errorf("audit: hash existing segment: %w", err)
	}
	if _, err := file.Seek(validLen, io.SeekStart); err != nil {
		file.Close()
		return fmt.Errorf("audit: seek: %w", err)
	}

	w.file = file
	w.fileSize = validLen
	return nil
}

func (w *writer) write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	if n > 0 {
		w.hash.Write(p[:n])
		w.fileSize += int64(n)
	}
	return n, err
}

// finalize seals the current segment with its checksum trailer.
func (w *writer) finalize() error {
	if w.file == nil {
		return nil
	}
	if _, err := w.file.Write(w.hash.Sum(nil)); err != nil {
		return fmt.Errorf("audit: write checksum: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("audit: close: %w", err)
	}
	w.file = nil
	w.dirty = false
	return nil
}

func formatSegmentFilename(segmentID uint64) string {
	return fmt.Sprintf("%s%08d%s", FilePrefix, segmentID, FileExtension)
}

func parseSegmentFilename(name string) (uint64, bool) {
	if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileExtension) {
		return 0, false
	}
	var id uint64
	_, err := fmt.Sscanf(name, FilePrefix+"%d"+FileExtension, &id)
	return id, err == nil
}

type segmentInfo struct {
	id   uint64
	path string
}

func listSegments(dir string) ([]segmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: read dir: %w", err)
	}

	var segs []segmentInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseSegmentFilename(e.Name())
		if !ok {
			continue
		}
		segs = append(segs, segmentInfo{id: id, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })
	return segs, nil
}

func findLatestSegment(dir string) (id uint64, path string, closed bool, err error) {
	segs, err := listSegments(dir)
	if err != nil || len(segs) == 0 {
		return 0, "", false, err
	}

	last := segs[len(segs)-1]
	f, err := os.Open(last.path)
	if err != nil {
		return 0, "", false, fmt.Errorf("audit: open latest: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return 0, "", false, fmt.Errorf("audit: stat latest: %w", err)
	}

	closed, _, err = verifyChecksumTrailer(f, stat.Size())
	if errors.Is(err, errInvalidMagic) {
		// Unreadable header: start a fresh segment after it.
		return last.id, last.path, true, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	return last.id, last.path, closed, nil
}

// verifyChecksumTrailer reports whether the file ends in a valid SHA-256
// trailer, and the length of the data before it.
func verifyChecksumTrailer(f *os.File, size int64) (closed bool, dataLen int64, err error) {
	if size < MagicBytesSize {
		return false, size, nil
	}

	magic := make([]byte, MagicBytesSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, MagicBytesSize), magic); err != nil {
		return false, 0, fmt.Errorf("audit: read magic: %w", err)
	}
	if string(magic) != MagicBytes {
		return false, 0, errInvalidMagic
	}

	if size < MagicBytesSize+ChecksumSize {
		return false, size, nil
	}

	trailer := make([]byte, ChecksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, size-ChecksumSize, ChecksumSize), trailer); err != nil {
		return false, 0, fmt.Errorf("audit: read checksum trailer: %w", err)
	}

	h := sha256.New()
	dataLen = size - ChecksumSize
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return false, 0, fmt.Errorf("audit: hash: %w", err)
	}
	if !bytes.Equal(h.Sum(nil), trailer) {
		return false, size, nil
	}
	return true, dataLen, nil
}

// recordSink receives decoded records during a scan.
type recordSink func(rec *domain.AuditRecord) error
