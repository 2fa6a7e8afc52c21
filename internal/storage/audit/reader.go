package audit

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/pkg/crypto/adaptive"
)

// ReplayStats summarizes a scan of the audit directory.
type ReplayStats struct {
	Segments int
	Records  int

	// Truncated counts segments whose tail held a torn or corrupt frame.
	Truncated int
}

// Replay calls fn for every readable record under dir, in append order.
// Replay stops at the first error returned by fn. c opens sealed records
// and may be nil for a plain log.
func Replay(dir string, c adaptive.Cipher, fn func(rec *domain.AuditRecord) error) (*ReplayStats, error) {
	segs, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	stats := &ReplayStats{Segments: len(segs)}
	for _, seg := range segs {
		res, err := scanSegment(seg.path, c, func(rec *domain.AuditRecord) error {
			stats.Records++
			return fn(rec)
		})
		if err != nil {
			return stats, err
		}
		if res.torn {
			stats.Truncated++
		}
	}
	return stats, nil
}

// ReadAll returns every readable record under dir, in append order.
func ReadAll(dir string, c adaptive.Cipher) ([]*domain.AuditRecord, error) {
	var out []*domain.AuditRecord
	_, err := Replay(dir, c, func(rec *domain.AuditRecord) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

type scanResult struct {
	// validLen is the offset just past the last good frame.
	validLen int64
	torn     bool
}

func scanValidLength(path string, c adaptive.Cipher) (int64, error) {
	res, err := scanSegment(path, c, nil)
	if err != nil {
		return 0, err
	}
	return res.validLen, nil
}

// scanSegment decodes frames of one segment, excluding a valid checksum
// trailer. Decoding stops at the first torn or corrupt frame.
func scanSegment(path string, c adaptive.Cipher, sink recordSink) (*scanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open segment: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("audit: stat segment: %w", err)
	}

	_, dataLen, err := verifyChecksumTrailer(f, stat.Size())
	if errors.Is(err, errInvalidMagic) {
		return &scanResult{torn: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if dataLen < MagicBytesSize {
		return &scanResult{validLen: 0, torn: dataLen > 0}, nil
	}

	r := bufio.NewReader(io.NewSectionReader(f, MagicBytesSize, dataLen-MagicBytesSize))
	res := &scanResult{validLen: MagicBytesSize}
	for {
		rec, n, err := readFrame(r, c)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			if isFrameError(err) {
				res.torn = true
				return res, nil
			}
			return nil, err
		}
		if sink != nil {
			if err := sink(rec); err != nil {
				return nil, err
			}
		}
		res.validLen += n
	}
}

// readFrame reads one frame and returns its decoded record and total size.
func readFrame(r io.Reader, c adaptive.Cipher) (*domain.AuditRecord, int64, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, ErrCorruptedFrame
		}
		return nil, 0, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 5 || length > maxFrameSize {
		return nil, 0, ErrCorruptedFrame
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, 0, ErrCorruptedFrame
	}

	rec, err := decodeFrame(frame, c)
	if err != nil {
		return nil, 0, err
	}
	return rec, int64(4 + length), nil
}

func isFrameError(err error) bool {
	return errors.Is(err, ErrCorruptedFrame) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrInvalidKind)
}
