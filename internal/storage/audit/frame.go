package audit

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/pkg/crypto/adaptive"
)

// Frame errors.
var (
	ErrCorruptedFrame   = errors.New("audit: corrupted frame")
	ErrChecksumMismatch = errors.New("audit: checksum mismatch")
	ErrInvalidKind      = errors.New("audit: invalid record kind")

	// ErrKeyRequired is returned when a sealed frame is read without a
	// cipher.
	ErrKeyRequired = errors.New("audit: log is encrypted and no key is configured")
)

const (
	// frameHeaderSize is length (4) + crc (4).
	frameHeaderSize = 8

	// maxFrameSize bounds the length field of a frame.
	maxFrameSize = 16 << 20
)

// kindCode is the on-disk tag of an audit kind. The high bit marks a
// sealed payload.
type kindCode uint8

const sealedFlag kindCode = 0x80

const (
	kindUnspecified kindCode = iota
	kindEvaluation
	kindOverride
	kindSuperseded
)

func encodeKind(k domain.AuditKind) kindCode {
	switch k {
	case domain.AuditEvaluation:
		return kindEvaluation
	case domain.AuditOverride:
		return kindOverride
	case domain.AuditSuperseded:
		return kindSuperseded
	}
	return kindUnspecified
}

func decodeKind(c kindCode) (domain.AuditKind, bool) {
	switch c {
	case kindEvaluation:
		return domain.AuditEvaluation, true
	case kindOverride:
		return domain.AuditOverride, true
	case kindSuperseded:
		return domain.AuditSuperseded, true
	}
	return "", false
}

// encodeFrame builds [length:4][crc32:4][kind:1][payload...]. With a
// non-nil cipher the payload is sealed with the kind byte as associated
// data.
func encodeFrame(rec *domain.AuditRecord, c adaptive.Cipher) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("audit: record is nil")
	}
	code := encodeKind(rec.Kind)
	if code == kindUnspecified {
		return nil, ErrInvalidKind
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal record: %w", err)
	}
	if c != nil {
		code |= sealedFlag
		if payload, err = c.Seal(payload, []byte{byte(code)}); err != nil {
			return nil, fmt.Errorf("audit: seal record: %w", err)
		}
	}

	body := make([]byte, 0, 1+len(payload))
	body = append(body, byte(code))
	body = append(body, payload...)

	out := make([]byte, frameHeaderSize, frameHeaderSize+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(4+len(body)))
	binary.BigEndian.PutUint32(out[4:8], crc32.ChecksumIEEE(body))
	return append(out, body...), nil
}

// decodeFrame decodes [crc32:4][kind:1][payload...]. Plain frames decode
// with or without a cipher so that a log can be switched to encryption
// in place.
func decodeFrame(frame []byte, c adaptive.Cipher) (*domain.AuditRecord, error) {
	if len(frame) < 5 {
		return nil, ErrCorruptedFrame
	}

	wantCRC := binary.BigEndian.Uint32(frame[:4])
	body := frame[4:]
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, ErrChecksumMismatch
	}

	code := kindCode(body[0])
	kind, ok := decodeKind(code &^ sealedFlag)
	if !ok {
		return nil, ErrInvalidKind
	}

	payload := body[1:]
	if code&sealedFlag != 0 {
		if c == nil {
			return nil, ErrKeyRequired
		}
		// The CRC already passed, so a failed open means the wrong key.
		plain, err := c.Open(payload, body[:1])
		if err != nil {
			return nil, fmt.Errorf("audit: open sealed record: %w", err)
		}
		payload = plain
	}

	var rec domain.AuditRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("%w: unmarshal record: %v", ErrCorruptedFrame, err)
	}
	if rec.Kind != kind {
		return nil, ErrCorruptedFrame
	}
	return &rec, nil
}
