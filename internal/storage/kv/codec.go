package kv

import (
	"encoding/json"
	"fmt"

	"github.com/yndnr/geoattend-go/internal/core/domain"
)

// storedAPIKey carries the secret hash, which domain.APIKey hides from
// JSON so it never reaches API responses.
type storedAPIKey struct {
	Key        *domain.APIKey `json:"key"`
	SecretHash string         `json:"secret_hash"`
}

// EncodeSession encodes s.
func EncodeSession(s *domain.AttendanceSession) ([]byte, error) {
	return encode("session", s)
}

// DecodeSession decodes a session.
func DecodeSession(b []byte) (*domain.AttendanceSession, error) {
	var s domain.AttendanceSession
	if err := decode("session", b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// EncodeFix encodes f.
func EncodeFix(f *domain.LocationFix) ([]byte, error) {
	return encode("fix", f)
}

// DecodeFix decodes a location fix.
func DecodeFix(b []byte) (*domain.LocationFix, error) {
	var f domain.LocationFix
	if err := decode("fix", b, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// EncodeResult encodes r.
func EncodeResult(r *domain.ValidationResult) ([]byte, error) {
	return encode("result", r)
}

// DecodeResult decodes a validation result.
func DecodeResult(b []byte) (*domain.ValidationResult, error) {
	var r domain.ValidationResult
	if err := decode("result", b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// EncodeAPIKey encodes k including its secret hash.
func EncodeAPIKey(k *domain.APIKey) ([]byte, error) {
	return encode("api key", storedAPIKey{Key: k, SecretHash: k.SecretHash})
}

// DecodeAPIKey decodes an API key including its secret hash.
func DecodeAPIKey(b []byte) (*domain.APIKey, error) {
	var s storedAPIKey
	if err := decode("api key", b, &s); err != nil {
		return nil, err
	}
	if s.Key == nil {
		return nil, fmt.Errorf("kv: api key record is empty")
	}
	s.Key.SecretHash = s.SecretHash
	return s.Key, nil
}

func encode(what string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("kv: encode %s: %w", what, err)
	}
	return b, nil
}

func decode(what string, b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("kv: decode %s: %w", what, err)
	}
	return nil
}
