package adaptive

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

var testKey = bytes.Repeat([]byte{0x42}, KeySize)

func TestNew_PicksKnownType(t *testing.T) {
	c, err := New(testKey)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Type() != CipherAESGCM && c.Type() != CipherChaCha20 {
		t.Errorf("Type() = %q", c.Type())
	}
}

func TestSealOpen(t *testing.T) {
	for _, typ := range []CipherType{CipherAESGCM, CipherChaCha20} {
		t.Run(string(typ), func(t *testing.T) {
			c, err := NewWithType(testKey, typ)
			if err != nil {
				t.Fatalf("NewWithType() error = %v", err)
			}
			plain := []byte(`{"eventId":"gaev-1","decision":"Accepted"}`)
			aad := []byte{1}

			sealed, err := c.Seal(plain, aad)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if len(sealed) != len(plain)+c.Overhead() {
				t.Errorf("len(sealed) = %d, want %d", len(sealed), len(plain)+c.Overhead())
			}
			if bytes.Contains(sealed, plain) {
				t.Error("sealed payload contains plaintext")
			}

			got, err := c.Open(sealed, aad)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(got, plain) {
				t.Errorf("Open() = %q", got)
			}

			if _, err := c.Open(sealed, []byte{2}); !errors.Is(err, ErrOpen) {
				t.Errorf("Open(wrong aad) error = %v, want ErrOpen", err)
			}
			sealed[len(sealed)-1] ^= 0xff
			if _, err := c.Open(sealed, aad); !errors.Is(err, ErrOpen) {
				t.Errorf("Open(tampered) error = %v, want ErrOpen", err)
			}
			if _, err := c.Open(sealed[:4], aad); err == nil {
				t.Error("Open(short) should fail")
			}
		})
	}
}

func TestSeal_FreshNonce(t *testing.T) {
	c, _ := NewWithType(testKey, CipherChaCha20)
	a, _ := c.Seal([]byte("x"), nil)
	b, _ := c.Seal([]byte("x"), nil)
	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext are identical")
	}
}

func TestOpen_WrongKey(t *testing.T) {
	c1, _ := NewWithType(testKey, CipherAESGCM)
	c2, _ := NewWithType(bytes.Repeat([]byte{0x43}, KeySize), CipherAESGCM)
	sealed, _ := c1.Seal([]byte("payload"), nil)
	if _, err := c2.Open(sealed, nil); !errors.Is(err, ErrOpen) {
		t.Errorf("Open() error = %v, want ErrOpen", err)
	}
}

func TestNewWithType_Errors(t *testing.T) {
	if _, err := NewWithType(testKey[:16], CipherAESGCM); !errors.Is(err, ErrKeySize) {
		t.Errorf("short key error = %v", err)
	}
	if _, err := NewWithType(testKey, "rot13"); err == nil {
		t.Error("unknown type should fail")
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"hex", hex.EncodeToString(testKey), false},
		{"base64", base64.StdEncoding.EncodeToString(testKey), false},
		{"padded hex", "  " + hex.EncodeToString(testKey) + "\n", false},
		{"short hex", hex.EncodeToString(testKey[:16]), true},
		{"short base64", base64.StdEncoding.EncodeToString(testKey[:8]), true},
		{"garbage", "not a key!", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, testKey) {
				t.Errorf("ParseKey() = %x", got)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	for in, want := range map[string]CipherType{
		"":                  CipherAuto,
		"AES-GCM":           CipherAESGCM,
		"chacha20-poly1305": CipherChaCha20,
	} {
		got, err := ParseType(in)
		if err != nil || got != want {
			t.Errorf("ParseType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseType("des"); err == nil {
		t.Error("ParseType(des) should fail")
	}
}
