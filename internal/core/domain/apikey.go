package domain

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
)

// API key constants.
const (
	// APIKeyIDPrefix is the prefix for API key IDs (public, uses hyphen).
	APIKeyIDPrefix = "gaak-"

	// APIKeySecretPrefix is the prefix for API key secrets (sensitive, uses underscore).
	APIKeySecretPrefix = "gaas_"
)

// Argon2id parameters for API key secret hashing.
const (
	Argon2Memory      uint32 = 16384 // KB
	Argon2Time        uint32 = 2
	Argon2Parallelism uint8  = 2
	Argon2KeyLen      uint32 = 32
	Argon2SaltLen            = 16
)

// Role defines the permission level of an API key.
type Role string

const (
	// RoleMetrics may only scrape metrics.
	RoleMetrics Role = "metrics"

	// RoleDevice submits attendance events and reads sessions for its tenant.
	RoleDevice Role = "device"

	// RoleTenantAdmin additionally overrides and reviews events for its tenant.
	RoleTenantAdmin Role = "tenant_admin"

	// RoleAdmin is a platform operator key, not bound to a tenant.
	RoleAdmin Role = "admin"
)

// ValidRoles returns all valid roles.
func ValidRoles() []Role {
	return []Role{RoleMetrics, RoleDevice, RoleTenantAdmin, RoleAdmin}
}

// IsValidRole checks if a string is a valid role.
func IsValidRole(r string) bool {
	switch Role(r) {
	case RoleMetrics, RoleDevice, RoleTenantAdmin, RoleAdmin:
		return true
	}
	return false
}

// KeyStatus defines the status of an API key.
type KeyStatus string

const (
	KeyStatusActive   KeyStatus = "active"
	KeyStatusDisabled KeyStatus = "disabled"
)

// IsValidKeyStatus checks if a string is a valid key status.
func IsValidKeyStatus(s string) bool {
	switch KeyStatus(s) {
	case KeyStatusActive, KeyStatusDisabled:
		return true
	}
	return false
}

// Permission represents an action that can be performed.
type Permission string

const (
	PermAttendanceSubmit   Permission = "attendance.submit"
	PermAttendanceRead     Permission = "attendance.read"
	PermAttendanceOverride Permission = "attendance.override"
	PermAttendanceReview   Permission = "attendance.review"

	PermAPIKeyCreate Permission = "apikey.create"
	PermAPIKeyList   Permission = "apikey.list"

	PermZoneReload Permission = "zone.reload"

	PermMetricsRead Permission = "metrics.read"
)

var rolePermissions = map[Role][]Permission{
	RoleMetrics: {
		PermMetricsRead,
	},
	RoleDevice: {
		PermAttendanceSubmit,
		PermAttendanceRead,
	},
	RoleTenantAdmin: {
		PermAttendanceSubmit,
		PermAttendanceRead,
		PermAttendanceOverride,
		PermAttendanceReview,
		PermMetricsRead,
	},
	RoleAdmin: {
		PermAttendanceRead,
		PermAttendanceOverride,
		PermAttendanceReview,
		PermAPIKeyCreate,
		PermAPIKeyList,
		PermZoneReload,
		PermMetricsRead,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// GetPermissions returns all permissions for a role.
func GetPermissions(role Role) []Permission {
	permissions, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(permissions))
	copy(out, permissions)
	return out
}

// IsValidAPIKeyID checks if a string is a valid API key ID.
func IsValidAPIKeyID(id string) bool {
	return isPrefixedULID(id, APIKeyIDPrefix)
}

// NormalizeAPIKeyID normalizes an API key ID to lowercase.
// Returns empty string if the ID is invalid.
func NormalizeAPIKeyID(id string) string {
	normalized := strings.ToLower(id)
	if !IsValidAPIKeyID(normalized) {
		return ""
	}
	return normalized
}

// MaskAPIKeySecret masks an API key secret for safe logging.
func MaskAPIKeySecret(secret string) string {
	if len(secret) < 10 || !strings.HasPrefix(secret, APIKeySecretPrefix) {
		return "***REDACTED***"
	}
	body := secret[len(APIKeySecretPrefix):]
	if len(body) > 6 {
		return APIKeySecretPrefix + body[:3] + "..." + body[len(body)-3:]
	}
	return APIKeySecretPrefix + "***"
}

// APIKey is a credential. Keys with a TenantID may only act on that
// tenant; platform admin keys have none.
type APIKey struct {
	// KeyID is the public identifier. Format: gaak-{ulid_lowercase}.
	KeyID string `json:"key_id"`

	Name string `json:"name"`

	// TenantID scopes the key. Empty only for RoleAdmin.
	TenantID string `json:"tenant_id,omitempty"`

	// SecretHash is the Argon2id hash of the secret (never exposed).
	SecretHash string `json:"-"`

	Role Role `json:"role"`

	// Allowlist contains IP/CIDR entries. Empty means no restriction.
	Allowlist []string `json:"allowlist,omitempty"`

	// RateLimit is the requests-per-second limit.
	RateLimit int `json:"rate_limit"`

	// ExpiresAt is the absolute expiration time (Unix ms), 0 = never.
	ExpiresAt int64 `json:"expires_at,omitempty"`

	Status      KeyStatus `json:"status"`
	Description string    `json:"description,omitempty"`
	CreatedAt   int64     `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
	LastUsed    int64     `json:"last_used,omitempty"`

	// Version is the optimistic lock version number.
	Version uint64 `json:"version"`
}

// API key constraints.
const (
	MaxAllowlistEntries  = 100
	MaxDescriptionLength = 256
	MinRateLimit         = 1
	MaxRateLimit         = 1000000
	DefaultRateLimit     = 200
	SecretLength         = 32
)

// NewAPIKey creates a key with a generated ID and secret.
// The plaintext secret is returned only once.
func NewAPIKey(name string, role Role, tenantID string) (*APIKey, string, error) {
	keyID, err := newPrefixedID(APIKeyIDPrefix)
	if err != nil {
		return nil, "", err
	}

	secretBytes := make([]byte, SecretLength)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", ErrInternalServer.WithCause(err)
	}
	plainSecret := APIKeySecretPrefix + base64.RawURLEncoding.EncodeToString(secretBytes)

	key, err := NewAPIKeyWithSecret(keyID, plainSecret, name, role, tenantID)
	if err != nil {
		return nil, "", err
	}
	return key, plainSecret, nil
}

// NewAPIKeyWithSecret creates a key from an operator-supplied ID and secret,
// as used by bootstrap configuration.
func NewAPIKeyWithSecret(keyID, secret, name string, role Role, tenantID string) (*APIKey, error) {
	hash, err := HashAPIKeySecret(secret)
	if err != nil {
		return nil, ErrInternalServer.WithCause(err)
	}
	return &APIKey{
		KeyID:      strings.ToLower(keyID),
		Name:       name,
		TenantID:   tenantID,
		SecretHash: hash,
		Role:       role,
		Status:     KeyStatusActive,
		RateLimit:  DefaultRateLimit,
		CreatedAt:  currentTimeMillis(),
		CreatedBy:  "system",
		Version:    1,
	}, nil
}

// HashAPIKeySecret computes an Argon2id hash of the secret in the format
// $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>.
func HashAPIKeySecret(secret string) (string, error) {
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(secret), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)

	return "$argon2id$v=19$m=16384,t=2,p=2$" +
		base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(hash), nil
}

// IsExpired returns true if the API key has expired.
func (k *APIKey) IsExpired() bool {
	if k.ExpiresAt == 0 {
		return false
	}
	return currentTimeMillis() > k.ExpiresAt
}

// IsActive returns true if the key is active and not expired.
func (k *APIKey) IsActive() bool {
	return k.Status == KeyStatusActive && !k.IsExpired()
}

// CanActOn reports whether the key may act on tenantID. Platform admin
// keys may act on any tenant.
func (k *APIKey) CanActOn(tenantID string) bool {
	if k.Role == RoleAdmin {
		return true
	}
	return k.TenantID != "" && k.TenantID == tenantID
}

// Touch updates the LastUsed timestamp.
func (k *APIKey) Touch() {
	k.LastUsed = currentTimeMillis()
}

// CreatedAtTime returns CreatedAt as time.Time.
func (k *APIKey) CreatedAtTime() time.Time {
	return time.UnixMilli(k.CreatedAt)
}

// LastUsedAtTime returns LastUsed as time.Time.
func (k *APIKey) LastUsedAtTime() time.Time {
	if k.LastUsed == 0 {
		return time.Time{}
	}
	return time.UnixMilli(k.LastUsed)
}

// Validate validates the API key fields.
func (k *APIKey) Validate() error {
	var violations []string

	if k.KeyID == "" {
		violations = append(violations, "key_id is required")
	} else if !IsValidAPIKeyID(k.KeyID) {
		violations = append(violations, "key_id format invalid")
	}
	if k.SecretHash == "" {
		violations = append(violations, "secret_hash is required")
	}
	if !IsValidRole(string(k.Role)) {
		violations = append(violations, "invalid role")
	}
	if k.Role != RoleAdmin && k.Role != RoleMetrics && k.TenantID == "" {
		violations = append(violations, "tenant_id is required for tenant roles")
	}
	if k.Role == RoleAdmin && k.TenantID != "" {
		violations = append(violations, "admin keys must not be tenant scoped")
	}
	if k.TenantID != "" && !IsValidIdentifier(k.TenantID, MaxTenantIDLength) {
		violations = append(violations, identifierViolation("tenant_id", k.TenantID, MaxTenantIDLength))
	}
	if !IsValidKeyStatus(string(k.Status)) {
		violations = append(violations, "invalid status")
	}
	if len(k.Allowlist) > MaxAllowlistEntries {
		violations = append(violations, "allowlist exceeds 100 entries")
	}
	if k.RateLimit < MinRateLimit || k.RateLimit > MaxRateLimit {
		violations = append(violations, "rate_limit must be between 1 and 1,000,000")
	}
	if len(k.Description) > MaxDescriptionLength {
		violations = append(violations, "description exceeds 256 characters")
	}

	if len(violations) > 0 {
		return ErrAPIKeyValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a deep copy of the API key.
func (k *APIKey) Clone() *APIKey {
	clone := *k
	if k.Allowlist != nil {
		clone.Allowlist = make([]string, len(k.Allowlist))
		copy(clone.Allowlist, k.Allowlist)
	}
	return &clone
}

// currentTimeMillis returns the current Unix timestamp in milliseconds.
var currentTimeMillis = func() int64 {
	return timeNow().UnixMilli()
}

// timeNow is a hook for testing.
var timeNow = time.Now
