package domain

import (
	"strings"
	"testing"
	"time"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role  string
		valid bool
	}{
		{"metrics", true},
		{"device", true},
		{"tenant_admin", true},
		{"admin", true},
		{"ADMIN", false},
		{"issuer", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := IsValidRole(tt.role); got != tt.valid {
				t.Errorf("IsValidRole(%q) = %v, want %v", tt.role, got, tt.valid)
			}
		})
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleDevice, PermAttendanceSubmit, true},
		{RoleDevice, PermAttendanceOverride, false},
		{RoleTenantAdmin, PermAttendanceOverride, true},
		{RoleTenantAdmin, PermAPIKeyCreate, false},
		{RoleAdmin, PermAttendanceSubmit, false},
		{RoleAdmin, PermZoneReload, true},
		{RoleMetrics, PermMetricsRead, true},
		{RoleMetrics, PermAttendanceRead, false},
		{Role("unknown"), PermMetricsRead, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestGetPermissions_ReturnsCopy(t *testing.T) {
	perms := GetPermissions(RoleDevice)
	perms[0] = "tampered"
	if HasPermission(RoleDevice, "tampered") {
		t.Error("GetPermissions should return a copy")
	}
	if GetPermissions(Role("nope")) != nil {
		t.Error("unknown role should have no permissions")
	}
}

func TestNewAPIKey(t *testing.T) {
	key, secret, err := NewAPIKey("kiosk", RoleDevice, "acme")
	if err != nil {
		t.Fatalf("NewAPIKey() error = %v", err)
	}
	if !IsValidAPIKeyID(key.KeyID) {
		t.Errorf("KeyID %q is not valid", key.KeyID)
	}
	if !strings.HasPrefix(secret, APIKeySecretPrefix) {
		t.Errorf("secret should start with %q", APIKeySecretPrefix)
	}
	if !strings.HasPrefix(key.SecretHash, "$argon2id$v=19$m=16384,t=2,p=2$") {
		t.Errorf("unexpected hash format %q", key.SecretHash)
	}
	if key.TenantID != "acme" || key.Role != RoleDevice || key.Status != KeyStatusActive {
		t.Errorf("unexpected key fields: %+v", key)
	}
	if err := key.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestAPIKey_CanActOn(t *testing.T) {
	device := &APIKey{Role: RoleDevice, TenantID: "acme"}
	admin := &APIKey{Role: RoleAdmin}
	unscoped := &APIKey{Role: RoleDevice}

	if !device.CanActOn("acme") {
		t.Error("device key should act on its own tenant")
	}
	if device.CanActOn("globex") {
		t.Error("device key should not act on another tenant")
	}
	if !admin.CanActOn("globex") {
		t.Error("admin key should act on any tenant")
	}
	if unscoped.CanActOn("") {
		t.Error("unscoped tenant key should not match empty tenant")
	}
}

func TestAPIKey_IsActive(t *testing.T) {
	key := &APIKey{Status: KeyStatusActive}
	if !key.IsActive() {
		t.Error("active key without expiry should be active")
	}
	key.ExpiresAt = time.Now().Add(-time.Minute).UnixMilli()
	if key.IsActive() {
		t.Error("expired key should not be active")
	}
	key.ExpiresAt = 0
	key.Status = KeyStatusDisabled
	if key.IsActive() {
		t.Error("disabled key should not be active")
	}
}

func TestAPIKey_Validate(t *testing.T) {
	valid := func() *APIKey {
		k, _, err := NewAPIKey("k", RoleTenantAdmin, "acme")
		if err != nil {
			t.Fatalf("NewAPIKey() error = %v", err)
		}
		return k
	}

	tests := []struct {
		name   string
		mutate func(k *APIKey)
		want   string
	}{
		{"valid", func(*APIKey) {}, ""},
		{"bad id", func(k *APIKey) { k.KeyID = "tmak-123" }, "key_id format invalid"},
		{"tenant role without tenant", func(k *APIKey) { k.TenantID = "" }, "tenant_id is required"},
		{"scoped admin", func(k *APIKey) { k.Role = RoleAdmin }, "must not be tenant scoped"},
		{"rate limit", func(k *APIKey) { k.RateLimit = 0 }, "rate_limit"},
		{"status", func(k *APIKey) { k.Status = "paused" }, "invalid status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := valid()
			tt.mutate(k)
			err := k.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestMaskAPIKeySecret(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"short", "***REDACTED***"},
		{"gaas_abcdefghijkl", "gaas_abc...jkl"},
		{"other_abcdefghijkl", "***REDACTED***"},
	}
	for _, tt := range tests {
		if got := MaskAPIKeySecret(tt.in); got != tt.want {
			t.Errorf("MaskAPIKeySecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAPIKey_Clone(t *testing.T) {
	k := &APIKey{KeyID: "x", Allowlist: []string{"10.0.0.0/8"}}
	c := k.Clone()
	c.Allowlist[0] = "changed"
	if k.Allowlist[0] != "10.0.0.0/8" {
		t.Error("Clone should deep copy Allowlist")
	}
}
