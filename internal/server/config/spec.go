package config

import "time"

// ServerConfig is the root configuration for geoattend-server.
type ServerConfig struct {
	Server     ServerSection     `koanf:"server"`
	Storage    StorageSection    `koanf:"storage"`
	Audit      AuditSection      `koanf:"audit"`
	Zones      ZonesSection      `koanf:"zones"`
	Attendance AttendanceSection `koanf:"attendance"`
	Security   SecuritySection   `koanf:"security"`
	Log        LogSection        `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP            HTTPConfig    `koanf:"http"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// CORSAllowedOrigins enables CORS for the listed origins ("*" for any).
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`

	// RateLimit is requests per second per client IP (0 disables).
	RateLimit int `koanf:"rate_limit"`

	// RetryAfter is the hint returned with 503 responses.
	RetryAfter time.Duration `koanf:"retry_after"`

	TLS TLSConfig `koanf:"tls"`
}

// TLSConfig configures HTTPS.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`

	// ClientCAFile enables mutual TLS.
	ClientCAFile string `koanf:"client_ca_file"`
}

// StorageSection configures the session store.
type StorageSection struct {
	// Backend is memory, badger or redis.
	Backend string       `koanf:"backend"`
	DataDir string       `koanf:"data_dir"`
	Badger  BadgerConfig `koanf:"badger"`
	Redis   RedisConfig  `koanf:"redis"`
}

// BadgerConfig configures the badger backend.
type BadgerConfig struct {
	SyncWrites  bool    `koanf:"sync_writes"`
	GCInterval  string  `koanf:"gc_interval"`
	GCThreshold float64 `koanf:"gc_threshold"`
	CacheSizeMB int64   `koanf:"cache_size_mb"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	URL       string        `koanf:"url"`
	KeyPrefix string        `koanf:"key_prefix"`
	ResultTTL time.Duration `koanf:"result_ttl"`
}

// AuditSection configures the audit log.
type AuditSection struct {
	// Dir defaults to <data_dir>/audit.
	Dir string `koanf:"dir"`

	// InMemory keeps the log in memory. History is lost on restart.
	InMemory bool `koanf:"in_memory"`

	// SyncMode is sync (fsync per append) or batch.
	SyncMode         string        `koanf:"sync_mode"`
	SyncInterval     time.Duration `koanf:"sync_interval"`
	MaxSegmentSizeMB int64         `koanf:"max_segment_size_mb"`

	// EncryptionKey seals records at rest: 32 bytes as hex or base64.
	EncryptionKey string `koanf:"encryption_key"`
	// Cipher is aes-gcm or chacha20-poly1305; empty picks by host.
	Cipher string `koanf:"cipher"`
}

// ZonesSection configures the zone registry.
type ZonesSection struct {
	// File is the YAML zone file. Empty means no tenant has zones.
	File            string        `koanf:"file"`
	Watch           bool          `koanf:"watch"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	LoadTimeout     time.Duration `koanf:"load_timeout"`
}

// AttendanceSection configures event processing.
type AttendanceSection struct {
	SubmitTimeout   time.Duration `koanf:"submit_timeout"`
	ReorderHold     time.Duration `koanf:"reorder_hold"`
	ReconcileWindow time.Duration `koanf:"reconcile_window"`
	MaxClockSkew    time.Duration `koanf:"max_clock_skew"`
	LateThreshold   time.Duration `koanf:"late_threshold"`
	OverrideLeeway  time.Duration `koanf:"override_leeway"`
	MaxBatchSize    int           `koanf:"max_batch_size"`

	// DefaultPolicy applies to tenants that leave a setting unset.
	DefaultPolicy PolicyConfig `koanf:"default_policy"`
}

// PolicyConfig mirrors domain.TenantPolicy without the override secret.
type PolicyConfig struct {
	EnforcementMode       string  `koanf:"enforcement_mode"`
	Timezone              string  `koanf:"timezone"`
	AccuracyCapMeters     float64 `koanf:"accuracy_cap_meters"`
	AccuracyCeilingMeters float64 `koanf:"accuracy_ceiling_meters"`
	AccuracyWarnMeters    float64 `koanf:"accuracy_warn_meters"`
	MaxSpeedKmh           float64 `koanf:"max_speed_kmh"`
	AllowMockLocation     bool    `koanf:"allow_mock_location"`
}

// SecuritySection configures authentication.
type SecuritySection struct {
	// BootstrapKeys are created at startup when missing.
	BootstrapKeys []BootstrapKeyConfig `koanf:"bootstrap_keys"`

	// MetricsAuth requires a key with metrics.read on /metrics.
	MetricsAuth bool `koanf:"metrics_auth"`

	// IPAllowlist restricts every key to these IPs/CIDRs.
	IPAllowlist []string `koanf:"ip_allowlist"`

	// AdminAllowlist restricts /admin/v1 to these IPs/CIDRs.
	AdminAllowlist []string `koanf:"admin_allowlist"`

	KeyCacheTTL  time.Duration `koanf:"key_cache_ttl"`
	KeyCacheSize int           `koanf:"key_cache_size"`
}

// BootstrapKeyConfig is an operator-provisioned API key.
type BootstrapKeyConfig struct {
	KeyID    string `koanf:"key_id"`
	Secret   string `koanf:"secret"`
	Name     string `koanf:"name"`
	Role     string `koanf:"role"`
	TenantID string `koanf:"tenant_id"`
}

// LogSection configures logging.
type LogSection struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"`
	AddSource bool   `koanf:"add_source"`
}
