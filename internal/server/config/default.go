package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
	DefaultShutdownTimeout = 15 * time.Second
	DefaultRateLimit       = 1000
	DefaultRetryAfter      = 2 * time.Second

	DefaultBackend = "memory"
	DefaultDataDir = "/var/lib/geoattend-server/data"

	DefaultAuditSyncMode       = "sync"
	DefaultAuditSyncInterval   = 100 * time.Millisecond
	DefaultAuditMaxSegmentSize = 64

	DefaultZoneRefreshInterval = 60 * time.Second
	DefaultZoneLoadTimeout     = 5 * time.Second

	DefaultSubmitTimeout   = 3 * time.Second
	DefaultReorderHold     = 200 * time.Millisecond
	DefaultReconcileWindow = 24 * time.Hour
	DefaultMaxClockSkew    = 5 * time.Minute
	DefaultLateThreshold   = 10 * time.Minute
	DefaultOverrideLeeway  = 30 * time.Second
	DefaultMaxBatchSize    = 500

	DefaultKeyCacheTTL  = 60 * time.Second
	DefaultKeyCacheSize = 10000

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:         DefaultHTTPAddr,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
				IdleTimeout:  DefaultIdleTimeout,
				MaxBodyBytes: DefaultMaxBodyBytes,
				RateLimit:    DefaultRateLimit,
				RetryAfter:   DefaultRetryAfter,
			},
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageSection{
			Backend: DefaultBackend,
			DataDir: DefaultDataDir,
			Badger: BadgerConfig{
				GCInterval:  "10m",
				GCThreshold: 0.5,
				CacheSizeMB: 64,
			},
			Redis: RedisConfig{
				KeyPrefix: "geoattend:",
			},
		},
		Audit: AuditSection{
			SyncMode:         DefaultAuditSyncMode,
			SyncInterval:     DefaultAuditSyncInterval,
			MaxSegmentSizeMB: DefaultAuditMaxSegmentSize,
		},
		Zones: ZonesSection{
			Watch:           true,
			RefreshInterval: DefaultZoneRefreshInterval,
			LoadTimeout:     DefaultZoneLoadTimeout,
		},
		Attendance: AttendanceSection{
			SubmitTimeout:   DefaultSubmitTimeout,
			ReorderHold:     DefaultReorderHold,
			ReconcileWindow: DefaultReconcileWindow,
			MaxClockSkew:    DefaultMaxClockSkew,
			LateThreshold:   DefaultLateThreshold,
			OverrideLeeway:  DefaultOverrideLeeway,
			MaxBatchSize:    DefaultMaxBatchSize,
			DefaultPolicy: PolicyConfig{
				EnforcementMode: "Strict",
				Timezone:        "UTC",
			},
		},
		Security: SecuritySection{
			MetricsAuth:  true,
			KeyCacheTTL:  DefaultKeyCacheTTL,
			KeyCacheSize: DefaultKeyCacheSize,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
