package config

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/storage"
	"github.com/yndnr/geoattend-go/internal/storage/audit"
	"github.com/yndnr/geoattend-go/internal/telemetry/logger"
	"github.com/yndnr/geoattend-go/pkg/crypto/adaptive"
)

func (p PolicyConfig) toDomain() domain.TenantPolicy {
	mode := domain.EnforcementMode(p.EnforcementMode)
	if parsed, ok := domain.ParseEnforcementMode(p.EnforcementMode); ok {
		mode = parsed
	}
	return domain.TenantPolicy{
		EnforcementMode:       mode,
		Timezone:              p.Timezone,
		AccuracyCapMeters:     p.AccuracyCapMeters,
		AccuracyCeilingMeters: p.AccuracyCeilingMeters,
		AccuracyWarnMeters:    p.AccuracyWarnMeters,
		MaxSpeedKmh:           p.MaxSpeedKmh,
		AllowMockLocation:     p.AllowMockLocation,
	}
}

// AttendanceServiceConfig maps the attendance section.
func (c *ServerConfig) AttendanceServiceConfig() *service.AttendanceServiceConfig {
	a := c.Attendance
	return &service.AttendanceServiceConfig{
		SubmitTimeout:   a.SubmitTimeout,
		ReorderHold:     a.ReorderHold,
		ReconcileWindow: a.ReconcileWindow,
		MaxClockSkew:    a.MaxClockSkew,
		LateThreshold:   a.LateThreshold,
		OverrideLeeway:  a.OverrideLeeway,
		MaxBatchSize:    a.MaxBatchSize,
	}
}

// ZoneRegistryConfig maps the zones section and the default policy.
func (c *ServerConfig) ZoneRegistryConfig() *service.ZoneRegistryConfig {
	return &service.ZoneRegistryConfig{
		RefreshInterval: c.Zones.RefreshInterval,
		LoadTimeout:     c.Zones.LoadTimeout,
		DefaultPolicy:   c.Attendance.DefaultPolicy.toDomain(),
	}
}

// AuthServiceConfig maps the security section.
func (c *ServerConfig) AuthServiceConfig() *service.AuthServiceConfig {
	return &service.AuthServiceConfig{
		CacheTTL:        c.Security.KeyCacheTTL,
		CacheSize:       c.Security.KeyCacheSize,
		GlobalAllowlist: append([]string(nil), c.Security.IPAllowlist...),
	}
}

// BootstrapKeys maps the configured bootstrap keys.
func (c *ServerConfig) BootstrapKeys() []service.BootstrapKey {
	out := make([]service.BootstrapKey, len(c.Security.BootstrapKeys))
	for i, k := range c.Security.BootstrapKeys {
		out[i] = service.BootstrapKey{
			KeyID:    k.KeyID,
			Secret:   k.Secret,
			Name:     k.Name,
			Role:     k.Role,
			TenantID: k.TenantID,
		}
	}
	return out
}

// StorageConfig maps the storage and audit sections.
func (c *ServerConfig) StorageConfig(reg prometheus.Registerer, log *slog.Logger) storage.Config {
	s := c.Storage
	cfg := storage.DefaultConfig(s.DataDir)
	cfg.Backend = s.Backend
	cfg.Registry = reg
	cfg.Logger = log

	cfg.Badger.SyncWrites = s.Badger.SyncWrites
	if s.Badger.GCInterval != "" {
		cfg.Badger.GCInterval = s.Badger.GCInterval
	}
	if s.Badger.GCThreshold > 0 {
		cfg.Badger.GCThreshold = s.Badger.GCThreshold
	}
	if s.Badger.CacheSizeMB > 0 {
		cfg.Badger.CacheSize = s.Badger.CacheSizeMB << 20
	}

	cfg.Redis.URL = s.Redis.URL
	cfg.Redis.KeyPrefix = s.Redis.KeyPrefix
	cfg.Redis.ResultTTL = s.Redis.ResultTTL

	a := c.Audit
	switch {
	case a.InMemory:
		cfg.Audit = audit.Config{}
	default:
		dir := a.Dir
		if dir == "" {
			dir = filepath.Join(s.DataDir, storage.DefaultAuditDir)
		}
		cfg.Audit = audit.Config{
			Dir:            dir,
			SyncMode:       audit.SyncMode(a.SyncMode),
			SyncInterval:   a.SyncInterval,
			MaxSegmentSize: a.MaxSegmentSizeMB << 20,
			EncryptionKey:  a.EncryptionKey,
			Cipher:         adaptive.CipherType(strings.ToLower(a.Cipher)),
		}
	}
	return cfg
}

// LoggerConfig maps the log section.
func (c *ServerConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:     c.Log.Level,
		Format:    c.Log.Format,
		AddSource: c.Log.AddSource,
	}
}
