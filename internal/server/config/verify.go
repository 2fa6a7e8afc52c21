package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/pkg/crypto/adaptive"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	var errs []error
	errs = append(errs, verifyServer(&cfg.Server)...)
	errs = append(errs, verifyStorage(&cfg.Storage, &cfg.Audit)...)
	errs = append(errs, verifyZones(&cfg.Zones)...)
	errs = append(errs, verifyAttendance(&cfg.Attendance)...)
	errs = append(errs, verifySecurity(&cfg.Security)...)
	return errors.Join(errs...)
}

func verifyServer(cfg *ServerSection) []error {
	var errs []error
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.http.addr %q: %w", cfg.HTTP.Addr, err))
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.http.max_body_bytes must be positive"))
	}
	if cfg.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("server.http.rate_limit must not be negative"))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if t := cfg.HTTP.TLS; t.Enabled {
		if t.CertFile == "" || t.KeyFile == "" {
			errs = append(errs, errors.New("server.http.tls requires cert_file and key_file"))
		}
		for _, f := range []string{t.CertFile, t.KeyFile, t.ClientCAFile} {
			if f == "" {
				continue
			}
			if _, err := os.Stat(f); err != nil {
				errs = append(errs, fmt.Errorf("server.http.tls: %w", err))
			}
		}
	}
	return errs
}

func verifyStorage(cfg *StorageSection, audit *AuditSection) []error {
	var errs []error
	switch cfg.Backend {
	case "memory", "badger":
	case "redis":
		if cfg.Redis.URL == "" {
			errs = append(errs, errors.New("storage.redis.url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: must be memory, badger or redis", cfg.Backend))
	}

	needsDisk := cfg.Backend == "badger" || (!audit.InMemory && audit.Dir == "")
	if needsDisk && cfg.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	}
	if cfg.Backend == "badger" && (cfg.Badger.GCThreshold <= 0 || cfg.Badger.GCThreshold >= 1) {
		errs = append(errs, errors.New("storage.badger.gc_threshold must be in (0, 1)"))
	}

	switch audit.SyncMode {
	case "sync", "batch":
	default:
		errs = append(errs, fmt.Errorf("audit.sync_mode %q: must be sync or batch", audit.SyncMode))
	}
	if audit.MaxSegmentSizeMB <= 0 {
		errs = append(errs, errors.New("audit.max_segment_size_mb must be positive"))
	}
	if audit.EncryptionKey != "" {
		if audit.InMemory {
			errs = append(errs, errors.New("audit.encryption_key has no effect with audit.in_memory"))
		}
		if _, err := adaptive.ParseKey(audit.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("audit.encryption_key: %w", err))
		}
	}
	if _, err := adaptive.ParseType(audit.Cipher); err != nil {
		errs = append(errs, fmt.Errorf("audit.cipher: %w", err))
	}
	return errs
}

func verifyZones(cfg *ZonesSection) []error {
	var errs []error
	if cfg.RefreshInterval <= 0 {
		errs = append(errs, errors.New("zones.refresh_interval must be positive"))
	}
	if cfg.LoadTimeout <= 0 {
		errs = append(errs, errors.New("zones.load_timeout must be positive"))
	}
	if cfg.File != "" {
		if _, err := os.Stat(cfg.File); err != nil {
			errs = append(errs, fmt.Errorf("zones.file: %w", err))
		}
	}
	return errs
}

func verifyAttendance(cfg *AttendanceSection) []error {
	var errs []error
	if cfg.SubmitTimeout <= 0 {
		errs = append(errs, errors.New("attendance.submit_timeout must be positive"))
	}
	if cfg.ReorderHold < 0 {
		errs = append(errs, errors.New("attendance.reorder_hold must not be negative"))
	}
	if cfg.ReorderHold >= cfg.SubmitTimeout && cfg.SubmitTimeout > 0 {
		errs = append(errs, errors.New("attendance.reorder_hold must be shorter than submit_timeout"))
	}
	if cfg.ReconcileWindow <= 0 {
		errs = append(errs, errors.New("attendance.reconcile_window must be positive"))
	}
	if cfg.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("attendance.max_batch_size must be positive"))
	}
	if err := cfg.DefaultPolicy.toDomain().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("attendance.default_policy: %w", err))
	}
	return errs
}

func verifySecurity(cfg *SecuritySection) []error {
	var errs []error
	seen := make(map[string]struct{}, len(cfg.BootstrapKeys))
	for i, k := range cfg.BootstrapKeys {
		prefix := fmt.Sprintf("security.bootstrap_keys[%d]", i)
		id := strings.ToLower(k.KeyID)
		if !domain.IsValidAPIKeyID(id) {
			errs = append(errs, fmt.Errorf("%s: invalid key_id %q", prefix, k.KeyID))
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate key_id %q", prefix, k.KeyID))
		}
		seen[id] = struct{}{}
		if len(k.Secret) < 16 {
			errs = append(errs, fmt.Errorf("%s: secret must be at least 16 characters", prefix))
		}
		if !domain.IsValidRole(k.Role) {
			errs = append(errs, fmt.Errorf("%s: invalid role %q", prefix, k.Role))
		}
		if k.Role != string(domain.RoleAdmin) && k.Role != string(domain.RoleMetrics) && k.TenantID == "" {
			errs = append(errs, fmt.Errorf("%s: role %s requires tenant_id", prefix, k.Role))
		}
	}
	errs = append(errs, verifyAllowlist("security.ip_allowlist", cfg.IPAllowlist)...)
	errs = append(errs, verifyAllowlist("security.admin_allowlist", cfg.AdminAllowlist)...)
	if cfg.KeyCacheSize <= 0 {
		errs = append(errs, errors.New("security.key_cache_size must be positive"))
	}
	return errs
}

func verifyAllowlist(name string, entries []string) []error {
	var errs []error
	for _, entry := range entries {
		if net.ParseIP(entry) == nil {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid entry %q", name, entry))
			}
		}
	}
	return errs
}
