package memory

import (
	"context"
	"sync"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
)

var _ service.ZoneSource = (*ZoneStore)(nil)

// ZoneStore is a service.ZoneSource backed by a map.
type ZoneStore struct {
	mu      sync.RWMutex
	tenants map[string]*domain.TenantConfig
}

// NewZoneStore creates a zone store holding cfgs.
func NewZoneStore(cfgs ...*domain.TenantConfig) *ZoneStore {
	s := &ZoneStore{tenants: make(map[string]*domain.TenantConfig)}
	for _, c := range cfgs {
		s.Put(c)
	}
	return s
}

// Put replaces a tenant's configuration.
func (s *ZoneStore) Put(cfg *domain.TenantConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[cfg.TenantID] = cfg.Clone()
}

// LoadTenant returns the tenant's configuration, empty if unknown.
func (s *ZoneStore) LoadTenant(_ context.Context, tenantID string) (*domain.TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cfg, ok := s.tenants[tenantID]; ok {
		return cfg.Clone(), nil
	}
	return &domain.TenantConfig{TenantID: tenantID}, nil
}
