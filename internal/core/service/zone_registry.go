package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/pkg/cmap"
)

// ZoneRegistryConfig holds configuration for ZoneRegistry.
type ZoneRegistryConfig struct {
	// RefreshInterval is how long a cached tenant entry is considered fresh (default: 60s).
	RefreshInterval time.Duration

	// LoadTimeout bounds a single source load, independent of the caller (default: 5s).
	LoadTimeout time.Duration

	// DefaultPolicy fills in thresholds a tenant leaves unset.
	DefaultPolicy domain.TenantPolicy
}

// DefaultZoneRegistryConfig returns default configuration.
func DefaultZoneRegistryConfig() *ZoneRegistryConfig {
	return &ZoneRegistryConfig{
		RefreshInterval: 60 * time.Second,
		LoadTimeout:     5 * time.Second,
	}
}

// ZoneLookup is the zone data used to judge one event.
type ZoneLookup struct {
	TenantID string
	// Zones are the zones active at the lookup time, ordered by ZoneID.
	Zones  []*domain.Zone
	Policy domain.TenantPolicy
	// Stale is set when the cached entry expired and could not be refreshed.
	Stale    bool
	LoadedAt time.Time
}

type zoneEntry struct {
	config   *domain.TenantConfig
	loadedAt time.Time
}

// ZoneRegistry serves per-tenant zones from a cache over a ZoneSource.
//
// A cache miss or expired entry triggers a refresh; concurrent refreshes of
// the same tenant are coalesced. If the refresh fails or the caller's
// context ends first, an expired entry is served and marked stale instead
// of failing closed.
type ZoneRegistry struct {
	source   ZoneSource
	cfg      ZoneRegistryConfig
	entries  *cmap.Map[*zoneEntry]
	group    singleflight.Group
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewZoneRegistry creates a new ZoneRegistry.
func NewZoneRegistry(source ZoneSource, cfg *ZoneRegistryConfig, logger *slog.Logger) *ZoneRegistry {
	if cfg == nil {
		cfg = DefaultZoneRegistryConfig()
	}
	c := *cfg
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 60 * time.Second
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ZoneRegistry{
		source:   source,
		cfg:      c,
		entries:  cmap.New[*zoneEntry](),
		observer: nopObserver{},
		logger:   logger.With("component", "zone_registry"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// SetObserver installs an observer for lookup outcomes.
func (r *ZoneRegistry) SetObserver(o Observer) {
	if o != nil {
		r.observer = o
	}
}

// ZonesFor returns the zones of tenantID active at `at`, with the tenant
// policy merged over defaults.
func (r *ZoneRegistry) ZonesFor(ctx context.Context, tenantID string, at time.Time) (*ZoneLookup, error) {
	cached, ok := r.entries.Get(tenantID)
	if ok && r.fresh(cached) {
		r.observer.ObserveZoneLookup(ZoneLookupHit)
		return r.lookup(tenantID, cached, at, false), nil
	}

	ch := r.group.DoChan(tenantID, func() (any, error) {
		return r.refresh(tenantID)
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			r.observer.ObserveZoneLookup(ZoneLookupRefresh)
			return r.lookup(tenantID, res.Val.(*zoneEntry), at, false), nil
		}
		if ok {
			r.logger.Warn("serving stale zones", "tenant_id", tenantID, "error", res.Err,
				"age", r.now().Sub(cached.loadedAt).String())
			r.observer.ObserveZoneLookup(ZoneLookupStale)
			return r.lookup(tenantID, cached, at, true), nil
		}
		r.observer.ObserveZoneLookup(ZoneLookupError)
		return nil, domain.ErrZoneRegistryUnavailable.WithDetails(tenantID).WithCause(res.Err)

	case <-ctx.Done():
		if ok {
			r.observer.ObserveZoneLookup(ZoneLookupStale)
			return r.lookup(tenantID, cached, at, true), nil
		}
		r.observer.ObserveZoneLookup(ZoneLookupError)
		return nil, domain.ErrZoneRegistryUnavailable.WithDetails(tenantID).WithCause(ctx.Err())
	}
}

// PolicyFor returns the effective policy of tenantID.
func (r *ZoneRegistry) PolicyFor(ctx context.Context, tenantID string) (domain.TenantPolicy, error) {
	l, err := r.ZonesFor(ctx, tenantID, r.now())
	if err != nil {
		return domain.TenantPolicy{}, err
	}
	return l.Policy, nil
}

// Invalidate marks a tenant's entry expired. The entry is kept so that it
// can still be served stale if the next refresh fails.
func (r *ZoneRegistry) Invalidate(tenantID string) {
	if e, ok := r.entries.Get(tenantID); ok {
		r.entries.Set(tenantID, &zoneEntry{config: e.config})
	}
}

// InvalidateAll marks every cached entry expired.
func (r *ZoneRegistry) InvalidateAll() {
	for _, tenantID := range r.tenants() {
		r.Invalidate(tenantID)
	}
}

// tenants returns the cached tenant IDs. Range holds shard locks, so
// callers must not write to entries while ranging.
func (r *ZoneRegistry) tenants() []string {
	var out []string
	r.entries.Range(func(tenantID string, _ *zoneEntry) bool {
		out = append(out, tenantID)
		return true
	})
	return out
}

// Start launches the background refresh loop for cached tenants.
func (r *ZoneRegistry) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.refreshCached()
			}
		}
	}()
}

// Stop terminates the background loop and waits for it to exit.
func (r *ZoneRegistry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Len returns the number of cached tenants.
func (r *ZoneRegistry) Len() int {
	return r.entries.Count()
}

func (r *ZoneRegistry) refreshCached() {
	for _, tenantID := range r.tenants() {
		_, err, _ := r.group.Do(tenantID, func() (any, error) {
			return r.refresh(tenantID)
		})
		if err != nil {
			r.logger.Warn("background zone refresh failed", "tenant_id", tenantID, "error", err)
		}
	}
}

func (r *ZoneRegistry) refresh(tenantID string) (*zoneEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.LoadTimeout)
	defer cancel()

	cfg, err := r.source.LoadTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &domain.TenantConfig{TenantID: tenantID}
	}
	e := &zoneEntry{config: cfg.Clone(), loadedAt: r.now()}
	r.entries.Set(tenantID, e)
	return e, nil
}

func (r *ZoneRegistry) fresh(e *zoneEntry) bool {
	return !e.loadedAt.IsZero() && r.now().Sub(e.loadedAt) < r.cfg.RefreshInterval
}

func (r *ZoneRegistry) lookup(tenantID string, e *zoneEntry, at time.Time, stale bool) *ZoneLookup {
	return &ZoneLookup{
		TenantID: tenantID,
		Zones:    e.config.ActiveZones(at),
		Policy:   e.config.Policy.WithDefaults(r.cfg.DefaultPolicy),
		Stale:    stale,
		LoadedAt: e.loadedAt,
	}
}
