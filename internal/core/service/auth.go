package service

import (
	"container/list"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/time/rate"

	"github.com/yndnr/geoattend-go/internal/core/domain"
)

// APIKeyRepository defines the storage interface for API keys.
type APIKeyRepository interface {
	Get(ctx context.Context, keyID string) (*domain.APIKey, error)
	Create(ctx context.Context, key *domain.APIKey) error
	Update(ctx context.Context, key *domain.APIKey) error
	List(ctx context.Context) ([]*domain.APIKey, error)
}

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	// CacheTTL is how long a validated key is trusted without re-reading storage (default: 60s).
	CacheTTL time.Duration

	// CacheSize is the maximum number of cached keys (default: 10,000).
	CacheSize int

	// GlobalAllowlist is an IP/CIDR allowlist applied to every key (empty = no restriction).
	GlobalAllowlist []string
}

// DefaultAuthServiceConfig returns default configuration.
func DefaultAuthServiceConfig() *AuthServiceConfig {
	return &AuthServiceConfig{
		CacheTTL:  60 * time.Second,
		CacheSize: 10000,
	}
}

// AuthService authenticates API keys, checks permissions and enforces
// per-key rate limits.
type AuthService struct {
	repo         APIKeyRepository
	cache        *APIKeyCache
	rateLimiters *RateLimiterRegistry
	globalAllow  []string
	logger       *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo APIKeyRepository, cfg *AuthServiceConfig, logger *slog.Logger) *AuthService {
	if cfg == nil {
		cfg = DefaultAuthServiceConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		repo:         repo,
		cache:        NewAPIKeyCache(cfg.CacheSize, cfg.CacheTTL),
		rateLimiters: NewRateLimiterRegistry(),
		globalAllow:  cfg.GlobalAllowlist,
		logger:       logger.With("component", "auth"),
	}
}

// ValidateAPIKeyRequest contains parameters for API key validation.
type ValidateAPIKeyRequest struct {
	KeyID     string
	KeySecret string
	ClientIP  string
}

// ValidateAPIKey authenticates a key ID and secret and returns the key.
func (s *AuthService) ValidateAPIKey(ctx context.Context, req *ValidateAPIKeyRequest) (*domain.APIKey, error) {
	if req.KeyID == "" || req.KeySecret == "" {
		return nil, domain.ErrAPIKeyMissing
	}
	keyID := strings.ToLower(req.KeyID)

	if cached := s.cache.Get(keyID); cached != nil && verifyArgon2Hash(req.KeySecret, cached.SecretHash) {
		if err := s.checkUsable(cached, req.ClientIP); err != nil {
			return nil, err
		}
		return cached, nil
	}

	key, err := s.repo.Get(ctx, keyID)
	if err != nil {
		return nil, domain.ErrAPIKeyInvalid.WithCause(err)
	}
	if err := s.checkUsable(key, req.ClientIP); err != nil {
		return nil, err
	}
	// Argon2 is deliberately slow; run it after the cheap checks.
	if !verifyArgon2Hash(req.KeySecret, key.SecretHash) {
		return nil, domain.ErrAPIKeyInvalid.WithDetails("invalid secret")
	}

	key.Touch()
	if err := s.repo.Update(ctx, key); err != nil {
		s.logger.Warn("failed to record api key usage", "key_id", keyID, "error", err)
	}
	s.cache.Set(keyID, key)
	return key, nil
}

func (s *AuthService) checkUsable(key *domain.APIKey, clientIP string) error {
	if key.Status != domain.KeyStatusActive {
		return domain.ErrAPIKeyDisabled
	}
	if key.IsExpired() {
		return domain.ErrAPIKeyDisabled.WithDetails("api key expired")
	}
	return s.checkIPAllowlist(clientIP, key.Allowlist)
}

// CheckPermission checks if an API key has the required permission.
func (s *AuthService) CheckPermission(key *domain.APIKey, perm domain.Permission) error {
	if !domain.HasPermission(key.Role, perm) {
		return domain.ErrPermissionDenied.WithDetails(
			"role " + string(key.Role) + " does not have permission " + string(perm),
		)
	}
	return nil
}

// CheckRateLimit reports ErrRateLimited when keyID exceeded its limit.
// The returned delay is how long the caller should wait before retrying.
func (s *AuthService) CheckRateLimit(keyID string, limit int) (time.Duration, error) {
	limiter := s.rateLimiters.GetOrCreate(keyID, limit)
	if limiter.Allow() {
		return 0, nil
	}
	r := limiter.Reserve()
	delay := r.Delay()
	r.Cancel()
	return delay, domain.ErrRateLimited.WithDetails("retry after " + delay.String())
}

// InvalidateCache drops a key from the validation cache.
func (s *AuthService) InvalidateCache(keyID string) {
	s.cache.Delete(strings.ToLower(keyID))
}

func (s *AuthService) checkIPAllowlist(clientIP string, keyAllowlist []string) error {
	if len(s.globalAllow) == 0 && len(keyAllowlist) == 0 {
		return nil
	}
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return domain.ErrIPNotAllowed.WithDetails("invalid client IP format")
	}
	if len(s.globalAllow) > 0 && !ipAllowed(ip, s.globalAllow) {
		return domain.ErrIPNotAllowed.WithDetails("client IP not in global allowlist")
	}
	if len(keyAllowlist) > 0 && !ipAllowed(ip, keyAllowlist) {
		return domain.ErrIPNotAllowed.WithDetails("client IP not in key allowlist")
	}
	return nil
}

func ipAllowed(ip net.IP, allowlist []string) bool {
	for _, entry := range allowlist {
		if strings.Contains(entry, "/") {
			if _, ipNet, err := net.ParseCIDR(entry); err == nil && ipNet.Contains(ip) {
				return true
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(ip) {
			return true
		}
	}
	return false
}

// verifyArgon2Hash checks secret against "$argon2id$v=19$m=..,t=..,p=..$salt$hash".
func verifyArgon2Hash(secret, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// ============================================================================
// Key management
// ============================================================================

// CreateAPIKeyRequest contains parameters for creating an API key.
type CreateAPIKeyRequest struct {
	Name        string
	Role        string
	TenantID    string
	Description string
	RateLimit   int
	Allowlist   []string
	CreatedBy   string
}

// CreateAPIKeyResponse contains the new key and its one-time secret.
type CreateAPIKeyResponse struct {
	Key    *domain.APIKey
	Secret string
}

// CreateAPIKey creates a new API key.
func (s *AuthService) CreateAPIKey(ctx context.Context, req *CreateAPIKeyRequest) (*CreateAPIKeyResponse, error) {
	if !domain.IsValidRole(req.Role) {
		return nil, domain.ErrInvalidArgument.WithDetails("invalid role " + req.Role)
	}
	key, secret, err := domain.NewAPIKey(req.Name, domain.Role(req.Role), req.TenantID)
	if err != nil {
		return nil, err
	}
	key.Description = req.Description
	key.Allowlist = req.Allowlist
	if req.RateLimit > 0 {
		key.RateLimit = req.RateLimit
	}
	if req.CreatedBy != "" {
		key.CreatedBy = req.CreatedBy
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return &CreateAPIKeyResponse{Key: key, Secret: secret}, nil
}

// BootstrapKey is an operator-configured key created at startup.
type BootstrapKey struct {
	KeyID    string
	Secret   string
	Name     string
	Role     string
	TenantID string
}

// Bootstrap creates configured keys that do not exist yet.
func (s *AuthService) Bootstrap(ctx context.Context, keys []BootstrapKey) (int, error) {
	created := 0
	for _, b := range keys {
		if _, err := s.repo.Get(ctx, strings.ToLower(b.KeyID)); err == nil {
			continue
		}
		key, err := domain.NewAPIKeyWithSecret(b.KeyID, b.Secret, b.Name, domain.Role(b.Role), b.TenantID)
		if err != nil {
			return created, err
		}
		if err := key.Validate(); err != nil {
			return created, err
		}
		if err := s.repo.Create(ctx, key); err != nil {
			return created, domain.ErrStorageError.WithCause(err)
		}
		created++
	}
	return created, nil
}

// ListAPIKeys returns keys, optionally filtered by tenant and role.
func (s *AuthService) ListAPIKeys(ctx context.Context, tenantID, role string) ([]*domain.APIKey, error) {
	keys, err := s.repo.List(ctx)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	out := make([]*domain.APIKey, 0, len(keys))
	for _, k := range keys {
		if tenantID != "" && k.TenantID != tenantID {
			continue
		}
		if role != "" && string(k.Role) != role {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// SetAPIKeyStatus enables or disables a key.
func (s *AuthService) SetAPIKeyStatus(ctx context.Context, keyID string, enabled bool) error {
	key, err := s.repo.Get(ctx, strings.ToLower(keyID))
	if err != nil {
		return domain.ErrAPIKeyNotFound.WithCause(err)
	}
	if enabled {
		key.Status = domain.KeyStatusActive
	} else {
		key.Status = domain.KeyStatusDisabled
	}
	if err := s.repo.Update(ctx, key); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	s.InvalidateCache(keyID)
	return nil
}

// ============================================================================
// APIKeyCache
// ============================================================================

// APIKeyCache is an LRU cache with TTL for validated API keys.
type APIKeyCache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type cacheEntry struct {
	keyID     string
	key       *domain.APIKey
	expiresAt time.Time
}

// NewAPIKeyCache creates a cache holding at most capacity keys for ttl.
func NewAPIKeyCache(capacity int, ttl time.Duration) *APIKeyCache {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &APIKeyCache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a cached key, or nil if absent or expired.
func (c *APIKeyCache) Get(keyID string) *domain.APIKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[keyID]
	if !ok {
		return nil
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, keyID)
		return nil
	}
	c.order.MoveToFront(elem)
	return entry.key
}

// Set caches a key, evicting the least recently used entry when full.
func (c *APIKeyCache) Set(keyID string, key *domain.APIKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if elem, ok := c.items[keyID]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.key = key
		entry.expiresAt = expires
		c.order.MoveToFront(elem)
		return
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		delete(c.items, oldest.Value.(*cacheEntry).keyID)
		c.order.Remove(oldest)
	}
	c.items[keyID] = c.order.PushFront(&cacheEntry{keyID: keyID, key: key, expiresAt: expires})
}

// Delete removes a key from the cache.
func (c *APIKeyCache) Delete(keyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[keyID]; ok {
		c.order.Remove(elem)
		delete(c.items, keyID)
	}
}

// Size returns the number of cached keys.
func (c *APIKeyCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// ============================================================================
// RateLimiterRegistry
// ============================================================================

// RateLimiterRegistry holds one token bucket per key.
//
// A registry built with an idle TTL forgets limiters unused for that long.
// The sweep runs inline from GetOrCreate at most once per TTL, so no
// background goroutine is needed. A bucket idle for more than a second is
// already full, so eviction never changes a caller's allowance.
type RateLimiterRegistry struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewRateLimiterRegistry creates a registry that keeps limiters until
// Delete is called. Suitable when the key set is bounded, such as API keys.
func NewRateLimiterRegistry() *RateLimiterRegistry {
	return NewIdleRateLimiterRegistry(0)
}

// NewIdleRateLimiterRegistry creates a registry that evicts limiters idle
// for longer than idleTTL. Zero disables eviction.
func NewIdleRateLimiterRegistry(idleTTL time.Duration) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]*limiterEntry),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// GetOrCreate returns the limiter for keyID, creating one allowing limit
// requests per second with an equal burst. A changed limit takes effect
// immediately.
func (r *RateLimiterRegistry) GetOrCreate(keyID string, limit int) *rate.Limiter {
	if limit <= 0 {
		limit = domain.DefaultRateLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.idleTTL > 0 && now.Sub(r.lastSweep) >= r.idleTTL {
		r.evictLocked(now)
		r.lastSweep = now
	}

	ent, ok := r.limiters[keyID]
	if !ok {
		ent = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(limit), limit)}
		r.limiters[keyID] = ent
	} else if ent.limiter.Burst() != limit {
		ent.limiter.SetLimit(rate.Limit(limit))
		ent.limiter.SetBurst(limit)
	}
	ent.lastUsed = now
	return ent.limiter
}

// EvictIdle drops limiters idle for longer than the registry's TTL and
// returns how many were removed.
func (r *RateLimiterRegistry) EvictIdle() int {
	if r.idleTTL <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.lastSweep = now
	return r.evictLocked(now)
}

func (r *RateLimiterRegistry) evictLocked(now time.Time) int {
	n := 0
	for k, ent := range r.limiters {
		if now.Sub(ent.lastUsed) > r.idleTTL {
			delete(r.limiters, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked limiters.
func (r *RateLimiterRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// Delete removes the limiter for keyID.
func (r *RateLimiterRegistry) Delete(keyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, keyID)
}
