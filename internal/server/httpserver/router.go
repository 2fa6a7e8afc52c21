package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/server/httpserver/handler"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// AttendanceService handles attendance operations.
	AttendanceService *service.AttendanceService

	// AuthService handles authentication and API key operations.
	AuthService *service.AuthService

	// Zones reloads zone definitions (optional).
	Zones handler.ZoneReloader

	// Readiness checks served by GET /ready.
	Readiness map[string]handler.ReadinessCheck

	// Metrics records request metrics (optional).
	Metrics HTTPMetrics

	// MetricsHandler serves GET /metrics (optional).
	MetricsHandler http.Handler

	// Logger for request logging.
	Logger *slog.Logger

	// AdminAllowList is the IP/CIDR allowlist for admin API (empty = no restriction).
	AdminAllowList []string

	// MetricsAuthRequired indicates if /metrics endpoint requires authentication.
	MetricsAuthRequired bool

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = allow all).
	CORSAllowedOrigins []string

	// GlobalRateLimit is the global rate limit per IP (requests/second, 0 = off).
	GlobalRateLimit int

	// MaxBodyBytes caps request bodies (0 = unlimited).
	MaxBodyBytes int64

	// TrustProxyHeaders honors X-Forwarded-For and X-Real-IP.
	TrustProxyHeaders bool

	// EnableAudit enables access logging for all requests.
	EnableAudit bool

	// RetryAfter is the hint sent with 503 responses.
	RetryAfter time.Duration
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		MetricsAuthRequired: true,
		GlobalRateLimit:     1000,
		MaxBodyBytes:        1 << 20,
		EnableAudit:         true,
		RetryAfter:          handler.DefaultRetryAfter,
	}
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(handler.Config{
		Attendance: cfg.AttendanceService,
		Auth:       cfg.AuthService,
		Zones:      cfg.Zones,
		Readiness:  cfg.Readiness,
		RetryAfter: cfg.RetryAfter,
		Logger:     log,
	})

	mwCfg := &MiddlewareConfig{
		AuthService: cfg.AuthService,
		Logger:      log,
		RetryAfter:  cfg.RetryAfter,
	}

	// Order: Recover -> RequestID -> ClientIP -> Audit -> RateLimit -> ...
	base := []Middleware{
		Recover(log),
		RequestID(),
		ClientIP(cfg.TrustProxyHeaders),
	}
	if cfg.EnableAudit || cfg.Metrics != nil {
		var auditLog *slog.Logger
		if cfg.EnableAudit {
			auditLog = log
		}
		base = append(base, Audit(auditLog, cfg.Metrics))
	}
	if cfg.GlobalRateLimit > 0 {
		base = append(base, RateLimit(cfg.GlobalRateLimit, cfg.Metrics))
	}
	with := func(extra ...Middleware) []Middleware {
		out := make([]Middleware, 0, len(base)+len(extra))
		out = append(out, base...)
		return append(out, extra...)
	}

	mux := http.NewServeMux()

	// Health endpoints - no authentication required
	probe := Chain(h, Recover(log), RequestID())
	mux.Handle("GET /health", probe)
	mux.Handle("GET /ready", probe)

	// Metrics endpoint - configurable authentication
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", Chain(cfg.MetricsHandler,
			with(MetricsAuth(cfg.AuthService, cfg.MetricsAuthRequired))...))
	}

	// Business API endpoints - require authentication
	business := func(perm domain.Permission) http.Handler {
		return Chain(h, with(
			CORS(cfg.CORSAllowedOrigins),
			MaxBody(cfg.MaxBodyBytes),
			Auth(mwCfg),
			RequirePermission(cfg.AuthService, perm),
		)...)
	}

	mux.Handle("POST /v1/attendance/events", business(domain.PermAttendanceSubmit))
	mux.Handle("POST /v1/attendance/events/batch", business(domain.PermAttendanceSubmit))
	mux.Handle("POST /v1/attendance/events/{eventId}/override", business(domain.PermAttendanceOverride))
	mux.Handle("GET /v1/attendance/events/{eventId}", business(domain.PermAttendanceReview))
	mux.Handle("GET /v1/attendance/sessions/{employeeId}", business(domain.PermAttendanceRead))
	mux.Handle("GET /v1/attendance/review", business(domain.PermAttendanceReview))
	mux.Handle("OPTIONS /v1/", Chain(h, with(CORS(cfg.CORSAllowedOrigins))...))

	// Admin API endpoints - require admin role + optional network ACL
	adminMiddlewares := with()
	if len(cfg.AdminAllowList) > 0 {
		adminMiddlewares = append(adminMiddlewares, NetworkACL(&NetworkACLConfig{
			AllowList: cfg.AdminAllowList,
			Logger:    log,
		}))
	}
	adminMiddlewares = append(adminMiddlewares, MaxBody(cfg.MaxBodyBytes), AdminAuth(mwCfg))
	admin := Chain(h, adminMiddlewares...)

	mux.Handle("POST /admin/v1/keys", admin)
	mux.Handle("GET /admin/v1/keys", admin)
	mux.Handle("POST /admin/v1/keys/{keyId}/status", admin)
	mux.Handle("POST /admin/v1/zones/reload", admin)

	return mux
}
