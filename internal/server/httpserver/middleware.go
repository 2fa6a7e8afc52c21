package httpserver

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/server/httpserver/handler"
	"github.com/yndnr/geoattend-go/internal/telemetry/logger"
)

// Context keys for request-scoped values.
type contextKey string

const (
	// ContextKeyStartTime is the context key for request start time.
	ContextKeyStartTime contextKey = "start_time"

	// ContextKeyClientIP is the context key for the resolved client IP.
	ContextKeyClientIP contextKey = "client_ip"
)

// maxRequestIDLen bounds caller-supplied request IDs.
const maxRequestIDLen = 128

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware is the
// outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// HTTPMetrics receives per-request measurements.
type HTTPMetrics interface {
	RecordHTTPRequest(method, route string, status int, elapsed time.Duration)
	IncRateLimited()
}

// MiddlewareConfig holds configuration for middlewares.
type MiddlewareConfig struct {
	AuthService *service.AuthService
	Logger      *slog.Logger

	// RetryAfter is the hint sent with 503 responses.
	RetryAfter time.Duration
}

// RequestID adds a unique request ID to each request and to the request
// logger.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" || len(requestID) > maxRequestIDLen {
				requestID = newRequestID()
			}

			w.Header().Set("X-Request-ID", requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			ctx = context.WithValue(ctx, ContextKeyStartTime, time.Now())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRequestID() string {
	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		return "req-unknown"
	}
	return "req-" + strings.ToLower(id.String())
}

// ClientIP resolves the client address once per request. Forwarding
// headers are honored only when trustProxy is set.
func ClientIP(trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r)
			if trustProxy {
				if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
					ip = strings.TrimSpace(strings.Split(xff, ",")[0])
				} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
					ip = strings.TrimSpace(xri)
				}
			}
			ctx := context.WithValue(r.Context(), ContextKeyClientIP, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Auth creates an authentication middleware. The key is rate limited
// individually and stored in the request context.
func Auth(cfg *MiddlewareConfig) Middleware {
	return authenticate(cfg, nil)
}

// AdminAuth creates an authentication middleware specifically for admin API.
// It requires the caller to have admin role.
func AdminAuth(cfg *MiddlewareConfig) Middleware {
	return authenticate(cfg, func(key *domain.APIKey) error {
		if key.Role != domain.RoleAdmin {
			return domain.ErrAdminPermissionDenied
		}
		return nil
	})
}

func authenticate(cfg *MiddlewareConfig, check func(*domain.APIKey) error) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID, keySecret := extractAPIKeyCredentials(r)
			if keyID == "" || keySecret == "" {
				writeAuthError(w, r, domain.ErrAPIKeyMissing, 0)
				return
			}

			key, err := cfg.AuthService.ValidateAPIKey(r.Context(), &service.ValidateAPIKeyRequest{
				KeyID:     keyID,
				KeySecret: keySecret,
				ClientIP:  getClientIP(r),
			})
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Warn("authentication failed",
						"request_id", logger.RequestIDFromContext(r.Context()),
						"key_id", keyID,
						"client_ip", getClientIP(r),
						"error", domain.GetErrorCode(err),
					)
				}
				writeAuthError(w, r, err, cfg.RetryAfter)
				return
			}

			if check != nil {
				if err := check(key); err != nil {
					writeAuthError(w, r, err, 0)
					return
				}
			}

			if delay, err := cfg.AuthService.CheckRateLimit(key.KeyID, key.RateLimit); err != nil {
				writeAuthError(w, r, err, delay)
				return
			}

			recordAPIKey(w, key)
			ctx := handler.WithAPIKey(r.Context(), key)
			ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With("key_id", key.KeyID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission creates a middleware that checks for specific permission.
func RequirePermission(authSvc *service.AuthService, perm domain.Permission) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := handler.APIKeyFromContext(r.Context())
			if apiKey == nil {
				writeAuthError(w, r, domain.ErrAPIKeyMissing, 0)
				return
			}

			if err := authSvc.CheckPermission(apiKey, perm); err != nil {
				writeAuthError(w, r, err, 0)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientLimiterIdleTTL bounds how long a quiet client IP keeps its limiter.
const clientLimiterIdleTTL = 10 * time.Minute

// RateLimit applies global rate limiting per client IP.
func RateLimit(requestsPerSecond int, metrics HTTPMetrics) Middleware {
	return rateLimitWith(service.NewIdleRateLimiterRegistry(clientLimiterIdleTTL), requestsPerSecond, metrics)
}

func rateLimitWith(limiters *service.RateLimiterRegistry, requestsPerSecond int, metrics HTTPMetrics) Middleware {

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := limiters.GetOrCreate(getClientIP(r), requestsPerSecond)
			if !l.Allow() {
				if metrics != nil {
					metrics.IncRateLimited()
				}
				writeAuthError(w, r, domain.ErrRateLimited, time.Second)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBody limits request bodies to n bytes.
func MaxBody(n int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Audit logs request/response for audit trail and records request metrics
// under the matched route pattern.
func Audit(log *slog.Logger, metrics HTTPMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			startTime, ok := r.Context().Value(ContextKeyStartTime).(time.Time)
			if !ok {
				startTime = time.Now()
			}
			duration := time.Since(startTime)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			if metrics != nil {
				metrics.RecordHTTPRequest(r.Method, route, wrapped.statusCode, duration)
			}
			if log == nil {
				return
			}

			attrs := []any{
				"request_id", logger.RequestIDFromContext(r.Context()),
				"method", r.Method,
				"route", route,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", duration.Milliseconds(),
				"client_ip", getClientIP(r),
			}

			// Auth runs inside Audit and reports the key through the writer.
			if apiKey := wrapped.apiKey; apiKey != nil {
				attrs = append(attrs, "key_id", apiKey.KeyID, "role", string(apiKey.Role))
			}

			switch {
			case wrapped.statusCode >= 500:
				log.Error("request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				log.Warn("request completed with client error", attrs...)
			default:
				log.Info("request completed", attrs...)
			}
		})
	}
}

// Recover recovers from panics and returns 500 error.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					if log != nil {
						log.Error("panic recovered",
							"request_id", logger.RequestIDFromContext(r.Context()),
							"error", err,
							"path", r.URL.Path,
						)
					}
					handler.WriteError(w, r, http.StatusInternalServerError,
						domain.ErrInternalServer.Code, domain.ErrInternalServer.Message, nil)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// MetricsAuth creates an authentication middleware for metrics endpoint.
// It can be configured to allow unauthenticated access.
func MetricsAuth(authService *service.AuthService, authRequired bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authRequired {
				next.ServeHTTP(w, r)
				return
			}

			keyID, keySecret := extractAPIKeyCredentials(r)
			if keyID == "" || keySecret == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			key, err := authService.ValidateAPIKey(r.Context(), &service.ValidateAPIKeyRequest{
				KeyID:     keyID,
				KeySecret: keySecret,
				ClientIP:  getClientIP(r),
			})
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			if authService.CheckPermission(key, domain.PermMetricsRead) != nil {
				w.WriteHeader(http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NetworkACLConfig holds configuration for network ACL middleware.
type NetworkACLConfig struct {
	// AllowList is the list of allowed IP/CIDR entries.
	// Empty list means no restriction.
	AllowList []string

	// Logger for logging denied requests.
	Logger *slog.Logger
}

// NetworkACL creates a middleware that checks client IP against an allowlist.
func NetworkACL(cfg *NetworkACLConfig) Middleware {
	var networks []*net.IPNet
	var singleIPs []net.IP

	for _, entry := range cfg.AllowList {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Warn("invalid CIDR in allowlist", "entry", entry, "error", err)
				}
				continue
			}
			networks = append(networks, ipNet)
		} else {
			ip := net.ParseIP(entry)
			if ip == nil {
				if cfg.Logger != nil {
					cfg.Logger.Warn("invalid IP in allowlist", "entry", entry)
				}
				continue
			}
			singleIPs = append(singleIPs, ip)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(networks) == 0 && len(singleIPs) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := getClientIP(r)
			ip := net.ParseIP(clientIP)
			if ip == nil {
				writeAuthError(w, r, domain.ErrAdminIPNotAllowed.WithDetails("invalid client IP"), 0)
				return
			}

			for _, allowedIP := range singleIPs {
				if allowedIP.Equal(ip) {
					next.ServeHTTP(w, r)
					return
				}
			}
			for _, network := range networks {
				if network.Contains(ip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.Logger != nil {
				cfg.Logger.Warn("request denied by network ACL",
					"client_ip", clientIP,
					"path", r.URL.Path,
				)
			}
			writeAuthError(w, r, domain.ErrAdminIPNotAllowed, 0)
		})
	}
}

// extractAPIKeyCredentials extracts API key credentials from request headers.
// It supports two formats:
// 1. Authorization: Bearer <key_id>:<key_secret>
// 2. X-API-Key-ID + X-API-Key headers
func extractAPIKeyCredentials(r *http.Request) (keyID, keySecret string) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		parts := strings.SplitN(strings.TrimPrefix(authHeader, "Bearer "), ":", 2)
		if len(parts) == 2 {
			return parts[0], parts[1]
		}
	}

	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" && r.Header.Get("X-API-Key-ID") == "" {
		parts := strings.SplitN(apiKey, ":", 2)
		if len(parts) == 2 {
			return parts[0], parts[1]
		}
	}

	return r.Header.Get("X-API-Key-ID"), r.Header.Get("X-API-Key")
}

// CORS adds Cross-Origin Resource Sharing headers.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := len(allowedOrigins) == 0
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key-ID, X-API-Key, X-Request-ID, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	apiKey      *domain.APIKey
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// recordAPIKey hands the authenticated key to an enclosing Audit
// middleware, if any.
func recordAPIKey(w http.ResponseWriter, key *domain.APIKey) {
	for {
		switch rw := w.(type) {
		case *responseWriter:
			rw.apiKey = key
			return
		case interface{ Unwrap() http.ResponseWriter }:
			w = rw.Unwrap()
		default:
			return
		}
	}
}

// GetRequestIDFromContext retrieves the request ID from context.
func GetRequestIDFromContext(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}

// writeAuthError writes an access error. A positive retryAfter is sent as
// the Retry-After hint.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error, retryAfter time.Duration) {
	handler.WriteDomainError(w, r, err, retryAfter)
}

// getClientIP returns the address resolved by ClientIP, or the peer
// address when the middleware is absent.
func getClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ContextKeyClientIP).(string); ok && ip != "" {
		return ip
	}
	return remoteIP(r)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
