package metric

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
)

const namespace = "geoattend"

var _ service.Observer = (*Registry)(nil)

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	Decisions      *prometheus.CounterVec
	SubmitDuration prometheus.Histogram
	ZoneLookups    *prometheus.CounterVec
	AuditAppends   *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	RateLimited  prometheus.Counter
}

// NewRegistry creates the metrics and registers them on a new registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Validation decisions by outcome.",
		}, []string{"decision"}),
		SubmitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Time from receipt to decision for one event.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 3},
		}),
		ZoneLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zone_lookups_total",
			Help:      "Zone registry lookups by outcome (hit, refresh, stale, error).",
		}, []string{"result"}),
		AuditAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_appends_total",
			Help:      "Audit log appends by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(
		r.Decisions,
		r.SubmitDuration,
		r.ZoneLookups,
		r.AuditAppends,
		r.HTTPRequests,
		r.HTTPDuration,
		r.RateLimited,
	)
	return r
}

// Registerer lets other components (storage engines) add collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns the /metrics handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		Registry:          r.registry,
		EnableOpenMetrics: false,
	})
}

// ObserveDecision implements service.Observer.
func (r *Registry) ObserveDecision(d domain.Decision, elapsed time.Duration) {
	r.Decisions.WithLabelValues(string(d)).Inc()
	r.SubmitDuration.Observe(elapsed.Seconds())
}

// ObserveZoneLookup implements service.Observer.
func (r *Registry) ObserveZoneLookup(outcome string) {
	r.ZoneLookups.WithLabelValues(outcome).Inc()
}

// ObserveAuditAppend implements service.Observer.
func (r *Registry) ObserveAuditAppend(err error) {
	result := "ok"
	if err != nil {
		result = "error"
		var de *domain.DomainError
		if errors.As(err, &de) && de.Code == domain.ErrDeadlineExceeded.Code {
			result = "timeout"
		}
	}
	r.AuditAppends.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records one served request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (r *Registry) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// IncRateLimited counts a rate-limited request.
func (r *Registry) IncRateLimited() {
	r.RateLimited.Inc()
}
