package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time view of engine state. Negative values are
// unknown and not reported.
type Stats struct {
	Sessions      int64
	AuditRecords  int64
	CachedTenants int64
}

// Collector reports Stats as gauges on each scrape.
type Collector struct {
	stats func() Stats

	sessions      *prometheus.Desc
	auditRecords  *prometheus.Desc
	cachedTenants *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector reading from stats.
func NewCollector(stats func() Stats) *Collector {
	return &Collector{
		stats: stats,
		sessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions"),
			"Attendance sessions held by the session store.", nil, nil),
		auditRecords: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "audit_records"),
			"Records in the audit log.", nil, nil),
		cachedTenants: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "zone_cache_tenants"),
			"Tenants held in the zone registry cache.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessions
	ch <- c.auditRecords
	ch <- c.cachedTenants
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	emit := func(d *prometheus.Desc, v int64) {
		if v >= 0 {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
		}
	}
	emit(c.sessions, s.Sessions)
	emit(c.auditRecords, s.AuditRecords)
	emit(c.cachedTenants, s.CachedTenants)
}
