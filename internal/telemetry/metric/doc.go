// Package metric exposes geoattend metrics in Prometheus format.
//
// Registry owns a private prometheus.Registry (plus Go and process
// collectors) and implements service.Observer, so the attendance service
// and the zone registry report decisions, zone lookups and audit appends
// directly. The HTTP middleware records per-route request counts and
// latencies. Collector reports point-in-time gauges at scrape time.
package metric
