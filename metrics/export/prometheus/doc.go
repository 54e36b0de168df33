// Package prometheus exposes session counters through
// github.com/prometheus/client_golang.
//
// [NewCollector] wraps a *goSession.Session (or any [Source]) as a
// prometheus.Collector; [Handler] mounts it on its own registry. Counters are
// named gosession_*_total and the refresh histogram is
// gosession_refresh_latency_seconds.
//
// Nothing here registers with the global default registry.
package prometheus
