// Package metrics wires the Prometheus collectors this process exposes,
// mirroring the teacher's promauto-based Registry shape.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Prometheus collector this process publishes.
type Registry struct {
	ActiveChannels   prometheus.Gauge
	ActiveClients    prometheus.Gauge
	BytesTransferred prometheus.Counter
	Failovers        prometheus.Counter
	UpstreamErrors   prometheus.Counter
	BroadcastLagged  prometheus.Counter
	KeepalivesSent   prometheus.Counter
	ProcessCPUPct    prometheus.Gauge
	ProcessMemoryRSS prometheus.Gauge

	registerer prometheus.Registerer
}

// NewRegistry creates and registers all collectors against a fresh
// Prometheus registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{registerer: reg}

	r.ActiveChannels = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "streamproxy_active_channels",
		Help: "Number of channels currently holding a live upstream fetch.",
	})
	r.ActiveClients = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "streamproxy_active_clients",
		Help: "Number of attached client sessions across all channels.",
	})
	r.BytesTransferred = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "streamproxy_bytes_transferred_total",
		Help: "Total bytes read from upstream sources.",
	})
	r.Failovers = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "streamproxy_failovers_total",
		Help: "Total upstream failover attempts across all channels.",
	})
	r.UpstreamErrors = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "streamproxy_upstream_errors_total",
		Help: "Total upstream connect/read errors, including clean EOF.",
	})
	r.BroadcastLagged = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "streamproxy_broadcast_lagged_total",
		Help: "Total chunks skipped by client sessions that fell behind the broadcast bus.",
	})
	r.KeepalivesSent = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "streamproxy_keepalives_sent_total",
		Help: "Total TS null keepalive packets written to client sessions.",
	})
	r.ProcessCPUPct = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "streamproxy_process_cpu_percent",
		Help: "Process CPU usage percentage, sampled periodically.",
	})
	r.ProcessMemoryRSS = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "streamproxy_process_memory_rss_bytes",
		Help: "Process resident set size in bytes, sampled periodically.",
	})

	return r
}

// Handler returns an HTTP handler exposing this registry's collectors.
func (r *Registry) Handler() http.Handler {
	reg, ok := r.registerer.(*prometheus.Registry)
	if !ok {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
