// Package metrics holds the Prometheus collectors shared by the gateway and
// its outbound clients.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "infraweave_panel"

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec
	PagesFetched     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	ConfigState      *prometheus.GaugeVec
	WriteRuns        *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests sent to upstream APIs by backend, method and status code.",
		}, []string{"backend", "method", "code"}),
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Pages requested by the paginated fetcher, by endpoint.",
		}, []string{"endpoint"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Gateway requests by method and status code.",
		}, []string{"method", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Gateway request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ConfigState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "config_state",
			Help:      "1 for the current backend configuration phase, 0 otherwise.",
		}, []string{"phase"}),
		WriteRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_runs_total",
			Help:      "Pull/merge request write runs by kind and outcome.",
		}, []string{"kind", "status"}),
	}
	reg.MustRegister(
		c.UpstreamRequests,
		c.PagesFetched,
		c.HTTPRequests,
		c.HTTPDuration,
		c.ConfigState,
		c.WriteRuns,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentTransport counts requests sent through next under the given backend label.
func (c *Collector) InstrumentTransport(backend string, next http.RoundTripper) http.RoundTripper {
	if c == nil {
		return next
	}
	counter := c.UpstreamRequests.MustCurryWith(prometheus.Labels{"backend": backend})
	return promhttp.InstrumentRoundTripperCounter(counter, next)
}

// InstrumentHandler wraps a gateway handler with request counters and latency.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return promhttp.InstrumentHandlerDuration(c.HTTPDuration,
		promhttp.InstrumentHandlerCounter(c.HTTPRequests, next))
}

// PageFetched records one page request against endpoint.
func (c *Collector) PageFetched(endpoint string) {
	if c == nil {
		return
	}
	c.PagesFetched.WithLabelValues(endpoint).Inc()
}

// SetConfigPhase marks phase as the only active configuration phase.
func (c *Collector) SetConfigPhase(phase string, all []string) {
	if c == nil {
		return
	}
	for _, p := range all {
		value := 0.0
		if p == phase {
			value = 1
		}
		c.ConfigState.WithLabelValues(p).Set(value)
	}
}

// WriteRun records the outcome of one pull/merge request write run.
func (c *Collector) WriteRun(kind, status string) {
	if c == nil {
		return
	}
	c.WriteRuns.WithLabelValues(kind, status).Inc()
}
