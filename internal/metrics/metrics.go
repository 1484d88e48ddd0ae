package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tokligence_relay"

// Collector owns the relay's Prometheus series on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	tokens          prometheus.Counter
	bytes           *prometheus.CounterVec
	frameErrors     prometheus.Counter
	activeStreams   prometheus.Gauge
	upstreamLatency *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
}

// NewCollector creates a collector with process and Go runtime series
// registered alongside the relay series.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Relayed requests by delivery mode and outcome.",
		}, []string{"mode", "outcome"}),
		tokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Text deltas delivered as chunk envelopes.",
		}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_bytes_total",
			Help:      "Response body bytes read from upstream.",
		}, []string{"mode"}),
		frameErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_parse_errors_total",
			Help:      "Stream lines skipped because they were not valid JSON.",
		}),
		activeStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Streaming channels currently open.",
		}),
		upstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Time from dispatch to end of body.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests served by relayd by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "relayd handler latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests refused with 429 by route.",
		}, []string{"route"}),
	}
}

// RecordExchange records the end of one relayed request.
func (c *Collector) RecordExchange(mode string, ok bool, bytes int64, elapsed time.Duration) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	c.requests.WithLabelValues(mode, outcome).Inc()
	if bytes > 0 {
		c.bytes.WithLabelValues(mode).Add(float64(bytes))
	}
	c.upstreamLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// RecordTokens adds n delivered tokens.
func (c *Collector) RecordTokens(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.tokens.Add(float64(n))
}

// RecordFrameErrors adds n skipped stream lines.
func (c *Collector) RecordFrameErrors(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.frameErrors.Add(float64(n))
}

// StreamStarted and StreamEnded track open channels.
func (c *Collector) StreamStarted() {
	if c == nil {
		return
	}
	c.activeStreams.Inc()
}

func (c *Collector) StreamEnded() {
	if c == nil {
		return
	}
	c.activeStreams.Dec()
}

// RecordHTTP records one relayd handler invocation.
func (c *Collector) RecordHTTP(route string, code int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordRateLimited counts one refused request.
func (c *Collector) RecordRateLimited(route string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(route).Inc()
}

// Registry exposes the underlying registry for tests and embedding.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
