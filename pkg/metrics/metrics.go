package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Orchestration metrics
	OrchestrationsTotal   *prometheus.CounterVec
	OrchestrationDuration *prometheus.HistogramVec
	ComplexityScore       *prometheus.HistogramVec

	// Capability metrics
	CapabilityInvocations *prometheus.CounterVec
	CapabilityDuration    *prometheus.HistogramVec
	CapabilityRetries     *prometheus.CounterVec
	RateLimitRejections   *prometheus.CounterVec
	BreakerState          *prometheus.GaugeVec
	BreakerTransitions    *prometheus.CounterVec

	// Cache metrics
	CacheOperations *prometheus.CounterVec
	CacheHitRatio   *prometheus.GaugeVec
	CacheEntries    *prometheus.GaugeVec

	// Error metrics
	ErrorsTotal   *prometheus.CounterVec
	EventsDropped prometheus.Counter

	registry *prometheus.Registry
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "governance",
		Subsystem: "",
		Enabled:   true,
	}
}

// NewMetrics creates all metrics and registers them on a registry owned by the returned value
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	ns, sub := config.Namespace, config.Subsystem
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help, Buckets: buckets}, labels)
	}

	latencyBuckets := []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	m := &Metrics{
		HTTPRequestsTotal:    counter("http_requests_total", "Total number of HTTP requests", "method", "path", "status_code"),
		HTTPRequestDuration:  histogram("http_request_duration_seconds", "HTTP request duration in seconds", prometheus.DefBuckets, "method", "path", "status_code"),
		HTTPRequestsInFlight: gauge("http_requests_in_flight", "Number of HTTP requests currently being processed", "method", "path"),

		OrchestrationsTotal:   counter("orchestrations_total", "Total number of orchestrated decisions", "status", "level", "cached"),
		OrchestrationDuration: histogram("orchestration_duration_seconds", "End-to-end orchestration duration in seconds", latencyBuckets, "level"),
		ComplexityScore:       histogram("complexity_score", "Distribution of request complexity scores", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, "level"),

		CapabilityInvocations: counter("capability_invocations_total", "Total number of capability invocations", "capability", "status"),
		CapabilityDuration:    histogram("capability_duration_seconds", "Capability invocation duration in seconds", latencyBuckets, "capability", "status"),
		CapabilityRetries:     counter("capability_retries_total", "Total number of capability retry attempts", "capability"),
		RateLimitRejections:   counter("rate_limit_rejections_total", "Invocations rejected by the rate limiter", "capability"),
		BreakerState:          gauge("circuit_breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)", "capability"),
		BreakerTransitions:    counter("circuit_breaker_transitions_total", "Circuit breaker state transitions", "capability", "to"),

		CacheOperations: counter("cache_operations_total", "Result cache operations", "operation", "result"),
		CacheHitRatio:   gauge("cache_hit_ratio", "Cache hit ratio", "cache_type"),
		CacheEntries:    gauge("cache_entries", "Number of entries in the local cache tier", "cache_type"),

		ErrorsTotal: counter("errors_total", "Total number of errors", "component", "error_type"),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "events_dropped_total",
			Help: "Observability events dropped because the dispatch buffer was full",
		}),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.OrchestrationsTotal,
		m.OrchestrationDuration,
		m.ComplexityScore,
		m.CapabilityInvocations,
		m.CapabilityDuration,
		m.CapabilityRetries,
		m.RateLimitRejections,
		m.BreakerState,
		m.BreakerTransitions,
		m.CacheOperations,
		m.CacheHitRatio,
		m.CacheEntries,
		m.ErrorsTotal,
		m.EventsDropped,
	)

	return m
}

// Registry returns the registry holding every metric, nil when disabled
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.HTTPRequestsTotal == nil {
		return
	}

	statusStr := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// RecordOrchestration records the outcome of one orchestrate call
func (m *Metrics) RecordOrchestration(status, level string, cached bool, score float64, duration time.Duration) {
	if m == nil || m.OrchestrationsTotal == nil {
		return
	}

	m.OrchestrationsTotal.WithLabelValues(status, level, strconv.FormatBool(cached)).Inc()
	if !cached {
		m.OrchestrationDuration.WithLabelValues(level).Observe(duration.Seconds())
		m.ComplexityScore.WithLabelValues(level).Observe(score)
	}
}

// RecordCapabilityInvocation records capability invocation metrics
func (m *Metrics) RecordCapabilityInvocation(capability, status string, duration time.Duration) {
	if m == nil || m.CapabilityInvocations == nil {
		return
	}

	m.CapabilityInvocations.WithLabelValues(capability, status).Inc()
	m.CapabilityDuration.WithLabelValues(capability, status).Observe(duration.Seconds())
}

// RecordRetry records a retry attempt
func (m *Metrics) RecordRetry(capability string) {
	if m == nil || m.CapabilityRetries == nil {
		return
	}
	m.CapabilityRetries.WithLabelValues(capability).Inc()
}

// RecordRateLimitRejection records a rate limiter rejection
func (m *Metrics) RecordRateLimitRejection(capability string) {
	if m == nil || m.RateLimitRejections == nil {
		return
	}
	m.RateLimitRejections.WithLabelValues(capability).Inc()
}

// RecordBreakerTransition records a circuit breaker state change
func (m *Metrics) RecordBreakerTransition(capability, to string) {
	if m == nil || m.BreakerState == nil {
		return
	}

	m.BreakerTransitions.WithLabelValues(capability, to).Inc()
	var value float64
	switch to {
	case "half_open":
		value = 1
	case "open":
		value = 2
	}
	m.BreakerState.WithLabelValues(capability).Set(value)
}

// RecordCacheOperation records a cache operation and its result (hit, miss, ok, error)
func (m *Metrics) RecordCacheOperation(operation, result string) {
	if m == nil || m.CacheOperations == nil {
		return
	}
	m.CacheOperations.WithLabelValues(operation, result).Inc()
}

// UpdateCacheStats updates cache gauges
func (m *Metrics) UpdateCacheStats(cacheType string, hitRatio float64, entries int) {
	if m == nil || m.CacheHitRatio == nil {
		return
	}
	m.CacheHitRatio.WithLabelValues(cacheType).Set(hitRatio)
	m.CacheEntries.WithLabelValues(cacheType).Set(float64(entries))
}

// RecordError records error metrics
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil || m.ErrorsTotal == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordDroppedEvent records an observability event dropped under backpressure
func (m *Metrics) RecordDroppedEvent() {
	if m == nil || m.EventsDropped == nil {
		return
	}
	m.EventsDropped.Inc()
}

// PrometheusMiddleware creates a middleware for Prometheus metrics collection
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.HTTPRequestsInFlight != nil {
			m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Inc()
			defer m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Dec()
		}

		start := time.Now()
		c.Next()
		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
