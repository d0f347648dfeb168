package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	fetchDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	queryDurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}
	bodySizeBuckets      = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Engine metrics
	QueryDuration   *prometheus.HistogramVec
	NavigationTotal *prometheus.CounterVec

	// Data source metrics
	FetchTotal                    *prometheus.CounterVec
	FetchDuration                 *prometheus.HistogramVec
	StaleResponsesTotal           *prometheus.CounterVec
	DataSourceCircuitBreakerState *prometheus.GaugeVec
	DataSourceRetriesTotal        *prometheus.CounterVec
	CacheHitsTotal                *prometheus.CounterVec
	CacheMissesTotal              *prometheus.CounterVec

	// Session metrics
	SessionsActive       prometheus.Gauge
	SessionsExpiredTotal prometheus.Counter

	// System metrics
	DefinitionReloadTotal *prometheus.CounterVec
	ScreensLoaded         prometheus.Gauge
	RateLimitedTotal      prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsdesk_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsdesk_query_duration_seconds",
			Help:    "List query recomputation duration in seconds.",
			Buckets: queryDurationBuckets,
		}, []string{"screen"}),
		NavigationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_navigation_total",
			Help: "Total view stack transitions.",
		}, []string{"screen", "op"}),

		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_fetch_total",
			Help: "Total data source fetches.",
		}, []string{"screen", "status"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsdesk_fetch_duration_seconds",
			Help:    "Data source fetch duration in seconds.",
			Buckets: fetchDurationBuckets,
		}, []string{"screen"}),
		StaleResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_stale_responses_total",
			Help: "Fetch responses dropped because a newer request superseded them.",
		}, []string{"screen"}),
		DataSourceCircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opsdesk_datasource_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"screen"}),
		DataSourceRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_datasource_retries_total",
			Help: "Total number of backend fetch retries.",
		}, []string{"screen"}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_cache_hits_total",
			Help: "Total fetch cache hits.",
		}, []string{"screen"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_cache_misses_total",
			Help: "Total fetch cache misses.",
		}, []string{"screen"}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opsdesk_sessions_active",
			Help: "Number of open screen sessions.",
		}),
		SessionsExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdesk_sessions_expired_total",
			Help: "Total screen sessions closed by the idle sweep.",
		}),

		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		ScreensLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opsdesk_screens_loaded",
			Help: "Number of loaded screen definitions.",
		}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdesk_rate_limited_total",
			Help: "Total requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSizeBytes,
		m.QueryDuration,
		m.NavigationTotal,
		m.FetchTotal,
		m.FetchDuration,
		m.StaleResponsesTotal,
		m.DataSourceCircuitBreakerState,
		m.DataSourceRetriesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SessionsActive,
		m.SessionsExpiredTotal,
		m.DefinitionReloadTotal,
		m.ScreensLoaded,
		m.RateLimitedTotal,
	)

	return m
}

// --- Recording helpers ---
//
// Every helper is a no-op on a nil *Metrics so components can run without
// a registry in tests.

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, respSize int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordQuery records one list query recomputation.
func (m *Metrics) RecordQuery(screen string, duration time.Duration) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(screen).Observe(duration.Seconds())
}

// RecordNavigation records a view stack transition (push, replace, pop, close, fallback).
func (m *Metrics) RecordNavigation(screen, op string) {
	if m == nil {
		return
	}
	m.NavigationTotal.WithLabelValues(screen, op).Inc()
}

// RecordFetch records a data source fetch with status "ok" or "error".
func (m *Metrics) RecordFetch(screen, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(screen, status).Inc()
	m.FetchDuration.WithLabelValues(screen).Observe(duration.Seconds())
}

// RecordStaleResponse records a fetch response dropped by the sequence guard.
func (m *Metrics) RecordStaleResponse(screen string) {
	if m == nil {
		return
	}
	m.StaleResponsesTotal.WithLabelValues(screen).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state for a screen's source.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetCircuitBreakerState(screen string, state float64) {
	if m == nil {
		return
	}
	m.DataSourceCircuitBreakerState.WithLabelValues(screen).Set(state)
}

// RecordRetry records a backend fetch retry.
func (m *Metrics) RecordRetry(screen string) {
	if m == nil {
		return
	}
	m.DataSourceRetriesTotal.WithLabelValues(screen).Inc()
}

// RecordCacheHit records a fetch cache hit.
func (m *Metrics) RecordCacheHit(screen string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(screen).Inc()
}

// RecordCacheMiss records a fetch cache miss.
func (m *Metrics) RecordCacheMiss(screen string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(screen).Inc()
}

// SetSessionsActive sets the number of open sessions.
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// RecordSessionsExpired records sessions closed by the idle sweep.
func (m *Metrics) RecordSessionsExpired(count int) {
	if m == nil {
		return
	}
	m.SessionsExpiredTotal.Add(float64(count))
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	if m == nil {
		return
	}
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetScreensLoaded sets the number of loaded screens.
func (m *Metrics) SetScreensLoaded(count int) {
	if m == nil {
		return
	}
	m.ScreensLoaded.Set(float64(count))
}

// RecordRateLimited records a rejected request.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	w.written = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
