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
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	handlerDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 30, 120}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Transition metrics
	TransitionsTotal       *prometheus.CounterVec
	TransitionDuration     *prometheus.HistogramVec
	TransitionRejections   *prometheus.CounterVec
	ResetsTotal            *prometheus.CounterVec
	ActivitiesInProgress   *prometheus.GaugeVec

	// Handler metrics
	HandlerExecutionsTotal *prometheus.CounterVec
	HandlerDuration        *prometheus.HistogramVec
	HandlerRetriesTotal    *prometheus.CounterVec

	// SLA metrics
	SLARecordsOpen    prometheus.Gauge
	SLABreachesTotal  *prometheus.CounterVec
	SweepDuration     prometheus.Histogram

	// Escalation metrics
	EscalationsTotal   *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec

	// Catalog metrics
	CatalogReloadTotal      *prometheus.CounterVec
	CatalogActivitiesLoaded prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcycle_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regcycle_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regcycle_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regcycle_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Transitions
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcycle_transitions_total",
			Help: "Total number of applied activity transitions.",
		}, []string{"phase", "target"}),
		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regcycle_transition_duration_seconds",
			Help:    "Transition call duration in seconds, handler execution included.",
			Buckets: handlerDurationBuckets,
		}, []string{"phase", "target"}),
		TransitionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcycle_transition_rejections_total",
			Help: "Total number of rejected transitions by error code.",
		}, []string{"phase", "code"}),
		ResetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcycle_resets_total",
			Help: "Total number of administrative activity resets.",
		}, []string{"phase"}),
		ActivitiesInProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regcycle_activities_in_progress",
			Help: "Number of activity instances currently in progress.",
		}, []string{"phase"}),

		// Handlers
		HandlerExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcycle_handler_executions_total",
			Help: "Total number of activity handler executions.",
		}, []string{"phase", "kind", "status"}),
		HandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regcycle_handler_duration_seconds",
			Help:    "Handler execution duration in seconds.",
			Buckets: handlerDurationBuckets,
		}, []string{"phase", "kind"}),
		HandlerRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcycle_handler_retries_total",
			Help: "Total number of automated handler retry attempts.",
		}, []string{"phase", "kind"}),

		// SLA
		SLARecordsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "regcycle_sla_records_open",
			Help: "Number of SLA records currently being tracked.",
		}),
		SLABreachesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcycle_sla_breaches_total",
			Help: "Total number of SLA breaches observed by the sweep.",
		}, []string{"phase"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "regcycle_sweep_duration_seconds",
			Help:    "Breach sweep duration in seconds.",
			Buckets: httpDurationBuckets,
		}),

		// Escalations
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcycle_escalations_total",
			Help: "Total number of escalation events fired.",
		}, []string{"level"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcycle_notifications_total",
			Help: "Total number of escalation notification attempts by outcome.",
		}, []string{"outcome"}),

		// Catalog
		CatalogReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcycle_catalog_reload_total",
			Help: "Total catalog loads by status.",
		}, []string{"status"}),
		CatalogActivitiesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "regcycle_catalog_activities_loaded",
			Help: "Number of activity definitions in the loaded catalog.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Transitions
		m.TransitionsTotal,
		m.TransitionDuration,
		m.TransitionRejections,
		m.ResetsTotal,
		m.ActivitiesInProgress,
		// Handlers
		m.HandlerExecutionsTotal,
		m.HandlerDuration,
		m.HandlerRetriesTotal,
		// SLA
		m.SLARecordsOpen,
		m.SLABreachesTotal,
		m.SweepDuration,
		// Escalations
		m.EscalationsTotal,
		m.NotificationsTotal,
		// Catalog
		m.CatalogReloadTotal,
		m.CatalogActivitiesLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordTransition records an applied transition.
func (m *Metrics) RecordTransition(phase, target string, duration time.Duration) {
	m.TransitionsTotal.WithLabelValues(phase, target).Inc()
	m.TransitionDuration.WithLabelValues(phase, target).Observe(duration.Seconds())
}

// RecordTransitionRejection records a rejected transition by error code.
func (m *Metrics) RecordTransitionRejection(phase, code string) {
	m.TransitionRejections.WithLabelValues(phase, code).Inc()
}

// RecordReset records an administrative reset.
func (m *Metrics) RecordReset(phase string) {
	m.ResetsTotal.WithLabelValues(phase).Inc()
}

// RecordHandlerExecution records one handler execution.
func (m *Metrics) RecordHandlerExecution(phase, kind, status string, duration time.Duration) {
	m.HandlerExecutionsTotal.WithLabelValues(phase, kind, status).Inc()
	m.HandlerDuration.WithLabelValues(phase, kind).Observe(duration.Seconds())
}

// RecordHandlerRetry records an automated handler retry attempt.
func (m *Metrics) RecordHandlerRetry(phase, kind string) {
	m.HandlerRetriesTotal.WithLabelValues(phase, kind).Inc()
}

// SetSLARecordsOpen sets the number of open SLA records.
func (m *Metrics) SetSLARecordsOpen(count float64) {
	m.SLARecordsOpen.Set(count)
}

// RecordSLABreach records a breach observed by the sweep.
func (m *Metrics) RecordSLABreach(phase string) {
	m.SLABreachesTotal.WithLabelValues(phase).Inc()
}

// RecordSweep records one breach sweep run.
func (m *Metrics) RecordSweep(duration time.Duration) {
	m.SweepDuration.Observe(duration.Seconds())
}

// RecordEscalation records a fired escalation event.
func (m *Metrics) RecordEscalation(level int) {
	m.EscalationsTotal.WithLabelValues(strconv.Itoa(level)).Inc()
}

// RecordNotification records one notification attempt outcome.
func (m *Metrics) RecordNotification(delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	m.NotificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordCatalogReload records a catalog load.
func (m *Metrics) RecordCatalogReload(status string) {
	m.CatalogReloadTotal.WithLabelValues(status).Inc()
}

// SetCatalogActivitiesLoaded sets the number of loaded activity definitions.
func (m *Metrics) SetCatalogActivitiesLoaded(count float64) {
	m.CatalogActivitiesLoaded.Set(count)
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

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
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
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
