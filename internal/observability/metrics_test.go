package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	expected := []string{
		"regcycle_http_requests_total",
		"regcycle_http_request_duration_seconds",
		"regcycle_http_request_size_bytes",
		"regcycle_http_response_size_bytes",
		"regcycle_transitions_total",
		"regcycle_transition_duration_seconds",
		"regcycle_transition_rejections_total",
		"regcycle_resets_total",
		"regcycle_activities_in_progress",
		"regcycle_handler_executions_total",
		"regcycle_handler_duration_seconds",
		"regcycle_handler_retries_total",
		"regcycle_sla_records_open",
		"regcycle_sla_breaches_total",
		"regcycle_sweep_duration_seconds",
		"regcycle_escalations_total",
		"regcycle_notifications_total",
		"regcycle_catalog_reload_total",
		"regcycle_catalog_activities_loaded",
	}

	// Record a value for each metric so they appear in Gather.
	m.RecordHTTPRequest("GET", "/test", 200, time.Millisecond, 0, 100)
	m.RecordTransition("planning", "COMPLETED", time.Millisecond)
	m.RecordTransitionRejection("planning", "PRECONDITION_NOT_MET")
	m.RecordReset("planning")
	m.ActivitiesInProgress.WithLabelValues("planning").Set(1)
	m.RecordHandlerExecution("planning", "task", "ok", time.Millisecond)
	m.RecordHandlerRetry("planning", "task")
	m.SetSLARecordsOpen(3)
	m.RecordSLABreach("execution")
	m.RecordSweep(time.Millisecond)
	m.RecordEscalation(2)
	m.RecordNotification(true)
	m.RecordCatalogReload("success")
	m.SetCatalogActivitiesLoaded(12)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/api/processes/{cycleId}/{reportId}/sla", 200, 50*time.Millisecond, 0, 1024)
	m.RecordHTTPRequest("GET", "/api/processes/{cycleId}/{reportId}/sla", 200, 100*time.Millisecond, 0, 2048)
	m.RecordHTTPRequest("POST", "/api/sweep", 500, 200*time.Millisecond, 512, 256)

	// Verify counter values.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/processes/{cycleId}/{reportId}/sla", "200"))
	if val != 2 {
		t.Errorf("GET requests = %v, want 2", val)
	}
	val = testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/sweep", "500"))
	if val != 1 {
		t.Errorf("POST requests = %v, want 1", val)
	}
}

func TestRecordTransition(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordTransition("planning", "IN_PROGRESS", 10*time.Millisecond)
	m.RecordTransition("planning", "IN_PROGRESS", 20*time.Millisecond)
	m.RecordTransition("planning", "COMPLETED", 5*time.Millisecond)

	val := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("planning", "IN_PROGRESS"))
	if val != 2 {
		t.Errorf("IN_PROGRESS transitions = %v, want 2", val)
	}
	val = testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("planning", "COMPLETED"))
	if val != 1 {
		t.Errorf("COMPLETED transitions = %v, want 1", val)
	}

	count := testutil.CollectAndCount(m.TransitionDuration)
	if count == 0 {
		t.Error("expected transition duration histogram to have observations")
	}
}

func TestRecordTransitionRejection(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordTransitionRejection("planning", "INVALID_TRANSITION")
	m.RecordTransitionRejection("planning", "INVALID_TRANSITION")
	m.RecordTransitionRejection("execution", "PRECONDITION_NOT_MET")

	val := testutil.ToFloat64(m.TransitionRejections.WithLabelValues("planning", "INVALID_TRANSITION"))
	if val != 2 {
		t.Errorf("rejections = %v, want 2", val)
	}
}

func TestRecordHandlerExecution(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHandlerExecution("execution", "task", "ok", 150*time.Millisecond)
	m.RecordHandlerExecution("execution", "task", "error", 50*time.Millisecond)

	ok := testutil.ToFloat64(m.HandlerExecutionsTotal.WithLabelValues("execution", "task", "ok"))
	if ok != 1 {
		t.Errorf("ok count = %v, want 1", ok)
	}
	failed := testutil.ToFloat64(m.HandlerExecutionsTotal.WithLabelValues("execution", "task", "error"))
	if failed != 1 {
		t.Errorf("error count = %v, want 1", failed)
	}
}

func TestRecordHandlerRetry(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHandlerRetry("execution", "task")
	m.RecordHandlerRetry("execution", "task")

	val := testutil.ToFloat64(m.HandlerRetriesTotal.WithLabelValues("execution", "task"))
	if val != 2 {
		t.Errorf("retries = %v, want 2", val)
	}
}

func TestSLAMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetSLARecordsOpen(7)
	val := testutil.ToFloat64(m.SLARecordsOpen)
	if val != 7 {
		t.Errorf("open records = %v, want 7", val)
	}

	m.RecordSLABreach("execution")
	val = testutil.ToFloat64(m.SLABreachesTotal.WithLabelValues("execution"))
	if val != 1 {
		t.Errorf("breaches = %v, want 1", val)
	}

	m.RecordSweep(10 * time.Millisecond)
	count := testutil.CollectAndCount(m.SweepDuration)
	if count == 0 {
		t.Error("expected sweep duration histogram to have observations")
	}
}

func TestEscalationMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordEscalation(1)
	m.RecordEscalation(1)
	m.RecordEscalation(3)

	val := testutil.ToFloat64(m.EscalationsTotal.WithLabelValues("1"))
	if val != 2 {
		t.Errorf("level 1 escalations = %v, want 2", val)
	}
	val = testutil.ToFloat64(m.EscalationsTotal.WithLabelValues("3"))
	if val != 1 {
		t.Errorf("level 3 escalations = %v, want 1", val)
	}

	m.RecordNotification(true)
	m.RecordNotification(false)
	delivered := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("delivered"))
	if delivered != 1 {
		t.Errorf("delivered = %v, want 1", delivered)
	}
	failed := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("failed"))
	if failed != 1 {
		t.Errorf("failed = %v, want 1", failed)
	}
}

func TestCatalogMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCatalogReload("success")
	m.RecordCatalogReload("failure")

	success := testutil.ToFloat64(m.CatalogReloadTotal.WithLabelValues("success"))
	if success != 1 {
		t.Errorf("reload success = %v, want 1", success)
	}
	failure := testutil.ToFloat64(m.CatalogReloadTotal.WithLabelValues("failure"))
	if failure != 1 {
		t.Errorf("reload failure = %v, want 1", failure)
	}

	m.SetCatalogActivitiesLoaded(15)
	val := testutil.ToFloat64(m.CatalogActivitiesLoaded)
	if val != 15 {
		t.Errorf("activities loaded = %v, want 15", val)
	}
}

func TestMetricsMiddleware_recordsRequestMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Build a chi router so route patterns are captured.
	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/api/processes/{cycleId}/{reportId}/sla", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/processes/c-1/r-1/sla", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// Verify metrics were recorded with the route pattern, not the actual path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/processes/{cycleId}/{reportId}/sla", "200"))
	if val != 1 {
		t.Errorf("requests total = %v, want 1", val)
	}
}

func TestMetricsMiddleware_capturesResponseSize(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthy"))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// Response size should have been recorded.
	count := testutil.CollectAndCount(m.HTTPResponseSizeBytes)
	if count == 0 {
		t.Error("expected response size histogram to have observations")
	}
}

func TestMetricsMiddleware_capturesStatusCode(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Post("/api/sweep", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/sweep", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/sweep", "400"))
	if val != 1 {
		t.Errorf("400 requests = %v, want 1", val)
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Use middleware directly without chi router.
	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/raw/path", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Without chi, should fall back to raw path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/raw/path", "200"))
	if val != 1 {
		t.Errorf("raw path requests = %v, want 1", val)
	}
}

func TestHandler_servesMetrics(t *testing.T) {
	handler := Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	// Prometheus handler should return at least go runtime metrics.
	if !strings.Contains(body, "go_") {
		t.Error("metrics response should contain go runtime metrics")
	}
}

func TestHistogramBuckets(t *testing.T) {
	// Verify bucket configurations are correct.
	if len(httpDurationBuckets) != 11 {
		t.Errorf("httpDurationBuckets length = %d, want 11", len(httpDurationBuckets))
	}
	if len(handlerDurationBuckets) != 11 {
		t.Errorf("handlerDurationBuckets length = %d, want 11", len(handlerDurationBuckets))
	}
	if len(bodySizeBuckets) != 5 {
		t.Errorf("bodySizeBuckets length = %d, want 5", len(bodySizeBuckets))
	}

	// Verify buckets are sorted ascending.
	for i := 1; i < len(httpDurationBuckets); i++ {
		if httpDurationBuckets[i] <= httpDurationBuckets[i-1] {
			t.Errorf("httpDurationBuckets not sorted at index %d", i)
		}
	}
}
