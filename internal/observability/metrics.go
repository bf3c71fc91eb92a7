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
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	actionDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	bodySizeBuckets       = []float64{100, 1024, 10240, 102400, 1048576, 5242880}
)

// Metrics holds all Prometheus metric instruments for the forms engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Action metrics
	ActionRunsTotal          *prometheus.CounterVec
	ActionDuration           *prometheus.HistogramVec
	ActionValidationFailures *prometheus.CounterVec
	ActionRowsReturned       *prometheus.HistogramVec

	// Form lifecycle metrics
	FormsCreatedTotal   prometheus.Counter
	FormsDeletedTotal   prometheus.Counter
	ColumnsCreatedTotal *prometheus.CounterVec
	PartialStatesTotal  *prometheus.CounterVec

	// File metrics
	FileOperationsTotal *prometheus.CounterVec
	FileSizeBytes       prometheus.Histogram

	// Store metrics
	StoreErrorsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbase_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formbase_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formbase_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formbase_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Actions
		ActionRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbase_action_runs_total",
			Help: "Total number of action executions.",
		}, []string{"action_id", "status"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formbase_action_duration_seconds",
			Help:    "Action execution duration in seconds.",
			Buckets: actionDurationBuckets,
		}, []string{"action_id"}),
		ActionValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbase_action_validation_failures_total",
			Help: "Total number of action parameter validation failures.",
		}, []string{"action_id"}),
		ActionRowsReturned: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formbase_action_rows_returned",
			Help:    "Rows returned per row-producing action.",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000},
		}, []string{"action_id"}),

		// Form lifecycle
		FormsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formbase_forms_created_total",
			Help: "Total forms created.",
		}),
		FormsDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formbase_forms_deleted_total",
			Help: "Total forms deleted.",
		}),
		ColumnsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbase_columns_created_total",
			Help: "Total form columns created.",
		}, []string{"column_type"}),
		PartialStatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbase_partial_states_total",
			Help: "Multi-step operations that failed after committing an earlier step.",
		}, []string{"operation"}),

		// Files
		FileOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbase_file_operations_total",
			Help: "Total file save, read, and delete operations.",
		}, []string{"operation", "status"}),
		FileSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "formbase_file_size_bytes",
			Help:    "Size of saved files in bytes.",
			Buckets: bodySizeBuckets,
		}),

		// Store
		StoreErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbase_store_errors_total",
			Help: "Total store infrastructure errors.",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.ActionRunsTotal,
		m.ActionDuration,
		m.ActionValidationFailures,
		m.ActionRowsReturned,
		m.FormsCreatedTotal,
		m.FormsDeletedTotal,
		m.ColumnsCreatedTotal,
		m.PartialStatesTotal,
		m.FileOperationsTotal,
		m.FileSizeBytes,
		m.StoreErrorsTotal,
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

// RecordActionRun records one action execution.
func (m *Metrics) RecordActionRun(actionID, status string, duration time.Duration) {
	m.ActionRunsTotal.WithLabelValues(actionID, status).Inc()
	m.ActionDuration.WithLabelValues(actionID).Observe(duration.Seconds())
}

// RecordActionValidationFailure records a parameter validation failure.
func (m *Metrics) RecordActionValidationFailure(actionID string) {
	m.ActionValidationFailures.WithLabelValues(actionID).Inc()
}

// RecordActionRows records the row count of a row-producing action.
func (m *Metrics) RecordActionRows(actionID string, rows int) {
	m.ActionRowsReturned.WithLabelValues(actionID).Observe(float64(rows))
}

// RecordFormCreated records a form creation.
func (m *Metrics) RecordFormCreated() {
	m.FormsCreatedTotal.Inc()
}

// RecordFormDeleted records a form deletion.
func (m *Metrics) RecordFormDeleted() {
	m.FormsDeletedTotal.Inc()
}

// RecordColumnCreated records a column creation by type.
func (m *Metrics) RecordColumnCreated(columnType string) {
	m.ColumnsCreatedTotal.WithLabelValues(columnType).Inc()
}

// RecordPartialState records a multi-step operation left partially applied.
func (m *Metrics) RecordPartialState(operation string) {
	m.PartialStatesTotal.WithLabelValues(operation).Inc()
}

// RecordFileOperation records a file save, read, or delete.
func (m *Metrics) RecordFileOperation(operation, status string) {
	m.FileOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordFileSize records the size of a saved file.
func (m *Metrics) RecordFileSize(bytes int64) {
	m.FileSizeBytes.Observe(float64(bytes))
}

// RecordStoreError records a store infrastructure error.
func (m *Metrics) RecordStoreError(operation string) {
	m.StoreErrorsTotal.WithLabelValues(operation).Inc()
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
