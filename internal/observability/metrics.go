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
	phaseDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	taskDurationBuckets  = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1}
)

// Metrics holds all Prometheus metric instruments for the engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	WorkflowStartsTotal      *prometheus.CounterVec
	WorkflowCompletionsTotal *prometheus.CounterVec
	WorkflowActiveInstances  *prometheus.GaugeVec

	// Phase metrics
	PhaseExecutionsTotal *prometheus.CounterVec
	PhaseRetriesTotal    *prometheus.CounterVec
	PhaseRollbacksTotal  *prometheus.CounterVec
	PhaseDuration        *prometheus.HistogramVec

	// Task metrics
	TaskExecutionsTotal *prometheus.CounterVec
	TaskDuration        *prometheus.HistogramVec

	// Transition metrics
	TransitionsTotal *prometheus.CounterVec

	// System metrics
	DefinitionsLoaded prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchest_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchest_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		// Workflows
		WorkflowStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchest_workflow_starts_total",
			Help: "Total number of workflow instances started.",
		}, []string{"workflow_id"}),
		WorkflowCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchest_workflow_completions_total",
			Help: "Total number of workflow instances reaching a terminal state.",
		}, []string{"workflow_id", "final_state"}),
		WorkflowActiveInstances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orchest_workflow_active_instances",
			Help: "Number of workflow instances not yet in a terminal state.",
		}, []string{"workflow_id"}),

		// Phases
		PhaseExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchest_phase_executions_total",
			Help: "Total number of phase execution attempts.",
		}, []string{"workflow_id", "phase_id", "status"}),
		PhaseRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchest_phase_retries_total",
			Help: "Total number of phase retries after a failed attempt.",
		}, []string{"workflow_id", "phase_id"}),
		PhaseRollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchest_phase_rollbacks_total",
			Help: "Total number of phase rollbacks.",
		}, []string{"workflow_id", "phase_id"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchest_phase_duration_seconds",
			Help:    "Phase execution duration in seconds.",
			Buckets: phaseDurationBuckets,
		}, []string{"workflow_id", "phase_id"}),

		// Tasks
		TaskExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchest_task_executions_total",
			Help: "Total number of task executions.",
		}, []string{"task_type", "status"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchest_task_duration_seconds",
			Help:    "Task execution duration in seconds.",
			Buckets: taskDurationBuckets,
		}, []string{"task_type"}),

		// Transitions
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchest_transitions_total",
			Help: "Total number of phase transition attempts.",
		}, []string{"workflow_id", "from_phase", "to_phase", "status"}),

		// System
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orchest_definitions_loaded",
			Help: "Number of loaded workflow definitions.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		// Workflows
		m.WorkflowStartsTotal,
		m.WorkflowCompletionsTotal,
		m.WorkflowActiveInstances,
		// Phases
		m.PhaseExecutionsTotal,
		m.PhaseRetriesTotal,
		m.PhaseRollbacksTotal,
		m.PhaseDuration,
		// Tasks
		m.TaskExecutionsTotal,
		m.TaskDuration,
		// Transitions
		m.TransitionsTotal,
		// System
		m.DefinitionsLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordWorkflowStart records a workflow instance start.
func (m *Metrics) RecordWorkflowStart(workflowID string) {
	m.WorkflowStartsTotal.WithLabelValues(workflowID).Inc()
	m.WorkflowActiveInstances.WithLabelValues(workflowID).Inc()
}

// RecordWorkflowCompletion records a workflow instance reaching a terminal state.
func (m *Metrics) RecordWorkflowCompletion(workflowID, finalState string) {
	m.WorkflowCompletionsTotal.WithLabelValues(workflowID, finalState).Inc()
	m.WorkflowActiveInstances.WithLabelValues(workflowID).Dec()
}

// RecordPhaseExecution records a phase execution attempt.
func (m *Metrics) RecordPhaseExecution(workflowID, phaseID, status string, duration time.Duration) {
	m.PhaseExecutionsTotal.WithLabelValues(workflowID, phaseID, status).Inc()
	m.PhaseDuration.WithLabelValues(workflowID, phaseID).Observe(duration.Seconds())
}

// RecordPhaseRetry records a phase retry.
func (m *Metrics) RecordPhaseRetry(workflowID, phaseID string) {
	m.PhaseRetriesTotal.WithLabelValues(workflowID, phaseID).Inc()
}

// RecordPhaseRollback records a phase rollback.
func (m *Metrics) RecordPhaseRollback(workflowID, phaseID string) {
	m.PhaseRollbacksTotal.WithLabelValues(workflowID, phaseID).Inc()
}

// RecordTaskExecution records a task execution.
func (m *Metrics) RecordTaskExecution(taskType, status string, duration time.Duration) {
	m.TaskExecutionsTotal.WithLabelValues(taskType, status).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// RecordTransition records a phase transition attempt.
func (m *Metrics) RecordTransition(workflowID, fromPhase, toPhase, status string) {
	m.TransitionsTotal.WithLabelValues(workflowID, fromPhase, toPhase, status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded workflow definitions.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	m.DefinitionsLoaded.Set(count)
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

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
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
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
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
	return w.ResponseWriter.Write(b)
}
