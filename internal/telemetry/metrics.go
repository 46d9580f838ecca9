// Package telemetry provides Prometheus metrics for the decision API.
package telemetry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registered collectors. Constructed once and passed
// explicitly; no package-level registration.
type Metrics struct {
	httpReqs *prometheus.CounterVec
	httpDur  *prometheus.HistogramVec

	Assignments   *prometheus.CounterVec // labels: experiment, path (deterministic|random|existing|skipped)
	GoalEvents    *prometheus.CounterVec // labels: experiment, outcome (tracked|ignored)
	FlowAdvances  *prometheus.CounterVec // labels: flow, outcome
	SegmentScans  prometheus.Counter
}

// New creates and registers the metric set on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpReqs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDur: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		Assignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "experiment_assignments_total",
				Help: "Variant assignment decisions by allocation path",
			},
			[]string{"experiment", "path"},
		),
		GoalEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "experiment_goal_events_total",
				Help: "Goal events received, tracked or ignored",
			},
			[]string{"experiment", "outcome"},
		),
		FlowAdvances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flow_advances_total",
				Help: "Flow step transitions by outcome",
			},
			[]string{"flow", "outcome"},
		),
		SegmentScans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "segment_full_rescans_total",
			Help: "Full profile rescans triggered by segment definition changes",
		}),
	}
	reg.MustRegister(m.httpReqs, m.httpDur, m.Assignments, m.GoalEvents, m.FlowAdvances, m.SegmentScans)
	return m
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		m.httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		m.httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
