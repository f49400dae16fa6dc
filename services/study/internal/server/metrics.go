package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "study"

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	aiCalls     *prometheus.HistogramVec
	steps       *prometheus.CounterVec
	rateLimited prometheus.Counter
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		aiCalls: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "ai_call_duration_seconds",
			Help:      "AI gateway round trips by operation and outcome.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"op", "outcome"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "document_steps_total",
			Help:      "Document processing steps by step and outcome.",
		}, []string{"step", "outcome"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-user rate limiter.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest matches util.RequestObserver.
func (m *Metrics) ObserveRequest(r *http.Request, status int, elapsed time.Duration) {
	route := routeLabel(r.URL.Path)
	m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveAICall matches ai.CallObserver.
func (m *Metrics) ObserveAICall(op string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.aiCalls.WithLabelValues(op, outcome).Observe(elapsed.Seconds())
}

// ObserveStep matches app.StepObserver.
func (m *Metrics) ObserveStep(step, outcome string) {
	m.steps.WithLabelValues(step, outcome).Inc()
}

// routeLabel collapses resource ids so label cardinality stays bounded.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/quizzes/"):
		if strings.HasSuffix(path, "/results") {
			return "/api/quizzes/{id}/results"
		}
		return "/api/quizzes/{id}"
	case strings.HasPrefix(path, "/api/conversations/"):
		return "/api/conversations/{id}/messages"
	case strings.HasPrefix(path, "/api/jobs/"):
		return "/api/jobs/{id}"
	case strings.HasPrefix(path, "/api/documents/"):
		return "/api/documents/{id}/url"
	}
	switch path {
	case "/healthz", "/metrics",
		"/api/generate-flashcards", "/api/generate-quiz", "/api/process-document",
		"/api/documents", "/api/flashcards", "/api/quizzes",
		"/api/chat", "/api/conversations", "/api/progress":
		return path
	}
	return "other"
}
