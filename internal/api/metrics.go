package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HLeNam/user-registration-system-backend/internal/auth"
)

const metricsNamespace = "authd"

// Outcome label values for authd_auth_outcomes_total.
const (
	outcomeSuccess = "success"
	outcomeExpired = "expired"
)

// Metrics holds the Prometheus collectors exposed on the metrics path.
// It doubles as an audit writer so session outcomes are counted from the
// same event stream the audit trail is built from.
type Metrics struct {
	registry        *prometheus.Registry
	authOutcomes    *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them, together with the
// Go runtime and process collectors, on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_outcomes_total",
			Help:      "Session operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.authOutcomes,
		m.requestsTotal,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Write counts one session event. It satisfies audit.Writer.
func (m *Metrics) Write(_ context.Context, event auth.Event) error {
	operation, outcome := eventOutcome(event)
	if operation == "" {
		return nil
	}
	m.authOutcomes.WithLabelValues(operation, outcome).Inc()
	return nil
}

// eventOutcome maps an event to its (operation, outcome) labels. Reasons
// come from a fixed set, so label cardinality stays bounded.
func eventOutcome(event auth.Event) (operation, outcome string) {
	switch event.Type {
	case auth.EventRegistered:
		return "register", outcomeSuccess
	case auth.EventLogin:
		return "login", outcomeSuccess
	case auth.EventLoginFailed:
		return "login", event.Reason
	case auth.EventRotated:
		return "refresh", outcomeSuccess
	case auth.EventRotationRejected:
		return "refresh", event.Reason
	case auth.EventRenewalExpired:
		return "refresh", outcomeExpired
	case auth.EventLogout:
		return "logout", outcomeSuccess
	default:
		return "", ""
	}
}

// metricsMiddleware records request counts and latency by route pattern.
// Unmatched requests are labelled "unmatched" to keep cardinality bounded.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		s.metrics.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		s.metrics.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
