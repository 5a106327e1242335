package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secretbroker_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "secretbroker_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	secretsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secretbroker_secrets_created_total",
		Help: "Secrets created, by type.",
	}, []string{"type"})

	secretsRotated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secretbroker_secrets_rotated_total",
		Help: "Secrets rotated, by type.",
	}, []string{"type"})

	secretsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secretbroker_secrets_deleted_total",
		Help: "Secrets deleted, by type.",
	}, []string{"type"})

	policyUpdateWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "secretbroker_policy_update_warnings_total",
		Help: "Access provisioning steps that failed after a secret was stored.",
	})
)

// MetricsHandler exposes the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		path := routePattern(r)
		requestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rr.statusCode)).Inc()
		requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the chi route pattern so high-cardinality secret
// IDs do not blow up the metric label space.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pat := rctx.RoutePattern(); pat != "" {
			return pat
		}
	}
	return r.URL.Path
}
