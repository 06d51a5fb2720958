// Package observability carries the Prometheus metrics and OpenTelemetry
// tracing shared across the HTTP surface and the pipeline services.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by route, method and status
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finmap_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finmap_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// ActiveRequests tracks in-flight HTTP requests
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "finmap_http_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
	)

	// MappingsResolved counts accepted mappings by stage
	MappingsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finmap_mappings_resolved_total",
			Help: "Total number of account mappings accepted, by matching stage",
		},
		[]string{"source", "statement_type"},
	)

	// MappingsUnresolved counts line items left unmapped after a resolve pass
	MappingsUnresolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finmap_mappings_unresolved_total",
			Help: "Total number of line items left unmapped after a resolve pass",
		},
		[]string{"statement_type"},
	)

	// BalancesWritten counts balance upserts by origin
	BalancesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finmap_balances_written_total",
			Help: "Total number of balance rows written",
		},
		[]string{"origin", "statement_type"},
	)
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// MetricsMiddleware records request counts, durations and in-flight gauge for
// every route. Route templates come from the mux route, keeping label
// cardinality bounded.
func MetricsMiddleware(routeName func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeName(r)

			ActiveRequests.Inc()
			defer ActiveRequests.Dec()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		})
	}
}
