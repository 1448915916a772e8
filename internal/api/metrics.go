package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors are package-level so plan handlers can record outcomes;
// each router registers them into its own registry, which keeps
// repeated router construction (tests) from tripping duplicate
// registration.
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plate_planner_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "plate_planner_http_request_duration_seconds",
			Help: "Duration of HTTP request handling",
		},
		[]string{"method", "path"},
	)
	planOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plate_planner_plan_builds_total",
			Help: "Total number of layout plan builds by outcome",
		},
		[]string{"outcome"},
	)
)

func observePlanOutcome(outcome string) {
	planOutcomes.WithLabelValues(outcome).Inc()
}

// newMetricsHandler builds the /metrics endpoint backed by a dedicated
// registry holding the service collectors.
func newMetricsHandler() http.Handler {
	registry := prometheus.NewRegistry()
	for _, collector := range []prometheus.Collector{httpRequestsTotal, httpRequestDuration, planOutcomes} {
		if err := registry.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
