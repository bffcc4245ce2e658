package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	iterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goequity_iterations_total",
		Help: "Monte Carlo iterations by outcome (ok or the error kind)",
	}, []string{"outcome"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goequity_runs_total",
		Help: "Analysis runs by kind, failure mode and status",
	}, []string{"kind", "failure_mode", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "goequity_run_duration_seconds",
		Help:    "Wall-clock duration of analysis runs",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"kind"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goequity_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})
)

// Iteration counts one Monte Carlo iteration. outcome is "ok" or an error kind.
func Iteration(outcome string) {
	iterationsTotal.WithLabelValues(outcome).Inc()
}

// Run records a finished analysis run
func Run(kind, failureMode, status string, elapsed time.Duration) {
	runsTotal.WithLabelValues(kind, failureMode, status).Inc()
	runDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// HTTPRequest counts one served request
func HTTPRequest(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

// Handler exposes the default registry for scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
