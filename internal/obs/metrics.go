package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Lifecycle metrics for the alert/ticket state machine.
var (
	AlertsReported = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_alerts_reported_total",
		Help: "Alerts reported by end users or detectors.",
	})

	AlertsClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_alerts_classified_total",
			Help: "Alerts classified by analysts, by resulting type.",
		},
		[]string{"type"},
	)

	TicketTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_ticket_transitions_total",
			Help: "Ticket status transitions, by target status.",
		},
		[]string{"status"},
	)

	PollFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_poll_failures_total",
		Help: "Synchronization poll ticks that failed.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		AlertsReported, AlertsClassified, TicketTransitions, PollFailures,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CanonicalPath collapses resource identifiers so metric labels stay
// bounded. Unrecognized shapes pass through unchanged.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if rest, ok := strings.CutPrefix(path, "/api/alerts/"); ok && rest != "" {
		if id, found := strings.CutSuffix(rest, "/review"); found && id != "" && !strings.Contains(id, "/") {
			return "/api/alerts/:id/review"
		}
		if !strings.Contains(rest, "/") {
			return "/api/alerts/:id"
		}
	}
	if rest, ok := strings.CutPrefix(path, "/api/ticket/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/ticket/:id"
	}
	return path
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
