package metrics

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
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	complaintsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_submitted_total",
			Help: "Total number of complaints submitted",
		},
		[]string{"agency", "routing"},
	)

	complaintsUnroutable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "complaints_unroutable_total",
			Help: "Submissions blocked because the classifier matched no category",
		},
	)

	complaintTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaint_transitions_total",
			Help: "Total number of accepted complaint transitions",
		},
		[]string{"action", "history_action"},
	)

	complaintTransitionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaint_transitions_rejected_total",
			Help: "Total number of rejected complaint transitions",
		},
		[]string{"action", "code"},
	)

	classifierRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_request_duration_seconds",
			Help:    "External classifier request duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	trackingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_cache_lookups_total",
			Help: "Tracking-code cache lookups",
		},
		[]string{"result"},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Citizen notifications by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	// Database metrics
	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := routePattern(r)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routePattern labels requests by chi route template so IDs and tracking
// codes do not blow up label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// --- Business metric helpers ---

// RecordComplaintSubmitted records a complaint submission. routing is
// "classifier" or "manual".
func RecordComplaintSubmitted(agency, routing string) {
	complaintsSubmitted.WithLabelValues(agency, routing).Inc()
}

// RecordComplaintUnroutable records a submission blocked by routing
func RecordComplaintUnroutable() {
	complaintsUnroutable.Inc()
}

// RecordTransition records an accepted transition
func RecordTransition(action, historyAction string) {
	complaintTransitions.WithLabelValues(action, historyAction).Inc()
}

// RecordTransitionRejected records a rejected transition by error code
func RecordTransitionRejected(action, code string) {
	complaintTransitionsRejected.WithLabelValues(action, code).Inc()
}

// RecordClassifierRequest records a classifier call
func RecordClassifierRequest(outcome string, duration time.Duration) {
	classifierRequestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordCacheLookup records a tracking-code cache hit, miss or error
func RecordCacheLookup(result string) {
	trackingCacheLookups.WithLabelValues(result).Inc()
}

// RecordNotification records a notification delivery attempt
func RecordNotification(channel string, sent bool) {
	status := "failed"
	if sent {
		status = "sent"
	}
	notificationsSent.WithLabelValues(channel, status).Inc()
}

// RecordDBConnections records active database connections
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
