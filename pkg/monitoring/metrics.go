package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code", "service"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	// Reminder pipeline metrics
	remindersClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_claimed_total",
			Help: "Total number of reminder claims won, by delivery mechanism",
		},
		[]string{"mechanism", "service"},
	)

	remindersSuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_suppressed_total",
			Help: "Total number of duplicate reminder registrations suppressed by the claim guard",
		},
		[]string{"mechanism", "service"},
	)

	alarmsRegisteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alarms_registered_total",
			Help: "Total number of exact alarms registered",
		},
		[]string{"service"},
	)

	notificationsPostedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_posted_total",
			Help: "Total number of notifications posted",
		},
		[]string{"status", "service"},
	)

	scanCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_scan_cycles_total",
			Help: "Total number of reminder scan cycles",
		},
		[]string{"mechanism", "status", "service"},
	)

	// Calendar mirror metrics
	calendarSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_sync_total",
			Help: "Total number of calendar mirror operations",
		},
		[]string{"operation", "status", "service"},
	)

	// Database metrics
	dbQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"query_type", "service"},
	)
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct {
	serviceName string
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	// Register metrics
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		remindersClaimedTotal,
		remindersSuppressedTotal,
		alarmsRegisteredTotal,
		notificationsPostedTotal,
		scanCyclesTotal,
		calendarSyncTotal,
		dbQueryDuration,
	)

	return &MetricsCollector{
		serviceName: serviceName,
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordReminderClaim records the outcome of a reminder-sent claim attempt
func (m *MetricsCollector) RecordReminderClaim(mechanism string, won bool) {
	if won {
		remindersClaimedTotal.WithLabelValues(mechanism, m.serviceName).Inc()
	} else {
		remindersSuppressedTotal.WithLabelValues(mechanism, m.serviceName).Inc()
	}
}

// RecordAlarmRegistered records an exact-alarm registration
func (m *MetricsCollector) RecordAlarmRegistered() {
	alarmsRegisteredTotal.WithLabelValues(m.serviceName).Inc()
}

// RecordNotificationPosted records a notification post attempt
func (m *MetricsCollector) RecordNotificationPosted(status string) {
	notificationsPostedTotal.WithLabelValues(status, m.serviceName).Inc()
}

// RecordScanCycle records one pass of a reminder scan mechanism
func (m *MetricsCollector) RecordScanCycle(mechanism, status string) {
	scanCyclesTotal.WithLabelValues(mechanism, status, m.serviceName).Inc()
}

// RecordCalendarSync records a calendar mirror operation
func (m *MetricsCollector) RecordCalendarSync(operation, status string) {
	calendarSyncTotal.WithLabelValues(operation, status, m.serviceName).Inc()
}

// RecordDBQuery records database query metrics
func (m *MetricsCollector) RecordDBQuery(queryType string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(queryType, m.serviceName).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware creates middleware for HTTP request metrics
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		statusCode := strconv.Itoa(wrapper.statusCode)

		m.RecordHTTPRequest(r.Method, r.URL.Path, statusCode, duration)
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
