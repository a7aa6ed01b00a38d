package prometheus

import (
	"strconv"
	"time"

	"agreement-service/pkg/config"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Agreement metrics
	AgreementsCreatedCounter *prometheus.CounterVec
	AgreementStatusCounter   *prometheus.CounterVec

	// Signing session metrics
	SigningSessionsCreatedCounter *prometheus.CounterVec
	SigningSessionsReusedCounter  *prometheus.CounterVec
	SigningDeniedCounter          *prometheus.CounterVec
	SignaturesCompletedCounter    *prometheus.CounterVec

	// Database operation metrics
	DBOperationHistogram *prometheus.HistogramVec

	// Request metrics
	RequestDurationHistogram *prometheus.HistogramVec
	APIRequestCounter        *prometheus.CounterVec
	APIErrorCounter          *prometheus.CounterVec

	// Namespace prefix for metrics
	namespace string
)

// InitMetrics initializes all Prometheus metrics
func InitMetrics(cfg *config.Config) {
	namespace = cfg.Metrics.Prefix

	// Agreement metrics
	AgreementsCreatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agreements_created_total",
			Help:      "Total number of agreements created",
		},
		[]string{"document_type"},
	)

	AgreementStatusCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agreement_status_transitions_total",
			Help:      "Total number of agreement status transitions",
		},
		[]string{"document_type", "status"},
	)

	// Signing session metrics
	SigningSessionsCreatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signing_sessions_created_total",
			Help:      "Total number of signing sessions created",
		},
		[]string{"document_type", "slot"},
	)

	SigningSessionsReusedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signing_sessions_reused_total",
			Help:      "Total number of initiate-signing calls answered with an existing session",
		},
		[]string{"document_type", "slot"},
	)

	SigningDeniedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signing_denied_total",
			Help:      "Total number of denied initiate-signing calls",
		},
		[]string{"reason"},
	)

	SignaturesCompletedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signatures_completed_total",
			Help:      "Total number of captured signatures",
		},
		[]string{"document_type", "position"},
	)

	// Database operation metrics
	DBOperationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Duration of database operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Request metrics
	RequestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "path"},
	)

	APIErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of API errors",
		},
		[]string{"method", "path", "status"},
	)
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Track API request count
			APIRequestCounter.With(prometheus.Labels{
				"method": c.Request().Method,
				"path":   c.Path(),
			}).Inc()

			// Process the request
			err := next(c)

			// Track request duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			RequestDurationHistogram.With(prometheus.Labels{
				"method": c.Request().Method,
				"path":   c.Path(),
				"status": status,
			}).Observe(duration)

			// Track errors
			if c.Response().Status >= 400 {
				APIErrorCounter.With(prometheus.Labels{
					"method": c.Request().Method,
					"path":   c.Path(),
					"status": status,
				}).Inc()
			}

			return err
		}
	}
}

// HandlerFunc returns a HTTP handler for metrics endpoint
func HandlerFunc() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// TrackDBOperation returns a function that tracks database operation duration
func TrackDBOperation(operation string) func(time.Time) {
	return func(startTime time.Time) {
		if DBOperationHistogram == nil {
			return
		}
		duration := time.Since(startTime).Seconds()
		DBOperationHistogram.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// RecordSessionCreated increments the signing sessions created counter
func RecordSessionCreated(documentType, slot string) {
	if SigningSessionsCreatedCounter == nil {
		return
	}
	SigningSessionsCreatedCounter.With(prometheus.Labels{
		"document_type": documentType,
		"slot":          slot,
	}).Inc()
}

// RecordSessionReused increments the signing sessions reused counter
func RecordSessionReused(documentType, slot string) {
	if SigningSessionsReusedCounter == nil {
		return
	}
	SigningSessionsReusedCounter.With(prometheus.Labels{
		"document_type": documentType,
		"slot":          slot,
	}).Inc()
}

// RecordSigningDenied increments the denial counter
func RecordSigningDenied(reason string) {
	if SigningDeniedCounter == nil {
		return
	}
	SigningDeniedCounter.With(prometheus.Labels{"reason": reason}).Inc()
}

// RecordStatusTransition increments the agreement status transition counter
func RecordStatusTransition(documentType, status string) {
	if AgreementStatusCounter == nil {
		return
	}
	AgreementStatusCounter.With(prometheus.Labels{
		"document_type": documentType,
		"status":        status,
	}).Inc()
}

// RecordSignatureCompleted increments the completed signatures counter
func RecordSignatureCompleted(documentType, position string) {
	if SignaturesCompletedCounter == nil {
		return
	}
	SignaturesCompletedCounter.With(prometheus.Labels{
		"document_type": documentType,
		"position":      position,
	}).Inc()
}
