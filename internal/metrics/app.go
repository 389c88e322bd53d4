package metrics

import (
	"time"

	"github.com/docgate/docgate/internal/observability"
)

// Metric names
const (
	SubmissionsTotal   = "submissions_total"
	SubmissionDuration = "submission_duration_ms"
	AcquireWait        = "limiter_acquire_wait_ms"
	LimiterAvailable   = "limiter_available"
	LimiterWaiting     = "limiter_waiting"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordSubmission counts a finished submission by outcome and tracks its
// end-to-end duration, including time spent waiting for the limiter.
func RecordSubmission(outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	labels := map[string]string{"outcome": outcome}
	_ = observability.TelemetrySystem.Counter(SubmissionsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(SubmissionDuration, duration, labels)
}

// RecordAcquireWait tracks how long a caller was held by the limiter.
func RecordAcquireWait(policy string, wait time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Histogram(
		AcquireWait,
		wait,
		map[string]string{"policy": policy},
	)
}

// SetLimiterState publishes the limiter's free slots and queue depth.
func SetLimiterState(available, waiting int) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Gauge(LimiterAvailable, float64(available), nil)
	_ = observability.TelemetrySystem.Gauge(LimiterWaiting, float64(waiting), nil)
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	_ = observability.TelemetrySystem.Counter(
		HealthCheckTotal,
		1,
		map[string]string{
			"check":  checkName,
			"status": status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		HealthCheckDuration,
		duration,
		map[string]string{"check": checkName},
	)
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerUptime, float64(seconds), nil)
	}
}
