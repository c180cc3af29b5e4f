// Package metrics exposes Prometheus instrumentation for the Controller's
// dispatch core and its admin/observability surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskdispatch_dispatches_total",
			Help: "Total number of tasks dispatched to a worker",
		},
		[]string{"kind"}, // "new" or "resume"
	)

	CompletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskdispatch_completions_total",
			Help: "Total number of tasks that reached Success",
		},
	)

	KillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskdispatch_kills_total",
			Help: "Total number of tasks transitioned to Killed",
		},
		[]string{"reason"}, // "disconnect" or "sweep"
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskdispatch_sweep_duration_seconds",
			Help:    "Liveness sweep duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskdispatch_active_workers",
			Help: "Current number of connected workers",
		},
	)

	OpenTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskdispatch_open_tasks",
			Help: "Current number of non-Success tasks in the Controller's table",
		},
	)

	// HTTP metrics (admin surface)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskdispatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskdispatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Redis metrics (optional event mirror)
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskdispatch_redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
		[]string{"operation"},
	)

	RedisErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskdispatch_redis_errors_total",
			Help: "Total number of Redis errors",
		},
		[]string{"operation"},
	)

	// WebSocket metrics (live event stream)
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskdispatch_websocket_connections",
			Help: "Current number of admin WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskdispatch_websocket_messages_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)
)

// RecordDispatch records a dispatch of kind "new" or "resume".
func RecordDispatch(kind string) {
	DispatchesTotal.WithLabelValues(kind).Inc()
}

// RecordCompletion records a task reaching Success.
func RecordCompletion() {
	CompletionsTotal.Inc()
}

// RecordKill records a task transitioning to Killed for the given reason.
func RecordKill(reason string) {
	KillsTotal.WithLabelValues(reason).Inc()
}

// RecordSweepDuration records how long one liveness sweep took.
func RecordSweepDuration(seconds float64) {
	SweepDuration.Observe(seconds)
}

// SetActiveWorkers sets the connected-worker gauge.
func SetActiveWorkers(count float64) {
	ActiveWorkers.Set(count)
}

// SetOpenTasks sets the open-task gauge.
func SetOpenTasks(count float64) {
	OpenTasks.Set(count)
}

// RecordHTTPRequest records an HTTP request against the admin surface.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRedisOperation records a Redis operation against the event mirror.
func RecordRedisOperation(operation string, duration float64) {
	RedisOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRedisError records a Redis error from the event mirror.
func RecordRedisError(operation string) {
	RedisErrors.WithLabelValues(operation).Inc()
}

// SetWebSocketConnections sets the admin WebSocket connections gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records an admin WebSocket message sent.
func RecordWebSocketMessage(msgType string) {
	WebSocketMessages.WithLabelValues(msgType).Inc()
}
