// Package telemetry provides application-level observability for the data room
// service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<DRM_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped every 15–60 seconds.  It is NOT served by
// the Gin router, so it never passes through the admission or rate-limit paths.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Room admission outcome counters, by the gate that decided
//   - API key authorization outcome counters
//   - Audit / automation ledger write counters, by event type
//   - Background sweep durations and error counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /v1/rooms/:id/access)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as room or job IDs.  Domain metrics carry
// only closed-enum labels (gate names, outcomes, event types).
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Room admission metrics.
//
// RoomAccessAttemptsTotal has labels {outcome, gate}.  outcome is "granted",
// "denied", or "mfa_required"; gate names the admission check that decided
// ("status", "expiry", "ip", "code", "mfa", or "none" when granted).  The gate
// label is safe to expose here even though the HTTP response is deliberately
// generic: metrics are operator-facing, not caller-facing.
//
// Example PromQL queries:
//   - Denial rate by gate:     sum by (gate) (rate(room_access_attempts_total{outcome="denied"}[5m]))
//   - Grant ratio:             sum(rate(room_access_attempts_total{outcome="granted"}[1h])) / sum(rate(room_access_attempts_total[1h]))
//
// RoomTransitionsTotal has labels {from, to} and counts every committed room
// status transition, including sweep-driven expiry.
//
// SuspiciousActivityTotal counts SUSPICIOUS_ACTIVITY detections from both the
// inline post-failure check and the background sweep, labelled by {source}.
var (
	RoomAccessAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_access_attempts_total",
			Help: "Total number of room admission attempts, by outcome and deciding gate.",
		},
		[]string{"outcome", "gate"},
	)

	RoomTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_transitions_total",
			Help: "Total number of committed room status transitions, by source and target status.",
		},
		[]string{"from", "to"},
	)

	SuspiciousActivityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suspicious_activity_total",
			Help: "Total number of suspicious-activity detections, by detection source (inline or sweep).",
		},
		[]string{"source"},
	)
)

// API key authorization metrics.
//
// KeyAuthorizationsTotal has label {outcome} with values "validated",
// "auth_failed", "rate_limited", "billing_denied", "status_denied", and
// "expired".  An alert on a rising auth_failed rate is the metric-level
// counterpart of the AUTHENTICATION_FAILED ledger rows.
//
// Example PromQL queries:
//   - Quota exhaustion rate:  rate(key_authorizations_total{outcome="rate_limited"}[15m])
//   - Failure share:          sum(rate(key_authorizations_total{outcome!="validated"}[1h])) / sum(rate(key_authorizations_total[1h]))
var KeyAuthorizationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "key_authorizations_total",
		Help: "Total number of API key authorization decisions, by outcome.",
	},
	[]string{"outcome"},
)

// IPThrottleDeniedTotal counts requests rejected by the per-IP HTTP throttle
// before they reached any handler, labelled by limiter backend ("redis" or
// "memory").
var IPThrottleDeniedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ip_throttle_denied_total",
		Help: "Total number of HTTP requests rejected by the per-IP throttle, by limiter backend.",
	},
	[]string{"backend"},
)

// Ledger write counters.  One increment per committed append; a row written in
// a transaction that later rolls back is never counted because the recorder
// increments only after the insert statement succeeds and the caller only
// commits on success.
var (
	AuditEventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_recorded_total",
			Help: "Total number of room audit events appended, by event type.",
		},
		[]string{"event_type"},
	)

	AutomationEventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_events_recorded_total",
			Help: "Total number of automation events appended, by event type.",
		},
		[]string{"event_type"},
	)
)

// Background sweep metrics — recorded by the room expiry, key expiry, and
// suspicious-activity sweepers.
//
// Example PromQL queries:
//   - p95 sweep duration:  histogram_quantile(0.95, sum by (job, le) (rate(sweep_duration_seconds_bucket[1h])))
//   - Alert expression:    increase(sweep_errors_total[30m]) > 3
var (
	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of one complete background sweep cycle, by job name.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	SweepErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_errors_total",
			Help: "Total number of failed sweep cycles, by job name.",
		},
		[]string{"job"},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
