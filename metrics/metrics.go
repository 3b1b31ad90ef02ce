// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campus_gateway"

var (
	// HTTPRequestTotal counts requests by method, route, status.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds is request latency by method and route.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "route"},
	)

	// GatewayDecisionsTotal counts pipeline outcomes: allowed, blocked, attack, rate_limited.
	GatewayDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_decisions_total",
			Help:      "Security gateway decisions by outcome.",
		},
		[]string{"outcome"},
	)

	// SecurityEventsTotal counts recorded audit events.
	SecurityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security events recorded by type and severity.",
		},
		[]string{"type", "severity"},
	)

	// SecurityAlertsTotal counts alerts raised.
	SecurityAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_alerts_total",
			Help:      "Security alerts raised by type.",
		},
		[]string{"type"},
	)

	// AutoBlocksTotal counts IPs blocked automatically after repeated attacks.
	AutoBlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_blocks_total",
			Help:      "IPs blocked automatically after repeated attacks.",
		},
	)

	// AccountLocksTotal counts accounts locked by the failed-login threshold.
	AccountLocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_locks_total",
			Help:      "Accounts locked after too many failed logins.",
		},
	)

	// StoreErrorsTotal counts failed store round trips (store unreachable or timed out).
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Shared and durable store errors by component and operation.",
		},
		[]string{"component", "operation"},
	)

	// AuditWriteFailuresTotal counts security events that could not be persisted.
	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Security events dropped because the durable store rejected them.",
		},
	)
)

// Gateway decision outcomes.
const (
	OutcomeAllowed     = "allowed"
	OutcomeBlocked     = "blocked"
	OutcomeAttack      = "attack"
	OutcomeRateLimited = "rate_limited"
)
