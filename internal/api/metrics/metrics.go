// Package metrics defines and registers all custom Prometheus metrics for the
// dashboard gateway. It is the single source of truth for metric names,
// labels, and help strings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dashboard_gateway"

// VerificationsTotal counts session verification outcomes.
// Labels:
//   - result: "valid", "invalid", "license_expired", or "error"
//   - source: "network" (a real round trip) or "cache" (cool-down hit)
var VerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Total session verifications, by result and by whether the cool-down cache answered.",
	},
	[]string{"result", "source"},
)

// GuardDecisionsTotal counts route guard outcomes.
// Labels:
//   - segment: the role segment the request targeted
//   - outcome: "allowed", "no_session", "license_expired", "role_mismatch"
var GuardDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_decisions_total",
		Help:      "Total route guard decisions, by segment and outcome.",
	},
	[]string{"segment", "outcome"},
)

// SessionsCreatedTotal counts successful logins by role.
var SessionsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Total gateway sessions created, by user role.",
	},
	[]string{"role"},
)

// SessionsEndedTotal counts session destructions.
// Label:
//   - cause: "logout", "no_session", "invalid_session", "license_expired"
var SessionsEndedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_ended_total",
		Help:      "Total gateway sessions destroyed, by cause.",
	},
	[]string{"cause"},
)

// PermissionRefreshesTotal counts permission re-reads.
// Label:
//   - trigger: "interval" or "signal"
var PermissionRefreshesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "permission_refreshes_total",
		Help:      "Total permission cache re-reads, by trigger.",
	},
	[]string{"trigger"},
)

// UpstreamRequestDuration measures authority round-trip latency.
// Label:
//   - endpoint: "verify", "login", "logout", "me", "call_next"
var UpstreamRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Duration of requests to the queue-management authority.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"endpoint"},
)
