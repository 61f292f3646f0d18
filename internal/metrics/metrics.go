// Package metrics holds the prometheus collectors exported by rosterctl
// when `watch --metrics-addr` is set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosterctl_api_requests_total",
			Help: "Total number of roster API requests",
		},
		[]string{"endpoint", "result"}, // result: "success", "failure", "rejected"
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rosterctl_api_request_duration_seconds",
			Help:    "Roster API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rosterctl_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	EnrichmentFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rosterctl_enrichment_fallbacks_total",
			Help: "Moderator lookups that fell back to the placeholder name",
		},
	)

	LiveEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosterctl_live_events_total",
			Help: "Live-update events received, by record kind and outcome",
		},
		[]string{"record_kind", "outcome"}, // outcome: "applied", "ignored", "failed"
	)

	LiveReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rosterctl_live_reconnects_total",
			Help: "WebSocket reconnect attempts",
		},
	)

	PatrolSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosterctl_patrol_saves_total",
			Help: "Patrol auto-save attempts",
		},
		[]string{"result"},
	)
)
