// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatusEvaluations counts status decisions by outcome and cache source.
	StatusEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "praxis",
		Subsystem: "billing",
		Name:      "status_evaluations_total",
		Help:      "Subscription status evaluations by outcome and source.",
	}, []string{"outcome", "source"})

	// LazyExpirations counts records flipped to inactive, by path.
	LazyExpirations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "praxis",
		Subsystem: "billing",
		Name:      "expirations_total",
		Help:      "Subscriptions expired, by path (lazy or sweep).",
	}, []string{"path"})

	// LimitDenials counts metered creates refused at the ceiling.
	LimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "praxis",
		Subsystem: "billing",
		Name:      "limit_denials_total",
		Help:      "Resource creations denied by plan limits.",
	}, []string{"resource"})

	// CounterDrift counts recounts that disagreed with the cached counter.
	CounterDrift = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "praxis",
		Subsystem: "billing",
		Name:      "usage_counter_drift_total",
		Help:      "Usage counter corrections after an authoritative recount.",
	}, []string{"resource"})

	// WebhookEvents counts gateway webhook events by type and outcome.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "praxis",
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Gateway webhook events by event type and outcome.",
	}, []string{"event_type", "outcome"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "praxis",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Gateway webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// GatewayCalls counts outbound gateway calls by operation and outcome.
	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "praxis",
		Subsystem: "billing",
		Name:      "gateway_calls_total",
		Help:      "Outbound payment gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	// PlanChanges counts orchestrated plan changes by outcome.
	PlanChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "praxis",
		Subsystem: "billing",
		Name:      "plan_changes_total",
		Help:      "Plan change requests by outcome.",
	}, []string{"outcome"})
)
