// Package metrics holds the Prometheus collectors for the funnel service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trialfunnel"

var (
	// WebhookDeliveriesTotal counts inbound webhook deliveries by provider, event type and outcome
	// (rejected, duplicate, processed, ledger_error).
	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Inbound webhook deliveries by provider, event type and outcome.",
	}, []string{"provider", "event_type", "outcome"})

	// WebhookDuration tracks time spent handling one delivery.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "duration_seconds",
		Help:      "Webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	// HandlerFailuresTotal is the alerting signal for business-logic failures
	// after a delivery was already acknowledged.
	HandlerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "handler_failures_total",
		Help:      "Webhook handler failures by provider and event type.",
	}, []string{"provider", "event_type"})

	// JourneyTransitionsTotal counts persisted journey status changes.
	JourneyTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journey",
		Name:      "transitions_total",
		Help:      "Persisted journey status transitions by target status.",
	}, []string{"to"})

	// RemoteReadAttemptsTotal counts remote subscription read attempts by outcome
	// (complete, partial, error).
	RemoteReadAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remote_read",
		Name:      "attempts_total",
		Help:      "Remote subscription read attempts by outcome.",
	}, []string{"outcome"})

	// ChatJobsTotal counts chat queue jobs by type and outcome.
	ChatJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat_queue",
		Name:      "jobs_total",
		Help:      "Chat queue jobs by type and outcome.",
	}, []string{"type", "outcome"})
)
