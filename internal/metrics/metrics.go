/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Reconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "no8s_reconciles_total",
			Help: "Total number of reconciliation attempts",
		},
		[]string{"resource_type", "trigger", "outcome"},
	)
	ReconcileErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "no8s_reconcile_errors_total",
			Help: "Total number of failed reconciliation attempts",
		},
		[]string{"resource_type"},
	)
	ReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "no8s_reconcile_duration_seconds",
			Help:    "Duration of reconciliation attempts",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"resource_type"},
	)
	ReconcilesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "no8s_reconciles_in_flight",
			Help: "Number of reconciliation attempts currently running",
		},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "no8s_events_published_total",
			Help: "Total number of events published to the event bus",
		},
		[]string{"type"},
	)
	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "no8s_events_dropped_total",
			Help: "Total number of events dropped because a subscriber queue was full",
		},
	)
	AdmissionDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "no8s_admission_denials_total",
			Help: "Total number of writes denied by admission webhooks",
		},
		[]string{"operation"},
	)
	WebhookFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "no8s_webhook_failures_total",
			Help: "Total number of admission webhook call failures",
		},
		[]string{"webhook", "policy"},
	)
)

func init() {
	prometheus.MustRegister(
		Reconciles,
		ReconcileErrors,
		ReconcileDuration,
		ReconcilesInFlight,
		EventsPublished,
		EventsDropped,
		AdmissionDenials,
		WebhookFailures,
	)
}
