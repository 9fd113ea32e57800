package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway-level counters exposed on /metrics alongside the default Go and
// process collectors.
var (
	PaymentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_payments_processed_total",
		Help: "Payments processed, labelled by provider and final status.",
	}, []string{"provider", "status"})

	RefundsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_refunds_processed_total",
		Help: "Refunds processed, labelled by provider and status.",
	}, []string{"provider", "status"})

	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_webhooks_received_total",
		Help: "Webhook deliveries, labelled by provider and outcome (applied, deduped, rejected).",
	}, []string{"provider", "outcome"})

	TransitionAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_transition_anomalies_total",
		Help: "Rejected attempts to move a transaction out of a terminal state.",
	}, []string{"source"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_provider_request_seconds",
		Help:    "Latency of outbound provider calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
)
