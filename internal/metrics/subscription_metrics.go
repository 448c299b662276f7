package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sunupay/subscription-service/pkg/logger"
)

// SubscriptionMetrics records subscription lifecycle counters
type SubscriptionMetrics interface {
	IncInitiated(tier string)
	IncActivated(tier string)
	IncCancelled(tier string)
	IncExpired(tier string)
	IncPaymentFailed(tier string)
	IncWebhookRejected(provider string)
	ObserveGatewayLatency(provider string, seconds float64)
	ObserveSweepDuration(seconds float64)
}

type subscriptionMetrics struct {
	log             *logger.Logger
	initiated       *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	webhookRejected *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	sweepDuration   prometheus.Histogram
}

// NewSubscriptionMetrics creates subscription lifecycle metrics
func NewSubscriptionMetrics(registry *prometheus.Registry, log *logger.Logger) SubscriptionMetrics {
	initiated := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_initiated_total",
			Help: "The total number of initiated subscriptions",
		},
		[]string{"tier"},
	)

	transitions := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_transitions_total",
			Help: "The total number of subscription status transitions",
		},
		[]string{"status", "tier"},
	)

	webhookRejected := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_rejected_total",
			Help: "The total number of rejected gateway webhooks",
		},
		[]string{"provider"},
	)

	gatewayLatency := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Payment gateway request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	sweepDuration := promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweeper_run_duration_seconds",
			Help:    "Expiration sweep duration",
			Buckets: prometheus.DefBuckets,
		},
	)

	return &subscriptionMetrics{
		log:             log,
		initiated:       initiated,
		transitions:     transitions,
		webhookRejected: webhookRejected,
		gatewayLatency:  gatewayLatency,
		sweepDuration:   sweepDuration,
	}
}

func (m *subscriptionMetrics) IncInitiated(tier string) {
	m.initiated.WithLabelValues(tier).Inc()
}

func (m *subscriptionMetrics) IncActivated(tier string) {
	m.transitions.WithLabelValues("active", tier).Inc()
}

func (m *subscriptionMetrics) IncCancelled(tier string) {
	m.transitions.WithLabelValues("cancelled", tier).Inc()
}

func (m *subscriptionMetrics) IncExpired(tier string) {
	m.transitions.WithLabelValues("expired", tier).Inc()
}

func (m *subscriptionMetrics) IncPaymentFailed(tier string) {
	m.transitions.WithLabelValues("failed", tier).Inc()
}

func (m *subscriptionMetrics) IncWebhookRejected(provider string) {
	m.webhookRejected.WithLabelValues(provider).Inc()
}

func (m *subscriptionMetrics) ObserveGatewayLatency(provider string, seconds float64) {
	m.gatewayLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *subscriptionMetrics) ObserveSweepDuration(seconds float64) {
	m.sweepDuration.Observe(seconds)
}
