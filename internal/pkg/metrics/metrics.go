package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal counts webhook deliveries by event type and outcome
	// (applied, duplicate, ignored, failed, rejected).
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberportal_webhook_events_total",
			Help: "Webhook deliveries by event type and processing outcome",
		},
		[]string{"event_type", "outcome"},
	)

	// CheckoutSessionsTotal counts checkout session requests by outcome.
	CheckoutSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberportal_checkout_sessions_total",
			Help: "Checkout session build attempts by outcome",
		},
		[]string{"outcome"},
	)

	// WebhookProcessingDuration tracks end-to-end webhook handling latency.
	WebhookProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "memberportal_webhook_processing_duration_seconds",
			Help: "Duration of webhook processing in seconds",
			Buckets: []float64{
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"event_type"},
	)
)

// RecordWebhookEvent records one processed delivery.
func RecordWebhookEvent(eventType, outcome string, duration float64) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
	WebhookProcessingDuration.WithLabelValues(eventType).Observe(duration)
}

// RecordCheckoutSession records one checkout session build attempt.
func RecordCheckoutSession(outcome string) {
	CheckoutSessionsTotal.WithLabelValues(outcome).Inc()
}
