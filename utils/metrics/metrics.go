package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketplace"

var (
	PurchasesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_recorded_total",
			Help:      "Ledger rows created, by source (checkout or webhook).",
		},
		[]string{"source"},
	)

	PurchasesDeduplicated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_deduplicated_total",
			Help:      "Confirmations resolved to an already recorded purchase, by source.",
		},
		[]string{"source"},
	)

	Refunds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund attempts by outcome.",
		},
		[]string{"outcome"},
	)

	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Gateway webhook deliveries by event type and result.",
		},
		[]string{"event", "result"},
	)

	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of payment gateway calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	registerOnce sync.Once
)

// Register adds all collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PurchasesRecorded,
			PurchasesDeduplicated,
			Refunds,
			WebhookEvents,
			GatewayLatency,
		)
	})
}
