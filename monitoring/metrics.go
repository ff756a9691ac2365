package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook deliveries by provider and disposition",
		},
		[]string{"provider", "disposition"},
	)

	issuanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "issuance_duration_seconds",
			Help:    "Duration of issuance pipeline runs by outcome",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"outcome"},
	)

	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets issued by provider",
		},
		[]string{"provider"},
	)

	orphanedConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orphaned_confirmations_total",
			Help: "Confirmations that matched no purchase intent",
		},
		[]string{"provider"},
	)

	flaggedPayments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagged_payments_total",
			Help: "Payments withheld for manual review",
		},
		[]string{"reason"},
	)

	ledgerRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_write_retries_total",
			Help: "Retried platform transaction writes",
		},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Failed confirmation notifications",
		},
		[]string{"kind"},
	)

	notificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_queue_depth",
			Help: "Pending notifications in the dispatch queue",
		},
	)
)

func TrackWebhook(provider, disposition string) {
	webhookDeliveries.WithLabelValues(provider, disposition).Inc()
}

func ObserveIssuance(outcome string, duration time.Duration) {
	issuanceDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func TrackTicketsIssued(provider string, count int) {
	ticketsIssued.WithLabelValues(provider).Add(float64(count))
}

func TrackOrphan(provider string) {
	orphanedConfirmations.WithLabelValues(provider).Inc()
}

func TrackFlaggedPayment(reason string) {
	flaggedPayments.WithLabelValues(reason).Inc()
}

func TrackLedgerRetry() {
	ledgerRetries.Inc()
}

func TrackNotificationFailure(kind string) {
	notificationFailures.WithLabelValues(kind).Inc()
}

func SetNotificationQueueDepth(depth int) {
	notificationQueueDepth.Set(float64(depth))
}
