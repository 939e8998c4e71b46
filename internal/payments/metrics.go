package payments

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "krishisangam",
		Subsystem: "payments",
		Name:      "orders_created_total",
		Help:      "Provider orders created for job payments.",
	})
	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "krishisangam",
		Subsystem: "payments",
		Name:      "verifications_total",
		Help:      "Payment signature verifications by result.",
	}, []string{"result"})
	payoutsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "krishisangam",
		Subsystem: "payments",
		Name:      "payouts_initiated_total",
		Help:      "Payouts created with the provider.",
	})
	payoutTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "krishisangam",
		Subsystem: "payments",
		Name:      "payout_transitions_total",
		Help:      "Payout status transitions recorded locally.",
	}, []string{"status"})
	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "krishisangam",
		Subsystem: "payments",
		Name:      "webhook_events_total",
		Help:      "Provider webhook events by type and validity.",
	}, []string{"event", "result"})
)
