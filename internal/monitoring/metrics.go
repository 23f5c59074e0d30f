package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects fulfillment counters exposed on the metrics server.
type Metrics struct {
	TransitionsAccepted *prometheus.CounterVec
	TransitionsRejected *prometheus.CounterVec
	HandoffConflicts    prometheus.Counter
	PushNotifications   *prometheus.CounterVec
	ActiveSubscribers   prometheus.Gauge
}

// NewMetrics registers the fulfillment collectors with reg. Tests pass a
// fresh registry; the server passes the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TransitionsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_transitions_accepted_total",
			Help: "Accepted order status transitions by target status.",
		}, []string{"status"}),
		TransitionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_transitions_rejected_total",
			Help: "Rejected order status transitions by rejection code.",
		}, []string{"reason"}),
		HandoffConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "fulfillment_handoff_conflicts_total",
			Help: "Handoff confirmations that lost the completion race.",
		}),
		PushNotifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_push_notifications_total",
			Help: "Push notification outcomes (sent, suppressed, failed).",
		}, []string{"result"}),
		ActiveSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fulfillment_active_subscribers",
			Help: "Currently connected status feed subscribers.",
		}),
	}
}
