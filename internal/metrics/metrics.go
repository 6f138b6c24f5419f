package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simgw_messages_total",
			Help: "Message lifecycle counter by direction and status",
		},
		[]string{"direction", "status"}, // outgoing|incoming , pending|sent|delivered|failed|received
	)

	BrokerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simgw_broker_events_total",
			Help: "Broker events consumed by topic kind and outcome",
		},
		[]string{"kind", "outcome"}, // status|receive , ok|malformed|unmatched|error
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simgw_notifications_total",
			Help: "Fan-out notifications by event name and outcome",
		},
		[]string{"event", "outcome"}, // sms_sent|sms_received|sms_status_update , ok|dropped
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		MessagesTotal,
		BrokerEventsTotal,
		NotificationsTotal,
	)
}
