package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsInTotal         *prometheus.CounterVec
	RateLimitRejections   *prometheus.CounterVec
	RequestsSubmitted     *prometheus.CounterVec
	DecisionsTotal        *prometheus.CounterVec
	DecisionRaceLost      prometheus.Counter
	DeliveryFailures      prometheus.Counter
	ConversationsActive   prometheus.Gauge
	ValidationFailures    *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		EventsInTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dutybot_events_in_total",
			Help: "Inbound events by kind",
		}, []string{"kind"}),
		RateLimitRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dutybot_ratelimit_rejections_total",
			Help: "Events rejected by the sliding-window gate, by kind",
		}, []string{"kind"}),
		RequestsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dutybot_requests_submitted_total",
			Help: "Requests handed to the moderation workflow, by form kind",
		}, []string{"form"}),
		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dutybot_decisions_total",
			Help: "Moderation decisions by outcome",
		}, []string{"outcome"}),
		DecisionRaceLost: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dutybot_decision_race_lost_total",
			Help: "Decide calls that found the request already decided",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dutybot_delivery_failures_total",
			Help: "Outbound notifications that failed and were isolated",
		}),
		ConversationsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dutybot_conversations_active",
			Help: "Open multi-step forms",
		}),
		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dutybot_validation_failures_total",
			Help: "Step validation failures by form kind",
		}, []string{"form"}),
	}
}
