package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors register with the default registry, which the /metrics route serves.
var (
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memoir_webhook_events_total",
		Help: "Inbound webhook events by kind (message, status) and outcome.",
	}, []string{"kind", "outcome"})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memoir_whatsapp_messages_total",
		Help: "Outbound WhatsApp sends by kind and final status.",
	}, []string{"kind", "status"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memoir_conversation_transitions_total",
		Help: "Conversation decisions by event and resulting state.",
	}, []string{"event", "state"})

	SchedulerSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memoir_scheduler_trials_total",
		Help: "Trials processed by scheduler sweep and outcome.",
	}, []string{"sweep", "outcome"})

	SchedulerSkippedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memoir_scheduler_skipped_ticks_total",
		Help: "Ticks skipped because the previous tick was still running.",
	})

	MediaPipeline = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memoir_media_pipeline_total",
		Help: "Media pipeline runs by media kind and outcome.",
	}, []string{"kind", "outcome"})

	TrialsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memoir_trials_created_total",
		Help: "Trials created through the internal API.",
	})
)
