package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	IncomingMessages  *prometheus.CounterVec
	OutgoingMessages  *prometheus.CounterVec
	AIRequests        *prometheus.CounterVec
	AILatency         *prometheus.HistogramVec
	ModerationActions *prometheus.CounterVec
	TasksPosted       *prometheus.CounterVec
	MediaRouted       *prometheus.CounterVec
	Escalations       *prometheus.CounterVec
	Errors            *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			IncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tg_incoming_messages_total",
				Help:      "Total incoming Telegram updates processed.",
			}, []string{"type"}),
			OutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tg_outgoing_messages_total",
				Help:      "Total outgoing Telegram messages sent.",
			}, []string{"type"}),
			AIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_requests_total",
				Help:      "Total AI generation requests by outcome.",
			}, []string{"status"}),
			AILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ai_request_duration_seconds",
				Help:      "Latency distribution for AI generation calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			ModerationActions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "moderation_actions_total",
				Help:      "Total moderation actions by verb and outcome.",
			}, []string{"verb", "outcome"}),
			TasksPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_tasks_posted_total",
				Help:      "Total admin tasks posted to review chats.",
			}, []string{"type"}),
			MediaRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "media_routed_total",
				Help:      "Total routed attachments by context and outcome.",
			}, []string{"context", "outcome"}),
			Escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escalations_total",
				Help:      "Total conversations escalated to a human.",
			}, []string{"trigger"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.IncomingMessages,
			metricsInstance.OutgoingMessages,
			metricsInstance.AIRequests,
			metricsInstance.AILatency,
			metricsInstance.ModerationActions,
			metricsInstance.TasksPosted,
			metricsInstance.MediaRouted,
			metricsInstance.Escalations,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
