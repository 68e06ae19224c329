// Package metrics holds the prometheus instrumentation shared by the event pipelines.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventrelay"

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

type Metrics struct {
	eventsReceived       *prometheus.CounterVec
	eventsProcessed      *prometheus.CounterVec
	eventDuration        *prometheus.HistogramVec
	subscriptionsMatched *prometheus.CounterVec
	notificationsCreated *prometheus.CounterVec
	channelDeliveries    *prometheus.CounterVec
	ruleExecutions       *prometheus.CounterVec
	presencePushes       *prometheus.CounterVec
	presenceConnections  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		eventsReceived: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_received_total",
				Help:      "Blockchain events received from the feed",
			}, []string{"source", "event_type"}),

		eventsProcessed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_processed_total",
				Help:      "Blockchain events processed by a pipeline",
			}, []string{"pipeline", "status"}),

		eventDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_processing_duration_seconds",
				Help:      "Time spent processing one event across all pipelines",
				Buckets:   prometheus.DefBuckets,
			}, []string{"event_type"}),

		subscriptionsMatched: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriptions_matched_total",
				Help:      "Subscriptions whose scope and filter matched an event",
			}, []string{"event_type"}),

		notificationsCreated: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_created_total",
				Help:      "Notifications persisted",
			}, []string{"event_type"}),

		channelDeliveries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_deliveries_total",
				Help:      "External channel delivery attempts",
			}, []string{"channel", "status"}),

		ruleExecutions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_executions_total",
				Help:      "Automation rule execution attempts",
			}, []string{"action", "status"}),

		presencePushes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "presence_pushes_total",
				Help:      "Real-time pushes by outcome",
			}, []string{"outcome"}),

		presenceConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "presence_connections",
				Help:      "Open websocket connections",
			}),
	}
}

func (m *Metrics) EventReceived(source, eventType string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(source, eventType).Inc()
}

func (m *Metrics) EventProcessed(pipeline string, err error) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(pipeline, status(err)).Inc()
}

func (m *Metrics) ObserveEvent(eventType string, started time.Time) {
	if m == nil {
		return
	}
	m.eventDuration.WithLabelValues(eventType).Observe(time.Since(started).Seconds())
}

func (m *Metrics) SubscriptionMatched(eventType string) {
	if m == nil {
		return
	}
	m.subscriptionsMatched.WithLabelValues(eventType).Inc()
}

func (m *Metrics) NotificationCreated(eventType string) {
	if m == nil {
		return
	}
	m.notificationsCreated.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ChannelDelivery(channel, status string) {
	if m == nil {
		return
	}
	m.channelDeliveries.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) RuleExecuted(action string, success bool) {
	if m == nil {
		return
	}
	label := StatusSuccess
	if !success {
		label = StatusFailure
	}
	m.ruleExecutions.WithLabelValues(action, label).Inc()
}

// PresencePush records a push attempt; outcome is "delivered", "offline" or "failed".
func (m *Metrics) PresencePush(outcome string) {
	if m == nil {
		return
	}
	m.presencePushes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.presenceConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.presenceConnections.Dec()
}

func status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
