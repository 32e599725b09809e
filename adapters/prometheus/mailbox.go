package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/mailroom-go/core/mailbox"
	"github.com/codewandler/mailroom-go/core/metrics"
)

// mailboxMetrics implements mailbox.Metrics using Prometheus.
type mailboxMetrics struct {
	mailboxes    *prometheus.GaugeVec
	createdTotal *prometheus.CounterVec
	evictedTotal *prometheus.CounterVec
	sentTotal    *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
	droppedTotal *prometheus.CounterVec
	disconnected *prometheus.CounterVec
}

// NewMailboxMetrics creates a new Prometheus implementation of mailbox.Metrics.
func NewMailboxMetrics(reg prometheus.Registerer) mailbox.Metrics {
	m := &mailboxMetrics{
		mailboxes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailroom_mailboxes",
			Help: "Number of registered mailboxes",
		}, []string{"kind"}),

		createdTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_mailboxes_created_total",
			Help: "Total number of mailboxes created",
		}, []string{"kind"}),

		evictedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_mailboxes_evicted_total",
			Help: "Total number of mailboxes evicted",
		}, []string{"kind"}),

		sentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_messages_sent_total",
			Help: "Total number of messages sent to mailboxes",
		}, []string{"kind"}),

		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailroom_send_duration_seconds",
			Help:    "Time a send took to reach all subscribers, in seconds",
			Buckets: defaultBuckets,
		}, []string{"kind"}),

		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_messages_dropped_total",
			Help: "Total number of queued messages dropped for slow subscribers",
		}, []string{"kind"}),

		disconnected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_subscribers_disconnected_total",
			Help: "Total number of slow subscribers disconnected",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.mailboxes,
		m.createdTotal,
		m.evictedTotal,
		m.sentTotal,
		m.sendDuration,
		m.droppedTotal,
		m.disconnected,
	)

	return m
}

func (m *mailboxMetrics) MailboxCreated(kind string) {
	m.createdTotal.WithLabelValues(kind).Inc()
	m.mailboxes.WithLabelValues(kind).Inc()
}

func (m *mailboxMetrics) MailboxEvicted(kind string) {
	m.evictedTotal.WithLabelValues(kind).Inc()
	m.mailboxes.WithLabelValues(kind).Dec()
}

func (m *mailboxMetrics) MessageSent(kind string) {
	m.sentTotal.WithLabelValues(kind).Inc()
}

func (m *mailboxMetrics) SendDuration(kind string) metrics.Timer {
	return newTimer(m.sendDuration.WithLabelValues(kind))
}

func (m *mailboxMetrics) MessageDropped(kind string) {
	m.droppedTotal.WithLabelValues(kind).Inc()
}

func (m *mailboxMetrics) SubscriberDisconnected(kind string) {
	m.disconnected.WithLabelValues(kind).Inc()
}

var _ mailbox.Metrics = (*mailboxMetrics)(nil)
