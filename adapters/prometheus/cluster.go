package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/mailroom-go/core/cluster"
)

// clusterMetrics implements cluster.Metrics using Prometheus.
type clusterMetrics struct {
	opsSent        *prometheus.CounterVec
	opsReceived    *prometheus.CounterVec
	unknownPeers   prometheus.Counter
	interestTopics prometheus.Gauge
	members        prometheus.Gauge
}

// NewClusterMetrics creates a new Prometheus implementation of cluster.Metrics.
func NewClusterMetrics(reg prometheus.Registerer) cluster.Metrics {
	m := &clusterMetrics{
		opsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_cluster_ops_sent_total",
			Help: "Total number of ops handed to the transport",
		}, []string{"op", "success"}),

		opsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_cluster_ops_received_total",
			Help: "Total number of ops received from peers",
		}, []string{"op"}),

		unknownPeers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_cluster_unknown_peer_total",
			Help: "Total number of deliveries skipped for members without outbox",
		}),

		interestTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailroom_cluster_interest_topics",
			Help: "Number of topics with at least one interested peer",
		}),

		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailroom_cluster_members",
			Help: "Number of known peers",
		}),
	}

	reg.MustRegister(
		m.opsSent,
		m.opsReceived,
		m.unknownPeers,
		m.interestTopics,
		m.members,
	)

	return m
}

func (m *clusterMetrics) OpSent(op string, success bool) {
	m.opsSent.WithLabelValues(op, boolToStr(success)).Inc()
}

func (m *clusterMetrics) OpReceived(op string) {
	m.opsReceived.WithLabelValues(op).Inc()
}

func (m *clusterMetrics) UnknownPeer()         { m.unknownPeers.Inc() }
func (m *clusterMetrics) InterestTopics(n int) { m.interestTopics.Set(float64(n)) }
func (m *clusterMetrics) Members(n int)        { m.members.Set(float64(n)) }

var _ cluster.Metrics = (*clusterMetrics)(nil)
