// Package prometheus provides Prometheus implementations of the metrics
// interfaces of the mailbox registry, the scheduler, the codec operators
// and the cluster node.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/mailroom-go/core/metrics"
)

// timer wraps a Prometheus histogram to implement the Timer interface.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) metrics.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5,
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// AllMetrics holds the Prometheus implementations for every component.
type AllMetrics struct {
	Mailbox  *mailboxMetrics
	Actor    *actorMetrics
	Mailroom *mailroomMetrics
	Cluster  *clusterMetrics
}

// NewAllMetrics creates and registers the metrics of all components.
func NewAllMetrics(reg prometheus.Registerer) *AllMetrics {
	return &AllMetrics{
		Mailbox:  NewMailboxMetrics(reg).(*mailboxMetrics),
		Actor:    NewActorMetrics(reg).(*actorMetrics),
		Mailroom: NewMailroomMetrics(reg).(*mailroomMetrics),
		Cluster:  NewClusterMetrics(reg).(*clusterMetrics),
	}
}
