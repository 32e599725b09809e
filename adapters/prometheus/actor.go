package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/mailroom-go/core/actor"
)

// actorMetrics implements actor.Metrics using Prometheus.
type actorMetrics struct {
	schedulerInflight   *prometheus.GaugeVec
	schedulerTasksTotal *prometheus.CounterVec
}

// NewActorMetrics creates a new Prometheus implementation of actor.Metrics.
func NewActorMetrics(reg prometheus.Registerer) actor.Metrics {
	m := &actorMetrics{
		schedulerInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailroom_scheduler_inflight",
			Help: "Number of running scheduled tasks",
		}, []string{"scheduler"}),

		schedulerTasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_scheduler_tasks_total",
			Help: "Total number of scheduled tasks completed",
		}, []string{"scheduler", "success"}),
	}

	reg.MustRegister(
		m.schedulerInflight,
		m.schedulerTasksTotal,
	)

	return m
}

func (m *actorMetrics) SchedulerInflight(scheduler string, count int) {
	m.schedulerInflight.WithLabelValues(scheduler).Set(float64(count))
}

func (m *actorMetrics) SchedulerTaskCompleted(scheduler string, success bool) {
	m.schedulerTasksTotal.WithLabelValues(scheduler, boolToStr(success)).Inc()
}

var _ actor.Metrics = (*actorMetrics)(nil)
