package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/mailroom-go/core/mailroom"
)

// mailroomMetrics implements mailroom.Metrics using Prometheus.
type mailroomMetrics struct {
	codecTotal *prometheus.CounterVec
}

// NewMailroomMetrics creates a new Prometheus implementation of mailroom.Metrics.
func NewMailroomMetrics(reg prometheus.Registerer) mailroom.Metrics {
	m := &mailroomMetrics{
		codecTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_codec_total",
			Help: "Total number of payloads encoded or decoded",
		}, []string{"direction", "success"}),
	}
	reg.MustRegister(m.codecTotal)
	return m
}

func (m *mailroomMetrics) CodecCompleted(direction string, success bool) {
	m.codecTotal.WithLabelValues(direction, boolToStr(success)).Inc()
}

var _ mailroom.Metrics = (*mailroomMetrics)(nil)
