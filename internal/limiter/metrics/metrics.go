package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RegistrationsRecorded prometheus.Counter
	LimitExceeded         prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		RegistrationsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namehaus_limiter_registrations_recorded_total",
			Help: "Total registrations admitted by the rate limiter",
		}),
		LimitExceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namehaus_limiter_limit_exceeded_total",
			Help: "Total registrations rejected by the rate limiter",
		}),
	}
}

func (m *Metrics) IncrementRecorded() {
	m.RegistrationsRecorded.Inc()
}

func (m *Metrics) IncrementLimitExceeded() {
	m.LimitExceeded.Inc()
}
