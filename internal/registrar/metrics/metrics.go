package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Commitments   prometheus.Counter
	Registrations prometheus.Counter
	Renewals      prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Commitments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namehaus_registrar_commitments_total",
			Help: "Total commitments accepted",
		}),
		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namehaus_registrar_registrations_total",
			Help: "Total successful registrations",
		}),
		Renewals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namehaus_registrar_renewals_total",
			Help: "Total successful renewals",
		}),
	}
}

func (m *Metrics) IncrementCommitments() {
	m.Commitments.Inc()
}

func (m *Metrics) IncrementRegistrations() {
	m.Registrations.Inc()
}

func (m *Metrics) IncrementRenewals() {
	m.Renewals.Inc()
}
