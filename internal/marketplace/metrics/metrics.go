package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Listings    prometheus.Counter
	Sales       prometheus.Counter
	Auctions    prometheus.Counter
	Bids        prometheus.Counter
	Settlements prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Listings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namehaus_marketplace_listings_total",
			Help: "Total listings created",
		}),
		Sales: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namehaus_marketplace_sales_total",
			Help: "Total fixed-price sales completed",
		}),
		Auctions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namehaus_marketplace_auctions_total",
			Help: "Total auctions created",
		}),
		Bids: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namehaus_marketplace_bids_total",
			Help: "Total bids accepted",
		}),
		Settlements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namehaus_marketplace_settlements_total",
			Help: "Total auctions settled",
		}),
	}
}

func (m *Metrics) IncrementListings()    { m.Listings.Inc() }
func (m *Metrics) IncrementSales()       { m.Sales.Inc() }
func (m *Metrics) IncrementAuctions()    { m.Auctions.Inc() }
func (m *Metrics) IncrementBids()        { m.Bids.Inc() }
func (m *Metrics) IncrementSettlements() { m.Settlements.Inc() }
