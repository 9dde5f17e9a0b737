package simulation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated once per round.
type Metrics struct {
	RoundsTotal          prometheus.Counter
	SuspendedRoundsTotal prometheus.Counter
	QuotesTotal          prometheus.Counter
	TradesTotal          prometheus.Counter
	PnL                  prometheus.Gauge
	Inventory            prometheus.Gauge
	Cash                 prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RoundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "rounds_total",
			Help:      "Total simulation rounds completed",
		}),
		SuspendedRoundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "suspended_rounds_total",
			Help:      "Rounds in which quoting was suspended by a risk limit",
		}),
		QuotesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "quotes_total",
			Help:      "Total strategy orders submitted",
		}),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "trades_total",
			Help:      "Total trades executed by the book",
		}),
		PnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "pnl",
			Help:      "Marked-to-market profit and loss",
		}),
		Inventory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "inventory",
			Help:      "Signed position in shares",
		}),
		Cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "cash",
			Help:      "Cash balance",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.RoundsTotal,
		m.SuspendedRoundsTotal,
		m.QuotesTotal,
		m.TradesTotal,
		m.PnL,
		m.Inventory,
		m.Cash,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observe(status RoundStatus) {
	m.RoundsTotal.Inc()
	if status.Suspension != "none" {
		m.SuspendedRoundsTotal.Inc()
	}
	m.QuotesTotal.Add(float64(status.Quotes))
	m.TradesTotal.Add(float64(status.Trades))
	m.PnL.Set(status.PnL.InexactFloat64())
	m.Inventory.Set(float64(status.Inventory))
	m.Cash.Set(status.Cash.InexactFloat64())
}
