package guard

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the per-guard-process Prometheus series, one instance
// per market per process, named after order_guard_virtual.py's
// guard_positions_open/guard_tp_orders_open/guard_sl_triggers_total/
// guard_market_sells_total/guard_errors_total gauges and counters.
type Metrics struct {
	PositionsOpen prometheus.Gauge
	TPOpen        prometheus.Gauge
	SLTriggers    prometheus.Counter
	MarketSells   prometheus.Counter
	Errors        *prometheus.CounterVec
}

// NewMetrics registers market-labeled series on reg.
func NewMetrics(reg prometheus.Registerer, market string) *Metrics {
	m := &Metrics{
		PositionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "guard_positions_open",
			Help:        "Whether this market currently has an open virtual position (0/1).",
			ConstLabels: prometheus.Labels{"market": market},
		}),
		TPOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "guard_tp_orders_open",
			Help:        "Whether a take-profit limit order is currently live (0/1).",
			ConstLabels: prometheus.Labels{"market": market},
		}),
		SLTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "guard_sl_triggers_total",
			Help:        "Stop-loss/trailing-stop triggers.",
			ConstLabels: prometheus.Labels{"market": market},
		}),
		MarketSells: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "guard_market_sells_total",
			Help:        "Executed market sells.",
			ConstLabels: prometheus.Labels{"market": market},
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "guard_errors_total",
			Help:        "Errors by stage.",
			ConstLabels: prometheus.Labels{"market": market},
		}, []string{"stage"}),
	}
	reg.MustRegister(m.PositionsOpen, m.TPOpen, m.SLTriggers, m.MarketSells, m.Errors)
	return m
}
