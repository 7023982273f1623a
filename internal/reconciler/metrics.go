package reconciler

import "github.com/prometheus/client_golang/prometheus"

// Metrics are guard_reconciler.py's reconcile_runs/errors/active/port/
// last_ok_ts series, ported 1:1.
type Metrics struct {
	Runs      prometheus.Counter
	Errors    *prometheus.CounterVec
	Active    prometheus.Gauge
	Port      *prometheus.GaugeVec
	LastOKUnix prometheus.Gauge
}

// NewMetrics registers the reconciler's series on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guard_reconcile_runs_total", Help: "Reconcile loop iterations.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_reconcile_errors_total", Help: "Errors by stage.",
		}, []string{"stage"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guard_active_markets", Help: "Number of active guard instances.",
		}),
		Port: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "guard_port_assignment", Help: "Assigned metrics port per market.",
		}, []string{"market"}),
		LastOKUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guard_reconcile_last_ok_ts", Help: "Epoch seconds of the last successful reconcile.",
		}),
	}
	reg.MustRegister(m.Runs, m.Errors, m.Active, m.Port, m.LastOKUnix)
	return m
}
