package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bitvavo-trading-core/internal/bus"
)

// Config carries the reconcile loop's tunables.
type Config struct {
	MaxConcurrency int
	PromBase       int
	PromRange      int
	DenyBases      []string
	EnvDir         string
	GuardBinary    string
	LoopInterval   time.Duration
}

// DefaultConfig mirrors guard_reconciler.py's ENV defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		PromBase:       9105,
		PromRange:      50,
		DenyBases:      DefaultDenyBases,
		EnvDir:         "/etc/trading/guard",
		LoopInterval:   3 * time.Second,
	}
}

// Runner drives the periodic reconcile loop.
type Runner struct {
	Bus        *bus.Bus
	Supervisor *ProcessSupervisor
	Metrics    *Metrics
	Logger     *slog.Logger
	Cfg        Config

	portsMu sync.RWMutex
	ports   map[string]int
}

// Ports returns the most recently assigned guard metrics port per
// market, for the metrics mux to use as its scrape target list.
func (r *Runner) Ports() map[string]int {
	r.portsMu.RLock()
	defer r.portsMu.RUnlock()
	out := make(map[string]int, len(r.ports))
	for m, p := range r.ports {
		out[m] = p
	}
	return out
}

// Run loops until ctx is cancelled, reconciling desired vs. running
// guard processes every Cfg.LoopInterval.
func (r *Runner) Run(ctx context.Context) error {
	deny := DenySet(r.Cfg.DenyBases)
	interval := r.Cfg.LoopInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.reconcileOnce(ctx, deny)
		}
	}
}

func (r *Runner) reconcileOnce(ctx context.Context, deny map[string]bool) {
	r.Metrics.Runs.Inc()

	desiredAll, err := OrderedDesired(ctx, r.Bus)
	if err != nil {
		r.Metrics.Errors.WithLabelValues("read_ai_markets").Inc()
		r.Logger.Error("read desired markets failed", "err", err)
		return
	}
	desired := FilterDenied(desiredAll, deny)
	if len(desired) > r.Cfg.MaxConcurrency {
		desired = desired[:r.Cfg.MaxConcurrency]
	}

	running := r.Supervisor.Running()
	runningSet := toSet(running)
	desiredSet := toSet(desired)

	for _, m := range running {
		if !desiredSet[m] {
			r.Supervisor.Stop(m)
		}
	}

	portMap := AssignPorts(r.Cfg.EnvDir, desired, r.Cfg.PromBase, r.Cfg.PromRange)

	for _, m := range desired {
		want := portMap[m]
		have, hadCur := readCurrentPort(r.Cfg.EnvDir, m)
		if !hadCur || have != want {
			if _, err := writeEnv(r.Cfg.EnvDir, m, want); err != nil {
				r.Metrics.Errors.WithLabelValues("write_env").Inc()
				r.Logger.Error("write env failed", "market", m, "err", err)
				continue
			}
			if runningSet[m] {
				if err := r.Supervisor.Restart(ctx, m, want); err != nil {
					r.Metrics.Errors.WithLabelValues("restart").Inc()
					r.Logger.Error("restart failed", "market", m, "err", err)
				}
			} else if err := r.Supervisor.Start(ctx, m, want); err != nil {
				r.Metrics.Errors.WithLabelValues("start").Inc()
				r.Logger.Error("start failed", "market", m, "err", err)
			}
		} else if !runningSet[m] {
			if err := r.Supervisor.Start(ctx, m, want); err != nil {
				r.Metrics.Errors.WithLabelValues("start").Inc()
				r.Logger.Error("start failed", "market", m, "err", err)
			}
		}
	}

	current := r.Supervisor.Running()
	if err := PublishActive(ctx, r.Bus, current); err != nil {
		r.Metrics.Errors.WithLabelValues("write_status").Inc()
		r.Logger.Error("publish active markets failed", "err", err)
	}

	r.Metrics.Active.Set(float64(len(current)))
	for m, p := range portMap {
		r.Metrics.Port.WithLabelValues(m).Set(float64(p))
	}
	r.Metrics.LastOKUnix.SetToCurrentTime()

	r.portsMu.Lock()
	r.ports = portMap
	r.portsMu.Unlock()
}

func toSet(markets []string) map[string]bool {
	s := make(map[string]bool, len(markets))
	for _, m := range markets {
		s[m] = true
	}
	return s
}
