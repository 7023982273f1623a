// Reconciler + metrics mux — component G: supervises one guard child
// process per desired market with a bounded concurrency budget, and
// merges every guard's /metrics endpoint into a single scrape target.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bitvavo-trading-core/internal/bus"
	"bitvavo-trading-core/internal/config"
	"bitvavo-trading-core/internal/logging"
	"bitvavo-trading-core/internal/metricsmux"
	"bitvavo-trading-core/internal/reconciler"
)

func main() {
	cfgPath := "configs/reconciler.yaml"
	if p := os.Getenv("RECONCILER_CONFIG"); p != "" {
		cfgPath = p
	}

	var cfg config.Reconciler
	if err := config.Load(cfgPath, "RECONCILER", &cfg); err != nil {
		panic(err)
	}

	logger := logging.New(cfg.Logging, "reconciler")

	if cfg.GuardBinary == "" {
		logger.Error("guard_binary is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := bus.Connect(ctx, cfg.Bus)
	if err != nil {
		logger.Error("bus connect failed", "err", err)
		os.Exit(1)
	}
	defer b.Close()

	rcfg := reconciler.DefaultConfig()
	if cfg.MaxConcurrency > 0 {
		rcfg.MaxConcurrency = cfg.MaxConcurrency
	}
	if cfg.PromBase > 0 {
		rcfg.PromBase = cfg.PromBase
	}
	if cfg.PromRange > 0 {
		rcfg.PromRange = cfg.PromRange
	}
	if len(cfg.DenyBases) > 0 {
		rcfg.DenyBases = cfg.DenyBases
	}
	if cfg.EnvDir != "" {
		rcfg.EnvDir = cfg.EnvDir
	}
	if cfg.LoopIntervalSec > 0 {
		rcfg.LoopInterval = time.Duration(cfg.LoopIntervalSec * float64(time.Second))
	}
	rcfg.GuardBinary = cfg.GuardBinary

	reconcileReg := prometheus.NewRegistry()
	reconcileMetrics := reconciler.NewMetrics(reconcileReg)
	supervisor := reconciler.NewProcessSupervisor(cfg.GuardBinary)

	recRunner := &reconciler.Runner{
		Bus:        b,
		Supervisor: supervisor,
		Metrics:    reconcileMetrics,
		Logger:     logger,
		Cfg:        rcfg,
	}

	muxReg := prometheus.NewRegistry()
	muxMetrics := metricsmux.NewMetrics(muxReg)
	muxCfg := metricsmux.DefaultConfig()
	if cfg.MuxAddr != "" {
		muxCfg.Addr = cfg.MuxAddr
	}
	mux := metricsmux.New(muxCfg, recRunner.Ports, muxMetrics, logger)

	logger.Info("reconciler starting", "guard_binary", cfg.GuardBinary, "max_concurrency", rcfg.MaxConcurrency, "mux_addr", muxCfg.Addr)

	errCh := make(chan error, 2)
	go func() { errCh <- recRunner.Run(ctx) }()
	go func() { errCh <- mux.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigCh:
		logger.Info("received shutdown signal", "signal", s.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := mux.Stop(shutdownCtx); err != nil {
			logger.Error("mux stop failed", "err", err)
		}
		<-errCh
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error("reconciler exited", "err", err)
		}
	}
}
