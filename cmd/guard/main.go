// Exit guard — component F: one process per market, holding a
// lease-enforced singleton that places/refreshes a TP limit order and
// maintains a virtual SL/trailing stop until a fill or trigger closes
// the position out.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bitvavo-trading-core/internal/bus"
	"bitvavo-trading-core/internal/config"
	"bitvavo-trading-core/internal/exchangeclient"
	"bitvavo-trading-core/internal/guard"
	"bitvavo-trading-core/internal/logging"
)

func main() {
	cfgPath := "configs/guard.yaml"
	if p := os.Getenv("GUARD_CONFIG"); p != "" {
		cfgPath = p
	}

	var cfg config.Guard
	if err := config.Load(cfgPath, "GUARD", &cfg); err != nil {
		panic(err)
	}

	market := cfg.Market
	if m := os.Getenv("MARKET"); m != "" {
		market = m
	}
	if market == "" {
		panic("guard: MARKET is required")
	}

	logger := logging.New(cfg.Logging, "guard").With("market", market)

	if err := cfg.Exchange.Validate(cfg.DryRun); err != nil {
		logger.Error("invalid exchange config", "err", err)
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

	exch := exchangeclient.New(exchangeclient.Config{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		OperatorID: cfg.Exchange.OperatorID,
		BaseURL:    cfg.Exchange.RESTURL,
		Timeout:    cfg.Exchange.Timeout,
		DryRun:     cfg.DryRun,
	})

	leaseTTL := guard.DefaultLeaseTTL
	if cfg.LeaseTTLSec > 0 {
		leaseTTL = time.Duration(cfg.LeaseTTLSec * float64(time.Second))
	}
	lease := guard.NewLease(b.Raw(), market, leaseTTL)

	gcfg := guard.DefaultConfig()
	if cfg.TPPct > 0 {
		gcfg.TakeProfitPct = cfg.TPPct
	}
	if cfg.SLPct > 0 {
		gcfg.StopLossPct = cfg.SLPct
	}
	if cfg.TrailingPct > 0 {
		gcfg.TrailSLPct = cfg.TrailingPct
	}
	if cfg.PollInterval > 0 {
		gcfg.PollInterval = cfg.PollInterval
	}
	if cfg.LeaseTTLSec > 0 {
		gcfg.LeaseTTL = cfg.LeaseTTLSec
	}
	gcfg.AllowLive = !cfg.DryRun

	reg := prometheus.NewRegistry()
	metrics := guard.NewMetrics(reg, market)
	startMetricsServer(reg, cfg.PromPort, logger)

	runner := guard.NewRunner(market, b, exch, lease, metrics, logger, gcfg, 0)

	logger.Info("exit guard starting", "tp_pct", gcfg.TakeProfitPct, "sl_pct", gcfg.StopLossPct, "trail_pct", gcfg.TrailSLPct)

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigCh:
		logger.Info("received shutdown signal", "signal", s.String())
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error("exit guard exited", "err", err)
		}
	}
}

func startMetricsServer(reg *prometheus.Registry, port int, logger *slog.Logger) {
	if p := os.Getenv("PROM_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}
	if port <= 0 {
		port = 9106
	}
	addr := ":" + strconv.Itoa(port)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go http.ListenAndServe(addr, mux)
	logger.Info("metrics server listening", "addr", addr)
}
