// Trading core — component D: consumes scored signals, evaluates risk
// guards in order (kill switch, slot cap, global/per-asset exposure,
// available quote balance), and appends accepted intents to the order
// outbox.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bitvavo-trading-core/internal/bus"
	"bitvavo-trading-core/internal/config"
	"bitvavo-trading-core/internal/logging"
	"bitvavo-trading-core/internal/tradingcore"
)

func main() {
	cfgPath := "configs/tradingcore.yaml"
	if p := os.Getenv("TRADINGCORE_CONFIG"); p != "" {
		cfgPath = p
	}

	var cfg config.TradingCore
	if err := config.Load(cfgPath, "TRADINGCORE", &cfg); err != nil {
		panic(err)
	}

	logger := logging.New(cfg.Logging, "tradingcore")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := bus.Connect(ctx, cfg.Bus)
	if err != nil {
		logger.Error("bus connect failed", "err", err)
		os.Exit(1)
	}
	defer b.Close()

	signalStream := orDefault(cfg.SignalStream, "signals:baseline")
	outboxStream := orDefault(cfg.OrderOutboxStream, "orders:outbox")
	eventsStream := orDefault(cfg.EventsStream, "events:tradingcore")

	runner := &tradingcore.Runner{
		Bus:          b,
		Logger:       logger,
		SignalStream: signalStream,
		Group:        "tradingcore",
		Consumer:     "tradingcore-" + uuid.NewString(),
		OutboxStream: outboxStream,
		EventsStream: eventsStream,
		Guards: tradingcore.GuardConfig{
			MaxConcurrentPos:     cfg.MaxConcurrentPos,
			MaxGlobalExposureEUR: cfg.MaxGlobalExposureEUR,
			MaxPerAssetEUR:       cfg.MaxPerAssetEUR,
			PerAssetFrac:         cfg.PerAssetFrac,
		},
		Exit: tradingcore.ExitConfig{
			Mode:     "tp_sl_trail",
			TPPct:    cfg.TPPct,
			SLPct:    cfg.SLPct,
			TrailPct: cfg.TrailingPct,
		},
		DryRun: cfg.DryRun,
	}

	reg := prometheus.NewRegistry()
	startMetricsServer(reg, logger)

	logger.Info("trading core starting", "signal_stream", signalStream, "outbox_stream", outboxStream, "dry_run", cfg.DryRun)

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
			logger.Error("trading core exited", "err", err)
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func startMetricsServer(reg *prometheus.Registry, logger *slog.Logger) {
	addr := ":9103"
	if p := os.Getenv("PROM_PORT"); p != "" {
		addr = ":" + p
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go http.ListenAndServe(addr, mux)
	logger.Info("metrics server listening", "addr", addr)
}
