// Executor — component E: consumes the order outbox and submits each
// intent to Bitvavo, retrying through the bounded decimal-precision
// fallback walk on rejection and caching the accepted precision per
// market.
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
	"bitvavo-trading-core/internal/exchangeclient"
	"bitvavo-trading-core/internal/executor"
	"bitvavo-trading-core/internal/logging"
	"bitvavo-trading-core/internal/precision"
)

func main() {
	cfgPath := "configs/executor.yaml"
	if p := os.Getenv("EXECUTOR_CONFIG"); p != "" {
		cfgPath = p
	}

	var cfg config.Executor
	if err := config.Load(cfgPath, "EXECUTOR", &cfg); err != nil {
		panic(err)
	}

	logger := logging.New(cfg.Logging, "executor")

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

	cachePath := cfg.PrecisionCachePath
	if cachePath == "" {
		cachePath = "/srv/trading/state/precision_cache.json"
	}
	cache, err := precision.Open(cachePath)
	if err != nil {
		logger.Error("precision cache open failed", "err", err)
		os.Exit(1)
	}

	runner := &executor.Runner{
		Bus:            b,
		Exchange:       exch,
		Cache:          cache,
		Logger:         logger,
		OutboxStream:   orDefault(cfg.OrderOutboxStream, "orders:outbox"),
		Group:          "executor",
		Consumer:       "executor-" + uuid.NewString(),
		ExecutedStream: orDefault(cfg.ExecutedStream, "orders:executed"),
		EventsStream:   orDefault(cfg.EventsStream, "events:executor"),
		DryRun:         cfg.DryRun,
	}

	reg := prometheus.NewRegistry()
	startMetricsServer(reg, logger)

	logger.Info("executor starting", "outbox_stream", runner.OutboxStream, "dry_run", cfg.DryRun)

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
			logger.Error("executor exited", "err", err)
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
	addr := ":9104"
	if p := os.Getenv("PROM_PORT"); p != "" {
		addr = ":" + p
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go http.ListenAndServe(addr, mux)
	logger.Info("metrics server listening", "addr", addr)
}
