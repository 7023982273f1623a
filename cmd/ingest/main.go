// Ingest / book reconstructor — component B: subscribes to Bitvavo's
// book, candle, and ticker channels, reconstructs each market's local
// order book per the nonce-resync protocol, and lands raw events into
// Parquet alongside the deduplicated top-of-book stream.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bitvavo-trading-core/internal/bus"
	"bitvavo-trading-core/internal/config"
	"bitvavo-trading-core/internal/exchangeclient"
	"bitvavo-trading-core/internal/ingest"
	"bitvavo-trading-core/internal/landing"
	"bitvavo-trading-core/internal/logging"
)

func main() {
	cfgPath := "configs/ingest.yaml"
	if p := os.Getenv("INGEST_CONFIG"); p != "" {
		cfgPath = p
	}

	var cfg config.Ingest
	if err := config.Load(cfgPath, "INGEST", &cfg); err != nil {
		panic(err)
	}

	logger := logging.New(cfg.Logging, "ingest")

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

	conn, err := ingest.Dial(ctx, cfg.Exchange.WSURL)
	if err != nil {
		logger.Error("ws dial failed", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	markets := cfg.Markets
	if len(markets) == 0 {
		metas, err := exch.Markets(ctx)
		if err != nil {
			logger.Error("market discovery failed", "err", err)
			os.Exit(1)
		}
		for _, m := range metas {
			if strings.HasSuffix(m.Market, "-EUR") {
				markets = append(markets, m.Market)
			}
		}
	}

	sinkCfg := landing.DefaultConfig()
	if cfg.ParquetDir != "" {
		sinkCfg.BaseDir = cfg.ParquetDir
	}
	sink := landing.NewSink(sinkCfg)

	icfg := ingest.DefaultConfig()
	icfg.Markets = markets
	if cfg.Depth > 0 {
		icfg.Depth = cfg.Depth
	}
	if cfg.DrainGraceMs > 0 {
		icfg.DrainGrace = time.Duration(cfg.DrainGraceMs) * time.Millisecond
	}

	runner := ingest.NewRunner(conn, exch, b, sink, logger, icfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ingest_markets_tracked", Help: "Number of markets this ingest instance tracks.",
	}, func() float64 { return float64(len(markets)) }))
	startMetricsServer(reg, logger)

	logger.Info("ingest starting", "markets", len(markets), "depth", icfg.Depth, "dry_run", cfg.DryRun)

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error("ingest runner exited", "err", err)
		}
	}
}

func startMetricsServer(reg *prometheus.Registry, logger *slog.Logger) {
	addr := ":9101"
	if p := os.Getenv("PROM_PORT"); p != "" {
		addr = ":" + p
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	logger.Info("metrics server listening", "addr", addr)
}
