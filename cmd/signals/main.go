// Signal engine — component C: maintains rolling per-market state from
// the ticker/candle/book pass-through streams and emits scored signal
// records whenever the filter bank fires.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bitvavo-trading-core/internal/bus"
	"bitvavo-trading-core/internal/config"
	"bitvavo-trading-core/internal/logging"
	"bitvavo-trading-core/internal/signal"
)

func main() {
	cfgPath := "configs/signals.yaml"
	if p := os.Getenv("SIGNALS_CONFIG"); p != "" {
		cfgPath = p
	}

	var cfg config.Signals
	if err := config.Load(cfgPath, "SIGNALS", &cfg); err != nil {
		panic(err)
	}

	logger := logging.New(cfg.Logging, "signals")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := bus.Connect(ctx, cfg.Bus)
	if err != nil {
		logger.Error("bus connect failed", "err", err)
		os.Exit(1)
	}
	defer b.Close()

	sigCfg := signal.DefaultConfig()
	if cfg.ReturnsWindow > 0 {
		sigCfg.ReturnsWindow = cfg.ReturnsWindow
	}
	if cfg.VolumeWindow > 0 {
		sigCfg.VolumeWindow = cfg.VolumeWindow
	}
	if cfg.SpreadBpsMax > 0 {
		sigCfg.SpreadBpsMax = cfg.SpreadBpsMax
	}
	if cfg.VolStdMin > 0 {
		sigCfg.VolStdMin = cfg.VolStdMin
	}
	if cfg.VolSpikeMult > 0 {
		sigCfg.VolSpikeMult = cfg.VolSpikeMult
	}
	if cfg.WickRatioMin > 0 {
		sigCfg.WickRatioMin = cfg.WickRatioMin
	}

	streamCfg := signal.DefaultStreamConfig()
	if cfg.SignalStream != "" {
		streamCfg.SignalStream = cfg.SignalStream
	}

	runner := signal.NewRunner(b, logger, sigCfg, streamCfg)

	reg := prometheus.NewRegistry()
	startMetricsServer(reg, logger)

	logger.Info("signal engine starting", "signal_stream", streamCfg.SignalStream)

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigCh:
		logger.Info("received shutdown signal", "signal", s.String())
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error("signal engine exited", "err", err)
		}
	}
}

func startMetricsServer(reg *prometheus.Registry, logger *slog.Logger) {
	addr := ":9102"
	if p := os.Getenv("PROM_PORT"); p != "" {
		addr = ":" + p
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go http.ListenAndServe(addr, mux)
	logger.Info("metrics server listening", "addr", addr)
}
