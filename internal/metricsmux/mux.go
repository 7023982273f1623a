// Package metricsmux fetches /metrics from every currently-assigned
// guard port concurrently, merges the bodies into a single Prometheus
// exposition response (de-duplicating each metric family's HELP/TYPE
// lines), and serves the result. guard_reconciler.py only assigns
// ports; it has no scrape-merge analogue, so this package's lifecycle
// (NewServer/Start/Stop over an http.Server) follows the same
// listen-and-shutdown shape used elsewhere in this repo for serving
// HTTP.
package metricsmux

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PortSource returns the current market->port assignment, e.g.
// reconciler.ProcessSupervisor combined with its last AssignPorts
// result.
type PortSource func() map[string]int

// Metrics are the mux's own series, separate from the merged guard
// bodies it proxies.
type Metrics struct {
	ScrapeErrors *prometheus.CounterVec
	Targets      prometheus.Gauge
}

// NewMetrics registers the mux's own series on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScrapeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_mux_scrape_errors_total", Help: "Per-market guard scrape failures.",
		}, []string{"market"}),
		Targets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guard_mux_targets", Help: "Number of guard targets in the current scrape round.",
		}),
	}
	reg.MustRegister(m.ScrapeErrors, m.Targets)
	return m
}

// Config tunes the mux's scrape behavior.
type Config struct {
	Addr          string
	ScrapeTimeout time.Duration
	Path          string
}

// DefaultConfig bounds each scrape round to a small wall-clock budget
// so one slow or dead guard can't stall the whole merged response.
func DefaultConfig() Config {
	return Config{Addr: ":9110", ScrapeTimeout: 3 * time.Second, Path: "/metrics"}
}

// Mux concurrently scrapes each guard's /metrics endpoint and merges
// the bodies into a single exposition-format response on every
// incoming request.
type Mux struct {
	cfg     Config
	ports   PortSource
	metrics *Metrics
	client  *http.Client
	logger  *slog.Logger
	server  *http.Server
}

// New builds a Mux that serves merged scrapes on cfg.Addr.
func New(cfg Config, ports PortSource, metrics *Metrics, logger *slog.Logger) *Mux {
	m := &Mux{
		cfg:     cfg,
		ports:   ports,
		metrics: metrics,
		client:  &http.Client{Timeout: cfg.ScrapeTimeout},
		logger:  logger.With("component", "metricsmux"),
	}

	handler := http.NewServeMux()
	handler.HandleFunc(cfg.Path, m.handleScrape)

	m.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return m
}

// Start runs the mux's HTTP server until it is shut down.
func (m *Mux) Start() error {
	m.logger.Info("metrics mux starting", "addr", m.cfg.Addr)
	if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metricsmux: server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (m *Mux) Stop(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

func (m *Mux) handleScrape(w http.ResponseWriter, r *http.Request) {
	ports := m.ports()
	m.metrics.Targets.Set(float64(len(ports)))

	if len(ports) == 0 {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		io.WriteString(w, "# TYPE guard_mux_targets gauge\nguard_mux_targets 0\n")
		return
	}

	type scrapeResult struct {
		market string
		body   string
		err    error
	}

	results := make(chan scrapeResult, len(ports))
	ctx, cancel := context.WithTimeout(r.Context(), m.cfg.ScrapeTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for market, port := range ports {
		wg.Add(1)
		go func(market string, port int) {
			defer wg.Done()
			body, err := m.scrapeOne(ctx, port)
			results <- scrapeResult{market: market, body: body, err: err}
		}(market, port)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	bodies := make([]string, 0, len(ports))
	for res := range results {
		if res.err != nil {
			m.metrics.ScrapeErrors.WithLabelValues(res.market).Inc()
			m.logger.Warn("guard scrape failed", "market", res.market, "err", res.err)
			continue
		}
		bodies = append(bodies, res.body)
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	io.WriteString(w, merge(bodies))
}

func (m *Mux) scrapeOne(ctx context.Context, port int) (string, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metricsmux: status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// merge concatenates scrape bodies, keeping only the first HELP/TYPE
// line seen per metric family and passing every sample line through
// unchanged.
func merge(bodies []string) string {
	seenMeta := make(map[string]bool)
	var out strings.Builder

	for _, body := range bodies {
		scanner := bufio.NewScanner(strings.NewReader(body))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "# HELP ") || strings.HasPrefix(line, "# TYPE ") {
				family := metricFamily(line)
				key := metaKind(line) + ":" + family
				if seenMeta[key] {
					continue
				}
				seenMeta[key] = true
			}
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func metaKind(line string) string {
	if strings.HasPrefix(line, "# HELP ") {
		return "HELP"
	}
	return "TYPE"
}

func metricFamily(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return line
	}
	return fields[2]
}
