// Package config loads per-binary configuration with viper: a YAML file
// plus environment overrides, following internal/config/config.go from
// the original bot (SetEnvPrefix, "." -> "_" key replacer, AutomaticEnv,
// manual passthrough for secrets, struct-level Validate()).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bitvavo-trading-core/internal/busconfig"
	"bitvavo-trading-core/internal/logging"
)

// Exchange holds the Bitvavo REST credentials and endpoint.
type Exchange struct {
	APIKey      string        `mapstructure:"api_key"`
	APISecret   string        `mapstructure:"api_secret"`
	OperatorID  string        `mapstructure:"operator_id"`
	RESTURL     string        `mapstructure:"rest_url"`
	WSURL       string        `mapstructure:"ws_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Validate checks required exchange fields when not running dry.
func (e Exchange) Validate(dryRun bool) error {
	if dryRun {
		return nil
	}
	if e.APIKey == "" || e.APISecret == "" {
		return fmt.Errorf("exchange: api_key and api_secret are required outside dry-run")
	}
	if e.RESTURL == "" {
		return fmt.Errorf("exchange: rest_url is required")
	}
	return nil
}

// Base is the set of config fields every component binary shares.
type Base struct {
	DryRun  bool              `mapstructure:"dry_run"`
	Bus     busconfig.Config  `mapstructure:"bus"`
	Logging logging.Config    `mapstructure:"logging"`
}

// Ingest is cmd/ingest's config — component B.
type Ingest struct {
	Base        `mapstructure:",squash"`
	Exchange    Exchange `mapstructure:"exchange"`
	Markets     []string `mapstructure:"markets"` // empty == "all -EUR markets"
	Depth       int      `mapstructure:"orderbook_depth"`
	DrainGraceMs int     `mapstructure:"drain_grace_ms"`
	RateMin     float64  `mapstructure:"rate_min"`
	ParquetDir  string   `mapstructure:"parquet_dir"`
}

// Signals is cmd/signals's config — component C.
type Signals struct {
	Base           `mapstructure:",squash"`
	ReturnsWindow  int     `mapstructure:"vol_window"`
	VolumeWindow   int     `mapstructure:"vol_spike_window"`
	SpreadBpsMax   float64 `mapstructure:"spread_bps_max"`
	VolStdMin      float64 `mapstructure:"vol_std_min"`
	VolSpikeMult   float64 `mapstructure:"vol_spike_mult"`
	WickRatioMin   float64 `mapstructure:"wick_ratio_min"`
	SignalStream   string  `mapstructure:"signal_stream"`
}

// TradingCore is cmd/tradingcore's config — component D.
type TradingCore struct {
	Base                 `mapstructure:",squash"`
	SignalStream         string  `mapstructure:"signal_stream"`
	OrderOutboxStream    string  `mapstructure:"order_outbox_stream"`
	EventsStream         string  `mapstructure:"events_stream"`
	MaxConcurrentPos     int     `mapstructure:"max_concurrent_pos"`
	MaxGlobalExposureEUR float64 `mapstructure:"max_global_exposure_eur"`
	MaxPerAssetEUR       float64 `mapstructure:"max_per_asset_eur"`
	PerAssetFrac         float64 `mapstructure:"per_asset_frac"`
	TPPct                float64 `mapstructure:"tp_pct"`
	SLPct                float64 `mapstructure:"sl_pct"`
	TrailingPct          float64 `mapstructure:"trailing_pct"`
}

// Executor is cmd/executor's config — component E.
type Executor struct {
	Base              `mapstructure:",squash"`
	Exchange          Exchange `mapstructure:"exchange"`
	OrderOutboxStream string   `mapstructure:"order_outbox_stream"`
	ExecutedStream    string   `mapstructure:"executed_stream"`
	EventsStream      string   `mapstructure:"events_stream"`
	PrecisionCachePath string  `mapstructure:"precision_cache_path"`
}

// Guard is cmd/guard's config — component F, one process per market.
type Guard struct {
	Base         `mapstructure:",squash"`
	Exchange     Exchange `mapstructure:"exchange"`
	Market       string   `mapstructure:"market"`
	TPPct        float64  `mapstructure:"tp_pct"`
	SLPct        float64  `mapstructure:"sl_pct"`
	TrailingPct  float64  `mapstructure:"trailing_pct"`
	PollInterval float64  `mapstructure:"poll_interval_sec"`
	LeaseTTLSec  float64  `mapstructure:"lease_ttl_sec"`
	PromPort     int      `mapstructure:"prom_port"`
}

// Reconciler is cmd/reconciler's config — component G.
type Reconciler struct {
	Base            `mapstructure:",squash"`
	GuardBinary     string   `mapstructure:"guard_binary"`
	EnvDir          string   `mapstructure:"env_dir"`
	MaxConcurrency  int      `mapstructure:"guard_max_concurrency"`
	PromBase        int      `mapstructure:"guard_prom_base"`
	PromRange       int      `mapstructure:"guard_prom_range"`
	DenyBases       []string `mapstructure:"pairsel_deny_bases"`
	LoopIntervalSec float64  `mapstructure:"loop_interval_sec"`
	MuxAddr         string   `mapstructure:"mux_addr"`
}

// Load reads the YAML config file at path (each cmd main resolves it
// from <envPrefix>_CONFIG), applies environment overrides under
// envPrefix, and unmarshals into out. Sensitive fields are bound to
// their bare env vars (BITVAVO_API_KEY, BITVAVO_API_SECRET, DRY_RUN)
// so those always win even if the YAML key is present but empty.
func Load(path, envPrefix string, out interface{}) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("exchange.api_key", "BITVAVO_API_KEY", envPrefix+"_EXCHANGE_API_KEY")
	_ = v.BindEnv("exchange.api_secret", "BITVAVO_API_SECRET", envPrefix+"_EXCHANGE_API_SECRET")
	_ = v.BindEnv("dry_run", "DRY_RUN", envPrefix+"_DRY_RUN")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	return nil
}
