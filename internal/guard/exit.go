package guard

import "bitvavo-trading-core/internal/types"

// Config carries the TP/SL/trailing percentages, polling cadence, and
// live-order gate a guard Runner evaluates against — TAKE_PROFIT_PCT,
// STOP_LOSS_PCT, TRAIL_SL_PCT, GUARD_POLL_SEC, GUARD_ALLOW_LIVE.
type Config struct {
	TakeProfitPct float64
	StopLossPct   float64
	TrailSLPct    float64
	PollInterval  float64 // seconds
	AllowLive     bool
	LeaseTTL      float64 // seconds, 0 -> DefaultLeaseTTL
}

// DefaultConfig mirrors order_guard_virtual.py's ENV defaults.
func DefaultConfig() Config {
	return Config{
		TakeProfitPct: 0.008,
		StopLossPct:   0.006,
		TrailSLPct:    0.004,
		PollInterval:  0.5,
		AllowLive:     true,
	}
}

// TakeProfitPrice is avg * (1 + TAKE_PROFIT_PCT), unrounded; the caller
// (placeTP) truncates it to 8 decimals via internal/precision before
// sending the limit order.
func TakeProfitPrice(cfg Config, vp types.VirtualPosition) float64 {
	return vp.Avg * (1 + cfg.TakeProfitPct)
}

// StopPrice is max(hard stop-loss, trailing stop) — the greater of the
// two never fires the looser one, exactly order_guard_virtual.py's
// sl_px = max(hard_sl, trail_sl).
func StopPrice(cfg Config, vp types.VirtualPosition) float64 {
	hardSL := vp.Avg * (1 - cfg.StopLossPct)
	trailSL := vp.Peak * (1 - cfg.TrailSLPct)
	if hardSL > trailSL {
		return hardSL
	}
	return trailSL
}

// ShouldTrigger reports whether the current price has fallen to or
// through the stop price.
func ShouldTrigger(cfg Config, vp types.VirtualPosition, price float64) bool {
	return price <= StopPrice(cfg, vp)
}

// UpdatePeak returns vp with Peak raised to price if price is a new high.
func UpdatePeak(vp types.VirtualPosition, price float64) types.VirtualPosition {
	if price > vp.Peak {
		vp.Peak = price
	}
	return vp
}
