package tradingcore

import (
	"context"
	"fmt"

	"bitvavo-trading-core/internal/bus"
)

// epsilon matches executor.py's 1e-9 cap-comparison tolerance.
const epsilon = 1e-9

// GuardConfig carries the risk limits evaluated in order. Zero/negative
// values disable the corresponding cap, exactly as the Python
// build_default_conf treats 0.0 as "uncapped".
type GuardConfig struct {
	MaxConcurrentPos     int
	MaxGlobalExposureEUR float64
	MaxPerAssetEUR       float64
	PerAssetFrac         float64
}

// Caps is the result of compute_caps: the effective global and
// per-asset exposure ceilings for this evaluation.
type Caps struct {
	Global   float64
	PerAsset float64
}

// KVReader is the subset of bus operations the guard evaluator needs.
type KVReader interface {
	Get(ctx context.Context, key string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HLen(ctx context.Context, key string) (int64, error)
}

const (
	KeyEURAvailable  = "account:eur_available"
	KeySlotBudgetEUR = "account:slot_budget_eur"
	KeyExposure      = "trading:exposure"
	KeyPositions     = "trading:positions"
	KeyKillSwitch    = "trading:kill"
	globalKey        = "_global"
)

// Snapshot is the state read from the bus immediately before evaluating
// guards for one intent.
type Snapshot struct {
	KillSwitch   bool
	PositionsN   int64
	GlobalExposure float64
	AssetExposure  float64
	EURAvailable   float64
	SlotBudgetEUR  float64
}

// ReadSnapshot pulls every value blocked_by_guards needs in one pass.
func ReadSnapshot(ctx context.Context, r KVReader, market string) (Snapshot, error) {
	var s Snapshot

	kill, err := r.Get(ctx, KeyKillSwitch)
	if err != nil {
		return s, fmt.Errorf("tradingcore: read kill switch: %w", err)
	}
	s.KillSwitch = isTruthy(kill)

	n, err := r.HLen(ctx, KeyPositions)
	if err != nil {
		return s, fmt.Errorf("tradingcore: read positions count: %w", err)
	}
	s.PositionsN = n

	exposure, err := r.HGetAll(ctx, KeyExposure)
	if err != nil {
		return s, fmt.Errorf("tradingcore: read exposure: %w", err)
	}
	s.GlobalExposure = parseFloat(exposure[globalKey])
	s.AssetExposure = parseFloat(exposure[market])

	eurAvail, err := r.Get(ctx, KeyEURAvailable)
	if err != nil {
		return s, fmt.Errorf("tradingcore: read eur_available: %w", err)
	}
	s.EURAvailable = parseFloat(eurAvail)

	slotBudget, err := r.Get(ctx, KeySlotBudgetEUR)
	if err != nil {
		return s, fmt.Errorf("tradingcore: read slot_budget_eur: %w", err)
	}
	s.SlotBudgetEUR = parseFloat(slotBudget)

	return s, nil
}

// ComputeCaps mirrors executor.py's compute_caps exactly: the global cap
// falls back to current_global + eur_available when uncapped; the
// per-asset cap folds in PER_ASSET_FRAC-of-global and slot_budget_eur
// via minimum, but only when each is itself positive.
func ComputeCaps(cfg GuardConfig, s Snapshot) Caps {
	global := cfg.MaxGlobalExposureEUR
	if global <= 0 {
		global = s.GlobalExposure + s.EURAvailable
	}

	perAsset := cfg.MaxPerAssetEUR
	if cfg.PerAssetFrac > 0 {
		byFrac := cfg.PerAssetFrac * global
		if perAsset <= 0 || byFrac < perAsset {
			perAsset = byFrac
		}
	}
	if s.SlotBudgetEUR > 0 {
		if perAsset <= 0 || s.SlotBudgetEUR < perAsset {
			perAsset = s.SlotBudgetEUR
		}
	}

	return Caps{Global: global, PerAsset: perAsset}
}

// BlockedByGuards evaluates the guard chain in the exact order
// executor.py's blocked_by_guards uses, returning the first failing
// reason.
func BlockedByGuards(cfg GuardConfig, s Snapshot, sizeEUR float64) (blocked bool, reason string) {
	if s.KillSwitch {
		return true, "kill_switch"
	}
	if cfg.MaxConcurrentPos > 0 && s.PositionsN >= int64(cfg.MaxConcurrentPos) {
		return true, fmt.Sprintf("slot cap %d>=%d", s.PositionsN, cfg.MaxConcurrentPos)
	}

	caps := ComputeCaps(cfg, s)

	if s.GlobalExposure+sizeEUR > caps.Global+epsilon {
		return true, fmt.Sprintf("global cap %.2f>%.2f", s.GlobalExposure+sizeEUR, caps.Global)
	}
	if caps.PerAsset > 0 && s.AssetExposure+sizeEUR > caps.PerAsset+epsilon {
		return true, fmt.Sprintf("asset cap %.2f>%.2f", s.AssetExposure+sizeEUR, caps.PerAsset)
	}
	if s.EURAvailable > 0 && sizeEUR > s.EURAvailable+epsilon {
		return true, fmt.Sprintf("eur_available %.2f<%.2f", s.EURAvailable, sizeEUR)
	}

	return false, ""
}

// BumpExposure atomically increments the per-market and global exposure
// counters and the per-market position counter — executor.py's
// bump_exposure, via HINCRBYFLOAT.
func BumpExposure(ctx context.Context, b *bus.Bus, market string, deltaEUR float64) error {
	if _, err := b.HIncrByFloat(ctx, KeyExposure, market, deltaEUR); err != nil {
		return fmt.Errorf("tradingcore: bump exposure %s: %w", market, err)
	}
	if _, err := b.HIncrByFloat(ctx, KeyExposure, globalKey, deltaEUR); err != nil {
		return fmt.Errorf("tradingcore: bump global exposure: %w", err)
	}
	if _, err := b.HIncrByFloat(ctx, KeyPositions, market, deltaEUR); err != nil {
		return fmt.Errorf("tradingcore: bump positions %s: %w", market, err)
	}
	return nil
}

func isTruthy(s string) bool {
	switch s {
	case "1", "true", "on", "yes", "TRUE", "True":
		return true
	default:
		return false
	}
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	if err != nil {
		return 0
	}
	return v
}
