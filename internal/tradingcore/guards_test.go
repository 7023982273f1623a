package tradingcore

import "testing"

// TestGuardExposureCap checks that a new intent crossing the global
// exposure cap is blocked.
func TestGuardExposureCap(t *testing.T) {
	cfg := GuardConfig{MaxGlobalExposureEUR: 100}
	snap := Snapshot{GlobalExposure: 80, EURAvailable: 1000}

	blocked, reason := BlockedByGuards(cfg, snap, 25)
	if !blocked {
		t.Fatalf("expected intent to be blocked")
	}
	if got := reason; len(got) < len("global cap") || got[:len("global cap")] != "global cap" {
		t.Fatalf("expected reason to start with 'global cap', got %q", reason)
	}
}

func TestGuardKillSwitchFirst(t *testing.T) {
	cfg := GuardConfig{MaxGlobalExposureEUR: 1000}
	snap := Snapshot{KillSwitch: true}
	blocked, reason := BlockedByGuards(cfg, snap, 1)
	if !blocked || reason != "kill_switch" {
		t.Fatalf("expected kill_switch to be the first and only reason, got blocked=%v reason=%q", blocked, reason)
	}
}

func TestGuardSlotCap(t *testing.T) {
	cfg := GuardConfig{MaxConcurrentPos: 2, MaxGlobalExposureEUR: 1000}
	snap := Snapshot{PositionsN: 2}
	blocked, _ := BlockedByGuards(cfg, snap, 1)
	if !blocked {
		t.Fatalf("expected slot cap to block")
	}
}

func TestComputeCapsCombinesPerAssetSources(t *testing.T) {
	cfg := GuardConfig{MaxGlobalExposureEUR: 1000, MaxPerAssetEUR: 300, PerAssetFrac: 0.1}
	snap := Snapshot{SlotBudgetEUR: 50}
	caps := ComputeCaps(cfg, snap)

	// global=1000; frac cap = 0.1*1000=100 < 300 -> perAsset=100; slotBudget=50 < 100 -> perAsset=50
	if caps.PerAsset != 50 {
		t.Fatalf("expected combined per-asset cap of 50, got %v", caps.PerAsset)
	}
}

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		name    string
		details map[string]float64
		want    string
	}{
		{"empty", nil, "generic"},
		{"wick", map[string]float64{"wick_ratio": 2.5}, "mean_reversion"},
		{"vol", map[string]float64{"vol_std": 0.01}, "momentum"},
		{"other", map[string]float64{"spread_bps": 5}, "generic"},
	}
	for _, c := range cases {
		got := ClassifyIntent(c.details)
		if string(got) != c.want {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, got)
		}
	}
}

func TestParseIntentRejectsMalformed(t *testing.T) {
	if _, err := ParseIntent("s1", SignalFields{Market: "", Side: "buy"}); err == nil {
		t.Fatalf("expected error for missing market")
	}
	if _, err := ParseIntent("s1", SignalFields{Market: "BTC-EUR", Side: "hold"}); err == nil {
		t.Fatalf("expected error for unknown side")
	}
}
