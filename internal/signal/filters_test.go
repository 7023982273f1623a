package signal

import "testing"

func TestVolatilitySuppressedBelowMinSamples(t *testing.T) {
	cfg := DefaultConfig()
	returns := make([]float64, cfg.ReturnsWindow/3-1)
	ev := evaluateFilters(cfg, returns, nil, 0, 0, false, 0, false)
	if _, ok := ev.Details["vol_std"]; ok {
		t.Fatalf("vol_std should be suppressed below the minimum sample threshold")
	}
}

func TestVolumeSpikeSuppressedBelowFiveSamples(t *testing.T) {
	cfg := DefaultConfig()
	ev := evaluateFilters(cfg, nil, []float64{1, 2, 3}, 0, 0, false, 0, false)
	if _, ok := ev.Details["vol_last"]; ok {
		t.Fatalf("volume spike predicate should be suppressed below 5 samples")
	}
}

func TestSpreadPredicateFires(t *testing.T) {
	cfg := DefaultConfig()
	ev := evaluateFilters(cfg, nil, nil, 19999, 20001, true, 0, false)
	if !ev.Fired {
		t.Fatalf("expected spread predicate to fire")
	}
	if len(ev.Reasons) != 1 {
		t.Fatalf("expected exactly one reason, got %v", ev.Reasons)
	}
}

func TestWickPredicateFoldedInBeforeEvaluation(t *testing.T) {
	cfg := DefaultConfig()
	wick := WickRatio(10, 13, 9.5, 10.1)
	if wick < cfg.WickRatioMin {
		t.Fatalf("test fixture should produce a wick ratio above threshold, got %v", wick)
	}
	ev := evaluateFilters(cfg, nil, nil, 0, 0, false, wick, true)
	if !ev.Fired {
		t.Fatalf("expected wick predicate to fire when folded in up front")
	}
	if ev.Details["wick_ratio"] != wick {
		t.Fatalf("expected wick_ratio detail to be set")
	}
}

func TestStddevRequiresAtLeastTwoSamples(t *testing.T) {
	if stddev([]float64{0.01}) != 0 {
		t.Fatalf("stddev of a single sample must be 0")
	}
	if stddev(nil) != 0 {
		t.Fatalf("stddev of an empty slice must be 0")
	}
}
