package guard

import (
	"testing"

	"bitvavo-trading-core/internal/types"
)

func TestStopPriceUsesMaxOfHardAndTrailing(t *testing.T) {
	cfg := Config{StopLossPct: 0.006, TrailSLPct: 0.004}
	vp := types.VirtualPosition{Avg: 100, Peak: 110}

	hardSL := 100 * (1 - 0.006)
	trailSL := 110 * (1 - 0.004)
	want := trailSL
	if hardSL > trailSL {
		want = hardSL
	}

	if got := StopPrice(cfg, vp); got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestShouldTriggerAtOrBelowStop(t *testing.T) {
	cfg := Config{StopLossPct: 0.01, TrailSLPct: 0.01}
	vp := types.VirtualPosition{Avg: 100, Peak: 100}
	stop := StopPrice(cfg, vp)

	if !ShouldTrigger(cfg, vp, stop) {
		t.Fatalf("expected trigger exactly at stop price")
	}
	if ShouldTrigger(cfg, vp, stop+0.01) {
		t.Fatalf("did not expect trigger above stop price")
	}
}

func TestUpdatePeakOnlyRaises(t *testing.T) {
	vp := types.VirtualPosition{Peak: 100}
	vp = UpdatePeak(vp, 90)
	if vp.Peak != 100 {
		t.Fatalf("expected peak unchanged on lower price, got %v", vp.Peak)
	}
	vp = UpdatePeak(vp, 120)
	if vp.Peak != 120 {
		t.Fatalf("expected peak raised to 120, got %v", vp.Peak)
	}
}

func TestTakeProfitPrice(t *testing.T) {
	cfg := Config{TakeProfitPct: 0.008}
	vp := types.VirtualPosition{Avg: 100}
	if got, want := TakeProfitPrice(cfg, vp), 100.8; got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
