package metricsmux

import (
	"strings"
	"testing"
)

func TestMergeDeduplicatesHelpAndType(t *testing.T) {
	a := "# HELP guard_tp_orders_open TP orders open\n# TYPE guard_tp_orders_open gauge\nguard_tp_orders_open{market=\"PEPE-EUR\"} 1\n"
	b := "# HELP guard_tp_orders_open TP orders open\n# TYPE guard_tp_orders_open gauge\nguard_tp_orders_open{market=\"WIF-EUR\"} 0\n"

	got := merge([]string{a, b})

	helpCount := 0
	for _, line := range strings.Split(got, "\n") {
		if line == "# HELP guard_tp_orders_open TP orders open" {
			helpCount++
		}
	}
	if helpCount != 1 {
		t.Fatalf("expected exactly one HELP line, got %d in:\n%s", helpCount, got)
	}

	if !strings.Contains(got, `guard_tp_orders_open{market="PEPE-EUR"} 1`) ||
		!strings.Contains(got, `guard_tp_orders_open{market="WIF-EUR"} 0`) {
		t.Fatalf("expected both sample lines preserved, got:\n%s", got)
	}
}

func TestMergeDistinctFamiliesBothKept(t *testing.T) {
	a := "# HELP guard_sl_triggers_total SL triggers\n# TYPE guard_sl_triggers_total counter\nguard_sl_triggers_total 2\n"
	b := "# HELP guard_tp_orders_open TP orders open\n# TYPE guard_tp_orders_open gauge\nguard_tp_orders_open 1\n"

	got := merge([]string{a, b})
	if !strings.Contains(got, "guard_sl_triggers_total") || !strings.Contains(got, "guard_tp_orders_open") {
		t.Fatalf("expected both families present, got:\n%s", got)
	}
}

func TestMergeEmptyInput(t *testing.T) {
	if got := merge(nil); got != "" {
		t.Fatalf("expected empty merge of no bodies, got %q", got)
	}
}

func TestMetricFamily(t *testing.T) {
	cases := map[string]string{
		"# HELP guard_tp_orders_open TP orders open": "guard_tp_orders_open",
		"# TYPE guard_sl_triggers_total counter":      "guard_sl_triggers_total",
	}
	for line, want := range cases {
		if got := metricFamily(line); got != want {
			t.Fatalf("metricFamily(%q) = %q, want %q", line, got, want)
		}
	}
}
