package reconciler

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestDenySet(t *testing.T) {
	deny := DenySet([]string{" btc ", "eth", "", "SOL"})
	for _, want := range []string{"BTC", "ETH", "SOL"} {
		if !deny[want] {
			t.Fatalf("expected %s in deny set", want)
		}
	}
	if deny[""] {
		t.Fatal("blank entries must not be kept")
	}
}

func TestFilterDenied(t *testing.T) {
	deny := DenySet(DefaultDenyBases)
	markets := []string{"BTC-EUR", "PEPE-EUR", "DOGE-EUR", "USDT-EUR", "malformed", "WIF-EUR"}
	got := FilterDenied(markets, deny)

	want := map[string]bool{"PEPE-EUR": true, "DOGE-EUR": true, "WIF-EUR": true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want markets matching %v", got, want)
	}
	for _, m := range got {
		if !want[m] {
			t.Fatalf("unexpected market survived filter: %s", m)
		}
	}
}

func TestFilterDeniedEmptyDenySetPassesThrough(t *testing.T) {
	markets := []string{"BTC-EUR", "PEPE-EUR"}
	got := FilterDenied(markets, map[string]bool{})
	if len(got) != len(markets) {
		t.Fatalf("expected pass-through with empty deny set, got %v", got)
	}
}

func TestAssignPortsSkipsOccupiedPreviousPort(t *testing.T) {
	dir := t.TempDir()
	if _, err := writeEnv(dir, "PEPE-EUR", 9111); err != nil {
		t.Fatalf("writeEnv: %v", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", 9111))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	mapping := AssignPorts(dir, []string{"PEPE-EUR"}, 9105, 50)
	if mapping["PEPE-EUR"] == 9111 {
		t.Fatal("expected scan-forward since 9111 is occupied by this test")
	}
}

func TestAssignPortsNoCollisions(t *testing.T) {
	dir := t.TempDir()
	markets := []string{"A-EUR", "B-EUR", "C-EUR", "D-EUR"}
	mapping := AssignPorts(dir, markets, 9200, 50)

	seen := make(map[int]bool)
	for _, m := range markets {
		p, ok := mapping[m]
		if !ok {
			t.Fatalf("no port assigned for %s", m)
		}
		if seen[p] {
			t.Fatalf("port %d assigned to more than one market", p)
		}
		seen[p] = true
	}
}

func TestReadWriteCurrentPort(t *testing.T) {
	dir := t.TempDir()
	if _, ok := readCurrentPort(dir, "MISSING-EUR"); ok {
		t.Fatal("expected ok=false for a market with no env file")
	}

	path, err := writeEnv(dir, "PEPE-EUR", 9123)
	if err != nil {
		t.Fatalf("writeEnv: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected env file at %s: %v", path, err)
	}
	if filepath.Base(path) != "PEPE-EUR.env" {
		t.Fatalf("unexpected env filename: %s", path)
	}

	got, ok := readCurrentPort(dir, "PEPE-EUR")
	if !ok || got != 9123 {
		t.Fatalf("got (%d, %v), want (9123, true)", got, ok)
	}
}

func TestToSet(t *testing.T) {
	s := toSet([]string{"A-EUR", "B-EUR"})
	if !s["A-EUR"] || !s["B-EUR"] || s["C-EUR"] {
		t.Fatalf("unexpected set contents: %v", s)
	}
}
