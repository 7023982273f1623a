package book

import (
	"testing"
	"time"

	"bitvavo-trading-core/internal/types"
)

func lvl(p, a float64) types.PriceLevel { return types.PriceLevel{Price: p, Amount: a} }

// TestResyncUnderLoss checks that a gap at nonce 103 that never arrives
// within the drain grace forces OutOfSync.
func TestResyncUnderLoss(t *testing.T) {
	now := time.Now()
	lb := New("BTC-EUR", 10, 50*time.Millisecond)

	lb.ApplySnapshot(types.BookSnapshot{
		Market: "BTC-EUR",
		Nonce:  100,
		Bids:   []types.PriceLevel{lvl(20000, 1)},
		Asks:   []types.PriceLevel{lvl(20001, 1)},
	}, now)

	if lb.CurrentState() != Seeded {
		t.Fatalf("expected Seeded after snapshot, got %v", lb.CurrentState())
	}

	if !lb.TryApplyUpdate(types.BookUpdate{Market: "BTC-EUR", Nonce: 101, Bids: []types.PriceLevel{lvl(20000, 2)}}) {
		t.Fatalf("expected nonce 101 to apply immediately")
	}
	if !lb.TryApplyUpdate(types.BookUpdate{Market: "BTC-EUR", Nonce: 102, Bids: []types.PriceLevel{lvl(20000, 3)}}) {
		t.Fatalf("expected nonce 102 to apply immediately")
	}
	if lb.TryApplyUpdate(types.BookUpdate{Market: "BTC-EUR", Nonce: 104}) {
		t.Fatalf("nonce 104 should buffer, not apply, while 103 is missing")
	}
	if lb.TryApplyUpdate(types.BookUpdate{Market: "BTC-EUR", Nonce: 105}) {
		t.Fatalf("nonce 105 should buffer, not apply")
	}

	if progressed := lb.DrainStep(); progressed {
		t.Fatalf("drain should not progress while 103 is still missing")
	}
	if lb.LastNonce() != 102 {
		t.Fatalf("last nonce should remain 102, got %d", lb.LastNonce())
	}

	future := now.Add(60 * time.Millisecond)
	if !lb.GraceExpired(future) {
		t.Fatalf("grace should have expired")
	}

	lb.MarkOutOfSync()
	if lb.CurrentState() != Unseeded {
		t.Fatalf("expected Unseeded after mark-out-of-sync, got %v", lb.CurrentState())
	}

	lb.ApplySnapshot(types.BookSnapshot{
		Market: "BTC-EUR",
		Nonce:  200,
		Bids:   []types.PriceLevel{lvl(20050, 1)},
		Asks:   []types.PriceLevel{lvl(20051, 1)},
	}, future)
	if lb.LastNonce() != 200 {
		t.Fatalf("expected resume from new snapshot nonce 200, got %d", lb.LastNonce())
	}
}

// TestTopOfBookDedup mirrors scenario S2: two updates that leave the
// top-of-book tuple unchanged must emit exactly one event total.
func TestTopOfBookDedup(t *testing.T) {
	lb := New("BTC-EUR", 10, time.Second)
	lb.ApplySnapshot(types.BookSnapshot{
		Market: "BTC-EUR",
		Nonce:  1,
		Bids:   []types.PriceLevel{lvl(20000.00, 1.0)},
		Asks:   []types.PriceLevel{lvl(20000.10, 1.0)},
	}, time.Now())

	if _, ok := lb.EmitIfChanged(types.SourceSnapshot); !ok {
		t.Fatalf("expected the initial top-of-book to emit")
	}

	lb.TryApplyUpdate(types.BookUpdate{Market: "BTC-EUR", Nonce: 2, Bids: []types.PriceLevel{lvl(20000.00, 1.0)}})
	if _, ok := lb.EmitIfChanged(types.SourceRealtime); ok {
		t.Fatalf("unchanged tuple must not emit a second event")
	}

	lb.TryApplyUpdate(types.BookUpdate{Market: "BTC-EUR", Nonce: 3, Asks: []types.PriceLevel{lvl(20000.10, 1.0)}})
	if _, ok := lb.EmitIfChanged(types.SourceRealtime); ok {
		t.Fatalf("unchanged tuple must not emit a third event")
	}
}

func TestDrainStepLastWinsPerNonce(t *testing.T) {
	lb := New("ETH-EUR", 10, time.Second)

	// Buffered while unseeded, so both nonce-11 updates reach the buffer.
	lb.TryApplyUpdate(types.BookUpdate{Market: "ETH-EUR", Nonce: 12, Bids: []types.PriceLevel{lvl(100, 5)}})
	lb.TryApplyUpdate(types.BookUpdate{Market: "ETH-EUR", Nonce: 11, Bids: []types.PriceLevel{lvl(100, 2)}})
	lb.TryApplyUpdate(types.BookUpdate{Market: "ETH-EUR", Nonce: 11, Bids: []types.PriceLevel{lvl(100, 3)}})

	lb.ApplySnapshot(types.BookSnapshot{Market: "ETH-EUR", Nonce: 10, Bids: []types.PriceLevel{lvl(100, 1)}, Asks: []types.PriceLevel{lvl(101, 1)}}, time.Now())

	if !lb.DrainStep() {
		t.Fatalf("expected drain to find nonce 11")
	}
	if lb.LastNonce() != 11 {
		t.Fatalf("expected last nonce 11, got %d", lb.LastNonce())
	}
	if !lb.DrainStep() {
		t.Fatalf("expected second drain to find nonce 12")
	}
	if lb.LastNonce() != 12 {
		t.Fatalf("expected last nonce 12, got %d", lb.LastNonce())
	}
}
