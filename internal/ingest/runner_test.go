package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"bitvavo-trading-core/internal/book"
	"bitvavo-trading-core/internal/types"
)

func TestToLevelsSkipsMalformedEntries(t *testing.T) {
	raw := [][2]string{{"100.5", "2.0"}, {"bad", "1.0"}, {"101.0", "not-a-number"}, {"99.9", "3.5"}}
	levels := toLevels(raw)
	if len(levels) != 2 {
		t.Fatalf("expected 2 valid levels, got %d: %+v", len(levels), levels)
	}
	if levels[0].Price != 100.5 || levels[0].Amount != 2.0 {
		t.Fatalf("unexpected first level: %+v", levels[0])
	}
	if levels[1].Price != 99.9 || levels[1].Amount != 3.5 {
		t.Fatalf("unexpected second level: %+v", levels[1])
	}
}

func TestSprintfTopic(t *testing.T) {
	got := sprintfTopic("bitvavo:book:%s", "BTC-EUR")
	if got != "bitvavo:book:BTC-EUR" {
		t.Fatalf("unexpected topic: %q", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.SubChunk != 25 {
		t.Fatalf("expected default sub chunk of 25, got %d", cfg.SubChunk)
	}
	if cfg.AggregateTopic != "bitvavo:book" {
		t.Fatalf("unexpected aggregate topic: %q", cfg.AggregateTopic)
	}
}

func TestTickOnceMarksOutOfSyncAfterGraceExpires(t *testing.T) {
	lb := book.New("BTC-EUR", 10, 10*time.Millisecond)
	lb.ApplySnapshot(types.BookSnapshot{Market: "BTC-EUR", Nonce: 100}, time.Now().Add(-time.Hour))
	// A buffered update that never fills the gap at nonce 101.
	lb.TryApplyUpdate(types.BookUpdate{Market: "BTC-EUR", Nonce: 105})

	r := &Runner{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		books:  map[string]*book.LocalBook{"BTC-EUR": lb},
	}

	r.tickOnce(context.Background())

	if lb.CurrentState() != book.Unseeded {
		t.Fatalf("expected out-of-sync book to reset to Unseeded, got state %v", lb.CurrentState())
	}
}
