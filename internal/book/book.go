// Package book implements nonce-ordered local order book reconstruction:
// apply a REST snapshot, then buffer and replay incremental updates in
// nonce order, resyncing from a fresh snapshot on any gap.
//
// Ported from ingest_orderbook.py's LocalBook class — a plain
// whole-book replace has no notion of nonce ordering, so the update
// path is built fresh from that reference. LocalBook holds no lock of
// its own.
package book

import (
	"sort"
	"time"

	"bitvavo-trading-core/internal/types"
)

// State is the lifecycle stage of a LocalBook.
type State int

const (
	Unseeded State = iota
	Seeded
	OutOfSync
)

// DefaultDrainGrace is the window after a snapshot during which
// out-of-order updates may still fill a gap before forcing a re-snapshot.
const DefaultDrainGrace = 250 * time.Millisecond

// DefaultDepth is the default book depth kept per market.
const DefaultDepth = 100

// LocalBook reconstructs one market's order book from a REST snapshot
// plus a nonce-ordered stream of incremental updates. It is not safe for
// concurrent use from multiple goroutines without external locking; the
// ingest orchestrator (internal/ingest) owns one LocalBook per market on
// its own goroutine.
type LocalBook struct {
	Market string
	Depth  int
	Grace  time.Duration

	bids map[float64]float64
	asks map[float64]float64

	lastNonce int64
	state     State

	buffer      []types.BookUpdate
	graceDeadline time.Time
	lastTop     *types.TopOfBook
}

// New creates an unseeded local book for market with the given depth and
// drain-grace window (zero values fall back to the package defaults).
func New(market string, depth int, grace time.Duration) *LocalBook {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if grace <= 0 {
		grace = DefaultDrainGrace
	}
	return &LocalBook{
		Market: market,
		Depth:  depth,
		Grace:  grace,
		bids:   make(map[float64]float64),
		asks:   make(map[float64]float64),
		state:  Unseeded,
	}
}

// CurrentState returns the book's current lifecycle state.
func (lb *LocalBook) CurrentState() State { return lb.state }

// LastNonce returns the last applied nonce.
func (lb *LocalBook) LastNonce() int64 { return lb.lastNonce }

// ApplySnapshot installs snap as the book's state, enters Seeded, and
// arms the drain-grace deadline. Buffered updates with a nonce above
// the snapshot's are kept and drained against the new baseline; older
// ones are dropped.
func (lb *LocalBook) ApplySnapshot(snap types.BookSnapshot, now time.Time) {
	lb.bids = make(map[float64]float64, len(snap.Bids))
	lb.asks = make(map[float64]float64, len(snap.Asks))
	lb.applyBids(snap.Bids)
	lb.applyAsks(snap.Asks)

	lb.lastNonce = snap.Nonce
	lb.state = Seeded
	lb.lastTop = nil
	lb.graceDeadline = now.Add(lb.Grace)
	lb.pruneBuffer()
}

func (lb *LocalBook) applyBids(levels []types.PriceLevel) { lb.applySide(lb.bids, levels, true) }
func (lb *LocalBook) applyAsks(levels []types.PriceLevel) { lb.applySide(lb.asks, levels, false) }

// TryApplyUpdate applies u if its nonce is exactly last_nonce+1 (invariant
// 2). Otherwise it is buffered — and never skipped — regardless of
// whether it's ahead or behind. Returns true if applied.
func (lb *LocalBook) TryApplyUpdate(u types.BookUpdate) bool {
	if lb.state == Unseeded {
		lb.buffer = append(lb.buffer, u)
		return false
	}
	expected := lb.lastNonce + 1
	if u.Nonce != expected {
		lb.buffer = append(lb.buffer, u)
		return false
	}

	lb.applyBids(u.Bids)
	lb.applyAsks(u.Asks)
	lb.lastNonce = u.Nonce
	return true
}

// CanDrainNow reports whether the book is seeded and still within its
// drain-grace window.
func (lb *LocalBook) CanDrainNow(now time.Time) bool {
	return lb.state == Seeded && now.Before(lb.graceDeadline)
}

// GraceExpired reports whether the drain-grace deadline has passed.
func (lb *LocalBook) GraceExpired(now time.Time) bool {
	return !lb.graceDeadline.IsZero() && now.After(lb.graceDeadline)
}

// DrainStep looks for a buffered update whose nonce equals last_nonce+1
// (last-wins if duplicates are buffered for that nonce), applies it, and
// prunes the buffer of anything now stale. Returns true if it made
// progress.
func (lb *LocalBook) DrainStep() bool {
	expected := lb.lastNonce + 1

	var chosen *types.BookUpdate
	for i := range lb.buffer {
		if lb.buffer[i].Nonce == expected {
			u := lb.buffer[i]
			chosen = &u // last-wins: keep overwriting as we scan forward
		}
	}
	if chosen == nil {
		return false
	}

	applied := lb.TryApplyUpdate(*chosen)
	lb.pruneBuffer()
	return applied
}

// MarkOutOfSync drops the book state, clears the buffer, and releases
// top-of-book tracking.
func (lb *LocalBook) MarkOutOfSync() {
	lb.state = Unseeded
	lb.bids = make(map[float64]float64)
	lb.asks = make(map[float64]float64)
	lb.buffer = nil
	lb.graceDeadline = time.Time{}
	lb.lastTop = nil
}

// CurrentTop returns the best-bid/best-ask tuple, or ok=false if either
// side is empty.
func (lb *LocalBook) CurrentTop() (types.TopOfBook, bool) {
	bp, bs, bok := bestLevel(lb.bids, true)
	ap, as, aok := bestLevel(lb.asks, false)
	if !bok || !aok {
		return types.TopOfBook{}, false
	}
	return types.TopOfBook{
		Market:      lb.Market,
		BestBid:     bp,
		BestBidSize: bs,
		BestAsk:     ap,
		BestAskSize: as,
		Nonce:       lb.lastNonce,
	}, true
}

// EmitIfChanged returns (top, true) if the current top-of-book differs
// from the last one emitted (invariant 3), tagging it with source, and
// remembers it as the new baseline.
func (lb *LocalBook) EmitIfChanged(source types.TopOfBookSource) (types.TopOfBook, bool) {
	top, ok := lb.CurrentTop()
	if !ok {
		return types.TopOfBook{}, false
	}
	top.Source = source
	if lb.lastTop != nil && lb.lastTop.Equal(top) {
		return types.TopOfBook{}, false
	}
	cp := top
	lb.lastTop = &cp
	return top, true
}

// applySide applies a batch of level changes to side: amount==0 removes
// the price, any other amount replaces it, then prunes to Depth by
// best-side ordering (bids descending, asks ascending).
func (lb *LocalBook) applySide(side map[float64]float64, levels []types.PriceLevel, isBid bool) {
	for _, lvl := range levels {
		if lvl.Amount == 0 {
			delete(side, lvl.Price)
			continue
		}
		side[lvl.Price] = lvl.Amount
	}
	lb.pruneSide(side, isBid)
}

// pruneSide truncates side to the top Depth entries by best-side
// ordering.
func (lb *LocalBook) pruneSide(side map[float64]float64, isBid bool) {
	if len(side) <= lb.Depth {
		return
	}
	prices := make([]float64, 0, len(side))
	for p := range side {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		if isBid {
			return prices[i] > prices[j]
		}
		return prices[i] < prices[j]
	})
	for _, p := range prices[lb.Depth:] {
		delete(side, p)
	}
}

func bestLevel(side map[float64]float64, wantMax bool) (price, amount float64, ok bool) {
	if len(side) == 0 {
		return 0, 0, false
	}
	first := true
	for p, a := range side {
		if first || (wantMax && p > price) || (!wantMax && p < price) {
			price, amount = p, a
			first = false
		}
	}
	return price, amount, true
}

// pruneBuffer drops buffered updates that are now stale (nonce <=
// last_nonce) — applied after every successful apply/drain.
func (lb *LocalBook) pruneBuffer() {
	kept := lb.buffer[:0]
	for _, u := range lb.buffer {
		if u.Nonce > lb.lastNonce {
			kept = append(kept, u)
		}
	}
	lb.buffer = kept
}
