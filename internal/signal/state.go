// Package signal implements component C: per-market rolling statistics
// and the filter-bank scoring that turns candles/tickers/top-of-book
// events into scored signal records.
//
// Grounded on two sources: internal/strategy/flow_tracker.go's
// rolling-window-with-eviction idiom (bounded slice + mutex) for the Go
// shape of a bounded window, and original_source/ai/baseline_signals.py's
// MktState/eval_filters/wick_ratio/stddev for the exact feature-extraction
// and scoring formulas.
package signal

import (
	"math"
	"sync"
)

// Defaults mirror baseline_signals.py's CFG.
const (
	DefaultReturnsWindow    = 30
	DefaultVolumeWindow     = 60
	DefaultSpreadBpsMax     = 15.0
	DefaultVolStdMin        = 0.002
	DefaultVolSpikeMult     = 3.0
	DefaultWickRatioMin     = 2.0
)

// Config carries the filter-bank thresholds.
type Config struct {
	ReturnsWindow int
	VolumeWindow  int
	SpreadBpsMax  float64
	VolStdMin     float64
	VolSpikeMult  float64
	WickRatioMin  float64
}

// DefaultConfig returns the baseline filter-bank thresholds.
func DefaultConfig() Config {
	return Config{
		ReturnsWindow: DefaultReturnsWindow,
		VolumeWindow:  DefaultVolumeWindow,
		SpreadBpsMax:  DefaultSpreadBpsMax,
		VolStdMin:     DefaultVolStdMin,
		VolSpikeMult:  DefaultVolSpikeMult,
		WickRatioMin:  DefaultWickRatioMin,
	}
}

// MarketState is the rolling view of one market: bounded deques of
// returns and volumes, the last close, and the last top-of-book.
type MarketState struct {
	mu sync.Mutex

	cfg Config

	returns []float64 // bounded to cfg.ReturnsWindow
	volumes []float64 // bounded to cfg.VolumeWindow

	lastClose float64
	haveClose bool

	bestBid, bestAsk float64
	haveBidAsk       bool
}

// NewMarketState creates an empty rolling state for one market.
func NewMarketState(cfg Config) *MarketState {
	return &MarketState{cfg: cfg}
}

// OnTicker updates the best bid/ask and, if a last price is present,
// appends a return sample — mirrors handle_ticker in baseline_signals.py.
func (ms *MarketState) OnTicker(bid, ask, lastPrice float64) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if bid > 0 && ask > 0 {
		ms.bestBid, ms.bestAsk = bid, ask
		ms.haveBidAsk = true
	}
	if lastPrice > 0 {
		ms.appendReturnLocked(lastPrice)
	}
}

// OnTopOfBook updates the best bid/ask from a book/top-of-book event —
// mirrors handle_book in baseline_signals.py.
func (ms *MarketState) OnTopOfBook(bid, ask float64) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if bid > 0 && ask > 0 {
		ms.bestBid, ms.bestAsk = bid, ask
		ms.haveBidAsk = true
	}
}

func (ms *MarketState) appendReturnLocked(price float64) {
	if ms.haveClose && ms.lastClose > 0 {
		r := (price - ms.lastClose) / ms.lastClose
		ms.returns = appendBounded(ms.returns, r, ms.cfg.ReturnsWindow)
	}
	ms.lastClose = price
	ms.haveClose = true
}

func appendBounded(deque []float64, v float64, max int) []float64 {
	deque = append(deque, v)
	if len(deque) > max {
		deque = deque[len(deque)-max:]
	}
	return deque
}

func stddev(vals []float64) float64 {
	n := len(vals)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}

// WickRatio computes max(upper, lower)/body for a candle.
func WickRatio(o, h, l, c float64) float64 {
	body := math.Abs(c - o)
	if body == 0 {
		body = 1e-12
	}
	upper := math.Max(0, h-math.Max(o, c))
	lower := math.Max(0, math.Min(o, c)-l)
	return math.Max(upper, lower) / body
}
