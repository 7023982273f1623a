package signal

import (
	"fmt"
	"time"

	"bitvavo-trading-core/internal/types"
)

// Candle is one OHLCV bar for a market.
type Candle struct {
	Open, High, Low, Close, Volume float64
}

// Evaluation is the result of running the filter bank once: whether any
// predicate fired, the score, the reasons, and the raw feature values
// destined for SignalRecord.Details.
type Evaluation struct {
	Fired   bool
	Score   float64
	Reasons []string
	Details map[string]float64
}

// OnCandle folds a new candle into the rolling state and evaluates the
// filter bank exactly once, including the wick predicate.
//
// original_source/ai/baseline_signals.py's eval_filters reads
// details["wick_ok"] via details.get("wick_ok", False) *before* the
// candle handler sets it later in the same function body — an
// accidental ordering that makes the wick predicate a dead read inside
// eval_filters itself. This implementation computes the wick predicate
// first and folds it into the
// feature set the filter bank reads, so every predicate is evaluated
// together in one pass with no reliance on re-entrant mutation of a
// shared map.
func (ms *MarketState) OnCandle(cfg Config, c Candle) Evaluation {
	ms.mu.Lock()
	ms.appendReturnLocked(c.Close)
	ms.volumes = appendBounded(ms.volumes, c.Volume, cfg.VolumeWindow)
	returnsSnapshot := append([]float64(nil), ms.returns...)
	volumesSnapshot := append([]float64(nil), ms.volumes...)
	bid, ask, haveBidAsk := ms.bestBid, ms.bestAsk, ms.haveBidAsk
	ms.mu.Unlock()

	wick := WickRatio(c.Open, c.High, c.Low, c.Close)
	wickOK := wick >= cfg.WickRatioMin

	return evaluateFilters(cfg, returnsSnapshot, volumesSnapshot, bid, ask, haveBidAsk, wick, wickOK)
}

// evaluateFilters is the pure function form of eval_filters, with the
// wick predicate folded in up front rather than inspected mid-evaluation.
func evaluateFilters(cfg Config, returns, volumes []float64, bid, ask float64, haveBidAsk bool, wick float64, wickOK bool) Evaluation {
	reasons := make([]string, 0, 4)
	details := make(map[string]float64, 8)
	var score float64
	fired := false

	if haveBidAsk && ask > 0 {
		mid := 0.5 * (ask + bid)
		spreadBps := (ask - bid) / mid * 1e4
		details["spread_bps"] = spreadBps
		if spreadBps <= cfg.SpreadBpsMax {
			reasons = append(reasons, fmt.Sprintf("spread<=%gbps", cfg.SpreadBpsMax))
			score++
			fired = true
		}
	}

	minSamples := cfg.ReturnsWindow / 3
	if minSamples < 1 {
		minSamples = 1
	}
	if len(returns) >= minSamples {
		volStd := stddev(returns)
		details["vol_std"] = volStd
		if volStd >= cfg.VolStdMin {
			reasons = append(reasons, fmt.Sprintf("vol_std>=%g", cfg.VolStdMin))
			score++
			fired = true
		}
	}

	if len(volumes) >= 5 {
		hist := volumes[:len(volumes)-1]
		last := volumes[len(volumes)-1]
		var mean float64
		if len(hist) > 0 {
			var sum float64
			for _, v := range hist {
				sum += v
			}
			mean = sum / float64(len(hist))
		}
		details["vol_last"] = last
		details["vol_mean"] = mean
		if mean > 0 && last >= cfg.VolSpikeMult*mean {
			reasons = append(reasons, fmt.Sprintf("volume>=%gx", cfg.VolSpikeMult))
			score++
			fired = true
		}
	}

	details["wick_ratio"] = wick
	if wickOK {
		reasons = append(reasons, fmt.Sprintf("wick>=%gx", cfg.WickRatioMin))
		score++
		fired = true
	}

	return Evaluation{Fired: fired, Score: score, Reasons: reasons, Details: details}
}

// ToSignalRecord builds the SignalRecord for an evaluation that fired.
func ToSignalRecord(signalID, market string, ts time.Time, ev Evaluation) types.SignalRecord {
	return types.SignalRecord{
		SignalID: signalID,
		Market:   market,
		Ts:       ts,
		Score:    ev.Score,
		Reasons:  ev.Reasons,
		Details:  ev.Details,
	}
}
