// Package tradingcore implements component D: parsing a signal into an
// intent, evaluating risk guards in order, appending to the outbox, and
// bumping exposure counters.
//
// Grounded precisely on
// original_source/services/trading_core/trading_core/decision.py
// (classify_intent) and executor.py (blocked_by_guards, compute_caps,
// write_order_outbox, bump_exposure, consume_loop's finally-ack
// discipline).
package tradingcore

import (
	"fmt"

	"bitvavo-trading-core/internal/errs"
	"bitvavo-trading-core/internal/types"
)

// ClassifyIntent is a pure function of details: presence of "wick_ratio"
// selects MeanReversionIntent, presence of "vol_std" selects
// MomentumIntent, empty or neither selects the generic Intent — exactly
// decision.py's classify_intent, ported from a dataclass hierarchy to a
// Go discriminant tag.
func ClassifyIntent(details map[string]float64) types.IntentKind {
	if len(details) == 0 {
		return types.IntentGeneric
	}
	if _, ok := details["wick_ratio"]; ok {
		return types.IntentMeanReversion
	}
	if _, ok := details["vol_std"]; ok {
		return types.IntentMomentum
	}
	return types.IntentGeneric
}

// SignalFields is the raw field set read off a signals:baseline record.
type SignalFields struct {
	Market  string
	Side    string
	Price   float64
	SizeEUR float64
	Score   float64
	Reasons []string
	Details map[string]float64
}

// ParseIntent validates and builds an Intent from raw signal fields,
// rejecting malformed input (missing market or unknown side) as a
// MalformedInput error.
func ParseIntent(signalID string, f SignalFields) (types.Intent, error) {
	if f.Market == "" {
		return types.Intent{}, fmt.Errorf("tradingcore: missing market: %w", errs.ErrMalformedInput)
	}
	side := types.Side(f.Side)
	if !side.Valid() {
		return types.Intent{}, fmt.Errorf("tradingcore: unknown side %q: %w", f.Side, errs.ErrMalformedInput)
	}

	return types.Intent{
		SignalID: signalID,
		Market:   f.Market,
		Side:     side,
		Price:    f.Price,
		SizeEUR:  f.SizeEUR,
		Score:    f.Score,
		Reasons:  f.Reasons,
		Details:  f.Details,
		Kind:     ClassifyIntent(f.Details),
	}, nil
}
