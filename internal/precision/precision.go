// Package precision implements floor-truncation to a fixed decimal count
// and the accepted-decimals cache file used by the executor's
// decimal-precision fallback procedure.
//
// Truncation uses github.com/shopspring/decimal rather than the ad hoc
// big.Float scaling the original bot used for on-chain amounts — there is
// no on-chain scaling left in this system, and shopspring/decimal's
// Truncate expresses "floor, never round" directly.
package precision

import "github.com/shopspring/decimal"

// Truncate floors v to n decimal places, never rounding.
func Truncate(v float64, n int) float64 {
	if n < 0 {
		n = 0
	}
	d := decimal.NewFromFloat(v)
	return d.Truncate(int32(n)).InexactFloat64()
}

// TruncateString floors v to n decimal places and returns it as the
// fixed-point string the exchange REST API expects (no scientific
// notation, no trailing-zero trimming ambiguity).
func TruncateString(v float64, n int) string {
	if n < 0 {
		n = 0
	}
	d := decimal.NewFromFloat(v)
	return d.Truncate(int32(n)).StringFixed(int32(n))
}

// FallbackDecimals builds the bounded decimal-count walk the executor
// uses on a precision rejection: starting just below the
// rejected count N, down to 0, trying each exactly once.
func FallbackDecimals(rejectedAt int) []int {
	if rejectedAt <= 0 {
		return nil
	}
	out := make([]int, 0, rejectedAt)
	for n := rejectedAt - 1; n >= 0; n-- {
		out = append(out, n)
	}
	return out
}
