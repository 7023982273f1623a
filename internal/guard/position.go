package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitvavo-trading-core/internal/bus"
	"bitvavo-trading-core/internal/types"
)

// virtPosTTL mirrors order_guard_virtual.py's _write_virt ex=7*24*3600.
const virtPosTTL = 7 * 24 * time.Hour

// virtKey builds the per-market virtual-position key, e.g. "virtpos:BTC-EUR".
func virtKey(market string) string {
	return fmt.Sprintf("virtpos:%s", market)
}

// ReadPosition loads market's virtual position, defaulting to a flat
// position if the key is absent or unparsable — exactly _read_virt's
// fallback behavior.
func ReadPosition(ctx context.Context, b *bus.Bus, market string) types.VirtualPosition {
	raw, err := b.Get(ctx, virtKey(market))
	if err != nil || raw == "" {
		return types.VirtualPosition{}
	}
	var vp types.VirtualPosition
	if err := json.Unmarshal([]byte(raw), &vp); err != nil {
		return types.VirtualPosition{}
	}
	return vp
}

// WritePosition persists vp for market with the standard retention.
func WritePosition(ctx context.Context, b *bus.Bus, market string, vp types.VirtualPosition) error {
	raw, err := json.Marshal(vp)
	if err != nil {
		return fmt.Errorf("guard: encode position: %w", err)
	}
	if err := b.SetEx(ctx, virtKey(market), string(raw), virtPosTTL); err != nil {
		return fmt.Errorf("guard: write position: %w", err)
	}
	return nil
}

// ResetPosition flattens market's virtual position to zero.
func ResetPosition(ctx context.Context, b *bus.Bus, market string) error {
	return WritePosition(ctx, b, market, types.VirtualPosition{})
}
