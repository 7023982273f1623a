package tradingcore

import (
	"context"
	"fmt"
	"time"

	"bitvavo-trading-core/internal/bus"
	"bitvavo-trading-core/internal/precision"
	"bitvavo-trading-core/internal/types"
)

// OutboxVersion is stamped on every outbox record, mirroring executor.py's
// VERSION constant used for downstream replay/debugging.
const OutboxVersion = "tradingcore 1"

// ExitConfig carries the TP/SL/trailing percentages forwarded on every
// outbox record.
type ExitConfig struct {
	Mode      string
	TPPct     float64
	SLPct     float64
	TrailPct  float64
}

// WriteOutbox appends an OPEN record to topic with every field required
// for downstream replay — executor.py's write_order_outbox.
func WriteOutbox(ctx context.Context, b *bus.Bus, topic string, intent types.Intent, dryRun bool, exit ExitConfig, now time.Time) (string, error) {
	order := types.OutboxOrder{
		Ts:       now,
		Version:  OutboxVersion,
		DryRun:   dryRun,
		Action:   types.ActionOpen,
		SignalID: intent.SignalID,
		Market:   intent.Market,
		Side:     intent.Side,
		Price:    intent.Price,
		SizeEUR:  intent.SizeEUR,
		Mode:     exit.Mode,
		TPPct:    exit.TPPct,
		SLPct:    exit.SLPct,
		TrailPct: exit.TrailPct,
	}

	fields := map[string]interface{}{
		"ts":        order.Ts.UTC().Format(time.RFC3339),
		"version":   order.Version,
		"dry_run":   boolString(order.DryRun),
		"action":    string(order.Action),
		"signal_id": order.SignalID,
		"market":    order.Market,
		"side":      string(order.Side),
		"price":     precision.TruncateString(order.Price, 8),
		"size_eur":  precision.TruncateString(order.SizeEUR, 2),
		"mode":      order.Mode,
		"tp_pct":    precision.TruncateString(order.TPPct, 4),
		"sl_pct":    precision.TruncateString(order.SLPct, 4),
		"trail_pct": precision.TruncateString(order.TrailPct, 4),
	}

	id, err := b.Append(ctx, topic, fields)
	if err != nil {
		return "", fmt.Errorf("tradingcore: write outbox: %w", err)
	}
	return id, nil
}

// LogEvent appends a structured decision/error record to the shared
// trading:events topic.
func LogEvent(ctx context.Context, b *bus.Bus, topic, level, where, msg string, now time.Time) {
	_, _ = b.Append(ctx, topic, map[string]interface{}{
		"ts":    now.UTC().Format(time.RFC3339),
		"level": level,
		"where": where,
		"msg":   msg,
	})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
