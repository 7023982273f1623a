package tradingcore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"bitvavo-trading-core/internal/bus"
)

// Runner consumes the signal stream as a consumer group, evaluates
// guards, and appends to the outbox — executor.py's consume_loop,
// ported with an explicit defer so the record is always acknowledged,
// matching the Python's try/finally discipline.
type Runner struct {
	Bus    *bus.Bus
	Logger *slog.Logger

	SignalStream string
	Group        string
	Consumer     string
	OutboxStream string
	EventsStream string

	Guards GuardConfig
	Exit   ExitConfig
	DryRun bool
}

// Run blocks, consuming until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Bus.EnsureGroup(ctx, r.SignalStream, r.Group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := r.Bus.ReadGroup(ctx, r.SignalStream, r.Group, r.Consumer, 50, 5*time.Second)
		if err != nil {
			r.Logger.Error("read group failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		for _, e := range entries {
			r.handleEntry(ctx, e.ID, e.Fields)
		}
	}
}

func (r *Runner) handleEntry(ctx context.Context, id string, fields map[string]string) {
	defer func() {
		if err := r.Bus.Ack(ctx, r.SignalStream, r.Group, id); err != nil {
			r.Logger.Error("ack failed", "id", id, "err", err)
		}
	}()

	sf, err := parseSignalFields(fields)
	if err != nil {
		r.Logger.Warn("malformed signal", "id", id, "err", err)
		LogEvent(ctx, r.Bus, r.EventsStream, "WARN", "tradingcore", err.Error(), time.Now())
		return
	}

	intent, err := ParseIntent(id, sf)
	if err != nil {
		r.Logger.Warn("invalid intent", "id", id, "err", err)
		LogEvent(ctx, r.Bus, r.EventsStream, "WARN", "tradingcore", err.Error(), time.Now())
		return
	}

	snap, err := ReadSnapshot(ctx, r.Bus, intent.Market)
	if err != nil {
		r.Logger.Error("read snapshot failed", "err", err)
		LogEvent(ctx, r.Bus, r.EventsStream, "ERROR", "tradingcore", err.Error(), time.Now())
		return
	}

	blocked, reason := BlockedByGuards(r.Guards, snap, intent.SizeEUR)
	if blocked {
		r.Logger.Warn("intent blocked", "market", intent.Market, "reason", reason)
		LogEvent(ctx, r.Bus, r.EventsStream, "WARN", "tradingcore", "blocked: "+reason, time.Now())
		return
	}

	now := time.Now()
	if _, err := WriteOutbox(ctx, r.Bus, r.OutboxStream, intent, r.DryRun, r.Exit, now); err != nil {
		r.Logger.Error("write outbox failed", "err", err)
		LogEvent(ctx, r.Bus, r.EventsStream, "ERROR", "tradingcore", err.Error(), now)
		return
	}

	if err := BumpExposure(ctx, r.Bus, intent.Market, intent.SizeEUR); err != nil {
		r.Logger.Error("bump exposure failed", "err", err)
		LogEvent(ctx, r.Bus, r.EventsStream, "ERROR", "tradingcore", err.Error(), now)
		return
	}

	r.Logger.Info("intent accepted", "market", intent.Market, "side", intent.Side, "size_eur", intent.SizeEUR)
	LogEvent(ctx, r.Bus, r.EventsStream, "INFO", "tradingcore", "accepted "+intent.Market, now)
}

func parseSignalFields(fields map[string]string) (SignalFields, error) {
	var sf SignalFields
	sf.Market = fields["market"]
	sf.Side = fields["side"]
	if sf.Side == "" {
		sf.Side = "buy"
	}

	if v, ok := fields["score"]; ok {
		sf.Score = parseFloat(v)
	}
	if v, ok := fields["price"]; ok {
		sf.Price = parseFloat(v)
	}
	if v, ok := fields["size_eur"]; ok {
		sf.SizeEUR = parseFloat(v)
	}

	if raw, ok := fields["reasons"]; ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &sf.Reasons)
	}
	if raw, ok := fields["details"]; ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &sf.Details)
	}

	return sf, nil
}
