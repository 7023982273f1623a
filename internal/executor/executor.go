// Package executor implements component E: it consumes the trading
// core's outbox stream and submits each order to Bitvavo, retrying
// through the bounded decimal-precision fallback walk on rejection.
//
// Grounded on original_source/tools/order_submit_bitvavo.py's main()
// loop (xreadgroup -> parse_payload -> build_request_body -> placeOrder
// -> emit_executed, NOGROUP self-healing, "finally: xack"), ported with
// an explicit deferred ack.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"bitvavo-trading-core/internal/bus"
	"bitvavo-trading-core/internal/errs"
	"bitvavo-trading-core/internal/exchangeclient"
	"bitvavo-trading-core/internal/precision"
	"bitvavo-trading-core/internal/types"
)

// Runner consumes OutboxStream as a consumer group and submits each
// OPEN record to the exchange.
type Runner struct {
	Bus      *bus.Bus
	Exchange *exchangeclient.Client
	Cache    *precision.Cache
	Logger   *slog.Logger

	OutboxStream   string
	Group          string
	Consumer       string
	ExecutedStream string
	EventsStream   string

	DryRun bool
}

// Run blocks, consuming until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Bus.EnsureGroup(ctx, r.OutboxStream, r.Group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := r.Bus.ReadGroup(ctx, r.OutboxStream, r.Group, r.Consumer, 20, 5*time.Second)
		if err != nil {
			if errs.IsNoGroup(err) {
				if ensureErr := r.Bus.EnsureGroup(ctx, r.OutboxStream, r.Group); ensureErr != nil {
					r.Logger.Error("re-ensure group failed", "err", ensureErr)
				}
				continue
			}
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
		if err := r.Bus.Ack(ctx, r.OutboxStream, r.Group, id); err != nil {
			r.Logger.Error("ack failed", "id", id, "err", err)
		}
	}()

	order, err := parseOutboxFields(fields)
	if err != nil {
		r.Logger.Warn("malformed outbox record", "id", id, "err", err)
		r.emitExecuted(ctx, types.ExecutedOrder{ID: id, Status: "PARSE_ERR"})
		return
	}

	executed := r.submitWithFallback(ctx, order)
	r.emitExecuted(ctx, executed)
}

// quoteEURDecimals is the fixed-point precision amountQuote is
// truncated to when an order spends EUR directly — Bitvavo's quote
// currency has no market-specific precision metadata the way base
// amount does, so this is a constant rather than a cached/fallback
// value.
const quoteEURDecimals = 2

// submitWithFallback places the order, and on a precision rejection
// retries the bounded decimals walk: each candidate n is tried exactly
// once, stopping at the first accepted value, which is then cached
// for subsequent orders on the same market. The fallback walk only
// applies to base-asset amount precision (sell orders); buy orders
// against a EUR quote spend a fixed-precision amountQuote instead and
// never hit a base-amount precision rejection.
func (r *Runner) submitWithFallback(ctx context.Context, order types.OutboxOrder) types.ExecutedOrder {
	decimals := 8
	if n, ok := r.Cache.Get(order.Market); ok {
		decimals = n
	}

	resp, err := r.tryPlace(ctx, order, decimals)
	if err == nil && !resp.Failed() {
		return r.toExecuted(order, resp, amountDecimalsStatus(order.DryRun))
	}

	if order.Side == types.Buy {
		r.Logger.Error("order rejected", "market", order.Market, "last_error", resp.Error)
		return types.ExecutedOrder{
			Market: order.Market,
			Side:   order.Side,
			Status: "LIVE_ERR",
			Ts:     time.Now(),
			Raw:    []byte(resp.Error),
		}
	}

	rejectedAt := decimals
	if n, ok := errs.PrecisionDecimals(resp.Error); ok {
		rejectedAt = n
	}
	for _, n := range precision.FallbackDecimals(rejectedAt) {
		resp, err = r.tryPlace(ctx, order, n)
		if err == nil && !resp.Failed() {
			if cacheErr := r.Cache.Set(order.Market, n); cacheErr != nil {
				r.Logger.Warn("precision cache write failed", "market", order.Market, "err", cacheErr)
			}
			return r.toExecuted(order, resp, amountDecimalsStatus(order.DryRun))
		}
	}

	r.Logger.Error("order rejected after fallback walk", "market", order.Market, "last_error", resp.Error)
	return types.ExecutedOrder{
		Market: order.Market,
		Side:   order.Side,
		Status: "LIVE_ERR",
		Ts:     time.Now(),
		Raw:    []byte(resp.Error),
	}
}

// tryPlace submits order at the given base-amount decimal precision.
// Buy orders against the EUR quote spend amountQuote directly (so
// spend never drifts from size_eur when the live fill price differs
// from the signal-time price); sell orders liquidate a base-asset
// amount, which is what decimals governs.
func (r *Runner) tryPlace(ctx context.Context, order types.OutboxOrder, decimals int) (exchangeclient.OrderResponse, error) {
	return r.Exchange.PlaceOrder(ctx, buildOrderRequest(order, decimals))
}

func buildOrderRequest(order types.OutboxOrder, decimals int) exchangeclient.OrderRequest {
	req := exchangeclient.OrderRequest{
		Market:    order.Market,
		Side:      string(order.Side),
		OrderType: string(types.OrderTypeMarket),
	}
	if order.Side == types.Sell {
		req.Amount = precision.TruncateString(order.SizeEUR/order.Price, decimals)
	} else {
		req.AmountQuote = precision.TruncateString(order.SizeEUR, quoteEURDecimals)
	}
	return req
}

func (r *Runner) toExecuted(order types.OutboxOrder, resp exchangeclient.OrderResponse, status string) types.ExecutedOrder {
	return types.ExecutedOrder{
		ID:     resp.OrderID,
		Market: order.Market,
		Side:   order.Side,
		Type:   types.OrderTypeMarket,
		Price:  order.Price,
		Amount: order.SizeEUR / order.Price,
		Ts:     time.Now(),
		Status: status,
		Raw:    resp.Raw,
	}
}

func amountDecimalsStatus(dryRun bool) string {
	if dryRun {
		return "DRY_OK"
	}
	return "LIVE_OK"
}

func (r *Runner) emitExecuted(ctx context.Context, e types.ExecutedOrder) {
	fields := map[string]interface{}{
		"id":     e.ID,
		"market": e.Market,
		"side":   string(e.Side),
		"type":   string(e.Type),
		"amount": strconv.FormatFloat(e.Amount, 'f', -1, 64),
		"price":  strconv.FormatFloat(e.Price, 'f', -1, 64),
		"ts":     e.Ts.UTC().Format(time.RFC3339),
		"status": e.Status,
	}
	if _, err := r.Bus.Append(ctx, r.ExecutedStream, fields); err != nil {
		r.Logger.Error("emit executed failed", "err", err)
	}
}

func parseOutboxFields(fields map[string]string) (types.OutboxOrder, error) {
	var o types.OutboxOrder
	o.Market = fields["market"]
	if o.Market == "" {
		return o, fmt.Errorf("executor: missing market")
	}
	o.Side = types.Side(fields["side"])
	if !o.Side.Valid() {
		return o, fmt.Errorf("executor: unknown side %q", fields["side"])
	}
	o.Action = types.Action(fields["action"])

	var err error
	if o.Price, err = parseRequiredFloat(fields, "price"); err != nil {
		return o, err
	}
	if o.SizeEUR, err = parseRequiredFloat(fields, "size_eur"); err != nil {
		return o, err
	}
	o.DryRun = fields["dry_run"] == "true"
	return o, nil
}

func parseRequiredFloat(fields map[string]string, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok || raw == "" {
		return 0, fmt.Errorf("executor: missing %s", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("executor: invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
