package guard

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"bitvavo-trading-core/internal/bus"
	"bitvavo-trading-core/internal/exchangeclient"
	"bitvavo-trading-core/internal/precision"
	"bitvavo-trading-core/internal/types"
)

// Runner drives the exit guard's poll loop for one market.
type Runner struct {
	Market   string
	Bus      *bus.Bus
	Exchange *exchangeclient.Client
	Lease    *Lease
	Metrics  *Metrics
	Logger   *slog.Logger
	Cfg      Config

	amountDecimals int
}

// NewRunner builds a Runner, defaulting amountDecimals to 8. The guard
// does not read the executor's precision cache and has no decimal
// fallback walk: TP and market-sell amounts are always truncated to
// amountDecimals.
func NewRunner(market string, b *bus.Bus, exch *exchangeclient.Client, lease *Lease, metrics *Metrics, logger *slog.Logger, cfg Config, amountDecimals int) *Runner {
	if amountDecimals <= 0 {
		amountDecimals = 8
	}
	return &Runner{
		Market:         market,
		Bus:            b,
		Exchange:       exch,
		Lease:          lease,
		Metrics:        metrics,
		Logger:         logger,
		Cfg:            cfg,
		amountDecimals: amountDecimals,
	}
}

// Run acquires the market's lease and polls until ctx is cancelled or
// the lease can't be acquired (another instance already owns it, which
// order_guard_virtual.py treats as a clean, non-error exit).
func (r *Runner) Run(ctx context.Context) error {
	ok, err := r.Lease.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		r.Logger.Info("lease already held, exiting cleanly", "market", r.Market)
		return nil
	}
	defer r.Lease.Release(context.Background())

	r.Logger.Info("guard started", "market", r.Market,
		"tp_pct", r.Cfg.TakeProfitPct, "sl_pct", r.Cfg.StopLossPct, "trail_pct", r.Cfg.TrailSLPct)

	poll := time.Duration(r.Cfg.PollInterval * float64(time.Second))
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	leaseTTL := time.Duration(r.Cfg.LeaseTTL * float64(time.Second))
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	renewTicker := time.NewTicker(leaseTTL / 2)
	defer renewTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("guard stopped", "market", r.Market)
			return ctx.Err()
		case <-renewTicker.C:
			if err := r.Lease.Renew(ctx); err != nil {
				r.Metrics.Errors.WithLabelValues("lease_renew").Inc()
				r.Logger.Warn("lease renew failed", "market", r.Market, "err", err)
			}
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	price, err := r.currentPrice(ctx)
	if err != nil || price <= 0 {
		if err != nil {
			r.Metrics.Errors.WithLabelValues("ticker").Inc()
		}
		return
	}

	vp := ReadPosition(ctx, r.Bus, r.Market)
	r.Metrics.PositionsOpen.Set(boolToFloat(!vp.Flat()))
	r.Metrics.TPOpen.Set(boolToFloat(vp.TPOrderID != ""))

	if vp.Flat() {
		return
	}

	vp = UpdatePeak(vp, price)

	if vp.TPOrderID == "" {
		tpPx := TakeProfitPrice(r.Cfg, vp)
		oid := r.placeTP(ctx, vp.Qty, tpPx)
		if oid != "" {
			vp.TPOrderID = oid
		}
	}

	if ShouldTrigger(r.Cfg, vp, price) {
		r.Metrics.SLTriggers.Inc()
		if vp.TPOrderID != "" && vp.TPOrderID != "dry-run" {
			r.cancelOrder(ctx, vp.TPOrderID)
		}
		if r.marketSell(ctx, vp.Qty) {
			r.Metrics.MarketSells.Inc()
			if err := ResetPosition(ctx, r.Bus, r.Market); err != nil {
				r.Metrics.Errors.WithLabelValues("redis_write").Inc()
				r.Logger.Error("reset position failed", "market", r.Market, "err", err)
			}
			// Post-trigger cooldown of one poll interval against double-fires.
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(r.Cfg.PollInterval * float64(time.Second))):
			}
			return
		}
	}

	vp.LastPx = price
	if err := WritePosition(ctx, r.Bus, r.Market, vp); err != nil {
		r.Metrics.Errors.WithLabelValues("redis_write").Inc()
		r.Logger.Error("write position failed", "market", r.Market, "err", err)
	}
}

func (r *Runner) currentPrice(ctx context.Context) (float64, error) {
	resp, err := r.Exchange.TickerPrice(ctx, r.Market)
	if err != nil {
		return 0, err
	}
	return parsePrice(resp.Price), nil
}

func (r *Runner) placeTP(ctx context.Context, qty, limitPx float64) string {
	if !r.Cfg.AllowLive {
		return "dry-run"
	}
	resp, err := r.Exchange.PlaceOrder(ctx, exchangeclient.OrderRequest{
		Market:    r.Market,
		Side:      string(types.Sell),
		OrderType: string(types.OrderTypeLimit),
		Amount:    precision.TruncateString(qty, r.amountDecimals),
		Price:     precision.TruncateString(limitPx, 8),
	})
	if err != nil || resp.Failed() {
		r.Metrics.Errors.WithLabelValues("place_tp").Inc()
		r.Logger.Warn("TP place failed", "market", r.Market, "err", err, "exchange_err", resp.Error)
		return ""
	}
	return resp.OrderID
}

func (r *Runner) cancelOrder(ctx context.Context, orderID string) {
	if !r.Cfg.AllowLive {
		return
	}
	if _, err := r.Exchange.CancelOrder(ctx, r.Market, orderID); err != nil {
		r.Logger.Warn("cancel order failed", "market", r.Market, "order_id", orderID, "err", err)
	}
}

func (r *Runner) marketSell(ctx context.Context, qty float64) bool {
	if qty <= 0 {
		return true
	}
	if !r.Cfg.AllowLive {
		r.Logger.Info("dry-run market sell", "market", r.Market, "qty", qty)
		return true
	}
	resp, err := r.Exchange.PlaceOrder(ctx, exchangeclient.OrderRequest{
		Market:    r.Market,
		Side:      string(types.Sell),
		OrderType: string(types.OrderTypeMarket),
		Amount:    precision.TruncateString(qty, r.amountDecimals),
	})
	if err != nil || resp.Failed() {
		r.Metrics.Errors.WithLabelValues("market_sell").Inc()
		r.Logger.Error("market sell failed", "market", r.Market, "err", err, "exchange_err", resp.Error)
		return false
	}
	return true
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
