package executor

import (
	"testing"

	"bitvavo-trading-core/internal/types"
)

func TestParseOutboxFieldsRejectsMissingMarket(t *testing.T) {
	_, err := parseOutboxFields(map[string]string{
		"side": "buy", "price": "10", "size_eur": "5",
	})
	if err == nil {
		t.Fatalf("expected error for missing market")
	}
}

func TestParseOutboxFieldsRejectsBadSide(t *testing.T) {
	_, err := parseOutboxFields(map[string]string{
		"market": "BTC-EUR", "side": "hold", "price": "10", "size_eur": "5",
	})
	if err == nil {
		t.Fatalf("expected error for unknown side")
	}
}

func TestParseOutboxFieldsOK(t *testing.T) {
	o, err := parseOutboxFields(map[string]string{
		"market": "BTC-EUR", "side": "buy", "price": "50000", "size_eur": "25", "dry_run": "true",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Market != "BTC-EUR" || o.Price != 50000 || o.SizeEUR != 25 || !o.DryRun {
		t.Fatalf("unexpected parse result: %+v", o)
	}
}

func TestAmountDecimalsStatus(t *testing.T) {
	if amountDecimalsStatus(true) != "DRY_OK" {
		t.Fatalf("expected DRY_OK")
	}
	if amountDecimalsStatus(false) != "LIVE_OK" {
		t.Fatalf("expected LIVE_OK")
	}
}

func TestBuildOrderRequestBuySpendsAmountQuote(t *testing.T) {
	order := types.OutboxOrder{Market: "BTC-EUR", Side: types.Buy, Price: 50000, SizeEUR: 25}
	req := buildOrderRequest(order, 8)
	if req.AmountQuote != "25.00" {
		t.Fatalf("expected amountQuote 25.00, got %q", req.AmountQuote)
	}
	if req.Amount != "" {
		t.Fatalf("expected amount unset for buy order, got %q", req.Amount)
	}
}

func TestBuildOrderRequestSellSpendsBaseAmount(t *testing.T) {
	order := types.OutboxOrder{Market: "BTC-EUR", Side: types.Sell, Price: 50000, SizeEUR: 25}
	req := buildOrderRequest(order, 6)
	if req.Amount != "0.000500" {
		t.Fatalf("expected amount 0.000500, got %q", req.Amount)
	}
	if req.AmountQuote != "" {
		t.Fatalf("expected amountQuote unset for sell order, got %q", req.AmountQuote)
	}
}
