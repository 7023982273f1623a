package signal

import "testing"

func TestRawEventUnwrapsDataField(t *testing.T) {
	fields := map[string]string{"data": `{"market":"PEPE-EUR","bestBid":1.0}`}
	ev := rawEvent(fields)
	if ev == nil {
		t.Fatal("expected non-nil event")
	}
	if ev["market"] != "PEPE-EUR" {
		t.Fatalf("unexpected market: %v", ev["market"])
	}
}

func TestRawEventRejectsMissingOrMalformed(t *testing.T) {
	if ev := rawEvent(map[string]string{}); ev != nil {
		t.Fatal("expected nil for missing data field")
	}
	if ev := rawEvent(map[string]string{"data": "{not json"}); ev != nil {
		t.Fatal("expected nil for malformed json")
	}
}

func TestFirstFloatPrefersEarlierKeys(t *testing.T) {
	ev := map[string]interface{}{"bid": "1.5", "b": 9.0}
	if got := firstFloat(ev, "bestBid", "bid", "b"); got != 1.5 {
		t.Fatalf("got %v, want 1.5", got)
	}
}

func TestFirstFloatSkipsZeroAndAbsent(t *testing.T) {
	ev := map[string]interface{}{"bestBid": 0.0, "bid": 2.25}
	if got := firstFloat(ev, "bestBid", "bid"); got != 2.25 {
		t.Fatalf("got %v, want 2.25", got)
	}
}

func TestHandleTickerUpdatesState(t *testing.T) {
	r := NewRunner(nil, nil, DefaultConfig(), DefaultStreamConfig())
	fields := map[string]string{"data": `{"market":"PEPE-EUR","bestBid":1.0,"bestAsk":1.1,"lastPrice":1.05}`}
	r.handleTicker(fields)

	ms := r.stateFor("PEPE-EUR")
	if !ms.haveBidAsk || ms.bestBid != 1.0 || ms.bestAsk != 1.1 {
		t.Fatalf("expected bid/ask populated, got %+v", ms)
	}
	if !ms.haveClose || ms.lastClose != 1.05 {
		t.Fatalf("expected last close 1.05, got %+v", ms)
	}
}

func TestHandleBookUpdatesState(t *testing.T) {
	r := NewRunner(nil, nil, DefaultConfig(), DefaultStreamConfig())
	r.handleBook(map[string]string{"market": "WIF-EUR", "bestBid": "2.0", "bestAsk": "2.2"})

	ms := r.stateFor("WIF-EUR")
	if !ms.haveBidAsk || ms.bestBid != 2.0 || ms.bestAsk != 2.2 {
		t.Fatalf("expected bid/ask populated, got %+v", ms)
	}
}

func TestHandleBookIgnoresMissingMarket(t *testing.T) {
	r := NewRunner(nil, nil, DefaultConfig(), DefaultStreamConfig())
	r.handleBook(map[string]string{"bestBid": "2.0", "bestAsk": "2.2"})
	r.mu.Lock()
	n := len(r.states)
	r.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no state created for a fieldless event, got %d", n)
	}
}
