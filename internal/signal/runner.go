package signal

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"bitvavo-trading-core/internal/bus"
)

// StreamConfig names the three pass-through topics component B
// publishes and the consumer-group identity this runner reads them
// under — baseline_signals.py's STREAM_TICKER/STREAM_CANDLE/STREAM_BOOK
// and SIGNAL_STREAM.
type StreamConfig struct {
	TickerTopic  string
	CandleTopic  string
	BookTopic    string
	SignalStream string
	Group        string
	Consumer     string
}

// DefaultStreamConfig mirrors baseline_signals.py's CFG.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		TickerTopic:  "bitvavo:ticker24h",
		CandleTopic:  "bitvavo:candles:1m",
		BookTopic:    "bitvavo:book",
		SignalStream: "signals:baseline",
		Group:        "signal-engine",
		Consumer:     "signal-engine-1",
	}
}

// Runner consumes the ticker/candle/book topics, folds each event into
// its market's rolling MarketState, and appends a SignalRecord to
// SignalStream whenever the filter bank fires — pump()'s three-stream
// dispatch in baseline_signals.py, ported onto three independent
// consumer-group readers (one goroutine per source stream) rather than
// a single blocking multi-stream XREAD, matching this codebase's
// one-goroutine-per-source idiom (internal/ingest's WS read loop).
type Runner struct {
	Bus    *bus.Bus
	Logger *slog.Logger
	Cfg    Config
	Stream StreamConfig

	mu     sync.Mutex
	states map[string]*MarketState
}

// NewRunner builds a Runner with an empty per-market state table.
func NewRunner(b *bus.Bus, logger *slog.Logger, cfg Config, stream StreamConfig) *Runner {
	return &Runner{
		Bus:    b,
		Logger: logger,
		Cfg:    cfg,
		Stream: stream,
		states: make(map[string]*MarketState),
	}
}

// Run starts one consumer loop per source stream and blocks until ctx
// is cancelled or any loop returns a non-context error.
func (r *Runner) Run(ctx context.Context) error {
	errCh := make(chan error, 3)

	go func() { errCh <- r.consumeLoop(ctx, r.Stream.TickerTopic, r.handleTicker) }()
	go func() { errCh <- r.consumeLoop(ctx, r.Stream.CandleTopic, r.handleCandle) }()
	go func() { errCh <- r.consumeLoop(ctx, r.Stream.BookTopic, r.handleBook) }()

	for i := 0; i < 3; i++ {
		if err := <-errCh; err != nil && err != context.Canceled {
			return err
		}
	}
	return ctx.Err()
}

func (r *Runner) consumeLoop(ctx context.Context, topic string, handle func(fields map[string]string)) error {
	if err := r.Bus.EnsureGroup(ctx, topic, r.Stream.Group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := r.Bus.ReadGroup(ctx, topic, r.Stream.Group, r.Stream.Consumer, 500, 5*time.Second)
		if err != nil {
			r.Logger.Error("signal: read group failed", "topic", topic, "err", err)
			time.Sleep(time.Second)
			continue
		}
		for _, e := range entries {
			handle(e.Fields)
			if err := r.Bus.Ack(ctx, topic, r.Stream.Group, e.ID); err != nil {
				r.Logger.Error("signal: ack failed", "topic", topic, "id", e.ID, "err", err)
			}
		}
	}
}

func (r *Runner) stateFor(market string) *MarketState {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.states[market]
	if !ok {
		ms = NewMarketState(r.Cfg)
		r.states[market] = ms
	}
	return ms
}

// rawEvent unwraps the "data" field every pass-through stream carries
// (internal/ingest archives ticker/candle frames verbatim under it).
func rawEvent(fields map[string]string) map[string]interface{} {
	raw, ok := fields["data"]
	if !ok || raw == "" {
		return nil
	}
	var ev map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil
	}
	return ev
}

func (r *Runner) handleTicker(fields map[string]string) {
	ev := rawEvent(fields)
	if ev == nil {
		return
	}
	market, _ := ev["market"].(string)
	if market == "" {
		return
	}
	bid := firstFloat(ev, "bestBid", "bid", "b")
	ask := firstFloat(ev, "bestAsk", "ask", "a")
	last := firstFloat(ev, "lastPrice", "price", "lastTradedPrice")
	r.stateFor(market).OnTicker(bid, ask, last)
}

func (r *Runner) handleBook(fields map[string]string) {
	market := fields["market"]
	if market == "" {
		return
	}
	bid, _ := strconv.ParseFloat(fields["bestBid"], 64)
	ask, _ := strconv.ParseFloat(fields["bestAsk"], 64)
	r.stateFor(market).OnTopOfBook(bid, ask)
}

func (r *Runner) handleCandle(fields map[string]string) {
	ev := rawEvent(fields)
	if ev == nil {
		return
	}
	market, _ := ev["market"].(string)
	if market == "" {
		return
	}

	o := firstFloat(ev, "open")
	h := firstFloat(ev, "high")
	l := firstFloat(ev, "low")
	c := firstFloat(ev, "close")
	v := firstFloat(ev, "volume")
	if o == 0 && h == 0 && l == 0 && c == 0 {
		return
	}

	ms := r.stateFor(market)
	eval := ms.OnCandle(r.Cfg, Candle{Open: o, High: h, Low: l, Close: c, Volume: v})
	if !eval.Fired {
		return
	}

	now := time.Now()
	if err := r.emitSignal(context.Background(), market, now, eval); err != nil {
		r.Logger.Error("signal: emit failed", "market", market, "err", err)
		return
	}
	r.Logger.Info("signal emitted", "market", market, "score", eval.Score, "reasons", eval.Reasons)
}

func (r *Runner) emitSignal(ctx context.Context, market string, ts time.Time, eval Evaluation) error {
	reasons, err := json.Marshal(eval.Reasons)
	if err != nil {
		return err
	}
	details, err := json.Marshal(eval.Details)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"market":  market,
		"score":   strconv.FormatFloat(eval.Score, 'f', -1, 64),
		"reasons": string(reasons),
		"details": string(details),
		"t":       ts.UTC().Format(time.RFC3339),
	}
	_, err = r.Bus.Append(ctx, r.Stream.SignalStream, fields)
	return err
}

func firstFloat(ev map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		v, ok := ev[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			if t != 0 {
				return t
			}
		case string:
			if f, err := strconv.ParseFloat(t, 64); err == nil && f != 0 {
				return f
			}
		}
	}
	return 0
}
