package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"bitvavo-trading-core/internal/book"
	"bitvavo-trading-core/internal/bus"
	"bitvavo-trading-core/internal/exchangeclient"
	"bitvavo-trading-core/internal/landing"
	"bitvavo-trading-core/internal/types"
)

// Config carries the tunables ingest_orderbook.py reads from CONF.
type Config struct {
	Markets             []string
	Depth               int
	DrainGrace          time.Duration
	SubChunk            int
	SleepBetweenSubs    time.Duration
	SleepBetweenChunks  time.Duration
	TickFast            time.Duration // sleep when the last tick made progress
	TickSlow            time.Duration // sleep when it didn't — adaptive cadence
	PerMarketTopic      string        // "bitvavo:book:%s"
	AggregateTopic      string        // "bitvavo:book"
	CandleInterval      string        // "1m"
	CandleTopic         string        // "bitvavo:candles:1m"
	TickerTopic         string        // "bitvavo:ticker24h"
	ArchiveJSONLEnabled bool
}

// DefaultConfig mirrors ingest_orderbook.py's CONF defaults.
func DefaultConfig() Config {
	return Config{
		Depth:              book.DefaultDepth,
		DrainGrace:         book.DefaultDrainGrace,
		SubChunk:           25,
		SleepBetweenSubs:   50 * time.Millisecond,
		SleepBetweenChunks: time.Second,
		TickFast:           20 * time.Millisecond,
		TickSlow:           80 * time.Millisecond,
		PerMarketTopic:     "bitvavo:book:%s",
		AggregateTopic:     "bitvavo:book",
		CandleInterval:     "1m",
		CandleTopic:        "bitvavo:candles:1m",
		TickerTopic:        "bitvavo:ticker24h",
	}
}

// Runner owns one LocalBook per market, the WS connection feeding it
// incremental updates, and the REST snapshot path that (re-)seeds a
// book after a nonce gap exceeds the drain-grace window.
type Runner struct {
	Conn     *Conn
	Exchange *exchangeclient.Client
	Bus      *bus.Bus
	Landing  *landing.Sink
	Logger   *slog.Logger
	Cfg      Config

	mu    sync.Mutex
	books map[string]*book.LocalBook

	snapshotBatch *landing.Batcher
	updateBatch   map[string]*landing.Batcher
	topBatch      map[string]*landing.Batcher
	passBatch     map[string]*landing.Batcher // keyed by "<event>:<market>"
}

// NewRunner builds a Runner. Per-market landing batchers are created
// lazily as markets are seeded.
func NewRunner(conn *Conn, exch *exchangeclient.Client, b *bus.Bus, sink *landing.Sink, logger *slog.Logger, cfg Config) *Runner {
	return &Runner{
		Conn:        conn,
		Exchange:    exch,
		Bus:         b,
		Landing:     sink,
		Logger:      logger,
		Cfg:         cfg,
		books:       make(map[string]*book.LocalBook),
		updateBatch: make(map[string]*landing.Batcher),
		topBatch:    make(map[string]*landing.Batcher),
		passBatch:   make(map[string]*landing.Batcher),
	}
}

// Run subscribes to every configured market, seeds each from a REST
// snapshot, then drives the non-blocking resync loop until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Conn.SubscribeBook(r.Cfg.Markets, r.Cfg.SubChunk, r.Cfg.SleepBetweenSubs, r.Cfg.SleepBetweenChunks); err != nil {
		return err
	}
	if err := r.Conn.SubscribeTicker24h(r.Cfg.Markets, r.Cfg.SubChunk, r.Cfg.SleepBetweenSubs, r.Cfg.SleepBetweenChunks); err != nil {
		return err
	}
	if err := r.Conn.SubscribeCandles(r.Cfg.Markets, r.Cfg.CandleInterval, r.Cfg.SubChunk, r.Cfg.SleepBetweenSubs, r.Cfg.SleepBetweenChunks); err != nil {
		return err
	}

	go func() {
		if err := r.Conn.ReadLoop(ctx, r.onBookUpdate, r.onPassthrough); err != nil {
			r.Logger.Error("ws read loop ended", "err", err)
		}
	}()

	for _, m := range r.Cfg.Markets {
		r.seedSnapshot(ctx, m)
		time.Sleep(5 * time.Millisecond)
	}

	ticker := time.NewTicker(r.Cfg.TickFast)
	defer ticker.Stop()
	flushTicker := time.NewTicker(5 * time.Second)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flushAll(true)
			return ctx.Err()
		case <-flushTicker.C:
			r.flushAll(false)
		case <-ticker.C:
			progressed := r.tickOnce(ctx)
			if progressed {
				ticker.Reset(r.Cfg.TickFast)
			} else {
				ticker.Reset(r.Cfg.TickSlow)
			}
		}
	}
}

// tickOnce walks every market's book once: re-snapshots unseeded
// markets, and for seeded ones within their drain-grace window, tries
// one drain step before falling back to marking it out-of-sync if the
// grace has expired.
func (r *Runner) tickOnce(ctx context.Context) bool {
	r.mu.Lock()
	markets := make([]string, 0, len(r.books))
	for m := range r.books {
		markets = append(markets, m)
	}
	r.mu.Unlock()

	progressed := false
	now := time.Now()
	for _, m := range markets {
		r.mu.Lock()
		lb := r.books[m]
		r.mu.Unlock()

		if lb.CurrentState() == book.Unseeded {
			r.seedSnapshot(ctx, m)
			continue
		}
		if lb.CurrentState() != book.Seeded {
			continue
		}
		if lb.CanDrainNow(now) {
			if lb.DrainStep() {
				progressed = true
				r.emitTop(m, lb, types.SourceBuffered)
			}
			continue
		}
		if lb.GraceExpired(now) {
			r.Logger.Warn("resync: grace expired", "market", m, "nonce", lb.LastNonce())
			lb.MarkOutOfSync()
		}
	}
	return progressed
}

func (r *Runner) seedSnapshot(ctx context.Context, market string) {
	resp, err := r.Exchange.BookSnapshot(ctx, market, r.Cfg.Depth)
	if err != nil {
		r.Logger.Error("snapshot failed", "market", market, "err", err)
		return
	}

	snap := types.BookSnapshot{
		Market: market,
		Nonce:  resp.Nonce,
		Bids:   toLevels(resp.Bids),
		Asks:   toLevels(resp.Asks),
	}

	r.mu.Lock()
	lb, ok := r.books[market]
	if !ok {
		lb = book.New(market, r.Cfg.Depth, r.Cfg.DrainGrace)
		r.books[market] = lb
	}
	r.mu.Unlock()

	lb.ApplySnapshot(snap, time.Now())
	r.Logger.Info("seeded", "market", market, "nonce", snap.Nonce, "bids", len(snap.Bids), "asks", len(snap.Asks))

	r.archiveSnapshot(market, resp)
	r.emitTop(market, lb, types.SourceSnapshot)
}

func (r *Runner) onBookUpdate(msg bookUpdateMessage) {
	update := types.BookUpdate{
		Market: msg.Market,
		Nonce:  msg.Nonce,
		Bids:   toLevels(msg.Bids),
		Asks:   toLevels(msg.Asks),
	}

	r.mu.Lock()
	lb, ok := r.books[msg.Market]
	if !ok {
		lb = book.New(msg.Market, r.Cfg.Depth, r.Cfg.DrainGrace)
		r.books[msg.Market] = lb
	}
	r.mu.Unlock()

	r.archiveUpdate(msg.Market, msg)

	if lb.TryApplyUpdate(update) {
		r.emitTop(msg.Market, lb, types.SourceRealtime)
	}
}

// emitTop publishes the aggregate top-of-book event and lands it in
// Parquet, only if it changed — the aggregate topic is the one the
// signal engine consumes. The per-market raw payloads are archived by
// archiveSnapshot/archiveUpdate, not here.
func (r *Runner) emitTop(market string, lb *book.LocalBook, source types.TopOfBookSource) {
	top, changed := lb.EmitIfChanged(source)
	if !changed {
		return
	}

	fields := map[string]interface{}{
		"event":          "topOfBook",
		"market":         market,
		"bestBid":        strconv.FormatFloat(top.BestBid, 'f', -1, 64),
		"bestBidSize":    strconv.FormatFloat(top.BestBidSize, 'f', -1, 64),
		"bestAsk":        strconv.FormatFloat(top.BestAsk, 'f', -1, 64),
		"bestAskSize":    strconv.FormatFloat(top.BestAskSize, 'f', -1, 64),
		"nonce":          strconv.FormatInt(top.Nonce, 10),
		"source":         string(source),
		"timestamp":      strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if _, err := r.Bus.Append(context.Background(), r.Cfg.AggregateTopic, fields); err != nil {
		r.Logger.Error("emit top failed", "market", market, "err", err)
	}
	r.appendTopBatch(market, fields)
}

// onPassthrough forwards a raw candle/ticker frame onto its own topic
// unchanged and lands it in Parquet, batched the same way as book
// snapshots/updates.
func (r *Runner) onPassthrough(event string, raw []byte) {
	var env struct {
		Market string `json:"market"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Market == "" {
		return
	}

	topic := r.Cfg.TickerTopic
	if event == "candle" {
		topic = r.Cfg.CandleTopic
	}
	if _, err := r.Bus.Append(context.Background(), topic, map[string]interface{}{"data": string(raw)}); err != nil {
		r.Logger.Error("passthrough publish failed", "event", event, "market", env.Market, "err", err)
	}
	r.appendPassBatch(event, env.Market, raw)
}

func (r *Runner) appendPassBatch(event, market string, raw []byte) {
	if r.Landing == nil {
		return
	}
	key := event + ":" + market
	r.mu.Lock()
	b, ok := r.passBatch[key]
	if !ok {
		b = landing.NewBatcher(r.Landing, event, market, landing.BatchConfig{MaxRows: 200, MaxAge: 5 * time.Second})
		r.passBatch[key] = b
	}
	r.mu.Unlock()
	if err := b.Add(string(raw)); err != nil {
		r.Logger.Warn("landing passthrough failed", "event", event, "market", market, "err", err)
	}
}

func (r *Runner) archiveSnapshot(market string, resp exchangeclient.BookSnapshotResponse) {
	payload, err := json.Marshal(map[string]interface{}{
		"event": "snapshot", "market": market, "data": resp, "timestamp": time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	topic := sprintfTopic(r.Cfg.PerMarketTopic, market)
	_, _ = r.Bus.Append(context.Background(), topic, map[string]interface{}{"data": string(payload)})
	r.appendSnapshotBatch(market, resp)
}

func (r *Runner) archiveUpdate(market string, msg bookUpdateMessage) {
	payload, err := json.Marshal(map[string]interface{}{
		"event": "bookUpdate", "market": market, "data": msg, "timestamp": time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	topic := sprintfTopic(r.Cfg.PerMarketTopic, market)
	_, _ = r.Bus.Append(context.Background(), topic, map[string]interface{}{"data": string(payload)})
	r.appendUpdateBatch(market, msg)
}

func (r *Runner) appendSnapshotBatch(market string, resp exchangeclient.BookSnapshotResponse) {
	if r.Landing == nil {
		return
	}
	key := "orderbook:snapshot:" + market
	r.mu.Lock()
	b, ok := r.passBatch[key]
	if !ok {
		b = landing.NewBatcher(r.Landing, "orderbook:snapshot", market, landing.BatchConfig{MaxRows: 1, MaxAge: time.Second})
		r.passBatch[key] = b
	}
	r.mu.Unlock()
	if err := b.Add(resp); err != nil {
		r.Logger.Warn("landing snapshot failed", "market", market, "err", err)
	}
}

func (r *Runner) appendUpdateBatch(market string, msg bookUpdateMessage) {
	if r.Landing == nil {
		return
	}
	r.mu.Lock()
	b, ok := r.updateBatch[market]
	if !ok {
		b = landing.NewBatcher(r.Landing, "orderbook:update", market, landing.BatchConfig{MaxRows: 200, MaxAge: 5 * time.Second})
		r.updateBatch[market] = b
	}
	r.mu.Unlock()
	if err := b.Add(msg); err != nil {
		r.Logger.Warn("landing update failed", "market", market, "err", err)
	}
}

func (r *Runner) appendTopBatch(market string, fields map[string]interface{}) {
	if r.Landing == nil {
		return
	}
	r.mu.Lock()
	b, ok := r.topBatch[market]
	if !ok {
		b = landing.NewBatcher(r.Landing, "orderbook:top", market, landing.BatchConfig{MaxRows: 400, MaxAge: 5 * time.Second})
		r.topBatch[market] = b
	}
	r.mu.Unlock()
	if err := b.Add(fields); err != nil {
		r.Logger.Warn("landing top failed", "market", market, "err", err)
	}
}

// flushAll flushes every batcher: unconditionally when force is set
// (shutdown), otherwise only those whose MaxAge has elapsed.
func (r *Runner) flushAll(force bool) {
	r.mu.Lock()
	batchers := make([]*landing.Batcher, 0, len(r.updateBatch)+len(r.topBatch)+len(r.passBatch)+1)
	if r.snapshotBatch != nil {
		batchers = append(batchers, r.snapshotBatch)
	}
	for _, b := range r.updateBatch {
		batchers = append(batchers, b)
	}
	for _, b := range r.topBatch {
		batchers = append(batchers, b)
	}
	for _, b := range r.passBatch {
		batchers = append(batchers, b)
	}
	r.mu.Unlock()

	for _, b := range batchers {
		flush := b.FlushIfDue
		if force {
			flush = b.Flush
		}
		if err := flush(); err != nil {
			r.Logger.Warn("landing flush failed", "err", err)
		}
	}
}

func toLevels(raw [][2]string) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		price, err1 := strconv.ParseFloat(lvl[0], 64)
		amount, err2 := strconv.ParseFloat(lvl[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, types.PriceLevel{Price: price, Amount: amount})
	}
	return out
}

func sprintfTopic(format, market string) string {
	return fmt.Sprintf(format, market)
}
