// Package ingest subscribes to Bitvavo's incremental order-book,
// candle, and ticker WebSocket channels, reconstructs each market's
// local book via internal/book, seeds/re-seeds it from REST snapshots,
// and publishes both the per-market archive record and the
// deduplicated aggregate top-of-book event.
//
// Grounded on original_source/ingest_orderbook.py's OrderbookIngest
// (subscribe-before-snapshot ordering, chunked subscription with
// inter-subscribe/inter-chunk sleeps, the non-blocking main loop that
// walks the drain window before falling back to a re-snapshot), ported
// onto github.com/gorilla/websocket's dial-and-dispatch idiom, since
// the Python original rides a vendor SDK's WebSocket client with no Go
// analogue. The connection is not re-dialled: ReadLoop returns on the
// first read error.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// bookUpdateMessage is Bitvavo's "book" channel event payload.
type bookUpdateMessage struct {
	Event  string      `json:"event"`
	Market string      `json:"market"`
	Nonce  int64       `json:"nonce"`
	Bids   [][2]string `json:"bids"`
	Asks   [][2]string `json:"asks"`
}

// Conn is a connected Bitvavo WebSocket session, safe for one reader
// and any number of concurrent writers (gorilla/websocket requires
// writes be serialized, never reads).
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// Dial connects to url (e.g. "wss://ws.bitvavo.com/v2/").
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.ws.Close()
}

type subscribeChannel struct {
	Name     string   `json:"name"`
	Markets  []string `json:"markets"`
	Interval []string `json:"interval,omitempty"`
}

type subscribeRequest struct {
	Action   string             `json:"action"`
	Channels []subscribeChannel `json:"channels"`
}

// SubscribeBook subscribes to the book channel for markets, chunked by
// chunkSize with sleepBetweenSubs between individual subscribe calls
// and sleepBetweenChunks between chunks — ingest_orderbook.py's
// SUB_CHUNK/SLEEP_BETWEEN_SUBS/SLEEP_BETWEEN_CHUNKS throttle, so
// subscribing to hundreds of markets doesn't trip the exchange's
// connection-level message-rate limit. The sleeps are fixed (no
// jitter) and no rate-limit budget is consulted.
func (c *Conn) SubscribeBook(markets []string, chunkSize int, sleepBetweenSubs, sleepBetweenChunks time.Duration) error {
	return c.subscribeChunked("book", nil, markets, chunkSize, sleepBetweenSubs, sleepBetweenChunks)
}

// SubscribeTicker24h subscribes to the 24h ticker channel — candle and
// trade/ticker streams forward raw frames rather than decoding them,
// so this shares the same chunked-throttle helper as the book channel.
func (c *Conn) SubscribeTicker24h(markets []string, chunkSize int, sleepBetweenSubs, sleepBetweenChunks time.Duration) error {
	return c.subscribeChunked("ticker24h", nil, markets, chunkSize, sleepBetweenSubs, sleepBetweenChunks)
}

// SubscribeCandles subscribes to the candle channel at the given
// interval (e.g. "1m").
func (c *Conn) SubscribeCandles(markets []string, interval string, chunkSize int, sleepBetweenSubs, sleepBetweenChunks time.Duration) error {
	return c.subscribeChunked("candles", []string{interval}, markets, chunkSize, sleepBetweenSubs, sleepBetweenChunks)
}

func (c *Conn) subscribeChunked(channel string, interval, markets []string, chunkSize int, sleepBetweenSubs, sleepBetweenChunks time.Duration) error {
	if chunkSize <= 0 {
		chunkSize = 25
	}
	for i := 0; i < len(markets); i += chunkSize {
		end := i + chunkSize
		if end > len(markets) {
			end = len(markets)
		}
		chunk := markets[i:end]
		for _, m := range chunk {
			if err := c.subscribeOne(channel, interval, m); err != nil {
				return err
			}
			time.Sleep(sleepBetweenSubs)
		}
		time.Sleep(sleepBetweenChunks)
	}
	return nil
}

func (c *Conn) subscribeOne(channel string, interval []string, market string) error {
	req := subscribeRequest{
		Action: "subscribe",
		Channels: []subscribeChannel{
			{Name: channel, Markets: []string{market}, Interval: interval},
		},
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(req)
}

// envelope is enough of every Bitvavo event's shape to route it without
// fully decoding channel-specific payloads.
type envelope struct {
	Event  string `json:"event"`
	Market string `json:"market"`
}

// ReadLoop blocks, routing every incoming frame by its "event" field to
// onBook (fully decoded) or onPassthrough (raw bytes, forwarded
// verbatim and batched into Parquet by the caller), until ctx is
// cancelled or the connection errs.
func (c *Conn) ReadLoop(ctx context.Context, onBook func(bookUpdateMessage), onPassthrough func(event string, raw []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("ingest: read: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue // malformed frame, e.g. a subscription ack; skip
		}

		switch env.Event {
		case "book":
			var msg bookUpdateMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			onBook(msg)
		case "candle", "ticker24h":
			if onPassthrough != nil {
				onPassthrough(env.Event, raw)
			}
		default:
			// subscription acks and anything else: ignore
		}
	}
}
