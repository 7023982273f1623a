// Package types defines the shared vocabulary used across all components:
// market metadata, the event envelope, book/signal/intent/outbox records,
// and the small persisted blobs (virtual position, guard assignment,
// precision cache entry). It has no dependencies on internal packages.
package types

import "time"

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the direction of an order or intent: buy or sell.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// OrderType enumerates the order lifecycles this exchange accepts.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStopLoss  OrderType = "stopLoss"
)

// Action on an outbox record.
type Action string

const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
)

// TopOfBookSource tags where a top-of-book tuple came from.
type TopOfBookSource string

const (
	SourceSnapshot TopOfBookSource = "snapshot"
	SourceRealtime TopOfBookSource = "realtime"
	SourceBuffered TopOfBookSource = "buffered"
)

// ————————————————————————————————————————————————————————————————————————
// Market metadata
// ————————————————————————————————————————————————————————————————————————

// Market identifies a trading pair against the EUR quote currency and
// carries the precision metadata needed to round prices and amounts.
type Market struct {
	Base          string // e.g. "BTC"
	Quote         string // always "EUR" in this deployment
	PriceDecimals int    // pp: price rounding precision
	AmountDecimals int   // ap: amount rounding precision
	MinOrderBase  float64
	MinOrderQuote float64
}

// Symbol returns the exchange-facing market identifier, e.g. "BTC-EUR".
func (m Market) Symbol() string {
	return m.Base + "-" + m.Quote
}

// ————————————————————————————————————————————————————————————————————————
// Event envelope
// ————————————————————————————————————————————————————————————————————————

// EventEnvelope wraps an opaque payload with the metadata every topic
// record carries: which topic it was appended to, when it was ingested,
// and which market it concerns (empty for market-agnostic records).
type EventEnvelope struct {
	Topic       string
	IngestedAt  time.Time
	Market      string
	Payload     []byte // opaque JSON payload
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level: price mapped to amount.
type PriceLevel struct {
	Price  float64
	Amount float64
}

// BookSnapshot is the REST response used to seed a book.LocalBook.
type BookSnapshot struct {
	Market string
	Nonce  int64
	Bids   []PriceLevel // descending by price
	Asks   []PriceLevel // ascending by price
}

// BookUpdate is one incremental book delta carrying its own nonce.
// Amount == 0 removes the price level; any other amount replaces it.
type BookUpdate struct {
	Market string
	Nonce  int64
	Bids   []PriceLevel
	Asks   []PriceLevel
}

// TopOfBook is the best bid/ask tuple emitted whenever it changes.
type TopOfBook struct {
	Market      string
	BestBid     float64
	BestBidSize float64
	BestAsk     float64
	BestAskSize float64
	Nonce       int64
	Source      TopOfBookSource
}

// Equal reports whether the price/size quadruple matches other's — used
// for the top-of-book dedup invariant (spec invariant 3).
func (t TopOfBook) Equal(other TopOfBook) bool {
	return t.BestBid == other.BestBid &&
		t.BestBidSize == other.BestBidSize &&
		t.BestAsk == other.BestAsk &&
		t.BestAskSize == other.BestAskSize
}

// ————————————————————————————————————————————————————————————————————————
// Signal engine
// ————————————————————————————————————————————————————————————————————————

// SignalRecord is emitted by the signal engine whenever any filter fires.
type SignalRecord struct {
	SignalID string
	Market   string
	Ts       time.Time
	Score    float64
	Reasons  []string
	Details  map[string]float64
}

// ————————————————————————————————————————————————————————————————————————
// Intents (tagged variant over a shared field set)
// ————————————————————————————————————————————————————————————————————————

// Intent is the base order intent derived from a signal. Classification
// into MomentumIntent/MeanReversionIntent is a pure function of Details
// (see tradingcore.ClassifyIntent) — it is never stored as a separate Go
// type, only as a Kind tag, because Go structs can't be re-tagged after
// construction and every consumer only needs the discriminant plus the
// shared fields.
type Intent struct {
	SignalID string
	Market   string
	Side     Side
	Price    float64
	SizeEUR  float64
	Score    float64
	Reasons  []string
	Details  map[string]float64
	Kind     IntentKind
}

// IntentKind discriminates the Intent variants an order outbox record
// can carry.
type IntentKind string

const (
	IntentGeneric        IntentKind = "generic"
	IntentMomentum       IntentKind = "momentum"
	IntentMeanReversion  IntentKind = "mean_reversion"
)

// ————————————————————————————————————————————————————————————————————————
// Outbox
// ————————————————————————————————————————————————————————————————————————

// OutboxOrder is the append-only record the trading core writes and the
// executor consumes.
type OutboxOrder struct {
	Ts        time.Time
	Version   string
	DryRun    bool
	Action    Action
	SignalID  string
	Market    string
	Side      Side
	Price     float64
	SizeEUR   float64
	Mode      string
	TPPct     float64
	SLPct     float64
	TrailPct  float64
}

// ExecutedOrder is published by the executor once an order attempt
// resolves, successfully or not.
type ExecutedOrder struct {
	ID      string
	Market  string
	Side    Side
	Type    OrderType
	Amount  float64
	Price   float64
	Ts      time.Time
	Status  string // e.g. "LIVE_OK", "LIVE_ERR", "DRY_OK", "PARSE_ERR"
	Raw     []byte // raw exchange response, opaque
}

// ————————————————————————————————————————————————————————————————————————
// Exposure / positions
// ————————————————————————————————————————————————————————————————————————

// ExposureSnapshot is the trading core's point-in-time read of the
// exposure and position counters kept in the event bus KV.
type ExposureSnapshot struct {
	PerMarket   map[string]float64
	Global      float64
	PositionsN  int
}

// ————————————————————————————————————————————————————————————————————————
// Virtual position (exit guard)
// ————————————————————————————————————————————————————————————————————————

// VirtualPosition is the guard's in-KV model of open inventory for one
// market, used to compute TP/SL/trailing triggers.
type VirtualPosition struct {
	Qty       float64 `json:"qty"`
	Avg       float64 `json:"avg"`
	Peak      float64 `json:"peak"`
	TPOrderID string  `json:"tpOrderId"`
	LastPx    float64 `json:"lastPx"`
}

// Flat reports whether the position has been closed out.
func (v VirtualPosition) Flat() bool {
	return v.Qty <= 0 || v.Avg <= 0
}

// ————————————————————————————————————————————————————————————————————————
// Reconciler
// ————————————————————————————————————————————————————————————————————————

// GuardAssignment is the reconciler's market→metric-port mapping.
type GuardAssignment struct {
	Market string
	Port   int
}

// ————————————————————————————————————————————————————————————————————————
// Precision cache
// ————————————————————————————————————————————————————————————————————————

// PrecisionCache maps market symbol to the last accepted amount-decimals
// count, persisted atomically to disk by internal/precision.
type PrecisionCache map[string]int
