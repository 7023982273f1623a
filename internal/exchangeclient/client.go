// Package exchangeclient is the Bitvavo REST surface used by the
// executor (place/cancel order) and the exit guard (market sell, TP
// limit order, cancel). Grounded on order_submit_bitvavo.py and
// order_guard_bitvavo.py's requests usage, ported to resty, with the
// HMAC signing scheme in auth.go and the weight budget in ratelimit.go.
package exchangeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"bitvavo-trading-core/internal/errs"
)

// Config carries the credentials and endpoint this client talks to.
type Config struct {
	APIKey     string
	APISecret  string
	OperatorID string
	BaseURL    string // e.g. "https://api.bitvavo.com/v2"
	Timeout    time.Duration
	DryRun     bool
}

// Client wraps a resty.Client with Bitvavo request signing and a
// weight-based rate limiter.
type Client struct {
	cfg     Config
	http    *resty.Client
	weights *weightBucket
}

// New builds a Client. In DryRun mode PlaceOrder and CancelOrder return
// a synthetic response without signing, taking rate-limit weight, or
// contacting the exchange; public reads (book, ticker, markets) still
// go to the network under the weight budget.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	h := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond)

	return &Client{
		cfg:     cfg,
		http:    h,
		weights: newWeightBucket(1000, time.Minute),
	}
}

// OrderRequest is the outbound payload for PlaceOrder.
type OrderRequest struct {
	Market      string `json:"market"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Amount      string `json:"amount,omitempty"`
	AmountQuote string `json:"amountQuote,omitempty"`
	Price       string `json:"price,omitempty"`
	TriggerAmount string `json:"triggerAmount,omitempty"`
}

// OrderResponse is Bitvavo's order-placement/cancel response. ErrorCode
// and Error are populated on rejection; the rest on success.
type OrderResponse struct {
	OrderID   string `json:"orderId"`
	Market    string `json:"market"`
	Side      string `json:"side"`
	Status    string `json:"status"`
	ErrorCode int    `json:"errorCode"`
	Error     string `json:"error"`
	Raw       []byte `json:"-"`
}

// Failed reports whether Bitvavo rejected the request, mirroring
// order_submit_bitvavo.py's `"errorCode" in resp` check.
func (r OrderResponse) Failed() bool {
	return r.ErrorCode != 0
}

// PlaceOrder submits req and returns the parsed response. In DryRun
// mode it returns a synthetic success without contacting the exchange,
// matching executor.py's DRY_OK path.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	if c.cfg.DryRun {
		return OrderResponse{Market: req.Market, Side: req.Side, Status: "dryrun"}, nil
	}
	var resp OrderResponse
	body, err := c.doSigned(ctx, "POST", "/order", req, 1, &resp)
	resp.Raw = body
	return resp, err
}

// CancelOrder cancels orderID on market.
func (c *Client) CancelOrder(ctx context.Context, market, orderID string) (OrderResponse, error) {
	if c.cfg.DryRun {
		return OrderResponse{Market: market, OrderID: orderID, Status: "dryrun-cancelled"}, nil
	}
	path := fmt.Sprintf("/order?market=%s&orderId=%s", market, orderID)
	var resp OrderResponse
	body, err := c.doSigned(ctx, "DELETE", path, nil, 1, &resp)
	resp.Raw = body
	return resp, err
}

// BookLevel is one REST book-snapshot level, price and size as the raw
// exchange string.
type BookLevel [2]string

// BookSnapshotResponse is Bitvavo's GET /{market}/book response.
type BookSnapshotResponse struct {
	Market string      `json:"market"`
	Nonce  int64       `json:"nonce"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}

// BookSnapshot fetches the current book for market at the given depth.
func (c *Client) BookSnapshot(ctx context.Context, market string, depth int) (BookSnapshotResponse, error) {
	var resp BookSnapshotResponse
	path := fmt.Sprintf("/%s/book", market)
	if depth > 0 {
		path = fmt.Sprintf("%s?depth=%d", path, depth)
	}
	_, err := c.doPublic(ctx, "GET", path, 1, &resp)
	return resp, err
}

// TickerPriceResponse is Bitvavo's GET /ticker/price response for one market.
type TickerPriceResponse struct {
	Market string `json:"market"`
	Price  string `json:"price"`
}

// TickerPrice fetches the last-trade price for market.
func (c *Client) TickerPrice(ctx context.Context, market string) (TickerPriceResponse, error) {
	var resp TickerPriceResponse
	path := fmt.Sprintf("/ticker/price?market=%s", market)
	_, err := c.doPublic(ctx, "GET", path, 1, &resp)
	return resp, err
}

// MarketMeta is one market's exchange metadata (precision, min order
// size) as returned by Markets.
type MarketMeta struct {
	Market         string `json:"market"`
	PricePrecision int    `json:"pricePrecision"`
	AmountPrecision int   `json:"amountPrecision"`
	MinOrderInBaseAsset  string `json:"minOrderInBaseAsset"`
	MinOrderInQuoteAsset string `json:"minOrderInQuoteAsset"`
}

// Markets fetches metadata for every listed market; cmd/ingest uses it
// to discover the -EUR markets when none are configured.
func (c *Client) Markets(ctx context.Context) ([]MarketMeta, error) {
	var resp []MarketMeta
	_, err := c.doPublic(ctx, "GET", "/markets", 1, &resp)
	return resp, err
}

func (c *Client) doPublic(ctx context.Context, method, path string, weight float64, out interface{}) ([]byte, error) {
	if err := c.weights.Take(ctx, weight); err != nil {
		return nil, err
	}
	r := c.http.R().SetContext(ctx)
	resp, err := r.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("exchangeclient: %s %s: %w: %w", method, path, errs.ErrTransientIO, err)
	}
	if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
		return resp.Body(), fmt.Errorf("exchangeclient: %s %s status %d: %w", method, path, resp.StatusCode(), errs.ErrTransientIO)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return resp.Body(), fmt.Errorf("exchangeclient: decode %s: %w: %w", path, errs.ErrMalformedInput, err)
		}
	}
	return resp.Body(), nil
}

// doSigned performs a private (authenticated) request. body, when
// non-nil, is JSON-marshalled and included both in the request and in
// the HMAC signature base string.
func (c *Client) doSigned(ctx context.Context, method, path string, body interface{}, weight float64, out interface{}) ([]byte, error) {
	if err := c.weights.Take(ctx, weight); err != nil {
		return nil, err
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("exchangeclient: encode request: %w", err)
		}
	}

	ts := time.Now().UnixMilli()
	sig := sign(c.cfg.APISecret, ts, method, "/v2"+path, string(bodyBytes))

	r := c.http.R().
		SetContext(ctx).
		SetHeader("BITVAVO-ACCESS-KEY", c.cfg.APIKey).
		SetHeader("BITVAVO-ACCESS-SIGNATURE", sig).
		SetHeader("BITVAVO-ACCESS-TIMESTAMP", fmt.Sprintf("%d", ts)).
		SetHeader("BITVAVO-ACCESS-WINDOW", "10000")
	if c.cfg.OperatorID != "" {
		r.SetHeader("BITVAVO-ACCESS-OPERATOR-ID", c.cfg.OperatorID)
	}
	if bodyBytes != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(bodyBytes)
	}

	resp, err := r.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("exchangeclient: %s %s: %w: %w", method, path, errs.ErrTransientIO, err)
	}
	if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
		return resp.Body(), fmt.Errorf("exchangeclient: %s %s status %d: %w", method, path, resp.StatusCode(), errs.ErrTransientIO)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return resp.Body(), fmt.Errorf("exchangeclient: decode %s: %w: %w", path, errs.ErrMalformedInput, err)
		}
	}
	return resp.Body(), nil
}
