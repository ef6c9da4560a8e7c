package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"botsupervisor/internal/clock"
	"botsupervisor/internal/core"
	"botsupervisor/internal/exchange/base"
	"botsupervisor/internal/model"
	"botsupervisor/pkg/apperrors"
)

// MinOrderSize is the minimum base-unit order size guard from spec.md §4.1.
var MinOrderSize = decimal.NewFromFloat(0.01)

// Client implements core.IExchangeClient against one venue, using a
// pluggable Signer for the venue's HMAC variant (spec.md §4.1, §6).
type Client struct {
	venueName string
	baseURL   string
	signer    Signer
	transport *base.Transport
	clock     *clock.Clock
	logger    core.ILogger

	mu          sync.RWMutex
	symbolInfo  map[string]model.SymbolInfo
}

// New builds an exchange Client for one venue.
func New(venueName, baseURL string, signer Signer, transport *base.Transport, clk *clock.Clock, logger core.ILogger) *Client {
	return &Client{
		venueName:  venueName,
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     signer,
		transport:  transport,
		clock:      clk,
		logger:     logger.WithField("exchange", venueName),
		symbolInfo: make(map[string]model.SymbolInfo),
	}
}

// ServerTime polls the venue clock endpoint. Callers normally go through
// clock.Clock.Resync instead; this is exposed for the clock.Clock's fetch
// function and for the core.IExchangeClient contract.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	body, status, err := c.transport.Do(ctx, http.MethodGet, c.baseURL+"/time", nil, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: server time request: %w", c.venueName, err)
	}
	if status != http.StatusOK {
		return time.Time{}, c.classifyError(status, body)
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return time.Time{}, fmt.Errorf("%s: decode server time: %w", c.venueName, err)
	}
	return time.UnixMilli(resp.ServerTime), nil
}

// classifyError maps a non-2xx response into a classified apperrors
// sentinel, per spec.md §7's error taxonomy.
func (c *Client) classifyError(status int, body []byte) error {
	var payload struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &payload)

	switch payload.Code {
	case "AUTH_104", "AUTH_105":
		return apperrors.ErrTimeDrift
	case "AUTH_401", "AUTH_INVALID_SIGNATURE":
		return apperrors.ErrAuthFailed
	case "RATE_LIMIT", "TOO_MANY_REQUESTS":
		return apperrors.ErrRateLimited
	case "ORDER_NOT_FOUND":
		return apperrors.ErrOrderNotFound
	case "INSUFFICIENT_FUNDS", "BALANCE_NOT_ENOUGH":
		return apperrors.ErrInsufficientFunds
	case "INVALID_SYMBOL":
		return apperrors.ErrSymbolUnknown
	}

	if status == http.StatusTooManyRequests {
		return apperrors.ErrRateLimited
	}
	if status == http.StatusUnauthorized {
		return apperrors.ErrAuthFailed
	}
	return fmt.Errorf("%s: venue error (status=%d): %s", c.venueName, status, string(body))
}

// signedCall executes one signed request, retrying up to 3 attempts on a
// classified time-drift error: each retry resyncs the clock and re-signs
// before reissuing (spec.md §4.1, §7).
func (c *Client) signedCall(ctx context.Context, creds core.Credentials, method, path string, query url.Values, body []byte) ([]byte, error) {
	const maxAttempts = 3

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 || c.clock.NeedsResync() {
			if err := c.clock.Resync(ctx); err != nil {
				c.logger.Warn("clock resync failed", "attempt", attempt, "error", err)
			}
		}

		queryStr := query.Encode()
		in := SignInput{
			Method:       method,
			Path:         path,
			Query:        queryStr,
			Body:         string(body),
			Timestamp:    c.clock.Now().UnixMilli(),
			APIKey:       creds.APIKey,
			APISecret:    creds.APISecret,
			RecvWindowMs: 5000,
		}
		headers := c.signer.Headers(in)

		fullURL := c.baseURL + path
		if queryStr != "" {
			fullURL += "?" + queryStr
		}

		respBody, status, err := c.transport.Do(ctx, method, fullURL, headers, body)
		if err != nil {
			lastErr = err
			continue // network error: resync + retry, per spec.md §4.1
		}
		if status == http.StatusOK {
			return respBody, nil
		}

		classified := c.classifyError(status, respBody)
		if apperrors.IsTimeDrift(classified) {
			lastErr = classified
			continue // drift: resync + re-sign + reissue
		}
		// Every other error class (rate limit, venue rejection, auth-non-drift)
		// surfaces immediately without retry.
		return nil, classified
	}
	return nil, fmt.Errorf("%s: exhausted retries: %w", c.venueName, lastErr)
}

// clientOrderID formats "<purpose>_<unixMs>_<idx>" per spec.md §4.1.
func clientOrderID(purpose string, idx int) string {
	return fmt.Sprintf("%s_%d_%d", purpose, time.Now().UnixMilli(), idx)
}

// NewClientBatchID returns a fresh client-supplied batch identifier.
func NewClientBatchID() string {
	return uuid.NewString()
}

type orderPayload struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"timeInForce,omitempty"`
	Price         string `json:"price,omitempty"`
	Quantity      string `json:"quantity,omitempty"`
	QuoteQty      string `json:"quoteQty,omitempty"`
	ClientOrderID string `json:"clientOrderId"`
}

func toOrderPayload(req core.OrderRequest, info model.SymbolInfo) (orderPayload, error) {
	qty := req.Qty
	if !req.QuoteQty.IsZero() && req.Type == model.OrderTypeMarket {
		// quote-denominated market order: venue accepts quoteQty directly.
	} else if qty.LessThan(MinOrderSize) {
		return orderPayload{}, apperrors.ErrOrderBelowMinSize
	}

	p := orderPayload{
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		Type:          string(req.Type),
		ClientOrderID: req.ClientOrderID,
	}
	if req.Type == model.OrderTypeLimit {
		p.TimeInForce = "GTC"
		p.Price = req.Price.StringFixed(info.PricePrecision)
	}
	if !req.QuoteQty.IsZero() {
		p.QuoteQty = req.QuoteQty.StringFixed(info.QuantityPrecision)
	} else {
		p.Quantity = qty.StringFixed(info.QuantityPrecision)
	}
	return p, nil
}

type orderResponse struct {
	OrderID       json.Number `json:"orderId"`
	OrderIDString string      `json:"orderIdString"`
	ClientOrderID string      `json:"clientOrderId"`
	Symbol        string      `json:"symbol"`
	Side          string      `json:"side"`
	Status        string      `json:"status"`
	Price         string      `json:"price"`
	OrigQty       string      `json:"origQty"`
	ExecutedQty   string      `json:"executedQty"`
}

// normalizeOrderRef resolves spec.md Open Question #3: some venue
// endpoints return a numeric orderId, others orderIdString; both are
// normalized into a single OrderRef.OrderID field.
func normalizeOrderRef(r orderResponse) (core.OrderRef, error) {
	id := r.OrderIDString
	if id == "" {
		id = r.OrderID.String()
	}
	if id == "" || id == "0" {
		return core.OrderRef{}, fmt.Errorf("venue response missing order id")
	}
	price, _ := decimal.NewFromString(r.Price)
	orig, _ := decimal.NewFromString(r.OrigQty)
	exec, _ := decimal.NewFromString(r.ExecutedQty)
	return core.OrderRef{
		OrderID:       id,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          model.OrderSide(r.Side),
		Status:        r.Status,
		Price:         price,
		OrigQty:       orig,
		ExecutedQty:   exec,
	}, nil
}

// PlaceOrder places a single order, tagging it with a generated
// client-order-id if the caller did not supply one.
func (c *Client) PlaceOrder(ctx context.Context, creds core.Credentials, req core.OrderRequest) (core.OrderRef, error) {
	info, err := c.SymbolInfo(ctx, req.Symbol)
	if err != nil {
		return core.OrderRef{}, err
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = clientOrderID("order", 0)
	}
	payload, err := toOrderPayload(req, info)
	if err != nil {
		return core.OrderRef{}, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return core.OrderRef{}, err
	}

	respBody, err := c.signedCall(ctx, creds, http.MethodPost, "/order", url.Values{}, body)
	if err != nil {
		return core.OrderRef{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return core.OrderRef{}, fmt.Errorf("%s: decode order response: %w", c.venueName, err)
	}
	return normalizeOrderRef(resp)
}

// PlaceBatch places a batch of orders tagged with a caller-supplied
// clientBatchId, returning per-item results and errors in parallel slices
// (spec.md §4.1 idempotency).
func (c *Client) PlaceBatch(ctx context.Context, creds core.Credentials, clientBatchID string, reqs []core.OrderRequest) ([]core.OrderRef, []error) {
	refs := make([]core.OrderRef, len(reqs))
	errs := make([]error, len(reqs))

	if len(reqs) == 0 {
		return refs, errs
	}
	info, err := c.SymbolInfo(ctx, reqs[0].Symbol)
	if err != nil {
		for i := range errs {
			errs[i] = err
		}
		return refs, errs
	}

	items := make([]orderPayload, 0, len(reqs))
	for i, r := range reqs {
		if r.ClientOrderID == "" {
			r.ClientOrderID = clientOrderID("batch", i)
		}
		payload, perr := toOrderPayload(r, info)
		if perr != nil {
			errs[i] = perr
			continue
		}
		items = append(items, payload)
	}

	batchBody, err := json.Marshal(map[string]interface{}{
		"clientBatchId": clientBatchID,
		"items":         items,
	})
	if err != nil {
		for i := range errs {
			errs[i] = err
		}
		return refs, errs
	}

	respBody, err := c.signedCall(ctx, creds, http.MethodPost, "/batch-order", url.Values{}, batchBody)
	if err != nil {
		for i := range errs {
			if errs[i] == nil {
				errs[i] = err
			}
		}
		return refs, errs
	}

	var batchResp struct {
		Results []struct {
			orderResponse
			Error string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(respBody, &batchResp); err != nil {
		for i := range errs {
			if errs[i] == nil {
				errs[i] = fmt.Errorf("%s: decode batch response: %w", c.venueName, err)
			}
		}
		return refs, errs
	}

	j := 0
	for i := range reqs {
		if errs[i] != nil {
			continue
		}
		if j >= len(batchResp.Results) {
			errs[i] = fmt.Errorf("%s: missing batch result for item %d", c.venueName, i)
			continue
		}
		item := batchResp.Results[j]
		j++
		if item.Error != "" {
			errs[i] = fmt.Errorf("%s", item.Error)
			continue
		}
		ref, nerr := normalizeOrderRef(item.orderResponse)
		if nerr != nil {
			errs[i] = nerr
			continue
		}
		refs[i] = ref
	}
	return refs, errs
}

// CancelOrder cancels one order by id.
func (c *Client) CancelOrder(ctx context.Context, creds core.Credentials, symbol, orderID string) error {
	q := url.Values{"symbol": {symbol}}
	_, err := c.signedCall(ctx, creds, http.MethodDelete, "/order/"+orderID, q, nil)
	return err
}

// CancelBatch cancels a set of orders in one call. Some venues return
// success even when some ids are unknown; this method simply surfaces the
// venue's own verdict and does not reconcile against open orders.
// Config.Supervisor.TreatUnknownCancelAsSuccess is loaded from
// configuration, but no caller reads it.
func (c *Client) CancelBatch(ctx context.Context, creds core.Credentials, symbol string, orderIDs []string) error {
	body, err := json.Marshal(map[string]interface{}{"symbol": symbol, "orderIds": orderIDs})
	if err != nil {
		return err
	}
	_, err = c.signedCall(ctx, creds, http.MethodDelete, "/batch-order", url.Values{}, body)
	return err
}

// CancelAllOpen cancels every open order for symbol, optionally scoped to side.
func (c *Client) CancelAllOpen(ctx context.Context, creds core.Credentials, symbol string, side *model.OrderSide) error {
	q := url.Values{"symbol": {symbol}}
	if side != nil {
		q.Set("side", string(*side))
	}
	_, err := c.signedCall(ctx, creds, http.MethodDelete, "/open-order", q, nil)
	return err
}

// OpenOrders lists open orders for symbol, optionally scoped to side.
func (c *Client) OpenOrders(ctx context.Context, creds core.Credentials, symbol string, side *model.OrderSide) ([]core.OrderRef, error) {
	q := url.Values{"symbol": {symbol}}
	if side != nil {
		q.Set("side", string(*side))
	}
	respBody, err := c.signedCall(ctx, creds, http.MethodGet, "/open-orders", q, nil)
	if err != nil {
		return nil, err
	}
	var raw []orderResponse
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode open orders: %w", c.venueName, err)
	}
	refs := make([]core.OrderRef, 0, len(raw))
	for _, r := range raw {
		ref, err := normalizeOrderRef(r)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Balances returns the available balance of each requested currency. The
// venue's frozen and total amounts are decoded but not returned.
func (c *Client) Balances(ctx context.Context, creds core.Credentials, currencies []string) (map[string]decimal.Decimal, error) {
	q := url.Values{}
	if len(currencies) > 0 {
		q.Set("currencies", strings.Join(currencies, ","))
	}
	respBody, err := c.signedCall(ctx, creds, http.MethodGet, "/balances", q, nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]struct {
		AvailableAmount string `json:"availableAmount"`
		FrozenAmount    string `json:"frozenAmount"`
		TotalAmount     string `json:"totalAmount"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode balances: %w", c.venueName, err)
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for asset, b := range raw {
		avail, _ := decimal.NewFromString(b.AvailableAmount)
		out[asset] = avail
	}
	return out, nil
}

// Depth fetches the order book snapshot for symbol (unsigned public endpoint).
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (model.OrderBook, error) {
	u := fmt.Sprintf("%s/depth?symbol=%s&limit=%d", c.baseURL, url.QueryEscape(symbol), limit)
	body, status, err := c.transport.Do(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return model.OrderBook{}, fmt.Errorf("%s: depth request: %w", c.venueName, err)
	}
	if status != http.StatusOK {
		return model.OrderBook{}, c.classifyError(status, body)
	}
	var raw struct {
		Bids      [][2]string `json:"bids"`
		Asks      [][2]string `json:"asks"`
		Timestamp int64       `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.OrderBook{}, fmt.Errorf("%s: decode depth: %w", c.venueName, err)
	}

	book := model.OrderBook{Symbol: symbol, Timestamp: time.UnixMilli(raw.Timestamp)}
	for _, lvl := range raw.Bids {
		book.Bids = append(book.Bids, parseLevel(lvl))
	}
	for _, lvl := range raw.Asks {
		book.Asks = append(book.Asks, parseLevel(lvl))
	}
	return book, nil
}

func parseLevel(lvl [2]string) model.PriceLevel {
	p, _ := decimal.NewFromString(lvl[0])
	q, _ := decimal.NewFromString(lvl[1])
	return model.PriceLevel{Price: p, Qty: q}
}

// Ticker fetches the last-trade price for symbol.
func (c *Client) Ticker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/ticker/price?symbol=%s", c.baseURL, url.QueryEscape(symbol))
	body, status, err := c.transport.Do(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: ticker request: %w", c.venueName, err)
	}
	if status != http.StatusOK {
		return decimal.Zero, c.classifyError(status, body)
	}
	var raw struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, fmt.Errorf("%s: decode ticker: %w", c.venueName, err)
	}
	return decimal.NewFromString(raw.Price)
}

// SymbolInfo returns precision metadata for symbol, caching it for the
// process lifetime (precision changes are rare and out of scope to poll).
func (c *Client) SymbolInfo(ctx context.Context, symbol string) (model.SymbolInfo, error) {
	c.mu.RLock()
	if info, ok := c.symbolInfo[symbol]; ok {
		c.mu.RUnlock()
		return info, nil
	}
	c.mu.RUnlock()

	u := fmt.Sprintf("%s/symbols?symbol=%s", c.baseURL, url.QueryEscape(symbol))
	body, status, err := c.transport.Do(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return model.SymbolInfo{}, fmt.Errorf("%s: symbol info request: %w", c.venueName, err)
	}
	if status != http.StatusOK {
		return model.SymbolInfo{}, c.classifyError(status, body)
	}
	var raw struct {
		Symbol            string `json:"symbol"`
		PricePrecision    int32  `json:"pricePrecision"`
		QuantityPrecision int32  `json:"quantityPrecision"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.SymbolInfo{}, fmt.Errorf("%s: decode symbol info: %w", c.venueName, err)
	}

	info := model.SymbolInfo{
		Symbol:            symbol,
		PricePrecision:    raw.PricePrecision,
		QuantityPrecision: raw.QuantityPrecision,
		MinOrderSize:      MinOrderSize,
	}
	c.mu.Lock()
	c.symbolInfo[symbol] = info
	c.mu.Unlock()
	return info, nil
}

// Pace delegates to the shared transport's rate limiter.
func (c *Client) Pace(ctx context.Context) error {
	return c.transport.Pace(ctx)
}

var _ core.IExchangeClient = (*Client)(nil)

// quoteQtyFromAmount divides a quote amount by price to derive a base
// quantity, rounding down at the symbol's quantity precision so the
// resulting order never exceeds the requested budget.
func quoteQtyFromAmount(quoteAmount, price decimal.Decimal, precision int32) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return quoteAmount.Div(price).Truncate(precision)
}

// QuoteQtyFromAmount is exported for strategy evaluators that need to
// convert a quote budget into a base quantity using the same rounding
// rule the exchange client itself uses when serializing orders.
func QuoteQtyFromAmount(quoteAmount, price decimal.Decimal, precision int32) decimal.Decimal {
	return quoteQtyFromAmount(quoteAmount, price, precision)
}
