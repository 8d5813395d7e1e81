// Package exchange talks to the Binance spot API: signed REST for candles,
// prices, balances and market orders, and a websocket ticker stream that
// keeps a price cache warm.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-signals/internal/model"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	TestnetBaseURL = "https://testnet.binance.vision"
	maxKlineLimit  = 1000
	recvWindowMs   = 5000
)

// APIError is a non-2xx response from the exchange.
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("binance: status=%d code=%d msg=%s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("binance: status=%d", e.Status)
}

// Client is a Binance spot REST client. It satisfies model.MarketData and
// model.Executor.
type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	secretKey string
	now       func() time.Time
}

// NewClient creates a REST client. Keys may be empty for market data only.
func NewClient(baseURL, apiKey, secretKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		secretKey: secretKey,
		now:       time.Now,
	}
}

func (c *Client) Mode() string { return "production" }

// Klines fetches candles oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var raw [][]interface{}
	if err := c.do(ctx, http.MethodGet, "/api/v3/klines", params, false, &raw); err != nil {
		return nil, &model.MarketDataError{Symbol: symbol, Err: err}
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openTime, ok := k[0].(float64)
		if !ok {
			continue
		}
		cd := model.Candle{Time: time.UnixMilli(int64(openTime)).UTC()}
		vals := []*float64{&cd.Open, &cd.High, &cd.Low, &cd.Close, &cd.Volume}
		valid := true
		for i, dst := range vals {
			s, ok := k[i+1].(string)
			if !ok {
				valid = false
				break
			}
			v, err := parseAmount(s)
			if err != nil {
				valid = false
				break
			}
			*dst = v
		}
		if valid {
			candles = append(candles, cd)
		}
	}
	return candles, nil
}

// Price returns the last traded price.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	if err := c.do(ctx, http.MethodGet, "/api/v3/ticker/price", params, false, &resp); err != nil {
		return 0, &model.MarketDataError{Symbol: symbol, Err: err}
	}
	p, err := parseAmount(resp.Price)
	if err != nil {
		return 0, &model.MarketDataError{Symbol: symbol, Err: fmt.Errorf("parse price %q: %w", resp.Price, err)}
	}
	return p, nil
}

// Balances returns non-zero balances of the account.
func (c *Client) Balances(ctx context.Context) ([]model.Balance, error) {
	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", url.Values{}, true, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		free, _ := parseAmount(b.Free)
		locked, _ := parseAmount(b.Locked)
		if free == 0 && locked == 0 {
			continue
		}
		out = append(out, model.Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

func (c *Client) MarketBuyByQuote(ctx context.Context, symbol string, quoteAmount float64, clientOrderID string) (model.OrderResult, error) {
	amount, err := formatAmount(quoteAmount)
	if err != nil {
		return model.OrderResult{}, &model.ExecutionError{Symbol: symbol, Side: model.SideBuy, Err: err}
	}
	params := url.Values{}
	params.Set("quoteOrderQty", amount)
	return c.marketOrder(ctx, symbol, model.SideBuy, params, clientOrderID)
}

func (c *Client) MarketSellByQty(ctx context.Context, symbol string, qty float64, clientOrderID string) (model.OrderResult, error) {
	quantity, err := formatAmount(qty)
	if err != nil {
		return model.OrderResult{}, &model.ExecutionError{Symbol: symbol, Side: model.SideSell, Err: err}
	}
	params := url.Values{}
	params.Set("quantity", quantity)
	return c.marketOrder(ctx, symbol, model.SideSell, params, clientOrderID)
}

type orderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Fills               []struct {
		Price      string `json:"price"`
		Qty        string `json:"qty"`
		Commission string `json:"commission"`
	} `json:"fills"`
}

func (c *Client) marketOrder(ctx context.Context, symbol string, side model.Side, params url.Values, clientOrderID string) (model.OrderResult, error) {
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("newOrderRespType", "FULL")
	if clientOrderID != "" {
		params.Set("newClientOrderId", clientOrderID)
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true, &resp); err != nil {
		return model.OrderResult{}, &model.ExecutionError{Symbol: symbol, Side: side, Err: err}
	}

	res := model.OrderResult{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          side,
		Status:        resp.Status,
		TransactTime:  time.UnixMilli(resp.TransactTime),
	}
	res.ExecutedQty, _ = parseAmount(resp.ExecutedQty)
	res.CummulativeQuoteQty, _ = parseAmount(resp.CummulativeQuoteQty)
	for _, f := range resp.Fills {
		var fill model.Fill
		fill.Price, _ = parseAmount(f.Price)
		fill.Qty, _ = parseAmount(f.Qty)
		fill.Commission, _ = parseAmount(f.Commission)
		res.Fills = append(res.Fills, fill)
	}
	log.Printf("[binance] %s %s order=%s qty=%s quote=%s status=%s",
		side, symbol, res.OrderID, resp.ExecutedQty, resp.CummulativeQuoteQty, resp.Status)
	return res, nil
}

// sign appends timestamp, recvWindow and the HMAC-SHA256 signature.
func (c *Client) sign(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(recvWindowMs))
	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return query + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool, out interface{}) error {
	if signed && (c.apiKey == "" || c.secretKey == "") {
		return fmt.Errorf("binance: %s requires API credentials", path)
	}
	query := params.Encode()
	if signed {
		query = c.sign(params)
	}
	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
