package exchange

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BYBIT EXECUTION CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Handles order placement and management with the Bybit v5 API
// HMAC-SHA256 request signing, linear USDT perpetuals
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	BybitMainnet = "https://api.bybit.com"
	BybitTestnet = "https://api-testnet.bybit.com"
	BybitDemo    = "https://api-demo.bybit.com"

	defaultRecvWindow = "5000"
	defaultCategory   = "linear"
)

// Cancel responses Bybit returns when the order is already gone.
// 110001: order not exists, 110004/170213: already filled or cancelled.
var tolerableCancelCodes = map[int]bool{
	110001: true,
	110004: true,
	170213: true,
}

type BybitClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	category   string
	recvWindow string
	httpClient *http.Client
}

// NewBybitClient creates a Bybit v5 client. env selects the host:
// "testnet", "demo" or mainnet by default. Empty category or recvWindow
// fall back to linear / 5000ms.
func NewBybitClient(apiKey, apiSecret, env, category, recvWindow string) *BybitClient {
	baseURL := BybitMainnet
	switch env {
	case "testnet":
		baseURL = BybitTestnet
	case "demo":
		baseURL = BybitDemo
	}
	if category == "" {
		category = defaultCategory
	}
	if recvWindow == "" {
		recvWindow = defaultRecvWindow
	}

	log.Info().
		Str("host", baseURL).
		Str("category", category).
		Msg("🚀 Bybit client initialized")

	return &BybitClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		category:   category,
		recvWindow: recvWindow,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// PlaceEntry places a conditional market entry triggered at the signal price.
func (c *BybitClient) PlaceEntry(symbol string, side types.Side, qty, trigger decimal.Decimal) (OrderResult, error) {
	// triggerDirection: 1 = rise to trigger, 2 = fall to trigger.
	// A buy stop waits for price to rise, a sell stop for it to fall.
	direction := 1
	if !side.IsBuy() {
		direction = 2
	}

	body := map[string]interface{}{
		"category":         c.category,
		"symbol":           symbol,
		"side":             side.OrderSide(),
		"orderType":        "Market",
		"qty":              qty.String(),
		"triggerPrice":     trigger.String(),
		"triggerDirection": direction,
		"triggerBy":        "LastPrice",
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := c.call("POST", "/v5/order/create", body, &result); err != nil {
		return OrderResult{}, err
	}

	log.Info().
		Str("symbol", symbol).
		Str("side", side.OrderSide()).
		Str("qty", qty.String()).
		Str("trigger", trigger.String()).
		Str("order_id", result.OrderID).
		Msg("✅ Conditional entry placed")

	return OrderResult{OrderID: result.OrderID}, nil
}

// PlaceLimit places a plain limit order.
func (c *BybitClient) PlaceLimit(symbol string, side types.Side, qty, price decimal.Decimal) (OrderResult, error) {
	body := map[string]interface{}{
		"category":  c.category,
		"symbol":    symbol,
		"side":      side.OrderSide(),
		"orderType": "Limit",
		"qty":       qty.String(),
		"price":     price.String(),
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := c.call("POST", "/v5/order/create", body, &result); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{OrderID: result.OrderID}, nil
}

// PlaceReduceTP places a reduce-only take-profit limit order on the exit side.
func (c *BybitClient) PlaceReduceTP(symbol string, side types.Side, qty, price decimal.Decimal) (OrderResult, error) {
	body := map[string]interface{}{
		"category":   c.category,
		"symbol":     symbol,
		"side":       side.Opposite().OrderSide(),
		"orderType":  "Limit",
		"qty":        qty.String(),
		"price":      price.String(),
		"reduceOnly": true,
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := c.call("POST", "/v5/order/create", body, &result); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{OrderID: result.OrderID}, nil
}

// SetStopLoss sets the position stop via trading-stop. Replaces any
// existing stop, so this doubles as the stop-move primitive.
func (c *BybitClient) SetStopLoss(symbol string, price decimal.Decimal) error {
	body := map[string]interface{}{
		"category":    c.category,
		"symbol":      symbol,
		"stopLoss":    price.String(),
		"positionIdx": 0,
	}
	return c.call("POST", "/v5/position/trading-stop", body, nil)
}

// SetTrailingStop activates a trailing stop with a fixed price distance.
func (c *BybitClient) SetTrailingStop(symbol string, distance decimal.Decimal) error {
	body := map[string]interface{}{
		"category":     c.category,
		"symbol":       symbol,
		"trailingStop": distance.String(),
		"positionIdx":  0,
	}
	return c.call("POST", "/v5/position/trading-stop", body, nil)
}

// SetLeverage sets position leverage. Bybit rejects setting an unchanged
// value with 110043, which is fine.
func (c *BybitClient) SetLeverage(symbol string, leverage decimal.Decimal) error {
	body := map[string]interface{}{
		"category":     c.category,
		"symbol":       symbol,
		"buyLeverage":  leverage.String(),
		"sellLeverage": leverage.String(),
	}
	err := c.call("POST", "/v5/position/set-leverage", body, nil)
	if apiErr, ok := err.(*APIError); ok && apiErr.Code == 110043 {
		return nil
	}
	return err
}

// CancelOrder cancels an order. Already-gone orders are success.
func (c *BybitClient) CancelOrder(symbol, orderID string) error {
	body := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}
	err := c.call("POST", "/v5/order/cancel", body, nil)
	if apiErr, ok := err.(*APIError); ok && tolerableCancelCodes[apiErr.Code] {
		log.Debug().
			Str("order_id", orderID).
			Int("code", apiErr.Code).
			Msg("Cancel target already gone")
		return nil
	}
	return err
}

// MarketClose closes the position at market, reduce-only.
func (c *BybitClient) MarketClose(symbol string, side types.Side, qty decimal.Decimal) error {
	body := map[string]interface{}{
		"category":   c.category,
		"symbol":     symbol,
		"side":       side.Opposite().OrderSide(),
		"orderType":  "Market",
		"qty":        qty.String(),
		"reduceOnly": true,
	}
	return c.call("POST", "/v5/order/create", body, nil)
}

// Position returns the current position for symbol, zero-size when flat.
func (c *BybitClient) Position(symbol string) (Position, error) {
	path := fmt.Sprintf("/v5/position/list?category=%s&symbol=%s", c.category, symbol)

	var result struct {
		List []struct {
			Symbol   string `json:"symbol"`
			Size     string `json:"size"`
			AvgPrice string `json:"avgPrice"`
		} `json:"list"`
	}
	if err := c.call("GET", path, nil, &result); err != nil {
		return Position{}, err
	}

	pos := Position{Symbol: symbol, Size: decimal.Zero, AvgPrice: decimal.Zero}
	for _, p := range result.List {
		if p.Symbol != symbol {
			continue
		}
		pos.Size, _ = decimal.NewFromString(p.Size)
		pos.AvgPrice, _ = decimal.NewFromString(p.AvgPrice)
	}
	return pos, nil
}

// Equity returns unified-account equity in USDT.
func (c *BybitClient) Equity() (decimal.Decimal, error) {
	var result struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
		} `json:"list"`
	}
	if err := c.call("GET", "/v5/account/wallet-balance?accountType=UNIFIED", nil, &result); err != nil {
		return decimal.Zero, err
	}
	if len(result.List) == 0 {
		return decimal.Zero, fmt.Errorf("empty wallet balance response")
	}

	equity, err := decimal.NewFromString(result.List[0].TotalEquity)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse equity: %w", err)
	}
	return equity, nil
}

// LastPrice returns the latest traded price for symbol.
func (c *BybitClient) LastPrice(symbol string) (decimal.Decimal, error) {
	path := fmt.Sprintf("/v5/market/tickers?category=%s&symbol=%s", c.category, symbol)

	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := c.call("GET", path, nil, &result); err != nil {
		return decimal.Zero, err
	}
	if len(result.List) == 0 {
		return decimal.Zero, fmt.Errorf("no ticker for %s", symbol)
	}

	price, err := decimal.NewFromString(result.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse last price: %w", err)
	}
	return price, nil
}

// Klines returns up to limit candles, newest first (Bybit's native order).
func (c *BybitClient) Klines(symbol, interval string, limit int) ([]types.Candle, error) {
	path := fmt.Sprintf("/v5/market/kline?category=%s&symbol=%s&interval=%s&limit=%d",
		c.category, symbol, interval, limit)

	var result struct {
		List [][]string `json:"list"`
	}
	if err := c.call("GET", path, nil, &result); err != nil {
		return nil, err
	}

	candles := make([]types.Candle, 0, len(result.List))
	for _, row := range result.List {
		// [startTime, open, high, low, close, volume, turnover]
		if len(row) < 5 {
			continue
		}
		var k types.Candle
		k.Timestamp, _ = strconv.ParseInt(row[0], 10, 64)
		k.Open, _ = decimal.NewFromString(row[1])
		k.High, _ = decimal.NewFromString(row[2])
		k.Low, _ = decimal.NewFromString(row[3])
		k.Close, _ = decimal.NewFromString(row[4])
		candles = append(candles, k)
	}
	return candles, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ═══════════════════════════════════════════════════════════════════════════════

// APIError is a non-zero retCode from the Bybit envelope.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit error %d: %s", e.Code, e.Message)
}

// call signs and sends a request, unwraps the v5 envelope and decodes
// result into out when non-nil.
func (c *BybitClient) call(method, path string, body map[string]interface{}, out interface{}) error {
	var payload string
	var reqBody io.Reader

	if method == "GET" {
		if i := strings.IndexByte(path, '?'); i >= 0 {
			payload = path[i+1:]
		}
	} else if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = string(jsonBody)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if method != "GET" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req, payload)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var envelope struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if envelope.RetCode != 0 {
		return &APIError{Code: envelope.RetCode, Message: envelope.RetMsg}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("parse result: %w", err)
		}
	}
	return nil
}

func (c *BybitClient) addHeaders(req *http.Request, payload string) {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())

	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
	req.Header.Set("X-BAPI-SIGN", c.sign(timestamp+c.apiKey+c.recvWindow+payload))
}

func (c *BybitClient) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
