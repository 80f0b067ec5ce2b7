package exchange

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PAPER CLIENT - In-memory exchange for dry runs and tests
// ═══════════════════════════════════════════════════════════════════════════════

type paperOrder struct {
	ID      string
	Symbol  string
	Side    types.Side
	Qty     decimal.Decimal
	Price   decimal.Decimal
	Trigger decimal.Decimal
	Reduce  bool
}

// PaperClient simulates the exchange surface in memory. Prices and
// position state are set by the caller; market-data reads can be backed
// by a real client for live dry runs.
type PaperClient struct {
	mu        sync.Mutex
	equity    decimal.Decimal
	prices    map[string]decimal.Decimal
	positions map[string]Position
	orders    map[string]paperOrder
	stops     map[string]decimal.Decimal
	candles   map[string][]types.Candle

	// MarketData, when set, serves LastPrice and Klines not seeded locally.
	MarketData Client
}

func NewPaperClient(equity decimal.Decimal) *PaperClient {
	log.Info().Str("equity", equity.String()).Msg("📝 Paper client initialized (dry run)")
	return &PaperClient{
		equity:    equity,
		prices:    make(map[string]decimal.Decimal),
		positions: make(map[string]Position),
		orders:    make(map[string]paperOrder),
		stops:     make(map[string]decimal.Decimal),
		candles:   make(map[string][]types.Candle),
	}
}

func (c *PaperClient) PlaceEntry(symbol string, side types.Side, qty, trigger decimal.Decimal) (OrderResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := "PAPER-" + uuid.New().String()[:8]
	c.orders[id] = paperOrder{ID: id, Symbol: symbol, Side: side, Qty: qty, Trigger: trigger}

	log.Info().
		Str("symbol", symbol).
		Str("side", side.OrderSide()).
		Str("qty", qty.String()).
		Str("trigger", trigger.String()).
		Str("order_id", id).
		Msg("📝 DRY RUN: conditional entry")
	return OrderResult{OrderID: id}, nil
}

func (c *PaperClient) PlaceLimit(symbol string, side types.Side, qty, price decimal.Decimal) (OrderResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := "PAPER-" + uuid.New().String()[:8]
	c.orders[id] = paperOrder{ID: id, Symbol: symbol, Side: side, Qty: qty, Price: price}
	return OrderResult{OrderID: id}, nil
}

func (c *PaperClient) PlaceReduceTP(symbol string, side types.Side, qty, price decimal.Decimal) (OrderResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := "PAPER-" + uuid.New().String()[:8]
	c.orders[id] = paperOrder{ID: id, Symbol: symbol, Side: side.Opposite(), Qty: qty, Price: price, Reduce: true}
	return OrderResult{OrderID: id}, nil
}

func (c *PaperClient) SetStopLoss(symbol string, price decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops[symbol] = price
	log.Info().Str("symbol", symbol).Str("stop", price.String()).Msg("📝 DRY RUN: stop set")
	return nil
}

func (c *PaperClient) SetTrailingStop(symbol string, distance decimal.Decimal) error {
	log.Info().Str("symbol", symbol).Str("distance", distance.String()).Msg("📝 DRY RUN: trailing stop")
	return nil
}

func (c *PaperClient) SetLeverage(symbol string, leverage decimal.Decimal) error {
	return nil
}

func (c *PaperClient) CancelOrder(symbol, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Cancelling an unknown order succeeds, matching live semantics.
	delete(c.orders, orderID)
	return nil
}

func (c *PaperClient) MarketClose(symbol string, side types.Side, qty decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.positions, symbol)
	log.Info().Str("symbol", symbol).Str("qty", qty.String()).Msg("📝 DRY RUN: market close")
	return nil
}

func (c *PaperClient) Position(symbol string) (Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos, ok := c.positions[symbol]; ok {
		return pos, nil
	}
	return Position{Symbol: symbol, Size: decimal.Zero, AvgPrice: decimal.Zero}, nil
}

func (c *PaperClient) Equity() (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.equity, nil
}

func (c *PaperClient) LastPrice(symbol string) (decimal.Decimal, error) {
	c.mu.Lock()
	price, ok := c.prices[symbol]
	c.mu.Unlock()
	if ok {
		return price, nil
	}
	if c.MarketData != nil {
		return c.MarketData.LastPrice(symbol)
	}
	return decimal.Zero, fmt.Errorf("no price for %s", symbol)
}

func (c *PaperClient) Klines(symbol, interval string, limit int) ([]types.Candle, error) {
	c.mu.Lock()
	candles, ok := c.candles[symbol]
	c.mu.Unlock()
	if ok {
		if len(candles) > limit {
			candles = candles[:limit]
		}
		return candles, nil
	}
	if c.MarketData != nil {
		return c.MarketData.Klines(symbol, interval, limit)
	}
	return nil, fmt.Errorf("no candles for %s", symbol)
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIMULATION HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

// SetPrice seeds the last traded price for symbol.
func (c *PaperClient) SetPrice(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
}

// SetCandles seeds price history for symbol, newest first.
func (c *PaperClient) SetCandles(symbol string, candles []types.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candles[symbol] = candles
}

// SetPosition seeds an open position.
func (c *PaperClient) SetPosition(symbol string, size, avgPrice decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[symbol] = Position{Symbol: symbol, Size: size, AvgPrice: avgPrice}
}

// Stop returns the simulated stop price for symbol.
func (c *PaperClient) Stop(symbol string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	price, ok := c.stops[symbol]
	return price, ok
}

// HasOrder reports whether an order is still live.
func (c *PaperClient) HasOrder(orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.orders[orderID]
	return ok
}

// Fill marks an order filled at the given price and returns the execution
// event a live stream would deliver. The order is removed; entries open a
// position, reduce-only fills shrink it.
func (c *PaperClient) Fill(orderID string, price decimal.Decimal, ts int64) (ExecutionEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.orders[orderID]
	if !ok {
		return ExecutionEvent{}, false
	}
	delete(c.orders, orderID)

	if order.Reduce {
		pos := c.positions[order.Symbol]
		pos.Size = pos.Size.Sub(order.Qty)
		if pos.Size.LessThanOrEqual(decimal.Zero) {
			delete(c.positions, order.Symbol)
		} else {
			c.positions[order.Symbol] = pos
		}
	} else {
		pos := c.positions[order.Symbol]
		pos.Symbol = order.Symbol
		pos.Size = pos.Size.Add(order.Qty)
		pos.AvgPrice = price
		c.positions[order.Symbol] = pos
	}

	return ExecutionEvent{
		Symbol:    order.Symbol,
		OrderID:   orderID,
		Side:      order.Side.OrderSide(),
		Qty:       order.Qty,
		Price:     price,
		Closed:    order.Reduce,
		Timestamp: ts,
	}, true
}
