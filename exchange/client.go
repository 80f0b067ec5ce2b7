package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/types"
)

// Position is the exchange-side view of an open position.
type Position struct {
	Symbol   string
	Size     decimal.Decimal
	AvgPrice decimal.Decimal
}

// OrderResult carries the exchange order id of a placed order.
type OrderResult struct {
	OrderID string
}

// ExecutionEvent is a fill report from the execution stream.
type ExecutionEvent struct {
	Symbol    string
	OrderID   string
	Side      string
	Qty       decimal.Decimal
	Price     decimal.Decimal
	Closed    bool
	Timestamp int64
}

// Client is the order and market-data surface the engine drives.
// Implementations must be safe for concurrent use.
type Client interface {
	// PlaceEntry places a conditional (stop) entry at the trigger price.
	PlaceEntry(symbol string, side types.Side, qty, trigger decimal.Decimal) (OrderResult, error)

	// PlaceLimit places a plain limit order. Used for DCA ladders.
	PlaceLimit(symbol string, side types.Side, qty, price decimal.Decimal) (OrderResult, error)

	// PlaceReduceTP places a reduce-only take-profit limit order.
	PlaceReduceTP(symbol string, side types.Side, qty, price decimal.Decimal) (OrderResult, error)

	// SetStopLoss sets or moves the position stop. An existing stop is replaced.
	SetStopLoss(symbol string, price decimal.Decimal) error

	// SetTrailingStop activates a trailing stop at the given distance.
	SetTrailingStop(symbol string, distance decimal.Decimal) error

	// SetLeverage sets position leverage. "Already set" responses are not errors.
	SetLeverage(symbol string, leverage decimal.Decimal) error

	// CancelOrder cancels an order. Orders already filled, cancelled or
	// unknown are treated as success.
	CancelOrder(symbol, orderID string) error

	// MarketClose closes the position at market, reduce-only.
	MarketClose(symbol string, side types.Side, qty decimal.Decimal) error

	// Position returns the current position, zero-size when flat.
	Position(symbol string) (Position, error)

	// Equity returns the account equity in the quote currency.
	Equity() (decimal.Decimal, error)

	// LastPrice returns the latest traded price.
	LastPrice(symbol string) (decimal.Decimal, error)

	// Klines returns up to limit candles, newest first.
	Klines(symbol, interval string, limit int) ([]types.Candle, error)
}
