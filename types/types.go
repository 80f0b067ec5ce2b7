package types

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side is the direction of a signal or trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// IsBuy returns true for long signals.
func (s Side) IsBuy() bool {
	return s == SideBuy
}

// OrderSide returns the exchange order side string ("Buy"/"Sell").
func (s Side) OrderSide() string {
	if s == SideSell {
		return "Sell"
	}
	return "Buy"
}

// Opposite returns the closing side for this position side.
func (s Side) Opposite() Side {
	if s == SideSell {
		return SideBuy
	}
	return SideSell
}

// Candle is a single OHLC bar. Exchanges return candles newest-first.
type Candle struct {
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Timestamp int64
}

// Signal is a normalized trade idea produced by a feed parser.
// Trigger is always > 0; TakeProfits, when present, are ordered in the
// direction favorable to Side (ascending for buys, descending for sells).
type Signal struct {
	Symbol      string
	Side        Side
	Trigger     decimal.Decimal
	TakeProfits []decimal.Decimal
	StopLoss    decimal.Decimal // zero = no stop in the signal
	DCAs        []decimal.Decimal
	Timeframe   string // "M15", "H1", "H4", ...
	Raw         string
}

// Hash returns a stable dedupe key over the fields that identify a
// signal: symbol, side, trigger, take-profits and scale-in levels.
func (s *Signal) Hash() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s", s.Symbol, s.Side, s.Trigger.String())
	for _, tp := range s.TakeProfits {
		fmt.Fprintf(&b, "|%s", tp.String())
	}
	b.WriteString("|d")
	for _, d := range s.DCAs {
		fmt.Fprintf(&b, "|%s", d.String())
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// SignalUpdate carries the fields a feed re-announcement may change on a
// live signal. Zero/empty fields mean "no change".
type SignalUpdate struct {
	StopLoss    decimal.Decimal
	TakeProfits []decimal.Decimal
	DCAs        []decimal.Decimal
	Cancelled   bool // trade cancelled / closed without entry
}

// TradeStatus is the lifecycle state of a managed trade.
type TradeStatus string

const (
	StatusPending         TradeStatus = "pending"
	StatusOpen            TradeStatus = "open"
	StatusClosed          TradeStatus = "closed"
	StatusCancelled       TradeStatus = "cancelled"
	StatusCancelledPastTP TradeStatus = "cancelled_past_tp"
)

// Terminal returns true once a trade can no longer transition.
func (s TradeStatus) Terminal() bool {
	switch s {
	case StatusClosed, StatusCancelled, StatusCancelledPastTP:
		return true
	}
	return false
}

// Trade is the mutable record of one managed signal, owned exclusively by
// the lifecycle engine and persisted as part of the bot state document.
type Trade struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Side      Side   `json:"side"`
	Timeframe string `json:"timeframe,omitempty"`

	// Price plan
	Trigger     decimal.Decimal   `json:"trigger"`
	TakeProfits []decimal.Decimal `json:"tp_prices,omitempty"`
	StopLoss    decimal.Decimal   `json:"sl_price,omitempty"`
	DCAs        []decimal.Decimal `json:"dca_prices,omitempty"`
	TPSplits    []decimal.Decimal `json:"tp_splits,omitempty"` // pct of size per TP leg

	// Sizing
	BaseQty       decimal.Decimal `json:"base_qty"`
	Leverage      decimal.Decimal `json:"leverage,omitempty"`
	RiskPct       decimal.Decimal `json:"risk_pct,omitempty"`
	RiskAmount    decimal.Decimal `json:"risk_amount,omitempty"`
	EquityAtEntry decimal.Decimal `json:"equity_at_entry,omitempty"`

	// Lifecycle
	Status           TradeStatus       `json:"status"`
	ExitReason       string            `json:"exit_reason,omitempty"`
	EntryPrice       decimal.Decimal   `json:"entry_price,omitempty"`
	PeakPrice        decimal.Decimal   `json:"peak_price_seen,omitempty"` // tracked while pending
	PostOrdersPlaced bool              `json:"post_orders_placed,omitempty"`
	DCAOrdersPlaced  bool              `json:"dca_orders_placed,omitempty"`
	SLMovedToBE      bool              `json:"sl_moved_to_be,omitempty"`
	TrailingActive   bool              `json:"trailing_active,omitempty"`
	TPFills          int               `json:"tp_fills,omitempty"`
	TPFillPrices     []decimal.Decimal `json:"tp_fills_list,omitempty"`
	DCAFills         int               `json:"dca_fills,omitempty"`

	// Bookkeeping
	PlacedAt      int64    `json:"placed_ts,omitempty"`
	FilledAt      int64    `json:"filled_ts,omitempty"`
	ClosedAt      int64    `json:"closed_ts,omitempty"`
	FeedMessageID string   `json:"feed_msg_id,omitempty"`
	EntryOrderID  string   `json:"entry_order_id,omitempty"`
	SLOrderID     string   `json:"sl_order_id,omitempty"`
	TPOrderIDs    []string `json:"tp_order_ids,omitempty"`
	DCAOrderIDs   []string `json:"dca_order_ids,omitempty"`
	AlertedLevels []int    `json:"alerted_levels,omitempty"` // P&L thresholds already notified
	Raw           string   `json:"raw,omitempty"`
}

// Active returns true while the trade still needs management.
func (t *Trade) Active() bool {
	return t.Status == StatusPending || t.Status == StatusOpen
}

// FirstTP returns the first take-profit, or zero when none is set.
func (t *Trade) FirstTP() decimal.Decimal {
	if len(t.TakeProfits) == 0 {
		return decimal.Zero
	}
	return t.TakeProfits[0]
}
