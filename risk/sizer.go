package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION SIZING - Fixed fractional risk per trade
// ═══════════════════════════════════════════════════════════════════════════════
//
// Formula: qty = riskAmount / (entry * stopDistanceFraction)
//
// This ensures:
// - Fixed % of equity lost when the stop hits
// - Wider stops = smaller positions
// - Leverage follows from keeping margin usage near the risk amount
//
// ═══════════════════════════════════════════════════════════════════════════════

// Result is the sizing decision for one trade.
type Result struct {
	Quantity   decimal.Decimal
	Leverage   decimal.Decimal
	RiskAmount decimal.Decimal
	RiskPct    decimal.Decimal
}

// Sizer computes position size and leverage for accepted signals.
type Sizer struct {
	riskPerTradePct decimal.Decimal // % of equity risked when SL hits
	fixedLeverage   decimal.Decimal // used when no stop is available
	fixedRiskPct    decimal.Decimal
	minLeverage     decimal.Decimal
	maxLeverage     decimal.Decimal
}

// NewSizer creates a position sizer.
func NewSizer(riskPerTradePct, fixedLeverage, fixedRiskPct, minLeverage, maxLeverage decimal.Decimal) *Sizer {
	return &Sizer{
		riskPerTradePct: riskPerTradePct,
		fixedLeverage:   fixedLeverage,
		fixedRiskPct:    fixedRiskPct,
		minLeverage:     minLeverage,
		maxLeverage:     maxLeverage,
	}
}

var hundred = decimal.NewFromInt(100)

// Size computes quantity and leverage for an entry at entryPrice with a
// stop at stopPrice. A zero stopPrice falls back to fixed leverage. A stop
// on the wrong side of entry, or at entry, is a sizing error.
func (s *Sizer) Size(equity, entryPrice, stopPrice decimal.Decimal, side types.Side) (Result, error) {
	if equity.LessThanOrEqual(decimal.Zero) {
		return Result{}, fmt.Errorf("non-positive equity %s", equity)
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return Result{}, fmt.Errorf("non-positive entry price %s", entryPrice)
	}

	if stopPrice.IsZero() {
		return s.sizeFixed(equity, entryPrice)
	}

	if side.IsBuy() && stopPrice.GreaterThanOrEqual(entryPrice) {
		return Result{}, fmt.Errorf("buy stop %s not below entry %s", stopPrice, entryPrice)
	}
	if !side.IsBuy() && stopPrice.LessThanOrEqual(entryPrice) {
		return Result{}, fmt.Errorf("sell stop %s not above entry %s", stopPrice, entryPrice)
	}

	stopDist := entryPrice.Sub(stopPrice).Abs().Div(entryPrice)
	if stopDist.IsZero() {
		return Result{}, fmt.Errorf("zero stop distance at entry %s", entryPrice)
	}

	riskAmount := equity.Mul(s.riskPerTradePct).Div(hundred)
	quantity := riskAmount.Div(entryPrice.Mul(stopDist))

	// Margin for the position stays near the risk amount when leverage is
	// the inverse of the stop distance; clamp to the configured bounds.
	leverage := decimal.NewFromInt(1).Div(stopDist)
	if leverage.LessThan(s.minLeverage) {
		leverage = s.minLeverage
	}
	if leverage.GreaterThan(s.maxLeverage) {
		leverage = s.maxLeverage
	}

	return Result{
		Quantity:   quantity,
		Leverage:   leverage.Round(0),
		RiskAmount: riskAmount,
		RiskPct:    s.riskPerTradePct,
	}, nil
}

// sizeFixed is the no-stop fallback: fixed leverage, fixed risk fraction,
// no margin derivation.
func (s *Sizer) sizeFixed(equity, entryPrice decimal.Decimal) (Result, error) {
	riskAmount := equity.Mul(s.fixedRiskPct).Div(hundred)
	quantity := riskAmount.Mul(s.fixedLeverage).Div(entryPrice)
	if quantity.LessThanOrEqual(decimal.Zero) {
		return Result{}, fmt.Errorf("fixed sizing produced non-positive quantity for entry %s", entryPrice)
	}
	return Result{
		Quantity:   quantity,
		Leverage:   s.fixedLeverage,
		RiskAmount: riskAmount,
		RiskPct:    s.fixedRiskPct,
	}, nil
}
