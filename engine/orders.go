package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/internal/config"
	"github.com/candree7-rgb/Zei/types"
)

var hundred = decimal.NewFromInt(100)

// openTrade sizes a selected signal and places its conditional entry.
// The trade starts pending; protective orders follow on the entry fill.
func (e *Engine) openTrade(sig *types.Signal, msgID string) error {
	equity, err := e.ex.Equity()
	if err != nil {
		return fmt.Errorf("fetch equity: %w", err)
	}

	// A signal without a stop gets one derived from the configured
	// initial distance so sizing stays risk-based.
	stop := sig.StopLoss
	if stop.IsZero() && e.cfg.InitialSLPct.GreaterThan(decimal.Zero) {
		dist := sig.Trigger.Mul(e.cfg.InitialSLPct).Div(hundred)
		if sig.Side.IsBuy() {
			stop = sig.Trigger.Sub(dist)
		} else {
			stop = sig.Trigger.Add(dist)
		}
	}

	sized, err := e.sizer.Size(equity, sig.Trigger, stop, sig.Side)
	if err != nil {
		return fmt.Errorf("size trade: %w", err)
	}

	if err := e.ex.SetLeverage(sig.Symbol, sized.Leverage); err != nil {
		log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("⚠️ Set leverage failed")
	}

	result, err := e.ex.PlaceEntry(sig.Symbol, sig.Side, sized.Quantity, sig.Trigger)
	if err != nil {
		return fmt.Errorf("place entry: %w", err)
	}

	t := &types.Trade{
		ID:            uuid.New().String(),
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Timeframe:     sig.Timeframe,
		Trigger:       sig.Trigger,
		TakeProfits:   sig.TakeProfits,
		StopLoss:      stop,
		DCAs:          sig.DCAs,
		BaseQty:       sized.Quantity,
		Leverage:      sized.Leverage,
		RiskPct:       sized.RiskPct,
		RiskAmount:    sized.RiskAmount,
		EquityAtEntry: equity,
		Status:        types.StatusPending,
		PlacedAt:      time.Now().Unix(),
		FeedMessageID: msgID,
		EntryOrderID:  result.OrderID,
		Raw:           sig.Raw,
	}

	e.st.OpenTrades[t.ID] = t
	e.st.IncTradesToday()

	log.Info().
		Str("symbol", t.Symbol).
		Str("side", string(t.Side)).
		Str("trigger", t.Trigger.String()).
		Str("qty", t.BaseQty.String()).
		Str("leverage", t.Leverage.String()).
		Str("risk", t.RiskAmount.StringFixed(2)).
		Msg("📥 Entry placed")
	return nil
}

// placePostEntryOrders sets the stop and lays out TP and DCA orders once
// the entry fills. Idempotent: guarded so a duplicate fill event or a
// restart never doubles the orders.
func (e *Engine) placePostEntryOrders(t *types.Trade) {
	if t.PostOrdersPlaced {
		return
	}

	tps := t.TakeProfits
	if len(tps) == 0 {
		tps = fallbackTPs(t, e.cfg.FallbackTPPcts)
		t.TakeProfits = tps
	}

	if !t.StopLoss.IsZero() {
		if err := e.ex.SetStopLoss(t.Symbol, t.StopLoss); err != nil {
			log.Error().Err(err).Str("symbol", t.Symbol).Msg("❌ Set stop failed")
		}
	}

	// Snapshot the allocation so a later config change never shifts a
	// placed trade's leg sizes.
	splits := splitsForTPs(len(tps), e.cfg)
	t.TPSplits = splits
	remaining := t.BaseQty
	t.TPOrderIDs = make([]string, 0, len(tps))

	for i, tp := range tps {
		var qty decimal.Decimal
		if i == len(tps)-1 {
			qty = remaining
		} else {
			qty = t.BaseQty.Mul(splits[i]).Div(hundred)
		}
		if qty.LessThanOrEqual(decimal.Zero) {
			break
		}
		remaining = remaining.Sub(qty)

		result, err := e.ex.PlaceReduceTP(t.Symbol, t.Side, qty, tp)
		if err != nil {
			log.Error().Err(err).Str("symbol", t.Symbol).Int("tp", i+1).Msg("❌ TP order failed")
			continue
		}
		t.TPOrderIDs = append(t.TPOrderIDs, result.OrderID)
	}

	t.PostOrdersPlaced = true

	log.Info().
		Str("symbol", t.Symbol).
		Int("tp_orders", len(t.TPOrderIDs)).
		Str("stop", t.StopLoss.String()).
		Msg("🎯 Protective orders placed")

	e.placeDCAOrders(t)
}

// placeDCAOrders lays the scale-in ladder below (or above, for shorts)
// the entry. Quantities scale by the configured multipliers.
func (e *Engine) placeDCAOrders(t *types.Trade) {
	if t.DCAOrdersPlaced || len(t.DCAs) == 0 {
		return
	}

	mult := decimal.NewFromInt(1)
	t.DCAOrderIDs = make([]string, 0, len(t.DCAs))

	for i, price := range t.DCAs {
		if i < len(e.cfg.DCAQtyMults) {
			mult = e.cfg.DCAQtyMults[i]
		}
		qty := t.BaseQty.Mul(mult)

		result, err := e.ex.PlaceLimit(t.Symbol, t.Side, qty, price)
		if err != nil {
			log.Error().Err(err).Str("symbol", t.Symbol).Int("dca", i+1).Msg("❌ DCA order failed")
			continue
		}
		t.DCAOrderIDs = append(t.DCAOrderIDs, result.OrderID)
	}

	t.DCAOrdersPlaced = true
}

// moveStop moves the position stop and records the new level. Stops only
// move in the favorable direction; an unfavorable target is ignored.
func (e *Engine) moveStop(t *types.Trade, price decimal.Decimal, reason string) {
	if !t.StopLoss.IsZero() {
		if t.Side.IsBuy() && price.LessThanOrEqual(t.StopLoss) {
			return
		}
		if !t.Side.IsBuy() && price.GreaterThanOrEqual(t.StopLoss) {
			return
		}
	}

	if err := e.ex.SetStopLoss(t.Symbol, price); err != nil {
		log.Error().Err(err).Str("symbol", t.Symbol).Msg("❌ Stop move failed")
		return
	}
	t.StopLoss = price

	log.Info().
		Str("symbol", t.Symbol).
		Str("stop", price.String()).
		Str("reason", reason).
		Msg("🔒 Stop moved")

	if e.notifier != nil {
		e.notifier.StopMoved(t, price, reason)
	}
}

// breakEvenPrice is the entry shifted by the buffer in the favorable
// direction, so a touch of exact entry does not stop the trade out.
func breakEvenPrice(t *types.Trade, bufferPct decimal.Decimal) decimal.Decimal {
	buffer := t.EntryPrice.Mul(bufferPct).Div(hundred)
	if t.Side.IsBuy() {
		return t.EntryPrice.Add(buffer)
	}
	return t.EntryPrice.Sub(buffer)
}

// fallbackTPs derives take-profits from configured percentage distances
// when the signal carries none.
func fallbackTPs(t *types.Trade, pcts []decimal.Decimal) []decimal.Decimal {
	base := t.EntryPrice
	if base.IsZero() {
		base = t.Trigger
	}

	tps := make([]decimal.Decimal, 0, len(pcts))
	for _, pct := range pcts {
		dist := base.Mul(pct).Div(hundred)
		if t.Side.IsBuy() {
			tps = append(tps, base.Add(dist))
		} else {
			tps = append(tps, base.Sub(dist))
		}
	}
	return tps
}

// tpSplits returns the allocation snapshotted onto the trade when its TP
// orders were placed. The config is only consulted for trades persisted
// before a snapshot existed.
func (e *Engine) tpSplits(t *types.Trade) []decimal.Decimal {
	if len(t.TPSplits) > 0 {
		return t.TPSplits
	}
	return splitsForTPs(len(t.TakeProfits), e.cfg)
}

// splitsForTPs returns the per-leg size allocation. Configured splits are
// used when they match the TP count; otherwise the size is split evenly.
func splitsForTPs(n int, cfg *config.Config) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	if !cfg.TPSplitsAuto && len(cfg.TPSplits) == n {
		return cfg.TPSplits
	}

	even := hundred.Div(decimal.NewFromInt(int64(n)))
	splits := make([]decimal.Decimal, n)
	for i := range splits {
		splits[i] = even
	}
	return splits
}
