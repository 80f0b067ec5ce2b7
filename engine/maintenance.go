package engine

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/types"
)

// startupSync reconciles persisted trades against exchange reality after
// a restart. Trades whose position is gone are marked closed; open
// positions missing protective orders get them re-laid.
func (e *Engine) startupSync() {
	active := e.st.ActiveTrades()
	if len(active) == 0 {
		return
	}

	log.Info().Int("trades", len(active)).Msg("🔄 Startup sync")

	for _, t := range active {
		pos, err := e.ex.Position(t.Symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", t.Symbol).Msg("⚠️ Position check failed, keeping trade")
			continue
		}

		switch t.Status {
		case types.StatusOpen:
			if pos.Size.IsZero() {
				e.closeTrade(t, "closed_while_down")
			} else if !t.PostOrdersPlaced {
				e.placePostEntryOrders(t)
			}
		case types.StatusPending:
			if !pos.Size.IsZero() {
				// Entry filled while we were down.
				e.markOpen(t, pos.AvgPrice, time.Now().Unix())
			}
		}
	}
}

// cancelExpiredEntries cancels pending entries whose timeframe-based
// wait window has passed without a fill.
func (e *Engine) cancelExpiredEntries() {
	now := time.Now().Unix()

	for _, t := range e.st.ActiveTrades() {
		if t.Status != types.StatusPending {
			continue
		}
		expiry := e.cfg.EntryExpiration(t.Timeframe)
		if time.Duration(now-t.PlacedAt)*time.Second < expiry {
			continue
		}

		log.Info().
			Str("symbol", t.Symbol).
			Str("timeframe", t.Timeframe).
			Dur("waited", time.Duration(now-t.PlacedAt)*time.Second).
			Msg("⌛ Entry expired")
		e.cancelEntry(t, types.StatusCancelled, "expired")
	}
}

// monitorPendingEntries tracks the favorable price extreme for each
// pending entry and cancels those price ran past TP1 without triggering.
// Chasing a move that already paid would enter with the edge spent.
func (e *Engine) monitorPendingEntries() {
	for _, t := range e.st.ActiveTrades() {
		if t.Status != types.StatusPending {
			continue
		}
		tp1 := t.FirstTP()
		if tp1.IsZero() {
			continue
		}

		price, err := e.ex.LastPrice(t.Symbol)
		if err != nil {
			continue
		}

		if t.PeakPrice.IsZero() {
			t.PeakPrice = price
		} else if t.Side.IsBuy() && price.GreaterThan(t.PeakPrice) {
			t.PeakPrice = price
		} else if !t.Side.IsBuy() && price.LessThan(t.PeakPrice) {
			t.PeakPrice = price
		}

		past := false
		if t.Side.IsBuy() {
			past = t.PeakPrice.GreaterThanOrEqual(tp1)
		} else {
			past = t.PeakPrice.LessThanOrEqual(tp1)
		}
		if !past {
			continue
		}

		log.Info().
			Str("symbol", t.Symbol).
			Str("peak", t.PeakPrice.String()).
			Str("tp1", tp1.String()).
			Msg("🏃 Price ran past TP1 without entry, cancelling")
		e.cancelEntry(t, types.StatusCancelledPastTP, "past_tp")
	}
}

// checkTPFillsFallback catches TP fills the stream missed by comparing
// position size against the expected remaining quantity.
func (e *Engine) checkTPFillsFallback() {
	for _, t := range e.st.ActiveTrades() {
		if t.Status != types.StatusOpen || !t.PostOrdersPlaced {
			continue
		}

		pos, err := e.ex.Position(t.Symbol)
		if err != nil {
			continue
		}
		if pos.Size.IsZero() {
			// Fully exited without a close event.
			e.closeTrade(t, "position_gone")
			continue
		}
		if t.TPFills >= len(t.TPOrderIDs) {
			continue
		}

		expected := e.expectedRemaining(t)
		if pos.Size.LessThan(expected) {
			log.Info().
				Str("symbol", t.Symbol).
				Str("position", pos.Size.String()).
				Str("expected", expected.String()).
				Msg("🪤 TP fill detected via position poll")
			e.handleTPFill(t, t.TPFills, decimal.Zero)
		}
	}
}

// expectedRemaining is BaseQty minus the legs already known filled.
func (e *Engine) expectedRemaining(t *types.Trade) decimal.Decimal {
	splits := e.tpSplits(t)
	remaining := t.BaseQty
	for i := 0; i < t.TPFills && i < len(splits); i++ {
		remaining = remaining.Sub(t.BaseQty.Mul(splits[i]).Div(hundred))
	}
	return remaining
}

// reconcileOrphanedPositions closes trades whose exchange position
// vanished outside our control (manual close, liquidation). Idempotent:
// already-terminal trades are skipped, so repeated runs are no-ops.
func (e *Engine) reconcileOrphanedPositions() {
	for _, t := range e.st.ActiveTrades() {
		if t.Status != types.StatusOpen {
			continue
		}

		pos, err := e.ex.Position(t.Symbol)
		if err != nil {
			continue
		}
		if pos.Size.IsZero() {
			log.Warn().Str("symbol", t.Symbol).Msg("👻 Position gone from exchange, reconciling")
			e.closeTrade(t, "orphaned")
		}
	}
}

// cleanupClosedTrades drops terminal trades from the active book.
func (e *Engine) cleanupClosedTrades() {
	for id, t := range e.st.OpenTrades {
		if t.Status.Terminal() {
			delete(e.st.OpenTrades, id)
		}
	}
}

// checkPositionAlerts notifies when an open position's loss crosses a
// configured threshold. Each threshold fires once per trade.
func (e *Engine) checkPositionAlerts() {
	if e.notifier == nil || len(e.cfg.PnLAlertThresholds) == 0 {
		return
	}

	for _, t := range e.st.ActiveTrades() {
		if t.Status != types.StatusOpen || t.EntryPrice.IsZero() {
			continue
		}

		price, err := e.ex.LastPrice(t.Symbol)
		if err != nil {
			continue
		}

		var movePct decimal.Decimal
		if t.Side.IsBuy() {
			movePct = price.Sub(t.EntryPrice).Div(t.EntryPrice).Mul(hundred)
		} else {
			movePct = t.EntryPrice.Sub(price).Div(t.EntryPrice).Mul(hundred)
		}
		pnlPct := movePct.Mul(t.Leverage)
		if pnlPct.GreaterThanOrEqual(decimal.Zero) {
			continue
		}
		loss := pnlPct.Neg()

		for _, threshold := range e.cfg.PnLAlertThresholds {
			if loss.LessThan(decimal.NewFromInt(int64(threshold))) || alerted(t, threshold) {
				continue
			}
			t.AlertedLevels = append(t.AlertedLevels, threshold)
			log.Warn().
				Str("symbol", t.Symbol).
				Str("pnl_pct", pnlPct.StringFixed(1)).
				Int("threshold", threshold).
				Msg("🚨 Position loss alert")
			e.notifier.PnLAlert(t, threshold, pnlPct)
		}
	}
}

func alerted(t *types.Trade, threshold int) bool {
	for _, level := range t.AlertedLevels {
		if level == threshold {
			return true
		}
	}
	return false
}

// logDailyStats logs today's trade count and the current book.
func (e *Engine) logDailyStats() {
	active := e.st.ActiveTrades()
	log.Info().
		Int("trades_today", e.st.TradesToday()).
		Int("active", len(active)).
		Int("max_per_day", e.cfg.MaxTradesPerDay).
		Msg("📊 Daily stats")
}

// cancelEntry cancels the pending entry order and moves the trade to the
// given terminal status.
func (e *Engine) cancelEntry(t *types.Trade, status types.TradeStatus, reason string) {
	// Best effort: the order may already be gone or the exchange may be
	// down, the trade moves to its terminal status either way.
	if t.EntryOrderID != "" {
		if err := e.ex.CancelOrder(t.Symbol, t.EntryOrderID); err != nil {
			log.Error().Err(err).Str("symbol", t.Symbol).Msg("❌ Entry cancel failed")
		}
	}

	t.Status = status
	t.ExitReason = reason
	t.ClosedAt = time.Now().Unix()

	if e.notifier != nil {
		e.notifier.TradeClosed(t, reason)
	}
	if e.journal != nil {
		e.journal.RecordClose(t)
	}
}

// closeTrade marks an open trade closed and cancels its leftover orders.
func (e *Engine) closeTrade(t *types.Trade, reason string) {
	e.endTrade(t, types.StatusClosed, reason)
}

// endTrade moves an open trade to a terminal status and cancels its
// leftover orders, best effort.
func (e *Engine) endTrade(t *types.Trade, status types.TradeStatus, reason string) {
	if t.Status.Terminal() {
		return
	}

	for _, orderID := range t.TPOrderIDs {
		if err := e.ex.CancelOrder(t.Symbol, orderID); err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("⚠️ Leftover TP cancel failed")
		}
	}
	for _, orderID := range t.DCAOrderIDs {
		if err := e.ex.CancelOrder(t.Symbol, orderID); err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("⚠️ Leftover DCA cancel failed")
		}
	}

	t.Status = status
	t.ExitReason = reason
	t.ClosedAt = time.Now().Unix()

	log.Info().
		Str("symbol", t.Symbol).
		Str("status", string(status)).
		Str("reason", reason).
		Int("tp_fills", t.TPFills).
		Msg("🏁 Trade ended")

	if e.notifier != nil {
		e.notifier.TradeClosed(t, reason)
	}
	if e.journal != nil {
		e.journal.RecordClose(t)
	}
}
