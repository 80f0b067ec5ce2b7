package engine

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/types"
)

// checkSignalUpdates re-reads the source message of every active trade
// and applies edits the provider made after publishing: moved stops,
// replaced take-profits, added scale-ins or a full cancel.
func (e *Engine) checkSignalUpdates() {
	for _, t := range e.st.ActiveTrades() {
		if t.FeedMessageID == "" {
			continue
		}

		msg, err := e.feed.FetchMessage(t.FeedMessageID)
		if err != nil {
			log.Warn().Err(err).Str("symbol", t.Symbol).Msg("⚠️ Update fetch failed")
			continue
		}
		if msg == nil {
			// Message deleted upstream counts as a cancel for pending
			// entries; an open position keeps running on its plan.
			if t.Status == types.StatusPending {
				log.Info().Str("symbol", t.Symbol).Msg("🗑️ Source message deleted, cancelling entry")
				e.cancelEntry(t, types.StatusCancelled, "feed_cancel")
			}
			continue
		}

		update := e.parser.ParseUpdate(msg.Text, t.Symbol)
		if update == nil {
			continue
		}
		e.applyUpdate(t, update)
	}
}

// applyUpdate applies one parsed update to a trade.
func (e *Engine) applyUpdate(t *types.Trade, update *types.SignalUpdate) {
	if update.Cancelled {
		switch t.Status {
		case types.StatusPending:
			log.Info().Str("symbol", t.Symbol).Msg("🚫 Signal cancelled by provider")
			e.cancelEntry(t, types.StatusCancelled, "feed_cancel")
		case types.StatusOpen:
			log.Info().Str("symbol", t.Symbol).Msg("🚫 Open trade cancelled by provider, closing")
			if err := e.ex.MarketClose(t.Symbol, t.Side, t.BaseQty); err != nil {
				log.Error().Err(err).Str("symbol", t.Symbol).Msg("❌ Market close failed")
				return
			}
			e.endTrade(t, types.StatusCancelled, "feed_cancel")
		}
		return
	}

	if !update.StopLoss.IsZero() && !update.StopLoss.Equal(t.StopLoss) {
		e.applyStopUpdate(t, update.StopLoss)
	}

	if len(update.TakeProfits) > 0 && !samePrices(update.TakeProfits, t.TakeProfits) {
		e.applyTPUpdate(t, update.TakeProfits)
	}

	if len(update.DCAs) > 0 && !samePrices(update.DCAs, t.DCAs) && !t.DCAOrdersPlaced {
		t.DCAs = update.DCAs
		log.Info().Str("symbol", t.Symbol).Int("levels", len(t.DCAs)).Msg("🪜 Scale-in levels updated")
		if t.Status == types.StatusOpen {
			e.placeDCAOrders(t)
		}
	}
}

// applyStopUpdate validates a provider stop move against the distance
// caps, then applies it. Unlike engine-driven stop moves this may move
// the stop in either direction.
func (e *Engine) applyStopUpdate(t *types.Trade, stop decimal.Decimal) {
	ref := t.EntryPrice
	if ref.IsZero() {
		ref = t.Trigger
	}
	distPct := stop.Sub(ref).Abs().Div(ref).Mul(hundred)

	// A stop beyond the hard cap means the trade is too risky to keep at
	// all: the pending entry is cancelled, an open position is flattened.
	if e.cfg.MaxSLDistancePct.GreaterThan(decimal.Zero) && distPct.GreaterThan(e.cfg.MaxSLDistancePct) {
		log.Warn().
			Str("symbol", t.Symbol).
			Str("distance_pct", distPct.StringFixed(2)).
			Str("max_pct", e.cfg.MaxSLDistancePct.String()).
			Msg("🚫 Updated stop too far, cancelling trade")
		if t.Status == types.StatusPending {
			e.cancelEntry(t, types.StatusCancelled, "sl_too_far")
			return
		}
		if err := e.ex.MarketClose(t.Symbol, t.Side, t.BaseQty); err != nil {
			log.Error().Err(err).Str("symbol", t.Symbol).Msg("❌ Market close failed")
			return
		}
		e.endTrade(t, types.StatusCancelled, "sl_too_far")
		return
	}

	if e.cfg.CapSLDistancePct.GreaterThan(decimal.Zero) && distPct.GreaterThan(e.cfg.CapSLDistancePct) {
		capped := ref.Mul(e.cfg.CapSLDistancePct).Div(hundred)
		if t.Side.IsBuy() {
			stop = ref.Sub(capped)
		} else {
			stop = ref.Add(capped)
		}
		log.Info().
			Str("symbol", t.Symbol).
			Str("capped_stop", stop.String()).
			Msg("✂️ Updated stop clamped to cap distance")
	}

	t.StopLoss = stop
	if t.Status == types.StatusOpen {
		if err := e.ex.SetStopLoss(t.Symbol, stop); err != nil {
			log.Error().Err(err).Str("symbol", t.Symbol).Msg("❌ Stop update failed")
			return
		}
	}
	log.Info().Str("symbol", t.Symbol).Str("stop", stop.String()).Msg("🔄 Stop updated from feed")
	if e.notifier != nil {
		e.notifier.StopMoved(t, stop, "feed_update")
	}
}

// applyTPUpdate replaces the take-profit plan. Live reduce-only orders
// for unfilled legs are cancelled and re-laid at the new prices.
func (e *Engine) applyTPUpdate(t *types.Trade, tps []decimal.Decimal) {
	log.Info().Str("symbol", t.Symbol).Int("count", len(tps)).Msg("🔄 Take-profits updated from feed")

	if t.Status == types.StatusPending || !t.PostOrdersPlaced {
		t.TakeProfits = tps
		return
	}

	// Keep already-filled legs, replace the rest.
	for i := t.TPFills; i < len(t.TPOrderIDs); i++ {
		if err := e.ex.CancelOrder(t.Symbol, t.TPOrderIDs[i]); err != nil {
			log.Warn().Err(err).Str("order_id", t.TPOrderIDs[i]).Msg("⚠️ TP cancel failed")
		}
	}
	t.TPOrderIDs = t.TPOrderIDs[:min(t.TPFills, len(t.TPOrderIDs))]
	t.TakeProfits = append(t.TakeProfits[:min(t.TPFills, len(t.TakeProfits))], tps[min(t.TPFills, len(tps)):]...)

	// Filled legs are accounted against the allocation they were placed
	// with; the snapshot is only refreshed when the leg count changed.
	remaining := e.expectedRemaining(t)
	if len(t.TPSplits) != len(t.TakeProfits) {
		t.TPSplits = splitsForTPs(len(t.TakeProfits), e.cfg)
	}
	splits := t.TPSplits

	for i := t.TPFills; i < len(t.TakeProfits); i++ {
		var qty decimal.Decimal
		if i == len(t.TakeProfits)-1 {
			qty = remaining
		} else {
			qty = t.BaseQty.Mul(splits[i]).Div(hundred)
		}
		if qty.LessThanOrEqual(decimal.Zero) {
			break
		}
		remaining = remaining.Sub(qty)

		result, err := e.ex.PlaceReduceTP(t.Symbol, t.Side, qty, t.TakeProfits[i])
		if err != nil {
			log.Error().Err(err).Str("symbol", t.Symbol).Int("tp", i+1).Msg("❌ TP re-place failed")
			continue
		}
		t.TPOrderIDs = append(t.TPOrderIDs, result.OrderID)
	}
}

func samePrices(a, b []decimal.Decimal) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
