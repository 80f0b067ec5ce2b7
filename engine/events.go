package engine

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/exchange"
	"github.com/candree7-rgb/Zei/types"
)

// OnExecution is the execution-stream callback. Fill events drive the
// pending -> open transition, TP leg accounting and stop handling.
func (e *Engine) OnExecution(ev exchange.ExecutionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.st.ActiveTrades() {
		if t.Symbol != ev.Symbol {
			continue
		}

		if t.Status == types.StatusPending && ev.OrderID == t.EntryOrderID {
			e.markOpen(t, ev.Price, ev.Timestamp/1000)
			e.persist()
			return
		}

		if t.Status != types.StatusOpen {
			continue
		}

		if i := indexOf(t.TPOrderIDs, ev.OrderID); i >= 0 {
			e.handleTPFill(t, i, ev.Price)
			e.persist()
			return
		}

		if i := indexOf(t.DCAOrderIDs, ev.OrderID); i >= 0 {
			t.DCAFills++
			log.Info().
				Str("symbol", t.Symbol).
				Int("dca", i+1).
				Str("price", ev.Price.String()).
				Msg("🪜 Scale-in filled")
			e.persist()
			return
		}

		// A closing fill we did not place is the stop or a manual close.
		if ev.Closed {
			pos, err := e.ex.Position(t.Symbol)
			if err == nil && pos.Size.IsZero() {
				e.closeTrade(t, "stop_loss")
				e.persist()
			}
			return
		}
	}
}

// markOpen transitions a pending trade to open and lays the protective
// orders. Safe to call twice; the post-order guard absorbs duplicates.
func (e *Engine) markOpen(t *types.Trade, price decimal.Decimal, ts int64) {
	if t.Status != types.StatusPending {
		e.placePostEntryOrders(t)
		return
	}

	t.Status = types.StatusOpen
	t.EntryPrice = price
	if t.EntryPrice.IsZero() {
		t.EntryPrice = t.Trigger
	}
	t.FilledAt = ts
	if t.FilledAt == 0 {
		t.FilledAt = time.Now().Unix()
	}

	log.Info().
		Str("symbol", t.Symbol).
		Str("side", string(t.Side)).
		Str("entry", t.EntryPrice.String()).
		Msg("📈 Entry filled")

	e.placePostEntryOrders(t)

	if e.notifier != nil {
		e.notifier.TradeOpened(t)
	}
	if e.journal != nil {
		e.journal.RecordOpen(t)
	}
}

// handleTPFill accounts a take-profit leg fill and manages the stop:
// break-even after TP1, follow-TP laddering, trailing activation. The
// fill index is absorbed idempotently so replayed events do nothing.
func (e *Engine) handleTPFill(t *types.Trade, index int, price decimal.Decimal) {
	if index < t.TPFills {
		return
	}
	t.TPFills = index + 1
	if !price.IsZero() {
		t.TPFillPrices = append(t.TPFillPrices, price)
	}

	log.Info().
		Str("symbol", t.Symbol).
		Int("tp", t.TPFills).
		Int("of", len(t.TakeProfits)).
		Str("price", price.String()).
		Msg("💰 Take-profit filled")

	if t.TPFills >= len(t.TakeProfits) && len(t.TakeProfits) > 0 {
		e.closeTrade(t, "take_profit")
		return
	}

	// First TP moves the stop to break-even, exactly once per trade.
	if e.cfg.MoveSLToBEOnTP1 && !t.SLMovedToBE {
		be := breakEvenPrice(t, e.cfg.BEBufferPct)
		e.moveStop(t, be, "break_even")
		t.SLMovedToBE = true
	}

	// Follow-TP walks the stop up to the previous TP as each leg fills.
	// moveStop's monotonic guard keeps a late break-even from undoing it.
	if e.cfg.FollowTPEnabled && t.TPFills >= 2 {
		prev := t.TakeProfits[t.TPFills-2]
		buffer := prev.Mul(e.cfg.FollowTPBufferPct).Div(hundred)
		var target decimal.Decimal
		if t.Side.IsBuy() {
			target = prev.Sub(buffer)
		} else {
			target = prev.Add(buffer)
		}
		e.moveStop(t, target, "follow_tp")
		return
	}

	// Without follow-TP, a deep enough TP index hands the runner to a
	// trailing stop.
	if e.cfg.TrailAfterTPIndex > 0 && t.TPFills >= e.cfg.TrailAfterTPIndex && !t.TrailingActive {
		ref := price
		if ref.IsZero() {
			ref = t.TakeProfits[t.TPFills-1]
		}
		distance := ref.Mul(e.cfg.TrailDistancePct).Div(hundred)
		if err := e.ex.SetTrailingStop(t.Symbol, distance); err != nil {
			log.Error().Err(err).Str("symbol", t.Symbol).Msg("❌ Trailing stop failed")
			return
		}
		t.TrailingActive = true
		log.Info().
			Str("symbol", t.Symbol).
			Str("distance", distance.String()).
			Msg("🎿 Trailing stop active")
	}
}

// pollEntryFills catches entry fills the stream missed, including
// entries that filled immediately on placement.
func (e *Engine) pollEntryFills() {
	for _, t := range e.st.ActiveTrades() {
		if t.Status != types.StatusPending {
			continue
		}

		pos, err := e.ex.Position(t.Symbol)
		if err != nil {
			continue
		}
		if !pos.Size.IsZero() {
			log.Info().Str("symbol", t.Symbol).Msg("🪤 Entry fill detected via position poll")
			e.markOpen(t, pos.AvgPrice, time.Now().Unix())
		}
	}
}

func indexOf(ids []string, id string) int {
	if id == "" {
		return -1
	}
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}
