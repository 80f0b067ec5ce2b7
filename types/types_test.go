package types

import "testing"

func TestSideHelpers(t *testing.T) {
	if !SideBuy.IsBuy() || SideSell.IsBuy() {
		t.Error("IsBuy wrong")
	}
	if SideBuy.OrderSide() != "Buy" || SideSell.OrderSide() != "Sell" {
		t.Error("OrderSide wrong")
	}

	// Opposite must stay a Side so closing orders can derive their
	// exchange side from it.
	if got := SideBuy.Opposite(); got != SideSell {
		t.Errorf("Opposite(buy) = %s", got)
	}
	if got := SideSell.Opposite(); got != SideBuy {
		t.Errorf("Opposite(sell) = %s", got)
	}
	if SideBuy.Opposite().OrderSide() != "Sell" {
		t.Error("closing side for a long must be Sell")
	}
	if SideSell.Opposite().OrderSide() != "Buy" {
		t.Error("closing side for a short must be Buy")
	}
}

func TestTradeStatusTerminal(t *testing.T) {
	for _, s := range []TradeStatus{StatusClosed, StatusCancelled, StatusCancelledPastTP} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []TradeStatus{StatusPending, StatusOpen} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
