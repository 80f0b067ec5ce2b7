package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/types"
)

func testSizer() *Sizer {
	return NewSizer(
		decimal.NewFromInt(2),  // risk per trade %
		decimal.NewFromInt(5),  // fixed leverage
		decimal.NewFromInt(5),  // fixed risk %
		decimal.NewFromInt(5),  // min leverage
		decimal.NewFromInt(50), // max leverage
	)
}

func TestSize_RiskBasedLong(t *testing.T) {
	s := testSizer()

	// 1000 equity, 2% risk, entry 100, stop 95: risk 20, 5% stop distance.
	res, err := s.Size(decimal.NewFromInt(1000), decimal.NewFromInt(100), decimal.NewFromInt(95), types.SideBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.RiskAmount.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected risk amount 20, got %s", res.RiskAmount)
	}
	if !res.Quantity.Equal(decimal.NewFromInt(4)) {
		t.Errorf("expected qty 4, got %s", res.Quantity)
	}
	if !res.Leverage.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected leverage 20 (1/0.05), got %s", res.Leverage)
	}
}

func TestSize_LossAtStopEqualsRiskAmount(t *testing.T) {
	s := testSizer()

	equity := decimal.NewFromInt(5000)
	entry := decimal.NewFromFloat(2.5)
	stop := decimal.NewFromFloat(2.3)

	res, err := s.Size(equity, entry, stop, types.SideBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loss := res.Quantity.Mul(entry.Sub(stop))
	if !loss.Round(8).Equal(res.RiskAmount.Round(8)) {
		t.Errorf("loss at stop %s != risk amount %s", loss, res.RiskAmount)
	}
}

func TestSize_LeverageClamped(t *testing.T) {
	s := testSizer()

	// 0.5% stop distance would imply 200x; must clamp to max 50.
	res, err := s.Size(decimal.NewFromInt(1000), decimal.NewFromInt(1000), decimal.NewFromInt(995), types.SideBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Leverage.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected leverage clamped to 50, got %s", res.Leverage)
	}

	// 50% stop distance would imply 2x; must clamp to min 5.
	res, err = s.Size(decimal.NewFromInt(1000), decimal.NewFromInt(100), decimal.NewFromInt(50), types.SideBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Leverage.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected leverage clamped to 5, got %s", res.Leverage)
	}
}

func TestSize_ShortStopAboveEntry(t *testing.T) {
	s := testSizer()

	res, err := s.Size(decimal.NewFromInt(1000), decimal.NewFromInt(100), decimal.NewFromInt(110), types.SideSell)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.RiskAmount.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected risk amount 20, got %s", res.RiskAmount)
	}
	if !res.Quantity.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected qty 2 at 10%% stop distance, got %s", res.Quantity)
	}
}

func TestSize_InvertedStopRejected(t *testing.T) {
	s := testSizer()

	if _, err := s.Size(decimal.NewFromInt(1000), decimal.NewFromInt(100), decimal.NewFromInt(105), types.SideBuy); err == nil {
		t.Error("expected error for buy stop above entry")
	}
	if _, err := s.Size(decimal.NewFromInt(1000), decimal.NewFromInt(100), decimal.NewFromInt(95), types.SideSell); err == nil {
		t.Error("expected error for sell stop below entry")
	}
	if _, err := s.Size(decimal.NewFromInt(1000), decimal.NewFromInt(100), decimal.NewFromInt(100), types.SideBuy); err == nil {
		t.Error("expected error for stop at entry")
	}
}

func TestSize_NoStopFallsBackToFixed(t *testing.T) {
	s := testSizer()

	res, err := s.Size(decimal.NewFromInt(1000), decimal.NewFromInt(100), decimal.Zero, types.SideBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Leverage.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected fixed leverage 5, got %s", res.Leverage)
	}
	// 5% of 1000 = 50 notional margin, 5x leverage, entry 100: qty 2.5.
	if !res.Quantity.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("expected qty 2.5, got %s", res.Quantity)
	}
}

func TestSize_BadInputs(t *testing.T) {
	s := testSizer()

	if _, err := s.Size(decimal.Zero, decimal.NewFromInt(100), decimal.NewFromInt(95), types.SideBuy); err == nil {
		t.Error("expected error for zero equity")
	}
	if _, err := s.Size(decimal.NewFromInt(1000), decimal.Zero, decimal.NewFromInt(95), types.SideBuy); err == nil {
		t.Error("expected error for zero entry price")
	}
}
