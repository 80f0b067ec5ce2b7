package scorer

import (
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/types"
)

type fakeCandles struct {
	bySymbol map[string][]types.Candle
}

func (f *fakeCandles) Klines(symbol, interval string, limit int) ([]types.Candle, error) {
	candles, ok := f.bySymbol[symbol]
	if !ok {
		return nil, fmt.Errorf("no data for %s", symbol)
	}
	return candles, nil
}

type fakeSeen struct {
	hashes map[string]bool
}

func newFakeSeen() *fakeSeen              { return &fakeSeen{hashes: make(map[string]bool)} }
func (f *fakeSeen) Seen(hash string) bool { return f.hashes[hash] }
func (f *fakeSeen) MarkSeen(hash string)  { f.hashes[hash] = true }

// zigzag builds a price path stepping 2.0 per candle, returned newest
// first the way exchanges deliver klines.
func zigzag(start float64, moves ...float64) []types.Candle {
	vals := []float64{start}
	cur := start
	for _, m := range moves {
		step := 2.0
		if m < 0 {
			step = -2.0
		}
		for i := 0; i < int(math.Abs(m)/2); i++ {
			cur += step
			vals = append(vals, cur)
		}
	}

	candles := make([]types.Candle, len(vals))
	for i, v := range vals {
		d := decimal.NewFromFloat(v)
		candles[len(vals)-1-i] = types.Candle{
			Open: d, High: d.Add(decimal.NewFromInt(1)), Low: d.Sub(decimal.NewFromInt(1)),
			Close: d, Timestamp: int64(i),
		}
	}
	return candles
}

// uptrendPullback is two legs up with price currently pulling back.
func uptrendPullback() []types.Candle {
	return zigzag(100, 20, -10, 20, -10, 20, -10, 4)
}

// uptrendExtended is three legs up with price extending at the highs.
func uptrendExtended() []types.Candle {
	return zigzag(100, 20, -10, 20, -10, 20, -10, 20, -4)
}

// downtrend is a clean sequence of lower lows.
func downtrend() []types.Candle {
	return zigzag(200, -20, 10, -20, 10, -20, 10, -20, 4)
}

func buySignal(symbol string, trigger, tp, sl float64) *types.Signal {
	return &types.Signal{
		Symbol:      symbol,
		Side:        types.SideBuy,
		Trigger:     decimal.NewFromFloat(trigger),
		TakeProfits: []decimal.Decimal{decimal.NewFromFloat(tp)},
		StopLoss:    decimal.NewFromFloat(sl),
		Timeframe:   "H1",
	}
}

func TestRiskReward(t *testing.T) {
	sig := buySignal("BTCUSDT", 100, 110, 95)
	if rr := RiskReward(sig); !rr.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected rr 2, got %s", rr)
	}

	sell := &types.Signal{
		Symbol:      "ETHUSDT",
		Side:        types.SideSell,
		Trigger:     decimal.NewFromInt(100),
		TakeProfits: []decimal.Decimal{decimal.NewFromInt(94)},
		StopLoss:    decimal.NewFromInt(103),
	}
	if rr := RiskReward(sell); !rr.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected sell rr 2, got %s", rr)
	}

	noSL := buySignal("BTCUSDT", 100, 110, 95)
	noSL.StopLoss = decimal.Zero
	if rr := RiskReward(noSL); !rr.IsZero() {
		t.Errorf("expected zero rr without a stop, got %s", rr)
	}

	inverted := buySignal("BTCUSDT", 100, 110, 105)
	if rr := RiskReward(inverted); !rr.IsZero() {
		t.Errorf("expected zero rr for non-positive risk distance, got %s", rr)
	}
}

func TestScoreBatch_PullbackBeatsExtended(t *testing.T) {
	src := &fakeCandles{bySymbol: map[string][]types.Candle{
		"AAAUSDT": uptrendPullback(),
		"BBBUSDT": uptrendExtended(),
	}}
	sel := NewSelector(src, 3, 2, 200)

	pullback := buySignal("AAAUSDT", 134, 144, 129)
	extended := buySignal("BBBUSDT", 146, 156, 141)

	scored := sel.ScoreBatch([]*types.Signal{extended, pullback})
	if len(scored) != 2 {
		t.Fatalf("expected 2 scored signals, got %d", len(scored))
	}

	if scored[0].Signal.Symbol != "AAAUSDT" {
		t.Errorf("expected pullback signal ranked first, got %s", scored[0].Signal.Symbol)
	}
	if scored[0].Score <= scored[1].Score {
		t.Errorf("expected strictly higher score for pullback: %.1f vs %.1f",
			scored[0].Score, scored[1].Score)
	}
	for _, sc := range scored {
		if sc.SkipReason != "" {
			t.Errorf("%s unexpectedly skipped: %s", sc.Signal.Symbol, sc.SkipReason)
		}
	}
}

func TestScoreBatch_SkipExcluded(t *testing.T) {
	src := &fakeCandles{bySymbol: map[string][]types.Candle{
		"DOWNUSDT": downtrend(),
	}}
	sel := NewSelector(src, 3, 2, 200)

	counterTrend := buySignal("DOWNUSDT", 150, 160, 145)
	scored := sel.ScoreBatch([]*types.Signal{counterTrend})

	if scored[0].SkipReason == "" {
		t.Fatal("expected counter-trend buy to be skipped")
	}
	if scored[0].Score != 0 {
		t.Errorf("expected zero score for skipped signal, got %.1f", scored[0].Score)
	}
}

func TestScoreBatch_MissingHistoryDegradesToSkip(t *testing.T) {
	sel := NewSelector(&fakeCandles{bySymbol: map[string][]types.Candle{}}, 3, 2, 200)

	scored := sel.ScoreBatch([]*types.Signal{buySignal("GONEUSDT", 100, 110, 95)})
	if scored[0].SkipReason == "" {
		t.Error("expected skip when price history is unavailable")
	}
}

func TestSelect_TopNAndDedupe(t *testing.T) {
	src := &fakeCandles{bySymbol: map[string][]types.Candle{
		"AAAUSDT":  uptrendPullback(),
		"BBBUSDT":  uptrendExtended(),
		"DOWNUSDT": downtrend(),
	}}
	sel := NewSelector(src, 3, 2, 200)
	seen := newFakeSeen()

	signals := []*types.Signal{
		buySignal("BBBUSDT", 146, 156, 141),
		buySignal("AAAUSDT", 134, 144, 129),
		buySignal("DOWNUSDT", 150, 160, 145), // counter-trend, must not win
	}

	best := sel.Select(signals, seen, 1)
	if len(best) != 1 {
		t.Fatalf("expected 1 selected signal, got %d", len(best))
	}
	if best[0].Symbol != "AAAUSDT" {
		t.Errorf("expected AAAUSDT to win the batch, got %s", best[0].Symbol)
	}

	// The whole batch is now marked seen; a replay selects nothing.
	replay := sel.Select(signals, seen, 1)
	if len(replay) != 0 {
		t.Errorf("expected replayed batch to be fully deduplicated, got %d", len(replay))
	}
}

func TestSelect_SkippedNeverSelected(t *testing.T) {
	src := &fakeCandles{bySymbol: map[string][]types.Candle{
		"DOWNUSDT": downtrend(),
	}}
	sel := NewSelector(src, 3, 2, 200)

	best := sel.Select([]*types.Signal{buySignal("DOWNUSDT", 150, 160, 145)}, newFakeSeen(), 3)
	if len(best) != 0 {
		t.Errorf("expected no selection from all-skip batch, got %d", len(best))
	}
}
