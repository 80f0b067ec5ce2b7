package trend

import (
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/types"
)

// zigzag builds a price path from start through the given moves, stepping
// 2.0 per candle.
func zigzag(start float64, moves ...float64) []float64 {
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
	return vals
}

// candlesFrom converts a path to candles in exchange order (newest first).
func candlesFrom(vals []float64) []types.Candle {
	candles := make([]types.Candle, len(vals))
	for i, v := range vals {
		d := decimal.NewFromFloat(v)
		candles[len(vals)-1-i] = types.Candle{
			Open:      d,
			High:      d.Add(decimal.NewFromInt(1)),
			Low:       d.Sub(decimal.NewFromInt(1)),
			Close:     d,
			Timestamp: int64(i),
		}
	}
	return candles
}

func TestAnalyze_UptrendPullbackIsValid(t *testing.T) {
	// Two completed legs up, currently pulling back.
	candles := candlesFrom(zigzag(100, 20, -10, 20, -10, 20, -10, 4))

	a := Analyze(candles, types.SideBuy, 3, 2)

	if a.Direction != DirectionUp {
		t.Fatalf("expected uptrend, got %s (%s)", a.Direction, a.Reason)
	}
	if a.Recommendation != RecommendValid {
		t.Errorf("expected valid, got %s (%s)", a.Recommendation, a.Reason)
	}
	if !a.InPullback {
		t.Error("expected pullback")
	}
	if a.CurrentLeg != 2 {
		t.Errorf("expected leg 2, got %d", a.CurrentLeg)
	}
}

func TestAnalyze_ThirdLegWithoutPullbackIsLate(t *testing.T) {
	// Three legs up, price extending at the highs.
	candles := candlesFrom(zigzag(100, 20, -10, 20, -10, 20, -10, 20, -4))

	a := Analyze(candles, types.SideBuy, 5, 2)

	if a.Direction != DirectionUp {
		t.Fatalf("expected uptrend, got %s (%s)", a.Direction, a.Reason)
	}
	if a.CurrentLeg != 3 {
		t.Errorf("expected leg 3, got %d", a.CurrentLeg)
	}
	if a.Recommendation != RecommendLate {
		t.Errorf("expected late, got %s (%s)", a.Recommendation, a.Reason)
	}
}

func TestAnalyze_LegBeyondMaxIsSkipped(t *testing.T) {
	candles := candlesFrom(zigzag(100, 20, -10, 20, -10, 20, -10, 20, -4))

	a := Analyze(candles, types.SideBuy, 2, 2)

	if a.Recommendation != RecommendSkip {
		t.Fatalf("expected skip, got %s (%s)", a.Recommendation, a.Reason)
	}
	if !strings.Contains(a.Reason, "max allowed") {
		t.Errorf("expected max-leg reason, got %q", a.Reason)
	}
}

func TestAnalyze_BuyAgainstDowntrendIsSkipped(t *testing.T) {
	down := candlesFrom(zigzag(200, -20, 10, -20, 10, -20, 10, -20, 4))

	a := Analyze(down, types.SideBuy, 3, 2)
	if a.Recommendation != RecommendSkip {
		t.Fatalf("expected skip, got %s (%s)", a.Recommendation, a.Reason)
	}
	if a.Direction != DirectionDown {
		t.Errorf("expected downtrend, got %s", a.Direction)
	}
	if !strings.Contains(a.Reason, "buy signal") {
		t.Errorf("expected trend-mismatch reason, got %q", a.Reason)
	}

	// The same structure is tradable for the sell side.
	b := Analyze(down, types.SideSell, 5, 2)
	if b.Recommendation == RecommendSkip {
		t.Errorf("expected sell to pass in a downtrend, got skip (%s)", b.Reason)
	}
}

func TestAnalyze_DegradesToSkip(t *testing.T) {
	if a := Analyze(nil, types.SideBuy, 3, 2); a.Recommendation != RecommendSkip {
		t.Errorf("expected skip for empty history, got %s", a.Recommendation)
	}

	// Dead flat tape has no volatility unit to measure structure with.
	flat := make([]types.Candle, 50)
	for i := range flat {
		p := decimal.NewFromInt(100)
		flat[i] = types.Candle{Open: p, High: p, Low: p, Close: p, Timestamp: int64(i)}
	}
	if a := Analyze(flat, types.SideBuy, 3, 2); a.Recommendation != RecommendSkip {
		t.Errorf("expected skip for flat history, got %s", a.Recommendation)
	}

	// A short choppy tape yields too few swings.
	choppy := candlesFrom(zigzag(100, 10, -10))
	if a := Analyze(choppy, types.SideBuy, 3, 2); a.Recommendation != RecommendSkip {
		t.Errorf("expected skip for choppy history, got %s", a.Recommendation)
	}
}

func TestIntervalForTimeframe(t *testing.T) {
	cases := map[string]string{
		"M15": "15",
		"m15": "15",
		"H1":  "60",
		"H4":  "240",
		"D":   "D",
		"W1":  "W",
		"":    "60",
		"X9":  "60",
	}
	for tf, want := range cases {
		if got := IntervalForTimeframe(tf); got != want {
			t.Errorf("IntervalForTimeframe(%q) = %q, want %q", tf, got, want)
		}
	}
}
