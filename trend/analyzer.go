package trend

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TREND ANALYZER - Swing structure, leg counting and entry quality
// ═══════════════════════════════════════════════════════════════════════════════
//
// Uptrends print HH/HL structure, downtrends LH/LL. Entries are safest in
// legs 1-3, ideally during a pullback; legs 4+ carry reversal risk.
// Swings smaller than the volatility unit are noise and are filtered out
// before anything is counted.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Direction of the detected market structure.
type Direction string

const (
	DirectionUp      Direction = "uptrend"
	DirectionDown    Direction = "downtrend"
	DirectionNeutral Direction = "neutral"
)

// Recommendation for a signal against the detected structure.
type Recommendation string

const (
	RecommendValid Recommendation = "valid"
	RecommendLate  Recommendation = "late"
	RecommendSkip  Recommendation = "skip"
)

// Analysis is the result of one trend analysis pass. It is derived fresh
// per call and never persisted.
type Analysis struct {
	Direction      Direction
	CurrentLeg     int
	InPullback     bool
	Recommendation Recommendation
	Reason         string
}

const (
	atrPeriod = 14
	// Swings must move at least this many volatility units from the prior
	// opposite swing to count as structure.
	significanceMult = 1.5
	// A favorable move of this many volatility units from a local extreme
	// marks the major trend reversal the leg counter starts from.
	reversalMult = 3.0
	minSwings    = 4
)

type swingPoint struct {
	index  int
	price  decimal.Decimal
	isHigh bool
}

// Analyze inspects candles (newest first) and decides whether a signal on
// the given side is structurally safe to trade. Any failure degrades to a
// skip recommendation with a reason; this boundary never panics.
func Analyze(candles []types.Candle, side types.Side, maxAllowedLeg, swingLookback int) Analysis {
	if len(candles) == 0 {
		return skip(DirectionNeutral, 0, false, "no price history")
	}

	// Oldest first for the walk
	ordered := make([]types.Candle, len(candles))
	for i, c := range candles {
		ordered[len(candles)-1-i] = c
	}

	vol := volatilityUnit(ordered)
	if vol.IsZero() {
		return skip(DirectionNeutral, 0, false, "flat price history")
	}

	swings := detectSwings(ordered, swingLookback)
	swings = filterSignificant(swings, vol)

	if len(swings) < minSwings {
		return skip(DirectionNeutral, 0, false,
			fmt.Sprintf("not enough swing points (%d) to determine trend", len(swings)))
	}

	direction, labels := classifySwings(swings)

	if direction == DirectionNeutral {
		return skip(direction, 0, false, "no clear trend structure")
	}

	start := reversalStart(swings, direction, vol)
	leg, pullback := countLegs(labels[start:], direction)

	// Trend alignment: buys need an uptrend, sells a downtrend
	if side.IsBuy() && direction != DirectionUp {
		return skip(direction, leg, pullback,
			fmt.Sprintf("buy signal but trend is %s", direction))
	}
	if !side.IsBuy() && direction != DirectionDown {
		return skip(direction, leg, pullback,
			fmt.Sprintf("sell signal but trend is %s", direction))
	}

	if leg > maxAllowedLeg {
		return skip(direction, leg, pullback,
			fmt.Sprintf("leg %d > max allowed %d (reversal risk)", leg, maxAllowedLeg))
	}

	if pullback {
		return Analysis{direction, leg, true, RecommendValid,
			fmt.Sprintf("%s leg %d pullback (good entry)", direction, leg)}
	}
	if leg <= 2 {
		return Analysis{direction, leg, false, RecommendValid,
			fmt.Sprintf("%s leg %d (early trend)", direction, leg)}
	}
	return Analysis{direction, leg, false, RecommendLate,
		fmt.Sprintf("%s leg %d, not in pullback (elevated risk)", direction, leg)}
}

func skip(d Direction, leg int, pullback bool, reason string) Analysis {
	return Analysis{d, leg, pullback, RecommendSkip, reason}
}

// volatilityUnit computes an ATR-style unit: the average true range over
// the most recent candles, falling back to the mean high-low range when
// there is not enough history for true ranges.
func volatilityUnit(candles []types.Candle) decimal.Decimal {
	n := len(candles)
	if n >= 2 {
		start := n - atrPeriod
		if start < 1 {
			start = 1
		}
		sum := decimal.Zero
		count := 0
		for i := start; i < n; i++ {
			hl := candles[i].High.Sub(candles[i].Low)
			hpc := candles[i].High.Sub(candles[i-1].Close).Abs()
			lpc := candles[i].Low.Sub(candles[i-1].Close).Abs()
			tr := hl
			if hpc.GreaterThan(tr) {
				tr = hpc
			}
			if lpc.GreaterThan(tr) {
				tr = lpc
			}
			sum = sum.Add(tr)
			count++
		}
		if count > 0 {
			return sum.Div(decimal.NewFromInt(int64(count)))
		}
	}

	// Fallback: mean range of whatever we have
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(c.High.Sub(c.Low))
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

// detectSwings finds candles whose high (low) exceeds the highs (lows) of
// `lookback` candles on each side. Candles are oldest first here.
func detectSwings(candles []types.Candle, lookback int) []swingPoint {
	if lookback < 1 {
		lookback = 1
	}
	var swings []swingPoint

	for i := lookback; i < len(candles)-lookback; i++ {
		high := candles[i].High
		low := candles[i].Low

		isHigh := true
		isLow := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if candles[j].High.GreaterThanOrEqual(high) {
				isHigh = false
			}
			if candles[j].Low.LessThanOrEqual(low) {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		if isHigh {
			swings = append(swings, swingPoint{index: i, price: high, isHigh: true})
		}
		if isLow {
			swings = append(swings, swingPoint{index: i, price: low, isHigh: false})
		}
	}
	return swings
}

// filterSignificant keeps a swing only when its move from the nearest kept
// opposite-type swing is at least significanceMult volatility units.
// Micro-swings would otherwise inflate the leg count.
func filterSignificant(swings []swingPoint, vol decimal.Decimal) []swingPoint {
	threshold := vol.Mul(decimal.NewFromFloat(significanceMult))
	var kept []swingPoint
	var lastHigh, lastLow decimal.Decimal
	haveHigh, haveLow := false, false

	for _, sp := range swings {
		if sp.isHigh {
			if haveLow && sp.price.Sub(lastLow).Abs().LessThan(threshold) {
				continue
			}
			lastHigh = sp.price
			haveHigh = true
		} else {
			if haveHigh && sp.price.Sub(lastHigh).Abs().LessThan(threshold) {
				continue
			}
			lastLow = sp.price
			haveLow = true
		}
		kept = append(kept, sp)
	}
	return kept
}

// classifySwings labels each swing relative to the previous swing of the
// same type (HH/LH/HL/LL) and votes a direction from the recent labels.
// Requires at least minSwings labeled swings for a non-neutral verdict.
func classifySwings(swings []swingPoint) (Direction, []string) {
	labels := make([]string, 0, len(swings))
	var lastHigh, lastLow decimal.Decimal
	haveHigh, haveLow := false, false

	for _, sp := range swings {
		if sp.isHigh {
			if haveHigh {
				if sp.price.GreaterThan(lastHigh) {
					labels = append(labels, "HH")
				} else {
					labels = append(labels, "LH")
				}
			} else {
				labels = append(labels, "H")
			}
			lastHigh = sp.price
			haveHigh = true
		} else {
			if haveLow {
				if sp.price.GreaterThan(lastLow) {
					labels = append(labels, "HL")
				} else {
					labels = append(labels, "LL")
				}
			} else {
				labels = append(labels, "L")
			}
			lastLow = sp.price
			haveLow = true
		}
	}

	labeled := 0
	for _, l := range labels {
		if len(l) == 2 {
			labeled++
		}
	}
	if labeled < minSwings {
		return DirectionNeutral, labels
	}

	recent := labels
	if len(recent) > 8 {
		recent = recent[len(recent)-8:]
	}
	var hh, hl, lh, ll int
	for _, l := range recent {
		switch l {
		case "HH":
			hh++
		case "HL":
			hl++
		case "LH":
			lh++
		case "LL":
			ll++
		}
	}

	if hh+hl > lh+ll && hh >= 1 && hl >= 1 {
		return DirectionUp, labels
	}
	if lh+ll > hh+hl && lh >= 1 && ll >= 1 {
		return DirectionDown, labels
	}
	return DirectionNeutral, labels
}

// reversalStart walks the swing sequence and returns the index of the last
// local extreme from which price moved at least reversalMult volatility
// units in the trend's favor. Counting legs from there keeps minor
// pullbacks from resetting the leg counter.
func reversalStart(swings []swingPoint, direction Direction, vol decimal.Decimal) int {
	threshold := vol.Mul(decimal.NewFromFloat(reversalMult))
	start := 0

	if direction == DirectionUp {
		extremeIdx := 0
		extreme := swings[0].price
		for i, sp := range swings {
			if sp.price.LessThan(extreme) {
				extreme = sp.price
				extremeIdx = i
				continue
			}
			if sp.isHigh && sp.price.Sub(extreme).GreaterThanOrEqual(threshold) {
				start = extremeIdx
			}
		}
	} else {
		extremeIdx := 0
		extreme := swings[0].price
		for i, sp := range swings {
			if sp.price.GreaterThan(extreme) {
				extreme = sp.price
				extremeIdx = i
				continue
			}
			if !sp.isHigh && extreme.Sub(sp.price).GreaterThanOrEqual(threshold) {
				start = extremeIdx
			}
		}
	}
	return start
}

// countLegs counts favorable extremes (HH in an uptrend, LL in a downtrend)
// as legs; an opposing extreme flags a pullback until the next favorable
// one. The count is floored at 1 once any structure exists.
func countLegs(labels []string, direction Direction) (int, bool) {
	legLabel, pullbackLabel := "HH", "HL"
	if direction == DirectionDown {
		legLabel, pullbackLabel = "LL", "LH"
	}

	legs := 0
	pullback := false
	structure := false

	for _, l := range labels {
		switch l {
		case legLabel:
			legs++
			pullback = false
			structure = true
		case pullbackLabel:
			pullback = true
			structure = true
		}
	}

	if structure && legs < 1 {
		legs = 1
	}
	return legs, pullback
}

// IntervalForTimeframe maps a signal timeframe label to a Bybit kline
// interval string. Unknown labels default to 1h.
func IntervalForTimeframe(timeframe string) string {
	switch strings.ToUpper(timeframe) {
	case "M1":
		return "1"
	case "M3":
		return "3"
	case "M5":
		return "5"
	case "M15":
		return "15"
	case "M30":
		return "30"
	case "H1":
		return "60"
	case "H2":
		return "120"
	case "H4":
		return "240"
	case "H6":
		return "360"
	case "H12":
		return "720"
	case "D", "D1":
		return "D"
	case "W", "W1":
		return "W"
	}
	return "60"
}
