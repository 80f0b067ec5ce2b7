package scorer

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/trend"
	"github.com/candree7-rgb/Zei/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BATCH SELECTOR - Score competing signals, trade only the best
// ═══════════════════════════════════════════════════════════════════════════════
//
// Scoring:
//   base 100
//   + (maxLeg - leg + 1) * 20 when leg within bound
//   + 15 in pullback
//   + min(rr * 10, 30)
//   - 20 when recommendation is "late"
//   skip forces 0 and excludes the signal
//
// ═══════════════════════════════════════════════════════════════════════════════

// CandleSource provides price history for scoring.
type CandleSource interface {
	Klines(symbol, interval string, limit int) ([]types.Candle, error)
}

// SeenSet is the rolling dedupe history of signal hashes.
type SeenSet interface {
	Seen(hash string) bool
	MarkSeen(hash string)
}

// Scored wraps a signal with its analysis and selection score.
type Scored struct {
	Signal     *types.Signal
	Analysis   trend.Analysis
	Score      float64
	RiskReward decimal.Decimal
	SkipReason string
}

// Selector scores and ranks batches of signals.
type Selector struct {
	candles       CandleSource
	maxAllowedLeg int
	swingLookback int
	trendCandles  int
}

// NewSelector creates a batch selector.
func NewSelector(candles CandleSource, maxAllowedLeg, swingLookback, trendCandles int) *Selector {
	return &Selector{
		candles:       candles,
		maxAllowedLeg: maxAllowedLeg,
		swingLookback: swingLookback,
		trendCandles:  trendCandles,
	}
}

// Select deduplicates a batch against the seen-set, scores the remainder
// and returns the top maxCount signals, best first. Ties keep arrival
// order (stable sort) so selection is deterministic.
func (s *Selector) Select(signals []*types.Signal, seen SeenSet, maxCount int) []*types.Signal {
	var fresh []*types.Signal
	for _, sig := range signals {
		h := sig.Hash()
		if seen.Seen(h) {
			log.Debug().Str("symbol", sig.Symbol).Msg("Signal already seen, skipping")
			continue
		}
		seen.MarkSeen(h)
		fresh = append(fresh, sig)
	}

	scored := s.ScoreBatch(fresh)

	var best []*types.Signal
	for _, sc := range scored {
		if sc.SkipReason != "" || sc.Score <= 0 {
			continue
		}
		best = append(best, sc.Signal)
		if len(best) >= maxCount {
			break
		}
	}
	return best
}

// ScoreBatch scores every signal and returns them sorted by score
// descending (stable).
func (s *Selector) ScoreBatch(signals []*types.Signal) []Scored {
	scored := make([]Scored, 0, len(signals))

	for _, sig := range signals {
		sc := s.scoreOne(sig)
		scored = append(scored, sc)

		if sc.SkipReason != "" {
			log.Info().
				Str("symbol", sig.Symbol).
				Str("reason", sc.SkipReason).
				Msg("❌ Signal skipped")
		} else {
			log.Info().
				Str("symbol", sig.Symbol).
				Float64("score", sc.Score).
				Int("leg", sc.Analysis.CurrentLeg).
				Bool("pullback", sc.Analysis.InPullback).
				Str("rr", sc.RiskReward.StringFixed(2)).
				Msg("✅ Signal scored")
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// scoreOne runs trend analysis for the signal's timeframe and applies the
// scoring rules. Missing price history degrades to a skip, not an error.
func (s *Selector) scoreOne(sig *types.Signal) Scored {
	rr := RiskReward(sig)

	interval := trend.IntervalForTimeframe(sig.Timeframe)
	candles, err := s.candles.Klines(sig.Symbol, interval, s.trendCandles)
	if err != nil {
		log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("⚠️ Price history fetch failed")
		return Scored{Signal: sig, RiskReward: rr, SkipReason: "no price history available"}
	}

	analysis := trend.Analyze(candles, sig.Side, s.maxAllowedLeg, s.swingLookback)
	sc := Scored{Signal: sig, Analysis: analysis, RiskReward: rr}

	if analysis.Recommendation == trend.RecommendSkip {
		sc.SkipReason = analysis.Reason
		return sc
	}

	score := 100.0

	leg := analysis.CurrentLeg
	if leg > s.maxAllowedLeg {
		sc.SkipReason = fmt.Sprintf("leg %d > max allowed %d", leg, s.maxAllowedLeg)
		sc.Score = 0
		return sc
	}
	if leg > 0 {
		score += float64(s.maxAllowedLeg-leg+1) * 20
	}

	if analysis.InPullback {
		score += 15
	}

	rrBonus, _ := rr.Mul(decimal.NewFromInt(10)).Float64()
	if rrBonus > 30 {
		rrBonus = 30
	}
	score += rrBonus

	if analysis.Recommendation == trend.RecommendLate {
		score -= 20
	}

	sc.Score = score
	return sc
}

// RiskReward is the favorable distance to the first take-profit divided by
// the distance to the stop. Zero when either level is missing or the risk
// distance is non-positive.
func RiskReward(sig *types.Signal) decimal.Decimal {
	if sig.StopLoss.IsZero() || len(sig.TakeProfits) == 0 || sig.Trigger.IsZero() {
		return decimal.Zero
	}

	tp1 := sig.TakeProfits[0]
	var reward, riskDist decimal.Decimal
	if sig.Side.IsBuy() {
		reward = tp1.Sub(sig.Trigger)
		riskDist = sig.Trigger.Sub(sig.StopLoss)
	} else {
		reward = sig.Trigger.Sub(tp1)
		riskDist = sig.StopLoss.Sub(sig.Trigger)
	}

	if riskDist.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return reward.Div(riskDist)
}
