package indicator

import (
	"tickdata/internal/model"
)

// Trend labels a directional pattern in the recent closes.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
)

// minPatternBars is the shortest series pattern detection works on.
const minPatternBars = 10

// patternWindow spans the rolling extrema and the trend check.
const patternWindow = 5

// PatternReport summarizes detected chart structure for one bar series.
// Level lists hold at most three entries each, kept in order of first
// appearance.
type PatternReport struct {
	Trends           []Trend   `json:"trends,omitempty"`
	ResistanceLevels []float64 `json:"resistance_levels,omitempty"`
	SupportLevels    []float64 `json:"support_levels,omitempty"`
	CurrentPrice     float64   `json:"current_price"`
}

// DetectPatterns scans a bar series for simple chart structure: a monotone
// trend over the last five closes, and support/resistance levels taken from
// rolling five-bar extrema on either side of the current price. Series
// shorter than ten bars produce an empty report.
func DetectPatterns(bars []model.Bar) PatternReport {
	if len(bars) < minPatternBars {
		return PatternReport{}
	}

	rep := PatternReport{CurrentPrice: bars[len(bars)-1].Close}

	if t, ok := trendOf(bars[len(bars)-patternWindow:]); ok {
		rep.Trends = append(rep.Trends, t)
	}

	rep.ResistanceLevels = levelsAbove(rollingMaxHighs(bars), rep.CurrentPrice)
	rep.SupportLevels = levelsBelow(rollingMinLows(bars), rep.CurrentPrice)
	return rep
}

// trendOf reports a monotone direction over the given closes. Flat runs
// count toward either direction, matching non-strict comparisons.
func trendOf(tail []model.Bar) (Trend, bool) {
	rising, falling := true, true
	for i := 1; i < len(tail); i++ {
		if tail[i].Close < tail[i-1].Close {
			rising = false
		}
		if tail[i].Close > tail[i-1].Close {
			falling = false
		}
	}
	switch {
	case rising && falling:
		// Perfectly flat; a monotone label either way would mislead.
		return "", false
	case rising:
		return TrendBullish, true
	case falling:
		return TrendBearish, true
	default:
		return "", false
	}
}

// rollingMaxHighs returns the trailing five-bar maximum of High at each
// position from index patternWindow-1 on.
func rollingMaxHighs(bars []model.Bar) []float64 {
	out := make([]float64, 0, len(bars)-patternWindow+1)
	for i := patternWindow - 1; i < len(bars); i++ {
		m := bars[i-patternWindow+1].High
		for j := i - patternWindow + 2; j <= i; j++ {
			if bars[j].High > m {
				m = bars[j].High
			}
		}
		out = append(out, m)
	}
	return out
}

// rollingMinLows returns the trailing five-bar minimum of Low at each
// position from index patternWindow-1 on.
func rollingMinLows(bars []model.Bar) []float64 {
	out := make([]float64, 0, len(bars)-patternWindow+1)
	for i := patternWindow - 1; i < len(bars); i++ {
		m := bars[i-patternWindow+1].Low
		for j := i - patternWindow + 2; j <= i; j++ {
			if bars[j].Low < m {
				m = bars[j].Low
			}
		}
		out = append(out, m)
	}
	return out
}

// levelsAbove keeps the first three unique values strictly above price,
// in order of first appearance.
func levelsAbove(values []float64, price float64) []float64 {
	return uniqueFiltered(values, func(v float64) bool { return v > price })
}

// levelsBelow keeps the first three unique values strictly below price.
func levelsBelow(values []float64, price float64) []float64 {
	return uniqueFiltered(values, func(v float64) bool { return v < price })
}

func uniqueFiltered(values []float64, keep func(float64) bool) []float64 {
	seen := make(map[float64]bool, len(values))
	var out []float64
	for _, v := range values {
		if !keep(v) || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == 3 {
			break
		}
	}
	return out
}
