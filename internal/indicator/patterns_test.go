package indicator

import (
	"testing"
)

func TestDetectPatterns_BullishTrend(t *testing.T) {
	// Ten bars, last five strictly rising.
	rep := DetectPatterns(makeBars(100, 99, 98, 97, 96, 97, 98, 99, 100, 101))
	if len(rep.Trends) != 1 || rep.Trends[0] != TrendBullish {
		t.Errorf("trends = %v, want [bullish]", rep.Trends)
	}
	assertClose(t, "current price", rep.CurrentPrice, 101, 1e-9)
}

func TestDetectPatterns_BearishTrend(t *testing.T) {
	rep := DetectPatterns(makeBars(100, 101, 102, 103, 104, 103, 102, 101, 100, 99))
	if len(rep.Trends) != 1 || rep.Trends[0] != TrendBearish {
		t.Errorf("trends = %v, want [bearish]", rep.Trends)
	}
}

func TestDetectPatterns_FlatHasNoTrend(t *testing.T) {
	rep := DetectPatterns(makeBars(100, 100, 100, 100, 100, 100, 100, 100, 100, 100))
	if len(rep.Trends) != 0 {
		t.Errorf("flat closes produced trends %v", rep.Trends)
	}
}

func TestDetectPatterns_ShortSeriesEmpty(t *testing.T) {
	rep := DetectPatterns(makeBars(1, 2, 3, 4, 5))
	if len(rep.Trends) != 0 || len(rep.ResistanceLevels) != 0 || len(rep.SupportLevels) != 0 {
		t.Errorf("short series should yield an empty report, got %+v", rep)
	}
	if rep.CurrentPrice != 0 {
		t.Errorf("short series current price = %v, want 0", rep.CurrentPrice)
	}
}

func TestDetectPatterns_Levels(t *testing.T) {
	// makeBars sets High=close+1 and Low=close-1. Closes descend then
	// recover, so early rolling highs sit above the final close and
	// early rolling lows below it.
	rep := DetectPatterns(makeBars(110, 108, 106, 104, 102, 100, 98, 100, 102, 104))

	if len(rep.ResistanceLevels) == 0 {
		t.Fatal("expected resistance levels above the last close")
	}
	for _, lvl := range rep.ResistanceLevels {
		if lvl <= rep.CurrentPrice {
			t.Errorf("resistance %v not above current %v", lvl, rep.CurrentPrice)
		}
	}
	// First rolling five-bar high is 110+1.
	assertClose(t, "first resistance", rep.ResistanceLevels[0], 111, 1e-9)

	if len(rep.SupportLevels) == 0 {
		t.Fatal("expected support levels below the last close")
	}
	for _, lvl := range rep.SupportLevels {
		if lvl >= rep.CurrentPrice {
			t.Errorf("support %v not below current %v", lvl, rep.CurrentPrice)
		}
	}
	// Five-bar minimum low around the trough is 98-1.
	assertClose(t, "deepest support", rep.SupportLevels[len(rep.SupportLevels)-1], 97, 1e-9)
}

func TestDetectPatterns_AtMostThreeLevels(t *testing.T) {
	// A long staircase produces many distinct rolling highs above the
	// final close; the report must cap at three.
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 200 - float64(i)*5
	}
	rep := DetectPatterns(makeBars(closes...))
	if len(rep.ResistanceLevels) > 3 {
		t.Errorf("got %d resistance levels, want at most 3", len(rep.ResistanceLevels))
	}
	if len(rep.SupportLevels) > 3 {
		t.Errorf("got %d support levels, want at most 3", len(rep.SupportLevels))
	}
}
