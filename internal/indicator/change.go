package indicator

import (
	"time"

	"tickdata/internal/model"
)

// DefaultVolumeSMAWindow is the conventional volume averaging window.
const DefaultVolumeSMAWindow = 10

// VolumeSMA returns the simple moving average of traded volume over a
// trailing window. Warm-up semantics match SMA: the first window-1 points
// are undefined, and an oversized window yields an all-undefined series.
func VolumeSMA(bars []model.Bar, window int) (Series, error) {
	if len(bars) == 0 {
		return nil, ErrEmptyInput
	}
	if window <= 0 {
		return nil, ErrInvalidParameter
	}
	ts := make([]time.Time, len(bars))
	vols := make([]float64, len(bars))
	for i, b := range bars {
		ts[i] = b.TS
		vols[i] = float64(b.Volume)
	}
	return smaValues(ts, vols, window), nil
}

// PctChange returns the fractional close-to-close change: (c[i]-c[i-1])/c[i-1].
// The first point is undefined, as is any point whose previous close is zero.
func PctChange(bars []model.Bar) (Series, error) {
	ts, closes, err := splitBars(bars)
	if err != nil {
		return nil, err
	}
	out := undefinedSeries(ts)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		out[i].Value = (closes[i] - closes[i-1]) / closes[i-1]
		out[i].Defined = true
	}
	return out, nil
}

// PriceDiff returns the absolute close-to-close change: c[i]-c[i-1].
// The first point is undefined.
func PriceDiff(bars []model.Bar) (Series, error) {
	ts, closes, err := splitBars(bars)
	if err != nil {
		return nil, err
	}
	out := undefinedSeries(ts)
	for i := 1; i < len(closes); i++ {
		out[i].Value = closes[i] - closes[i-1]
		out[i].Defined = true
	}
	return out, nil
}
