package indicator

import (
	"strconv"

	"tickdata/internal/model"
)

// DefaultRSIPeriod is the conventional RSI averaging period.
const DefaultRSIPeriod = 14

// RSI computes the Relative Strength Index with Wilder's smoothing.
// The first value appears at index period (it needs period deltas); earlier
// points are undefined. When the average loss is zero the RSI is 100, never
// a division fault.
func RSI(bars []model.Bar, period int) (Series, error) {
	ts, closes, err := splitBars(bars)
	if err != nil {
		return nil, err
	}
	if period <= 0 {
		return nil, ErrInvalidParameter
	}

	out := undefinedSeries(ts)
	if period >= len(closes) {
		return out, nil
	}

	// Seed averages over the first `period` deltas.
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = Point{TS: ts[period], Value: rsiFrom(avgGain, avgLoss), Defined: true}

	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = Point{TS: ts[i], Value: rsiFrom(avgGain, avgLoss), Defined: true}
	}
	return out, nil
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// StreamRSI is the O(1)-per-update streaming counterpart of RSI.
type StreamRSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewStreamRSI creates a streaming RSI with the given period.
func NewStreamRSI(period int) *StreamRSI {
	return &StreamRSI{period: period}
}

func (r *StreamRSI) Name() string { return "RSI_" + strconv.Itoa(r.period) }

// Update feeds the next close price.
func (r *StreamRSI) Update(close float64) {
	r.count++
	if r.count == 1 {
		r.prevClose = close
		return
	}

	delta := close - r.prevClose
	r.prevClose = close

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase for the seed averages.
		r.avgGain += gain
		r.avgLoss += loss
		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiFrom(r.avgGain, r.avgLoss)
		}
		return
	}

	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiFrom(r.avgGain, r.avgLoss)
}

func (r *StreamRSI) Value() float64 { return r.current }
func (r *StreamRSI) Ready() bool    { return r.count > r.period }

// Reset clears the state for reuse.
func (r *StreamRSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.avgGain = 0
	r.avgLoss = 0
	r.current = 0
}
