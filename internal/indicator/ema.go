package indicator

import (
	"strconv"
	"time"

	"tickdata/internal/model"
)

// EMA returns the exponential moving average of close prices with smoothing
// factor 2/(window+1). The value at index window-1 is the SMA(window) seed;
// earlier points are undefined. EMA is a left-to-right recurrence, so the
// whole series is produced in one pass.
func EMA(bars []model.Bar, window int) (Series, error) {
	ts, closes, err := splitBars(bars)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, ErrInvalidParameter
	}
	return emaValues(ts, closes, window, 0), nil
}

// emaValues computes EMA over closes starting at offset `from`, treating
// everything before it as undefined. The seed at from+window-1 is the plain
// mean of the first window values. Used directly by EMA and reused by MACD
// for the signal line (EMA over the MACD line's defined span).
func emaValues(ts []time.Time, values []float64, window, from int) Series {
	out := undefinedSeries(ts)
	if from < 0 || from+window > len(values) {
		return out
	}

	alpha := 2.0 / float64(window+1)
	sum := 0.0
	for i := from; i < from+window; i++ {
		sum += values[i]
	}

	seed := from + window - 1
	prev := sum / float64(window)
	out[seed] = Point{TS: ts[seed], Value: prev, Defined: true}

	for i := seed + 1; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = Point{TS: ts[i], Value: prev, Defined: true}
	}
	return out
}

// StreamEMA is the O(1)-per-update streaming counterpart of EMA.
// Accumulates an SMA seed over the first window updates, then applies
// the recurrence.
type StreamEMA struct {
	window  int
	alpha   float64
	count   int
	sum     float64
	current float64
}

// NewStreamEMA creates a streaming EMA with the given window.
func NewStreamEMA(window int) *StreamEMA {
	return &StreamEMA{window: window, alpha: 2.0 / float64(window+1)}
}

func (e *StreamEMA) Name() string { return "EMA_" + strconv.Itoa(e.window) }

// Update feeds the next close price.
func (e *StreamEMA) Update(close float64) {
	e.count++
	if e.count <= e.window {
		e.sum += close
		if e.count == e.window {
			e.current = e.sum / float64(e.window)
		}
		return
	}
	e.current = e.alpha*close + (1-e.alpha)*e.current
}

func (e *StreamEMA) Value() float64 { return e.current }
func (e *StreamEMA) Ready() bool    { return e.count >= e.window }

// Reset clears the state for reuse.
func (e *StreamEMA) Reset() {
	e.count = 0
	e.sum = 0
	e.current = 0
}
