package indicator

import (
	"tickdata/internal/model"
)

// Default MACD parameters.
const (
	MACDFastWindow   = 12
	MACDSlowWindow   = 26
	MACDSignalWindow = 9
)

// MACDResult holds the three aligned MACD series.
type MACDResult struct {
	Line      Series
	Signal    Series
	Histogram Series
}

// MACD computes the MACD line (fast EMA − slow EMA), the signal line
// (EMA of the MACD line itself), and the histogram (line − signal).
// The line is defined where both EMAs are defined; the signal has its own
// warm-up starting from the first defined line value; the histogram is
// defined where both are.
func MACD(bars []model.Bar, fast, slow, signal int) (MACDResult, error) {
	ts, closes, err := splitBars(bars)
	if err != nil {
		return MACDResult{}, err
	}
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return MACDResult{}, ErrInvalidParameter
	}

	fastEMA := emaValues(ts, closes, fast, 0)
	slowEMA := emaValues(ts, closes, slow, 0)

	line := undefinedSeries(ts)
	lineValues := make([]float64, len(bars))
	lineFrom := -1
	for i := range bars {
		if !fastEMA[i].Defined || !slowEMA[i].Defined {
			continue
		}
		line[i].Value = fastEMA[i].Value - slowEMA[i].Value
		line[i].Defined = true
		lineValues[i] = line[i].Value
		if lineFrom < 0 {
			lineFrom = i
		}
	}

	sig := undefinedSeries(ts)
	if lineFrom >= 0 {
		sig = emaValues(ts, lineValues, signal, lineFrom)
	}

	hist := undefinedSeries(ts)
	for i := range bars {
		if line[i].Defined && sig[i].Defined {
			hist[i].Value = line[i].Value - sig[i].Value
			hist[i].Defined = true
		}
	}

	return MACDResult{Line: line, Signal: sig, Histogram: hist}, nil
}

// StreamMACD is the streaming counterpart of MACD, composed from three
// StreamEMA accumulators: fast and slow over closes, signal over the line.
type StreamMACD struct {
	fast   *StreamEMA
	slow   *StreamEMA
	signal *StreamEMA
}

// NewStreamMACD creates a streaming MACD with the given windows.
func NewStreamMACD(fast, slow, signal int) *StreamMACD {
	return &StreamMACD{
		fast:   NewStreamEMA(fast),
		slow:   NewStreamEMA(slow),
		signal: NewStreamEMA(signal),
	}
}

func (m *StreamMACD) Name() string { return "MACD" }

// Update feeds the next close price into all three accumulators.
func (m *StreamMACD) Update(close float64) {
	m.fast.Update(close)
	m.slow.Update(close)
	if m.fast.Ready() && m.slow.Ready() {
		m.signal.Update(m.fast.Value() - m.slow.Value())
	}
}

// Value returns the current MACD line value.
func (m *StreamMACD) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.fast.Value() - m.slow.Value()
}

// SignalValue returns the current signal line value (0 until SignalReady).
func (m *StreamMACD) SignalValue() float64 { return m.signal.Value() }

// HistogramValue returns line − signal (0 until SignalReady).
func (m *StreamMACD) HistogramValue() float64 {
	if !m.SignalReady() {
		return 0
	}
	return m.Value() - m.signal.Value()
}

// Ready reports whether the MACD line has warmed up.
func (m *StreamMACD) Ready() bool { return m.fast.Ready() && m.slow.Ready() }

// SignalReady reports whether the signal line has warmed up.
func (m *StreamMACD) SignalReady() bool { return m.signal.Ready() }

// Reset clears all accumulator state.
func (m *StreamMACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
}
