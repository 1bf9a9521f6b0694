package indicator

import (
	"strconv"
	"time"

	"tickdata/internal/model"
)

// SMA returns the simple moving average of close prices over a trailing
// window. The first window-1 points are undefined. A window longer than the
// series yields an all-undefined series rather than an error.
func SMA(bars []model.Bar, window int) (Series, error) {
	ts, closes, err := splitBars(bars)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, ErrInvalidParameter
	}
	return smaValues(ts, closes, window), nil
}

// smaValues computes SMA over raw closes using a running sum.
func smaValues(ts []time.Time, closes []float64, window int) Series {
	out := undefinedSeries(ts)
	if window > len(closes) {
		return out
	}
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= window {
			sum -= closes[i-window]
		}
		if i >= window-1 {
			out[i].Value = sum / float64(window)
			out[i].Defined = true
		}
	}
	return out
}

// splitBars validates the input series and extracts timestamps and closes.
func splitBars(bars []model.Bar) ([]time.Time, []float64, error) {
	if len(bars) == 0 {
		return nil, nil, ErrEmptyInput
	}
	ts := make([]time.Time, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		ts[i] = b.TS
		closes[i] = b.Close
	}
	return ts, closes, nil
}

// StreamSMA is the O(1)-per-update streaming counterpart of SMA.
// Uses a preallocated circular buffer.
type StreamSMA struct {
	window  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewStreamSMA creates a streaming SMA with the given window.
func NewStreamSMA(window int) *StreamSMA {
	return &StreamSMA{window: window, buf: make([]float64, window)}
}

func (s *StreamSMA) Name() string { return "SMA_" + strconv.Itoa(s.window) }

// Update feeds the next close price.
func (s *StreamSMA) Update(close float64) {
	if s.count >= s.window {
		s.sum -= s.buf[s.idx]
	}
	s.buf[s.idx] = close
	s.sum += close
	s.idx = (s.idx + 1) % s.window
	s.count++
	if s.count >= s.window {
		s.current = s.sum / float64(s.window)
	}
}

func (s *StreamSMA) Value() float64 { return s.current }
func (s *StreamSMA) Ready() bool    { return s.count >= s.window }

// Reset clears the state for reuse.
func (s *StreamSMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
