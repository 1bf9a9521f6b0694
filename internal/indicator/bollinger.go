package indicator

import (
	"math"
	"strconv"

	"tickdata/internal/model"
)

// Default Bollinger parameters.
const (
	DefaultBollingerWindow = 20
	DefaultBollingerK      = 2.0
)

// BollingerResult holds the three aligned band series.
type BollingerResult struct {
	Upper  Series
	Middle Series
	Lower  Series
}

// Bollinger computes Bollinger Bands: middle = SMA(window), band width =
// k × population standard deviation over the same trailing window. All three
// series share the middle band's warm-up. Zero variance (flat window) yields
// upper == middle == lower.
func Bollinger(bars []model.Bar, window int, k float64) (BollingerResult, error) {
	ts, closes, err := splitBars(bars)
	if err != nil {
		return BollingerResult{}, err
	}
	if window <= 0 || k <= 0 {
		return BollingerResult{}, ErrInvalidParameter
	}

	upper := undefinedSeries(ts)
	middle := undefinedSeries(ts)
	lower := undefinedSeries(ts)
	if window > len(closes) {
		return BollingerResult{Upper: upper, Middle: middle, Lower: lower}, nil
	}

	// Rolling sum and sum of squares over the trailing window.
	var sum, sumSq float64
	w := float64(window)
	for i, c := range closes {
		sum += c
		sumSq += c * c
		if i >= window {
			old := closes[i-window]
			sum -= old
			sumSq -= old * old
		}
		if i < window-1 {
			continue
		}
		mean := sum / w
		variance := sumSq/w - mean*mean
		if variance < 0 {
			variance = 0 // guard against tiny negative rounding residue
		}
		width := k * math.Sqrt(variance)

		middle[i] = Point{TS: ts[i], Value: mean, Defined: true}
		upper[i] = Point{TS: ts[i], Value: mean + width, Defined: true}
		lower[i] = Point{TS: ts[i], Value: mean - width, Defined: true}
	}
	return BollingerResult{Upper: upper, Middle: middle, Lower: lower}, nil
}

// StreamBollinger is the O(1)-per-update streaming counterpart of Bollinger,
// keeping rolling sum and sum-of-squares over a circular buffer.
type StreamBollinger struct {
	window int
	k      float64
	buf    []float64
	idx    int
	count  int
	sum    float64
	sumSq  float64
}

// NewStreamBollinger creates a streaming Bollinger accumulator.
func NewStreamBollinger(window int, k float64) *StreamBollinger {
	return &StreamBollinger{window: window, k: k, buf: make([]float64, window)}
}

func (b *StreamBollinger) Name() string { return "BB_" + strconv.Itoa(b.window) }

// Update feeds the next close price.
func (b *StreamBollinger) Update(close float64) {
	if b.count >= b.window {
		old := b.buf[b.idx]
		b.sum -= old
		b.sumSq -= old * old
	}
	b.buf[b.idx] = close
	b.sum += close
	b.sumSq += close * close
	b.idx = (b.idx + 1) % b.window
	b.count++
}

// Value returns the middle band (SMA).
func (b *StreamBollinger) Value() float64 {
	if !b.Ready() {
		return 0
	}
	return b.sum / float64(b.window)
}

// Bands returns upper, middle, lower. Zeroes until Ready.
func (b *StreamBollinger) Bands() (upper, middle, lower float64) {
	if !b.Ready() {
		return 0, 0, 0
	}
	w := float64(b.window)
	mean := b.sum / w
	variance := b.sumSq/w - mean*mean
	if variance < 0 {
		variance = 0
	}
	width := b.k * math.Sqrt(variance)
	return mean + width, mean, mean - width
}

func (b *StreamBollinger) Ready() bool { return b.count >= b.window }

// Reset clears the state for reuse.
func (b *StreamBollinger) Reset() {
	b.idx = 0
	b.count = 0
	b.sum = 0
	b.sumSq = 0
	for i := range b.buf {
		b.buf[i] = 0
	}
}
