package indicator

import (
	"context"
	"time"

	"tickdata/internal/model"
)

// StreamIndicator is the interface shared by the streaming accumulators.
type StreamIndicator interface {
	Name() string
	Update(close float64)
	Value() float64
	Ready() bool
}

// symbolIndicators holds live accumulator instances for one symbol.
type symbolIndicators struct {
	indicators []StreamIndicator
	requests   []Request
}

// StreamEngine computes a fixed set of indicators over live bars for any
// number of symbols. Designed for single-goroutine usage - no locks.
type StreamEngine struct {
	requests []Request
	state    map[string]*symbolIndicators // key = "exchange:symbol:interval"

	// OnProcess, if set, is called by Run after each bar with the number
	// of results produced and the compute duration.
	OnProcess func(n int, d time.Duration)
}

// NewStreamEngine creates a streaming engine evaluating the given requests
// for every symbol it sees.
func NewStreamEngine(requests []Request) *StreamEngine {
	return &StreamEngine{
		requests: requests,
		state:    make(map[string]*symbolIndicators, 64),
	}
}

// Process feeds one finalized bar and returns the indicator results for its
// symbol. Results inside a warm-up carry Ready=false. State is isolated per
// interval so 1m and 5m bars of the same symbol never share accumulators.
func (e *StreamEngine) Process(bar model.Bar) []model.IndicatorResult {
	key := bar.Key() + ":" + string(bar.Interval)
	si, ok := e.state[key]
	if !ok {
		si = e.newSymbolIndicators()
		e.state[key] = si
	}

	results := make([]model.IndicatorResult, 0, len(si.indicators)+4)
	for i, ind := range si.indicators {
		ind.Update(bar.Close)
		results = append(results, e.resultsFor(ind, si.requests[i], bar)...)
	}
	return results
}

// resultsFor expands one accumulator into its named results. MACD and
// Bollinger contribute three series each, like their batch counterparts.
func (e *StreamEngine) resultsFor(ind StreamIndicator, req Request, bar model.Bar) []model.IndicatorResult {
	base := model.IndicatorResult{
		Symbol:   bar.Symbol,
		Exchange: bar.Exchange,
		Interval: bar.Interval,
		TS:       bar.TS,
	}

	switch v := ind.(type) {
	case *StreamMACD:
		line, signal, hist := base, base, base
		line.Name, line.Value, line.Ready = "MACD_line", v.Value(), v.Ready()
		signal.Name, signal.Value, signal.Ready = "MACD_signal", v.SignalValue(), v.SignalReady()
		hist.Name, hist.Value, hist.Ready = "MACD_histogram", v.HistogramValue(), v.SignalReady()
		return []model.IndicatorResult{line, signal, hist}

	case *StreamBollinger:
		upper, middle, lower := base, base, base
		u, m, l := v.Bands()
		upper.Name, upper.Value, upper.Ready = "BB_upper", u, v.Ready()
		middle.Name, middle.Value, middle.Ready = "BB_middle", m, v.Ready()
		lower.Name, lower.Value, lower.Ready = "BB_lower", l, v.Ready()
		return []model.IndicatorResult{upper, middle, lower}

	default:
		r := base
		r.Name, r.Value, r.Ready = ind.Name(), ind.Value(), ind.Ready()
		return []model.IndicatorResult{r}
	}
}

// Run consumes bars and emits one result batch per bar, sized for a
// single pipelined write downstream. Blocks until ctx is done or the
// input channel closes. Batches are dropped if batchCh is full.
func (e *StreamEngine) Run(ctx context.Context, barCh <-chan model.Bar, batchCh chan<- []model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			start := time.Now()
			results := e.Process(bar)
			if e.OnProcess != nil {
				e.OnProcess(len(results), time.Since(start))
			}
			select {
			case batchCh <- results:
			default:
				// drop if channel full
			}
		}
	}
}

// newSymbolIndicators instantiates fresh accumulators for one symbol.
func (e *StreamEngine) newSymbolIndicators() *symbolIndicators {
	inds := make([]StreamIndicator, len(e.requests))
	for i, req := range e.requests {
		switch req.Kind {
		case KindEMA:
			inds[i] = NewStreamEMA(req.Window)
		case KindRSI:
			period := req.Period
			if period == 0 {
				period = DefaultRSIPeriod
			}
			inds[i] = NewStreamRSI(period)
		case KindMACD:
			inds[i] = NewStreamMACD(MACDFastWindow, MACDSlowWindow, MACDSignalWindow)
		case KindBollinger:
			window := req.Window
			if window == 0 {
				window = DefaultBollingerWindow
			}
			k := req.K
			if k == 0 {
				k = DefaultBollingerK
			}
			inds[i] = NewStreamBollinger(window, k)
		default:
			inds[i] = NewStreamSMA(req.Window)
		}
	}
	return &symbolIndicators{indicators: inds, requests: e.requests}
}
