package indicator

import (
	"fmt"
	"strconv"

	"tickdata/internal/model"
)

// Kind identifies an indicator family. The set is fixed; requests dispatch
// through a finite switch, not a plugin registry.
type Kind string

const (
	KindSMA       Kind = "SMA"
	KindEMA       Kind = "EMA"
	KindMACD      Kind = "MACD"
	KindRSI       Kind = "RSI"
	KindBollinger Kind = "BOLLINGER"
)

// Request names an indicator and its parameters. Zero-valued parameters take
// the conventional defaults (MACD 12/26/9, RSI 14, Bollinger 20/2).
type Request struct {
	Kind   Kind    `json:"kind"`
	Window int     `json:"window,omitempty"` // SMA, EMA, Bollinger
	Period int     `json:"period,omitempty"` // RSI
	K      float64 `json:"k,omitempty"`      // Bollinger band width multiplier
}

// Name returns the canonical series name for single-series requests
// ("SMA_20", "EMA_12", "RSI_14"). Multi-series kinds (MACD, Bollinger)
// expand into several named outputs in Compute.
func (r Request) Name() string {
	switch r.Kind {
	case KindSMA, KindEMA:
		return string(r.Kind) + "_" + strconv.Itoa(r.Window)
	case KindRSI:
		p := r.Period
		if p == 0 {
			p = DefaultRSIPeriod
		}
		return "RSI_" + strconv.Itoa(p)
	default:
		return string(r.Kind)
	}
}

// Compute evaluates a set of indicator requests over one bar series and
// returns the resulting series keyed by name. Every output series has the
// same length as bars, aligned by position. The input is only read.
func Compute(bars []model.Bar, reqs []Request) (map[string]Series, error) {
	if len(bars) == 0 {
		return nil, ErrEmptyInput
	}

	out := make(map[string]Series, len(reqs))
	for _, req := range reqs {
		switch req.Kind {
		case KindSMA:
			s, err := SMA(bars, req.Window)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", req.Name(), err)
			}
			out[req.Name()] = s

		case KindEMA:
			s, err := EMA(bars, req.Window)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", req.Name(), err)
			}
			out[req.Name()] = s

		case KindRSI:
			period := req.Period
			if period == 0 {
				period = DefaultRSIPeriod
			}
			s, err := RSI(bars, period)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", req.Name(), err)
			}
			out[req.Name()] = s

		case KindMACD:
			res, err := MACD(bars, MACDFastWindow, MACDSlowWindow, MACDSignalWindow)
			if err != nil {
				return nil, fmt.Errorf("MACD: %w", err)
			}
			out["MACD_line"] = res.Line
			out["MACD_signal"] = res.Signal
			out["MACD_histogram"] = res.Histogram

		case KindBollinger:
			window := req.Window
			if window == 0 {
				window = DefaultBollingerWindow
			}
			k := req.K
			if k == 0 {
				k = DefaultBollingerK
			}
			res, err := Bollinger(bars, window, k)
			if err != nil {
				return nil, fmt.Errorf("BOLLINGER: %w", err)
			}
			out["BB_upper"] = res.Upper
			out["BB_middle"] = res.Middle
			out["BB_lower"] = res.Lower

		default:
			return nil, fmt.Errorf("unknown indicator kind %q: %w", req.Kind, ErrInvalidParameter)
		}
	}
	return out, nil
}

// ValidateRequests rejects request sets that would fail at compute time:
// unknown kinds, non-positive windows/periods, k <= 0. Defaults (zero values
// for MACD/RSI/Bollinger parameters) pass.
func ValidateRequests(reqs []Request) error {
	for _, req := range reqs {
		switch req.Kind {
		case KindSMA, KindEMA:
			if req.Window <= 0 {
				return fmt.Errorf("%s window %d: %w", req.Kind, req.Window, ErrInvalidParameter)
			}
		case KindRSI:
			if req.Period < 0 {
				return fmt.Errorf("RSI period %d: %w", req.Period, ErrInvalidParameter)
			}
		case KindMACD:
			// fixed 12/26/9
		case KindBollinger:
			if req.Window < 0 || req.K < 0 {
				return fmt.Errorf("BOLLINGER window %d k %g: %w", req.Window, req.K, ErrInvalidParameter)
			}
		default:
			return fmt.Errorf("unknown indicator kind %q: %w", req.Kind, ErrInvalidParameter)
		}
	}
	return nil
}
