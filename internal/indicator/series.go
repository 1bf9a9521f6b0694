// Package indicator derives technical indicator series from OHLCV bars.
//
// Batch functions (SMA, EMA, MACD, RSI, Bollinger) take an ordered bar slice
// and return a Series positionally aligned to the input: index i of the output
// carries the same timestamp as index i of the input. Values inside an
// indicator's warm-up span are undefined, not zero - Point.Defined makes the
// distinction explicit.
//
// Streaming counterparts (StreamSMA, StreamEMA, ...) maintain O(1)-per-update
// state for live pipelines and agree with the batch functions on shared
// prefixes.
package indicator

import (
	"errors"
	"time"
)

var (
	// ErrEmptyInput is returned when a zero-length bar slice is supplied.
	ErrEmptyInput = errors.New("indicator: empty input series")

	// ErrInvalidParameter is returned for non-positive windows/periods or k <= 0.
	ErrInvalidParameter = errors.New("indicator: invalid parameter")
)

// Point is one entry of an indicator series. Defined is false inside the
// warm-up span where insufficient history exists.
type Point struct {
	TS      time.Time `json:"ts"`
	Value   float64   `json:"value"`
	Defined bool      `json:"defined"`
}

// Series is an ordered indicator series aligned 1:1 with its input bars.
type Series []Point

// DefinedCount returns how many points carry a computed value.
func (s Series) DefinedCount() int {
	n := 0
	for _, p := range s {
		if p.Defined {
			n++
		}
	}
	return n
}

// FirstDefined returns the index of the first defined point, or -1.
func (s Series) FirstDefined() int {
	for i, p := range s {
		if p.Defined {
			return i
		}
	}
	return -1
}

// Last returns the most recent defined value, or false when the whole
// series is undefined.
func (s Series) Last() (float64, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Defined {
			return s[i].Value, true
		}
	}
	return 0, false
}

// undefinedSeries builds an all-undefined series carrying the bar timestamps.
func undefinedSeries(ts []time.Time) Series {
	s := make(Series, len(ts))
	for i, t := range ts {
		s[i] = Point{TS: t}
	}
	return s
}
