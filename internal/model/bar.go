package model

import (
	"encoding/json"
	"time"
)

// Bar represents one OHLCV bar for a single symbol at a fixed interval.
type Bar struct {
	Symbol   string    `json:"symbol"`
	Exchange Exchange  `json:"exchange"`
	Interval Interval  `json:"interval"`
	TS       time.Time `json:"ts"` // bucket start time (UTC)
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
}

// Key returns a unique key for this bar's instrument: "exchange:symbol".
func (b *Bar) Key() string {
	return string(b.Exchange) + ":" + b.Symbol
}

// StreamKey returns the Redis stream key: "bar:{interval}:{exchange}:{symbol}".
func (b *Bar) StreamKey() string {
	return "bar:" + string(b.Interval) + ":" + string(b.Exchange) + ":" + b.Symbol
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// Closes extracts the close prices from a bar slice, preserving order.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
