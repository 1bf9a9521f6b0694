package model

import (
	"encoding/json"
	"time"
)

// IndicatorResult holds one computed indicator value for a symbol.
type IndicatorResult struct {
	Name     string    `json:"name"` // e.g. "SMA_20", "RSI_14", "MACD_line"
	Symbol   string    `json:"symbol"`
	Exchange Exchange  `json:"exchange"`
	Interval Interval  `json:"interval"`
	Value    float64   `json:"value"`
	TS       time.Time `json:"ts"`    // bar timestamp that produced this value
	Ready    bool      `json:"ready"` // false inside the indicator's warm-up
}

// StreamKey returns the Redis stream key: "ind:{name}:{interval}:{exchange}:{symbol}".
func (r *IndicatorResult) StreamKey() string {
	return "ind:" + r.Name + ":" + string(r.Interval) + ":" + string(r.Exchange) + ":" + r.Symbol
}

// JSON returns the JSON-encoded result.
func (r *IndicatorResult) JSON() []byte {
	data, _ := json.Marshal(r)
	return data
}
