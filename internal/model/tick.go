package model

import (
	"encoding/json"
	"time"
)

// Tick represents a single traded-price observation for a symbol.
type Tick struct {
	Symbol   string    `json:"symbol"`
	Exchange Exchange  `json:"exchange"`
	Price    float64   `json:"price"` // last traded price
	Qty      int64     `json:"qty"`   // last traded quantity
	TS       time.Time `json:"ts"`    // UTC timestamp
}

// Key returns "exchange:symbol".
func (t *Tick) Key() string {
	return string(t.Exchange) + ":" + t.Symbol
}

// JSON returns the JSON-encoded tick.
func (t *Tick) JSON() []byte {
	data, _ := json.Marshal(t)
	return data
}
