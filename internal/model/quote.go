package model

import (
	"encoding/json"
	"time"
)

// Quote is a realtime snapshot of a symbol: last traded price plus
// the day's OHLC and volume so far.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Exchange  Exchange  `json:"exchange"`
	LTP       float64   `json:"ltp"` // last traded price
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	PrevClose float64   `json:"prev_close"`
	Volume    int64     `json:"volume"`
	TS        time.Time `json:"ts"`
}

// Key returns "exchange:symbol".
func (q *Quote) Key() string {
	return string(q.Exchange) + ":" + q.Symbol
}

// Change returns the absolute price change versus the previous close.
func (q *Quote) Change() float64 {
	return q.LTP - q.PrevClose
}

// ChangePercent returns the percentage change versus the previous close.
// Returns 0 if the previous close is unknown.
func (q *Quote) ChangePercent() float64 {
	if q.PrevClose == 0 {
		return 0
	}
	return (q.LTP - q.PrevClose) / q.PrevClose * 100
}

// Tick converts the quote into a tick carrying the last traded price.
func (q *Quote) Tick() Tick {
	return Tick{
		Symbol:   q.Symbol,
		Exchange: q.Exchange,
		Price:    q.LTP,
		Qty:      q.Volume,
		TS:       q.TS,
	}
}

// JSON returns the JSON-encoded quote.
func (q *Quote) JSON() []byte {
	data, _ := json.Marshal(q)
	return data
}
