package smartapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SmartAPI candle interval tokens.
const (
	IntervalOneMinute     = "ONE_MINUTE"
	IntervalFiveMinute    = "FIVE_MINUTE"
	IntervalFifteenMinute = "FIFTEEN_MINUTE"
	IntervalThirtyMinute  = "THIRTY_MINUTE"
	IntervalOneHour       = "ONE_HOUR"
	IntervalOneDay        = "ONE_DAY"
)

// CandleRequest describes a historical candle query. Exchange is "NSE"
// or "BSE", SymbolToken is the broker's numeric instrument token, and
// Interval is one of the Interval* constants.
type CandleRequest struct {
	Exchange    string
	SymbolToken string
	Interval    string
	From        time.Time
	To          time.Time
}

// Candle is one OHLCV row from the historical endpoint.
type Candle struct {
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// LTPData is the quote payload from the LTP endpoint.
type LTPData struct {
	Exchange      string  `json:"exchange"`
	TradingSymbol string  `json:"tradingsymbol"`
	SymbolToken   string  `json:"symboltoken"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"` // previous session close
	LTP           float64 `json:"ltp"`
}

// brokerTimeLayout is the timestamp format SmartAPI uses in both
// request parameters and candle rows.
const brokerTimeLayout = "2006-01-02 15:04"

// CandleData fetches historical OHLCV candles. Rows come back as
// heterogeneous JSON arrays: [timestamp, open, high, low, close, volume].
func (c *Client) CandleData(ctx context.Context, req CandleRequest) ([]Candle, error) {
	if !c.LoggedIn() {
		return nil, ErrNotLoggedIn
	}

	var rows [][]json.RawMessage
	err := c.do(ctx, "candles", map[string]any{
		"exchange":    req.Exchange,
		"symboltoken": req.SymbolToken,
		"interval":    req.Interval,
		"fromdate":    req.From.Format(brokerTimeLayout),
		"todate":      req.To.Format(brokerTimeLayout),
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("smartapi: candle data: %w", err)
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		cd, err := parseCandleRow(row)
		if err != nil {
			return nil, fmt.Errorf("smartapi: candle row: %w", err)
		}
		candles = append(candles, cd)
	}
	return candles, nil
}

// LTP fetches the last traded price for one instrument.
func (c *Client) LTP(ctx context.Context, exchange, tradingSymbol, symbolToken string) (LTPData, error) {
	if !c.LoggedIn() {
		return LTPData{}, ErrNotLoggedIn
	}
	var data LTPData
	err := c.do(ctx, "ltp", map[string]any{
		"exchange":      exchange,
		"tradingsymbol": tradingSymbol,
		"symboltoken":   symbolToken,
	}, &data)
	if err != nil {
		return LTPData{}, fmt.Errorf("smartapi: ltp: %w", err)
	}
	return data, nil
}

func parseCandleRow(row []json.RawMessage) (Candle, error) {
	if len(row) != 6 {
		return Candle{}, fmt.Errorf("expected 6 fields, got %d", len(row))
	}
	var tsStr string
	if err := json.Unmarshal(row[0], &tsStr); err != nil {
		return Candle{}, err
	}
	ts, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return Candle{}, err
	}
	var ohlc [4]float64
	for i := 0; i < 4; i++ {
		if err := json.Unmarshal(row[i+1], &ohlc[i]); err != nil {
			return Candle{}, err
		}
	}
	var vol int64
	if err := json.Unmarshal(row[5], &vol); err != nil {
		return Candle{}, err
	}
	return Candle{
		TS:     ts,
		Open:   ohlc[0],
		High:   ohlc[1],
		Low:    ohlc[2],
		Close:  ohlc[3],
		Volume: vol,
	}, nil
}
