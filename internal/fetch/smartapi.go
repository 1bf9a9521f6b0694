package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tickdata/internal/model"
	"tickdata/pkg/smartapi"
)

// SmartAPIFetcher adapts the Angel One SmartAPI client to the Fetcher
// interface. The broker addresses instruments by numeric token, so the
// fetcher carries a symbol-to-token map loaded from configuration.
type SmartAPIFetcher struct {
	Client *smartapi.Client

	// Tokens maps "EXCHANGE:SYMBOL" to the broker instrument token.
	Tokens map[string]string
}

func NewSmartAPIFetcher(client *smartapi.Client, tokens map[string]string) *SmartAPIFetcher {
	return &SmartAPIFetcher{Client: client, Tokens: tokens}
}

// smartapiIntervals maps bar intervals to SmartAPI tokens. Weekly and
// monthly bars are not served by the broker's historical endpoint.
var smartapiIntervals = map[model.Interval]string{
	model.Interval1m:  smartapi.IntervalOneMinute,
	model.Interval5m:  smartapi.IntervalFiveMinute,
	model.Interval15m: smartapi.IntervalFifteenMinute,
	model.Interval30m: smartapi.IntervalThirtyMinute,
	model.Interval1h:  smartapi.IntervalOneHour,
	model.Interval1d:  smartapi.IntervalOneDay,
}

func (f *SmartAPIFetcher) token(symbol string, exchange model.Exchange) (string, error) {
	tok, ok := f.Tokens[string(exchange)+":"+symbol]
	if !ok {
		return "", fmt.Errorf("%w: no broker token for %s:%s", ErrSymbolNotFound, exchange, symbol)
	}
	return tok, nil
}

func (f *SmartAPIFetcher) ensureSession(ctx context.Context) error {
	if f.Client.LoggedIn() {
		return nil
	}
	if err := f.Client.Login(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return nil
}

func (f *SmartAPIFetcher) HistoricalSeries(ctx context.Context, symbol string, exchange model.Exchange,
	interval model.Interval, start, end time.Time) ([]model.Bar, error) {

	brokerInterval, ok := smartapiIntervals[interval]
	if !ok {
		return nil, fmt.Errorf("smartapi does not serve %s bars", interval)
	}
	tok, err := f.token(symbol, exchange)
	if err != nil {
		return nil, err
	}
	if err := f.ensureSession(ctx); err != nil {
		return nil, err
	}

	candles, err := f.Client.CandleData(ctx, smartapi.CandleRequest{
		Exchange:    string(exchange),
		SymbolToken: tok,
		Interval:    brokerInterval,
		From:        start,
		To:          end,
	})
	if err != nil {
		if errors.Is(err, smartapi.ErrNotLoggedIn) {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	bars := make([]model.Bar, 0, len(candles))
	for _, c := range candles {
		bars = append(bars, model.Bar{
			Symbol:   symbol,
			Exchange: exchange,
			Interval: interval,
			TS:       c.TS,
			Open:     c.Open,
			High:     c.High,
			Low:      c.Low,
			Close:    c.Close,
			Volume:   c.Volume,
		})
	}
	return bars, nil
}

func (f *SmartAPIFetcher) RealtimeQuote(ctx context.Context, symbol string, exchange model.Exchange) (model.Quote, error) {
	tok, err := f.token(symbol, exchange)
	if err != nil {
		return model.Quote{}, err
	}
	if err := f.ensureSession(ctx); err != nil {
		return model.Quote{}, err
	}

	ltp, err := f.Client.LTP(ctx, string(exchange), symbol+"-EQ", tok)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return model.Quote{
		Symbol:    symbol,
		Exchange:  exchange,
		LTP:       ltp.LTP,
		Open:      ltp.Open,
		High:      ltp.High,
		Low:       ltp.Low,
		PrevClose: ltp.Close,
		TS:        time.Now(),
	}, nil
}
